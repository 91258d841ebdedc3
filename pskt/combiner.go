// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"bytes"
	"errors"
)

var (
	// ErrNoPackets is returned when a combine is attempted over an empty
	// set of packets.
	ErrNoPackets = errors.New("no packets to combine")

	// ErrIncompatiblePskts is returned when two packets do not share the
	// same underlying unsigned transaction and so cannot be combined.
	ErrIncompatiblePskts = errors.New(
		"pskts not compatible (different transactions)",
	)
)

// Combine merges any number of packets that share the same unsigned
// transaction into a single packet carrying the union of all their entries.
// The merge is biased towards earlier arguments: wherever two packets carry
// conflicting values for a single-valued field, the first packet to set the
// field wins. Keyed collections (partial signatures, derivations, preimages,
// unknowns) are unioned, with entries from later packets skipped when the
// key is already present.
//
// The returned packet is freshly allocated; none of the arguments are
// modified.
func Combine(packets ...*Packet) (*Packet, error) {
	if len(packets) == 0 {
		return nil, ErrNoPackets
	}

	result, err := packets[0].Copy()
	if err != nil {
		return nil, err
	}

	for _, other := range packets[1:] {
		if err := merge(result, other); err != nil {
			return nil, err
		}
	}

	log.Debugf("Combined %d packets for tx %v", len(packets),
		result.UnsignedTx.TxHash())

	return result, nil
}

// merge folds the entries of src into dst in place. Both packets must be
// built over the same unsigned transaction.
func merge(dst, src *Packet) error {
	dstHash := dst.UnsignedTx.TxHash()
	srcHash := src.UnsignedTx.TxHash()
	if !dstHash.IsEqual(&srcHash) {
		return ErrIncompatiblePskts
	}
	if len(dst.Inputs) != len(src.Inputs) ||
		len(dst.Outputs) != len(src.Outputs) {

		return ErrIncompatiblePskts
	}

	for i := range dst.Inputs {
		mergeInput(&dst.Inputs[i], &src.Inputs[i])
	}
	for i := range dst.Outputs {
		mergeOutput(&dst.Outputs[i], &src.Outputs[i])
	}

	for _, xpub := range src.Xpubs {
		if !containsXpub(dst.Xpubs, xpub.ExtendedKey) {
			dst.Xpubs = append(dst.Xpubs, xpub)
		}
	}
	if dst.Version == nil {
		dst.Version = src.Version
	}
	for _, unknown := range src.Unknowns {
		if !containsUnknown(dst.Unknowns, unknown.Key) {
			dst.Unknowns = append(dst.Unknowns, unknown)
		}
	}

	return nil
}

func mergeInput(dst, src *PInput) {
	if dst.NonWitnessUtxo == nil {
		dst.NonWitnessUtxo = src.NonWitnessUtxo
	}
	if dst.WitnessUtxo == nil {
		dst.WitnessUtxo = src.WitnessUtxo
	}
	if dst.SighashType == 0 {
		dst.SighashType = src.SighashType
	}
	if dst.RedeemScript == nil {
		dst.RedeemScript = src.RedeemScript
	}
	if dst.WitnessScript == nil {
		dst.WitnessScript = src.WitnessScript
	}
	if dst.FinalScriptSig == nil {
		dst.FinalScriptSig = src.FinalScriptSig
	}
	if dst.FinalScriptWitness == nil {
		dst.FinalScriptWitness = src.FinalScriptWitness
	}
	if dst.PorCommitment == nil {
		dst.PorCommitment = src.PorCommitment
	}
	if dst.RequiredTimeLocktime == nil {
		dst.RequiredTimeLocktime = src.RequiredTimeLocktime
	}
	if dst.RequiredHeightLocktime == nil {
		dst.RequiredHeightLocktime = src.RequiredHeightLocktime
	}
	if dst.TaprootKeySpendSig == nil {
		dst.TaprootKeySpendSig = src.TaprootKeySpendSig
	}
	if dst.TaprootInternalKey == nil {
		dst.TaprootInternalKey = src.TaprootInternalKey
	}
	if dst.TaprootMerkleRoot == nil {
		dst.TaprootMerkleRoot = src.TaprootMerkleRoot
	}

	for _, sig := range src.PartialSigs {
		if !containsSig(dst.PartialSigs, sig.PubKey) {
			dst.PartialSigs = append(dst.PartialSigs, sig)
		}
	}
	for _, derivation := range src.Bip32Derivation {
		if !containsDerivation(dst.Bip32Derivation, derivation.PubKey) {
			dst.Bip32Derivation = append(
				dst.Bip32Derivation, derivation,
			)
		}
	}

	dst.Ripemd160Preimages = mergePreimages(
		dst.Ripemd160Preimages, src.Ripemd160Preimages,
	)
	dst.Sha256Preimages = mergePreimages(
		dst.Sha256Preimages, src.Sha256Preimages,
	)
	dst.Hash160Preimages = mergePreimages(
		dst.Hash160Preimages, src.Hash160Preimages,
	)
	dst.Hash256Preimages = mergePreimages(
		dst.Hash256Preimages, src.Hash256Preimages,
	)

	for _, scriptSpend := range src.TaprootScriptSpendSig {
		if !containsScriptSpendSig(
			dst.TaprootScriptSpendSig, scriptSpend,
		) {

			dst.TaprootScriptSpendSig = append(
				dst.TaprootScriptSpendSig, scriptSpend,
			)
		}
	}
	for _, leafScript := range src.TaprootLeafScript {
		if !containsLeafScript(
			dst.TaprootLeafScript, leafScript.ControlBlock,
		) {

			dst.TaprootLeafScript = append(
				dst.TaprootLeafScript, leafScript,
			)
		}
	}
	for _, derivation := range src.TaprootBip32Derivation {
		if !containsTaprootDerivation(
			dst.TaprootBip32Derivation, derivation.XOnlyPubKey,
		) {

			dst.TaprootBip32Derivation = append(
				dst.TaprootBip32Derivation, derivation,
			)
		}
	}

	for _, unknown := range src.Unknowns {
		if !containsUnknown(dst.Unknowns, unknown.Key) {
			dst.Unknowns = append(dst.Unknowns, unknown)
		}
	}
}

func mergeOutput(dst, src *POutput) {
	if dst.RedeemScript == nil {
		dst.RedeemScript = src.RedeemScript
	}
	if dst.WitnessScript == nil {
		dst.WitnessScript = src.WitnessScript
	}
	if dst.Amount == nil {
		dst.Amount = src.Amount
	}
	if dst.PkScript == nil {
		dst.PkScript = src.PkScript
	}
	if dst.TaprootInternalKey == nil {
		dst.TaprootInternalKey = src.TaprootInternalKey
	}
	if dst.TaprootTapTree == nil {
		dst.TaprootTapTree = src.TaprootTapTree
	}

	for _, derivation := range src.Bip32Derivation {
		if !containsDerivation(dst.Bip32Derivation, derivation.PubKey) {
			dst.Bip32Derivation = append(
				dst.Bip32Derivation, derivation,
			)
		}
	}
	for _, derivation := range src.TaprootBip32Derivation {
		if !containsTaprootDerivation(
			dst.TaprootBip32Derivation, derivation.XOnlyPubKey,
		) {

			dst.TaprootBip32Derivation = append(
				dst.TaprootBip32Derivation, derivation,
			)
		}
	}

	for _, unknown := range src.Unknowns {
		if !containsUnknown(dst.Unknowns, unknown.Key) {
			dst.Unknowns = append(dst.Unknowns, unknown)
		}
	}
}

func mergePreimages(dst, src []*HashPreimage) []*HashPreimage {
	for _, preimage := range src {
		found := false
		for _, existing := range dst {
			if bytes.Equal(existing.Hash, preimage.Hash) {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, preimage)
		}
	}

	return dst
}

func containsSig(sigs []*PartialSig, pubKey []byte) bool {
	for _, sig := range sigs {
		if bytes.Equal(sig.PubKey, pubKey) {
			return true
		}
	}

	return false
}

func containsDerivation(derivations []*Bip32Derivation, pubKey []byte) bool {
	for _, derivation := range derivations {
		if bytes.Equal(derivation.PubKey, pubKey) {
			return true
		}
	}

	return false
}

func containsTaprootDerivation(derivations []*TaprootBip32Derivation,
	xOnlyPubKey []byte) bool {

	for _, derivation := range derivations {
		if bytes.Equal(derivation.XOnlyPubKey, xOnlyPubKey) {
			return true
		}
	}

	return false
}

func containsScriptSpendSig(sigs []*TaprootScriptSpendSig,
	target *TaprootScriptSpendSig) bool {

	for _, sig := range sigs {
		if sig.EqualKey(target) {
			return true
		}
	}

	return false
}

func containsLeafScript(leafScripts []*TaprootTapLeafScript,
	controlBlock []byte) bool {

	for _, leafScript := range leafScripts {
		if bytes.Equal(leafScript.ControlBlock, controlBlock) {
			return true
		}
	}

	return false
}

func containsXpub(xpubs []*Xpub, extendedKey []byte) bool {
	for _, xpub := range xpubs {
		if bytes.Equal(xpub.ExtendedKey, extendedKey) {
			return true
		}
	}

	return false
}

func containsUnknown(unknowns []*Unknown, key []byte) bool {
	for _, unknown := range unknowns {
		if bytes.Equal(unknown.Key, key) {
			return true
		}
	}

	return false
}
