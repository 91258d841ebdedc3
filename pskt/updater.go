// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"bytes"
	"errors"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrInvalidIndex is returned when an input or output index is out of
	// range for the packet it was applied to.
	ErrInvalidIndex = errors.New("index out of range for packet")

	// ErrDuplicateXpub is returned when a global extended public key is
	// added twice.
	ErrDuplicateXpub = errors.New("duplicate global xpub entry")

	// ErrInvalidLocktime is returned when a required locktime hint falls
	// on the wrong side of the height/timestamp threshold.
	ErrInvalidLocktime = errors.New("locktime hint out of range")
)

// Updater encapsulates the role 'Updater' as specified in the PSKT workflow;
// it accepts Packet structs and has methods to add fields to the inputs and
// outputs.
type Updater struct {
	Upskt *Packet
}

// NewUpdater returns a new instance of Updater, if the passed Packet struct
// is in a valid form, else an error.
func NewUpdater(p *Packet) (*Updater, error) {
	if err := p.SanityCheck(); err != nil {
		return nil, err
	}

	return &Updater{Upskt: p}, nil
}

// AddInNonWitnessUtxo adds the utxo information for an input which is
// non-witness. This requires provision of a full transaction (which is the
// source of the corresponding prevOut), and the input index. If addition of
// this key-value pair to the Packet fails, an error is returned.
func (u *Updater) AddInNonWitnessUtxo(tx *wire.MsgTx, inIndex int) error {
	if inIndex > len(u.Upskt.UnsignedTx.TxIn)-1 {
		return ErrInvalidPrevOutNonWitnessTransaction
	}

	// The transaction provided must actually be the one the input's
	// outpoint refers to.
	txHash := tx.TxHash()
	prevHash := u.Upskt.UnsignedTx.TxIn[inIndex].PreviousOutPoint.Hash
	if !bytes.Equal(txHash[:], prevHash[:]) {
		return ErrInvalidPrevOutNonWitnessTransaction
	}

	u.Upskt.Inputs[inIndex].NonWitnessUtxo = tx

	if err := u.Upskt.SanityCheck(); err != nil {
		return ErrInvalidPsktFormat
	}

	return nil
}

// AddInWitnessUtxo adds the utxo information for an input which is witness.
// This requires provision of a full transaction output (which is the
// corresponding prevOut), and the input index. If addition of this key-value
// pair to the Packet fails, an error is returned.
func (u *Updater) AddInWitnessUtxo(txout *wire.TxOut, inIndex int) error {
	if inIndex > len(u.Upskt.UnsignedTx.TxIn)-1 {
		return ErrInvalidPsktFormat
	}

	u.Upskt.Inputs[inIndex].WitnessUtxo = txout

	if err := u.Upskt.SanityCheck(); err != nil {
		return ErrInvalidPsktFormat
	}

	return nil
}

// AddInRedeemScript adds the redeem script information for an input. The
// redeem script is passed serialized, as a byte slice, along with the index
// of the input. An error is returned if addition of this key-value pair to
// the Packet fails.
func (u *Updater) AddInRedeemScript(redeemScript []byte,
	inIndex int) error {

	if inIndex > len(u.Upskt.Inputs)-1 {
		return ErrInvalidIndex
	}

	u.Upskt.Inputs[inIndex].RedeemScript = redeemScript

	if err := u.Upskt.SanityCheck(); err != nil {
		return ErrInvalidPsktFormat
	}

	return nil
}

// AddInWitnessScript adds the witness script information for an input. The
// witness script is passed serialized, as a byte slice, along with the index
// of the input. An error is returned if addition of this key-value pair to
// the Packet fails.
func (u *Updater) AddInWitnessScript(witnessScript []byte,
	inIndex int) error {

	if inIndex > len(u.Upskt.Inputs)-1 {
		return ErrInvalidIndex
	}

	u.Upskt.Inputs[inIndex].WitnessScript = witnessScript

	if err := u.Upskt.SanityCheck(); err != nil {
		return ErrInvalidPsktFormat
	}

	return nil
}

// AddInBip32Derivation takes a master key fingerprint as defined in BIP32, a
// BIP32 path as a slice of uint32 values, and a serialized pubkey as a byte
// slice, along with the integer index of the input, and inserts this data
// into that input.
//
// NOTE: this can be called multiple times for the same input.  An error is
// returned if addition of this key-value pair to the Packet fails.
func (u *Updater) AddInBip32Derivation(masterKeyFingerprint uint32,
	bip32Path []uint32, pubKeyData []byte, inIndex int) error {

	if inIndex > len(u.Upskt.Inputs)-1 {
		return ErrInvalidIndex
	}

	bip32Derivation := Bip32Derivation{
		PubKey:               pubKeyData,
		MasterKeyFingerprint: masterKeyFingerprint,
		Bip32Path:            bip32Path,
	}

	if !bip32Derivation.checkValid() {
		return ErrInvalidPsktFormat
	}

	// Don't allow duplicate keys
	for _, x := range u.Upskt.Inputs[inIndex].Bip32Derivation {
		if bytes.Equal(x.PubKey, bip32Derivation.PubKey) {
			return ErrDuplicateKey
		}
	}

	u.Upskt.Inputs[inIndex].Bip32Derivation = append(
		u.Upskt.Inputs[inIndex].Bip32Derivation, &bip32Derivation,
	)

	if err := u.Upskt.SanityCheck(); err != nil {
		return ErrInvalidPsktFormat
	}

	return nil
}

// AddInSighashType adds the sighash type information for an input. The
// sighash type is passed as a 32 bit unsigned integer, along with the index
// for the input. An error is returned if addition of this key-value pair to
// the Packet fails.
func (u *Updater) AddInSighashType(sighashType txscript.SigHashType,
	inIndex int) error {

	if inIndex > len(u.Upskt.Inputs)-1 {
		return ErrInvalidIndex
	}

	u.Upskt.Inputs[inIndex].SighashType = sighashType

	if err := u.Upskt.SanityCheck(); err != nil {
		return ErrInvalidPsktFormat
	}

	return nil
}

// AddInRipemd160Preimage records a RIPEMD160 preimage against an input. The
// entry is keyed by the digest of the preimage, which is computed here
// rather than trusted from the caller.
func (u *Updater) AddInRipemd160Preimage(preimage []byte,
	inIndex int) error {

	return u.addInPreimage(Ripemd160PreimageType, preimage, inIndex)
}

// AddInSha256Preimage records a SHA256 preimage against an input, keyed by
// the digest of the preimage.
func (u *Updater) AddInSha256Preimage(preimage []byte, inIndex int) error {
	return u.addInPreimage(Sha256PreimageType, preimage, inIndex)
}

// AddInHash160Preimage records a HASH160 preimage against an input, keyed by
// the digest of the preimage.
func (u *Updater) AddInHash160Preimage(preimage []byte, inIndex int) error {
	return u.addInPreimage(Hash160PreimageType, preimage, inIndex)
}

// AddInHash256Preimage records a HASH256 preimage against an input, keyed by
// the digest of the preimage.
func (u *Updater) AddInHash256Preimage(preimage []byte, inIndex int) error {
	return u.addInPreimage(Hash256PreimageType, preimage, inIndex)
}

// addInPreimage dispatches a preimage of the given kind into the matching
// per-input collection, rejecting duplicates by digest.
func (u *Updater) addInPreimage(keyType InputType, preimage []byte,
	inIndex int) error {

	if inIndex > len(u.Upskt.Inputs)-1 {
		return ErrInvalidIndex
	}

	var hash []byte
	switch keyType {
	case Ripemd160PreimageType:
		hash = ripemd160h(preimage)
	case Sha256PreimageType:
		hash = sha256h(preimage)
	case Hash160PreimageType:
		hash = hash160(preimage)
	case Hash256PreimageType:
		hash = hash256(preimage)
	default:
		return ErrInvalidPsktFormat
	}

	pIn := &u.Upskt.Inputs[inIndex]
	var target *[]*HashPreimage
	switch keyType {
	case Ripemd160PreimageType:
		target = &pIn.Ripemd160Preimages
	case Sha256PreimageType:
		target = &pIn.Sha256Preimages
	case Hash160PreimageType:
		target = &pIn.Hash160Preimages
	case Hash256PreimageType:
		target = &pIn.Hash256Preimages
	}

	for _, existing := range *target {
		if bytes.Equal(existing.Hash, hash) {
			return ErrDuplicateKey
		}
	}

	*target = append(*target, &HashPreimage{
		Hash:     hash,
		Preimage: preimage,
	})

	return nil
}

// SetInRequiredTimeLocktime records a timestamp based locktime hint on an
// input. The value must be at or above the locktime threshold, below which
// values encode block heights instead.
func (u *Updater) SetInRequiredTimeLocktime(lockTime uint32,
	inIndex int) error {

	if inIndex > len(u.Upskt.Inputs)-1 {
		return ErrInvalidIndex
	}
	if lockTime < lockTimeThreshold {
		return ErrInvalidLocktime
	}

	u.Upskt.Inputs[inIndex].RequiredTimeLocktime = &lockTime

	return nil
}

// SetInRequiredHeightLocktime records a height based locktime hint on an
// input. The value must be below the locktime threshold.
func (u *Updater) SetInRequiredHeightLocktime(lockTime uint32,
	inIndex int) error {

	if inIndex > len(u.Upskt.Inputs)-1 {
		return ErrInvalidIndex
	}
	if lockTime >= lockTimeThreshold {
		return ErrInvalidLocktime
	}

	u.Upskt.Inputs[inIndex].RequiredHeightLocktime = &lockTime

	return nil
}

// AddGlobalXpub records an extended public key along with its key origin in
// the global scope of the packet. Duplicate extended keys are rejected.
func (u *Updater) AddGlobalXpub(extendedKey []byte,
	masterKeyFingerprint uint32, bip32Path []uint32) error {

	xpub := &Xpub{
		ExtendedKey:          extendedKey,
		MasterKeyFingerprint: masterKeyFingerprint,
		Bip32Path:            bip32Path,
	}
	if !xpub.checkValid() {
		return ErrInvalidPsktFormat
	}

	for _, existing := range u.Upskt.Xpubs {
		if bytes.Equal(existing.ExtendedKey, extendedKey) {
			return ErrDuplicateXpub
		}
	}

	u.Upskt.Xpubs = append(u.Upskt.Xpubs, xpub)

	return nil
}

// AddOutRedeemScript takes a redeem script as a byte slice and appends it to
// the output at index outIndex.
func (u *Updater) AddOutRedeemScript(redeemScript []byte,
	outIndex int) error {

	if outIndex > len(u.Upskt.Outputs)-1 {
		return ErrInvalidIndex
	}

	u.Upskt.Outputs[outIndex].RedeemScript = redeemScript

	if err := u.Upskt.SanityCheck(); err != nil {
		return ErrInvalidPsktFormat
	}

	return nil
}

// AddOutWitnessScript takes a witness script as a byte slice and appends it
// to the output at index outIndex.
func (u *Updater) AddOutWitnessScript(witnessScript []byte,
	outIndex int) error {

	if outIndex > len(u.Upskt.Outputs)-1 {
		return ErrInvalidIndex
	}

	u.Upskt.Outputs[outIndex].WitnessScript = witnessScript

	if err := u.Upskt.SanityCheck(); err != nil {
		return ErrInvalidPsktFormat
	}

	return nil
}

// AddOutBip32Derivation takes a master key fingerprint as defined in BIP32,
// a BIP32 path as a slice of uint32 values, and a serialized pubkey as a
// byte slice, along with the integer index of the output, and inserts this
// data into that output.
//
// NOTE: this can be called multiple times for the same output.  An error is
// returned if addition of this key-value pair to the Packet fails.
func (u *Updater) AddOutBip32Derivation(masterKeyFingerprint uint32,
	bip32Path []uint32, pubKeyData []byte, outIndex int) error {

	if outIndex > len(u.Upskt.Outputs)-1 {
		return ErrInvalidIndex
	}

	bip32Derivation := Bip32Derivation{
		PubKey:               pubKeyData,
		MasterKeyFingerprint: masterKeyFingerprint,
		Bip32Path:            bip32Path,
	}

	if !bip32Derivation.checkValid() {
		return ErrInvalidPsktFormat
	}

	// Don't allow duplicate keys
	for _, x := range u.Upskt.Outputs[outIndex].Bip32Derivation {
		if bytes.Equal(x.PubKey, bip32Derivation.PubKey) {
			return ErrDuplicateKey
		}
	}

	u.Upskt.Outputs[outIndex].Bip32Derivation = append(
		u.Upskt.Outputs[outIndex].Bip32Derivation, &bip32Derivation,
	)

	if err := u.Upskt.SanityCheck(); err != nil {
		return ErrInvalidPsktFormat
	}

	return nil
}

// SetOutAmount records an explicit amount override against the output at
// index outIndex. The override does not rewrite the embedded transaction; it
// travels alongside it for consumers that reconstruct the output set.
func (u *Updater) SetOutAmount(amount int64, outIndex int) error {
	if outIndex > len(u.Upskt.Outputs)-1 {
		return ErrInvalidIndex
	}

	u.Upskt.Outputs[outIndex].Amount = &amount

	return nil
}

// SetOutScript records an explicit locking script override against the
// output at index outIndex.
func (u *Updater) SetOutScript(script []byte, outIndex int) error {
	if outIndex > len(u.Upskt.Outputs)-1 {
		return ErrInvalidIndex
	}

	u.Upskt.Outputs[outIndex].PkScript = script

	return nil
}
