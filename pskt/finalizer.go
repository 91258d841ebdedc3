// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

// The Finalizer requires provision of a single PSKT input in which all
// necessary signatures are encoded, and produces from it the final script
// sig and/or script witness satisfying that input. The working material used
// to construct the satisfaction (partial signatures, scripts, derivations,
// preimages) is discarded in the process; only the UTXO records and the
// final satisfaction survive it.

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// isFinalized considers whether the given input has already been finalized.
func isFinalized(p *Packet, inIndex int) bool {
	pInput := p.Inputs[inIndex]
	return pInput.FinalScriptSig != nil || pInput.FinalScriptWitness != nil
}

// isFinalizableWitnessInput returns true if the target input is a witness
// input for which all the required satisfaction material is present.
func isFinalizableWitnessInput(pInput *PInput) bool {
	pkScript := pInput.WitnessUtxo.PkScript

	switch {
	// If this is a native witness output, then we require both the
	// witness script, but not a redeem script.
	case txscript.IsWitnessProgram(pkScript):
		switch {
		case txscript.IsPayToWitnessScriptHash(pkScript):
			if pInput.WitnessScript == nil ||
				pInput.RedeemScript != nil {

				return false
			}

		case txscript.IsPayToTaproot(pkScript):
			if pInput.TaprootKeySpendSig == nil &&
				len(pInput.TaprootScriptSpendSig) == 0 {

				return false
			}

		default:
			// A P2WKH output on the other hand doesn't need any
			// ancillary data.
			if pInput.WitnessScript != nil ||
				pInput.RedeemScript != nil {

				return false
			}
		}

	// For nested witness inputs, we'll require that the redeem script is
	// present and the inner script is itself a witness program.
	case txscript.IsPayToScriptHash(pkScript):
		if pInput.RedeemScript == nil {
			return false
		}

		// If this is a nested P2SH input, then it must also have a
		// witness script, while we don't require one for nested
		// P2WKH.
		if txscript.IsPayToWitnessScriptHash(pInput.RedeemScript) {
			if pInput.WitnessScript == nil {
				return false
			}
		} else if txscript.IsPayToWitnessPubKeyHash(
			pInput.RedeemScript,
		) {

			if pInput.WitnessScript != nil {
				return false
			}
		} else {
			// The redeem script must be a witness program for a
			// witness UTXO record to make sense.
			return false
		}

	default:
		return false
	}

	return true
}

// isFinalizableLegacyInput returns true if the target input is a legacy
// input for which all the required satisfaction material is present.
func isFinalizableLegacyInput(p *Packet, pInput *PInput, inIndex int) bool {
	outIndex := p.UnsignedTx.TxIn[inIndex].PreviousOutPoint.Index
	if int(outIndex) >= len(pInput.NonWitnessUtxo.TxOut) {
		return false
	}
	pkScript := pInput.NonWitnessUtxo.TxOut[outIndex].PkScript

	// A legacy script hash spend needs the redeem script (and the redeem
	// script must not itself be a witness program, else the witness UTXO
	// record should have been used).
	if txscript.IsPayToScriptHash(pkScript) {
		if pInput.RedeemScript == nil ||
			txscript.IsWitnessProgram(pInput.RedeemScript) {

			return false
		}
	} else if pInput.RedeemScript != nil {
		return false
	}

	// Witness scripts have no place in a legacy spend.
	return pInput.WitnessScript == nil
}

// isFinalizable returns true if the target input in the given packet is
// finalizable: the set of fields present is sufficient to construct the
// final satisfaction for the kind of output the input spends.
func isFinalizable(p *Packet, inIndex int) bool {
	pInput := p.Inputs[inIndex]

	// The non-taproot cases all require at least one signature.
	isTaproot := pInput.WitnessUtxo != nil &&
		txscript.IsPayToTaproot(pInput.WitnessUtxo.PkScript)
	if !isTaproot && len(pInput.PartialSigs) == 0 {
		return false
	}

	switch {
	case pInput.WitnessUtxo != nil:
		return isFinalizableWitnessInput(&pInput)

	case pInput.NonWitnessUtxo != nil:
		return isFinalizableLegacyInput(p, &pInput, inIndex)

	// If neither UTXO field was present, then we can't finalize this
	// input as we have nothing to validate the signatures against.
	default:
		return false
	}
}

// MaybeFinalize attempts to finalize the input at index inIndex in the PSKT
// p, returning true with no error if it succeeds, OR if the input was
// already finalized.
func MaybeFinalize(p *Packet, inIndex int) (bool, error) {
	if isFinalized(p, inIndex) {
		return true, nil
	}

	if !isFinalizable(p, inIndex) {
		return false, ErrNotFinalizable
	}

	if err := Finalize(p, inIndex); err != nil {
		return false, err
	}

	return true, nil
}

// MaybeFinalizeAll attempts to finalize all inputs of the Packet that are
// not already finalized, and returns an error if it fails to do so.
func MaybeFinalizeAll(p *Packet) error {
	for i := range p.UnsignedTx.TxIn {
		success, err := MaybeFinalize(p, i)
		if err != nil || !success {
			return err
		}
	}

	return nil
}

// FinalizeAll attempts to finalize every non-final input of the packet,
// swallowing per-input failures. It returns the per-input final state after
// the pass along with whether every input ended up final.
func FinalizeAll(p *Packet) ([]bool, bool) {
	results := make([]bool, len(p.Inputs))
	complete := true
	for i := range p.Inputs {
		final, _ := MaybeFinalize(p, i)
		results[i] = final
		if !final {
			complete = false
		}
	}

	return results, complete
}

// Finalize assumes that the provided Packet struct has all partial
// signatures and redeem scripts/witness scripts already prepared for the
// input at index inIndex, and so removes all temporary data and replaces
// them with completed final scriptSig and scriptWitness fields, which are
// stored in key-types 07 and 08. The witness/non-witness utxo fields in the
// inputs (key-types 00 and 01) are left intact as they may be needed by
// hardware wallets or air-gapped signers to verify the finalized
// transaction.
func Finalize(p *Packet, inIndex int) error {
	pInput := p.Inputs[inIndex]

	// Depending on the UTXO type, we either attempt to finalize it as a
	// witness or legacy UTXO.
	switch {
	case pInput.WitnessUtxo != nil:
		if txscript.IsPayToTaproot(pInput.WitnessUtxo.PkScript) {
			if err := finalizeTaprootInput(p, inIndex); err != nil {
				return err
			}
		} else {
			if err := finalizeWitnessInput(p, inIndex); err != nil {
				return err
			}
		}

	case pInput.NonWitnessUtxo != nil:
		if err := finalizeNonWitnessInput(p, inIndex); err != nil {
			return err
		}

	default:
		return ErrInvalidPsktFormat
	}

	// Before returning we sanity check the PSKT to ensure we don't extract
	// an invalid transaction or produce an invalid intermediate state.
	if err := p.SanityCheck(); err != nil {
		return err
	}

	log.Tracef("Finalized input %d", inIndex)

	return nil
}

// checkFinalScriptSigWitness checks whether a given input in the Packet
// struct already has the fields 07 (FinalInScriptSig) or 08
// (FinalInWitness). If so, it returns true. It does not modify the Packet.
func checkFinalScriptSigWitness(p *Packet, inIndex int) bool {
	pInput := p.Inputs[inIndex]

	if pInput.FinalScriptSig != nil {
		return true
	}

	if pInput.FinalScriptWitness != nil {
		return true
	}

	return false
}

// finalizeNonWitnessInput attempts to create a PsktInFinalScriptSig field
// for the input at index inIndex, and removes all other fields for that
// input key, if the input is not currently finalized.
func finalizeNonWitnessInput(p *Packet, inIndex int) error {
	// If this input has already been finalized, then we'll end here as
	// there's nothing left to do.
	if checkFinalScriptSigWitness(p, inIndex) {
		return ErrInputAlreadyFinalized
	}

	// Our goal here is to construct a sigScript given the pubkey,
	// signature (keytype 02), of which there might be multiple, and the
	// redeem script field (keytype 04) if present (note that it is not
	// present for p2pkh type inputs).
	var sigScript []byte

	pInput := p.Inputs[inIndex]
	containsRedeemScript := pInput.RedeemScript != nil

	var (
		pubKeys [][]byte
		sigs    [][]byte
	)
	for _, ps := range pInput.PartialSigs {
		pubKeys = append(pubKeys, ps.PubKey)

		sigOK := checkSigHashFlags(ps.Signature, &pInput)
		if !sigOK {
			return ErrInvalidSigHashFlags
		}

		sigs = append(sigs, ps.Signature)
	}

	// We have failed to identify at least 1 (sig, pub) pair in the PSKT,
	// which indicates it was not ready to be finalized. As a result, we
	// can't proceed.
	if len(sigs) < 1 || len(pubKeys) < 1 {
		return ErrNotFinalizable
	}

	outIndex := p.UnsignedTx.TxIn[inIndex].PreviousOutPoint.Index
	if int(outIndex) >= len(pInput.NonWitnessUtxo.TxOut) {
		return ErrInvalidPrevOutNonWitnessTransaction
	}
	pkScript := pInput.NonWitnessUtxo.TxOut[outIndex].PkScript

	switch {
	// If a redeem script isn't present, then the satisfaction is built
	// directly against the previous output script.
	case !containsRedeemScript:
		var err error
		sigScript, err = satisfyBaseScript(pkScript, pubKeys, sigs)
		if err != nil {
			return err
		}

	default:
		// This is a P2SH input: the satisfaction of the redeem script
		// goes first, followed by a push of the redeem script itself.
		innerScript, err := satisfyBaseScript(
			pInput.RedeemScript, pubKeys, sigs,
		)
		if err != nil {
			return err
		}

		redeemPush, err := txscript.NewScriptBuilder().
			AddData(pInput.RedeemScript).Script()
		if err != nil {
			return err
		}

		sigScript = append(innerScript, redeemPush...)
	}

	// At this point, a sigScript has been constructed.  Remove all fields
	// other than non-witness utxo (00) and finaliscriptsig (07).
	newInput := NewPsktInput(pInput.NonWitnessUtxo, nil)
	newInput.FinalScriptSig = sigScript

	// Overwrite the entry in the input list at the correct index. Note
	// that this removes all the other entries in the list for this input
	// index.
	p.Inputs[inIndex] = *newInput

	return nil
}

// satisfyBaseScript builds the push-only satisfaction of a non-witness
// script: a bare signature for pay-to-pubkey, signature plus pubkey for
// pay-to-pubkey-hash, and the null-prefixed ordered signature list for a
// multisig script.
func satisfyBaseScript(script []byte, pubKeys [][]byte,
	sigs [][]byte) ([]byte, error) {

	isMultisig, _ := txscript.IsMultisigScript(script)

	switch {
	case isMultisig:
		orderedSigs, err := extractKeyOrderFromScript(
			script, pubKeys, sigs,
		)
		if err != nil {
			return nil, err
		}

		// Add a 0 for the CHECKMULTISIG extra element consumption.
		builder := txscript.NewScriptBuilder().AddOp(txscript.OP_FALSE)
		for _, sig := range orderedSigs {
			builder.AddData(sig)
		}

		return builder.Script()

	case txscript.GetScriptClass(script) == txscript.PubKeyTy:
		return txscript.NewScriptBuilder().AddData(sigs[0]).Script()

	default:
		return txscript.NewScriptBuilder().
			AddData(sigs[0]).AddData(pubKeys[0]).Script()
	}
}

// finalizeWitnessInput attempts to create PsktInFinalScriptSig field and
// PsktInFinalScriptWitness field for input at index inIndex, and removes
// all other fields for that input key, if the input is not currently
// finalized.
func finalizeWitnessInput(p *Packet, inIndex int) error {
	// If this input has already been finalized, then we'll end here as
	// there's nothing left to do.
	if checkFinalScriptSigWitness(p, inIndex) {
		return ErrInputAlreadyFinalized
	}

	// Depending on the actual output type, we'll either populate a
	// serializedWitness or a witness as well asa sigScript.
	var (
		sigScript         []byte
		serializedWitness []byte
	)

	pInput := p.Inputs[inIndex]
	containsRedeemScript := pInput.RedeemScript != nil
	containsWitnessScript := pInput.WitnessScript != nil

	var (
		pubKeys [][]byte
		sigs    [][]byte
	)
	for _, ps := range pInput.PartialSigs {
		pubKeys = append(pubKeys, ps.PubKey)

		sigOK := checkSigHashFlags(ps.Signature, &pInput)
		if !sigOK {
			return ErrInvalidSigHashFlags
		}

		sigs = append(sigs, ps.Signature)
	}

	// If at this point, we don't have any pubkey+sig pairs, then we bail
	// as we can't proceed.
	if len(sigs) == 0 || len(pubKeys) == 0 {
		return ErrNotFinalizable
	}

	switch {
	// If a witness script is present, then this is a P2WSH spend and the
	// witness is the ordered multisig satisfaction of the witness script.
	case containsWitnessScript:
		var err error
		serializedWitness, err = getMultisigScriptWitness(
			pInput.WitnessScript, pubKeys, sigs,
		)
		if err != nil {
			return err
		}

	// Otherwise the input spends a witness key hash, directly or nested.
	default:
		var err error
		serializedWitness, err = writePKHWitness(sigs[0], pubKeys[0])
		if err != nil {
			return err
		}
	}

	// A nested witness spend additionally pushes the redeem script (the
	// witness program) in the signature script.
	if containsRedeemScript {
		var err error
		sigScript, err = txscript.NewScriptBuilder().
			AddData(pInput.RedeemScript).Script()
		if err != nil {
			return err
		}
	}

	// At this point, a witness has been constructed, and a sigScript (if
	// nested; else it's []). Remove all fields other than witness utxo
	// (01) and finalscriptsig (07), finalscriptwitness (08).
	newInput := NewPsktInput(nil, pInput.WitnessUtxo)
	if len(sigScript) > 0 {
		newInput.FinalScriptSig = sigScript
	}
	newInput.FinalScriptWitness = serializedWitness

	// Overwrite the entry in the input list at the correct index.
	p.Inputs[inIndex] = *newInput

	return nil
}

// finalizeTaprootInput attempts to create PsktInFinalScriptWitness field for
// input at index inIndex, and removes all other fields for that input key,
// if the input is not currently finalized.
func finalizeTaprootInput(p *Packet, inIndex int) error {
	// If this input has already been finalized, then we'll end here as
	// there's nothing left to do.
	if checkFinalScriptSigWitness(p, inIndex) {
		return ErrInputAlreadyFinalized
	}

	// Any taproot input needs to be finalized into a witness.
	var serializedWitness []byte

	pInput := &p.Inputs[inIndex]

	switch {
	// Key spend path.
	case len(pInput.TaprootKeySpendSig) > 0:
		var err error
		serializedWitness, err = serializeWitness(
			wire.TxWitness{pInput.TaprootKeySpendSig},
		)
		if err != nil {
			return err
		}

	// Script spend path.
	case len(pInput.TaprootScriptSpendSig) > 0:
		var err error
		serializedWitness, err = taprootScriptSpendWitness(pInput)
		if err != nil {
			return err
		}

	default:
		return ErrNotFinalizable
	}

	newInput := NewPsktInput(nil, pInput.WitnessUtxo)
	newInput.FinalScriptWitness = serializedWitness

	// Overwrite the entry in the input list at the correct index.
	p.Inputs[inIndex] = *newInput

	return nil
}

// taprootScriptSpendWitness assembles the witness stack for a taproot script
// path spend from the recorded script spend signature and the leaf script it
// commits to. Currently only single signature leaf scripts can be satisfied
// this way.
func taprootScriptSpendWitness(pInput *PInput) ([]byte, error) {
	scriptSpendSig := pInput.TaprootScriptSpendSig[0]

	// The leaf script the signature commits to must be present.
	var leafScript *TaprootTapLeafScript
	for _, leaf := range pInput.TaprootLeafScript {
		hash := leaf.leafHash()
		if bytes.Equal(hash[:], scriptSpendSig.LeafHash) {
			leafScript = leaf
			break
		}
	}
	if leafScript == nil {
		return nil, fmt.Errorf("control block for leaf hash %x "+
			"not found: %w", scriptSpendSig.LeafHash,
			ErrNotFinalizable)
	}

	return serializeWitness(wire.TxWitness{
		scriptSpendSig.SerializeSignature(),
		leafScript.Script,
		leafScript.ControlBlock,
	})
}

// checkSigHashFlags compares the sighash flag byte on a signature with the
// value expected according to any PsktInSighashType field in this section
// of the PSKT, and returns true if they match, false otherwise.
// If no SighashType field exists, it is assumed to be acceptable.
func checkSigHashFlags(sig []byte, input *PInput) bool {
	expectedSighashType := input.SighashType
	if expectedSighashType == 0 {
		return true
	}

	return expectedSighashType == txscript.SigHashType(sig[len(sig)-1])
}

// extractKeyOrderFromScript is a utility function to extract an ordered list
// of signatures, given a serialized script (redeem or witness), a list of
// pubkeys and the signatures corresponding to those pubkeys. The returned
// list of signatures is ordered the way the pubkeys appear in the script, as
// OP_CHECKMULTISIG expects.
func extractKeyOrderFromScript(script []byte, expectedPubkeys [][]byte,
	sigs [][]byte) ([][]byte, error) {

	// If this isn't a proper multisig script, then we can't proceed.
	if isMultisig, err := txscript.IsMultisigScript(script); err != nil {
		return nil, err
	} else if !isMultisig {
		return nil, ErrUnsupportedScriptType
	}

	// Arrange the pubkeys and sigs into a slice of format:
	//   * [[pub, sig], [pub, sig], ..]
	type sigWithPub struct {
		pubKey []byte
		sig    []byte
	}
	var pubsSigs []sigWithPub
	for i, pub := range expectedPubkeys {
		pubsSigs = append(pubsSigs, sigWithPub{
			pubKey: pub,
			sig:    sigs[i],
		})
	}

	// Now that we have the set of (pubkey, signature) pairs, we'll
	// construct a position map that we can use to swap the order in the
	// slice above to match how things are laid out in the script.
	type positionEntry struct {
		index int
		value sigWithPub
	}
	var positionMap []positionEntry

	// For each pubkey in our pubsSigs slice, we'll now construct a proper
	// positionMap entry, based on where in the script the pubkey first
	// appears.
	for _, p := range pubsSigs {
		pos := bytes.Index(script, p.pubKey)
		if pos < 0 {
			return nil, ErrInvalidSignatureForInput
		}

		positionMap = append(positionMap, positionEntry{
			index: pos,
			value: p,
		})
	}

	// Order the elements of the signature list by their position in the
	// script.
	for i := range positionMap {
		for j := i + 1; j < len(positionMap); j++ {
			if positionMap[j].index < positionMap[i].index {
				positionMap[i], positionMap[j] =
					positionMap[j], positionMap[i]
			}
		}
	}

	// Finally, we can simply iterate through the position map in order to
	// extract the ordered set of signatures.
	orderedSigs := make([][]byte, 0, len(positionMap))
	for _, entry := range positionMap {
		orderedSigs = append(orderedSigs, entry.value.sig)
	}

	return orderedSigs, nil
}

// getMultisigScriptWitness creates a full psuedo-valid witness stack for a
// multisig witness script spend: the null element consumed by
// OP_CHECKMULTISIG, the ordered signatures and the witness script.
func getMultisigScriptWitness(witnessScript []byte, pubKeys [][]byte,
	sigs [][]byte) ([]byte, error) {

	orderedSigs, err := extractKeyOrderFromScript(
		witnessScript, pubKeys, sigs,
	)
	if err != nil {
		return nil, err
	}

	witness := make(wire.TxWitness, 0, len(orderedSigs)+2)
	witness = append(witness, nil)
	witness = append(witness, orderedSigs...)
	witness = append(witness, witnessScript)

	return serializeWitness(witness)
}

// writePKHWitness writes a witness for spending a p2wkh output: the
// signature followed by the compressed public key.
func writePKHWitness(sig []byte, pub []byte) ([]byte, error) {
	return serializeWitness(wire.TxWitness{sig, pub})
}
