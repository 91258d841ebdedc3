// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

// signer encapsulates the role 'Signer' as specified in the PSKT workflow;
// here signing is delegated to the Updater, which attaches externally
// produced signatures to the packet along with whatever script material the
// verification of those signatures requires.

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
)

// SignOutcome is a type returned from Sign methods indicating the outcome of
// the attempt to attach a signature to an input.
type SignOutcome int

const (
	// SignSuccessful indicates that the partial signature was
	// successfully attached.
	SignSuccessful SignOutcome = 0

	// SignFinalized indicates that this input is already finalized, so
	// the provided signature was *not* attached.
	SignFinalized SignOutcome = 1

	// SignInvalid indicates that the provided signature data was not
	// valid. In this case an error will also be returned.
	SignInvalid SignOutcome = -1
)

// Sign allows the caller to sign a PSKT. The signature and the public key it
// was produced with are attached to the input at inIndex. Sign also takes
// the redeem and witness scripts needed to spend the input's previous
// output, where applicable; callers pass nil for script kinds the input does
// not use. The sighash flag appended to the signature must agree with any
// sighash type already recorded against the input.
//
// An error is returned if the signature or public key are malformed, if the
// key already carries a signature, or if the input lacks the UTXO
// information signatures are checked against.
func (u *Updater) Sign(inIndex int, sig []byte, pubKey []byte,
	redeemScript []byte, witnessScript []byte) (SignOutcome, error) {

	if inIndex > len(u.Upskt.Inputs)-1 {
		return SignInvalid, ErrInvalidIndex
	}

	if isFinalized(u.Upskt, inIndex) {
		return SignFinalized, nil
	}

	if err := u.addPartialSignature(inIndex, sig, pubKey); err != nil {
		return SignInvalid, err
	}

	pInput := &u.Upskt.Inputs[inIndex]

	switch {
	// The input spends a script hash output whose inner script is itself
	// a witness program, so both scripts must be recorded.
	case witnessScript != nil && redeemScript != nil:
		// The redeem script of a nested witness script spend is the
		// version zero witness program committing to the witness
		// script.
		if len(redeemScript) != 34 ||
			!bytes.Equal(
				sha256h(witnessScript), redeemScript[2:],
			) {

			return SignInvalid, ErrInvalidSignatureForInput
		}

		err := u.AddInRedeemScript(redeemScript, inIndex)
		if err != nil {
			return SignInvalid, err
		}
		err = u.AddInWitnessScript(witnessScript, inIndex)
		if err != nil {
			return SignInvalid, err
		}

		// A nested witness spend still needs the witness UTXO record.
		if pInput.WitnessUtxo == nil {
			if err := nonWitnessToWitness(
				u.Upskt, inIndex,
			); err != nil {

				return SignInvalid, err
			}
		}

	// Native witness script spend.
	case witnessScript != nil:
		err := u.AddInWitnessScript(witnessScript, inIndex)
		if err != nil {
			return SignInvalid, err
		}

		if pInput.WitnessUtxo == nil {
			if err := nonWitnessToWitness(
				u.Upskt, inIndex,
			); err != nil {

				return SignInvalid, err
			}
		}

	// Script hash spend; this covers both legacy pay-to-script-hash and
	// a nested pay-to-witness-key-hash, distinguished by the shape of
	// the redeem script.
	case redeemScript != nil:
		err := u.AddInRedeemScript(redeemScript, inIndex)
		if err != nil {
			return SignInvalid, err
		}

		if txscript.IsWitnessProgram(redeemScript) &&
			pInput.WitnessUtxo == nil {

			if err := nonWitnessToWitness(
				u.Upskt, inIndex,
			); err != nil {

				return SignInvalid, err
			}
		}

	// No scripts provided: the input spends either a key hash or a
	// witness key hash output directly.
	default:
		if pInput.WitnessUtxo == nil && pInput.NonWitnessUtxo != nil {
			outIndex := u.Upskt.UnsignedTx.TxIn[inIndex].
				PreviousOutPoint.Index
			prevOuts := pInput.NonWitnessUtxo.TxOut
			if int(outIndex) >= len(prevOuts) {
				return SignInvalid,
					ErrInvalidPrevOutNonWitnessTransaction
			}

			if txscript.IsWitnessProgram(
				prevOuts[outIndex].PkScript,
			) {

				if err := nonWitnessToWitness(
					u.Upskt, inIndex,
				); err != nil {

					return SignInvalid, err
				}
			}
		}
	}

	return SignSuccessful, nil
}

// addPartialSignature validates the signature and public key, confirms that
// the input carries the UTXO data needed to later verify it, and attaches
// the pair to the input at inIndex.
func (u *Updater) addPartialSignature(inIndex int, sig []byte,
	pubKey []byte) error {

	partialSig := PartialSig{
		PubKey:    pubKey,
		Signature: sig,
	}

	// First validate the passed (sig, pub).
	if !partialSig.checkValid() {
		return ErrInvalidSignatureForInput
	}

	pInput := &u.Upskt.Inputs[inIndex]

	// First check; don't allow dupes.
	for _, x := range pInput.PartialSigs {
		if bytes.Equal(x.PubKey, partialSig.PubKey) {
			return ErrDuplicateKey
		}
	}

	// Attaching signature without utxo field is not allowed.
	if pInput.WitnessUtxo == nil && pInput.NonWitnessUtxo == nil {
		return ErrInvalidPsktFormat
	}

	// If a sighash type was already committed to the input, the flag
	// byte on this signature must match it.
	if pInput.SighashType != 0 {
		sigHashType := txscript.SigHashType(sig[len(sig)-1])
		if sigHashType != pInput.SighashType {
			return ErrInvalidSigHashFlags
		}
	}

	pInput.PartialSigs = append(pInput.PartialSigs, &partialSig)

	if err := u.Upskt.SanityCheck(); err != nil {
		return err
	}

	return nil
}

// nonWitnessToWitness extracts the TxOut from the existing NonWitnessUtxo
// field in the given PSKT input and converts it into a WitnessUtxo field, so
// that witness signing can proceed. The (redundant) full transaction record
// is dropped in the process.
func nonWitnessToWitness(p *Packet, inIndex int) error {
	outPoint := p.UnsignedTx.TxIn[inIndex].PreviousOutPoint
	nonWitnessUtxo := p.Inputs[inIndex].NonWitnessUtxo
	if nonWitnessUtxo == nil {
		return ErrInvalidPsktFormat
	}
	if int(outPoint.Index) >= len(nonWitnessUtxo.TxOut) {
		return ErrInvalidPrevOutNonWitnessTransaction
	}
	txout := nonWitnessUtxo.TxOut[outPoint.Index]

	// Remove the non-witness first, else sanity check will not pass.
	p.Inputs[inIndex].NonWitnessUtxo = nil

	u, err := NewUpdater(p)
	if err != nil {
		return err
	}

	return u.AddInWitnessUtxo(txout, inIndex)
}
