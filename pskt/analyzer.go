// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/koyotecoin/koyotecoin/pkg/txunit"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Role is a stage of the collaborative signing pipeline. Roles carry a total
// ordering: a packet whose inputs sit at different stages is, as a whole, at
// the earliest of them.
type Role uint8

const (
	// RoleCreator builds the initial packet around an unsigned
	// transaction.
	RoleCreator Role = iota

	// RoleUpdater attaches UTXO records, scripts and derivation data.
	RoleUpdater

	// RoleSigner attaches partial signatures.
	RoleSigner

	// RoleCombiner merges independently updated or signed copies.
	RoleCombiner

	// RoleFinalizer converts signature material into final satisfaction
	// data.
	RoleFinalizer

	// RoleExtractor produces the network serializable transaction.
	RoleExtractor
)

// String returns the lowercase name of the role.
func (r Role) String() string {
	switch r {
	case RoleCreator:
		return "creator"
	case RoleUpdater:
		return "updater"
	case RoleSigner:
		return "signer"
	case RoleCombiner:
		return "combiner"
	case RoleFinalizer:
		return "finalizer"
	case RoleExtractor:
		return "extractor"
	default:
		return fmt.Sprintf("unknown<%d>", uint8(r))
	}
}

// InputAnalysis is the per-input result of analyzing a packet: whether the
// input carries the UTXO data needed to verify signatures against, whether
// it is already final, which role needs to act on it next, and what exactly
// is missing when it isn't signable yet.
type InputAnalysis struct {
	// HasUtxo is true if the input carries a consistent witness or
	// non-witness UTXO record.
	HasUtxo bool

	// IsFinal is true if final satisfaction data is present.
	IsFinal bool

	// Next is the role that needs to act on this input next.
	Next Role

	// MissingPubkeys lists the pubkey hashes for which neither a partial
	// signature nor derivation info reveals the pubkey itself.
	MissingPubkeys [][]byte

	// MissingSigs lists the pubkey hashes of keys whose signatures are
	// still outstanding.
	MissingSigs [][]byte

	// MissingRedeemScript is the script hash of a redeem script the
	// input needs but does not carry.
	MissingRedeemScript []byte

	// MissingWitnessScript is the script hash of a witness script the
	// input needs but does not carry.
	MissingWitnessScript []byte
}

// PacketAnalysis is the whole-packet analysis result.
type PacketAnalysis struct {
	// Inputs holds the per-input results, position aligned with the
	// packet's inputs. It is nil if the packet was found invalid.
	Inputs []InputAnalysis

	// Next is the earliest role that still needs to act on the packet.
	Next Role

	// Error is a human readable reason when the packet is invalid, in
	// which case Next is RoleCreator.
	Error string

	// Fee is the absolute fee, present when every input carries a UTXO
	// record.
	Fee fn.Option[btcutil.Amount]

	// EstimatedVSize is the virtual size of the satisfied transaction,
	// present when every input could be sized.
	EstimatedVSize fn.Option[txunit.VByte]

	// EstimatedFeeRate is the fee divided by the estimated virtual size.
	EstimatedFeeRate fn.Option[txunit.SatPerKVByte]
}

// setInvalid marks the analysis as terminally invalid: the packet has to go
// back to its creator.
func (a *PacketAnalysis) setInvalid(reason string) {
	a.Error = reason
	a.Next = RoleCreator
	a.Inputs = nil
	a.Fee = fn.None[btcutil.Amount]()
	a.EstimatedVSize = fn.None[txunit.VByte]()
	a.EstimatedFeeRate = fn.None[txunit.SatPerKVByte]()
}

// moneyRange returns whether the passed amount is non-negative and within
// the total supply bound.
func moneyRange(v int64) bool {
	return v >= 0 && v <= btcutil.MaxSatoshi
}

// Analyze inspects the passed packet and reports, per input, its readiness
// state and the role that needs to act on it next, along with a whole-packet
// verdict. Structural validity problems (an input referencing a prevout its
// own previous transaction record does not have, out of range amounts,
// provably unspendable outputs) are reported as data on the result rather
// than errors: the verdict is RoleCreator with a reason naming the offending
// input.
//
// When every input carries a UTXO record the absolute fee is computed, and
// when additionally every input is signable or final the virtual size and
// fee rate are estimated.
func Analyze(p *Packet) *PacketAnalysis {
	result := &PacketAnalysis{
		Inputs:           make([]InputAnalysis, len(p.Inputs)),
		Fee:              fn.None[btcutil.Amount](),
		EstimatedVSize:   fn.None[txunit.VByte](),
		EstimatedFeeRate: fn.None[txunit.SatPerKVByte](),
	}

	calcFee := true
	var inAmt int64

	for i := range p.Inputs {
		pInput := &p.Inputs[i]
		inputAnalysis := &result.Inputs[i]

		// We set the next role here and ratchet backwards as
		// required.
		inputAnalysis.Next = RoleExtractor

		utxo, err := p.InputUTXO(i)
		if err != nil {
			result.setInvalid(fmt.Sprintf("PSKT is not valid. "+
				"Input %d specifies invalid prevout", i))
			return result
		}

		if utxo != nil {
			if !moneyRange(utxo.Value) ||
				!moneyRange(inAmt+utxo.Value) {

				result.setInvalid(fmt.Sprintf("PSKT is not "+
					"valid. Input %d has invalid value",
					i))
				return result
			}
			inAmt += utxo.Value
			inputAnalysis.HasUtxo = true
		} else {
			inputAnalysis.HasUtxo = false
			inputAnalysis.IsFinal = false
			inputAnalysis.Next = RoleUpdater
			calcFee = false
		}

		if utxo != nil && txscript.IsUnspendable(utxo.PkScript) {
			result.setInvalid(fmt.Sprintf("PSKT is not valid. "+
				"Input %d spends unspendable output", i))
			return result
		}

		// Check whether the input is final, and if not, what exactly
		// is standing between it and finalization.
		switch {
		case utxo != nil && !pInput.isFinal():
			inputAnalysis.IsFinal = false

			report := probeSignability(p, i, utxo)
			switch {
			case report.complete:
				inputAnalysis.Next = RoleFinalizer

			// If we are only missing signatures and nothing
			// else, then the next role is the signer.
			case len(report.missingPubkeys) == 0 &&
				report.missingRedeemScript == nil &&
				report.missingWitnessScript == nil &&
				len(report.missingSigs) > 0:

				inputAnalysis.MissingSigs = report.missingSigs
				inputAnalysis.Next = RoleSigner

			default:
				inputAnalysis.MissingPubkeys =
					report.missingPubkeys
				inputAnalysis.MissingSigs = report.missingSigs
				inputAnalysis.MissingRedeemScript =
					report.missingRedeemScript
				inputAnalysis.MissingWitnessScript =
					report.missingWitnessScript
				inputAnalysis.Next = RoleUpdater
			}

		case utxo != nil:
			inputAnalysis.IsFinal = true
		}
	}

	// The whole-packet verdict is the earliest per-input role still
	// outstanding.
	result.Next = RoleExtractor
	for i := range result.Inputs {
		if result.Inputs[i].Next < result.Next {
			result.Next = result.Inputs[i].Next
		}
	}

	if calcFee {
		var outAmt int64
		for _, txOut := range p.UnsignedTx.TxOut {
			if !moneyRange(outAmt) || !moneyRange(txOut.Value) ||
				!moneyRange(outAmt+txOut.Value) {

				result.setInvalid("PSKT is not valid. " +
					"Output amount invalid")
				return result
			}
			outAmt += txOut.Value
		}

		fee := btcutil.Amount(inAmt - outAmt)
		result.Fee = fn.Some(fee)

		if vsize, ok := estimateVSize(p); ok {
			result.EstimatedVSize = fn.Some(vsize)
			result.EstimatedFeeRate = fn.Some(
				txunit.CalcSatPerVByte(
					fee, vsize,
				).ToSatPerKVByte(),
			)
		}
	}

	return result
}

// signReport captures what a dry-run signing attempt against an input found
// missing, if anything.
type signReport struct {
	complete             bool
	missingPubkeys       [][]byte
	missingSigs          [][]byte
	missingRedeemScript  []byte
	missingWitnessScript []byte
}

// probeSignability runs a dry signing attempt against the input at inIndex:
// it classifies the locking script of the UTXO being spent and checks
// whether the signature and script material already attached to the input is
// sufficient to finalize it. No keys are involved; signatures can only come
// from the partial signature entries already present.
func probeSignability(p *Packet, inIndex int, utxo *wire.TxOut) signReport {
	return probeScript(&p.Inputs[inIndex], utxo.PkScript, false)
}

// probeScript checks the satisfaction of a single locking script against the
// material attached to the input, recursing through script hash
// indirections. nested is true once we've descended through at least one
// script hash, at which point further script hash wrapping is not allowed.
func probeScript(pInput *PInput, pkScript []byte, nested bool) signReport {
	class, addrs, reqSigs, err := txscript.ExtractPkScriptAddrs(
		pkScript, &chaincfg.MainNetParams,
	)
	if err != nil {
		return signReport{}
	}

	switch class {
	case txscript.PubKeyTy:
		// The pubkey is in the script itself, so only the signature
		// can be missing.
		pubKey := addrs[0].ScriptAddress()
		if hasPartialSigFor(pInput, pubKey) {
			return signReport{complete: true}
		}

		return signReport{
			missingSigs: [][]byte{btcutil.Hash160(pubKey)},
		}

	case txscript.PubKeyHashTy, txscript.WitnessV0PubKeyHashTy:
		pubKeyHash := addrs[0].ScriptAddress()

		// A partial signature reveals both the pubkey and its
		// signature at once.
		for _, ps := range pInput.PartialSigs {
			if bytes.Equal(
				btcutil.Hash160(ps.PubKey), pubKeyHash,
			) {

				return signReport{complete: true}
			}
		}

		// A derivation entry reveals the pubkey; the signature is
		// then the only missing piece.
		for _, derivation := range pInput.Bip32Derivation {
			if bytes.Equal(
				btcutil.Hash160(derivation.PubKey),
				pubKeyHash,
			) {

				return signReport{
					missingSigs: [][]byte{pubKeyHash},
				}
			}
		}

		// Nothing reveals the pubkey behind the hash, so an updater
		// has to supply it first.
		return signReport{missingPubkeys: [][]byte{pubKeyHash}}

	case txscript.MultiSigTy:
		// The pubkeys are in the script; count how many of them
		// already carry signatures.
		var (
			have    int
			missing [][]byte
		)
		for _, addr := range addrs {
			pubKey := addr.ScriptAddress()
			if hasPartialSigFor(pInput, pubKey) {
				have++
			} else {
				missing = append(
					missing, btcutil.Hash160(pubKey),
				)
			}
		}
		if have >= reqSigs {
			return signReport{complete: true}
		}

		return signReport{missingSigs: missing}

	case txscript.ScriptHashTy:
		if nested {
			return signReport{}
		}
		scriptHash := addrs[0].ScriptAddress()
		if pInput.RedeemScript == nil {
			return signReport{missingRedeemScript: scriptHash}
		}
		if !bytes.Equal(
			btcutil.Hash160(pInput.RedeemScript), scriptHash,
		) {

			return signReport{missingRedeemScript: scriptHash}
		}

		return probeScript(pInput, pInput.RedeemScript, true)

	case txscript.WitnessV0ScriptHashTy:
		scriptHash := addrs[0].ScriptAddress()
		if pInput.WitnessScript == nil {
			return signReport{missingWitnessScript: scriptHash}
		}
		if !bytes.Equal(
			sha256h(pInput.WitnessScript), scriptHash,
		) {

			return signReport{missingWitnessScript: scriptHash}
		}

		return probeScript(pInput, pInput.WitnessScript, true)

	case txscript.WitnessV1TaprootTy:
		// Either spending path being signed makes the input
		// finalizable.
		if len(pInput.TaprootKeySpendSig) > 0 ||
			len(pInput.TaprootScriptSpendSig) > 0 {

			return signReport{complete: true}
		}

		return signReport{
			missingSigs: [][]byte{addrs[0].ScriptAddress()},
		}

	default:
		return signReport{}
	}
}

// hasPartialSigFor returns whether the input carries a partial signature
// made with the passed serialized pubkey.
func hasPartialSigFor(pInput *PInput, pubKey []byte) bool {
	for _, ps := range pInput.PartialSigs {
		if bytes.Equal(ps.PubKey, pubKey) {
			return true
		}
	}

	return false
}

// estimateVSize estimates the virtual size of the transaction with every
// input satisfied. Inputs are sized by the class of the output they spend;
// the estimate is only produced when every input spends one of the
// estimable single key classes and is either final or fully signable.
func estimateVSize(p *Packet) (txunit.VByte, bool) {
	var numP2PKH, numP2TR, numP2WPKH, numNested int

	for i := range p.Inputs {
		pInput := &p.Inputs[i]

		utxo, err := p.InputUTXO(i)
		if err != nil || utxo == nil {
			return txunit.VByte{}, false
		}

		// Every input must already be satisfiable for the size of
		// its satisfaction to be known.
		if !pInput.isFinal() &&
			!probeSignability(p, i, utxo).complete {

			return txunit.VByte{}, false
		}

		switch {
		case txscript.IsPayToPubKeyHash(utxo.PkScript):
			numP2PKH++

		case txscript.IsPayToWitnessPubKeyHash(utxo.PkScript):
			numP2WPKH++

		case txscript.IsPayToTaproot(utxo.PkScript):
			numP2TR++

		case txscript.IsPayToScriptHash(utxo.PkScript) &&
			pInput.RedeemScript != nil &&
			txscript.IsPayToWitnessPubKeyHash(
				pInput.RedeemScript,
			):

			numNested++

		default:
			// Script path spends have no fixed satisfaction
			// size, so no estimate is produced for them.
			return txunit.VByte{}, false
		}
	}

	vsize := txsizes.EstimateVirtualSize(
		numP2PKH, numP2TR, numP2WPKH, numNested,
		p.UnsignedTx.TxOut, 0,
	)

	return txunit.NewVByte(uint64(vsize)), true
}
