// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestFinalizeP2WKH asserts the full finalize path for a native witness key
// hash spend: the witness stack, the destructive clearing of the working
// fields and the stability of repeated finalization.
func TestFinalizeP2WKH(t *testing.T) {
	t.Parallel()

	privKey, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	updater, err := NewUpdater(packet)
	require.NoError(t, err)
	require.NoError(t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0))
	require.NoError(t, updater.AddInBip32Derivation(
		0x01020304, []uint32{2147483648, 0, 5}, pubKey, 0,
	))

	sig := testSig(t, privKey)
	outcome, err := updater.Sign(0, sig, pubKey, nil, nil)
	require.NoError(t, err)
	require.Equal(t, SignSuccessful, outcome)

	finalized, err := MaybeFinalize(packet, 0)
	require.NoError(t, err)
	require.True(t, finalized)
	require.True(t, packet.IsComplete())

	// Only the UTXO record and the final witness survive finalization.
	pInput := &packet.Inputs[0]
	require.Equal(t, prevTx.TxOut[0], pInput.WitnessUtxo)
	require.Nil(t, pInput.PartialSigs)
	require.Nil(t, pInput.Bip32Derivation)
	require.Nil(t, pInput.FinalScriptSig)

	witness, err := deserializeWitness(pInput.FinalScriptWitness)
	require.NoError(t, err)
	require.Len(t, witness, 2)
	require.Equal(t, sig, witness[0])
	require.Equal(t, pubKey, witness[1])

	// Finalizing again is a no-op reporting success.
	reference := serializePacket(t, packet)
	finalized, err = MaybeFinalize(packet, 0)
	require.NoError(t, err)
	require.True(t, finalized)
	require.Equal(t, reference, serializePacket(t, packet))

	// Signing a finalized input is refused without error.
	outcome, err = updater.Sign(0, sig, pubKey, nil, nil)
	require.NoError(t, err)
	require.Equal(t, SignFinalized, outcome)
}

// TestFinalizeP2PKH asserts the legacy finalize path: the signature script
// carries the signature and pubkey pushes and no witness is produced.
func TestFinalizeP2PKH(t *testing.T) {
	t.Parallel()

	privKey, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2pkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	updater, err := NewUpdater(packet)
	require.NoError(t, err)
	require.NoError(t, updater.AddInNonWitnessUtxo(prevTx, 0))

	sig := testSig(t, privKey)
	_, err = updater.Sign(0, sig, pubKey, nil, nil)
	require.NoError(t, err)

	finalized, err := MaybeFinalize(packet, 0)
	require.NoError(t, err)
	require.True(t, finalized)

	pInput := &packet.Inputs[0]
	require.Equal(t, prevTx, pInput.NonWitnessUtxo)
	require.Nil(t, pInput.PartialSigs)
	require.Nil(t, pInput.FinalScriptWitness)

	expectedSigScript, err := txscript.NewScriptBuilder().
		AddData(sig).
		AddData(pubKey).
		Script()
	require.NoError(t, err)
	require.Equal(t, expectedSigScript, pInput.FinalScriptSig)
}

// TestFinalizeP2WSHMultisig asserts that a 2-of-2 multisig witness script
// spend produces the null-prefixed witness stack with the signatures ordered
// the way the pubkeys appear in the script, regardless of signing order.
func TestFinalizeP2WSHMultisig(t *testing.T) {
	t.Parallel()

	privKey1, pubKey1 := testKey(t)
	privKey2, pubKey2 := testKey(t)

	witnessScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_2).
		AddData(pubKey1).
		AddData(pubKey2).
		AddOp(txscript.OP_2).
		AddOp(txscript.OP_CHECKMULTISIG).
		Script()
	require.NoError(t, err)

	pkScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(sha256h(witnessScript)).
		Script()
	require.NoError(t, err)

	prevTx := testPrevTx(t, pkScript, 100_000)
	packet := testPacket(t, prevTx)

	updater, err := NewUpdater(packet)
	require.NoError(t, err)
	require.NoError(t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0))

	// Sign with the second key first to exercise the reordering.
	sig1 := testSig(t, privKey1)
	sig2 := testSig(t, privKey2)
	_, err = updater.Sign(0, sig2, pubKey2, nil, witnessScript)
	require.NoError(t, err)
	_, err = updater.Sign(0, sig1, pubKey1, nil, witnessScript)
	require.NoError(t, err)

	finalized, err := MaybeFinalize(packet, 0)
	require.NoError(t, err)
	require.True(t, finalized)

	witness, err := deserializeWitness(
		packet.Inputs[0].FinalScriptWitness,
	)
	require.NoError(t, err)
	require.Len(t, witness, 4)
	require.Empty(t, witness[0])
	require.Equal(t, sig1, []byte(witness[1]))
	require.Equal(t, sig2, []byte(witness[2]))
	require.Equal(t, witnessScript, []byte(witness[3]))
}

// TestFinalizeNestedP2WKH asserts that a witness key hash spend nested in a
// script hash output produces both a final witness and the redeem script
// push in the signature script.
func TestFinalizeNestedP2WKH(t *testing.T) {
	t.Parallel()

	privKey, pubKey := testKey(t)
	redeemScript := p2wkhScript(t, pubKey)

	pkScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(redeemScript)).
		AddOp(txscript.OP_EQUAL).
		Script()
	require.NoError(t, err)

	prevTx := testPrevTx(t, pkScript, 100_000)
	packet := testPacket(t, prevTx)

	updater, err := NewUpdater(packet)
	require.NoError(t, err)
	require.NoError(t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0))

	sig := testSig(t, privKey)
	_, err = updater.Sign(0, sig, pubKey, redeemScript, nil)
	require.NoError(t, err)

	finalized, err := MaybeFinalize(packet, 0)
	require.NoError(t, err)
	require.True(t, finalized)

	pInput := &packet.Inputs[0]

	expectedSigScript, err := txscript.NewScriptBuilder().
		AddData(redeemScript).
		Script()
	require.NoError(t, err)
	require.Equal(t, expectedSigScript, pInput.FinalScriptSig)

	witness, err := deserializeWitness(pInput.FinalScriptWitness)
	require.NoError(t, err)
	require.Len(t, witness, 2)
	require.Equal(t, sig, []byte(witness[0]))
	require.Equal(t, pubKey, []byte(witness[1]))
}

// TestFinalizeMissingMaterial asserts that inputs lacking the material their
// output type requires are not finalizable.
func TestFinalizeMissingMaterial(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)

	testCases := []struct {
		name  string
		setup func(t *testing.T) *Packet
	}{{
		name: "no signatures",
		setup: func(t *testing.T) *Packet {
			prevTx := testPrevTx(
				t, p2wkhScript(t, pubKey), 100_000,
			)
			packet := testPacket(t, prevTx)

			updater, err := NewUpdater(packet)
			require.NoError(t, err)
			require.NoError(
				t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0),
			)

			return packet
		},
	}, {
		name: "no utxo record",
		setup: func(t *testing.T) *Packet {
			prevTx := testPrevTx(
				t, p2wkhScript(t, pubKey), 100_000,
			)

			return testPacket(t, prevTx)
		},
	}, {
		name: "witness script hash without witness script",
		setup: func(t *testing.T) *Packet {
			witnessScript := p2pkhScript(t, pubKey)
			pkScript, err := txscript.NewScriptBuilder().
				AddOp(txscript.OP_0).
				AddData(sha256h(witnessScript)).
				Script()
			require.NoError(t, err)

			prevTx := testPrevTx(t, pkScript, 100_000)
			packet := testPacket(t, prevTx)

			updater, err := NewUpdater(packet)
			require.NoError(t, err)
			require.NoError(
				t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0),
			)

			// Force a signature past the updater so the only
			// missing piece is the witness script.
			packet.Inputs[0].PartialSigs = []*PartialSig{{
				PubKey:    pubKey,
				Signature: bytes.Repeat([]byte{0x30}, 9),
			}}

			return packet
		},
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			packet := tc.setup(t)

			finalized, err := MaybeFinalize(packet, 0)
			require.ErrorIs(t, err, ErrNotFinalizable)
			require.False(t, finalized)
		})
	}
}

// TestFinalizeAll asserts the lenient whole-packet pass: per-input outcomes
// are reported and failures on one input don't stop the others.
func TestFinalizeAll(t *testing.T) {
	t.Parallel()

	privKey, pubKey := testKey(t)
	pkScript := p2wkhScript(t, pubKey)
	prevTx := testPrevTx(t, pkScript, 100_000)
	prevHash := prevTx.TxHash()

	_, destKey := testKey(t)
	packet, err := New(
		[]*wire.OutPoint{
			wire.NewOutPoint(&prevHash, 0),
			{Hash: prevHash, Index: 0},
		},
		[]*wire.TxOut{
			wire.NewTxOut(150_000, p2wkhScript(t, destKey)),
		},
		2, 0,
	)
	require.NoError(t, err)

	// Only input 0 gets its UTXO and signature.
	updater, err := NewUpdater(packet)
	require.NoError(t, err)
	require.NoError(t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0))
	_, err = updater.Sign(0, testSig(t, privKey), pubKey, nil, nil)
	require.NoError(t, err)

	results, complete := FinalizeAll(packet)
	require.Equal(t, []bool{true, false}, results)
	require.False(t, complete)
	require.False(t, packet.IsComplete())

	// MaybeFinalizeAll reports the same failure as an error.
	require.ErrorIs(t, MaybeFinalizeAll(packet), ErrNotFinalizable)

	// Completing the second input completes the packet.
	require.NoError(t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 1))
	_, err = updater.Sign(1, testSig(t, privKey), pubKey, nil, nil)
	require.NoError(t, err)

	results, complete = FinalizeAll(packet)
	require.Equal(t, []bool{true, true}, results)
	require.True(t, complete)
}

// TestExtract asserts that extraction produces a broadcastable transaction
// carrying the final satisfaction data, without mutating the packet, and
// refuses incomplete packets naming the pending inputs.
func TestExtract(t *testing.T) {
	t.Parallel()

	privKey, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	// Extraction before finalization must fail and name input 0.
	_, err := Extract(packet)
	require.ErrorIs(t, err, ErrIncompletePskt)
	require.Contains(t, err.Error(), "[0]")

	updater, err := NewUpdater(packet)
	require.NoError(t, err)
	require.NoError(t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0))
	sig := testSig(t, privKey)
	_, err = updater.Sign(0, sig, pubKey, nil, nil)
	require.NoError(t, err)
	require.NoError(t, MaybeFinalizeAll(packet))

	reference := serializePacket(t, packet)

	finalTx, err := Extract(packet)
	require.NoError(t, err)
	require.Equal(t, packet.UnsignedTx.TxHash(), finalTx.TxHash())
	require.Len(t, finalTx.TxIn, 1)
	require.Len(t, finalTx.TxIn[0].Witness, 2)
	require.Equal(t, sig, []byte(finalTx.TxIn[0].Witness[0]))
	require.Equal(t, pubKey, []byte(finalTx.TxIn[0].Witness[1]))
	require.Empty(t, finalTx.TxIn[0].SignatureScript)

	// The packet itself is left untouched by extraction.
	require.Equal(t, reference, serializePacket(t, packet))
}
