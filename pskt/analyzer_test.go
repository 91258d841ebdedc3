// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestRoleOrdering asserts the total ordering of the pipeline stages, which
// the whole-packet verdict relies on.
func TestRoleOrdering(t *testing.T) {
	t.Parallel()

	require.True(t, RoleCreator < RoleUpdater)
	require.True(t, RoleUpdater < RoleSigner)
	require.True(t, RoleSigner < RoleCombiner)
	require.True(t, RoleCombiner < RoleFinalizer)
	require.True(t, RoleFinalizer < RoleExtractor)

	require.Equal(t, "creator", RoleCreator.String())
	require.Equal(t, "extractor", RoleExtractor.String())
}

// TestAnalyzeFreshPacket asserts that a freshly created 1-in/1-out packet
// with no UTXO data needs an updater, per input and as a whole.
func TestAnalyzeFreshPacket(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	analysis := Analyze(packet)
	require.Empty(t, analysis.Error)
	require.Equal(t, RoleUpdater, analysis.Next)

	require.Len(t, analysis.Inputs, 1)
	require.False(t, analysis.Inputs[0].HasUtxo)
	require.False(t, analysis.Inputs[0].IsFinal)
	require.Equal(t, RoleUpdater, analysis.Inputs[0].Next)

	// Without full UTXO knowledge no fee can be computed.
	require.True(t, analysis.Fee.IsNone())
	require.True(t, analysis.EstimatedVSize.IsNone())
}

// TestAnalyzeProgression walks one packet through the pipeline and asserts
// the verdict at every stage.
func TestAnalyzeProgression(t *testing.T) {
	t.Parallel()

	privKey, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	updater, err := NewUpdater(packet)
	require.NoError(t, err)

	// With the UTXO known but the pubkey behind the hash not yet
	// revealed, the updater still has work to do.
	require.NoError(t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0))
	analysis := Analyze(packet)
	require.Equal(t, RoleUpdater, analysis.Next)
	require.True(t, analysis.Inputs[0].HasUtxo)
	require.NotEmpty(t, analysis.Inputs[0].MissingPubkeys)

	// A derivation entry reveals the pubkey; only the signature is
	// outstanding now.
	require.NoError(t, updater.AddInBip32Derivation(
		0x01020304, []uint32{2147483648, 0, 5}, pubKey, 0,
	))
	analysis = Analyze(packet)
	require.Equal(t, RoleSigner, analysis.Next)
	require.Equal(
		t, [][]byte{btcutil.Hash160(pubKey)},
		analysis.Inputs[0].MissingSigs,
	)

	// The fee is already known at this point: 100k in, 90k out.
	require.Equal(
		t, btcutil.Amount(10_000),
		analysis.Fee.UnwrapOr(0),
	)

	// With the signature attached the input awaits finalization, and
	// the satisfaction size is now estimable.
	_, err = updater.Sign(0, testSig(t, privKey), pubKey, nil, nil)
	require.NoError(t, err)
	analysis = Analyze(packet)
	require.Equal(t, RoleFinalizer, analysis.Next)
	require.True(t, analysis.EstimatedVSize.IsSome())
	require.True(t, analysis.EstimatedFeeRate.IsSome())

	// After finalization the packet is ready for extraction.
	require.NoError(t, MaybeFinalizeAll(packet))
	analysis = Analyze(packet)
	require.Equal(t, RoleExtractor, analysis.Next)
	require.True(t, analysis.Inputs[0].IsFinal)
}

// TestAnalyzeEarliestRoleWins asserts that the whole-packet verdict is the
// earliest outstanding per-input role when inputs sit at different stages.
func TestAnalyzeEarliestRoleWins(t *testing.T) {
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

	// Input 0 is fully signed, input 1 has nothing.
	updater, err := NewUpdater(packet)
	require.NoError(t, err)
	require.NoError(t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0))
	_, err = updater.Sign(0, testSig(t, privKey), pubKey, nil, nil)
	require.NoError(t, err)

	analysis := Analyze(packet)
	require.Equal(t, RoleFinalizer, analysis.Inputs[0].Next)
	require.Equal(t, RoleUpdater, analysis.Inputs[1].Next)
	require.Equal(t, RoleUpdater, analysis.Next)
}

// TestAnalyzeInvalid covers the three validity failures that send a packet
// back to its creator, asserting both the verdict and the reported reason.
func TestAnalyzeInvalid(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)

	testCases := []struct {
		name   string
		mutate func(t *testing.T, p *Packet, prevTx *wire.MsgTx)
		reason string
	}{{
		name: "invalid prevout",
		mutate: func(t *testing.T, p *Packet, prevTx *wire.MsgTx) {
			p.UnsignedTx.TxIn[0].PreviousOutPoint.Index = 12
			p.Inputs[0].NonWitnessUtxo = prevTx
		},
		reason: "PSKT is not valid. Input 0 specifies invalid prevout",
	}, {
		name: "invalid value",
		mutate: func(t *testing.T, p *Packet, prevTx *wire.MsgTx) {
			p.Inputs[0].WitnessUtxo = wire.NewTxOut(
				-1, prevTx.TxOut[0].PkScript,
			)
		},
		reason: "PSKT is not valid. Input 0 has invalid value",
	}, {
		name: "unspendable output",
		mutate: func(t *testing.T, p *Packet, prevTx *wire.MsgTx) {
			p.Inputs[0].WitnessUtxo = wire.NewTxOut(
				100_000,
				[]byte{txscript.OP_RETURN},
			)
		},
		reason: "PSKT is not valid. Input 0 spends unspendable output",
	}, {
		name: "output amount invalid",
		mutate: func(t *testing.T, p *Packet, prevTx *wire.MsgTx) {
			p.Inputs[0].WitnessUtxo = prevTx.TxOut[0]
			p.UnsignedTx.TxOut[0].Value = btcutil.MaxSatoshi + 1
		},
		reason: "PSKT is not valid. Output amount invalid",
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			prevTx := testPrevTx(
				t, p2wkhScript(t, pubKey), 100_000,
			)
			packet := testPacket(t, prevTx)
			tc.mutate(t, packet, prevTx)

			analysis := Analyze(packet)
			require.Equal(t, tc.reason, analysis.Error)
			require.Equal(t, RoleCreator, analysis.Next)
			require.Nil(t, analysis.Inputs)
			require.True(t, analysis.Fee.IsNone())
		})
	}
}

// TestAnalyzeMissingScripts asserts that script hash inputs lacking their
// inner scripts report precisely which script commitment is missing.
func TestAnalyzeMissingScripts(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)

	// Build a P2WSH locking script over an arbitrary witness script.
	witnessScript := p2pkhScript(t, pubKey)
	scriptHash := sha256h(witnessScript)
	pkScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(scriptHash).
		Script()
	require.NoError(t, err)

	prevTx := testPrevTx(t, pkScript, 100_000)
	packet := testPacket(t, prevTx)

	updater, err := NewUpdater(packet)
	require.NoError(t, err)
	require.NoError(t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0))

	analysis := Analyze(packet)
	require.Equal(t, RoleUpdater, analysis.Next)
	require.Equal(
		t, scriptHash, analysis.Inputs[0].MissingWitnessScript,
	)
}

// TestAnalyzeNoEstimateForScriptSpends asserts that no size estimate is
// produced when an input's satisfaction size has no fixed form.
func TestAnalyzeNoEstimateForScriptSpends(t *testing.T) {
	t.Parallel()

	key1, pubKey1 := testKey(t)
	_, pubKey2 := testKey(t)

	// 1-of-2 multisig wrapped in P2WSH: signable with one signature, but
	// not a fixed-size single key spend.
	witnessScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_1).
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
	_, err = updater.Sign(
		0, testSig(t, key1), pubKey1, nil, witnessScript,
	)
	require.NoError(t, err)

	analysis := Analyze(packet)
	require.Equal(t, RoleFinalizer, analysis.Next)
	require.True(t, analysis.Fee.IsSome())
	require.True(t, analysis.EstimatedVSize.IsNone())
	require.True(t, analysis.EstimatedFeeRate.IsNone())
}
