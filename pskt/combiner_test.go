// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

// TestCombineRequiresPackets asserts that combining an empty set is a
// parameter error.
func TestCombineRequiresPackets(t *testing.T) {
	t.Parallel()

	_, err := Combine()
	require.ErrorIs(t, err, ErrNoPackets)
}

// TestCombineRejectsDifferentTransactions asserts that packets which do not
// embed the same unsigned transaction can never be combined, even when they
// spend the same previous output.
func TestCombineRejectsDifferentTransactions(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)

	a := testPacket(t, prevTx)
	b := testPacket(t, prevTx)

	// The two packets pay different destinations, so their transactions
	// differ while their inputs are identical.
	_, err := Combine(a, b)
	require.ErrorIs(t, err, ErrIncompatiblePskts)
}

// TestCombineSelfIsIdentity asserts that combining a packet with itself, any
// number of times, reproduces its serialization byte for byte.
func TestCombineSelfIsIdentity(t *testing.T) {
	t.Parallel()

	privKey, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	updater, err := NewUpdater(packet)
	require.NoError(t, err)
	require.NoError(t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0))
	_, err = updater.Sign(0, testSig(t, privKey), pubKey, nil, nil)
	require.NoError(t, err)

	reference := serializePacket(t, packet)

	combined, err := Combine(packet, packet, packet)
	require.NoError(t, err)
	require.Equal(t, reference, serializePacket(t, combined))
}

// TestCombineWithBlank asserts the idempotence property: combining a packet
// with its own blanked copy reproduces the original.
func TestCombineWithBlank(t *testing.T) {
	t.Parallel()

	privKey, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	updater, err := NewUpdater(packet)
	require.NoError(t, err)
	require.NoError(t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0))
	require.NoError(t, updater.AddInSighashType(txscript.SigHashAll, 0))
	_, err = updater.Sign(0, testSig(t, privKey), pubKey, nil, nil)
	require.NoError(t, err)

	reference := serializePacket(t, packet)

	blank, err := packet.Copy()
	require.NoError(t, err)
	blank.MakeBlank()

	combined, err := Combine(packet, blank)
	require.NoError(t, err)
	require.Equal(t, reference, serializePacket(t, combined))
}

// TestCombineUnionsSignatures asserts that independently signed copies merge
// into one packet carrying both signatures, and that the merge result does
// not depend on the argument order.
func TestCombineUnionsSignatures(t *testing.T) {
	t.Parallel()

	key1, pubKey1 := testKey(t)
	key2, pubKey2 := testKey(t)

	// The specific locking script does not matter for the merge; both
	// signers work on copies of the same packet.
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey1), 100_000)
	base := testPacket(t, prevTx)

	updater, err := NewUpdater(base)
	require.NoError(t, err)
	require.NoError(t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0))

	copyA, err := base.Copy()
	require.NoError(t, err)
	uA, err := NewUpdater(copyA)
	require.NoError(t, err)
	_, err = uA.Sign(0, testSig(t, key1), pubKey1, nil, nil)
	require.NoError(t, err)

	copyB, err := base.Copy()
	require.NoError(t, err)
	uB, err := NewUpdater(copyB)
	require.NoError(t, err)
	_, err = uB.Sign(0, testSig(t, key2), pubKey2, nil, nil)
	require.NoError(t, err)

	combinedAB, err := Combine(copyA, copyB)
	require.NoError(t, err)
	require.Len(t, combinedAB.Inputs[0].PartialSigs, 2)

	combinedBA, err := Combine(copyB, copyA)
	require.NoError(t, err)

	// Serialization sorts keyed collections, so the merge order must not
	// show through.
	require.Equal(
		t, serializePacket(t, combinedAB),
		serializePacket(t, combinedBA),
	)

	// The arguments themselves stay untouched.
	require.Len(t, copyA.Inputs[0].PartialSigs, 1)
	require.Len(t, copyB.Inputs[0].PartialSigs, 1)
}

// TestCombineFirstSourceWins asserts the precedence rule for conflicting
// single-valued fields: the first packet to carry the field keeps its value.
func TestCombineFirstSourceWins(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	base := testPacket(t, prevTx)

	copyA, err := base.Copy()
	require.NoError(t, err)
	copyA.Inputs[0].RedeemScript = []byte{0x51}

	copyB, err := base.Copy()
	require.NoError(t, err)
	copyB.Inputs[0].RedeemScript = []byte{0x52}

	combined, err := Combine(copyA, copyB)
	require.NoError(t, err)
	require.Equal(t, []byte{0x51}, combined.Inputs[0].RedeemScript)
}

// TestCombineScriptSpendSigOrder asserts that script path spend signatures
// sharing an x-only pubkey but committing to different leaves are both kept
// and serialize in the same order regardless of the order the sources were
// combined in.
func TestCombineScriptSpendSigOrder(t *testing.T) {
	t.Parallel()

	privKey, xOnlyKey := testSchnorrKey(t)
	_, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	base := testPacket(t, prevTx)

	sig := testSchnorrSig(t, privKey)
	leafSig := func(leafByte byte) *TaprootScriptSpendSig {
		return &TaprootScriptSpendSig{
			XOnlyPubKey: xOnlyKey,
			LeafHash:    bytes.Repeat([]byte{leafByte}, 32),
			Signature:   sig,
			SigHash:     txscript.SigHashDefault,
		}
	}

	copyA, err := base.Copy()
	require.NoError(t, err)
	copyA.Inputs[0].TaprootScriptSpendSig = []*TaprootScriptSpendSig{
		leafSig(0xbb),
	}

	copyB, err := base.Copy()
	require.NoError(t, err)
	copyB.Inputs[0].TaprootScriptSpendSig = []*TaprootScriptSpendSig{
		leafSig(0xaa),
	}

	combinedAB, err := Combine(copyA, copyB)
	require.NoError(t, err)
	combinedBA, err := Combine(copyB, copyA)
	require.NoError(t, err)

	// Both signatures survive under their distinct leaf hashes.
	require.Len(t, combinedAB.Inputs[0].TaprootScriptSpendSig, 2)

	// Serialization sorts by pubkey then leaf hash, so the combine order
	// must not be observable in the bytes.
	require.Equal(
		t, serializePacket(t, combinedAB),
		serializePacket(t, combinedBA),
	)

	decoded, err := NewFromRawBytes(
		bytes.NewReader(serializePacket(t, combinedAB)), false,
	)
	require.NoError(t, err)

	sigs := decoded.Inputs[0].TaprootScriptSpendSig
	require.Len(t, sigs, 2)
	require.Equal(t, leafSig(0xaa).LeafHash, sigs[0].LeafHash)
	require.Equal(t, leafSig(0xbb).LeafHash, sigs[1].LeafHash)
}
