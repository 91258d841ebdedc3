// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// testKey returns a fresh key pair for building fixtures.
func testKey(t *testing.T) (*btcec.PrivateKey, []byte) {
	t.Helper()

	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return privKey, privKey.PubKey().SerializeCompressed()
}

// testSig produces a DER signature over an arbitrary digest with the sighash
// flag appended, the way partial signature entries carry them.
func testSig(t *testing.T, privKey *btcec.PrivateKey) []byte {
	t.Helper()

	digest := chainhash.HashB([]byte("test digest"))
	sig := ecdsa.Sign(privKey, digest)

	return append(sig.Serialize(), byte(txscript.SigHashAll))
}

// p2wkhScript returns the pay-to-witness-pubkey-hash script for the passed
// serialized pubkey.
func p2wkhScript(t *testing.T, pubKey []byte) []byte {
	t.Helper()

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pubKey)).
		Script()
	require.NoError(t, err)

	return script
}

// p2pkhScript returns the pay-to-pubkey-hash script for the passed
// serialized pubkey.
func p2pkhScript(t *testing.T, pubKey []byte) []byte {
	t.Helper()

	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(pubKey)).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)

	return script
}

// testPrevTx returns a previous transaction with a single output paying the
// given amount to the given script.
func testPrevTx(t *testing.T, pkScript []byte, amount int64) *wire.MsgTx {
	t.Helper()

	prevTx := wire.NewMsgTx(2)
	prevTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 7},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	prevTx.AddTxOut(wire.NewTxOut(amount, pkScript))

	return prevTx
}

// testPacket returns a fresh packet spending output 0 of the passed previous
// transaction into a single 90k sat P2WKH output.
func testPacket(t *testing.T, prevTx *wire.MsgTx) *Packet {
	t.Helper()

	prevHash := prevTx.TxHash()
	_, destKey := testKey(t)

	packet, err := New(
		[]*wire.OutPoint{wire.NewOutPoint(&prevHash, 0)},
		[]*wire.TxOut{
			wire.NewTxOut(90_000, p2wkhScript(t, destKey)),
		},
		2, 0,
	)
	require.NoError(t, err)

	return packet
}

// serializePacket is a test convenience wrapper around Packet.Serialize.
func serializePacket(t *testing.T, p *Packet) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, p.Serialize(&buf))

	return buf.Bytes()
}

// TestRoundTrip asserts the two round trip properties of the wire codec:
// decoding a serialization reproduces the packet field for field, and
// re-serializing a decoded packet reproduces the bytes exactly.
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	privKey, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	// Fill in a representative sample of fields across all three
	// scopes.
	updater, err := NewUpdater(packet)
	require.NoError(t, err)
	require.NoError(
		t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0),
	)
	require.NoError(t, updater.AddInSighashType(txscript.SigHashAll, 0))
	require.NoError(t, updater.AddInBip32Derivation(
		0x01020304, []uint32{2147483648, 0, 5}, pubKey, 0,
	))
	require.NoError(
		t, updater.AddInSha256Preimage([]byte("preimage"), 0),
	)
	require.NoError(t, updater.AddOutBip32Derivation(
		0x01020304, []uint32{2147483648, 1, 9}, pubKey, 0,
	))

	_, err = updater.Sign(0, testSig(t, privKey), pubKey, nil, nil)
	require.NoError(t, err)

	serialized := serializePacket(t, packet)

	decoded, err := NewFromRawBytes(bytes.NewReader(serialized), false)
	require.NoError(t, err)
	require.Equal(t, packet.UnsignedTx.TxHash(),
		decoded.UnsignedTx.TxHash())
	require.Equal(t, packet.Inputs, decoded.Inputs)
	require.Equal(t, packet.Outputs, decoded.Outputs)

	reserialized := serializePacket(t, decoded)
	require.Equal(t, serialized, reserialized)
}

// TestBase64RoundTrip asserts that the text transport form decodes back to
// the same packet.
func TestBase64RoundTrip(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	encoded, err := packet.B64Encode()
	require.NoError(t, err)

	decoded, err := NewFromBase64(encoded)
	require.NoError(t, err)
	require.Equal(
		t, serializePacket(t, packet), serializePacket(t, decoded),
	)
}

// TestDecodeFailures asserts that structurally broken serializations are
// rejected outright rather than producing partial packets.
func TestDecodeFailures(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	valid := serializePacket(t, testPacket(t, prevTx))

	testCases := []struct {
		name   string
		mutate func([]byte) []byte
		err    error
	}{{
		name: "wrong magic",
		mutate: func(b []byte) []byte {
			mutated := append([]byte{}, b...)
			mutated[0] ^= 0xff
			return mutated
		},
		err: ErrInvalidMagicBytes,
	}, {
		name: "trailing garbage",
		mutate: func(b []byte) []byte {
			return append(append([]byte{}, b...), 0xde, 0xad)
		},
		err: ErrInvalidPsktFormat,
	}, {
		name: "truncated",
		mutate: func(b []byte) []byte {
			return b[:len(b)-2]
		},
	}, {
		name: "input map missing",
		mutate: func(b []byte) []byte {
			// Dropping the final output separator leaves the
			// stream one map short.
			return b[:len(b)-1]
		},
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewFromRawBytes(
				bytes.NewReader(tc.mutate(valid)), false,
			)
			require.Error(t, err)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
			}
		})
	}
}

// TestDuplicateKeyRejected asserts the map uniqueness invariant: a map
// containing the same composed key twice must always fail to decode.
func TestDuplicateKeyRejected(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	var buf bytes.Buffer
	_, err := buf.Write(psktMagic[:])
	require.NoError(t, err)

	var txBuf bytes.Buffer
	require.NoError(t, packet.UnsignedTx.SerializeNoWitness(&txBuf))

	// Write the unsigned transaction entry twice into the global map.
	require.NoError(t, serializeKVPairWithType(
		&buf, uint64(UnsignedTxType), nil, txBuf.Bytes(),
	))
	require.NoError(t, serializeKVPairWithType(
		&buf, uint64(UnsignedTxType), nil, txBuf.Bytes(),
	))

	_, err = NewFromRawBytes(bytes.NewReader(buf.Bytes()), false)
	require.Error(t, err)
}

// TestGlobalEntryOrder asserts that global map entries are accepted in any
// order: the unsigned transaction entry must be present, but other
// implementations are free to emit it after other globals.
func TestGlobalEntryOrder(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	var txBuf bytes.Buffer
	require.NoError(t, packet.UnsignedTx.SerializeNoWitness(&txBuf))

	// Emit the version entry before the unsigned transaction.
	var buf bytes.Buffer
	_, err := buf.Write(psktMagic[:])
	require.NoError(t, err)
	require.NoError(t, serializeKVPairWithType(
		&buf, uint64(VersionType), nil, []byte{0, 0, 0, 0},
	))
	require.NoError(t, serializeKVPairWithType(
		&buf, uint64(UnsignedTxType), nil, txBuf.Bytes(),
	))
	buf.WriteByte(0x00)

	// One empty input map and one empty output map.
	buf.WriteByte(0x00)
	buf.WriteByte(0x00)

	decoded, err := NewFromRawBytes(bytes.NewReader(buf.Bytes()), false)
	require.NoError(t, err)
	require.Equal(
		t, packet.UnsignedTx.TxHash(), decoded.UnsignedTx.TxHash(),
	)
	require.EqualValues(t, 0, decoded.GetVersion())

	// A global map without the unsigned transaction entry has no packet
	// to describe.
	var missing bytes.Buffer
	_, err = missing.Write(psktMagic[:])
	require.NoError(t, err)
	require.NoError(t, serializeKVPairWithType(
		&missing, uint64(VersionType), nil, []byte{0, 0, 0, 0},
	))
	missing.WriteByte(0x00)

	_, err = NewFromRawBytes(bytes.NewReader(missing.Bytes()), false)
	require.ErrorIs(t, err, ErrInvalidPsktFormat)
}

// TestSignedTxRejected asserts that an embedded transaction carrying inline
// signature data is rejected.
func TestSignedTxRejected(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	packet.UnsignedTx.TxIn[0].SignatureScript = []byte{txscript.OP_TRUE}

	_, err := NewFromUnsignedTx(packet.UnsignedTx)
	require.ErrorIs(t, err, ErrInvalidRawTxSigned)
	require.ErrorIs(t, packet.SanityCheck(), ErrInvalidRawTxSigned)
}

// TestMakeBlank asserts that blanking reduces a packet to what a creator
// would have produced for the same transaction.
func TestMakeBlank(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)
	reference := serializePacket(t, packet)

	updater, err := NewUpdater(packet)
	require.NoError(t, err)
	require.NoError(t, updater.AddInWitnessUtxo(prevTx.TxOut[0], 0))
	require.NoError(t, updater.AddGlobalXpub(
		bytes.Repeat([]byte{0x42}, bip32ExtKeySize),
		0x01020304, []uint32{2147483648},
	))

	packet.MakeBlank()
	require.Equal(t, reference, serializePacket(t, packet))
}

// TestGetVersion asserts the implicit version default.
func TestGetVersion(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2wkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	require.EqualValues(t, 0, packet.GetVersion())

	version := uint32(0)
	packet.Version = &version
	require.EqualValues(t, 0, packet.GetVersion())
}

// TestNewRejectsBadVersion asserts the creator refuses transaction versions
// below the minimum.
func TestNewRejectsBadVersion(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, 0, 0)
	require.ErrorIs(t, err, ErrInvalidPsktFormat)
}

// TestInputUTXO covers the three possible outcomes of a UTXO lookup: a
// present record, a missing record, and a previous transaction that does not
// contain the referenced output at all.
func TestInputUTXO(t *testing.T) {
	t.Parallel()

	_, pubKey := testKey(t)
	prevTx := testPrevTx(t, p2pkhScript(t, pubKey), 100_000)
	packet := testPacket(t, prevTx)

	// No UTXO data yet.
	utxo, err := packet.InputUTXO(0)
	require.NoError(t, err)
	require.Nil(t, utxo)

	// Full previous transaction attached.
	updater, err := NewUpdater(packet)
	require.NoError(t, err)
	require.NoError(t, updater.AddInNonWitnessUtxo(prevTx, 0))

	utxo, err = packet.InputUTXO(0)
	require.NoError(t, err)
	require.Equal(t, prevTx.TxOut[0], utxo)

	// Outpoint index beyond the outputs of the previous transaction.
	packet.UnsignedTx.TxIn[0].PreviousOutPoint.Index = 5
	_, err = packet.InputUTXO(0)
	require.ErrorIs(t, err, ErrInvalidPrevOutNonWitnessTransaction)
}
