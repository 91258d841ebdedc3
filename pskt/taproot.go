// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// schnorrSigMinLength is the length of a plain schnorr signature.
	schnorrSigMinLength = schnorr.SignatureSize

	// schnorrSigMaxLength is the length of a schnorr signature with an
	// explicit, non-default sighash type appended.
	schnorrSigMaxLength = schnorrSigMinLength + 1

	// xOnlyKeyLength is the length of an x-only serialized public key.
	xOnlyKeyLength = 32

	// controlBlockMinLength is the shortest control block: the leaf
	// version byte plus the x-only internal key.
	controlBlockMinLength = 33
)

// TaprootScriptSpendSig encapsulates an individual schnorr signature for a
// given public key and leaf hash.
type TaprootScriptSpendSig struct {
	XOnlyPubKey []byte
	LeafHash    []byte
	Signature   []byte
	SigHash     txscript.SigHashType
}

// checkValid checks that both the pubkey and the signature are valid.
func (s *TaprootScriptSpendSig) checkValid() bool {
	return validateXOnlyPubkey(s.XOnlyPubKey) &&
		validateSchnorrSignature(s.Signature)
}

// EqualKey returns true if this script spend signature's key matches the
// given script spend signature's key.
func (s *TaprootScriptSpendSig) EqualKey(other *TaprootScriptSpendSig) bool {
	return bytes.Equal(s.XOnlyPubKey, other.XOnlyPubKey) &&
		bytes.Equal(s.LeafHash, other.LeafHash)
}

// SortBefore returns true if this script spend signature's key is
// lexicographically smaller than the given other script spend signature's
// key and should come first when being sorted.
func (s *TaprootScriptSpendSig) SortBefore(other *TaprootScriptSpendSig) bool {
	keyCmp := bytes.Compare(s.XOnlyPubKey, other.XOnlyPubKey)
	if keyCmp != 0 {
		return keyCmp < 0
	}

	// Multiple signatures can share a pubkey, one per leaf, so ties are
	// broken on the leaf hash.
	return bytes.Compare(s.LeafHash, other.LeafHash) < 0
}

// SerializeSignature returns the fully serialized signature with the sighash
// type appended if it is a non-default type.
func (s *TaprootScriptSpendSig) SerializeSignature() []byte {
	value := append([]byte{}, s.Signature...)
	if s.SigHash != txscript.SigHashDefault {
		value = append(value, byte(s.SigHash))
	}

	return value
}

// TaprootTapLeafScript represents a single leaf script that is carried with
// the control block that allows spending it.
type TaprootTapLeafScript struct {
	ControlBlock []byte
	Script       []byte
	LeafVersion  txscript.TapscriptLeafVersion
}

// checkValid checks that the control block is valid.
func (s *TaprootTapLeafScript) checkValid() bool {
	// The control block must be the leaf version byte and internal key,
	// followed by zero or more merkle branch hashes.
	if len(s.ControlBlock) < controlBlockMinLength {
		return false
	}
	rest := len(s.ControlBlock) - controlBlockMinLength

	return rest%chainHashSize == 0
}

// SortBefore returns true if this leaf script's control block is
// lexicographically smaller than the given other leaf script's control block
// and should come first when being sorted.
func (s *TaprootTapLeafScript) SortBefore(other *TaprootTapLeafScript) bool {
	return bytes.Compare(s.ControlBlock, other.ControlBlock) < 0
}

// leafHash returns the tap hash this leaf script commits to.
func (s *TaprootTapLeafScript) leafHash() []byte {
	leaf := txscript.NewTapLeaf(s.LeafVersion, s.Script)
	hash := leaf.TapHash()
	return hash[:]
}

// chainHashSize is the size of a merkle branch element in a control block.
const chainHashSize = 32

// TaprootBip32Derivation encapsulates the data for the input and output
// taproot BIP 32 derivation key-value fields.
type TaprootBip32Derivation struct {
	// XOnlyPubKey is the raw public key serialized in the x-only format.
	XOnlyPubKey []byte

	// LeafHashes is a list of leaf hashes that the given public key is
	// involved in.
	LeafHashes [][]byte

	// MasterKeyFingerprint is the fingerprint of the master pubkey.
	MasterKeyFingerprint uint32

	// Bip32Path is the BIP 32 path with child index as a distinct
	// integer.
	Bip32Path []uint32
}

// SortBefore returns true if this derivation's key is lexicographically
// smaller than the given other derivation's key and should come first when
// being sorted.
func (s *TaprootBip32Derivation) SortBefore(o *TaprootBip32Derivation) bool {
	return bytes.Compare(s.XOnlyPubKey, o.XOnlyPubKey) < 0
}

// ReadTaprootBip32Derivation deserializes a byte slice containing the
// taproot BIP 32 derivation info that consists of a list of leaf hashes as
// well as the normal BIP 32 derivation info.
func ReadTaprootBip32Derivation(xOnlyPubKey,
	value []byte) (*TaprootBip32Derivation, error) {

	// The taproot key BIP 32 derivation path is defined as:
	//   <hashes len> <leaf hash>* <4 byte fingerprint> <32-bit uint>*
	// So we get at least 5 bytes for the length and the 4 byte
	// fingerprint.
	if len(value) < 5 {
		return nil, ErrInvalidPsktFormat
	}

	r := bytes.NewReader(value)
	numHashes, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, ErrInvalidPsktFormat
	}

	// The declared count must fit in the bytes that are actually present,
	// otherwise the value is malformed. Checking before allocating also
	// stops an adversarial count from requesting an absurd slice.
	if numHashes > uint64(r.Len())/chainHashSize {
		return nil, ErrInvalidPsktFormat
	}

	derivation := TaprootBip32Derivation{
		XOnlyPubKey: xOnlyPubKey,
		LeafHashes:  make([][]byte, int(numHashes)),
	}

	for i := 0; i < int(numHashes); i++ {
		derivation.LeafHashes[i] = make([]byte, chainHashSize)
		if _, err := r.Read(derivation.LeafHashes[i]); err != nil {
			return nil, ErrInvalidPsktFormat
		}
	}

	// Read the rest of the bytes from the reader, that's the normal
	// derivation path.
	leftoverBuf := new(bytes.Buffer)
	if _, err := r.WriteTo(leftoverBuf); err != nil {
		return nil, ErrInvalidPsktFormat
	}

	fingerprint, path, err := ReadBip32Derivation(leftoverBuf.Bytes())
	if err != nil {
		return nil, err
	}

	derivation.MasterKeyFingerprint = fingerprint
	derivation.Bip32Path = path

	return &derivation, nil
}

// SerializeTaprootBip32Derivation serializes a TaprootBip32Derivation to its
// raw byte representation.
func SerializeTaprootBip32Derivation(
	d *TaprootBip32Derivation) ([]byte, error) {

	var buf bytes.Buffer

	err := wire.WriteVarInt(&buf, 0, uint64(len(d.LeafHashes)))
	if err != nil {
		return nil, ErrInvalidPsktFormat
	}

	for _, hash := range d.LeafHashes {
		if _, err := buf.Write(hash); err != nil {
			return nil, ErrInvalidPsktFormat
		}
	}

	_, err = buf.Write(SerializeBIP32Derivation(
		d.MasterKeyFingerprint, d.Bip32Path,
	))
	if err != nil {
		return nil, ErrInvalidPsktFormat
	}

	return buf.Bytes(), nil
}

// validateXOnlyPubkey checks if pubKey is a valid 32 byte x-only public key.
func validateXOnlyPubkey(pubKey []byte) bool {
	if len(pubKey) != xOnlyKeyLength {
		return false
	}

	_, err := schnorr.ParsePubKey(pubKey)
	return err == nil
}

// validateSchnorrSignature checks if the signature is a valid 64 byte
// schnorr signature.
func validateSchnorrSignature(sig []byte) bool {
	_, err := schnorr.ParseSignature(sig)
	return err == nil
}
