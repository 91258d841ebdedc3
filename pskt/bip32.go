// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
)

// bip32ExtKeySize is the size of a serialized extended public key, version
// bytes included, as carried in the key data of a global xpub entry.
const bip32ExtKeySize = 78

// Bip32Derivation encapsulates the data for the input and output
// Bip32Derivation key-value fields.
type Bip32Derivation struct {
	// PubKey is the raw pubkey serialized in compressed format.
	PubKey []byte

	// MasterKeyFingerprint is the fingerprint of the master pubkey.
	MasterKeyFingerprint uint32

	// Bip32Path is the BIP 32 path with child index as a distinct integer.
	Bip32Path []uint32
}

// Xpub is a global entry binding an extended public key to its key origin
// information.
type Xpub struct {
	// ExtendedKey is the serialized extended public key, its version
	// bytes included.
	ExtendedKey []byte

	// MasterKeyFingerprint is the fingerprint of the master pubkey.
	MasterKeyFingerprint uint32

	// Bip32Path is the derivation path of the extended key, with child
	// index as a distinct integer.
	Bip32Path []uint32
}

// checkValid doesn't make sense for public keys in the BIP32 derivation
// fields beyond the parse check since the path data is arbitrary.
func (pb *Bip32Derivation) checkValid() bool {
	return validatePubkey(pb.PubKey)
}

// checkValid bounds checks the serialized extended key; the origin data is
// arbitrary.
func (x *Xpub) checkValid() bool {
	return len(x.ExtendedKey) == bip32ExtKeySize
}

// Bip32Sorter implements sort.Interface for the Bip32Derivation struct.
type Bip32Sorter []*Bip32Derivation

func (s Bip32Sorter) Len() int { return len(s) }

func (s Bip32Sorter) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s Bip32Sorter) Less(i, j int) bool {
	return bytes.Compare(s[i].PubKey, s[j].PubKey) < 0
}

// validatePubkey checks if pubKey is *any* valid serialized secp256k1 public
// key (not just valid points, but valid serializations).
func validatePubkey(pubKey []byte) bool {
	_, err := btcec.ParsePubKey(pubKey)
	return err == nil
}

// ReadBip32Derivation deserializes a byte slice containing chunks of 4 byte
// big endian integers; the first is the master key fingerprint, the rest is
// the derivation path.
func ReadBip32Derivation(path []byte) (uint32, []uint32, error) {
	// BIP 174 defines the derivation path being encoded as
	//   "<32-bit uint> <32-bit uint>*"
	// with the asterisk meaning 0 to n times. Which in turn means that an
	// empty path is valid, only the key fingerprint is mandatory.
	if len(path) < 4 || len(path)%4 != 0 {
		return 0, nil, ErrInvalidPsktFormat
	}

	masterKeyInt := binary.LittleEndian.Uint32(path[:4])

	var paths []uint32
	for i := 4; i < len(path); i += 4 {
		paths = append(paths, binary.LittleEndian.Uint32(path[i:i+4]))
	}

	return masterKeyInt, paths, nil
}

// SerializeBIP32Derivation takes a master key fingerprint as defined in
// BIP32, along with a path specified as a list of uint32 values, and returns
// a bytestring specifying the derivation in the format required by BIP174:
// master key fingerprint (4) || child index (4) || child index (4) || ...
func SerializeBIP32Derivation(masterKeyFingerprint uint32,
	bip32Path []uint32) []byte {

	var masterKeyBytes [4]byte
	binary.LittleEndian.PutUint32(masterKeyBytes[:], masterKeyFingerprint)

	derivationPath := make([]byte, 0, 4+4*len(bip32Path))
	derivationPath = append(derivationPath, masterKeyBytes[:]...)
	for _, path := range bip32Path {
		var pathBytes [4]byte
		binary.LittleEndian.PutUint32(pathBytes[:], path)
		derivationPath = append(derivationPath, pathBytes[:]...)
	}

	return derivationPath
}

// readXpub decodes a global xpub entry from its key data (the serialized
// extended key) and value (its key origin information).
func readXpub(keyData, value []byte) (*Xpub, error) {
	if len(keyData) != bip32ExtKeySize {
		return nil, ErrInvalidKeyData
	}

	master, path, err := ReadBip32Derivation(value)
	if err != nil {
		return nil, err
	}

	return &Xpub{
		ExtendedKey:          keyData,
		MasterKeyFingerprint: master,
		Bip32Path:            path,
	}, nil
}
