// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/ripemd160"
)

var (
	// ErrInvalidPreimage indicates that a hash preimage entry carries a
	// digest that does not commit to its preimage, or a digest of the
	// wrong length for its hash kind.
	ErrInvalidPreimage = errors.New("preimage does not match its hash")
)

// HashPreimage is a single entry of one of the four per-input preimage
// collections: the digest under the respective hash function (carried in the
// key) and the preimage that commits to it (carried in the value).
type HashPreimage struct {
	// Hash is the digest the surrounding script commits to.
	Hash []byte

	// Preimage hashes to Hash under the hash kind of the collection the
	// entry lives in.
	Preimage []byte
}

// preimageSorter orders preimage entries by their digest so that the
// serialization of a set of preimages is deterministic.
type preimageSorter []*HashPreimage

func (s preimageSorter) Len() int { return len(s) }

func (s preimageSorter) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s preimageSorter) Less(i, j int) bool {
	return bytes.Compare(s[i].Hash, s[j].Hash) < 0
}

// ripemd160h returns the RIPEMD160 digest of the passed preimage.
func ripemd160h(b []byte) []byte {
	h := ripemd160.New()
	h.Write(b)
	return h.Sum(nil)
}

// sha256h returns the SHA256 digest of the passed preimage.
func sha256h(b []byte) []byte {
	digest := sha256.Sum256(b)
	return digest[:]
}

// hash160 returns RIPEMD160(SHA256(b)).
func hash160(b []byte) []byte {
	return ripemd160h(sha256h(b))
}

// hash256 returns SHA256(SHA256(b)).
func hash256(b []byte) []byte {
	return chainhash.DoubleHashB(b)
}

// validatePreimage checks that the digest in the key data of a preimage
// entry has the correct length for its hash kind and actually commits to
// the preimage carried in the value.
func validatePreimage(keyType InputType, hash, preimage []byte) bool {
	var computed []byte
	switch keyType {
	case Ripemd160PreimageType:
		computed = ripemd160h(preimage)

	case Sha256PreimageType:
		computed = sha256h(preimage)

	case Hash160PreimageType:
		computed = hash160(preimage)

	case Hash256PreimageType:
		computed = hash256(preimage)

	default:
		return false
	}

	return bytes.Equal(computed, hash)
}
