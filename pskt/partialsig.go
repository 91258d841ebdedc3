// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// minSigLength is the shortest DER encoded ECDSA signature, sighash byte
// included, that will be accepted as a partial signature.
const minSigLength = 9

// PartialSig encapsulates a (BTC public key, ECDSA signature) pair, note
// that the signature is fully serialized, with the trailing sighash byte.
type PartialSig struct {
	PubKey    []byte
	Signature []byte
}

// checkValid checks that both the pubkey and sig are valid. An invalid
// serialization of either is rejected, but no check against the sighash
// semantics or the ECDSA validity of the signature over any message is made.
func (ps *PartialSig) checkValid() bool {
	if !validatePubkey(ps.PubKey) {
		return false
	}
	if len(ps.Signature) < minSigLength {
		return false
	}

	// The final byte is the sighash flag, everything before it must be a
	// well formed DER signature.
	sig := ps.Signature[:len(ps.Signature)-1]
	if _, err := ecdsa.ParseDERSignature(sig); err != nil {
		return false
	}

	return true
}

// PartialSigSorter implements sort.Interface for PartialSig.
type PartialSigSorter []*PartialSig

func (s PartialSigSorter) Len() int { return len(s) }

func (s PartialSigSorter) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s PartialSigSorter) Less(i, j int) bool {
	return bytes.Compare(s[i].PubKey, s[j].PubKey) < 0
}
