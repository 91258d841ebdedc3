// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/btcsuite/btcd/wire"
)

// keyValuePair is a helper struct that groups the parts of a decoded map
// entry: the one byte type, the optional trailing key data and the value.
type keyValuePair struct {
	keyType   uint8
	keyData   []byte
	valueData []byte
}

// serializeKVpair writes out a kv pair in a PSKT map entry format to the
// passed writer: a compact-size length prefixed key followed by a
// compact-size length prefixed value.
func serializeKVpair(w io.Writer, key []byte, value []byte) error {
	if err := wire.WriteVarBytes(w, 0, key); err != nil {
		return err
	}

	return wire.WriteVarBytes(w, 0, value)
}

// serializeKVPairWithType writes out to the passed writer a type code
// followed by optional key data and the value.
func serializeKVPairWithType(w io.Writer, kt uint64, keydata []byte,
	value []byte) error {

	// Compose the type code and key data into a single compact-size
	// prefixed key.
	var kb bytes.Buffer
	if err := wire.WriteVarInt(&kb, 0, kt); err != nil {
		return err
	}
	if _, err := kb.Write(keydata); err != nil {
		return err
	}

	return serializeKVpair(w, kb.Bytes(), value)
}

// getKVPair returns the next key-value pair read from the passed reader. The
// map terminator (a zero length key) is signalled by a nil return value. Both
// the key and the value are bounds checked against the maximum lengths
// accepted off the wire before any allocation takes place.
func getKVPair(r io.Reader) (*keyValuePair, error) {
	key, err := wire.ReadVarBytes(r, 0, MaxPsktKeyLength, "PSKT key")
	if err != nil {
		return nil, err
	}

	// A zero length key is the sentinel terminating the current map.
	if len(key) == 0 {
		return nil, nil
	}

	value, err := wire.ReadVarBytes(r, 0, MaxPsktValueLength, "PSKT value")
	if err != nil {
		return nil, err
	}

	// The type code is serialized as a compact-size integer at the front
	// of the key. Everything after it is type specific key data.
	kr := bytes.NewReader(key)
	keyType, err := wire.ReadVarInt(kr, 0)
	if err != nil || keyType > 0xff {
		return nil, ErrInvalidKeyData
	}

	pair := &keyValuePair{
		keyType:   uint8(keyType),
		valueData: value,
	}
	if kr.Len() > 0 {
		pair.keyData = key[len(key)-kr.Len():]
	}

	return pair, nil
}

// keySet is a set of key type and key data pairs used to enforce the
// uniqueness of each key within one map while decoding.
type keySet struct {
	keys map[string]struct{}
}

// newKeySet returns an empty keySet.
func newKeySet() *keySet {
	return &keySet{keys: make(map[string]struct{})}
}

// addKey adds the passed key to the set, returning false if the exact key
// was already present.
func (s *keySet) addKey(keyType uint8, keyData []byte) bool {
	key := string(append([]byte{keyType}, keyData...))
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}

	return true
}

// readTxOut decodes a wire transaction output from the value of a witness
// UTXO entry: an 8 byte little endian amount followed by a compact-size
// length prefixed locking script.
func readTxOut(txout []byte) (*wire.TxOut, error) {
	if len(txout) < 10 {
		return nil, ErrInvalidPsktFormat
	}

	valueSer := binary.LittleEndian.Uint64(txout[:8])
	scriptPubKey, err := wire.ReadVarBytes(
		bytes.NewReader(txout[8:]), 0, MaxPsktValueLength,
		"output script",
	)
	if err != nil {
		return nil, ErrInvalidPsktFormat
	}

	return wire.NewTxOut(int64(valueSer), scriptPubKey), nil
}

// serializeWitness encodes a witness stack into the wire representation used
// by the final script witness field: a compact-size item count followed by
// compact-size length prefixed stack items.
func serializeWitness(witness wire.TxWitness) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(witness))); err != nil {
		return nil, err
	}
	for _, item := range witness {
		if err := wire.WriteVarBytes(&buf, 0, item); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// deserializeWitness decodes the value of a final script witness field back
// into a witness stack.
func deserializeWitness(b []byte) (wire.TxWitness, error) {
	r := bytes.NewReader(b)
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if count > maxWitnessItems {
		return nil, ErrInvalidPsktFormat
	}

	witness := make(wire.TxWitness, count)
	for i := uint64(0); i < count; i++ {
		witness[i], err = wire.ReadVarBytes(
			r, 0, maxWitnessItemSize, "witness item",
		)
		if err != nil {
			return nil, err
		}
	}
	if r.Len() > 0 {
		return nil, ErrInvalidPsktFormat
	}

	return witness, nil
}
