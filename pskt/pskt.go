// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pskt is an implementation of Partially Signed Koyotecoin
// Transactions (PSKT). The format is a role based container that lets
// multiple parties collaboratively construct, annotate, sign and finalize a
// transaction without exchanging private keys, modeled on BIP 174.
package pskt

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// psktMagicLength is the length of the magic bytes used to signal the start
// of a serialized PSKT packet.
const psktMagicLength = 5

var (
	// psktMagic is the domain marker prefixing every serialized packet.
	psktMagic = [psktMagicLength]byte{0x70,
		0x73, 0x6b, 0x74, 0xff, // = "pskt" + 0xff sep
	}
)

const (
	// MaxPsktValueLength is the size of the largest value accepted off the
	// wire. The largest legitimate value is a full previous transaction in
	// a non-witness UTXO field, which is bounded by the block size.
	MaxPsktValueLength = 4000000

	// MaxPsktKeyLength is the length of the largest key that will be
	// deserialized from the wire. Anything longer returns
	// ErrInvalidKeyData.
	MaxPsktKeyLength = 10000

	// maxWitnessItems is the maximum number of items accepted in a final
	// script witness stack read off the wire.
	maxWitnessItems = 4000

	// maxWitnessItemSize is the maximum size of a single item in a final
	// script witness stack read off the wire.
	maxWitnessItemSize = 11000
)

var (
	// ErrInvalidPsktFormat is a generic error for any situation in which a
	// provided PSKT serialization does not conform to the format rules.
	ErrInvalidPsktFormat = errors.New("invalid PSKT serialization format")

	// ErrDuplicateKey indicates that a passed PSKT serialization is
	// invalid due to having the same key repeated in the same map.
	ErrDuplicateKey = errors.New("invalid PSKT due to duplicate key")

	// ErrInvalidKeyData indicates that a key-value pair in the PSKT
	// serialization contains data in the key which is not valid.
	ErrInvalidKeyData = errors.New("invalid key data")

	// ErrInvalidMagicBytes indicates that a passed PSKT serialization is
	// invalid due to having incorrect magic bytes.
	ErrInvalidMagicBytes = errors.New("invalid PSKT due to incorrect " +
		"magic bytes")

	// ErrInvalidRawTxSigned indicates that the raw serialized transaction
	// in the global section of the passed PSKT serialization is invalid
	// because it contains scriptSigs or witnesses (i.e. is fully or
	// partially signed), which is not allowed: all signature material
	// must live in the per-input maps.
	ErrInvalidRawTxSigned = errors.New("invalid PSKT, raw transaction " +
		"must be unsigned")

	// ErrInvalidPrevOutNonWitnessTransaction indicates that the index of
	// the referenced previous output does not exist in the transaction
	// provided in the non-witness UTXO field.
	ErrInvalidPrevOutNonWitnessTransaction = errors.New("prevout does " +
		"not exist in the provided non-witness utxo serialization")

	// ErrInvalidSignatureForInput indicates that the signature being
	// appended to an input does not correspond to that input's previous
	// transaction hash, redeem script, or witness script.
	//
	// NOTE: this does not include ECDSA signature checking.
	ErrInvalidSignatureForInput = errors.New("signature does not " +
		"correspond to this input")

	// ErrInputAlreadyFinalized indicates that the input passed to a
	// Finalizer already contains the finalized scriptSig or witness.
	ErrInputAlreadyFinalized = errors.New("cannot finalize PSKT, " +
		"finalized scriptSig or scriptWitness already exists")

	// ErrIncompletePskt indicates that the Extractor was unable to
	// extract the passed packet because one or more inputs are not final.
	ErrIncompletePskt = errors.New("PSKT cannot be extracted as it is " +
		"incomplete")

	// ErrNotFinalizable indicates that the PSKT struct does not have
	// sufficient data (e.g. signatures) for finalization.
	ErrNotFinalizable = errors.New("PSKT is not finalizable")

	// ErrInvalidSigHashFlags indicates that a signature added to the PSKT
	// uses sighash flags that do not agree with the sighash type entry
	// recorded for the input.
	ErrInvalidSigHashFlags = errors.New("invalid sighash flags")

	// ErrUnsupportedScriptType indicates that the redeem script or
	// witness script given is not supported by this package, or is
	// otherwise not valid.
	ErrUnsupportedScriptType = errors.New("unsupported script type")

	// ErrUnsupportedVersion indicates that the global version field of a
	// packet carries a version this package does not understand.
	ErrUnsupportedVersion = errors.New("unsupported PSKT version")
)

// Unknown is a struct encapsulating a key-value pair for which the key type
// is unknown by this package. These entries are carried opaquely in every
// scope so that annotations from other implementations survive a round trip.
type Unknown struct {
	Key   []byte
	Value []byte
}

// Packet is the actual PSKT representation. It is a set of 1 + N + M
// key-value pair maps: one global, defining the unsigned transaction
// structure, plus one per input and one per output. These maps carry
// scripts, signatures, key derivations and other transaction-defining data
// accumulated as the packet moves through the signing pipeline.
type Packet struct {
	// UnsignedTx is the decoded unsigned transaction for this PSKT. It is
	// bound at creation time and never mutated afterwards.
	UnsignedTx *wire.MsgTx

	// Inputs contains all the information needed to properly sign the
	// target input within the above transaction, position aligned with
	// UnsignedTx.TxIn.
	Inputs []PInput

	// Outputs contains all information describing the outputs produced by
	// this PSKT, position aligned with UnsignedTx.TxOut.
	Outputs []POutput

	// Xpubs is the global set of extended public keys with their key
	// origin information.
	Xpubs []*Xpub

	// Version is the global PSKT version, if an explicit entry was
	// present. Use GetVersion to read it with the implicit default.
	Version *uint32

	// Unknowns are the global scope entries of types this package does
	// not recognize, proprietary entries included.
	Unknowns []*Unknown
}

// validateUnsignedTX returns true if the transaction is unsigned. Note that
// more basic sanity requirements, such as the presence of inputs and
// outputs, is implicitly checked in the call to MsgTx.Deserialize().
func validateUnsignedTX(tx *wire.MsgTx) bool {
	return fn.All(tx.TxIn, func(tin *wire.TxIn) bool {
		return len(tin.SignatureScript) == 0 && len(tin.Witness) == 0
	})
}

// NewFromUnsignedTx creates a new Packet, without any signatures (i.e. only
// the global section is non-empty) using the passed unsigned transaction.
func NewFromUnsignedTx(tx *wire.MsgTx) (*Packet, error) {
	if !validateUnsignedTX(tx) {
		return nil, ErrInvalidRawTxSigned
	}

	return &Packet{
		UnsignedTx: tx,
		Inputs:     make([]PInput, len(tx.TxIn)),
		Outputs:    make([]POutput, len(tx.TxOut)),
		Unknowns:   make([]*Unknown, 0),
	}, nil
}

// NewFromRawBytes returns a new instance of a Packet created by reading from
// a byte slice. If the format is invalid, an error is returned. If the
// argument b64 is true, the passed byte stream is decoded from base64
// encoding before processing.
//
// NOTE: to create a Packet from one's own data, rather than reading in a
// serialization from a counterparty, one should use New.
func NewFromRawBytes(r io.Reader, b64 bool) (*Packet, error) {
	// If the PSKT is encoded in base64, then we'll create a new wrapper
	// reader that'll allow us to incrementally decode the contents of the
	// io.Reader.
	if b64 {
		r = base64.NewDecoder(base64.StdEncoding, r)
	}

	// The Packet struct does not store the fixed magic bytes, but they
	// must be present or the serialization must be explicitly rejected.
	var magic [psktMagicLength]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if magic != psktMagic {
		return nil, ErrInvalidMagicBytes
	}

	// Next we parse the GLOBAL section, breaking at the map terminator.
	// Entries may appear in any order; the unsigned transaction entry
	// must be present somewhere in the map. The key set enforces the
	// uniqueness invariant across the whole map.
	var packet Packet
	globalKeys := newKeySet()
	for {
		kvPair, err := getKVPair(r)
		if err != nil {
			return nil, err
		}
		if kvPair == nil {
			break
		}

		if !globalKeys.addKey(kvPair.keyType, kvPair.keyData) {
			return nil, ErrDuplicateKey
		}

		switch GlobalType(kvPair.keyType) {
		case UnsignedTxType:
			if kvPair.keyData != nil {
				return nil, ErrInvalidPsktFormat
			}

			msgTx := wire.NewMsgTx(2)
			err = msgTx.Deserialize(
				bytes.NewReader(kvPair.valueData),
			)
			if err != nil {
				return nil, err
			}
			if !validateUnsignedTX(msgTx) {
				return nil, ErrInvalidRawTxSigned
			}

			packet.UnsignedTx = msgTx

		case XpubType:
			xpub, err := readXpub(
				kvPair.keyData, kvPair.valueData,
			)
			if err != nil {
				return nil, err
			}

			packet.Xpubs = append(packet.Xpubs, xpub)

		case VersionType:
			if kvPair.keyData != nil ||
				len(kvPair.valueData) != 4 {

				return nil, ErrInvalidPsktFormat
			}

			version := binary.LittleEndian.Uint32(
				kvPair.valueData,
			)
			if version > 0 {
				return nil, ErrUnsupportedVersion
			}
			packet.Version = &version

		default:
			// A fall through case for any proprietary or unknown
			// types.
			keyCodeAndData := append(
				[]byte{kvPair.keyType}, kvPair.keyData...,
			)
			packet.Unknowns = append(packet.Unknowns, &Unknown{
				Key:   keyCodeAndData,
				Value: kvPair.valueData,
			})
		}
	}

	// Without the unsigned transaction entry there is no way to know how
	// many input and output maps to expect.
	if packet.UnsignedTx == nil {
		return nil, ErrInvalidPsktFormat
	}
	msgTx := packet.UnsignedTx

	// Next we parse the INPUT section. There must be exactly one input
	// map per input of the unsigned transaction.
	packet.Inputs = make([]PInput, len(msgTx.TxIn))
	for i := range msgTx.TxIn {
		if err := packet.Inputs[i].deserialize(r); err != nil {
			return nil, err
		}
	}

	// Next we parse the OUTPUT section.
	packet.Outputs = make([]POutput, len(msgTx.TxOut))
	for i := range msgTx.TxOut {
		if err := packet.Outputs[i].deserialize(r); err != nil {
			return nil, err
		}
	}

	// The serialization must end exactly at the last output map. Any
	// trailing bytes mean the byte stream does not describe one packet.
	var trailing [1]byte
	if _, err := io.ReadFull(r, trailing[:]); err != io.EOF {
		return nil, ErrInvalidPsktFormat
	}

	// Extended sanity checking is applied here to make sure the
	// externally-passed Packet follows all the rules.
	if err := packet.SanityCheck(); err != nil {
		return nil, err
	}

	return &packet, nil
}

// NewFromBase64 decodes a packet from its text transport form.
func NewFromBase64(s string) (*Packet, error) {
	return NewFromRawBytes(bytes.NewReader([]byte(s)), true)
}

// Serialize creates a binary serialization of the referenced Packet struct:
// the magic prefix, the global map, then each input and output map in order,
// each terminated by a zero length key.
func (p *Packet) Serialize(w io.Writer) error {
	// The position alignment invariant must hold before anything is
	// written out.
	if len(p.Inputs) != len(p.UnsignedTx.TxIn) ||
		len(p.Outputs) != len(p.UnsignedTx.TxOut) {

		return ErrInvalidPsktFormat
	}

	if _, err := w.Write(psktMagic[:]); err != nil {
		return err
	}

	// The unsigned transaction is serialized without witness data; there
	// is none to write since the embedded transaction stays unsigned.
	serializedTx := bytes.NewBuffer(
		make([]byte, 0, p.UnsignedTx.SerializeSizeStripped()),
	)
	if err := p.UnsignedTx.SerializeNoWitness(serializedTx); err != nil {
		return err
	}

	err := serializeKVPairWithType(
		w, uint64(UnsignedTxType), nil, serializedTx.Bytes(),
	)
	if err != nil {
		return err
	}

	for _, xpub := range p.Xpubs {
		err := serializeKVPairWithType(
			w, uint64(XpubType), xpub.ExtendedKey,
			SerializeBIP32Derivation(
				xpub.MasterKeyFingerprint, xpub.Bip32Path,
			),
		)
		if err != nil {
			return err
		}
	}

	if p.Version != nil {
		var versionBytes [4]byte
		binary.LittleEndian.PutUint32(versionBytes[:], *p.Version)
		err := serializeKVPairWithType(
			w, uint64(VersionType), nil, versionBytes[:],
		)
		if err != nil {
			return err
		}
	}

	// Unknown is a special case; we don't have a key type, only a key
	// and a value field.
	for _, kv := range p.Unknowns {
		if err := serializeKVpair(w, kv.Key, kv.Value); err != nil {
			return err
		}
	}

	// With that our global section is done, so we'll write out the
	// separator.
	separator := []byte{0x00}
	if _, err := w.Write(separator); err != nil {
		return err
	}

	for i := range p.Inputs {
		if err := p.Inputs[i].serialize(w); err != nil {
			return err
		}
	}

	for i := range p.Outputs {
		if err := p.Outputs[i].serialize(w); err != nil {
			return err
		}
	}

	return nil
}

// B64Encode returns the base64 encoding of the serialization of the current
// PSKT, or an error if the encoding fails.
func (p *Packet) B64Encode() (string, error) {
	var b bytes.Buffer
	if err := p.Serialize(&b); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(b.Bytes()), nil
}

// Copy returns a deep copy of the packet by running it through its own wire
// serialization.
func (p *Packet) Copy() (*Packet, error) {
	var b bytes.Buffer
	if err := p.Serialize(&b); err != nil {
		return nil, err
	}

	return NewFromRawBytes(&b, false)
}

// MakeBlank is a destructive reset of the packet: every input and output map
// is cleared entirely and the global scope is reduced to only the unsigned
// transaction entry. The result is the minimal packet a Creator would have
// produced for the same transaction, which is useful as a reference copy for
// structural equality checks.
func (p *Packet) MakeBlank() {
	for i := range p.Inputs {
		p.Inputs[i] = PInput{}
	}
	for i := range p.Outputs {
		p.Outputs[i] = POutput{}
	}

	p.Xpubs = nil
	p.Version = nil
	p.Unknowns = nil
}

// GetVersion returns the global version of the packet, applying the implicit
// default of zero when no explicit version entry is present.
func (p *Packet) GetVersion() uint32 {
	if p.Version != nil {
		return *p.Version
	}

	return 0
}

// InputUTXO looks up the previous output committed to by the given input. It
// returns nil without an error when the packet carries no UTXO information
// for the input, and ErrInvalidPrevOutNonWitnessTransaction when a provided
// previous transaction does not contain the referenced output index. A
// previous transaction whose hash does not match the input's outpoint is
// treated as missing UTXO information rather than an error, since only an
// Updater can repair either situation.
func (p *Packet) InputUTXO(inIndex int) (*wire.TxOut, error) {
	if inIndex < 0 || inIndex >= len(p.Inputs) {
		return nil, ErrInvalidPsktFormat
	}

	pInput := &p.Inputs[inIndex]
	prevOut := p.UnsignedTx.TxIn[inIndex].PreviousOutPoint

	switch {
	case pInput.NonWitnessUtxo != nil:
		utxOuts := pInput.NonWitnessUtxo.TxOut
		if prevOut.Index >= uint32(len(utxOuts)) {
			return nil, ErrInvalidPrevOutNonWitnessTransaction
		}

		txHash := pInput.NonWitnessUtxo.TxHash()
		if !txHash.IsEqual(&prevOut.Hash) {
			return nil, nil
		}

		return utxOuts[prevOut.Index], nil

	case pInput.WitnessUtxo != nil:
		return pInput.WitnessUtxo, nil

	default:
		return nil, nil
	}
}

// IsComplete returns true only if all of the inputs are finalized; this is
// particularly important in that it decides whether the final extraction to
// a network serialized signed transaction will be possible.
func (p *Packet) IsComplete() bool {
	for i := 0; i < len(p.UnsignedTx.TxIn); i++ {
		if !isFinalized(p, i) {
			return false
		}
	}

	return true
}

// SanityCheck checks conditions on a PSKT to ensure that it obeys the rules
// of the format, and returns an error if not.
func (p *Packet) SanityCheck() error {
	if !validateUnsignedTX(p.UnsignedTx) {
		return ErrInvalidRawTxSigned
	}

	if len(p.Inputs) != len(p.UnsignedTx.TxIn) ||
		len(p.Outputs) != len(p.UnsignedTx.TxOut) {

		return ErrInvalidPsktFormat
	}

	for i := range p.Inputs {
		if !p.Inputs[i].IsSane() {
			return ErrInvalidPsktFormat
		}
	}

	return nil
}
