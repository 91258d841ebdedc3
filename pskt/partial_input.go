// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// lockTimeThreshold is the value below which a required locktime hint is
// interpreted as a block height rather than a Unix timestamp.
const lockTimeThreshold = 500000000

// PInput is a struct encapsulating all the data that can be attached to any
// specific input of the PSKT.
type PInput struct {
	NonWitnessUtxo         *wire.MsgTx
	WitnessUtxo            *wire.TxOut
	PartialSigs            []*PartialSig
	SighashType            txscript.SigHashType
	RedeemScript           []byte
	WitnessScript          []byte
	Bip32Derivation        []*Bip32Derivation
	FinalScriptSig         []byte
	FinalScriptWitness     []byte
	PorCommitment          []byte
	Ripemd160Preimages     []*HashPreimage
	Sha256Preimages        []*HashPreimage
	Hash160Preimages       []*HashPreimage
	Hash256Preimages       []*HashPreimage
	RequiredTimeLocktime   *uint32
	RequiredHeightLocktime *uint32
	TaprootKeySpendSig     []byte
	TaprootScriptSpendSig  []*TaprootScriptSpendSig
	TaprootLeafScript      []*TaprootTapLeafScript
	TaprootBip32Derivation []*TaprootBip32Derivation
	TaprootInternalKey     []byte
	TaprootMerkleRoot      []byte
	Unknowns               []*Unknown
}

// NewPsktInput creates an instance of PInput given either a nonWitnessUtxo
// or a witnessUtxo.
//
// NOTE: only one of the two arguments should be specified, with the other
// being `nil`; otherwise the created PInput object will fail IsSane()
// checks and will not be usable.
func NewPsktInput(nonWitnessUtxo *wire.MsgTx,
	witnessUtxo *wire.TxOut) *PInput {

	return &PInput{
		NonWitnessUtxo: nonWitnessUtxo,
		WitnessUtxo:    witnessUtxo,
		PartialSigs:    []*PartialSig{},
	}
}

// IsSane returns true only if there are no conflicting values in the input.
// It checks that witness and non-witness UTXO entries do not contradict each
// other when both are present.
func (pi *PInput) IsSane() bool {
	// It is acceptable for both the witness and non-witness UTXO to be
	// set (the full previous transaction hardens against output value
	// tampering for segwit v0 spends), but when both are present the
	// witness record must be one of the previous transaction's outputs.
	if pi.NonWitnessUtxo != nil && pi.WitnessUtxo != nil {
		found := false
		for _, txOut := range pi.NonWitnessUtxo.TxOut {
			if txOut.Value == pi.WitnessUtxo.Value &&
				bytes.Equal(
					txOut.PkScript,
					pi.WitnessUtxo.PkScript,
				) {

				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// isFinal returns true if final satisfaction data is present for the input.
func (pi *PInput) isFinal() bool {
	return pi.FinalScriptSig != nil || pi.FinalScriptWitness != nil
}

// deserialize attempts to deserialize a new PInput from the passed reader.
func (pi *PInput) deserialize(r io.Reader) error {
	inputKeys := newKeySet()
	for {
		kvPair, err := getKVPair(r)
		if err != nil {
			return err
		}

		// If this is the separator byte (nil kvPair), this section is
		// done.
		if kvPair == nil {
			break
		}

		// The composed key (type code plus key data) must be unique
		// within one map.
		if !inputKeys.addKey(kvPair.keyType, kvPair.keyData) {
			return ErrDuplicateKey
		}

		switch InputType(kvPair.keyType) {
		case NonWitnessUtxoType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			tx := wire.NewMsgTx(2)
			err := tx.Deserialize(
				bytes.NewReader(kvPair.valueData),
			)
			if err != nil {
				return err
			}
			pi.NonWitnessUtxo = tx

		case WitnessUtxoType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			txOut, err := readTxOut(kvPair.valueData)
			if err != nil {
				return err
			}
			pi.WitnessUtxo = txOut

		case PartialSigType:
			newPartialSig := PartialSig{
				PubKey:    kvPair.keyData,
				Signature: kvPair.valueData,
			}
			if !newPartialSig.checkValid() {
				return ErrInvalidPsktFormat
			}
			pi.PartialSigs = append(
				pi.PartialSigs, &newPartialSig,
			)

		case SighashType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}

			// Bounds check on value here since the sighash type
			// must be a 32-bit unsigned integer.
			if len(kvPair.valueData) != 4 {
				return ErrInvalidKeyData
			}
			pi.SighashType = txscript.SigHashType(
				binary.LittleEndian.Uint32(kvPair.valueData),
			)

		case RedeemScriptInputType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			pi.RedeemScript = kvPair.valueData

		case WitnessScriptInputType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			pi.WitnessScript = kvPair.valueData

		case Bip32DerivationInputType:
			if !validatePubkey(kvPair.keyData) {
				return ErrInvalidPsktFormat
			}
			master, derivationPath, err := ReadBip32Derivation(
				kvPair.valueData,
			)
			if err != nil {
				return err
			}

			pi.Bip32Derivation = append(
				pi.Bip32Derivation,
				&Bip32Derivation{
					PubKey:               kvPair.keyData,
					MasterKeyFingerprint: master,
					Bip32Path:            derivationPath,
				},
			)

		case FinalScriptSigType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			pi.FinalScriptSig = kvPair.valueData

		case FinalScriptWitnessType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}

			// The witness stack must deserialize cleanly even
			// though it is stored in its serialized form.
			_, err := deserializeWitness(kvPair.valueData)
			if err != nil {
				return err
			}
			pi.FinalScriptWitness = kvPair.valueData

		case PorCommitmentType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			pi.PorCommitment = kvPair.valueData

		case Ripemd160PreimageType, Sha256PreimageType,
			Hash160PreimageType, Hash256PreimageType:

			keyType := InputType(kvPair.keyType)
			if !validatePreimage(
				keyType, kvPair.keyData, kvPair.valueData,
			) {

				return ErrInvalidPreimage
			}

			preimage := &HashPreimage{
				Hash:     kvPair.keyData,
				Preimage: kvPair.valueData,
			}
			switch keyType {
			case Ripemd160PreimageType:
				pi.Ripemd160Preimages = append(
					pi.Ripemd160Preimages, preimage,
				)
			case Sha256PreimageType:
				pi.Sha256Preimages = append(
					pi.Sha256Preimages, preimage,
				)
			case Hash160PreimageType:
				pi.Hash160Preimages = append(
					pi.Hash160Preimages, preimage,
				)
			case Hash256PreimageType:
				pi.Hash256Preimages = append(
					pi.Hash256Preimages, preimage,
				)
			}

		case RequiredTimeLocktimeType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			if len(kvPair.valueData) != 4 {
				return ErrInvalidKeyData
			}
			lockTime := binary.LittleEndian.Uint32(
				kvPair.valueData,
			)
			if lockTime < lockTimeThreshold {
				return ErrInvalidPsktFormat
			}
			pi.RequiredTimeLocktime = &lockTime

		case RequiredHeightLocktimeType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			if len(kvPair.valueData) != 4 {
				return ErrInvalidKeyData
			}
			lockTime := binary.LittleEndian.Uint32(
				kvPair.valueData,
			)
			if lockTime >= lockTimeThreshold {
				return ErrInvalidPsktFormat
			}
			pi.RequiredHeightLocktime = &lockTime

		case TaprootKeySpendSignatureType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}

			// The signature can either be 64 or 65 bytes.
			switch {
			case len(kvPair.valueData) == schnorrSigMinLength:
				if !validateSchnorrSignature(
					kvPair.valueData,
				) {

					return ErrInvalidKeyData
				}

			case len(kvPair.valueData) == schnorrSigMaxLength:
				if !validateSchnorrSignature(
					kvPair.valueData[:schnorrSigMinLength],
				) {

					return ErrInvalidKeyData
				}

			default:
				return ErrInvalidKeyData
			}
			pi.TaprootKeySpendSig = kvPair.valueData

		case TaprootScriptSpendSignatureType:
			// The key data for the script spend signature is:
			//   <xonlypubkey> <leafhash>
			if len(kvPair.keyData) != 2*xOnlyKeyLength {
				return ErrInvalidKeyData
			}

			newPartialSig := TaprootScriptSpendSig{
				XOnlyPubKey: kvPair.keyData[:xOnlyKeyLength],
				LeafHash:    kvPair.keyData[xOnlyKeyLength:],
			}

			// The signature can either be 64 or 65 bytes.
			switch {
			case len(kvPair.valueData) == schnorrSigMinLength:
				newPartialSig.Signature = kvPair.valueData
				newPartialSig.SigHash = txscript.SigHashDefault

			case len(kvPair.valueData) == schnorrSigMaxLength:
				sigLen := schnorrSigMinLength
				newPartialSig.Signature =
					kvPair.valueData[0:sigLen]
				newPartialSig.SigHash = txscript.SigHashType(
					kvPair.valueData[schnorrSigMinLength],
				)

			default:
				return ErrInvalidKeyData
			}

			if !newPartialSig.checkValid() {
				return ErrInvalidKeyData
			}
			pi.TaprootScriptSpendSig = append(
				pi.TaprootScriptSpendSig, &newPartialSig,
			)

		case TaprootLeafScriptType:
			if len(kvPair.valueData) < 1 {
				return ErrInvalidKeyData
			}

			newLeafScript := TaprootTapLeafScript{
				ControlBlock: kvPair.keyData,
				Script: kvPair.valueData[:len(
					kvPair.valueData)-1],
				LeafVersion: txscript.TapscriptLeafVersion(
					kvPair.valueData[len(
						kvPair.valueData)-1],
				),
			}
			if !newLeafScript.checkValid() {
				return ErrInvalidKeyData
			}
			pi.TaprootLeafScript = append(
				pi.TaprootLeafScript, &newLeafScript,
			)

		case TaprootBip32DerivationInputType:
			if !validateXOnlyPubkey(kvPair.keyData) {
				return ErrInvalidKeyData
			}
			taprootDerivation, err := ReadTaprootBip32Derivation(
				kvPair.keyData, kvPair.valueData,
			)
			if err != nil {
				return err
			}
			pi.TaprootBip32Derivation = append(
				pi.TaprootBip32Derivation, taprootDerivation,
			)

		case TaprootInternalKeyInputType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			if !validateXOnlyPubkey(kvPair.valueData) {
				return ErrInvalidKeyData
			}
			pi.TaprootInternalKey = kvPair.valueData

		case TaprootMerkleRootType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			pi.TaprootMerkleRoot = kvPair.valueData

		default:
			// A fall through case for any proprietary types.
			keyCodeAndData := append(
				[]byte{kvPair.keyType}, kvPair.keyData...,
			)
			newUnknown := &Unknown{
				Key:   keyCodeAndData,
				Value: kvPair.valueData,
			}
			pi.Unknowns = append(pi.Unknowns, newUnknown)
		}
	}

	return nil
}

// serialize attempts to serialize the target PInput into the passed writer.
func (pi *PInput) serialize(w io.Writer) error {
	if !pi.IsSane() {
		return ErrInvalidPsktFormat
	}

	if pi.NonWitnessUtxo != nil {
		var buf bytes.Buffer
		if err := pi.NonWitnessUtxo.Serialize(&buf); err != nil {
			return err
		}

		err := serializeKVPairWithType(
			w, uint64(NonWitnessUtxoType), nil, buf.Bytes(),
		)
		if err != nil {
			return err
		}
	}
	if pi.WitnessUtxo != nil {
		var buf bytes.Buffer
		err := wire.WriteTxOut(&buf, 0, 0, pi.WitnessUtxo)
		if err != nil {
			return err
		}

		err = serializeKVPairWithType(
			w, uint64(WitnessUtxoType), nil, buf.Bytes(),
		)
		if err != nil {
			return err
		}
	}

	// Only a non-final input carries its working material; once final
	// satisfaction data exists everything else has been discarded.
	if pi.FinalScriptSig == nil && pi.FinalScriptWitness == nil {
		sort.Sort(PartialSigSorter(pi.PartialSigs))
		for _, ps := range pi.PartialSigs {
			err := serializeKVPairWithType(
				w, uint64(PartialSigType), ps.PubKey,
				ps.Signature,
			)
			if err != nil {
				return err
			}
		}

		if pi.SighashType != 0 {
			var shtBytes [4]byte
			binary.LittleEndian.PutUint32(
				shtBytes[:], uint32(pi.SighashType),
			)

			err := serializeKVPairWithType(
				w, uint64(SighashType), nil, shtBytes[:],
			)
			if err != nil {
				return err
			}
		}

		if pi.RedeemScript != nil {
			err := serializeKVPairWithType(
				w, uint64(RedeemScriptInputType), nil,
				pi.RedeemScript,
			)
			if err != nil {
				return err
			}
		}

		if pi.WitnessScript != nil {
			err := serializeKVPairWithType(
				w, uint64(WitnessScriptInputType), nil,
				pi.WitnessScript,
			)
			if err != nil {
				return err
			}
		}

		sort.Sort(Bip32Sorter(pi.Bip32Derivation))
		for _, kd := range pi.Bip32Derivation {
			err := serializeKVPairWithType(
				w, uint64(Bip32DerivationInputType),
				kd.PubKey,
				SerializeBIP32Derivation(
					kd.MasterKeyFingerprint,
					kd.Bip32Path,
				),
			)
			if err != nil {
				return err
			}
		}

		if pi.PorCommitment != nil {
			err := serializeKVPairWithType(
				w, uint64(PorCommitmentType), nil,
				pi.PorCommitment,
			)
			if err != nil {
				return err
			}
		}

		preimageSets := []struct {
			keyType   InputType
			preimages []*HashPreimage
		}{
			{Ripemd160PreimageType, pi.Ripemd160Preimages},
			{Sha256PreimageType, pi.Sha256Preimages},
			{Hash160PreimageType, pi.Hash160Preimages},
			{Hash256PreimageType, pi.Hash256Preimages},
		}
		for _, set := range preimageSets {
			sort.Sort(preimageSorter(set.preimages))
			for _, preimage := range set.preimages {
				err := serializeKVPairWithType(
					w, uint64(set.keyType),
					preimage.Hash, preimage.Preimage,
				)
				if err != nil {
					return err
				}
			}
		}

		if pi.RequiredTimeLocktime != nil {
			var ltBytes [4]byte
			binary.LittleEndian.PutUint32(
				ltBytes[:], *pi.RequiredTimeLocktime,
			)

			err := serializeKVPairWithType(
				w, uint64(RequiredTimeLocktimeType), nil,
				ltBytes[:],
			)
			if err != nil {
				return err
			}
		}

		if pi.RequiredHeightLocktime != nil {
			var ltBytes [4]byte
			binary.LittleEndian.PutUint32(
				ltBytes[:], *pi.RequiredHeightLocktime,
			)

			err := serializeKVPairWithType(
				w, uint64(RequiredHeightLocktimeType), nil,
				ltBytes[:],
			)
			if err != nil {
				return err
			}
		}

		if pi.TaprootKeySpendSig != nil {
			err := serializeKVPairWithType(
				w, uint64(TaprootKeySpendSignatureType), nil,
				pi.TaprootKeySpendSig,
			)
			if err != nil {
				return err
			}
		}

		sort.Slice(pi.TaprootScriptSpendSig, func(i, j int) bool {
			return pi.TaprootScriptSpendSig[i].SortBefore(
				pi.TaprootScriptSpendSig[j],
			)
		})
		for _, scriptSpend := range pi.TaprootScriptSpendSig {
			keyData := append(
				[]byte{}, scriptSpend.XOnlyPubKey...,
			)
			keyData = append(keyData, scriptSpend.LeafHash...)
			err := serializeKVPairWithType(
				w, uint64(TaprootScriptSpendSignatureType),
				keyData, scriptSpend.SerializeSignature(),
			)
			if err != nil {
				return err
			}
		}

		sort.Slice(pi.TaprootLeafScript, func(i, j int) bool {
			return pi.TaprootLeafScript[i].SortBefore(
				pi.TaprootLeafScript[j],
			)
		})
		for _, leafScript := range pi.TaprootLeafScript {
			value := append([]byte{}, leafScript.Script...)
			value = append(value, byte(leafScript.LeafVersion))
			err := serializeKVPairWithType(
				w, uint64(TaprootLeafScriptType),
				leafScript.ControlBlock, value,
			)
			if err != nil {
				return err
			}
		}

		sort.Slice(pi.TaprootBip32Derivation, func(i, j int) bool {
			return pi.TaprootBip32Derivation[i].SortBefore(
				pi.TaprootBip32Derivation[j],
			)
		})
		for _, derivation := range pi.TaprootBip32Derivation {
			value, err := SerializeTaprootBip32Derivation(
				derivation,
			)
			if err != nil {
				return err
			}

			err = serializeKVPairWithType(
				w, uint64(TaprootBip32DerivationInputType),
				derivation.XOnlyPubKey, value,
			)
			if err != nil {
				return err
			}
		}

		if pi.TaprootInternalKey != nil {
			err := serializeKVPairWithType(
				w, uint64(TaprootInternalKeyInputType), nil,
				pi.TaprootInternalKey,
			)
			if err != nil {
				return err
			}
		}

		if pi.TaprootMerkleRoot != nil {
			err := serializeKVPairWithType(
				w, uint64(TaprootMerkleRootType), nil,
				pi.TaprootMerkleRoot,
			)
			if err != nil {
				return err
			}
		}
	}

	if pi.FinalScriptSig != nil {
		err := serializeKVPairWithType(
			w, uint64(FinalScriptSigType), nil, pi.FinalScriptSig,
		)
		if err != nil {
			return err
		}
	}

	if pi.FinalScriptWitness != nil {
		err := serializeKVPairWithType(
			w, uint64(FinalScriptWitnessType), nil,
			pi.FinalScriptWitness,
		)
		if err != nil {
			return err
		}
	}

	// Unknown is a special case; we don't have a key type, only a key
	// and a value field.
	for _, kv := range pi.Unknowns {
		if err := serializeKVpair(w, kv.Key, kv.Value); err != nil {
			return err
		}
	}

	separator := []byte{0x00}
	if _, err := w.Write(separator); err != nil {
		return err
	}

	return nil
}
