// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

import (
	"encoding/binary"
	"io"
	"sort"
)

// POutput is a struct encapsulating all the data that can be attached to
// any specific output of the PSKT.
type POutput struct {
	RedeemScript           []byte
	WitnessScript          []byte
	Bip32Derivation        []*Bip32Derivation
	Amount                 *int64
	PkScript               []byte
	TaprootInternalKey     []byte
	TaprootTapTree         []byte
	TaprootBip32Derivation []*TaprootBip32Derivation
	Unknowns               []*Unknown
}

// NewPsktOutput creates an instance of PsktOutput; the three parameters
// are all allowed to be `nil`.
func NewPsktOutput(redeemScript []byte, witnessScript []byte,
	bip32Derivation []*Bip32Derivation) *POutput {

	return &POutput{
		RedeemScript:    redeemScript,
		WitnessScript:   witnessScript,
		Bip32Derivation: bip32Derivation,
	}
}

// deserialize attempts to recode a new POutput from the passed reader.
func (po *POutput) deserialize(r io.Reader) error {
	outputKeys := newKeySet()
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
		if !outputKeys.addKey(kvPair.keyType, kvPair.keyData) {
			return ErrDuplicateKey
		}

		switch OutputType(kvPair.keyType) {
		case RedeemScriptOutputType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			po.RedeemScript = kvPair.valueData

		case WitnessScriptOutputType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			po.WitnessScript = kvPair.valueData

		case Bip32DerivationOutputType:
			if !validatePubkey(kvPair.keyData) {
				return ErrInvalidKeyData
			}
			master, derivationPath, err := ReadBip32Derivation(
				kvPair.valueData,
			)
			if err != nil {
				return err
			}

			po.Bip32Derivation = append(
				po.Bip32Derivation,
				&Bip32Derivation{
					PubKey:               kvPair.keyData,
					MasterKeyFingerprint: master,
					Bip32Path:            derivationPath,
				},
			)

		case AmountOutputType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			if len(kvPair.valueData) != 8 {
				return ErrInvalidKeyData
			}
			amount := int64(binary.LittleEndian.Uint64(
				kvPair.valueData,
			))
			po.Amount = &amount

		case ScriptOutputType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			po.PkScript = kvPair.valueData

		case TaprootInternalKeyOutputType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			if !validateXOnlyPubkey(kvPair.valueData) {
				return ErrInvalidKeyData
			}
			po.TaprootInternalKey = kvPair.valueData

		case TaprootTapTreeType:
			if kvPair.keyData != nil {
				return ErrInvalidKeyData
			}
			po.TaprootTapTree = kvPair.valueData

		case TaprootBip32DerivationOutputType:
			if !validateXOnlyPubkey(kvPair.keyData) {
				return ErrInvalidKeyData
			}
			taprootDerivation, err := ReadTaprootBip32Derivation(
				kvPair.keyData, kvPair.valueData,
			)
			if err != nil {
				return err
			}
			po.TaprootBip32Derivation = append(
				po.TaprootBip32Derivation,
				taprootDerivation,
			)

		default:
			// A fall through case for any proprietary types.
			keyCodeAndData := append(
				[]byte{kvPair.keyType}, kvPair.keyData...,
			)
			newUnknown := &Unknown{
				Key:   keyCodeAndData,
				Value: kvPair.valueData,
			}
			po.Unknowns = append(po.Unknowns, newUnknown)
		}
	}

	return nil
}

// serialize attempts to write out the target POutput into the passed writer.
func (po *POutput) serialize(w io.Writer) error {
	if po.RedeemScript != nil {
		err := serializeKVPairWithType(
			w, uint64(RedeemScriptOutputType), nil,
			po.RedeemScript,
		)
		if err != nil {
			return err
		}
	}
	if po.WitnessScript != nil {
		err := serializeKVPairWithType(
			w, uint64(WitnessScriptOutputType), nil,
			po.WitnessScript,
		)
		if err != nil {
			return err
		}
	}

	sort.Sort(Bip32Sorter(po.Bip32Derivation))
	for _, kd := range po.Bip32Derivation {
		err := serializeKVPairWithType(
			w, uint64(Bip32DerivationOutputType),
			kd.PubKey,
			SerializeBIP32Derivation(
				kd.MasterKeyFingerprint, kd.Bip32Path,
			),
		)
		if err != nil {
			return err
		}
	}

	if po.Amount != nil {
		var amtBytes [8]byte
		binary.LittleEndian.PutUint64(
			amtBytes[:], uint64(*po.Amount),
		)
		err := serializeKVPairWithType(
			w, uint64(AmountOutputType), nil, amtBytes[:],
		)
		if err != nil {
			return err
		}
	}

	if po.PkScript != nil {
		err := serializeKVPairWithType(
			w, uint64(ScriptOutputType), nil, po.PkScript,
		)
		if err != nil {
			return err
		}
	}

	if po.TaprootInternalKey != nil {
		err := serializeKVPairWithType(
			w, uint64(TaprootInternalKeyOutputType), nil,
			po.TaprootInternalKey,
		)
		if err != nil {
			return err
		}
	}

	if po.TaprootTapTree != nil {
		err := serializeKVPairWithType(
			w, uint64(TaprootTapTreeType), nil,
			po.TaprootTapTree,
		)
		if err != nil {
			return err
		}
	}

	sort.Slice(po.TaprootBip32Derivation, func(i, j int) bool {
		return po.TaprootBip32Derivation[i].SortBefore(
			po.TaprootBip32Derivation[j],
		)
	})
	for _, derivation := range po.TaprootBip32Derivation {
		value, err := SerializeTaprootBip32Derivation(derivation)
		if err != nil {
			return err
		}

		err = serializeKVPairWithType(
			w, uint64(TaprootBip32DerivationOutputType),
			derivation.XOnlyPubKey, value,
		)
		if err != nil {
			return err
		}
	}

	// Unknown is a special case; we don't have a key type, only a key
	// and a value field.
	for _, kv := range po.Unknowns {
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
