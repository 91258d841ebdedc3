// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txunit provides a set of types for dealing with transaction size
// and fee rate units.
package txunit

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
)

// kilo is a generic multiplier for kilo units.
const kilo = 1000

// baseSize stores the canonical representation of a transaction size, which
// is weight units (wu). All other size units are derived from this.
type baseSize struct {
	wu uint64
}

// ToWU converts the unit to a WeightUnit.
func (b baseSize) ToWU() WeightUnit {
	return WeightUnit{b}
}

// ToVB converts the unit to a VByte.
func (b baseSize) ToVB() VByte {
	return VByte{b}
}

// ToKVB converts the unit to a KVByte.
func (b baseSize) ToKVB() KVByte {
	return KVByte{b}
}

// WeightUnit defines a unit to express the transaction size. One weight unit
// is 1/4_000_000 of the max block size. The tx weight is calculated using
// `Base tx size * 3 + Total tx size`.
//   - Base tx size is size of the transaction serialized without the witness
//     data.
//   - Total tx size is the transaction size in bytes serialized according
//     #BIP144.
type WeightUnit struct {
	// The internal size is recorded in weight units.
	baseSize
}

// NewWeightUnit creates a new WeightUnit from a uint64 value.
func NewWeightUnit(val uint64) WeightUnit {
	return WeightUnit{baseSize{wu: val}}
}

// String returns the string representation of the weight unit.
func (w WeightUnit) String() string {
	return fmt.Sprintf("%d wu", w.wu)
}

// VByte defines a unit to express the transaction size. One virtual byte is
// 1/4th of a weight unit. The tx virtual bytes is calculated using
// `TxWeight / 4`.
type VByte struct {
	// The internal size is recorded in weight units.
	baseSize
}

// NewVByte creates a new VByte from a uint64 value.
func NewVByte(val uint64) VByte {
	return VByte{baseSize{wu: val * blockchain.WitnessScaleFactor}}
}

// ToUnit returns the size expressed in whole virtual bytes, rounding up.
func (v VByte) ToUnit() uint64 {
	return (v.wu + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor
}

// String returns the string representation of the virtual byte.
func (v VByte) String() string {
	return fmt.Sprintf("%d vb", v.ToUnit())
}

// KVByte defines a unit to express the transaction size in
// kilo-virtual-bytes.
type KVByte struct {
	// The internal size is recorded in weight units.
	baseSize
}

// NewKVByte creates a new KVByte from a uint64.
func NewKVByte(val uint64) KVByte {
	return KVByte{baseSize{
		wu: val * kilo * blockchain.WitnessScaleFactor,
	}}
}

// String returns the string representation of the kilo-virtual-byte.
func (k KVByte) String() string {
	vbytes := (k.wu + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor

	return fmt.Sprintf("%d kvb", vbytes/kilo)
}
