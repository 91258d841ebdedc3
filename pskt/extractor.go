// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pskt

// The Extractor requires provision of a single PSKT in which all necessary
// signatures are encoded, and provides the network serialized transaction
// ready for broadcast.

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
)

// Extract takes a finalized PSKT and outputs a network serializable
// transaction. An error is returned if the packet has any inputs which are
// not fully finalized; the error names the offending input indices.
//
// The packet itself is not modified: the final transaction is assembled on a
// deep copy of the embedded unsigned transaction.
func Extract(p *Packet) (*wire.MsgTx, error) {
	// First, we'll make sure the pskt is finalized, and ready to be
	// extracted.
	if !p.IsComplete() {
		var pending []int
		for i := range p.Inputs {
			if !isFinalized(p, i) {
				pending = append(pending, i)
			}
		}

		return nil, fmt.Errorf("inputs %v not finalized: %w",
			pending, ErrIncompletePskt)
	}

	// Copy the underlying unsigned transaction, as we don't want to
	// mutate the packet when extracting.
	finalTx := p.UnsignedTx.Copy()

	// For each input, we'll now populate any relevant witness and
	// sigScript data.
	for i, tin := range finalTx.TxIn {
		pInput := p.Inputs[i]

		if pInput.FinalScriptSig != nil {
			tin.SignatureScript = pInput.FinalScriptSig
		}

		if pInput.FinalScriptWitness != nil {
			witness, err := deserializeWitness(
				pInput.FinalScriptWitness,
			)
			if err != nil {
				return nil, err
			}
			tin.Witness = witness
		}
	}

	log.Debugf("Extracted final transaction %v", finalTx.TxHash())

	return finalTx, nil
}
