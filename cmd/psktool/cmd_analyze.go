// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/koyotecoin/koyotecoin/pkg/txunit"
	"github.com/koyotecoin/koyotecoin/pskt"
)

type analyzeCommand struct{}

func newAnalyzeCommand() *analyzeCommand {
	return &analyzeCommand{}
}

func (x *analyzeCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"analyze",
		"Report where in the signing pipeline a PSKT sits",
		"Analyze the base64 PSKT given as argument (or on stdin) "+
			"and report, per input and for the whole packet, the "+
			"role that needs to act on it next, along with the "+
			"fee and size estimates where they can be computed",
		x,
	)
	return err
}

func (x *analyzeCommand) Execute(args []string) error {
	packet, err := readPacket(args)
	if err != nil {
		return err
	}

	analysis := pskt.Analyze(packet)
	if analysis.Error != "" {
		fmt.Printf("error: %s\n", analysis.Error)
		fmt.Printf("next: %v\n", analysis.Next)
		return nil
	}

	for i, in := range analysis.Inputs {
		fmt.Printf("input %d: has_utxo=%v is_final=%v next=%v\n",
			i, in.HasUtxo, in.IsFinal, in.Next)

		for _, hash := range in.MissingPubkeys {
			fmt.Printf("  missing pubkey %x\n", hash)
		}
		for _, hash := range in.MissingSigs {
			fmt.Printf("  missing signature for %x\n", hash)
		}
		if in.MissingRedeemScript != nil {
			fmt.Printf("  missing redeem script %x\n",
				in.MissingRedeemScript)
		}
		if in.MissingWitnessScript != nil {
			fmt.Printf("  missing witness script %x\n",
				in.MissingWitnessScript)
		}
	}

	fmt.Printf("next: %v\n", analysis.Next)
	analysis.Fee.WhenSome(func(fee btcutil.Amount) {
		fmt.Printf("fee: %v\n", fee)
	})
	analysis.EstimatedVSize.WhenSome(func(vsize txunit.VByte) {
		fmt.Printf("estimated vsize: %v\n", vsize)
	})
	analysis.EstimatedFeeRate.WhenSome(func(rate txunit.SatPerKVByte) {
		fmt.Printf("estimated feerate: %v\n", rate)
	})

	return nil
}
