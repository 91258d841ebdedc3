// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/jessevdk/go-flags"
	"github.com/koyotecoin/koyotecoin/pskt"
)

type combineCommand struct{}

func newCombineCommand() *combineCommand {
	return &combineCommand{}
}

func (x *combineCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"combine",
		"Merge multiple PSKTs sharing one unsigned transaction",
		"Combine all the base64 PSKTs given as arguments into a "+
			"single packet carrying the union of their entries "+
			"and print its base64 encoding; all packets must "+
			"embed the same unsigned transaction",
		x,
	)
	return err
}

func (x *combineCommand) Execute(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("at least one PSKT argument is required")
	}

	packets := make([]*pskt.Packet, 0, len(args))
	for _, arg := range args {
		packet, err := pskt.NewFromBase64(arg)
		if err != nil {
			return fmt.Errorf("error decoding PSKT: %w", err)
		}
		packets = append(packets, packet)
	}

	combined, err := pskt.Combine(packets...)
	if err != nil {
		return fmt.Errorf("error combining: %w", err)
	}

	encoded, err := combined.B64Encode()
	if err != nil {
		return err
	}
	fmt.Println(encoded)

	return nil
}
