// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/jessevdk/go-flags"
	"github.com/koyotecoin/koyotecoin/pskt"
)

type finalizeCommand struct{}

func newFinalizeCommand() *finalizeCommand {
	return &finalizeCommand{}
}

func (x *finalizeCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"finalize",
		"Finalize all satisfiable inputs of a PSKT",
		"Attempt to finalize every input of the base64 PSKT given "+
			"as argument (or on stdin), print the resulting "+
			"base64 encoding and report which inputs remain "+
			"unfinalized",
		x,
	)
	return err
}

func (x *finalizeCommand) Execute(args []string) error {
	packet, err := readPacket(args)
	if err != nil {
		return err
	}

	results, complete := pskt.FinalizeAll(packet)
	for i, final := range results {
		if !final {
			fmt.Printf("input %d: not finalizable\n", i)
		}
	}

	encoded, err := packet.B64Encode()
	if err != nil {
		return err
	}
	fmt.Println(encoded)

	if !complete {
		return fmt.Errorf("not all inputs could be finalized")
	}

	return nil
}
