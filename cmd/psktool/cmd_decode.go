// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/jessevdk/go-flags"
)

type decodeCommand struct{}

func newDecodeCommand() *decodeCommand {
	return &decodeCommand{}
}

func (x *decodeCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"decode",
		"Decode a base64 PSKT and dump its fields",
		"Decode the base64 PSKT given as argument (or on stdin) and "+
			"print every field of the packet in a human readable "+
			"form",
		x,
	)
	return err
}

func (x *decodeCommand) Execute(args []string) error {
	packet, err := readPacket(args)
	if err != nil {
		return err
	}

	fmt.Print(spew.Sdump(packet))

	return nil
}
