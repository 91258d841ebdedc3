// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/jessevdk/go-flags"
	"github.com/koyotecoin/koyotecoin/pskt"
)

type extractCommand struct{}

func newExtractCommand() *extractCommand {
	return &extractCommand{}
}

func (x *extractCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"extract",
		"Extract the final network transaction from a complete PSKT",
		"Extract the fully signed transaction from the base64 PSKT "+
			"given as argument (or on stdin) and print its "+
			"network serialization as hex; fails if any input is "+
			"not final",
		x,
	)
	return err
}

func (x *extractCommand) Execute(args []string) error {
	packet, err := readPacket(args)
	if err != nil {
		return err
	}

	finalTx, err := pskt.Extract(packet)
	if err != nil {
		return fmt.Errorf("error extracting: %w", err)
	}

	var buf bytes.Buffer
	if err := finalTx.Serialize(&buf); err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(buf.Bytes()))

	return nil
}
