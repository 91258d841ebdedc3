// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/jessevdk/go-flags"
	"github.com/koyotecoin/koyotecoin/pskt"
)

type createCommand struct {
	Inputs   []string `long:"in" description:"Input to spend, formatted as txid:vout; can be specified multiple times"`
	Outputs  []string `long:"out" description:"Output to create, formatted as hex_script:amount; can be specified multiple times"`
	Version  int32    `long:"version" description:"Transaction version" default:"2"`
	Locktime uint32   `long:"locktime" description:"Transaction locktime"`
}

func newCreateCommand() *createCommand {
	return &createCommand{}
}

func (x *createCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"create",
		"Create a new PSKT from a transaction skeleton",
		"Build an empty PSKT around the unsigned transaction "+
			"described by the --in and --out flags and print its "+
			"base64 encoding",
		x,
	)
	return err
}

func (x *createCommand) Execute(_ []string) error {
	var inputs []*wire.OutPoint
	for _, in := range x.Inputs {
		outPoint, err := parseOutPoint(in)
		if err != nil {
			return err
		}
		inputs = append(inputs, outPoint)
	}

	var outputs []*wire.TxOut
	for _, out := range x.Outputs {
		txOut, err := parseTxOut(out)
		if err != nil {
			return err
		}
		outputs = append(outputs, txOut)
	}

	packet, err := pskt.New(inputs, outputs, x.Version, x.Locktime)
	if err != nil {
		return fmt.Errorf("error creating PSKT: %w", err)
	}

	encoded, err := packet.B64Encode()
	if err != nil {
		return err
	}
	fmt.Println(encoded)

	return nil
}

// parseOutPoint parses a txid:vout string into an outpoint.
func parseOutPoint(s string) (*wire.OutPoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid input %q, expected txid:vout",
			s)
	}

	hash, err := chainhash.NewHashFromStr(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid txid in input %q: %w", s, err)
	}
	index, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid vout in input %q: %w", s, err)
	}

	return wire.NewOutPoint(hash, uint32(index)), nil
}

// parseTxOut parses a hex_script:amount string into a transaction output.
func parseTxOut(s string) (*wire.TxOut, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid output %q, expected "+
			"hex_script:amount", s)
	}

	pkScript, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid script in output %q: %w", s,
			err)
	}
	amount, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount in output %q: %w", s,
			err)
	}

	return wire.NewTxOut(amount, pkScript), nil
}
