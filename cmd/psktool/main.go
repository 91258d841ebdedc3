// Copyright (c) 2023 The Koyotecoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// psktool is a command line tool for inspecting and manipulating partially
// signed koyotecoin transactions (PSKTs) in their base64 text transport
// form.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jessevdk/go-flags"
	"github.com/koyotecoin/koyotecoin/pskt"
)

const defaultLogLevel = "info"

type globalOptions struct {
	DebugLevel string `long:"debuglevel" description:"Logging level, one of {trace, debug, info, warn, error, critical, off}"`
}

// subCommand is the interface all psktool subcommands register themselves
// through.
type subCommand interface {
	Register(parser *flags.Parser) error
}

func main() {
	globalOpts := &globalOptions{
		DebugLevel: defaultLogLevel,
	}

	parser := flags.NewParser(
		globalOpts, flags.HelpFlag|flags.PassDoubleDash,
	)

	// Logging goes to stderr so that the actual command output on stdout
	// stays pipeable.
	backend := btclog.NewBackend(os.Stderr)
	logger := backend.Logger("PSKT")

	parser.CommandHandler = func(command flags.Commander,
		args []string) error {

		level, ok := btclog.LevelFromString(globalOpts.DebugLevel)
		if !ok {
			return fmt.Errorf("invalid log level %q",
				globalOpts.DebugLevel)
		}
		logger.SetLevel(level)
		pskt.UseLogger(logger)

		return command.Execute(args)
	}

	commands := []subCommand{
		newCreateCommand(),
		newDecodeCommand(),
		newAnalyzeCommand(),
		newCombineCommand(),
		newFinalizeCommand(),
		newExtractCommand(),
	}
	for _, command := range commands {
		if err := command.Register(parser); err != nil {
			fmt.Fprintf(os.Stderr, "unable to register "+
				"command: %v\n", err)
			os.Exit(1)
		}
	}

	if _, err := parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}

		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// readPacket reads a packet from the first positional argument, or from
// stdin when no argument is given, and decodes it from base64.
func readPacket(args []string) (*pskt.Packet, error) {
	encoded, err := readPacketString(args)
	if err != nil {
		return nil, err
	}

	packet, err := pskt.NewFromBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("error decoding PSKT: %w", err)
	}

	return packet, nil
}

// readPacketString returns the base64 text of a packet from the first
// positional argument, falling back to stdin.
func readPacketString(args []string) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(args[0]), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && len(line) == 0 {
		return "", fmt.Errorf("error reading PSKT from stdin: %w", err)
	}

	return strings.TrimSpace(line), nil
}
