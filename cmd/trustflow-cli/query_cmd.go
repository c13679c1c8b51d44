package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

func runAddressQuery(name, method string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "bech32 address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	decoded, err := requireAddress(*addr, "addr")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return runRPC(method, []interface{}{decoded.String()}, false, stdout, stderr)
}

func runLedgerCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "Error: ledger takes no arguments")
		return 1
	}
	return runRPC("lending_getLedger", nil, false, stdout, stderr)
}

func runEventsCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cursor := fs.Uint64("cursor", 0, "first sequence to return")
	limit := fs.Uint64("limit", 20, "page size")
	eventType := fs.String("type", "", "only return events of this type")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	query := map[string]interface{}{"cursor": *cursor, "limit": *limit}
	if trimmed := strings.TrimSpace(*eventType); trimmed != "" {
		query["type"] = trimmed
	}
	return runRPC("lending_getEvents", []interface{}{query}, false, stdout, stderr)
}
