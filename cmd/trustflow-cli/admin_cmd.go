package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"trustflow/core/types"
	"trustflow/crypto"
)

func runAdminCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
	switch args[0] {
	case "set-fee":
		return runAdminSetFee(args[1:], stdout, stderr)
	case "withdraw":
		return runAdminAddressTx("withdraw", types.TxTypeWithdrawFees, args[1:], stdout, stderr)
	case "transfer-owner":
		return runAdminAddressTx("transfer-owner", types.TxTypeTransferOwnership, args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown admin subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, adminUsage())
		return 1
	}
}

func runAdminSetFee(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("admin set-fee", flag.ContinueOnError)
	fs.SetOutput(stderr)
	keyPath := fs.String("key", "", "owner keystore")
	bps := fs.Uint64("bps", 0, "platform fee in basis points")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !flagWasProvided(fs, "bps") {
		fmt.Fprintln(stderr, "Error: --bps is required")
		return 1
	}
	return sendTx(txRequest{KeyPath: *keyPath, Type: types.TxTypeSetPlatformFee, Payload: types.PlatformFeePayload{FeeBps: *bps}}, stdout, stderr)
}

func runAdminAddressTx(name string, txType types.TxType, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("admin "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	keyPath := fs.String("key", "", "owner keystore")
	to := fs.String("to", "", "recipient bech32 address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := requireAddress(*to, "to")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return sendTx(txRequest{KeyPath: *keyPath, Type: txType, Payload: types.AddressPayload{Address: addr.String()}}, stdout, stderr)
}

func runTransferCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("transfer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	keyPath := fs.String("key", "", "sender keystore")
	to := fs.String("to", "", "recipient bech32 address")
	amount := fs.String("amount", "", "amount in whole units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := requireAddress(*to, "to")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	value, err := parseAmountFlag("amount", strings.TrimSpace(*amount))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return sendTx(txRequest{KeyPath: *keyPath, Type: types.TxTypeTransfer, To: addr.Bytes(), Value: value}, stdout, stderr)
}

func requireAddress(raw, flagName string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("--%s is required", flagName)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	return addr, nil
}

func adminUsage() string {
	return strings.TrimSpace(`Usage:
  trustflow-cli admin <command> [flags]

Commands:
  set-fee         Set the platform fee (--key --bps)
  withdraw        Withdraw accrued platform fees (--key --to)
  transfer-owner  Hand the ledger to a new owner (--key --to)
`)
}
