package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("TRUSTFLOW_RPC_TOKEN")

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygenCommand(args[1:], stdout, stderr)
	case "address":
		return runAddressCommand(args[1:], stdout, stderr)
	case "loan":
		return runLoanCommand(args[1:], stdout, stderr)
	case "admin":
		return runAdminCommand(args[1:], stdout, stderr)
	case "transfer":
		return runTransferCommand(args[1:], stdout, stderr)
	case "balance":
		return runAddressQuery("balance", "tf_getBalance", args[1:], stdout, stderr)
	case "account":
		return runAddressQuery("account", "tf_getAccount", args[1:], stdout, stderr)
	case "ledger":
		return runLedgerCommand(args[1:], stdout, stderr)
	case "events":
		return runEventsCommand(args[1:], stdout, stderr)
	case "risk":
		return runRiskCommand(args[1:], stdout, stderr)
	case "report":
		return runReportCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8545/rpc"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func usage() string {
	return strings.TrimSpace(`Usage:
  trustflow-cli [--rpc URL] <command> [flags]

Commands:
  keygen     Create a new key in an encrypted keystore
  address    Print the address of a keystore
  loan       Create, manage and inspect loans
  admin      Owner operations: fees, withdrawals, ownership
  transfer   Send native units to an address
  balance    Show the balance of an address
  account    Show the nonce and balance of an address
  ledger     Show the lending ledger summary
  events     Page through the event log
  risk       Quote a risk score and interest rate for a profile
  report     Export or verify a loan-book report

Environment:
  RPC_URL               JSON-RPC endpoint (default http://localhost:8545/rpc)
  TRUSTFLOW_RPC_TOKEN   bearer token for lending_sendTransaction
  TRUSTFLOW_KEY_PASS    keystore passphrase, prompted when unset
`)
}
