package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"trustflow/core/types"
)

func runLoanCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, loanUsage())
		return 1
	}
	switch args[0] {
	case "create":
		return runLoanCreate(args[1:], stdout, stderr)
	case "approve":
		return runLoanAction("approve", types.TxTypeApproveLoan, args[1:], stdout, stderr)
	case "reject":
		return runLoanAction("reject", types.TxTypeRejectLoan, args[1:], stdout, stderr)
	case "default":
		return runLoanAction("default", types.TxTypeMarkDefaulted, args[1:], stdout, stderr)
	case "fund":
		return runLoanPayment("fund", types.TxTypeFundLoan, args[1:], stdout, stderr)
	case "repay":
		return runLoanPayment("repay", types.TxTypeRepayLoan, args[1:], stdout, stderr)
	case "show":
		return runLoanQuery("show", "lending_getLoan", args[1:], stdout, stderr)
	case "owed":
		return runLoanQuery("owed", "lending_getTotalOwed", args[1:], stdout, stderr)
	case "investments":
		return runLoanQuery("investments", "lending_getLoanInvestments", args[1:], stdout, stderr)
	case "repayments":
		return runLoanQuery("repayments", "lending_getLoanRepayments", args[1:], stdout, stderr)
	case "payouts":
		return runLoanQuery("payouts", "lending_getLoanPayouts", args[1:], stdout, stderr)
	case "list":
		return runLoanList(args[1:], stdout, stderr)
	case "borrowed":
		return runAddressQuery("loan borrowed", "lending_getBorrowerLoanIds", args[1:], stdout, stderr)
	case "funded":
		return runAddressQuery("loan funded", "lending_getLenderInvestmentIds", args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown loan subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, loanUsage())
		return 1
	}
}

func runLoanCreate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("loan create", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keyPath, amount, purpose string
	var rate, term, score uint64
	fs.StringVar(&keyPath, "key", "", "borrower keystore")
	fs.StringVar(&amount, "amount", "", "principal in whole units")
	fs.Uint64Var(&rate, "rate", 0, "interest rate in basis points")
	fs.Uint64Var(&term, "term", 0, "term in months (1-24)")
	fs.Uint64Var(&score, "risk-score", 0, "risk score recorded with the loan")
	fs.StringVar(&purpose, "purpose", "", "free-form purpose")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	principal, err := parseAmountFlag("amount", strings.TrimSpace(amount))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if term == 0 {
		fmt.Fprintln(stderr, "Error: --term is required")
		return 1
	}
	return sendTx(txRequest{
		KeyPath: keyPath,
		Type:    types.TxTypeCreateLoan,
		Payload: types.CreateLoanPayload{
			Amount:          principal,
			InterestRateBps: rate,
			TermMonths:      term,
			RiskScore:       score,
			Purpose:         strings.TrimSpace(purpose),
		},
	}, stdout, stderr)
}

func loanIDFlags(name string, stderr io.Writer) (*flag.FlagSet, *string, *uint64) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	keyPath := fs.String("key", "", "signer keystore")
	loanID := fs.Uint64("loan", 0, "loan id")
	return fs, keyPath, loanID
}

func flagWasProvided(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func runLoanAction(name string, txType types.TxType, args []string, stdout, stderr io.Writer) int {
	fs, keyPath, loanID := loanIDFlags("loan "+name, stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !flagWasProvided(fs, "loan") {
		fmt.Fprintln(stderr, "Error: --loan is required")
		return 1
	}
	return sendTx(txRequest{KeyPath: *keyPath, Type: txType, Payload: types.LoanIDPayload{LoanID: *loanID}}, stdout, stderr)
}

func runLoanPayment(name string, txType types.TxType, args []string, stdout, stderr io.Writer) int {
	fs, keyPath, loanID := loanIDFlags("loan "+name, stderr)
	amount := fs.String("amount", "", "amount in whole units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !flagWasProvided(fs, "loan") {
		fmt.Fprintln(stderr, "Error: --loan is required")
		return 1
	}
	value, err := parseAmountFlag("amount", strings.TrimSpace(*amount))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return sendTx(txRequest{KeyPath: *keyPath, Type: txType, Payload: types.LoanIDPayload{LoanID: *loanID}, Value: value}, stdout, stderr)
}

func runLoanQuery(name, method string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("loan "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	loanID := fs.Uint64("loan", 0, "loan id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !flagWasProvided(fs, "loan") {
		fmt.Fprintln(stderr, "Error: --loan is required")
		return 1
	}
	return runRPC(method, []interface{}{*loanID}, false, stdout, stderr)
}

func runLoanList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("loan list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	offset := fs.Uint64("offset", 0, "first loan id")
	limit := fs.Uint64("limit", 20, "page size")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return runRPC("lending_getLoans", []interface{}{map[string]uint64{"offset": *offset, "limit": *limit}}, false, stdout, stderr)
}

func loanUsage() string {
	return strings.TrimSpace(`Usage:
  trustflow-cli loan <command> [flags]

Commands:
  create       Request a loan (--key --amount --rate --term [--risk-score --purpose])
  approve      Approve a pending loan (owner)
  reject       Reject a pending loan (owner)
  default      Mark an active loan defaulted (owner)
  fund         Fund an approved loan (--key --loan --amount)
  repay        Repay an active loan (--key --loan --amount)
  show         Show a loan
  owed         Show total and remaining owed
  investments  List investments in a loan
  repayments   List repayments of a loan
  payouts      List lender payouts of a loan
  list         Page through loans
  borrowed     Loan ids requested by --addr
  funded       Loan ids funded by --addr
`)
}
