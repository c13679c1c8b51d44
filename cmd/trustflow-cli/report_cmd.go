package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"trustflow/indexer"
	"trustflow/native/lending"
	"trustflow/rpc"
)

const reportPageSize = 100

var reportClock = time.Now

func runReportCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, reportUsage())
		return 1
	}
	switch args[0] {
	case "export":
		return runReportExport(args[1:], stdout, stderr)
	case "verify":
		return runReportVerify(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown report subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, reportUsage())
		return 1
	}
}

func runReportExport(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("report export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "", "directory to write the report into")
	status := fs.String("status", "", "only include loans in this status")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	dir := strings.TrimSpace(*out)
	if dir == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		return 1
	}
	filter := strings.TrimSpace(*status)
	if filter != "" {
		parsed, err := lending.ParseLoanStatus(filter)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		filter = parsed.String()
	}
	rows, err := fetchLoanBook(filter)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	manifest, err := indexer.WriteReport(dir, rows, reportClock())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_ = writeJSON(stdout, manifest)
	return 0
}

func runReportVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("report verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", "", "report directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*dir) == "" {
		fmt.Fprintln(stderr, "Error: --dir is required")
		return 1
	}
	manifest, err := indexer.VerifyReport(strings.TrimSpace(*dir))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "report verified: %d rows, %d files\n", manifest.Rows, len(manifest.Files))
	return 0
}

// fetchLoanBook pages through every loan on the node and counts the
// investments of each funded one.
func fetchLoanBook(status string) ([]indexer.LoanRow, error) {
	var rows []indexer.LoanRow
	for offset := uint64(0); ; offset += reportPageSize {
		var page rpc.LoansResult
		params := []interface{}{map[string]uint64{"offset": offset, "limit": reportPageSize}}
		if err := callInto("lending_getLoans", params, &page); err != nil {
			return nil, err
		}
		for _, loan := range page.Loans {
			if status != "" && loan.Status != status {
				continue
			}
			row := loanRowFrom(loan)
			if loan.TotalFunded != "0" && loan.TotalFunded != "" {
				var investments []rpc.InvestmentResult
				if err := callInto("lending_getLoanInvestments", []interface{}{loan.ID}, &investments); err != nil {
					return nil, err
				}
				row.Investments = len(investments)
			}
			rows = append(rows, row)
		}
		if len(page.Loans) < reportPageSize || offset+reportPageSize >= page.Total {
			return rows, nil
		}
	}
}

func loanRowFrom(loan rpc.LoanResult) indexer.LoanRow {
	return indexer.LoanRow{
		LoanID:          loan.ID,
		Borrower:        loan.Borrower,
		Amount:          loan.Amount,
		InterestRateBps: loan.InterestRateBps,
		TermMonths:      loan.TermMonths,
		RiskScore:       loan.RiskScore,
		Purpose:         loan.Purpose,
		Status:          loan.Status,
		TotalFunded:     loan.TotalFunded,
		TotalRepaid:     loan.TotalRepaid,
		MonthlyPayment:  loan.MonthlyPayment,
		PlatformFee:     loan.PlatformFee,
		OpenedAt:        loan.CreatedAt,
		FundedAt:        loan.FundedAt,
	}
}

func reportUsage() string {
	return strings.TrimSpace(`Usage:
  trustflow-cli report <command> [flags]

Commands:
  export  Write the loan book as CSV and Parquet with a manifest (--out DIR [--status S])
  verify  Check a report directory against its manifest (--dir DIR)
`)
}
