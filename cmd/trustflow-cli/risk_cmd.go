package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"trustflow/native/lending"
	"trustflow/risk"
)

var stdin io.Reader = os.Stdin

func runRiskCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "quote" {
		fmt.Fprintln(stderr, riskUsage())
		return 1
	}
	fs := flag.NewFlagSet("risk quote", flag.ContinueOnError)
	fs.SetOutput(stderr)
	profilePath := fs.String("profile", "", "JSON profile file, or - for stdin")
	term := fs.Uint64("term", risk.SuggestedTerm, "loan term in months")
	local := fs.Bool("local", false, "score locally instead of asking the node")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	profile, err := readProfile(strings.TrimSpace(*profilePath))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *term < lending.MinTermMonths || *term > lending.MaxTermMonths {
		fmt.Fprintf(stderr, "Error: --term must be within %d-%d months\n", lending.MinTermMonths, lending.MaxTermMonths)
		return 1
	}
	if !*local {
		params := map[string]interface{}{"profile": profile, "termMonths": *term}
		return runRPC("risk_quote", []interface{}{params}, false, stdout, stderr)
	}
	result := risk.Score(profile)
	result.APR = risk.APR(result.Score, *term, profile.CollateralPercentage)
	out := struct {
		risk.Result
		TermMonths      uint64 `json:"termMonths"`
		InterestRateBps uint64 `json:"interestRateBps"`
	}{result, *term, risk.InterestRateBps(result.Score, *term, profile.CollateralPercentage)}
	if err := writeJSON(stdout, out); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func readProfile(path string) (risk.Input, error) {
	var profile risk.Input
	if path == "" {
		return profile, fmt.Errorf("--profile is required")
	}
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return profile, fmt.Errorf("read profile: %w", err)
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&profile); err != nil {
		return profile, fmt.Errorf("decode profile: %w", err)
	}
	return profile, nil
}

func riskUsage() string {
	return strings.TrimSpace(`Usage:
  trustflow-cli risk quote --profile FILE [--term N] [--local]
`)
}
