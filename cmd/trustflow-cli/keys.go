package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"trustflow/cmd/internal/passphrase"
	"trustflow/crypto"
)

const keyPassEnv = "TRUSTFLOW_KEY_PASS"

var keyPassphrase = func() (string, error) {
	return passphrase.NewSource(keyPassEnv, "key").Get()
}

func runKeygenCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var out string
	var force bool
	fs.StringVar(&out, "out", "", "path of the keystore file to create")
	fs.BoolVar(&force, "force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	out = strings.TrimSpace(out)
	if out == "" {
		fmt.Fprintln(stderr, "Error: --out is required")
		return 1
	}
	if _, err := os.Stat(out); err == nil && !force {
		fmt.Fprintf(stderr, "Error: %s already exists; pass --force to overwrite\n", out)
		return 1
	}
	pass, err := keyPassphrase()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(out, key, pass); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_ = writeJSON(stdout, map[string]string{"address": key.PubKey().Address().String(), "keystore": out})
	return 0
}

func runAddressCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keyPath string
	fs.StringVar(&keyPath, "key", "", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadSigner(keyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func loadSigner(path string) (*crypto.PrivateKey, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("--key is required")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("keystore %s not found; run trustflow-cli keygen first", path)
		}
		return nil, err
	}
	pass, err := keyPassphrase()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}
