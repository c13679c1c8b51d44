package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"trustflow/core"
	"trustflow/core/types"
	"trustflow/crypto"
	"trustflow/native/lending"
)

// Genesis is the YAML document describing the initial ledger.
type Genesis struct {
	Owner          string              `yaml:"owner"`
	PlatformFeeBps *uint64             `yaml:"platformFeeBps"`
	Allocations    []GenesisAllocation `yaml:"allocations"`
}

// GenesisAllocation credits Amount, in whole units, to Address.
type GenesisAllocation struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

// LoadGenesis reads and decodes the genesis file at path.
func LoadGenesis(path string) (*Genesis, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genesis: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	var g Genesis
	if err := decoder.Decode(&g); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	return &g, nil
}

// Resolve validates the document and converts it for core.Node.InitGenesis.
// A missing fee defaults to lending.DefaultPlatformFeeBps.
func (g *Genesis) Resolve() (core.Genesis, error) {
	var out core.Genesis
	if g == nil {
		return out, fmt.Errorf("genesis is missing")
	}
	owner, err := crypto.DecodeAddress(strings.TrimSpace(g.Owner))
	if err != nil {
		return out, fmt.Errorf("genesis owner: %w", err)
	}
	if owner.IsZero() {
		return out, fmt.Errorf("genesis owner must not be the zero address")
	}
	out.Owner = owner.Raw()

	out.PlatformFeeBps = lending.DefaultPlatformFeeBps
	if g.PlatformFeeBps != nil {
		out.PlatformFeeBps = *g.PlatformFeeBps
	}
	if out.PlatformFeeBps > lending.MaxPlatformFeeBps {
		return out, fmt.Errorf("genesis platformFeeBps %d exceeds %d", out.PlatformFeeBps, lending.MaxPlatformFeeBps)
	}

	seen := make(map[[20]byte]struct{}, len(g.Allocations))
	for i, alloc := range g.Allocations {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address))
		if err != nil {
			return out, fmt.Errorf("genesis allocation %d: %w", i, err)
		}
		raw := addr.Raw()
		if _, dup := seen[raw]; dup {
			return out, fmt.Errorf("genesis allocation %d: duplicate address %s", i, addr.String())
		}
		seen[raw] = struct{}{}
		amount, err := types.ParseAmount(alloc.Amount)
		if err != nil {
			return out, fmt.Errorf("genesis allocation %d: %w", i, err)
		}
		if amount.Sign() == 0 {
			return out, fmt.Errorf("genesis allocation %d: amount must be positive", i)
		}
		out.Allocations = append(out.Allocations, core.Allocation{Address: raw, Amount: amount})
	}
	return out, nil
}
