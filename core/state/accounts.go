package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"trustflow/core/types"
)

// ErrBalanceOutOfRange is returned when a balance is negative or does not fit
// in 256 bits.
var ErrBalanceOutOfRange = errors.New("state: balance out of range")

var accountPrefix = []byte("account/")

type storedAccount struct {
	Nonce   uint64
	Balance []byte
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, 0, len(accountPrefix)+len(addr))
	buf = append(buf, accountPrefix...)
	return append(buf, addr...)
}

// GetAccount returns the account at addr, or an empty account when none is
// stored.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("address must not be empty")
	}
	var stored storedAccount
	ok, err := m.KVGet(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	balance := new(uint256.Int).SetBytes(stored.Balance)
	return &types.Account{Nonce: stored.Nonce, Balance: balance.ToBig()}, nil
}

// PutAccount stores the account at addr.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("account must not be nil")
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Sign() < 0 {
		return ErrBalanceOutOfRange
	}
	packed, overflow := uint256.FromBig(balance)
	if overflow {
		return ErrBalanceOutOfRange
	}
	return m.KVPut(accountKey(addr), storedAccount{Nonce: account.Nonce, Balance: packed.Bytes()})
}
