package bank

import (
	"errors"
	"math/big"
	"testing"

	"trustflow/core/events"
	"trustflow/core/types"
)

type memStore struct {
	accounts map[string]*types.Account
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]*types.Account)}
}

func (m *memStore) GetAccount(addr []byte) (*types.Account, error) {
	if acc, ok := m.accounts[string(addr)]; ok {
		return acc.Clone(), nil
	}
	return types.NewAccount(), nil
}

func (m *memStore) PutAccount(addr []byte, account *types.Account) error {
	m.accounts[string(addr)] = account.Clone()
	return nil
}

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func TestTransferMovesFunds(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store, NewReceivers())
	buf := events.NewBuffer()
	ledger.SetEmitter(buf)

	alice, bob := addr(0x01), addr(0x02)
	if err := ledger.Credit(alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := ledger.Balance(alice)
	bobBal, _ := ledger.Balance(bob)
	if aliceBal.Cmp(big.NewInt(60)) != 0 || bobBal.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected balances alice=%s bob=%s", aliceBal, bobBal)
	}
	if got := len(buf.Events()); got != 1 {
		t.Fatalf("expected one transfer event, got %d", got)
	}
}

func TestTransferRejectsInvalidInput(t *testing.T) {
	ledger := NewLedger(newMemStore(), nil)
	alice, bob := addr(0x01), addr(0x02)
	if err := ledger.Transfer(alice, bob, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := NewLedger(nil, nil).Transfer(alice, bob, big.NewInt(1)); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
}

func TestReceiverHookRunsAfterCredit(t *testing.T) {
	store := newMemStore()
	receivers := NewReceivers()
	ledger := NewLedger(store, receivers)
	alice, bob := addr(0x01), addr(0x02)
	if err := ledger.Credit(alice, big.NewInt(10)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	var observed *big.Int
	receivers.Register(bob, ReceiverFunc(func(from [20]byte, amount *big.Int) error {
		bal, err := ledger.Balance(bob)
		if err != nil {
			return err
		}
		observed = bal
		return nil
	}))
	if err := ledger.Transfer(alice, bob, big.NewInt(7)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if observed == nil || observed.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("hook must observe the credited balance, got %v", observed)
	}

	hookErr := errors.New("refuse")
	receivers.Register(bob, ReceiverFunc(func([20]byte, *big.Int) error { return hookErr }))
	if err := ledger.Transfer(alice, bob, big.NewInt(1)); !errors.Is(err, hookErr) {
		t.Fatalf("expected hook error, got %v", err)
	}

	receivers.Register(bob, nil)
	if err := ledger.Transfer(alice, bob, big.NewInt(1)); err != nil {
		t.Fatalf("transfer after unregister: %v", err)
	}
}
