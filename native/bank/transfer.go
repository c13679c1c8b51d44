package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"trustflow/core/events"
	"trustflow/core/types"
)

var (
	ErrNilState            = errors.New("bank: state not configured")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
)

// AccountStore is the slice of state the bank needs.
type AccountStore interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Receiver runs when funds land on an address it is registered for. It
// stands in for untrusted code at the recipient; an error aborts the
// transfer and everything the enclosing call did before it.
type Receiver interface {
	OnReceive(from [20]byte, amount *big.Int) error
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(from [20]byte, amount *big.Int) error

func (f ReceiverFunc) OnReceive(from [20]byte, amount *big.Int) error {
	return f(from, amount)
}

// Receivers is the registry of receiver hooks, shared across calls.
type Receivers struct {
	mu    sync.RWMutex
	hooks map[[20]byte]Receiver
}

func NewReceivers() *Receivers {
	return &Receivers{hooks: make(map[[20]byte]Receiver)}
}

// Register installs the hook for addr. A nil receiver removes it.
func (r *Receivers) Register(addr [20]byte, recv Receiver) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if recv == nil {
		delete(r.hooks, addr)
		return
	}
	r.hooks[addr] = recv
}

func (r *Receivers) lookup(addr [20]byte) Receiver {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hooks[addr]
}

// Ledger moves native currency between accounts held in state.
type Ledger struct {
	store     AccountStore
	receivers *Receivers
	emitter   events.Emitter
}

func NewLedger(store AccountStore, receivers *Receivers) *Ledger {
	return &Ledger{store: store, receivers: receivers, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the destination for transfer events.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) account(addr [20]byte) (*types.Account, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilState
	}
	account, err := l.store.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = types.NewAccount()
	}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	return account, nil
}

// Balance returns the current balance of addr.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	account, err := l.account(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance), nil
}

// Credit adds freshly issued funds to addr. Only genesis uses it.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	account, err := l.account(addr)
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return l.store.PutAccount(addr[:], account)
}

// Transfer debits from and credits to, then notifies the recipient's
// receiver hook if one is registered.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromAcc, err := l.account(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromAcc.Balance, amount)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	if err := l.store.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	toAcc, err := l.account(to)
	if err != nil {
		return err
	}
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := l.store.PutAccount(to[:], toAcc); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{From: from, To: to, Amount: new(big.Int).Set(amount)})

	if hook := l.receivers.lookup(to); hook != nil {
		if err := hook.OnReceive(from, new(big.Int).Set(amount)); err != nil {
			return fmt.Errorf("bank: receiver rejected transfer: %w", err)
		}
	}
	return nil
}
