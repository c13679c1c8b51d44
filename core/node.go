package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"trustflow/core/events"
	"trustflow/core/state"
	"trustflow/core/types"
	"trustflow/native/bank"
	nativecommon "trustflow/native/common"
	"trustflow/native/lending"
	"trustflow/observability"
	"trustflow/storage"
)

var (
	ErrNilTransaction  = errors.New("core: nil transaction")
	ErrInvalidChainID  = errors.New("core: chain id mismatch")
	ErrNonceMismatch   = errors.New("core: nonce mismatch")
	ErrUnexpectedValue = errors.New("core: value not accepted by this transaction type")
	ErrUnknownTxType   = errors.New("core: unknown transaction type")
	ErrInvalidPayload  = errors.New("core: invalid payload")
)

// Options configures a Node.
type Options struct {
	ChainID   uint64
	Receivers *bank.Receivers
	Pauses    nativecommon.PauseView
	Quota     nativecommon.Quota
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Node executes signed transactions against the lending ledger. Mutating
// calls are serialized; each one runs against a private state overlay that
// is committed in a single batch or dropped entirely.
type Node struct {
	db        storage.Database
	chainID   uint64
	receivers *bank.Receivers
	pauses    nativecommon.PauseView
	quota     nativecommon.Quota
	clock     func() time.Time
	logger    *slog.Logger

	mu sync.Mutex

	streamMu     sync.Mutex
	streamSubs   map[uint64]chan *state.EventRecord
	streamNextID uint64
}

// Receipt describes a committed transaction.
type Receipt struct {
	TxHash  [32]byte
	Type    types.TxType
	Sender  [20]byte
	Nonce   uint64
	LoanID  *uint64
	Amount  *big.Int
	Events  []*state.EventRecord
	Applied time.Time
}

// NewNode wires a node over db.
func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	receivers := opts.Receivers
	if receivers == nil {
		receivers = bank.NewReceivers()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{
		db:         db,
		chainID:    opts.ChainID,
		receivers:  receivers,
		pauses:     opts.Pauses,
		quota:      opts.Quota,
		clock:      clock,
		logger:     logger.With("component", "node"),
		streamSubs: make(map[uint64]chan *state.EventRecord),
	}, nil
}

// ChainID returns the chain id transactions must carry.
func (n *Node) ChainID() uint64 {
	return n.chainID
}

// Receivers exposes the receiver hook registry.
func (n *Node) Receivers() *bank.Receivers {
	return n.receivers
}

// ModuleAddress returns the lending custody address.
func (n *Node) ModuleAddress() [20]byte {
	return lending.NewEngine().ModuleAddress()
}

// Allocation credits a genesis balance.
type Allocation struct {
	Address [20]byte
	Amount  *big.Int
}

// Genesis is the initial ledger configuration.
type Genesis struct {
	Owner          [20]byte
	PlatformFeeBps uint64
	Allocations    []Allocation
}

// InitGenesis initializes the ledger and credits the allocations. It fails
// with lending.ErrAlreadyInitialized when the database already holds a
// ledger.
func (n *Node) InitGenesis(g Genesis) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	mgr := state.NewManager(n.db)
	engine := lending.NewEngine()
	engine.SetState(mgr)
	if err := engine.Initialize(g.Owner, g.PlatformFeeBps); err != nil {
		mgr.Discard()
		return err
	}
	ledger := bank.NewLedger(mgr, n.receivers)
	for _, alloc := range g.Allocations {
		if err := ledger.Credit(alloc.Address, alloc.Amount); err != nil {
			mgr.Discard()
			return fmt.Errorf("genesis allocation: %w", err)
		}
	}
	if err := mgr.Commit(); err != nil {
		return err
	}
	n.logger.Info("genesis applied", "allocations", len(g.Allocations), "platform_fee_bps", g.PlatformFeeBps)
	return nil
}

// Initialized reports whether genesis has been applied.
func (n *Node) Initialized() (bool, error) {
	ledger, err := state.NewManager(n.db).LendingLedger()
	if err != nil {
		return false, err
	}
	return ledger != nil && ledger.Initialized, nil
}

// ApplyTransaction verifies and executes tx. On error the committed state,
// including the sender nonce, is unchanged.
func (n *Node) ApplyTransaction(tx *types.Transaction) (*Receipt, error) {
	if tx == nil {
		return nil, ErrNilTransaction
	}
	start := time.Now()

	n.mu.Lock()
	defer n.mu.Unlock()

	receipt, err := n.applyLocked(tx)
	observability.Lending().RecordTransaction(tx.Type.String(), string(Classify(err)), time.Since(start))
	if err != nil {
		n.logger.Debug("transaction rejected", "type", tx.Type.String(), "nonce", tx.Nonce, "error", err)
		return nil, err
	}
	observability.Lending().RecordEvents(eventTypes(receipt.Events))
	n.publishEvents(receipt.Events)
	n.logger.Debug("transaction applied", "type", tx.Type.String(), "events", len(receipt.Events))
	return receipt, nil
}

func (n *Node) applyLocked(tx *types.Transaction) (*Receipt, error) {
	if tx.ChainID != n.chainID {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidChainID, tx.ChainID, n.chainID)
	}
	from, err := tx.From()
	if err != nil {
		return nil, err
	}
	var sender [20]byte
	copy(sender[:], from)
	hashBytes, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	var hash [32]byte
	copy(hash[:], hashBytes)

	value := tx.Value
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 || (!tx.Type.IsValueBearing() && value.Sign() != 0) {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedValue, tx.Type)
	}

	mgr := state.NewManager(n.db)
	committed := false
	defer func() {
		if !committed {
			mgr.Discard()
		}
	}()

	account, err := mgr.GetAccount(sender[:])
	if err != nil {
		return nil, err
	}
	if tx.Nonce != account.Nonce {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrNonceMismatch, tx.Nonce, account.Nonce)
	}

	now := n.clock()
	if err := n.applyQuota(mgr, sender, uint64(now.UTC().Unix()), value); err != nil {
		return nil, err
	}

	exec := newExecution(mgr, n.receivers, n.pauses, n.clock)
	receipt, err := exec.dispatch(tx, sender, value)
	if err != nil {
		return nil, err
	}

	// Balances may have moved during dispatch; reload before bumping.
	account, err = mgr.GetAccount(sender[:])
	if err != nil {
		return nil, err
	}
	account.Nonce++
	if err := mgr.PutAccount(sender[:], account); err != nil {
		return nil, err
	}

	records, err := mgr.AppendEvents(hash, uint64(now.UTC().Unix()), events.Payloads(exec.buffer.Events()))
	if err != nil {
		return nil, err
	}
	if err := mgr.Commit(); err != nil {
		return nil, err
	}
	committed = true

	receipt.TxHash = hash
	receipt.Type = tx.Type
	receipt.Sender = sender
	receipt.Nonce = tx.Nonce
	receipt.Events = records
	receipt.Applied = now
	return receipt, nil
}

func (n *Node) applyQuota(mgr *state.Manager, sender [20]byte, unix uint64, value *big.Int) error {
	if !n.quota.Enabled() {
		return nil
	}
	prev, err := mgr.QuotaCounters(lending.ModuleName, sender)
	if err != nil {
		return err
	}
	next, err := nativecommon.CheckQuota(n.quota, n.quota.EpochFor(unix), prev, 1, value)
	if err != nil {
		observability.Lending().RecordThrottle(err.Error())
		return err
	}
	return mgr.PutQuotaCounters(lending.ModuleName, sender, next)
}

func eventTypes(records []*state.EventRecord) []string {
	out := make([]string, 0, len(records))
	for _, record := range records {
		out = append(out, record.Type)
	}
	return out
}
