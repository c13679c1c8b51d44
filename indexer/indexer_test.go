package indexer

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"trustflow/core"
	"trustflow/core/state"
	"trustflow/core/types"
	"trustflow/crypto"
	"trustflow/native/lending"
	"trustflow/storage"
)

const testChainID = 21

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func setupIndexer(t *testing.T) *Indexer {
	t.Helper()
	db, err := Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	ix, err := New(db, nil)
	require.NoError(t, err)
	return ix
}

type actor struct {
	key   *crypto.PrivateKey
	addr  [20]byte
	nonce uint64
}

func newActor(t *testing.T) *actor {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return &actor{key: key, addr: key.PubKey().Address().Raw()}
}

type ledger struct {
	node     *core.Node
	owner    *actor
	borrower *actor
	lender   *actor
}

func newLedger(t *testing.T) *ledger {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	node, err := core.NewNode(db, core.Options{
		ChainID: testChainID,
		Clock:   func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	require.NoError(t, err)
	l := &ledger{node: node, owner: newActor(t), borrower: newActor(t), lender: newActor(t)}
	ten := new(big.Int).Mul(unit, big.NewInt(10))
	require.NoError(t, node.InitGenesis(core.Genesis{
		Owner:          l.owner.addr,
		PlatformFeeBps: lending.DefaultPlatformFeeBps,
		Allocations: []core.Allocation{
			{Address: l.borrower.addr, Amount: ten},
			{Address: l.lender.addr, Amount: ten},
		},
	}))
	return l
}

func (l *ledger) send(t *testing.T, from *actor, txType types.TxType, payload interface{}, value *big.Int) *core.Receipt {
	t.Helper()
	tx := &types.Transaction{ChainID: testChainID, Type: txType, Nonce: from.nonce, Value: value}
	if payload != nil {
		data, err := types.EncodePayload(payload)
		require.NoError(t, err)
		tx.Data = data
	}
	require.NoError(t, tx.Sign(from.key.PrivateKey))
	receipt, err := l.node.ApplyTransaction(tx)
	require.NoError(t, err)
	from.nonce++
	return receipt
}

func (l *ledger) createLoan(t *testing.T, purpose string) uint64 {
	t.Helper()
	receipt := l.send(t, l.borrower, types.TxTypeCreateLoan, types.CreateLoanPayload{
		Amount: unit, InterestRateBps: 1000, TermMonths: 6, RiskScore: 700, Purpose: purpose,
	}, nil)
	require.NotNil(t, receipt.LoanID)
	return *receipt.LoanID
}

func (l *ledger) repaidLoan(t *testing.T) uint64 {
	t.Helper()
	id := l.createLoan(t, "inventory")
	l.send(t, l.owner, types.TxTypeApproveLoan, types.LoanIDPayload{LoanID: id}, nil)
	l.send(t, l.lender, types.TxTypeFundLoan, types.LoanIDPayload{LoanID: id}, unit)
	owed, err := l.node.TotalOwed(id)
	require.NoError(t, err)
	l.send(t, l.borrower, types.TxTypeRepayLoan, types.LoanIDPayload{LoanID: id}, owed)
	return id
}

func TestSyncProjectsLoanLifecycle(t *testing.T) {
	l := newLedger(t)
	id := l.repaidLoan(t)
	rejected := l.createLoan(t, "travel")
	l.send(t, l.owner, types.TxTypeRejectLoan, types.LoanIDPayload{LoanID: rejected}, nil)

	ix := setupIndexer(t)
	ctx := context.Background()
	next, err := ix.Sync(ctx, l.node)
	require.NoError(t, err)

	all, err := l.node.Events(0, 0, "")
	require.NoError(t, err)
	require.Equal(t, uint64(len(all)), next)

	loans, err := ix.Loans(ctx, "")
	require.NoError(t, err)
	require.Len(t, loans, 2)

	repaid := loans[0]
	require.Equal(t, id, repaid.LoanID)
	require.Equal(t, "repaid", repaid.Status)
	require.Equal(t, crypto.FormatAddress(l.borrower.addr), repaid.Borrower)
	require.Equal(t, unit.String(), repaid.Amount)
	require.Equal(t, unit.String(), repaid.TotalFunded)
	require.Equal(t, "1050000000000000000", repaid.TotalRepaid)
	require.Equal(t, "15000000000000000", repaid.PlatformFee)
	require.Equal(t, 1, repaid.Investments)
	require.Equal(t, uint64(1000), repaid.InterestRateBps)
	require.NotZero(t, repaid.FundedAt)
	require.NotZero(t, repaid.ClosedAt)

	require.Equal(t, "rejected", loans[1].Status)
	require.Equal(t, "travel", loans[1].Purpose)

	onlyRejected, err := ix.Loans(ctx, "rejected")
	require.NoError(t, err)
	require.Len(t, onlyRejected, 1)
	_, err = ix.Loans(ctx, "archived")
	require.Error(t, err)

	history, err := ix.LoanEvents(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	require.Equal(t, lending.EventTypeLoanCreated, history[0].Type)
	require.Equal(t, lending.EventTypeLoanFullyRepaid, history[len(history)-1].Type)
	for i := 1; i < len(history); i++ {
		require.Less(t, history[i-1].Sequence, history[i].Sequence)
	}

	again, err := ix.Sync(ctx, l.node)
	require.NoError(t, err)
	require.Equal(t, next, again)
}

func TestApplyIsIdempotent(t *testing.T) {
	ix := setupIndexer(t)
	ctx := context.Background()
	loan := &lending.Loan{ID: 4, Amount: unit, InterestRateBps: 500, TermMonths: 3, Purpose: "tools"}
	created := lending.NewLoanCreatedEvent(loan)
	record := &state.EventRecord{Sequence: 0, Type: created.Type, Timestamp: 10}
	for k, v := range created.Attributes {
		record.Attributes = append(record.Attributes, state.EventAttribute{Key: k, Value: v})
	}
	require.NoError(t, ix.Apply(ctx, record))
	require.NoError(t, ix.Apply(ctx, record))

	var events int64
	require.NoError(t, ix.DB().Model(&EventRow{}).Count(&events).Error)
	require.Equal(t, int64(1), events)
	loans, err := ix.Loans(ctx, "")
	require.NoError(t, err)
	require.Len(t, loans, 1)
	require.Equal(t, "pending", loans[0].Status)
	require.Equal(t, uint64(10), loans[0].OpenedAt)

	next, err := ix.NextSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), next)
}

func TestApplyRejectsUnknownLoan(t *testing.T) {
	ix := setupIndexer(t)
	record := &state.EventRecord{
		Sequence:   0,
		Type:       lending.EventTypeLoanApproved,
		Attributes: []state.EventAttribute{{Key: "loanId", Value: "9"}},
	}
	require.Error(t, ix.Apply(context.Background(), record))
	next, err := ix.NextSequence(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(0), next, "failed apply must not advance the cursor")
}

func TestRunFollowsLiveEvents(t *testing.T) {
	l := newLedger(t)
	first := l.createLoan(t, "backlog")
	ix := setupIndexer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Run(ctx, l.node) }()

	second := l.createLoan(t, "live")
	l.send(t, l.owner, types.TxTypeApproveLoan, types.LoanIDPayload{LoanID: second}, nil)

	require.Eventually(t, func() bool {
		loans, err := ix.Loans(context.Background(), "")
		return err == nil && len(loans) == 2 && loans[1].Status == "approved"
	}, 5*time.Second, 20*time.Millisecond)

	loans, err := ix.Loans(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, first, loans[0].LoanID)
	require.Equal(t, second, loans[1].LoanID)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("indexer did not stop after cancel")
	}
}

func TestExportLoanBook(t *testing.T) {
	l := newLedger(t)
	l.repaidLoan(t)
	l.createLoan(t, "pending, with comma")

	ix := setupIndexer(t)
	ctx := context.Background()
	_, err := ix.Sync(ctx, l.node)
	require.NoError(t, err)

	dir := t.TempDir()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	manifest, err := ix.ExportLoanBook(ctx, dir, at)
	require.NoError(t, err)
	require.Equal(t, 2, manifest.Rows)
	require.Len(t, manifest.Files, 2)
	for _, file := range manifest.Files {
		require.Len(t, file.Blake3, 64)
		require.Positive(t, file.Bytes)
	}

	f, err := os.Open(filepath.Join(dir, LoanBookCSV))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, loanBookHeader, records[0])
	require.Equal(t, "repaid", records[1][7])
	require.Equal(t, "pending, with comma", records[2][6])
	require.Equal(t, "", records[2][14], "unfunded loan has no funded_at")

	verified, err := VerifyReport(dir)
	require.NoError(t, err)
	require.Equal(t, manifest.Rows, verified.Rows)

	require.NoError(t, os.WriteFile(filepath.Join(dir, LoanBookCSV), []byte("tampered"), 0o644))
	_, err = VerifyReport(dir)
	require.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)
	_, err = Open("postgres", "")
	require.Error(t, err)
}
