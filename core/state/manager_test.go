package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"trustflow/core/types"
	nativecommon "trustflow/native/common"
	"trustflow/native/lending"
	"trustflow/storage"
)

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func TestManagerOverlayCommitAndDiscard(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	mgr := NewManager(db)
	require.NoError(t, mgr.KVPut([]byte("greeting"), "hello"))

	var got string
	ok, err := mgr.KVGet([]byte("greeting"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", got)

	// Nothing reaches the database before Commit.
	fresh := NewManager(db)
	ok, err = fresh.KVGet([]byte("greeting"), &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.Commit())
	require.Zero(t, mgr.Pending())
	ok, err = NewManager(db).KVGet([]byte("greeting"), &got)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, mgr.KVPut([]byte("greeting"), "bye"))
	mgr.Discard()
	ok, err = mgr.KVGet([]byte("greeting"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", got)
}

func TestKVAppendIsOrderedSet(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	key := []byte("index")
	require.NoError(t, mgr.KVAppend(key, []byte{0x01}))
	require.NoError(t, mgr.KVAppend(key, []byte{0x02}))
	require.NoError(t, mgr.KVAppend(key, []byte{0x01}))

	var list [][]byte
	require.NoError(t, mgr.KVGetList(key, &list))
	require.Equal(t, [][]byte{{0x01}, {0x02}}, list)

	var empty [][]byte
	require.NoError(t, mgr.KVGetList([]byte("missing"), &empty))
	require.NotNil(t, empty)
	require.Empty(t, empty)

	require.Error(t, mgr.KVGetList(key, list))
	require.Error(t, mgr.KVPut(nil, 1))
}

func TestAccountsRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	a := addr(0x11)

	acc, err := mgr.GetAccount(a[:])
	require.NoError(t, err)
	require.Zero(t, acc.Nonce)
	require.Zero(t, acc.Balance.Sign())

	require.NoError(t, mgr.PutAccount(a[:], &types.Account{Nonce: 3, Balance: big.NewInt(12345)}))
	acc, err = mgr.GetAccount(a[:])
	require.NoError(t, err)
	require.Equal(t, uint64(3), acc.Nonce)
	require.Equal(t, "12345", acc.Balance.String())

	require.ErrorIs(t, mgr.PutAccount(a[:], &types.Account{Balance: big.NewInt(-1)}), ErrBalanceOutOfRange)
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	require.ErrorIs(t, mgr.PutAccount(a[:], &types.Account{Balance: huge}), ErrBalanceOutOfRange)
}

func TestLendingRecords(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	ledger, err := mgr.LendingLedger()
	require.NoError(t, err)
	require.Nil(t, ledger)

	require.NoError(t, mgr.PutLendingLedger(&lending.LedgerState{Owner: addr(0x01), PlatformFeeBps: 150, Initialized: true, LoanCount: 2}))
	ledger, err = mgr.LendingLedger()
	require.NoError(t, err)
	require.True(t, ledger.Initialized)
	require.Equal(t, uint64(2), ledger.LoanCount)
	require.Zero(t, ledger.TotalPlatformFees.Sign())

	loan := &lending.Loan{ID: 1, Borrower: addr(0x02), Amount: big.NewInt(500), TermMonths: 6, Status: lending.LoanStatusFunding, Purpose: "inventory"}
	require.NoError(t, mgr.PutLendingLoan(loan))
	stored, ok, err := mgr.LendingLoan(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, lending.LoanStatusFunding, stored.Status)
	require.Equal(t, "inventory", stored.Purpose)
	require.Zero(t, stored.TotalRepaid.Sign())

	_, ok, err = mgr.LendingLoan(9)
	require.NoError(t, err)
	require.False(t, ok)

	for i := 0; i < 2; i++ {
		require.NoError(t, mgr.AppendLendingInvestment(1, &lending.Investment{Lender: addr(0x03), Amount: big.NewInt(50), Timestamp: 7}))
		require.NoError(t, mgr.AppendLenderLoan(addr(0x03), 1))
	}
	invs, err := mgr.LendingInvestments(1)
	require.NoError(t, err)
	require.Len(t, invs, 2, "identical contributions are separate records")

	lenderIDs, err := mgr.LenderLoans(addr(0x03))
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, lenderIDs)

	require.NoError(t, mgr.AppendBorrowerLoan(addr(0x02), 0))
	require.NoError(t, mgr.AppendBorrowerLoan(addr(0x02), 1))
	borrowerIDs, err := mgr.BorrowerLoans(addr(0x02))
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, borrowerIDs)

	require.NoError(t, mgr.AppendLendingRepayment(1, &lending.Repayment{Borrower: addr(0x02), Amount: big.NewInt(20)}))
	require.NoError(t, mgr.AppendLendingPayout(1, &lending.Payout{Lender: addr(0x03), Amount: big.NewInt(20)}))
	reps, err := mgr.LendingRepayments(1)
	require.NoError(t, err)
	require.Len(t, reps, 1)
	payouts, err := mgr.LendingPayouts(1)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	require.Equal(t, "20", payouts[0].Amount.String())
}

func TestEventLogSequencing(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	var hash [32]byte
	hash[0] = 0xAB

	records, err := mgr.AppendEvents(hash, 100, []*types.Event{
		{Type: "lending.loan.created", Attributes: map[string]string{"loanId": "0", "amount": "10"}},
		{Type: "transfer.native", Attributes: map[string]string{"amount": "10"}},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint64(0), records[0].Sequence)
	require.Equal(t, "amount", records[0].Attributes[0].Key, "attributes are sorted")
	require.NoError(t, mgr.Commit())

	mgr = NewManager(db)
	_, err = mgr.AppendEvents(hash, 101, []*types.Event{{Type: "lending.loan.created", Attributes: map[string]string{"loanId": "1"}}})
	require.NoError(t, err)

	all, err := mgr.EventsFrom(0, 0, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint64(2), all[2].Sequence)

	created, err := mgr.EventsFrom(0, 0, "lending.loan.created")
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.Equal(t, "1", created[1].Attribute("loanId"))
	require.Equal(t, "1", created[1].Event().Attributes["loanId"])

	page, err := mgr.EventsFrom(1, 1, "")
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "transfer.native", page[0].Type)

	mgr.Discard()
	next, err := mgr.NextEventSequence()
	require.NoError(t, err)
	require.Equal(t, uint64(2), next)
}

func TestQuotaCounters(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	a := addr(0x21)
	now, err := mgr.QuotaCounters("lending", a)
	require.NoError(t, err)
	require.Zero(t, now.ReqCount)

	require.NoError(t, mgr.PutQuotaCounters("lending", a, nativecommon.QuotaNow{ReqCount: 2, ValueUsed: big.NewInt(9), EpochID: 4}))
	now, err = mgr.QuotaCounters("lending", a)
	require.NoError(t, err)
	require.Equal(t, uint32(2), now.ReqCount)
	require.Equal(t, uint64(4), now.EpochID)
	require.Equal(t, "9", now.ValueUsed.String())
}
