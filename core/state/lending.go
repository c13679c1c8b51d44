package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"trustflow/native/lending"
)

var (
	lendingLedgerKey        = []byte("lending/ledger")
	lendingLoanPrefix       = "lending/loan/%d"
	lendingInvestmentPrefix = "lending/loan/%d/investments"
	lendingRepaymentPrefix  = "lending/loan/%d/repayments"
	lendingPayoutPrefix     = "lending/loan/%d/payouts"
	lendingBorrowerPrefix   = []byte("lending/borrower/")
	lendingLenderPrefix     = []byte("lending/lender/")
)

func lendingLoanKey(id uint64) []byte {
	return []byte(fmt.Sprintf(lendingLoanPrefix, id))
}

func lendingAddrKey(prefix []byte, addr [20]byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(addr))
	buf = append(buf, prefix...)
	return append(buf, addr[:]...)
}

func encodeLoanID(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

// LendingLedger returns the ledger-wide record, or nil before genesis.
func (m *Manager) LendingLedger() (*lending.LedgerState, error) {
	var ledger lending.LedgerState
	ok, err := m.KVGet(lendingLedgerKey, &ledger)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if ledger.TotalPlatformFees == nil {
		ledger.TotalPlatformFees = big.NewInt(0)
	}
	return &ledger, nil
}

func (m *Manager) PutLendingLedger(ledger *lending.LedgerState) error {
	if ledger == nil {
		return fmt.Errorf("lending: nil ledger")
	}
	stored := ledger.Clone()
	return m.KVPut(lendingLedgerKey, stored)
}

func (m *Manager) LendingLoan(id uint64) (*lending.Loan, bool, error) {
	var loan lending.Loan
	ok, err := m.KVGet(lendingLoanKey(id), &loan)
	if err != nil || !ok {
		return nil, ok, err
	}
	loan.Sanitize()
	return &loan, true, nil
}

func (m *Manager) PutLendingLoan(loan *lending.Loan) error {
	if loan == nil {
		return fmt.Errorf("lending: nil loan")
	}
	stored := loan.Clone()
	stored.Sanitize()
	return m.KVPut(lendingLoanKey(stored.ID), stored)
}

func (m *Manager) AppendLendingInvestment(id uint64, inv *lending.Investment) error {
	if inv == nil {
		return fmt.Errorf("lending: nil investment")
	}
	key := []byte(fmt.Sprintf(lendingInvestmentPrefix, id))
	list, err := m.LendingInvestments(id)
	if err != nil {
		return err
	}
	list = append(list, &lending.Investment{Lender: inv.Lender, Amount: cloneAmount(inv.Amount), Timestamp: inv.Timestamp})
	return m.KVPut(key, list)
}

func (m *Manager) LendingInvestments(id uint64) ([]*lending.Investment, error) {
	var list []*lending.Investment
	if err := m.KVGetList([]byte(fmt.Sprintf(lendingInvestmentPrefix, id)), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *Manager) AppendLendingRepayment(id uint64, rep *lending.Repayment) error {
	if rep == nil {
		return fmt.Errorf("lending: nil repayment")
	}
	key := []byte(fmt.Sprintf(lendingRepaymentPrefix, id))
	list, err := m.LendingRepayments(id)
	if err != nil {
		return err
	}
	list = append(list, &lending.Repayment{Borrower: rep.Borrower, Amount: cloneAmount(rep.Amount), Timestamp: rep.Timestamp})
	return m.KVPut(key, list)
}

func (m *Manager) LendingRepayments(id uint64) ([]*lending.Repayment, error) {
	var list []*lending.Repayment
	if err := m.KVGetList([]byte(fmt.Sprintf(lendingRepaymentPrefix, id)), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *Manager) AppendLendingPayout(id uint64, payout *lending.Payout) error {
	if payout == nil {
		return fmt.Errorf("lending: nil payout")
	}
	key := []byte(fmt.Sprintf(lendingPayoutPrefix, id))
	list, err := m.LendingPayouts(id)
	if err != nil {
		return err
	}
	list = append(list, &lending.Payout{Lender: payout.Lender, Amount: cloneAmount(payout.Amount), Timestamp: payout.Timestamp})
	return m.KVPut(key, list)
}

func (m *Manager) LendingPayouts(id uint64) ([]*lending.Payout, error) {
	var list []*lending.Payout
	if err := m.KVGetList([]byte(fmt.Sprintf(lendingPayoutPrefix, id)), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AppendBorrowerLoan indexes a loan under its borrower. Loan ids are unique
// so the ordered-set semantics of KVAppend never drop an entry.
func (m *Manager) AppendBorrowerLoan(addr [20]byte, id uint64) error {
	return m.KVAppend(lendingAddrKey(lendingBorrowerPrefix, addr), encodeLoanID(id))
}

func (m *Manager) BorrowerLoans(addr [20]byte) ([]uint64, error) {
	return m.loanIDList(lendingAddrKey(lendingBorrowerPrefix, addr))
}

// AppendLenderLoan indexes a loan under a lender once, however many times
// they contribute.
func (m *Manager) AppendLenderLoan(addr [20]byte, id uint64) error {
	return m.KVAppend(lendingAddrKey(lendingLenderPrefix, addr), encodeLoanID(id))
}

func (m *Manager) LenderLoans(addr [20]byte) ([]uint64, error) {
	return m.loanIDList(lendingAddrKey(lendingLenderPrefix, addr))
}

func (m *Manager) loanIDList(key []byte) ([]uint64, error) {
	var raw [][]byte
	if err := m.KVGetList(key, &raw); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 8 {
			return nil, fmt.Errorf("lending: malformed loan id index entry")
		}
		ids = append(ids, binary.BigEndian.Uint64(entry))
	}
	return ids, nil
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
