package lending

import (
	"fmt"
	"math/big"
	"strings"
)

// LoanStatus enumerates the lifecycle states of a loan. The ordinals are part
// of the wire format.
type LoanStatus uint8

const (
	LoanStatusPending LoanStatus = iota
	LoanStatusApproved
	LoanStatusFunding
	LoanStatusActive
	LoanStatusRepaid
	LoanStatusRejected
	LoanStatusDefaulted
)

var loanStatusNames = [...]string{
	LoanStatusPending:   "pending",
	LoanStatusApproved:  "approved",
	LoanStatusFunding:   "funding",
	LoanStatusActive:    "active",
	LoanStatusRepaid:    "repaid",
	LoanStatusRejected:  "rejected",
	LoanStatusDefaulted: "defaulted",
}

// Valid reports whether the status is one of the known states.
func (s LoanStatus) Valid() bool {
	return int(s) < len(loanStatusNames)
}

func (s LoanStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
	return loanStatusNames[s]
}

// IsTerminal reports whether no further transition can leave the status.
func (s LoanStatus) IsTerminal() bool {
	switch s {
	case LoanStatusRepaid, LoanStatusRejected, LoanStatusDefaulted:
		return true
	default:
		return false
	}
}

// ParseLoanStatus resolves a status from its name.
func ParseLoanStatus(name string) (LoanStatus, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range loanStatusNames {
		if candidate == trimmed {
			return LoanStatus(i), nil
		}
	}
	return 0, fmt.Errorf("lending: unknown loan status %q", name)
}

// Loan is a single borrowing request and its lifecycle accounting.
type Loan struct {
	ID              uint64
	Borrower        [20]byte
	Amount          *big.Int
	InterestRateBps uint64
	TermMonths      uint64
	RiskScore       uint64
	Purpose         string
	Status          LoanStatus
	TotalFunded     *big.Int
	TotalRepaid     *big.Int
	CreatedAt       uint64
	FundedAt        uint64
	MonthlyPayment  *big.Int
	PlatformFee     *big.Int
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	out := *l
	out.Amount = cloneBigInt(l.Amount)
	out.TotalFunded = cloneBigInt(l.TotalFunded)
	out.TotalRepaid = cloneBigInt(l.TotalRepaid)
	out.MonthlyPayment = cloneBigInt(l.MonthlyPayment)
	out.PlatformFee = cloneBigInt(l.PlatformFee)
	return &out
}

// Sanitize fills nil amounts with zero so arithmetic never dereferences nil.
func (l *Loan) Sanitize() {
	if l == nil {
		return
	}
	l.Amount = zeroIfNil(l.Amount)
	l.TotalFunded = zeroIfNil(l.TotalFunded)
	l.TotalRepaid = zeroIfNil(l.TotalRepaid)
	l.MonthlyPayment = zeroIfNil(l.MonthlyPayment)
	l.PlatformFee = zeroIfNil(l.PlatformFee)
}

// Investment records one funding call.
type Investment struct {
	Lender    [20]byte
	Amount    *big.Int
	Timestamp uint64
}

// Repayment records one repayment call.
type Repayment struct {
	Borrower  [20]byte
	Amount    *big.Int
	Timestamp uint64
}

// Payout records the share of a repayment forwarded to one lender.
type Payout struct {
	Lender    [20]byte
	Amount    *big.Int
	Timestamp uint64
}

// LedgerState holds the ledger-wide configuration and counters.
type LedgerState struct {
	Owner             [20]byte
	PlatformFeeBps    uint64
	TotalPlatformFees *big.Int
	LoanCount         uint64
	Initialized       bool
}

// Clone returns a deep copy of the ledger state.
func (s *LedgerState) Clone() *LedgerState {
	if s == nil {
		return nil
	}
	out := *s
	out.TotalPlatformFees = cloneBigInt(s.TotalPlatformFees)
	return &out
}

// LoanRequest carries the borrower supplied terms of a new loan.
type LoanRequest struct {
	Amount          *big.Int
	InterestRateBps uint64
	TermMonths      uint64
	RiskScore       uint64
	Purpose         string
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
