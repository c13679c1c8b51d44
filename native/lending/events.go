package lending

import (
	"math/big"
	"strconv"

	"trustflow/core/types"
	"trustflow/crypto"
)

const (
	EventTypeLoanCreated          = "lending.loan.created"
	EventTypeLoanApproved         = "lending.loan.approved"
	EventTypeLoanRejected         = "lending.loan.rejected"
	EventTypeLoanFunded           = "lending.loan.funded"
	EventTypeLoanActivated        = "lending.loan.activated"
	EventTypeLoanRepayment        = "lending.loan.repayment"
	EventTypeLoanFullyRepaid      = "lending.loan.fully_repaid"
	EventTypeLoanDefaulted        = "lending.loan.defaulted"
	EventTypePlatformFeeUpdated   = "lending.fee.updated"
	EventTypeFundsWithdrawn       = "lending.fees.withdrawn"
	EventTypeOwnershipTransferred = "lending.owner.transferred"
	EventTypePayout               = "lending.payout"
)

// NewLoanCreatedEvent returns the payload for a newly created loan.
func NewLoanCreatedEvent(loan *Loan) *types.Event {
	attrs := loanAttrs(loan)
	attrs["borrower"] = crypto.FormatAddress(loan.Borrower)
	attrs["amount"] = formatAmount(loan.Amount)
	attrs["interestRateBps"] = strconv.FormatUint(loan.InterestRateBps, 10)
	attrs["termMonths"] = strconv.FormatUint(loan.TermMonths, 10)
	attrs["riskScore"] = strconv.FormatUint(loan.RiskScore, 10)
	attrs["purpose"] = loan.Purpose
	return &types.Event{Type: EventTypeLoanCreated, Attributes: attrs}
}

func NewLoanApprovedEvent(loan *Loan) *types.Event {
	attrs := loanAttrs(loan)
	attrs["monthlyPayment"] = formatAmount(loan.MonthlyPayment)
	return &types.Event{Type: EventTypeLoanApproved, Attributes: attrs}
}

func NewLoanRejectedEvent(loan *Loan) *types.Event {
	return &types.Event{Type: EventTypeLoanRejected, Attributes: loanAttrs(loan)}
}

// NewLoanFundedEvent carries the contribution and the running total.
func NewLoanFundedEvent(loan *Loan, lender [20]byte, amount *big.Int) *types.Event {
	attrs := loanAttrs(loan)
	attrs["lender"] = crypto.FormatAddress(lender)
	attrs["amount"] = formatAmount(amount)
	attrs["totalFunded"] = formatAmount(loan.TotalFunded)
	return &types.Event{Type: EventTypeLoanFunded, Attributes: attrs}
}

func NewLoanActivatedEvent(loan *Loan, disbursed *big.Int) *types.Event {
	attrs := loanAttrs(loan)
	attrs["totalFunded"] = formatAmount(loan.TotalFunded)
	attrs["platformFee"] = formatAmount(loan.PlatformFee)
	attrs["disbursed"] = formatAmount(disbursed)
	attrs["fundedAt"] = strconv.FormatUint(loan.FundedAt, 10)
	return &types.Event{Type: EventTypeLoanActivated, Attributes: attrs}
}

func NewLoanRepaymentEvent(loan *Loan, amount *big.Int) *types.Event {
	attrs := loanAttrs(loan)
	attrs["borrower"] = crypto.FormatAddress(loan.Borrower)
	attrs["amount"] = formatAmount(amount)
	attrs["totalRepaid"] = formatAmount(loan.TotalRepaid)
	return &types.Event{Type: EventTypeLoanRepayment, Attributes: attrs}
}

func NewLoanFullyRepaidEvent(loan *Loan, owed *big.Int) *types.Event {
	attrs := loanAttrs(loan)
	attrs["totalRepaid"] = formatAmount(loan.TotalRepaid)
	attrs["totalOwed"] = formatAmount(owed)
	return &types.Event{Type: EventTypeLoanFullyRepaid, Attributes: attrs}
}

func NewLoanDefaultedEvent(loan *Loan) *types.Event {
	return &types.Event{Type: EventTypeLoanDefaulted, Attributes: loanAttrs(loan)}
}

func NewPayoutEvent(loanID uint64, payout *Payout) *types.Event {
	return &types.Event{Type: EventTypePayout, Attributes: map[string]string{
		"loanId": strconv.FormatUint(loanID, 10),
		"lender": crypto.FormatAddress(payout.Lender),
		"amount": formatAmount(payout.Amount),
	}}
}

func NewPlatformFeeUpdatedEvent(oldBps, newBps uint64) *types.Event {
	return &types.Event{Type: EventTypePlatformFeeUpdated, Attributes: map[string]string{
		"oldFeeBps": strconv.FormatUint(oldBps, 10),
		"newFeeBps": strconv.FormatUint(newBps, 10),
	}}
}

func NewFundsWithdrawnEvent(to [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeFundsWithdrawn, Attributes: map[string]string{
		"to":     crypto.FormatAddress(to),
		"amount": formatAmount(amount),
	}}
}

func NewOwnershipTransferredEvent(previous, next [20]byte) *types.Event {
	return &types.Event{Type: EventTypeOwnershipTransferred, Attributes: map[string]string{
		"previousOwner": crypto.FormatAddress(previous),
		"newOwner":      crypto.FormatAddress(next),
	}}
}

func loanAttrs(loan *Loan) map[string]string {
	return map[string]string{"loanId": strconv.FormatUint(loan.ID, 10)}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// ledgerEvent adapts a payload to the events.Typed interface.
type ledgerEvent struct {
	evt *types.Event
}

func (e ledgerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e ledgerEvent) Event() *types.Event {
	return e.evt.Clone()
}
