package rpc

import (
	"encoding/hex"
	"math/big"

	"trustflow/core"
	"trustflow/core/state"
	"trustflow/core/types"
	"trustflow/crypto"
	"trustflow/native/lending"
	"trustflow/risk"
)

// Amounts are rendered as decimal strings of base units.

type LoanResult struct {
	ID              uint64 `json:"id"`
	Borrower        string `json:"borrower"`
	Amount          string `json:"amount"`
	InterestRateBps uint64 `json:"interestRateBps"`
	TermMonths      uint64 `json:"termMonths"`
	RiskScore       uint64 `json:"riskScore"`
	Purpose         string `json:"purpose"`
	Status          string `json:"status"`
	StatusCode      uint8  `json:"statusCode"`
	TotalFunded     string `json:"totalFunded"`
	TotalRepaid     string `json:"totalRepaid"`
	CreatedAt       uint64 `json:"createdAt"`
	FundedAt        uint64 `json:"fundedAt"`
	MonthlyPayment  string `json:"monthlyPayment"`
	PlatformFee     string `json:"platformFee"`
	TotalOwed       string `json:"totalOwed"`
}

type LoansResult struct {
	Loans []LoanResult `json:"loans"`
	Total uint64       `json:"total"`
}

type OwedResult struct {
	LoanID        uint64 `json:"loanId"`
	TotalOwed     string `json:"totalOwed"`
	RemainingOwed string `json:"remainingOwed"`
}

type InvestmentResult struct {
	Lender    string `json:"lender"`
	Amount    string `json:"amount"`
	Timestamp uint64 `json:"timestamp"`
}

type RepaymentResult struct {
	Borrower  string `json:"borrower"`
	Amount    string `json:"amount"`
	Timestamp uint64 `json:"timestamp"`
}

type PayoutResult struct {
	Lender    string `json:"lender"`
	Amount    string `json:"amount"`
	Timestamp uint64 `json:"timestamp"`
}

type LedgerResult struct {
	Owner             string `json:"owner"`
	PlatformFeeBps    uint64 `json:"platformFeeBps"`
	TotalPlatformFees string `json:"totalPlatformFees"`
	LoanCount         uint64 `json:"loanCount"`
	Initialized       bool   `json:"initialized"`
	ModuleAddress     string `json:"moduleAddress"`
}

type EventResult struct {
	Sequence   uint64            `json:"sequence"`
	TxHash     string            `json:"txHash"`
	Timestamp  uint64            `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type EventsResult struct {
	Events     []EventResult `json:"events"`
	NextCursor uint64        `json:"nextCursor"`
}

type ReceiptResult struct {
	TxHash  string        `json:"txHash"`
	Type    string        `json:"type"`
	Sender  string        `json:"sender"`
	Nonce   uint64        `json:"nonce"`
	LoanID  *uint64       `json:"loanId,omitempty"`
	Amount  string        `json:"amount,omitempty"`
	Events  []EventResult `json:"events"`
	Applied int64         `json:"applied"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type AccountResult struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
	Balance string `json:"balance"`
}

type RiskQuoteResult struct {
	risk.Result
	TermMonths      uint64 `json:"termMonths"`
	InterestRateBps uint64 `json:"interestRateBps"`
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func loanResultFrom(loan *lending.Loan) LoanResult {
	return LoanResult{
		ID:              loan.ID,
		Borrower:        crypto.FormatAddress(loan.Borrower),
		Amount:          amountString(loan.Amount),
		InterestRateBps: loan.InterestRateBps,
		TermMonths:      loan.TermMonths,
		RiskScore:       loan.RiskScore,
		Purpose:         loan.Purpose,
		Status:          loan.Status.String(),
		StatusCode:      uint8(loan.Status),
		TotalFunded:     amountString(loan.TotalFunded),
		TotalRepaid:     amountString(loan.TotalRepaid),
		CreatedAt:       loan.CreatedAt,
		FundedAt:        loan.FundedAt,
		MonthlyPayment:  amountString(loan.MonthlyPayment),
		PlatformFee:     amountString(loan.PlatformFee),
		TotalOwed:       amountString(lending.TotalOwed(loan.Amount, loan.InterestRateBps, loan.TermMonths)),
	}
}

func ledgerResultFrom(ledger *lending.LedgerState, module [20]byte) LedgerResult {
	return LedgerResult{
		Owner:             crypto.FormatAddress(ledger.Owner),
		PlatformFeeBps:    ledger.PlatformFeeBps,
		TotalPlatformFees: amountString(ledger.TotalPlatformFees),
		LoanCount:         ledger.LoanCount,
		Initialized:       ledger.Initialized,
		ModuleAddress:     crypto.FormatAddress(module),
	}
}

// EventResultFrom renders a logged event for JSON consumers.
func EventResultFrom(record *state.EventRecord) EventResult {
	attrs := make(map[string]string, len(record.Attributes))
	for _, attr := range record.Attributes {
		attrs[attr.Key] = attr.Value
	}
	return EventResult{
		Sequence:   record.Sequence,
		TxHash:     "0x" + hex.EncodeToString(record.TxHash[:]),
		Timestamp:  record.Timestamp,
		Type:       record.Type,
		Attributes: attrs,
	}
}

func eventResultsFrom(records []*state.EventRecord) []EventResult {
	out := make([]EventResult, 0, len(records))
	for _, record := range records {
		out = append(out, EventResultFrom(record))
	}
	return out
}

func receiptResultFrom(receipt *core.Receipt) ReceiptResult {
	out := ReceiptResult{
		TxHash:  "0x" + hex.EncodeToString(receipt.TxHash[:]),
		Type:    receipt.Type.String(),
		Sender:  crypto.FormatAddress(receipt.Sender),
		Nonce:   receipt.Nonce,
		LoanID:  receipt.LoanID,
		Events:  eventResultsFrom(receipt.Events),
		Applied: receipt.Applied.Unix(),
	}
	if receipt.Amount != nil {
		out.Amount = receipt.Amount.String()
	}
	return out
}

func accountResultFrom(addr [20]byte, account *types.Account) AccountResult {
	out := AccountResult{Address: crypto.FormatAddress(addr), Balance: "0"}
	if account != nil {
		out.Nonce = account.Nonce
		out.Balance = amountString(account.Balance)
	}
	return out
}
