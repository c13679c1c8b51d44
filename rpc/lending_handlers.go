package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"trustflow/crypto"
	"trustflow/native/lending"
)

func (s *Server) handleGetLoan(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	id, errResp := parseLoanID(params)
	if errResp != nil {
		return nil, errResp
	}
	loan, err := s.node.Loan(id)
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	return loanResultFrom(loan), nil
}

func (s *Server) handleGetLoans(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	page, errResp := s.parsePage(params)
	if errResp != nil {
		return nil, errResp
	}
	loans, err := s.node.Loans(page.Offset, page.Limit)
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	total, err := s.node.LoanCount()
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	out := LoansResult{Loans: make([]LoanResult, 0, len(loans)), Total: total}
	for _, loan := range loans {
		out.Loans = append(out.Loans, loanResultFrom(loan))
	}
	return out, nil
}

func (s *Server) handleGetLoanCount(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	if errResp := noParams(params); errResp != nil {
		return nil, errResp
	}
	count, err := s.node.LoanCount()
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	return count, nil
}

func (s *Server) handleGetBorrowerLoanIDs(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	addr, errResp := parseAddressParam(params)
	if errResp != nil {
		return nil, errResp
	}
	ids, err := s.node.BorrowerLoanIDs(addr)
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	return nonNilIDs(ids), nil
}

func (s *Server) handleGetLenderInvestmentIDs(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	addr, errResp := parseAddressParam(params)
	if errResp != nil {
		return nil, errResp
	}
	ids, err := s.node.LenderLoanIDs(addr)
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	return nonNilIDs(ids), nil
}

func (s *Server) handleGetTotalOwed(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	id, errResp := parseLoanID(params)
	if errResp != nil {
		return nil, errResp
	}
	total, err := s.node.TotalOwed(id)
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	remaining, err := s.node.RemainingOwed(id)
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	return OwedResult{LoanID: id, TotalOwed: total.String(), RemainingOwed: remaining.String()}, nil
}

func (s *Server) handleGetLoanInvestments(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	id, errResp := parseLoanID(params)
	if errResp != nil {
		return nil, errResp
	}
	investments, err := s.node.LoanInvestments(id)
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	out := make([]InvestmentResult, 0, len(investments))
	for _, inv := range investments {
		out = append(out, InvestmentResult{
			Lender:    crypto.FormatAddress(inv.Lender),
			Amount:    amountString(inv.Amount),
			Timestamp: inv.Timestamp,
		})
	}
	return out, nil
}

func (s *Server) handleGetLoanRepayments(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	id, errResp := parseLoanID(params)
	if errResp != nil {
		return nil, errResp
	}
	repayments, err := s.node.LoanRepayments(id)
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	out := make([]RepaymentResult, 0, len(repayments))
	for _, rep := range repayments {
		out = append(out, RepaymentResult{
			Borrower:  crypto.FormatAddress(rep.Borrower),
			Amount:    amountString(rep.Amount),
			Timestamp: rep.Timestamp,
		})
	}
	return out, nil
}

func (s *Server) handleGetLoanPayouts(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	id, errResp := parseLoanID(params)
	if errResp != nil {
		return nil, errResp
	}
	payouts, err := s.node.LoanPayouts(id)
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	out := make([]PayoutResult, 0, len(payouts))
	for _, payout := range payouts {
		out = append(out, PayoutResult{
			Lender:    crypto.FormatAddress(payout.Lender),
			Amount:    amountString(payout.Amount),
			Timestamp: payout.Timestamp,
		})
	}
	return out, nil
}

func (s *Server) handleGetLedger(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	if errResp := noParams(params); errResp != nil {
		return nil, errResp
	}
	ledger, err := s.node.Ledger()
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	return ledgerResultFrom(ledger, s.node.ModuleAddress()), nil
}

type eventsParams struct {
	Cursor uint64 `json:"cursor"`
	Limit  uint64 `json:"limit"`
	Type   string `json:"type"`
}

func (s *Server) handleGetEvents(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	query := eventsParams{}
	if len(params) > 1 {
		return nil, invalidParams("too many parameters", nil)
	}
	if len(params) == 1 {
		if err := json.Unmarshal(params[0], &query); err != nil {
			return nil, invalidParams("invalid parameter object", err.Error())
		}
	}
	if query.Limit == 0 {
		query.Limit = s.defaultLimit()
	}
	if query.Limit > s.maxPageSize {
		return nil, moduleErrorFrom(fmt.Errorf("%w: limit %d exceeds %d", lending.ErrInvalidPagination, query.Limit, s.maxPageSize))
	}
	records, err := s.node.Events(query.Cursor, int(query.Limit), query.Type)
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	next := query.Cursor
	if len(records) > 0 {
		next = records[len(records)-1].Sequence + 1
	}
	return EventsResult{Events: eventResultsFrom(records), NextCursor: next}, nil
}

func (s *Server) handleGetBalance(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	addr, errResp := parseAddressParam(params)
	if errResp != nil {
		return nil, errResp
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	return BalanceResult{Address: crypto.FormatAddress(addr), Balance: amountString(balance)}, nil
}

func (s *Server) handleGetAccount(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	addr, errResp := parseAddressParam(params)
	if errResp != nil {
		return nil, errResp
	}
	account, err := s.node.Account(addr)
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	return accountResultFrom(addr, account), nil
}

func nonNilIDs(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}
