package core

import (
	"math/big"

	"trustflow/core/state"
	"trustflow/core/types"
	"trustflow/native/bank"
	"trustflow/native/lending"
)

// reader returns an engine over committed state. Its overlay is never
// committed, so queries cannot write.
func (n *Node) reader() (*lending.Engine, *state.Manager) {
	mgr := state.NewManager(n.db)
	engine := lending.NewEngine()
	engine.SetState(mgr)
	return engine, mgr
}

func (n *Node) Loan(id uint64) (*lending.Loan, error) {
	engine, _ := n.reader()
	return engine.GetLoan(id)
}

// Loans pages through loans in id order.
func (n *Node) Loans(offset, limit uint64) ([]*lending.Loan, error) {
	engine, _ := n.reader()
	return engine.GetLoans(offset, limit)
}

func (n *Node) LoanCount() (uint64, error) {
	engine, _ := n.reader()
	return engine.LoanCount()
}

func (n *Node) BorrowerLoanIDs(addr [20]byte) ([]uint64, error) {
	engine, _ := n.reader()
	return engine.BorrowerLoanIDs(addr)
}

func (n *Node) LenderLoanIDs(addr [20]byte) ([]uint64, error) {
	engine, _ := n.reader()
	return engine.LenderLoanIDs(addr)
}

func (n *Node) TotalOwed(id uint64) (*big.Int, error) {
	engine, _ := n.reader()
	return engine.TotalOwed(id)
}

func (n *Node) RemainingOwed(id uint64) (*big.Int, error) {
	engine, _ := n.reader()
	return engine.RemainingOwed(id)
}

func (n *Node) LoanInvestments(id uint64) ([]*lending.Investment, error) {
	engine, _ := n.reader()
	return engine.LoanInvestments(id)
}

func (n *Node) LoanRepayments(id uint64) ([]*lending.Repayment, error) {
	engine, _ := n.reader()
	return engine.LoanRepayments(id)
}

func (n *Node) LoanPayouts(id uint64) ([]*lending.Payout, error) {
	engine, _ := n.reader()
	return engine.LoanPayouts(id)
}

func (n *Node) Ledger() (*lending.LedgerState, error) {
	engine, _ := n.reader()
	return engine.Ledger()
}

// Account returns the nonce and balance of addr.
func (n *Node) Account(addr [20]byte) (*types.Account, error) {
	_, mgr := n.reader()
	return mgr.GetAccount(addr[:])
}

func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	_, mgr := n.reader()
	return bank.NewLedger(mgr, nil).Balance(addr)
}

// Events returns up to limit persisted events from cursor on, optionally
// filtered by type.
func (n *Node) Events(cursor uint64, limit int, eventType string) ([]*state.EventRecord, error) {
	_, mgr := n.reader()
	return mgr.EventsFrom(cursor, limit, eventType)
}
