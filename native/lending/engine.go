package lending

import (
	"fmt"
	"math/big"
	"time"

	"trustflow/core/events"
	"trustflow/core/types"
	"trustflow/crypto"
	nativecommon "trustflow/native/common"
)

type engineState interface {
	LendingLedger() (*LedgerState, error)
	PutLendingLedger(ledger *LedgerState) error
	LendingLoan(id uint64) (*Loan, bool, error)
	PutLendingLoan(loan *Loan) error
	AppendLendingInvestment(id uint64, inv *Investment) error
	LendingInvestments(id uint64) ([]*Investment, error)
	AppendLendingRepayment(id uint64, rep *Repayment) error
	LendingRepayments(id uint64) ([]*Repayment, error)
	AppendLendingPayout(id uint64, payout *Payout) error
	LendingPayouts(id uint64) ([]*Payout, error)
	AppendBorrowerLoan(addr [20]byte, id uint64) error
	BorrowerLoans(addr [20]byte) ([]uint64, error)
	AppendLenderLoan(addr [20]byte, id uint64) error
	LenderLoans(addr [20]byte) ([]uint64, error)
}

// Bank moves native currency. Transfers out of the ledger may run untrusted
// receiver code.
type Bank interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// Engine implements the loan ledger state machine. It is not safe for
// concurrent use; callers serialize mutating calls.
type Engine struct {
	state         engineState
	bank          Bank
	emitter       events.Emitter
	pauses        nativecommon.PauseView
	moduleAddress [20]byte
	nowFn         func() time.Time
	entered       bool
}

// NewEngine returns an engine custodying funds at the lending module address.
func NewEngine() *Engine {
	return &Engine{
		emitter:       events.NoopEmitter{},
		moduleAddress: crypto.ModuleAddress(ModuleName),
		nowFn:         time.Now,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) {
	if e == nil {
		return
	}
	e.state = state
}

// SetBank configures the native currency ledger.
func (e *Engine) SetBank(bank Bank) {
	if e == nil {
		return
	}
	e.bank = bank
}

// SetEmitter configures the event sink. Nil restores the no-op emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module pause view consulted by borrower and lender calls.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the clock used for timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

// ModuleAddress returns the custody address holding escrow and fees.
func (e *Engine) ModuleAddress() [20]byte {
	return e.moduleAddress
}

func (e *Engine) now() uint64 {
	return uint64(e.nowFn().UTC().Unix())
}

func (e *Engine) emit(evt *types.Event) {
	if evt == nil {
		return
	}
	e.emitter.Emit(ledgerEvent{evt: evt})
}

// enter marks the start of a mutating call. Receiver hooks run while the
// flag is held, so nested mutations are refused.
func (e *Engine) enter() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.entered {
		return ErrReentrant
	}
	e.entered = true
	return nil
}

func (e *Engine) exit() {
	e.entered = false
}

func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e.bank == nil {
		return ErrNilBank
	}
	if err := e.bank.Transfer(from, to, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

func (e *Engine) loadLedger() (*LedgerState, error) {
	ledger, err := e.state.LendingLedger()
	if err != nil {
		return nil, err
	}
	if ledger == nil || !ledger.Initialized {
		return nil, ErrNotInitialized
	}
	if ledger.TotalPlatformFees == nil {
		ledger.TotalPlatformFees = big.NewInt(0)
	}
	return ledger, nil
}

func (e *Engine) loadOwnedLedger(caller [20]byte) (*LedgerState, error) {
	ledger, err := e.loadLedger()
	if err != nil {
		return nil, err
	}
	if ledger.Owner != caller {
		return nil, ErrNotOwner
	}
	return ledger, nil
}

func (e *Engine) loadLoan(id uint64) (*Loan, error) {
	loan, ok, err := e.state.LendingLoan(id)
	if err != nil {
		return nil, err
	}
	if !ok || loan == nil {
		return nil, fmt.Errorf("%w: %d", ErrLoanNotFound, id)
	}
	loan.Sanitize()
	return loan, nil
}

// Initialize records the owner and fee of a fresh ledger. It runs once, at
// genesis.
func (e *Engine) Initialize(owner [20]byte, feeBps uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if owner == ([20]byte{}) {
		return ErrInvalidAddress
	}
	if feeBps > MaxPlatformFeeBps {
		return ErrFeeTooHigh
	}
	existing, err := e.state.LendingLedger()
	if err != nil {
		return err
	}
	if existing != nil && existing.Initialized {
		return ErrAlreadyInitialized
	}
	return e.state.PutLendingLedger(&LedgerState{
		Owner:             owner,
		PlatformFeeBps:    feeBps,
		TotalPlatformFees: big.NewInt(0),
		Initialized:       true,
	})
}

// CreateLoan registers a Pending loan for borrower and returns its id.
func (e *Engine) CreateLoan(borrower [20]byte, req LoanRequest) (uint64, error) {
	if err := e.enter(); err != nil {
		return 0, err
	}
	defer e.exit()

	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return 0, err
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if req.TermMonths < MinTermMonths || req.TermMonths > MaxTermMonths {
		return 0, ErrInvalidTerm
	}
	ledger, err := e.loadLedger()
	if err != nil {
		return 0, err
	}

	id := ledger.LoanCount
	ledger.LoanCount++
	loan := &Loan{
		ID:              id,
		Borrower:        borrower,
		Amount:          new(big.Int).Set(req.Amount),
		InterestRateBps: req.InterestRateBps,
		TermMonths:      req.TermMonths,
		RiskScore:       req.RiskScore,
		Purpose:         req.Purpose,
		Status:          LoanStatusPending,
		TotalFunded:     big.NewInt(0),
		TotalRepaid:     big.NewInt(0),
		CreatedAt:       e.now(),
		MonthlyPayment:  big.NewInt(0),
		PlatformFee:     big.NewInt(0),
	}
	if err := e.state.PutLendingLoan(loan); err != nil {
		return 0, err
	}
	if err := e.state.AppendBorrowerLoan(borrower, id); err != nil {
		return 0, err
	}
	if err := e.state.PutLendingLedger(ledger); err != nil {
		return 0, err
	}
	e.emit(NewLoanCreatedEvent(loan))
	return id, nil
}

// ApproveLoan moves a Pending loan to Approved and fixes its monthly payment.
func (e *Engine) ApproveLoan(caller [20]byte, id uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if _, err := e.loadOwnedLedger(caller); err != nil {
		return err
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if loan.Status != LoanStatusPending {
		return fmt.Errorf("%w: cannot approve loan %d in status %s", ErrInvalidStatus, id, loan.Status)
	}
	loan.Status = LoanStatusApproved
	loan.MonthlyPayment = MonthlyPayment(loan.Amount, loan.InterestRateBps, loan.TermMonths)
	if err := e.state.PutLendingLoan(loan); err != nil {
		return err
	}
	e.emit(NewLoanApprovedEvent(loan))
	return nil
}

// RejectLoan moves a Pending loan to Rejected.
func (e *Engine) RejectLoan(caller [20]byte, id uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if _, err := e.loadOwnedLedger(caller); err != nil {
		return err
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if loan.Status != LoanStatusPending {
		return fmt.Errorf("%w: cannot reject loan %d in status %s", ErrInvalidStatus, id, loan.Status)
	}
	loan.Status = LoanStatusRejected
	if err := e.state.PutLendingLoan(loan); err != nil {
		return err
	}
	e.emit(NewLoanRejectedEvent(loan))
	return nil
}

// FundLoan contributes value from lender towards the loan. A contribution
// that would lift the total above the requested amount is refused as a
// whole. Reaching the amount activates the loan: the platform fee is
// withheld and the remainder is paid to the borrower.
func (e *Engine) FundLoan(lender [20]byte, id uint64, value *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if value == nil || value.Sign() <= 0 {
		return ErrInvalidAmount
	}
	ledger, err := e.loadLedger()
	if err != nil {
		return err
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if loan.Status != LoanStatusApproved && loan.Status != LoanStatusFunding {
		return fmt.Errorf("%w: cannot fund loan %d in status %s", ErrInvalidStatus, id, loan.Status)
	}
	if lender == loan.Borrower {
		return ErrSelfFunding
	}
	newTotal := new(big.Int).Add(loan.TotalFunded, value)
	if newTotal.Cmp(loan.Amount) > 0 {
		remaining := new(big.Int).Sub(loan.Amount, loan.TotalFunded)
		return fmt.Errorf("%w: %s remaining on loan %d", ErrFundingExceedsAmount, remaining, id)
	}

	// The contribution lands in custody before any bookkeeping so a lender
	// without funds fails the call up front.
	if err := e.transfer(lender, e.moduleAddress, value); err != nil {
		return err
	}

	now := e.now()
	if err := e.state.AppendLendingInvestment(id, &Investment{Lender: lender, Amount: new(big.Int).Set(value), Timestamp: now}); err != nil {
		return err
	}
	if err := e.state.AppendLenderLoan(lender, id); err != nil {
		return err
	}
	loan.TotalFunded = newTotal

	activated := newTotal.Cmp(loan.Amount) >= 0
	var disbursed *big.Int
	if activated {
		loan.Status = LoanStatusActive
		loan.FundedAt = now
		loan.PlatformFee = PlatformFee(loan.TotalFunded, ledger.PlatformFeeBps)
		disbursed = new(big.Int).Sub(loan.TotalFunded, loan.PlatformFee)
		ledger.TotalPlatformFees = new(big.Int).Add(ledger.TotalPlatformFees, loan.PlatformFee)
		if err := e.state.PutLendingLedger(ledger); err != nil {
			return err
		}
	} else if loan.Status == LoanStatusApproved {
		loan.Status = LoanStatusFunding
	}
	if err := e.state.PutLendingLoan(loan); err != nil {
		return err
	}
	e.emit(NewLoanFundedEvent(loan, lender, value))
	if !activated {
		return nil
	}
	e.emit(NewLoanActivatedEvent(loan, disbursed))

	if disbursed.Sign() > 0 {
		if err := e.transfer(e.moduleAddress, loan.Borrower, disbursed); err != nil {
			return err
		}
	}
	return nil
}

// RepayLoan applies value from the borrower to an Active loan and forwards
// it to the lenders pro-rata to their contributions. The loan is Repaid
// once the cumulative repayment covers the total owed. Overpayment is
// accepted and forwarded like any other repayment.
func (e *Engine) RepayLoan(borrower [20]byte, id uint64, value *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if value == nil || value.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, err := e.loadLedger(); err != nil {
		return err
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if loan.Status != LoanStatusActive {
		return fmt.Errorf("%w: cannot repay loan %d in status %s", ErrInvalidStatus, id, loan.Status)
	}
	if borrower != loan.Borrower {
		return ErrNotBorrower
	}
	investments, err := e.state.LendingInvestments(id)
	if err != nil {
		return err
	}
	lenders, weights := aggregateContributions(investments)
	if len(lenders) == 0 {
		return fmt.Errorf("%w: loan %d has no recorded investments", ErrInvalidStatus, id)
	}

	if err := e.transfer(borrower, e.moduleAddress, value); err != nil {
		return err
	}

	now := e.now()
	if err := e.state.AppendLendingRepayment(id, &Repayment{Borrower: borrower, Amount: new(big.Int).Set(value), Timestamp: now}); err != nil {
		return err
	}
	loan.TotalRepaid = new(big.Int).Add(loan.TotalRepaid, value)
	owed := TotalOwed(loan.Amount, loan.InterestRateBps, loan.TermMonths)
	fullyRepaid := loan.TotalRepaid.Cmp(owed) >= 0
	if fullyRepaid {
		loan.Status = LoanStatusRepaid
	}

	shares := splitProRata(value, weights)
	payouts := make([]*Payout, 0, len(shares))
	for i, share := range shares {
		if share.Sign() == 0 {
			continue
		}
		payout := &Payout{Lender: lenders[i], Amount: share, Timestamp: now}
		if err := e.state.AppendLendingPayout(id, payout); err != nil {
			return err
		}
		payouts = append(payouts, payout)
	}
	if err := e.state.PutLendingLoan(loan); err != nil {
		return err
	}

	e.emit(NewLoanRepaymentEvent(loan, value))
	for _, payout := range payouts {
		e.emit(NewPayoutEvent(id, payout))
	}
	if fullyRepaid {
		e.emit(NewLoanFullyRepaidEvent(loan, owed))
	}

	for _, payout := range payouts {
		if err := e.transfer(e.moduleAddress, payout.Lender, payout.Amount); err != nil {
			return err
		}
	}
	return nil
}

// aggregateContributions sums investments per lender, ordered by each
// lender's first investment.
func aggregateContributions(investments []*Investment) ([][20]byte, []*big.Int) {
	index := make(map[[20]byte]int)
	lenders := make([][20]byte, 0, len(investments))
	weights := make([]*big.Int, 0, len(investments))
	for _, inv := range investments {
		if inv == nil || inv.Amount == nil || inv.Amount.Sign() <= 0 {
			continue
		}
		pos, ok := index[inv.Lender]
		if !ok {
			pos = len(lenders)
			index[inv.Lender] = pos
			lenders = append(lenders, inv.Lender)
			weights = append(weights, big.NewInt(0))
		}
		weights[pos].Add(weights[pos], inv.Amount)
	}
	return lenders, weights
}

// MarkDefaulted moves an Active loan to Defaulted. Detection is an external
// concern; the owner records the outcome.
func (e *Engine) MarkDefaulted(caller [20]byte, id uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if _, err := e.loadOwnedLedger(caller); err != nil {
		return err
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if loan.Status != LoanStatusActive {
		return fmt.Errorf("%w: cannot default loan %d in status %s", ErrInvalidStatus, id, loan.Status)
	}
	loan.Status = LoanStatusDefaulted
	if err := e.state.PutLendingLoan(loan); err != nil {
		return err
	}
	e.emit(NewLoanDefaultedEvent(loan))
	return nil
}

// SetPlatformFee updates the fee applied at future activations.
func (e *Engine) SetPlatformFee(caller [20]byte, feeBps uint64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	ledger, err := e.loadOwnedLedger(caller)
	if err != nil {
		return err
	}
	if feeBps > MaxPlatformFeeBps {
		return fmt.Errorf("%w: %d exceeds %d bps", ErrFeeTooHigh, feeBps, MaxPlatformFeeBps)
	}
	previous := ledger.PlatformFeeBps
	ledger.PlatformFeeBps = feeBps
	if err := e.state.PutLendingLedger(ledger); err != nil {
		return err
	}
	e.emit(NewPlatformFeeUpdatedEvent(previous, feeBps))
	return nil
}

// WithdrawFees sends every accrued platform fee to the recipient and resets
// the accumulator.
func (e *Engine) WithdrawFees(caller, to [20]byte) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	ledger, err := e.loadOwnedLedger(caller)
	if err != nil {
		return nil, err
	}
	if to == ([20]byte{}) {
		return nil, ErrInvalidAddress
	}
	if ledger.TotalPlatformFees.Sign() <= 0 {
		return nil, ErrNoFees
	}
	amount := new(big.Int).Set(ledger.TotalPlatformFees)
	ledger.TotalPlatformFees = big.NewInt(0)
	if err := e.state.PutLendingLedger(ledger); err != nil {
		return nil, err
	}
	e.emit(NewFundsWithdrawnEvent(to, amount))

	if err := e.transfer(e.moduleAddress, to, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// TransferOwnership hands the admin role to newOwner in a single step.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	ledger, err := e.loadOwnedLedger(caller)
	if err != nil {
		return err
	}
	if newOwner == ([20]byte{}) {
		return ErrInvalidAddress
	}
	previous := ledger.Owner
	ledger.Owner = newOwner
	if err := e.state.PutLendingLedger(ledger); err != nil {
		return err
	}
	e.emit(NewOwnershipTransferredEvent(previous, newOwner))
	return nil
}

// --- Queries ---

// Ledger returns the ledger-wide state.
func (e *Engine) Ledger() (*LedgerState, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.loadLedger()
}

// GetLoan returns a copy of the loan.
func (e *Engine) GetLoan(id uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.loadLoan(id)
}

// LoanCount returns the number of loans ever created.
func (e *Engine) LoanCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	ledger, err := e.state.LendingLedger()
	if err != nil {
		return 0, err
	}
	if ledger == nil {
		return 0, nil
	}
	return ledger.LoanCount, nil
}

// GetLoans returns the loans with ids in [offset, offset+limit), clipped
// to the number of loans.
func (e *Engine) GetLoans(offset, limit uint64) ([]*Loan, error) {
	count, err := e.LoanCount()
	if err != nil {
		return nil, err
	}
	if offset >= count || limit == 0 {
		return []*Loan{}, nil
	}
	end := count
	if limit < count-offset {
		end = offset + limit
	}
	loans := make([]*Loan, 0, end-offset)
	for id := offset; id < end; id++ {
		loan, err := e.loadLoan(id)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, nil
}

// BorrowerLoanIDs lists the loans created by addr.
func (e *Engine) BorrowerLoanIDs(addr [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.BorrowerLoans(addr)
}

// LenderLoanIDs lists the loans addr has funded, once each.
func (e *Engine) LenderLoanIDs(addr [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.LenderLoans(addr)
}

// TotalOwed returns principal plus interest for the full term of the loan.
func (e *Engine) TotalOwed(id uint64) (*big.Int, error) {
	loan, err := e.GetLoan(id)
	if err != nil {
		return nil, err
	}
	return TotalOwed(loan.Amount, loan.InterestRateBps, loan.TermMonths), nil
}

// RemainingOwed returns what the borrower still has to repay, never below
// zero.
func (e *Engine) RemainingOwed(id uint64) (*big.Int, error) {
	loan, err := e.GetLoan(id)
	if err != nil {
		return nil, err
	}
	remaining := TotalOwed(loan.Amount, loan.InterestRateBps, loan.TermMonths)
	remaining.Sub(remaining, loan.TotalRepaid)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	return remaining, nil
}

// LoanInvestments returns the funding contributions of a loan in order.
func (e *Engine) LoanInvestments(id uint64) ([]*Investment, error) {
	if _, err := e.GetLoan(id); err != nil {
		return nil, err
	}
	return e.state.LendingInvestments(id)
}

// LoanRepayments returns the repayments made against a loan in order.
func (e *Engine) LoanRepayments(id uint64) ([]*Repayment, error) {
	if _, err := e.GetLoan(id); err != nil {
		return nil, err
	}
	return e.state.LendingRepayments(id)
}

// LoanPayouts returns the amounts forwarded to lenders from repayments.
func (e *Engine) LoanPayouts(id uint64) ([]*Payout, error) {
	if _, err := e.GetLoan(id); err != nil {
		return nil, err
	}
	return e.state.LendingPayouts(id)
}
