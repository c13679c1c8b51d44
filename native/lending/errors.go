package lending

import (
	"errors"

	nativecommon "trustflow/native/common"
)

var (
	ErrNilState           = errors.New("lending: state not configured")
	ErrNilBank            = errors.New("lending: bank not configured")
	ErrNotInitialized     = errors.New("lending: ledger not initialized")
	ErrAlreadyInitialized = errors.New("lending: ledger already initialized")

	ErrInvalidAmount  = errors.New("lending: amount must be > 0")
	ErrInvalidTerm    = errors.New("lending: term must be 1-24 months")
	ErrFeeTooHigh     = errors.New("lending: fee too high")
	ErrInvalidAddress = errors.New("lending: invalid address")
	ErrNoFees         = errors.New("lending: no fees to withdraw")

	ErrInvalidPagination = errors.New("lending: invalid pagination")

	ErrNotOwner    = errors.New("lending: not owner")
	ErrSelfFunding = errors.New("lending: borrower cannot fund own loan")
	ErrNotBorrower = errors.New("lending: not borrower")

	ErrLoanNotFound         = errors.New("lending: loan not found")
	ErrInvalidStatus        = errors.New("lending: invalid loan status")
	ErrFundingExceedsAmount = errors.New("lending: funding exceeds loan amount")
	ErrReentrant            = errors.New("lending: reentrant call")

	ErrTransferFailed = errors.New("lending: transfer failed")
)

// ErrorClass groups rejection reasons for callers and metrics.
type ErrorClass string

const (
	ClassNone          ErrorClass = ""
	ClassValidation    ErrorClass = "validation"
	ClassAuthorization ErrorClass = "authorization"
	ClassState         ErrorClass = "state"
	ClassTransfer      ErrorClass = "transfer"
	ClassInternal      ErrorClass = "internal"
)

// Classify maps an engine error to its class.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidTerm),
		errors.Is(err, ErrFeeTooHigh),
		errors.Is(err, ErrInvalidAddress),
		errors.Is(err, ErrNoFees),
		errors.Is(err, ErrInvalidPagination):
		return ClassValidation
	case errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrSelfFunding),
		errors.Is(err, ErrNotBorrower):
		return ClassAuthorization
	case errors.Is(err, ErrLoanNotFound),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrFundingExceedsAmount),
		errors.Is(err, ErrReentrant),
		errors.Is(err, ErrNotInitialized),
		errors.Is(err, ErrAlreadyInitialized),
		errors.Is(err, nativecommon.ErrModulePaused):
		return ClassState
	case errors.Is(err, ErrTransferFailed):
		return ClassTransfer
	default:
		return ClassInternal
	}
}
