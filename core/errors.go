package core

import (
	"errors"

	"trustflow/core/state"
	"trustflow/core/types"
	"trustflow/native/bank"
	nativecommon "trustflow/native/common"
	"trustflow/native/lending"
)

// ClassThrottled marks calls refused by the per-sender quota.
const ClassThrottled lending.ErrorClass = "throttled"

// Classify extends lending.Classify with the checks the node performs
// before dispatch.
func Classify(err error) lending.ErrorClass {
	switch {
	case err == nil:
		return lending.ClassNone
	case errors.Is(err, ErrInvalidChainID),
		errors.Is(err, ErrNonceMismatch),
		errors.Is(err, ErrUnexpectedValue),
		errors.Is(err, ErrUnknownTxType),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrNilTransaction),
		errors.Is(err, types.ErrMissingSignature),
		errors.Is(err, types.ErrInvalidSignature),
		errors.Is(err, bank.ErrInvalidAmount):
		return lending.ClassValidation
	case errors.Is(err, nativecommon.ErrQuotaRequestsExceeded),
		errors.Is(err, nativecommon.ErrQuotaValueCapExceeded),
		errors.Is(err, nativecommon.ErrQuotaCounterOverflow):
		return ClassThrottled
	case errors.Is(err, bank.ErrInsufficientBalance),
		errors.Is(err, state.ErrBalanceOutOfRange):
		return lending.ClassTransfer
	}
	return lending.Classify(err)
}
