package core

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"trustflow/core/events"
	"trustflow/core/state"
	"trustflow/core/types"
	"trustflow/crypto"
	"trustflow/native/bank"
	nativecommon "trustflow/native/common"
	"trustflow/native/lending"
)

// execution bundles the per-call engine, bank and event buffer, all bound
// to one state overlay.
type execution struct {
	buffer *events.Buffer
	bank   *bank.Ledger
	engine *lending.Engine
}

func newExecution(mgr *state.Manager, receivers *bank.Receivers, pauses nativecommon.PauseView, clock func() time.Time) *execution {
	buffer := events.NewBuffer()
	ledger := bank.NewLedger(mgr, receivers)
	ledger.SetEmitter(buffer)
	engine := lending.NewEngine()
	engine.SetState(mgr)
	engine.SetBank(ledger)
	engine.SetEmitter(buffer)
	engine.SetPauses(pauses)
	engine.SetNowFunc(clock)
	return &execution{buffer: buffer, bank: ledger, engine: engine}
}

func (x *execution) dispatch(tx *types.Transaction, sender [20]byte, value *big.Int) (*Receipt, error) {
	receipt := &Receipt{}
	switch tx.Type {
	case types.TxTypeTransfer:
		to, err := recipient(tx.To)
		if err != nil {
			return nil, err
		}
		if err := x.bank.Transfer(sender, to, value); err != nil {
			return nil, err
		}
		receipt.Amount = new(big.Int).Set(value)
	case types.TxTypeCreateLoan:
		var payload types.CreateLoanPayload
		if err := decode(tx, &payload); err != nil {
			return nil, err
		}
		id, err := x.engine.CreateLoan(sender, lending.LoanRequest{
			Amount:          payload.Amount,
			InterestRateBps: payload.InterestRateBps,
			TermMonths:      payload.TermMonths,
			RiskScore:       payload.RiskScore,
			Purpose:         strings.TrimSpace(payload.Purpose),
		})
		if err != nil {
			return nil, err
		}
		receipt.LoanID = &id
	case types.TxTypeApproveLoan, types.TxTypeRejectLoan, types.TxTypeMarkDefaulted,
		types.TxTypeFundLoan, types.TxTypeRepayLoan:
		var payload types.LoanIDPayload
		if err := decode(tx, &payload); err != nil {
			return nil, err
		}
		if err := x.applyLoanCall(tx.Type, sender, payload.LoanID, value); err != nil {
			return nil, err
		}
		id := payload.LoanID
		receipt.LoanID = &id
		if tx.Type.IsValueBearing() {
			receipt.Amount = new(big.Int).Set(value)
		}
	case types.TxTypeSetPlatformFee:
		var payload types.PlatformFeePayload
		if err := decode(tx, &payload); err != nil {
			return nil, err
		}
		if err := x.engine.SetPlatformFee(sender, payload.FeeBps); err != nil {
			return nil, err
		}
	case types.TxTypeWithdrawFees:
		to, err := decodeAddress(tx)
		if err != nil {
			return nil, err
		}
		amount, err := x.engine.WithdrawFees(sender, to)
		if err != nil {
			return nil, err
		}
		receipt.Amount = amount
	case types.TxTypeTransferOwnership:
		next, err := decodeAddress(tx)
		if err != nil {
			return nil, err
		}
		if err := x.engine.TransferOwnership(sender, next); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTxType, tx.Type)
	}
	return receipt, nil
}

func (x *execution) applyLoanCall(txType types.TxType, sender [20]byte, id uint64, value *big.Int) error {
	switch txType {
	case types.TxTypeApproveLoan:
		return x.engine.ApproveLoan(sender, id)
	case types.TxTypeRejectLoan:
		return x.engine.RejectLoan(sender, id)
	case types.TxTypeMarkDefaulted:
		return x.engine.MarkDefaulted(sender, id)
	case types.TxTypeFundLoan:
		return x.engine.FundLoan(sender, id, value)
	case types.TxTypeRepayLoan:
		return x.engine.RepayLoan(sender, id, value)
	}
	return fmt.Errorf("%w: %s", ErrUnknownTxType, txType)
}

func decode(tx *types.Transaction, out interface{}) error {
	if err := types.DecodePayload(tx.Data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func decodeAddress(tx *types.Transaction) ([20]byte, error) {
	var payload types.AddressPayload
	if err := decode(tx, &payload); err != nil {
		return [20]byte{}, err
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(payload.Address))
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", lending.ErrInvalidAddress, err)
	}
	return addr.Raw(), nil
}

func recipient(raw []byte) ([20]byte, error) {
	var out [20]byte
	if len(raw) != len(out) {
		return out, fmt.Errorf("%w: transfer recipient must be %d bytes", ErrInvalidPayload, len(out))
	}
	copy(out[:], raw)
	return out, nil
}
