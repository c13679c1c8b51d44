package types

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// CreateLoanPayload is the Data of a TxTypeCreateLoan transaction.
type CreateLoanPayload struct {
	Amount          *big.Int `json:"amount"`
	InterestRateBps uint64   `json:"interestRateBps"`
	TermMonths      uint64   `json:"termMonths"`
	RiskScore       uint64   `json:"riskScore"`
	Purpose         string   `json:"purpose"`
}

// LoanIDPayload targets an existing loan. Used by approve, reject, fund,
// repay and default transactions.
type LoanIDPayload struct {
	LoanID uint64 `json:"loanId"`
}

// PlatformFeePayload carries the new fee for TxTypeSetPlatformFee.
type PlatformFeePayload struct {
	FeeBps uint64 `json:"feeBps"`
}

// AddressPayload carries a bech32 address for fee withdrawal and ownership
// transfer.
type AddressPayload struct {
	Address string `json:"address"`
}

// EncodePayload marshals a payload for use as Transaction.Data.
func EncodePayload(payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload unmarshals Transaction.Data into out.
func DecodePayload(data []byte, out interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("decode payload: empty data")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
