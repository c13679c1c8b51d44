package types

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeTransfer          TxType = 0x01 // Native currency transfer
	TxTypeCreateLoan        TxType = 0x10
	TxTypeApproveLoan       TxType = 0x11
	TxTypeRejectLoan        TxType = 0x12
	TxTypeFundLoan          TxType = 0x13 // Value-bearing
	TxTypeRepayLoan         TxType = 0x14 // Value-bearing
	TxTypeSetPlatformFee    TxType = 0x15
	TxTypeWithdrawFees      TxType = 0x16
	TxTypeTransferOwnership TxType = 0x17
	TxTypeMarkDefaulted     TxType = 0x18
)

var (
	ErrMissingSignature = errors.New("transaction: missing signature")
	ErrInvalidSignature = errors.New("transaction: invalid signature")
)

// String returns the human readable label of the transaction type.
func (t TxType) String() string {
	switch t {
	case TxTypeTransfer:
		return "Transfer"
	case TxTypeCreateLoan:
		return "CreateLoan"
	case TxTypeApproveLoan:
		return "ApproveLoan"
	case TxTypeRejectLoan:
		return "RejectLoan"
	case TxTypeFundLoan:
		return "FundLoan"
	case TxTypeRepayLoan:
		return "RepayLoan"
	case TxTypeSetPlatformFee:
		return "SetPlatformFee"
	case TxTypeWithdrawFees:
		return "WithdrawFees"
	case TxTypeTransferOwnership:
		return "TransferOwnership"
	case TxTypeMarkDefaulted:
		return "MarkDefaulted"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", byte(t))
	}
}

// IsValueBearing reports whether the transaction type moves Value into the
// ledger or to a recipient.
func (t TxType) IsValueBearing() bool {
	switch t {
	case TxTypeTransfer, TxTypeFundLoan, TxTypeRepayLoan:
		return true
	default:
		return false
	}
}

// Transaction is a signed call against the ledger. The sender is recovered
// from the secp256k1 signature and never transmitted.
type Transaction struct {
	ChainID uint64   `json:"chainId"`
	Type    TxType   `json:"type"`
	Nonce   uint64   `json:"nonce"`
	To      []byte   `json:"to,omitempty"`
	Value   *big.Int `json:"value,omitempty"`
	Data    []byte   `json:"data,omitempty"`

	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from []byte
}

// Hash covers every field except the signature.
func (tx *Transaction) Hash() ([]byte, error) {
	txData := struct {
		ChainID uint64
		Type    TxType
		Nonce   uint64
		To      []byte
		Value   *big.Int
		Data    []byte
	}{tx.ChainID, tx.Type, tx.Nonce, tx.To, tx.Value, tx.Data}

	b, err := json.Marshal(txData)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(b)
	return hash[:], nil
}

func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	tx.from = nil
	return nil
}

// From recovers the sender address. The result is cached.
func (tx *Transaction) From() ([]byte, error) {
	if tx.from != nil {
		return tx.from, nil
	}
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return nil, ErrMissingSignature
	}
	rBytes, sBytes := tx.R.Bytes(), tx.S.Bytes()
	if len(rBytes) > 32 || len(sBytes) > 32 || !tx.V.IsUint64() {
		return nil, ErrInvalidSignature
	}
	v := tx.V.Uint64()
	if v != 27 && v != 28 {
		return nil, ErrInvalidSignature
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 65)
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	sig[64] = byte(v - 27)
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	tx.from = crypto.PubkeyToAddress(*pubKey).Bytes()
	return tx.from, nil
}
