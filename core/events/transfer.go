package events

import (
	"math/big"

	"trustflow/core/types"
	"trustflow/crypto"
)

const (
	// TypeTransfer is emitted for native balance movements.
	TypeTransfer = "transfer.native"
)

type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTransfer,
		Attributes: map[string]string{
			"from":   crypto.MustNewAddress(crypto.TFPrefix, e.From[:]).String(),
			"to":     crypto.MustNewAddress(crypto.TFPrefix, e.To[:]).String(),
			"amount": formatAmount(e.Amount),
		},
	}
}
