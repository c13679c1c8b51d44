package main

import (
	"fmt"
	"io"
	"math/big"

	"trustflow/core/types"
	"trustflow/rpc"
)

type txRequest struct {
	KeyPath string
	Type    types.TxType
	Payload interface{}
	Value   *big.Int
	To      []byte
}

// buildSignedTx fills chain id and nonce from the node and signs the
// request with the keystore key.
func buildSignedTx(req txRequest) (*types.Transaction, error) {
	key, err := loadSigner(req.KeyPath)
	if err != nil {
		return nil, err
	}
	chainID, err := chainIDLookup()
	if err != nil {
		return nil, err
	}
	var account rpc.AccountResult
	if err := callInto("tf_getAccount", []interface{}{key.PubKey().Address().String()}, &account); err != nil {
		return nil, err
	}
	tx := &types.Transaction{
		ChainID: chainID,
		Type:    req.Type,
		Nonce:   account.Nonce,
		To:      req.To,
		Value:   req.Value,
	}
	if req.Payload != nil {
		data, err := types.EncodePayload(req.Payload)
		if err != nil {
			return nil, err
		}
		tx.Data = data
	}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

func sendTx(req txRequest, stdout, stderr io.Writer) int {
	tx, err := buildSignedTx(req)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return runRPC("lending_sendTransaction", []interface{}{tx}, true, stdout, stderr)
}

func parseAmountFlag(name, raw string) (*big.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("--%s is required", name)
	}
	amount, err := types.ParseAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	if amount.Sign() == 0 {
		return nil, fmt.Errorf("--%s must be positive", name)
	}
	return amount, nil
}
