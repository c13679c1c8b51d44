package rpc

import (
	"encoding/json"
	"net/http"

	"trustflow/core/types"
	"trustflow/rpc/middleware"
)

// handleSendTransaction applies a signed transaction. When JWT auth is
// enabled the caller must present a bearer token as well as a valid
// signature.
func (s *Server) handleSendTransaction(r *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	subject, err := s.auth.Authenticate(r)
	if err != nil {
		return nil, unauthorized(err)
	}
	raw, errResp := singleParam(params)
	if errResp != nil {
		return nil, errResp
	}
	var tx types.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, invalidParams("invalid transaction", err.Error())
	}
	receipt, err := s.node.ApplyTransaction(&tx)
	if err != nil {
		return nil, moduleErrorFrom(err)
	}
	s.logger.Info("transaction applied",
		"type", receipt.Type.String(),
		"nonce", receipt.Nonce,
		"subject", subject,
		"request_id", middleware.RequestIDFromContext(r.Context()))
	return receiptResultFrom(receipt), nil
}
