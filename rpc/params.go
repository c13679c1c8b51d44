package rpc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"trustflow/crypto"
	"trustflow/native/lending"
)

const defaultPageSize = 20

func singleParam(params []json.RawMessage) (json.RawMessage, *ModuleError) {
	if len(params) != 1 {
		return nil, invalidParams("expected exactly one parameter", nil)
	}
	return params[0], nil
}

func noParams(params []json.RawMessage) *ModuleError {
	if len(params) != 0 {
		return invalidParams("no parameters expected", nil)
	}
	return nil
}

// parseLoanID accepts a bare number, a numeric string or {"loanId": n}.
func parseLoanID(params []json.RawMessage) (uint64, *ModuleError) {
	raw, errResp := singleParam(params)
	if errResp != nil {
		return 0, errResp
	}
	var direct uint64
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		id, parseErr := strconv.ParseUint(strings.TrimSpace(text), 10, 64)
		if parseErr != nil {
			return 0, invalidParams("invalid loan id", parseErr.Error())
		}
		return id, nil
	}
	var wrapper struct {
		LoanID *uint64 `json:"loanId"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.LoanID == nil {
		return 0, invalidParams("loanId required", nil)
	}
	return *wrapper.LoanID, nil
}

// parseAddressParam accepts a bech32 string or {"address": "..."}.
func parseAddressParam(params []json.RawMessage) ([20]byte, *ModuleError) {
	var zero [20]byte
	raw, errResp := singleParam(params)
	if errResp != nil {
		return zero, errResp
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var wrapper struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return zero, invalidParams("address required", nil)
		}
		text = wrapper.Address
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(text))
	if err != nil {
		return zero, invalidParams("invalid address", err.Error())
	}
	return addr.Raw(), nil
}

type pageParams struct {
	Offset uint64
	Limit  uint64
}

// An absent limit takes the default page size; an explicit zero is kept
// and yields an empty page.
func (s *Server) parsePage(params []json.RawMessage) (pageParams, *ModuleError) {
	page := pageParams{Limit: s.defaultLimit()}
	if len(params) > 1 {
		return page, invalidParams("too many parameters", nil)
	}
	if len(params) == 1 {
		var wire struct {
			Offset uint64  `json:"offset"`
			Limit  *uint64 `json:"limit"`
		}
		if err := json.Unmarshal(params[0], &wire); err != nil {
			return page, moduleErrorFrom(fmt.Errorf("%w: %v", lending.ErrInvalidPagination, err))
		}
		page.Offset = wire.Offset
		if wire.Limit != nil {
			page.Limit = *wire.Limit
		}
	}
	if page.Limit > s.maxPageSize {
		return page, moduleErrorFrom(fmt.Errorf("%w: limit %d exceeds %d", lending.ErrInvalidPagination, page.Limit, s.maxPageSize))
	}
	return page, nil
}

// defaultLimit is the page size used when a request names none. It never
// exceeds the configured maximum.
func (s *Server) defaultLimit() uint64 {
	if s.maxPageSize < defaultPageSize {
		return s.maxPageSize
	}
	return defaultPageSize
}
