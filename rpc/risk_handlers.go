package rpc

import (
	"encoding/json"
	"net/http"

	"trustflow/native/lending"
	"trustflow/risk"
)

type riskQuoteParams struct {
	Profile    risk.Input `json:"profile"`
	TermMonths uint64     `json:"termMonths"`
}

// handleRiskQuote scores a borrower profile and prices it for the
// requested term, defaulting to risk.SuggestedTerm.
func (s *Server) handleRiskQuote(_ *http.Request, params []json.RawMessage) (interface{}, *ModuleError) {
	raw, errResp := singleParam(params)
	if errResp != nil {
		return nil, errResp
	}
	var input riskQuoteParams
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, invalidParams("invalid parameter object", err.Error())
	}
	term := input.TermMonths
	if term == 0 {
		term = risk.SuggestedTerm
	}
	if term < lending.MinTermMonths || term > lending.MaxTermMonths {
		return nil, moduleErrorFrom(lending.ErrInvalidTerm)
	}
	result := risk.Score(input.Profile)
	result.APR = risk.APR(result.Score, term, input.Profile.CollateralPercentage)
	return RiskQuoteResult{
		Result:          result,
		TermMonths:      term,
		InterestRateBps: risk.InterestRateBps(result.Score, term, input.Profile.CollateralPercentage),
	}, nil
}
