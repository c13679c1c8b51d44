package rpc

import (
	"errors"
	"net/http"

	"trustflow/core"
	"trustflow/native/lending"
	"trustflow/rpc/middleware"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
)

// ModuleError carries the HTTP status and JSON-RPC error of a failed call.
type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}

	cause error
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidParams(message string, data interface{}) *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: message, Data: data}
}

func unauthorized(err error) *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusUnauthorized, Code: codeUnauthorized, Message: "unauthorized", Data: err.Error()}
}

// moduleErrorFrom maps a node or engine error onto the wire. Rejections
// keep their reason string so callers can tell them apart.
func moduleErrorFrom(err error) *ModuleError {
	if err == nil {
		return nil
	}
	class := core.Classify(err)
	switch class {
	case lending.ClassValidation, lending.ClassAuthorization, lending.ClassState, lending.ClassTransfer:
		return &ModuleError{
			HTTPStatus: http.StatusBadRequest,
			Code:       codeServerError,
			Message:    err.Error(),
			Data:       map[string]string{"class": string(class)},
		}
	case core.ClassThrottled:
		return &ModuleError{
			HTTPStatus: http.StatusTooManyRequests,
			Code:       codeRateLimited,
			Message:    err.Error(),
			Data:       map[string]string{"class": string(class)},
		}
	}
	if errors.Is(err, middleware.ErrMissingToken) || errors.Is(err, middleware.ErrInvalidToken) {
		return unauthorized(err)
	}
	return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeInternalError, Message: "internal error", cause: err}
}
