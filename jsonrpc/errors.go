package jsonrpc

import (
	"errors"
	"fmt"
)

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Fixed messages for the protocol-level error variants.
const (
	msgParseError     = "Invalid JSON was received by the server. An error occurred on the server while parsing the JSON text."
	msgInvalidRequest = "The JSON sent is not a valid Request object."
	msgMethodNotFound = "The method does not exist / is not available."
	msgInvalidParams  = "Invalid method parameter(s)."
	msgInternalError  = "Internal JSON-RPC error."
)

// Error is a JSON-RPC 2.0 error object.
//
// The five protocol variants are created by the New*Error constructors. Only
// InternalError carries Data; the other variants are fixed descriptions so that
// no implementation detail leaks through the protocol.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return "jsonrpc: error: <nil>"
	}
	if s, ok := e.Data.(string); ok && s != "" {
		return fmt.Sprintf("jsonrpc: %d %s: %s", e.Code, e.Message, s)
	}
	return fmt.Sprintf("jsonrpc: %d %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for use with errors.Is.
var (
	ErrParse          = &Error{Code: CodeParseError, Message: msgParseError}
	ErrInvalidRequest = &Error{Code: CodeInvalidRequest, Message: msgInvalidRequest}
	ErrMethodNotFound = &Error{Code: CodeMethodNotFound, Message: msgMethodNotFound}
	ErrInvalidParams  = &Error{Code: CodeInvalidParams, Message: msgInvalidParams}
	ErrInternal       = &Error{Code: CodeInternalError, Message: msgInternalError}
)

func NewParseError() *Error {
	return &Error{Code: CodeParseError, Message: msgParseError}
}

func NewInvalidRequestError() *Error {
	return &Error{Code: CodeInvalidRequest, Message: msgInvalidRequest}
}

func NewMethodNotFoundError() *Error {
	return &Error{Code: CodeMethodNotFound, Message: msgMethodNotFound}
}

func NewInvalidParamsError() *Error {
	return &Error{Code: CodeInvalidParams, Message: msgInvalidParams}
}

// NewInternalError returns an InternalError. When cause is non-nil its
// description is attached as Data.
func NewInternalError(cause error) *Error {
	e := &Error{Code: CodeInternalError, Message: msgInternalError}
	if cause != nil {
		e.Data = cause.Error()
	}
	return e
}

// paramsError is a binding failure. It always surfaces as InvalidParams; the
// reason is kept for logs only.
type paramsError struct {
	reason string
	cause  error
}

func (e *paramsError) Error() string {
	if e.cause != nil {
		return "invalid params: " + e.reason + ": " + e.cause.Error()
	}
	return "invalid params: " + e.reason
}

func (e *paramsError) Unwrap() error { return e.cause }

func (e *paramsError) Is(target error) bool { return target == ErrInvalidParams }

func invalidParams(reason string, cause error) error {
	return &paramsError{reason: reason, cause: cause}
}

// toRPCError maps any error returned from binding or invocation onto the
// error taxonomy. Protocol errors keep their code with Data stripped; anything
// else becomes InternalError carrying the error text.
func toRPCError(err error) *Error {
	var pe *paramsError
	if errors.As(err, &pe) {
		return NewInvalidParamsError()
	}
	var re *Error
	if errors.As(err, &re) && re != nil {
		if re.Code == CodeInternalError {
			return &Error{Code: CodeInternalError, Message: msgInternalError, Data: re.Data}
		}
		return &Error{Code: re.Code, Message: re.Message}
	}
	return NewInternalError(err)
}
