package models

import (
	"errors"
	"fmt"
)

// ErrorKind tags the variant of an RPCError
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindParse
	KindServer
	KindNonZeroExit
	KindMethodNotFound
	KindStorage
)

func (k ErrorKind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindServer:
		return "server"
	case KindNonZeroExit:
		return "non_zero_exit"
	case KindMethodNotFound:
		return "method_not_found"
	case KindStorage:
		return "storage"
	default:
		return "internal"
	}
}

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
	CodeNonZeroExit    = -32001
	CodeOSError        = -32002
)

// RPCError is the error model carried inside RPCResult and returned by handlers
type RPCError struct {
	Kind    ErrorKind              `json:"-"`
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`

	cause error
}

func (e *RPCError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%d): %v", e.Message, e.Code, e.cause)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

func (e *RPCError) Unwrap() error {
	return e.cause
}

// AsRPCError finds an RPCError anywhere in err's chain
func AsRPCError(err error) (*RPCError, bool) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

// IsKind reports whether err carries an RPCError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	rpcErr, ok := AsRPCError(err)
	return ok && rpcErr.Kind == kind
}

// KindForCode maps a wire code back to the variant it was built from
func KindForCode(code int) ErrorKind {
	switch code {
	case CodeParseError:
		return KindParse
	case CodeMethodNotFound:
		return KindMethodNotFound
	case CodeNonZeroExit:
		return KindNonZeroExit
	case CodeInternalError:
		return KindInternal
	default:
		return KindServer
	}
}

func dataOrEmpty(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	return data
}

func NewParseError(data map[string]interface{}) *RPCError {
	return &RPCError{Kind: KindParse, Code: CodeParseError, Message: "Parse Error", Data: dataOrEmpty(data)}
}

func NewInternalError(data map[string]interface{}) *RPCError {
	return &RPCError{Kind: KindInternal, Code: CodeInternalError, Message: "Internal Error", Data: dataOrEmpty(data)}
}

// NewServerError builds a domain failure with a caller-supplied code
func NewServerError(code int, msg string, data map[string]interface{}) *RPCError {
	return &RPCError{
		Kind:    KindServer,
		Code:    code,
		Message: "Internal Service Error - " + msg,
		Data:    dataOrEmpty(data),
	}
}

// NewOSError reports a child process that could not be started at all
func NewOSError(err error) *RPCError {
	e := NewServerError(CodeOSError, "OS error", map[string]interface{}{"error": err.Error()})
	e.cause = err
	return e
}

func NewNonZeroExitError(exitCode int, stderr string) *RPCError {
	return &RPCError{
		Kind:    KindNonZeroExit,
		Code:    CodeNonZeroExit,
		Message: "Service sub-command returned a non-zero exit",
		Data:    map[string]interface{}{"exitcode": exitCode, "stderr": stderr},
	}
}

func NewMethodNotFoundError(method string) *RPCError {
	return &RPCError{
		Kind:    KindMethodNotFound,
		Code:    CodeMethodNotFound,
		Message: "Method not found",
		Data:    map[string]interface{}{"method": method},
	}
}

// NewStorageError wraps a blob fetch/store failure
func NewStorageError(op, key string, err error) *RPCError {
	return &RPCError{
		Kind:    KindStorage,
		Code:    CodeInternalError,
		Message: "Storage Error",
		Data:    map[string]interface{}{"op": op, "key": key, "error": err.Error()},
		cause:   err,
	}
}

// WithCause attaches an underlying error for logging; it is not serialized
func (e *RPCError) WithCause(err error) *RPCError {
	e.cause = err
	return e
}
