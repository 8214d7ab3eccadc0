package mcp

import (
	"errors"
	"fmt"
)

// ErrorKind names a protocol-level failure. It is sent to clients in the
// error's data.kind field and used as the metrics outcome label.
type ErrorKind string

const (
	KindParseError             ErrorKind = "ParseError"
	KindInvalidRequest         ErrorKind = "InvalidRequest"
	KindMethodNotFound         ErrorKind = "MethodNotFound"
	KindInvalidParams          ErrorKind = "InvalidParams"
	KindMissingArgument        ErrorKind = "MissingArgument"
	KindUnknownTool            ErrorKind = "UnknownTool"
	KindInvalidResource        ErrorKind = "InvalidResource"
	KindReadOnlyViolation      ErrorKind = "ReadOnlyViolation"
	KindAmbiguousIntrospection ErrorKind = "AmbiguousIntrospection"
	KindInternal               ErrorKind = "Internal"
)

const (
	codeParseError             = -32700
	codeInvalidRequest         = -32600
	codeMethodNotFound         = -32601
	codeInvalidParams          = -32602
	codeInternalError          = -32603
	codeReadOnlyViolation      = -32001
	codeResourceNotFound       = -32002
	codeAmbiguousIntrospection = -32003
)

func (k ErrorKind) Code() int {
	switch k {
	case KindParseError:
		return codeParseError
	case KindInvalidRequest:
		return codeInvalidRequest
	case KindMethodNotFound:
		return codeMethodNotFound
	case KindInvalidParams, KindMissingArgument, KindUnknownTool:
		return codeInvalidParams
	case KindInvalidResource:
		return codeResourceNotFound
	case KindReadOnlyViolation:
		return codeReadOnlyViolation
	case KindAmbiguousIntrospection:
		return codeAmbiguousIntrospection
	default:
		return codeInternalError
	}
}

type ProtocolError struct {
	Kind    ErrorKind
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProtocolError) rpcError() *RPCError {
	return &RPCError{
		Code:    e.Kind.Code(),
		Message: e.Message,
		Data:    &RPCErrorData{Kind: e.Kind},
	}
}

func protocolErrorf(kind ErrorKind, format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

var errInvalidByteCap = errors.New("must be a positive decimal integer")
