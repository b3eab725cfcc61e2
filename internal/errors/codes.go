package errors

import (
	"fmt"
	"sync"
)

// Code is a stable numeric identifier for an error class. The built-in table
// covers the courier taxonomy; applications may register additional codes in
// the 2000+ range for their own failures.
type Code int

const (
	CodeUnknown          Code = 1000
	CodeInvalidArgument  Code = 1001
	CodeResourceDisposed Code = 1002
	CodeEndOfStream      Code = 1003
	CodeUnsupported      Code = 1004
	CodeInvalidSignature Code = 1005
	CodeNotImplemented   Code = 1006
	CodeCancelled        Code = 1007
	CodeTimeout          Code = 1008
)

var kindCodes = map[Kind]Code{
	KindUnknown:          CodeUnknown,
	KindInvalidArgument:  CodeInvalidArgument,
	KindResourceDisposed: CodeResourceDisposed,
	KindEndOfStream:      CodeEndOfStream,
	KindUnsupported:      CodeUnsupported,
	KindInvalidSignature: CodeInvalidSignature,
	KindNotImplemented:   CodeNotImplemented,
	KindCancelled:        CodeCancelled,
	KindTimeout:          CodeTimeout,
}

var (
	codeMu    sync.RWMutex
	codeTable = map[Code]string{
		CodeUnknown:          "unknown error",
		CodeInvalidArgument:  "invalid argument",
		CodeResourceDisposed: "resource disposed",
		CodeEndOfStream:      "unexpected end of stream",
		CodeUnsupported:      "unsupported operation",
		CodeInvalidSignature: "signature validation failed",
		CodeNotImplemented:   "not implemented",
		CodeCancelled:        "cancellation token triggered",
		CodeTimeout:          "deadline exceeded",
	}
)

// CodeFor returns the registry code for a kind.
func CodeFor(kind Kind) Code {
	if c, ok := kindCodes[kind]; ok {
		return c
	}
	return CodeUnknown
}

// Describe returns the registered description for a code, or "" when the
// code is unregistered.
func Describe(c Code) string {
	codeMu.RLock()
	defer codeMu.RUnlock()
	return codeTable[c]
}

// RegisterCode adds an application code to the registry. Codes below 2000
// are reserved for courier itself; re-registering an existing code fails.
func RegisterCode(c Code, description string) error {
	if c < 2000 {
		return New(KindInvalidArgument, "errors.RegisterCode", "code %d is reserved", c)
	}
	if description == "" {
		return New(KindInvalidArgument, "errors.RegisterCode", "description is required")
	}
	codeMu.Lock()
	defer codeMu.Unlock()
	if _, exists := codeTable[c]; exists {
		return New(KindInvalidArgument, "errors.RegisterCode", "code %d already registered", c)
	}
	codeTable[c] = description
	return nil
}

// MustDescribe is Describe for known-valid codes. It panics when the code
// is unregistered.
func MustDescribe(c Code) string {
	d := Describe(c)
	if d == "" {
		panic(fmt.Sprintf("courier: unregistered error code %d", c))
	}
	return d
}
