// Package errors defines the courier error taxonomy. Every failure that
// crosses a package boundary is either one of the sentinel errors below or an
// *Error carrying a Kind, so callers can branch on the class of failure
// without string matching. Foreign errors (net, crypto, JSON) are converted
// with Normalize before they are emitted on an error event or returned.
package errors

import (
	sterrors "errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown wraps foreign or unexpected failures.
	KindUnknown Kind = iota
	// KindInvalidArgument covers malformed addresses, ports, algorithm
	// selectors, and missing required arguments.
	KindInvalidArgument
	// KindResourceDisposed marks operations on a disposed connection,
	// server, endpoint, or emitter.
	KindResourceDisposed
	// KindEndOfStream marks a read past the end of a buffer.
	KindEndOfStream
	// KindUnsupported marks an unrecognized wire tag or encoding.
	KindUnsupported
	// KindInvalidSignature marks a signature mismatch on parse.
	KindInvalidSignature
	// KindNotImplemented marks reserved surface: UDP transport and the
	// sign algorithms that are registered but not yet backed.
	KindNotImplemented
	// KindCancelled marks cancellation-triggered teardown.
	KindCancelled
	// KindTimeout marks a connection or listen deadline exceeded.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindResourceDisposed:
		return "resource disposed"
	case KindEndOfStream:
		return "end of stream"
	case KindUnsupported:
		return "unsupported operation"
	case KindInvalidSignature:
		return "invalid signature"
	case KindNotImplemented:
		return "not implemented"
	case KindCancelled:
		return "token cancelled"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown error"
	}
}

// Error is the typed error carried across courier package boundaries.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "envelope.Parse"
	Err  error  // wrapped cause, may be nil
	msg  string
}

func (e *Error) Error() string {
	prefix := "courier"
	if e.Op != "" {
		prefix = "courier: " + e.Op
	}
	switch {
	case e.msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.msg, e.Err)
	case e.msg != "":
		return fmt.Sprintf("%s: %s", prefix, e.msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the registry code for the error's kind.
func (e *Error) Code() Code { return CodeFor(e.Kind) }

// New builds an *Error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to an existing error. A nil err yields
// nil so call sites can wrap unconditionally.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the Kind of err, unwrapping as needed. Plain errors
// report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if sterrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return sterrors.As(err, &e) && e.Kind == kind
}

// Normalize converts a foreign failure into the courier taxonomy. Errors
// already carrying a Kind pass through unchanged; everything else is wrapped
// as KindUnknown.
func Normalize(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if sterrors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindUnknown, Op: op, Err: err}
}
