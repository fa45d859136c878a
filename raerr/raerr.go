// Package raerr defines the error vocabulary shared by the redundancy and
// safety/retransmission layers.
//
// Every operation in the core returns one of these codes (wrapped as an
// error) instead of a bare string, so callers and the platform adapter's
// fatal-error sink can switch on a stable, closed set of reasons.
package raerr

import "fmt"

// Code enumerates the error kinds a core operation can report.
type Code int

const (
	// NoError means the operation completed normally. Operations that
	// return (T, error) return a nil error instead of this code; it only
	// appears in contexts (tests, logging) that want to name the "ok" case.
	NoError Code = iota
	NotInitialized
	AlreadyInitialized
	InvalidParameter
	InvalidConfiguration
	InvalidSequenceNumber
	InvalidMessageCrc
	InvalidBufferSize
	SendBufferFull
	ReceiveBufferFull
	NoMessageToSend
	NoMessageReceived
	DeferQueueEmpty
	InternalError
)

var names = map[Code]string{
	NoError:                "NoError",
	NotInitialized:         "NotInitialized",
	AlreadyInitialized:     "AlreadyInitialized",
	InvalidParameter:       "InvalidParameter",
	InvalidConfiguration:   "InvalidConfiguration",
	InvalidSequenceNumber:  "InvalidSequenceNumber",
	InvalidMessageCrc:      "InvalidMessageCrc",
	InvalidBufferSize:      "InvalidBufferSize",
	SendBufferFull:         "SendBufferFull",
	ReceiveBufferFull:      "ReceiveBufferFull",
	NoMessageToSend:        "NoMessageToSend",
	NoMessageReceived:      "NoMessageReceived",
	DeferQueueEmpty:        "DeferQueueEmpty",
	InternalError:          "InternalError",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Fatal reports whether c indicates a condition so severe it is routed to
// the platform's fatal-error sink rather than returned to the caller as a
// recoverable error.
func (c Code) Fatal() bool {
	switch c {
	case NotInitialized, AlreadyInitialized, InvalidParameter,
		InvalidBufferSize, SendBufferFull, ReceiveBufferFull,
		DeferQueueEmpty, InternalError:
		return true
	default:
		return false
	}
}

// Error wraps a Code with contextual detail. It implements the error
// interface so it composes with errors.Is/errors.As.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Is allows errors.Is(err, raerr.New(SomeCode, "")) to match on Code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds an *Error for the given code with an optional detail string.
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Newf builds an *Error with a formatted detail string.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// FatalSink is the narrow collaborator a package needs to honor Fatal's
// routing policy, satisfied structurally by platform.Adapter without this
// package importing it.
type FatalSink interface {
	FatalError(code Code, detail string)
}

// Raise reports err to sink when its Code is Fatal, then returns err
// unchanged: FatalError is expected never to return, but a sink that does
// return control still leaves the caller with the original error to abort
// the operation with. Raise is a no-op passthrough for nil or non-fatal
// errors, so callers can wrap every raerr return site uniformly.
func Raise(sink FatalSink, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok && e.Code.Fatal() {
		sink.FatalError(e.Code, e.Detail)
	}
	return err
}

// NoopFatalSink discards every report. Tests exercising a component in
// isolation, with no platform adapter to assert against, can pass this
// instead of a real Adapter.
type NoopFatalSink struct{}

// FatalError implements FatalSink by doing nothing.
func (NoopFatalSink) FatalError(Code, string) {}
