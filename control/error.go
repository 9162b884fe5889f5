// Package control implements the request/reply surface shared by the
// analyzer, capture and generator subsystems: an in-process Dispatcher
// plus a common Error/Code taxonomy. No wire framing is implemented
// here (ZMQ/REST transport is out of scope); this is the plain Go
// request/reply layer that would sit behind one, matching
// intf/intf.go's interface-first style.
package control

import "fmt"

// Code enumerates the error taxonomy: every fallible control-plane
// operation reports exactly one of these.
type Code int

const (
	OK Code = iota
	InvalidArgument
	NotFound
	ResourceExhausted
	AlreadyExists
	FailedPrecondition
	Io
	Transport
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case ResourceExhausted:
		return "ResourceExhausted"
	case AlreadyExists:
		return "AlreadyExists"
	case FailedPrecondition:
		return "FailedPrecondition"
	case Io:
		return "Io"
	case Transport:
		return "Transport"
	default:
		return "Unknown"
	}
}

// Error extends error with the dispatcher's return code and an optional
// wrapped cause, the same DataType/Detail/Code()-int shape as
// etl.ProcessingError (etl/etl.go), specialized to this module's
// taxonomy.
type Error struct {
	Code   Code
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Errorf builds an Error with a formatted detail message.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error carrying cause as its Unwrap target.
func Wrap(code Code, cause error, detail string) *Error {
	return &Error{Code: code, Detail: detail, Cause: cause}
}
