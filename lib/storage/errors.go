package storage

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess                RetCode = iota // 0: operation executed successfully.
	RetCIOFailure                             // 1: backend read or write error.
	RetCResourceGone                          // 2: operation on a removed collection or product.
	RetCNameConflict                          // 3: the name is taken by something else.
	RetCPartitionArityMismatch                // 4: partition reopened with another member count.
	RetCIndexOutOfBounds                      // 5: partition index outside [0,n).
	RetCPartialFlushFailure                   // 6: a multi collection flush failed at Index.
	RetCInvalidArgument                       // 7: a size or count outside its valid range.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCIOFailure:
		return "IOFailure"
	case RetCResourceGone:
		return "ResourceGone"
	case RetCNameConflict:
		return "NameConflict"
	case RetCPartitionArityMismatch:
		return "PartitionArityMismatch"
	case RetCIndexOutOfBounds:
		return "IndexOutOfBounds"
	case RetCPartialFlushFailure:
		return "PartialFlushFailure"
	case RetCInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code, a message and an optional cause.
// Index is only meaningful for RetCIndexOutOfBounds and RetCPartialFlushFailure.
type Error struct {
	Code  RetCode
	Msg   string
	Index int
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("kstore (code %s): %s", e.Code, e.Msg)
	if e.Code == RetCPartialFlushFailure {
		msg = fmt.Sprintf("%s (index %d)", msg, e.Index)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the cause of the error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code, so errors.Is(err, storage.ErrIOFailure) works for every IO failure
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Sentinels for errors.Is
var (
	ErrIOFailure              = NewError(RetCIOFailure, "io failure")
	ErrResourceGone           = NewError(RetCResourceGone, "resource gone")
	ErrNameConflict           = NewError(RetCNameConflict, "name conflict")
	ErrPartitionArityMismatch = NewError(RetCPartitionArityMismatch, "partition arity mismatch")
	ErrIndexOutOfBounds       = NewError(RetCIndexOutOfBounds, "index out of bounds")
	ErrPartialFlushFailure    = NewError(RetCPartialFlushFailure, "partial flush failure")
	ErrInvalidArgument        = NewError(RetCInvalidArgument, "invalid argument")
)

// IOFailure wraps a backend error. Errors that already carry a code are returned unchanged.
func IOFailure(cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	return &Error{Code: RetCIOFailure, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// ResourceGone reports an operation on removed storage
func ResourceGone(format string, args ...interface{}) error {
	return &Error{Code: RetCResourceGone, Msg: fmt.Sprintf(format, args...)}
}

// NameConflict reports a name that cannot be reused
func NameConflict(format string, args ...interface{}) error {
	return &Error{Code: RetCNameConflict, Msg: fmt.Sprintf(format, args...)}
}

// InvalidArgument reports a record size or member count outside its valid range
func InvalidArgument(format string, args ...interface{}) error {
	return &Error{Code: RetCInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

// ArityMismatch reports a partition reopened with another arity
func ArityMismatch(name string, existing, requested int) error {
	return &Error{
		Code: RetCPartitionArityMismatch,
		Msg:  fmt.Sprintf("partition %q has %d members, requested %d", name, existing, requested),
	}
}

// IndexOutOfBounds reports an index outside [0,n)
func IndexOutOfBounds(i, n int) error {
	return &Error{
		Code:  RetCIndexOutOfBounds,
		Msg:   fmt.Sprintf("index %d outside [0,%d)", i, n),
		Index: i,
	}
}

// PartialFlushFailure reports the member index at which a multi collection flush stopped
func PartialFlushFailure(i int, cause error) error {
	return &Error{
		Code:  RetCPartialFlushFailure,
		Msg:   "flush stopped",
		Index: i,
		Err:   cause,
	}
}

// FailedIndex returns the index of a PartialFlushFailure anywhere in the chain
func FailedIndex(err error) (int, bool) {
	var e *Error
	for errors.As(err, &e) {
		if e.Code == RetCPartialFlushFailure {
			return e.Index, true
		}
		err = e.Err
	}
	return 0, false
}
