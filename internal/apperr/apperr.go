package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error. The set is closed.
type Kind int

const (
	KindParameter Kind = iota + 1
	KindContentStore
	KindLedger
	KindApplication
	KindNotFound
)

// Numeric codes surfaced in HTTP error bodies.
const (
	CodeNotFound     = "404"
	CodeParameter    = "100"
	CodeContentStore = "101"
	CodeLedger       = "102"
	CodeApplication  = "103"
)

func (k Kind) String() string {
	switch k {
	case KindParameter:
		return "parameter"
	case KindContentStore:
		return "content_store"
	case KindLedger:
		return "ledger"
	case KindApplication:
		return "application"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Code returns the stringified numeric code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindParameter:
		return CodeParameter
	case KindContentStore:
		return CodeContentStore
	case KindLedger:
		return CodeLedger
	case KindNotFound:
		return CodeNotFound
	default:
		return CodeApplication
	}
}

// Error carries the kind plus the operation and, for parameter errors, the
// offending field.
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Parameter reports a missing or invalid input field.
func Parameter(op, field string, err error) *Error {
	if err == nil {
		err = errors.New("missing or invalid value")
	}
	return &Error{Kind: KindParameter, Op: op, Field: field, Err: err}
}

func ContentStore(op string, err error) *Error {
	return &Error{Kind: KindContentStore, Op: op, Err: err}
}

func Ledger(op string, err error) *Error {
	return &Error{Kind: KindLedger, Op: op, Err: err}
}

func Application(op string, err error) *Error {
	return &Error{Kind: KindApplication, Op: op, Err: err}
}

func NotFound(op string, err error) *Error {
	return &Error{Kind: KindNotFound, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindApplication when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindApplication
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
