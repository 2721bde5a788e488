package errcode

import "errors"

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	ChipNotResponding Code = "chip_not_responding"
	QueueOverflow     Code = "queue_overflow"
	BusError          Code = "bus_error"
	InvalidConfig     Code = "invalid_config"
	Unsupported       Code = "unsupported"
	NotReady          Code = "not_ready"
	Timeout           Code = "timeout"

	Error Code = "error" // generic fallback
)

// E keeps an operation name and a cause next to a Code.
type E struct {
	C   Code
	Op  string
	Err error
}

func (e *E) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.C)
	}
	return e.Op + ": " + string(e.C) + ": " + e.Err.Error()
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap attaches a code and operation to err. A nil err stays nil.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: err}
}

// Of extracts a Code from an error chain, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}
