package snmppdu

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by DecodeError.
var (
	// ErrMalformed indicates the datagram is not a well-formed v1/v2c trap.
	ErrMalformed = errors.New("malformed message")

	// ErrUnsupportedType indicates a varbind value with an unknown tag.
	ErrUnsupportedType = errors.New("unsupported value type")
)

// DecodeError describes where and why decoding failed.
type DecodeError struct {
	Err    error // ErrMalformed or ErrUnsupportedType
	Offset int   // byte offset in the datagram
	Msg    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("snmppdu: %v at offset %d: %s", e.Err, e.Offset, e.Msg)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func malformed(off int, format string, args ...any) error {
	return &DecodeError{Err: ErrMalformed, Offset: off, Msg: fmt.Sprintf(format, args...)}
}
