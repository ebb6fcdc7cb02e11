// Package ndserr defines the error-kind vocabulary shared by every
// codec in this module (spec §7). Every package wraps the causes it
// detects in an *Error so callers can recover the kind and position
// with errors.As instead of matching strings.
package ndserr

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Kind identifies which structural contract a codec found violated.
type Kind int

const (
	// OutOfBounds is returned when a read or write would pass the end
	// of the owning buffer.
	OutOfBounds Kind = iota
	// InvalidMagic is returned when a structural identifier (a magic
	// number or tag byte) does not match what the format requires.
	InvalidMagic
	// UnknownVersion is returned when a version field names a
	// revision the codec does not understand.
	UnknownVersion
	// MalformedFNT is returned when the filename-table invariants
	// (§4.4) are violated by an input being parsed.
	MalformedFNT
	// InvalidFNT is returned when a filename table being serialized
	// cannot be laid out without violating one of its own invariants.
	InvalidFNT
	// MalformedSDAT is returned when an SDAT cross-section invariant
	// (§4.7) is violated.
	MalformedSDAT
	// MalformedROM is returned when a ROM structural invariant (§4.8)
	// is violated.
	MalformedROM
	// MalformedBMG is returned when the BMG framing is inconsistent.
	MalformedBMG
	// MalformedSBNK is returned when an instrument-bank structural
	// invariant is violated.
	MalformedSBNK
	// MalformedSSEQ is returned when a sequence/sequence-archive
	// structural invariant is violated.
	MalformedSSEQ
	// OverlappingEvents is returned when an address operand resolves
	// into the middle of a previously decoded event.
	OverlappingEvents
	// DanglingReference is returned when an address operand does not
	// resolve to any event in the list being lowered.
	DanglingReference
	// PreconditionFailed is returned when caller-provided object
	// state violates an emit-time invariant.
	PreconditionFailed
)

func (k Kind) String() string {
	switch k {
	case OutOfBounds:
		return "OutOfBounds"
	case InvalidMagic:
		return "InvalidMagic"
	case UnknownVersion:
		return "UnknownVersion"
	case MalformedFNT:
		return "MalformedFNT"
	case InvalidFNT:
		return "InvalidFNT"
	case MalformedSDAT:
		return "MalformedSDAT"
	case MalformedROM:
		return "MalformedROM"
	case MalformedBMG:
		return "MalformedBMG"
	case MalformedSBNK:
		return "MalformedSBNK"
	case MalformedSSEQ:
		return "MalformedSSEQ"
	case OverlappingEvents:
		return "OverlappingEvents"
	case DanglingReference:
		return "DanglingReference"
	case PreconditionFailed:
		return "PreconditionFailed"
	default:
		return "Unknown"
	}
}

// Error carries a Kind, the byte offset or list index the problem was
// found at (-1 if not applicable), and a human-readable message.
type Error struct {
	Kind    Kind
	Pos     int64
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s at %#x: %s", e.Kind, e.Pos, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no byte position.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Pos: -1, Message: fmt.Sprintf(format, args...)}
}

// At builds an *Error positioned at pos.
func At(kind Kind, pos int64, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that unwraps to cause. The message and cause
// are joined with xerrors.Errorf's "%w" verb, matching the wrapping
// convention every package in this module uses for underlying causes.
func Wrap(kind Kind, pos int64, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Pos: pos, Message: msg, Cause: xerrors.Errorf("%s: %w", msg, cause)}
}
