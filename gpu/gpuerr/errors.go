// Package gpuerr defines the error kinds reported by the device components.
package gpuerr

import (
	"errors"
	"fmt"
)

// Kind classifies a device error.
type Kind int

// The kinds of device errors.
const (
	Unspecified Kind = iota
	InvalidID
	DuplicateID
	UnknownResource
	UnknownContext
	UnknownScanout
	InvalidParameter
	FeatureDisabled
	UnsupportedCapability
	AlignmentViolation
	RendererError
	SizeMismatch
)

var kindNames = map[Kind]string{
	Unspecified:           "unspecified",
	InvalidID:             "invalid id",
	DuplicateID:           "duplicate id",
	UnknownResource:       "unknown resource",
	UnknownContext:        "unknown context",
	UnknownScanout:        "unknown scanout",
	InvalidParameter:      "invalid parameter",
	FeatureDisabled:       "feature disabled",
	UnsupportedCapability: "unsupported capability",
	AlignmentViolation:    "alignment violation",
	RendererError:         "renderer error",
	SizeMismatch:          "size mismatch",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a device error. Op names the operation that failed and ID the
// guest-visible object it was applied to, when there is one.
type Error struct {
	Kind Kind
	Op   string
	ID   uint32
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.ID != 0 {
		msg += fmt.Sprintf(" (id %d)", e.ID)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on kind: errors.Is(err, &Error{Kind: k}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind && t.Op == "" && t.ID == 0 && t.Err == nil
}

// New creates an error of the given kind.
func New(kind Kind, op string, id uint32) *Error {
	return &Error{Kind: kind, Op: op, ID: id}
}

// Newf creates an error of the given kind with a formatted detail.
func Newf(kind Kind, op string, id uint32, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, id uint32, err error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: err}
}

// KindOf returns the kind of the outermost device error in err's chain, or
// Unspecified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return Unspecified
}

// Is tells if err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
