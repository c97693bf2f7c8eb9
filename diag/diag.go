// Package diag defines the diagnostics reported while planning multiversioned functions.
//
// Every failure is detected at build time and falls into one of two kinds:
//
//   - [ParseError]: a malformed target string or attribute.
//   - [ValidationError]: well-formed input that cannot be planned (empty target list,
//     unknown preset, ambiguous static dispatch, opaque result type, ...).
//
// Both kinds carry the [Position] of the offending input and wrap one of the
// sentinel errors below, so callers can match them with errors.Is.
package diag

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by ParseError and ValidationError.
var (
	// ErrUnknownArchitecture indicates a target string names an unsupported architecture.
	ErrUnknownArchitecture = errors.New("unknown architecture")

	// ErrInvalidFeature indicates an empty or malformed capability token.
	ErrInvalidFeature = errors.New("invalid feature")

	// ErrDuplicateFeature indicates a target lists the same capability twice.
	ErrDuplicateFeature = errors.New("duplicate feature")

	// ErrNoFeatures indicates a target without any required capability.
	ErrNoFeatures = errors.New("target must have features specified")

	// ErrDuplicateTarget indicates a target list names the same target twice.
	ErrDuplicateTarget = errors.New("duplicate target")

	// ErrEmptyTargetList indicates a target list without any target.
	ErrEmptyTargetList = errors.New("empty target list")

	// ErrUnknownPreset indicates an unrecognized preset name.
	ErrUnknownPreset = errors.New("unknown preset")

	// ErrSyntax indicates a directive that is not a comma-separated option list.
	ErrSyntax = errors.New("invalid directive syntax")

	// ErrMissingTargets indicates the attribute does not specify targets.
	ErrMissingTargets = errors.New("expected `targets`")

	// ErrDuplicateOption indicates an attribute option was specified more than once.
	ErrDuplicateOption = errors.New("duplicate option")

	// ErrUnknownOption indicates an unrecognized attribute option.
	ErrUnknownOption = errors.New("unrecognized option")

	// ErrInvalidOption indicates an attribute option with a value of the wrong shape.
	ErrInvalidOption = errors.New("invalid option value")

	// ErrUnknownDispatcher indicates an unrecognized dispatch method name.
	ErrUnknownDispatcher = errors.New("unknown dispatcher")

	// ErrAmbiguousTarget indicates static dispatch was requested for a target whose
	// satisfaction cannot be decided at build time.
	ErrAmbiguousTarget = errors.New("ambiguous target cannot be statically resolved")

	// ErrOpaqueReturn indicates the function returns a type that cannot be shared by all variants.
	ErrOpaqueReturn = errors.New("opaque return type")

	// ErrInvalidSignature indicates a malformed function signature.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Position is a source position for diagnostics.
type Position struct {
	Filename string
	Line     int
	Column   int
}

// IsValid reports whether the position carries a line number.
func (p Position) IsValid() bool {
	return p.Line > 0
}

// String formats the position as file:line:col.
func (p Position) String() string {
	if !p.IsValid() {
		return p.Filename
	}
	if p.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d", p.Filename, p.Line)
}

// ParseError represents malformed input with position information.
type ParseError struct {
	Pos     Position
	Message string
	Wrapped error
}

func (e *ParseError) Error() string {
	return format(e.Pos, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Wrapped
}

// ValidationError represents well-formed input that cannot be planned.
type ValidationError struct {
	Pos     Position
	Message string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return format(e.Pos, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Wrapped
}

func format(pos Position, msg string) string {
	if pos.IsValid() {
		return pos.String() + ": " + msg
	}
	return msg
}

// Parsef returns a ParseError wrapping sentinel, without a position.
func Parsef(sentinel error, format string, args ...any) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...), Wrapped: sentinel}
}

// Validationf returns a ValidationError wrapping sentinel, without a position.
func Validationf(sentinel error, format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Wrapped: sentinel}
}

// At attaches pos to err when err is a diagnostic that has no position yet.
// Any other error is returned unchanged.
func At(err error, pos Position) error {
	var pe *ParseError
	if errors.As(err, &pe) && !pe.Pos.IsValid() {
		cp := *pe
		cp.Pos = pos
		return &cp
	}
	var ve *ValidationError
	if errors.As(err, &ve) && !ve.Pos.IsValid() {
		cp := *ve
		cp.Pos = pos
		return &cp
	}
	return err
}

// IsParse reports whether err is a ParseError.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
