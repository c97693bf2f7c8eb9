package multiversion

import "github.com/albertocavalcante/go-multiversion/diag"

// Diagnostic types returned by Build and BuildDirective.
type (
	// ParseError reports a malformed target string or directive.
	ParseError = diag.ParseError
	// ValidationError reports well-formed input that cannot be planned.
	ValidationError = diag.ValidationError
	// Position locates a diagnostic in source.
	Position = diag.Position
)

// Sentinel errors wrapped by ParseError and ValidationError.
var (
	ErrUnknownArchitecture = diag.ErrUnknownArchitecture
	ErrInvalidFeature      = diag.ErrInvalidFeature
	ErrDuplicateFeature    = diag.ErrDuplicateFeature
	ErrNoFeatures          = diag.ErrNoFeatures
	ErrDuplicateTarget     = diag.ErrDuplicateTarget
	ErrEmptyTargetList     = diag.ErrEmptyTargetList
	ErrUnknownPreset       = diag.ErrUnknownPreset
	ErrSyntax              = diag.ErrSyntax
	ErrMissingTargets      = diag.ErrMissingTargets
	ErrDuplicateOption     = diag.ErrDuplicateOption
	ErrUnknownOption       = diag.ErrUnknownOption
	ErrInvalidOption       = diag.ErrInvalidOption
	ErrUnknownDispatcher   = diag.ErrUnknownDispatcher
	ErrAmbiguousTarget     = diag.ErrAmbiguousTarget
	ErrOpaqueReturn        = diag.ErrOpaqueReturn
	ErrInvalidSignature    = diag.ErrInvalidSignature
)
