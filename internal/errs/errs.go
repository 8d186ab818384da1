// Package errs defines the typed error kinds from spec.md §7.
//
// The teacher repo never reaches for an error-wrapping library (no
// pkg/errors, no multierr) — every error path across core/, runtime/,
// and cli/ is plain fmt.Errorf with %w wrapping (see core/types/schema.go,
// core/types/validation.go, core/planfmt/*.go). This package follows
// that convention: one concrete Error type implementing the stdlib
// error interface, carrying a Kind and a SourceLocation, constructed
// through per-kind helpers instead of a generic error-builder library.
package errs

import (
	"errors"
	"fmt"

	"github.com/mlld-lang/mlld/internal/ast"
)

// Kind enumerates the error kinds from spec.md §7.
type Kind string

const (
	// Parse/Structural
	KindParseError      Kind = "ParseError"
	KindUnknownNodeKind Kind = "UnknownNodeKind"

	// Name/Scope
	KindUnknownVariable      Kind = "UnknownVariable"
	KindReservedName         Kind = "ReservedName"
	KindExecParameterConflict Kind = "ExecParameterConflict"
	KindImportNameConflict   Kind = "ImportNameConflict"
	KindExportedNameNotFound Kind = "ExportedNameNotFound"
	KindCircularCommandRef   Kind = "CircularCommandRef"
	KindCircularImport       Kind = "CircularImport"

	// Type/Value
	KindFieldAccess     Kind = "FieldAccess"
	KindTypeMismatch    Kind = "TypeMismatch"
	KindStructuredParse Kind = "StructuredParse"

	// Execution
	KindCommandExecution  Kind = "CommandExecution"
	KindCodeExecution     Kind = "CodeExecution"
	KindTimeout           Kind = "Timeout"
	KindUnsupportedLanguage Kind = "UnsupportedLanguage"
	KindPayloadTooLarge   Kind = "PayloadTooLarge"

	// Import/Resolver
	KindModuleNotFound     Kind = "ModuleNotFound"
	KindIntegrityMismatch  Kind = "IntegrityMismatch"
	KindLockVersionConflict Kind = "LockVersionConflict"
	KindResolverFailure    Kind = "ResolverFailure"

	// Security
	KindPolicyViolation      Kind = "PolicyViolation"
	KindProtectedLabelRemoval Kind = "ProtectedLabelRemoval"
	KindVerificationFailure  Kind = "VerificationFailure"
	KindUnprivileged         Kind = "Unprivileged"

	// Pipeline
	KindRetryLimitExceeded  Kind = "RetryLimitExceeded"
	KindPipelineStageFailure Kind = "PipelineStageFailure"
)

// Error is the concrete error type for every kind above.
type Error struct {
	Kind       Kind
	Message    string
	Location   ast.SourceLocation
	Identifier string // offending directive/identifier, when applicable
	OpContext  string // operation context label, when applicable
	importChain []string
	cause      error
}

func (e *Error) Error() string {
	loc := ""
	if e.Location.Line > 0 {
		loc = fmt.Sprintf(" at %s:%d:%d", e.Location.File, e.Location.Line, e.Location.Column)
	}
	msg := fmt.Sprintf("%s: %s%s", e.Kind, e.Message, loc)
	if len(e.importChain) > 0 {
		msg += fmt.Sprintf(" (import chain: %v)", e.importChain)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error of the given kind.
func New(kind Kind, loc ast.SourceLocation, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Location: loc}
}

// Wrap constructs an Error of the given kind, wrapping cause.
func Wrap(kind Kind, loc ast.SourceLocation, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Location: loc, cause: cause}
}

// WithImportChain annotates an error with the stack of import specifiers
// active when it was raised (§7 propagation rule: "rethrown with an
// importChain annotation").
func WithImportChain(err error, chain []string) error {
	var e *Error
	if errors.As(err, &e) {
		clone := *e
		clone.importChain = append([]string(nil), chain...)
		return &clone
	}
	return &Error{Kind: KindModuleNotFound, Message: err.Error(), cause: err, importChain: append([]string(nil), chain...)}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
