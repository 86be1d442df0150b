package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the pipeline the error occurred
type Phase string

const (
	PhaseConfig  Phase = "config"  // option validation
	PhaseResolve Phase = "resolve" // reference resolution
	PhaseLoad    Phase = "load"    // reading asset bytes
	PhaseParse   Phase = "parse"   // binary inspection
	PhasePlace   Phase = "place"   // inline/external decision
	PhaseCodegen Phase = "codegen" // module source generation
	PhaseEmit    Phase = "emit"    // artifact emission
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData          Kind = "invalid_data"
	KindUsage                Kind = "usage"
	KindSyncExternalConflict Kind = "sync_external_conflict"
	KindConflict             Kind = "conflict"
	KindNotFound             Kind = "not_found"
	KindInvalidInput         Kind = "invalid_input"
	KindInternal             Kind = "internal"
)

// Error is the structured error type used throughout the pipeline
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Asset     string
	Detail    string
	Modifiers []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Asset != "" {
		b.WriteString(" in ")
		b.WriteString(e.Asset)
	}

	if len(e.Modifiers) > 0 {
		b.WriteString(" (modifiers: ")
		b.WriteString(strings.Join(e.Modifiers, ", "))
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Asset sets the offending asset path
func (b *Builder) Asset(path string) *Builder {
	b.err.Asset = path
	return b
}

// Modifiers sets the reference modifiers involved
func (b *Builder) Modifiers(mods ...string) *Builder {
	b.err.Modifiers = mods
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinels for errors.Is checks against a phase/kind pair.
var (
	ErrFormat               = &Error{Phase: PhaseParse, Kind: KindInvalidData}
	ErrUsage                = &Error{Phase: PhasePlace, Kind: KindUsage}
	ErrSyncExternalConflict = &Error{Phase: PhaseCodegen, Kind: KindSyncExternalConflict}
	ErrConflict             = &Error{Phase: PhaseEmit, Kind: KindConflict}
)

// Format creates a malformed-binary error
func Format(asset string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Asset:  asset,
		Detail: "failed to parse wasm file",
		Cause:  cause,
	}
}

// Usage creates a reference usage error naming the offending modifiers
func Usage(asset, detail string, modifiers ...string) *Error {
	return &Error{
		Phase:     PhasePlace,
		Kind:      KindUsage,
		Asset:     asset,
		Detail:    detail,
		Modifiers: modifiers,
	}
}

// SyncExternalConflict creates an error for sync references to externalized files
func SyncExternalConflict(asset string) *Error {
	return &Error{
		Phase:     PhaseCodegen,
		Kind:      KindSyncExternalConflict,
		Asset:     asset,
		Detail:    "non-inlined files can not be `sync`",
		Modifiers: []string{"sync"},
	}
}

// Conflict creates an output file name collision error
func Conflict(fileName string, assets ...string) *Error {
	return &Error{
		Phase:  PhaseEmit,
		Kind:   KindConflict,
		Asset:  strings.Join(assets, ", "),
		Detail: fmt.Sprintf("distinct contents map to output file %q", fileName),
		Value:  fileName,
	}
}

// Internal creates an error for broken invariants between pipeline stages
func Internal(phase Phase, asset, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Asset:  asset,
		Detail: detail,
	}
}

// Load creates an asset loading error
func Load(asset string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindNotFound,
		Asset:  asset,
		Detail: "read asset",
		Cause:  cause,
	}
}

// Resolve creates a reference resolution error
func Resolve(id string, cause error) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindNotFound,
		Asset:  id,
		Detail: "resolve reference",
		Cause:  cause,
	}
}

// Emit creates an artifact emission error
func Emit(fileName string, cause error) *Error {
	return &Error{
		Phase:  PhaseEmit,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("emit %s", fileName),
		Value:  fileName,
		Cause:  cause,
	}
}

// Config creates an invalid option error
func Config(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidInput,
		Detail: fmt.Sprintf(detail, args...),
	}
}
