// Package errors provides structured error types for the wasm-loader pipeline.
//
// Errors are categorized by Phase (which pipeline stage failed) and Kind (error
// category). The Error type carries the offending asset path, the reference
// modifiers involved, and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhasePlace, errors.KindUsage).
//		Asset("/src/add.wasm").
//		Modifiers("sync", "url").
//		Detail("`sync` and `url` parameters cannot be used together").
//		Build()
//
// Or use convenience constructors for the common failures:
//
//	err := errors.Format(path, cause)
//	err := errors.Usage(path, "`url` parameter can only be used with non-inlined files", "url")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
