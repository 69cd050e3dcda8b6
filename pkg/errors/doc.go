// Package errors provides structured error types for better observability
// and programmatic error handling across the application.
//
// Lifecycle operations classify failures with one of the unit-specific codes
// (EXTERNAL_PROCESS, LOAD_FAILED, FILESYSTEM) and wrap them with the name of
// the failing operation, so callers see both:
//
//	err := errors.WrapWithContext(
//	    errors.ErrCodeExternalProcess,
//	    "git clone failed",
//	    cause,
//	    map[string]any{
//	        "command": "git clone https://example.com/sample-unit.git",
//	        "output":  output,
//	    },
//	)
//
// IsCode walks the whole chain; CodeOf returns only the outermost code.
package errors
