package errors

import (
	"math"
	"strings"
	"unicode"
)

// ValidatePath validates a file path given to the CLI or the HTTP API.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 4096 characters
//   - No null bytes or control characters
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}
	return nil
}

// ValidateFormula validates a fragment formula.
// Formulas are opaque to the solver, but they are used as colors and
// as path signatures, so whitespace and control characters are rejected.
// The empty formula is allowed and marks a pseudo fragment.
func ValidateFormula(formula string) error {
	if len(formula) > 256 {
		return New(ErrCodeInvalidGraph, "formula too long (max 256 characters)")
	}
	if strings.IndexFunc(formula, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return New(ErrCodeInvalidGraph, "formula %q contains whitespace or control characters", formula)
	}
	return nil
}

// ValidateLowerBound rejects NaN and +Inf lower bounds.
// Negative infinity is the documented "no bound" value and is accepted.
func ValidateLowerBound(lb float64) error {
	if math.IsNaN(lb) || math.IsInf(lb, 1) {
		return New(ErrCodeInvalidConfig, "lower bound must be a number or -Inf, got %v", lb)
	}
	return nil
}
