// Package common provides configuration, logging and small shared helpers.
//
// The {NAME} syntax lets profile values reference environment variables so
// secrets stay out of the profile file.
//
// Example:
//
//	Input:  "{CMA_PASSWORD}"
//	Env:    CMA_PASSWORD=s3cret
//	Output: "s3cret"
//
// Replacement is case-sensitive. Missing references are left unchanged so
// callers can detect them with HasUnresolvedReference.
package common

import (
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
)

// keyRefPattern matches {NAME} references; letters, digits, hyphen and underscore
var keyRefPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// ReplaceKeyReferences replaces {NAME} references in input using lookup.
// Unresolved references are kept verbatim and logged at warn (name only, never the value).
func ReplaceKeyReferences(input string, lookup func(string) (string, bool), logger arbor.ILogger) string {
	if input == "" || !strings.Contains(input, "{") {
		return input
	}

	return keyRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := lookup(name); ok {
			return value
		}
		if logger != nil {
			logger.Warn().
				Str("reference", match).
				Msg("Unresolved key reference")
		}
		return match
	})
}

// HasUnresolvedReference reports whether s still holds a {NAME} reference
func HasUnresolvedReference(s string) bool {
	return keyRefPattern.MatchString(s)
}
