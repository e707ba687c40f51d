// Package locator turns image identifiers into keys that are safe to use as
// file names.
package locator

import (
	"strings"
)

// DifferenceSeparator joins the two locators of a difference locator.
const DifferenceSeparator = "-vs-"

var pathSeparators = strings.NewReplacer("/", "_", `\`, "_")

// Sanitize replaces every path separator in loc with an underscore so the
// result can be used as a single path component. It is idempotent.
func Sanitize(loc string) string {
	return pathSeparators.Replace(loc)
}

// DifferenceLocator returns the key for the comparison of the two images.
// Both locators are sanitized first.
func DifferenceLocator(expected, actual string) string {
	return Sanitize(expected) + DifferenceSeparator + Sanitize(actual)
}
