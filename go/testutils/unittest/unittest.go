// Package unittest tags tests by size so that slow tests can be filtered out
// with --small / --medium.
package unittest

import "flag"

const (
	SMALL_TEST  = "small"
	MEDIUM_TEST = "medium"
)

var (
	small  = flag.Bool(SMALL_TEST, false, "Whether or not to run small tests.")
	medium = flag.Bool(MEDIUM_TEST, false, "Whether or not to run medium tests.")
)

// TestingT is the subset of testing.TB used here.
type TestingT interface {
	Helper()
	Skip(args ...interface{})
}

// ShouldRun determines whether the test should run based on the provided flags.
// With no flags every size runs.
func ShouldRun(testType string) bool {
	if !*small && !*medium {
		return true
	}
	switch testType {
	case SMALL_TEST:
		return *small
	case MEDIUM_TEST:
		return *medium
	}
	return false
}

// SmallTest should be called at the beginning of a test with no dependencies
// on the network or the filesystem outside of t.TempDir.
func SmallTest(t TestingT) {
	t.Helper()
	if !ShouldRun(SMALL_TEST) {
		t.Skip("Not running small tests.")
	}
}

// MediumTest should be called at the beginning of a test that starts local
// servers, writes to disk or relies on timing between goroutines.
func MediumTest(t TestingT) {
	t.Helper()
	if !ShouldRun(MEDIUM_TEST) {
		t.Skip("Not running medium tests.")
	}
}
