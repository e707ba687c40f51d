// Package util holds small helpers shared by the rest of the module.
package util

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"go.skia.org/rebaseline/go/skerr"
	"go.skia.org/rebaseline/go/sklog"
)

// StringSet is a set of strings.
type StringSet map[string]bool

// NewStringSet returns a StringSet containing every string in the lists.
func NewStringSet(lists ...[]string) StringSet {
	ret := StringSet{}
	return ret.AddLists(lists...)
}

// AddLists adds every string in lists to s and returns s.
func (s StringSet) AddLists(lists ...[]string) StringSet {
	for _, list := range lists {
		for _, v := range list {
			s[v] = true
		}
	}
	return s
}

// Keys returns the members of the set in sorted order.
func (s StringSet) Keys() []string {
	ret := make([]string, 0, len(s))
	for v := range s {
		ret = append(ret, v)
	}
	sort.Strings(ret)
	return ret
}

// MaxInt returns the largest of the given ints, or math.MinInt if none are
// given.
func MaxInt(intList ...int) int {
	ret := math.MinInt
	for _, i := range intList {
		if i > ret {
			ret = i
		}
	}
	return ret
}

// AbsInt returns the absolute value of v.
func AbsInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// RoundToPlaces rounds v half away from zero to the given number of decimal
// places.
func RoundToPlaces(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// AnyMatch returns true iff the given string matches any regexp in the slice.
func AnyMatch(re []*regexp.Regexp, s string) bool {
	for _, r := range re {
		if r.MatchString(s) {
			return true
		}
	}
	return false
}

// Close wraps an io.Closer and logs an error if one is returned.
func Close(c io.Closer) {
	if err := c.Close(); err != nil {
		// Don't start the stacktrace here, but at the caller's location
		sklog.ErrorfWithDepth(1, "Failed to Close(): %v", err)
	}
}

// Remove removes the specified file and logs an error if one is returned.
func Remove(name string) {
	if err := os.Remove(name); err != nil {
		sklog.ErrorfWithDepth(1, "Failed to Remove(%s): %v", name, err)
	}
}

// LogErr logs err if it's not nil. This is intended to be used
// for calls where generally a returned error can be ignored.
func LogErr(err error) {
	if err != nil {
		sklog.ErrorfWithDepth(1, "Unexpected error: %s", err)
	}
}

// WithReadFile opens the given file for reading and runs the given function.
func WithReadFile(file string, fn func(f io.Reader) error) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer Close(f)
	return fn(f)
}

// WithWriteFile writes to file through a temporary file in the same
// directory which is renamed into place once writeFn succeeds. Concurrent
// writers of the same file never observe a partial file; the last rename
// wins.
func WithWriteFile(file string, writeFn func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(file), filepath.Base(file)+".tmp-*")
	if err != nil {
		return skerr.Wrapf(err, "creating temporary file for %s", file)
	}
	if err := writeFn(f); err != nil {
		Close(f)
		Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		Remove(f.Name())
		return skerr.Wrapf(err, "closing temporary file for %s", file)
	}
	if err := os.Rename(f.Name(), file); err != nil {
		Remove(f.Name())
		return skerr.Wrapf(err, "renaming temporary file to %s", file)
	}
	return nil
}
