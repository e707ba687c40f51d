package util

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.skia.org/rebaseline/go/testutils/unittest"
)

func TestStringSets(t *testing.T) {
	unittest.SmallTest(t)
	assert.Equal(t, []string{"abc", "efg"}, NewStringSet([]string{"abc", "abc"}, []string{"efg", "abc"}).Keys())
	assert.Empty(t, NewStringSet().Keys())
	assert.Equal(t, []string{"abc"}, NewStringSet([]string{"abc", "abc", "abc"}).Keys())
}

func TestIntHelpers(t *testing.T) {
	unittest.SmallTest(t)
	assert.Equal(t, 9, MaxInt(3, 9, -2))
	assert.Equal(t, 5, AbsInt(-5))
	assert.Equal(t, 5, AbsInt(5))
}

func TestRoundToPlaces(t *testing.T) {
	unittest.SmallTest(t)
	assert.Equal(t, 0.0662, RoundToPlaces(0.066199999, 4))
	assert.Equal(t, 33.3333, RoundToPlaces(100.0/3.0, 4))
	assert.Equal(t, 100.0, RoundToPlaces(100, 4))
}

func TestAnyMatch(t *testing.T) {
	unittest.SmallTest(t)
	re := []*regexp.Regexp{regexp.MustCompile("^foo"), regexp.MustCompile("bar$")}
	assert.True(t, AnyMatch(re, "foobaz"))
	assert.True(t, AnyMatch(re, "xbar"))
	assert.False(t, AnyMatch(re, "baz"))
	assert.False(t, AnyMatch(nil, "baz"))
}

func TestWithWriteFile_Success_FileInPlaceAndNoTempLeft(t *testing.T) {
	unittest.SmallTest(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")
	require.NoError(t, WithWriteFile(target, func(w io.Writer) error {
		_, err := w.Write([]byte("hello"))
		return err
	}))

	b, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWithWriteFile_WriteFnFails_NothingWritten(t *testing.T) {
	unittest.SmallTest(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")
	err := WithWriteFile(target, func(w io.Writer) error {
		return errors.New("nope")
	})
	require.Error(t, err)

	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWithReadFile(t *testing.T) {
	unittest.SmallTest(t)
	target := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(target, []byte("data"), 0644))

	var got []byte
	require.NoError(t, WithReadFile(target, func(r io.Reader) error {
		var err error
		got, err = io.ReadAll(r)
		return err
	}))
	assert.Equal(t, "data", string(got))
}
