package skerr

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.skia.org/rebaseline/go/testutils/unittest"
)

type customErr struct {
	msg string
}

func (c *customErr) Error() string { return c.msg }

func TestWrap_Nil_ReturnsNil(t *testing.T) {
	unittest.SmallTest(t)
	assert.NoError(t, Wrap(nil))
	assert.NoError(t, Wrapf(nil, "context %d", 1))
}

func TestWrap_RecordsCallSite(t *testing.T) {
	unittest.SmallTest(t)
	err := Wrap(io.EOF)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EOF. At skerr_test.go:")
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, io.EOF, errors.Unwrap(err))
}

func TestWrapf_StacksContextOutermostFirst(t *testing.T) {
	unittest.SmallTest(t)
	err := Wrapf(io.EOF, "reading %s", "a.png")
	err = Wrapf(err, "fetching")
	assert.Regexp(t, `^fetching: reading a.png: EOF\. At skerr_test\.go:\d+`, err.Error())
	assert.True(t, errors.Is(err, io.EOF))
}

func TestWrap_ErrorsAsFindsWrappedType(t *testing.T) {
	unittest.SmallTest(t)
	err := Wrapf(&customErr{msg: "boom"}, "outer")
	var ce *customErr
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "boom", ce.msg)
}

func TestFmt_CreatesNewError(t *testing.T) {
	unittest.SmallTest(t)
	err := Fmt("bad value %d", 7)
	assert.Contains(t, err.Error(), "bad value 7. At skerr_test.go:")
}
