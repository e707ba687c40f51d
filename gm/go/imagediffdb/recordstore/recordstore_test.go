package recordstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.skia.org/rebaseline/gm/go/diff"
	"go.skia.org/rebaseline/go/testutils/unittest"
)

func TestStore_PutGetSurvivesReopen(t *testing.T) {
	unittest.MediumTest(t)
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	rec := &diff.DiffRecord{
		NumDifferingPixels:     662,
		PercentDifferingPixels: 0.0662,
		PerceptualDifference:   0.0662,
		MaxDiffPerChannel:      [3]int{255, 255, 247},
		DiffURL:                "a-vs-b.png",
		WhiteDiffURL:           "a-vs-b.png",
	}
	require.NoError(t, s.Put("a-vs-b", rec))
	require.NoError(t, s.Close())

	s, err = Open(root)
	require.NoError(t, err)
	defer func() { assert.NoError(t, s.Close()) }()

	got, err := s.Get("a-vs-b")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	got, err = s.Get("unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}
