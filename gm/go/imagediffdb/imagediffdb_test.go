package imagediffdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.skia.org/rebaseline/gm/go/diff"
	"go.skia.org/rebaseline/gm/go/imagecache"
	"go.skia.org/rebaseline/gm/go/imagecache/mocks"
	"go.skia.org/rebaseline/gm/go/imagediffdb/recordstore"
	"go.skia.org/rebaseline/go/testutils/unittest"
)

var (
	black   = color.NRGBA{A: 0xff}
	magenta = color.NRGBA{R: 0xff, B: 0xff, A: 0xff}
)

func encodeSolid(t *testing.T, w, h int, c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// countingFetcher serves fixed bytes per URL, optionally blocking until
// release is closed.
type countingFetcher struct {
	data    map[string][]byte
	release chan struct{}
	calls   int32
}

func (f *countingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.release != nil {
		<-f.release
	}
	b, ok := f.data[url]
	if !ok {
		return nil, fmt.Errorf("404 for %s", url)
	}
	return b, nil
}

func newDB(t *testing.T, root string, f imagecache.Fetcher, records *recordstore.Store) *ImageDiffDB {
	db, err := New(Options{
		StorageRoot: root,
		Fetcher:     f,
		NumWorkers:  4,
		Records:     records,
	})
	require.NoError(t, err)
	return db
}

func TestAddImagePair_TotalMismatch_RecordAndDiffImages(t *testing.T) {
	unittest.MediumTest(t)
	root := t.TempDir()
	f := &countingFetcher{data: map[string][]byte{
		"http://x/exp.png": encodeSolid(t, 100, 1024, black),
		"http://x/act.png": encodeSolid(t, 100, 1024, magenta),
	}}
	db := newDB(t, root, f, nil)
	defer func() { require.NoError(t, db.Close()) }()
	ctx := context.Background()

	require.NoError(t, db.AddImagePair(ctx, "exp", "http://x/exp.png", "act", "http://x/act.png"))
	rec, err := db.GetDiffRecord(ctx, "exp", "act")
	require.NoError(t, err)
	assert.Equal(t, 102400, rec.NumDifferingPixels)
	assert.Equal(t, 100.0, rec.PercentDifferingPixels)
	assert.Equal(t, 100.0, rec.PerceptualDifference)
	assert.Equal(t, [3]int{255, 0, 255}, rec.MaxDiffPerChannel)

	assert.Equal(t, "exp-vs-act.png", rec.DiffURL)
	assert.Equal(t, "exp-vs-act.png", rec.WhiteDiffURL)
	_, err = os.Stat(filepath.Join(root, DiffsDirName, rec.DiffURL))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, WhiteDiffsDirName, rec.WhiteDiffURL))
	require.NoError(t, err)
	assert.True(t, db.Cache().Has("exp"))
	assert.True(t, db.Cache().Has("act"))
}

func TestAddImagePairAsync_PartialMismatch_MetricsComputed(t *testing.T) {
	unittest.MediumTest(t)
	root := t.TempDir()
	expected := image.NewNRGBA(image.Rect(0, 0, 1000, 1000))
	actual := image.NewNRGBA(image.Rect(0, 0, 1000, 1000))
	for y := 0; y < 1000; y++ {
		for x := 0; x < 1000; x++ {
			expected.SetNRGBA(x, y, black)
			actual.SetNRGBA(x, y, black)
		}
	}
	// 662 differing pixels spread over the image.
	for i := 0; i < 662; i++ {
		actual.SetNRGBA((i*37)%1000, i, color.NRGBA{R: 0xff, G: 0xff, B: 0xf7, A: 0xff})
	}
	var expBuf, actBuf bytes.Buffer
	require.NoError(t, png.Encode(&expBuf, expected))
	require.NoError(t, png.Encode(&actBuf, actual))
	f := &countingFetcher{data: map[string][]byte{
		"http://x/bitmap-64bitMD5/aaclip/1.png": expBuf.Bytes(),
		"http://x/bitmap-64bitMD5/aaclip/2.png": actBuf.Bytes(),
	}}
	db := newDB(t, root, f, nil)
	defer func() { require.NoError(t, db.Close()) }()

	expLoc, actLoc := "bitmap-64bitMD5/aaclip/1.png", "bitmap-64bitMD5/aaclip/2.png"
	db.AddImagePairAsync(expLoc, "http://x/"+expLoc, actLoc, "http://x/"+actLoc)
	rec, err := db.GetDiffRecord(context.Background(), expLoc, actLoc)
	require.NoError(t, err)
	assert.Equal(t, 662, rec.NumDifferingPixels)
	assert.Equal(t, 0.0662, rec.PercentDifferingPixels)
	assert.Equal(t, 0.0662, rec.PerceptualDifference)
	assert.Equal(t, rec.PercentDifferingPixels, rec.PerceptualDifference)
	assert.Equal(t, [3]int{255, 255, 247}, rec.MaxDiffPerChannel)

	name := "bitmap-64bitMD5_aaclip_1.png-vs-bitmap-64bitMD5_aaclip_2.png"
	assert.Equal(t, name, rec.DiffURL)
	assert.FileExists(t, filepath.Join(root, DiffsDirName, name))
	assert.FileExists(t, filepath.Join(root, WhiteDiffsDirName, name))
	assert.FileExists(t, filepath.Join(root, imagecache.ImagesDirName, "bitmap-64bitMD5_aaclip_1.png"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls))
}

func TestAddImagePair_SameContent_NoDiffImages(t *testing.T) {
	unittest.SmallTest(t)
	root := t.TempDir()
	f := &countingFetcher{data: map[string][]byte{
		"a": encodeSolid(t, 4, 4, black),
		"b": encodeSolid(t, 4, 4, black),
	}}
	db := newDB(t, root, f, nil)
	defer func() { require.NoError(t, db.Close()) }()

	require.NoError(t, db.AddImagePair(context.Background(), "a/1.png", "a", "b/2.png", "b"))
	rec, err := db.GetDiffRecord(context.Background(), "a/1.png", "b/2.png")
	require.NoError(t, err)
	assert.Equal(t, &diff.DiffRecord{}, rec)

	entries, err := os.ReadDir(filepath.Join(root, DiffsDirName))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAddImagePair_DownloadFails_ErrorSurfacedAndCached(t *testing.T) {
	unittest.SmallTest(t)
	m := &mocks.Fetcher{}
	m.On("Fetch", mock.Anything, "good").Return(encodeSolid(t, 1, 1, black), nil)
	m.On("Fetch", mock.Anything, "bad").Return(nil, errors.New("connection refused")).Once()
	db := newDB(t, t.TempDir(), m, nil)
	defer func() { require.NoError(t, db.Close()) }()
	ctx := context.Background()

	err := db.AddImagePair(ctx, "e", "good", "a", "bad")
	var de *imagecache.DownloadError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "a", de.Locator)

	_, err = db.GetDiffRecord(ctx, "e", "a")
	require.True(t, errors.As(err, &de))

	// Adding again does not retry the fetch.
	require.Error(t, db.AddImagePair(ctx, "e", "good", "a", "bad"))
	m.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestGetDiffRecord_UndecodableImage_DecodeError(t *testing.T) {
	unittest.SmallTest(t)
	f := &countingFetcher{data: map[string][]byte{
		"a": encodeSolid(t, 1, 1, black),
		"b": []byte("<html>definitely not a png</html>"),
	}}
	db := newDB(t, t.TempDir(), f, nil)
	defer func() { require.NoError(t, db.Close()) }()

	db.AddImagePairAsync("a", "a", "b", "b")
	_, err := db.GetDiffRecord(context.Background(), "a", "b")
	var de *diff.DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "b", de.Locator)
}

func TestGetDiffRecord_UnknownPair_ErrNoSuchDiff(t *testing.T) {
	unittest.SmallTest(t)
	db := newDB(t, t.TempDir(), &countingFetcher{}, nil)
	defer func() { require.NoError(t, db.Close()) }()

	_, err := db.GetDiffRecord(context.Background(), "never", "added")
	assert.Equal(t, ErrNoSuchDiff, err)
}

func TestAddImagePairAsync_ConcurrentCallers_EachImageFetchedOnce(t *testing.T) {
	unittest.SmallTest(t)
	f := &countingFetcher{
		data: map[string][]byte{
			"u/exp": encodeSolid(t, 8, 8, black),
			"u/act": encodeSolid(t, 8, 8, magenta),
		},
		release: make(chan struct{}),
	}
	db := newDB(t, t.TempDir(), f, nil)
	defer func() { require.NoError(t, db.Close()) }()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Never blocks, even while the fetches are held up.
			db.AddImagePairAsync("exp", "u/exp", "act", "u/act")
		}()
	}
	wg.Wait()

	recs := make(chan *diff.DiffRecord, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := db.GetDiffRecord(ctx, "exp", "act")
			assert.NoError(t, err)
			recs <- rec
		}()
	}
	// A synchronous add of the same pair joins the in-flight work.
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, db.AddImagePair(ctx, "exp", "u/exp", "act", "u/act"))
	}()
	close(f.release)
	wg.Wait()
	close(recs)

	var first *diff.DiffRecord
	for rec := range recs {
		if first == nil {
			first = rec
		}
		assert.Same(t, first, rec)
	}
	assert.Equal(t, 64, first.NumDifferingPixels)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls))
}

func TestAddImagePairAsync_ManyPairs_AllResolved(t *testing.T) {
	unittest.SmallTest(t)
	data := map[string][]byte{}
	for i := 0; i < 10; i++ {
		data[fmt.Sprintf("img%d", i)] = encodeSolid(t, 2, 2, color.NRGBA{R: uint8(i * 20), A: 0xff})
	}
	db := newDB(t, t.TempDir(), &countingFetcher{data: data}, nil)
	defer func() { require.NoError(t, db.Close()) }()

	for i := 1; i < 10; i++ {
		db.AddImagePairAsync("img0", "img0", fmt.Sprintf("img%d", i), fmt.Sprintf("img%d", i))
	}
	for i := 1; i < 10; i++ {
		rec, err := db.GetDiffRecord(context.Background(), "img0", fmt.Sprintf("img%d", i))
		require.NoError(t, err)
		assert.Equal(t, 4, rec.NumDifferingPixels)
		assert.Equal(t, [3]int{i * 20, 0, 0}, rec.MaxDiffPerChannel)
	}
}

func TestGetDiffRecord_ContextCanceled(t *testing.T) {
	unittest.SmallTest(t)
	f := &countingFetcher{
		data:    map[string][]byte{"a": encodeSolid(t, 1, 1, black), "b": encodeSolid(t, 1, 1, black)},
		release: make(chan struct{}),
	}
	db := newDB(t, t.TempDir(), f, nil)
	defer func() { require.NoError(t, db.Close()) }()
	defer close(f.release)

	db.AddImagePairAsync("a", "a", "b", "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := db.GetDiffRecord(ctx, "a", "b")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRecords_SurviveNewDB(t *testing.T) {
	unittest.MediumTest(t)
	root := t.TempDir()
	ctx := context.Background()

	store, err := recordstore.Open(root)
	require.NoError(t, err)
	f := &countingFetcher{data: map[string][]byte{
		"a": encodeSolid(t, 3, 3, black),
		"b": encodeSolid(t, 3, 3, magenta),
	}}
	db := newDB(t, root, f, store)
	require.NoError(t, db.AddImagePair(ctx, "a", "a", "b", "b"))
	want, err := db.GetDiffRecord(ctx, "a", "b")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Nothing can be fetched any more; the records must come from disk.
	store, err = recordstore.Open(root)
	require.NoError(t, err)
	db = newDB(t, root, &countingFetcher{}, store)
	defer func() { require.NoError(t, db.Close()) }()

	got, err := db.GetDiffRecord(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, db.AddImagePair(ctx, "a", "a", "b", "b"))
}

func TestNew_MissingOptions_Error(t *testing.T) {
	unittest.SmallTest(t)
	_, err := New(Options{Fetcher: &countingFetcher{}})
	assert.Error(t, err)
	_, err = New(Options{StorageRoot: t.TempDir()})
	assert.Error(t, err)
}

func TestFromRecords_InFlightEntry_HonorsContext(t *testing.T) {
	unittest.MediumTest(t)
	root := t.TempDir()
	store, err := recordstore.Open(root)
	require.NoError(t, err)
	require.NoError(t, store.Put("a-vs-b", &diff.DiffRecord{NumDifferingPixels: 1}))
	db := newDB(t, root, &countingFetcher{}, store)
	defer func() { require.NoError(t, db.Close()) }()

	// Another caller claimed the key between the lookup and the install.
	key := newDiffKey("a", "b")
	e, owner := db.claim(key)
	require.True(t, owner)
	defer close(e.done)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = db.fromRecords(ctx, key)
	assert.True(t, errors.Is(err, context.Canceled))
}
