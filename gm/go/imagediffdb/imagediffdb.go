// Package imagediffdb computes and caches the difference between pairs of
// images. Each pair is fetched and compared at most once; any number of
// callers may wait for the result.
package imagediffdb

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"path/filepath"
	"sync"

	multierror "github.com/hashicorp/go-multierror"
	"go.skia.org/rebaseline/gm/go/diff"
	"go.skia.org/rebaseline/gm/go/imagecache"
	"go.skia.org/rebaseline/gm/go/imagediffdb/recordstore"
	"go.skia.org/rebaseline/gm/go/locator"
	"go.skia.org/rebaseline/go/fileutil"
	"go.skia.org/rebaseline/go/metrics2"
	"go.skia.org/rebaseline/go/skerr"
	"go.skia.org/rebaseline/go/sklog"
	"go.skia.org/rebaseline/go/util"
	"go.skia.org/rebaseline/go/workerpool"
	"golang.org/x/sync/errgroup"
)

const (
	// DiffsDirName holds images of the per-channel differences.
	DiffsDirName = "diffs"

	// WhiteDiffsDirName holds images with differing pixels in white.
	WhiteDiffsDirName = "whitediffs"

	// DefaultNumWorkers is the number of background workers used when
	// Options.NumWorkers is not set.
	DefaultNumWorkers = 8
)

// ErrNoSuchDiff is returned by GetDiffRecord for pairs that were never added.
var ErrNoSuchDiff = errors.New("no such diff: pair was never added")

// DiffKey identifies one comparison by its two sanitized locators.
type DiffKey struct {
	Expected string
	Actual   string
}

func newDiffKey(expected, actual string) DiffKey {
	return DiffKey{Expected: locator.Sanitize(expected), Actual: locator.Sanitize(actual)}
}

// entry is the future for one DiffKey. done is closed once rec or err is set.
type entry struct {
	done chan struct{}
	rec  *diff.DiffRecord
	err  error
}

// Options configures an ImageDiffDB.
type Options struct {
	// StorageRoot is the directory images, diff images and records live under.
	StorageRoot string

	// Fetcher retrieves image bytes.
	Fetcher imagecache.Fetcher

	// NumWorkers is the number of background workers. Defaults to
	// DefaultNumWorkers.
	NumWorkers int

	// DecodedCacheSize is the number of decoded images kept in RAM.
	DecodedCacheSize int

	// Records, if set, persists DiffRecords across restarts. The
	// ImageDiffDB closes it on Close.
	Records *recordstore.Store
}

// ImageDiffDB computes DiffRecords for pairs of images, synchronously or on
// a pool of background workers, and caches them for the life of the process.
type ImageDiffDB struct {
	cache         *imagecache.Cache
	records       *recordstore.Store
	pool          *workerpool.WorkerPool
	syncWork      sync.WaitGroup
	diffsDir      string
	whiteDiffsDir string

	mtx     sync.Mutex
	entries map[DiffKey]*entry

	diffsComputed metrics2.Counter
	diffFailures  metrics2.Counter
	queueLength   metrics2.Int64Metric
}

// New returns an ImageDiffDB configured by opts.
func New(opts Options) (*ImageDiffDB, error) {
	if opts.StorageRoot == "" {
		return nil, skerr.Fmt("a storage root is required")
	}
	if opts.Fetcher == nil {
		return nil, skerr.Fmt("a fetcher is required")
	}
	cache, err := imagecache.New(opts.StorageRoot, opts.Fetcher, opts.DecodedCacheSize)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	diffsDir, err := fileutil.EnsureDirExists(filepath.Join(opts.StorageRoot, DiffsDirName))
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	whiteDiffsDir, err := fileutil.EnsureDirExists(filepath.Join(opts.StorageRoot, WhiteDiffsDirName))
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	numWorkers := opts.NumWorkers
	if numWorkers <= 0 {
		numWorkers = DefaultNumWorkers
	}
	return &ImageDiffDB{
		cache:         cache,
		records:       opts.Records,
		pool:          workerpool.New(numWorkers),
		diffsDir:      diffsDir,
		whiteDiffsDir: whiteDiffsDir,
		entries:       map[DiffKey]*entry{},
		diffsComputed: metrics2.GetCounter("rebaseline_diffs_computed"),
		diffFailures:  metrics2.GetCounter("rebaseline_diff_failures"),
		queueLength:   metrics2.GetInt64Metric("rebaseline_diff_queue_length"),
	}, nil
}

// Cache returns the image cache used by the database.
func (d *ImageDiffDB) Cache() *imagecache.Cache {
	return d.cache
}

// claim returns the entry for key, creating it if needed. owner is true if
// the caller created it and must therefore run the work.
func (d *ImageDiffDB) claim(key DiffKey) (e *entry, owner bool) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if e, ok := d.entries[key]; ok {
		return e, false
	}
	e = &entry{done: make(chan struct{})}
	d.entries[key] = e
	return e, true
}

// AddImagePair fetches both images, computes their DiffRecord and returns
// once it is stored. If the pair is already computed or in flight it waits
// for that work instead of repeating it. A failed fetch returns a
// *imagecache.DownloadError. If ctx ends first, ctx.Err() is returned and the
// work continues in the background.
func (d *ImageDiffDB) AddImagePair(ctx context.Context, expectedLoc, expectedURL, actualLoc, actualURL string) error {
	key := newDiffKey(expectedLoc, actualLoc)
	e, owner := d.claim(key)
	if owner {
		d.syncWork.Add(1)
		go func() {
			defer d.syncWork.Done()
			d.compute(context.WithoutCancel(ctx), key, e, expectedURL, actualURL)
		}()
	}
	_, err := wait(ctx, key, e)
	return err
}

// AddImagePairAsync queues the work of AddImagePair on a background worker
// and returns immediately. It is a no-op if the pair is already computed or
// in flight. It must not be called after Close.
func (d *ImageDiffDB) AddImagePairAsync(expectedLoc, expectedURL, actualLoc, actualURL string) {
	key := newDiffKey(expectedLoc, actualLoc)
	e, owner := d.claim(key)
	if !owner {
		return
	}
	d.pool.Go(func() {
		d.queueLength.Update(int64(d.pool.Len()))
		d.compute(context.Background(), key, e, expectedURL, actualURL)
	})
	d.queueLength.Update(int64(d.pool.Len()))
}

// GetDiffRecord blocks until the pair's work is done and returns its
// DiffRecord, or the error the work failed with. Pairs never added, and not
// found in the persisted records, return ErrNoSuchDiff.
func (d *ImageDiffDB) GetDiffRecord(ctx context.Context, expectedLoc, actualLoc string) (*diff.DiffRecord, error) {
	key := newDiffKey(expectedLoc, actualLoc)
	d.mtx.Lock()
	e, ok := d.entries[key]
	d.mtx.Unlock()
	if !ok {
		return d.fromRecords(ctx, key)
	}
	return wait(ctx, key, e)
}

// wait returns the result of e once it is done, or the ctx error if ctx ends
// first.
func wait(ctx context.Context, key DiffKey, e *entry) (*diff.DiffRecord, error) {
	select {
	case <-e.done:
		return e.rec, e.err
	case <-ctx.Done():
		return nil, skerr.Wrapf(ctx.Err(), "waiting for diff %s", locator.DifferenceLocator(key.Expected, key.Actual))
	}
}

// fromRecords loads a record persisted by an earlier process and installs
// it as a completed entry.
func (d *ImageDiffDB) fromRecords(ctx context.Context, key DiffKey) (*diff.DiffRecord, error) {
	if d.records == nil {
		return nil, ErrNoSuchDiff
	}
	rec, err := d.records.Get(locator.DifferenceLocator(key.Expected, key.Actual))
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if rec == nil {
		return nil, ErrNoSuchDiff
	}
	e, owner := d.claim(key)
	if owner {
		e.rec = rec
		close(e.done)
		return rec, nil
	}
	return wait(ctx, key, e)
}

// compute does the work for one entry and closes e.done.
func (d *ImageDiffDB) compute(ctx context.Context, key DiffKey, e *entry, expectedURL, actualURL string) {
	defer close(e.done)
	diffLoc := locator.DifferenceLocator(key.Expected, key.Actual)

	if d.records != nil {
		rec, err := d.records.Get(diffLoc)
		if err != nil {
			sklog.Warningf("Ignoring unreadable stored record for %s: %s", diffLoc, err)
		} else if rec != nil {
			e.rec = rec
			return
		}
	}

	defer metrics2.NewTimer("rebaseline_compute_diff").Stop()
	var expected, actual image.Image
	var eg errgroup.Group
	eg.Go(func() error {
		var err error
		expected, err = d.cache.Get(ctx, key.Expected, expectedURL)
		return err
	})
	eg.Go(func() error {
		var err error
		actual, err = d.cache.Get(ctx, key.Actual, actualURL)
		return err
	})
	if err := eg.Wait(); err != nil {
		d.diffFailures.Inc(1)
		sklog.Warningf("Failed to diff %s: %s", diffLoc, err)
		e.err = err
		return
	}

	rec := diff.ComputeDiff(expected, actual)
	if rec.NumDifferingPixels > 0 {
		d.writeDiffImages(diffLoc, expected, actual, rec)
	}
	if d.records != nil {
		util.LogErr(d.records.Put(diffLoc, rec))
	}
	d.diffsComputed.Inc(1)
	e.rec = rec
}

// writeDiffImages writes the diff images for the pair and records their
// names in rec. Failures are logged and leave the names empty.
func (d *ImageDiffDB) writeDiffImages(diffLoc string, expected, actual image.Image, rec *diff.DiffRecord) {
	rgbDiff, whiteDiff, ok := diff.DiffImages(expected, actual)
	if !ok {
		return
	}
	name := imagecache.FileName(diffLoc)
	if err := writePNG(filepath.Join(d.diffsDir, name), rgbDiff); err != nil {
		sklog.Errorf("Failed to write diff image for %s: %s", diffLoc, err)
		return
	}
	if err := writePNG(filepath.Join(d.whiteDiffsDir, name), whiteDiff); err != nil {
		sklog.Errorf("Failed to write white diff image for %s: %s", diffLoc, err)
		return
	}
	rec.DiffURL = name
	rec.WhiteDiffURL = name
}

func writePNG(path string, img image.Image) error {
	return util.WithWriteFile(path, func(w io.Writer) error {
		return png.Encode(w, img)
	})
}

// Close waits for all queued work to finish and closes the record store.
func (d *ImageDiffDB) Close() error {
	d.pool.Wait()
	d.syncWork.Wait()
	var errs error
	if d.records != nil {
		if err := d.records.Close(); err != nil {
			errs = multierror.Append(errs, skerr.Wrapf(err, "closing record store"))
		}
	}
	return errs
}
