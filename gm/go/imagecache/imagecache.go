// Package imagecache downloads images at most once per locator, keeps them
// on local disk and keeps recently used decoded images in RAM.
package imagecache

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru"
	"go.skia.org/rebaseline/gm/go/diff"
	_ "go.skia.org/rebaseline/gm/go/image/text"
	"go.skia.org/rebaseline/gm/go/locator"
	"go.skia.org/rebaseline/go/fileutil"
	"go.skia.org/rebaseline/go/metrics2"
	"go.skia.org/rebaseline/go/skerr"
	"go.skia.org/rebaseline/go/sklog"
	"go.skia.org/rebaseline/go/util"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
)

const (
	// ImagesDirName is the directory under the storage root holding
	// downloaded images.
	ImagesDirName = "images"

	// ImageExtension is appended to sanitized locators that don't already
	// end in it to form file names.
	ImageExtension = ".png"

	// DefaultDecodedCacheSize is the default number of decoded images kept
	// in RAM.
	DefaultDecodedCacheSize = 200
)

// DownloadError is returned when an image can't be fetched or stored.
type DownloadError struct {
	Locator string
	URL     string
	Err     error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("downloading image %q from %s: %s", e.Locator, e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Cache is an image cache rooted at a directory. It is safe for concurrent
// use.
type Cache struct {
	imagesDir string
	fetcher   Fetcher
	group     singleflight.Group
	decoded   *lru.Cache

	downloads        metrics2.Counter
	downloadFailures metrics2.Counter
}

// New returns a Cache storing images under <storageRoot>/images. At most
// decodedCacheSize decoded images are kept in RAM.
func New(storageRoot string, fetcher Fetcher, decodedCacheSize int) (*Cache, error) {
	dir, err := fileutil.EnsureDirExists(filepath.Join(storageRoot, ImagesDirName))
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if decodedCacheSize <= 0 {
		decodedCacheSize = DefaultDecodedCacheSize
	}
	decoded, err := lru.New(decodedCacheSize)
	if err != nil {
		return nil, skerr.Wrapf(err, "creating decoded image cache")
	}
	return &Cache{
		imagesDir:        dir,
		fetcher:          fetcher,
		decoded:          decoded,
		downloads:        metrics2.GetCounter("rebaseline_image_downloads"),
		downloadFailures: metrics2.GetCounter("rebaseline_image_download_failures"),
	}, nil
}

// FileName returns the name of the file stored for loc.
func FileName(loc string) string {
	name := locator.Sanitize(loc)
	if strings.HasSuffix(name, ImageExtension) {
		return name
	}
	return name + ImageExtension
}

// Path returns the file the image with the given locator is stored in.
func (c *Cache) Path(loc string) string {
	return filepath.Join(c.imagesDir, FileName(loc))
}

// Has returns true if the image is already on disk.
func (c *Cache) Has(loc string) bool {
	return fileutil.FileExists(c.Path(loc))
}

// Get returns the decoded image for loc, downloading it from url if it isn't
// on disk yet. Concurrent calls for the same locator share one download.
// It returns a *DownloadError or *diff.DecodeError on failure.
func (c *Cache) Get(ctx context.Context, loc, url string) (image.Image, error) {
	key := locator.Sanitize(loc)
	if img, ok := c.decoded.Get(key); ok {
		return img.(image.Image), nil
	}
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// The shared load must not be cut short by whichever caller started it.
		return c.load(context.WithoutCancel(ctx), key, url)
	})
	select {
	case <-ctx.Done():
		return nil, skerr.Wrapf(ctx.Err(), "waiting for image %s", key)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(image.Image), nil
	}
}

func (c *Cache) load(ctx context.Context, key, url string) (image.Image, error) {
	path := c.Path(key)
	var img image.Image
	if fileutil.FileExists(path) {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, &DownloadError{Locator: key, URL: url, Err: err}
		}
		if img, err = decode(key, b); err != nil {
			// Drop it so that the next process fetches it again.
			util.Remove(path)
			return nil, err
		}
	} else {
		var err error
		if img, err = c.download(ctx, key, url, path); err != nil {
			return nil, err
		}
	}
	nrgba := diff.ToNRGBA(img)
	c.decoded.Add(key, image.Image(nrgba))
	return nrgba, nil
}

func decode(key string, b []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, &diff.DecodeError{Locator: key, Err: err}
	}
	return img, nil
}

// download fetches and decodes the image. Only bytes that decode are stored.
func (c *Cache) download(ctx context.Context, key, url, path string) (image.Image, error) {
	sklog.Debugf("Downloading image %s from %s", key, url)
	b, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		c.downloadFailures.Inc(1)
		sklog.Warningf("Failed to download %s from %s: %s", key, url, err)
		return nil, &DownloadError{Locator: key, URL: url, Err: err}
	}
	img, err := decode(key, b)
	if err != nil {
		sklog.Warningf("Downloaded %s from %s is not an image: %s", key, url, err)
		return nil, err
	}
	err = util.WithWriteFile(path, func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	})
	if err != nil {
		c.downloadFailures.Inc(1)
		return nil, &DownloadError{Locator: key, URL: url, Err: err}
	}
	c.downloads.Inc(1)
	sklog.Debugf("Stored %s (%s) at %s", key, humanize.Bytes(uint64(len(b))), path)
	return img, nil
}
