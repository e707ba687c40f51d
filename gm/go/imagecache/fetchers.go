package imagecache

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"

	"cloud.google.com/go/storage"
	"go.skia.org/rebaseline/go/gcs"
	"go.skia.org/rebaseline/go/httputils"
	"go.skia.org/rebaseline/go/skerr"
	"go.skia.org/rebaseline/go/util"
	"google.golang.org/api/option"
)

// Fetcher retrieves the bytes of an image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches http:// and https:// URLs.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher using client. If client is nil a
// retrying client which treats non-2xx responses as errors is used.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = httputils.DefaultClientConfig().With2xxOnly().Client()
	}
	return &HTTPFetcher{client: client}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, skerr.Wrapf(err, "building request for %s", u)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, skerr.Wrapf(err, "fetching %s", u)
	}
	defer util.Close(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, skerr.Fmt("fetching %s: status %d", u, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, skerr.Wrapf(err, "reading body of %s", u)
	}
	return b, nil
}

// GCSFetcher fetches gs://bucket/path URLs.
type GCSFetcher struct {
	newClient func(bucket string) gcs.GCSClient

	mtx     sync.Mutex
	buckets map[string]gcs.GCSClient
}

// NewGCSFetcher returns a GCSFetcher backed by a Cloud Storage client built
// with the given options.
func NewGCSFetcher(ctx context.Context, opts ...option.ClientOption) (*GCSFetcher, error) {
	s, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, skerr.Wrapf(err, "creating storage client")
	}
	return NewGCSFetcherWithClients(func(bucket string) gcs.GCSClient {
		return gcs.NewGCSClient(s, bucket)
	}), nil
}

// NewGCSFetcherWithClients returns a GCSFetcher which calls newClient once
// per bucket.
func NewGCSFetcherWithClients(newClient func(bucket string) gcs.GCSClient) *GCSFetcher {
	return &GCSFetcher{
		newClient: newClient,
		buckets:   map[string]gcs.GCSClient{},
	}
}

func (f *GCSFetcher) bucket(name string) gcs.GCSClient {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	c, ok := f.buckets[name]
	if !ok {
		c = f.newClient(name)
		f.buckets[name] = c
	}
	return c
}

// Fetch implements Fetcher.
func (f *GCSFetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	bucket, path, err := gcs.SplitGSPath(u)
	if err != nil {
		return nil, err
	}
	b, err := f.bucket(bucket).GetFileContents(ctx, path)
	if gcs.IsNotExist(err) {
		return nil, skerr.Wrapf(err, "no such object %s", u)
	} else if err != nil {
		return nil, skerr.Wrapf(err, "fetching %s", u)
	}
	return b, nil
}

// FileFetcher reads file:// URLs and bare paths from local disk.
type FileFetcher struct{}

// Fetch implements Fetcher.
func (FileFetcher) Fetch(_ context.Context, u string) ([]byte, error) {
	p := u
	if parsed, err := url.Parse(u); err == nil && parsed.Scheme == "file" {
		p = parsed.Path
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, skerr.Wrapf(err, "reading %s", p)
	}
	return b, nil
}

// MuxFetcher dispatches to a Fetcher by URL scheme. URLs without a scheme
// go to the "" entry.
type MuxFetcher map[string]Fetcher

// Fetch implements Fetcher.
func (m MuxFetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	scheme := ""
	if parsed, err := url.Parse(u); err == nil {
		scheme = parsed.Scheme
	}
	f, ok := m[scheme]
	if !ok {
		return nil, skerr.Fmt("no fetcher for scheme %q of %s", scheme, u)
	}
	return f.Fetch(ctx, u)
}

// NewDefaultMuxFetcher returns a MuxFetcher handling http, https, file, bare
// paths and, if gcsFetcher is not nil, gs.
func NewDefaultMuxFetcher(httpFetcher *HTTPFetcher, gcsFetcher *GCSFetcher) MuxFetcher {
	m := MuxFetcher{
		"http":  httpFetcher,
		"https": httpFetcher,
		"file":  FileFetcher{},
		"":      FileFetcher{},
	}
	if gcsFetcher != nil {
		m["gs"] = gcsFetcher
	}
	return m
}

var (
	_ Fetcher = (*HTTPFetcher)(nil)
	_ Fetcher = (*GCSFetcher)(nil)
	_ Fetcher = FileFetcher{}
	_ Fetcher = MuxFetcher(nil)
)
