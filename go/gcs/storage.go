package gcs

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"go.skia.org/rebaseline/go/skerr"
	"go.skia.org/rebaseline/go/util"
)

// GCSClient is an interface for reading from Google Cloud Storage (GCS). Introducing
// the interface allows for easier mocking in unit tests; see test_gcsclient.
// The bucket name is given at creation time, so as to simplify the method
// signatures.
type GCSClient interface {
	// FileReader returns an io.ReadCloser pointing to path on GCS, using the provided
	// context. storage.ErrObjectNotExist will be returned if the file is not found.
	// The caller must call Close on the returned Reader when done reading.
	FileReader(ctx context.Context, path string) (io.ReadCloser, error)
	// DoesFileExist returns true if the specified path exists and false if it does not.
	// If any error, other than storage.ErrObjectNotExist, is encountered then it will be
	// returned.
	DoesFileExist(ctx context.Context, path string) (bool, error)
	// GetFileContents returns the []byte represented by the GCS file at path.
	// storage.ErrObjectNotExist will be returned if the file is not found.
	GetFileContents(ctx context.Context, path string) ([]byte, error)
	// Bucket returns the bucket name of this client.
	Bucket() string
}

// gcsclient holds the information needed to talk to cloud storage.
type gcsclient struct {
	client *storage.Client
	bucket string
}

// NewGCSClient returns a GCSClient. See the interface for more information.
func NewGCSClient(s *storage.Client, bucket string) GCSClient {
	return &gcsclient{
		client: s,
		bucket: bucket,
	}
}

// See the GCSClient interface for more information about FileReader.
func (g *gcsclient) FileReader(ctx context.Context, path string) (io.ReadCloser, error) {
	return g.client.Bucket(g.bucket).Object(path).NewReader(ctx)
}

// See the GCSClient interface for more information about DoesFileExist.
func (g *gcsclient) DoesFileExist(ctx context.Context, path string) (bool, error) {
	if _, err := g.client.Bucket(g.bucket).Object(path).Attrs(ctx); err == storage.ErrObjectNotExist {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// See the GCSClient interface for more information about GetFileContents.
func (g *gcsclient) GetFileContents(ctx context.Context, path string) ([]byte, error) {
	r, err := g.FileReader(ctx, path)
	if err != nil {
		return nil, err
	}
	defer util.Close(r)
	return io.ReadAll(r)
}

// See the GCSClient interface for more information about Bucket.
func (g *gcsclient) Bucket() string {
	return g.bucket
}

// SplitGSPath splits a "gs://bucket/some/path" URL into its bucket and object
// path.
func SplitGSPath(gsURL string) (string, string, error) {
	u, err := url.Parse(gsURL)
	if err != nil {
		return "", "", skerr.Wrapf(err, "parsing %q", gsURL)
	}
	if u.Scheme != "gs" {
		return "", "", skerr.Fmt("%q is not a gs:// URL", gsURL)
	}
	path := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || path == "" {
		return "", "", skerr.Fmt("%q needs both a bucket and a path", gsURL)
	}
	return u.Host, path, nil
}

// IsNotExist returns true if err reports a missing GCS object.
func IsNotExist(err error) bool {
	return errors.Is(err, storage.ErrObjectNotExist)
}
