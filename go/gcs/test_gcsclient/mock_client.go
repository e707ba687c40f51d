// Package test_gcsclient provides a testify mock of gcs.GCSClient.
package test_gcsclient

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
	"go.skia.org/rebaseline/go/gcs"
)

// GCSClient is a mock of gcs.GCSClient.
type GCSClient struct {
	mock.Mock
}

// NewMockClient returns a new mock GCSClient
func NewMockClient() *GCSClient {
	return &GCSClient{}
}

func (m *GCSClient) FileReader(ctx context.Context, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, path)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *GCSClient) DoesFileExist(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1)
}

func (m *GCSClient) GetFileContents(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *GCSClient) Bucket() string {
	return m.Called().String(0)
}

var _ gcs.GCSClient = (*GCSClient)(nil)
