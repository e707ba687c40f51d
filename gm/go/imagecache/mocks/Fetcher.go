// Package mocks holds testify mocks of imagecache interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.skia.org/rebaseline/gm/go/imagecache"
)

// Fetcher is a mock of imagecache.Fetcher.
type Fetcher struct {
	mock.Mock
}

// Fetch provides a mock function with given fields: ctx, url
func (m *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	args := m.Called(ctx, url)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

var _ imagecache.Fetcher = (*Fetcher)(nil)
