package imagecache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.skia.org/rebaseline/go/gcs"
	"go.skia.org/rebaseline/go/gcs/test_gcsclient"
	"go.skia.org/rebaseline/go/testutils/unittest"
)

func TestFileFetcher_BarePathAndFileURL(t *testing.T) {
	unittest.SmallTest(t)
	p := filepath.Join(t.TempDir(), "img.png")
	require.NoError(t, os.WriteFile(p, []byte("bytes"), 0644))

	b, err := FileFetcher{}.Fetch(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(b))

	b, err = FileFetcher{}.Fetch(context.Background(), "file://"+p)
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(b))

	_, err = FileFetcher{}.Fetch(context.Background(), p+".nope")
	assert.Error(t, err)
}

func TestGCSFetcher_OneClientPerBucket(t *testing.T) {
	unittest.SmallTest(t)
	ctx := context.Background()
	mc := test_gcsclient.NewMockClient()
	mc.On("GetFileContents", ctx, "gm/a.png").Return([]byte("A"), nil)
	mc.On("GetFileContents", ctx, "gm/b.png").Return(nil, errors.New("boom"))

	created := 0
	f := NewGCSFetcherWithClients(func(bucket string) gcs.GCSClient {
		assert.Equal(t, "my-bucket", bucket)
		created++
		return mc
	})

	b, err := f.Fetch(ctx, "gs://my-bucket/gm/a.png")
	require.NoError(t, err)
	assert.Equal(t, "A", string(b))
	_, err = f.Fetch(ctx, "gs://my-bucket/gm/b.png")
	assert.Error(t, err)
	_, err = f.Fetch(ctx, "gs://no-path")
	assert.Error(t, err)

	assert.Equal(t, 1, created)
	mc.AssertExpectations(t)
}

func TestMuxFetcher_DispatchesByScheme(t *testing.T) {
	unittest.SmallTest(t)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("from http"))
	}))
	defer s.Close()
	p := filepath.Join(t.TempDir(), "local.png")
	require.NoError(t, os.WriteFile(p, []byte("from disk"), 0644))

	m := NewDefaultMuxFetcher(NewHTTPFetcher(s.Client()), nil)
	b, err := m.Fetch(context.Background(), s.URL+"/x.png")
	require.NoError(t, err)
	assert.Equal(t, "from http", string(b))

	b, err = m.Fetch(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "from disk", string(b))

	_, err = m.Fetch(context.Background(), "gs://bucket/path.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no fetcher for scheme "gs"`)
}

func TestMuxFetcher_UsesRegisteredFetcher(t *testing.T) {
	unittest.SmallTest(t)
	m := &mocksFetcher{}
	m.On("Fetch", mock.Anything, "custom://a").Return([]byte("z"), nil)
	b, err := MuxFetcher{"custom": m}.Fetch(context.Background(), "custom://a")
	require.NoError(t, err)
	assert.Equal(t, "z", string(b))
}
