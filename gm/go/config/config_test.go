package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.skia.org/rebaseline/go/testutils/unittest"
)

func writeConfig(t *testing.T, contents string) string {
	p := filepath.Join(t.TempDir(), "rebaseline.json5")
	require.NoError(t, os.WriteFile(p, []byte(contents), 0644))
	return p
}

func TestLoad_Valid(t *testing.T) {
	unittest.SmallTest(t)
	p := writeConfig(t, `{
  storage_root: "/tmp/rebaseline",
  actuals_root: "/tmp/actuals",
  image_base_url: "gs://chromium-skia-gm/gm",
  skip_builders: [".*Trybot.*", ".*TSAN.*"],
  refresh_interval: "5m",
  persist_records: true,
}`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval.Duration)
	assert.True(t, cfg.PersistRecords)
	assert.Empty(t, cfg.ExpectationsRoot)

	f, err := cfg.Filter()
	require.NoError(t, err)
	assert.True(t, f.IgnoreBuilder("Test-Ubuntu-TSAN"))
	assert.False(t, f.IgnoreBuilder("Test-Ubuntu-Release"))
}

func TestLoad_MissingRequired_Error(t *testing.T) {
	unittest.SmallTest(t)
	_, err := Load(writeConfig(t, `{storage_root: "/tmp/x", actuals_root: "/tmp/y"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ImageBaseURL")
}

func TestLoad_BadPattern_Error(t *testing.T) {
	unittest.SmallTest(t)
	_, err := Load(writeConfig(t, `{
  storage_root: "/tmp/x",
  actuals_root: "/tmp/y",
  image_base_url: "http://z",
  match_builders: ["("],
}`))
	assert.Error(t, err)
}
