package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.skia.org/rebaseline/go/testutils/unittest"
)

const actualsJSON = `{
  "actual-results": {
    "failed": {
      "3x3bitmaprect_565.png": ["bitmap-64bitMD5", 16998423976396106083]
    },
    "no-comparison": {
      "bigblurs_8888.png": ["bitmap-64bitMD5", 2820302302592323124]
    },
    "succeeded": {
      "aaclip_8888.png": ["bitmap-64bitMD5", 6190901827590820995],
      "missing_8888.png": null
    }
  }
}`

const expectationsJSON = `{
  "expected-results": {
    "3x3bitmaprect_565.png": {
      "allowed-digests": [["bitmap-64bitMD5", 2054956815327187963]],
      "bugs": [1578],
      "reviewed-by-human": true
    },
    "aaclip_8888.png": {
      "allowed-digests": [["bitmap-64bitMD5", 6190901827590820995]]
    }
  }
}`

func writeFile(t *testing.T, path, contents string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestDigest_KeepsFull64BitValue(t *testing.T) {
	unittest.SmallTest(t)
	var d Digest
	require.NoError(t, json.Unmarshal([]byte(`["bitmap-64bitMD5", 16998423976396106083]`), &d))
	assert.Equal(t, Digest{HashType: "bitmap-64bitMD5", Value: "16998423976396106083"}, d)
	assert.Equal(t, "bitmap-64bitMD5/3x3bitmaprect/16998423976396106083.png", d.RelativeURL("3x3bitmaprect"))

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `["bitmap-64bitMD5",16998423976396106083]`, string(b))

	require.NoError(t, json.Unmarshal([]byte(`["md5", "abc123"]`), &d))
	assert.Equal(t, "abc123", d.Value)
	assert.Error(t, json.Unmarshal([]byte(`["md5"]`), &d))
}

func TestParseImageName(t *testing.T) {
	unittest.SmallTest(t)
	test, config, ok := ParseImageName("3x3bitmaprect_565.png")
	require.True(t, ok)
	assert.Equal(t, "3x3bitmaprect", test)
	assert.Equal(t, "565", config)

	_, _, ok = ParseImageName("noconfig.png")
	assert.False(t, ok)
}

func TestLoadFromRoots_SkipsIgnoredBuildersAndCollectsErrors(t *testing.T) {
	unittest.MediumTest(t)
	actuals := t.TempDir()
	expectations := t.TempDir()
	writeFile(t, filepath.Join(actuals, "Test-Builder", "actual-results.json"), actualsJSON)
	writeFile(t, filepath.Join(actuals, "Test-Builder-Trybot", "actual-results.json"), actualsJSON)
	writeFile(t, filepath.Join(actuals, "Broken-Builder", "actual-results.json"), `{"actual-results": [`)
	writeFile(t, filepath.Join(expectations, "Test-Builder", "expected-results.json"), expectationsJSON)

	f, err := NewFilter(nil, []string{".*Trybot"})
	require.NoError(t, err)
	loaded, err := LoadFromRoots(actuals, expectations, f)
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 1)
	assert.Contains(t, err.Error(), "Broken-Builder")

	assert.Equal(t, []string{"Test-Builder"}, loaded.Builders())
	br := loaded["Test-Builder"]
	assert.Len(t, br.Actuals["succeeded"], 2)
	assert.Nil(t, br.Actuals["succeeded"]["missing_8888.png"])
	assert.Equal(t, []int{1578}, br.Expectations["3x3bitmaprect_565.png"].Bugs)
	assert.True(t, br.Expectations["3x3bitmaprect_565.png"].ReviewedByHuman)
}

func TestLoadFromRoots_MissingRoot_Error(t *testing.T) {
	unittest.SmallTest(t)
	_, err := LoadFromRoots(filepath.Join(t.TempDir(), "nope"), "", nil)
	assert.Error(t, err)
}
