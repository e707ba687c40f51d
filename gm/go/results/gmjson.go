package results

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	multierror "github.com/hashicorp/go-multierror"
	"go.skia.org/rebaseline/go/skerr"
	"go.skia.org/rebaseline/go/sklog"
	"go.skia.org/rebaseline/go/util"
)

// Keys of the GM JSON summary files.
const (
	KeyActualResults   = "actual-results"
	KeyExpectedResults = "expected-results"
	KeyAllowedDigests  = "allowed-digests"
	KeyBugs            = "bugs"
	KeyIgnoreFailure   = "ignore-failure"
	KeyReviewedByHuman = "reviewed-by-human"
)

// imageNameRegex splits "<test>_<config>.png".
var imageNameRegex = regexp.MustCompile(`^(\S+)_(\S+)\.png$`)

// Digest identifies the content of one image, serialized as
// [hashType, value]. The value is kept as text so 64-bit hashes survive.
type Digest struct {
	HashType string
	Value    string
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Digest) UnmarshalJSON(b []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return skerr.Wrapf(err, "digest %s", b)
	}
	if len(parts) != 2 {
		return skerr.Fmt("digest %s: want [hashType, value]", b)
	}
	if err := json.Unmarshal(parts[0], &d.HashType); err != nil {
		return skerr.Wrapf(err, "digest hash type %s", parts[0])
	}
	var n json.Number
	if err := json.Unmarshal(parts[1], &n); err == nil {
		d.Value = n.String()
		return nil
	}
	if err := json.Unmarshal(parts[1], &d.Value); err != nil {
		return skerr.Wrapf(err, "digest value %s", parts[1])
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Digest) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseUint(d.Value, 10, 64); err == nil {
		return json.Marshal([]interface{}{d.HashType, json.Number(d.Value)})
	}
	return json.Marshal([]string{d.HashType, d.Value})
}

// RelativeURL returns where the image with digest d, rendered by test, is
// found under the image base URL.
func (d Digest) RelativeURL(test string) string {
	return fmt.Sprintf("%s/%s/%s.png", d.HashType, test, d.Value)
}

// ExpectedResult is the expectation for one image.
type ExpectedResult struct {
	AllowedDigests  []Digest `json:"allowed-digests"`
	Bugs            []int    `json:"bugs,omitempty"`
	IgnoreFailure   bool     `json:"ignore-failure,omitempty"`
	ReviewedByHuman bool     `json:"reviewed-by-human,omitempty"`
}

// summaryFile is either an actuals or an expectations file.
type summaryFile struct {
	ActualResults   map[string]map[string]*Digest `json:"actual-results"`
	ExpectedResults map[string]*ExpectedResult    `json:"expected-results"`
}

// BuilderResults is everything loaded for one builder.
type BuilderResults struct {
	// Actuals is {category: {imageName: digest}}. A nil digest means the
	// image was not produced.
	Actuals map[string]map[string]*Digest

	// Expectations is {imageName: expectation}. It is nil if no
	// expectations were loaded for the builder.
	Expectations map[string]*ExpectedResult
}

// Loaded maps builder name to its results.
type Loaded map[string]*BuilderResults

// Builders returns the builder names in sorted order.
func (l Loaded) Builders() []string {
	ret := make([]string, 0, len(l))
	for b := range l {
		ret = append(ret, b)
	}
	sort.Strings(ret)
	return ret
}

func (l Loaded) builder(name string) *BuilderResults {
	br, ok := l[name]
	if !ok {
		br = &BuilderResults{Actuals: map[string]map[string]*Digest{}}
		l[name] = br
	}
	return br
}

// LoadFromRoots reads every <root>/<builder>/*.json file under actualsRoot
// and, if set, expectationsRoot. Builders ignored by f are skipped. Files
// that fail to load are reported together in the returned error, alongside
// whatever loaded cleanly.
func LoadFromRoots(actualsRoot, expectationsRoot string, f *Filter) (Loaded, error) {
	ret := Loaded{}
	var errs error
	if err := loadRoot(actualsRoot, f, ret, true); err != nil {
		errs = multierror.Append(errs, err)
	}
	if expectationsRoot != "" {
		if err := loadRoot(expectationsRoot, f, ret, false); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return ret, errs
}

func loadRoot(root string, f *Filter, into Loaded, actuals bool) error {
	if _, err := os.Stat(root); err != nil {
		return skerr.Wrapf(err, "results root")
	}
	paths, err := filepath.Glob(filepath.Join(root, "*", "*.json"))
	if err != nil {
		return skerr.Wrapf(err, "listing %s", root)
	}
	var errs *multierror.Error
	skipped := util.NewStringSet()
	for _, p := range paths {
		builder := filepath.Base(filepath.Dir(p))
		if f.IgnoreBuilder(builder) {
			skipped[builder] = true
			continue
		}
		var sf summaryFile
		err := util.WithReadFile(p, func(r io.Reader) error {
			return json.NewDecoder(r).Decode(&sf)
		})
		if err != nil {
			errs = multierror.Append(errs, skerr.Wrapf(err, "loading %s", p))
			continue
		}
		br := into.builder(builder)
		if actuals {
			for category, images := range sf.ActualResults {
				if br.Actuals[category] == nil {
					br.Actuals[category] = map[string]*Digest{}
				}
				for name, d := range images {
					br.Actuals[category][name] = d
				}
			}
		} else {
			if br.Expectations == nil {
				br.Expectations = map[string]*ExpectedResult{}
			}
			for name, e := range sf.ExpectedResults {
				br.Expectations[name] = e
			}
		}
	}
	if len(skipped) > 0 {
		sklog.Infof("Ignored builders under %s: %v", root, skipped.Keys())
	}
	return errs.ErrorOrNil()
}

// ParseImageName splits "<test>_<config>.png".
func ParseImageName(imageName string) (test, config string, ok bool) {
	m := imageNameRegex.FindStringSubmatch(imageName)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
