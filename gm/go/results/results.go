// Package results turns per-builder GM results into ImagePairSets, one per
// result category, and packages them for the report UI.
package results

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.skia.org/rebaseline/gm/go/column"
	"go.skia.org/rebaseline/gm/go/imagepair"
	"go.skia.org/rebaseline/gm/go/imagepairset"
	"go.skia.org/rebaseline/go/skerr"
	"go.skia.org/rebaseline/go/sklog"
)

// ResultType is the outcome of comparing one actual image to expectations.
type ResultType string

const (
	Failed         ResultType = "failed"
	FailureIgnored ResultType = "failure-ignored"
	NoComparison   ResultType = "no-comparison"
	Succeeded      ResultType = "succeeded"
)

// AllResultTypes lists every ResultType.
var AllResultTypes = []ResultType{Failed, FailureIgnored, NoComparison, Succeeded}

func (r ResultType) valid() bool {
	for _, t := range AllResultTypes {
		if r == t {
			return true
		}
	}
	return false
}

// Categories served besides the individual result types.
const (
	CategoryAll      = "all"
	CategoryFailures = "failures"
)

// Extra column keys attached to every pair.
const (
	ColumnBuilder    = "builder"
	ColumnConfig     = "config"
	ColumnResultType = "resultType"
	ColumnTest       = "test"
)

// SchemaVersion is reported in every PackagedResults header.
const SchemaVersion = 3

// ErrUnknownCategory is returned for categories that are not served.
var ErrUnknownCategory = errors.New("unknown result category")

// Config configures an Aggregator.
type Config struct {
	// ActualsRoot holds <builder>/*.json actual results. Required.
	ActualsRoot string

	// ExpectationsRoot holds <builder>/*.json expectations. Optional; without
	// it each image keeps the result type it was filed under.
	ExpectationsRoot string

	// ImageBaseURL is the base URL all actual and expected images live under.
	ImageBaseURL string

	// DiffBaseURL and WhiteDiffBaseURL are where diff images are served.
	DiffBaseURL      string
	WhiteDiffBaseURL string

	// Filter selects builders. Nil means all builders.
	Filter *Filter

	IsEditable bool
	IsExported bool

	// RefreshInterval, if set, is reported as when the next update will be
	// available.
	RefreshInterval time.Duration

	// Concurrency bounds how many pairs are resolved at once per request.
	Concurrency int
}

// Header describes a PackagedResults.
type Header struct {
	SchemaVersion           int    `json:"schemaVersion"`
	Type                    string `json:"type"`
	TimeUpdated             int64  `json:"timeUpdated"`
	TimeNextUpdateAvailable int64  `json:"timeNextUpdateAvailable,omitempty"`
	IsEditable              bool   `json:"isEditable"`
	IsExported              bool   `json:"isExported"`
	ResultsStillLoading     bool   `json:"resultsStillLoading"`
}

// PackagedResults is one category of results, ready to serve as JSON.
type PackagedResults struct {
	Header Header `json:"header"`
	imagepairset.Dict
}

// Aggregator holds one ImagePairSet per category.
type Aggregator struct {
	cfg         Config
	timeUpdated time.Time
	sets        map[string]*imagepairset.ImagePairSet
}

// New loads the results under cfg's roots and builds an Aggregator. Every
// pair that needs a comparison is queued on db.
func New(db imagepair.DiffDB, cfg Config) (*Aggregator, error) {
	if cfg.ActualsRoot == "" {
		return nil, skerr.Fmt("an actuals root is required")
	}
	loaded, err := LoadFromRoots(cfg.ActualsRoot, cfg.ExpectationsRoot, cfg.Filter)
	if err != nil {
		return nil, skerr.Wrapf(err, "loading results")
	}
	return Build(db, loaded, cfg, time.Now())
}

// Build creates an Aggregator from already loaded results.
func Build(db imagepair.DiffDB, loaded Loaded, cfg Config, timeUpdated time.Time) (*Aggregator, error) {
	a := &Aggregator{
		cfg:         cfg,
		timeUpdated: timeUpdated,
		sets:        map[string]*imagepairset.ImagePairSet{},
	}
	for _, c := range Categories() {
		a.sets[c] = a.newSet()
	}
	for _, builder := range loaded.Builders() {
		if cfg.Filter.IgnoreBuilder(builder) {
			continue
		}
		if err := a.addBuilder(db, builder, loaded[builder]); err != nil {
			return nil, skerr.Wrapf(err, "builder %s", builder)
		}
	}
	for c, s := range a.sets {
		sklog.Infof("Category %s has %d image pairs", c, s.Len())
	}
	return a, nil
}

// Categories returns every category an Aggregator serves.
func Categories() []string {
	ret := []string{CategoryAll, CategoryFailures}
	for _, t := range AllResultTypes {
		ret = append(ret, string(t))
	}
	return ret
}

func (a *Aggregator) newSet() *imagepairset.ImagePairSet {
	s := imagepairset.New("Expected Image", "Actual Image")
	s.DiffBaseURL = a.cfg.DiffBaseURL
	s.WhiteDiffBaseURL = a.cfg.WhiteDiffBaseURL
	if a.cfg.Concurrency > 0 {
		s.Concurrency = a.cfg.Concurrency
	}
	s.SetColumnHeaderConfig(ColumnBuilder, column.New("Builder"))
	s.SetColumnHeaderConfig(ColumnConfig, column.New("Config"))
	s.SetColumnHeaderConfig(ColumnResultType, column.New("Result Type"))
	test := column.New("Test")
	test.UseFreeformFilter = true
	test.IncludeHistogram = false
	s.SetColumnHeaderConfig(ColumnTest, test)

	types := make([]string, 0, len(AllResultTypes))
	for _, t := range AllResultTypes {
		types = append(types, string(t))
	}
	s.EnsureExtraColumnValuesInSummary(ColumnResultType, types...)
	s.SetExtraColumnOrder(ColumnResultType, ColumnBuilder, ColumnTest, ColumnConfig)
	return s
}

func (a *Aggregator) addBuilder(db imagepair.DiffDB, builder string, br *BuilderResults) error {
	actuals, err := CombineSubdicts(br.Actuals)
	if err != nil {
		return err
	}
	filedUnder := map[string]ResultType{}
	for category, images := range br.Actuals {
		for name := range images {
			filedUnder[name] = ResultType(category)
		}
	}

	names := make([]string, 0, len(actuals))
	for name := range actuals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		actual := actuals[name]
		test, config, ok := ParseImageName(name)
		if !ok {
			sklog.Warningf("Skipping %s on %s: not a <test>_<config>.png name", name, builder)
			continue
		}
		var imageB string
		if actual != nil {
			imageB = actual.RelativeURL(test)
		} else {
			sklog.Warningf("No actual digest for %s on %s; reporting it without an actual image", name, builder)
		}

		var imageA string
		var expectations *imagepair.Expectations
		resultType := NoComparison
		if br.Expectations == nil {
			if t := filedUnder[name]; t.valid() {
				resultType = t
			}
		} else if exp := br.Expectations[name]; exp != nil {
			expectations = &imagepair.Expectations{
				IgnoreFailure:   exp.IgnoreFailure,
				Bugs:            exp.Bugs,
				ReviewedByHuman: exp.ReviewedByHuman,
			}
			resultType, imageA = classify(test, actual, exp)
		}
		if actual == nil && resultType == Succeeded {
			resultType = NoComparison
		}

		p := imagepair.New(db, a.cfg.ImageBaseURL, imageA, imageB, expectations, map[string]string{
			ColumnBuilder:    builder,
			ColumnConfig:     config,
			ColumnResultType: string(resultType),
			ColumnTest:       test,
		})
		categories := []string{CategoryAll, string(resultType)}
		if resultType != Succeeded {
			categories = append(categories, CategoryFailures)
		}
		for _, c := range categories {
			if err := a.sets[c].AddImagePair(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// classify compares actual to the allowed digests. It returns the result
// type and the relative URL of the expected image to compare against: the
// matching digest, else the first allowed one. A nil actual never matches.
func classify(test string, actual *Digest, exp *ExpectedResult) (ResultType, string) {
	if len(exp.AllowedDigests) == 0 {
		return NoComparison, ""
	}
	for _, d := range exp.AllowedDigests {
		if actual != nil && d == *actual {
			return Succeeded, d.RelativeURL(test)
		}
	}
	imageA := exp.AllowedDigests[0].RelativeURL(test)
	if exp.IgnoreFailure {
		return FailureIgnored, imageA
	}
	return Failed, imageA
}

// GetPackagedResultsOfType resolves every pair in category and returns them
// with a header.
func (a *Aggregator) GetPackagedResultsOfType(ctx context.Context, category string) (*PackagedResults, error) {
	s, ok := a.sets[category]
	if !ok {
		return nil, skerr.Wrapf(ErrUnknownCategory, "%q", category)
	}
	d, err := s.AsDict(ctx)
	if err != nil {
		return nil, skerr.Wrapf(err, "packaging %s results", category)
	}
	h := Header{
		SchemaVersion: SchemaVersion,
		Type:          category,
		TimeUpdated:   a.timeUpdated.Unix(),
		IsEditable:    a.cfg.IsEditable,
		IsExported:    a.cfg.IsExported,
	}
	if a.cfg.RefreshInterval > 0 {
		h.TimeNextUpdateAvailable = a.timeUpdated.Add(a.cfg.RefreshInterval).Unix()
	}
	return &PackagedResults{Header: h, Dict: d}, nil
}
