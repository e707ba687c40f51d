// Package imagepairset groups ImagePairs that compare the same two sets of
// images, and tallies their extra columns for the report UI.
package imagepairset

import (
	"context"
	"fmt"
	"sync"

	"go.skia.org/rebaseline/gm/go/column"
	"go.skia.org/rebaseline/gm/go/imagepair"
	"go.skia.org/rebaseline/go/skerr"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultDescriptionA = "setA"
	DefaultDescriptionB = "setB"

	// DefaultConcurrency bounds how many pairs AsDict resolves at once.
	DefaultConcurrency = 16
)

// MismatchedBaseURLError is returned when a pair is added to a set
// established with a different base URL.
type MismatchedBaseURLError struct {
	Expected string
	Got      string
}

func (e *MismatchedBaseURLError) Error() string {
	return fmt.Sprintf("image pair has base URL %q, but this set uses %q", e.Got, e.Expected)
}

// ImageSet is one side of the comparison.
type ImageSet struct {
	BaseURL     string `json:"baseUrl"`
	Description string `json:"description"`
}

// Dict is the serialized form of an ImagePairSet.
type Dict struct {
	ImageSets          [2]ImageSet            `json:"imageSets"`
	DiffBaseURL        string                 `json:"diffBaseUrl,omitempty"`
	WhiteDiffBaseURL   string                 `json:"whiteDiffBaseUrl,omitempty"`
	ImagePairs         []imagepair.Dict       `json:"imagePairs"`
	ExtraColumnHeaders map[string]column.Dict `json:"extraColumnHeaders"`
	ExtraColumnOrder   []string               `json:"extraColumnOrder,omitempty"`
}

// ImagePairSet is an ordered collection of ImagePairs sharing one base URL.
// It is safe for concurrent use.
type ImagePairSet struct {
	descriptions [2]string

	// DiffBaseURL and WhiteDiffBaseURL, if set, are where the diff images
	// named in each pair's difference data are served from.
	DiffBaseURL      string
	WhiteDiffBaseURL string

	// Concurrency bounds how many pairs AsDict resolves at once.
	Concurrency int

	mtx         sync.Mutex
	baseURL     string
	hasBaseURL  bool
	pairs       []*imagepair.ImagePair
	headers     map[string]column.Header
	tallies     map[string]map[string]int
	columnOrder []string
}

// New returns an empty ImagePairSet. Empty descriptions fall back to
// DefaultDescriptionA and DefaultDescriptionB.
func New(descriptionA, descriptionB string) *ImagePairSet {
	if descriptionA == "" {
		descriptionA = DefaultDescriptionA
	}
	if descriptionB == "" {
		descriptionB = DefaultDescriptionB
	}
	return &ImagePairSet{
		descriptions: [2]string{descriptionA, descriptionB},
		Concurrency:  DefaultConcurrency,
		headers:      map[string]column.Header{},
		tallies:      map[string]map[string]int{},
	}
}

// AddImagePair appends p. The first pair establishes the set's base URL;
// a later pair with another base URL is rejected with
// *MismatchedBaseURLError.
func (s *ImagePairSet) AddImagePair(p *imagepair.ImagePair) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if !s.hasBaseURL {
		s.baseURL = p.BaseURL
		s.hasBaseURL = true
	} else if p.BaseURL != s.baseURL {
		return &MismatchedBaseURLError{Expected: s.baseURL, Got: p.BaseURL}
	}
	s.pairs = append(s.pairs, p)
	for k, v := range p.ExtraColumns {
		s.tally(k)[v]++
	}
	return nil
}

// tally returns the value counts for the column key. Requires s.mtx.
func (s *ImagePairSet) tally(key string) map[string]int {
	t, ok := s.tallies[key]
	if !ok {
		t = map[string]int{}
		s.tallies[key] = t
	}
	return t
}

// Len returns the number of pairs in the set.
func (s *ImagePairSet) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.pairs)
}

// SetColumnHeaderConfig overrides the default header for the column key.
func (s *ImagePairSet) SetColumnHeaderConfig(key string, h column.Header) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.headers[key] = h
}

// EnsureExtraColumnValuesInSummary makes values appear in the column's
// histogram even if no pair carries them.
func (s *ImagePairSet) EnsureExtraColumnValuesInSummary(key string, values ...string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	t := s.tally(key)
	for _, v := range values {
		t[v] += 0
	}
}

// SetExtraColumnOrder sets the order the UI should show the extra columns in.
func (s *ImagePairSet) SetExtraColumnOrder(keys ...string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.columnOrder = append([]string(nil), keys...)
}

// AsDict resolves every pair, at most s.Concurrency at a time, and returns
// the serializable form of the set. Pairs keep their insertion order.
func (s *ImagePairSet) AsDict(ctx context.Context) (Dict, error) {
	s.mtx.Lock()
	pairs := append([]*imagepair.ImagePair(nil), s.pairs...)
	ret := Dict{
		ImageSets: [2]ImageSet{
			{BaseURL: s.baseURL, Description: s.descriptions[0]},
			{BaseURL: s.baseURL, Description: s.descriptions[1]},
		},
		DiffBaseURL:        s.DiffBaseURL,
		WhiteDiffBaseURL:   s.WhiteDiffBaseURL,
		ExtraColumnHeaders: s.columnHeaders(),
		ExtraColumnOrder:   append([]string(nil), s.columnOrder...),
	}
	limit := s.Concurrency
	s.mtx.Unlock()

	ret.ImagePairs = make([]imagepair.Dict, len(pairs))
	eg, egCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		eg.SetLimit(limit)
	}
	for i, p := range pairs {
		i, p := i, p
		eg.Go(func() error {
			d, err := p.AsDict(egCtx)
			if err != nil {
				return err
			}
			ret.ImagePairs[i] = d
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Dict{}, skerr.Wrapf(err, "resolving %d image pairs", len(pairs))
	}
	return ret, nil
}

// columnHeaders returns the header of every column that was configured or
// seen on a pair. Requires s.mtx.
func (s *ImagePairSet) columnHeaders() map[string]column.Dict {
	keys := make([]string, 0, len(s.tallies)+len(s.headers))
	for k := range s.tallies {
		keys = append(keys, k)
	}
	for k := range s.headers {
		if _, ok := s.tallies[k]; !ok {
			keys = append(keys, k)
		}
	}
	ret := make(map[string]column.Dict, len(keys))
	for _, k := range keys {
		h, ok := s.headers[k]
		if !ok {
			h = column.New(k)
		}
		var counts map[string]int
		if t, ok := s.tallies[k]; ok {
			counts = make(map[string]int, len(t))
			for v, n := range t {
				counts[v] = n
			}
		}
		ret[k] = h.AsDict(counts)
	}
	return ret
}
