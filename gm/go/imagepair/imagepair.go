// Package imagepair holds one comparable pair of images and decides when a
// pixel comparison is needed at all.
package imagepair

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.skia.org/rebaseline/gm/go/diff"
	"go.skia.org/rebaseline/gm/go/locator"
	"go.skia.org/rebaseline/go/skerr"
	"go.skia.org/rebaseline/go/sklog"
)

// DiffDB is the part of imagediffdb.ImageDiffDB an ImagePair uses.
type DiffDB interface {
	AddImagePairAsync(expectedLoc, expectedURL, actualLoc, actualURL string)
	GetDiffRecord(ctx context.Context, expectedLoc, actualLoc string) (*diff.DiffRecord, error)
}

// Expectations is metadata about what the pair is expected to look like.
type Expectations struct {
	IgnoreFailure   bool   `json:"ignoreFailure"`
	Bugs            []int  `json:"bugs,omitempty"`
	Notes           string `json:"notes,omitempty"`
	ReviewedByHuman bool   `json:"reviewedByHuman,omitempty"`
}

// Dict is the serialized form of an ImagePair. ImageAURL and ImageBURL are
// nil when the image is absent; DifferenceData is present only when the
// images differ in at least one pixel.
type Dict struct {
	ImageAURL      *string           `json:"imageAUrl"`
	ImageBURL      *string           `json:"imageBUrl"`
	IsDifferent    bool              `json:"isDifferent"`
	Expectations   *Expectations     `json:"expectations,omitempty"`
	ExtraColumns   map[string]string `json:"extraColumns,omitempty"`
	DifferenceData *diff.DiffRecord  `json:"differenceData,omitempty"`
}

// ImagePair is two images, each a URL relative to BaseURL, and the lazily
// resolved comparison between them.
type ImagePair struct {
	BaseURL      string
	ImageA       string
	ImageB       string
	Expectations *Expectations
	ExtraColumns map[string]string

	db DiffDB

	mtx         sync.Mutex
	resolved    bool
	isDifferent bool
	rec         *diff.DiffRecord
	err         error
}

// New returns an ImagePair. imageA and imageB are relative to baseURL; an
// empty string means the image is absent. If both images are present and
// differ by URL the comparison is queued on db right away.
func New(db DiffDB, baseURL, imageA, imageB string, expectations *Expectations, extraColumns map[string]string) *ImagePair {
	p := &ImagePair{
		BaseURL:      baseURL,
		ImageA:       imageA,
		ImageB:       imageB,
		Expectations: expectations,
		ExtraColumns: extraColumns,
	}
	switch {
	case imageA == "" || imageB == "":
		p.resolved = true
		p.isDifferent = true
	case imageA == imageB:
		p.resolved = true
		p.isDifferent = false
	default:
		p.db = db
		db.AddImagePairAsync(
			locator.Sanitize(imageA), JoinURL(baseURL, imageA),
			locator.Sanitize(imageB), JoinURL(baseURL, imageB))
	}
	return p
}

// JoinURL joins a relative URL onto a base URL with exactly one slash.
func JoinURL(baseURL, rel string) string {
	if baseURL == "" {
		return rel
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(rel, "/")
}

// DiffRecord waits for and returns the comparison of the two images. It
// returns nil with no error when no comparison was needed. Results are
// memoized, except for errors caused by ctx.
func (p *ImagePair) DiffRecord(ctx context.Context) (*diff.DiffRecord, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.resolved {
		return p.rec, p.err
	}
	rec, err := p.db.GetDiffRecord(ctx, locator.Sanitize(p.ImageA), locator.Sanitize(p.ImageB))
	if canceled(ctx, err) {
		return nil, err
	}
	p.resolved = true
	p.rec = rec
	p.err = err
	p.isDifferent = !(rec != nil && rec.NumDifferingPixels == 0)
	// The db is only needed to resolve the diff.
	p.db = nil
	return p.rec, p.err
}

// IsDifferent reports whether the two images differ, resolving the
// comparison if needed. A pair whose comparison failed is different.
func (p *ImagePair) IsDifferent(ctx context.Context) (bool, error) {
	if _, err := p.DiffRecord(ctx); canceled(ctx, err) {
		return true, skerr.Wrap(err)
	}
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.isDifferent, nil
}

// AsDict resolves the comparison and returns the serializable form of the
// pair. A failed comparison is logged and reported as different with no
// difference data; only ctx ending is returned as an error.
func (p *ImagePair) AsDict(ctx context.Context) (Dict, error) {
	rec, err := p.DiffRecord(ctx)
	if err != nil {
		if canceled(ctx, err) {
			return Dict{}, skerr.Wrap(err)
		}
		sklog.Warningf("Comparing %s with %s failed: %s", p.ImageA, p.ImageB, err)
		rec = nil
	}
	isDifferent, err := p.IsDifferent(ctx)
	if err != nil {
		return Dict{}, err
	}
	ret := Dict{
		ImageAURL:    optional(p.ImageA),
		ImageBURL:    optional(p.ImageB),
		IsDifferent:  isDifferent,
		Expectations: p.Expectations,
	}
	if len(p.ExtraColumns) > 0 {
		ret.ExtraColumns = p.ExtraColumns
	}
	if rec != nil && rec.NumDifferingPixels > 0 {
		ret.DifferenceData = rec
	}
	return ret, nil
}

// canceled reports whether err was caused by ctx ending.
func canceled(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err())
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
