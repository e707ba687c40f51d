// Package diff compares two decoded images pixel by pixel.
package diff

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"go.skia.org/rebaseline/go/util"
)

const (
	// PercentPrecision is the number of decimal places percentages are
	// rounded to.
	PercentPrecision = 4

	maxChannelDiff = 255
)

// DiffRecord is the result of comparing two images.
type DiffRecord struct {
	NumDifferingPixels     int     `json:"numDifferingPixels"`
	PercentDifferingPixels float64 `json:"percentDifferingPixels"`
	PerceptualDifference   float64 `json:"perceptualDifference"`
	// MaxDiffPerChannel is the largest absolute difference seen in the
	// R, G and B channels.
	MaxDiffPerChannel [3]int `json:"maxDiffPerChannel"`

	// DiffURL and WhiteDiffURL name the diff images written for this
	// comparison, relative to their directories. Empty if none were written.
	DiffURL      string `json:"diffUrl,omitempty"`
	WhiteDiffURL string `json:"whiteDiffUrl,omitempty"`
}

// DecodeError is returned when image bytes can't be decoded.
type DecodeError struct {
	Locator string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding image %q: %s", e.Locator, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ToNRGBA returns img as an *image.NRGBA with its origin at (0, 0), copying
// only when needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	ret := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(ret, ret.Bounds(), img, b.Min, draw.Src)
	return ret
}

// ComputeDiff compares a and b. Images of different dimensions are treated
// as completely different: every pixel of the larger one differs.
func ComputeDiff(a, b image.Image) *DiffRecord {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return &DiffRecord{
			NumDifferingPixels:     util.MaxInt(ab.Dx()*ab.Dy(), bb.Dx()*bb.Dy()),
			PercentDifferingPixels: 100,
			PerceptualDifference:   100,
			MaxDiffPerChannel:      [3]int{maxChannelDiff, maxChannelDiff, maxChannelDiff},
		}
	}

	na, nb := ToNRGBA(a), ToNRGBA(b)
	total := ab.Dx() * ab.Dy()
	ret := &DiffRecord{}
	perceptual := 0
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			ca, cb := na.NRGBAAt(x, y), nb.NRGBAAt(x, y)
			dr := util.AbsInt(int(ca.R) - int(cb.R))
			dg := util.AbsInt(int(ca.G) - int(cb.G))
			db := util.AbsInt(int(ca.B) - int(cb.B))
			if dr == 0 && dg == 0 && db == 0 {
				continue
			}
			ret.NumDifferingPixels++
			ret.MaxDiffPerChannel[0] = util.MaxInt(ret.MaxDiffPerChannel[0], dr)
			ret.MaxDiffPerChannel[1] = util.MaxInt(ret.MaxDiffPerChannel[1], dg)
			ret.MaxDiffPerChannel[2] = util.MaxInt(ret.MaxDiffPerChannel[2], db)
			if perceptuallyDifferent(ca, cb) {
				perceptual++
			}
		}
	}
	ret.PercentDifferingPixels = percent(ret.NumDifferingPixels, total)
	ret.PerceptualDifference = percent(perceptual, total)
	return ret
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return util.RoundToPlaces(100*float64(n)/float64(total), PercentPrecision)
}

// DiffImages returns two visualizations of the difference between a and b,
// which must have the same dimensions: the per-channel absolute difference
// and a mask with differing pixels white on black. ok is false if the
// dimensions differ.
func DiffImages(a, b image.Image) (rgbDiff, whiteDiff *image.NRGBA, ok bool) {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return nil, nil, false
	}
	na, nb := ToNRGBA(a), ToNRGBA(b)
	rect := image.Rect(0, 0, ab.Dx(), ab.Dy())
	rgbDiff = image.NewNRGBA(rect)
	whiteDiff = image.NewNRGBA(rect)
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			ca, cb := na.NRGBAAt(x, y), nb.NRGBAAt(x, y)
			d := color.NRGBA{
				R: uint8(util.AbsInt(int(ca.R) - int(cb.R))),
				G: uint8(util.AbsInt(int(ca.G) - int(cb.G))),
				B: uint8(util.AbsInt(int(ca.B) - int(cb.B))),
				A: 0xff,
			}
			rgbDiff.SetNRGBA(x, y, d)
			if d.R != 0 || d.G != 0 || d.B != 0 {
				whiteDiff.SetNRGBA(x, y, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
			} else {
				whiteDiff.SetNRGBA(x, y, color.NRGBA{A: 0xff})
			}
		}
	}
	return rgbDiff, whiteDiff, true
}
