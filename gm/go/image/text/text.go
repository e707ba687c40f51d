// Package text is a plain text image format, used to write test images
// inline in Go source.
//
// The format looks like:
//
//	! SKTEXTSIMPLE
//	width height
//	0x000000ff 0xffffffff ...
//	0xddddddff 0xffffff88 ...
//
// Pixels are 0xRRGGBBAA, or 0xXX for an opaque gray pixel.
package text

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
	"strconv"
	"strings"

	"go.skia.org/rebaseline/go/skerr"
)

const header = "! SKTEXTSIMPLE"

func readDims(s *bufio.Scanner) (int, int, error) {
	if !s.Scan() || s.Text() != header {
		return 0, 0, skerr.Fmt("not an SKTEXTSIMPLE image: missing %q header", header)
	}
	if !s.Scan() {
		return 0, 0, skerr.Fmt("SKTEXTSIMPLE image has no dimensions line")
	}
	var w, h int
	if n, err := fmt.Sscanf(s.Text(), "%d %d", &w, &h); err != nil || n != 2 {
		return 0, 0, skerr.Fmt("bad SKTEXTSIMPLE dimensions %q", s.Text())
	}
	if w < 0 || h < 0 {
		return 0, 0, skerr.Fmt("negative SKTEXTSIMPLE dimensions %dx%d", w, h)
	}
	return w, h, nil
}

func parsePixel(tok string) (color.NRGBA, error) {
	if !strings.HasPrefix(tok, "0x") || (len(tok) != 4 && len(tok) != 10) {
		return color.NRGBA{}, skerr.Fmt("pixel %q must be 0xRRGGBBAA or 0xXX", tok)
	}
	v, err := strconv.ParseUint(tok[2:], 16, 32)
	if err != nil {
		return color.NRGBA{}, skerr.Wrapf(err, "parsing pixel %q", tok)
	}
	if len(tok) == 4 {
		g := uint8(v)
		return color.NRGBA{R: g, G: g, B: g, A: 0xff}, nil
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// Decode reads an SKTEXTSIMPLE image. The result is always an *image.NRGBA.
func Decode(r io.Reader) (image.Image, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 64*1024*1024)
	w, h, err := readDims(s)
	if err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	y := 0
	for s.Scan() {
		toks := strings.Fields(s.Text())
		if len(toks) == 0 {
			continue
		}
		if y >= h {
			return nil, skerr.Fmt("too many rows: want %d", h)
		}
		if len(toks) > w {
			return nil, skerr.Fmt("row %d has %d pixels, want at most %d", y, len(toks), w)
		}
		for x, tok := range toks {
			c, err := parsePixel(tok)
			if err != nil {
				return nil, err
			}
			img.SetNRGBA(x, y, c)
		}
		y++
	}
	if err := s.Err(); err != nil {
		return nil, skerr.Wrapf(err, "reading SKTEXTSIMPLE image")
	}
	return img, nil
}

// DecodeConfig returns the dimensions without decoding the pixels.
func DecodeConfig(r io.Reader) (image.Config, error) {
	w, h, err := readDims(bufio.NewScanner(r))
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: color.NRGBAModel, Width: w, Height: h}, nil
}

// Encode writes m in SKTEXTSIMPLE format, always using the 0xRRGGBBAA form.
func Encode(w io.Writer, m *image.NRGBA) error {
	b := m.Bounds()
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n%d %d\n", header, b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if x > b.Min.X {
				_ = bw.WriteByte(' ')
			}
			c := m.NRGBAAt(x, y)
			fmt.Fprintf(bw, "0x%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
		}
		_ = bw.WriteByte('\n')
	}
	return bw.Flush()
}

func init() {
	image.RegisterFormat("sktext", header, Decode, DecodeConfig)
}

// MustToNRGBA decodes an SKTEXTSIMPLE string and panics on failure. Only for
// tests.
func MustToNRGBA(s string) *image.NRGBA {
	img, err := Decode(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("Failed to decode a valid image: %s", err))
	}
	return img.(*image.NRGBA)
}
