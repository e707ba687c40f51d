package diff

import (
	"image/color"
	"math"
)

// JustNoticeableDifference is the CIE76 delta E above which two colors are
// considered visibly different.
const JustNoticeableDifference = 2.3

var xWhite, yWhite, zWhite = adobeRGBToXYZ(1, 1, 1)

// adobeRGBToXYZ converts Adobe RGB (1998), reference white D65, to XYZ.
// The matrix is from http://www.brucelindbloom.com/
func adobeRGBToXYZ(r, g, b float64) (x, y, z float64) {
	x = r*0.576700 + g*0.185556 + b*0.188212
	y = r*0.297361 + g*0.627355 + b*0.0752847
	z = r*0.0270328 + g*0.0706879 + b*0.991248
	return
}

func xyzToLAB(x, y, z float64) (l, a, b float64) {
	const epsilon = 216.0 / 24389.0
	const kappa = 24389.0 / 27.0

	f := func(t float64) float64 {
		if t > epsilon {
			return math.Cbrt(t)
		}
		return (kappa*t + 16.0) / 116.0
	}
	fx, fy, fz := f(x/xWhite), f(y/yWhite), f(z/zWhite)
	return 116.0*fy - 16.0, 500.0 * (fx - fy), 200.0 * (fy - fz)
}

func toLAB(c color.NRGBA) (l, a, b float64) {
	return xyzToLAB(adobeRGBToXYZ(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255))
}

// deltaE returns the CIE76 distance between the colors, ignoring alpha.
func deltaE(c1, c2 color.NRGBA) float64 {
	l1, a1, b1 := toLAB(c1)
	l2, a2, b2 := toLAB(c2)
	return math.Sqrt((l1-l2)*(l1-l2) + (a1-a2)*(a1-a2) + (b1-b2)*(b1-b2))
}

func perceptuallyDifferent(c1, c2 color.NRGBA) bool {
	return deltaE(c1, c2) > JustNoticeableDifference
}
