package codec

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/ericpauley/go-quantize/quantize"
)

const (
	minPaletteColors = 2
	maxPaletteColors = 256
)

// PaletteSize maps the upper bound of a quality range to a palette size.
func PaletteSize(q QualityRange) int {
	n := int(math.Round(q.Max * maxPaletteColors))
	if n < minPaletteColors {
		return minPaletteColors
	}
	if n > maxPaletteColors {
		return maxPaletteColors
	}
	return n
}

// quantizeImage reduces img to a median-cut palette with Floyd-Steinberg dithering.
// It returns the paletted image and its fidelity score in [0, 1].
func quantizeImage(img image.Image, q QualityRange) (*image.Paletted, float64) {
	bounds := img.Bounds()
	quantizer := quantize.MedianCutQuantizer{AddTransparent: hasAlpha(img)}
	palette := quantizer.Quantize(make(color.Palette, 0, PaletteSize(q)), img)

	out := image.NewPaletted(bounds, palette)
	draw.FloydSteinberg.Draw(out, bounds, img, bounds.Min)
	return out, Fidelity(img, out)
}

// Fidelity returns 1 minus the mean per-channel difference between a and b,
// normalized to [0, 1]. Images with different sizes score 0.
func Fidelity(a, b image.Image) float64 {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return 0
	}
	if ab.Empty() {
		return 1
	}

	// both clones are NRGBA anchored at (0, 0) with identical strides
	pa, pb := imaging.Clone(a).Pix, imaging.Clone(b).Pix
	var sum uint64
	for i := range pa {
		d := int(pa[i]) - int(pb[i])
		if d < 0 {
			d = -d
		}
		sum += uint64(d)
	}
	return 1 - float64(sum)/(float64(len(pa))*0xff)
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}
