package imaging

import (
	"image"
	"math"

	"github.com/kirillkom/docverify/internal/core/domain"
)

// Rec. 709 luma weights, as used by the CSS saturate() filter.
const (
	lumaR = 0.2126
	lumaG = 0.7152
	lumaB = 0.0722
)

// enhance applies contrast, then brightness, then saturation in place. The
// combination darkens text and lifts the background ahead of OCR.
func enhance(img *image.RGBA, e domain.Enhancement) {
	if e == (domain.Enhancement{}) {
		return
	}
	contrast := orOne(e.Contrast)
	brightness := orOne(e.Brightness)
	saturation := orOne(e.Saturation)

	var tone [256]float64
	for i := range tone {
		v := float64(i) / 255
		v = (v-0.5)*contrast + 0.5
		v *= brightness
		tone[i] = clampUnit(v)
	}

	s := saturation
	m := [3][3]float64{
		{lumaR + (1-lumaR)*s, lumaG - lumaG*s, lumaB - lumaB*s},
		{lumaR - lumaR*s, lumaG + (1-lumaG)*s, lumaB - lumaB*s},
		{lumaR - lumaR*s, lumaG - lumaG*s, lumaB + (1-lumaB)*s},
	}

	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		r := tone[pix[i]]
		g := tone[pix[i+1]]
		b := tone[pix[i+2]]
		pix[i] = toByte(m[0][0]*r + m[0][1]*g + m[0][2]*b)
		pix[i+1] = toByte(m[1][0]*r + m[1][1]*g + m[1][2]*b)
		pix[i+2] = toByte(m[2][0]*r + m[2][1]*g + m[2][2]*b)
	}
}

func orOne(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func toByte(v float64) uint8 {
	return uint8(math.Round(clampUnit(v) * 255))
}
