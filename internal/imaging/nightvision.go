package imaging

import (
	"fmt"
	"image"
)

// Night-vision tuning. Green is boosted and fed by the other channels,
// red and blue are crushed, then the color controls push the result into
// a high-contrast green monochrome.
const (
	nvRedGain       = 0.2
	nvGreenGain     = 1.3
	nvGreenCrossMix = 0.1
	nvBlueGain      = 0.2

	nvBrightness = 0.05
	nvContrast   = 1.4
	nvSaturation = 1.2
)

// NightVision returns a filtered copy of src. The transform is per pixel
// and deterministic; alpha is preserved.
func NightVision(src *image.NRGBA) (*image.NRGBA, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("imaging: night vision on empty image")
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	for y := 0; y < b.Dy(); y++ {
		si := src.PixOffset(b.Min.X, b.Min.Y+y)
		di := dst.PixOffset(0, y)
		for x := 0; x < b.Dx(); x++ {
			r := float64(src.Pix[si]) / 255
			g := float64(src.Pix[si+1]) / 255
			bl := float64(src.Pix[si+2]) / 255

			r, g, bl = nightVisionPixel(r, g, bl)

			dst.Pix[di] = toByte(r)
			dst.Pix[di+1] = toByte(g)
			dst.Pix[di+2] = toByte(bl)
			dst.Pix[di+3] = src.Pix[si+3]
			si += 4
			di += 4
		}
	}
	return dst, nil
}

func nightVisionPixel(r, g, b float64) (float64, float64, float64) {
	// Channel matrix.
	r, g, b = r*nvRedGain, g*nvGreenGain+nvGreenCrossMix*(r+b), b*nvBlueGain

	// Brightness, then contrast around mid-grey.
	r = (r+nvBrightness-0.5)*nvContrast + 0.5
	g = (g+nvBrightness-0.5)*nvContrast + 0.5
	b = (b+nvBrightness-0.5)*nvContrast + 0.5

	// Saturation: move away from Rec. 709 luma.
	luma := 0.2126*r + 0.7152*g + 0.0722*b
	r = luma + (r-luma)*nvSaturation
	g = luma + (g-luma)*nvSaturation
	b = luma + (b-luma)*nvSaturation
	return r, g, b
}

func toByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
