// Package imaging holds the still-photo transforms: decoding sensor
// output, orientation, the night-vision filter, baked waypoint badges and
// final encoding.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
)

var (
	jpegMagic = []byte{0xFF, 0xD8}
	pngMagic  = []byte("\x89PNG\r\n\x1a\n")
)

// Sniff names the format of a buffer from its leading bytes. TGA has no
// signature, so anything else is treated as tga.
func Sniff(data []byte) string {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return "jpeg"
	case bytes.HasPrefix(data, pngMagic):
		return "png"
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "webp"
	default:
		return "tga"
	}
}

// Decode reads a jpeg, png, webp or tga buffer. The format comes from
// Sniff, not the image registry: tga registers an empty magic string that
// matches every buffer.
func Decode(data []byte) (*image.NRGBA, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("imaging: empty buffer")
	}
	format := Sniff(data)
	r := bytes.NewReader(data)
	var (
		img image.Image
		err error
	)
	switch format {
	case "jpeg":
		img, err = jpeg.Decode(r)
	case "png":
		img, err = png.Decode(r)
	case "webp":
		img, err = nativewebp.Decode(r)
	default:
		img, err = tga.Decode(r)
	}
	if err != nil {
		return nil, "", fmt.Errorf("imaging: decode %s: %w", format, err)
	}
	return ToNRGBA(img), format, nil
}

// ToNRGBA converts any image to an opaque-aware NRGBA buffer at origin 0,0.
func ToNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	if n, ok := src.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Orient rotates the buffer clockwise by quarterTurns quarter turns so
// its top row matches the device's physical up.
func Orient(src *image.NRGBA, quarterTurns int) *image.NRGBA {
	q := ((quarterTurns % 4) + 4) % 4
	if q == 0 {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.NRGBA
	if q == 2 {
		dst = image.NewNRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewNRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch q {
			case 1: // 90° clockwise
				dx, dy = h-1-y, x
			case 2:
				dx, dy = w-1-x, h-1-y
			case 3: // 90° counter-clockwise
				dx, dy = y, w-1-x
			}
			si := src.PixOffset(b.Min.X+x, b.Min.Y+y)
			di := dst.PixOffset(dx, dy)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}
