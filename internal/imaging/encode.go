package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"
)

// Output formats.
const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

// Encode writes img as jpeg (at quality) or lossless webp.
func Encode(w io.Writer, img image.Image, format string, quality int) error {
	switch format {
	case FormatJPEG:
		if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
			return fmt.Errorf("imaging: jpeg encode: %w", err)
		}
	case FormatWebP:
		if err := nativewebp.Encode(w, img, nil); err != nil {
			return fmt.Errorf("imaging: webp encode: %w", err)
		}
	default:
		return fmt.Errorf("imaging: unknown output format %q", format)
	}
	return nil
}

// EncodeBytes is Encode into a new buffer.
func EncodeBytes(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, format, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Extension returns the file extension for an output format.
func Extension(format string) string {
	if format == FormatWebP {
		return ".webp"
	}
	return ".jpg"
}

// ContentType returns the MIME type for an output format.
func ContentType(format string) string {
	if format == FormatWebP {
		return "image/webp"
	}
	return "image/jpeg"
}

// Preview downsizes img so its longer side is at most maxSide. Smaller
// images are returned unchanged.
func Preview(img *image.NRGBA, maxSide int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img
	}
	if w >= h {
		h = max(1, h*maxSide/w)
		w = maxSide
	} else {
		w = max(1, w*maxSide/h)
		h = maxSide
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Thumbnail decodes a stored photo and re-encodes it as a jpeg whose
// longer side is at most maxSide.
func Thumbnail(data []byte, maxSide, quality int) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return EncodeBytes(Preview(img, maxSide), FormatJPEG, quality)
}
