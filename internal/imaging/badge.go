package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Screen-size badge metrics, in points. Baked badges multiply them by the
// badge scale.
const (
	badgeRadius  = 16.0
	badgeBorder  = 2.0
	labelGap     = 4.0
	labelPadding = 3.0
)

var (
	badgeText   = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	badgeStroke = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xe6}
	labelPlate  = color.NRGBA{R: 0x00, G: 0x00, B: 0x00, A: 0x99}
)

// Badge is one marker to bake into a photo.
type Badge struct {
	X, Y  float64 // badge center, image pixels
	ID    string  // drawn centered in the circle
	Label string  // drawn on a plate beneath the circle
	Color color.NRGBA
}

// DrawBadges paints badges onto img in place. scale enlarges the
// screen-sized badge so it reads the same on a full-resolution still.
func DrawBadges(img *image.NRGBA, badges []Badge, scale float64) error {
	if scale <= 0 || math.IsNaN(scale) {
		return fmt.Errorf("imaging: invalid badge scale %v", scale)
	}
	if img.Bounds().Empty() {
		return fmt.Errorf("imaging: badges on empty image")
	}
	for _, b := range badges {
		if math.IsNaN(b.X) || math.IsNaN(b.Y) {
			return fmt.Errorf("imaging: badge %q has no position", b.ID)
		}
		r := badgeRadius * scale
		fillCircle(img, b.X, b.Y, r, badgeStroke)
		fillCircle(img, b.X, b.Y, r-badgeBorder*scale, b.Color)

		id := renderText(b.ID, badgeText, scale)
		drawCentered(img, id, b.X, b.Y)

		if b.Label == "" {
			continue
		}
		label := renderText(b.Label, badgeText, scale)
		pad := labelPadding * scale
		top := b.Y + r + labelGap*scale
		lb := label.Bounds()
		plate := image.Rect(
			int(math.Round(b.X-float64(lb.Dx())/2-pad)),
			int(math.Round(top)),
			int(math.Round(b.X+float64(lb.Dx())/2+pad)),
			int(math.Round(top+float64(lb.Dy())+2*pad)),
		)
		draw.Draw(img, plate, image.NewUniform(labelPlate), image.Point{}, draw.Over)
		drawCentered(img, label, b.X, top+pad+float64(lb.Dy())/2)
	}
	return nil
}

// fillCircle draws an anti-aliased disc with coverage estimated from the
// distance to the edge.
func fillCircle(img *image.NRGBA, cx, cy, r float64, c color.NRGBA) {
	if r <= 0 {
		return
	}
	bounds := img.Bounds()
	area := image.Rect(
		int(math.Floor(cx-r-1)), int(math.Floor(cy-r-1)),
		int(math.Ceil(cx+r+1)), int(math.Ceil(cy+r+1)),
	).Intersect(bounds)

	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			cov := math.Max(0, math.Min(1, r-d+0.5))
			if cov == 0 {
				continue
			}
			blend(img, x, y, c, cov)
		}
	}
}

// blend composites c over the pixel at (x, y) with extra coverage cov.
func blend(img *image.NRGBA, x, y int, c color.NRGBA, cov float64) {
	i := img.PixOffset(x, y)
	sa := float64(c.A) / 255 * cov
	da := float64(img.Pix[i+3]) / 255
	oa := sa + da*(1-sa)
	if oa == 0 {
		return
	}
	for k, sc := range [3]uint8{c.R, c.G, c.B} {
		s := float64(sc) / 255
		d := float64(img.Pix[i+k]) / 255
		img.Pix[i+k] = toByte((s*sa + d*da*(1-sa)) / oa)
	}
	img.Pix[i+3] = toByte(oa)
}

// renderText draws s with the 7x13 bitmap face and scales the result.
func renderText(s string, c color.NRGBA, scale float64) *image.NRGBA {
	face := basicfont.Face7x13
	w := font.MeasureString(face, s).Ceil()
	h := face.Metrics().Height.Ceil()
	if w == 0 {
		w = 1
	}
	src := image.NewNRGBA(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  src,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)

	if scale == 1 {
		return src
	}
	sw := int(math.Max(1, math.Round(float64(w)*scale)))
	sh := int(math.Max(1, math.Round(float64(h)*scale)))
	dst := image.NewNRGBA(image.Rect(0, 0, sw, sh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

func drawCentered(img, src *image.NRGBA, cx, cy float64) {
	b := src.Bounds()
	at := image.Pt(int(math.Round(cx-float64(b.Dx())/2)), int(math.Round(cy-float64(b.Dy())/2)))
	draw.Draw(img, image.Rectangle{Min: at, Max: at.Add(b.Size())}, src, image.Point{}, draw.Over)
}
