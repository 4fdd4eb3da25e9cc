package media

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// NewSurface allocates an RGBA surface filled with the background color.
func NewSurface(bounds image.Rectangle, bg color.Color) *image.RGBA {
	surface := image.NewRGBA(bounds)
	draw.Draw(surface, bounds, image.NewUniform(bg), image.Point{}, draw.Src)
	return surface
}

// Letterbox scales src onto dst preserving aspect ratio: the image is
// centered and the uncovered bands keep whatever dst already holds. The
// source is never cropped.
func Letterbox(dst *image.RGBA, src image.Image) {
	sb := src.Bounds()
	db := dst.Bounds()
	if sb.Dx() <= 0 || sb.Dy() <= 0 {
		return
	}

	scale := float64(db.Dx()) / float64(sb.Dx())
	if s := float64(db.Dy()) / float64(sb.Dy()); s < scale {
		scale = s
	}

	tw := int(float64(sb.Dx())*scale + 0.5)
	th := int(float64(sb.Dy())*scale + 0.5)
	if tw > db.Dx() {
		tw = db.Dx()
	}
	if th > db.Dy() {
		th = db.Dy()
	}

	x0 := db.Min.X + (db.Dx()-tw)/2
	y0 := db.Min.Y + (db.Dy()-th)/2
	target := image.Rect(x0, y0, x0+tw, y0+th)

	xdraw.CatmullRom.Scale(dst, target, src, sb, xdraw.Src, nil)
}

// TextSlide renders a centered block of text lines on a solid background,
// used for the error and no-content slides. The bitmap base font is scaled
// up to the requested size.
func TextSlide(bounds image.Rectangle, lines []string, fontSize int, fg, bg color.Color) *image.RGBA {
	surface := NewSurface(bounds, bg)
	if len(lines) == 0 || fontSize <= 0 {
		return surface
	}

	face := basicfont.Face7x13
	scale := float64(fontSize) / float64(face.Height)
	lineHeight := fontSize + 5
	blockTop := bounds.Min.Y + (bounds.Dy()-len(lines)*lineHeight)/2

	for i, line := range lines {
		width := font.MeasureString(face, line).Ceil()
		if width < 1 {
			continue
		}
		text := image.NewRGBA(image.Rect(0, 0, width, face.Height))
		d := font.Drawer{
			Dst:  text,
			Src:  image.NewUniform(fg),
			Face: face,
			Dot:  fixed.P(0, face.Ascent),
		}
		d.DrawString(line)

		tw := int(float64(width) * scale)
		x0 := bounds.Min.X + (bounds.Dx()-tw)/2
		y0 := blockTop + i*lineHeight
		target := image.Rect(x0, y0, x0+tw, y0+fontSize)
		xdraw.NearestNeighbor.Scale(surface, target, text, text.Bounds(), xdraw.Over, nil)
	}

	return surface
}
