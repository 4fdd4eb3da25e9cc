package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/nvall/slideloop/internal/config"
)

// Footer band geometry. The band hugs the bottom-left corner, sized to its
// widest text line, with the text block padded inside it.
const (
	footerLeft   = 10 // band offset from the left screen edge
	footerBottom = 20 // band offset from the bottom screen edge
	footerPad    = 10 // text inset inside the band
)

// buildFooter prerenders the footer band: a translucent background strip
// with one text line per slot. Lines that would push the band past the
// configured overlay fraction are dropped from the end.
func buildFooter(settings *config.Settings, lines []string, bounds image.Rectangle, logger zerolog.Logger) (*image.RGBA, image.Point) {
	screenH := bounds.Dy()
	lineHeight := settings.FontSize + 5

	maxBand := int(settings.MaxOverlayFraction * float64(screenH))
	maxLines := (maxBand - 2*footerPad) / lineHeight
	if maxLines < 1 {
		logger.Warn().
			Int("font_size", settings.FontSize).
			Float64("max_overlay_fraction", settings.MaxOverlayFraction).
			Msg("footer band cannot fit a single line, dropping footer")
		return nil, image.Point{}
	}
	if len(lines) > maxLines {
		logger.Warn().
			Int("lines", len(lines)).
			Int("kept", maxLines).
			Msg("footer too tall for overlay budget, trimming trailing lines")
		lines = lines[:maxLines]
	}

	scale := float64(settings.FontSize) / float64(basicfont.Face7x13.Height)
	rendered := make([]*image.RGBA, len(lines))
	widths := make([]int, len(lines))
	maxW := 0
	for i, line := range lines {
		rendered[i] = renderLine(line, settings.TextColor.NRGBA())
		widths[i] = int(float64(rendered[i].Bounds().Dx()) * scale)
		if widths[i] > maxW {
			maxW = widths[i]
		}
	}

	bandH := len(lines)*lineHeight + 2*footerPad
	bandW := maxW + 2*footerPad
	band := image.NewRGBA(image.Rect(0, 0, bandW, bandH))
	draw.Draw(band, band.Bounds(), image.NewUniform(settings.FooterBGColor.NRGBA()), image.Point{}, draw.Src)

	for i, text := range rendered {
		target := image.Rect(
			footerPad,
			footerPad+i*lineHeight,
			footerPad+widths[i],
			footerPad+i*lineHeight+settings.FontSize,
		)
		// Nearest neighbor keeps the bitmap font crisp when scaled up.
		xdraw.NearestNeighbor.Scale(band, target, text, text.Bounds(), xdraw.Over, nil)
	}

	return band, image.Point{X: bounds.Min.X + footerLeft, Y: bounds.Min.Y + screenH - bandH - footerBottom}
}

// renderLine rasterizes one line at the base font size on a transparent
// background. Scaling to the configured size happens at blit time.
func renderLine(line string, col color.NRGBA) *image.RGBA {
	face := basicfont.Face7x13
	width := font.MeasureString(face, line).Ceil()
	if width < 1 {
		width = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, width, face.Height))
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(line)
	return img
}
