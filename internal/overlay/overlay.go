package overlay

import (
	"image"
	"image/draw"

	"github.com/rs/zerolog"

	"github.com/nvall/slideloop/internal/config"
)

// Content holds the overlay inputs found next to the slides.
type Content struct {
	FooterLines []string
	QRPayload   string
}

// Empty reports whether there is nothing to draw.
func (c Content) Empty() bool {
	return len(c.FooterLines) == 0 && c.QRPayload == ""
}

// Compositor draws the footer band and QR code over composed frames. Both
// pieces are prerendered once per playlist reload; Apply only blits them, so
// it is cheap enough to run on every frame of a transition.
type Compositor struct {
	footer    *image.RGBA
	footerPos image.Point
	qr        *image.RGBA
	qrPos     image.Point
}

// New prerenders the overlay for the given screen bounds. Failures degrade:
// a QR payload that cannot be encoded or a footer that cannot fit is logged
// and omitted, never fatal.
func New(settings *config.Settings, content Content, bounds image.Rectangle, logger zerolog.Logger) *Compositor {
	c := &Compositor{}

	if settings.ShowFooter && len(content.FooterLines) > 0 {
		c.footer, c.footerPos = buildFooter(settings, content.FooterLines, bounds, logger)
	}
	if settings.ShowQR && content.QRPayload != "" {
		c.qr, c.qrPos = buildQR(settings, content.QRPayload, bounds, logger)
	}

	return c
}

// Apply draws the prerendered pieces onto dst.
func (c *Compositor) Apply(dst *image.RGBA) {
	if c.footer != nil {
		r := c.footer.Bounds().Add(c.footerPos)
		draw.Draw(dst, r, c.footer, c.footer.Bounds().Min, draw.Over)
	}
	if c.qr != nil {
		r := c.qr.Bounds().Add(c.qrPos)
		draw.Draw(dst, r, c.qr, c.qr.Bounds().Min, draw.Over)
	}
}

// Empty reports whether Apply would draw anything.
func (c *Compositor) Empty() bool {
	return c.footer == nil && c.qr == nil
}
