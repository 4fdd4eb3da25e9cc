package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvall/slideloop/internal/config"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func blackScreen(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)
	return img
}

func TestEmptyContentDrawsNothing(t *testing.T) {
	screen := blackScreen(320, 240)
	before := append([]uint8(nil), screen.Pix...)

	c := New(config.Default(), Content{}, screen.Bounds(), testLogger())
	assert.True(t, c.Empty())

	c.Apply(screen)
	assert.True(t, bytes.Equal(before, screen.Pix))
}

func TestShowFlagsDisableOverlay(t *testing.T) {
	cfg := config.Default()
	cfg.ShowFooter = false
	cfg.ShowQR = false

	content := Content{FooterLines: []string{"hello"}, QRPayload: "https://example.com"}
	c := New(cfg, content, image.Rect(0, 0, 640, 480), testLogger())
	assert.True(t, c.Empty())
}

func TestFooterBandGeometry(t *testing.T) {
	cfg := config.Default()
	cfg.ShowQR = false

	screen := blackScreen(640, 480)
	c := New(cfg, Content{FooterLines: []string{"line one", "line two"}}, screen.Bounds(), testLogger())
	require.NotNil(t, c.footer)

	// Two lines at font size 24: band = 2*(24+5) + 2*10 = 78 tall, sized to
	// its text, sitting 10px from the left edge and 20px above the bottom.
	assert.Equal(t, 78, c.footer.Bounds().Dy())
	assert.Greater(t, c.footer.Bounds().Dx(), 2*10)
	assert.Less(t, c.footer.Bounds().Dx(), 640)
	assert.Equal(t, 10, c.footerPos.X)
	assert.Equal(t, 480-78-20, c.footerPos.Y)

	c.Apply(screen)

	// Inside the band the translucent blue background shows over black.
	inBand := screen.RGBAAt(c.footerPos.X+2, c.footerPos.Y+2)
	assert.InDelta(t, 128, int(inBand.B), 3)
	assert.Zero(t, inBand.R)

	// Just above and just left of the band the screen is untouched.
	assert.Equal(t, color.RGBA{A: 255}, screen.RGBAAt(c.footerPos.X+2, c.footerPos.Y-2))
	assert.Equal(t, color.RGBA{A: 255}, screen.RGBAAt(c.footerPos.X-2, c.footerPos.Y+2))
}

func TestFooterTrimsToOverlayBudget(t *testing.T) {
	cfg := config.Default()
	cfg.ShowQR = false
	cfg.MaxOverlayFraction = 0.25

	// 200px screen, 25% budget = 50px. A 29px line plus 20px padding fits
	// exactly once, so three lines collapse to one.
	lines := []string{"one", "two", "three"}
	c := New(cfg, Content{FooterLines: lines}, image.Rect(0, 0, 640, 200), testLogger())
	require.NotNil(t, c.footer)
	assert.Equal(t, (24+5)+2*10, c.footer.Bounds().Dy())
}

func TestFooterDroppedWhenNothingFits(t *testing.T) {
	cfg := config.Default()
	cfg.ShowQR = false
	cfg.MaxOverlayFraction = 0.05

	c := New(cfg, Content{FooterLines: []string{"too tall"}}, image.Rect(0, 0, 640, 200), testLogger())
	assert.Nil(t, c.footer)
	assert.True(t, c.Empty())
}

func TestQRBottomRightPlacement(t *testing.T) {
	cfg := config.Default()
	cfg.ShowFooter = false

	screen := blackScreen(640, 480)
	c := New(cfg, Content{QRPayload: "https://example.com"}, screen.Bounds(), testLogger())
	require.NotNil(t, c.qr)

	side := c.qr.Bounds().Dx()
	assert.Equal(t, side, c.qr.Bounds().Dy())
	assert.Equal(t, 640-side-20, c.qrPos.X)
	assert.Equal(t, 480-side-20, c.qrPos.Y)

	c.Apply(screen)

	// The quiet zone border is white.
	corner := screen.RGBAAt(c.qrPos.X+1, c.qrPos.Y+1)
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, corner)
}

func TestQROmittedWhenLargerThanScreen(t *testing.T) {
	cfg := config.Default()
	cfg.ShowFooter = false

	c := New(cfg, Content{QRPayload: "https://example.com"}, image.Rect(0, 0, 50, 50), testLogger())
	assert.Nil(t, c.qr)
	assert.True(t, c.Empty())
}

func TestQRUnencodablePayloadOmitted(t *testing.T) {
	cfg := config.Default()
	cfg.ShowFooter = false

	// Far beyond QR capacity at any version.
	huge := make([]byte, 8000)
	for i := range huge {
		huge[i] = 'a'
	}
	c := New(cfg, Content{QRPayload: string(huge)}, image.Rect(0, 0, 1920, 1080), testLogger())
	assert.Nil(t, c.qr)
}
