package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/nvall/slideloop/internal/config"
)

// qrMargin is the gap between the QR image and the screen edges.
const qrMargin = 20

// buildQR prerenders the QR code at the bottom-right corner. The library
// border is replaced with our own so qr_border controls its width in
// modules, matching qr_box_size scaling.
func buildQR(settings *config.Settings, payload string, bounds image.Rectangle, logger zerolog.Logger) (*image.RGBA, image.Point) {
	code, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		logger.Warn().Err(err).Msg("qr payload cannot be encoded, omitting qr overlay")
		return nil, image.Point{}
	}
	code.DisableBorder = true

	inner := code.Image(-settings.QRBoxSize)
	border := settings.QRBorder * settings.QRBoxSize
	side := inner.Bounds().Dx() + 2*border

	if side > bounds.Dx()-qrMargin || side > bounds.Dy()-qrMargin {
		logger.Warn().
			Int("side", side).
			Int("screen_w", bounds.Dx()).
			Int("screen_h", bounds.Dy()).
			Msg("qr code larger than screen, omitting qr overlay")
		return nil, image.Point{}
	}

	img := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, inner.Bounds().Add(image.Pt(border, border)), inner, inner.Bounds().Min, draw.Src)

	pos := image.Pt(bounds.Max.X-side-qrMargin, bounds.Max.Y-side-qrMargin)
	return img, pos
}
