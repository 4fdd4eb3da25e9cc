package display

import (
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"github.com/nvall/slideloop/internal/config"
)

// Display is a full-screen render target. Write pushes one complete frame;
// implementations expect frames matching Bounds exactly.
type Display interface {
	Bounds() image.Rectangle
	Write(frame *image.RGBA) error
	Close() error
}

// InitError means no display backend could be opened. It is the one
// playback error that aborts startup instead of degrading.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("no usable display: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Open selects and opens the configured display backend. Mode auto prefers
// the framebuffer and falls back to an ffplay window for development hosts.
func Open(settings *config.Settings, logger zerolog.Logger) (Display, error) {
	logger = logger.With().Str("component", "display").Logger()

	switch settings.Display {
	case "fbdev":
		d, err := openFbdev(settings, logger)
		if err != nil {
			return nil, &InitError{Err: err}
		}
		return d, nil

	case "ffplay":
		d, err := openFFplay(settings, logger)
		if err != nil {
			return nil, &InitError{Err: err}
		}
		return d, nil

	default: // auto
		d, fbErr := openFbdev(settings, logger)
		if fbErr == nil {
			return d, nil
		}
		logger.Debug().Err(fbErr).Msg("framebuffer unavailable, trying ffplay")

		d2, playErr := openFFplay(settings, logger)
		if playErr == nil {
			return d2, nil
		}
		return nil, &InitError{Err: fmt.Errorf("fbdev: %v; ffplay: %v", fbErr, playErr)}
	}
}
