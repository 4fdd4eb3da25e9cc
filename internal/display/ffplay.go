package display

import (
	"fmt"
	"image"
	"io"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvall/slideloop/internal/config"
)

// Development window size when the config doesn't pin one.
const (
	defaultWindowWidth  = 1280
	defaultWindowHeight = 720
)

// ffplayDisplay pipes raw RGBA frames into an ffplay window. It exists for
// developing on machines without a framebuffer; the kiosk itself runs on
// fbdev.
type ffplayDisplay struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	bounds image.Rectangle
	logger zerolog.Logger
}

func openFFplay(settings *config.Settings, logger zerolog.Logger) (*ffplayDisplay, error) {
	path, err := exec.LookPath("ffplay")
	if err != nil {
		return nil, fmt.Errorf("ffplay not found in PATH: %w", err)
	}

	width, height := settings.DisplayWidth, settings.DisplayHeight
	if width <= 0 || height <= 0 {
		width, height = defaultWindowWidth, defaultWindowHeight
	}

	cmd := exec.Command(path,
		"-hide_banner", "-loglevel", "error",
		"-window_title", "slideloop",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-i", "pipe:0",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffplay: %w", err)
	}

	logger.Info().Int("width", width).Int("height", height).Msg("ffplay display opened")

	return &ffplayDisplay{
		cmd:    cmd,
		stdin:  stdin,
		bounds: image.Rect(0, 0, width, height),
		logger: logger,
	}, nil
}

func (d *ffplayDisplay) Bounds() image.Rectangle {
	return d.bounds
}

func (d *ffplayDisplay) Write(frame *image.RGBA) error {
	if frame.Bounds() != d.bounds {
		return fmt.Errorf("frame bounds %v do not match display %v", frame.Bounds(), d.bounds)
	}
	if _, err := d.stdin.Write(frame.Pix); err != nil {
		return fmt.Errorf("writing to ffplay: %w", err)
	}
	return nil
}

// Close ends the stream and waits briefly for ffplay to exit before
// killing it.
func (d *ffplayDisplay) Close() error {
	_ = d.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- d.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(2 * time.Second):
		d.logger.Debug().Msg("ffplay did not exit, killing")
		_ = d.cmd.Process.Kill()
		<-done
		return nil
	}
}
