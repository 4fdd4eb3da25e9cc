package report

import (
	"image"
	"image/color"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nvall/slideloop/internal/logging"
	"github.com/nvall/slideloop/internal/media"
	"github.com/nvall/slideloop/pkg/util"
)

// Reporter appends slide failure records to the error log. The log is an
// append-only JSON-lines file that survives restarts. A reporter that
// cannot write never disturbs playback: each record gets one reopen and
// retry, then is dropped with a console warning.
type Reporter struct {
	path   string
	logger zerolog.Logger

	mu       sync.Mutex
	file     *os.File
	sink     zerolog.Logger
	writeErr error
}

// sinkWriter feeds the zerolog sink into the current log file. Callers
// hold the reporter mutex around every sink write.
type sinkWriter struct {
	r *Reporter
}

func (w sinkWriter) Write(p []byte) (int, error) {
	if w.r.file == nil {
		w.r.writeErr = os.ErrClosed
		return 0, os.ErrClosed
	}
	n, err := w.r.file.Write(p)
	w.r.writeErr = err
	return n, err
}

// NewReporter creates a reporter writing to path. An unopenable log is
// logged and leaves the reporter degraded; Record retries the open later.
func NewReporter(path string, logger zerolog.Logger) *Reporter {
	r := &Reporter{
		path:   path,
		logger: logger.With().Str("component", "report").Logger(),
	}
	r.sink = logging.FileLogger(sinkWriter{r})

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open() {
		r.logger.Warn().Str("path", path).Msg("error log unavailable, failures will not be recorded")
	}
	return r
}

// Record appends one failure record for the given item.
func (r *Reporter) Record(itemPath string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil && !r.open() {
		return
	}
	if err := r.write(itemPath, cause); err != nil {
		r.closeFile()
		if !r.open() {
			return
		}
		if err := r.write(itemPath, cause); err != nil {
			r.logger.Warn().Err(err).Str("item", itemPath).Msg("error log write failed, dropping record")
		}
	}
}

// Close releases the log file.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeFile()
}

func (r *Reporter) open() bool {
	if err := util.EnsureParentDir(r.path); err != nil {
		r.logger.Debug().Err(err).Msg("error log parent dir")
		return false
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.logger.Debug().Err(err).Msg("error log open")
		return false
	}
	r.file = f
	return true
}

func (r *Reporter) write(itemPath string, cause error) error {
	r.writeErr = nil
	r.sink.Error().
		Str("item", itemPath).
		Str("cause", cause.Error()).
		Msg("slide failed")
	return r.writeErr
}

func (r *Reporter) closeFile() {
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}
}

// Error slide palette, red on black.
var (
	slideFG = color.RGBA{R: 255, A: 255}
	slideBG = color.RGBA{A: 255}
)

// Slide renders the full-screen failure card shown while an item is held
// in error state.
func Slide(bounds image.Rectangle, fontSize int, lines []string) *image.RGBA {
	return media.TextSlide(bounds, lines, fontSize, slideFG, slideBG)
}
