package engine

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvall/slideloop/internal/config"
	"github.com/nvall/slideloop/internal/content"
	"github.com/nvall/slideloop/internal/display"
	"github.com/nvall/slideloop/internal/ffmpeg"
	"github.com/nvall/slideloop/internal/overlay"
	"github.com/nvall/slideloop/internal/report"
	"github.com/nvall/slideloop/internal/transition"
)

// Signal is an asynchronous request posted to the engine queue.
type Signal int

const (
	SignalReload Signal = iota
	SignalQuit
)

// Consecutive display write failures tolerated before the run aborts.
const maxWriteFailures = 120

// Options wires the engine's collaborators.
type Options struct {
	Settings *config.Settings
	Display  display.Display
	Source   *content.Source
	Reporter *report.Reporter
	Logger   zerolog.Logger

	// Executor decodes videos. nil disables video playback; video items
	// then fail into the error slide instead of aborting anything.
	Executor *ffmpeg.Executor
}

// Engine runs the playback state machine. A single goroutine inside Run
// owns the display, the active playlist and all state; collaborators reach
// it only through the signal queue, the decode handoff and the video frame
// channel.
type Engine struct {
	settings *config.Settings
	display  display.Display
	source   *content.Source
	exec     *ffmpeg.Executor
	reporter *report.Reporter
	logger   zerolog.Logger

	signals chan Signal

	// Everything below is owned by the render goroutine.
	runCtx        context.Context
	state         state
	playlist      *content.Playlist
	compositor    *overlay.Compositor
	index         int
	kinds         []transition.Kind
	rng           *rand.Rand
	current       *slide
	trans         *transitionState
	decode        *decodeJob
	holdUntil     time.Time
	minVisible    time.Time
	errorUntil    time.Time
	errorFromScan bool
	reloadPending bool
	quitRequested bool
	frame         *image.RGBA
	writeFailures int
}

// New assembles an engine. Run does the rest; no media is touched here.
func New(opts Options) *Engine {
	return &Engine{
		settings: opts.Settings,
		display:  opts.Display,
		source:   opts.Source,
		exec:     opts.Executor,
		reporter: opts.Reporter,
		logger:   opts.Logger.With().Str("component", "engine").Logger(),
		signals:  make(chan Signal, 8),
		state:    stateLoading,
		kinds:    opts.Settings.Transitions(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		frame:    image.NewRGBA(opts.Display.Bounds()),
	}
}

// Signal posts s without blocking. When the queue is full the signal folds
// into the ones already pending.
func (e *Engine) Signal(s Signal) {
	select {
	case e.signals <- s:
	default:
	}
}

// Run drives the render loop until the context is cancelled, a quit signal
// arrives, or the display becomes unwritable. A quit returns nil.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	defer e.shutdown()

	e.logger.Info().
		Int("fps", e.settings.FPS).
		Stringer("hold", e.settings.SlideDuration.Duration()).
		Stringer("transition", e.settings.TransitionTime()).
		Msg("playback starting")

	ticker := time.NewTicker(time.Duration(float64(time.Second) / float64(e.settings.FPS)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("shutdown requested")
			return nil
		case <-ticker.C:
			if err := e.step(); err != nil {
				return err
			}
			if e.quitRequested {
				e.logger.Info().Msg("quit signal honored")
				return nil
			}
		}
	}
}

// step advances the state machine by one frame tick. A pending decode
// preempts the state dispatch; signals still drain every tick while it
// runs.
func (e *Engine) step() error {
	e.drainSignals()
	if e.quitRequested {
		return nil
	}

	if e.decode != nil {
		e.pollDecode()
	} else {
		switch e.state {
		case stateLoading:
			e.stepLoading()
		case stateHolding:
			e.stepHolding()
		case stateTransitioning:
			e.stepTransitioning()
		case stateErrorHold:
			e.stepErrorHold()
		case stateReloading:
			e.stepReloading()
		}
	}

	if e.writeFailures >= maxWriteFailures {
		return fmt.Errorf("display rejected %d consecutive frames", e.writeFailures)
	}
	return nil
}

// drainSignals empties the queue. It runs once per frame; the engine never
// blocks waiting for signals.
func (e *Engine) drainSignals() {
	for {
		select {
		case s := <-e.signals:
			switch s {
			case SignalQuit:
				e.quitRequested = true
			case SignalReload:
				e.reloadPending = true
			}
		default:
			return
		}
	}
}

// presentSlide shows a slide surface with the overlay applied to the
// scratch frame. Decoded surfaces stay clean so transitions can re-read
// them later.
func (e *Engine) presentSlide(surface *image.RGBA) {
	copy(e.frame.Pix, surface.Pix)
	e.compositor.Apply(e.frame)
	e.present(e.frame)
}

// present pushes a finished frame to the display. Write failures are
// counted, not fatal, until they persist long enough to abort the run.
func (e *Engine) present(frame *image.RGBA) {
	if err := e.display.Write(frame); err != nil {
		e.writeFailures++
		e.logger.Warn().Err(err).Int("consecutive", e.writeFailures).Msg("display write failed")
		return
	}
	e.writeFailures = 0
}

func (e *Engine) shutdown() {
	if e.decode != nil {
		// Reap a decode that finished after the last tick; one still in
		// flight is cancelled through the run context and cleans up after
		// itself.
		select {
		case out := <-e.decode.result:
			if out.sl != nil {
				out.sl.close()
			}
		default:
		}
		e.decode = nil
	}
	if e.current != nil {
		e.current.close()
		e.current = nil
	}
	if e.trans != nil {
		e.trans.abandon()
		e.trans = nil
	}
	e.logger.Info().Msg("playback stopped")
}
