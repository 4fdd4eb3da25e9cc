package engine

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"time"

	"github.com/nvall/slideloop/internal/content"
	"github.com/nvall/slideloop/internal/ffmpeg"
	"github.com/nvall/slideloop/internal/media"
	"github.com/nvall/slideloop/internal/overlay"
	"github.com/nvall/slideloop/internal/report"
	"github.com/nvall/slideloop/internal/transition"
)

type state int

const (
	stateLoading state = iota
	stateHolding
	stateTransitioning
	stateErrorHold
	stateReloading
)

func (s state) String() string {
	switch s {
	case stateLoading:
		return "loading"
	case stateHolding:
		return "holding"
	case stateTransitioning:
		return "transitioning"
	case stateErrorHold:
		return "error-hold"
	case stateReloading:
		return "reloading"
	}
	return "unknown"
}

// slide is one displayable item: its current surface and, for videos, the
// live frame stream feeding it.
type slide struct {
	item      content.Item
	surface   *image.RGBA
	stream    *ffmpeg.FrameStream
	synthetic bool
}

func (s *slide) close() {
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
}

// transitionState exists only while a transition is on screen.
type transitionState struct {
	kind         transition.Kind
	seed         int64
	started      time.Time
	duration     time.Duration
	from         *image.RGBA
	next         *slide
	lastComposed time.Time
}

// abandon releases the incoming slide when a transition is cut short by
// shutdown.
func (t *transitionState) abandon() {
	if t.next != nil {
		t.next.close()
	}
}

// decodeJob is a slide decode running off the render goroutine. The render
// loop keeps ticking and draining signals while it runs.
type decodeJob struct {
	idx        int
	item       content.Item
	transition bool
	result     chan decodeOutcome
}

type decodeOutcome struct {
	sl  *slide
	err error
}

// stepLoading builds the initial playlist. Scan failure puts up the
// content-unavailable card and retries once the hold expires.
func (e *Engine) stepLoading() {
	playlist, aux, err := e.source.Scan()
	if err != nil {
		e.logger.Error().Err(err).Msg("content scan failed")
		e.reporter.Record(e.settings.SlideDir, err)
		e.showCard("content unavailable")
		return
	}
	e.install(playlist, aux)
}

// install activates a freshly scanned playlist and starts at its first
// item. The previous playlist reference is replaced wholesale.
func (e *Engine) install(playlist *content.Playlist, aux overlay.Content) {
	e.playlist = playlist
	e.compositor = overlay.New(e.settings, aux, e.display.Bounds(), e.logger)

	e.logger.Info().
		Str("revision", playlist.Revision.String()).
		Int("items", playlist.Len()).
		Msg("playlist active")

	if playlist.Empty() {
		e.showCard("no slides found")
		return
	}

	e.index = 0
	e.loadCurrent()
}

// stepHolding renders the current slide until its hold completes. Videos
// hold until their stream ends; images until the display duration elapses.
// A pending reload takes over once the slide's minimum visible time has
// passed.
func (e *Engine) stepHolding() {
	now := time.Now()
	cur := e.current

	if e.reloadPending && now.After(e.minVisible) {
		e.beginReload()
		return
	}

	if cur.stream != nil {
		select {
		case frame, ok := <-cur.stream.Frames():
			if !ok {
				if err := cur.stream.Err(); err != nil {
					e.failItem(cur.item, err)
					return
				}
				e.advance()
				return
			}
			cur.surface = frame
			e.presentSlide(frame)
		default:
			// No frame ready; the previous one stays visible.
		}
		return
	}

	if now.After(e.holdUntil) {
		e.advance()
	}
}

// advance moves to the next playlist index through a transition, wrapping
// at the end; the playlist is a cycle.
func (e *Engine) advance() {
	e.beginTransition((e.index + 1) % e.playlist.Len())
}

// beginTransition hands the incoming item to the decoder; the transition
// is composed once the decode joins. A decode failure redirects to the
// error hold in the failed item's slot.
func (e *Engine) beginTransition(nextIdx int) {
	// A one-item playlist restarts directly; transitioning a surface onto
	// itself would show nothing.
	if e.playlist.Len() == 1 {
		e.index = nextIdx
		e.loadCurrent()
		return
	}

	e.startDecode(nextIdx, e.playlist.Items[nextIdx], true)
}

// startDecode launches the decode goroutine. At most one job runs at a
// time; the state machine stays put until pollDecode joins it.
func (e *Engine) startDecode(idx int, item content.Item, viaTransition bool) {
	job := &decodeJob{
		idx:        idx,
		item:       item,
		transition: viaTransition,
		result:     make(chan decodeOutcome, 1),
	}
	e.decode = job
	go func() {
		sl, err := e.decodeSlide(item)
		job.result <- decodeOutcome{sl: sl, err: err}
	}()
}

// pollDecode joins a finished decode without blocking. The last presented
// frame stays visible while the job runs.
func (e *Engine) pollDecode() {
	job := e.decode

	var out decodeOutcome
	select {
	case out = <-job.result:
	default:
		return
	}
	e.decode = nil
	e.index = job.idx

	if out.err != nil {
		e.failItem(job.item, out.err)
		return
	}
	if !job.transition {
		e.setCurrent(out.sl)
		return
	}

	from := e.current.surface
	e.current.close()

	kind := e.kinds[e.rng.Intn(len(e.kinds))]
	e.trans = &transitionState{
		kind:     kind,
		seed:     e.rng.Int63(),
		started:  time.Now(),
		duration: e.settings.TransitionTime(),
		from:     from,
		next:     out.sl,
	}
	e.state = stateTransitioning

	e.logger.Debug().
		Stringer("kind", kind).
		Int("index", job.idx).
		Str("path", job.item.Path).
		Msg("transition started")
}

// stepTransitioning composes the crossover frame for the current elapsed
// progress. Composition runs at the transition frame rate even when the
// render tick is faster.
func (e *Engine) stepTransitioning() {
	t := e.trans
	now := time.Now()

	progress := float64(now.Sub(t.started)) / float64(t.duration)
	if progress >= 1 {
		e.completeTransition()
		return
	}

	interval := time.Duration(float64(time.Second) / float64(e.settings.TransitionFPS))
	if !t.lastComposed.IsZero() && now.Sub(t.lastComposed) < interval {
		return
	}
	t.lastComposed = now

	// The overlay goes on after the compose so it stays anchored while the
	// slides underneath move.
	transition.Compose(e.frame, t.from, t.next.surface, t.kind, t.seed, progress)
	e.compositor.Apply(e.frame)
	e.present(e.frame)
}

// completeTransition lands exactly on the incoming surface and starts its
// hold.
func (e *Engine) completeTransition() {
	next := e.trans.next
	e.trans = nil
	e.setCurrent(next)
}

// stepErrorHold keeps the failure card up for the configured minimum, then
// resumes: scan failures retry loading, item failures advance past the
// failed slot as if it had played.
func (e *Engine) stepErrorHold() {
	if time.Now().Before(e.errorUntil) {
		return
	}
	if e.reloadPending {
		e.beginReload()
		return
	}
	if e.errorFromScan || e.playlist.Empty() {
		e.state = stateLoading
		return
	}
	e.index = (e.index + 1) % e.playlist.Len()
	e.loadCurrent()
}

// beginReload leaves the current state for a rescan on the next tick.
func (e *Engine) beginReload() {
	e.reloadPending = false
	e.state = stateReloading
	e.logger.Info().Msg("reloading content")
}

// stepReloading re-scans the directory. Success swaps in the new playlist
// and restarts at its first item; failure keeps the previous playlist and
// restarts the interrupted slide.
func (e *Engine) stepReloading() {
	playlist, aux, err := e.source.Scan()
	if err != nil {
		e.logger.Error().Err(err).Msg("reload scan failed, keeping current playlist")
		e.reporter.Record(e.settings.SlideDir, err)
		if e.playlist.Empty() || e.current == nil || e.current.synthetic {
			e.state = stateLoading
			return
		}
		e.loadCurrent()
		return
	}
	e.install(playlist, aux)
}

// loadCurrent decodes the slide at the current index; it lands without a
// transition once the decode joins.
func (e *Engine) loadCurrent() {
	e.startDecode(e.index, e.playlist.Items[e.index], false)
}

// setCurrent makes sl the visible slide and starts its hold.
func (e *Engine) setCurrent(sl *slide) {
	if e.current != nil {
		e.current.close()
	}
	e.current = sl
	e.state = stateHolding

	now := time.Now()
	if sl.stream == nil {
		e.holdUntil = now.Add(sl.item.Duration)
	} else {
		// Videos hold to the end of their stream.
		e.holdUntil = time.Time{}
		sl.stream.Play()
	}
	e.minVisible = now.Add(e.minVisibleFor(sl))

	e.presentSlide(sl.surface)

	e.logger.Debug().
		Int("index", e.index).
		Str("path", sl.item.Path).
		Stringer("kind", sl.item.Kind).
		Msg("slide holding")
}

// minVisibleFor is how long a slide must stay up before a reload may cut
// it short: one second, or the full hold when that is shorter.
func (e *Engine) minVisibleFor(sl *slide) time.Duration {
	floor := time.Second
	if sl.stream == nil && sl.item.Duration < floor {
		return sl.item.Duration
	}
	return floor
}

// failItem records a per-item failure and shows the error card in its
// slot. One bad item never halts the cycle.
func (e *Engine) failItem(item content.Item, cause error) {
	e.logger.Warn().Err(cause).Str("path", item.Path).Msg("slide failed")
	e.reporter.Record(item.Path, cause)

	if e.current != nil {
		e.current.close()
	}

	card := report.Slide(e.display.Bounds(), e.settings.FontSize,
		[]string{"slide unavailable", filepath.Base(item.Path)})
	e.current = &slide{item: item, surface: card, synthetic: true}
	e.state = stateErrorHold
	e.errorFromScan = false
	e.errorUntil = time.Now().Add(e.settings.ErrorHold.Duration())
	e.present(card)
}

// showCard covers states with no playable item: empty directory or an
// unreadable one. The card holds like an error slide, then loading retries.
func (e *Engine) showCard(message string) {
	if e.current != nil {
		e.current.close()
	}

	card := report.Slide(e.display.Bounds(), e.settings.FontSize,
		[]string{message, e.settings.SlideDir})
	e.current = &slide{surface: card, synthetic: true}
	e.state = stateErrorHold
	e.errorFromScan = true
	e.errorUntil = time.Now().Add(e.settings.ErrorHold.Duration())
	e.present(card)
}

// decodeSlide turns a playlist item into a displayable slide, paused on
// the poster frame for videos. It runs on the decode goroutine and reads
// only fields that stay fixed for the whole run; surfaces come back clean,
// the overlay goes on at present time.
func (e *Engine) decodeSlide(item content.Item) (*slide, error) {
	if item.Kind == content.KindVideo {
		return e.decodeVideo(item)
	}

	surface, err := media.DecodeImage(item.Path, e.display.Bounds(), e.settings.Background.RGBA())
	if err != nil {
		return nil, err
	}
	return &slide{item: item, surface: surface}, nil
}

func (e *Engine) decodeVideo(item content.Item) (*slide, error) {
	if e.exec == nil {
		return nil, &media.DecodeError{Path: item.Path, Err: errors.New("video playback requires ffmpeg")}
	}

	bounds := e.display.Bounds()
	timeout := e.settings.DecodeTimeout.Duration()

	probeCtx, cancel := context.WithTimeout(e.runCtx, timeout)
	defer cancel()
	info, err := e.exec.Probe(probeCtx, item.Path)
	if err != nil {
		return nil, &media.DecodeError{Path: item.Path, Err: err}
	}

	// The stream itself lives on the run context so playback is not bound
	// by the decode timeout.
	stream, err := e.exec.StreamFrames(e.runCtx, item.Path, ffmpeg.StreamOptions{
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Background: e.settings.Background.RGBA(),
		MaxFPS:     float64(e.settings.FPS),
		Info:       info,
	})
	if err != nil {
		return nil, &media.DecodeError{Path: item.Path, Err: err}
	}

	posterCtx, cancel := context.WithTimeout(e.runCtx, timeout)
	defer cancel()
	poster, err := stream.Poster(posterCtx)
	if err != nil {
		stream.Close()
		return nil, &media.DecodeError{Path: item.Path, Err: err}
	}

	e.logger.Debug().
		Str("path", item.Path).
		Stringer("duration", info.Duration).
		Float64("fps", info.FPS).
		Msg("video ready")

	return &slide{item: item, surface: poster, stream: stream}, nil
}
