package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FrameStream delivers decoded, letterboxed RGBA frames from one video at
// its playback rate. The pipeline is probe, then an optional Poster read
// for the transition, then Play to start paced delivery on Frames. Close
// kills the decoder; it is safe to call at any point and more than once.
type FrameStream struct {
	Info *VideoInfo

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	logger zerolog.Logger

	rect     image.Rectangle
	interval time.Duration

	frames chan *image.RGBA
	done   chan struct{}

	playOnce  sync.Once
	closeOnce sync.Once
	waitOnce  sync.Once
	waitErr   error

	mu  sync.Mutex
	err error

	dropped atomic.Int64
}

// StreamFrames probes the video and starts an ffmpeg process decoding it to
// raw RGBA frames letterboxed to the requested size. ctx bounds the whole
// playback: cancelling it kills the decoder. No frames flow until Play.
func (e *Executor) StreamFrames(ctx context.Context, path string, opts StreamOptions) (*FrameStream, error) {
	info := opts.Info
	if info == nil {
		probed, err := e.Probe(ctx, path)
		if err != nil {
			return nil, err
		}
		info = probed
	}

	rate := info.FPS
	if rate <= 0 {
		// Some containers carry no usable rate; assume PAL.
		rate = 25
	}
	capped := opts.MaxFPS > 0 && rate > opts.MaxFPS
	if capped {
		rate = opts.MaxFPS
	}

	fb := NewFilterBuilder().FitPad(opts.Width, opts.Height, opts.Background)
	if capped {
		fb.FPS(rate)
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	if e.threads > 0 {
		args = append(args, "-threads", fmt.Sprintf("%d", e.threads))
	}
	args = append(args,
		"-i", path,
		"-vf", fb.Build(),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-an",
		"pipe:1",
	)

	e.logger.Debug().
		Str("path", path).
		Float64("rate", rate).
		Strs("args", args).
		Msg("starting frame stream")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	s := &FrameStream{
		Info:     info,
		cmd:      cmd,
		stdout:   stdout,
		logger:   e.logger.With().Str("path", path).Logger(),
		rect:     image.Rect(0, 0, opts.Width, opts.Height),
		interval: time.Duration(float64(time.Second) / rate),
		frames:   make(chan *image.RGBA, 1),
		done:     make(chan struct{}),
	}
	cmd.Stderr = &s.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return s, nil
}

// Poster reads the first frame synchronously, for composing the transition
// into this video. Call it before Play or not at all.
func (s *FrameStream) Poster(ctx context.Context) (*image.RGBA, error) {
	type result struct {
		frame *image.RGBA
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		frame, err := s.readFrame()
		ch <- result{frame, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			s.Close()
			return nil, fmt.Errorf("reading poster frame: %w", r.err)
		}
		return r.frame, nil
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	case <-s.done:
		return nil, errors.New("stream closed")
	}
}

// Play starts paced frame delivery. The clock starts now; frames that fall
// more than one interval behind it are dropped so playback keeps wall-clock
// time instead of slowing down.
func (s *FrameStream) Play() {
	s.playOnce.Do(func() {
		go s.loop()
	})
}

// Frames is the paced frame channel. It closes when the video ends or the
// stream dies; Err distinguishes the two.
func (s *FrameStream) Frames() <-chan *image.RGBA {
	return s.frames
}

// Err reports the terminal decode error, nil after a clean end of stream.
func (s *FrameStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped returns the number of frames discarded to stay on schedule.
func (s *FrameStream) Dropped() int64 {
	return s.dropped.Load()
}

// Close kills the decoder and reaps the process.
func (s *FrameStream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.wait()
	})
}

func (s *FrameStream) loop() {
	defer close(s.frames)

	start := time.Now()
	for i := 0; ; i++ {
		frame, err := s.readFrame()
		if err != nil {
			s.finish(err)
			return
		}

		due := start.Add(time.Duration(i) * s.interval)
		now := time.Now()
		if wait := due.Sub(now); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-s.done:
				timer.Stop()
				return
			}
		} else if now.Sub(due) > s.interval {
			s.dropped.Add(1)
			continue
		}

		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
	}
}

// readFrame blocks until one full frame arrives on the pipe. A truncated
// tail frame reads as end of stream; the exit status decides whether that
// end was clean.
func (s *FrameStream) readFrame() (*image.RGBA, error) {
	buf := make([]byte, s.rect.Dx()*s.rect.Dy()*4)
	if _, err := io.ReadFull(s.stdout, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return &image.RGBA{Pix: buf, Stride: s.rect.Dx() * 4, Rect: s.rect}, nil
}

// finish records the stream outcome once reading stops. End of pipe with a
// zero exit is a clean end; anything else becomes the terminal error.
func (s *FrameStream) finish(readErr error) {
	if errors.Is(readErr, io.EOF) {
		if exitErr := s.wait(); exitErr != nil {
			s.fail(fmt.Errorf("ffmpeg exited: %w: %s", exitErr, s.stderrTail()))
		}
		return
	}
	s.fail(fmt.Errorf("reading frames: %w", readErr))
}

func (s *FrameStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		// Deliberately closed; whatever broke the pipe is not an error.
		return
	default:
	}
	if s.err == nil {
		s.err = err
		s.logger.Warn().Err(err).Msg("frame stream failed")
	}
}

func (s *FrameStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// stderrTail returns the last lines ffmpeg wrote, for error reports. Only
// valid after the process has been reaped.
func (s *FrameStream) stderrTail() string {
	out := strings.TrimSpace(s.stderr.String())
	if len(out) > 400 {
		out = out[len(out)-400:]
	}
	if out == "" {
		out = "(no stderr output)"
	}
	return out
}
