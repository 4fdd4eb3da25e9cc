package watch

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher observes the slide directory and coalesces change bursts into
// single reload signals. A burst of events (bulk copy, rsync) produces one
// signal once the directory has been quiet for the debounce window.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   zerolog.Logger
	signals  chan struct{}
}

// New creates a watcher for the given directory. Setup happens in Run so a
// missing inotify facility degrades playback instead of aborting it.
func New(dir string, debounce time.Duration, logger zerolog.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		logger:   logger,
		signals:  make(chan struct{}, 1),
	}
}

// Signals delivers one value per detected change burst. The channel holds
// at most one pending signal; bursts arriving while one is pending fold
// into it.
func (w *Watcher) Signals() <-chan struct{} {
	return w.signals
}

// Run watches until ctx is cancelled. Watch setup failure is logged once
// and leaves the watcher inert; playback continues without live reload.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn().Err(err).Msg("file watching unavailable, live reload disabled")
		<-ctx.Done()
		return nil
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		w.logger.Warn().Err(err).Str("dir", w.dir).Msg("cannot watch slide directory, live reload disabled")
		<-ctx.Done()
		return nil
	}

	w.logger.Info().Str("dir", w.dir).Dur("debounce", w.debounce).Msg("watching for content changes")

	var debounce *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("change event")
			if debounce == nil {
				debounce = time.NewTimer(w.debounce)
				fire = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(w.debounce)
			}

		case <-fire:
			debounce = nil
			fire = nil
			select {
			case w.signals <- struct{}{}:
				w.logger.Info().Msg("content changed, reload scheduled")
			default:
				// A reload is already pending; this burst folds into it.
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}
