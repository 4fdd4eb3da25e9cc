package content

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a playlist item by how it is decoded.
type Kind int

const (
	KindImage Kind = iota
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Item represents one slide in a playlist.
type Item struct {
	Path  string
	Kind  Kind
	Index int

	// Duration is the display hold for images. Videos ignore it and hold
	// until their stream ends.
	Duration time.Duration
}

// Playlist is an immutable snapshot of the content directory. A rescan
// builds a fresh one; the renderer swaps a single reference between frames
// and never mutates a snapshot in place.
type Playlist struct {
	Revision    uuid.UUID
	Items       []Item
	GeneratedAt time.Time
}

// Empty reports whether the playlist has no items.
func (p *Playlist) Empty() bool {
	return p == nil || len(p.Items) == 0
}

// Len returns the number of items.
func (p *Playlist) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

// ScanError reports a content directory that could not be read. The caller
// keeps serving its previous playlist when a rescan fails with one.
type ScanError struct {
	Dir string
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scanning %s: %v", e.Dir, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}
