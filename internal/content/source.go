package content

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nvall/slideloop/internal/overlay"
)

// Aux file names read alongside the slides.
const (
	footerFile = "footer.txt"
	qrFile     = "qr_url.txt"
)

// Source scans a slide directory into playlist snapshots.
type Source struct {
	dir       string
	imageHold time.Duration
	logger    zerolog.Logger
}

// NewSource creates a source for the given directory. imageHold is the
// display duration assigned to every image item.
func NewSource(dir string, imageHold time.Duration, logger zerolog.Logger) *Source {
	return &Source{
		dir:       dir,
		imageHold: imageHold,
		logger:    logger,
	}
}

// Scan reads the directory once and returns a fresh playlist snapshot plus
// the overlay inputs found next to the slides. Items are ordered by file
// name. An unreadable directory is a *ScanError; unreadable aux files are
// logged and treated as absent.
func (s *Source) Scan() (*Playlist, overlay.Content, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, overlay.Content{}, &ScanError{Dir: s.dir, Err: err}
	}

	// os.ReadDir returns entries sorted by name, which is the playback order.
	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		kind, ok := classify(entry.Name())
		if !ok {
			continue
		}
		item := Item{
			Path:  filepath.Join(s.dir, entry.Name()),
			Kind:  kind,
			Index: len(items),
		}
		if kind == KindImage {
			item.Duration = s.imageHold
		}
		items = append(items, item)
	}

	playlist := &Playlist{
		Revision:    uuid.New(),
		Items:       items,
		GeneratedAt: time.Now(),
	}

	aux := overlay.Content{
		FooterLines: s.readFooter(),
		QRPayload:   s.readQRPayload(),
	}

	s.logger.Debug().
		Str("revision", playlist.Revision.String()).
		Int("items", len(items)).
		Int("footer_lines", len(aux.FooterLines)).
		Bool("qr", aux.QRPayload != "").
		Msg("directory scanned")

	return playlist, aux, nil
}

// classify maps a file name to its item kind by extension.
func classify(name string) (Kind, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return KindImage, true
	case ".mp4":
		return KindVideo, true
	}
	return 0, false
}

// readFooter returns the non-empty lines of footer.txt, or nil if the file
// is absent or unreadable.
func (s *Source) readFooter() []string {
	data, err := os.ReadFile(filepath.Join(s.dir, footerFile))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("file", footerFile).Msg("footer file unreadable, skipping")
		}
		return nil
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// readQRPayload returns the first non-empty line of qr_url.txt, or "" if
// the file is absent or unreadable.
func (s *Source) readQRPayload() string {
	data, err := os.ReadFile(filepath.Join(s.dir, qrFile))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("file", qrFile).Msg("qr file unreadable, skipping")
		}
		return ""
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
