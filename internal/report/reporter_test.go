package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line %q is not JSON", line)
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestReporterAppendsStructuredRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.txt")
	r := NewReporter(path, zerolog.Nop())
	defer r.Close()

	r.Record("/slides/broken.png", errors.New("unexpected EOF"))
	r.Record("/slides/clip.mp4", errors.New("ffmpeg exited: status 1"))

	records := readRecords(t, path)
	require.Len(t, records, 2)

	assert.Equal(t, "/slides/broken.png", records[0]["item"])
	assert.Equal(t, "unexpected EOF", records[0]["cause"])
	assert.NotEmpty(t, records[0]["time"], "records carry timestamps")

	assert.Equal(t, "/slides/clip.mp4", records[1]["item"])
}

func TestReporterPersistsAcrossLifetimes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.txt")

	first := NewReporter(path, zerolog.Nop())
	first.Record("/slides/a.png", errors.New("one"))
	first.Close()

	second := NewReporter(path, zerolog.Nop())
	second.Record("/slides/b.png", errors.New("two"))
	second.Close()

	records := readRecords(t, path)
	require.Len(t, records, 2, "a new process must append, not truncate")
	assert.Equal(t, "/slides/a.png", records[0]["item"])
	assert.Equal(t, "/slides/b.png", records[1]["item"])
}

func TestReporterCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nested", "errors.txt")
	r := NewReporter(path, zerolog.Nop())
	defer r.Close()

	r.Record("/slides/a.png", errors.New("x"))
	require.Len(t, readRecords(t, path), 1)
}

func TestReporterUnwritableLogNeverPanics(t *testing.T) {
	// Parent "directory" is a regular file, so the log can never open.
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	r := NewReporter(filepath.Join(blocker, "errors.txt"), zerolog.Nop())
	defer r.Close()

	r.Record("/slides/a.png", errors.New("x"))
	r.Record("/slides/b.png", errors.New("y"))
}

func TestSlideRedOnBlack(t *testing.T) {
	img := Slide(image.Rect(0, 0, 320, 240), 24, []string{"slide failed", "broken.png"})

	assert.Equal(t, color.RGBA{A: 255}, img.RGBAAt(2, 2))
	assert.Equal(t, color.RGBA{A: 255}, img.RGBAAt(317, 237))

	foundRed := false
	for y := 0; y < 240 && !foundRed; y++ {
		for x := 0; x < 320; x++ {
			c := img.RGBAAt(x, y)
			if c.R > 200 && c.G == 0 && c.B == 0 {
				foundRed = true
				break
			}
		}
	}
	assert.True(t, foundRed, "expected red error text")
}
