package engine

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nvall/slideloop/internal/config"
	"github.com/nvall/slideloop/internal/content"
	"github.com/nvall/slideloop/internal/ffmpeg"
	"github.com/nvall/slideloop/internal/report"
)

// fakeDisplay records the frames the engine presents.
type fakeDisplay struct {
	mu     sync.Mutex
	bounds image.Rectangle
	last   *image.RGBA
	writes int
}

func newFakeDisplay(w, h int) *fakeDisplay {
	return &fakeDisplay{bounds: image.Rect(0, 0, w, h)}
}

func (d *fakeDisplay) Bounds() image.Rectangle { return d.bounds }

func (d *fakeDisplay) Write(frame *image.RGBA) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		d.last = image.NewRGBA(frame.Bounds())
	}
	copy(d.last.Pix, frame.Pix)
	d.writes++
	return nil
}

func (d *fakeDisplay) Close() error { return nil }

func (d *fakeDisplay) writeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

func (d *fakeDisplay) at(x, y int) color.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return color.RGBA{}
	}
	return d.last.RGBAAt(x, y)
}

// snapshot copies the visible frame so a test can check several pixels of
// one consistent image.
func (d *fakeDisplay) snapshot() *image.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	out := image.NewRGBA(d.last.Bounds())
	copy(out.Pix, d.last.Pix)
	return out
}

// showing reports whether the visible frame is a full-bleed solid of c.
func (d *fakeDisplay) showing(c color.RGBA) bool {
	return near(d.at(d.bounds.Dx()/2, d.bounds.Dy()/2), c) && near(d.at(2, 2), c)
}

// showingCard reports whether the visible frame looks like a failure card:
// black corners with red glyph pixels somewhere.
func (d *fakeDisplay) showingCard() bool {
	if !near(d.at(2, 2), color.RGBA{A: 255}) {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return false
	}
	for i := 0; i < len(d.last.Pix); i += 4 {
		if d.last.Pix[i] > 200 && d.last.Pix[i+1] < 60 && d.last.Pix[i+2] < 60 {
			return true
		}
	}
	return false
}

// brightPixels counts pixels that are clearly not the black background.
func (d *fakeDisplay) brightPixels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return 0
	}
	n := 0
	for i := 0; i < len(d.last.Pix); i += 4 {
		if int(d.last.Pix[i])+int(d.last.Pix[i+1])+int(d.last.Pix[i+2]) > 150 {
			n++
		}
	}
	return n
}

func near(a, b color.RGBA) bool {
	diff := func(x, y uint8) int {
		d := int(x) - int(y)
		if d < 0 {
			d = -d
		}
		return d
	}
	return diff(a.R, b.R) < 40 && diff(a.G, b.G) < 40 && diff(a.B, b.B) < 40
}

// writeSolidPNG writes a 4:3 solid-color image that letterboxes to full
// bleed on the 4:3 fake displays used here.
func writeSolidPNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func testSettings(t *testing.T, dir string) *config.Settings {
	t.Helper()
	s := config.Default()
	s.SlideDir = dir
	s.ErrorLog = filepath.Join(t.TempDir(), "errors.txt")
	s.SlideDuration = 0.15
	s.TransitionDuration = 0.08
	s.ErrorHold = 0.25
	s.FPS = 60
	s.TransitionFPS = 60
	s.ShowFooter = false
	s.ShowQR = false
	return s
}

func newTestEngine(t *testing.T, s *config.Settings, d *fakeDisplay, executor *ffmpeg.Executor) *Engine {
	t.Helper()
	logger := zerolog.Nop()
	rep := report.NewReporter(s.ErrorLog, logger)
	t.Cleanup(func() { rep.Close() })
	return New(Options{
		Settings: s,
		Display:  d,
		Source:   content.NewSource(s.SlideDir, s.SlideDuration.Duration(), logger),
		Reporter: rep,
		Logger:   logger,
		Executor: executor,
	})
}

func startEngine(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run stopped with error: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("run did not stop after cancel")
		}
	})
}

var (
	testRed   = color.RGBA{R: 255, A: 255}
	testGreen = color.RGBA{G: 255, A: 255}
	testBlue  = color.RGBA{B: 255, A: 255}
)

func TestEngineCyclesAndWraps(t *testing.T) {
	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "a.png"), testRed)
	writeSolidPNG(t, filepath.Join(dir, "b.png"), testBlue)

	disp := newFakeDisplay(120, 90)
	startEngine(t, newTestEngine(t, testSettings(t, dir), disp, nil))

	wait := func(c color.RGBA) {
		require.Eventually(t, func() bool { return disp.showing(c) },
			2*time.Second, 5*time.Millisecond)
	}
	wait(testRed)
	wait(testBlue)
	wait(testRed) // wrapped back to the start
}

func TestEngineIsolatesBadSlide(t *testing.T) {
	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "a.png"), testGreen)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("not a png"), 0o644))
	writeSolidPNG(t, filepath.Join(dir, "c.png"), testBlue)

	s := testSettings(t, dir)
	disp := newFakeDisplay(120, 90)
	startEngine(t, newTestEngine(t, s, disp, nil))

	require.Eventually(t, func() bool { return disp.showing(testGreen) },
		2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return disp.showingCard() },
		2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return disp.showing(testBlue) },
		2*time.Second, 5*time.Millisecond)

	data, err := os.ReadFile(s.ErrorLog)
	require.NoError(t, err)
	require.Contains(t, string(data), "b.png")
	require.Contains(t, string(data), "slide failed")

	// the cycle survives the bad slot and keeps looping
	require.Eventually(t, func() bool { return disp.showing(testGreen) },
		2*time.Second, 5*time.Millisecond)
}

func TestEngineOverlayAnchoredDuringTransition(t *testing.T) {
	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "a.png"), testRed)
	writeSolidPNG(t, filepath.Join(dir, "b.png"), testGreen)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "footer.txt"), []byte("WELCOME\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qr_url.txt"), []byte("https://example.com/menu\n"), 0o644))

	s := testSettings(t, dir)
	s.ShowFooter = true
	s.ShowQR = true
	s.TransitionDuration = 0.6
	s.AvailableTransitions = []string{"slide"}

	disp := newFakeDisplay(320, 240)
	startEngine(t, newTestEngine(t, s, disp, nil))

	// Font size 24 makes the one-line band 49px tall at x=10, 20px above
	// the bottom edge, so (12, 173) sits in its padding left of the text.
	bandPixel := func(frame *image.RGBA) bool {
		c := frame.RGBAAt(12, 173)
		return c.B > 100 && c.R < 200 && c.G < 200
	}

	var hold *image.RGBA
	require.Eventually(t, func() bool {
		hold = disp.snapshot()
		return hold != nil && near(hold.RGBAAt(40, 30), testRed) && bandPixel(hold)
	}, 3*time.Second, 2*time.Millisecond, "red slide with the footer band never appeared")

	// The QR sits in the bottom-right corner; its quiet zone is the only
	// pure white in that quadrant.
	qrX, qrY := -1, -1
	for y := 120; y < 240 && qrX < 0; y++ {
		for x := 160; x < 320; x++ {
			if hold.RGBAAt(x, y) == (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
				qrX, qrY = x, y
				break
			}
		}
	}
	require.GreaterOrEqual(t, qrX, 0, "expected qr quiet-zone pixels in the bottom-right quadrant")

	// Catch a frame well into a slide transition: outgoing red still on
	// the left edge, incoming green already past the middle.
	var mid *image.RGBA
	require.Eventually(t, func() bool {
		mid = disp.snapshot()
		return mid != nil &&
			near(mid.RGBAAt(40, 30), testRed) &&
			near(mid.RGBAAt(150, 30), testGreen)
	}, 5*time.Second, time.Millisecond, "no mid-transition frame observed")

	require.True(t, bandPixel(mid), "footer band must stay anchored while slides move")
	require.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, mid.RGBAAt(qrX, qrY),
		"qr must stay anchored while slides move")
}

func TestEngineEmptyDirShowsCard(t *testing.T) {
	disp := newFakeDisplay(120, 90)
	startEngine(t, newTestEngine(t, testSettings(t, t.TempDir()), disp, nil))

	require.Eventually(t, func() bool { return disp.showingCard() },
		2*time.Second, 5*time.Millisecond)
}

func TestEngineReloadSwapsPlaylist(t *testing.T) {
	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "a.png"), testRed)

	disp := newFakeDisplay(120, 90)
	e := newTestEngine(t, testSettings(t, dir), disp, nil)
	startEngine(t, e)

	require.Eventually(t, func() bool { return disp.showing(testRed) },
		2*time.Second, 5*time.Millisecond)

	writeSolidPNG(t, filepath.Join(dir, "b.png"), testGreen)
	require.NoError(t, os.Remove(filepath.Join(dir, "a.png")))
	e.Signal(SignalReload)

	require.Eventually(t, func() bool { return disp.showing(testGreen) },
		3*time.Second, 5*time.Millisecond)
}

func TestEngineHoldsMinimumVisibleTimeBeforeReload(t *testing.T) {
	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "a.png"), testRed)

	s := testSettings(t, dir)
	s.SlideDuration = 10 // long hold, so the reload gate is the one-second floor

	disp := newFakeDisplay(120, 90)
	e := newTestEngine(t, s, disp, nil)
	startEngine(t, e)

	require.Eventually(t, func() bool { return disp.showing(testRed) },
		2*time.Second, 5*time.Millisecond)

	writeSolidPNG(t, filepath.Join(dir, "b.png"), testGreen)
	require.NoError(t, os.Remove(filepath.Join(dir, "a.png")))
	e.Signal(SignalReload)

	time.Sleep(400 * time.Millisecond)
	require.True(t, disp.showing(testRed),
		"reload must not replace a slide before its minimum visible time")

	require.Eventually(t, func() bool { return disp.showing(testGreen) },
		3*time.Second, 5*time.Millisecond)
}

func TestEngineQuitSignal(t *testing.T) {
	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "a.png"), testRed)

	disp := newFakeDisplay(120, 90)
	e := newTestEngine(t, testSettings(t, dir), disp, nil)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	require.Eventually(t, func() bool { return disp.writeCount() > 0 },
		2*time.Second, 5*time.Millisecond)
	e.Signal(SignalQuit)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("quit signal did not stop the run")
	}
}

func TestEngineVideoWithoutExecutorFailsIntoCard(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("ftyp"), 0o644))

	s := testSettings(t, dir)
	disp := newFakeDisplay(120, 90)
	startEngine(t, newTestEngine(t, s, disp, nil))

	require.Eventually(t, func() bool { return disp.showingCard() },
		2*time.Second, 5*time.Millisecond)

	data, err := os.ReadFile(s.ErrorLog)
	require.NoError(t, err)
	require.Contains(t, string(data), "clip.mp4")
}

func TestEngineStreamsVideo(t *testing.T) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	out, genErr := exec.Command(ffmpegPath,
		"-f", "lavfi", "-i", "testsrc=duration=1:size=320x240:rate=30",
		"-pix_fmt", "yuv420p", video).CombinedOutput()
	if genErr != nil {
		t.Skipf("could not generate test video: %v\n%s", genErr, out)
	}

	executor, err := ffmpeg.New(zerolog.Nop(), 0)
	require.NoError(t, err)

	s := testSettings(t, dir)
	disp := newFakeDisplay(120, 90)
	startEngine(t, newTestEngine(t, s, disp, executor))

	// Images present once per hold; a playing video presents every frame,
	// so the write count keeps climbing while testsrc is on screen.
	require.Eventually(t, func() bool { return disp.writeCount() > 20 },
		10*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return disp.brightPixels() > 500 },
		10*time.Second, 10*time.Millisecond)
}
