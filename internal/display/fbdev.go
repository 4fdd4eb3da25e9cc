package display

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nvall/slideloop/internal/config"
)

// fbdev writes frames straight to a Linux framebuffer device. Geometry and
// pixel format come from the device's sysfs node; 16bpp framebuffers get
// RGB565, 32bpp get XRGB8888, both little endian.
type fbdev struct {
	file   *os.File
	bounds image.Rectangle
	bpp    int
	stride int
	buf    []byte
}

func openFbdev(settings *config.Settings, logger zerolog.Logger) (*fbdev, error) {
	device := settings.FBDevice

	width, height, err := fbSize(device, settings)
	if err != nil {
		return nil, err
	}
	bpp, err := readSysfsInt(sysfsPath(device, "bits_per_pixel"))
	if err != nil {
		return nil, fmt.Errorf("reading framebuffer depth: %w", err)
	}
	if bpp != 16 && bpp != 32 {
		return nil, fmt.Errorf("unsupported framebuffer depth %d bpp", bpp)
	}

	stride, err := readSysfsInt(sysfsPath(device, "stride"))
	if err != nil || stride < width*bpp/8 {
		stride = width * bpp / 8
	}

	f, err := os.OpenFile(device, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", device, err)
	}

	logger.Info().
		Str("device", device).
		Int("width", width).
		Int("height", height).
		Int("bpp", bpp).
		Int("stride", stride).
		Msg("framebuffer display opened")

	return &fbdev{
		file:   f,
		bounds: image.Rect(0, 0, width, height),
		bpp:    bpp,
		stride: stride,
		buf:    make([]byte, stride*height),
	}, nil
}

func (d *fbdev) Bounds() image.Rectangle {
	return d.bounds
}

func (d *fbdev) Write(frame *image.RGBA) error {
	if frame.Bounds() != d.bounds {
		return fmt.Errorf("frame bounds %v do not match display %v", frame.Bounds(), d.bounds)
	}

	packFrame(d.buf, frame, d.bpp, d.stride)

	if _, err := d.file.WriteAt(d.buf, 0); err != nil {
		return fmt.Errorf("writing framebuffer: %w", err)
	}
	return nil
}

func (d *fbdev) Close() error {
	return d.file.Close()
}

// packFrame converts an RGBA frame into the framebuffer's native layout.
// dst must hold stride bytes per row.
func packFrame(dst []byte, frame *image.RGBA, bpp, stride int) {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()

	for y := 0; y < h; y++ {
		src := frame.Pix[y*frame.Stride : y*frame.Stride+w*4]
		row := dst[y*stride:]

		if bpp == 16 {
			for x := 0; x < w; x++ {
				r, g, bl := src[x*4], src[x*4+1], src[x*4+2]
				p := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(bl>>3)
				row[x*2] = byte(p)
				row[x*2+1] = byte(p >> 8)
			}
		} else {
			for x := 0; x < w; x++ {
				row[x*4] = src[x*4+2]
				row[x*4+1] = src[x*4+1]
				row[x*4+2] = src[x*4]
				row[x*4+3] = 0
			}
		}
	}
}

// fbSize resolves the display size: explicit settings win, otherwise the
// device reports it through sysfs.
func fbSize(device string, settings *config.Settings) (int, int, error) {
	if settings.DisplayWidth > 0 && settings.DisplayHeight > 0 {
		return settings.DisplayWidth, settings.DisplayHeight, nil
	}

	data, err := os.ReadFile(sysfsPath(device, "virtual_size"))
	if err != nil {
		return 0, 0, fmt.Errorf("reading framebuffer size: %w", err)
	}
	return parseVirtualSize(string(data))
}

// parseVirtualSize parses the sysfs "W,H" virtual_size format.
func parseVirtualSize(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed virtual_size %q", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("malformed virtual_size %q", s)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("malformed virtual_size %q", s)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("framebuffer reports %dx%d", w, h)
	}
	return w, h, nil
}

func sysfsPath(device, attr string) string {
	return filepath.Join("/sys/class/graphics", filepath.Base(device), attr)
}

func readSysfsInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
