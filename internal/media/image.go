package media

import (
	"fmt"
	"image"
	"image/color"
	"os"

	_ "image/jpeg"
	_ "image/png"
)

// DecodeError reports a slide that could not be turned into a surface. It
// is never fatal to playback; the caller shows the error slide and records
// the failure.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeImage loads an image file into a letterboxed surface of the given
// bounds. The image keeps its aspect ratio, centered over the background
// color; oversized images are scaled down, never cropped.
func DecodeImage(path string, bounds image.Rectangle, bg color.Color) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	surface := NewSurface(bounds, bg)
	Letterbox(surface, img)
	return surface, nil
}
