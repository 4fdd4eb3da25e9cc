package ffmpeg

import (
	"image/color"
	"time"
)

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	VideoCodec string
	HasAudio   bool
	AudioCodec string
}

// StreamOptions configures a decoded frame stream.
type StreamOptions struct {
	// Width and Height give the output surface size. Frames are
	// letterboxed to it with Background filling the bands.
	Width      int
	Height     int
	Background color.RGBA

	// MaxFPS caps the decoded frame rate below the video's native rate.
	// 0 keeps the native rate.
	MaxFPS float64

	// Info skips the probe when the caller already has it.
	Info *VideoInfo
}
