package config

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvall/slideloop/internal/transition"
)

type contextKey string

const settingsKey contextKey = "settings"

// Seconds is a duration expressed as a (possibly fractional) number of
// seconds in the YAML file.
type Seconds float64

// Duration converts to time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// Color is an RGB or RGBA color written as [r, g, b] or [r, g, b, a].
type Color [4]uint8

// UnmarshalYAML accepts 3- or 4-element integer sequences.
func (c *Color) UnmarshalYAML(value *yaml.Node) error {
	var parts []int
	if err := value.Decode(&parts); err != nil {
		return fmt.Errorf("color must be a [r, g, b] or [r, g, b, a] sequence: %w", err)
	}
	if len(parts) != 3 && len(parts) != 4 {
		return fmt.Errorf("color needs 3 or 4 components, got %d", len(parts))
	}
	out := Color{0, 0, 0, 255}
	for i, p := range parts {
		if p < 0 || p > 255 {
			return fmt.Errorf("color component %d out of range: %d", i, p)
		}
		out[i] = uint8(p)
	}
	*c = out
	return nil
}

// RGBA converts to the stdlib color type used on surfaces.
func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
}

// NRGBA converts to the non-premultiplied form, which is what draw.Over
// expects for translucent fills.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
}

// Settings holds the full configuration snapshot for one run. It is loaded
// once, validated, and never mutated afterwards; a reload builds a fresh
// snapshot and swaps it wholesale.
type Settings struct {
	// Content and logging
	SlideDir string `yaml:"slide_dir"`
	ErrorLog string `yaml:"error_log"`

	// Timing
	SlideDuration      Seconds `yaml:"slide_duration"`
	TransitionDuration Seconds `yaml:"transition_duration"`
	ErrorHold          Seconds `yaml:"error_hold"`
	DecodeTimeout      Seconds `yaml:"decode_timeout"`
	ReloadDebounce     Seconds `yaml:"reload_debounce"`
	FPS                int     `yaml:"fps"`
	TransitionFPS      int     `yaml:"transition_fps"`

	// Transitions
	AvailableTransitions []string `yaml:"available_transitions"`
	UseFastTransitions   bool     `yaml:"use_fast_transitions"`

	// Overlay
	ShowFooter         bool    `yaml:"show_footer"`
	ShowQR             bool    `yaml:"show_qr"`
	FontSize           int     `yaml:"font_size"`
	TextColor          Color   `yaml:"text_color"`
	FooterBGColor      Color   `yaml:"footer_bg_color"`
	MaxOverlayFraction float64 `yaml:"max_overlay_fraction"`
	QRBoxSize          int     `yaml:"qr_box_size"`
	QRBorder           int     `yaml:"qr_border"`

	// Display
	Background    Color  `yaml:"background_color"`
	Display       string `yaml:"display"` // auto, fbdev or ffplay
	FBDevice      string `yaml:"fb_device"`
	DisplayWidth  int    `yaml:"display_width"`
	DisplayHeight int    `yaml:"display_height"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Settings, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns the settings used when no config file is present. The
// values mirror a 30fps kiosk with ten-second slides.
func Default() *Settings {
	return &Settings{
		SlideDir: "slides",
		ErrorLog: "errors.txt",

		SlideDuration:      10,
		TransitionDuration: 1.0,
		ErrorHold:          30,
		DecodeTimeout:      5,
		ReloadDebounce:     0.5,
		FPS:                30,
		TransitionFPS:      30,

		AvailableTransitions: []string{"fade", "slide", "dissolve", "zoom"},
		UseFastTransitions:   false,

		ShowFooter:         true,
		ShowQR:             true,
		FontSize:           24,
		TextColor:          Color{255, 255, 255, 255},
		FooterBGColor:      Color{0, 0, 255, 128},
		MaxOverlayFraction: 0.25,
		QRBoxSize:          5,
		QRBorder:           2,

		Background: Color{0, 0, 0, 255},
		Display:    "auto",
		FBDevice:   "/dev/fb0",
	}
}

// Validate rejects settings the engine cannot run with. Unknown transition
// names are an error here, not at render time.
func (s *Settings) Validate() error {
	if s.SlideDir == "" {
		return fmt.Errorf("slide_dir must be set")
	}
	if s.ErrorLog == "" {
		return fmt.Errorf("error_log must be set")
	}
	if s.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", s.FPS)
	}
	if s.TransitionFPS <= 0 {
		return fmt.Errorf("transition_fps must be positive, got %d", s.TransitionFPS)
	}
	if s.SlideDuration <= 0 {
		return fmt.Errorf("slide_duration must be positive, got %v", s.SlideDuration)
	}
	if s.TransitionDuration <= 0 {
		return fmt.Errorf("transition_duration must be positive, got %v", s.TransitionDuration)
	}
	if s.ErrorHold <= 0 {
		return fmt.Errorf("error_hold must be positive, got %v", s.ErrorHold)
	}
	if s.DecodeTimeout <= 0 {
		return fmt.Errorf("decode_timeout must be positive, got %v", s.DecodeTimeout)
	}
	if s.ReloadDebounce < 0 {
		return fmt.Errorf("reload_debounce must not be negative, got %v", s.ReloadDebounce)
	}
	if len(s.AvailableTransitions) == 0 {
		return fmt.Errorf("available_transitions must list at least one transition")
	}
	for _, name := range s.AvailableTransitions {
		if _, err := transition.ParseKind(name); err != nil {
			return fmt.Errorf("available_transitions: %w", err)
		}
	}
	if s.FontSize <= 0 {
		return fmt.Errorf("font_size must be positive, got %d", s.FontSize)
	}
	if s.MaxOverlayFraction <= 0 || s.MaxOverlayFraction > 1 {
		return fmt.Errorf("max_overlay_fraction must be in (0, 1], got %v", s.MaxOverlayFraction)
	}
	if s.QRBoxSize < 1 {
		return fmt.Errorf("qr_box_size must be at least 1, got %d", s.QRBoxSize)
	}
	if s.QRBorder < 0 {
		return fmt.Errorf("qr_border must not be negative, got %d", s.QRBorder)
	}
	switch s.Display {
	case "auto", "fbdev", "ffplay":
	default:
		return fmt.Errorf("display must be auto, fbdev or ffplay, got %q", s.Display)
	}
	if s.Display != "ffplay" && s.FBDevice == "" {
		return fmt.Errorf("fb_device must be set for the %s display", s.Display)
	}
	if (s.DisplayWidth == 0) != (s.DisplayHeight == 0) {
		return fmt.Errorf("display_width and display_height must be set together")
	}
	return nil
}

// Transitions resolves the configured transition catalog. Fast mode keeps
// only the cheap kinds; if that empties the catalog, fade remains as the
// floor so transitions never disappear entirely.
func (s *Settings) Transitions() []transition.Kind {
	kinds := make([]transition.Kind, 0, len(s.AvailableTransitions))
	for _, name := range s.AvailableTransitions {
		kind, err := transition.ParseKind(name)
		if err != nil {
			continue // Validate rejects these before playback
		}
		if s.UseFastTransitions && !kind.Fast() {
			continue
		}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		kinds = append(kinds, transition.Fade)
	}
	return kinds
}

// TransitionTime is the effective transition duration; fast mode halves it.
func (s *Settings) TransitionTime() time.Duration {
	d := s.TransitionDuration.Duration()
	if s.UseFastTransitions {
		d /= 2
	}
	return d
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".slideloop", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithSettings stores the snapshot in a context
func WithSettings(ctx context.Context, s *Settings) context.Context {
	return context.WithValue(ctx, settingsKey, s)
}

// FromContext retrieves the snapshot from a context
func FromContext(ctx context.Context) *Settings {
	if s, ok := ctx.Value(settingsKey).(*Settings); ok {
		return s
	}
	return Default()
}
