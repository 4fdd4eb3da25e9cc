package transition

import (
	"fmt"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Kind identifies one transition in the closed catalog. The renderer matches
// it exhaustively; configured names that don't map to a Kind are rejected at
// settings validation, never at render time.
type Kind int

const (
	Fade Kind = iota
	Slide
	Dissolve
	Zoom
)

// dissolveCell is the reveal granularity in pixels. Small enough to read as
// a dissolve, large enough to keep the per-frame cell walk cheap on a Pi.
const dissolveCell = 8

// zoomStart is the scale factor the incoming surface starts from.
const zoomStart = 0.5

// Kinds returns the full catalog.
func Kinds() []Kind {
	return []Kind{Fade, Slide, Dissolve, Zoom}
}

func (k Kind) String() string {
	switch k {
	case Fade:
		return "fade"
	case Slide:
		return "slide"
	case Dissolve:
		return "dissolve"
	case Zoom:
		return "zoom"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Fast reports whether the kind is cheap enough for fast mode.
func (k Kind) Fast() bool {
	return k == Fade || k == Slide
}

// ParseKind maps a configured name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "fade":
		return Fade, nil
	case "slide":
		return Slide, nil
	case "dissolve":
		return Dissolve, nil
	case "zoom":
		return Zoom, nil
	}
	return 0, fmt.Errorf("unknown transition %q", name)
}

// Compose writes the composite of from and to at the given progress into dst.
// All three surfaces must share the same bounds (the display resolution).
// Progress is clamped to [0, 1]; 0 reproduces from exactly and 1 reproduces
// to exactly, for every kind. Seed fixes the dissolve pattern for one
// transition instance so equal progress always re-renders identically.
func Compose(dst, from, to *image.RGBA, kind Kind, seed int64, progress float64) {
	p := clamp01(progress)

	switch kind {
	case Fade:
		composeFade(dst, from, to, p)
	case Slide:
		composeSlide(dst, from, to, p)
	case Dissolve:
		composeDissolve(dst, from, to, seed, p)
	case Zoom:
		composeZoom(dst, from, to, p)
	}
}

func clamp01(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// composeFade linearly blends the two surfaces. The blend weight is scaled
// to 0..256 so the endpoints reproduce the inputs byte-exactly.
func composeFade(dst, from, to *image.RGBA, p float64) {
	w := int(p * 256)
	if w <= 0 {
		copy(dst.Pix, from.Pix)
		return
	}
	if w >= 256 {
		copy(dst.Pix, to.Pix)
		return
	}
	inv := 256 - w
	for i := range dst.Pix {
		dst.Pix[i] = uint8((int(from.Pix[i])*inv + int(to.Pix[i])*w) >> 8)
	}
}

// composeSlide pushes the outgoing surface off the left edge while the
// incoming surface follows from the right. Both move by the same offset so
// the seam never gaps.
func composeSlide(dst, from, to *image.RGBA, p float64) {
	b := dst.Bounds()
	width := b.Dx()
	off := int(math.Round(float64(width) * p))

	copyShifted(dst, from, -off)
	copyShifted(dst, to, width-off)
}

// copyShifted copies src into dst displaced horizontally by dx, clipping to
// the destination bounds.
func copyShifted(dst, src *image.RGBA, dx int) {
	b := dst.Bounds()
	target := image.Rect(b.Min.X+dx, b.Min.Y, b.Max.X+dx, b.Max.Y).Intersect(b)
	if target.Empty() {
		return
	}
	srcX := target.Min.X - dx
	rowLen := target.Dx() * 4
	for y := target.Min.Y; y < target.Max.Y; y++ {
		di := dst.PixOffset(target.Min.X, y)
		si := src.PixOffset(srcX, y)
		copy(dst.Pix[di:di+rowLen], src.Pix[si:si+rowLen])
	}
}

// composeDissolve reveals the incoming surface cell by cell. Each cell gets
// a pseudo-random threshold derived from the seed and its index; a cell
// shows the incoming surface once progress passes its threshold. Thresholds
// live in [0, 1), so progress 0 reveals nothing and progress 1 everything.
func composeDissolve(dst, from, to *image.RGBA, seed int64, p float64) {
	copy(dst.Pix, from.Pix)
	if p <= 0 {
		return
	}

	b := dst.Bounds()
	cols := (b.Dx() + dissolveCell - 1) / dissolveCell
	rows := (b.Dy() + dissolveCell - 1) / dissolveCell

	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			if cellThreshold(seed, cy*cols+cx) >= p {
				continue
			}
			cell := image.Rect(
				b.Min.X+cx*dissolveCell,
				b.Min.Y+cy*dissolveCell,
				b.Min.X+(cx+1)*dissolveCell,
				b.Min.Y+(cy+1)*dissolveCell,
			).Intersect(b)
			rowLen := cell.Dx() * 4
			for y := cell.Min.Y; y < cell.Max.Y; y++ {
				o := dst.PixOffset(cell.Min.X, y)
				copy(dst.Pix[o:o+rowLen], to.Pix[o:o+rowLen])
			}
		}
	}
}

// cellThreshold hashes (seed, index) into [0, 1) with a splitmix64 round.
func cellThreshold(seed int64, index int) float64 {
	x := uint64(seed) + uint64(index)*0x9e3779b97f4a7c15
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return float64(x>>11) / float64(1<<53)
}

// composeZoom grows the incoming surface from zoomStart to full size while
// cross-fading it over the outgoing one. The crossfade carries the endpoint
// guarantees; the scale is purely cosmetic.
func composeZoom(dst, from, to *image.RGBA, p float64) {
	if p <= 0 {
		copy(dst.Pix, from.Pix)
		return
	}
	if p >= 1 {
		copy(dst.Pix, to.Pix)
		return
	}

	b := dst.Bounds()
	scale := zoomStart + (1-zoomStart)*p
	sw := int(float64(b.Dx()) * scale)
	sh := int(float64(b.Dy()) * scale)
	if sw < 1 {
		sw = 1
	}
	if sh < 1 {
		sh = 1
	}

	// Scale the incoming frame onto a copy of the outgoing one, centered,
	// then blend the staged result over the outgoing frame.
	staged := image.NewRGBA(b)
	copy(staged.Pix, from.Pix)
	x0 := b.Min.X + (b.Dx()-sw)/2
	y0 := b.Min.Y + (b.Dy()-sh)/2
	target := image.Rect(x0, y0, x0+sw, y0+sh)
	xdraw.ApproxBiLinear.Scale(staged, target, to, to.Bounds(), xdraw.Src, nil)

	composeFade(dst, from, staged, p)
}
