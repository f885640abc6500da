// Package editor holds the pointer-driven crop and watermark editors.
//
// Editors work in preview pixel space (origin top-left, y down) and report
// document-point values (origin bottom-left, y up) for submission. Nothing in
// this package touches rendering; callers feed pointer events and read state.
package editor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Point is a position in either pixel or document space; the owner decides which.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle. In pixel space (X, Y) is the top-left
// corner; in document space it is the bottom-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

var ErrInvalidGeometry = errors.New("invalid editor geometry")

// Transform maps between a rendered preview and the page it shows.
type Transform struct {
	CanvasWidth  float64
	CanvasHeight float64
	PageWidth    float64
	PageHeight   float64
}

// NewTransform validates the preview and page sizes.
func NewTransform(canvasWidth, canvasHeight, pageWidth, pageHeight float64) (Transform, error) {
	for _, v := range []float64{canvasWidth, canvasHeight, pageWidth, pageHeight} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Transform{}, fmt.Errorf("%w: canvas %.1fx%.1f page %.1fx%.1f",
				ErrInvalidGeometry, canvasWidth, canvasHeight, pageWidth, pageHeight)
		}
	}
	return Transform{
		CanvasWidth:  canvasWidth,
		CanvasHeight: canvasHeight,
		PageWidth:    pageWidth,
		PageHeight:   pageHeight,
	}, nil
}

// Scale is document points per preview pixel.
func (t Transform) Scale() float64 { return t.PageWidth / t.CanvasWidth }

func (t Transform) Canvas() Rect { return Rect{Width: t.CanvasWidth, Height: t.CanvasHeight} }

func (t Transform) ToDocumentPoint(p Point) Point {
	s := t.Scale()
	return Point{X: p.X * s, Y: (t.CanvasHeight - p.Y) * s}
}

func (t Transform) FromDocumentPoint(p Point) Point {
	s := t.Scale()
	return Point{X: p.X / s, Y: t.CanvasHeight - p.Y/s}
}

func (t Transform) ToDocumentRect(r Rect) Rect {
	s := t.Scale()
	return Rect{
		X:      r.X * s,
		Y:      (t.CanvasHeight - r.Y - r.Height) * s,
		Width:  r.Width * s,
		Height: r.Height * s,
	}
}

func (t Transform) FromDocumentRect(r Rect) Rect {
	s := t.Scale()
	h := r.Height / s
	return Rect{
		X:      r.X / s,
		Y:      t.CanvasHeight - r.Y/s - h,
		Width:  r.Width / s,
		Height: h,
	}
}

// Mode is the active pointer gesture.
type Mode int

const (
	ModeIdle Mode = iota
	ModeCreating
	ModeMoving
	ModeResizing
	ModeScaling
	ModeRotating
)

func (m Mode) String() string {
	switch m {
	case ModeCreating:
		return "creating"
	case ModeMoving:
		return "moving"
	case ModeResizing:
		return "resizing"
	case ModeScaling:
		return "scaling"
	case ModeRotating:
		return "rotating"
	default:
		return "idle"
	}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func clampPoint(p Point, bounds Rect) Point {
	return Point{X: clamp(p.X, bounds.X, bounds.Right()), Y: clamp(p.Y, bounds.Y, bounds.Bottom())}
}

// formatPoints renders a document-point value for a form field.
func formatPoints(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
