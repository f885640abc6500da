package editor

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
)

// Handle identifies one of the eight crop resize handles.
type Handle int

const (
	HandleNone Handle = iota
	HandleNW
	HandleN
	HandleNE
	HandleE
	HandleSE
	HandleS
	HandleSW
	HandleW
)

var handleNames = map[Handle]string{
	HandleNW: "nw", HandleN: "n", HandleNE: "ne", HandleE: "e",
	HandleSE: "se", HandleS: "s", HandleSW: "sw", HandleW: "w",
}

func (h Handle) String() string {
	if n, ok := handleNames[h]; ok {
		return n
	}
	return "none"
}

func (h Handle) west() bool  { return h == HandleNW || h == HandleW || h == HandleSW }
func (h Handle) east() bool  { return h == HandleNE || h == HandleE || h == HandleSE }
func (h Handle) north() bool { return h == HandleNW || h == HandleN || h == HandleNE }
func (h Handle) south() bool { return h == HandleSW || h == HandleS || h == HandleSE }

// CropOptions tunes the crop editor.
type CropOptions struct {
	MinSize      float64 // pixels, both dimensions
	HandleRadius float64 // pixels
}

func (o CropOptions) withDefaults() CropOptions {
	if o.MinSize <= 0 {
		o.MinSize = 10
	}
	if o.HandleRadius <= 0 {
		o.HandleRadius = 6
	}
	return o
}

// CropEditor tracks one crop rectangle over a rendered page.
//
// Invariant: after every call the rectangle lies inside the canvas and,
// outside of a create gesture, is at least MinSize in both dimensions.
type CropEditor struct {
	tf   Transform
	opts CropOptions

	rect      Rect
	selection bool // false while the rectangle is the whole-page default

	mode   Mode
	handle Handle
	start  Point // creating: anchor; moving: pointer offset from origin
	anchor Point // resizing: fixed opposite corner/edge
}

// NewCropEditor starts with the whole-page default rectangle.
func NewCropEditor(tf Transform, opts CropOptions) *CropEditor {
	opts = opts.withDefaults()
	opts.MinSize = math.Min(opts.MinSize, math.Min(tf.CanvasWidth, tf.CanvasHeight))
	return &CropEditor{tf: tf, opts: opts, rect: tf.Canvas()}
}

func (e *CropEditor) Transform() Transform { return e.tf }
func (e *CropEditor) Mode() Mode           { return e.mode }
func (e *CropEditor) Rect() Rect           { return e.rect }
func (e *CropEditor) HasSelection() bool   { return e.selection }

// DocumentRect is the current rectangle in document points.
func (e *CropEditor) DocumentRect() Rect { return e.tf.ToDocumentRect(e.rect) }

// Reset restores the whole-page default.
func (e *CropEditor) Reset() {
	e.rect = e.tf.Canvas()
	e.selection = false
	e.mode = ModeIdle
	e.handle = HandleNone
}

// SetDocumentRect places the rectangle from document-point input, clamped to the page.
func (e *CropEditor) SetDocumentRect(r Rect) error {
	px := e.tf.FromDocumentRect(r)
	if px.Width < e.opts.MinSize || px.Height < e.opts.MinSize {
		return fmt.Errorf("%w: crop %.1fx%.1f px below minimum %.0f px",
			ErrInvalidGeometry, px.Width, px.Height, e.opts.MinSize)
	}
	px.Width = math.Min(px.Width, e.tf.CanvasWidth)
	px.Height = math.Min(px.Height, e.tf.CanvasHeight)
	px.X = clamp(px.X, 0, e.tf.CanvasWidth-px.Width)
	px.Y = clamp(px.Y, 0, e.tf.CanvasHeight-px.Height)
	e.rect = px
	e.selection = true
	e.mode = ModeIdle
	return nil
}

// HandleAt returns the resize handle under p, if any.
func (e *CropEditor) HandleAt(p Point) Handle {
	if !e.selection {
		return HandleNone
	}
	r := e.rect
	cx, cy := r.X+r.Width/2, r.Y+r.Height/2
	points := []struct {
		h Handle
		p Point
	}{
		{HandleNW, Point{r.X, r.Y}}, {HandleNE, Point{r.Right(), r.Y}},
		{HandleSE, Point{r.Right(), r.Bottom()}}, {HandleSW, Point{r.X, r.Bottom()}},
		{HandleN, Point{cx, r.Y}}, {HandleE, Point{r.Right(), cy}},
		{HandleS, Point{cx, r.Bottom()}}, {HandleW, Point{r.X, cy}},
	}
	for _, hp := range points {
		if math.Abs(p.X-hp.p.X) <= e.opts.HandleRadius && math.Abs(p.Y-hp.p.Y) <= e.opts.HandleRadius {
			return hp.h
		}
	}
	return HandleNone
}

// PointerDown enters a gesture based on what is under the pointer.
func (e *CropEditor) PointerDown(p Point) Mode {
	p = clampPoint(p, e.tf.Canvas())
	if h := e.HandleAt(p); h != HandleNone {
		e.mode = ModeResizing
		e.handle = h
		r := e.rect
		e.anchor = Point{X: r.X, Y: r.Y}
		if h.west() {
			e.anchor.X = r.Right()
		}
		if h.north() {
			e.anchor.Y = r.Bottom()
		}
		return e.mode
	}
	if e.selection && e.rect.Contains(p) {
		e.mode = ModeMoving
		e.start = Point{X: p.X - e.rect.X, Y: p.Y - e.rect.Y}
		return e.mode
	}
	e.mode = ModeCreating
	e.start = p
	e.rect = Rect{X: p.X, Y: p.Y}
	e.selection = true
	return e.mode
}

// PointerMove updates the active gesture. Idle moves are ignored.
func (e *CropEditor) PointerMove(p Point) {
	canvas := e.tf.Canvas()
	switch e.mode {
	case ModeCreating:
		p = clampPoint(p, canvas)
		e.rect = Rect{
			X:      math.Min(e.start.X, p.X),
			Y:      math.Min(e.start.Y, p.Y),
			Width:  math.Abs(p.X - e.start.X),
			Height: math.Abs(p.Y - e.start.Y),
		}
	case ModeMoving:
		e.rect.X = clamp(p.X-e.start.X, 0, e.tf.CanvasWidth-e.rect.Width)
		e.rect.Y = clamp(p.Y-e.start.Y, 0, e.tf.CanvasHeight-e.rect.Height)
	case ModeResizing:
		e.resize(p)
	}
}

func (e *CropEditor) resize(p Point) {
	minSize := e.opts.MinSize
	h := e.handle
	switch {
	case h.west():
		left := clamp(p.X, 0, e.anchor.X-minSize)
		e.rect.X, e.rect.Width = left, e.anchor.X-left
	case h.east():
		right := clamp(p.X, e.anchor.X+minSize, e.tf.CanvasWidth)
		e.rect.X, e.rect.Width = e.anchor.X, right-e.anchor.X
	}
	switch {
	case h.north():
		top := clamp(p.Y, 0, e.anchor.Y-minSize)
		e.rect.Y, e.rect.Height = top, e.anchor.Y-top
	case h.south():
		bottom := clamp(p.Y, e.anchor.Y+minSize, e.tf.CanvasHeight)
		e.rect.Y, e.rect.Height = e.anchor.Y, bottom-e.anchor.Y
	}
}

// PointerUp commits the gesture. An undersized new rectangle reverts to the
// whole-page default.
func (e *CropEditor) PointerUp(p Point) Rect {
	if e.mode == ModeIdle {
		return e.rect
	}
	e.PointerMove(p)
	if e.mode == ModeCreating && (e.rect.Width < e.opts.MinSize || e.rect.Height < e.opts.MinSize) {
		e.Reset()
		return e.rect
	}
	e.mode = ModeIdle
	e.handle = HandleNone
	return e.rect
}

// Params are the crop form fields. page is 0-based; applyAll crops every page.
func (e *CropEditor) Params(page int, applyAll bool) url.Values {
	d := e.DocumentRect()
	v := url.Values{}
	v.Set("x", formatPoints(d.X))
	v.Set("y", formatPoints(d.Y))
	v.Set("width", formatPoints(d.Width))
	v.Set("height", formatPoints(d.Height))
	v.Set("page", strconv.Itoa(page))
	if applyAll {
		v.Set("apply_to", "all")
	} else {
		v.Set("apply_to", "current")
	}
	return v
}
