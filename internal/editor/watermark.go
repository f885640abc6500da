package editor

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"unicode/utf8"
)

// Position is a watermark placement preset.
type Position string

const (
	PositionCenter       Position = "center"
	PositionTopLeft      Position = "top-left"
	PositionTopCenter    Position = "top-center"
	PositionTopRight     Position = "top-right"
	PositionBottomLeft   Position = "bottom-left"
	PositionBottomCenter Position = "bottom-center"
	PositionBottomRight  Position = "bottom-right"
	PositionCustom       Position = "custom"
)

// ParsePosition accepts the preset names used in form fields.
func ParsePosition(s string) (Position, error) {
	switch p := Position(s); p {
	case PositionCenter, PositionTopLeft, PositionTopCenter, PositionTopRight,
		PositionBottomLeft, PositionBottomCenter, PositionBottomRight, PositionCustom:
		return p, nil
	case "":
		return PositionCenter, nil
	}
	return "", fmt.Errorf("%w: unknown position %q", ErrInvalidGeometry, s)
}

// Style describes what is stamped. Exactly one of Text or an image size is used.
type Style struct {
	Text     string
	FontSize float64 // points
	Color    string  // #rrggbb
	Opacity  float64 // 0..1

	// Intrinsic image size in pixels; both > 0 marks an image watermark.
	ImageWidth  float64
	ImageHeight float64
}

func (s Style) IsImage() bool { return s.ImageWidth > 0 && s.ImageHeight > 0 }

// Placement is the watermark state in preview pixels (center) plus rotation and scale.
type Placement struct {
	Center   Point    `json:"center"`
	Rotation float64  `json:"rotation"`
	Scale    float64  `json:"scale"`
	Position Position `json:"position"`
}

// WatermarkOptions tunes the watermark editor.
type WatermarkOptions struct {
	MinScale           float64
	FitRatio           float64 // max share of the page the watermark may cover per axis
	HandleRadius       float64
	RotateHandleOffset float64
	RotateSensitivity  float64 // degrees per horizontal pixel
	RotateMaxStep      float64 // degrees per move event
	CharWidthFactor    float64 // average glyph width as a share of font size
	ImageBaseFit       float64 // share of the page an image fills at scale 1
	Margin             float64 // preset inset as a share of the canvas
}

func (o WatermarkOptions) withDefaults() WatermarkOptions {
	if o.MinScale <= 0 {
		o.MinScale = 0.1
	}
	if o.FitRatio <= 0 {
		o.FitRatio = 0.95
	}
	if o.HandleRadius <= 0 {
		o.HandleRadius = 8
	}
	if o.RotateHandleOffset <= 0 {
		o.RotateHandleOffset = 24
	}
	if o.RotateSensitivity == 0 {
		o.RotateSensitivity = -0.15
	}
	if o.RotateMaxStep <= 0 {
		o.RotateMaxStep = 3
	}
	if o.CharWidthFactor <= 0 {
		o.CharWidthFactor = 0.6
	}
	if o.ImageBaseFit <= 0 {
		o.ImageBaseFit = 0.5
	}
	if o.Margin < 0 {
		o.Margin = 0
	} else if o.Margin == 0 {
		o.Margin = 0.05
	}
	return o
}

// WatermarkEditor tracks a single movable, scalable, rotatable watermark.
type WatermarkEditor struct {
	tf    Transform
	opts  WatermarkOptions
	style Style
	pl    Placement

	mode        Mode
	offset      Point   // moving: pointer minus center
	initialDist float64 // scaling
	initialScl  float64
	lastX       float64 // rotating
}

// NewWatermarkEditor centers the watermark at scale 1 (or the max scale, if smaller).
func NewWatermarkEditor(tf Transform, style Style, opts WatermarkOptions) (*WatermarkEditor, error) {
	if style.IsImage() == (style.Text != "") {
		return nil, fmt.Errorf("%w: watermark needs either text or an image size", ErrInvalidGeometry)
	}
	if !style.IsImage() && style.FontSize <= 0 {
		style.FontSize = 48
	}
	if style.Opacity <= 0 || style.Opacity > 1 {
		style.Opacity = 0.5
	}
	if style.Color == "" {
		style.Color = "#808080"
	}
	e := &WatermarkEditor{tf: tf, opts: opts.withDefaults(), style: style}
	e.pl = Placement{Rotation: 0, Scale: math.Min(1, e.MaxScale()), Position: PositionCenter}
	e.SetPreset(PositionCenter)
	return e, nil
}

func (e *WatermarkEditor) Mode() Mode           { return e.mode }
func (e *WatermarkEditor) Placement() Placement { return e.pl }
func (e *WatermarkEditor) Style() Style         { return e.style }

// baseSize is the watermark extent in document points at scale 1.
func (e *WatermarkEditor) baseSize() (w, h float64) {
	if e.style.IsImage() {
		fit := math.Min(e.tf.PageWidth/e.style.ImageWidth, e.tf.PageHeight/e.style.ImageHeight) * e.opts.ImageBaseFit
		return e.style.ImageWidth * fit, e.style.ImageHeight * fit
	}
	chars := float64(utf8.RuneCountInString(e.style.Text))
	return chars * e.style.FontSize * e.opts.CharWidthFactor, e.style.FontSize * 1.2
}

// MaxScale keeps the unrotated watermark within FitRatio of the page on both axes.
func (e *WatermarkEditor) MaxScale() float64 {
	w, h := e.baseSize()
	m := math.Min(e.opts.FitRatio*e.tf.PageWidth/w, e.opts.FitRatio*e.tf.PageHeight/h)
	return math.Max(m, e.opts.MinScale)
}

// halfExtents is half the scaled, unrotated size in preview pixels.
func (e *WatermarkEditor) halfExtents() (hw, hh float64) {
	w, h := e.baseSize()
	k := e.pl.Scale / e.tf.Scale() / 2
	return w * k, h * k
}

// toScreen rotates a local offset by the watermark rotation (counter-clockwise
// on the page, so clockwise-negative in y-down preview space).
func (e *WatermarkEditor) toScreen(local Point) Point {
	rad := e.pl.Rotation * math.Pi / 180
	sin, cos := math.Sincos(rad)
	return Point{
		X: e.pl.Center.X + local.X*cos + local.Y*sin,
		Y: e.pl.Center.Y - local.X*sin + local.Y*cos,
	}
}

func (e *WatermarkEditor) toLocal(p Point) Point {
	rad := e.pl.Rotation * math.Pi / 180
	sin, cos := math.Sincos(rad)
	dx, dy := p.X-e.pl.Center.X, p.Y-e.pl.Center.Y
	return Point{X: dx*cos - dy*sin, Y: dx*sin + dy*cos}
}

// Corners returns the four corner handles in preview pixels (nw, ne, se, sw).
func (e *WatermarkEditor) Corners() [4]Point {
	hw, hh := e.halfExtents()
	return [4]Point{
		e.toScreen(Point{-hw, -hh}), e.toScreen(Point{hw, -hh}),
		e.toScreen(Point{hw, hh}), e.toScreen(Point{-hw, hh}),
	}
}

// RotateHandle sits above the top edge, following the rotation.
func (e *WatermarkEditor) RotateHandle() Point {
	_, hh := e.halfExtents()
	return e.toScreen(Point{0, -hh - e.opts.RotateHandleOffset})
}

// Bounds is the axis-aligned box around the rotated watermark in preview pixels.
func (e *WatermarkEditor) Bounds() Rect {
	ex, ey := e.rotatedExtents()
	return Rect{X: e.pl.Center.X - ex, Y: e.pl.Center.Y - ey, Width: 2 * ex, Height: 2 * ey}
}

func (e *WatermarkEditor) rotatedExtents() (ex, ey float64) {
	hw, hh := e.halfExtents()
	sin, cos := math.Sincos(e.pl.Rotation * math.Pi / 180)
	sin, cos = math.Abs(sin), math.Abs(cos)
	return hw*cos + hh*sin, hw*sin + hh*cos
}

// keepInside clamps the center so the rotated box stays on the canvas; a box
// wider than the canvas is centered instead.
func (e *WatermarkEditor) keepInside() {
	ex, ey := e.rotatedExtents()
	w, h := e.tf.CanvasWidth, e.tf.CanvasHeight
	if 2*ex >= w {
		e.pl.Center.X = w / 2
	} else {
		e.pl.Center.X = clamp(e.pl.Center.X, ex, w-ex)
	}
	if 2*ey >= h {
		e.pl.Center.Y = h / 2
	} else {
		e.pl.Center.Y = clamp(e.pl.Center.Y, ey, h-ey)
	}
}

func near(a, b Point, r float64) bool { return math.Hypot(a.X-b.X, a.Y-b.Y) <= r }

// PointerDown picks rotate handle, then corner handles, then the body.
func (e *WatermarkEditor) PointerDown(p Point) Mode {
	switch {
	case near(p, e.RotateHandle(), e.opts.HandleRadius):
		e.mode = ModeRotating
		e.lastX = p.X
	case e.onCorner(p):
		e.mode = ModeScaling
		e.initialDist = math.Hypot(p.X-e.pl.Center.X, p.Y-e.pl.Center.Y)
		e.initialScl = e.pl.Scale
	default:
		hw, hh := e.halfExtents()
		l := e.toLocal(p)
		if math.Abs(l.X) > hw || math.Abs(l.Y) > hh {
			e.mode = ModeIdle
			return e.mode
		}
		e.mode = ModeMoving
		e.offset = Point{X: p.X - e.pl.Center.X, Y: p.Y - e.pl.Center.Y}
	}
	return e.mode
}

func (e *WatermarkEditor) onCorner(p Point) bool {
	for _, c := range e.Corners() {
		if near(p, c, e.opts.HandleRadius) {
			return true
		}
	}
	return false
}

// PointerMove updates the active gesture.
func (e *WatermarkEditor) PointerMove(p Point) {
	switch e.mode {
	case ModeMoving:
		e.pl.Center = Point{X: p.X - e.offset.X, Y: p.Y - e.offset.Y}
		e.pl.Position = PositionCustom
		e.keepInside()
	case ModeScaling:
		if e.initialDist <= 0 {
			return
		}
		d := math.Hypot(p.X-e.pl.Center.X, p.Y-e.pl.Center.Y)
		e.pl.Scale = clamp(e.initialScl*(d/e.initialDist), e.opts.MinScale, e.MaxScale())
		e.keepInside()
	case ModeRotating:
		// Horizontal movement only: a single axis is easier to control than an
		// angle around the center.
		delta := clamp((p.X-e.lastX)*e.opts.RotateSensitivity, -e.opts.RotateMaxStep, e.opts.RotateMaxStep)
		e.lastX = p.X
		e.pl.Rotation = NormalizeDegrees(e.pl.Rotation + delta)
		e.keepInside()
	}
}

// PointerUp commits the gesture.
func (e *WatermarkEditor) PointerUp(p Point) Placement {
	if e.mode != ModeIdle {
		e.PointerMove(p)
		e.mode = ModeIdle
	}
	return e.pl
}

// SetPreset moves the watermark to a preset anchor. Custom keeps the current center.
func (e *WatermarkEditor) SetPreset(pos Position) {
	ex, ey := e.rotatedExtents()
	w, h := e.tf.CanvasWidth, e.tf.CanvasHeight
	mx, my := w*e.opts.Margin, h*e.opts.Margin
	left, right, cx := mx+ex, w-mx-ex, w/2
	top, bottom, cy := my+ey, h-my-ey, h/2
	switch pos {
	case PositionTopLeft:
		e.pl.Center = Point{left, top}
	case PositionTopCenter:
		e.pl.Center = Point{cx, top}
	case PositionTopRight:
		e.pl.Center = Point{right, top}
	case PositionBottomLeft:
		e.pl.Center = Point{left, bottom}
	case PositionBottomCenter:
		e.pl.Center = Point{cx, bottom}
	case PositionBottomRight:
		e.pl.Center = Point{right, bottom}
	case PositionCenter:
		e.pl.Center = Point{cx, cy}
	}
	e.pl.Position = pos
	e.keepInside()
}

// MoveTo places the watermark center at c, kept inside the canvas.
func (e *WatermarkEditor) MoveTo(c Point) {
	e.pl.Center = c
	e.pl.Position = PositionCustom
	e.keepInside()
}

// SetRotation sets an absolute rotation, normalized to [0, 360).
func (e *WatermarkEditor) SetRotation(deg float64) {
	e.pl.Rotation = NormalizeDegrees(deg)
	e.keepInside()
}

// SetScale sets an absolute scale, clamped to [MinScale, MaxScale].
func (e *WatermarkEditor) SetScale(s float64) {
	e.pl.Scale = clamp(s, e.opts.MinScale, e.MaxScale())
	e.keepInside()
}

// DocumentAnchor is the watermark center in document points.
func (e *WatermarkEditor) DocumentAnchor() Point { return e.tf.ToDocumentPoint(e.pl.Center) }

// Params are the watermark form fields; pages is "all" or a selection like "1-3,5".
func (e *WatermarkEditor) Params(pages string) url.Values {
	a := e.DocumentAnchor()
	v := url.Values{}
	v.Set("x", formatPoints(a.X))
	v.Set("y", formatPoints(a.Y))
	v.Set("rotation", strconv.FormatFloat(e.pl.Rotation, 'f', 2, 64))
	v.Set("scale", strconv.FormatFloat(e.pl.Scale, 'f', 3, 64))
	v.Set("color", e.style.Color)
	v.Set("opacity", strconv.FormatFloat(e.style.Opacity, 'f', 2, 64))
	v.Set("position", string(e.pl.Position))
	if pages == "" {
		pages = "all"
	}
	v.Set("pages", pages)
	if e.style.IsImage() {
		v.Set("watermark_type", "image")
	} else {
		v.Set("watermark_type", "text")
		v.Set("text", e.style.Text)
		v.Set("font_size", strconv.FormatFloat(e.style.FontSize, 'f', 1, 64))
	}
	return v
}

// NormalizeDegrees maps any angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	r := math.Mod(deg, 360)
	if r < 0 {
		r += 360
	}
	if r >= 360 {
		r = 0
	}
	return r
}
