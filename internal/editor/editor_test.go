package editor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-9

// A4 portrait previewed at 400px wide.
func a4(t *testing.T) Transform {
	t.Helper()
	tf, err := NewTransform(400, 400*842.0/595.0, 595, 842)
	require.NoError(t, err)
	return tf
}

func TestNewTransformRejectsDegenerateSizes(t *testing.T) {
	_, err := NewTransform(0, 100, 595, 842)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	_, err = NewTransform(100, 100, math.NaN(), 842)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestTransformPointFlipsY(t *testing.T) {
	tf := a4(t)
	d := tf.ToDocumentPoint(Point{X: 0, Y: 0})
	assert.InDelta(t, 0, d.X, tol)
	assert.InDelta(t, 842, d.Y, 1e-6, "top-left of the preview is the top of the page")

	d = tf.ToDocumentPoint(Point{X: 400, Y: tf.CanvasHeight})
	assert.InDelta(t, 595, d.X, tol)
	assert.InDelta(t, 0, d.Y, tol)
}

func TestTransformRectRoundTrip(t *testing.T) {
	tf := a4(t)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		doc := Rect{
			X:      rng.Float64() * 500,
			Y:      rng.Float64() * 700,
			Width:  rng.Float64() * 95,
			Height: rng.Float64() * 142,
		}
		back := tf.ToDocumentRect(tf.FromDocumentRect(doc))
		assert.InDelta(t, doc.X, back.X, 1e-6)
		assert.InDelta(t, doc.Y, back.Y, 1e-6)
		assert.InDelta(t, doc.Width, back.Width, 1e-6)
		assert.InDelta(t, doc.Height, back.Height, 1e-6)

		p := Point{X: doc.X, Y: doc.Y}
		pb := tf.ToDocumentPoint(tf.FromDocumentPoint(p))
		assert.InDelta(t, p.X, pb.X, 1e-6)
		assert.InDelta(t, p.Y, pb.Y, 1e-6)
	}
}

func TestTransformRectBottomEdge(t *testing.T) {
	tf, err := NewTransform(200, 100, 400, 200)
	require.NoError(t, err)
	d := tf.ToDocumentRect(Rect{X: 10, Y: 20, Width: 30, Height: 40})
	assert.Equal(t, Rect{X: 20, Y: 80, Width: 60, Height: 80}, d)
}

func TestCropCreateCommitsAndReportsDocumentRect(t *testing.T) {
	tf, err := NewTransform(200, 100, 400, 200)
	require.NoError(t, err)
	e := NewCropEditor(tf, CropOptions{})

	assert.Equal(t, ModeCreating, e.PointerDown(Point{X: 50, Y: 20}))
	e.PointerMove(Point{X: 80, Y: 60})
	r := e.PointerUp(Point{X: 10, Y: 70})

	assert.Equal(t, Rect{X: 10, Y: 20, Width: 40, Height: 50}, r)
	assert.Equal(t, ModeIdle, e.Mode())
	assert.True(t, e.HasSelection())

	params := e.Params(2, false)
	assert.Equal(t, "20.00", params.Get("x"))
	assert.Equal(t, "60.00", params.Get("y"))
	assert.Equal(t, "80.00", params.Get("width"))
	assert.Equal(t, "100.00", params.Get("height"))
	assert.Equal(t, "2", params.Get("page"))
	assert.Equal(t, "current", params.Get("apply_to"))
}

func TestCropUndersizedCreateRevertsToFullPage(t *testing.T) {
	tf := a4(t)
	tests := []struct {
		name string
		to   Point
	}{
		{name: "click without drag", to: Point{X: 100, Y: 100}},
		{name: "too narrow", to: Point{X: 105, Y: 200}},
		{name: "too short", to: Point{X: 200, Y: 109}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewCropEditor(tf, CropOptions{MinSize: 10})
			e.PointerDown(Point{X: 100, Y: 100})
			r := e.PointerUp(tt.to)
			assert.Equal(t, tf.Canvas(), r)
			assert.False(t, e.HasSelection())
			assert.Greater(t, r.Width, 0.0)
			assert.Greater(t, r.Height, 0.0)
		})
	}
}

func TestCropMoveIsClamped(t *testing.T) {
	tf, _ := NewTransform(200, 100, 200, 100)
	e := NewCropEditor(tf, CropOptions{})
	require.NoError(t, e.SetDocumentRect(Rect{X: 20, Y: 20, Width: 50, Height: 40}))
	// pixel rect: x=20, y=100-20-40=40
	assert.Equal(t, Rect{X: 20, Y: 40, Width: 50, Height: 40}, e.Rect())

	assert.Equal(t, ModeMoving, e.PointerDown(Point{X: 40, Y: 60}))
	e.PointerMove(Point{X: 1000, Y: -1000})
	r := e.PointerUp(Point{X: 1000, Y: -1000})
	assert.Equal(t, Rect{X: 150, Y: 0, Width: 50, Height: 40}, r)
}

func TestCropResizeEnforcesMinimum(t *testing.T) {
	tf, _ := NewTransform(200, 100, 200, 100)
	e := NewCropEditor(tf, CropOptions{MinSize: 10})
	e.PointerDown(Point{X: 50, Y: 20})
	e.PointerUp(Point{X: 150, Y: 80})

	// drag the south-east corner past the north-west one
	assert.Equal(t, ModeResizing, e.PointerDown(Point{X: 150, Y: 80}))
	r := e.PointerUp(Point{X: 0, Y: 0})
	assert.Equal(t, Rect{X: 50, Y: 20, Width: 10, Height: 10}, r)

	// west edge only changes x and width
	require.NoError(t, e.SetDocumentRect(Rect{X: 50, Y: 20, Width: 100, Height: 60}))
	assert.Equal(t, ModeResizing, e.PointerDown(Point{X: 50, Y: 50}))
	r = e.PointerUp(Point{X: -30, Y: 90})
	assert.Equal(t, Rect{X: 0, Y: 20, Width: 150, Height: 60}, r)
}

func TestCropContainmentUnderRandomGestures(t *testing.T) {
	tf := a4(t)
	e := NewCropEditor(tf, CropOptions{})
	rng := rand.New(rand.NewSource(42))
	pt := func() Point {
		return Point{X: rng.Float64()*600 - 100, Y: rng.Float64()*800 - 100}
	}
	for i := 0; i < 2000; i++ {
		e.PointerDown(pt())
		for j := 0; j < 5; j++ {
			e.PointerMove(pt())
			assertContained(t, tf, e.Rect())
		}
		r := e.PointerUp(pt())
		assertContained(t, tf, r)
		assert.GreaterOrEqual(t, r.Width, 10.0)
		assert.GreaterOrEqual(t, r.Height, 10.0)
	}
}

func assertContained(t *testing.T, tf Transform, r Rect) {
	t.Helper()
	assert.GreaterOrEqual(t, r.X, 0.0)
	assert.GreaterOrEqual(t, r.Y, 0.0)
	assert.LessOrEqual(t, r.Right(), tf.CanvasWidth+tol)
	assert.LessOrEqual(t, r.Bottom(), tf.CanvasHeight+tol)
	assert.GreaterOrEqual(t, r.Width, 0.0)
	assert.GreaterOrEqual(t, r.Height, 0.0)
}

func TestNormalizeDegrees(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0}, {360, 0}, {-1, 359}, {725, 5}, {-720, 0}, {359.5, 359.5}, {math.Inf(1), 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalizeDegrees(tt.in), tol, "in=%v", tt.in)
	}
}

func textEditor(t *testing.T) *WatermarkEditor {
	t.Helper()
	tf, err := NewTransform(400, 400*842.0/595.0, 595, 842)
	require.NoError(t, err)
	e, err := NewWatermarkEditor(tf, Style{Text: "CONFIDENTIAL", FontSize: 48, Opacity: 0.3, Color: "#ff0000"}, WatermarkOptions{})
	require.NoError(t, err)
	return e
}

func TestWatermarkRequiresTextOrImage(t *testing.T) {
	tf, _ := NewTransform(100, 100, 100, 100)
	_, err := NewWatermarkEditor(tf, Style{}, WatermarkOptions{})
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	_, err = NewWatermarkEditor(tf, Style{Text: "x", ImageWidth: 10, ImageHeight: 10}, WatermarkOptions{})
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestWatermarkMaxScaleText(t *testing.T) {
	e := textEditor(t)
	// 12 chars * 48 * 0.6 = 345.6pt wide, 57.6pt tall
	want := math.Min(0.95*595/345.6, 0.95*842/57.6)
	assert.InDelta(t, want, e.MaxScale(), tol)
}

func TestWatermarkMaxScaleImage(t *testing.T) {
	tf, _ := NewTransform(595, 842, 595, 842)
	e, err := NewWatermarkEditor(tf, Style{ImageWidth: 1000, ImageHeight: 500}, WatermarkOptions{})
	require.NoError(t, err)
	// base fit = min(0.595, 1.684)*0.5 -> 297.5 x 148.75 pt at scale 1
	assert.InDelta(t, 0.95*595/297.5, e.MaxScale(), 1e-9)
	assert.Equal(t, "image", e.Params("").Get("watermark_type"))
}

func TestWatermarkRotationRespondsToHorizontalDrag(t *testing.T) {
	e := textEditor(t)
	h := e.RotateHandle()
	require.Equal(t, ModeRotating, e.PointerDown(h))

	// 10px right at -0.15 deg/px -> -1.5 deg -> 358.5
	e.PointerMove(Point{X: h.X + 10, Y: h.Y + 500})
	assert.InDelta(t, 358.5, e.Placement().Rotation, 1e-9)

	// a large jump is clamped to 3 deg per event
	e.PointerMove(Point{X: h.X - 1000, Y: h.Y})
	assert.InDelta(t, 1.5, e.Placement().Rotation, 1e-9)
	e.PointerUp(Point{X: h.X - 1000, Y: h.Y})
	assert.Equal(t, ModeIdle, e.Mode())
}

func TestWatermarkRotationStaysNormalized(t *testing.T) {
	e := textEditor(t)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		h := e.RotateHandle()
		require.Equal(t, ModeRotating, e.PointerDown(h))
		x := h.X
		for j := 0; j < 20; j++ {
			x += rng.Float64()*80 - 40
			e.PointerMove(Point{X: x, Y: h.Y})
			r := e.Placement().Rotation
			assert.True(t, r >= 0 && r < 360, "rotation %v", r)
		}
		e.PointerUp(Point{X: x, Y: h.Y})
	}
}

func TestWatermarkScalingIsClamped(t *testing.T) {
	e := textEditor(t)
	c := e.Placement().Center
	corner := e.Corners()[2]
	require.Equal(t, ModeScaling, e.PointerDown(corner))

	e.PointerMove(Point{X: c.X + (corner.X-c.X)*100, Y: c.Y + (corner.Y-c.Y)*100})
	assert.InDelta(t, e.MaxScale(), e.Placement().Scale, tol)

	e.PointerMove(Point{X: c.X + 0.0001, Y: c.Y})
	assert.InDelta(t, 0.1, e.Placement().Scale, tol)
	e.PointerUp(Point{X: c.X + 0.0001, Y: c.Y})
}

func TestWatermarkMoveKeepsInsideAndBecomesCustom(t *testing.T) {
	e := textEditor(t)
	c := e.Placement().Center
	require.Equal(t, ModeMoving, e.PointerDown(c))
	e.PointerUp(Point{X: -5000, Y: 5000})

	b := e.Bounds()
	assert.GreaterOrEqual(t, b.X, -tol)
	assert.LessOrEqual(t, b.Bottom(), e.tf.CanvasHeight+tol)
	assert.Equal(t, PositionCustom, e.Placement().Position)
}

func TestWatermarkPointerOutsideIsIdle(t *testing.T) {
	e := textEditor(t)
	assert.Equal(t, ModeIdle, e.PointerDown(Point{X: 1, Y: 1}))
}

func TestWatermarkPresetAndParams(t *testing.T) {
	e := textEditor(t)
	e.SetPreset(PositionBottomLeft)
	b := e.Bounds()
	assert.InDelta(t, 400*0.05, b.X, 1e-6)
	assert.InDelta(t, e.tf.CanvasHeight*0.95, b.Bottom(), 1e-6)

	e.SetPreset(PositionCenter)
	v := e.Params("1-3")
	assert.Equal(t, "297.50", v.Get("x"))
	assert.Equal(t, "421.00", v.Get("y"))
	assert.Equal(t, "0.00", v.Get("rotation"))
	assert.Equal(t, "center", v.Get("position"))
	assert.Equal(t, "1-3", v.Get("pages"))
	assert.Equal(t, "CONFIDENTIAL", v.Get("text"))
	assert.Equal(t, "#ff0000", v.Get("color"))
	assert.Equal(t, "0.30", v.Get("opacity"))
}

func TestParsePosition(t *testing.T) {
	p, err := ParsePosition("")
	require.NoError(t, err)
	assert.Equal(t, PositionCenter, p)
	_, err = ParsePosition("middle")
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}
