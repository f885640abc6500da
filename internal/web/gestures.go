package web

import (
    "net/http"

    "github.com/local/convertdesk/internal/editor"
    "github.com/local/convertdesk/internal/tasks"
)

type canvasRequest struct {
    Width  float64 `json:"width"`
    Height float64 `json:"height"`
    Page   int     `json:"page"`
}

type pointerRequest struct {
    Type string  `json:"type"` // down, move, up
    X    float64 `json:"x"`
    Y    float64 `json:"y"`
}

type watermarkRequest struct {
    Text     string   `json:"text"`
    FontSize float64  `json:"font_size"`
    Color    string   `json:"color"`
    Opacity  float64  `json:"opacity"`
    Position string   `json:"position"`
    Image    bool     `json:"image"`
    Rotation *float64 `json:"rotation"`
    Scale    *float64 `json:"scale"`
}

type cropView struct {
    Mode      string      `json:"mode"`
    Selection bool        `json:"selection"`
    Rect      editor.Rect `json:"rect"`
    Document  editor.Rect `json:"document"`
}

type watermarkView struct {
    Mode         string           `json:"mode"`
    Placement    editor.Placement `json:"placement"`
    Corners      [4]editor.Point  `json:"corners"`
    RotateHandle editor.Point     `json:"rotate_handle"`
    MaxScale     float64          `json:"max_scale"`
    Anchor       editor.Point     `json:"anchor"`
}

// editorStateLocked is the gesture state of whichever editor the tool uses.
func (s *Session) editorStateLocked() map[string]any {
    out := map[string]any{"page": s.page}
    if s.crop != nil {
        out["crop"] = cropView{
            Mode:      s.crop.Mode().String(),
            Selection: s.crop.HasSelection(),
            Rect:      s.crop.Rect(),
            Document:  s.crop.DocumentRect(),
        }
    }
    if s.watermark != nil {
        out["watermark"] = watermarkView{
            Mode:         s.watermark.Mode().String(),
            Placement:    s.watermark.Placement(),
            Corners:      s.watermark.Corners(),
            RotateHandle: s.watermark.RotateHandle(),
            MaxScale:     s.watermark.MaxScale(),
            Anchor:       s.watermark.DocumentAnchor(),
        }
    }
    return out
}

func (w *Web) watermarkOptions() editor.WatermarkOptions {
    return editor.WatermarkOptions{
        RotateSensitivity: w.deps.Config.Editor.RotateSensitivity,
        RotateMaxStep:     w.deps.Config.Editor.RotateClamp,
    }
}

// handleCanvas binds the editors to the displayed size of a page. It is sent
// on load and whenever the preview is resized; gestures in flight are reset
// but a committed selection on the same page is kept.
func (w *Web) handleCanvas(wr http.ResponseWriter, r *http.Request, s *Session) {
    var req canvasRequest
    if err := decodeJSON(wr, r, &req); err != nil {
        writeError(wr, err)
        return
    }
    if s.surface == nil {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "this tool has no preview document"})
        return
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    size, err := s.surface.PageSize(req.Page)
    if err != nil {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "no such page", Err: err})
        return
    }
    tf, err := editor.NewTransform(req.Width, req.Height, size.Width, size.Height)
    if err != nil {
        writeError(wr, err)
        return
    }
    samePage := s.page == req.Page
    s.tf = &tf
    s.page = req.Page
    switch s.Tool.Name {
    case "crop":
        prev := s.crop
        s.crop = editor.NewCropEditor(tf, editor.CropOptions{MinSize: w.deps.Config.Editor.MinCropPx})
        if prev != nil && prev.HasSelection() && samePage {
            if err := s.crop.SetDocumentRect(prev.DocumentRect()); err != nil {
                s.log.Debug().Err(err).Msg("crop selection dropped on resize")
            }
        }
    case "watermark":
        if s.style != nil {
            prev := s.watermark
            if s.watermark, err = editor.NewWatermarkEditor(tf, *s.style, w.watermarkOptions()); err != nil {
                writeError(wr, err)
                return
            }
            if prev != nil {
                pl := prev.Placement()
                s.watermark.SetRotation(pl.Rotation)
                s.watermark.SetScale(pl.Scale)
                if pl.Position == editor.PositionCustom {
                    s.watermark.MoveTo(tf.FromDocumentPoint(prev.DocumentAnchor()))
                } else {
                    s.watermark.SetPreset(pl.Position)
                }
            }
        }
    }
    writeJSON(wr, http.StatusOK, s.editorStateLocked())
}

func (w *Web) handlePointer(wr http.ResponseWriter, r *http.Request, s *Session) {
    var req pointerRequest
    if err := decodeJSON(wr, r, &req); err != nil {
        writeError(wr, err)
        return
    }
    s.mu.Lock()
    defer s.mu.Unlock()

    p := editor.Point{X: req.X, Y: req.Y}
    type gestures interface {
        down(editor.Point)
        move(editor.Point)
        up(editor.Point)
    }
    var g gestures
    switch {
    case s.crop != nil:
        g = cropGestures{s.crop}
    case s.watermark != nil:
        g = watermarkGestures{s.watermark}
    default:
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "the editor is not ready yet"})
        return
    }
    switch req.Type {
    case "down":
        g.down(p)
    case "move":
        g.move(p)
    case "up":
        g.up(p)
    default:
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "unknown pointer event " + req.Type})
        return
    }
    writeJSON(wr, http.StatusOK, s.editorStateLocked())
}

type cropGestures struct{ e *editor.CropEditor }

func (g cropGestures) down(p editor.Point) { g.e.PointerDown(p) }
func (g cropGestures) move(p editor.Point) { g.e.PointerMove(p) }
func (g cropGestures) up(p editor.Point)   { g.e.PointerUp(p) }

type watermarkGestures struct{ e *editor.WatermarkEditor }

func (g watermarkGestures) down(p editor.Point) { g.e.PointerDown(p) }
func (g watermarkGestures) move(p editor.Point) { g.e.PointerMove(p) }
func (g watermarkGestures) up(p editor.Point)   { g.e.PointerUp(p) }

// handleWatermark sets the watermark style and, optionally, an absolute
// placement. Text wins over an uploaded image unless image is set.
func (w *Web) handleWatermark(wr http.ResponseWriter, r *http.Request, s *Session) {
    var req watermarkRequest
    if err := decodeJSON(wr, r, &req); err != nil {
        writeError(wr, err)
        return
    }
    if s.Tool.Name != "watermark" {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "this tool has no watermark"})
        return
    }
    pos, err := editor.ParsePosition(req.Position)
    if err != nil {
        writeError(wr, err)
        return
    }

    s.mu.Lock()
    defer s.mu.Unlock()
    style := editor.Style{Text: req.Text, FontSize: req.FontSize, Color: req.Color, Opacity: req.Opacity}
    if req.Image || req.Text == "" {
        if s.mark == nil {
            writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "enter watermark text or upload an image"})
            return
        }
        iw, ih, err := imageSize(s.mark.data)
        if err != nil {
            writeError(wr, err)
            return
        }
        style.Text, style.ImageWidth, style.ImageHeight = "", iw, ih
    }
    if s.tf == nil {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "the editor is not ready yet"})
        return
    }
    prev := s.watermark
    wm, err := editor.NewWatermarkEditor(*s.tf, style, w.watermarkOptions())
    if err != nil {
        writeError(wr, err)
        return
    }
    if prev != nil {
        wm.SetRotation(prev.Placement().Rotation)
        wm.SetScale(prev.Placement().Scale)
    }
    if req.Rotation != nil {
        wm.SetRotation(*req.Rotation)
    }
    if req.Scale != nil {
        wm.SetScale(*req.Scale)
    }
    if pos == editor.PositionCustom && prev != nil {
        wm.MoveTo(prev.Placement().Center)
    } else {
        wm.SetPreset(pos)
    }
    s.style, s.watermark = &style, wm
    writeJSON(wr, http.StatusOK, s.editorStateLocked())
}
