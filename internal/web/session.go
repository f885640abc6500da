package web

import (
    "bytes"
    "context"
    "errors"
    "image"
    _ "image/png"
    "io"
    "mime/multipart"
    "net/http"
    "strconv"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog"
    "github.com/samber/lo"

    "github.com/local/convertdesk/internal/editor"
    "github.com/local/convertdesk/internal/filetype"
    "github.com/local/convertdesk/internal/metrics"
    "github.com/local/convertdesk/internal/pageset"
    "github.com/local/convertdesk/internal/preview"
    "github.com/local/convertdesk/internal/tasks"
)

// upload is a validated input file held in memory.
type upload struct {
    ref  pageset.FileRef
    data []byte
    info *filetype.FileTypeInfo
}

// Session is one editor tab: the uploaded input, its preview surface and the
// gesture state of the tool. All fields after mu are guarded by it.
type Session struct {
    ID      string
    Tool    Tool
    Created time.Time
    log     zerolog.Logger

    mu        sync.Mutex
    doc       *upload
    files     map[string]*upload
    order     *pageset.FileList
    surface   *preview.Surface
    pages     *pageset.PageSet
    page      int
    tf        *editor.Transform
    crop      *editor.CropEditor
    style     *editor.Style
    mark      *upload
    watermark *editor.WatermarkEditor
    target    string
    opID      string
}

func (s *Session) close() {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.surface != nil {
        s.surface.Close()
    }
}

type sessionView struct {
    ID         string                `json:"id"`
    Tool       string                `json:"tool"`
    Name       string                `json:"name,omitempty"`
    Generation uint64                `json:"generation"`
    Pages      int                   `json:"pages"`
    PageSizes  []preview.Size        `json:"page_sizes,omitempty"`
    Order      []pageset.Label[int]  `json:"order,omitempty"`
    Rotations  map[int]int           `json:"rotations,omitempty"`
    Files      []fileView            `json:"files,omitempty"`
    Operation  string                `json:"operation,omitempty"`
}

type fileView struct {
    ID       string `json:"id"`
    Name     string `json:"name"`
    Position int    `json:"position"`
    Label    string `json:"label"`
}

// viewLocked renders the session for the client; s.mu must be held.
func (s *Session) viewLocked() sessionView {
    v := sessionView{ID: s.ID, Tool: s.Tool.Name, Operation: s.opID}
    if s.doc != nil {
        v.Name = s.doc.ref.Name
    }
    if s.surface != nil {
        v.Generation = s.surface.Generation()
        v.Pages = s.surface.NumPages()
        for i := 0; i < v.Pages; i++ {
            if size, err := s.surface.PageSize(i); err == nil {
                v.PageSizes = append(v.PageSizes, size)
            }
        }
    }
    if s.pages != nil {
        v.Order = s.pages.Labels()
        v.Rotations = map[int]int{}
        for _, p := range s.pages.PageOrder() {
            if r := s.pages.Rotation(p); r != 0 {
                v.Rotations[p] = r
            }
        }
    }
    if s.order != nil {
        v.Pages = s.order.Len()
        v.Files = lo.Map(s.order.Labels(), func(l pageset.Label[pageset.FileRef], _ int) fileView {
            return fileView{ID: l.Item.ID, Name: l.Item.Name, Position: l.Position, Label: l.Text}
        })
    }
    return v
}

func (w *Web) withSession(next func(http.ResponseWriter, *http.Request, *Session)) http.HandlerFunc {
    return func(wr http.ResponseWriter, r *http.Request) {
        w.mu.Lock()
        s, ok := w.sessions[r.PathValue("id")]
        w.mu.Unlock()
        if !ok {
            writeError(wr, notFound("session"))
            return
        }
        next(wr, r, s)
    }
}

func (w *Web) maxUpload() int64 { return int64(w.deps.Config.Editor.MaxUploadMB) << 20 }

// readUploads validates every file part named field.
func (w *Web) readUploads(form *multipart.Form, field string, accept []filetype.Category) ([]*upload, error) {
    var out []*upload
    for _, fh := range form.File[field] {
        f, err := fh.Open()
        if err != nil {
            return nil, &tasks.Error{Kind: tasks.KindValidation, Message: "cannot read upload " + fh.Filename, Err: err}
        }
        data, err := io.ReadAll(f)
        f.Close()
        if err != nil {
            return nil, &tasks.Error{Kind: tasks.KindValidation, Message: "cannot read upload " + fh.Filename, Err: err}
        }
        info, err := filetype.Validate(data, fh.Filename, filetype.Rules{Accept: accept, MaxBytes: w.maxUpload()})
        if err != nil {
            return nil, err
        }
        out = append(out, &upload{ref: pageset.FileRef{ID: uuid.NewString(), Name: fh.Filename}, data: data, info: info})
    }
    return out, nil
}

func (w *Web) parseForm(wr http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
    r.Body = http.MaxBytesReader(wr, r.Body, w.maxUpload()*8+(1<<20))
    if err := r.ParseMultipartForm(32 << 20); err != nil {
        return nil, &tasks.Error{Kind: tasks.KindValidation, Message: "invalid multipart form", Err: err}
    }
    return r.MultipartForm, nil
}

func (w *Web) handleCreateSession(wr http.ResponseWriter, r *http.Request) {
    form, err := w.parseForm(wr, r)
    if err != nil {
        writeError(wr, err)
        return
    }
    tool, ok := LookupTool(r.FormValue("tool"))
    if !ok {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "unknown tool " + strconv.Quote(r.FormValue("tool"))})
        return
    }
    ups, err := w.readUploads(form, "file", tool.Accept)
    if err != nil {
        writeError(wr, err)
        return
    }
    if len(ups) == 0 {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "no file selected"})
        return
    }

    id := uuid.NewString()
    s := &Session{
        ID:      id,
        Tool:    tool,
        Created: time.Now(),
        log:     w.log.With().Str("session_id", id).Str("tool", tool.Name).Logger(),
        target:  r.FormValue("target"),
    }
    if tool.Multi {
        refs := lo.Map(ups, func(u *upload, _ int) pageset.FileRef { return u.ref })
        if s.order, err = pageset.NewFileList(refs...); err != nil {
            writeError(wr, err)
            return
        }
        s.files = lo.SliceToMap(ups, func(u *upload) (string, *upload) { return u.ref.ID, u })
    } else {
        if len(ups) > 1 {
            writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "this tool takes a single file"})
            return
        }
        s.doc = ups[0]
    }
    if marks, err := w.readUploads(form, "watermark_image", []filetype.Category{filetype.CategoryImage}); err != nil {
        writeError(wr, err)
        return
    } else if len(marks) > 0 {
        s.mark = marks[0]
    }
    if tool.Preview {
        s.surface = preview.NewSurface(preview.SurfaceOptions{
            Opener:    w.deps.Opener,
            PageLimit: w.deps.Config.Editor.PageLimit,
            DPI:       w.deps.Config.Editor.PreviewDPI,
        })
        if err := w.loadDocument(s, s.doc); err != nil {
            s.surface.Close()
            writeError(wr, err)
            return
        }
    }

    w.mu.Lock()
    w.sessions[id] = s
    n := len(w.sessions)
    w.mu.Unlock()
    metrics.SetSessions(n)
    s.log.Info().Int("files", len(ups)).Str("mime", ups[0].info.MIMEType).Msg("editor session created")

    s.mu.Lock()
    view := s.viewLocked()
    s.mu.Unlock()
    writeJSON(wr, http.StatusCreated, view)
}

// loadDocument swaps the session's preview to up and renders it in the
// background. Editor state tied to the old document is dropped.
func (w *Web) loadDocument(s *Session, up *upload) error {
    gen, err := s.surface.Load(up.data, up.ref.Name)
    if err != nil {
        return err
    }
    s.doc = up
    s.pages = nil
    if s.Tool.Name == "organize" {
        s.pages = pageset.New(s.surface.NumPages())
    }
    s.page = 0
    s.tf, s.crop, s.watermark = nil, nil, nil

    surface := s.surface
    go func() {
        err := surface.RenderAll(w.deps.Base, gen)
        switch {
        case err == nil:
            s.log.Debug().Uint64("generation", gen).Msg("preview rendered")
        case errors.Is(err, preview.ErrSuperseded), errors.Is(err, context.Canceled):
        default:
            s.log.Warn().Err(err).Uint64("generation", gen).Msg("preview render failed")
        }
    }()
    return nil
}

func (w *Web) handleGetSession(wr http.ResponseWriter, r *http.Request, s *Session) {
    s.mu.Lock()
    defer s.mu.Unlock()
    writeJSON(wr, http.StatusOK, s.viewLocked())
}

func (w *Web) handleDeleteSession(wr http.ResponseWriter, r *http.Request) {
    w.mu.Lock()
    s, ok := w.sessions[r.PathValue("id")]
    delete(w.sessions, r.PathValue("id"))
    n := len(w.sessions)
    w.mu.Unlock()
    if !ok {
        writeError(wr, notFound("session"))
        return
    }
    w.dropSessionOperations(s.ID)
    s.close()
    metrics.SetSessions(n)
    wr.WriteHeader(http.StatusNoContent)
}

func (w *Web) handleReplaceDocument(wr http.ResponseWriter, r *http.Request, s *Session) {
    if !s.Tool.Preview {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "this tool has no preview document"})
        return
    }
    form, err := w.parseForm(wr, r)
    if err != nil {
        writeError(wr, err)
        return
    }
    ups, err := w.readUploads(form, "file", s.Tool.Accept)
    if err != nil {
        writeError(wr, err)
        return
    }
    if len(ups) != 1 {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "exactly one file expected"})
        return
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    if err := w.loadDocument(s, ups[0]); err != nil {
        writeError(wr, err)
        return
    }
    writeJSON(wr, http.StatusOK, s.viewLocked())
}

type frameView struct {
    Generation uint64       `json:"generation"`
    Page       int          `json:"page"`
    Width      int          `json:"width"`
    Height     int          `json:"height"`
    Size       preview.Size `json:"size"`
    Src        string       `json:"src"`
}

// handleFrames returns the frames rendered so far for the current document;
// complete is false while rendering is still in progress.
func (w *Web) handleFrames(wr http.ResponseWriter, r *http.Request, s *Session) {
    if s.surface == nil {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "this tool has no preview document"})
        return
    }
    frames := s.surface.Frames()
    writeJSON(wr, http.StatusOK, map[string]any{
        "generation": s.surface.Generation(),
        "complete":   len(frames) == s.surface.NumPages(),
        "frames": lo.Map(frames, func(f preview.Frame, _ int) frameView {
            return frameView{Generation: f.Generation, Page: f.Page, Width: f.Width, Height: f.Height, Size: f.Size, Src: f.DataURI()}
        }),
    })
}

func imageSize(data []byte) (float64, float64, error) {
    cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
    if err != nil {
        return 0, 0, &tasks.Error{Kind: tasks.KindValidation, Message: "watermark image could not be read", Err: err}
    }
    return float64(cfg.Width), float64(cfg.Height), nil
}
