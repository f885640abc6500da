package web

import (
    "context"
    "fmt"
    "mime"
    "net/http"
    "net/url"
    "sync"
    "time"

    "github.com/rs/zerolog"

    "github.com/local/convertdesk/internal/editor"
    "github.com/local/convertdesk/internal/pageset"
    "github.com/local/convertdesk/internal/present"
    "github.com/local/convertdesk/internal/storage"
    "github.com/local/convertdesk/internal/tasks"
)

// opEntry is a submitted operation and where its result was stored.
type opEntry struct {
    op      *tasks.Operation
    session string

    mu       sync.Mutex
    savedTo  string
    finished time.Time // zero while running
}

type submitRequest struct {
    ApplyTo string `json:"apply_to"` // crop: "current" or "all"
    Pages   string `json:"pages"`    // watermark: "all" or "1-3,5"
    Target  string `json:"target"`   // convert: output format
}

type operationView struct {
    tasks.Snapshot
    Error   string `json:"error,omitempty"`
    SavedTo string `json:"saved_to,omitempty"`
}

// logReporter mirrors operation progress into the session log.
type logReporter struct{ log zerolog.Logger }

func (r logReporter) Progress(p int, step string) {
    r.log.Debug().Int("progress", p).Str("step", step).Msg("operation progress")
}
func (r logReporter) Done(a *tasks.Artifact) {
    r.log.Info().Str("name", a.Name).Msg("result ready")
}
func (r logReporter) Error(err error) {
    r.log.Warn().Err(err).Msg("operation failed")
}

// requestLocked builds the submission for the session's tool.
func (w *Web) requestLocked(s *Session, req submitRequest) (tasks.Request, error) {
    out := tasks.Request{Tool: s.Tool.Name, Endpoint: s.Tool.Endpoint, Params: url.Values{}}
    if s.doc != nil {
        out.Files = []tasks.Upload{{Field: s.Tool.FileField, Name: s.doc.ref.Name, Data: s.doc.data}}
    }
    switch s.Tool.Name {
    case "crop":
        if s.crop == nil {
            if s.tf == nil {
                size, err := s.surface.PageSize(s.page)
                if err != nil {
                    return out, err
                }
                tf, err := editor.NewTransform(size.Width, size.Height, size.Width, size.Height)
                if err != nil {
                    return out, err
                }
                s.tf = &tf
            }
            s.crop = editor.NewCropEditor(*s.tf, editor.CropOptions{MinSize: w.deps.Config.Editor.MinCropPx})
        }
        out.Params = s.crop.Params(s.page, req.ApplyTo == "all")
    case "watermark":
        if s.watermark == nil {
            return out, &tasks.Error{Kind: tasks.KindValidation, Message: "set the watermark text or image first"}
        }
        pages := req.Pages
        if pages == "" {
            pages = "all"
        }
        if _, err := pageset.ParseSelection(pages, s.surface.NumPages()); err != nil {
            return out, &tasks.Error{Kind: tasks.KindValidation, StatusCode: http.StatusUnprocessableEntity,
                Message: fmt.Sprintf("invalid page selection %q", pages), Err: err}
        }
        out.Params = s.watermark.Params(pages)
        if s.style.IsImage() {
            out.Files = append(out.Files, tasks.Upload{Field: "watermark_image", Name: s.mark.ref.Name, Data: s.mark.data})
        }
    case "organize":
        out.Params = s.pages.Params()
    case "merge":
        files, err := s.mergeUploadsLocked()
        if err != nil {
            return out, err
        }
        out.Files = files
    case "convert":
        target := req.Target
        if target == "" {
            target = s.target
        }
        if target == "" {
            return out, &tasks.Error{Kind: tasks.KindValidation, Message: "choose an output format"}
        }
        out.Params.Set("target", target)
    }
    return out, nil
}

// handleSubmit starts one operation per session; a second submit while the
// first is running is refused.
func (w *Web) handleSubmit(wr http.ResponseWriter, r *http.Request, s *Session) {
    var req submitRequest
    if r.ContentLength != 0 {
        if err := decodeJSON(wr, r, &req); err != nil {
            writeError(wr, err)
            return
        }
    }

    s.mu.Lock()
    if id := s.opID; id != "" {
        s.mu.Unlock()
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, StatusCode: http.StatusConflict, Message: "an operation is already running for this document"})
        return
    }
    treq, err := w.requestLocked(s, req)
    if err != nil {
        s.mu.Unlock()
        writeError(wr, err)
        return
    }
    var op *tasks.Operation
    op = tasks.Start(w.deps.Base, w.deps.API, treq, tasks.Options{
        Poll:     w.deps.Config.Poll,
        Tracker:  w.deps.Tracker,
        Reporter: logReporter{log: s.log},
        OnCancel: func() {
            // op is assigned before s.mu is released below.
            s.mu.Lock()
            defer s.mu.Unlock()
            s.clearOperationLocked(op.ID)
        },
    })
    s.opID = op.ID
    s.mu.Unlock()

    e := &opEntry{op: op, session: s.ID}
    w.mu.Lock()
    w.pruneLocked()
    w.operations[op.ID] = e
    w.mu.Unlock()
    go w.finish(s, e)

    s.log.Info().Str("op_id", op.ID).Msg("operation submitted")
    writeJSON(wr, http.StatusAccepted, operationView{Snapshot: op.Snapshot()})
}

// clearOperation frees the session for the next submit unless a newer
// operation already took it.
func (s *Session) clearOperation(id string) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.clearOperationLocked(id)
}

func (s *Session) clearOperationLocked(id string) {
    if s.opID == id {
        s.opID = ""
    }
}

// finish waits for e's operation, frees the session for the next submit and
// stores a successful result in the sink.
func (w *Web) finish(s *Session, e *opEntry) {
    a, err := e.op.Wait(context.Background())
    s.clearOperation(e.op.ID)
    defer func() {
        e.mu.Lock()
        e.finished = w.now()
        e.mu.Unlock()
    }()
    if err != nil || a == nil || w.deps.Sink == nil {
        return
    }
    ctx, cancel := context.WithTimeout(w.deps.Base, time.Minute)
    defer cancel()
    loc, err := w.deps.Sink.Save(ctx, e.op.ID, storage.Object{Name: a.Name, ContentType: a.ContentType, Data: a.Data})
    if err != nil {
        s.log.Error().Err(err).Str("op_id", e.op.ID).Msg("result not stored")
        return
    }
    e.mu.Lock()
    e.savedTo = loc
    e.mu.Unlock()
    s.log.Info().Str("op_id", e.op.ID).Str("location", loc).Msg("result stored")
}

func (w *Web) lookupOperation(id string) (*opEntry, bool) {
    w.mu.Lock()
    defer w.mu.Unlock()
    w.pruneLocked()
    e, ok := w.operations[id]
    return e, ok
}

// pruneLocked forgets operations that finished more than ResultRetention ago.
func (w *Web) pruneLocked() {
    cutoff := w.now().Add(-w.deps.Config.Web.ResultRetention)
    for id, e := range w.operations {
        e.mu.Lock()
        expired := !e.finished.IsZero() && e.finished.Before(cutoff)
        e.mu.Unlock()
        if expired {
            delete(w.operations, id)
        }
    }
}

// dropSessionOperations cancels and forgets every operation of a deleted
// session.
func (w *Web) dropSessionOperations(sessionID string) {
    w.mu.Lock()
    var ops []*tasks.Operation
    for id, e := range w.operations {
        if e.session == sessionID {
            ops = append(ops, e.op)
            delete(w.operations, id)
        }
    }
    w.mu.Unlock()
    for _, op := range ops {
        op.Cancel()
    }
}

func (e *opEntry) view() operationView {
    snap := e.op.Snapshot()
    e.mu.Lock()
    defer e.mu.Unlock()
    return operationView{Snapshot: snap, Error: present.HTML(snap.Error), SavedTo: e.savedTo}
}

func (w *Web) handleOperation(wr http.ResponseWriter, r *http.Request) {
    e, ok := w.lookupOperation(r.PathValue("id"))
    if !ok {
        writeError(wr, notFound("operation"))
        return
    }
    writeJSON(wr, http.StatusOK, e.view())
}

// handleCancelOperation aborts the operation and waits briefly for it to
// settle so the reply carries the final state.
func (w *Web) handleCancelOperation(wr http.ResponseWriter, r *http.Request) {
    e, ok := w.lookupOperation(r.PathValue("id"))
    if !ok {
        writeError(wr, notFound("operation"))
        return
    }
    e.op.Cancel()
    select {
    case <-e.op.Done():
    case <-time.After(2 * time.Second):
    case <-r.Context().Done():
    }
    writeJSON(wr, http.StatusOK, e.view())
}

// handleResult downloads a finished artifact once; the operation is
// forgotten afterwards.
func (w *Web) handleResult(wr http.ResponseWriter, r *http.Request) {
    e, ok := w.lookupOperation(r.PathValue("id"))
    if !ok {
        writeError(wr, notFound("operation"))
        return
    }
    a := e.op.Artifact()
    if a == nil {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, StatusCode: http.StatusConflict, Message: "the result is not ready (" + e.op.State().String() + ")"})
        return
    }
    ct := a.ContentType
    if ct == "" {
        ct = "application/octet-stream"
    }
    wr.Header().Set("Content-Type", ct)
    wr.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Name}))
    wr.Header().Set("Cache-Control", "no-store")
    wr.WriteHeader(http.StatusOK)
    _, _ = wr.Write(a.Data)

    w.mu.Lock()
    delete(w.operations, e.op.ID)
    w.mu.Unlock()
}
