package web

import (
    "context"
    "embed"
    "encoding/json"
    "errors"
    "html/template"
    "io/fs"
    "net/http"
    "slices"
    "strings"
    "sync"
    "time"

    "github.com/rs/cors"
    "github.com/rs/zerolog"
    "github.com/samber/lo"

    "github.com/local/convertdesk/internal/config"
    "github.com/local/convertdesk/internal/editor"
    "github.com/local/convertdesk/internal/filetype"
    "github.com/local/convertdesk/internal/logger"
    "github.com/local/convertdesk/internal/metrics"
    "github.com/local/convertdesk/internal/pageset"
    "github.com/local/convertdesk/internal/present"
    "github.com/local/convertdesk/internal/preview"
    "github.com/local/convertdesk/internal/statuscheck"
    "github.com/local/convertdesk/internal/storage"
    "github.com/local/convertdesk/internal/tasks"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

func notFound(what string) error {
    return &tasks.Error{Kind: tasks.KindValidation, StatusCode: http.StatusNotFound, Message: what + " not found"}
}

// Deps are the collaborators of the editor server.
type Deps struct {
    Config  config.Config
    API     tasks.API
    Tracker tasks.Tracker
    Sink    storage.Sink       // nil: results stay in memory until downloaded
    Status  *statuscheck.Checker
    Opener  preview.Opener     // nil: pdfcpu + MuPDF
    // Base is the parent context of every operation.
    Base context.Context
}

// Web is the local editor server: it keeps editor sessions (upload, preview,
// gestures) and the operations submitted from them.
type Web struct {
    deps   Deps
    tpl    *template.Template
    static http.Handler
    log    zerolog.Logger
    now    func() time.Time

    mu         sync.Mutex
    sessions   map[string]*Session
    operations map[string]*opEntry
}

func New(deps Deps) *Web {
    if deps.Base == nil {
        deps.Base = context.Background()
    }
    if deps.Tracker == nil {
        deps.Tracker = tasks.NewMemoryTracker()
    }
    if deps.Config.Web.ResultRetention <= 0 {
        deps.Config.Web.ResultRetention = 30 * time.Minute
    }
    sub, _ := fs.Sub(staticFS, "static")
    return &Web{
        deps:       deps,
        tpl:        template.Must(template.ParseFS(templateFS, "templates/*.html")),
        static:     http.FileServer(http.FS(sub)),
        log:        logger.Component("web"),
        now:        time.Now,
        sessions:   make(map[string]*Session),
        operations: make(map[string]*opEntry),
    }
}

func (w *Web) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("GET /{$}", w.handleIndex)
    mux.HandleFunc("GET /static/{version}/{file...}", w.handleStatic)
    mux.Handle("GET /metrics", metrics.Handler())
    mux.HandleFunc("GET /web/status", w.handleStatus)

    mux.HandleFunc("POST /api/sessions", w.handleCreateSession)
    mux.HandleFunc("GET /api/sessions/{id}", w.withSession(w.handleGetSession))
    mux.HandleFunc("DELETE /api/sessions/{id}", w.handleDeleteSession)
    mux.HandleFunc("POST /api/sessions/{id}/document", w.withSession(w.handleReplaceDocument))
    mux.HandleFunc("GET /api/sessions/{id}/frames", w.withSession(w.handleFrames))
    mux.HandleFunc("POST /api/sessions/{id}/canvas", w.withSession(w.handleCanvas))
    mux.HandleFunc("POST /api/sessions/{id}/pointer", w.withSession(w.handlePointer))
    mux.HandleFunc("POST /api/sessions/{id}/watermark", w.withSession(w.handleWatermark))
    mux.HandleFunc("POST /api/sessions/{id}/reorder", w.withSession(w.handleReorder))
    mux.HandleFunc("POST /api/sessions/{id}/pages/{page}/rotate", w.withSession(w.handleRotatePage))
    mux.HandleFunc("DELETE /api/sessions/{id}/pages/{page}", w.withSession(w.handleRemovePage))
    mux.HandleFunc("POST /api/sessions/{id}/files", w.withSession(w.handleAddFiles))
    mux.HandleFunc("DELETE /api/sessions/{id}/files/{file}", w.withSession(w.handleRemoveFile))
    mux.HandleFunc("POST /api/sessions/{id}/submit", w.withSession(w.handleSubmit))

    mux.HandleFunc("GET /api/operations/{id}", w.handleOperation)
    mux.HandleFunc("POST /api/operations/{id}/cancel", w.handleCancelOperation)
    mux.HandleFunc("GET /api/operations/{id}/result", w.handleResult)
}

// Handler returns the routes wrapped in the CORS policy.
func (w *Web) Handler() http.Handler {
    mux := http.NewServeMux()
    w.RegisterRoutes(mux)
    origins := w.deps.Config.Web.AllowedOrigins
    if len(origins) == 0 {
        origins = []string{"*"}
    }
    c := cors.New(cors.Options{
        AllowedOrigins: origins,
        AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
        AllowedHeaders: []string{"Content-Type", "X-CSRFToken"},
    })
    return c.Handler(mux)
}

// Close releases every session's preview document.
func (w *Web) Close() {
    w.mu.Lock()
    sessions := w.sessions
    w.sessions = make(map[string]*Session)
    w.mu.Unlock()
    for _, s := range sessions {
        s.close()
    }
    metrics.SetSessions(0)
}

func (w *Web) handleIndex(wr http.ResponseWriter, r *http.Request) {
    wr.Header().Set("Cache-Control", "no-store")
    wr.Header().Set("Content-Type", "text/html; charset=utf-8")
    names := lo.Keys(tools)
    slices.Sort(names)
    w.render(wr, "index.html", map[string]any{
        "Version": w.deps.Config.Web.StaticVersion,
        "Tools":   names,
        "Error":   present.Message(errorFromQuery(r)),
    })
}

// handleStatic serves embedded assets. Assets requested under the current
// version are immutable; anything else must be revalidated.
func (w *Web) handleStatic(wr http.ResponseWriter, r *http.Request) {
    if r.PathValue("version") == w.deps.Config.Web.StaticVersion {
        wr.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
    } else {
        wr.Header().Set("Cache-Control", "no-cache")
    }
    r2 := r.Clone(r.Context())
    r2.URL.Path = "/" + r.PathValue("file")
    w.static.ServeHTTP(wr, r2)
}

func (w *Web) handleStatus(wr http.ResponseWriter, r *http.Request) {
    if w.deps.Status == nil {
        writeJSON(wr, http.StatusServiceUnavailable, map[string]any{"error": "status checks not configured"})
        return
    }
    sum := w.deps.Status.Summary(r.Context())
    code := http.StatusOK
    if !sum.Healthy() {
        code = http.StatusServiceUnavailable
    }
    writeJSON(wr, code, sum)
}

func (w *Web) render(wr http.ResponseWriter, name string, data any) {
    if err := w.tpl.ExecuteTemplate(wr, name, data); err != nil {
        w.log.Error().Err(err).Str("template", name).Msg("render failed")
    }
}

func writeJSON(wr http.ResponseWriter, status int, v any) {
    wr.Header().Set("Content-Type", "application/json")
    wr.Header().Set("Cache-Control", "no-store")
    wr.WriteHeader(status)
    _ = json.NewEncoder(wr).Encode(v)
}

// writeError sends the presented, HTML-escaped message of err. Cancellations
// are not errors and are answered with 200 and an empty message.
func writeError(wr http.ResponseWriter, err error) {
    if tasks.IsCancelled(err) {
        writeJSON(wr, http.StatusOK, map[string]any{"cancelled": true})
        return
    }
    writeJSON(wr, statusFor(err), map[string]any{"error": present.HTML(err)})
}

func statusFor(err error) int {
    var ve *filetype.ValidationError
    var te *tasks.Error
    switch {
    case errors.As(err, &te) && te.StatusCode >= 400 && te.StatusCode < 500:
        return te.StatusCode
    case errors.Is(err, pageset.ErrUnknown):
        return http.StatusNotFound
    case errors.As(err, &ve) && errors.Is(ve.Reason, filetype.ErrTooLarge):
        return http.StatusRequestEntityTooLarge
    case errors.As(err, &ve) && errors.Is(ve.Reason, filetype.ErrUnsupported):
        return http.StatusUnsupportedMediaType
    case errors.As(err, &ve),
        errors.Is(err, preview.ErrPageLimit),
        errors.Is(err, preview.ErrUnreadable),
        errors.Is(err, editor.ErrInvalidGeometry),
        errors.Is(err, pageset.ErrDuplicate),
        errors.Is(err, pageset.ErrTooFew),
        tasks.KindOf(err) == tasks.KindValidation:
        return http.StatusUnprocessableEntity
    }
    if errors.As(err, &te) {
        return http.StatusBadGateway
    }
    return http.StatusInternalServerError
}

func decodeJSON(wr http.ResponseWriter, r *http.Request, v any) error {
    dec := json.NewDecoder(http.MaxBytesReader(wr, r.Body, 1<<20))
    if err := dec.Decode(v); err != nil {
        return &tasks.Error{Kind: tasks.KindValidation, Message: "invalid request body", Err: err}
    }
    return nil
}

// errorFromQuery lets redirects carry a message; it is rendered escaped by
// html/template.
func errorFromQuery(r *http.Request) error {
    msg := strings.TrimSpace(r.URL.Query().Get("error"))
    if msg == "" {
        return nil
    }
    return &tasks.Error{Kind: tasks.KindValidation, Message: msg}
}

