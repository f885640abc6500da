package web

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "image"
    "io"
    "mime/multipart"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/local/convertdesk/internal/config"
    "github.com/local/convertdesk/internal/editor"
    "github.com/local/convertdesk/internal/preview"
    "github.com/local/convertdesk/internal/storage"
    "github.com/local/convertdesk/internal/tasks"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

type fakeDoc struct{ pages int }

func (d *fakeDoc) NumPages() int { return d.pages }
func (d *fakeDoc) PageSize(int) (preview.Size, error) {
    return preview.Size{Width: 612, Height: 792}, nil
}
func (d *fakeDoc) Render(ctx context.Context, i int, dpi float64) (image.Image, error) {
    return image.NewRGBA(image.Rect(0, 0, 61, 79)), nil
}
func (d *fakeDoc) Close() error { return nil }

type fakeOpener struct{ pages int }

func (o fakeOpener) Open(data []byte) (preview.Document, error) {
    if !bytes.HasPrefix(data, []byte("%PDF")) {
        return nil, errors.New("no header")
    }
    return &fakeDoc{pages: o.pages}, nil
}

// fakeAPI answers synchronously unless async is set; async tasks report
// STARTED until finished is set.
type fakeAPI struct {
    mu        sync.Mutex
    async     bool
    finished  bool
    requests  []tasks.Request
    cancelled []tasks.Handle
}

func (f *fakeAPI) Submit(ctx context.Context, req tasks.Request) (*tasks.Submission, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.requests = append(f.requests, req)
    if f.async {
        return &tasks.Submission{Handle: &tasks.Handle{TaskID: "t-1", TaskToken: "tok"}}, nil
    }
    return &tasks.Submission{Artifact: resultArtifact()}, nil
}

func (f *fakeAPI) Status(ctx context.Context, h tasks.Handle) (tasks.StatusReport, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.finished {
        return tasks.StatusReport{Status: tasks.StatusSuccess}, nil
    }
    return tasks.StatusReport{Status: tasks.StatusStarted}, nil
}

func (f *fakeAPI) Result(ctx context.Context, h tasks.Handle) (*tasks.Artifact, error) {
    return resultArtifact(), nil
}

func (f *fakeAPI) Release(ctx context.Context, h tasks.Handle) error { return nil }

func (f *fakeAPI) Cancel(ctx context.Context, h tasks.Handle) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.cancelled = append(f.cancelled, h)
    return nil
}

func (f *fakeAPI) lastRequest(t *testing.T) tasks.Request {
    t.Helper()
    f.mu.Lock()
    defer f.mu.Unlock()
    require.NotEmpty(t, f.requests)
    return f.requests[len(f.requests)-1]
}

func resultArtifact() *tasks.Artifact {
    return &tasks.Artifact{Name: "result.pdf", ContentType: "application/pdf", Data: []byte("%PDF-result")}
}

func testConfig() config.Config {
    return config.Config{
        Poll:   config.PollConfig{Interval: 5 * time.Millisecond, MaxAttempts: 400, MaxBackoff: 20 * time.Millisecond},
        Editor: config.EditorConfig{PageLimit: 50, MinCropPx: 10, PreviewDPI: 72, MaxUploadMB: 5},
        Web:    config.WebConfig{StaticVersion: "v1"},
    }
}

func newTestServer(t *testing.T, api tasks.API, sink storage.Sink) *httptest.Server {
    t.Helper()
    w := New(Deps{Config: testConfig(), API: api, Sink: sink, Opener: fakeOpener{pages: 3}})
    srv := httptest.NewServer(w.Handler())
    t.Cleanup(func() {
        srv.Close()
        w.Close()
    })
    return srv
}

type testFile struct {
    field, name string
    data        []byte
}

func postUpload(t *testing.T, url string, fields map[string]string, files ...testFile) *http.Response {
    t.Helper()
    var buf bytes.Buffer
    mw := multipart.NewWriter(&buf)
    for k, v := range fields {
        require.NoError(t, mw.WriteField(k, v))
    }
    for _, f := range files {
        part, err := mw.CreateFormFile(f.field, f.name)
        require.NoError(t, err)
        _, err = part.Write(f.data)
        require.NoError(t, err)
    }
    require.NoError(t, mw.Close())
    resp, err := http.Post(url, mw.FormDataContentType(), &buf)
    require.NoError(t, err)
    return resp
}

func call(t *testing.T, method, url string, body any) *http.Response {
    t.Helper()
    var r io.Reader
    if body != nil {
        b, err := json.Marshal(body)
        require.NoError(t, err)
        r = bytes.NewReader(b)
    }
    req, err := http.NewRequest(method, url, r)
    require.NoError(t, err)
    req.Header.Set("Content-Type", "application/json")
    resp, err := http.DefaultClient.Do(req)
    require.NoError(t, err)
    return resp
}

func decode[T any](t *testing.T, resp *http.Response, status int) T {
    t.Helper()
    defer resp.Body.Close()
    var v T
    body, err := io.ReadAll(resp.Body)
    require.NoError(t, err)
    require.Equal(t, status, resp.StatusCode, string(body))
    require.NoError(t, json.Unmarshal(body, &v), string(body))
    return v
}

func createSession(t *testing.T, srv *httptest.Server, tool string, files ...testFile) sessionView {
    t.Helper()
    resp := postUpload(t, srv.URL+"/api/sessions", map[string]string{"tool": tool}, files...)
    return decode[sessionView](t, resp, http.StatusCreated)
}

func pdfFile(name string) testFile { return testFile{field: "file", name: name, data: samplePDF} }

func waitState(t *testing.T, srv *httptest.Server, opID, want string) operationView {
    t.Helper()
    var last operationView
    require.Eventually(t, func() bool {
        last = decode[operationView](t, call(t, http.MethodGet, srv.URL+"/api/operations/"+opID, nil), http.StatusOK)
        return last.State == want
    }, 3*time.Second, 10*time.Millisecond)
    return last
}

func TestIndexIsNotCached(t *testing.T) {
    srv := newTestServer(t, &fakeAPI{}, nil)

    resp, err := http.Get(srv.URL + "/?error=" + "%3Cimg%20src%3Dx%3E")
    require.NoError(t, err)
    defer resp.Body.Close()
    body, _ := io.ReadAll(resp.Body)

    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
    assert.Contains(t, string(body), `/static/v1/app.js`)
    assert.Contains(t, string(body), `data-tool="watermark"`)
    assert.Contains(t, string(body), "&lt;img src=x&gt;")
    assert.NotContains(t, string(body), "<img src=x>")
}

func TestStaticCaching(t *testing.T) {
    srv := newTestServer(t, &fakeAPI{}, nil)
    tests := []struct {
        path, cache string
    }{
        {"/static/v1/app.css", "public, max-age=31536000, immutable"},
        {"/static/v0/app.css", "no-cache"},
    }
    for _, tt := range tests {
        t.Run(tt.path, func(t *testing.T) {
            resp, err := http.Get(srv.URL + tt.path)
            require.NoError(t, err)
            resp.Body.Close()
            assert.Equal(t, http.StatusOK, resp.StatusCode)
            assert.Equal(t, tt.cache, resp.Header.Get("Cache-Control"))
            assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")
        })
    }
}

func TestCreateSessionRejectsBadUploads(t *testing.T) {
    srv := newTestServer(t, &fakeAPI{}, nil)
    tests := []struct {
        name   string
        tool   string
        file   testFile
        status int
    }{
        {"unknown tool", "shred", pdfFile("a.pdf"), http.StatusUnprocessableEntity},
        {"wrong type", "crop", testFile{"file", "notes.txt", []byte("hello there\n")}, http.StatusUnsupportedMediaType},
        {"empty", "crop", testFile{"file", "a.pdf", nil}, http.StatusUnprocessableEntity},
        {"too large", "crop", testFile{"file", "a.pdf", append(samplePDF, make([]byte, 6<<20)...)}, http.StatusRequestEntityTooLarge},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            resp := postUpload(t, srv.URL+"/api/sessions", map[string]string{"tool": tt.tool}, tt.file)
            out := decode[map[string]any](t, resp, tt.status)
            assert.NotEmpty(t, out["error"])
        })
    }
}

func TestPageLimitRefusesDocument(t *testing.T) {
    w := New(Deps{Config: testConfig(), API: &fakeAPI{}, Opener: fakeOpener{pages: 80}})
    srv := httptest.NewServer(w.Handler())
    defer srv.Close()

    resp := postUpload(t, srv.URL+"/api/sessions", map[string]string{"tool": "organize"}, pdfFile("big.pdf"))
    out := decode[map[string]string](t, resp, http.StatusUnprocessableEntity)
    assert.Contains(t, out["error"], "too many pages")
}

func TestOrganizeReorderAndSubmit(t *testing.T) {
    api := &fakeAPI{}
    sink := storage.LocalSink{Dir: t.TempDir()}
    srv := newTestServer(t, api, sink)

    s := createSession(t, srv, "organize", pdfFile("report.pdf"))
    require.Equal(t, 3, s.Pages)
    base := srv.URL + "/api/sessions/" + s.ID

    frames := decode[map[string]any](t, call(t, http.MethodGet, base+"/frames", nil), http.StatusOK)
    assert.EqualValues(t, s.Generation, frames["generation"])

    s = decode[sessionView](t, call(t, http.MethodPost, base+"/reorder", reorderRequest{Dragged: "2", Before: "0"}), http.StatusOK)
    require.Len(t, s.Order, 3)
    assert.Equal(t, []int{2, 0, 1}, []int{s.Order[0].Item, s.Order[1].Item, s.Order[2].Item})
    assert.Equal(t, 1, s.Order[0].Position)

    decode[sessionView](t, call(t, http.MethodPost, base+"/pages/2/rotate", map[string]int{"degrees": 90}), http.StatusOK)
    s = decode[sessionView](t, call(t, http.MethodDelete, base+"/pages/1", nil), http.StatusOK)
    assert.Len(t, s.Order, 2)
    assert.Equal(t, map[int]int{2: 90}, s.Rotations)

    op := decode[operationView](t, call(t, http.MethodPost, base+"/submit", nil), http.StatusAccepted)
    done := waitState(t, srv, op.ID, "succeeded")
    assert.Empty(t, done.Error)

    req := api.lastRequest(t)
    assert.Equal(t, "/api/pdf/organize/", req.Endpoint)
    assert.Equal(t, "[2,0]", req.Params.Get("page_order"))
    assert.Equal(t, `{"2":90}`, req.Params.Get("rotations"))
    require.Len(t, req.Files, 1)
    assert.Equal(t, "report.pdf", req.Files[0].Name)

    require.Eventually(t, func() bool {
        v := decode[operationView](t, call(t, http.MethodGet, srv.URL+"/api/operations/"+op.ID, nil), http.StatusOK)
        return strings.HasPrefix(v.SavedTo, sink.Dir)
    }, 3*time.Second, 10*time.Millisecond)

    resp := call(t, http.MethodGet, srv.URL+"/api/operations/"+op.ID+"/result", nil)
    body, _ := io.ReadAll(resp.Body)
    resp.Body.Close()
    assert.Equal(t, http.StatusOK, resp.StatusCode)
    assert.Equal(t, "%PDF-result", string(body))
    assert.Contains(t, resp.Header.Get("Content-Disposition"), "result.pdf")

    resp = call(t, http.MethodGet, srv.URL+"/api/operations/"+op.ID, nil)
    resp.Body.Close()
    assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRemovingLastPageIsRefused(t *testing.T) {
    w := New(Deps{Config: testConfig(), API: &fakeAPI{}, Opener: fakeOpener{pages: 1}})
    srv := httptest.NewServer(w.Handler())
    defer srv.Close()

    s := createSession(t, srv, "organize", pdfFile("one.pdf"))
    out := decode[map[string]string](t, call(t, http.MethodDelete, srv.URL+"/api/sessions/"+s.ID+"/pages/0", nil), http.StatusUnprocessableEntity)
    assert.NotEmpty(t, out["error"])
}

func TestCropGestureSubmitsDocumentRect(t *testing.T) {
    api := &fakeAPI{}
    srv := newTestServer(t, api, nil)
    s := createSession(t, srv, "crop", pdfFile("scan.pdf"))
    base := srv.URL + "/api/sessions/" + s.ID

    // Half-size canvas: one pixel is two points.
    decode[map[string]any](t, call(t, http.MethodPost, base+"/canvas", canvasRequest{Width: 306, Height: 396}), http.StatusOK)
    for _, ev := range []pointerRequest{
        {Type: "down", X: 10, Y: 10},
        {Type: "move", X: 80, Y: 40},
        {Type: "up", X: 110, Y: 60},
    } {
        decode[map[string]any](t, call(t, http.MethodPost, base+"/pointer", ev), http.StatusOK)
    }
    state := decode[struct {
        Crop cropView `json:"crop"`
    }](t, call(t, http.MethodPost, base+"/pointer", pointerRequest{Type: "move", X: 0, Y: 0}), http.StatusOK)
    assert.True(t, state.Crop.Selection)
    assert.Equal(t, "idle", state.Crop.Mode)

    op := decode[operationView](t, call(t, http.MethodPost, base+"/submit", submitRequest{ApplyTo: "current"}), http.StatusAccepted)
    waitState(t, srv, op.ID, "succeeded")

    p := api.lastRequest(t).Params
    assert.Equal(t, "20.00", p.Get("x"))
    assert.Equal(t, "672.00", p.Get("y"))
    assert.Equal(t, "200.00", p.Get("width"))
    assert.Equal(t, "100.00", p.Get("height"))
    assert.Equal(t, "0", p.Get("page"))
    assert.Equal(t, "current", p.Get("apply_to"))
}

func TestCropWithoutGestureSubmitsWholePage(t *testing.T) {
    api := &fakeAPI{}
    srv := newTestServer(t, api, nil)
    s := createSession(t, srv, "crop", pdfFile("scan.pdf"))

    op := decode[operationView](t, call(t, http.MethodPost, srv.URL+"/api/sessions/"+s.ID+"/submit", submitRequest{ApplyTo: "all"}), http.StatusAccepted)
    waitState(t, srv, op.ID, "succeeded")

    p := api.lastRequest(t).Params
    assert.Equal(t, "612.00", p.Get("width"))
    assert.Equal(t, "792.00", p.Get("height"))
    assert.Equal(t, "all", p.Get("apply_to"))
}

func TestWatermarkNeedsStyleAndValidPages(t *testing.T) {
    api := &fakeAPI{}
    srv := newTestServer(t, api, nil)
    s := createSession(t, srv, "watermark", pdfFile("draft.pdf"))
    base := srv.URL + "/api/sessions/" + s.ID

    out := decode[map[string]string](t, call(t, http.MethodPost, base+"/submit", submitRequest{}), http.StatusUnprocessableEntity)
    assert.NotEmpty(t, out["error"])

    decode[map[string]any](t, call(t, http.MethodPost, base+"/canvas", canvasRequest{Width: 612, Height: 792}), http.StatusOK)
    state := decode[struct {
        Watermark watermarkView `json:"watermark"`
    }](t, call(t, http.MethodPost, base+"/watermark", map[string]any{
        "text": "DRAFT", "font_size": 40, "color": "#ff0000", "opacity": 0.3, "position": "top-left",
    }), http.StatusOK)
    assert.Equal(t, "top-left", string(state.Watermark.Placement.Position))

    out = decode[map[string]string](t, call(t, http.MethodPost, base+"/submit", submitRequest{Pages: "2-9"}), http.StatusUnprocessableEntity)
    assert.NotEmpty(t, out["error"])

    op := decode[operationView](t, call(t, http.MethodPost, base+"/submit", submitRequest{Pages: "1,3"}), http.StatusAccepted)
    waitState(t, srv, op.ID, "succeeded")
    p := api.lastRequest(t).Params
    assert.Equal(t, "DRAFT", p.Get("text"))
    assert.Equal(t, "1,3", p.Get("pages"))
    assert.Equal(t, "text", p.Get("watermark_type"))
}

func TestMergeOrderFollowsList(t *testing.T) {
    api := &fakeAPI{}
    srv := newTestServer(t, api, nil)
    s := createSession(t, srv, "merge", pdfFile("a.pdf"))
    base := srv.URL + "/api/sessions/" + s.ID

    out := decode[map[string]string](t, call(t, http.MethodPost, base+"/submit", nil), http.StatusUnprocessableEntity)
    assert.Contains(t, out["error"], "Not enough items")

    s = decode[sessionView](t, postUpload(t, base+"/files", nil, pdfFile("b.pdf"), pdfFile("c.pdf")), http.StatusOK)
    require.Len(t, s.Files, 3)
    s = decode[sessionView](t, call(t, http.MethodPost, base+"/reorder", reorderRequest{Dragged: s.Files[2].ID, Before: s.Files[0].ID}), http.StatusOK)
    assert.Equal(t, "c.pdf", s.Files[0].Name)

    s = decode[sessionView](t, call(t, http.MethodDelete, base+"/files/"+s.Files[1].ID, nil), http.StatusOK)
    require.Len(t, s.Files, 2)

    op := decode[operationView](t, call(t, http.MethodPost, base+"/submit", nil), http.StatusAccepted)
    waitState(t, srv, op.ID, "succeeded")
    req := api.lastRequest(t)
    require.Len(t, req.Files, 2)
    assert.Equal(t, []string{"c.pdf", "b.pdf"}, []string{req.Files[0].Name, req.Files[1].Name})
    assert.Equal(t, "pdf_files", req.Files[0].Field)
}

func TestCancelIsNotAnError(t *testing.T) {
    api := &fakeAPI{async: true}
    srv := newTestServer(t, api, nil)
    s := createSession(t, srv, "organize", pdfFile("long.pdf"))
    base := srv.URL + "/api/sessions/" + s.ID

    op := decode[operationView](t, call(t, http.MethodPost, base+"/submit", nil), http.StatusAccepted)
    waitState(t, srv, op.ID, "polling")

    resp := call(t, http.MethodPost, base+"/submit", nil)
    resp.Body.Close()
    assert.Equal(t, http.StatusConflict, resp.StatusCode)

    v := decode[operationView](t, call(t, http.MethodPost, srv.URL+"/api/operations/"+op.ID+"/cancel", nil), http.StatusOK)
    assert.Equal(t, "cancelled", v.State)
    assert.Empty(t, v.Error)

    api.mu.Lock()
    assert.Len(t, api.cancelled, 1)
    api.mu.Unlock()

    // The session accepts a new submission once the cancelled one settled.
    require.Eventually(t, func() bool {
        resp := call(t, http.MethodPost, base+"/submit", nil)
        resp.Body.Close()
        return resp.StatusCode == http.StatusAccepted
    }, 3*time.Second, 10*time.Millisecond)
}

func TestUnknownSessionAndOperation(t *testing.T) {
    srv := newTestServer(t, &fakeAPI{}, nil)
    for _, path := range []string{"/api/sessions/nope", "/api/operations/nope"} {
        out := decode[map[string]string](t, call(t, http.MethodGet, srv.URL+path, nil), http.StatusNotFound)
        assert.Contains(t, out["error"], "not found")
    }
}

func TestStatusWithoutChecker(t *testing.T) {
    srv := newTestServer(t, &fakeAPI{}, nil)
    resp := call(t, http.MethodGet, srv.URL+"/web/status", nil)
    resp.Body.Close()
    assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCanvasResizeKeepsCropSelection(t *testing.T) {
    srv := newTestServer(t, &fakeAPI{}, nil)
    s := createSession(t, srv, "crop", pdfFile("scan.pdf"))
    base := srv.URL + "/api/sessions/" + s.ID

    decode[map[string]any](t, call(t, http.MethodPost, base+"/canvas", canvasRequest{Width: 306, Height: 396}), http.StatusOK)
    for _, ev := range []pointerRequest{
        {Type: "down", X: 10, Y: 10},
        {Type: "up", X: 110, Y: 60},
    } {
        decode[map[string]any](t, call(t, http.MethodPost, base+"/pointer", ev), http.StatusOK)
    }

    type cropState struct {
        Crop cropView `json:"crop"`
    }
    state := decode[cropState](t, call(t, http.MethodPost, base+"/canvas", canvasRequest{Width: 612, Height: 792}), http.StatusOK)
    assert.True(t, state.Crop.Selection)
    assert.Equal(t, editor.Rect{X: 20, Y: 20, Width: 200, Height: 100}, state.Crop.Rect)
    assert.Equal(t, editor.Rect{X: 20, Y: 672, Width: 200, Height: 100}, state.Crop.Document)

    state = decode[cropState](t, call(t, http.MethodPost, base+"/canvas", canvasRequest{Width: 612, Height: 792, Page: 1}), http.StatusOK)
    assert.False(t, state.Crop.Selection, "a selection belongs to its page")
}

func TestFinishedOperationDoesNotFreeNewerOne(t *testing.T) {
    s := &Session{}
    s.opID = "op-2"
    s.clearOperation("op-1")
    assert.Equal(t, "op-2", s.opID)
    s.clearOperation("op-2")
    assert.Empty(t, s.opID)

    api := &fakeAPI{async: true}
    srv := newTestServer(t, api, nil)
    sv := createSession(t, srv, "organize", pdfFile("long.pdf"))
    base := srv.URL + "/api/sessions/" + sv.ID

    first := decode[operationView](t, call(t, http.MethodPost, base+"/submit", nil), http.StatusAccepted)
    waitState(t, srv, first.ID, "polling")
    decode[operationView](t, call(t, http.MethodPost, srv.URL+"/api/operations/"+first.ID+"/cancel", nil), http.StatusOK)

    var second operationView
    require.Eventually(t, func() bool {
        resp := call(t, http.MethodPost, base+"/submit", nil)
        if resp.StatusCode != http.StatusAccepted {
            resp.Body.Close()
            return false
        }
        second = decode[operationView](t, resp, http.StatusAccepted)
        return true
    }, 3*time.Second, 10*time.Millisecond)
    waitState(t, srv, second.ID, "polling")
    time.Sleep(20 * time.Millisecond)

    resp := call(t, http.MethodPost, base+"/submit", nil)
    resp.Body.Close()
    assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestFinishedOperationsExpire(t *testing.T) {
    api := &fakeAPI{}
    w := New(Deps{Config: testConfig(), API: api, Opener: fakeOpener{pages: 3}})
    var offset atomic.Int64
    start := time.Now()
    w.now = func() time.Time { return start.Add(time.Duration(offset.Load())) }
    srv := httptest.NewServer(w.Handler())
    t.Cleanup(func() {
        srv.Close()
        w.Close()
    })

    s := createSession(t, srv, "organize", pdfFile("a.pdf"))
    op := decode[operationView](t, call(t, http.MethodPost, srv.URL+"/api/sessions/"+s.ID+"/submit", nil), http.StatusAccepted)
    waitState(t, srv, op.ID, "succeeded")
    require.Eventually(t, func() bool {
        w.mu.Lock()
        e := w.operations[op.ID]
        w.mu.Unlock()
        e.mu.Lock()
        defer e.mu.Unlock()
        return !e.finished.IsZero()
    }, time.Second, time.Millisecond)

    offset.Store(int64(29 * time.Minute))
    decode[operationView](t, call(t, http.MethodGet, srv.URL+"/api/operations/"+op.ID, nil), http.StatusOK)

    offset.Store(int64(31 * time.Minute))
    resp := call(t, http.MethodGet, srv.URL+"/api/operations/"+op.ID, nil)
    resp.Body.Close()
    assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeletingSessionDropsItsOperations(t *testing.T) {
    api := &fakeAPI{async: true}
    srv := newTestServer(t, api, nil)
    s := createSession(t, srv, "organize", pdfFile("long.pdf"))

    op := decode[operationView](t, call(t, http.MethodPost, srv.URL+"/api/sessions/"+s.ID+"/submit", nil), http.StatusAccepted)
    waitState(t, srv, op.ID, "polling")

    resp := call(t, http.MethodDelete, srv.URL+"/api/sessions/"+s.ID, nil)
    resp.Body.Close()
    require.Equal(t, http.StatusNoContent, resp.StatusCode)

    resp = call(t, http.MethodGet, srv.URL+"/api/operations/"+op.ID, nil)
    resp.Body.Close()
    assert.Equal(t, http.StatusNotFound, resp.StatusCode)
    require.Eventually(t, func() bool {
        api.mu.Lock()
        defer api.mu.Unlock()
        return len(api.cancelled) == 1
    }, 3*time.Second, 10*time.Millisecond, "running task cancelled on the server")
}
