package web

import (
    "net/http"
    "strconv"

    "github.com/local/convertdesk/internal/pageset"
    "github.com/local/convertdesk/internal/tasks"
)

// reorderRequest moves Dragged in front of Before; an empty Before moves it
// to the end. Pages are 0-based source indices, files are file ids.
type reorderRequest struct {
    Dragged string `json:"dragged"`
    Before  string `json:"before"`
}

func pageIndex(s string) (int, error) {
    n, err := strconv.Atoi(s)
    if err != nil {
        return 0, &tasks.Error{Kind: tasks.KindValidation, Message: "invalid page " + strconv.Quote(s), Err: err}
    }
    return n, nil
}

func (w *Web) handleReorder(wr http.ResponseWriter, r *http.Request, s *Session) {
    var req reorderRequest
    if err := decodeJSON(wr, r, &req); err != nil {
        writeError(wr, err)
        return
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    switch {
    case s.order != nil:
        if err := s.order.MoveByID(req.Dragged, req.Before); err != nil {
            writeError(wr, err)
            return
        }
    case s.pages != nil:
        dragged, err := pageIndex(req.Dragged)
        if err != nil {
            writeError(wr, err)
            return
        }
        var before *int
        if req.Before != "" {
            b, err := pageIndex(req.Before)
            if err != nil {
                writeError(wr, err)
                return
            }
            before = &b
        }
        s.pages.Move(dragged, before)
    default:
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "this tool has nothing to reorder"})
        return
    }
    writeJSON(wr, http.StatusOK, s.viewLocked())
}

func (w *Web) handleRotatePage(wr http.ResponseWriter, r *http.Request, s *Session) {
    var req struct {
        Degrees int `json:"degrees"`
    }
    if err := decodeJSON(wr, r, &req); err != nil {
        writeError(wr, err)
        return
    }
    if req.Degrees%90 != 0 {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "pages rotate in steps of 90 degrees"})
        return
    }
    page, err := pageIndex(r.PathValue("page"))
    if err != nil {
        writeError(wr, err)
        return
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.pages == nil {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "this tool does not organize pages"})
        return
    }
    if err := s.pages.Rotate(page, req.Degrees); err != nil {
        writeError(wr, err)
        return
    }
    writeJSON(wr, http.StatusOK, s.viewLocked())
}

func (w *Web) handleRemovePage(wr http.ResponseWriter, r *http.Request, s *Session) {
    page, err := pageIndex(r.PathValue("page"))
    if err != nil {
        writeError(wr, err)
        return
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.pages == nil {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "this tool does not organize pages"})
        return
    }
    if err := s.pages.Remove(page); err != nil {
        writeError(wr, err)
        return
    }
    writeJSON(wr, http.StatusOK, s.viewLocked())
}

// handleAddFiles appends files to a merge list in upload order.
func (w *Web) handleAddFiles(wr http.ResponseWriter, r *http.Request, s *Session) {
    if !s.Tool.Multi {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "this tool takes a single file"})
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
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, u := range ups {
        if err := s.order.Add(u.ref); err != nil {
            writeError(wr, err)
            return
        }
        s.files[u.ref.ID] = u
    }
    writeJSON(wr, http.StatusOK, s.viewLocked())
}

func (w *Web) handleRemoveFile(wr http.ResponseWriter, r *http.Request, s *Session) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.order == nil {
        writeError(wr, &tasks.Error{Kind: tasks.KindValidation, Message: "this tool takes a single file"})
        return
    }
    ref, ok := s.order.Find(r.PathValue("file"))
    if !ok {
        writeError(wr, notFound("file"))
        return
    }
    if err := s.order.Remove(ref); err != nil {
        writeError(wr, err)
        return
    }
    delete(s.files, ref.ID)
    writeJSON(wr, http.StatusOK, s.viewLocked())
}

// mergeUploadsLocked returns the merge inputs in list order.
func (s *Session) mergeUploadsLocked() ([]tasks.Upload, error) {
    if err := s.order.Ready(); err != nil {
        return nil, err
    }
    var out []tasks.Upload
    for _, ref := range s.order.MergeParts() {
        u, ok := s.files[ref.ID]
        if !ok {
            return nil, pageset.ErrUnknown
        }
        out = append(out, tasks.Upload{Field: s.Tool.FileField, Name: ref.Name, Data: u.data})
    }
    return out, nil
}
