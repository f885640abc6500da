package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/convertdesk/internal/config"
)

const (
	headerCSRF      = "X-CSRFToken"
	headerTaskToken = "X-Task-Token"
	headerRequestID = "X-Request-ID"
	csrfCookie      = "csrftoken"

	maxErrorBody = 4096
)

// Upload is one file part of a submission.
type Upload struct {
	Field string // form field, "file" when empty
	Name  string
	Data  []byte
}

// Request is a conversion submission: POST Endpoint with files and params
// as multipart/form-data.
type Request struct {
	Tool     string
	Endpoint string
	Files    []Upload
	Params   url.Values
}

// Submission is the outcome of Submit: either a synchronous Artifact or a
// Handle for a background task.
type Submission struct {
	Artifact *Artifact
	Handle   *Handle
}

// Client is a thin REST client for the conversion API.
type Client struct {
	BaseURL        string
	CSRFToken      string
	RequestTimeout time.Duration
	HTTP           *http.Client
}

func NewClient(cfg config.APIConfig) *Client {
	return &Client{
		BaseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		CSRFToken:      cfg.CSRFToken,
		RequestTimeout: cfg.RequestTimeout,
		HTTP:           &http.Client{},
	}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, h *Handle) (*response, error) {
	if c.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.RequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "build request", Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.CSRFToken != "" {
		req.Header.Set(headerCSRF, c.CSRFToken)
		req.AddCookie(&http.Cookie{Name: csrfCookie, Value: c.CSRFToken})
	}
	if h != nil && h.TaskToken != "" {
		req.Header.Set(headerTaskToken, h.TaskToken)
	}
	req.Header.Set(headerRequestID, uuid.NewString())

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return &Error{Kind: KindCancelled, Err: err}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	default:
		return &Error{Kind: KindTransport, Message: "network error", Err: err}
	}
}

// serverError builds a KindServer error from a non-2xx response, preferring
// the structured message of the payload.
func serverError(r *response) error {
	msg := ""
	var payload struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(r.body, &payload) == nil {
		for _, m := range []string{payload.Error, payload.Detail, payload.Message} {
			if m != "" {
				msg = m
				break
			}
		}
	}
	if msg == "" {
		ct := r.header.Get("Content-Type")
		if strings.HasPrefix(ct, "text/plain") && len(r.body) > 0 {
			msg = strings.TrimSpace(string(r.body[:min(len(r.body), maxErrorBody)]))
		}
	}
	if msg == "" {
		msg = http.StatusText(r.status)
	}
	return &Error{Kind: KindServer, StatusCode: r.status, Message: msg}
}

// Submit posts a conversion request. A 202 response yields a Handle; any
// other 2xx response body is the result itself.
func (c *Client) Submit(ctx context.Context, req Request) (*Submission, error) {
	if req.Endpoint == "" {
		return nil, validationError("no endpoint for tool %q", req.Tool)
	}
	if len(req.Files) == 0 {
		return nil, validationError("no file selected")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range req.Files {
		field := f.Field
		if field == "" {
			field = "file"
		}
		part, err := mw.CreateFormFile(field, f.Name)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Message: "encode upload", Err: err}
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, &Error{Kind: KindValidation, Message: "encode upload", Err: err}
		}
	}
	for k, vs := range req.Params {
		for _, v := range vs {
			if err := mw.WriteField(k, v); err != nil {
				return nil, &Error{Kind: KindValidation, Message: "encode field " + k, Err: err}
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, &Error{Kind: KindValidation, Message: "encode form", Err: err}
	}

	r, err := c.do(ctx, http.MethodPost, req.Endpoint, &buf, mw.FormDataContentType(), nil)
	if err != nil {
		return nil, err
	}
	switch {
	case r.status == http.StatusAccepted:
		var h Handle
		if err := json.Unmarshal(r.body, &h); err != nil || h.TaskID == "" {
			return nil, &Error{Kind: KindServer, StatusCode: r.status, Message: "accepted without a task id", Err: err}
		}
		log.Debug().Str("tool", req.Tool).Str("task_id", h.TaskID).Msg("submission accepted as background task")
		return &Submission{Handle: &h}, nil
	case r.status >= 200 && r.status < 300:
		return &Submission{Artifact: artifactFrom(r)}, nil
	default:
		return nil, serverError(r)
	}
}

// Status fetches the current status of a background task.
func (c *Client) Status(ctx context.Context, h Handle) (StatusReport, error) {
	r, err := c.do(ctx, http.MethodGet, taskPath(h, "status"), nil, "", &h)
	if err != nil {
		return StatusReport{}, err
	}
	if r.status != http.StatusOK {
		return StatusReport{}, serverError(r)
	}
	var rep StatusReport
	if err := json.Unmarshal(r.body, &rep); err != nil {
		return StatusReport{}, &Error{Kind: KindServer, StatusCode: r.status, Message: "malformed status response", Err: err}
	}
	rep.Status = ParseStatus(string(rep.Status))
	return rep, nil
}

// Result downloads the artifact of a finished task.
func (c *Client) Result(ctx context.Context, h Handle) (*Artifact, error) {
	r, err := c.do(ctx, http.MethodGet, taskPath(h, "result"), nil, "", &h)
	if err != nil {
		return nil, err
	}
	if r.status != http.StatusOK {
		return nil, serverError(r)
	}
	return artifactFrom(r), nil
}

// Release frees server-side storage of a downloaded result.
func (c *Client) Release(ctx context.Context, h Handle) error {
	r, err := c.do(ctx, http.MethodDelete, taskPath(h, "result"), nil, "", &h)
	if err != nil {
		return err
	}
	if r.status >= 300 && r.status != http.StatusNotFound {
		return serverError(r)
	}
	return nil
}

// Cancel asks the server to stop a task.
func (c *Client) Cancel(ctx context.Context, h Handle) error {
	return c.postHandle(ctx, "/api/cancel-task/", h)
}

// Abandon tells the server nobody will collect the task's result.
func (c *Client) Abandon(ctx context.Context, h Handle) error {
	return c.postHandle(ctx, "/api/operation-abandon/", h)
}

func (c *Client) postHandle(ctx context.Context, path string, h Handle) error {
	body, _ := json.Marshal(h)
	r, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", &h)
	if err != nil {
		return err
	}
	if r.status >= 300 {
		return serverError(r)
	}
	return nil
}

func taskPath(h Handle, leaf string) string {
	return "/api/tasks/" + url.PathEscape(h.TaskID) + "/" + leaf + "/"
}

func artifactFrom(r *response) *Artifact {
	a := &Artifact{ContentType: r.header.Get("Content-Type"), Data: r.body}
	if cd := r.header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			a.Name = params["filename"]
		}
	}
	if a.Name == "" {
		a.Name = "result"
		if exts, _ := mime.ExtensionsByType(a.ContentType); len(exts) > 0 {
			a.Name += exts[0]
		}
	}
	return a
}

// String omits the token.
func (h Handle) String() string { return fmt.Sprintf("task %s", h.TaskID) }
