// Package tasks talks to the conversion API: it submits jobs, polls
// background tasks to a terminal status, downloads results and owns the
// lifecycle (including cancellation) of each operation.
package tasks

import "strings"

// Status is the task state tag reported by the API.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusStarted  Status = "STARTED"
	StatusProgress Status = "PROGRESS"
	StatusSuccess  Status = "SUCCESS"
	StatusFailure  Status = "FAILURE"
	StatusRevoked  Status = "REVOKED"
)

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusRevoked:
		return true
	}
	return false
}

func ParseStatus(s string) Status { return Status(strings.ToUpper(strings.TrimSpace(s))) }

// StatusReport is the body of GET /api/tasks/{id}/status/.
type StatusReport struct {
	Status      Status   `json:"status"`
	Progress    *float64 `json:"progress,omitempty"`
	CurrentStep string   `json:"current_step,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Percent returns the reported progress clamped to [0,100], or -1 if absent.
func (r StatusReport) Percent() int {
	if r.Progress == nil {
		return -1
	}
	p := int(*r.Progress)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Handle identifies an accepted background task. The token is a capability
// and is never logged.
type Handle struct {
	TaskID    string `json:"task_id"`
	TaskToken string `json:"task_token"`
}

// Artifact is a finished conversion result.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}
