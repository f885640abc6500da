package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/convertdesk/internal/config"
	"github.com/local/convertdesk/internal/metrics"
)

// StatusSource fetches task status; *Client implements it.
type StatusSource interface {
	Status(ctx context.Context, h Handle) (StatusReport, error)
}

// ProgressFunc receives a non-decreasing percentage and the server's current step.
type ProgressFunc func(percent int, step string)

// Poller polls a task until it reaches a terminal status or MaxAttempts
// status requests have been issued.
type Poller struct {
	Source      StatusSource
	Interval    time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
}

func NewPoller(src StatusSource, cfg config.PollConfig) *Poller {
	return &Poller{
		Source:      src,
		Interval:    cfg.Interval,
		MaxBackoff:  cfg.MaxBackoff,
		MaxAttempts: cfg.MaxAttempts,
	}
}

// Poll waits Interval before each status request. Transport failures double
// the wait (up to MaxBackoff) and count against MaxAttempts; FAILURE and
// REVOKED end with a KindServer error; SUCCESS returns its report.
func (p *Poller) Poll(ctx context.Context, h Handle, onProgress ProgressFunc) (StatusReport, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = 2500 * time.Millisecond
	}
	maxBackoff := p.MaxBackoff
	if maxBackoff < interval {
		maxBackoff = interval
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	if onProgress == nil {
		onProgress = func(int, string) {}
	}

	shown := 0
	wait := interval
	var last StatusReport
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer.Reset(wait)
		}
		select {
		case <-ctx.Done():
			return last, &Error{Kind: KindCancelled, Err: ctx.Err()}
		case <-timer.C:
		}

		rep, err := p.Source.Status(ctx, h)
		if err != nil {
			if ctx.Err() != nil || IsCancelled(err) {
				return last, &Error{Kind: KindCancelled, Err: err}
			}
			if !IsTransient(err) {
				metrics.IncPoll("error")
				return last, err
			}
			metrics.IncPoll("transport_error")
			wait = min(wait*2, maxBackoff)
			log.Warn().Err(err).Str("task_id", h.TaskID).Int("attempt", attempt).Dur("next_in", wait).Msg("status poll failed, backing off")
			continue
		}
		last = rep
		wait = interval

		switch rep.Status {
		case StatusSuccess:
			metrics.IncPoll("terminal")
			shown = 100
			onProgress(shown, rep.CurrentStep)
			return rep, nil
		case StatusFailure, StatusRevoked:
			metrics.IncPoll("terminal")
			msg := rep.Error
			if msg == "" {
				msg = "conversion failed"
				if rep.Status == StatusRevoked {
					msg = "task was revoked"
				}
			}
			return rep, &Error{Kind: KindServer, Message: msg}
		case StatusPending, StatusStarted, StatusProgress:
		default:
			log.Debug().Str("task_id", h.TaskID).Str("status", string(rep.Status)).Msg("unknown task status, polling on")
		}
		metrics.IncPoll("pending")
		if pct := rep.Percent(); pct > shown {
			shown = pct
		}
		onProgress(shown, rep.CurrentStep)
	}
	return last, &Error{Kind: KindTimeout, Message: fmt.Sprintf("task %s did not finish after %d status checks", h.TaskID, attempts)}
}
