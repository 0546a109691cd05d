// Package poll waits for the remote importer to finish an accepted import.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// StatusOperation is the remote operation reporting importer state.
const StatusOperation = "IsImporting"

// importingStatus is the literal the importer answers while busy.
const importingStatus = "importing"

// State is a position in the submit/poll state machine.
type State string

const (
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// StatusClient fetches the importer status string.
type StatusClient interface {
	GetString(ctx context.Context, operation string) (string, error)
}

// TimerFunc creates the timer that spaces out status checks. A fresh timer
// is created for every Wait.
type TimerFunc func() backoff.Timer

// Result is the terminal outcome of a poll loop.
type Result struct {
	State    State
	Message  string
	Attempts int
}

// Err returns a *RemoteImportFailure for a failed result and nil otherwise.
func (r *Result) Err() error {
	if r.State == StateFailed {
		return &RemoteImportFailure{Message: r.Message}
	}
	return nil
}

// RemoteImportFailure carries the importer's ERROR status text.
type RemoteImportFailure struct {
	Message string
}

func (e *RemoteImportFailure) Error() string {
	return fmt.Sprintf("remote import failed: %s", e.Message)
}

// errStillImporting marks a status check that must be retried.
var errStillImporting = errors.New("remote import still running")

// Engine polls StatusOperation until the importer leaves the importing state.
type Engine struct {
	client     StatusClient
	schedule   Schedule
	logger     *slog.Logger
	newTimer   TimerFunc
	traceEvery int
}

// NewEngine creates a poll engine for one call site's schedule.
func NewEngine(client StatusClient, schedule Schedule, logger *slog.Logger) *Engine {
	return &Engine{
		client:     client,
		schedule:   schedule,
		logger:     logger,
		traceEvery: 5,
	}
}

// WithTimer replaces the timer used between status checks, mainly for tests.
func (e *Engine) WithTimer(fn TimerFunc) *Engine {
	e.newTimer = fn
	return e
}

// Wait polls until a terminal state is reached. There is no attempt cap; the
// loop only ends early when ctx is cancelled or a status call fails.
func (e *Engine) Wait(ctx context.Context) (*Result, error) {
	var (
		res       *Result
		statusErr error
		attempt   int
	)
	state := StateSubmitted

	check := func() error {
		attempt++
		status, err := e.client.GetString(ctx, StatusOperation)
		if err != nil {
			statusErr = err
			return backoff.Permanent(err)
		}
		if status == importingStatus {
			state = StatePolling
			return errStillImporting
		}

		res = &Result{State: StateCompleted, Message: status, Attempts: attempt}
		if strings.HasPrefix(status, "ERROR") {
			res.State = StateFailed
			e.logger.Error("remote import failed", "attempt", attempt, "message", status)
		} else {
			e.logger.Info("remote import completed", "attempt", attempt, "message", status)
		}
		return nil
	}

	notify := func(_ error, next time.Duration) {
		if attempt == 1 || attempt%e.traceEvery == 0 {
			e.logger.Debug("remote import still running", "attempt", attempt, "next_check", next)
		}
	}

	var timer backoff.Timer
	if e.newTimer != nil {
		timer = e.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(check, backoff.WithContext(e.schedule.BackOff(), ctx), notify, timer)
	switch {
	case err == nil:
		return res, nil
	case statusErr != nil:
		e.logger.Error("import status check failed", "attempt", attempt, "state", state, "error", statusErr)
		return nil, fmt.Errorf("polling import status: %w", statusErr)
	default:
		e.logger.Warn("import polling cancelled", "attempt", attempt, "error", err)
		return nil, fmt.Errorf("polling import status cancelled: %w", err)
	}
}
