package poll

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// scriptedStatus returns canned responses in order and repeats the last one.
type scriptedStatus struct {
	responses []string
	err       error
	calls     int
}

func (s *scriptedStatus) GetString(ctx context.Context, operation string) (string, error) {
	if operation != StatusOperation {
		return "", errors.New("unexpected operation " + operation)
	}
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	i := s.calls - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

// recordingTimer fires immediately and remembers every requested delay.
// When hold returns true the timer never fires.
type recordingTimer struct {
	delays []time.Duration
	hold   func() bool
	c      chan time.Time
}

func newRecordingTimer() *recordingTimer {
	return &recordingTimer{c: make(chan time.Time, 1)}
}

func (r *recordingTimer) Start(d time.Duration) {
	r.delays = append(r.delays, d)
	if r.hold != nil && r.hold() {
		return
	}
	r.c <- time.Now()
}

func (r *recordingTimer) Stop() {}

func (r *recordingTimer) C() <-chan time.Time { return r.c }

// timerFunc hands the same recorder to the engine.
func (r *recordingTimer) timerFunc() backoff.Timer { return r }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduleDelay(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
		attempt  int
		want     time.Duration
	}{
		{"resource first", ResourceImportSchedule, 1, 5 * time.Second},
		{"resource ninth", ResourceImportSchedule, 9, 5 * time.Second},
		{"resource tenth", ResourceImportSchedule, 10, 60 * time.Second},
		{"resource 29th", ResourceImportSchedule, 29, 60 * time.Second},
		{"resource 30th", ResourceImportSchedule, 30, 600 * time.Second},
		{"resource 1000th", ResourceImportSchedule, 1000, 600 * time.Second},
		{"catalog first", CatalogImportSchedule, 1, 2 * time.Second},
		{"catalog tenth", CatalogImportSchedule, 10, 30 * time.Second},
		{"catalog 30th", CatalogImportSchedule, 30, 300 * time.Second},
		{"empty schedule", Schedule{}, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.schedule.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackOffWalksTiersAndResets(t *testing.T) {
	bo := CatalogImportSchedule.BackOff()
	for i := 1; i <= 9; i++ {
		if d := bo.NextBackOff(); d != 2*time.Second {
			t.Fatalf("attempt %d: got %s", i, d)
		}
	}
	if d := bo.NextBackOff(); d != 30*time.Second {
		t.Fatalf("attempt 10: got %s", d)
	}
	bo.Reset()
	if d := bo.NextBackOff(); d != 2*time.Second {
		t.Fatalf("after reset: got %s", d)
	}
}

func TestWaitCompletesAfterTwoSleeps(t *testing.T) {
	status := &scriptedStatus{responses: []string{"importing", "importing", "done"}}
	rec := newRecordingTimer()
	engine := NewEngine(status, ResourceImportSchedule, discardLogger()).WithTimer(rec.timerFunc)

	res, err := engine.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if res.State != StateCompleted || res.Message != "done" {
		t.Errorf("result = %+v", res)
	}
	if res.Attempts != 3 || status.calls != 3 {
		t.Errorf("attempts = %d, calls = %d", res.Attempts, status.calls)
	}
	if len(rec.delays) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(rec.delays))
	}
	for _, d := range rec.delays {
		if d != 5*time.Second {
			t.Errorf("sleep %s, want tier-1 5s", d)
		}
	}
	if res.Err() != nil {
		t.Errorf("completed result should have nil Err, got %v", res.Err())
	}
}

func TestWaitErrorStatusFails(t *testing.T) {
	status := &scriptedStatus{responses: []string{"ERROR: disk full"}}
	rec := newRecordingTimer()
	engine := NewEngine(status, ResourceImportSchedule, discardLogger()).WithTimer(rec.timerFunc)

	res, err := engine.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if res.State != StateFailed {
		t.Fatalf("State = %s, want failed", res.State)
	}
	if res.Message != "ERROR: disk full" {
		t.Errorf("Message = %q", res.Message)
	}
	if len(rec.delays) != 0 {
		t.Errorf("expected no sleeps, got %d", len(rec.delays))
	}

	var failure *RemoteImportFailure
	if !errors.As(res.Err(), &failure) || failure.Message != "ERROR: disk full" {
		t.Errorf("Err() = %v", res.Err())
	}
}

func TestWaitTerminalStatuses(t *testing.T) {
	tests := []struct {
		status string
		want   State
	}{
		{"", StateCompleted},
		{"Importing", StateCompleted},
		{"idle", StateCompleted},
		{"ERROR", StateFailed},
		{"ERROR in catalog", StateFailed},
		{"error: lowercase is not a failure", StateCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			engine := NewEngine(&scriptedStatus{responses: []string{tt.status}}, CatalogImportSchedule, discardLogger()).
				WithTimer(newRecordingTimer().timerFunc)
			res, err := engine.Wait(context.Background())
			if err != nil {
				t.Fatalf("Wait() failed: %v", err)
			}
			if res.State != tt.want {
				t.Errorf("State = %s, want %s", res.State, tt.want)
			}
		})
	}
}

func TestWaitEscalatesTiers(t *testing.T) {
	responses := make([]string, 0, 32)
	for i := 0; i < 31; i++ {
		responses = append(responses, "importing")
	}
	responses = append(responses, "done")

	rec := newRecordingTimer()
	engine := NewEngine(&scriptedStatus{responses: responses}, CatalogImportSchedule, discardLogger()).WithTimer(rec.timerFunc)
	if _, err := engine.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	if len(rec.delays) != 31 {
		t.Fatalf("expected 31 sleeps, got %d", len(rec.delays))
	}
	if rec.delays[8] != 2*time.Second || rec.delays[9] != 30*time.Second ||
		rec.delays[28] != 30*time.Second || rec.delays[29] != 300*time.Second {
		t.Errorf("unexpected tier transitions: %v", rec.delays)
	}
}

func TestWaitTransportErrorAborts(t *testing.T) {
	boom := errors.New("connection reset")
	engine := NewEngine(&scriptedStatus{err: boom}, ResourceImportSchedule, discardLogger()).
		WithTimer(newRecordingTimer().timerFunc)

	_, err := engine.Wait(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	status := &scriptedStatus{responses: []string{"importing"}}
	rec := newRecordingTimer()
	rec.hold = func() bool {
		if status.calls == 3 {
			cancel()
			return true
		}
		return false
	}
	engine := NewEngine(status, ResourceImportSchedule, discardLogger()).WithTimer(rec.timerFunc)

	_, err := engine.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if status.calls != 3 {
		t.Errorf("calls = %d, want 3", status.calls)
	}
}

func TestWaitTransportErrorIsNotRetried(t *testing.T) {
	status := &scriptedStatus{err: errors.New("http error 503")}
	rec := newRecordingTimer()
	engine := NewEngine(status, ResourceImportSchedule, discardLogger()).WithTimer(rec.timerFunc)

	if _, err := engine.Wait(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if status.calls != 1 || len(rec.delays) != 0 {
		t.Errorf("calls = %d, delays = %v, want one call and no waits", status.calls, rec.delays)
	}
}

func TestWaitDefaultTimerWaitsForSchedule(t *testing.T) {
	status := &scriptedStatus{responses: []string{"importing", "done"}}
	schedule := Schedule{{Below: 0, Delay: 20 * time.Millisecond}}

	start := time.Now()
	res, err := NewEngine(status, schedule, discardLogger()).Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Wait returned before the scheduled delay")
	}
}

func TestWaitTracesFirstAndEveryFifthAttempt(t *testing.T) {
	responses := make([]string, 0, 13)
	for i := 0; i < 12; i++ {
		responses = append(responses, "importing")
	}
	responses = append(responses, "done")

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	engine := NewEngine(&scriptedStatus{responses: responses}, ResourceImportSchedule, logger).
		WithTimer(newRecordingTimer().timerFunc)
	if _, err := engine.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	// attempts 1, 5 and 10
	if got := strings.Count(buf.String(), "remote import still running"); got != 3 {
		t.Errorf("trace lines = %d, want 3\n%s", got, buf.String())
	}
}
