package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BadgerOps/pimsync/internal/config"
	"github.com/BadgerOps/pimsync/internal/gateway"
	"github.com/BadgerOps/pimsync/internal/manifest"
	"github.com/BadgerOps/pimsync/internal/poll"
	"github.com/BadgerOps/pimsync/internal/record"
	"github.com/BadgerOps/pimsync/internal/remote"
	"github.com/BadgerOps/pimsync/internal/source"
	"github.com/BadgerOps/pimsync/internal/store"
)

// Runner performs a complete resource import: resolve the endpoint, fetch
// and decode the manifest, build records, upload them, and record the run.
type Runner struct {
	cfg     *config.Config
	gateway *gateway.Gateway
	source  source.Source
	store   *store.Store
	logger  *slog.Logger
	timer   poll.TimerFunc
}

// NewRunner creates a Runner. st may be nil, in which case no history is kept.
func NewRunner(cfg *config.Config, gw *gateway.Gateway, src source.Source, st *store.Store, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		gateway: gw,
		source:  src,
		store:   st,
		logger:  logger,
	}
}

// WithTimer replaces the timer between status checks, mainly for tests.
func (r *Runner) WithTimer(fn poll.TimerFunc) *Runner {
	r.timer = fn
	return r
}

// ImportResources imports the manifest stored under fileName. Endpoint
// settings are resolved first, so a configuration error never reaches the
// network or the manifest source.
func (r *Runner) ImportResources(ctx context.Context, fileName string) (*Report, error) {
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)

	run := &store.ImportRun{
		ID:        runID,
		FileName:  fileName,
		Status:    store.RunRunning,
		StartTime: time.Now(),
	}
	r.recordStart(logger, run)

	report, err := r.importResources(ctx, logger, fileName, run)
	if report != nil {
		report.RunID = runID
	}
	r.recordFinish(logger, run, report, err)
	return report, err
}

func (r *Runner) importResources(ctx context.Context, logger *slog.Logger, fileName string, run *store.ImportRun) (*Report, error) {
	endpoint, err := config.ResolveEndpoint(r.cfg.EffectiveSettings())
	if err != nil {
		logger.Error("invalid endpoint configuration", "file_name", fileName, "error", err)
		return nil, err
	}

	client := remote.NewClient(endpoint, logger)
	if !client.Enabled() {
		logger.Info("endpoint disabled, skipping resource import", "file_name", fileName)
		now := time.Now()
		return &Report{FileName: fileName, Batches: []BatchResult{}, Disabled: true, StartTime: now, EndTime: now}, nil
	}

	rc, err := source.OpenManifest(ctx, r.source, fileName)
	if err != nil {
		logger.Error("failed to open manifest", "file_name", fileName, "error", err)
		return nil, fmt.Errorf("opening manifest %s: %w", fileName, err)
	}
	m, err := manifest.Decode(rc)
	rc.Close()
	if err != nil {
		logger.Error("failed to decode manifest", "file_name", fileName, "error", err)
		return nil, err
	}

	records := record.NewBuilder(r.cfg.Import.PathSeparator).BuildAll(m)
	run.Records = len(records)

	poller := poll.NewEngine(client, poll.ResourceImportSchedule, logger)
	if r.timer != nil {
		poller.WithTimer(r.timer)
	}
	uploader := NewUploader(r.gateway, client, logger,
		WithBatchSize(r.cfg.Import.BatchSize),
		WithStrict(r.cfg.Import.Strict),
		WithPoller(poller),
		WithBatchHook(func(b BatchResult) { r.recordBatch(logger, run.ID, b) }),
	)
	return uploader.Upload(ctx, fileName, records)
}

func (r *Runner) recordStart(logger *slog.Logger, run *store.ImportRun) {
	if r.store == nil {
		return
	}
	if err := r.store.CreateImportRun(run); err != nil {
		logger.Warn("failed to record import run", "error", err)
	}
}

func (r *Runner) recordBatch(logger *slog.Logger, runID string, b BatchResult) {
	if r.store == nil {
		return
	}
	err := r.store.AddImportBatch(&store.ImportBatch{
		RunID:      runID,
		BatchIndex: b.Index,
		Size:       b.Size,
		Outcome:    string(b.Outcome),
		Message:    b.Message,
		Attempts:   b.Attempts,
		DurationMs: b.Duration.Milliseconds(),
	})
	if err != nil {
		logger.Warn("failed to record import batch", "batch", b.Index, "error", err)
	}
}

func (r *Runner) recordFinish(logger *slog.Logger, run *store.ImportRun, report *Report, err error) {
	run.EndTime = time.Now()
	if report != nil {
		run.Records = report.Records
		run.Batches = len(report.Batches)
		run.BatchesCompleted, run.BatchesRejected, run.BatchesFailed = report.Counts()
	}

	switch {
	case err != nil:
		run.Status = store.RunFailed
		run.ErrorMessage = err.Error()
	case report.Disabled:
		run.Status = store.RunDisabled
	case !report.Succeeded():
		run.Status = store.RunPartial
	default:
		run.Status = store.RunSucceeded
	}

	if r.store == nil {
		return
	}
	if err := r.store.UpdateImportRun(run); err != nil {
		logger.Warn("failed to update import run", "error", err)
	}
}
