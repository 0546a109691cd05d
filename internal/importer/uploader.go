package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BadgerOps/pimsync/internal/config"
	"github.com/BadgerOps/pimsync/internal/gateway"
	"github.com/BadgerOps/pimsync/internal/poll"
	"github.com/BadgerOps/pimsync/internal/record"
	"github.com/BadgerOps/pimsync/internal/remote"
)

// ImportOperation is the remote operation that accepts a resource batch.
const ImportOperation = "ImportResources"

// Outcome is the terminal state of one batch.
type Outcome string

const (
	// OutcomeCompleted means the importer accepted the batch and finished
	// without an ERROR status.
	OutcomeCompleted Outcome = "completed"
	// OutcomeRejected means the importer answered false; nothing was polled.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means the importer accepted the batch but finished with
	// an ERROR status.
	OutcomeFailed Outcome = "failed"
)

// ErrBatchRejected is returned in strict mode when the importer answers false.
var ErrBatchRejected = errors.New("batch not accepted by remote importer")

// BatchResult records what happened to one batch.
type BatchResult struct {
	Index    int           `json:"index"`
	Size     int           `json:"size"`
	Outcome  Outcome       `json:"outcome"`
	Message  string        `json:"message,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// Report summarizes one upload.
type Report struct {
	RunID     string        `json:"run_id,omitempty"`
	FileName  string        `json:"file_name"`
	Records   int           `json:"records"`
	Batches   []BatchResult `json:"batches"`
	Disabled  bool          `json:"disabled,omitempty"`
	Skipped   bool          `json:"skipped,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
}

// Counts returns the number of batches per outcome.
func (r *Report) Counts() (completed, rejected, failed int) {
	for _, b := range r.Batches {
		switch b.Outcome {
		case OutcomeCompleted:
			completed++
		case OutcomeRejected:
			rejected++
		case OutcomeFailed:
			failed++
		}
	}
	return completed, rejected, failed
}

// Succeeded reports whether every batch completed.
func (r *Report) Succeeded() bool {
	_, rejected, failed := r.Counts()
	return rejected == 0 && failed == 0
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithBatchSize sets the number of records per request, capped at config.MaxBatchSize.
func WithBatchSize(n int) Option {
	return func(u *Uploader) { u.batchSize = n }
}

// WithStrict makes rejected and failed batches abort the upload with an error.
func WithStrict(strict bool) Option {
	return func(u *Uploader) { u.strict = strict }
}

// WithPoller replaces the engine that waits for accepted batches.
func WithPoller(p *poll.Engine) Option {
	return func(u *Uploader) { u.poller = p }
}

// WithBatchHook registers fn to be called after each batch reaches a terminal outcome.
func WithBatchHook(fn func(BatchResult)) Option {
	return func(u *Uploader) { u.onBatch = fn }
}

// Uploader sends records to ImportOperation in ordered batches.
type Uploader struct {
	gateway   *gateway.Gateway
	client    *remote.Client
	poller    *poll.Engine
	logger    *slog.Logger
	batchSize int
	strict    bool
	onBatch   func(BatchResult)
}

// NewUploader creates an Uploader that polls with poll.ResourceImportSchedule.
func NewUploader(gw *gateway.Gateway, client *remote.Client, logger *slog.Logger, opts ...Option) *Uploader {
	u := &Uploader{
		gateway:   gw,
		client:    client,
		poller:    poll.NewEngine(client, poll.ResourceImportSchedule, logger),
		logger:    logger,
		batchSize: config.MaxBatchSize,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload sends records under fileName. All batches run inside one gateway
// hold; batch N+1 is sent only after batch N reached a terminal outcome.
// A transport error aborts the remaining batches. The report is returned
// together with the error and covers the batches finished so far.
func (u *Uploader) Upload(ctx context.Context, fileName string, records []record.Record) (*Report, error) {
	report := &Report{
		FileName:  fileName,
		Records:   len(records),
		Batches:   []BatchResult{},
		StartTime: time.Now(),
	}
	defer func() { report.EndTime = time.Now() }()

	if !u.client.Enabled() {
		u.logger.Info("endpoint disabled, skipping resource import", "file_name", fileName)
		report.Disabled = true
		return report, nil
	}
	if len(records) == 0 {
		u.logger.Info("manifest contains no resources, nothing to import", "file_name", fileName)
		report.Skipped = true
		return report, nil
	}

	batches := Partition(fileName, records, u.batchSize)
	u.logger.Info("starting resource import",
		"file_name", fileName, "records", len(records), "batches", len(batches),
		"endpoint", u.client.Endpoint().URL(ImportOperation))

	err := u.gateway.Do(ctx, ImportOperation, func(ctx context.Context) error {
		for _, b := range batches {
			res, err := u.uploadBatch(ctx, b)
			if err != nil {
				return err
			}
			report.Batches = append(report.Batches, *res)
			if u.onBatch != nil {
				u.onBatch(*res)
			}

			if u.strict {
				switch res.Outcome {
				case OutcomeRejected:
					return fmt.Errorf("batch %d of %s: %w", b.Index, fileName, ErrBatchRejected)
				case OutcomeFailed:
					return fmt.Errorf("batch %d of %s: %w", b.Index, fileName, &poll.RemoteImportFailure{Message: res.Message})
				}
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	completed, rejected, failed := report.Counts()
	u.logger.Info("resource import finished",
		"file_name", fileName, "completed", completed, "rejected", rejected, "failed", failed)
	return report, nil
}

func (u *Uploader) uploadBatch(ctx context.Context, b Batch) (*BatchResult, error) {
	start := time.Now()
	res := &BatchResult{Index: b.Index, Size: len(b.Records)}
	endpoint := u.client.Endpoint().URL(ImportOperation)

	raw, err := u.client.Post(ctx, ImportOperation, b.envelope())
	if err != nil {
		attrs := []any{"file_name", b.FileName, "batch", b.Index, "endpoint", endpoint, "error", err}
		var te *remote.TransportError
		if errors.As(err, &te) && te.StatusCode != 0 {
			attrs = append(attrs, "status", te.StatusCode)
		}
		u.logger.Error("resource batch upload failed", attrs...)
		return nil, fmt.Errorf("uploading batch %d of %s: %w", b.Index, b.FileName, err)
	}

	if !remote.DecodeBool(raw) {
		res.Outcome = OutcomeRejected
		res.Message = "importer did not accept the batch"
		res.Duration = time.Since(start)
		u.logger.Warn("resource batch not accepted, continuing without polling",
			"file_name", b.FileName, "batch", b.Index, "endpoint", endpoint)
		return res, nil
	}

	pr, err := u.poller.Wait(ctx)
	if err != nil {
		u.logger.Error("waiting for resource batch failed",
			"file_name", b.FileName, "batch", b.Index, "endpoint", endpoint, "error", err)
		return nil, fmt.Errorf("waiting for batch %d of %s: %w", b.Index, b.FileName, err)
	}

	res.Attempts = pr.Attempts
	res.Message = pr.Message
	res.Duration = time.Since(start)
	if pr.State == poll.StateFailed {
		res.Outcome = OutcomeFailed
		u.logger.Error("resource batch import failed",
			"file_name", b.FileName, "batch", b.Index, "endpoint", endpoint, "message", pr.Message)
	} else {
		res.Outcome = OutcomeCompleted
		u.logger.Debug("resource batch imported", "file_name", b.FileName, "batch", b.Index, "records", res.Size)
	}
	return res, nil
}
