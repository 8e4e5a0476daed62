package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/core/uploadqueue"
	"github.com/kirillkom/docflow/internal/infrastructure/ledger/sqlite"
	"github.com/kirillkom/docflow/internal/observability/metrics"
)

type sessionOptions struct {
	concurrency     int
	maxFileBytes    int64
	reuploadOnRetry bool
	retryFailed     bool
	jsonOutput      bool
	metricsFile     string
}

// uploadSession wires one controller run to the renderer, ledger and metrics.
type uploadSession struct {
	cmd     *cobra.Command
	logger  *slog.Logger
	ctrl    *uploadqueue.Controller
	metrics *metrics.QueueMetrics
	ledger  *sqlite.Ledger
	opts    sessionOptions

	renderer *progressRenderer
}

func newUploadSession(cmd *cobra.Command, endpoint ports.ProcessingEndpoint, ledger *sqlite.Ledger, logger *slog.Logger, opts sessionOptions) *uploadSession {
	queueMetrics := metrics.NewQueueMetrics("uploader")
	ctrl := uploadqueue.New(endpoint, uploadqueue.Options{
		Concurrency:     opts.concurrency,
		MaxFileSize:     opts.maxFileBytes,
		ReuploadOnRetry: opts.reuploadOnRetry,
		Logger:          logger,
		Recorder:        queueMetrics,
	})
	s := &uploadSession{
		cmd:     cmd,
		logger:  logger,
		ctrl:    ctrl,
		metrics: queueMetrics,
		ledger:  ledger,
		opts:    opts,
	}
	if !opts.jsonOutput {
		out := cmd.OutOrStdout()
		s.renderer = newProgressRenderer(out, isTerminal(out))
		ctrl.Subscribe(s.renderer.Render)
	}
	return s
}

// run starts the queue and blocks until it drains or the command is
// interrupted, in which case unfinished items are cancelled.
func (s *uploadSession) run() (uploadqueue.Snapshot, error) {
	ctx, stop := signal.NotifyContext(s.cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.ctrl.Start()
	err := s.ctrl.Wait(ctx)
	if err == nil && s.opts.retryFailed {
		retried := s.ctrl.RetryFailed(func(it uploadqueue.ItemView) bool {
			return it.DocumentID != "" && it.Err != nil && it.Err.Kind == uploadqueue.KindProcessing
		})
		if retried > 0 {
			s.logger.Info("retrying_failed_items", "count", retried)
			err = s.ctrl.Wait(ctx)
		}
	}
	if err != nil {
		s.ctrl.Close()
	}

	snap := s.ctrl.Snapshot()
	s.record(snap)
	s.writeMetrics()
	return snap, err
}

func (s *uploadSession) record(snap uploadqueue.Snapshot) {
	if s.ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, it := range snap.Items {
		entry := sqlite.Entry{
			ItemID:     it.ID,
			Filename:   it.Name,
			Size:       it.Size,
			MediaType:  it.MediaType,
			DocumentID: it.DocumentID,
			Status:     string(it.Status),
			UpdatedAt:  it.UpdatedAt,
		}
		if it.Result != nil {
			entry.DocumentType = it.Result.DocumentType
			entry.Department = it.Result.Department
		}
		if it.Err != nil {
			entry.Error = it.Err.Message
		}
		if err := s.ledger.Record(ctx, entry); err != nil {
			s.logger.Warn("ledger_record_failed", "item_id", it.ID, "error", err)
		}
	}
}

func (s *uploadSession) writeMetrics() {
	if s.opts.metricsFile == "" {
		return
	}
	if err := s.metrics.WriteTextfile(s.opts.metricsFile); err != nil {
		s.logger.Warn("metrics_textfile_failed", "path", s.opts.metricsFile, "error", err)
	}
}

// finish prints the final report and turns failures into a non-zero exit.
func (s *uploadSession) finish(snap uploadqueue.Snapshot, runErr error) error {
	if s.opts.jsonOutput {
		if err := writeJSON(s.cmd, snap); err != nil {
			return err
		}
	} else {
		s.renderer.Final(snap)
	}
	if runErr != nil {
		return runErr
	}
	if snap.Failed > 0 || snap.Cancelled > 0 {
		return fmt.Errorf("%d of %d submissions did not complete", snap.Failed+snap.Cancelled, len(snap.Items))
	}
	return nil
}
