// Package orchestrator drives the archival saga: launch a remote crawl,
// poll it to completion, store the artifact, catalog it, and notify the
// requester. Each saga coordinates three independently-failing systems
// with no global transaction, so step ordering is what protects the one
// hard invariant: a catalog entry is written only after its artifact is
// durably stored.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sudan-digital-archive/archive-api/internal/archive"
	"github.com/sudan-digital-archive/archive-api/internal/telemetry"
)

// Stage names the saga step being executed, used for logging and metrics.
type Stage string

// Saga stages in execution order.
const (
	StageInitiating Stage = "initiating"
	StagePolling    Stage = "polling"
	StageFetching   Stage = "fetching"
	StagePersisting Stage = "persisting"
	StageRecording  Stage = "recording"
	StageNotifying  Stage = "notifying"
	stageNone       Stage = "none"
)

// Config controls Orchestrator behavior.
type Config struct {
	// PollInterval is the sleep between crawl status checks.
	PollInterval time.Duration
	// MaxPollAttempts caps status checks; with the default interval the
	// wall-clock budget is about thirty minutes.
	MaxPollAttempts int
	// KeyPrefix namespaces generated storage keys.
	KeyPrefix string
	// ContentType is recorded with every uploaded artifact.
	ContentType string
}

// Orchestrator runs archival sagas against the four external
// collaborators. The collaborators are shared across concurrent sagas
// and must be safe for concurrent use; everything else a saga touches is
// owned by that saga alone.
type Orchestrator struct {
	crawls   archive.CrawlClient
	store    archive.ArtifactStore
	catalog  archive.CatalogWriter
	notifier archive.Notifier
	idGen    archive.IDGenerator
	clock    archive.Clock
	cfg      Config
	logger   *zap.Logger

	wg sync.WaitGroup
	// sleep is swapped out by tests to count pauses without waiting.
	sleep func(ctx context.Context, d time.Duration)
}

// New constructs an Orchestrator.
func New(
	crawls archive.CrawlClient,
	store archive.ArtifactStore,
	catalog archive.CatalogWriter,
	notifier archive.Notifier,
	idGen archive.IDGenerator,
	clock archive.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 30
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "wacz"
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/wacz"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		crawls:   crawls,
		store:    store,
		catalog:  catalog,
		notifier: notifier,
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// result is the terminal state of one saga run.
type result struct {
	success  bool
	stage    Stage
	recordID int64
}

// Start launches one saga in a supervised goroutine and returns
// immediately. The caller never learns the saga's outcome; success is
// visible only through the catalog, the notification, and the logs.
// A panic inside the saga is logged, never propagated.
func (o *Orchestrator) Start(ctx context.Context, req archive.ArchiveRequest) {
	telemetry.SagaStarted()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("archival saga panicked",
					zap.Any("panic", r),
					zap.String("url", req.URL),
				)
			}
		}()
		o.run(ctx, req)
	}()
}

// Wait blocks until every started saga has finished. Used during
// shutdown to drain in-flight work and by tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, req archive.ArchiveRequest) result {
	logger := o.logger.With(zap.String("url", req.URL))

	handle, err := o.crawls.Create(ctx, req.URL, req.BrowserProfile)
	if err != nil {
		logger.Error("launch crawl failed", zap.Error(err))
		return o.fail(StageInitiating)
	}
	logger = logger.With(
		zap.String("crawl_id", handle.CrawlID),
		zap.String("job_run_id", handle.JobRunID),
	)
	logger.Info("crawl launched")

	attempts, completed := o.poll(ctx, logger, handle)
	telemetry.ObservePollAttempts(attempts)
	if !completed {
		logger.Error("crawl did not complete within poll budget",
			zap.Int("attempts", attempts),
			zap.Duration("interval", o.cfg.PollInterval),
		)
		return o.fail(StagePolling)
	}

	data, err := o.crawls.Fetch(ctx, handle)
	if err != nil {
		logger.Error("artifact download failed", zap.Error(err))
		return o.fail(StageFetching)
	}

	key, err := o.newStorageKey()
	if err != nil {
		logger.Error("storage key generation failed", zap.Error(err))
		return o.fail(StagePersisting)
	}
	if err := o.store.Upload(ctx, key, data, o.cfg.ContentType); err != nil {
		// The remote crawl result is abandoned; nothing was persisted.
		logger.Error("artifact upload failed",
			zap.String("storage_key", key),
			zap.Int("artifact_bytes", len(data)),
			zap.Error(err),
		)
		return o.fail(StagePersisting)
	}
	logger.Info("artifact stored",
		zap.String("storage_key", key),
		zap.Int("artifact_bytes", len(data)),
	)

	record := archive.NewArchivedRecord(req, handle, key)
	recordID, err := o.catalog.WriteRecord(ctx, record)
	if err != nil {
		// The artifact is durably stored with no catalog entry pointing
		// at it. There is no automatic reconciliation; this log line is
		// how operators find the orphan.
		telemetry.OrphanedArtifact()
		logger.DPanic("catalog write failed after upload, stored artifact is orphaned",
			zap.String("storage_key", key),
			zap.Error(err),
		)
		return o.fail(StageRecording)
	}
	logger.Info("archive record written", zap.Int64("record_id", recordID))
	telemetry.SagaCompleted("success", string(stageNone))

	o.notify(ctx, logger, req, recordID)
	return result{success: true, stage: stageNone, recordID: recordID}
}

// poll checks crawl status on a fixed interval until it observes
// completion or exhausts the attempt budget. A status error consumes an
// attempt exactly like a pending crawl: the loop only distinguishes
// "reached complete" from "did not, within budget". Sleeps happen
// between attempts, never after the last one.
func (o *Orchestrator) poll(ctx context.Context, logger *zap.Logger, handle archive.CrawlHandle) (int, bool) {
	for attempt := 1; attempt <= o.cfg.MaxPollAttempts; attempt++ {
		outcome, err := o.crawls.Status(ctx, handle)
		switch {
		case err != nil:
			logger.Warn("crawl status check failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		case outcome == archive.OutcomeComplete:
			logger.Info("crawl complete", zap.Int("attempt", attempt))
			return attempt, true
		default:
			logger.Info("crawl not complete yet",
				zap.Int("attempt", attempt),
				zap.String("state", string(outcome)),
			)
		}
		if attempt < o.cfg.MaxPollAttempts {
			o.sleep(ctx, o.cfg.PollInterval)
		}
	}
	return o.cfg.MaxPollAttempts, false
}

// notify sends the best-effort completion message. The saga has already
// succeeded by the time this runs; a delivery failure is logged only.
func (o *Orchestrator) notify(ctx context.Context, logger *zap.Logger, req archive.ArchiveRequest, recordID int64) {
	if req.RequestedBy == "" {
		return
	}
	subject := "Your web archive is ready"
	body := fmt.Sprintf(
		"<p>The archive of <a href=%q>%s</a> completed on %s.</p><p>It is cataloged as record %d.</p>",
		req.URL, req.URL, o.clock.Now().Format(time.RFC1123), recordID,
	)
	if err := o.notifier.Send(ctx, req.RequestedBy, subject, body); err != nil {
		telemetry.NotificationFailed()
		logger.Warn("completion notification failed",
			zap.String("recipient", req.RequestedBy),
			zap.Error(err),
		)
		return
	}
	logger.Info("completion notification sent", zap.String("recipient", req.RequestedBy))
}

func (o *Orchestrator) fail(stage Stage) result {
	telemetry.SagaCompleted("failure", string(stage))
	return result{stage: stage}
}

func (o *Orchestrator) newStorageKey() (string, error) {
	id, err := o.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate storage key: %w", err)
	}
	prefix := strings.Trim(o.cfg.KeyPrefix, "/")
	if prefix == "" {
		return id + ".wacz", nil
	}
	return fmt.Sprintf("%s/%s.wacz", prefix, id), nil
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
