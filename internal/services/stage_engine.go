package services

import (
	"context"
	"fmt"
	"time"

	"doc-intel/internal/events"
	"doc-intel/internal/models"
	"doc-intel/internal/repositories"
)

// StageOutcome classifies the result of one stage execution
type StageOutcome string

const (
	OutcomeSuccess          StageOutcome = "success"
	OutcomeTransientFailure StageOutcome = "transient_failure"
	OutcomeFatalFailure     StageOutcome = "fatal_failure"
)

// DefaultMaxRetries bounds transient retries per stage
const DefaultMaxRetries = 3

// StageProcessor performs the work of one pipeline stage, mutating the
// document's artifacts in place. The engine persists the document afterwards.
type StageProcessor interface {
	Run(ctx context.Context, doc *models.Document) error
}

// StageEngineConfig holds configuration for the stage engine
type StageEngineConfig struct {
	DocumentRepo repositories.DocumentRepository
	Queue        repositories.StageQueue
	Fanout       events.Fanout
	Logger       events.Logger

	// MaxRetries bounds transient retries per stage (default 3)
	MaxRetries int
	// RetryDelay is the re-queue delay after a transient failure
	RetryDelay time.Duration
	// LockTTL bounds how long a crashed worker can hold a document
	LockTTL time.Duration
}

// StageEngine owns every document state transition. All stage advancement
// funnels through Advance so ordering, retry bookkeeping and event emission
// cannot drift apart.
type StageEngine struct {
	documentRepo repositories.DocumentRepository
	queue        repositories.StageQueue
	fanout       events.Fanout
	logger       events.Logger

	maxRetries int
	retryDelay time.Duration
	lockTTL    time.Duration

	processors map[models.Stage]StageProcessor
}

// NewStageEngine creates a stage engine from config
func NewStageEngine(cfg StageEngineConfig) *StageEngine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &StageEngine{
		documentRepo: cfg.DocumentRepo,
		queue:        cfg.Queue,
		fanout:       cfg.Fanout,
		logger:       cfg.Logger,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		lockTTL:      cfg.LockTTL,
		processors:   make(map[models.Stage]StageProcessor),
	}
}

// RegisterProcessor installs the processor for a stage
func (e *StageEngine) RegisterProcessor(stage models.Stage, p StageProcessor) {
	e.processors[stage] = p
}

// Enqueue schedules a document for pipeline processing
func (e *StageEngine) Enqueue(ctx context.Context, documentID string) error {
	doc, err := e.documentRepo.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status.IsTerminal() {
		return &ConflictError{Resource: "document " + documentID, Reason: "already in terminal status " + string(doc.Status)}
	}

	doc.Status = models.DocumentStatusQueued
	if err := e.documentRepo.Save(ctx, doc); err != nil {
		return err
	}
	return e.queue.Enqueue(ctx, documentID, 0)
}

// ProcessNext pops one ready document off the queue and runs its current
// stage. Returns false when nothing was ready.
func (e *StageEngine) ProcessNext(ctx context.Context) (bool, error) {
	documentID, err := e.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if documentID == "" {
		return false, nil
	}
	return true, e.ProcessDocument(ctx, documentID)
}

// ProcessDocument runs the current stage of a document. The processor runs
// without the advisory lock so the lock is never held across an external
// capability call; the lock is taken only around the state transition itself.
// A duplicate dispatch is absorbed by the stale-outcome check at commit time.
func (e *StageEngine) ProcessDocument(ctx context.Context, documentID string) error {
	doc, err := e.documentRepo.Get(ctx, documentID)
	if err != nil {
		if repositories.IsNotFound(err) {
			// Deleted while queued; nothing to do
			e.logger.Info("skipping queued document that no longer exists", "document_id", documentID)
			return nil
		}
		return err
	}

	if doc.Status.IsTerminal() {
		return nil
	}

	stage := doc.CurrentStage
	if stage == "" {
		stage = models.StageUpload
	}

	if doc.Status != models.DocumentStatusProcessing {
		doc.Status = models.DocumentStatusProcessing
		first := doc.ProcessingStartedAt == nil
		if first {
			now := time.Now()
			doc.ProcessingStartedAt = &now
		}
		if err := e.documentRepo.Save(ctx, doc); err != nil {
			return err
		}
		if first {
			e.publishStarted(ctx, doc)
		}
	}

	processor, ok := e.processors[stage]
	if !ok {
		return e.commitOutcome(ctx, doc, stage, OutcomeFatalFailure,
			fmt.Errorf("no processor registered for stage %s", stage))
	}

	e.logger.Info("running stage", "document_id", doc.ID, "stage", string(stage))
	runErr := processor.Run(ctx, doc)

	outcome := OutcomeSuccess
	if runErr != nil {
		if IsFatal(runErr) {
			outcome = OutcomeFatalFailure
		} else {
			// Unclassified errors are treated as transient so a crash-prone
			// dependency cannot silently kill documents
			outcome = OutcomeTransientFailure
		}
	}

	return e.commitOutcome(ctx, doc, stage, outcome, runErr)
}

// commitOutcome persists a stage outcome for a document whose artifacts the
// caller has been mutating. The advisory lock is held only across this
// transition; when another worker holds it the document is re-queued and the
// stale check resolves the race on the next attempt.
func (e *StageEngine) commitOutcome(ctx context.Context, doc *models.Document, stage models.Stage, outcome StageOutcome, cause error) error {
	acquired, err := e.queue.AcquireLock(ctx, doc.ID, e.lockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		e.logger.Debug("document locked by another worker, requeueing", "document_id", doc.ID)
		return e.queue.Enqueue(ctx, doc.ID, e.retryDelay)
	}
	defer func() {
		if err := e.queue.ReleaseLock(ctx, doc.ID); err != nil {
			e.logger.Warn("failed to release document lock", "document_id", doc.ID, "error", err)
		}
	}()

	// Re-read the persisted row: another worker may have advanced, failed or
	// deleted the document while the processor was suspended
	current, err := e.documentRepo.Get(ctx, doc.ID)
	if err != nil {
		if repositories.IsNotFound(err) {
			e.logger.Info("discarding stage result for missing document", "document_id", doc.ID, "stage", string(stage))
			return nil
		}
		return err
	}

	// Bookkeeping comes from the authoritative row; the artifacts stay ours
	doc.Status = current.Status
	doc.CurrentStage = current.CurrentStage
	doc.RetryCount = current.RetryCount
	doc.Errors = current.Errors

	return e.advanceLocked(ctx, doc, stage, outcome, cause)
}

// Advance applies a stage outcome to a document by ID, taking the lock. Used
// by callers outside a ProcessDocument run, e.g. asynchronous capability
// callbacks.
func (e *StageEngine) Advance(ctx context.Context, documentID string, stage models.Stage, outcome StageOutcome, cause error) error {
	acquired, err := e.queue.AcquireLock(ctx, documentID, e.lockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return &ConflictError{Resource: "document " + documentID, Reason: "locked by another worker"}
	}
	defer func() {
		if err := e.queue.ReleaseLock(ctx, documentID); err != nil {
			e.logger.Warn("failed to release document lock", "document_id", documentID, "error", err)
		}
	}()

	doc, err := e.documentRepo.Get(ctx, documentID)
	if err != nil {
		if repositories.IsNotFound(err) {
			// Late result for a deleted document; discard
			e.logger.Info("discarding stage result for missing document", "document_id", documentID, "stage", string(stage))
			return nil
		}
		return err
	}

	return e.advanceLocked(ctx, doc, stage, outcome, cause)
}

// advanceLocked applies the transition rules. The caller holds the lock.
func (e *StageEngine) advanceLocked(ctx context.Context, doc *models.Document, stage models.Stage, outcome StageOutcome, cause error) error {
	// A report for a stage the document already left is stale; applying it
	// would rewind or repeat work, so it is dropped.
	current := doc.CurrentStage
	if current == "" {
		current = models.StageUpload
	}
	if current != stage || doc.Status.IsTerminal() {
		e.logger.Info("ignoring stale stage report",
			"document_id", doc.ID, "reported_stage", string(stage), "current_stage", string(current))
		return nil
	}

	switch outcome {
	case OutcomeSuccess:
		return e.applySuccess(ctx, doc, stage)
	case OutcomeTransientFailure:
		return e.applyTransientFailure(ctx, doc, stage, cause)
	case OutcomeFatalFailure:
		return e.applyFatalFailure(ctx, doc, stage, cause)
	default:
		return fmt.Errorf("unsupported stage outcome: %s", outcome)
	}
}

func (e *StageEngine) applySuccess(ctx context.Context, doc *models.Document, stage models.Stage) error {
	next, ok := stage.Next()
	if !ok {
		return fmt.Errorf("stage %s has no successor", stage)
	}

	// The retry counter is cumulative across the document's lifetime, so a
	// stage succeeding does not reset it
	doc.CurrentStage = next

	if next == models.StageComplete {
		doc.Status = models.DocumentStatusCompleted
		now := time.Now()
		doc.ProcessingCompletedAt = &now
		if err := e.documentRepo.Save(ctx, doc); err != nil {
			return err
		}
		e.publishCompleted(ctx, doc)
		return nil
	}

	if err := e.documentRepo.Save(ctx, doc); err != nil {
		return err
	}
	e.publishProgress(ctx, doc)

	return e.queue.Enqueue(ctx, doc.ID, 0)
}

func (e *StageEngine) applyTransientFailure(ctx context.Context, doc *models.Document, stage models.Stage, cause error) error {
	doc.RetryCount++
	doc.Errors = append(doc.Errors, models.StageError{
		Stage:      stage,
		Message:    errMessage(cause),
		OccurredAt: time.Now(),
	})

	if doc.RetryCount > e.maxRetries {
		e.logger.Warn("retry budget exhausted",
			"document_id", doc.ID, "stage", string(stage), "retries", doc.RetryCount-1)
		return e.failDocument(ctx, doc)
	}

	if err := e.documentRepo.Save(ctx, doc); err != nil {
		return err
	}

	// Linear backoff scaled by attempt number
	delay := e.retryDelay * time.Duration(doc.RetryCount)
	e.logger.Info("retrying stage after transient failure",
		"document_id", doc.ID, "stage", string(stage), "attempt", doc.RetryCount, "delay", delay.String())
	return e.queue.Enqueue(ctx, doc.ID, delay)
}

func (e *StageEngine) applyFatalFailure(ctx context.Context, doc *models.Document, stage models.Stage, cause error) error {
	doc.Errors = append(doc.Errors, models.StageError{
		Stage:      stage,
		Message:    errMessage(cause),
		OccurredAt: time.Now(),
	})
	return e.failDocument(ctx, doc)
}

func (e *StageEngine) failDocument(ctx context.Context, doc *models.Document) error {
	doc.Status = models.DocumentStatusFailed
	now := time.Now()
	doc.ProcessingCompletedAt = &now

	if err := e.documentRepo.Save(ctx, doc); err != nil {
		return err
	}
	e.publishFailed(ctx, doc)
	return nil
}

// ============================================================================
// Event emission
// ============================================================================

// publish sends an envelope to the document channel and the owner channel.
// Emission happens after the transition is persisted; a broker failure is
// logged, never rolled back into the state machine.
func (e *StageEngine) publish(ctx context.Context, doc *models.Document, t models.EventType, payload interface{}) {
	envelope, err := models.NewEnvelope(t, payload)
	if err != nil {
		e.logger.Error("failed to build event envelope", "type", string(t), "error", err)
		return
	}

	for _, channel := range []string{events.DocumentChannel(doc.ID), events.UserChannel(doc.OwnerID)} {
		if err := e.fanout.Publish(ctx, channel, &envelope); err != nil {
			e.logger.Warn("failed to publish event", "channel", channel, "type", string(t), "error", err)
		}
	}
}

func (e *StageEngine) publishStarted(ctx context.Context, doc *models.Document) {
	e.publish(ctx, doc, models.EventProcessingStarted, models.ProcessingStartedEvent{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
	})
}

func (e *StageEngine) publishProgress(ctx context.Context, doc *models.Document) {
	total := len(models.StageOrder) - 1
	percentage := float64(doc.CurrentStage.Index()) / float64(total) * 100

	e.publish(ctx, doc, models.EventProcessingProgress, models.ProcessingProgressEvent{
		DocumentID:  doc.ID,
		Percentage:  percentage,
		CurrentStep: string(doc.CurrentStage),
	})
}

func (e *StageEngine) publishCompleted(ctx context.Context, doc *models.Document) {
	e.publish(ctx, doc, models.EventProcessingCompleted, models.ProcessingCompletedEvent{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
	})
}

func (e *StageEngine) publishFailed(ctx context.Context, doc *models.Document) {
	msg := "processing failed"
	if last := doc.LastError(); last != nil {
		msg = last.Message
	}
	e.publish(ctx, doc, models.EventProcessingFailed, models.ProcessingFailedEvent{
		DocumentID: doc.ID,
		Error:      msg,
	})
}

func errMessage(err error) string {
	if err == nil {
		return "unknown failure"
	}
	return err.Error()
}
