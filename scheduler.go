package pdfagent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ieee-pdf-agent/internal/logger"
)

// Worker pool sizing defaults. Each job owns one pandoc subprocess, so
// the pool caps concurrent LaTeX runs rather than goroutines.
const (
	DefaultWorkers    = 2
	DefaultQueueDepth = 16
)

// Converter is the conversion backend the scheduler drives.
type Converter interface {
	Convert(ctx context.Context, inputPath string) (ConversionOutcome, error)
}

// EmailSender delivers a produced artifact. Implementations report
// failure through the error; the scheduler only ever logs it.
type EmailSender interface {
	Send(attachmentPath, recipient, subject string) error
}

// emailSubject accompanies every delivered artifact.
const emailSubject = "Your IEEE Formatted PDF is Ready"

// Compile-time interface implementation checks.
var (
	_ Converter   = (*Engine)(nil)
	_ EmailSender = (*Mailer)(nil)
	_ Notifier    = (*Hub)(nil)
)

// task is one queued conversion job.
type task struct {
	sessionID string
	rec       FileRecord
	opts      ConversionOptions
}

// Scheduler accepts conversion requests and runs them on a bounded
// worker pool. Submit never blocks on conversion; saturation is
// surfaced as ErrQueueFull instead of unbounded goroutine growth.
type Scheduler struct {
	ctx              context.Context
	store            *Store
	engine           Converter
	mailer           EmailSender
	notifier         Notifier
	defaultRecipient string
	log              logger.AppLogger

	tasks chan task
	wg    sync.WaitGroup
}

// NewScheduler creates a Scheduler and starts its workers. The context
// bounds every job's conversion; cancel it before Stop on shutdown.
func NewScheduler(ctx context.Context, store *Store, engine Converter, mailer EmailSender,
	notifier Notifier, defaultRecipient string, workers, queueDepth int, log logger.AppLogger) *Scheduler {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if queueDepth < 1 {
		queueDepth = DefaultQueueDepth
	}

	s := &Scheduler{
		ctx:              ctx,
		store:            store,
		engine:           engine,
		mailer:           mailer,
		notifier:         notifier,
		defaultRecipient: defaultRecipient,
		log:              log.With("service", "scheduler"),
		tasks:            make(chan task, queueDepth),
	}

	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

// Stop drains the queue and waits for in-flight jobs to finish. No
// Submit may be called after Stop.
func (s *Scheduler) Stop() {
	close(s.tasks)
	s.wg.Wait()
}

// Submit transitions the record to "processing", publishes the
// processing event, and enqueues the job. It returns immediately; the
// conversion outcome arrives asynchronously as a StatusEvent. When the
// queue is saturated the job is failed right away and ErrQueueFull is
// returned so the caller can signal backpressure.
func (s *Scheduler) Submit(sessionID string, rec FileRecord, opts ConversionOptions) error {
	if err := s.store.Transition(sessionID, rec.Filename, StatusProcessing, nil); err != nil {
		return err
	}
	s.notifier.Publish(StatusEvent{
		SessionID: sessionID,
		Filename:  rec.Filename,
		Status:    StatusProcessing,
		Message:   "Starting conversion...",
	})

	select {
	case s.tasks <- task{sessionID: sessionID, rec: rec, opts: opts}:
		return nil
	default:
		s.log.Warn("conversion queue saturated, rejecting job",
			"session_id", sessionID, "filename", rec.Filename)
		s.fail(sessionID, rec.Filename, ErrQueueFull.Error())
		return ErrQueueFull
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for t := range s.tasks {
		s.runJob(t)
	}
}

// runJob is the job boundary: any fault inside, including a panic, ends
// as a "failed" transition plus event. A record must never be left in
// "processing" because of an uncaught error.
func (s *Scheduler) runJob(t task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic during conversion", fmt.Errorf("%v", r),
				"session_id", t.sessionID, "filename", t.rec.Filename)
			s.fail(t.sessionID, t.rec.Filename, fmt.Sprintf("internal error: %v", r))
		}
	}()

	outcome, err := s.engine.Convert(s.ctx, t.rec.StoragePath)
	if err != nil || !outcome.Success {
		reason := "conversion failed"
		if err != nil {
			reason = err.Error()
		}
		s.fail(t.sessionID, t.rec.Filename, reason)
		return
	}

	// Record mutation happens before the event is published, so a
	// follow-up status query never reads an earlier state than the
	// event claimed.
	now := time.Now()
	err = s.store.Transition(t.sessionID, t.rec.Filename, StatusCompleted, func(rec *FileRecord) {
		rec.PDFPath = outcome.OutputPath
		rec.CompletedAt = &now
	})
	if err != nil {
		s.log.Error("unable to record completion", err,
			"session_id", t.sessionID, "filename", t.rec.Filename)
		return
	}
	s.notifier.Publish(StatusEvent{
		SessionID: t.sessionID,
		Filename:  t.rec.Filename,
		Status:    StatusCompleted,
		Message:   "Conversion completed successfully!",
		PDFPath:   outcome.OutputPath,
	})

	if t.opts.SendEmail {
		s.dispatchEmail(outcome.OutputPath, t.opts.EmailRecipient)
	}
}

// dispatchEmail hands the artifact to the mailer. The recipient override
// falls back to the statically configured default; delivery failure is
// logged and never changes the job's terminal status.
func (s *Scheduler) dispatchEmail(artifactPath, recipient string) {
	if recipient == "" {
		recipient = s.defaultRecipient
	}
	if err := s.mailer.Send(artifactPath, recipient, emailSubject); err != nil {
		s.log.Warn("email delivery failed", "error", err.Error(), "attachment", artifactPath)
		return
	}
	s.log.Info("artifact emailed", "attachment", artifactPath, "to", recipient)
}

// fail applies the terminal "failed" transition and publishes the event.
func (s *Scheduler) fail(sessionID, filename, reason string) {
	err := s.store.Transition(sessionID, filename, StatusFailed, func(rec *FileRecord) {
		rec.Error = reason
	})
	if err != nil {
		s.log.Error("unable to record failure", err,
			"session_id", sessionID, "filename", filename)
		return
	}
	s.notifier.Publish(StatusEvent{
		SessionID: sessionID,
		Filename:  filename,
		Status:    StatusFailed,
		Message:   "Conversion failed: " + reason,
	})
}
