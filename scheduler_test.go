package pdfagent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"ieee-pdf-agent/internal/logger"
)

type fakeConverter struct {
	convert func(ctx context.Context, inputPath string) (ConversionOutcome, error)
}

func (f *fakeConverter) Convert(ctx context.Context, inputPath string) (ConversionOutcome, error) {
	return f.convert(ctx, inputPath)
}

type fakeMailer struct {
	mu    sync.Mutex
	err   error
	calls []string // "path|recipient|subject"
}

func (f *fakeMailer) Send(attachmentPath, recipient, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, attachmentPath+"|"+recipient+"|"+subject)
	return f.err
}

func (f *fakeMailer) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (n *recordingNotifier) Publish(ev StatusEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) all() []StatusEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]StatusEvent(nil), n.events...)
}

type schedulerFixture struct {
	store    *Store
	notifier *recordingNotifier
	mailer   *fakeMailer
	sched    *Scheduler
}

func newSchedulerFixture(t *testing.T, conv Converter, mailerErr error) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		store:    NewStore(),
		notifier: &recordingNotifier{},
		mailer:   &fakeMailer{err: mailerErr},
	}
	f.store.AddFile("s1", uploadedRecord("draft.md"))
	f.sched = NewScheduler(context.Background(), f.store, conv, f.mailer,
		f.notifier, "default@example.com", 1, 4, logger.NewDiscardLogger())
	return f
}

func TestScheduler_SuccessPublishesOrderedEvents(t *testing.T) {
	conv := &fakeConverter{convert: func(context.Context, string) (ConversionOutcome, error) {
		return ConversionOutcome{Success: true, OutputPath: "output/draft_IEEE.pdf"}, nil
	}}
	f := newSchedulerFixture(t, conv, nil)

	rec, err := f.store.FindFile("s1", "draft.md")
	require.NoError(t, err)
	require.NoError(t, f.sched.Submit("s1", rec, ConversionOptions{}))
	f.sched.Stop()

	events := f.notifier.all()
	require.Len(t, events, 2)
	require.Equal(t, StatusProcessing, events[0].Status)
	require.Equal(t, StatusCompleted, events[1].Status)
	require.Equal(t, "output/draft_IEEE.pdf", events[1].PDFPath)

	got, err := f.store.FindFile("s1", "draft.md")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "output/draft_IEEE.pdf", got.PDFPath)
	require.NotNil(t, got.CompletedAt)

	require.Empty(t, f.mailer.sent(), "email must not be sent unless requested")
}

func TestScheduler_FailureRecordsReason(t *testing.T) {
	conv := &fakeConverter{convert: func(context.Context, string) (ConversionOutcome, error) {
		return ConversionOutcome{}, errors.New("conversion failed: missing IEEEtran.cls")
	}}
	f := newSchedulerFixture(t, conv, nil)

	rec, _ := f.store.FindFile("s1", "draft.md")
	require.NoError(t, f.sched.Submit("s1", rec, ConversionOptions{SendEmail: true}))
	f.sched.Stop()

	events := f.notifier.all()
	require.Len(t, events, 2)
	require.Equal(t, StatusProcessing, events[0].Status)
	require.Equal(t, StatusFailed, events[1].Status)
	require.Empty(t, events[1].PDFPath)

	got, _ := f.store.FindFile("s1", "draft.md")
	require.Equal(t, StatusFailed, got.Status)
	require.Contains(t, got.Error, "missing IEEEtran.cls")
	require.Empty(t, got.PDFPath)

	require.Empty(t, f.mailer.sent(), "failed jobs must not trigger email")
}

func TestScheduler_EmailRecipientResolution(t *testing.T) {
	tests := []struct {
		name      string
		opts      ConversionOptions
		wantCalls []string
	}{
		{
			name:      "override recipient",
			opts:      ConversionOptions{SendEmail: true, EmailRecipient: "override@example.com"},
			wantCalls: []string{"out.pdf|override@example.com|Your IEEE Formatted PDF is Ready"},
		},
		{
			name:      "fall back to configured recipient",
			opts:      ConversionOptions{SendEmail: true},
			wantCalls: []string{"out.pdf|default@example.com|Your IEEE Formatted PDF is Ready"},
		},
		{
			name:      "no email requested",
			opts:      ConversionOptions{SendEmail: false},
			wantCalls: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := &fakeConverter{convert: func(context.Context, string) (ConversionOutcome, error) {
				return ConversionOutcome{Success: true, OutputPath: "out.pdf"}, nil
			}}
			f := newSchedulerFixture(t, conv, nil)

			rec, _ := f.store.FindFile("s1", "draft.md")
			require.NoError(t, f.sched.Submit("s1", rec, tt.opts))
			f.sched.Stop()

			require.Equal(t, tt.wantCalls, f.mailer.sent())
		})
	}
}

func TestScheduler_EmailFailureKeepsJobCompleted(t *testing.T) {
	conv := &fakeConverter{convert: func(context.Context, string) (ConversionOutcome, error) {
		return ConversionOutcome{Success: true, OutputPath: "out.pdf"}, nil
	}}
	f := newSchedulerFixture(t, conv, errors.New("smtp: connection refused"))

	rec, _ := f.store.FindFile("s1", "draft.md")
	require.NoError(t, f.sched.Submit("s1", rec, ConversionOptions{SendEmail: true}))
	f.sched.Stop()

	got, _ := f.store.FindFile("s1", "draft.md")
	require.Equal(t, StatusCompleted, got.Status, "email failure must not downgrade a completed job")

	events := f.notifier.all()
	require.Equal(t, StatusCompleted, events[len(events)-1].Status)
}

func TestScheduler_PanicBecomesFailedTransition(t *testing.T) {
	conv := &fakeConverter{convert: func(context.Context, string) (ConversionOutcome, error) {
		panic("converter blew up")
	}}
	f := newSchedulerFixture(t, conv, nil)

	rec, _ := f.store.FindFile("s1", "draft.md")
	require.NoError(t, f.sched.Submit("s1", rec, ConversionOptions{}))
	f.sched.Stop()

	got, _ := f.store.FindFile("s1", "draft.md")
	require.Equal(t, StatusFailed, got.Status, "a job must never stay in processing")
	require.Contains(t, got.Error, "converter blew up")

	events := f.notifier.all()
	require.Equal(t, StatusFailed, events[len(events)-1].Status)
}

func TestScheduler_QueueSaturationRejects(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	conv := &fakeConverter{convert: func(context.Context, string) (ConversionOutcome, error) {
		started <- struct{}{}
		<-release
		return ConversionOutcome{Success: true, OutputPath: "out.pdf"}, nil
	}}

	store := NewStore()
	notifier := &recordingNotifier{}
	for _, name := range []string{"a.md", "b.md", "c.md"} {
		store.AddFile("s1", uploadedRecord(name))
	}
	sched := NewScheduler(context.Background(), store, conv, &fakeMailer{},
		notifier, "", 1, 1, logger.NewDiscardLogger())

	recA, _ := store.FindFile("s1", "a.md")
	require.NoError(t, sched.Submit("s1", recA, ConversionOptions{}))
	<-started // worker is busy with a.md, queue is empty

	recB, _ := store.FindFile("s1", "b.md")
	require.NoError(t, sched.Submit("s1", recB, ConversionOptions{})) // fills the queue

	recC, _ := store.FindFile("s1", "c.md")
	err := sched.Submit("s1", recC, ConversionOptions{})
	require.ErrorIs(t, err, ErrQueueFull)

	gotC, _ := store.FindFile("s1", "c.md")
	require.Equal(t, StatusFailed, gotC.Status, "rejected job must not linger in processing")

	close(release)
	// b.md blocks on the started channel once the worker picks it up.
	<-started
	sched.Stop()
}

func TestScheduler_SubmitUnknownFile(t *testing.T) {
	var converterRan atomic.Bool
	conv := &fakeConverter{convert: func(context.Context, string) (ConversionOutcome, error) {
		converterRan.Store(true)
		return ConversionOutcome{}, nil
	}}
	f := newSchedulerFixture(t, conv, nil)

	err := f.sched.Submit("s1", uploadedRecord("ghost.md"), ConversionOptions{})
	require.ErrorIs(t, err, ErrFileNotFound)
	f.sched.Stop()

	require.Empty(t, f.notifier.all(), "no event may be published when the job never starts")
	require.False(t, converterRan.Load(), "converter must not run for an unknown file")
}
