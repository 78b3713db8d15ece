package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/spotter-report-loader/internal/backoff"
	"github.com/couchcryptid/spotter-report-loader/internal/domain"
	"github.com/couchcryptid/spotter-report-loader/internal/observability"
)

// Fetcher polls the feed and returns reports plausibly newer than cursor,
// ordered by report time.
type Fetcher interface {
	Poll(ctx context.Context, cursor time.Time) ([]domain.RawReport, error)
}

// Tracker owns the durable checkpoint and the dedupe window.
type Tracker interface {
	Load() (domain.Checkpoint, error)
	Admit(r domain.RawReport) bool
	Commit(expected, next domain.Checkpoint, ids []string) error
}

// Normalizer converts a raw report into a canonical event, a quarantine
// record, or neither (deliberate skip).
type Normalizer interface {
	Normalize(r domain.RawReport) (*domain.CanonicalEvent, *domain.QuarantineRecord)
}

// SinkWriter persists a batch of canonical events.
type SinkWriter interface {
	WriteBatch(ctx context.Context, events []domain.CanonicalEvent) error
}

// QuarantineSink records reports rejected during normalization.
type QuarantineSink interface {
	WriteQuarantine(ctx context.Context, records []domain.QuarantineRecord) error
}

// classified is implemented by the fetch and write error types.
type classified interface {
	Retryable() bool
	Fatal() bool
}

// State names the pipeline stage currently executing, exported through the
// pipeline_state gauge.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateDeduping    State = "deduping"
	StateNormalizing State = "normalizing"
	StateWriting     State = "writing"
	StateCommitting  State = "committing"
)

var stateCodes = map[State]float64{
	StateIdle:        0,
	StateFetching:    1,
	StateDeduping:    2,
	StateNormalizing: 3,
	StateWriting:     4,
	StateCommitting:  5,
}

// Options tune the polling loop. Zero values are filled by New.
type Options struct {
	PollInterval time.Duration
	MaxAttempts  int
	Backoff      backoff.Policy
	Clock        clockwork.Clock
}

// Pipeline orchestrates the poll-dedupe-normalize-write-commit loop. It owns
// the loop's control flow and the checkpoint ordering; each stage lives
// behind an interface.
type Pipeline struct {
	fetcher    Fetcher
	tracker    Tracker
	normalizer Normalizer
	sink       SinkWriter
	quarantine QuarantineSink
	logger     *slog.Logger
	metrics    *observability.Metrics
	opts       Options
	ready      atomic.Bool

	// cur is the in-memory view of the committed checkpoint. Only the Run
	// goroutine touches it.
	cur domain.Checkpoint
}

// New creates a Pipeline with the given stages and observability.
func New(f Fetcher, t Tracker, n Normalizer, s SinkWriter, q QuarantineSink, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Backoff == (backoff.Policy{}) {
		opts.Backoff = backoff.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		fetcher:    f,
		tracker:    t,
		normalizer: n,
		sink:       s,
		quarantine: q,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
	}
}

// CheckReadiness returns nil once the pipeline has completed at least one
// cycle, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a cycle yet")
	}
	return nil
}

// Run executes poll cycles until the context is cancelled or a fatal error
// occurs. A fatal error (auth failure, sink misconfiguration, checkpoint
// cursor conflict) is returned so the process can exit non-zero; anything
// less severe fails the cycle and the loop tries again next interval.
func (p *Pipeline) Run(ctx context.Context) error {
	cur, err := p.tracker.Load()
	if err != nil {
		return err
	}
	p.cur = cur
	if !cur.IsZero() {
		p.metrics.CheckpointCursor.Set(float64(cur.Cursor.Unix()))
	}

	p.logger.Info("pipeline started",
		"poll_interval", p.opts.PollInterval,
		"cursor", cur.Cursor,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	defer p.setState(StateIdle)

	for {
		if err := p.runCycle(ctx); err != nil {
			return err
		}

		p.setState(StateIdle)
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-p.opts.Clock.After(p.opts.PollInterval):
		}
	}
}

// runCycle executes one poll-to-commit cycle. A nil return means the cycle
// either succeeded or failed recoverably; a non-nil return stops the process.
func (p *Pipeline) runCycle(ctx context.Context) error {
	start := p.opts.Clock.Now()

	p.setState(StateFetching)
	reports, err := p.fetcher.Poll(ctx, p.cur.Cursor)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		var ce classified
		if errors.As(err, &ce) && ce.Fatal() {
			return err
		}
		p.logger.Error("poll failed, cycle abandoned", "error", err)
		p.metrics.CyclesFailed.Inc()
		return nil
	}
	p.metrics.ReportsFetched.Add(float64(len(reports)))

	p.setState(StateDeduping)
	admitted := make([]domain.RawReport, 0, len(reports))
	for _, r := range reports {
		if p.tracker.Admit(r) {
			admitted = append(admitted, r)
		}
	}
	p.metrics.ReportsAdmitted.Add(float64(len(admitted)))

	if len(admitted) == 0 {
		p.logger.Debug("cycle complete, nothing new", "fetched", len(reports))
		p.ready.Store(true)
		return nil
	}
	p.metrics.BatchSize.Observe(float64(len(admitted)))

	p.setState(StateNormalizing)
	events := make([]domain.CanonicalEvent, 0, len(admitted))
	quarantined := make([]domain.QuarantineRecord, 0)
	skipped := 0
	for _, r := range admitted {
		event, rejected := p.normalizer.Normalize(r)
		switch {
		case event != nil:
			events = append(events, *event)
		case rejected != nil:
			quarantined = append(quarantined, *rejected)
			p.metrics.ReportsQuarantined.WithLabelValues(string(rejected.Reason)).Inc()
		default:
			skipped++
			p.metrics.ReportsSkipped.Inc()
		}
	}

	// Quarantine delivery is best effort: a failure here must not block the
	// main flow, and the records were already counted.
	if len(quarantined) > 0 {
		if err := p.quarantine.WriteQuarantine(ctx, quarantined); err != nil {
			p.logger.Warn("quarantine write failed", "error", err, "records", len(quarantined))
		}
	}

	p.setState(StateWriting)
	if len(events) > 0 {
		if err := p.writeWithRetry(ctx, events); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ce classified
			if errors.As(err, &ce) && ce.Fatal() {
				return err
			}
			p.logger.Error("sink write failed, cycle abandoned", "error", err, "events", len(events))
			p.metrics.CyclesFailed.Inc()
			return nil
		}
		p.metrics.EventsWritten.Add(float64(len(events)))
	}

	// Commit strictly after the sink acknowledged the batch. The cursor
	// advances over everything handled this cycle, quarantined and skipped
	// reports included, so they are not refetched forever.
	p.setState(StateCommitting)
	ids := make([]string, len(admitted))
	var maxReported time.Time
	for i, r := range admitted {
		ids[i] = r.ID
		if r.ReportedAt.After(maxReported) {
			maxReported = r.ReportedAt
		}
	}
	next := domain.Checkpoint{Cursor: p.cur.Cursor, LastSuccess: p.opts.Clock.Now()}
	if maxReported.After(next.Cursor) {
		next.Cursor = maxReported
	}

	if err := p.tracker.Commit(p.cur, next, ids); err != nil {
		if errors.Is(err, domain.ErrCursorConflict) {
			return err
		}
		p.logger.Error("checkpoint commit failed, cycle abandoned", "error", err)
		p.metrics.CyclesFailed.Inc()
		return nil
	}
	p.cur = next
	p.metrics.CheckpointCursor.Set(float64(next.Cursor.Unix()))
	p.metrics.CycleDuration.Observe(p.opts.Clock.Since(start).Seconds())
	p.ready.Store(true)

	p.logger.Info("cycle complete",
		"fetched", len(reports),
		"admitted", len(admitted),
		"written", len(events),
		"quarantined", len(quarantined),
		"skipped", skipped,
		"cursor", next.Cursor,
	)
	return nil
}

// writeWithRetry re-sends the batch on retryable sink failures with capped
// exponential backoff. The batch is identical across attempts, so downstream
// consumers see replays under the same keys.
func (p *Pipeline) writeWithRetry(ctx context.Context, events []domain.CanonicalEvent) error {
	var lastErr error
	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		err := p.sink.WriteBatch(ctx, events)
		if err == nil {
			if attempt > 1 {
				p.logger.Info("sink write recovered", "attempt", attempt)
			}
			return nil
		}

		var ce classified
		if !errors.As(err, &ce) || !ce.Retryable() {
			return err
		}
		lastErr = err

		if attempt == p.opts.MaxAttempts {
			break
		}
		delay := p.opts.Backoff.Delay(attempt)
		p.metrics.CycleRetries.Inc()
		p.logger.Warn("sink write failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.opts.Clock.After(delay):
		}
	}
	return lastErr
}

func (p *Pipeline) setState(s State) {
	p.metrics.PipelineState.Set(stateCodes[s])
}
