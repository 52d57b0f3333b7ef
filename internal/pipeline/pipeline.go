package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/storm-vp-classifier/internal/domain"
	"github.com/couchcryptid/storm-vp-classifier/internal/observability"
	"github.com/google/uuid"
)

// CubeSource loads the profile cube and optional surface temperature of a case.
type CubeSource interface {
	LoadCube(ctx context.Context, ref domain.CaseRef) (*domain.Cube, *domain.Features, error)
}

// Classifier turns a loaded case into a classification result.
type Classifier interface {
	Classify(ctx context.Context, ref domain.CaseRef, cube *domain.Cube, temp *domain.Features) (domain.CaseResult, error)
}

// ResultLoader writes classification results to a destination.
type ResultLoader interface {
	LoadResults(ctx context.Context, results []domain.CaseResult) error
}

// Summary describes the progress or outcome of a batch run.
type Summary struct {
	RunID      string `json:"run_id"`
	Cases      int    `json:"cases"`
	Classified int    `json:"classified"`
	Failed     int    `json:"failed"`
	Profiles   int    `json:"profiles"`
	Published  int    `json:"published"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRetry sets the sink retry policy: attempts in total, starting at
// initial backoff and doubling up to maxBackoff.
func WithRetry(attempts int, initial, maxBackoff time.Duration) Option {
	return func(p *Pipeline) {
		p.attempts = attempts
		p.initialBackoff = initial
		p.maxBackoff = maxBackoff
	}
}

// Pipeline orchestrates the load-classify-publish batch run.
type Pipeline struct {
	source     CubeSource
	classifier Classifier
	loader     ResultLoader
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
	batchSize  int

	attempts       int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu       sync.Mutex
	progress Summary
}

// New creates a Pipeline with the given stages and observability.
func New(src CubeSource, c Classifier, l ResultLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:     src,
		classifier: c,
		loader:     l,
		logger:     logger,
		metrics:    metrics,
		batchSize:  max(batchSize, 1),
		// Exponential backoff: start at 200ms, double each retry, cap at 5s.
		attempts:       5,
		initialBackoff: 200 * time.Millisecond,
		maxBackoff:     5 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// CheckReadiness returns nil once the run has published at least one result.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not published any results yet")
	}
	return nil
}

// Ready reports whether a result has been published.
func (p *Pipeline) Ready() bool { return p.ready.Load() }

// Progress returns a snapshot of the current run.
func (p *Pipeline) Progress() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

func (p *Pipeline) update(f func(*Summary)) {
	p.mu.Lock()
	f(&p.progress)
	p.mu.Unlock()
}

// Run classifies every case and publishes the results in batches. Cases
// that fail to load or classify are logged, counted and skipped. A sink
// that still fails after retries aborts the run. Cancelling ctx stops the
// run after the current case; results not yet flushed are dropped.
func (p *Pipeline) Run(ctx context.Context, refs []domain.CaseRef) (Summary, error) {
	runID := uuid.NewString()
	p.update(func(s *Summary) { *s = Summary{RunID: runID, Cases: len(refs)} })
	logger := p.logger.With("run_id", runID)
	logger.Info("pipeline started", "cases", len(refs), "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	batch := make([]domain.CaseResult, 0, p.batchSize)
	for _, ref := range refs {
		if ctx.Err() != nil {
			logger.Info("pipeline stopping", "reason", ctx.Err())
			return p.Progress(), ctx.Err()
		}

		result, err := p.processCase(ctx, ref)
		if err != nil {
			logger.Warn("case failed, skipping", "case_id", ref.ID, "path", ref.Path, "error", err)
			p.metrics.CaseErrors.Inc()
			p.update(func(s *Summary) { s.Failed++ })
			continue
		}
		result.RunID = runID
		batch = append(batch, result)

		if len(batch) >= p.batchSize {
			if err := p.flush(ctx, logger, batch); err != nil {
				return p.Progress(), err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := p.flush(ctx, logger, batch); err != nil {
			return p.Progress(), err
		}
	}

	summary := p.Progress()
	logger.Info("pipeline finished",
		"classified", summary.Classified, "failed", summary.Failed, "published", summary.Published)
	return summary, nil
}

func (p *Pipeline) processCase(ctx context.Context, ref domain.CaseRef) (domain.CaseResult, error) {
	cube, temp, err := p.source.LoadCube(ctx, ref)
	if err != nil {
		return domain.CaseResult{}, fmt.Errorf("load: %w", err)
	}

	start := time.Now()
	result, err := p.classifier.Classify(ctx, ref, cube, temp)
	if err != nil {
		return domain.CaseResult{}, fmt.Errorf("classify: %w", err)
	}
	p.metrics.ClassifyDuration.Observe(time.Since(start).Seconds())
	p.metrics.CasesProcessed.Inc()
	p.metrics.ProfilesClassified.Add(float64(result.Classes.Len()))
	p.update(func(s *Summary) {
		s.Classified++
		s.Profiles += result.Classes.Len()
	})
	return result, nil
}

// flush loads the batch, retrying with exponential backoff.
func (p *Pipeline) flush(ctx context.Context, logger *slog.Logger, batch []domain.CaseResult) error {
	backoff := p.initialBackoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.loader.LoadResults(ctx, batch); err == nil {
			p.metrics.ResultsPublished.Add(float64(len(batch)))
			p.update(func(s *Summary) { s.Published += len(batch) })
			p.ready.Store(true)
			return nil
		}
		logger.Error("load results failed", "error", err, "batch_size", len(batch), "attempt", attempt)
		if attempt == p.attempts || !sharedretry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = sharedretry.NextBackoff(backoff, p.maxBackoff)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("load results: %w", err)
}
