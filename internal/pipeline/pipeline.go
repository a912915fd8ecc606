// Package pipeline orchestrates one retrieval run: it expands the query,
// fans out one guarded search task per source, folds settled results into a
// deduplicated set, and writes an incremental snapshot after every
// settlement. Sources are mutually independent; one source failing, stalling,
// or timing out never disturbs the others.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/litscout/litscout/internal/domain"
	"github.com/litscout/litscout/internal/observability"
	"github.com/litscout/litscout/internal/optimizer"
	"github.com/litscout/litscout/internal/sources"
)

// SnapshotWriter persists the current result set. Write failures are logged
// and never abort a run; the in-memory set is still returned to the caller.
type SnapshotWriter interface {
	// WriteSnapshot atomically persists the records for the given run and
	// returns the path written.
	WriteSnapshot(runID string, records []*domain.Record) (string, error)
}

// Pipeline runs retrieval across the registered sources.
type Pipeline struct {
	registry  *sources.Registry
	optimizer *optimizer.Optimizer
	snapshots SnapshotWriter
	logger    zerolog.Logger
	metrics   *observability.Metrics
	budget    time.Duration
}

// Config assembles a Pipeline.
type Config struct {
	// Registry holds the configured source adapters. Required.
	Registry *sources.Registry

	// Optimizer expands queries. Nil disables expansion regardless of the
	// per-run Optimize flag.
	Optimizer *optimizer.Optimizer

	// Snapshots persists incremental snapshots. Nil disables persistence.
	Snapshots SnapshotWriter

	// Logger is the base logger; run and source context are attached per task.
	Logger zerolog.Logger

	// Metrics is optional.
	Metrics *observability.Metrics

	// SourceBudget is the default per-source search budget. Zero means
	// DefaultSourceBudget.
	SourceBudget time.Duration
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	budget := cfg.SourceBudget
	if budget <= 0 {
		budget = DefaultSourceBudget
	}
	return &Pipeline{
		registry:  cfg.Registry,
		optimizer: cfg.Optimizer,
		snapshots: cfg.Snapshots,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		budget:    budget,
	}
}

// settlement carries one task's outcome from its goroutine to the collector.
type settlement struct {
	source sources.Source
	result GuardResult
}

// Run executes one retrieval run and always returns a report; per-source
// failures are recorded in the report, not returned. The only error cases
// are an empty query and a source selection that matches nothing enabled.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*RunReport, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	runID := uuid.NewString()
	logger := observability.WithRunContext(p.logger, runID, req.Query)
	startedAt := time.Now()

	if p.metrics != nil {
		p.metrics.RunsStarted.Inc()
	}

	plan := p.buildPlan(ctx, req)

	tasks := p.registry.Enabled(req.Sources)
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no enabled sources match the requested selection")
	}

	logger.Info().
		Strs("terms", plan.Terms()).
		Int("sources", len(tasks)).
		Msg("dispatching retrieval run")

	// Dispatch order is fixed alphabetical by source identifier (the
	// registry sorts), which is also the dedup tie-break order when tasks
	// settle together.
	settlements := make(chan settlement, len(tasks))
	for _, src := range tasks {
		src := src
		params := sources.SearchParams{
			Terms:      plan.Terms(),
			MaxResults: req.Counts[src.SourceType()],
		}
		budget := p.budget
		if override, ok := req.DeadlineOverrides[src.SourceType()]; ok && override > 0 {
			budget = override
		}

		if p.metrics != nil {
			p.metrics.SearchesStarted.WithLabelValues(string(src.SourceType())).Inc()
		}

		go func() {
			settlements <- settlement{
				source: src,
				result: RunGuarded(ctx, src, params, budget),
			}
		}()
	}

	set := NewResultSet()
	report := &RunReport{
		RunID:     runID,
		Query:     req.Query,
		Terms:     plan.Terms(),
		StartedAt: startedAt,
	}

	// Settlements are collected one at a time: merge, snapshot, record
	// status. The serialized loop is what gives each snapshot a
	// self-consistent prefix of the final set.
	for range tasks {
		s := <-settlements
		status := p.settle(logger, set, s)
		report.Statuses = append(report.Statuses, status)

		if path := p.writeSnapshot(logger, runID, set); path != "" {
			report.SnapshotPath = path
		}
	}

	report.Records = set.Snapshot()
	report.Duration = time.Since(startedAt)

	if p.metrics != nil {
		p.metrics.RunDuration.Observe(report.Duration.Seconds())
		if report.Succeeded() {
			p.metrics.RunsCompleted.Inc()
		} else {
			p.metrics.RunsFailed.Inc()
		}
	}

	logger.Info().
		Int("records", len(report.Records)).
		Dur("duration", report.Duration).
		Bool("succeeded", report.Succeeded()).
		Msg("retrieval run finished")

	return report, nil
}

// buildPlan expands the query when optimization is requested and available;
// otherwise the plan is the raw query alone.
func (p *Pipeline) buildPlan(ctx context.Context, req RunRequest) *optimizer.QueryPlan {
	if req.Optimize && p.optimizer != nil {
		return p.optimizer.BuildPlan(ctx, req.Query)
	}
	return &optimizer.QueryPlan{Raw: req.Query}
}

// settle merges one task's records and derives its status entry.
func (p *Pipeline) settle(logger zerolog.Logger, set *ResultSet, s settlement) SourceStatus {
	sourceType := s.source.SourceType()
	srcLogger := observability.WithSourceContext(logger, sourceType)
	res := s.result

	added, duplicates := set.Merge(res.Records)

	status := SourceStatus{
		Source:   sourceType,
		Name:     s.source.Name(),
		Fetched:  len(res.Records),
		Added:    added,
		Duration: res.Elapsed,
	}

	switch {
	case res.Err != nil:
		status.Outcome = OutcomeError
		status.Kind = domain.KindOf(res.Err)
		status.Message = res.Err.Error()
		srcLogger.Error().
			Err(res.Err).
			Str("kind", string(status.Kind)).
			Int("fetched", status.Fetched).
			Msg("source search failed")
	case res.Partial:
		status.Outcome = OutcomePartial
		status.Message = fmt.Sprintf("deadline expired after %s", res.Elapsed.Round(time.Millisecond))
		srcLogger.Warn().
			Dur("elapsed", res.Elapsed).
			Int("fetched", status.Fetched).
			Msg("source search cut off at deadline")
	default:
		status.Outcome = OutcomeOK
		srcLogger.Info().
			Dur("elapsed", res.Elapsed).
			Int("fetched", status.Fetched).
			Int("added", added).
			Int("duplicates", duplicates).
			Msg("source search completed")
	}

	if p.metrics != nil {
		label := string(sourceType)
		p.metrics.SearchDuration.WithLabelValues(label).Observe(res.Elapsed.Seconds())
		p.metrics.RecordsFetched.WithLabelValues(label).Add(float64(status.Fetched))
		p.metrics.RecordsAdded.WithLabelValues(label).Add(float64(added))
		p.metrics.RecordsDuplicate.WithLabelValues(label).Add(float64(duplicates))
		switch status.Outcome {
		case OutcomeOK:
			p.metrics.SearchesCompleted.WithLabelValues(label).Inc()
		case OutcomePartial:
			p.metrics.SearchesPartial.WithLabelValues(label).Inc()
		case OutcomeError:
			p.metrics.SearchesFailed.WithLabelValues(label, string(status.Kind)).Inc()
		}
	}

	return status
}

// writeSnapshot persists the current set. Failures are logged and absorbed.
func (p *Pipeline) writeSnapshot(logger zerolog.Logger, runID string, set *ResultSet) string {
	if p.snapshots == nil {
		return ""
	}

	path, err := p.snapshots.WriteSnapshot(runID, set.Snapshot())
	if err != nil {
		logger.Warn().Err(err).Msg("snapshot write failed, run continues with in-memory results")
		if p.metrics != nil {
			p.metrics.SnapshotFailures.Inc()
		}
		return ""
	}

	if p.metrics != nil {
		p.metrics.SnapshotWrites.Inc()
	}
	logger.Debug().Str("path", path).Int("records", set.Len()).Msg("snapshot written")
	return path
}
