// Package optimizer expands a raw research query into search variants.
//
// The expansion is best-effort: when the synonym generator is unavailable or
// fails, the plan degrades to the raw query alone and the run proceeds. A
// broken or unreachable generator must never fail a retrieval run.
package optimizer

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/litscout/litscout/internal/observability"
)

// DefaultMaxVariants caps how many generated variants a plan carries in
// addition to the raw query.
const DefaultMaxVariants = 5

// SynonymGenerator produces alternative phrasings for a research query.
type SynonymGenerator interface {
	// GenerateSynonyms returns synonym phrases for the query. The context
	// should be used for cancellation and deadline propagation.
	GenerateSynonyms(ctx context.Context, query string) ([]string, error)

	// Provider returns the name of the backing provider (e.g., "deepseek").
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}

// QueryPlan is the set of search terms a run fans out to every source.
type QueryPlan struct {
	// Raw is the user's query exactly as entered.
	Raw string

	// Variants are generated alternative phrasings, deduplicated and
	// excluding the raw query itself. Empty when optimization was skipped
	// or failed.
	Variants []string
}

// Terms returns the raw query followed by the variants. The raw query always
// comes first so sources that only take one term still search what the user
// typed.
func (p *QueryPlan) Terms() []string {
	terms := make([]string, 0, len(p.Variants)+1)
	terms = append(terms, p.Raw)
	terms = append(terms, p.Variants...)
	return terms
}

// Optimizer builds query plans, falling back to the raw query when the
// generator cannot help.
type Optimizer struct {
	generator   SynonymGenerator
	logger      zerolog.Logger
	metrics     *observability.Metrics
	maxVariants int
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithMaxVariants overrides the variant cap.
func WithMaxVariants(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.maxVariants = n
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Optimizer) {
		o.metrics = m
	}
}

// New creates an Optimizer. A nil generator is allowed and produces raw-only
// plans.
func New(generator SynonymGenerator, logger zerolog.Logger, opts ...Option) *Optimizer {
	o := &Optimizer{
		generator:   generator,
		logger:      logger,
		maxVariants: DefaultMaxVariants,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// BuildPlan expands the query into a plan. Generator failures are logged at
// warn level and produce a raw-only plan; the returned error is always nil so
// callers never have to distinguish the degraded case.
func (o *Optimizer) BuildPlan(ctx context.Context, query string) *QueryPlan {
	query = strings.TrimSpace(query)
	plan := &QueryPlan{Raw: query}

	if o.generator == nil {
		o.countOutcome("disabled")
		return plan
	}

	synonyms, err := o.generator.GenerateSynonyms(ctx, query)
	if err != nil {
		o.logger.Warn().
			Err(err).
			Str("provider", o.generator.Provider()).
			Str("query", query).
			Msg("synonym generation failed, searching with raw query only")
		o.countOutcome("error")
		return plan
	}

	plan.Variants = dedupeVariants(query, synonyms, o.maxVariants)
	o.countOutcome("ok")

	o.logger.Debug().
		Str("provider", o.generator.Provider()).
		Str("model", o.generator.Model()).
		Strs("variants", plan.Variants).
		Msg("query plan built")

	return plan
}

// countOutcome records the optimizer outcome when metrics are attached.
func (o *Optimizer) countOutcome(outcome string) {
	if o.metrics != nil {
		o.metrics.OptimizerRequests.WithLabelValues(outcome).Inc()
	}
}

// dedupeVariants trims, drops empties and case-insensitive duplicates of the
// raw query or of earlier variants, and caps the result at max entries.
func dedupeVariants(raw string, synonyms []string, max int) []string {
	seen := map[string]struct{}{
		strings.ToLower(raw): {},
	}

	var variants []string
	for _, s := range synonyms {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		variants = append(variants, s)
		if len(variants) >= max {
			break
		}
	}
	return variants
}
