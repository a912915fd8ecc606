package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litscout/litscout/internal/domain"
	"github.com/litscout/litscout/internal/optimizer"
	"github.com/litscout/litscout/internal/sources"
)

// memorySnapshots records every snapshot write.
type memorySnapshots struct {
	mu     sync.Mutex
	writes [][]string
	fail   bool
}

func (m *memorySnapshots) WriteSnapshot(runID string, records []*domain.Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", errors.New("disk full")
	}
	m.writes = append(m.writes, titles(records))
	return fmt.Sprintf("/tmp/%s-%d.json", runID, len(m.writes)), nil
}

// failingGenerator always errors, for fallback tests.
type failingGenerator struct{}

func (failingGenerator) GenerateSynonyms(ctx context.Context, query string) ([]string, error) {
	return nil, errors.New("upstream down")
}
func (failingGenerator) Provider() string { return "stub" }
func (failingGenerator) Model() string    { return "stub-model" }

func newTestPipeline(snapshots SnapshotWriter, srcs ...sources.Source) *Pipeline {
	registry := sources.NewRegistry()
	for _, s := range srcs {
		registry.Register(s)
	}
	return New(Config{
		Registry:     registry,
		Snapshots:    snapshots,
		Logger:       zerolog.Nop(),
		SourceBudget: 5 * time.Second,
	})
}

func TestRunMergesAcrossSources(t *testing.T) {
	pubmed := newFakeSource(domain.SourceTypePubMed, "X", "Y")
	scholar := newFakeSource(domain.SourceTypeScholar, "y", "Z")
	scholar.delay = 50 * time.Millisecond // pubmed settles first

	p := newTestPipeline(nil, pubmed, scholar)

	report, err := p.Run(context.Background(), RunRequest{Query: "ACE2"})
	require.NoError(t, err)

	// Scholar's "y" collapses onto pubmed's "Y"; the first-seen record
	// keeps its source.
	require.Len(t, report.Records, 3)
	assert.Equal(t, []string{"X", "Y", "Z"}, titles(report.Records))
	assert.Equal(t, domain.SourceTypePubMed, report.Records[1].Source)

	require.Len(t, report.Statuses, 2)
	assert.Equal(t, OutcomeOK, report.Status(domain.SourceTypePubMed).Outcome)

	scholarStatus := report.Status(domain.SourceTypeScholar)
	require.NotNil(t, scholarStatus)
	assert.Equal(t, OutcomeOK, scholarStatus.Outcome)
	assert.Equal(t, 2, scholarStatus.Fetched)
	assert.Equal(t, 1, scholarStatus.Added)

	assert.True(t, report.Succeeded())
}

func TestRunSourceIsolation(t *testing.T) {
	broken := newFakeSource(domain.SourceTypePubMed)
	broken.err = domain.NewProviderError(domain.SourceTypePubMed, domain.ErrorKindNetwork, "connection refused", nil)

	healthy := newFakeSource(domain.SourceTypeScholar, "A", "B", "C", "D", "E")

	p := newTestPipeline(nil, broken, healthy)

	report, err := p.Run(context.Background(), RunRequest{Query: "ACE2"})
	require.NoError(t, err)

	assert.Len(t, report.Records, 5)

	brokenStatus := report.Status(domain.SourceTypePubMed)
	require.NotNil(t, brokenStatus)
	assert.Equal(t, OutcomeError, brokenStatus.Outcome)
	assert.Equal(t, domain.ErrorKindNetwork, brokenStatus.Kind)
	assert.NotEmpty(t, brokenStatus.Message)

	assert.Equal(t, OutcomeOK, report.Status(domain.SourceTypeScholar).Outcome)
	assert.True(t, report.Succeeded())
}

func TestRunOptimizerFallbackMatchesDisabled(t *testing.T) {
	run := func(opt *optimizer.Optimizer, optimize bool) *RunReport {
		src := newFakeSource(domain.SourceTypePubMed, "X")
		registry := sources.NewRegistry()
		registry.Register(src)
		p := New(Config{
			Registry:  registry,
			Optimizer: opt,
			Logger:    zerolog.Nop(),
		})
		report, err := p.Run(context.Background(), RunRequest{Query: "ACE2", Optimize: optimize})
		require.NoError(t, err)
		return report
	}

	withFallback := run(optimizer.New(failingGenerator{}, zerolog.Nop()), true)
	withoutOptimize := run(nil, false)

	// A failed expansion behaves identically to disabled optimization.
	assert.Equal(t, []string{"ACE2"}, withFallback.Terms)
	assert.Equal(t, withoutOptimize.Terms, withFallback.Terms)
}

func TestRunPassesCountsAndTerms(t *testing.T) {
	src := newFakeSource(domain.SourceTypePubMed, "X")
	p := newTestPipeline(nil, src)

	_, err := p.Run(context.Background(), RunRequest{
		Query:  "ACE2",
		Counts: map[domain.SourceType]int{domain.SourceTypePubMed: 7},
	})
	require.NoError(t, err)

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, []string{"ACE2"}, src.gotParams.Terms)
	assert.Equal(t, 7, src.gotParams.MaxResults)
}

func TestRunSnapshotsEverySettlement(t *testing.T) {
	first := newFakeSource(domain.SourceTypeBioRxiv, "A")
	second := newFakeSource(domain.SourceTypePubMed, "B")
	second.delay = 50 * time.Millisecond

	store := &memorySnapshots{}
	p := newTestPipeline(store, first, second)

	report, err := p.Run(context.Background(), RunRequest{Query: "q"})
	require.NoError(t, err)

	// One snapshot per settled source, each a prefix of the final set.
	require.Len(t, store.writes, 2)
	assert.Equal(t, []string{"A"}, store.writes[0])
	assert.Equal(t, []string{"A", "B"}, store.writes[1])
	assert.NotEmpty(t, report.SnapshotPath)
}

func TestRunSnapshotFailureIsNotFatal(t *testing.T) {
	src := newFakeSource(domain.SourceTypePubMed, "X")
	store := &memorySnapshots{fail: true}
	p := newTestPipeline(store, src)

	report, err := p.Run(context.Background(), RunRequest{Query: "q"})
	require.NoError(t, err)

	// The in-memory results survive a broken persistence layer.
	assert.Len(t, report.Records, 1)
	assert.Empty(t, report.SnapshotPath)
	assert.True(t, report.Succeeded())
}

func TestRunPartialSourceCountsTowardSuccess(t *testing.T) {
	stalling := &stallingSource{
		fakeSource: newFakeSource(domain.SourceTypeBioRxiv, "One", "Two", "Three"),
		emitCount:  2,
	}

	p := newTestPipeline(nil, stalling)

	report, err := p.Run(context.Background(), RunRequest{
		Query:             "q",
		DeadlineOverrides: map[domain.SourceType]time.Duration{domain.SourceTypeBioRxiv: 50 * time.Millisecond},
	})
	require.NoError(t, err)

	status := report.Status(domain.SourceTypeBioRxiv)
	require.NotNil(t, status)
	assert.Equal(t, OutcomePartial, status.Outcome)
	assert.Equal(t, 2, status.Fetched)
	assert.NotEmpty(t, status.Message)

	assert.Len(t, report.Records, 2)
	assert.True(t, report.Succeeded())
}

func TestRunSelectsRequestedSources(t *testing.T) {
	pubmed := newFakeSource(domain.SourceTypePubMed, "P")
	scholar := newFakeSource(domain.SourceTypeScholar, "S")

	p := newTestPipeline(nil, pubmed, scholar)

	report, err := p.Run(context.Background(), RunRequest{
		Query:   "q",
		Sources: []domain.SourceType{domain.SourceTypeScholar},
	})
	require.NoError(t, err)

	require.Len(t, report.Statuses, 1)
	assert.Equal(t, domain.SourceTypeScholar, report.Statuses[0].Source)
	assert.Equal(t, []string{"S"}, titles(report.Records))
}

func TestRunRejectsEmptyQuery(t *testing.T) {
	p := newTestPipeline(nil, newFakeSource(domain.SourceTypePubMed, "X"))

	_, err := p.Run(context.Background(), RunRequest{})
	assert.Error(t, err)
}

func TestRunRejectsEmptySelection(t *testing.T) {
	disabled := newFakeSource(domain.SourceTypePubMed, "X")
	disabled.enabled = false

	p := newTestPipeline(nil, disabled)

	_, err := p.Run(context.Background(), RunRequest{Query: "q"})
	assert.Error(t, err)
}

func TestRunReportSucceeded(t *testing.T) {
	tests := []struct {
		name     string
		statuses []SourceStatus
		want     bool
	}{
		{name: "no statuses", want: false},
		{name: "ok", statuses: []SourceStatus{{Outcome: OutcomeOK}}, want: true},
		{name: "all errors", statuses: []SourceStatus{{Outcome: OutcomeError}, {Outcome: OutcomeError}}, want: false},
		{name: "partial with records", statuses: []SourceStatus{{Outcome: OutcomePartial, Fetched: 1}}, want: true},
		{name: "partial starved", statuses: []SourceStatus{{Outcome: OutcomePartial}}, want: false},
		{name: "mixed", statuses: []SourceStatus{{Outcome: OutcomeError}, {Outcome: OutcomeOK}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := &RunReport{Statuses: tt.statuses}
			assert.Equal(t, tt.want, report.Succeeded())
		})
	}
}
