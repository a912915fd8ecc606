package pipeline

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litscout/litscout/internal/domain"
)

func record(source domain.SourceType, title string) *domain.Record {
	return &domain.Record{Source: source, Title: title}
}

func titles(records []*domain.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Title
	}
	return out
}

func TestMergeFirstSeenWins(t *testing.T) {
	set := NewResultSet()

	added, dups := set.Merge([]*domain.Record{
		record(domain.SourceTypePubMed, "CRISPR Gene Editing"),
		record(domain.SourceTypePubMed, "Base Editing"),
	})
	assert.Equal(t, 2, added)
	assert.Equal(t, 0, dups)

	// Same title modulo case, whitespace, and punctuation collapses onto
	// the already-present record.
	added, dups = set.Merge([]*domain.Record{
		record(domain.SourceTypeScholar, "crispr  gene editing."),
		record(domain.SourceTypeScholar, "Prime Editing"),
	})
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, dups)

	snapshot := set.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, []string{"CRISPR Gene Editing", "Base Editing", "Prime Editing"}, titles(snapshot))

	// The surviving record is the first seen, from the first source.
	assert.Equal(t, domain.SourceTypePubMed, snapshot[0].Source)
}

func TestMergeIdempotent(t *testing.T) {
	batch := []*domain.Record{
		record(domain.SourceTypePubMed, "Alpha"),
		record(domain.SourceTypePubMed, "Beta"),
		record(domain.SourceTypePubMed, "alpha"),
	}

	once := NewResultSet()
	once.Merge(batch)

	twice := NewResultSet()
	twice.Merge(batch)
	twice.Merge(batch)

	assert.Equal(t, once.Snapshot(), twice.Snapshot())
	assert.Equal(t, 2, twice.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	set := NewResultSet()
	set.Merge([]*domain.Record{record(domain.SourceTypePubMed, "Alpha")})

	snapshot := set.Snapshot()
	set.Merge([]*domain.Record{record(domain.SourceTypePubMed, "Beta")})

	assert.Len(t, snapshot, 1)
	assert.Equal(t, 2, set.Len())
}

func TestMergeSkipsNilRecords(t *testing.T) {
	set := NewResultSet()

	added, dups := set.Merge([]*domain.Record{nil, record(domain.SourceTypePubMed, "Alpha"), nil})
	assert.Equal(t, 1, added)
	assert.Equal(t, 0, dups)
}

func TestMergeConcurrent(t *testing.T) {
	set := NewResultSet()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				// Same titles from every goroutine; exactly one copy
				// of each must survive.
				set.Merge([]*domain.Record{record(domain.SourceTypePubMed, fmt.Sprintf("Paper %d", i))})
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 50, set.Len())
}
