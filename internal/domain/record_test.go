package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{
			name:  "lowercases",
			title: "CRISPR Gene Editing",
			want:  "crispr gene editing",
		},
		{
			name:  "already normalized",
			title: "crispr gene editing",
			want:  "crispr gene editing",
		},
		{
			name:  "collapses whitespace and strips punctuation",
			title: "CRISPR  Gene Editing.",
			want:  "crispr gene editing",
		},
		{
			name:  "strips interior punctuation",
			title: "CRISPR-Cas9: a review, part II",
			want:  "crisprcas9 a review part ii",
		},
		{
			name:  "tabs and newlines collapse",
			title: "antimicrobial\tpeptides\nin plants",
			want:  "antimicrobial peptides in plants",
		},
		{
			name:  "leading and trailing whitespace",
			title: "   ACE2 receptor   ",
			want:  "ace2 receptor",
		},
		{
			name:  "empty title",
			title: "",
			want:  "",
		},
		{
			name:  "punctuation only",
			title: "...!?",
			want:  "",
		},
		{
			name:  "unicode letters survive",
			title: "Biosíntesis de Péptidos",
			want:  "biosíntesis de péptidos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.title))
		})
	}
}

func TestRecord_DedupKey(t *testing.T) {
	t.Run("case and punctuation variants collide", func(t *testing.T) {
		a := &Record{Source: SourceTypePubMed, Title: "CRISPR Gene Editing"}
		b := &Record{Source: SourceTypeBioRxiv, Title: "crispr gene editing"}
		c := &Record{Source: SourceTypeScholar, Title: "CRISPR  Gene Editing."}

		assert.Equal(t, a.DedupKey(), b.DedupKey())
		assert.Equal(t, b.DedupKey(), c.DedupKey())
	})

	t.Run("distinct titles do not collide", func(t *testing.T) {
		a := &Record{Title: "CRISPR Gene Editing"}
		b := &Record{Title: "CRISPR Base Editing"}

		assert.NotEqual(t, a.DedupKey(), b.DedupKey())
	})

	t.Run("other fields are irrelevant to identity", func(t *testing.T) {
		date := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
		category := "bioinformatics"
		a := &Record{Source: SourceTypeBioRxiv, ID: "10.1101/1", Title: "Same Title", PublishedDate: &date, Category: &category}
		b := &Record{Source: SourceTypePubMed, ID: "38012345", Title: "Same Title", Authors: []string{"A Author"}}

		assert.Equal(t, a.DedupKey(), b.DedupKey())
	})
}

func TestParseSourceType(t *testing.T) {
	tests := []struct {
		input string
		want  SourceType
		ok    bool
	}{
		{"pubmed", SourceTypePubMed, true},
		{"PubMed", SourceTypePubMed, true},
		{"  biorxiv ", SourceTypeBioRxiv, true},
		{"scholar", SourceTypeScholar, true},
		{"openalex", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseSourceType(tt.input)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllSourceTypes(t *testing.T) {
	types := AllSourceTypes()

	require.Len(t, types, 3)
	// Dispatch order is fixed alphabetical by identifier.
	assert.Equal(t, []SourceType{SourceTypeBioRxiv, SourceTypePubMed, SourceTypeScholar}, types)
}
