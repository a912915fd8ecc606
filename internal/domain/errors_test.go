package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderError(t *testing.T) {
	t.Run("matches its kind sentinel", func(t *testing.T) {
		err := NewProviderError(SourceTypeScholar, ErrorKindRateLimited, "access denied", nil)

		assert.ErrorIs(t, err, ErrRateLimited)
		assert.NotErrorIs(t, err, ErrAuthFailed)
	})

	t.Run("preserves the cause", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := NewProviderError(SourceTypePubMed, ErrorKindNetwork, "esearch failed", cause)

		assert.ErrorIs(t, err, cause)
		assert.ErrorIs(t, err, ErrNetwork)
	})

	t.Run("survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("task failed: %w",
			NewProviderError(SourceTypeBioRxiv, ErrorKindMalformed, "bad JSON", nil))

		assert.ErrorIs(t, err, ErrMalformedResponse)

		var pe *ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, SourceTypeBioRxiv, pe.Source)
	})

	t.Run("error string includes source kind and message", func(t *testing.T) {
		err := NewProviderError(SourceTypeScholar, ErrorKindAuth, "bad key", nil)

		assert.Contains(t, err.Error(), "scholar")
		assert.Contains(t, err.Error(), "auth")
		assert.Contains(t, err.Error(), "bad key")
	})
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{
			name: "provider error kind is extracted",
			err:  NewProviderError(SourceTypePubMed, ErrorKindAuth, "forbidden", nil),
			want: ErrorKindAuth,
		},
		{
			name: "wrapped provider error kind is extracted",
			err:  fmt.Errorf("wrap: %w", NewProviderError(SourceTypeScholar, ErrorKindRateLimited, "429", nil)),
			want: ErrorKindRateLimited,
		},
		{
			name: "plain error classifies as network",
			err:  errors.New("dial tcp: timeout"),
			want: ErrorKindNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestExternalAPIError(t *testing.T) {
	cause := errors.New("upstream")
	err := NewExternalAPIError("PubMed", 500, "internal error", cause)

	assert.Contains(t, err.Error(), "PubMed")
	assert.Contains(t, err.Error(), "500")
	assert.ErrorIs(t, err, cause)
}
