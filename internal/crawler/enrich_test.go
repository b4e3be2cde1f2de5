package crawler

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractiveSummarizer_TakesLeadingSentences(t *testing.T) {
	s := NewExtractiveSummarizer(2)

	e, err := s.Enrich(context.Background(), "t", "One is first. Two follows!\nThree? Four.")
	require.NoError(t, err)
	assert.Equal(t, "One is first. Two follows!", e.Summary)

	e, err = s.Enrich(context.Background(), "t", "第一句。第二句。第三句。")
	require.NoError(t, err)
	assert.Equal(t, "第一句。 第二句。", e.Summary)
}

func TestExtractiveSummarizer_KeepsDecimalsTogether(t *testing.T) {
	e, err := NewExtractiveSummarizer(1).Enrich(context.Background(), "t", "Version 1.5 shipped today. More later.")
	require.NoError(t, err)
	assert.Equal(t, "Version 1.5 shipped today.", e.Summary)
}

func TestExtractiveSummarizer_CapsLength(t *testing.T) {
	e, err := NewExtractiveSummarizer(3).Enrich(context.Background(), "t", strings.Repeat("字", 2000))
	require.NoError(t, err)
	assert.Equal(t, maxSummaryRunes+1, utf8.RuneCountInString(e.Summary))
	assert.True(t, strings.HasSuffix(e.Summary, "…"))
}

func TestExtractiveSummarizer_DefaultsAndCancel(t *testing.T) {
	assert.Equal(t, 3, NewExtractiveSummarizer(0).Sentences)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExtractiveSummarizer(1).Enrich(ctx, "t", "body.")
	var ee *EnrichmentError
	assert.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNopEnricher(t *testing.T) {
	e, err := NopEnricher{}.Enrich(context.Background(), "t", "b")
	require.NoError(t, err)
	assert.Empty(t, e.Summary)
}
