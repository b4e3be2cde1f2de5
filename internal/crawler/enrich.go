package crawler

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Enrichment struct {
	Summary string
}

// Enricher 内容增强，失败不影响入库
type Enricher interface {
	Enrich(ctx context.Context, title, body string) (Enrichment, error)
}

type EnrichmentError struct {
	Err error
}

func (e *EnrichmentError) Error() string { return fmt.Sprintf("enrichment failed: %v", e.Err) }
func (e *EnrichmentError) Unwrap() error { return e.Err }

type NopEnricher struct{}

func (NopEnricher) Enrich(context.Context, string, string) (Enrichment, error) {
	return Enrichment{}, nil
}

const maxSummaryRunes = 600

// ExtractiveSummarizer 取正文前 N 个句子作为摘要
type ExtractiveSummarizer struct {
	Sentences int
}

func NewExtractiveSummarizer(sentences int) *ExtractiveSummarizer {
	if sentences <= 0 {
		sentences = 3
	}
	return &ExtractiveSummarizer{Sentences: sentences}
}

func (s *ExtractiveSummarizer) Enrich(ctx context.Context, title, body string) (Enrichment, error) {
	if err := ctx.Err(); err != nil {
		return Enrichment{}, &EnrichmentError{Err: err}
	}
	sentences := splitSentences(body)
	if len(sentences) > s.Sentences {
		sentences = sentences[:s.Sentences]
	}
	summary := strings.Join(sentences, " ")
	if utf8.RuneCountInString(summary) > maxSummaryRunes {
		summary = string([]rune(summary)[:maxSummaryRunes]) + "…"
	}
	return Enrichment{Summary: summary}, nil
}

// splitSentences 按 . ! ? 和全角句号切分，终止符后需跟空白或文本结束
func splitSentences(text string) []string {
	var (
		out   []string
		start int
		runes = []rune(text)
	)
	for i, r := range runes {
		if !isTerminator(r) {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) && !isFullWidth(r) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, strings.Join(strings.Fields(s), " "))
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, strings.Join(strings.Fields(s), " "))
	}
	return out
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isFullWidth(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}
