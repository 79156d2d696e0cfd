package recordproc

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aiperf/aiperf/internal/adapters"
	"github.com/aiperf/aiperf/internal/aierrors"
	"github.com/aiperf/aiperf/internal/models"
)

// TokenCounter abstracts the external tokenizer collaborator: used only
// when the server did not report usage.
type TokenCounter interface {
	CountTokens(text string) int
}

// wordCounter is the fallback TokenCounter when no tokenizer is wired in:
// whitespace-split word count, a deliberate approximation.
type wordCounter struct{}

func (wordCounter) CountTokens(text string) int { return len(strings.Fields(text)) }

// Processor turns one RequestRecord into per-record metric values.
type Processor struct {
	adapter   adapters.Adapter
	tokenizer TokenCounter
	metrics   []RecordMetric
	logger    zerolog.Logger
}

// NewProcessor builds a Processor running metrics (already topo-ordered via
// DefaultMetrics or TopoOrder). A nil tokenizer falls back to word counting.
func NewProcessor(adapter adapters.Adapter, tokenizer TokenCounter, metrics []RecordMetric, logger zerolog.Logger) *Processor {
	if tokenizer == nil {
		tokenizer = wordCounter{}
	}
	return &Processor{adapter: adapter, tokenizer: tokenizer, metrics: metrics, logger: logger}
}

// Parse runs the adapter over every raw response chunk and derives token
// counts: server-reported usage wins; otherwise the text
// is tokenized; embeddings and rankings count zero.
func (p *Processor) Parse(rec *models.RequestRecord) *ParsedResult {
	parsed := &ParsedResult{Record: models.ParsedResponseRecord{Record: rec}}

	for _, raw := range rec.Responses {
		pr, err := p.adapter.ParseResponse(raw.Body)
		if err != nil {
			details := aierrors.FromError(err)
			parsed.ParseError = &details
			continue
		}
		if pr == nil {
			continue
		}
		pr.PerfNs = raw.PerfNs
		parsed.Record.Parsed = append(parsed.Record.Parsed, *pr)
	}

	p.deriveTokenCounts(&parsed.Record)
	return parsed
}

// ParsedResult bundles the ParsedResponseRecord with any parse error
// encountered; a parse error does not discard the chunks that did parse.
type ParsedResult struct {
	Record     models.ParsedResponseRecord
	ParseError *aierrors.ErrorDetails
}

func (p *Processor) deriveTokenCounts(rec *models.ParsedResponseRecord) {
	var usage *models.Usage
	var outputText, reasoningText strings.Builder

	for i := range rec.Parsed {
		pr := &rec.Parsed[i]
		if pr.Usage != nil {
			usage = pr.Usage // last chunk's usage is cumulative for OpenAI-style streams
		}
		switch pr.Kind {
		case models.ResponseText:
			if pr.Text != nil {
				outputText.WriteString(pr.Text.Text)
			}
		case models.ResponseReasoning:
			if pr.Reasoning != nil {
				outputText.WriteString(pr.Reasoning.Content)
				reasoningText.WriteString(pr.Reasoning.Reasoning)
			}
		}
	}

	if usage != nil && usage.CompletionTokens > 0 {
		rec.InputTokens = usage.PromptTokens
		rec.OutputTokens = usage.CompletionTokens - usage.ReasoningTokens
		rec.ReasoningTokens = usage.ReasoningTokens
		return
	}

	rec.OutputTokens = p.tokenizer.CountTokens(outputText.String())
	rec.ReasoningTokens = p.tokenizer.CountTokens(reasoningText.String())
	if usage != nil {
		rec.InputTokens = usage.PromptTokens
	}
}

// Compute runs every metric whose required inputs are present, in
// dependency order, collecting tag -> value.
// NoMetricValue skips silently; any other error is returned for
// error_summary aggregation.
func (p *Processor) Compute(rec *models.ParsedResponseRecord) (models.MetricRecord, error) {
	computed := make(models.MetricRecord, len(p.metrics))
	var firstErr error
	for _, m := range p.metrics {
		value, err := m.Compute(rec, computed)
		if err != nil {
			if errors.Is(err, aierrors.ErrNoMetricValue) {
				continue
			}
			p.logger.Warn().Err(err).Str("metric", m.Tag()).Msg("recordproc: metric computation failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		computed[m.Tag()] = value
	}
	return computed, firstErr
}

// Process is the full record pipeline for one record: parse, derive, compute.
func (p *Processor) Process(rec *models.RequestRecord) (models.MetricRecord, models.MetricRecordMetadata, bool, *aierrors.ErrorDetails) {
	parsed := p.Parse(rec)

	metadata := models.MetricRecordMetadata{
		CreditPhase:           rec.CreditPhase,
		MinRequestTimestampNs: rec.TimestampNs,
		WasCancelled:          rec.WasCancelled,
	}

	valid := rec.IsValid() && parsed.ParseError == nil

	computed, err := p.Compute(&parsed.Record)
	errDetails := parsed.ParseError
	if err != nil && errDetails == nil {
		d := aierrors.FromError(err)
		errDetails = &d
	}
	if rec.Error != nil && errDetails == nil {
		errDetails = rec.Error
	}
	return computed, metadata, valid, errDetails
}
