package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/HRMetricsQA/internal/inventory"
	"github.com/JonMunkholm/HRMetricsQA/internal/metrics"
	"github.com/JonMunkholm/HRMetricsQA/internal/registry"
)

// Turn is one prior conversation message, forwarded to the translator as-is.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Synthesizer builds the two collaborator requests: question -> placeholder query,
// and result -> natural-language answer. It does no parsing of the replies.
type Synthesizer struct {
	log      *slog.Logger
	provider Provider
	table    string
	kb       registry.KnowledgeBase
	dims     []string
}

// NewSynthesizer returns a Synthesizer for queries against table using the metrics of reg.
func NewSynthesizer(log *slog.Logger, provider Provider, reg *registry.Registry, table string) *Synthesizer {
	return &Synthesizer{
		log:      log,
		provider: provider,
		table:    table,
		kb:       reg.KnowledgeBase(),
		dims:     reg.Dimensions(),
	}
}

type translatePayload struct {
	UserQuery     string                 `json:"user_query"`
	Inventory     *inventory.Inventory   `json:"inventory"`
	History       []Turn                 `json:"history"`
	KnowledgeBase registry.KnowledgeBase `json:"knowledge_base"`
	Examples      []Example              `json:"examples"`
}

// BuildSQL asks the translator for a placeholder query answering question. The returned text is raw
// model output and is expected, not guaranteed, to hold a JSON object.
func (s *Synthesizer) BuildSQL(ctx context.Context, question string, inv *inventory.Inventory, history []Turn) (string, error) {
	if history == nil {
		history = []Turn{}
	}
	user, err := marshalPayload(translatePayload{
		UserQuery:     question,
		Inventory:     inv,
		History:       history,
		KnowledgeBase: s.kb,
		Examples:      translatorExamples(s.table, s.dims),
	})
	if err != nil {
		return "", fmt.Errorf("encode translator payload: %w", err)
	}

	text, err := s.complete(ctx, "translate", Request{
		System: BuildTranslatorPrompt(s.table),
		User:   user,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// SummaryInput is everything the summarizer sees about an executed query.
type SummaryInput struct {
	Question      string
	RawQuery      string
	ExpandedQuery string
	Columns       []string
	Preview       []map[string]any
	RowCount      int
	Inventory     *inventory.Inventory
}

type summaryPayload struct {
	Instruction   string               `json:"instruction"`
	Question      string               `json:"question"`
	RawQuery      string               `json:"sql_text_raw"`
	ExpandedQuery string               `json:"sql_text_expanded"`
	Columns       []string             `json:"columns"`
	RowsPreview   []map[string]any     `json:"rows_preview"`
	RowsCount     int                  `json:"rows_count"`
	Inventory     *inventory.Inventory `json:"inventory"`
}

// Summarize asks for the final user-facing answer. The reply is returned verbatim.
func (s *Synthesizer) Summarize(ctx context.Context, in SummaryInput) (string, error) {
	preview := in.Preview
	if preview == nil {
		preview = []map[string]any{}
	}
	user, err := marshalPayload(summaryPayload{
		Instruction:   summaryInstruction,
		Question:      in.Question,
		RawQuery:      in.RawQuery,
		ExpandedQuery: in.ExpandedQuery,
		Columns:       in.Columns,
		RowsPreview:   preview,
		RowsCount:     in.RowCount,
		Inventory:     in.Inventory,
	})
	if err != nil {
		return "", fmt.Errorf("encode summary payload: %w", err)
	}

	return s.complete(ctx, "summarize", Request{
		System: BuildSummaryPrompt(),
		User:   user,
	})
}

func (s *Synthesizer) complete(ctx context.Context, stage string, req Request) (string, error) {
	start := time.Now()
	resp, err := s.provider.Complete(ctx, req)
	duration := time.Since(start)
	metrics.LLMCallDuration.WithLabelValues(stage, metrics.Outcome(err)).Observe(duration.Seconds())
	if err != nil {
		s.log.Error("llm: call failed", "stage", stage, "provider", s.provider.Name(), "duration", duration, "error", err)
		return "", fmt.Errorf("%s: %w", stage, err)
	}
	s.log.Info("llm: call completed", "stage", stage, "provider", s.provider.Name(), "duration", duration, "tokens", resp.Tokens)
	s.log.Debug("llm: raw response", "stage", stage, "text", resp.Text)
	return resp.Text, nil
}

func marshalPayload(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
