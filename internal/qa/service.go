// Package qa answers questions over the fact table: translate, classify, expand, execute, summarize.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/HRMetricsQA/internal/engine"
	"github.com/JonMunkholm/HRMetricsQA/internal/inventory"
	"github.com/JonMunkholm/HRMetricsQA/internal/llm"
	"github.com/JonMunkholm/HRMetricsQA/internal/metrics"
	"github.com/JonMunkholm/HRMetricsQA/internal/placeholder"
	"github.com/JonMunkholm/HRMetricsQA/internal/registry"
)

// PreviewRows bounds the rows forwarded to the summarizer and returned to the caller.
const PreviewRows = 100

// Executor runs an expanded query in a private session where table names the dataset.
type Executor interface {
	Execute(ctx context.Context, query, table string) (*engine.RowSet, error)
}

// Synthesizer is the pair of collaborator calls.
type Synthesizer interface {
	BuildSQL(ctx context.Context, question string, inv *inventory.Inventory, history []llm.Turn) (string, error)
	Summarize(ctx context.Context, in llm.SummaryInput) (string, error)
}

// Service holds the immutable per-process state shared by all requests.
type Service struct {
	log      *slog.Logger
	table    string
	inv      *inventory.Inventory
	expander *placeholder.Expander
	exec     Executor
	synth    Synthesizer
}

// Config wires a Service.
type Config struct {
	Logger      *slog.Logger
	Table       string
	Registry    *registry.Registry
	Inventory   *inventory.Inventory
	Executor    Executor
	Synthesizer Synthesizer
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Table == "" {
		return errors.New("table name is required")
	}
	if c.Registry == nil {
		return errors.New("registry is required")
	}
	if c.Inventory == nil {
		return errors.New("inventory is required")
	}
	if c.Executor == nil {
		return errors.New("executor is required")
	}
	return nil
}

// New returns a Service. A nil Synthesizer is allowed: Run works without one, Ask does not.
func New(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		log:      cfg.Logger,
		table:    cfg.Table,
		inv:      cfg.Inventory,
		expander: placeholder.New(cfg.Registry.Atomic(), cfg.Registry.DerivedFormulas()),
		exec:     cfg.Executor,
		synth:    cfg.Synthesizer,
	}, nil
}

// Question is one inbound request.
type Question struct {
	Text    string     `json:"question"`
	History []llm.Turn `json:"history"`
}

// Ask answers q. Every failure is reported through the Result mode and answer; no error is returned.
func (s *Service) Ask(ctx context.Context, q Question) Result {
	res := s.ask(ctx, q)
	res.RequestID = uuid.NewString()
	metrics.AnswersTotal.WithLabelValues(string(res.Mode)).Inc()
	s.log.Info("qa: answered", "request_id", res.RequestID, "mode", res.Mode, "success", res.Success, "rows", res.RowCount)
	return res
}

func (s *Service) ask(ctx context.Context, q Question) Result {
	if s.synth == nil {
		return textOnly(llm.KindTextOnly.Code(), MessageNotConfigured)
	}

	reply, err := s.synth.BuildSQL(ctx, q.Text, s.inv, q.History)
	if err != nil {
		return textOnly(llm.KindTextOnly.Code(), fmt.Sprintf(MessageTranslateFailed, err))
	}

	outcome := llm.Classify(reply)
	s.log.Debug("qa: classified", "kind", outcome.Kind, "malformed", outcome.Malformed)
	if outcome.Kind != llm.KindQuery {
		return textOnly(outcome.Kind.Code(), outcome.Text)
	}

	prepared, err := s.prepare(outcome.Query())
	if err != nil {
		return Result{
			Mode:     ModePrepError,
			Success:  llm.KindTextOnly.Code(),
			Answer:   fmt.Sprintf(MessagePrepFailed, err),
			RawQuery: prepared.RawQuery,
		}
	}

	rs, err := s.execute(ctx, prepared)
	if err != nil {
		return Result{
			Mode:          ModeExecError,
			Success:       llm.KindTextOnly.Code(),
			Answer:        fmt.Sprintf(MessageExecFailed, err),
			RawQuery:      prepared.RawQuery,
			ExpandedQuery: prepared.ExpandedQuery,
		}
	}

	preview := rs.Preview(PreviewRows)
	answer, err := s.synth.Summarize(ctx, llm.SummaryInput{
		Question:      q.Text,
		RawQuery:      prepared.RawQuery,
		ExpandedQuery: prepared.ExpandedQuery,
		Columns:       rs.Columns,
		Preview:       preview,
		RowCount:      rs.Count(),
		Inventory:     s.inv,
	})
	if err != nil {
		answer = fmt.Sprintf(MessageSummaryFailed, err)
	}

	return Result{
		Mode:          ModeOK,
		Success:       llm.KindQuery.Code(),
		Answer:        answer,
		RawQuery:      prepared.RawQuery,
		ExpandedQuery: prepared.ExpandedQuery,
		Columns:       rs.Columns,
		RowCount:      rs.Count(),
		Preview:       preview,
	}
}

// Prepared is a query after placeholder expansion and validation.
type Prepared struct {
	RawQuery      string
	ExpandedQuery string

	// statement is ExpandedQuery as handed to the executor.
	statement string
}

// Run executes a placeholder-bearing query without consulting the collaborators.
// Preparation failures are *placeholder.UnknownMetricError or an engine validation error;
// execution failures are *engine.ExecutionError.
func (s *Service) Run(ctx context.Context, rawQuery string) (Prepared, *engine.RowSet, error) {
	prepared, err := s.prepare(llm.StripCodeFences(rawQuery))
	if err != nil {
		return prepared, nil, err
	}
	rs, err := s.execute(ctx, prepared)
	return prepared, rs, err
}

// Inventory returns the shared inventory.
func (s *Service) Inventory() *inventory.Inventory {
	return s.inv
}

func (s *Service) prepare(raw string) (Prepared, error) {
	p := Prepared{RawQuery: raw}
	s.log.Debug("qa: expanding query", "placeholders", strings.Join(placeholder.Placeholders(raw), ", "))

	expanded, err := s.expander.Expand(raw)
	if err != nil {
		var unknown *placeholder.UnknownMetricError
		if errors.As(err, &unknown) {
			metrics.PlaceholderRejections.Inc()
			s.log.Warn("qa: unknown metric placeholder", "metric", unknown.Name)
		}
		return p, err
	}

	validated, err := engine.ValidateSelect(expanded)
	if err != nil {
		s.log.Warn("qa: query rejected", "error", err)
		return p, err
	}
	p.ExpandedQuery = expanded
	p.statement = validated
	return p, nil
}

func (s *Service) execute(ctx context.Context, p Prepared) (*engine.RowSet, error) {
	start := time.Now()
	rs, err := s.exec.Execute(ctx, p.statement, s.table)
	metrics.QueryDuration.WithLabelValues(metrics.Outcome(err)).Observe(time.Since(start).Seconds())
	return rs, err
}

func textOnly(code, answer string) Result {
	return Result{Mode: ModeTextOnly, Success: code, Answer: answer}
}
