package main

import (
	"context"
	"crypto/subtle"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/JonMunkholm/HRMetricsQA/internal/dataset"
	"github.com/JonMunkholm/HRMetricsQA/internal/engine"
	"github.com/JonMunkholm/HRMetricsQA/internal/metrics"
	"github.com/JonMunkholm/HRMetricsQA/internal/placeholder"
	"github.com/JonMunkholm/HRMetricsQA/internal/qa"
	"github.com/JonMunkholm/HRMetricsQA/internal/registry"
)

const (
	defaultLimit = 200
	maxLimit     = 1000
	queryTimeout = 8 * time.Second

	accessCodeHeader  = "X-Access-Code"
	accessDeniedText  = "Недоступно. Неверный или отсутствующий код доступа."
	questionRequired  = "question is required"
	invalidJSONBody   = "invalid JSON body"
	maxRequestBodyLen = 1 << 20
)

type app struct {
	log        *slog.Logger
	svc        *qa.Service
	reg        *registry.Registry
	table      string
	accessCode string
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type queryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type queryResponse struct {
	Columns       []string `json:"columns"`
	Rows          [][]any  `json:"rows"`
	Count         int      `json:"count"`
	More          bool     `json:"more"`
	DurationMs    int64    `json:"durationMs"`
	ExpandedQuery string   `json:"expandedQuery,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func (a *app) routes(corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", accessCodeHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", a.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAccessCode)
		r.Post("/ask", a.handleAsk)
		r.Post("/query", a.handleQuery)
		r.Post("/export", a.handleExportCSV)
		r.Get("/inventory", a.handleInventory)
		r.Get("/registry", a.handleRegistry)
	})

	return r
}

// requireAccessCode accepts the code from the X-Access-Code header or the code query parameter.
func (a *app) requireAccessCode(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get(accessCodeHeader)
		if provided == "" {
			provided = r.URL.Query().Get("code")
		}
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(a.accessCode)) != 1 {
			respondJSON(w, http.StatusUnauthorized, errorResponse{Detail: accessDeniedText})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (a *app) handleAsk(w http.ResponseWriter, r *http.Request) {
	var q qa.Question
	if err := decodeJSON(w, r, &q); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Detail: invalidJSONBody})
		return
	}
	if strings.TrimSpace(q.Text) == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Detail: questionRequired})
		return
	}

	respondJSON(w, http.StatusOK, a.svc.Ask(r.Context(), q))
}

func (a *app) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, queryResponse{Error: invalidJSONBody})
		return
	}

	limit := clampLimit(req.Limit)

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	start := time.Now()
	prepared, rs, err := a.svc.Run(ctx, req.Query)
	if err != nil {
		respondJSON(w, statusForQueryError(err), queryResponse{ExpandedQuery: prepared.ExpandedQuery, Error: err.Error()})
		return
	}

	resp := queryResponse{
		Columns:       rs.Columns,
		Rows:          rs.Rows,
		ExpandedQuery: prepared.ExpandedQuery,
	}
	if len(resp.Rows) > limit {
		resp.Rows = resp.Rows[:limit]
		resp.More = true
	}
	resp.Count = len(resp.Rows)
	resp.DurationMs = time.Since(start).Milliseconds()

	respondJSON(w, http.StatusOK, resp)
}

func (a *app) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, invalidJSONBody, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	_, rs, err := a.svc.Run(ctx, req.Query)
	if err != nil {
		http.Error(w, err.Error(), statusForQueryError(err))
		return
	}

	filename := fmt.Sprintf("%s_%s.csv", a.table, time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	if err := csvWriter.Write(rs.Columns); err != nil {
		return
	}
	record := make([]string, len(rs.Columns))
	for _, row := range rs.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = dataset.FormatValue(row[i])
			}
		}
		if err := csvWriter.Write(record); err != nil {
			a.log.Warn("export: write failed", "error", err)
			return
		}
	}
}

func (a *app) handleInventory(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.svc.Inventory())
}

type registryResponse struct {
	Table   string   `json:"table"`
	Metrics []string `json:"metrics"`
	registry.KnowledgeBase
}

func (a *app) handleRegistry(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, registryResponse{
		Table:         a.table,
		Metrics:       a.reg.MetricNames(),
		KnowledgeBase: a.reg.KnowledgeBase(),
	})
}

// statusForQueryError maps preparation failures to 400 and engine failures to 422.
func statusForQueryError(err error) int {
	var unknown *placeholder.UnknownMetricError
	var execErr *engine.ExecutionError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &unknown),
		errors.Is(err, engine.ErrEmptyQuery),
		errors.Is(err, engine.ErrNotSelectQuery),
		errors.Is(err, engine.ErrMultipleStatements):
		return http.StatusBadRequest
	case errors.As(err, &execErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyLen)
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
