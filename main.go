package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/JonMunkholm/HRMetricsQA/internal/dataset"
	"github.com/JonMunkholm/HRMetricsQA/internal/engine"
	"github.com/JonMunkholm/HRMetricsQA/internal/inventory"
	"github.com/JonMunkholm/HRMetricsQA/internal/llm"
	"github.com/JonMunkholm/HRMetricsQA/internal/logger"
	"github.com/JonMunkholm/HRMetricsQA/internal/metrics"
	"github.com/JonMunkholm/HRMetricsQA/internal/qa"
	"github.com/JonMunkholm/HRMetricsQA/internal/registry"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultAddr       = ":8000"
	defaultDataPath   = "./data2.xlsx"
	defaultTable      = "hr_facts"
	defaultAccessCode = "777"
	shutdownTimeout   = 30 * time.Second
)

type config struct {
	Addr         string
	DataPath     string
	Sheet        string
	Table        string
	RegistryPath string
	AccessCode   string
	CORSOrigins  []string
	MetricsAddr  string
	Verbose      bool
	ShowVersion  bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load() // loads .env if present, silently ignores if not

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}
	if cfg.ShowVersion {
		fmt.Printf("version=%s commit=%s date=%s\n", version, commit, date)
		return nil
	}

	log := logger.New(os.Stdout, cfg.Verbose)
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	reg, err := loadRegistry(cfg.RegistryPath)
	if err != nil {
		return err
	}

	tbl, err := dataset.Load(cfg.DataPath, cfg.Sheet)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	log.Info("dataset loaded", "path", cfg.DataPath, "columns", len(tbl.Columns), "rows", len(tbl.Rows))

	inv := inventory.Build(tbl, reg.Dimensions())
	if missing := inv.Missing(); len(missing) > 0 {
		log.Warn("dimensions missing from dataset", "dimensions", strings.Join(missing, ", "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.Open(ctx, log, tbl)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	defer eng.Close()
	log.Info("engine ready", "table", cfg.Table, "rows", eng.RowCount())

	provider, err := llm.NewProviderFromEnv()
	if err != nil {
		return fmt.Errorf("failed to initialize LLM: %w", err)
	}
	log.Info("LLM provider initialized", "provider", provider.Name())

	svc, err := qa.New(qa.Config{
		Logger:      log,
		Table:       cfg.Table,
		Registry:    reg,
		Inventory:   inv,
		Executor:    eng,
		Synthesizer: llm.NewSynthesizer(log, provider, reg, cfg.Table),
	})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(log, cfg.MetricsAddr)
	}

	a := &app{
		log:        log,
		svc:        svc,
		reg:        reg,
		table:      cfg.Table,
		accessCode: cfg.AccessCode,
	}
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.routes(cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "address", cfg.Addr, "table", cfg.Table)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func loadConfig(args []string) (config, error) {
	var cfg config
	var corsCSV string

	fs := flag.NewFlagSet("hrqa-server", flag.ContinueOnError)
	fs.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")
	fs.StringVar(&cfg.Addr, "addr", env("ADDR", defaultAddr), "http listen address (env: ADDR)")
	fs.StringVar(&cfg.DataPath, "data-path", env("EXCEL_PATH", defaultDataPath), "dataset file, .xlsx or .csv (env: EXCEL_PATH)")
	fs.StringVar(&cfg.Sheet, "sheet", env("EXCEL_SHEET", ""), "workbook sheet, first when empty (env: EXCEL_SHEET)")
	fs.StringVar(&cfg.Table, "table", env("TABLE_NAME", defaultTable), "table name queries refer to (env: TABLE_NAME)")
	fs.StringVar(&cfg.RegistryPath, "registry", env("REGISTRY_PATH", ""), "metric registry YAML, built-in when empty (env: REGISTRY_PATH)")
	fs.StringVar(&cfg.AccessCode, "access-code", env("ACCESS_CODE", defaultAccessCode), "shared access code (env: ACCESS_CODE)")
	fs.StringVar(&corsCSV, "cors-origins", env("CORS_ORIGINS", "*"), "allowed CORS origins csv (env: CORS_ORIGINS)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", env("METRICS_ADDR", ""), "prometheus metrics address, disabled when empty (env: METRICS_ADDR)")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if cfg.ShowVersion {
		return cfg, nil
	}

	cfg.CORSOrigins = splitCSV(corsCSV)
	if cfg.Table == "" {
		return config{}, fmt.Errorf("table name is empty (set TABLE_NAME or --table)")
	}
	if cfg.AccessCode == "" {
		return config{}, fmt.Errorf("access code is empty (set ACCESS_CODE or --access-code)")
	}
	return cfg, nil
}

func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.Default()
	}
	reg, err := registry.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return reg, nil
}

func serveMetrics(log *slog.Logger, addr string) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("failed to start prometheus metrics server listener", "error", err)
		return
	}
	log.Info("prometheus metrics server listening", "address", listener.Addr().String())
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.Serve(listener, mux); err != nil {
		log.Error("prometheus metrics server stopped", "error", err)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
