// Command build_sqlite loads the foreclosure CSV exports into a single
// database (SQLite by default) and creates the lookup indexes.
//
// Usage:
//
//	build_sqlite [-data-dir web/foreclosures] [-config pipeline.json] [-db path] [-v]
//
// Without -config the built-in foreclosure catalog is used.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ivoytov/forqloz/internal/catalog"
	"github.com/ivoytov/forqloz/internal/config"
	"github.com/ivoytov/forqloz/internal/metrics"
	"github.com/ivoytov/forqloz/internal/metrics/datadog"
	"github.com/ivoytov/forqloz/internal/pipeline"

	// register all backends with the storage factory.
	_ "github.com/ivoytov/forqloz/internal/storage/all"
)

// backendCloser is the minimal interface used by this command to manage a metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
}

// runConfig holds the parsed flags.
type runConfig struct {
	ConfigPath     string
	DataDir        string
	DataDirSet     bool
	DB             string
	StorageKind    string
	EnvFile        string
	MetricsBackend string
	DDTagsCSV      string
	FlushEvery     time.Duration
	DryRun         bool
	Verbose        bool
}

func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
	})
	os.Exit(code)
}

// run executes the command and returns an exit code.
//
// Exit codes:
//   - 0: success (or a valid -dry-run).
//   - 1: the load failed (missing source, database error).
//   - 2: flag, environment or configuration error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	if err := loadEnvFile(cfg.EnvFile); err != nil {
		fmt.Fprintf(d.Stderr, "load env file: %v\n", err)
		return 2
	}

	p, err := resolvePipeline(cfg)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(d.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintln(d.Stderr, "configuration is invalid")
		return 2
	}

	if cfg.DryRun {
		enc := json.NewEncoder(d.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(p); err != nil {
			fmt.Fprintf(d.Stderr, "encode pipeline: %v\n", err)
			return 2
		}
		return 0
	}

	var stageLog pipeline.Logger
	if cfg.Verbose {
		stageLog = log.New(d.Stderr, "", log.LstdFlags)
	}
	warnLog := log.New(d.Stderr, "", 0)

	closeMetrics, err := setupMetrics(ctx, cfg, p.Job, d)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	defer closeMetrics()

	rep, err := pipeline.NewDefaultRunner(stageLog, warnLog).Run(ctx, p)
	if stageLog != nil {
		for _, tr := range rep.Tables {
			stageLog.Printf("report table=%s records=%d inserted=%d accepted=%d split=%d truncated=%d skipped=%d cast_null=%d duration=%s",
				tr.Table, tr.Records, tr.Inserted, tr.Accepted, tr.Split, tr.Truncated, tr.Skipped, tr.CastNull, tr.Duration)
		}
	}
	if err != nil {
		fmt.Fprintf(d.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintln(d.Stdout, successMessage(p.Storage.Kind, os.ExpandEnv(p.Storage.DSN)))
	return 0
}

// parseFlags parses command arguments into a runConfig.
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("build_sqlite", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.ConfigPath, "config", "", "pipeline config JSON path (default: built-in foreclosure catalog)")
	fs.StringVar(&cfg.DataDir, "data-dir", "web/foreclosures", "directory holding the source CSVs")
	fs.StringVar(&cfg.DB, "db", "", "output database DSN (default: <data-dir>/foreclosures.sqlite)")
	fs.StringVar(&cfg.StorageKind, "storage", "", "storage backend override: sqlite, duckdb, postgres, mssql")
	fs.StringVar(&cfg.EnvFile, "env", ".env", "dotenv file to load if present")
	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", "", "metrics backend: none or datadog (overrides env METRICS_BACKEND)")
	fs.StringVar(&cfg.DDTagsCSV, "dd_tags", "", "extra Datadog tags CSV (e.g. env:prod,service:forqloz)")
	fs.DurationVar(&cfg.FlushEvery, "metrics_flush", time.Minute, "Datadog flush interval")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "validate and print the resolved pipeline, then exit")
	fs.BoolVar(&cfg.Verbose, "v", false, "enable stage logs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}
	if fs.NArg() > 0 {
		return runConfig{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "data-dir" {
			cfg.DataDirSet = true
		}
	})
	if cfg.FlushEvery <= 0 {
		return runConfig{}, fmt.Errorf("-metrics_flush must be > 0")
	}
	return cfg, nil
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// resolvePipeline picks the config file or the built-in catalog and applies
// flag overrides.
func resolvePipeline(cfg runConfig) (config.Pipeline, error) {
	var p config.Pipeline
	if cfg.ConfigPath != "" {
		loaded, err := config.Load(cfg.ConfigPath)
		if err != nil {
			return config.Pipeline{}, err
		}
		p = loaded
		if cfg.DataDirSet {
			p.Source.Dir = cfg.DataDir
		}
	} else {
		p = catalog.Foreclosures(cfg.DataDir)
	}

	if cfg.StorageKind != "" {
		p.Storage.Kind = cfg.StorageKind
	}
	if cfg.DB != "" {
		p.Storage.DSN = cfg.DB
	}
	return p, nil
}

// setupMetrics installs the selected metrics backend and returns its
// shutdown function. Flag wins over METRICS_BACKEND.
func setupMetrics(ctx context.Context, cfg runConfig, job string, d deps) (func(), error) {
	name := cfg.MetricsBackend
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}

	switch name {
	case "", "none":
		return func() {}, nil
	case "datadog":
		if d.BackendFactory == nil {
			return nil, fmt.Errorf("internal error: BackendFactory is nil")
		}
		tags := append(datadog.ParseTagsCSV(cfg.DDTagsCSV), "tool:build_sqlite")
		b, err := d.BackendFactory(ctx, job, tags, cfg.FlushEvery)
		if err != nil {
			return nil, fmt.Errorf("datadog backend init failed: %w", err)
		}
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				fmt.Fprintf(d.Stderr, "metrics: datadog close/flush error: %v\n", err)
			}
			metrics.SetBackend(nil)
		}, nil
	default:
		return nil, fmt.Errorf("unknown metrics backend %q (want none or datadog)", name)
	}
}

func successMessage(kind, dsn string) string {
	if kind == "sqlite" {
		return "Built SQLite DB at: " + dsn
	}
	return fmt.Sprintf("Built %s DB at: %s", kind, redactDSN(dsn))
}

// redactDSN hides the password of URL-style DSNs.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); !ok {
		return dsn
	}
	return u.Redacted()
}

