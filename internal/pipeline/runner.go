// Package pipeline runs a full load: every configured table in order
// (open, read, normalize, load), then the secondary indexes.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ivoytov/forqloz/internal/catalog"
	"github.com/ivoytov/forqloz/internal/config"
	"github.com/ivoytov/forqloz/internal/datasource"
	"github.com/ivoytov/forqloz/internal/loader"
	"github.com/ivoytov/forqloz/internal/metrics"
	"github.com/ivoytov/forqloz/internal/normalize"
	csvparser "github.com/ivoytov/forqloz/internal/parser/csv"
	"github.com/ivoytov/forqloz/internal/storage"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner wires sources, the normalizer, the loader and a repository.
//
// Logger receives stage logs; Warn receives row-level warnings. Either may be
// nil to discard.
type Runner struct {
	// Open is the source seam. Production uses a datasource.Opener.
	Open func(ctx context.Context, loc string) (io.ReadCloser, error)

	// storage-agnostic factory seam
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	Logger Logger
	Warn   Logger
}

// NewDefaultRunner returns a Runner backed by the registered storage
// backends and a datasource.Opener configured from the environment.
func NewDefaultRunner(logger, warn Logger) *Runner {
	opener := &datasource.Opener{S3: datasource.S3OptionsFromEnv()}
	return &Runner{
		Open:          opener.Open,
		NewRepository: storage.New,
		Logger:        logger,
		Warn:          warn,
	}
}

// TableReport is the outcome of one table load.
type TableReport struct {
	Table     string
	Source    string
	Records   int // data records read, header excluded
	Accepted  int
	Split     int
	Truncated int
	Skipped   int
	Inserted  int64
	CastNull  int
	Columns   []storage.ColumnSpec
	Duration  time.Duration
}

// Report is the outcome of a run. On error it holds the tables that were
// loaded before the failure.
type Report struct {
	RunID    string
	Tables   []TableReport
	Indexes  int
	Duration time.Duration
}

// Run executes p. Tables load sequentially in declaration order, each in
// its own transaction; a failure on one table stops the run but leaves the
// tables before it in place. A missing source yields an error wrapping
// datasource.ErrMissingSource.
func (r *Runner) Run(ctx context.Context, p config.Pipeline) (Report, error) {
	start := time.Now()
	rep := Report{RunID: uuid.NewString()}
	logf := logger(r.Logger)

	if r.Open == nil || r.NewRepository == nil {
		return rep, fmt.Errorf("pipeline: Open and NewRepository are required")
	}
	if err := validate(p); err != nil {
		return rep, err
	}

	policies := make([]normalize.Policy, len(p.Tables))
	for i, t := range p.Tables {
		pol, err := normalize.NewPolicy(t.Recovery.Kind, t.Recovery.DropHeaders)
		if err != nil {
			return rep, fmt.Errorf("table %s: %w", t.Name, err)
		}
		policies[i] = pol
	}

	logf("stage=run run_id=%s job=%s storage=%s tables=%d", rep.RunID, p.Job, p.Storage.Kind, len(p.Tables))

	repo, err := r.NewRepository(ctx, storage.Config{
		Kind: p.Storage.Kind,
		DSN:  os.ExpandEnv(p.Storage.DSN),
	})
	if err != nil {
		return rep, fmt.Errorf("open storage %s: %w", p.Storage.Kind, err)
	}
	defer repo.Close()

	ld := &loader.Loader{Repo: repo, Hints: catalog.HintsFrom(p), Logger: r.Logger}

	for i, t := range p.Tables {
		tr, err := r.runTable(ctx, p, t, policies[i], ld)
		if err != nil {
			rep.Duration = durMS(start)
			return rep, err
		}
		rep.Tables = append(rep.Tables, tr)
	}

	idxStart := time.Now()
	specs := indexSpecs(p.Indexes)
	err = repo.EnsureIndexes(ctx, specs)
	metrics.RecordStep("index", err, time.Since(idxStart))
	if err != nil {
		rep.Duration = durMS(start)
		return rep, fmt.Errorf("ensure indexes: %w", err)
	}
	rep.Indexes = len(specs)
	logf("stage=index ok count=%d duration=%s", len(specs), durMS(idxStart))

	rep.Duration = durMS(start)
	logf("stage=run ok run_id=%s tables=%d duration=%s", rep.RunID, len(rep.Tables), rep.Duration)
	return rep, nil
}

func (r *Runner) runTable(ctx context.Context, p config.Pipeline, t config.Table, pol normalize.Policy, ld *loader.Loader) (TableReport, error) {
	start := time.Now()
	loc := datasource.Resolve(p.Source.Dir, t.Path)
	tr := TableReport{Table: t.Name, Source: loc}
	warnf := logger(r.Warn)

	src, err := r.Open(ctx, loc)
	if err != nil {
		metrics.RecordStep("read", err, time.Since(start))
		return tr, fmt.Errorf("table %s: %w", t.Name, err)
	}
	records, err := csvparser.ReadRecords(ctx, src, p.Parser.Options, func(line int, err error) {
		warnf("warn: skipping unparseable row %d in %s: %v", line, loc, err)
	})
	metrics.RecordStep("read", err, time.Since(start))
	if err != nil {
		return tr, fmt.Errorf("table %s: read %s: %w", t.Name, loc, err)
	}
	if len(records) == 0 {
		return tr, fmt.Errorf("table %s: %s has no header row", t.Name, loc)
	}

	norm := &normalize.Normalizer{Policy: pol, Logger: r.Warn}
	res := norm.Normalize(loc, records)
	if len(res.Headers) == 0 {
		return tr, fmt.Errorf("table %s: %s has no usable headers", t.Name, loc)
	}

	tr.Records = len(records) - 1
	tr.Accepted = res.Accepted
	tr.Split = res.Split
	tr.Truncated = res.Truncated
	tr.Skipped = len(res.Skipped)
	metrics.RecordRecords(t.Name, "read", tr.Records)
	metrics.RecordRecords(t.Name, "accepted", tr.Accepted)
	metrics.RecordRecords(t.Name, "split", tr.Split)
	metrics.RecordRecords(t.Name, "truncated", tr.Truncated)
	metrics.RecordRecords(t.Name, "skipped", tr.Skipped)

	st, err := ld.Load(ctx, t.Name, res)
	if err != nil {
		return tr, err
	}
	tr.Inserted = st.Inserted
	tr.CastNull = st.CastNull
	tr.Columns = st.Columns
	tr.Duration = durMS(start)
	return tr, nil
}

// validate turns error-severity config issues into a single error.
func validate(p config.Pipeline) error {
	issues := config.ValidatePipeline(p)
	if !config.HasErrors(issues) {
		return nil
	}
	var msgs []string
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			msgs = append(msgs, iss.Path+": "+iss.Message)
		}
	}
	return fmt.Errorf("invalid pipeline: %s", strings.Join(msgs, "; "))
}

func indexSpecs(in []config.Index) []storage.IndexSpec {
	out := make([]storage.IndexSpec, 0, len(in))
	for _, ix := range in {
		out = append(out, storage.IndexSpec{
			Name:    ix.Name,
			Table:   ix.Table,
			Columns: append([]string(nil), ix.Columns...),
			Unique:  ix.Unique,
		})
	}
	return out
}

func logger(l Logger) func(format string, v ...any) {
	if l == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return l.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
