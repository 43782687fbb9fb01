// Package metrics is the backend-agnostic metrics facade used by the loader
// and pipeline. Core code records through the package-level helpers; a
// command picks the concrete backend with SetBackend. Until then every call
// is a no-op.
//
// Metric names (labels in braces):
//
//	etl_step_total{step,status}             counter
//	etl_step_duration_seconds{step,status}  histogram
//	etl_records_total{table,kind}           counter; kind is read, accepted,
//	                                        split, truncated, skipped,
//	                                        inserted or cast_null
//	etl_tables_total{status}                counter
//	etl_columns_total{type}                 counter; type is INTEGER, REAL or TEXT
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions. Backends may ignore labels they do not know.
type Labels map[string]string

// Backend receives metric events.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush asks the current backend to submit buffered data.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one step outcome and observes its duration.
func RecordStep(step string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	IncCounter("etl_step_total", 1, l)
	ObserveHistogram("etl_step_duration_seconds", d.Seconds(), l)
}

// RecordRecords adds n to the per-table record counter of the given kind.
// Zero counts are dropped.
func RecordRecords(table, kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter("etl_records_total", float64(n), Labels{"table": table, "kind": kind})
}

// RecordTable counts one finished table load.
func RecordTable(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	IncCounter("etl_tables_total", 1, Labels{"status": status})
}

// RecordColumn counts one created column of the given storage type.
func RecordColumn(typ string) {
	IncCounter("etl_columns_total", 1, Labels{"type": typ})
}
