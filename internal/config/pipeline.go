// Package config defines the JSON pipeline configuration consumed by
// cmd/build_sqlite and the validation rules applied before a run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ivoytov/forqloz/internal/schema"
)

// Pipeline is the full description of one load run: where the sources live,
// how to parse them, which tables to build and which indexes to create.
type Pipeline struct {
	Job     string  `json:"job"`
	Source  Source  `json:"source"`
	Parser  Parser  `json:"parser"`
	Storage Storage `json:"storage"`
	Tables  []Table `json:"tables"`
	Indexes []Index `json:"indexes,omitempty"`
}

// Source locates the input files. Relative table paths resolve against Dir.
type Source struct {
	Dir string `json:"dir"`
}

type Parser struct {
	Kind    string  `json:"kind"` // "csv"
	Options Options `json:"options,omitempty"`
}

type Storage struct {
	// Kind selects the backend: "sqlite" | "duckdb" | "postgres" | "mssql".
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// Table is one dataset: a source file loaded into a table of the same name.
type Table struct {
	Name     string                       `json:"name"`
	Path     string                       `json:"path"`
	Recovery Recovery                     `json:"recovery"`
	Hints    map[string]schema.ColumnType `json:"hints,omitempty"`
}

// Recovery selects how records whose width does not match the header are
// handled.
//
// Kind values:
//   - "none":     drop every mismatched record
//   - "split":    split records that are an exact multiple of the header width
//   - "truncate": keep the leading header-width fields of wider records
//
// DropHeaders is an optional regular expression; matching header names are
// removed before alignment (only meaningful with "truncate").
type Recovery struct {
	Kind        string `json:"kind"`
	DropHeaders string `json:"drop_headers,omitempty"`
}

type Index struct {
	Name    string   `json:"name"`
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// Recovery kinds.
const (
	RecoveryNone     = "none"
	RecoverySplit    = "split"
	RecoveryTruncate = "truncate"
)

// Load reads and decodes a pipeline config file.
func Load(path string) (Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	var p Pipeline
	if err := json.Unmarshal(raw, &p); err != nil {
		return Pipeline{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return p, nil
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding. Path is a JSON-ish pointer into the
// config (e.g. "tables[2].recovery.kind").
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline checks p for problems that would make a run fail or
// behave unexpectedly. It never mutates p.
func ValidatePipeline(p Pipeline) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, a ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		add(SeverityWarning, "job", "job name is empty")
	}
	if k := p.Parser.Kind; k != "" && k != "csv" {
		add(SeverityError, "parser.kind", "unsupported parser kind %q (only csv)", k)
	}
	if strings.TrimSpace(p.Storage.Kind) == "" {
		add(SeverityError, "storage.kind", "storage kind is required")
	}
	if strings.TrimSpace(p.Storage.DSN) == "" {
		add(SeverityError, "storage.dsn", "storage dsn is required")
	}
	if len(p.Tables) == 0 {
		add(SeverityError, "tables", "at least one table is required")
	}

	seen := make(map[string]int, len(p.Tables))
	for i, t := range p.Tables {
		path := fmt.Sprintf("tables[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			add(SeverityError, path+".name", "table name is required")
		} else if j, dup := seen[t.Name]; dup {
			add(SeverityError, path+".name", "duplicate table %q (also tables[%d])", t.Name, j)
		} else {
			seen[t.Name] = i
		}
		if strings.TrimSpace(t.Path) == "" {
			add(SeverityError, path+".path", "source path is required")
		}
		switch t.Recovery.Kind {
		case "", RecoveryNone, RecoverySplit, RecoveryTruncate:
		default:
			add(SeverityError, path+".recovery.kind", "unknown recovery kind %q", t.Recovery.Kind)
		}
		if t.Recovery.DropHeaders != "" {
			if _, err := regexp.Compile(t.Recovery.DropHeaders); err != nil {
				add(SeverityError, path+".recovery.drop_headers", "invalid pattern: %v", err)
			}
			if t.Recovery.Kind != RecoveryTruncate {
				add(SeverityWarning, path+".recovery.drop_headers", "drop_headers without truncate recovery leaves original-width rows unrecoverable")
			}
		}
	}

	idxNames := make(map[string]bool, len(p.Indexes))
	for i, ix := range p.Indexes {
		path := fmt.Sprintf("indexes[%d]", i)
		if strings.TrimSpace(ix.Name) == "" {
			add(SeverityError, path+".name", "index name is required")
		} else if idxNames[ix.Name] {
			add(SeverityError, path+".name", "duplicate index %q", ix.Name)
		} else {
			idxNames[ix.Name] = true
		}
		if _, ok := seen[ix.Table]; !ok {
			add(SeverityError, path+".table", "index references unknown table %q", ix.Table)
		}
		if len(ix.Columns) == 0 {
			add(SeverityError, path+".columns", "index needs at least one column")
		}
	}

	return out
}
