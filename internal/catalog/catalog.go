// Package catalog holds the built-in description of the NYC foreclosure
// dataset: which tables to load, in which order, with which type hints,
// recovery policies and indexes.
package catalog

import (
	"path/filepath"

	"github.com/ivoytov/forqloz/internal/config"
	"github.com/ivoytov/forqloz/internal/schema"
)

// DBFile is the default database file name inside the data directory.
const DBFile = "foreclosures.sqlite"

// PlaceholderHeaders matches the generic ColumnN headers spreadsheet exports
// add to lots.csv.
const PlaceholderHeaders = `^Column\d+$`

// Foreclosures returns the default pipeline rooted at dataDir. The returned
// value is a fresh copy; callers may modify it.
func Foreclosures(dataDir string) config.Pipeline {
	split := config.Recovery{Kind: config.RecoverySplit}

	return config.Pipeline{
		Job:    "foreclosures",
		Source: config.Source{Dir: dataDir},
		Parser: config.Parser{Kind: "csv", Options: config.Options{"lazy_quotes": true}},
		Storage: config.Storage{
			Kind: "sqlite",
			DSN:  filepath.Join(dataDir, DBFile),
		},
		Tables: []config.Table{
			{
				Name:     "auction_sales",
				Path:     "auction_sales.csv",
				Recovery: split,
				Hints: map[string]schema.ColumnType{
					"BLOCK":      schema.Integer,
					"LOT":        schema.Integer,
					"SALE PRICE": schema.Real,
					"SALE DATE":  schema.Text,
				},
			},
			{
				Name:     "cases",
				Path:     "cases.csv",
				Recovery: split,
				Hints: map[string]schema.ColumnType{
					"auction_date": schema.Text,
				},
			},
			{
				Name:     "lots",
				Path:     "lots.csv",
				Recovery: config.Recovery{Kind: config.RecoveryTruncate, DropHeaders: PlaceholderHeaders},
				Hints: map[string]schema.ColumnType{
					"block": schema.Integer,
					"lot":   schema.Integer,
					"BBL":   schema.Integer,
				},
			},
			{
				Name:     "bids",
				Path:     "bids.csv",
				Recovery: split,
				Hints: map[string]schema.ColumnType{
					"judgement":    schema.Real,
					"upset_price":  schema.Real,
					"winning_bid":  schema.Real,
					"auction_date": schema.Text,
				},
			},
			{
				Name:     "pluto",
				Path:     "pluto.csv",
				Recovery: split,
				Hints: map[string]schema.ColumnType{
					"Block":      schema.Integer,
					"Lot":        schema.Integer,
					"BBL":        schema.Integer,
					"LandUse":    schema.Integer,
					"LotArea":    schema.Integer,
					"BldgArea":   schema.Integer,
					"YearBuilt":  schema.Integer,
					"YearAlter1": schema.Integer,
					"YearAlter2": schema.Integer,
				},
			},
		},
		Indexes: []config.Index{
			{Name: "idx_cases_key", Table: "cases", Columns: []string{"case_number", "auction_date"}},
			{Name: "uq_cases_case_boro", Table: "cases", Columns: []string{"case_number", "borough"}, Unique: true},
			{Name: "idx_bids_key", Table: "bids", Columns: []string{"case_number", "auction_date"}},
			{Name: "idx_lots_key", Table: "lots", Columns: []string{"case_number"}},
			{Name: "idx_pluto_bbl", Table: "pluto", Columns: []string{"BBL"}},
			{Name: "idx_sales_geo", Table: "auction_sales", Columns: []string{"BOROUGH", "BLOCK", "LOT"}},
			{Name: "idx_sales_date", Table: "auction_sales", Columns: []string{"SALE DATE"}},
		},
	}
}

// HintsFrom collects the per-table hints of p into an immutable set.
func HintsFrom(p config.Pipeline) schema.Hints {
	m := make(map[string]map[string]schema.ColumnType, len(p.Tables))
	for _, t := range p.Tables {
		if len(t.Hints) == 0 {
			continue
		}
		m[t.Name] = t.Hints
	}
	return schema.NewHints(m)
}
