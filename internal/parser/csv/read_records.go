package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ivoytov/forqloz/internal/config"
	"github.com/ivoytov/forqloz/internal/normalize"
)

// decodeInput strips a leading UTF-8 BOM and transcodes BOM-marked UTF-16
// input to UTF-8. Input without a BOM passes through as UTF-8.
func decodeInput(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// lineCounter counts the physical lines of everything read through it.
type lineCounter struct {
	r        io.Reader
	newlines int
	last     byte
	seen     bool
}

func (c *lineCounter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.newlines += bytes.Count(p[:n], []byte{'\n'})
		c.last = p[n-1]
		c.seen = true
	}
	return n, err
}

// lines is the number of physical lines consumed so far. A final line
// without a terminating newline counts.
func (c *lineCounter) lines() int {
	if c.seen && c.last != '\n' {
		return c.newlines + 1
	}
	return c.newlines
}

// ReadRecords reads every record of src, header included, numbering them from
// 1 in read order. Field counts are not checked here; alignment is the
// normalizer's job.
//
// Options:
//   - comma       (string, default ",")
//   - lazy_quotes (bool, default true): tolerate stray quotes in unquoted fields
//   - trim_space  (bool, default false): trim leading/trailing space of fields
//
// A blank line after the header is returned as a record with no fields and
// takes a number, so warnings name the same record numbers a line-oriented
// reader would. Blank lines before the header are ignored.
//
// Malformed quoting is reported through onErr and the record is skipped; its
// number is still consumed so later numbers stay stable. Any other read error
// is returned.
func ReadRecords(
	ctx context.Context,
	src io.ReadCloser,
	opt config.Options,
	onErr func(line int, err error),
) ([]normalize.Record, error) {
	defer src.Close()

	lc := &lineCounter{r: decodeInput(src)}
	cr := csv.NewReader(lc)
	cr.Comma = opt.Rune("comma", ',')
	cr.LazyQuotes = opt.Bool("lazy_quotes", true)
	cr.FieldsPerRecord = -1
	trim := opt.Bool("trim_space", false)

	var (
		num int // number of the last record taken
		end int // physical line the last record ended on
		out []normalize.Record
	)
	// blanks emits one empty record per blank line between end and next.
	blanks := func(next int) {
		if num == 0 {
			return
		}
		for l := end + 1; l < next; l++ {
			num++
			out = append(out, normalize.Record{Line: num})
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if err == io.EOF {
			blanks(lc.lines() + 1)
			return out, nil
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, fmt.Errorf("csv read record %d: %w", num+1, err)
			}
			if num == 0 {
				return nil, fmt.Errorf("read header: %w", err)
			}
			blanks(pe.StartLine)
			num++
			end = pe.Line
			if onErr != nil {
				onErr(num, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		first, _ := cr.FieldPos(0)
		blanks(first)
		num++
		last := len(rec) - 1
		lastLine, _ := cr.FieldPos(last)
		end = lastLine + strings.Count(rec[last], "\n")

		if trim {
			for i, v := range rec {
				rec[i] = strings.TrimSpace(v)
			}
		}
		out = append(out, normalize.Record{Line: num, Fields: rec})
	}
}
