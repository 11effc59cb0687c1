// Package csv reads preprocessed feature vectors from CSV files for offline
// replay through the clustering engine.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	seqio "github.com/hed1ad/seqguard/pkg/io"
)

var _ seqio.VectorReader = (*Reader)(nil)

// ErrEmptyRow is returned for a record with no fields.
var ErrEmptyRow = errors.New("empty row")

// RowError reports a row that could not be parsed.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Reader reads float vectors from a CSV file.
type Reader struct {
	file        *os.File
	reader      *csv.Reader
	hasHeader   bool
	skipInvalid bool
	headers     []string

	skipped atomic.Int64
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// WithSkipInvalid makes Read skip malformed rows instead of failing.
// Stream always skips them.
func WithSkipInvalid(skip bool) Option {
	return func(r *Reader) {
		r.skipInvalid = skip
	}
}

// NewReader creates a new CSV reader.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r := newReader(file, opts)
	r.file = file

	if err := r.readHeader(); err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// NewReaderFrom reads from an already open stream. Close is a no-op.
func NewReaderFrom(src io.Reader, opts ...Option) (*Reader, error) {
	r := newReader(src, opts)
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

func newReader(src io.Reader, opts []Option) *Reader {
	cr := csv.NewReader(src)
	// Row width is checked by the engine, not the reader.
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	r := &Reader{
		reader:    cr,
		hasHeader: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) readHeader() error {
	if !r.hasHeader {
		return nil
	}
	headers, err := r.reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	r.headers = append([]string(nil), headers...)
	return nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Skipped returns how many malformed rows were skipped.
func (r *Reader) Skipped() int {
	return int(r.skipped.Load())
}

// Read returns all remaining rows as vectors.
func (r *Reader) Read() ([][]float64, error) {
	var data [][]float64

	for {
		row, err := r.next()
		if err == io.EOF {
			break
		}
		var rowErr *RowError
		if errors.As(err, &rowErr) && r.skipInvalid {
			r.skipped.Add(1)
			continue
		}
		if err != nil {
			return nil, err
		}
		data = append(data, row)
	}

	return data, nil
}

// Stream returns a channel of rows for incremental processing.
func (r *Reader) Stream(ctx context.Context) (<-chan []float64, error) {
	out := make(chan []float64, 100)

	go func() {
		defer close(out)
		for {
			row, err := r.next()
			if err == io.EOF {
				return
			}
			var rowErr *RowError
			if errors.As(err, &rowErr) {
				r.skipped.Add(1)
				continue
			}
			if err != nil {
				return
			}

			select {
			case out <- row:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (r *Reader) next() ([]float64, error) {
	record, err := r.reader.Read()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, &RowError{Line: perr.Line, Err: perr.Err}
		}
		return nil, err
	}

	row, err := parseRow(record)
	if err != nil {
		line, _ := r.reader.FieldPos(0)
		return nil, &RowError{Line: line, Err: err}
	}
	return row, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// parseRow converts string slice to float slice.
func parseRow(record []string) ([]float64, error) {
	if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
		return nil, ErrEmptyRow
	}

	row := make([]float64, len(record))
	for i, val := range record {
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		row[i] = f
	}
	return row, nil
}
