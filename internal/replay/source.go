package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mbd888/risklens/internal/risk"
)

// ErrDatasetMissing is returned by a Source whose backing dataset does not exist.
var ErrDatasetMissing = errors.New("replay: dataset missing")

// Source yields the historical records for one replay session. Load is
// called once per session.
type Source interface {
	Load(ctx context.Context) ([]risk.Record, error)
	// Available reports whether Load would find a dataset, without reading it.
	Available(ctx context.Context) bool
	// Name identifies the dataset in the terminal error payload.
	Name() string
}

// CSVSource reads a header-first CSV file. Columns may be missing or
// renamed; the normalizer resolves them per record. Empty cells become nil.
type CSVSource struct {
	path string
}

// NewCSVSource creates a source reading path on every Load.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Name returns the dataset file name.
func (s *CSVSource) Name() string {
	return filepath.Base(s.path)
}

// Path returns the configured dataset path.
func (s *CSVSource) Path() string {
	return s.path
}

// Available reports whether the file exists and is a regular file.
func (s *CSVSource) Available(context.Context) bool {
	info, err := os.Stat(s.path)
	return err == nil && info.Mode().IsRegular()
}

// Load reads the whole file. A missing file yields ErrDatasetMissing.
func (s *CSVSource) Load(ctx context.Context) ([]risk.Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetMissing, s.path)
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var records []risk.Record
	for line := 2; ; line++ {
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset line %d: %w", line, err)
		}
		records = append(records, toRecord(header, row))
	}
	return records, nil
}

func toRecord(header, row []string) risk.Record {
	rec := make(risk.Record, len(header))
	for i, col := range header {
		if col == "" {
			continue
		}
		if i >= len(row) || strings.TrimSpace(row[i]) == "" {
			rec[col] = nil
			continue
		}
		rec[col] = row[i]
	}
	return rec
}

// StaticSource serves a fixed in-memory record set.
type StaticSource struct {
	name    string
	records []risk.Record
}

// NewStaticSource creates a source over records. A nil slice behaves like a
// missing dataset.
func NewStaticSource(name string, records []risk.Record) *StaticSource {
	return &StaticSource{name: name, records: records}
}

func (s *StaticSource) Name() string { return s.name }

func (s *StaticSource) Available(context.Context) bool { return s.records != nil }

func (s *StaticSource) Load(context.Context) ([]risk.Record, error) {
	if s.records == nil {
		return nil, fmt.Errorf("%w: %s", ErrDatasetMissing, s.name)
	}
	return s.records, nil
}

// Sample bounds records to at most n, drawing a uniform random sample
// without replacement when the set is larger. intn must return a value in
// [0, k). The input slice is never reordered.
func Sample(records []risk.Record, n int, intn func(k int) int) []risk.Record {
	if n <= 0 || len(records) <= n {
		return records
	}
	out := make([]risk.Record, len(records))
	copy(out, records)
	for i := 0; i < n; i++ {
		j := i + intn(len(out)-i)
		out[i], out[j] = out[j], out[i]
	}
	return out[:n]
}
