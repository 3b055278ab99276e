// Package storage keeps exercise runs on disk: one directory per run with
// its metadata and the aligned result series.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/san-kum/dynopt/internal/dataset"
)

const (
	metadataFile = "metadata.json"
	seriesFile   = "series.csv"
	idTimeFormat = "20060102T150405"
)

var ErrRunNotFound = errors.New("storage: run not found")

type Store struct {
	baseDir string
	now     func() time.Time
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Exercise  string             `json:"exercise"`
	Preset    string             `json:"preset,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      int64              `json:"seed"`
	Columns   []string           `json:"columns"`
	Rows      int                `json:"rows"`
	Scalars   map[string]float64 `json:"scalars"`
	Figures   []string           `json:"figures,omitempty"`
	Notes     []string           `json:"notes,omitempty"`
}

// NewID returns <exercise>_<yyyymmddThhmmss>_<8 hex digits>.
func NewID(exercise string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s", exercise, t.Format(idTimeFormat), uuid.NewString()[:8])
}

// Save writes a new run. The ID and timestamp are assigned here; column names
// and row count are taken from series.
func (s *Store) Save(meta RunMetadata, series *dataset.Frame) (id string, err error) {
	meta.Timestamp = s.now()
	meta.ID = NewID(meta.Exercise, meta.Timestamp)
	if series != nil {
		meta.Columns = series.Header
		meta.Rows = series.Len()
	}
	meta.Scalars = finiteScalars(meta.Scalars)

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(metaFile))

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if series == nil {
		return meta.ID, nil
	}
	csvFile, err := os.Create(filepath.Join(runDir, seriesFile))
	if err != nil {
		return "", err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(csvFile))

	if err := series.WriteCSV(csvFile); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadSeries(runID string) (*dataset.Frame, error) {
	f, err := os.Open(filepath.Join(s.baseDir, runID, seriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s has no series", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer f.Close()
	return dataset.ReadCSV(f)
}

// SeriesPath is the CSV file of a run.
func (s *Store) SeriesPath(runID string) string {
	return filepath.Join(s.baseDir, runID, seriesFile)
}

// ExportData is the JSON form of a run. Missing samples are null.
type ExportData struct {
	RunMetadata
	Series map[string][]*float64 `json:"series"`
}

// ExportJSON writes a run's metadata and series as one JSON document.
func (s *Store) ExportJSON(runID string, w io.Writer) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	data := ExportData{RunMetadata: *meta, Series: make(map[string][]*float64)}

	series, err := s.LoadSeries(runID)
	if err != nil && !errors.Is(err, ErrRunNotFound) {
		return err
	}
	if series != nil {
		for i, name := range series.Header {
			col := make([]*float64, len(series.Columns[i]))
			for k, v := range series.Columns[i] {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				v := v
				col[k] = &v
			}
			data.Series[name] = col
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Delete removes a run directory.
func (s *Store) Delete(runID string) error {
	dir := filepath.Join(s.baseDir, runID)
	if _, err := os.Stat(filepath.Join(dir, metadataFile)); err != nil {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return os.RemoveAll(dir)
}

// finiteScalars drops values JSON cannot encode.
func finiteScalars(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[k] = v
	}
	return out
}
