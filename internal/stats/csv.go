package stats

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"coevolve/internal/model"
)

const (
	FitnessCSVFile = "fitness.csv"
	BestCSVFile    = "best_genomes.csv"
)

var (
	fitnessHeader = []string{"run_id", "population", "generation", "objective", "worst", "average", "best", "best_index"}
	bestHeader    = []string{"run_id", "population", "generation", "objective", "index", "fitness", "genes"}
)

// CSVSink appends records to fitness.csv and best_genomes.csv in a run
// directory, writing a header when a file is created.
type CSVSink struct {
	dir string
	mu  sync.Mutex
}

func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &CSVSink{dir: dir}, nil
}

func (s *CSVSink) Dir() string { return s.dir }

func (s *CSVSink) RecordGeneration(_ context.Context, rec model.GenerationRecord) error {
	return s.append(FitnessCSVFile, fitnessHeader, []string{
		rec.RunID,
		rec.Population,
		strconv.Itoa(rec.Generation),
		strconv.Itoa(rec.Objective),
		formatFloat(rec.Worst),
		formatFloat(rec.Average),
		formatFloat(rec.Best),
		strconv.Itoa(rec.BestIndex),
	})
}

func (s *CSVSink) RecordBest(_ context.Context, rec model.BestGenomeRecord) error {
	row := []string{
		rec.RunID,
		rec.Population,
		strconv.Itoa(rec.Generation),
		strconv.Itoa(rec.Objective),
		strconv.Itoa(rec.Index),
		formatFloat(rec.Fitness),
	}
	for _, g := range rec.Genes {
		row = append(row, formatFloat(g))
	}
	return s.append(BestCSVFile, bestHeader, row)
}

func (s *CSVSink) append(name string, header, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	_, statErr := os.Stat(path)
	fresh := errors.Is(statErr, os.ErrNotExist)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if fresh {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	if err := writer.Write(row); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// ReadFitnessCSV loads generation records written by CSVSink.
func ReadFitnessCSV(dir string) ([]model.GenerationRecord, bool, error) {
	file, err := os.Open(filepath.Join(dir, FitnessCSVFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.GenerationRecord{}, true, nil
		}
		return nil, false, err
	}
	if len(header) != len(fitnessHeader) {
		return nil, false, fmt.Errorf("fitness csv header has %d columns, want %d", len(header), len(fitnessHeader))
	}

	records := make([]model.GenerationRecord, 0, 64)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		rec, err := parseFitnessRow(row)
		if err != nil {
			return nil, false, err
		}
		records = append(records, rec)
	}
	return records, true, nil
}

func parseFitnessRow(row []string) (model.GenerationRecord, error) {
	rec := model.GenerationRecord{RunID: row[0], Population: row[1]}
	ints := []*int{&rec.Generation, &rec.Objective}
	for i, dst := range ints {
		v, err := strconv.Atoi(row[2+i])
		if err != nil {
			return model.GenerationRecord{}, fmt.Errorf("parse %s: %w", fitnessHeader[2+i], err)
		}
		*dst = v
	}
	floats := []*float64{&rec.Worst, &rec.Average, &rec.Best}
	for i, dst := range floats {
		v, err := strconv.ParseFloat(row[4+i], 64)
		if err != nil {
			return model.GenerationRecord{}, fmt.Errorf("parse %s: %w", fitnessHeader[4+i], err)
		}
		*dst = v
	}
	idx, err := strconv.Atoi(row[7])
	if err != nil {
		return model.GenerationRecord{}, fmt.Errorf("parse best_index: %w", err)
	}
	rec.BestIndex = idx
	return rec, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
