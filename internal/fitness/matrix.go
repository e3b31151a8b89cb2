package fitness

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrObjectiveOutOfRange  = errors.New("objective index out of range")
	ErrIndividualOutOfRange = errors.New("individual index out of range")
)

// Matrix accumulates fitness per objective (row) and individual (column).
type Matrix struct {
	rows [][]float64
}

func NewMatrix(objectives, individuals int) *Matrix {
	rows := make([][]float64, objectives)
	for i := range rows {
		rows[i] = make([]float64, individuals)
	}
	return &Matrix{rows: rows}
}

func (m *Matrix) Objectives() int { return len(m.rows) }

func (m *Matrix) Individuals() int {
	if len(m.rows) == 0 {
		return 0
	}
	return len(m.rows[0])
}

func (m *Matrix) check(objective, individual int) error {
	if objective < 0 || objective >= len(m.rows) {
		return fmt.Errorf("%w: %d", ErrObjectiveOutOfRange, objective)
	}
	if individual < 0 || individual >= len(m.rows[objective]) {
		return fmt.Errorf("%w: %d", ErrIndividualOutOfRange, individual)
	}
	return nil
}

// Add accumulates delta into one cell.
func (m *Matrix) Add(objective, individual int, delta float64) error {
	if err := m.check(objective, individual); err != nil {
		return err
	}
	m.rows[objective][individual] += delta
	return nil
}

func (m *Matrix) Set(objective, individual int, value float64) error {
	if err := m.check(objective, individual); err != nil {
		return err
	}
	m.rows[objective][individual] = value
	return nil
}

func (m *Matrix) Get(objective, individual int) (float64, error) {
	if err := m.check(objective, individual); err != nil {
		return 0, err
	}
	return m.rows[objective][individual], nil
}

// Row returns a copy of one objective's values across the population.
func (m *Matrix) Row(objective int) []float64 {
	if objective < 0 || objective >= len(m.rows) {
		return nil
	}
	out := make([]float64, len(m.rows[objective]))
	copy(out, m.rows[objective])
	return out
}

// Column returns a copy of one individual's values across objectives.
func (m *Matrix) Column(individual int) []float64 {
	out := make([]float64, len(m.rows))
	for i, row := range m.rows {
		if individual >= 0 && individual < len(row) {
			out[i] = row[individual]
		}
	}
	return out
}

// Rows returns a deep copy of the whole matrix.
func (m *Matrix) Rows() [][]float64 {
	out := make([][]float64, len(m.rows))
	for i := range m.rows {
		out[i] = m.Row(i)
	}
	return out
}

// AddRows accumulates a same-shape matrix given as rows.
func (m *Matrix) AddRows(rows [][]float64) error {
	if len(rows) != len(m.rows) {
		return fmt.Errorf("%w: got %d rows want %d", ErrObjectiveOutOfRange, len(rows), len(m.rows))
	}
	for i, row := range rows {
		if len(row) != len(m.rows[i]) {
			return fmt.Errorf("%w: row %d has %d values want %d", ErrIndividualOutOfRange, i, len(row), len(m.rows[i]))
		}
		floats.Add(m.rows[i], row)
	}
	return nil
}

func (m *Matrix) Reset() {
	for _, row := range m.rows {
		for i := range row {
			row[i] = 0
		}
	}
}

// GameFitness scores each objective by the population variance of its row.
// An objective that spreads the population out ranks higher.
func (m *Matrix) GameFitness() []float64 {
	out := make([]float64, len(m.rows))
	for i, row := range m.rows {
		out[i] = Variance(row)
	}
	return out
}

// Variance is the population variance (divides by n). Empty input yields 0.
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	_, variance := stat.PopMeanVariance(values, nil)
	return variance
}
