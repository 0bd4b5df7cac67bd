package expression

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"kora/internal/encoding"
)

// DefaultMaxNeurons caps the genes kept for one training run.
const DefaultMaxNeurons = 5000

// Matrix is a samples x genes expression table. Samples are treated as
// time coordinates in row order.
type Matrix struct {
	Samples []string
	Genes   []string
	Values  [][]float64
}

// ReadCSV reads a table whose header row lists gene names after one index
// column, and whose remaining rows hold a sample label and numeric values.
func ReadCSV(in io.Reader) (Matrix, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return Matrix{}, errors.New("expression csv is empty")
	}
	if err != nil {
		return Matrix{}, fmt.Errorf("read expression csv header: %w", err)
	}
	if len(header) < 2 {
		return Matrix{}, errors.New("expression csv needs an index column and at least one gene")
	}
	genes := make([]string, 0, len(header)-1)
	for _, name := range header[1:] {
		genes = append(genes, strings.TrimSpace(name))
	}

	m := Matrix{Genes: genes}
	rowIndex := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Matrix{}, fmt.Errorf("read expression csv row %d: %w", rowIndex, err)
		}
		if blankRecord(record) {
			continue
		}
		if len(record) != len(header) {
			return Matrix{}, fmt.Errorf("expression csv row %d: expected %d fields, got %d", rowIndex, len(header), len(record))
		}
		row := make([]float64, len(genes))
		for i, field := range record[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return Matrix{}, fmt.Errorf("expression csv row %d gene %s: %w", rowIndex, genes[i], err)
			}
			row[i] = v
		}
		m.Samples = append(m.Samples, strings.TrimSpace(record[0]))
		m.Values = append(m.Values, row)
		rowIndex++
	}
	return m, nil
}

// WriteCSV writes the matrix in the layout ReadCSV accepts.
func WriteCSV(out io.Writer, m Matrix) error {
	writer := csv.NewWriter(out)
	header := append([]string{"sample"}, m.Genes...)
	if err := writer.Write(header); err != nil {
		return err
	}
	for i, row := range m.Values {
		record := make([]string, 0, len(row)+1)
		label := strconv.Itoa(i)
		if i < len(m.Samples) {
			label = m.Samples[i]
		}
		record = append(record, label)
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func (m Matrix) NumSamples() int {
	return len(m.Values)
}

func (m Matrix) NumGenes() int {
	return len(m.Genes)
}

// Signal returns the matrix as a rank-2 encoder input.
func (m Matrix) Signal() encoding.Signal {
	return encoding.Matrix(m.Values)
}

// Rescale maps all values linearly onto [0, 1] using the global minimum and
// maximum so that relative differences between genes are kept. It fails on
// a flat matrix.
func (m Matrix) Rescale() (Matrix, error) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range m.Values {
		if len(row) == 0 {
			continue
		}
		lo = math.Min(lo, floats.Min(row))
		hi = math.Max(hi, floats.Max(row))
	}
	if !(hi > lo) {
		return Matrix{}, errors.New("expression matrix is flat")
	}

	out := m.cloneLabels()
	out.Values = make([][]float64, len(m.Values))
	for i, row := range m.Values {
		scaled := append([]float64(nil), row...)
		floats.AddConst(-lo, scaled)
		floats.Scale(1/(hi-lo), scaled)
		out.Values[i] = scaled
	}
	return out, nil
}

// Clip returns a copy with values clamped into [0, 1] and the number of
// values that were out of range.
func (m Matrix) Clip() (Matrix, int) {
	out := m.cloneLabels()
	out.Values = make([][]float64, len(m.Values))
	clipped := 0
	for i, row := range m.Values {
		c := append([]float64(nil), row...)
		clipped += encoding.Clip01(c)
		out.Values[i] = c
	}
	return out, clipped
}

// SelectVariableGenes returns the column indices of the limit genes with
// the highest sample variance, in ascending column order. All columns are
// returned when the matrix has limit genes or fewer.
func (m Matrix) SelectVariableGenes(limit int) []int {
	n := m.NumGenes()
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if limit <= 0 || n <= limit {
		return indices
	}

	variances := make([]float64, n)
	column := make([]float64, m.NumSamples())
	for g := 0; g < n; g++ {
		for s, row := range m.Values {
			column[s] = row[g]
		}
		if len(column) > 1 {
			variances[g] = stat.Variance(column, nil)
		}
	}

	sort.SliceStable(indices, func(a, b int) bool {
		return variances[indices[a]] > variances[indices[b]]
	})
	selected := indices[:limit]
	sort.Ints(selected)
	return selected
}

// Columns returns a matrix restricted to the given gene columns.
func (m Matrix) Columns(indices []int) Matrix {
	out := Matrix{Samples: append([]string(nil), m.Samples...)}
	out.Genes = make([]string, len(indices))
	for i, idx := range indices {
		out.Genes[i] = m.Genes[idx]
	}
	out.Values = make([][]float64, len(m.Values))
	for s, row := range m.Values {
		picked := make([]float64, len(indices))
		for i, idx := range indices {
			picked[i] = row[idx]
		}
		out.Values[s] = picked
	}
	return out
}

func (m Matrix) cloneLabels() Matrix {
	return Matrix{
		Samples: append([]string(nil), m.Samples...),
		Genes:   append([]string(nil), m.Genes...),
	}
}
