// Package dataset reads and writes the tabular CSV artifacts exchanged between
// pipeline stages and converts them into gonum matrices.
package dataset

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"

	"github.com/go-git/go-billy/v5"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mlproject/pkg/errors"
)

// Frame is a header plus string-valued rows. Values are kept verbatim so that
// a split can be written back without reformatting numbers.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// Shape returns (rows, columns).
func (f *Frame) Shape() (int, int) {
	return len(f.Rows), len(f.Columns)
}

// ColumnIndex returns the position of name in the header, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Take returns a new frame holding the given rows in the given order.
// Row slices are shared with f.
func (f *Frame) Take(indices []int) *Frame {
	rows := make([][]string, len(indices))
	for i, idx := range indices {
		rows[i] = f.Rows[idx]
	}
	return &Frame{Columns: f.Columns, Rows: rows}
}

// XY splits the frame into a feature matrix and a target column vector.
// The returned feature names follow header order with target removed.
func (f *Frame) XY(target string) (*mat.Dense, *mat.Dense, []string, error) {
	ti := f.ColumnIndex(target)
	if ti < 0 {
		return nil, nil, nil, errors.Wrapf(errors.ErrColumnNotFound, "target column %q", target)
	}
	nRows, nCols := f.Shape()
	if nRows == 0 {
		return nil, nil, nil, errors.Wrap(errors.ErrEmptyData, "frame has no rows")
	}
	if nCols < 2 {
		return nil, nil, nil, errors.NewValueError("Frame.XY", "no feature columns besides the target")
	}

	features := make([]string, 0, nCols-1)
	for i, c := range f.Columns {
		if i != ti {
			features = append(features, c)
		}
	}

	X := mat.NewDense(nRows, nCols-1, nil)
	y := mat.NewDense(nRows, 1, nil)
	for r, row := range f.Rows {
		k := 0
		for c, raw := range row {
			v, err := parseCell(raw, r, f.Columns[c])
			if err != nil {
				return nil, nil, nil, err
			}
			if c == ti {
				y.Set(r, 0, v)
				continue
			}
			X.Set(r, k, v)
			k++
		}
	}
	return X, y, features, nil
}

// Matrix converts every column to float64.
func (f *Frame) Matrix() (*mat.Dense, error) {
	nRows, nCols := f.Shape()
	if nRows == 0 || nCols == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "frame has no rows")
	}
	X := mat.NewDense(nRows, nCols, nil)
	for r, row := range f.Rows {
		for c, raw := range row {
			v, err := parseCell(raw, r, f.Columns[c])
			if err != nil {
				return nil, err
			}
			X.Set(r, c, v)
		}
	}
	return X, nil
}

// Select returns a frame with only the named columns, in the given order.
func (f *Frame) Select(columns []string) (*Frame, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = f.ColumnIndex(c)
		if idx[i] < 0 {
			return nil, errors.Wrapf(errors.ErrColumnNotFound, "column %q", c)
		}
	}
	rows := make([][]string, len(f.Rows))
	for r, row := range f.Rows {
		out := make([]string, len(idx))
		for i, j := range idx {
			out[i] = row[j]
		}
		rows[r] = out
	}
	return &Frame{Columns: append([]string(nil), columns...), Rows: rows}, nil
}

func parseCell(raw string, row int, column string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "row %d column %q: not a number", row+1, column)
	}
	return v, nil
}

// ReadHeader returns only the header row of the CSV at path.
func ReadHeader(fs billy.Filesystem, path string) ([]string, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	header, err := csv.NewReader(file).Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read header of %s", path)
	}
	return header, nil
}

// ReadCSV loads the whole CSV at path. The first record is the header and
// every row must have the same number of fields.
func ReadCSV(fs billy.Filesystem, path string) (*Frame, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrapf(errors.ErrEmptyData, "%s has no header", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read header of %s", path)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return &Frame{Columns: header, Rows: records}, nil
}

// WriteCSV writes the frame with a header row, creating parent directories.
func WriteCSV(fs billy.Filesystem, path string, f *Frame) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	file, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}

	w := csv.NewWriter(file)
	if err := w.Write(f.Columns); err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "failed to write header to %s", path)
	}
	if err := w.WriteAll(f.Rows); err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "failed to write rows to %s", path)
	}
	return errors.Wrapf(file.Close(), "failed to close %s", path)
}
