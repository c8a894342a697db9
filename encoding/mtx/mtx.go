// Package mtx reads and writes sparse matrices in the NIST MatrixMarket
// coordinate exchange format, the container used by the 10x-style count
// matrices this pipeline ingests. Briefly, a file looks like:
//
//	%%MatrixMarket matrix coordinate integer general
//	% optional comment lines
//	32738 2700 2286884
//	4 1 1
//	10 1 2
//	...
//
// The size line gives rows, columns, and the number of stored entries;
// entry lines are 1-based (row, column, value) triplets.
package mtx

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/james-bowman/sparse"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const banner = "%%MatrixMarket"

// nonZeroDoer is satisfied by the sparse package's COO/CSR/CSC types; it lets
// Write skip the dense scan for them.
type nonZeroDoer interface {
	DoNonZero(fn func(i, j int, v float64))
}

// Read parses a coordinate-format MatrixMarket stream into a COO matrix.
// Both integer and real fields are accepted; pattern and complex matrices
// are rejected.
func Read(r io.Reader) (*sparse.COO, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, 64*1024*1024)

	if !scanner.Scan() {
		return nil, errors.New("empty MatrixMarket stream")
	}
	header := strings.Fields(scanner.Text())
	if len(header) != 5 || header[0] != banner {
		return nil, errors.Errorf("malformed MatrixMarket banner: %q", scanner.Text())
	}
	if header[1] != "matrix" || header[2] != "coordinate" {
		return nil, errors.Errorf("unsupported layout %q %q: only coordinate matrices are supported", header[1], header[2])
	}
	switch header[3] {
	case "integer", "real":
	default:
		return nil, errors.Errorf("unsupported field type %q", header[3])
	}

	// Skip comments, then read the size line.
	var rows, cols, nnz int
	for {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, errors.Wrap(err, "reading MatrixMarket header")
			}
			return nil, errors.New("missing MatrixMarket size line")
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '%' {
			continue
		}
		if _, err := fmt.Sscanf(line, "%d %d %d", &rows, &cols, &nnz); err != nil {
			return nil, errors.Wrapf(err, "malformed size line %q", line)
		}
		break
	}
	if rows < 0 || cols < 0 || nnz < 0 {
		return nil, errors.Errorf("negative dimension in size line: %d %d %d", rows, cols, nnz)
	}

	coo := sparse.NewCOO(rows, cols, make([]int, 0, nnz), make([]int, 0, nnz), make([]float64, 0, nnz))
	read := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '%' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, errors.Errorf("entry %d: malformed triplet %q", read+1, line)
		}
		i, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", read+1)
		}
		j, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", read+1)
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", read+1)
		}
		if i < 1 || i > rows || j < 1 || j > cols {
			return nil, errors.Errorf("entry %d: index (%d,%d) outside %dx%d", read+1, i, j, rows, cols)
		}
		coo.Set(i-1, j-1, v)
		read++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading MatrixMarket entries")
	}
	if read != nnz {
		return nil, errors.Errorf("size line promised %d entries, found %d", nnz, read)
	}
	return coo, nil
}

// Write emits m in coordinate format. Matrices whose nonzero values are all
// integral are written with the integer field type, everything else as real.
func Write(w io.Writer, m mat.Matrix) error {
	type triplet struct {
		i, j int
		v    float64
	}
	var entries []triplet
	integral := true
	collect := func(i, j int, v float64) {
		if v == 0 {
			return
		}
		if v != math.Trunc(v) {
			integral = false
		}
		entries = append(entries, triplet{i, j, v})
	}
	if sp, ok := m.(nonZeroDoer); ok {
		sp.DoNonZero(collect)
	} else {
		r, c := m.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				collect(i, j, m.At(i, j))
			}
		}
	}

	bw := bufio.NewWriter(w)
	field := "real"
	if integral {
		field = "integer"
	}
	rows, cols := m.Dims()
	if _, err := fmt.Fprintf(bw, "%s matrix coordinate %s general\n%d %d %d\n", banner, field, rows, cols, len(entries)); err != nil {
		return errors.Wrap(err, "writing MatrixMarket header")
	}
	for _, e := range entries {
		var err error
		if integral {
			_, err = fmt.Fprintf(bw, "%d %d %d\n", e.i+1, e.j+1, int64(e.v))
		} else {
			_, err = fmt.Fprintf(bw, "%d %d %s\n", e.i+1, e.j+1, strconv.FormatFloat(e.v, 'g', -1, 64))
		}
		if err != nil {
			return errors.Wrap(err, "writing MatrixMarket entry")
		}
	}
	return errors.Wrap(bw.Flush(), "flushing MatrixMarket output")
}
