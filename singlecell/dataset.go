// Package singlecell defines the in-memory data model for single-cell RNA-seq
// count data, together with the QC annotation, filtering, and sample-merge
// operations that run upstream of normalization and clustering.
//
// A Dataset holds a genes x cells sparse count matrix plus per-gene and
// per-cell metadata. Every operation that drops rows or columns returns a new
// Dataset and keeps the metadata tables in lockstep with the matrix
// dimensions; Validate checks that invariant and is consulted after every
// mutation.
package singlecell

import (
	"github.com/james-bowman/sparse"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Gene is one row of the gene-annotation table: a stable identifier (e.g. an
// Ensembl ID) and the display symbol used for QC pattern matching.
type Gene struct {
	ID     string
	Symbol string
}

// CellMeta is the per-cell metadata record. Barcode and Sample are set at
// ingestion; Counts, NGenes, PctMT and PctRibo are filled by AnnotateQC;
// Stage is set at merge time; Cluster and CellType are filled downstream.
type CellMeta struct {
	Barcode string
	Sample  string
	Stage   string
	Counts  float64
	NGenes  int
	PctMT   float64
	PctRibo float64
	// Cluster is the community ID assigned by clustering, or -1 before
	// clustering has run. Cluster IDs are only meaningful for the specific
	// run that produced them.
	Cluster  int
	CellType string
}

// Dataset is one sample (or one merged group of samples) of count data.
type Dataset struct {
	// Stage is the developmental-stage grouping label, empty until merge.
	Stage string
	Genes []Gene
	Cells []CellMeta
	// X is the genes x cells count matrix. Row i corresponds to Genes[i],
	// column j to Cells[j].
	X *sparse.CSR
	// Embedding is the cells x 2 visualization embedding, filled after
	// clustering; nil before. Its row order matches Cells.
	Embedding *mat.Dense
}

// NewDataset builds a Dataset from a count matrix and its annotations,
// initializing Cluster to the unassigned sentinel. It fails if the matrix
// dimensions disagree with the annotation tables.
func NewDataset(sample string, genes []Gene, barcodes []string, counts *sparse.CSR) (*Dataset, error) {
	cells := make([]CellMeta, len(barcodes))
	for i, bc := range barcodes {
		cells[i] = CellMeta{Barcode: bc, Sample: sample, Cluster: -1}
	}
	ds := &Dataset{Genes: genes, Cells: cells, X: counts}
	if err := ds.Validate(); err != nil {
		return nil, errors.Wrapf(err, "sample %s", sample)
	}
	return ds, nil
}

// NGenes returns the number of genes (matrix rows).
func (ds *Dataset) NGenes() int { return len(ds.Genes) }

// NCells returns the number of cells (matrix columns).
func (ds *Dataset) NCells() int { return len(ds.Cells) }

// Sample returns the sample ID of the first cell, or "" for an empty dataset.
// After a merge the dataset spans several samples and Stage identifies it
// instead.
func (ds *Dataset) Sample() string {
	if len(ds.Cells) == 0 {
		return ""
	}
	return ds.Cells[0].Sample
}

// Name identifies the dataset in logs and error messages: the stage label if
// set, otherwise the sample ID.
func (ds *Dataset) Name() string {
	if ds.Stage != "" {
		return ds.Stage
	}
	return ds.Sample()
}

// Validate checks that the metadata tables agree with the matrix dimensions.
func (ds *Dataset) Validate() error {
	r, c := ds.X.Dims()
	if r != len(ds.Genes) {
		return errors.Errorf("%s: gene table has %d rows but matrix has %d", ds.Name(), len(ds.Genes), r)
	}
	if c != len(ds.Cells) {
		return errors.Errorf("%s: cell table has %d rows but matrix has %d columns", ds.Name(), len(ds.Cells), c)
	}
	return nil
}

// selectSubmatrix builds a new CSR containing the rows with geneKeep[i] and
// the columns with cellKeep[j], renumbered densely in their original order.
// Either keep slice may be nil to keep that axis intact.
func (ds *Dataset) selectSubmatrix(geneKeep, cellKeep []bool) *sparse.CSR {
	r, c := ds.X.Dims()
	rowMap := identityOrMap(r, geneKeep)
	colMap := identityOrMap(c, cellKeep)
	nr, nc := mappedLen(r, geneKeep), mappedLen(c, cellKeep)
	coo := sparse.NewCOO(nr, nc, nil, nil, nil)
	ds.X.DoNonZero(func(i, j int, v float64) {
		ni, nj := rowMap[i], colMap[j]
		if ni < 0 || nj < 0 {
			return
		}
		coo.Set(ni, nj, v)
	})
	return coo.ToCSR()
}

// identityOrMap returns old-index -> new-index, with -1 for dropped entries.
func identityOrMap(n int, keep []bool) []int {
	m := make([]int, n)
	next := 0
	for i := 0; i < n; i++ {
		if keep != nil && !keep[i] {
			m[i] = -1
			continue
		}
		m[i] = next
		next++
	}
	return m
}

func mappedLen(n int, keep []bool) int {
	if keep == nil {
		return n
	}
	k := 0
	for _, b := range keep {
		if b {
			k++
		}
	}
	return k
}

// selectCells returns a copy of ds restricted to the cells with keep[j].
func (ds *Dataset) selectCells(keep []bool) *Dataset {
	out := &Dataset{Stage: ds.Stage, Genes: ds.Genes, X: ds.selectSubmatrix(nil, keep)}
	for j, k := range keep {
		if k {
			out.Cells = append(out.Cells, ds.Cells[j])
		}
	}
	return out
}

// selectGenes returns a copy of ds restricted to the genes with keep[i].
func (ds *Dataset) selectGenes(keep []bool) *Dataset {
	out := &Dataset{Stage: ds.Stage, Cells: ds.Cells, X: ds.selectSubmatrix(keep, nil)}
	for i, k := range keep {
		if k {
			out.Genes = append(out.Genes, ds.Genes[i])
		}
	}
	return out
}
