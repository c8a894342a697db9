package singlecell

import (
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// The QC filters below each return a new Dataset and leave the receiver
// untouched. RunQCFilters applies them in the required order:
//
//  1. drop damaged cells (high mitochondrial percentage),
//  2. drop the mitochondrial and ribosomal genes themselves,
//  3. drop cells whose recomputed total count is outside [lo, hi),
//  4. drop genes left with zero counts.
//
// The order matters: cell totals are only trusted for step 3 after the
// mito/ribo rows are gone, and step 4 must run last because removing cells
// can zero out genes that were nonzero before.

// FilterCellsByPctMT drops cells whose mitochondrial percentage is at or
// above max. AnnotateQC must have run first.
func FilterCellsByPctMT(ds *Dataset, max float64) (*Dataset, error) {
	keep := make([]bool, ds.NCells())
	for j, c := range ds.Cells {
		keep[j] = c.PctMT < max
	}
	out := ds.selectCells(keep)
	if err := out.Validate(); err != nil {
		return nil, errors.Wrap(err, "filter pct.mt")
	}
	log.Printf("%s: %d of %d cells kept at pct.mt < %v", ds.Name(), out.NCells(), ds.NCells(), max)
	return out, nil
}

// DropGenes removes the given gene rows and refreshes the per-cell totals.
// Removing an already-removed set is a no-op, so the operation is idempotent.
func DropGenes(ds *Dataset, set GeneSet) (*Dataset, error) {
	keep := make([]bool, ds.NGenes())
	for i := range keep {
		keep[i] = !set[i]
	}
	out := ds.selectGenes(keep)
	if err := out.Validate(); err != nil {
		return nil, errors.Wrap(err, "drop genes")
	}
	out.recomputeTotals()
	log.Printf("%s: %d of %d genes kept after gene-set removal", ds.Name(), out.NGenes(), ds.NGenes())
	return out, nil
}

// FilterCellsByCounts keeps exactly the cells with lo <= total count < hi.
func FilterCellsByCounts(ds *Dataset, lo, hi float64) (*Dataset, error) {
	keep := make([]bool, ds.NCells())
	for j, c := range ds.Cells {
		keep[j] = c.Counts >= lo && c.Counts < hi
	}
	out := ds.selectCells(keep)
	if err := out.Validate(); err != nil {
		return nil, errors.Wrap(err, "filter counts")
	}
	log.Printf("%s: %d of %d cells kept in count range [%v,%v)", ds.Name(), out.NCells(), ds.NCells(), lo, hi)
	return out, nil
}

// DropZeroGenes removes every gene whose count sum over the remaining cells
// is exactly zero, and no others.
func DropZeroGenes(ds *Dataset) (*Dataset, error) {
	keep := make([]bool, ds.NGenes())
	ds.X.DoNonZero(func(i, j int, v float64) {
		if v != 0 {
			keep[i] = true
		}
	})
	out := ds.selectGenes(keep)
	if err := out.Validate(); err != nil {
		return nil, errors.Wrap(err, "drop zero genes")
	}
	log.Printf("%s: %d of %d genes kept with nonzero counts", ds.Name(), out.NGenes(), ds.NGenes())
	return out, nil
}

// RunQCFilters applies the full QC filter sequence to one sample.
func RunQCFilters(ds *Dataset, opts PipelineOpts) (*Dataset, error) {
	AnnotateQC(ds)
	out, err := FilterCellsByPctMT(ds, opts.MaxPctMT)
	if err != nil {
		return nil, err
	}
	if out, err = DropGenes(out, MitoGenes(out.Genes).Union(RiboGenes(out.Genes))); err != nil {
		return nil, err
	}
	if out, err = FilterCellsByCounts(out, opts.MinCounts, opts.MaxCounts); err != nil {
		return nil, err
	}
	if out, err = DropZeroGenes(out); err != nil {
		return nil, err
	}
	return out, nil
}
