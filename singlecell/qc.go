package singlecell

// AnnotateQC fills the per-cell QC columns: total counts, detected genes, and
// the percentage of counts attributable to the mitochondrial and ribosomal
// gene sets. An empty subset yields 0 percent, not an error; a cell with zero
// total counts likewise reports 0 for both percentages.
func AnnotateQC(ds *Dataset) {
	mito := MitoGenes(ds.Genes)
	ribo := RiboGenes(ds.Genes)

	n := ds.NCells()
	totals := make([]float64, n)
	ngenes := make([]int, n)
	mtSums := make([]float64, n)
	riboSums := make([]float64, n)
	ds.X.DoNonZero(func(i, j int, v float64) {
		totals[j] += v
		ngenes[j]++
		if mito[i] {
			mtSums[j] += v
		}
		if ribo[i] {
			riboSums[j] += v
		}
	})
	for j := range ds.Cells {
		c := &ds.Cells[j]
		c.Counts = totals[j]
		c.NGenes = ngenes[j]
		c.PctMT = percent(mtSums[j], totals[j])
		c.PctRibo = percent(riboSums[j], totals[j])
	}
}

func percent(part, total float64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * part / total
}

// recomputeTotals refreshes Counts and NGenes after the gene axis has
// changed. The QC percentages are deliberately left at their pre-filter
// values: they were measured against the full gene universe and removing the
// mito/ribo genes would otherwise zero them out.
func (ds *Dataset) recomputeTotals() {
	n := ds.NCells()
	totals := make([]float64, n)
	ngenes := make([]int, n)
	ds.X.DoNonZero(func(i, j int, v float64) {
		totals[j] += v
		ngenes[j]++
	})
	for j := range ds.Cells {
		ds.Cells[j].Counts = totals[j]
		ds.Cells[j].NGenes = ngenes[j]
	}
}
