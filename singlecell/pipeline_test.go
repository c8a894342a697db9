package singlecell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQCFilterPipeline walks two small synthetic samples through the full
// filter sequence and checks the surviving genes and cells against
// hand-computed values.
func TestQCFilterPipeline(t *testing.T) {
	opts := DefaultOpts
	opts.MaxPctMT = 10
	opts.MinCounts = 2
	opts.MaxCounts = 100

	genes := geneTable("Actb", "mt-Nd1", "Rps5", "Gfap", "Zero1")

	// Sample e13a. Cell totals: 18, 6, 4, 300.
	// pct.mt: 5.6, 0, 75, 66.7 -> cells c3, c4 dropped.
	// After mito/ribo gene removal totals: 15, 5 -> both inside [2,100).
	// Rows follow the gene table order: Actb, mt-Nd1, Rps5, Gfap, Zero1.
	a := makeDataset(t, "e13a", genes,
		[]string{"a1", "a2", "a3", "a4"},
		[][]float64{
			{10, 5, 1, 50},
			{1, 0, 3, 200},
			{2, 1, 0, 10},
			{5, 0, 0, 40},
			{0, 0, 0, 0},
		})

	// Sample e13b. Cell totals: 4, 100, 3, 1.
	// pct.mt: 0, 5, 33.3, 0 -> cell b3 dropped.
	// Post gene removal totals: 3, 90, 1 -> b4 dropped by the count range.
	b := makeDataset(t, "e13b", genes,
		[]string{"b1", "b2", "b3", "b4"},
		[][]float64{
			{3, 80, 2, 0},
			{0, 5, 1, 0},
			{1, 5, 0, 0},
			{0, 10, 0, 1},
			{0, 0, 0, 0},
		})

	fa, err := RunQCFilters(a, opts)
	require.NoError(t, err)
	requireInvariant(t, fa)
	assert.Equal(t, []string{"Actb", "Gfap"}, symbols(fa.Genes))
	assert.Equal(t, []string{"a1", "a2"}, barcodes(fa))
	assert.Equal(t, 15.0, fa.Cells[0].Counts)
	assert.Equal(t, 5.0, fa.Cells[1].Counts)

	fb, err := RunQCFilters(b, opts)
	require.NoError(t, err)
	requireInvariant(t, fb)
	assert.Equal(t, []string{"Actb", "Gfap"}, symbols(fb.Genes))
	assert.Equal(t, []string{"b1", "b2"}, barcodes(fb))
	assert.Equal(t, 3.0, fb.Cells[0].Counts)
	assert.Equal(t, 90.0, fb.Cells[1].Counts)

	// QC percentages survive the filters unchanged for downstream
	// regression; a1's were measured against the original totals.
	assert.InDelta(t, 100.0/18, fa.Cells[0].PctMT, 1e-9)

	merged, err := MergeByStage([]*Dataset{fa, fb}, opts)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	ds := merged[0]
	requireInvariant(t, ds)
	assert.Equal(t, "e13", ds.Stage)
	assert.Equal(t, []string{"Actb", "Gfap"}, symbols(ds.Genes))
	assert.Equal(t, []string{"e13a:a1", "e13a:a2", "e13b:b1", "e13b:b2"}, barcodes(ds))
	for j, want := range []float64{15, 5, 3, 90} {
		assert.Equal(t, want, ds.Cells[j].Counts, "cell %d", j)
	}
}
