package singlecell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnnotateQC(t *testing.T) {
	ds := makeDataset(t, "e13a",
		geneTable("Actb", "mt-Nd1", "Rps5"),
		[]string{"AAAC", "CCGT", "GGTA"},
		[][]float64{
			{8, 0, 0}, // Actb
			{1, 5, 0}, // mt-Nd1
			{1, 5, 0}, // Rps5
		})
	AnnotateQC(ds)

	assert.Equal(t, 10.0, ds.Cells[0].Counts)
	assert.Equal(t, 3, ds.Cells[0].NGenes)
	assert.Equal(t, 10.0, ds.Cells[0].PctMT)
	assert.Equal(t, 10.0, ds.Cells[0].PctRibo)

	assert.Equal(t, 50.0, ds.Cells[1].PctMT)
	assert.Equal(t, 50.0, ds.Cells[1].PctRibo)

	// A cell with zero counts reports 0, not NaN.
	assert.Equal(t, 0.0, ds.Cells[2].Counts)
	assert.Equal(t, 0.0, ds.Cells[2].PctMT)
	assert.Equal(t, 0.0, ds.Cells[2].PctRibo)

	for _, c := range ds.Cells {
		assert.True(t, c.PctMT >= 0 && c.PctMT <= 100, "pct.mt out of range: %v", c.PctMT)
		assert.True(t, c.PctRibo >= 0 && c.PctRibo <= 100, "pct.ribo out of range: %v", c.PctRibo)
	}
}

func TestAnnotateQCEmptySubsets(t *testing.T) {
	// No mitochondrial or ribosomal genes at all: percentages must be 0.
	ds := makeDataset(t, "e13a",
		geneTable("Actb", "Gfap"),
		[]string{"AAAC"},
		[][]float64{{3}, {7}})
	AnnotateQC(ds)
	assert.Equal(t, 10.0, ds.Cells[0].Counts)
	assert.Equal(t, 0.0, ds.Cells[0].PctMT)
	assert.Equal(t, 0.0, ds.Cells[0].PctRibo)
}
