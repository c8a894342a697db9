package singlecell

import (
	"fmt"
	"testing"

	"github.com/james-bowman/sparse"
)

// makeDataset builds a Dataset from a dense genes x cells count table.
func makeDataset(t *testing.T, sample string, genes []Gene, barcodes []string, counts [][]float64) *Dataset {
	t.Helper()
	if len(counts) != len(genes) {
		t.Fatalf("count table has %d rows, want %d", len(counts), len(genes))
	}
	coo := sparse.NewCOO(len(genes), len(barcodes), nil, nil, nil)
	for i, row := range counts {
		if len(row) != len(barcodes) {
			t.Fatalf("count row %d has %d entries, want %d", i, len(row), len(barcodes))
		}
		for j, v := range row {
			if v != 0 {
				coo.Set(i, j, v)
			}
		}
	}
	ds, err := NewDataset(sample, genes, barcodes, coo.ToCSR())
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

// geneTable is a shorthand for building gene annotations with synthetic IDs.
func geneTable(symbols ...string) []Gene {
	genes := make([]Gene, len(symbols))
	for i, s := range symbols {
		genes[i] = Gene{ID: fmt.Sprintf("ENSMUSG%05d", i), Symbol: s}
	}
	return genes
}

func symbols(genes []Gene) []string {
	out := make([]string, len(genes))
	for i, g := range genes {
		out[i] = g.Symbol
	}
	return out
}

func barcodes(ds *Dataset) []string {
	out := make([]string, ds.NCells())
	for j, c := range ds.Cells {
		out[j] = c.Barcode
	}
	return out
}
