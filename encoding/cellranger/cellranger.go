// Package cellranger loads per-sample count data laid out as barcode/gene/
// matrix file triplets, the directory convention produced by the 10x
// Cell Ranger toolchain:
//
//	raw/
//	  e13a_barcodes.tsv   one cell barcode per line
//	  e13a_genes.tsv      <gene ID> \t <gene symbol>
//	  e13a_matrix.mtx     genes x cells counts, MatrixMarket coordinate
//	  e13b_barcodes.tsv
//	  ...
//
// Sample IDs are recovered by stripping the fixed suffixes; a prefix that
// does not yield exactly one complete triplet is an error. Each sample may
// equivalently live in its own subdirectory with the same three suffixes.
package cellranger

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cerebra-bio/scrna/encoding/mtx"
	"github.com/cerebra-bio/scrna/singlecell"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/pkg/errors"
)

const (
	barcodesSuffix = "_barcodes.tsv"
	genesSuffix    = "_genes.tsv"
	matrixSuffix   = "_matrix.mtx"
)

// Triplet names the three files of one sample.
type Triplet struct {
	Sample   string
	Barcodes string
	Genes    string
	Matrix   string
}

func (t Triplet) complete() bool {
	return t.Barcodes != "" && t.Genes != "" && t.Matrix != ""
}

// ListSamples scans dir (recursively, so per-sample subdirectories work too)
// and returns one Triplet per sample prefix, sorted by sample ID. It fails if
// any prefix has an incomplete or duplicated triplet.
func ListSamples(ctx context.Context, dir string) ([]Triplet, error) {
	found := map[string]*Triplet{}
	lister := file.List(ctx, dir, true /*recursive*/)
	for lister.Scan() {
		path := lister.Path()
		base := filepath.Base(path)
		var suffix string
		switch {
		case strings.HasSuffix(base, barcodesSuffix):
			suffix = barcodesSuffix
		case strings.HasSuffix(base, genesSuffix):
			suffix = genesSuffix
		case strings.HasSuffix(base, matrixSuffix):
			suffix = matrixSuffix
		default:
			continue
		}
		sample := strings.TrimSuffix(base, suffix)
		if sample == "" {
			return nil, errors.Errorf("%s: file has a triplet suffix but no sample prefix", path)
		}
		t := found[sample]
		if t == nil {
			t = &Triplet{Sample: sample}
			found[sample] = t
		}
		var slot *string
		switch suffix {
		case barcodesSuffix:
			slot = &t.Barcodes
		case genesSuffix:
			slot = &t.Genes
		case matrixSuffix:
			slot = &t.Matrix
		}
		if *slot != "" {
			return nil, errors.Errorf("sample %s: duplicate %s files (%s, %s)", sample, suffix, *slot, path)
		}
		*slot = path
	}
	if err := lister.Err(); err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	if len(found) == 0 {
		return nil, errors.Errorf("%s: no sample triplets found", dir)
	}

	var triplets []Triplet
	for sample, t := range found {
		if !t.complete() {
			return nil, errors.Errorf("sample %s: incomplete triplet (barcodes=%q genes=%q matrix=%q)",
				sample, t.Barcodes, t.Genes, t.Matrix)
		}
		triplets = append(triplets, *t)
	}
	sort.Slice(triplets, func(i, j int) bool { return triplets[i].Sample < triplets[j].Sample })
	return triplets, nil
}

// LoadSample reads one triplet into a Dataset seeded with the sample ID.
func LoadSample(ctx context.Context, t Triplet) (*singlecell.Dataset, error) {
	barcodes, err := readLines(ctx, t.Barcodes)
	if err != nil {
		return nil, errors.Wrapf(err, "sample %s", t.Sample)
	}
	genes, err := readGenes(ctx, t.Genes)
	if err != nil {
		return nil, errors.Wrapf(err, "sample %s", t.Sample)
	}

	in, err := file.Open(ctx, t.Matrix)
	if err != nil {
		return nil, errors.Wrapf(err, "sample %s", t.Sample)
	}
	coo, err := mtx.Read(in.Reader(ctx))
	if e := in.Close(ctx); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return nil, errors.Wrapf(err, "sample %s: %s", t.Sample, t.Matrix)
	}

	r, c := coo.Dims()
	if r != len(genes) {
		return nil, errors.Errorf("sample %s: matrix has %d rows but %s lists %d genes", t.Sample, r, t.Genes, len(genes))
	}
	if c != len(barcodes) {
		return nil, errors.Errorf("sample %s: matrix has %d columns but %s lists %d barcodes", t.Sample, c, t.Barcodes, len(barcodes))
	}
	ds, err := singlecell.NewDataset(t.Sample, genes, barcodes, coo.ToCSR())
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %s: %d genes x %d cells", t.Sample, r, c)
	return ds, nil
}

// LoadAll discovers and loads every sample under dir, in parallel across
// samples. The returned datasets are in sample-ID order.
func LoadAll(ctx context.Context, dir string) ([]*singlecell.Dataset, error) {
	triplets, err := ListSamples(ctx, dir)
	if err != nil {
		return nil, err
	}
	datasets := make([]*singlecell.Dataset, len(triplets))
	err = traverse.Each(len(triplets), func(i int) error {
		ds, err := LoadSample(ctx, triplets[i])
		if err != nil {
			return err
		}
		datasets[i] = ds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return datasets, nil
}

func readLines(ctx context.Context, path string) ([]string, error) {
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// readGenes parses the two-column gene annotation table. Barcode-style lines
// with extra columns (some references append a feature type) keep only the
// first two.
func readGenes(ctx context.Context, path string) ([]singlecell.Gene, error) {
	lines, err := readLines(ctx, path)
	if err != nil {
		return nil, err
	}
	genes := make([]singlecell.Gene, 0, len(lines))
	for n, line := range lines {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, errors.Errorf("%s:%d: expected <id>\\t<symbol>, got %q", path, n+1, line)
		}
		genes = append(genes, singlecell.Gene{ID: fields[0], Symbol: fields[1]})
	}
	return genes, nil
}
