package singlecell

import (
	"sort"
	"unicode"

	"github.com/grailbio/base/log"
	"github.com/james-bowman/sparse"
	"github.com/pkg/errors"
)

// ParseStage splits a sample ID of the form <stage><replicate letter>, e.g.
// "e13a" -> ("e13", "a"). The replicate is the final letter; everything
// before it is the stage code.
func ParseStage(sampleID string) (stage, replicate string, err error) {
	if sampleID == "" {
		return "", "", errors.New("empty sample ID")
	}
	runes := []rune(sampleID)
	last := runes[len(runes)-1]
	if !unicode.IsLetter(last) || len(runes) < 2 {
		return "", "", errors.Errorf("sample ID %q does not end in a replicate letter", sampleID)
	}
	return string(runes[:len(runes)-1]), string(last), nil
}

// MergeByStage groups the per-sample datasets by their parsed stage code and
// concatenates each group along the cell axis. A group whose size differs
// from opts.ExpectedReplicates is merged anyway, with a warning. Datasets are
// returned in lexical stage order.
func MergeByStage(samples []*Dataset, opts PipelineOpts) ([]*Dataset, error) {
	groups := map[string][]*Dataset{}
	var stages []string
	for _, ds := range samples {
		stage, _, err := ParseStage(ds.Sample())
		if err != nil {
			return nil, err
		}
		if _, ok := groups[stage]; !ok {
			stages = append(stages, stage)
		}
		groups[stage] = append(groups[stage], ds)
	}
	sort.Strings(stages)

	var merged []*Dataset
	for _, stage := range stages {
		members := groups[stage]
		if opts.ExpectedReplicates > 0 && len(members) != opts.ExpectedReplicates {
			log.Error.Printf("stage %s has %d replicates, expected %d", stage, len(members), opts.ExpectedReplicates)
		}
		ds, err := mergeGroup(stage, members)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %s", stage)
		}
		merged = append(merged, ds)
	}
	return merged, nil
}

// MergeAll concatenates every sample into one dataset. Per-cell stage labels
// are still filled from the sample IDs when they parse.
func MergeAll(samples []*Dataset) (*Dataset, error) {
	ds, err := mergeGroup("all", samples)
	if err != nil {
		return nil, err
	}
	for j := range ds.Cells {
		if stage, _, err := ParseStage(ds.Cells[j].Sample); err == nil {
			ds.Cells[j].Stage = stage
		}
	}
	return ds, nil
}

// mergeGroup concatenates the member datasets along the cell axis over the
// intersection of their gene tables (per-sample zero-count filtering can
// leave each member with a slightly different gene axis). Cell barcodes are
// prefixed with their sample ID, which keeps them pairwise unique even when
// two samples drew the same raw barcode.
func mergeGroup(stage string, members []*Dataset) (*Dataset, error) {
	if len(members) == 0 {
		return nil, errors.New("no samples to merge")
	}

	// Intersect gene tables by stable ID, keeping the first member's order.
	seen := map[string]int{}
	for _, m := range members {
		ids := map[string]bool{}
		for _, g := range m.Genes {
			ids[g.ID] = true
		}
		for id := range ids {
			seen[id]++
		}
	}
	var genes []Gene
	mergedIdx := map[string]int{}
	for _, g := range members[0].Genes {
		if seen[g.ID] == len(members) {
			mergedIdx[g.ID] = len(genes)
			genes = append(genes, g)
		}
	}
	if len(genes) == 0 {
		other := members[len(members)-1]
		return nil, errors.Errorf("samples share no genes (e.g. %s vs %s)",
			members[0].Sample(), other.Sample())
	}

	nCells := 0
	for _, m := range members {
		nCells += m.NCells()
	}
	coo := sparse.NewCOO(len(genes), nCells, nil, nil, nil)
	cells := make([]CellMeta, 0, nCells)
	offset := 0
	for _, m := range members {
		rowMap := make([]int, m.NGenes())
		for i, g := range m.Genes {
			if idx, ok := mergedIdx[g.ID]; ok {
				rowMap[i] = idx
			} else {
				rowMap[i] = -1
			}
		}
		m.X.DoNonZero(func(i, j int, v float64) {
			if ni := rowMap[i]; ni >= 0 {
				coo.Set(ni, offset+j, v)
			}
		})
		for _, c := range m.Cells {
			c.Barcode = c.Sample + ":" + c.Barcode
			c.Stage = stage
			cells = append(cells, c)
		}
		offset += m.NCells()
	}

	out := &Dataset{Stage: stage, Genes: genes, Cells: cells, X: coo.ToCSR()}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	out.recomputeTotals()
	log.Printf("merged %d samples into %s: %d genes x %d cells", len(members), stage, out.NGenes(), out.NCells())
	return out, nil
}
