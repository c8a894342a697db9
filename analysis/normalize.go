// Package analysis runs the post-QC numerical stages: log-normalization,
// variable-gene selection, scaling with covariate regression, PCA, kNN-graph
// clustering, and a 2D embedding. The algorithms themselves are delegated to
// gonum and go-tsne; this package only parameterizes them and moves data
// between the sparse count world and the dense reduced world.
package analysis

import (
	"math"
	"sort"

	"github.com/cerebra-bio/scrna/singlecell"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// LogNormalize converts the genes x cells count matrix into a dense
// cells x genes matrix of log1p(count / cellTotal * scaleFactor). Cells with
// zero total counts (possible only if filtering was skipped) stay all-zero.
func LogNormalize(ds *singlecell.Dataset, scaleFactor float64) *mat.Dense {
	nGenes, nCells := ds.X.Dims()
	totals := make([]float64, nCells)
	ds.X.DoNonZero(func(i, j int, v float64) {
		totals[j] += v
	})
	out := mat.NewDense(nCells, nGenes, nil)
	ds.X.DoNonZero(func(i, j int, v float64) {
		if totals[j] == 0 {
			return
		}
		out.Set(j, i, math.Log1p(v/totals[j]*scaleFactor))
	})
	return out
}

// SelectVariableGenes returns the column indices of the n highest-variance
// genes in the normalized matrix, in decreasing variance order. If the matrix
// has fewer than n genes, all of them are returned.
func SelectVariableGenes(norm *mat.Dense, n int) []int {
	nCells, nGenes := norm.Dims()
	type gv struct {
		gene int
		v    float64
	}
	vars := make([]gv, nGenes)
	col := make([]float64, nCells)
	for g := 0; g < nGenes; g++ {
		col = mat.Col(col, g, norm)
		vars[g] = gv{gene: g, v: stat.Variance(col, nil)}
	}
	sort.Slice(vars, func(i, j int) bool {
		if vars[i].v != vars[j].v {
			return vars[i].v > vars[j].v
		}
		return vars[i].gene < vars[j].gene
	})
	if n > nGenes {
		n = nGenes
	}
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		idx[i] = vars[i].gene
	}
	return idx
}

// ScaleRegress extracts the selected gene columns, regresses out the
// mitochondrial percentage and log total counts from each, and z-scores the
// residuals, clipping extreme values at +-clipAt.
func ScaleRegress(norm *mat.Dense, genes []int, cells []singlecell.CellMeta) *mat.Dense {
	const clipAt = 10.0
	nCells, _ := norm.Dims()

	// Design matrix: intercept, pct.mt, log1p(total counts).
	design := mat.NewDense(nCells, 3, nil)
	for j, c := range cells {
		design.Set(j, 0, 1)
		design.Set(j, 1, c.PctMT)
		design.Set(j, 2, math.Log1p(c.Counts))
	}

	out := mat.NewDense(nCells, len(genes), nil)
	y := mat.NewDense(nCells, 1, nil)
	resid := make([]float64, nCells)
	for k, g := range genes {
		for j := 0; j < nCells; j++ {
			y.Set(j, 0, norm.At(j, g))
		}
		var beta mat.Dense
		if err := beta.Solve(design, y); err != nil {
			// Degenerate covariates (e.g. constant pct.mt in synthetic
			// data): fall back to centering only.
			col := mat.Col(nil, 0, y)
			m := stat.Mean(col, nil)
			for j := 0; j < nCells; j++ {
				resid[j] = col[j] - m
			}
		} else {
			var fit mat.Dense
			fit.Mul(design, &beta)
			for j := 0; j < nCells; j++ {
				resid[j] = y.At(j, 0) - fit.At(j, 0)
			}
		}
		m, sd := stat.MeanStdDev(resid, nil)
		for j := 0; j < nCells; j++ {
			v := resid[j] - m
			if sd > 0 {
				v /= sd
			}
			if v > clipAt {
				v = clipAt
			} else if v < -clipAt {
				v = -clipAt
			}
			out.Set(j, k, v)
		}
	}
	return out
}
