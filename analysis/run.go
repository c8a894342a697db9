package analysis

import (
	"github.com/cerebra-bio/scrna/singlecell"
	"github.com/grailbio/base/log"
	"gonum.org/v1/gonum/mat"
)

// Result carries the reduced representations produced by Run. Row order in
// both matrices matches ds.Cells.
type Result struct {
	// Scores is the cells x NumPCs principal-component matrix.
	Scores *mat.Dense
	// Embedding is the cells x 2 t-SNE embedding.
	Embedding *mat.Dense
	// VariableGenes indexes ds.Genes, in decreasing variance order.
	VariableGenes []int
}

// Run executes normalization through clustering and embedding on a merged,
// QC-filtered dataset, writing cluster assignments into ds.Cells in place.
func Run(ds *singlecell.Dataset, opts singlecell.PipelineOpts) (*Result, error) {
	log.Printf("%s: normalizing %d genes x %d cells", ds.Name(), ds.NGenes(), ds.NCells())
	norm := LogNormalize(ds, opts.ScaleFactor)
	hvg := SelectVariableGenes(norm, opts.TopGenes)
	scaled := ScaleRegress(norm, hvg, ds.Cells)

	scores, err := PCA(scaled, opts.NumPCs)
	if err != nil {
		return nil, err
	}
	g := KNNGraph(scores, opts.Neighbors)
	assign := Cluster(g, opts.Resolution, opts.Seed)
	nClusters := 0
	for j := range ds.Cells {
		ds.Cells[j].Cluster = assign[j]
		if assign[j]+1 > nClusters {
			nClusters = assign[j] + 1
		}
	}
	log.Printf("%s: %d clusters at resolution %v", ds.Name(), nClusters, opts.Resolution)

	emb := Embed2D(scores, opts.Perplexity, opts.TSNEIters)
	ds.Embedding = emb
	return &Result{Scores: scores, Embedding: emb, VariableGenes: hvg}, nil
}
