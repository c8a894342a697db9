package analysis

import (
	"github.com/danaugrs/go-tsne/tsne"
	"gonum.org/v1/gonum/mat"
)

// tsneLearningRate is fixed; the perplexity and iteration count are the
// knobs exposed through PipelineOpts.
const tsneLearningRate = 100

// Embed2D computes a 2D t-SNE embedding of the PC scores for visualization
// and trajectory handoff. Returns a cells x 2 matrix whose row order matches
// the dataset's cell order.
func Embed2D(scores *mat.Dense, perplexity float64, iters int) *mat.Dense {
	nCells, _ := scores.Dims()
	// t-SNE requires perplexity well below the number of points; shrink it
	// for small (e.g. synthetic) inputs instead of failing.
	maxPerp := float64(nCells-1) / 3
	if perplexity > maxPerp {
		perplexity = maxPerp
	}
	if perplexity < 1 {
		perplexity = 1
	}
	t := tsne.NewTSNE(2, perplexity, tsneLearningRate, iters, false)
	y := t.EmbedData(scores, nil)
	return mat.DenseCopyOf(y)
}
