package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// blobScores returns two well-separated groups of points in 3D: indices
// 0..5 near the origin, 6..10 far away.
func blobScores() *mat.Dense {
	return mat.NewDense(11, 3, []float64{
		0.0, 0.1, 0.0,
		0.1, 0.0, 0.1,
		0.2, 0.1, 0.0,
		0.0, 0.2, 0.1,
		0.1, 0.1, 0.1,
		0.2, 0.0, 0.2,
		100.0, 100.1, 100.0,
		100.1, 100.0, 100.1,
		100.2, 100.1, 100.0,
		100.0, 100.2, 100.1,
		100.1, 100.1, 100.1,
	})
}

func TestPCA(t *testing.T) {
	scores, err := PCA(blobScores(), 2)
	require.NoError(t, err)
	r, c := scores.Dims()
	assert.Equal(t, 11, r)
	assert.Equal(t, 2, c)

	// Requesting more components than the data supports caps the rank.
	scores, err = PCA(blobScores(), 50)
	require.NoError(t, err)
	_, c = scores.Dims()
	assert.Equal(t, 3, c)
}

func TestKNNGraph(t *testing.T) {
	// Each blob has at least 4 in-blob partners, so with k=4 no neighbor
	// list ever reaches across the gap.
	g := KNNGraph(blobScores(), 4)
	assert.Equal(t, 11, g.Nodes().Len())

	for i := int64(0); i < 6; i++ {
		for j := int64(6); j < 11; j++ {
			assert.Nil(t, g.WeightedEdge(i, j), "edge %d-%d crosses blobs", i, j)
		}
	}
	for i := int64(0); i < 11; i++ {
		n := g.From(i).Len()
		assert.True(t, n >= 4, "node %d has %d neighbors", i, n)
	}
}

func TestClusterSeparatesBlobs(t *testing.T) {
	g := KNNGraph(blobScores(), 4)
	assign := Cluster(g, 1.0, 1)
	require.Len(t, assign, 11)

	// The two disconnected near-cliques must land in different clusters,
	// and the larger blob gets ID 0.
	for i := 1; i < 6; i++ {
		assert.Equal(t, assign[0], assign[i], "cell %d", i)
	}
	for i := 7; i < 11; i++ {
		assert.Equal(t, assign[6], assign[i], "cell %d", i)
	}
	assert.NotEqual(t, assign[0], assign[6])
	assert.Equal(t, 0, assign[0])
	assert.Equal(t, 1, assign[6])
}

func TestEmbed2D(t *testing.T) {
	emb := Embed2D(blobScores(), 30, 50)
	r, c := emb.Dims()
	assert.Equal(t, 11, r)
	assert.Equal(t, 2, c)
}
