package analysis

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCA projects the scaled matrix onto its top k principal components and
// returns the cells x k score matrix. k is capped at the number of usable
// components.
func PCA(scaled *mat.Dense, k int) (*mat.Dense, error) {
	nCells, nGenes := scaled.Dims()
	max := nCells
	if nGenes < max {
		max = nGenes
	}
	if k > max {
		k = max
	}
	var pc stat.PC
	if ok := pc.PrincipalComponents(scaled, nil); !ok {
		return nil, errors.New("principal component decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	var scores mat.Dense
	scores.Mul(scaled, vecs.Slice(0, nGenes, 0, k))
	return &scores, nil
}

// KNNGraph builds an undirected graph connecting every cell to its k nearest
// neighbors in PC space (Euclidean). Edges shared by two neighborhoods are
// kept at weight 1; the graph always contains every cell as a node.
func KNNGraph(scores *mat.Dense, k int) *simple.WeightedUndirectedGraph {
	nCells, dims := scores.Dims()
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for i := 0; i < nCells; i++ {
		g.AddNode(simple.Node(i))
	}
	if k >= nCells {
		k = nCells - 1
	}
	type nd struct {
		j int
		d float64
	}
	dists := make([]nd, 0, nCells)
	for i := 0; i < nCells; i++ {
		dists = dists[:0]
		for j := 0; j < nCells; j++ {
			if j == i {
				continue
			}
			var d float64
			for c := 0; c < dims; c++ {
				diff := scores.At(i, c) - scores.At(j, c)
				d += diff * diff
			}
			dists = append(dists, nd{j: j, d: d})
		}
		sort.Slice(dists, func(a, b int) bool {
			if dists[a].d != dists[b].d {
				return dists[a].d < dists[b].d
			}
			return dists[a].j < dists[b].j
		})
		for n := 0; n < k && n < len(dists); n++ {
			j := dists[n].j
			if g.WeightedEdge(int64(i), int64(j)) != nil {
				continue
			}
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(i), simple.Node(j), 1))
		}
	}
	return g
}

// Cluster runs Louvain community detection over the kNN graph at the given
// resolution and returns one cluster ID per cell. IDs are assigned in
// decreasing population order (cluster 0 is the largest), which keeps them
// stable across runs with the same seed and inputs.
func Cluster(g *simple.WeightedUndirectedGraph, resolution float64, seed int64) []int {
	src := rand.NewSource(uint64(seed))
	reduced := community.Modularize(g, resolution, src)
	comms := reduced.Communities()
	sort.Slice(comms, func(a, b int) bool {
		if len(comms[a]) != len(comms[b]) {
			return len(comms[a]) > len(comms[b])
		}
		return minID(comms[a]) < minID(comms[b])
	})
	n := g.Nodes().Len()
	assign := make([]int, n)
	for id, comm := range comms {
		for _, node := range comm {
			assign[node.ID()] = id
		}
	}
	return assign
}

func minID(nodes []graph.Node) int64 {
	m := int64(math.MaxInt64)
	for _, n := range nodes {
		if n.ID() < m {
			m = n.ID()
		}
	}
	return m
}
