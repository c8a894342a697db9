package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cerebra-bio/scrna/singlecell"
	"github.com/james-bowman/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testDataset(t *testing.T, sample string, embedding bool) *singlecell.Dataset {
	t.Helper()
	coo := sparse.NewCOO(2, 3, nil, nil, nil)
	coo.Set(0, 0, 4)
	coo.Set(1, 1, 2)
	coo.Set(0, 2, 7)
	ds, err := singlecell.NewDataset(sample,
		[]singlecell.Gene{{ID: "g1", Symbol: "Actb"}, {ID: "g2", Symbol: "Gfap"}},
		[]string{"b1", "b2", "b3"}, coo.ToCSR())
	require.NoError(t, err)
	singlecell.AnnotateQC(ds)
	ds.Stage = "e13"
	ds.Cells[0].Cluster = 1
	ds.Cells[0].CellType = "Purkinje cells"
	if embedding {
		ds.Embedding = mat.NewDense(3, 2, []float64{0.5, -1, 2, 3.25, -4, 0})
	}
	return ds
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ckpt.rio")
	in := []*singlecell.Dataset{testDataset(t, "e13a", true), testDataset(t, "e13b", false)}
	trailer := Trailer{Milestone: "post-cluster", Opts: singlecell.DefaultOpts}

	require.NoError(t, Write(ctx, path, trailer, in))
	out, gotTrailer, err := Read(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, trailer, gotTrailer)
	require.Len(t, out, 2)
	for i, ds := range out {
		assert.Equal(t, in[i].Stage, ds.Stage)
		assert.Equal(t, in[i].Genes, ds.Genes)
		assert.Equal(t, in[i].Cells, ds.Cells)
		require.NoError(t, ds.Validate())
		r, c := ds.X.Dims()
		assert.Equal(t, 2, r)
		assert.Equal(t, 3, c)
		assert.Equal(t, 4.0, ds.X.At(0, 0))
		assert.Equal(t, 2.0, ds.X.At(1, 1))
		assert.Equal(t, 7.0, ds.X.At(0, 2))
		assert.Equal(t, 0.0, ds.X.At(1, 0))
	}

	require.NotNil(t, out[0].Embedding)
	assert.True(t, mat.Equal(in[0].Embedding, out[0].Embedding))
	assert.Nil(t, out[1].Embedding)
}

func TestReadRejectsNonCheckpoint(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notackpt")
	require.NoError(t, os.WriteFile(path, []byte("not a recordio file at all"), 0o600))
	_, _, err := Read(ctx, path)
	require.Error(t, err)
}
