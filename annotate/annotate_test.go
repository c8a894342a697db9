package annotate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cerebra-bio/scrna/singlecell"
	"github.com/james-bowman/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clusteredDataset(t *testing.T) *singlecell.Dataset {
	t.Helper()
	coo := sparse.NewCOO(1, 3, nil, nil, nil)
	coo.Set(0, 0, 1)
	coo.Set(0, 1, 2)
	coo.Set(0, 2, 3)
	ds, err := singlecell.NewDataset("e13a",
		[]singlecell.Gene{{ID: "g1", Symbol: "Actb"}},
		[]string{"b1", "b2", "b3"}, coo.ToCSR())
	require.NoError(t, err)
	ds.Cells[0].Cluster = 0
	ds.Cells[1].Cluster = 0
	ds.Cells[2].Cluster = 1
	return ds
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`run_key: "abc123"
resolution: 0.8
labels:
  0: "Granule precursors"
  1: "Purkinje cells"
`), 0o600))

	art, err := Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", art.RunKey)
	assert.Equal(t, 0.8, art.Resolution)
	assert.Equal(t, "Purkinje cells", art.Labels[1])
}

func TestLoadRequiresRunKey(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("labels:\n  0: x\n"), 0o600))
	_, err := Load(ctx, path)
	require.Error(t, err)
}

func TestRunKey(t *testing.T) {
	ds := clusteredDataset(t)
	opts := singlecell.DefaultOpts

	key := RunKey(opts, ds)
	assert.Len(t, key, 16)
	// Deterministic for identical inputs.
	assert.Equal(t, key, RunKey(opts, ds))

	// Any clustering-relevant parameter change invalidates the key.
	changed := opts
	changed.Resolution = 1.2
	assert.NotEqual(t, key, RunKey(changed, ds))

	changed = opts
	changed.Seed = 99
	assert.NotEqual(t, key, RunKey(changed, ds))
}

func TestApply(t *testing.T) {
	ds := clusteredDataset(t)
	key := RunKey(singlecell.DefaultOpts, ds)
	art := Artifact{
		RunKey: key,
		Labels: map[int]string{0: "Granule precursors", 7: "Ghost cluster"},
	}
	require.NoError(t, Apply(ds, art, key, false))
	assert.Equal(t, "Granule precursors", ds.Cells[0].CellType)
	assert.Equal(t, "Granule precursors", ds.Cells[1].CellType)
	// Cluster 1 has no label; it stays unannotated.
	assert.Equal(t, "", ds.Cells[2].CellType)
}

func TestApplyRunKeyMismatch(t *testing.T) {
	ds := clusteredDataset(t)
	key := RunKey(singlecell.DefaultOpts, ds)
	art := Artifact{RunKey: "someoldrun", Labels: map[int]string{0: "Granule precursors"}}

	err := Apply(ds, art, key, false)
	require.Error(t, err)
	assert.Equal(t, "", ds.Cells[0].CellType)

	// force overrides the mismatch.
	require.NoError(t, Apply(ds, art, key, true))
	assert.Equal(t, "Granule precursors", ds.Cells[0].CellType)
}
