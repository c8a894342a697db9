// Package annotate applies manual cell-type labels to clustered datasets.
//
// Cluster IDs are only meaningful for the clustering run that produced them:
// rerunning with a different resolution, seed, or input renumbers everything.
// A label dictionary is therefore shipped as a versioned YAML artifact bound
// to a run key, never as a constant:
//
//	run_key: "9c41e2a07f3b8d15"
//	resolution: 0.8
//	labels:
//	  0: "Granule precursors"
//	  1: "Purkinje cells"
//	  2: "GABAergic interneurons"
//
// Apply refuses an artifact whose run key does not match the dataset's
// current run unless forced.
package annotate

import (
	"context"
	"fmt"

	"blainsmith.com/go/seahash"
	"github.com/cerebra-bio/scrna/singlecell"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Artifact is the on-disk annotation dictionary.
type Artifact struct {
	RunKey     string         `yaml:"run_key"`
	Resolution float64        `yaml:"resolution"`
	Labels     map[int]string `yaml:"labels"`
}

// Load reads an annotation artifact from a YAML file.
func Load(ctx context.Context, path string) (Artifact, error) {
	var art Artifact
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return art, errors.Wrapf(err, "annotation %s", path)
	}
	if err := yaml.Unmarshal(data, &art); err != nil {
		return art, errors.Wrapf(err, "annotation %s", path)
	}
	if art.RunKey == "" {
		return art, errors.Errorf("annotation %s: missing run_key", path)
	}
	return art, nil
}

// RunKey fingerprints a clustering run: the parameters that shape the
// clustering plus the identity of the dataset it ran on. Two runs with equal
// keys assign cluster IDs identically, so an artifact keyed to one is valid
// for the other.
func RunKey(opts singlecell.PipelineOpts, ds *singlecell.Dataset) string {
	h := seahash.New()
	fmt.Fprintf(h, "sf=%v tg=%d pc=%d nn=%d res=%v seed=%d|", opts.ScaleFactor, opts.TopGenes,
		opts.NumPCs, opts.Neighbors, opts.Resolution, opts.Seed)
	fmt.Fprintf(h, "%s %d %d|", ds.Name(), ds.NGenes(), ds.NCells())
	if n := ds.NCells(); n > 0 {
		fmt.Fprintf(h, "%s %s", ds.Cells[0].Barcode, ds.Cells[n-1].Barcode)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Apply writes the artifact's labels into ds.Cells. A run-key mismatch is an
// error unless force is set; labels naming cluster IDs absent from the
// dataset are reported as warnings but do not fail the run. Clusters without
// a label keep an empty CellType.
func Apply(ds *singlecell.Dataset, art Artifact, key string, force bool) error {
	if art.RunKey != key {
		if !force {
			return errors.Errorf("%s: annotation was built for run %s but this is run %s; rerun the dictionary or pass force",
				ds.Name(), art.RunKey, key)
		}
		log.Error.Printf("%s: applying annotation from run %s to run %s (forced)", ds.Name(), art.RunKey, key)
	}

	present := map[int]bool{}
	labeled := 0
	for j := range ds.Cells {
		c := &ds.Cells[j]
		present[c.Cluster] = true
		if label, ok := art.Labels[c.Cluster]; ok {
			c.CellType = label
			labeled++
		}
	}
	for id := range art.Labels {
		if !present[id] {
			log.Error.Printf("%s: annotation labels cluster %d, which has no cells in this run", ds.Name(), id)
		}
	}
	log.Printf("%s: labeled %d of %d cells", ds.Name(), labeled, ds.NCells())
	return nil
}
