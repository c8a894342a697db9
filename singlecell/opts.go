package singlecell

import (
	"context"

	"github.com/grailbio/base/file"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PipelineOpts collects every tunable of the pipeline. The exploratory
// analyses this pipeline replaces ran the same steps under several competing
// threshold sets; those variants are reproduced by running the one pipeline
// with different opts files rather than by duplicating code.
type PipelineOpts struct {
	// MaxPctMT drops cells at or above this mitochondrial percentage.
	MaxPctMT float64 `yaml:"max_pct_mt"`
	// MinCounts/MaxCounts keep cells whose total count lies in the
	// closed-open interval [MinCounts, MaxCounts).
	MinCounts float64 `yaml:"min_counts"`
	MaxCounts float64 `yaml:"max_counts"`

	// MergeByStage groups replicates into one dataset per developmental
	// stage; when false all samples merge into a single dataset.
	MergeByStage bool `yaml:"merge_by_stage"`
	// ExpectedReplicates is the replicate count per stage; a mismatch is
	// logged as a warning, not an error.
	ExpectedReplicates int `yaml:"expected_replicates"`

	// ScaleFactor is the per-cell target sum used by log-normalization.
	ScaleFactor float64 `yaml:"scale_factor"`
	// TopGenes is the number of highest-variance genes kept for scaling
	// and PCA.
	TopGenes int `yaml:"top_genes"`
	// NumPCs is the rank of the principal-component reduction.
	NumPCs int `yaml:"num_pcs"`
	// Neighbors is k for the kNN graph over PC space.
	Neighbors int `yaml:"neighbors"`
	// Resolution is the community-detection granularity; higher values
	// produce more clusters.
	Resolution float64 `yaml:"resolution"`
	// Perplexity and TSNEIters parameterize the 2D t-SNE embedding.
	Perplexity float64 `yaml:"perplexity"`
	TSNEIters  int     `yaml:"tsne_iters"`
	// Seed fixes the clustering and embedding randomness so that cluster
	// IDs are reproducible for a given opts file.
	Seed int64 `yaml:"seed"`
}

// DefaultOpts carries the thresholds of the analysis variant that was carried
// through to annotation.
var DefaultOpts = PipelineOpts{
	MaxPctMT:           10,
	MinCounts:          3200,
	MaxCounts:          15000,
	MergeByStage:       true,
	ExpectedReplicates: 2,
	ScaleFactor:        10000,
	TopGenes:           2000,
	NumPCs:             30,
	Neighbors:          20,
	Resolution:         0.8,
	Perplexity:         30,
	TSNEIters:          300,
	Seed:               1,
}

// LoadOpts reads a YAML opts file, layered over DefaultOpts so that a file
// only needs to name the thresholds it changes.
func LoadOpts(ctx context.Context, path string) (PipelineOpts, error) {
	opts := DefaultOpts
	data, err := file.ReadFile(ctx, path)
	if err != nil {
		return opts, errors.Wrapf(err, "opts %s", path)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrapf(err, "opts %s", path)
	}
	if err := opts.Check(); err != nil {
		return opts, errors.Wrapf(err, "opts %s", path)
	}
	return opts, nil
}

// Check rejects option combinations the pipeline cannot run with.
func (o PipelineOpts) Check() error {
	if o.MinCounts >= o.MaxCounts {
		return errors.Errorf("count range [%v,%v) is empty", o.MinCounts, o.MaxCounts)
	}
	if o.MaxPctMT <= 0 {
		return errors.Errorf("max_pct_mt %v would drop every cell", o.MaxPctMT)
	}
	if o.TopGenes <= 0 || o.NumPCs <= 0 || o.Neighbors <= 0 {
		return errors.Errorf("top_genes, num_pcs, and neighbors must be positive")
	}
	if o.Resolution <= 0 {
		return errors.Errorf("resolution must be positive, got %v", o.Resolution)
	}
	return nil
}
