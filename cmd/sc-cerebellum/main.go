// Command sc-cerebellum runs the cerebellum scRNA-seq pipeline: per-sample
// ingestion and QC filtering, replicate merging, clustering, manual cell-type
// annotation, and the handoff export for the viewer and trajectory tools.
//
// The pipeline checkpoints its dataset collection after filtering and after
// clustering, so the later stages can be rerun (e.g. with a new resolution or
// a new label dictionary) without repeating ingestion:
//
//	sc-cerebellum qc -input raw/ -opts e13.yaml -checkpoint filtered.rio
//	sc-cerebellum cluster -checkpoint filtered.rio -out clustered.rio -clusters clusters
//	sc-cerebellum annotate -checkpoint clustered.rio -labels labels.yaml -out labeled.rio
//	sc-cerebellum export -checkpoint labeled.rio -out handoff/
//
// or everything at once:
//
//	sc-cerebellum run -input raw/ -opts e13.yaml -out results/
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/cerebra-bio/scrna/analysis"
	"github.com/cerebra-bio/scrna/annotate"
	"github.com/cerebra-bio/scrna/checkpoint"
	"github.com/cerebra-bio/scrna/encoding/cellranger"
	"github.com/cerebra-bio/scrna/export"
	"github.com/cerebra-bio/scrna/singlecell"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

const (
	milestonePostFilter  = "post-filter"
	milestonePostCluster = "post-cluster"
)

func loadOpts(ctx context.Context, path string) (singlecell.PipelineOpts, error) {
	if path == "" {
		return singlecell.DefaultOpts, nil
	}
	return singlecell.LoadOpts(ctx, path)
}

// qcStage ingests, QC-filters, and merges the raw samples.
func qcStage(ctx context.Context, inputDir string, opts singlecell.PipelineOpts) ([]*singlecell.Dataset, error) {
	samples, err := cellranger.LoadAll(ctx, inputDir)
	if err != nil {
		return nil, err
	}
	filtered := make([]*singlecell.Dataset, len(samples))
	err = traverse.Each(len(samples), func(i int) error {
		ds, err := singlecell.RunQCFilters(samples[i], opts)
		if err != nil {
			return err
		}
		filtered[i] = ds
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opts.MergeByStage {
		return singlecell.MergeByStage(filtered, opts)
	}
	merged, err := singlecell.MergeAll(filtered)
	if err != nil {
		return nil, err
	}
	return []*singlecell.Dataset{merged}, nil
}

// clusterStage runs normalization through embedding on every merged dataset
// and writes one cluster table per dataset.
func clusterStage(ctx context.Context, datasets []*singlecell.Dataset, opts singlecell.PipelineOpts, clustersPrefix string) error {
	for _, ds := range datasets {
		if _, err := analysis.Run(ds, opts); err != nil {
			return err
		}
		log.Printf("%s: run key %s", ds.Name(), annotate.RunKey(opts, ds))
		if clustersPrefix != "" {
			path := fmt.Sprintf("%s.%s.tsv", clustersPrefix, ds.Name())
			if err := export.WriteClusters(ctx, path, ds); err != nil {
				return err
			}
		}
	}
	return nil
}

func readClustered(ctx context.Context, path string) ([]*singlecell.Dataset, checkpoint.Trailer, error) {
	datasets, trailer, err := checkpoint.Read(ctx, path)
	if err != nil {
		return nil, trailer, err
	}
	if trailer.Milestone != milestonePostCluster {
		return nil, trailer, fmt.Errorf("checkpoint %s was taken at %q, need %q", path, trailer.Milestone, milestonePostCluster)
	}
	return datasets, trailer, nil
}

func newCmdQC() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "qc",
		Short: "Ingest raw sample triplets, QC-filter, merge, and checkpoint",
	}
	inputFlag := cmd.Flags.String("input", "", "Directory of per-sample barcode/gene/matrix triplets.")
	optsFlag := cmd.Flags.String("opts", "", "YAML pipeline options; defaults are used when empty.")
	ckptFlag := cmd.Flags.String("checkpoint", "filtered.rio", "Post-filter checkpoint to write.")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if *inputFlag == "" {
			return fmt.Errorf("qc: -input is required")
		}
		ctx := vcontext.Background()
		opts, err := loadOpts(ctx, *optsFlag)
		if err != nil {
			return err
		}
		datasets, err := qcStage(ctx, *inputFlag, opts)
		if err != nil {
			return err
		}
		return checkpoint.Write(ctx, *ckptFlag, checkpoint.Trailer{Milestone: milestonePostFilter, Opts: opts}, datasets)
	})
	return cmd
}

func newCmdCluster() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "cluster",
		Short: "Normalize, reduce, cluster, and embed a post-filter checkpoint",
	}
	ckptFlag := cmd.Flags.String("checkpoint", "filtered.rio", "Post-filter checkpoint to resume from.")
	outFlag := cmd.Flags.String("out", "clustered.rio", "Post-cluster checkpoint to write.")
	clustersFlag := cmd.Flags.String("clusters", "clusters", "Prefix for the per-dataset (barcode, cluster) TSV tables.")
	optsFlag := cmd.Flags.String("opts", "", "YAML pipeline options; defaults to the options stored in the checkpoint.")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		ctx := vcontext.Background()
		datasets, trailer, err := checkpoint.Read(ctx, *ckptFlag)
		if err != nil {
			return err
		}
		opts := trailer.Opts
		if *optsFlag != "" {
			if opts, err = singlecell.LoadOpts(ctx, *optsFlag); err != nil {
				return err
			}
		}
		if err := clusterStage(ctx, datasets, opts, *clustersFlag); err != nil {
			return err
		}
		return checkpoint.Write(ctx, *outFlag, checkpoint.Trailer{Milestone: milestonePostCluster, Opts: opts}, datasets)
	})
	return cmd
}

func newCmdAnnotate() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "annotate",
		Short: "Apply a manual cluster-label dictionary to a post-cluster checkpoint",
	}
	ckptFlag := cmd.Flags.String("checkpoint", "clustered.rio", "Post-cluster checkpoint to annotate.")
	labelsFlag := cmd.Flags.String("labels", "", "YAML annotation artifact (run_key + cluster labels).")
	outFlag := cmd.Flags.String("out", "labeled.rio", "Annotated checkpoint to write.")
	forceFlag := cmd.Flags.Bool("force", false, "Apply the labels even if their run key does not match.")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if *labelsFlag == "" {
			return fmt.Errorf("annotate: -labels is required")
		}
		ctx := vcontext.Background()
		datasets, trailer, err := readClustered(ctx, *ckptFlag)
		if err != nil {
			return err
		}
		art, err := annotate.Load(ctx, *labelsFlag)
		if err != nil {
			return err
		}
		for _, ds := range datasets {
			key := annotate.RunKey(trailer.Opts, ds)
			if err := annotate.Apply(ds, art, key, *forceFlag); err != nil {
				return err
			}
		}
		return checkpoint.Write(ctx, *outFlag, trailer, datasets)
	})
	return cmd
}

func newCmdExport() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "export",
		Short: "Write the viewer/trajectory handoff bundle from a post-cluster checkpoint",
	}
	ckptFlag := cmd.Flags.String("checkpoint", "clustered.rio", "Post-cluster checkpoint to export.")
	outFlag := cmd.Flags.String("out", "handoff", "Output directory; one subdirectory per dataset.")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		ctx := vcontext.Background()
		datasets, _, err := readClustered(ctx, *ckptFlag)
		if err != nil {
			return err
		}
		for _, ds := range datasets {
			if err := export.WriteHandoff(ctx, file.Join(*outFlag, ds.Name()), ds); err != nil {
				return err
			}
		}
		return nil
	})
	return cmd
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "run",
		Short: "Run every stage end to end",
	}
	inputFlag := cmd.Flags.String("input", "", "Directory of per-sample barcode/gene/matrix triplets.")
	optsFlag := cmd.Flags.String("opts", "", "YAML pipeline options; defaults are used when empty.")
	labelsFlag := cmd.Flags.String("labels", "", "Optional YAML annotation artifact.")
	forceFlag := cmd.Flags.Bool("force", false, "Apply labels even if their run key does not match.")
	outFlag := cmd.Flags.String("out", "results", "Output directory for checkpoints, cluster tables, and handoff.")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if *inputFlag == "" {
			return fmt.Errorf("run: -input is required")
		}
		ctx := vcontext.Background()
		if !strings.Contains(*outFlag, "://") {
			if err := os.MkdirAll(*outFlag, 0755); err != nil {
				return err
			}
		}
		opts, err := loadOpts(ctx, *optsFlag)
		if err != nil {
			return err
		}
		datasets, err := qcStage(ctx, *inputFlag, opts)
		if err != nil {
			return err
		}
		if err := checkpoint.Write(ctx, file.Join(*outFlag, "filtered.rio"),
			checkpoint.Trailer{Milestone: milestonePostFilter, Opts: opts}, datasets); err != nil {
			return err
		}
		if err := clusterStage(ctx, datasets, opts, file.Join(*outFlag, "clusters")); err != nil {
			return err
		}
		if *labelsFlag != "" {
			art, err := annotate.Load(ctx, *labelsFlag)
			if err != nil {
				return err
			}
			for _, ds := range datasets {
				if err := annotate.Apply(ds, art, annotate.RunKey(opts, ds), *forceFlag); err != nil {
					return err
				}
			}
		}
		if err := checkpoint.Write(ctx, file.Join(*outFlag, "clustered.rio"),
			checkpoint.Trailer{Milestone: milestonePostCluster, Opts: opts}, datasets); err != nil {
			return err
		}
		for _, ds := range datasets {
			if err := export.WriteHandoff(ctx, file.Join(*outFlag, "handoff", ds.Name()), ds); err != nil {
				return err
			}
		}
		return nil
	})
	return cmd
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(&cmdline.Command{
		Name:     "sc-cerebellum",
		Short:    "Single-cell RNA-seq QC and clustering pipeline for cerebellum samples",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdQC(),
			newCmdCluster(),
			newCmdAnnotate(),
			newCmdExport(),
			newCmdRun(),
		},
	})
}
