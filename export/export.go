// Package export writes the pipeline's downstream outputs: the flat
// cluster-assignment table and the handoff bundle consumed by the interactive
// viewer and the trajectory-inference tool. Every file in the handoff bundle
// lists cells in the dataset's own order, which is the consistency contract
// those tools rely on to join barcodes, metadata, and embedding coordinates.
package export

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/cerebra-bio/scrna/encoding/mtx"
	"github.com/cerebra-bio/scrna/singlecell"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// WriteClusters writes the (barcode, cluster) table for one dataset.
func WriteClusters(ctx context.Context, path string, ds *singlecell.Dataset) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "clusters %s", path)
	}
	defer file.CloseAndReport(ctx, out, &err)

	w := tsv.NewWriter(out.Writer(ctx))
	w.WriteString("barcode")
	w.WriteString("cluster")
	if err := w.EndLine(); err != nil {
		return err
	}
	for _, c := range ds.Cells {
		w.WriteString(c.Barcode)
		w.WriteString(strconv.Itoa(c.Cluster))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	log.Printf("wrote %d cluster assignments to %s", ds.NCells(), path)
	return nil
}

// WriteHandoff writes the full handoff bundle for one dataset under dir:
// obs.tsv (per-cell metadata), embedding.tsv, and the matrix.mtx/genes.tsv/
// barcodes.tsv count triplet.
func WriteHandoff(ctx context.Context, dir string, ds *singlecell.Dataset) error {
	if ds.Embedding == nil {
		return errors.Errorf("%s: no embedding; run clustering before export", ds.Name())
	}
	// Local destinations need the directory to exist; remote (e.g. s3)
	// paths have no directories to make.
	if !strings.Contains(dir, "://") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "handoff %s", dir)
		}
	}
	if err := writeObs(ctx, file.Join(dir, "obs.tsv"), ds); err != nil {
		return err
	}
	if err := writeEmbedding(ctx, file.Join(dir, "embedding.tsv"), ds); err != nil {
		return err
	}
	if err := writeMatrix(ctx, dir, ds); err != nil {
		return err
	}
	log.Printf("wrote handoff for %s to %s", ds.Name(), dir)
	return nil
}

func writeObs(ctx context.Context, path string, ds *singlecell.Dataset) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "obs %s", path)
	}
	defer file.CloseAndReport(ctx, out, &err)

	w := tsv.NewWriter(out.Writer(ctx))
	for _, col := range []string{"barcode", "sample", "stage", "counts", "genes", "pct_mt", "pct_ribo", "cluster", "cell_type"} {
		w.WriteString(col)
	}
	if err := w.EndLine(); err != nil {
		return err
	}
	for _, c := range ds.Cells {
		w.WriteString(c.Barcode)
		w.WriteString(c.Sample)
		w.WriteString(c.Stage)
		w.WriteString(formatFloat(c.Counts))
		w.WriteString(strconv.Itoa(c.NGenes))
		w.WriteString(formatFloat(c.PctMT))
		w.WriteString(formatFloat(c.PctRibo))
		w.WriteString(strconv.Itoa(c.Cluster))
		w.WriteString(c.CellType)
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeEmbedding(ctx context.Context, path string, ds *singlecell.Dataset) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "embedding %s", path)
	}
	defer file.CloseAndReport(ctx, out, &err)

	w := tsv.NewWriter(out.Writer(ctx))
	w.WriteString("barcode")
	w.WriteString("dim1")
	w.WriteString("dim2")
	if err := w.EndLine(); err != nil {
		return err
	}
	for j, c := range ds.Cells {
		w.WriteString(c.Barcode)
		w.WriteString(formatFloat(ds.Embedding.At(j, 0)))
		w.WriteString(formatFloat(ds.Embedding.At(j, 1)))
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeMatrix(ctx context.Context, dir string, ds *singlecell.Dataset) (err error) {
	out, err := file.Create(ctx, file.Join(dir, "matrix.mtx"))
	if err != nil {
		return errors.Wrapf(err, "matrix %s", dir)
	}
	if err := mtx.Write(out.Writer(ctx), ds.X); err != nil {
		_ = out.Close(ctx)
		return err
	}
	if err := out.Close(ctx); err != nil {
		return err
	}

	genes, err := file.Create(ctx, file.Join(dir, "genes.tsv"))
	if err != nil {
		return errors.Wrapf(err, "genes %s", dir)
	}
	gw := tsv.NewWriter(genes.Writer(ctx))
	for _, g := range ds.Genes {
		gw.WriteString(g.ID)
		gw.WriteString(g.Symbol)
		if err := gw.EndLine(); err != nil {
			_ = genes.Close(ctx)
			return err
		}
	}
	if err := gw.Flush(); err != nil {
		_ = genes.Close(ctx)
		return err
	}
	if err := genes.Close(ctx); err != nil {
		return err
	}

	barcodes, err := file.Create(ctx, file.Join(dir, "barcodes.tsv"))
	if err != nil {
		return errors.Wrapf(err, "barcodes %s", dir)
	}
	bw := tsv.NewWriter(barcodes.Writer(ctx))
	for _, c := range ds.Cells {
		bw.WriteString(c.Barcode)
		if err := bw.EndLine(); err != nil {
			_ = barcodes.Close(ctx)
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = barcodes.Close(ctx)
		return err
	}
	return barcodes.Close(ctx)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
