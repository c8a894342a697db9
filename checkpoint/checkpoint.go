// Package checkpoint persists dataset collections at pipeline milestones
// (post-filter, post-cluster) so an interrupted or parameter-tweaked session
// can resume without redoing ingestion and QC. Snapshots are recordio files
// with zstd compression: one gob record per dataset, a version header, and a
// gob trailer carrying the milestone name and the pipeline options in effect.
// Files are only guaranteed readable by the pipeline revision that wrote
// them.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/gob"

	"github.com/cerebra-bio/scrna/singlecell"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/james-bowman/sparse"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	versionHeader = "scrnaversion"
	version       = "SCRNA_V1"
)

// Trailer describes the snapshot as a whole.
type Trailer struct {
	// Milestone is the pipeline stage the snapshot was taken at, e.g.
	// "post-filter" or "post-cluster".
	Milestone string
	Opts      singlecell.PipelineOpts
}

// record is the gob-friendly form of one Dataset. The sparse matrix is
// flattened to triplets and the embedding to a row-major slice, since neither
// type gob-encodes directly.
type record struct {
	Stage string
	Genes []singlecell.Gene
	Cells []singlecell.CellMeta

	R, C       int
	Rows, Cols []int
	Data       []float64

	EmbeddingRows int
	Embedding     []float64
}

func toRecord(ds *singlecell.Dataset) record {
	rec := record{Stage: ds.Stage, Genes: ds.Genes, Cells: ds.Cells}
	rec.R, rec.C = ds.X.Dims()
	ds.X.DoNonZero(func(i, j int, v float64) {
		rec.Rows = append(rec.Rows, i)
		rec.Cols = append(rec.Cols, j)
		rec.Data = append(rec.Data, v)
	})
	if ds.Embedding != nil {
		r, c := ds.Embedding.Dims()
		rec.EmbeddingRows = r
		rec.Embedding = make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				rec.Embedding = append(rec.Embedding, ds.Embedding.At(i, j))
			}
		}
	}
	return rec
}

func fromRecord(rec record) *singlecell.Dataset {
	coo := sparse.NewCOO(rec.R, rec.C, rec.Rows, rec.Cols, rec.Data)
	ds := &singlecell.Dataset{
		Stage: rec.Stage,
		Genes: rec.Genes,
		Cells: rec.Cells,
		X:     coo.ToCSR(),
	}
	if rec.EmbeddingRows > 0 {
		ds.Embedding = mat.NewDense(rec.EmbeddingRows, len(rec.Embedding)/rec.EmbeddingRows, rec.Embedding)
	}
	return ds
}

// Write snapshots the datasets to path.
func Write(ctx context.Context, path string, trailer Trailer, datasets []*singlecell.Dataset) (err error) {
	recordiozstd.Init()
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "checkpoint %s", path)
	}
	defer file.CloseAndReport(ctx, out, &err)

	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(versionHeader, version)
	w.AddHeader(recordio.KeyTrailer, true)
	for _, ds := range datasets {
		var b bytes.Buffer
		if err := gob.NewEncoder(&b).Encode(toRecord(ds)); err != nil {
			return errors.Wrapf(err, "checkpoint %s: encoding %s", path, ds.Name())
		}
		w.Append(b.Bytes())
	}
	var tb bytes.Buffer
	if err := gob.NewEncoder(&tb).Encode(trailer); err != nil {
		return errors.Wrapf(err, "checkpoint %s: encoding trailer", path)
	}
	w.SetTrailer(tb.Bytes())
	if err := w.Finish(); err != nil {
		return errors.Wrapf(err, "checkpoint %s", path)
	}
	return nil
}

// Read restores a snapshot written by Write, validating every dataset's
// dimensional invariant on the way in.
func Read(ctx context.Context, path string) (datasets []*singlecell.Dataset, trailer Trailer, err error) {
	recordiozstd.Init()
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, trailer, errors.Wrapf(err, "checkpoint %s", path)
	}
	defer file.CloseAndReport(ctx, in, &err)

	r := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	found := false
	for _, kv := range r.Header() {
		if kv.Key == versionHeader {
			if v, ok := kv.Value.(string); !ok || v != version {
				return nil, trailer, errors.Errorf("checkpoint %s: version %v, want %s (rewrite the checkpoint with this pipeline revision)", path, kv.Value, version)
			}
			found = true
			break
		}
	}
	if !found {
		return nil, trailer, errors.Errorf("checkpoint %s: not a pipeline checkpoint (missing %s header)", path, versionHeader)
	}
	if err := gob.NewDecoder(bytes.NewReader(r.Trailer())).Decode(&trailer); err != nil {
		return nil, trailer, errors.Wrapf(err, "checkpoint %s: decoding trailer", path)
	}
	for r.Scan() {
		var rec record
		if err := gob.NewDecoder(bytes.NewReader(r.Get().([]byte))).Decode(&rec); err != nil {
			return nil, trailer, errors.Wrapf(err, "checkpoint %s: decoding record %d", path, len(datasets))
		}
		ds := fromRecord(rec)
		if err := ds.Validate(); err != nil {
			return nil, trailer, errors.Wrapf(err, "checkpoint %s", path)
		}
		datasets = append(datasets, ds)
	}
	if err := r.Err(); err != nil {
		return nil, trailer, errors.Wrapf(err, "checkpoint %s", path)
	}
	return datasets, trailer, nil
}
