package ekg

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// LoaderFunc resolves a descriptor to its samples.
type LoaderFunc func(Descriptor) (*Recording, error)

// ComparisonRow is the outcome for one recording in a comparison. Exactly one
// of Summary and Err is set.
type ComparisonRow struct {
	Descriptor Descriptor
	Summary    *Summary
	Err        error
}

// CompareOptions tunes a comparison batch.
type CompareOptions struct {
	Age          int
	Params       PeakParams
	MinHeartRate float64
	// Workers bounds concurrent loads. Zero selects GOMAXPROCS.
	Workers int
}

// Compare loads and summarizes each recording concurrently. Rows come back
// in the order of descs. A failing recording only fails its own row; once
// ctx is done the rows not yet started carry ctx.Err().
func Compare(ctx context.Context, descs []Descriptor, load LoaderFunc, opts CompareOptions) []ComparisonRow {
	rows := make([]ComparisonRow, len(descs))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, desc := range descs {
		i, desc := i, desc
		rows[i].Descriptor = desc
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				rows[i].Err = err
				return nil
			}
			summary, err := summarizeOne(desc, load, opts)
			if err != nil {
				rows[i].Err = err
				return nil
			}
			rows[i].Summary = &summary
			return nil
		})
	}
	_ = g.Wait()

	return rows
}

func summarizeOne(desc Descriptor, load LoaderFunc, opts CompareOptions) (Summary, error) {
	rec, err := load(desc)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(rec, opts.Age, opts.Params, opts.MinHeartRate)
}
