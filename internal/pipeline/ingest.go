// Package pipeline wires a record source through the label grouper and into
// the batched writer.
//
//	src, _ := dataset.Open(root, dataset.Train)
//	res, err := pipeline.Ingest(ctx, connector, src, pipeline.Options{
//	    Limit: 1000,
//	    Write: store.WriteAllOptions{WriteOptions: store.WriteOptions{Table: "MNISTImages"}},
//	})
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/mnistsql/pkg/dataset"
	"github.com/ajitpratap0/mnistsql/pkg/grouper"
	"github.com/ajitpratap0/mnistsql/pkg/logger"
	"github.com/ajitpratap0/mnistsql/pkg/store"
)

// Options controls one ingest run.
type Options struct {
	// Limit caps records per label; zero means no cap
	Limit int
	// Labels narrows the label space; nil keeps 0..9
	Labels []int
	Write  store.WriteAllOptions
	// Rows and Cols are the image dimensions; zero keeps 28x28
	Rows, Cols int
	// ProgressInterval sets how often progress lines are logged
	ProgressInterval time.Duration
	Logger           *zap.Logger
}

// Result summarizes an ingest run.
type Result struct {
	RunID     string        `json:"run_id"`
	Consumed  int           `json:"consumed"`
	Stopped   bool          `json:"stopped"`
	Discarded int           `json:"discarded"`
	Counts    map[int]int   `json:"counts"`
	Written   int           `json:"written"`
	Duration  time.Duration `json:"duration"`
}

// Group runs the grouping stage alone with progress reporting.
func Group(ctx context.Context, src dataset.Source, opts Options) (*grouper.Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	progress := NewProgressReporter(log, "group", opts.ProgressInterval)
	progress.SetTotal(int64(src.Len()))
	progress.Start()
	defer progress.Stop()

	return grouper.Group(ctx, src, grouper.Options{
		LimitPerLabel: opts.Limit,
		Labels:        opts.Labels,
		Progress:      progress,
		Logger:        log,
	})
}

// Ingest groups src by label and writes every bucket through conn. Written
// reflects rows committed even when an error is returned.
func Ingest(ctx context.Context, conn store.Connector, src dataset.Source, opts Options) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = logger.ContextWithRun(ctx, runID, opts.Write.Table)

	base := opts.Logger
	if base == nil {
		base = zap.NewNop()
	}
	log := logger.FromContext(ctx, base)
	opts.Logger = log

	res := &Result{RunID: runID}

	grouped, err := Group(ctx, src, opts)
	if err != nil {
		return res, err
	}
	res.Consumed = grouped.Consumed
	res.Stopped = grouped.Stopped
	res.Discarded = grouped.Discarded
	res.Counts = grouped.Buckets.Counts()

	writerOpts := []store.Option{store.WithLogger(log)}
	if opts.Rows > 0 && opts.Cols > 0 {
		writerOpts = append(writerOpts, store.WithDimensions(opts.Rows, opts.Cols))
	}
	writer := store.NewBatchWriter(conn, writerOpts...)

	res.Written, err = writer.WriteAll(ctx, grouped.Buckets, opts.Write)
	res.Duration = time.Since(start)
	if err != nil {
		log.Error("ingest failed",
			zap.Int("written", res.Written),
			zap.Int("grouped", grouped.Buckets.Total()),
			zap.Error(err))
		return res, err
	}

	log.Info("ingest completed",
		zap.Int("consumed", res.Consumed),
		zap.Int("written", res.Written),
		zap.Bool("stopped_early", res.Stopped),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// Total sums Counts.
func (r *Result) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}
