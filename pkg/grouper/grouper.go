// Package grouper buckets labeled records by label, with an optional
// per-label cap and early termination once every label is satisfied.
package grouper

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/mnistsql/pkg/dataset"
	"github.com/ajitpratap0/mnistsql/pkg/digits"
	"github.com/ajitpratap0/mnistsql/pkg/errors"
	"github.com/ajitpratap0/mnistsql/pkg/metrics"
)

// Progress receives one increment per record consumed from the source.
type Progress interface {
	IncrementProcessed(count int64)
}

// Options controls a grouping pass.
type Options struct {
	// LimitPerLabel caps each bucket; zero means no cap
	LimitPerLabel int
	// Labels narrows the label space; nil keeps all of 0..9
	Labels   []int
	Progress Progress
	Logger   *zap.Logger
}

// Result is the outcome of a grouping pass.
type Result struct {
	// Buckets has one entry for every active label, possibly empty
	Buckets digits.Buckets
	// Consumed counts records read from the source
	Consumed int
	// Stopped reports that reading ended because every label hit the cap
	Stopped bool
	// Discarded counts records dropped for being out of domain or over the cap
	Discarded int
}

// Group reads src and buckets its records by label.
//
// A record is discarded when its label is outside the active space or its
// bucket already holds LimitPerLabel records. When an append fills a bucket
// to the cap and every active bucket is then at the cap, reading stops
// without another call to src.Next.
func Group(ctx context.Context, src dataset.Source, opts Options) (*Result, error) {
	if opts.LimitPerLabel < 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation, "limit per label must not be negative, got %d", opts.LimitPerLabel)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	space := digits.NewLabelSpace(opts.Labels)
	limit := opts.LimitPerLabel
	res := &Result{Buckets: digits.NewBuckets(space.Labels())}

	if limit > 0 && space.Len() == 0 {
		logger.Debug("empty label space with a cap, nothing to read")
		res.Stopped = true
		return res, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rec, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, errors.Wrap(err, errors.ErrorTypeData, "failed to read record").
				WithDetail("consumed", res.Consumed)
		}
		res.Consumed++
		if opts.Progress != nil {
			opts.Progress.IncrementProcessed(1)
		}

		if !space.Contains(rec.Label) {
			res.Discarded++
			metrics.RecordsDiscarded.WithLabelValues(metrics.ReasonOutOfDomain).Inc()
			continue
		}

		bucket := res.Buckets[rec.Label]
		if limit > 0 && len(bucket) >= limit {
			res.Discarded++
			metrics.RecordsDiscarded.WithLabelValues(metrics.ReasonOverLimit).Inc()
			continue
		}

		res.Buckets[rec.Label] = append(bucket, rec)
		metrics.RecordsGrouped.WithLabelValues(metrics.LabelValue(rec.Label)).Inc()

		if limit > 0 && len(bucket)+1 == limit && allFull(res.Buckets, limit) {
			res.Stopped = true
			logger.Info("every label reached its limit, stopping early",
				zap.Int("limit_per_label", limit),
				zap.Int("consumed", res.Consumed),
				zap.Int("source_len", src.Len()))
			break
		}
	}

	logger.Debug("grouping finished",
		zap.Int("consumed", res.Consumed),
		zap.Int("grouped", res.Buckets.Total()),
		zap.Int("discarded", res.Discarded))
	return res, nil
}

func allFull(b digits.Buckets, limit int) bool {
	for _, recs := range b {
		if len(recs) < limit {
			return false
		}
	}
	return true
}
