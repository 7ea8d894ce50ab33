package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/mnistsql/pkg/codec"
	"github.com/ajitpratap0/mnistsql/pkg/digits"
	"github.com/ajitpratap0/mnistsql/pkg/errors"
	"github.com/ajitpratap0/mnistsql/pkg/logger"
	"github.com/ajitpratap0/mnistsql/pkg/metrics"
	"github.com/ajitpratap0/mnistsql/pkg/observability"
)

// DefaultBatchSize is the number of rows per INSERT when none is given.
const DefaultBatchSize = 500

// WriteOptions controls how one label is written.
type WriteOptions struct {
	Table     string
	BatchSize int
	// Compress gzips each payload and sets the row's gzipped flag
	Compress bool
}

// WriteAllOptions controls WriteAll.
type WriteAllOptions struct {
	WriteOptions
	// CreateIfMissing ensures the table once before writing
	CreateIfMissing bool
}

// BatchWriter inserts records in multi-row INSERT statements.
//
// Batches are not wrapped in a transaction: a failure leaves every earlier
// batch committed. Delivery is at least once per batch, not atomic per call.
type BatchWriter struct {
	conn   Connector
	schema *SchemaManager
	logger *zap.Logger
	rows   int
	cols   int
}

// NewBatchWriter creates a writer over conn.
func NewBatchWriter(conn Connector, opts ...Option) *BatchWriter {
	o := applyOptions(opts)
	return &BatchWriter{
		conn:   conn,
		schema: NewSchemaManager(conn, opts...),
		logger: o.logger,
		rows:   o.rows,
		cols:   o.cols,
	}
}

func (w *BatchWriter) validate(opts *WriteOptions) error {
	if err := ValidateTable(opts.Table); err != nil {
		return err
	}
	if err := validateDimensions(w.rows, w.cols); err != nil {
		return err
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize < 0 {
		return errors.Newf(errors.ErrorTypeValidation, "batch size must be positive, got %d", opts.BatchSize)
	}
	if limit := w.conn.Dialect().MaxBatchSize(); opts.BatchSize > limit {
		return errors.Newf(errors.ErrorTypeValidation, "batch size %d exceeds the %s limit of %d rows per statement",
			opts.BatchSize, w.conn.Dialect().Name(), limit)
	}
	return nil
}

// WriteLabel writes records, all of which must carry label, in batches of
// opts.BatchSize and returns the number of rows written. An empty records
// slice returns 0 without opening a connection.
//
// If a batch fails the returned count is the number of rows confirmed by
// the statements that completed, and the error has type
// ErrorTypeBatchInsert with the details label, batch and written.
func (w *BatchWriter) WriteLabel(ctx context.Context, label int, records []digits.Record, opts WriteOptions) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := w.validate(&opts); err != nil {
		return 0, err
	}
	for i, rec := range records {
		if rec.Label != label {
			return 0, errors.Newf(errors.ErrorTypeData, "record %d has label %d, want %d", i, rec.Label, label)
		}
		if rec.Image.Rows != w.rows || rec.Image.Cols != w.cols || !rec.Image.Valid() {
			return 0, errors.Newf(errors.ErrorTypeData, "record %d is %dx%d with %d samples, want %dx%d",
				i, rec.Image.Rows, rec.Image.Cols, len(rec.Image.Pix), w.rows, w.cols).
				WithDetail("label", label)
		}
	}

	d := w.conn.Dialect()
	ctx = logger.ContextWithLabel(ctx, label)
	log := logger.FromContext(ctx, w.logger)
	tracer := observability.NewStoreTracer(nil, d.Name(), opts.Table)

	conn, err := w.conn.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer closeConn(conn, log)

	fullStmt := d.Insert(opts.Table, opts.BatchSize)
	args := make([]interface{}, 0, opts.BatchSize*columnsPerRow)
	written := 0
	batch := 0

	flush := func() error {
		n := len(args) / columnsPerRow
		stmt := fullStmt
		if n != opts.BatchSize {
			stmt = d.Insert(opts.Table, n)
		}
		batch++

		timer := metrics.NewTimer("insert_batch")
		err := tracer.TraceBatch(ctx, label, batch, n, func(ctx context.Context) error {
			_, err := conn.ExecContext(ctx, stmt, args...)
			return err
		})
		metrics.ObserveBatch(opts.Table, label, n, timer.Stop(), err)

		if err != nil {
			log.Error("bulk insert failed",
				zap.Int("batch", batch),
				zap.Int("rows", n),
				zap.Int("written", written),
				zap.Error(err))
			return errors.Wrap(err, errors.ErrorTypeBatchInsert, "bulk insert failed").
				WithDetail("label", label).
				WithDetail("batch", batch).
				WithDetail("written", written).
				WithDetail("table", opts.Table)
		}

		written += n
		args = args[:0]
		log.Debug("batch flushed", zap.Int("batch", batch), zap.Int("rows", n), zap.Int("written", written))
		return nil
	}

	for _, rec := range records {
		payload, gzipped, err := codec.Encode(rec.Image, opts.Compress)
		if err != nil {
			return written, err
		}
		metrics.ObservePayload(len(payload), gzipped)
		args = append(args, rec.Label, payload, gzipped)

		if len(args) == opts.BatchSize*columnsPerRow {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if len(args) > 0 {
		if err := flush(); err != nil {
			return written, err
		}
	}

	log.Info("label written", zap.Int("rows", written), zap.Int("batches", batch))
	return written, nil
}

// WriteAll writes every bucket in ascending label order and returns the
// total written. With CreateIfMissing the table is ensured first. Writing
// stops at the first failing label; the total then covers the labels
// before it plus the failing label's confirmed rows.
func (w *BatchWriter) WriteAll(ctx context.Context, buckets digits.Buckets, opts WriteAllOptions) (int, error) {
	if err := w.validate(&opts.WriteOptions); err != nil {
		return 0, err
	}
	if opts.CreateIfMissing {
		if err := w.schema.EnsureTable(ctx, opts.Table); err != nil {
			return 0, err
		}
	}

	total := 0
	for _, label := range buckets.Labels() {
		n, err := w.WriteLabel(ctx, label, buckets[label], opts.WriteOptions)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
