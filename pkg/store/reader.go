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

// StoredImage is one decoded row.
type StoredImage struct {
	ID      int64
	Label   int
	Image   digits.Image
	Gzipped bool
}

// Record returns the row as a labeled record.
func (s StoredImage) Record() digits.Record {
	return digits.Record{Label: s.Label, Image: s.Image}
}

// Query selects the row GetOne returns. ID takes precedence over Label;
// with neither set the first row by id is returned.
type Query struct {
	ID    *int64
	Label *int
}

// ByID returns a query for one row id.
func ByID(id int64) Query { return Query{ID: &id} }

// ByLabel returns a query for the first row with label.
func ByLabel(label int) Query { return Query{Label: &label} }

// Reader fetches and decodes stored rows.
type Reader struct {
	conn   Connector
	logger *zap.Logger
	rows   int
	cols   int
}

// NewReader creates a reader over conn.
func NewReader(conn Connector, opts ...Option) *Reader {
	o := applyOptions(opts)
	return &Reader{conn: conn, logger: o.logger, rows: o.rows, cols: o.cols}
}

// GetOne returns the row selected by q. The boolean is false, with a nil
// error, when no row matches. Payloads are decoded with the row's own
// gzipped flag; a payload of the wrong size is ErrorTypeCorruptPayload.
func (r *Reader) GetOne(ctx context.Context, table string, q Query) (img StoredImage, found bool, err error) {
	if err := ValidateTable(table); err != nil {
		return StoredImage{}, false, err
	}
	if err := validateDimensions(r.rows, r.cols); err != nil {
		return StoredImage{}, false, err
	}
	d := r.conn.Dialect()
	log := logger.FromContext(ctx, r.logger).With(zap.String("table", table))

	ctx, span := observability.NewStoreTracer(nil, d.Name(), table).StartSpan(ctx, "get_one")
	defer func() {
		observability.End(span, err)
		switch {
		case err != nil:
			metrics.RowsRead.WithLabelValues("error").Inc()
		case found:
			metrics.RowsRead.WithLabelValues("found").Inc()
		default:
			metrics.RowsRead.WithLabelValues("not_found").Inc()
		}
	}()

	var args []interface{}
	switch {
	case q.ID != nil:
		args = append(args, *q.ID)
	case q.Label != nil:
		args = append(args, *q.Label)
	}
	query := d.SelectOne(table, q.ID != nil, q.ID == nil && q.Label != nil)

	conn, err := r.conn.Open(ctx)
	if err != nil {
		return StoredImage{}, false, err
	}
	defer closeConn(conn, log)

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return StoredImage{}, false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to query image").
			WithDetail("table", table)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return StoredImage{}, false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read image row")
		}
		log.Debug("no matching row")
		return StoredImage{}, false, nil
	}

	var (
		row     StoredImage
		payload []byte
	)
	if err := rows.Scan(&row.ID, &row.Label, &payload, &row.Gzipped); err != nil {
		return StoredImage{}, false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan image row")
	}

	row.Image, err = codec.Decode(payload, row.Gzipped, r.rows, r.cols)
	if err != nil {
		if !errors.IsType(err, errors.ErrorTypeCorruptPayload) {
			return StoredImage{}, false, err
		}
		return StoredImage{}, false, errors.Wrap(err, errors.ErrorTypeCorruptPayload, "failed to decode stored image").
			WithDetail("id", row.ID).
			WithDetail("table", table)
	}
	return row, true, nil
}

// CountByLabel returns the number of stored rows per label.
func (r *Reader) CountByLabel(ctx context.Context, table string) (map[int]int, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	d := r.conn.Dialect()

	conn, err := r.conn.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer closeConn(conn, r.logger)

	rows, err := conn.QueryContext(ctx, d.CountByLabel(table))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to count rows").WithDetail("table", table)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var label, n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan count")
		}
		counts[label] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to count rows")
	}
	return counts, nil
}
