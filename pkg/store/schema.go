package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/mnistsql/pkg/errors"
	"github.com/ajitpratap0/mnistsql/pkg/logger"
	"github.com/ajitpratap0/mnistsql/pkg/observability"
)

// SchemaManager creates the image table and its label index.
type SchemaManager struct {
	conn   Connector
	logger *zap.Logger
}

// NewSchemaManager creates a schema manager over conn.
func NewSchemaManager(conn Connector, opts ...Option) *SchemaManager {
	o := applyOptions(opts)
	return &SchemaManager{conn: conn, logger: o.logger}
}

// EnsureTable creates table and its label index unless the table already
// exists. Calling it repeatedly is safe. Two processes creating the same
// table at once may both attempt the DDL; the loser's error is ignored when
// the table turns out to exist afterwards. Run it once before starting
// concurrent writers.
func (m *SchemaManager) EnsureTable(ctx context.Context, table string) (err error) {
	if err := ValidateTable(table); err != nil {
		return err
	}
	d := m.conn.Dialect()
	log := logger.FromContext(ctx, m.logger).With(zap.String("table", table))

	ctx, span := observability.NewStoreTracer(nil, d.Name(), table).StartSpan(ctx, "ensure_table")
	defer func() { observability.End(span, err) }()

	conn, err := m.conn.Open(ctx)
	if err != nil {
		return err
	}
	defer closeConn(conn, log)

	for _, stmt := range d.CreateTable(table) {
		if _, execErr := conn.ExecContext(ctx, stmt); execErr != nil {
			exists, checkErr := tableExists(ctx, conn, d, table)
			if checkErr == nil && exists {
				log.Warn("create table failed but the table exists, assuming a concurrent creator",
					zap.Error(execErr))
				return nil
			}
			return errors.Wrap(execErr, errors.ErrorTypeSchema, "failed to create table").
				WithDetail("table", table).
				WithDetail("dialect", d.Name())
		}
	}

	log.Debug("table ensured", zap.String("index", IndexName(table)))
	return nil
}

// Exists reports whether table exists.
func (m *SchemaManager) Exists(ctx context.Context, table string) (bool, error) {
	if err := ValidateTable(table); err != nil {
		return false, err
	}
	conn, err := m.conn.Open(ctx)
	if err != nil {
		return false, err
	}
	defer closeConn(conn, m.logger)

	return tableExists(ctx, conn, m.conn.Dialect(), table)
}

func tableExists(ctx context.Context, conn Conn, d *Dialect, table string) (bool, error) {
	query, args := d.Exists(table)
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to check table existence").
			WithDetail("table", table)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan table count")
		}
	}
	if err := rows.Err(); err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeQuery, "failed to check table existence")
	}
	return n > 0, nil
}
