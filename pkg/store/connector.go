// Package store persists digit records to SQL tables and reads them back.
//
// Every logical call (ensuring the schema, writing one label, one read)
// opens its own connection through a Connector and releases it before
// returning, on success and on error alike.
package store

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/mnistsql/pkg/config"
	"github.com/ajitpratap0/mnistsql/pkg/digits"
	"github.com/ajitpratap0/mnistsql/pkg/errors"
)

// Conn is one open database connection.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	Close() error
}

// Connector opens connections for a single dialect.
type Connector interface {
	Open(ctx context.Context) (Conn, error)
	Dialect() *Dialect
}

// SQLConnector opens database/sql handles limited to one connection.
type SQLConnector struct {
	dialect     *Dialect
	dsn         string
	connTimeout time.Duration
	logger      *zap.Logger
}

// NewSQLConnector resolves the dialect and DSN from cfg. The settings are
// read once; later changes to cfg have no effect.
func NewSQLConnector(cfg config.DatabaseConfig, logger *zap.Logger) (*SQLConnector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialect, err := DialectFor(cfg.Driver, cfg.Schema)
	if err != nil {
		return nil, err
	}
	dsn, err := cfg.ConnectionString()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to build connection string")
	}

	return &SQLConnector{
		dialect:     dialect,
		dsn:         dsn,
		connTimeout: 30 * time.Second,
		logger: logger.With(
			zap.String("dialect", dialect.Name()),
			zap.String("server", cfg.Server),
			zap.String("database", cfg.Database),
		),
	}, nil
}

// Dialect implements Connector.
func (c *SQLConnector) Dialect() *Dialect {
	return c.dialect
}

// Open implements Connector. The returned handle holds at most one
// connection and must be closed by the caller.
func (c *SQLConnector) Open(ctx context.Context) (Conn, error) {
	db, err := sql.Open(c.dialect.DriverName(), c.dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open database").
			WithDetail("dialect", c.dialect.Name())
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, c.connTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to database").
			WithDetail("dialect", c.dialect.Name())
	}

	if c.dialect.Name() == config.DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to configure sqlite")
		}
	}

	c.logger.Debug("connection opened")
	return db, nil
}

// options shared by the schema manager, writer and reader.
type options struct {
	logger *zap.Logger
	rows   int
	cols   int
}

// Option configures a SchemaManager, BatchWriter or Reader.
type Option func(*options)

// WithLogger sets the logger; zap.NewNop() when unset.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDimensions sets the image dimensions rows are validated and decoded
// against; 28x28 when unset. Non-positive dimensions make every write and
// read fail with ErrorTypeValidation before a connection is opened.
func WithDimensions(rows, cols int) Option {
	return func(o *options) {
		o.rows = rows
		o.cols = cols
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), rows: digits.Rows, cols: digits.Cols}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// closeConn releases conn, logging rather than masking the caller's error.
func closeConn(conn Conn, logger *zap.Logger) {
	if err := conn.Close(); err != nil {
		logger.Warn("failed to close connection", zap.Error(err))
	}
}

func validateDimensions(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return errors.Newf(errors.ErrorTypeValidation, "invalid image dimensions %dx%d", rows, cols)
	}
	return nil
}
