package store

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/mnistsql/pkg/config"
	"github.com/ajitpratap0/mnistsql/pkg/errors"
)

// columnsPerRow is the number of bound parameters per inserted row.
const columnsPerRow = 3

// Dialect renders the SQL each supported database needs. Table names are
// validated before they reach any method, so they are interpolated after
// quoting.
type Dialect struct {
	name   string
	driver string
	// schema qualifies SQL Server object names
	schema string
	// maxParams is the bound parameter ceiling of one statement
	maxParams   int
	placeholder func(n int) string
	quote       func(ident string) string
	topOne      bool
}

func questionMark(int) string { return "?" }

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver, schema string) (*Dialect, error) {
	name, err := config.NormalizeDriver(driver)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "unknown dialect")
	}
	if schema != "" {
		if err := config.ValidateTableName(schema); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid schema name")
		}
	}

	switch name {
	case config.DriverSQLServer:
		if schema == "" {
			schema = "dbo"
		}
		return &Dialect{
			name:   name,
			driver: "sqlserver",
			schema: schema,
			// sp_executesql reserves slots of the 2100 parameter limit
			maxParams:   2099,
			placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) },
			quote:       func(s string) string { return "[" + s + "]" },
			topOne:      true,
		}, nil
	case config.DriverPostgres:
		return &Dialect{
			name:        name,
			driver:      "pgx",
			maxParams:   65535,
			placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
			quote:       func(s string) string { return `"` + s + `"` },
		}, nil
	case config.DriverMySQL:
		return &Dialect{
			name:        name,
			driver:      "mysql",
			maxParams:   65535,
			placeholder: questionMark,
			quote:       func(s string) string { return "`" + s + "`" },
		}, nil
	default:
		return &Dialect{
			name:        config.DriverSQLite,
			driver:      "sqlite",
			maxParams:   32766,
			placeholder: questionMark,
			quote:       func(s string) string { return `"` + s + `"` },
		}, nil
	}
}

// Name returns the canonical dialect name.
func (d *Dialect) Name() string { return d.name }

// DriverName returns the database/sql driver name.
func (d *Dialect) DriverName() string { return d.driver }

// MaxBatchSize is the largest number of rows one INSERT may carry.
func (d *Dialect) MaxBatchSize() int { return d.maxParams / columnsPerRow }

// Table returns the quoted, schema-qualified table name.
func (d *Dialect) Table(table string) string {
	if d.schema != "" {
		return d.quote(d.schema) + "." + d.quote(table)
	}
	return d.quote(table)
}

// IndexName returns the name of the label index for table.
func IndexName(table string) string {
	return "IX_" + table + "_Label"
}

// CreateTable returns the statements that create table and its label index
// when they do not exist. Each statement is executed on its own.
func (d *Dialect) CreateTable(table string) []string {
	t := d.Table(table)
	idx := d.quote(IndexName(table))

	switch d.name {
	case config.DriverSQLServer:
		return []string{fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
BEGIN
    CREATE TABLE %s (
        id INT IDENTITY(1,1) PRIMARY KEY,
        label TINYINT NOT NULL,
        image VARBINARY(MAX) NOT NULL,
        gzipped BIT NOT NULL DEFAULT 0,
        created_at DATETIME2 DEFAULT SYSUTCDATETIME()
    );
    CREATE INDEX %s ON %s(label);
END`, t, t, idx, t)}
	case config.DriverPostgres:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    label SMALLINT NOT NULL CHECK (label >= 0),
    image BYTEA NOT NULL,
    gzipped BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP DEFAULT (now() AT TIME ZONE 'utc')
)`, t),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (label)`, idx, t),
		}
	case config.DriverMySQL:
		return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    label TINYINT UNSIGNED NOT NULL,
    image LONGBLOB NOT NULL,
    gzipped BOOLEAN NOT NULL DEFAULT FALSE,
    created_at DATETIME(6) DEFAULT (UTC_TIMESTAMP(6)),
    INDEX %s (label)
)`, t, idx)}
	default:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    label INTEGER NOT NULL CHECK (label >= 0 AND label <= 255),
    image BLOB NOT NULL,
    gzipped BOOLEAN NOT NULL DEFAULT 0,
    created_at TEXT DEFAULT (strftime('%%Y-%%m-%%d %%H:%%M:%%f', 'now'))
)`, t),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (label)`, idx, t),
		}
	}
}

// Exists returns a query yielding the number of tables named table.
func (d *Dialect) Exists(table string) (string, []interface{}) {
	switch d.name {
	case config.DriverSQLServer:
		return `SELECT COUNT(*) FROM sys.objects WHERE object_id = OBJECT_ID(@p1) AND type = N'U'`,
			[]interface{}{d.Table(table)}
	case config.DriverPostgres:
		return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`,
			[]interface{}{table}
	case config.DriverMySQL:
		return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`,
			[]interface{}{table}
	default:
		return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
			[]interface{}{table}
	}
}

// Insert returns a multi-row INSERT for rows rows of (label, image, gzipped).
func (d *Dialect) Insert(table string, rows int) string {
	var b strings.Builder
	b.Grow(64 + rows*16)
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Table(table))
	b.WriteString(" (label, image, gzipped) VALUES ")
	n := 1
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < columnsPerRow; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// SelectOne returns the query for Reader.GetOne. With byID the single
// argument is the id; with byLabel it is the label; otherwise there are no
// arguments and the first row by id is returned.
func (d *Dialect) SelectOne(table string, byID, byLabel bool) string {
	t := d.Table(table)
	where := ""
	switch {
	case byID:
		where = " WHERE id = " + d.placeholder(1)
	case byLabel:
		where = " WHERE label = " + d.placeholder(1)
	}

	if d.topOne {
		return "SELECT TOP 1 id, label, image, gzipped FROM " + t + where + " ORDER BY id"
	}
	return "SELECT id, label, image, gzipped FROM " + t + where + " ORDER BY id LIMIT 1"
}

// CountByLabel returns the grouped count query.
func (d *Dialect) CountByLabel(table string) string {
	return "SELECT label, COUNT(*) FROM " + d.Table(table) + " GROUP BY label ORDER BY label"
}

// ValidateTable rejects names that cannot be used unquoted.
func ValidateTable(table string) error {
	if err := config.ValidateTableName(table); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "invalid table").WithDetail("table", table)
	}
	return nil
}
