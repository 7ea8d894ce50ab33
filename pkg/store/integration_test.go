package store

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/mnistsql/pkg/config"
	"github.com/ajitpratap0/mnistsql/pkg/digits"
	"github.com/ajitpratap0/mnistsql/pkg/testutil"
)

// serverSuite runs the writer and reader against a live server.
type serverSuite struct {
	testutil.IntegrationTestSuite
	conn *SQLConnector
}

func (s *serverSuite) SetupSuite() {
	s.IntegrationTestSuite.SetupSuite()
	conn, err := NewSQLConnector(s.Database, testutil.TestLogger(s.T()))
	s.Require().NoError(err)
	s.conn = conn
}

func (s *serverSuite) TearDownSuite() {
	if s.conn != nil {
		if db, err := s.conn.Open(s.Context()); err == nil {
			_, _ = db.ExecContext(s.Context(), "DROP TABLE "+s.conn.Dialect().Table(s.Table))
			_ = db.Close()
		}
	}
	s.IntegrationTestSuite.TearDownSuite()
}

func (s *serverSuite) TestRoundTrip() {
	ctx := s.Context()
	schema := NewSchemaManager(s.conn)
	s.Require().NoError(schema.EnsureTable(ctx, s.Table))
	s.Require().NoError(schema.EnsureTable(ctx, s.Table))

	buckets := digits.NewBuckets([]int{0, 1})
	for i := 0; i < 5; i++ {
		buckets[i%2] = append(buckets[i%2], digits.Record{Label: i % 2, Image: testutil.Digit(s.T(), digits.Rows, digits.Cols, i)})
	}

	w := NewBatchWriter(s.conn)
	n, err := w.WriteAll(ctx, buckets, WriteAllOptions{WriteOptions: WriteOptions{Table: s.Table, BatchSize: 2, Compress: true}})
	s.Require().NoError(err)
	s.Equal(5, n)

	r := NewReader(s.conn)
	counts, err := r.CountByLabel(ctx, s.Table)
	s.Require().NoError(err)
	s.Equal(map[int]int{0: 3, 1: 2}, counts)

	row, found, err := r.GetOne(ctx, s.Table, ByLabel(1))
	s.Require().NoError(err)
	s.Require().True(found)
	s.True(buckets[1][0].Image.Equal(row.Image))

	_, found, err = r.GetOne(ctx, s.Table, ByID(-1))
	s.Require().NoError(err)
	s.False(found)
}

func runServerSuite(t *testing.T, driver string) {
	s := &serverSuite{}
	s.Database = testutil.ServerDatabase(t, driver)
	suite.Run(t, s)
}

func TestSQLServerIntegration(t *testing.T) { runServerSuite(t, config.DriverSQLServer) }
func TestPostgresIntegration(t *testing.T)  { runServerSuite(t, config.DriverPostgres) }
func TestMySQLIntegration(t *testing.T)     { runServerSuite(t, config.DriverMySQL) }
