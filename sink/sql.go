package sink

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/zpeek/checkpoint/types"
	"github.com/dselans/zpeek/validate"
)

var (
	validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	columns = []string{
		"path", "size", "hash", "kind", "error", "error_offset", "cmf", "flg",
		"level", "final", "block_type", "duplicate_of", "scanned_at",
	}
)

// SQLSink inserts results into a postgres or mysql table
type SQLSink struct {
	db     *sqlx.DB
	insert string
	log    *logrus.Entry
}

func NewSQLSink(ctx context.Context, driver, dsn, table string) (*SQLSink, error) {
	if _, err := createTableQuery(driver, table); err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(connectCtx, driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to connect to %s", driver)
	}

	s, err := newSQLSink(ctx, db, table)
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// newSQLSink creates table on db if needed. The dialect follows db's
// driver name.
func newSQLSink(ctx context.Context, db *sqlx.DB, table string) (*SQLSink, error) {
	ddl, err := createTableQuery(db.DriverName(), table)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, errors.Wrapf(err, "unable to create table '%s'", table)
	}

	return &SQLSink{
		db:     db,
		insert: insertQuery(table),
		log: logrus.WithFields(logrus.Fields{
			"pkg":    "sink",
			"driver": db.DriverName(),
			"table":  table,
		}),
	}, nil
}

func (s *SQLSink) Write(ctx context.Context, e *types.Entry) error {
	if err := validate.Entry(e); err != nil {
		return errors.Wrap(err, "refusing to write invalid entry")
	}

	if _, err := s.db.NamedExecContext(ctx, s.insert, e); err != nil {
		return errors.Wrapf(err, "unable to insert entry for '%s'", e.Path)
	}

	s.log.Debugf("inserted entry for '%s'", e.Path)

	return nil
}

func (s *SQLSink) Close() error {
	return s.db.Close()
}

func createTableQuery(driver, table string) (string, error) {
	if !validTable.MatchString(table) {
		return "", errors.Errorf("invalid table name '%s'", table)
	}

	var text, ts string

	switch driver {
	case "postgres":
		text, ts = "TEXT", "TIMESTAMPTZ"
	case "mysql":
		text, ts = "TEXT", "DATETIME(6)"
	default:
		return "", errors.Errorf("unsupported sql driver '%s'", driver)
	}

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	path %[2]s NOT NULL,
	size BIGINT NOT NULL,
	hash %[2]s,
	kind %[2]s NOT NULL,
	error %[2]s,
	error_offset BIGINT NOT NULL,
	cmf SMALLINT NOT NULL,
	flg SMALLINT NOT NULL,
	level %[2]s,
	final BOOLEAN NOT NULL,
	block_type %[2]s,
	duplicate_of %[2]s,
	scanned_at %[3]s NOT NULL
)`, table, text, ts), nil
}

func insertQuery(table string) string {
	named := make([]string, len(columns))
	for i, c := range columns {
		named[i] = ":" + c
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(named, ", "))
}
