// Package sql reads flow tables from relational databases.
package sql

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/pkg/errors"

	"github.com/hed1ad/flowprep/pkg/table"
)

// Reader runs a query and returns its result set as a table.
type Reader struct {
	db      *sqlx.DB
	query   string
	args    []interface{}
	timeout time.Duration
	owned   bool
}

// Option configures a Reader.
type Option func(*Reader)

// WithArgs sets the query arguments.
func WithArgs(args ...interface{}) Option {
	return func(r *Reader) {
		r.args = args
	}
}

// WithTimeout bounds the query duration.
func WithTimeout(d time.Duration) Option {
	return func(r *Reader) {
		r.timeout = d
	}
}

// NewReader creates a reader over an existing connection.
func NewReader(db *sqlx.DB, query string, opts ...Option) *Reader {
	r := &Reader{
		db:      db,
		query:   query,
		timeout: 5 * time.Minute,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Open connects to a database and creates a reader that closes the
// connection on Close. driver is a database/sql driver name such as "postgres".
func Open(driver, dsn, query string, opts ...Option) (*Reader, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", driver)
	}
	r := NewReader(db, query, opts...)
	r.owned = true
	return r, nil
}

// Read runs the query. Columns whose every non-null value is numeric become
// numeric columns; all others are text.
func (r *Reader) Read() (*table.Table, error) {
	return r.ReadContext(context.Background())
}

// ReadContext runs the query under ctx.
func (r *Reader) ReadContext(ctx context.Context) (*table.Table, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	rows, err := r.db.QueryxContext(ctx, r.query, r.args...)
	if err != nil {
		return nil, errors.Wrap(err, "query flows")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read columns")
	}

	var records [][]interface{}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		records = append(records, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rows")
	}

	return Records(columns, records)
}

// Close releases the connection if the reader opened it.
func (r *Reader) Close() error {
	if r.owned && r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Records builds a table from scanned rows. NULL is missing in both numeric
// and text columns.
func Records(columns []string, records [][]interface{}) (*table.Table, error) {
	t := table.New(len(records))

	for j, name := range columns {
		numeric := true
		num := make([]float64, len(records))
		str := make([]string, len(records))

		for i, rec := range records {
			if len(rec) != len(columns) {
				return nil, errors.Errorf("row %d has %d values, expected %d", i, len(rec), len(columns))
			}
			v, isNum, s := cell(rec[j])
			num[i] = v
			str[i] = s
			if !isNum && s != "" {
				numeric = false
			}
		}

		var err error
		if numeric {
			err = t.AddNumeric(name, num)
		} else {
			err = t.AddText(name, str)
		}
		if err != nil {
			return nil, err
		}
	}

	return t, nil
}

// cell converts a scanned value. It returns the numeric value (NaN if none),
// whether the value is numeric, and its text form ("" for NULL).
func cell(v interface{}) (float64, bool, string) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), false, ""
	case int64:
		return float64(x), true, strconv.FormatInt(x, 10)
	case float64:
		return x, true, table.FormatFloat(x)
	case bool:
		if x {
			return 1, true, "true"
		}
		return 0, true, "false"
	case []byte:
		return textCell(string(x))
	case string:
		return textCell(x)
	case time.Time:
		return math.NaN(), false, x.UTC().Format(time.RFC3339)
	default:
		return textCell(fmt.Sprint(x))
	}
}

func textCell(s string) (float64, bool, string) {
	v, ok := table.ParseFloat(s)
	return v, ok, s
}
