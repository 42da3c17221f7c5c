package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// QueryParams narrows and orders a query. Where and OrderBy are SQL
// fragments without their keywords, such as "Kind = ?" and "rowid".
type QueryParams struct {
	Where string
	Args  []any

	// Limit of 0 returns every row. Offset applies only with a limit.
	Limit  int
	Offset int

	OrderBy string
}

// DataReader reads back what a recorder stored.
type DataReader interface {
	// MapTable tells the reader which struct a table's rows decode into.
	// Columns without a field of the same name are skipped.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the tables present in the recording, sorted.
	ListTables() []string

	// Query returns pointers to the mapped struct for the matching rows, and
	// the number of rows matching without the limit.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	Close() error
}

type sqliteReader struct {
	db      *sql.DB
	entries map[string]reflect.Type
}

// NewReader opens a SQLite recording for reading.
func NewReader(dbFilename string) DataReader {
	db, err := sql.Open("sqlite3", "file:"+dbFilename+"?mode=ro")
	if err != nil {
		panic(err)
	}

	return NewReaderWithDB(db)
}

// NewReaderWithDB reads a recording through an open SQLite handle.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		db:      db,
		entries: make(map[string]reflect.Type),
	}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	t := reflect.TypeOf(sampleEntry)
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("table %s: entries must be structs, got %s",
			tableName, t))
	}

	r.entries[tableName] = t
}

func (r *sqliteReader) ListTables() []string {
	rows, err := r.db.Query(
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil
	}
	defer rows.Close()

	var tables []string

	for rows.Next() {
		var name string
		if rows.Scan(&name) == nil {
			tables = append(tables, name)
		}
	}

	return tables
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	entry, ok := r.entries[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("table %s is not mapped", tableName)
	}

	var total int

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+tableName+where(params),
		params.Args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, selectQuery(tableName, params),
		params.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results, err := scanEntries(rows, entry)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", tableName, err)
	}

	return results, total, nil
}

func where(params QueryParams) string {
	if params.Where == "" {
		return ""
	}

	return " WHERE " + params.Where
}

func selectQuery(tableName string, params QueryParams) string {
	var q strings.Builder

	q.WriteString("SELECT * FROM ")
	q.WriteString(tableName)
	q.WriteString(where(params))

	if params.OrderBy != "" {
		q.WriteString(" ORDER BY " + params.OrderBy)
	}

	if params.Limit > 0 {
		fmt.Fprintf(&q, " LIMIT %d OFFSET %d", params.Limit, params.Offset)
	}

	return q.String()
}

func scanEntries(rows *sql.Rows, entry reflect.Type) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []any

	for rows.Next() {
		ptr := reflect.New(entry)
		targets := make([]any, len(columns))

		for i, col := range columns {
			field := ptr.Elem().FieldByName(col)
			if field.IsValid() && field.CanSet() {
				targets[i] = field.Addr().Interface()
				continue
			}

			targets[i] = new(any)
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		results = append(results, ptr.Interface())
	}

	return results, rows.Err()
}

func (r *sqliteReader) Close() error {
	return r.db.Close()
}
