package datarecording

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"reflect"
	"strings"
	"sync"

	// Need to use MySQL connections.
	_ "github.com/go-sql-driver/mysql"
	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

type dialect struct {
	driver     string
	columnType func(kind reflect.Kind) string
}

var sqliteDialect = dialect{
	driver: "sqlite3",
	columnType: func(kind reflect.Kind) string {
		switch kind {
		case reflect.String:
			return "TEXT"
		case reflect.Float32, reflect.Float64:
			return "REAL"
		default:
			return "INTEGER"
		}
	},
}

var mysqlDialect = dialect{
	driver: "mysql",
	columnType: func(kind reflect.Kind) string {
		switch kind {
		case reflect.String:
			return "VARCHAR(255)"
		case reflect.Bool:
			return "BOOLEAN"
		case reflect.Float32, reflect.Float64:
			return "DOUBLE"
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
			reflect.Uint64:
			return "BIGINT UNSIGNED"
		default:
			return "BIGINT"
		}
	},
}

// sqlWriter writes data into a database/sql database.
type sqlWriter struct {
	*sql.DB
	tableSet

	mu      sync.Mutex
	dialect dialect
}

// New creates a recorder that writes into the SQLite file path.sqlite3. An
// empty path picks a unique name.
func New(path string) DataRecorder {
	if path == "" {
		path = "vgpu_recording_" + xid.New().String()
	}

	filename := path + ".sqlite3"

	_, err := os.Stat(filename)
	if err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	fmt.Fprintf(os.Stderr, "Database created for recording: %s\n", filename)

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	return newSQLWriter(db, sqliteDialect)
}

// NewWithDB creates a recorder over an open SQLite database.
func NewWithDB(db *sql.DB) DataRecorder {
	return newSQLWriter(db, sqliteDialect)
}

// NewMySQL connects to the MySQL server of dsn (user:pass@tcp(host:port)/)
// and records into a fresh database.
func NewMySQL(dsn string) DataRecorder {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		panic(err)
	}

	dbName := "vgpu_" + xid.New().String()
	log.Printf("Recording into MySQL database: %s\n", dbName)

	w := newSQLWriter(db, mysqlDialect)
	w.mustExecute("CREATE DATABASE " + dbName)
	w.mustExecute("USE " + dbName)

	return w
}

func newSQLWriter(db *sql.DB, d dialect) *sqlWriter {
	w := &sqlWriter{
		DB:       db,
		tableSet: newTableSet(defaultBatchSize),
		dialect:  d,
	}

	// USE only applies to one pooled connection.
	if d.driver == "mysql" {
		db.SetMaxOpenConns(1)
	}

	atexit.Register(func() { w.Flush() })

	return w
}

func (w *sqlWriter) CreateTable(tableName string, sampleEntry any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.add(tableName, sampleEntry)
	w.mustExecute(createTableSQL(tableName, columns(sampleEntry), w.dialect))
}

func createTableSQL(tableName string, cols []column, d dialect) string {
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, c.Name+" "+d.columnType(c.Kind))
	}

	return "CREATE TABLE " + tableName +
		" (\n\t" + strings.Join(defs, ",\n\t") + "\n);"
}

func insertSQL(tableName string, numColumns int) string {
	marks := make([]string, numColumns)
	for i := range marks {
		marks[i] = "?"
	}

	return "INSERT INTO " + tableName +
		" VALUES (" + strings.Join(marks, ", ") + ")"
}

func (w *sqlWriter) InsertData(tableName string, entry any) {
	full := func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()

		return w.buffer(tableName, entry)
	}()

	if full {
		w.Flush()
	}
}

func (w *sqlWriter) ListTables() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.names()
}

func (w *sqlWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.entryCount == 0 {
		return
	}

	tx, err := w.Begin()
	if err != nil {
		panic(err)
	}

	w.drain(func(name string, entries []any) {
		stmt, err := tx.Prepare(insertSQL(name, len(values(entries[0]))))
		if err != nil {
			panic(err)
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err := stmt.Exec(values(entry)...)
			if err != nil {
				panic(err)
			}
		}
	})

	err = tx.Commit()
	if err != nil {
		panic(err)
	}
}

func (w *sqlWriter) Close() {
	w.Flush()

	err := w.DB.Close()
	if err != nil {
		log.Printf("close recorder: %v", err)
	}
}

func (w *sqlWriter) mustExecute(query string) sql.Result {
	res, err := w.Exec(query)
	if err != nil {
		fmt.Printf("Failed to execute: %s\n", query)
		panic(err)
	}

	return res
}
