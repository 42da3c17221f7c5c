package datarecording

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/tebeka/atexit"
)

// ClickHouseRecorder batches entries into a ClickHouse server through the
// native protocol.
type ClickHouseRecorder struct {
	tableSet

	conn clickhouse.Conn
	mu   sync.Mutex
}

// ClickHouseOptions locates a ClickHouse server.
type ClickHouseOptions struct {
	Addr      string
	Database  string
	Username  string
	Password  string
	BatchSize int
}

// NewClickHouseRecorder connects to a ClickHouse server.
func NewClickHouseRecorder(opts ClickHouseOptions) *ClickHouseRecorder {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      30 * time.Second,
		MaxOpenConns:     5,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		panic(fmt.Errorf("failed to connect to ClickHouse: %w", err))
	}

	if err := conn.Ping(context.Background()); err != nil {
		panic(fmt.Errorf("failed to ping ClickHouse: %w", err))
	}

	log.Printf("Recording into ClickHouse at %s/%s\n", opts.Addr, opts.Database)

	r := &ClickHouseRecorder{
		tableSet: newTableSet(opts.BatchSize),
		conn:     conn,
	}

	atexit.Register(func() { r.Flush() })

	return r
}

func clickHouseType(kind reflect.Kind) string {
	switch kind {
	case reflect.Bool:
		return "Bool"
	case reflect.Int8:
		return "Int8"
	case reflect.Int16:
		return "Int16"
	case reflect.Int32:
		return "Int32"
	case reflect.Int, reflect.Int64:
		return "Int64"
	case reflect.Uint8:
		return "UInt8"
	case reflect.Uint16:
		return "UInt16"
	case reflect.Uint32:
		return "UInt32"
	case reflect.Uint, reflect.Uint64:
		return "UInt64"
	case reflect.Float32:
		return "Float32"
	case reflect.Float64:
		return "Float64"
	default:
		return "String"
	}
}

func clickHouseCreateSQL(tableName string, cols []column) string {
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, c.Name+" "+clickHouseType(c.Kind))
	}

	order := "tuple()"
	if len(cols) > 0 {
		order = cols[0].Name
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n\t%s\n) ENGINE = MergeTree()\nORDER BY %s",
		tableName, strings.Join(defs, ",\n\t"), order)
}

// CreateTable creates a MergeTree table ordered by the first column.
func (r *ClickHouseRecorder) CreateTable(tableName string, sampleEntry any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.add(tableName, sampleEntry)

	err := r.conn.Exec(context.Background(),
		clickHouseCreateSQL(tableName, columns(sampleEntry)))
	if err != nil {
		panic(fmt.Errorf("failed to create table %s: %w", tableName, err))
	}
}

// InsertData buffers an entry.
func (r *ClickHouseRecorder) InsertData(tableName string, entry any) {
	full := func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()

		return r.buffer(tableName, entry)
	}()

	if full {
		r.Flush()
	}
}

// ListTables returns the tables created so far.
func (r *ClickHouseRecorder) ListTables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.names()
}

// Flush sends one batch per table.
func (r *ClickHouseRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()

	r.drain(func(name string, entries []any) {
		batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+name)
		if err != nil {
			panic(fmt.Errorf("failed to prepare batch for %s: %w", name, err))
		}

		for _, entry := range entries {
			err = batch.Append(values(entry)...)
			if err != nil {
				panic(fmt.Errorf("failed to append to %s: %w", name, err))
			}
		}

		err = batch.Send()
		if err != nil {
			panic(fmt.Errorf("failed to send batch for %s: %w", name, err))
		}
	})
}

// Close flushes and closes the connection.
func (r *ClickHouseRecorder) Close() {
	r.Flush()

	err := r.conn.Close()
	if err != nil {
		log.Printf("close recorder: %v", err)
	}
}
