// Package datarecording stores rows describing a device run (commands,
// fences, presented frames, trace tasks) into a database.
package datarecording

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fatih/structs"
)

// DataRecorder is a backend that can record and store data
type DataRecorder interface {
	// CreateTable creates a new table with the fields of sampleEntry as
	// columns. sampleEntry must be a struct of scalar fields.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers an entry of the type the table was created with.
	InsertData(tableName string, entry any)

	// ListTables returns the names of the tables created so far.
	ListTables() []string

	// Flush writes all the buffered entries into the database.
	Flush()

	// Close flushes and releases the database.
	Close()
}

const defaultBatchSize = 100000

type table struct {
	structType reflect.Type
	entries    []any
}

// tableSet holds the buffered entries of every table. Backends embed it and
// implement how a batch reaches their database.
type tableSet struct {
	tables     map[string]*table
	order      []string
	batchSize  int
	entryCount int
}

func newTableSet(batchSize int) tableSet {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return tableSet{
		tables:    make(map[string]*table),
		batchSize: batchSize,
	}
}

func (s *tableSet) add(tableName string, sampleEntry any) {
	err := checkStructFields(sampleEntry)
	if err != nil {
		panic(err)
	}

	if _, exists := s.tables[tableName]; exists {
		panic(fmt.Sprintf("table %s already exists", tableName))
	}

	s.tables[tableName] = &table{structType: reflect.TypeOf(sampleEntry)}
	s.order = append(s.order, tableName)
}

// buffer appends an entry and tells if the batch is full.
func (s *tableSet) buffer(tableName string, entry any) bool {
	t, exists := s.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != t.structType {
		panic(fmt.Sprintf("table %s stores %s, got %T",
			tableName, t.structType, entry))
	}

	t.entries = append(t.entries, entry)
	s.entryCount++

	return s.entryCount >= s.batchSize
}

// drain calls write for every table with buffered entries, in creation
// order, and empties the buffers.
func (s *tableSet) drain(write func(name string, entries []any)) {
	if s.entryCount == 0 {
		return
	}

	for _, name := range s.order {
		t := s.tables[name]
		if len(t.entries) == 0 {
			continue
		}

		write(name, t.entries)
		t.entries = nil
	}

	s.entryCount = 0
}

func (s *tableSet) names() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)

	return names
}

func isAllowedType(kind reflect.Kind) bool {
	switch kind {
	case
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
		reflect.Float32,
		reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func checkStructFields(entry any) error {
	t := reflect.TypeOf(entry)
	if t == nil || t.Kind() != reflect.Struct {
		return errors.New("entry must be a struct")
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !isAllowedType(field.Type.Kind()) {
			return fmt.Errorf("field %s of %s has unsupported type %s",
				field.Name, t, field.Type)
		}
	}

	return nil
}

type column struct {
	Name string
	Kind reflect.Kind
}

// columns lists the exported fields of a sample entry.
func columns(sampleEntry any) []column {
	var cols []column
	for _, f := range structs.Fields(sampleEntry) {
		cols = append(cols, column{Name: f.Name(), Kind: f.Kind()})
	}

	return cols
}

func values(entry any) []any {
	return structs.Values(entry)
}
