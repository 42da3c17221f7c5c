package datarecording

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fatih/structs"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBRecorder stores each table as a collection of a fresh database.
type MongoDBRecorder struct {
	tableSet

	mu     sync.Mutex
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoDBRecorder connects to the MongoDB server at uri.
func NewMongoDBRecorder(uri string) *MongoDBRecorder {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		log.Panic(err)
	}

	dbName := "vgpu_" + xid.New().String()
	log.Printf("Recording into MongoDB database: %s\n", dbName)

	r := &MongoDBRecorder{
		tableSet: newTableSet(defaultBatchSize),
		client:   client,
		db:       client.Database(dbName),
	}

	atexit.Register(func() { r.Flush() })

	return r
}

// CreateTable registers a collection. MongoDB creates it on first insert.
func (r *MongoDBRecorder) CreateTable(tableName string, sampleEntry any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.add(tableName, sampleEntry)
}

// InsertData buffers an entry.
func (r *MongoDBRecorder) InsertData(tableName string, entry any) {
	full := func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()

		return r.buffer(tableName, entry)
	}()

	if full {
		r.Flush()
	}
}

// ListTables returns the collections registered so far.
func (r *MongoDBRecorder) ListTables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.names()
}

// documents turns entries into documents keyed by field name.
func documents(entries []any) []any {
	docs := make([]any, 0, len(entries))
	for _, entry := range entries {
		docs = append(docs, structs.Map(entry))
	}

	return docs
}

// Flush inserts the buffered entries.
func (r *MongoDBRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drain(func(name string, entries []any) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := r.db.Collection(name).InsertMany(ctx, documents(entries))
		if err != nil {
			log.Panic(err)
		}
	})
}

// Close flushes and disconnects.
func (r *MongoDBRecorder) Close() {
	r.Flush()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := r.client.Disconnect(ctx)
	if err != nil {
		log.Printf("close recorder: %v", err)
	}
}
