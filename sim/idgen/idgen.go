// Package idgen generates identifiers for traced commands and recording
// sessions.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// Generator produces unique string identifiers.
type Generator interface {
	Generate() string
}

// NewSequential returns a generator whose first emitted ID is "1". Runs that
// replay the same command stream get the same IDs.
func NewSequential() Generator {
	return &sequentialGenerator{}
}

// NewGlobal returns a generator of globally unique IDs, suitable for naming
// recording sessions that share a database.
func NewGlobal() Generator {
	return globalGenerator{}
}

type sequentialGenerator struct {
	next uint64
}

func (g *sequentialGenerator) Generate() string {
	return strconv.FormatUint(atomic.AddUint64(&g.next, 1), 10)
}

type globalGenerator struct{}

func (globalGenerator) Generate() string {
	return xid.New().String()
}
