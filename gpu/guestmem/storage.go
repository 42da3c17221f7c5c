// Package guestmem gives the device access to guest physical memory. It turns
// the guest memory spans of a resource backing into host-accessible buffers.
package guestmem

import (
	"fmt"
	"sync"
)

// Span is a range of guest physical memory.
type Span struct {
	Addr   uint64
	Length uint32
}

// Memory maps guest physical spans into host-accessible buffers.
type Memory interface {
	// MapSpans returns buffers that alias the guest memory of the spans, in
	// order. Writing into the buffers writes guest memory.
	MapSpans(spans []Span) (IOV, error)
}

// A Storage keeps the memory of the guest.
//
// The storage manages the memory in units, similar to pages. Units that are
// never touched are not allocated, so a large guest address space costs only
// what the guest actually uses.
type Storage struct {
	sync.Mutex

	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity.
func NewStorage(capacity uint64) *Storage {
	return NewStorageWithUnitSize(capacity, 4096)
}

// NewStorageWithUnitSize creates a storage with a custom unit size.
func NewStorageWithUnitSize(capacity, unitSize uint64) *Storage {
	if unitSize == 0 {
		panic("unit size must not be 0")
	}

	return &Storage{
		unitSize: unitSize,
		capacity: capacity,
		data:     make(map[uint64][]byte),
	}
}

// Capacity returns the size of the guest address space.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

func (s *Storage) createOrGetUnit(address uint64) ([]byte, error) {
	if address >= s.capacity {
		return nil, fmt.Errorf(
			"guest address 0x%x is beyond the capacity 0x%x",
			address, s.capacity)
	}

	baseAddr, _ := s.parseAddress(address)
	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit, nil
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr
	return
}

// Slices returns the unit-sized pieces that alias [address, address+length).
func (s *Storage) Slices(address, length uint64) (IOV, error) {
	s.Lock()
	defer s.Unlock()

	if address+length > s.capacity || address+length < address {
		return nil, fmt.Errorf(
			"guest range 0x%x+0x%x is beyond the capacity 0x%x",
			address, length, s.capacity)
	}

	iov := IOV{}
	currAddr := address
	end := address + length

	for currAddr < end {
		unit, err := s.createOrGetUnit(currAddr)
		if err != nil {
			return nil, err
		}

		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		chunkEnd := min(baseAddr+s.unitSize, end)
		size := chunkEnd - currAddr

		iov = append(iov, unit[inUnitAddr:inUnitAddr+size])
		currAddr += size
	}

	return iov, nil
}

// Read copies guest memory out.
func (s *Storage) Read(address, length uint64) ([]byte, error) {
	iov, err := s.Slices(address, length)
	if err != nil {
		return nil, err
	}

	res := make([]byte, length)
	iov.ReadAt(res, 0)

	return res, nil
}

// Write copies data into guest memory.
func (s *Storage) Write(address uint64, data []byte) error {
	iov, err := s.Slices(address, uint64(len(data)))
	if err != nil {
		return err
	}

	iov.WriteAt(data, 0)

	return nil
}

// MapSpans maps every span and concatenates the pieces.
func (s *Storage) MapSpans(spans []Span) (IOV, error) {
	iov := IOV{}

	for _, span := range spans {
		pieces, err := s.Slices(span.Addr, uint64(span.Length))
		if err != nil {
			return nil, err
		}

		iov = append(iov, pieces...)
	}

	return iov, nil
}
