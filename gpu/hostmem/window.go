// Package hostmem models the guest-visible host memory window of the device.
// Blob allocations are installed into the window as subregions. Other host
// subsystems may hold references to a subregion, so removing one only
// finishes once the last reference drops.
package hostmem

import (
	"fmt"
	"sort"
	"sync"
)

// Window is the guest-visible host memory window.
type Window struct {
	mu         sync.Mutex
	size       uint64
	subregions map[uint64]*Subregion
}

// NewWindow creates a window of the given size in bytes.
func NewWindow(size uint64) *Window {
	return &Window{
		size:       size,
		subregions: make(map[uint64]*Subregion),
	}
}

// Size returns the size of the window.
func (w *Window) Size() uint64 {
	return w.size
}

// Add installs data as a subregion of size bytes at offset. Size may be
// larger than data when the subregion is rounded up to a page.
func (w *Window) Add(offset, size uint64, data []byte) (*Subregion, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if size == 0 || offset+size > w.size || offset+size < offset {
		return nil, fmt.Errorf(
			"subregion 0x%x+0x%x does not fit the 0x%x window",
			offset, size, w.size)
	}

	for _, s := range w.subregions {
		if offset < s.offset+s.size && s.offset < offset+size {
			return nil, fmt.Errorf(
				"subregion 0x%x+0x%x overlaps 0x%x+0x%x",
				offset, size, s.offset, s.size)
		}
	}

	s := &Subregion{
		window:  w,
		offset:  offset,
		size:    size,
		data:    data,
		enabled: true,
	}
	w.subregions[offset] = s

	return s, nil
}

// Lookup finds the enabled subregion that contains addr.
func (w *Window) Lookup(addr uint64) (*Subregion, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, s := range w.subregions {
		if s.enabled && addr >= s.offset && addr < s.offset+s.size {
			return s, true
		}
	}

	return nil, false
}

// Subregions returns the installed subregions ordered by offset.
func (w *Window) Subregions() []*Subregion {
	w.mu.Lock()
	defer w.mu.Unlock()

	list := make([]*Subregion, 0, len(w.subregions))
	for _, s := range w.subregions {
		list = append(list, s)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].offset < list[j].offset
	})

	return list
}

// Remove disables the subregion and detaches it from the window. If nobody
// else references it, it is freed at once and Remove returns true; onFree is
// then not called. Otherwise onFree is called later, on the goroutine that
// drops the last reference.
func (w *Window) Remove(s *Subregion, onFree func()) bool {
	w.mu.Lock()
	if w.subregions[s.offset] == s {
		delete(w.subregions, s.offset)
	}
	w.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removed {
		panic("subregion removed twice")
	}

	s.enabled = false
	s.removed = true

	if s.refs == 0 {
		s.freed = true
		return true
	}

	s.onFree = onFree

	return false
}

// Subregion is a piece of host memory visible to the guest.
type Subregion struct {
	mu     sync.Mutex
	window *Window

	offset  uint64
	size    uint64
	data    []byte
	refs    int
	enabled bool
	removed bool
	freed   bool
	onFree  func()
}

// Offset returns where the subregion sits in the window.
func (s *Subregion) Offset() uint64 {
	return s.offset
}

// Size returns the size of the subregion.
func (s *Subregion) Size() uint64 {
	return s.size
}

// Bytes returns the host memory behind the subregion.
func (s *Subregion) Bytes() []byte {
	return s.data
}

// Ref records that another subsystem uses the subregion.
func (s *Subregion) Ref() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.freed {
		panic("referencing a freed subregion")
	}

	s.refs++
}

// Unref drops a reference. Dropping the last reference of a removed
// subregion frees it and calls the free callback.
func (s *Subregion) Unref() {
	s.mu.Lock()

	if s.refs == 0 {
		s.mu.Unlock()
		panic("subregion reference count underflow")
	}

	s.refs--

	var onFree func()
	if s.refs == 0 && s.removed && !s.freed {
		s.freed = true
		onFree = s.onFree
		s.onFree = nil
	}

	s.mu.Unlock()

	if onFree != nil {
		onFree()
	}
}

// Refs returns the number of outstanding references.
func (s *Subregion) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refs
}

// Freed tells if the subregion has been released.
func (s *Subregion) Freed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.freed
}
