package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/jobala/basalt/storage/disk"
)

func (f *frame) pin() {
	f.pins.Add(1)
}

func (f *frame) unpin() int32 {
	return f.pins.Add(-1)
}

func (f *frame) reset() {
	f.dirty = false
	f.pins.Store(0)
	f.pageId = disk.INVALID_PAGE_ID
	f.data = make([]byte, disk.PAGE_SIZE)
}

// The latch methods are no-ops when the pool runs in single threaded mode.
func (f *frame) rLock() {
	if f.latching {
		f.mu.RLock()
	}
}

func (f *frame) rUnlock() {
	if f.latching {
		f.mu.RUnlock()
	}
}

func (f *frame) lock() {
	if f.latching {
		f.mu.Lock()
	}
}

func (f *frame) unlock() {
	if f.latching {
		f.mu.Unlock()
	}
}

type frame struct {
	mu       sync.RWMutex
	id       int
	data     []byte
	pins     atomic.Int32
	dirty    bool
	pageId   int64
	latching bool
}
