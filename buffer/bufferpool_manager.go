package buffer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jobala/basalt/storage/disk"
	"github.com/jobala/basalt/util"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Option func(*BufferpoolManager)

func WithLogger(logger *zap.Logger) Option {
	return func(b *BufferpoolManager) {
		b.logger = logger
	}
}

func WithMetrics(registerer prometheus.Registerer) Option {
	return func(b *BufferpoolManager) {
		b.metrics = newMetrics(registerer)
	}
}

// WithoutLatches turns every page latch into a no-op. Only for strictly
// single threaded use, e.g. the durable index wrapper.
func WithoutLatches() Option {
	return func(b *BufferpoolManager) {
		b.latching = false
	}
}

func NewBufferpoolManager(size int, replacer *lrukReplacer, diskScheduler *disk.DiskScheduler, opts ...Option) *BufferpoolManager {
	bpm := &BufferpoolManager{
		pageTable:     make(map[int64]int),
		replacer:      replacer,
		diskScheduler: diskScheduler,
		latching:      true,
		logger:        zap.NewNop(),
		metrics:       newMetrics(nil),
	}
	bpm.nextPageId.Store(1)

	for _, opt := range opts {
		opt(bpm)
	}

	frames := make([]*frame, size)
	freeFrames := make([]int, size)
	for i := 0; i < size; i++ {
		f := &frame{
			id:       i,
			pageId:   disk.INVALID_PAGE_ID,
			data:     make([]byte, disk.PAGE_SIZE),
			latching: bpm.latching,
		}

		frames[i] = f
		freeFrames[i] = i
	}
	bpm.frames = frames
	bpm.freeFrames = freeFrames

	return bpm
}

// NewPage allocates a fresh page id and returns it with a write guard on
// the zero-initialized page. The frame starts clean; writing through the
// guard marks it dirty.
func (b *BufferpoolManager) NewPage() (int64, *WritePageGuard, error) {
	pageId := b.allocatePage()

	frame, err := b.fetchFrame(pageId, false)
	if err != nil {
		return disk.INVALID_PAGE_ID, nil, err
	}

	frame.lock()
	b.logger.Debug("allocated page", zap.Int64("pageId", pageId))
	return pageId, NewWritePageGuard(frame, b), nil
}

// FetchPage returns a Basic guard, a pin with no latch.
func (b *BufferpoolManager) FetchPage(pageId int64) (*BasicPageGuard, error) {
	frame, err := b.fetchFrame(pageId, true)
	if err != nil {
		return nil, err
	}

	return NewBasicPageGuard(frame, b), nil
}

func (b *BufferpoolManager) ReadPage(pageId int64) (*ReadPageGuard, error) {
	frame, err := b.fetchFrame(pageId, true)
	if err != nil {
		return nil, err
	}

	frame.rLock()
	return NewReadPageGuard(frame, b), nil
}

// WritePage takes the exclusive latch but does not dirty the frame; the
// dirty bit is set by the guard's mutable view, so a write guard that only
// reads leaves nothing to flush.
func (b *BufferpoolManager) WritePage(pageId int64) (*WritePageGuard, error) {
	frame, err := b.fetchFrame(pageId, true)
	if err != nil {
		return nil, err
	}

	frame.lock()
	return NewWritePageGuard(frame, b), nil
}

// fetchFrame reserves a frame holding the page, pinned and marked
// non-evictable. The page latch is taken by the caller after the pool lock
// is released; the pin keeps the frame alive in between. Latching under the
// pool lock would deadlock with crabbing descents.
func (b *BufferpoolManager) fetchFrame(pageId int64, load bool) (*frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id, ok := b.pageTable[pageId]; ok {
		frame := b.frames[id]

		frame.pin()
		b.replacer.recordAccess(frame.id)
		b.replacer.setEvictable(frame.id, false)
		b.metrics.hits.Inc()

		return frame, nil
	}

	b.metrics.misses.Inc()
	frame, err := b.findFrame()
	if err != nil {
		return nil, err
	}

	delete(b.pageTable, frame.pageId)
	frame.reset()
	frame.pageId = pageId
	frame.pin()
	b.pageTable[pageId] = frame.id

	b.replacer.recordAccess(frame.id)
	b.replacer.setEvictable(frame.id, false)

	if load {
		resp := <-b.diskScheduler.Schedule(disk.NewRequest(pageId, nil, false))
		if resp.Err != nil {
			// back the frame out so it isn't left installed with garbage
			delete(b.pageTable, pageId)
			b.replacer.setEvictable(frame.id, true)
			b.replacer.remove(frame.id)
			frame.reset()
			b.freeFrames = append(b.freeFrames, frame.id)
			return nil, util.NewIOError(fmt.Sprintf("error reading page %d", pageId), resp.Err)
		}
		copy(frame.data, resp.Data)
	}

	return frame, nil
}

// findFrame prefers the free list over eviction, so a freshly reset frame
// never needs writeback.
func (b *BufferpoolManager) findFrame() (*frame, error) {
	if len(b.freeFrames) > 0 {
		id := b.freeFrames[0]
		b.freeFrames = b.freeFrames[1:]
		return b.frames[id], nil
	}

	victimId := b.replacer.evict()
	if victimId == INVALID_FRAME_ID {
		return nil, util.NewBufferpoolExhaustedError()
	}

	victim := b.frames[victimId]
	b.metrics.evictions.Inc()
	b.logger.Debug("evicting page", zap.Int64("pageId", victim.pageId), zap.Bool("dirty", victim.dirty))

	if err := b.flush(victim); err != nil {
		// reinstate the victim, the page is still dirty and must not be lost
		b.replacer.recordAccess(victimId)
		b.replacer.setEvictable(victimId, true)
		return nil, err
	}

	return victim, nil
}

// releaseFrame gives back one pin; the frame becomes evictable when the
// last pin is gone. Called by guard Drop after the latch is released.
func (b *BufferpoolManager) releaseFrame(frame *frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frame.pins.Load() <= 0 {
		panic(fmt.Sprintf("unpinning frame %d with no pins", frame.id))
	}

	if frame.unpin() == 0 {
		b.replacer.setEvictable(frame.id, true)
	}
}

func (b *BufferpoolManager) markDirty(frame *frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame.dirty = true
}

// IsDirty reports whether the page's frame has unflushed writes. A page
// that isn't resident is trivially clean.
func (b *BufferpoolManager) IsDirty(pageId int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.pageTable[pageId]
	if !ok {
		return false
	}
	return b.frames[id].dirty
}

func (b *BufferpoolManager) FlushPage(pageId int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.pageTable[pageId]
	if !ok {
		return nil
	}

	b.metrics.flushes.Inc()
	return b.flush(b.frames[id])
}

func (b *BufferpoolManager) FlushAllPages() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range b.pageTable {
		if err := b.flush(b.frames[id]); err != nil {
			return err
		}
		b.metrics.flushes.Inc()
	}

	return nil
}

// DeletePage drops an unpinned page from the pool and returns its frame to
// the free list. Deleting a pinned page is refused.
func (b *BufferpoolManager) DeletePage(pageId int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.pageTable[pageId]
	if !ok {
		return nil
	}

	frame := b.frames[id]
	if frame.pins.Load() > 0 {
		return fmt.Errorf("deleting pinned page %d", pageId)
	}

	delete(b.pageTable, pageId)
	b.replacer.remove(frame.id)
	frame.reset()
	b.freeFrames = append(b.freeFrames, frame.id)

	return nil
}

// flush writes the frame back if dirty and clears the dirty bit. On error
// the bit stays set so the next flush retries. Callers hold the pool lock.
func (b *BufferpoolManager) flush(frame *frame) error {
	if !frame.dirty {
		return nil
	}

	resp := <-b.diskScheduler.Schedule(disk.NewRequest(frame.pageId, frame.data, true))
	if resp.Err != nil {
		return util.NewIOError(fmt.Sprintf("error writing page %d", frame.pageId), resp.Err)
	}
	b.metrics.writebacks.Inc()

	frame.dirty = false
	return nil
}

func (b *BufferpoolManager) allocatePage() int64 {
	return b.nextPageId.Add(1) - 1
}

// GetNextPageId and SetNextPageId expose the allocator counter so the
// durable variant can persist and restore it across reopens.
func (b *BufferpoolManager) GetNextPageId() int64 {
	return b.nextPageId.Load()
}

func (b *BufferpoolManager) SetNextPageId(pageId int64) {
	b.nextPageId.Store(pageId)
}

type BufferpoolManager struct {
	mu            sync.Mutex
	frames        []*frame
	pageTable     map[int64]int
	nextPageId    atomic.Int64
	diskScheduler *disk.DiskScheduler
	replacer      *lrukReplacer
	freeFrames    []int
	latching      bool
	logger        *zap.Logger
	metrics       *metrics
}
