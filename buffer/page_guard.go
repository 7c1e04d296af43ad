package buffer

// A page guard couples a frame reservation (pin) with a held latch. Basic
// guards hold only the pin, Read guards a shared latch, Write guards an
// exclusive latch. Dropping a guard releases the latch first, then gives
// the pin back; guards are not duplicable and Drop is idempotent.

func NewBasicPageGuard(frame *frame, bpm *BufferpoolManager) *BasicPageGuard {
	return &BasicPageGuard{
		PageGuard: PageGuard{
			frame: frame,
			bpm:   bpm,
		},
	}
}

func NewReadPageGuard(frame *frame, bpm *BufferpoolManager) *ReadPageGuard {
	return &ReadPageGuard{
		PageGuard: PageGuard{
			frame: frame,
			bpm:   bpm,
		},
	}
}

func NewWritePageGuard(frame *frame, bpm *BufferpoolManager) *WritePageGuard {
	return &WritePageGuard{
		PageGuard: PageGuard{
			frame: frame,
			bpm:   bpm,
		},
	}
}

func (pg *BasicPageGuard) Drop() {
	if pg == nil || pg.frame == nil {
		return
	}

	frame := pg.frame
	pg.frame = nil
	pg.bpm.releaseFrame(frame)
}

func (pg *ReadPageGuard) Drop() {
	if pg == nil || pg.frame == nil {
		return
	}

	frame := pg.frame
	pg.frame = nil

	frame.rUnlock()
	pg.bpm.releaseFrame(frame)
}

func (pg *WritePageGuard) Drop() {
	if pg == nil || pg.frame == nil {
		return
	}

	frame := pg.frame
	pg.frame = nil

	frame.unlock()
	pg.bpm.releaseFrame(frame)
}

func (pg *PageGuard) PageId() int64 {
	return pg.frame.pageId
}

func (pg *PageGuard) Exist() bool {
	return pg != nil && pg.frame != nil
}

func (pg *BasicPageGuard) GetData() []byte {
	return pg.frame.data
}

// GetDataMut marks the page dirty.
func (pg *BasicPageGuard) GetDataMut() []byte {
	pg.bpm.markDirty(pg.frame)
	return pg.frame.data
}

func (pg *ReadPageGuard) GetData() []byte {
	return pg.frame.data
}

func (pg *WritePageGuard) GetData() []byte {
	return pg.frame.data
}

// GetDataMut marks the page dirty.
func (pg *WritePageGuard) GetDataMut() []byte {
	pg.bpm.markDirty(pg.frame)
	return pg.frame.data
}

type PageGuard struct {
	frame *frame
	bpm   *BufferpoolManager
}

type BasicPageGuard struct {
	PageGuard
}

type ReadPageGuard struct {
	PageGuard
}

type WritePageGuard struct {
	PageGuard
}
