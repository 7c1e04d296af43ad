package index

import (
	"encoding/binary"
)

// Every tree page starts with the same header: a 4-byte page kind tag,
// the current size and the max size, all little-endian. Leaf pages add the
// next page id at [12..16); internal pages start their entries at 12.
const (
	offsetPageType = 0
	offsetSize     = 4
	offsetMaxSize  = 8

	internalHeaderSize = 12
	leafOffsetNext     = 12
	leafHeaderSize     = 16
)

// pageView is a typed window over a frame's bytes; it never owns them.
type pageView struct {
	data []byte
}

func (p pageView) pageType() PAGE_TYPE {
	return PAGE_TYPE(binary.LittleEndian.Uint32(p.data[offsetPageType:]))
}

func (p pageView) setPageType(pageType PAGE_TYPE) {
	binary.LittleEndian.PutUint32(p.data[offsetPageType:], uint32(pageType))
}

func (p pageView) isLeafPage() bool {
	return p.pageType() == LEAF_PAGE
}

func (p pageView) getSize() int {
	return int(int32(binary.LittleEndian.Uint32(p.data[offsetSize:])))
}

func (p pageView) setSize(size int) {
	binary.LittleEndian.PutUint32(p.data[offsetSize:], uint32(int32(size)))
}

func (p pageView) incrSize(delta int) {
	p.setSize(p.getSize() + delta)
}

func (p pageView) getMaxSize() int {
	return int(int32(binary.LittleEndian.Uint32(p.data[offsetMaxSize:])))
}

func (p pageView) setMaxSize(maxSize int) {
	binary.LittleEndian.PutUint32(p.data[offsetMaxSize:], uint32(int32(maxSize)))
}

func (p pageView) getMinSize() int {
	return (p.getMaxSize() + 1) / 2
}

// Size predicates used by the tree to decide when ancestors can be
// released during a crabbing descent.
func (p pageView) isInsertSafe() bool {
	return p.getSize()+1 <= p.getMaxSize()
}

func (p pageView) isRemoveSafe() bool {
	return p.getSize()-1 >= p.getMinSize()
}

func (p pageView) sizeExceeded() bool {
	return p.getSize() > p.getMaxSize()
}

func (p pageView) sizeNotEnough() bool {
	return p.getSize() < p.getMinSize()
}
