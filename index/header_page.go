package index

import (
	"encoding/binary"

	"github.com/jobala/basalt/storage/disk"
)

// headerPage is the only entry point to the tree: it stores the root page
// id, the sole mutable field, changed only under a write latch.
type headerPage struct {
	data []byte
}

func (h headerPage) init() {
	binary.LittleEndian.PutUint32(h.data[offsetPageType:], uint32(HEADER_PAGE))
	h.setRootPageId(disk.INVALID_PAGE_ID)
}

func (h headerPage) pageType() PAGE_TYPE {
	return PAGE_TYPE(binary.LittleEndian.Uint32(h.data[offsetPageType:]))
}

func (h headerPage) rootPageId() int64 {
	return int64(int32(binary.LittleEndian.Uint32(h.data[4:])))
}

func (h headerPage) setRootPageId(pageId int64) {
	binary.LittleEndian.PutUint32(h.data[4:], uint32(int32(pageId)))
}
