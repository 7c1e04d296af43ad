package index

import (
	"bytes"
	"cmp"
	"encoding/binary"
)

type PAGE_TYPE = int32

const (
	INVALID_PAGE PAGE_TYPE = iota
	INTERNAL_PAGE
	LEAF_PAGE
	HEADER_PAGE
)

const HEADER_PAGE_ID = int64(0)

// Comparator orders keys; negative, zero or positive like bytes.Compare.
// Point lookups use the tree's default, range and prefix lookups may pass
// their own.
type Comparator[K any] func(a, b K) int

func Ordered[K cmp.Ordered]() Comparator[K] {
	return func(a, b K) int {
		return cmp.Compare(a, b)
	}
}

func BytesOrder() Comparator[[]byte] {
	return bytes.Compare
}

// Codec fixes the on-page width of a key or value column. Every entry in a
// tree instance occupies keys.Width + values.Width bytes.
type Codec[T any] struct {
	Width  int
	Encode func(buf []byte, v T)
	Decode func(buf []byte) T
}

func Int64Codec() Codec[int64] {
	return Codec[int64]{
		Width: 8,
		Encode: func(buf []byte, v int64) {
			binary.LittleEndian.PutUint64(buf, uint64(v))
		},
		Decode: func(buf []byte) int64 {
			return int64(binary.LittleEndian.Uint64(buf))
		},
	}
}

// RID locates a record as a page id plus a slot within that page.
type RID struct {
	PageId  int64
	SlotNum uint32
}

func RIDCodec() Codec[RID] {
	return Codec[RID]{
		Width: 12,
		Encode: func(buf []byte, rid RID) {
			binary.LittleEndian.PutUint64(buf, uint64(rid.PageId))
			binary.LittleEndian.PutUint32(buf[8:], rid.SlotNum)
		},
		Decode: func(buf []byte) RID {
			return RID{
				PageId:  int64(binary.LittleEndian.Uint64(buf)),
				SlotNum: binary.LittleEndian.Uint32(buf[8:]),
			}
		},
	}
}

// BytesCodec stores fixed-width byte-string keys, zero padded. Composite
// keys encode their columns into the width and compare with BytesOrder, or
// with a caller comparator for prefix lookups.
func BytesCodec(width int) Codec[[]byte] {
	return Codec[[]byte]{
		Width: width,
		Encode: func(buf []byte, key []byte) {
			n := copy(buf[:width], key)
			for i := n; i < width; i++ {
				buf[i] = 0
			}
		},
		Decode: func(buf []byte) []byte {
			res := make([]byte, width)
			copy(res, buf[:width])
			return res
		},
	}
}
