package index

import (
	"encoding/binary"
)

// internalPage lays out sorted {key, child page id} slots from byte 12.
// Size counts children; slot 0's key bytes are reserved and never read, so
// child 0 covers every key below the key at slot 1. The shift and merge
// routines take the parent separator explicitly instead of stashing it in
// slot 0.
type internalPage[K any] struct {
	pageView
	keys Codec[K]
}

func (p internalPage[K]) init(maxSize int) {
	p.setPageType(INTERNAL_PAGE)
	p.setSize(0)
	p.setMaxSize(maxSize)
}

func (p internalPage[K]) entrySize() int {
	return p.keys.Width + 8
}

func (p internalPage[K]) entryOffset(index int) int {
	return internalHeaderSize + index*p.entrySize()
}

func (p internalPage[K]) keyAt(index int) K {
	return p.keys.Decode(p.data[p.entryOffset(index):])
}

func (p internalPage[K]) setKeyAt(index int, key K) {
	p.keys.Encode(p.data[p.entryOffset(index):], key)
}

func (p internalPage[K]) childAt(index int) int64 {
	return int64(binary.LittleEndian.Uint64(p.data[p.entryOffset(index)+p.keys.Width:]))
}

func (p internalPage[K]) setChildAt(index int, pageId int64) {
	binary.LittleEndian.PutUint64(p.data[p.entryOffset(index)+p.keys.Width:], uint64(pageId))
}

// lastIndexLE is the child index to descend into for key: the largest i
// with keyAt(i) <= key, 0 if every key is greater.
func (p internalPage[K]) lastIndexLE(key K, cmp Comparator[K]) int {
	return lastIndexLE(p.getSize(), 1, p.keyAt, cmp, key)
}

func (p internalPage[K]) lastIndexL(key K, cmp Comparator[K]) int {
	return lastIndexL(p.getSize(), 1, p.keyAt, cmp, key)
}

func (p internalPage[K]) copyBackward(index int) {
	copy(
		p.data[p.entryOffset(index+1):p.entryOffset(p.getSize()+1)],
		p.data[p.entryOffset(index):p.entryOffset(p.getSize())],
	)
}

func (p internalPage[K]) copyForward(index int) {
	copy(
		p.data[p.entryOffset(index):p.entryOffset(p.getSize()-1)],
		p.data[p.entryOffset(index+1):p.entryOffset(p.getSize())],
	)
}

// copySecondHalfTo moves the upper half into an empty page during a split.
// The donor's key at size/2 becomes the promoted separator and is read by
// the caller before this runs; the slot's child becomes the new page's
// child 0.
func (p internalPage[K]) copySecondHalfTo(other internalPage[K]) {
	size := p.getSize()
	mid := size / 2

	other.setChildAt(0, p.childAt(mid))
	copy(
		other.data[other.entryOffset(1):other.entryOffset(size-mid)],
		p.data[p.entryOffset(mid+1):p.entryOffset(size)],
	)

	p.setSize(mid)
	other.setSize(size - mid)
}

// copyFirstNTo appends this page's first n slots to other, the left
// sibling. sep is the parent separator between other and this page; it
// becomes the key above this page's old child 0. When n < size the key of
// the new slot 0 is returned as the new separator.
func (p internalPage[K]) copyFirstNTo(n int, other internalPage[K], sep K) K {
	otherSize := other.getSize()
	copy(
		other.data[other.entryOffset(otherSize):other.entryOffset(otherSize+n)],
		p.data[p.entryOffset(0):p.entryOffset(n)],
	)
	other.setKeyAt(otherSize, sep)
	other.incrSize(n)

	var newSep K
	if n < p.getSize() {
		newSep = p.keyAt(n)
	}

	copy(
		p.data[p.entryOffset(0):p.entryOffset(p.getSize()-n)],
		p.data[p.entryOffset(n):p.entryOffset(p.getSize())],
	)
	p.incrSize(-n)

	return newSep
}

// copyLastNTo prepends this page's last n slots to other, the right
// sibling. sep is the parent separator between this page and other; it
// becomes the key above other's old child 0. The key of the first moved
// slot is returned as the new separator.
func (p internalPage[K]) copyLastNTo(n int, other internalPage[K], sep K) K {
	otherSize := other.getSize()
	copy(
		other.data[other.entryOffset(n):other.entryOffset(otherSize+n)],
		other.data[other.entryOffset(0):other.entryOffset(otherSize)],
	)
	other.setKeyAt(n, sep)
	other.incrSize(n)

	newSep := p.keyAt(p.getSize() - n)
	copy(
		other.data[other.entryOffset(0):other.entryOffset(n)],
		p.data[p.entryOffset(p.getSize()-n):p.entryOffset(p.getSize())],
	)
	p.incrSize(-n)

	return newSep
}

// insertData adds a separator and its right child at the sorted position.
func (p internalPage[K]) insertData(key K, childId int64, cmp Comparator[K]) int {
	index := p.lastIndexLE(key, cmp)
	p.copyBackward(index + 1)
	p.incrSize(1)
	p.setKeyAt(index+1, key)
	p.setChildAt(index+1, childId)
	return index + 1
}

// removeData drops the slot at index and returns its separator and child.
func (p internalPage[K]) removeData(index int) (K, int64) {
	key, childId := p.keyAt(index), p.childAt(index)
	p.copyForward(index)
	p.incrSize(-1)
	return key, childId
}
