package index

import (
	"encoding/binary"

	"github.com/jobala/basalt/storage/disk"
)

// leafPage lays out sorted {key, value} entries from byte 16, after the
// common header and the next page id. Keys are unique.
type leafPage[K, V any] struct {
	pageView
	keys   Codec[K]
	values Codec[V]
}

func (p leafPage[K, V]) init(maxSize int) {
	p.setPageType(LEAF_PAGE)
	p.setSize(0)
	p.setMaxSize(maxSize)
	p.setNextPageId(disk.INVALID_PAGE_ID)
}

func (p leafPage[K, V]) nextPageId() int64 {
	return int64(int32(binary.LittleEndian.Uint32(p.data[leafOffsetNext:])))
}

func (p leafPage[K, V]) setNextPageId(pageId int64) {
	binary.LittleEndian.PutUint32(p.data[leafOffsetNext:], uint32(int32(pageId)))
}

func (p leafPage[K, V]) entrySize() int {
	return p.keys.Width + p.values.Width
}

func (p leafPage[K, V]) entryOffset(index int) int {
	return leafHeaderSize + index*p.entrySize()
}

func (p leafPage[K, V]) keyAt(index int) K {
	return p.keys.Decode(p.data[p.entryOffset(index):])
}

func (p leafPage[K, V]) setKeyAt(index int, key K) {
	p.keys.Encode(p.data[p.entryOffset(index):], key)
}

func (p leafPage[K, V]) valueAt(index int) V {
	return p.values.Decode(p.data[p.entryOffset(index)+p.keys.Width:])
}

func (p leafPage[K, V]) setValueAt(index int, val V) {
	p.values.Encode(p.data[p.entryOffset(index)+p.keys.Width:], val)
}

func (p leafPage[K, V]) setDataAt(index int, key K, val V) {
	p.setKeyAt(index, key)
	p.setValueAt(index, val)
}

func (p leafPage[K, V]) lastIndexLE(key K, cmp Comparator[K]) int {
	return lastIndexLE(p.getSize(), 0, p.keyAt, cmp, key)
}

func (p leafPage[K, V]) lastIndexL(key K, cmp Comparator[K]) int {
	return lastIndexL(p.getSize(), 0, p.keyAt, cmp, key)
}

func (p leafPage[K, V]) firstIndexGE(key K, cmp Comparator[K]) int {
	return firstIndexGE(p.getSize(), 0, p.keyAt, cmp, key)
}

func (p leafPage[K, V]) indexE(key K, cmp Comparator[K]) int {
	return indexE(p.getSize(), 0, p.keyAt, cmp, key)
}

// copyBackward opens a slot at index by moving entries [index, size) one
// slot to the right.
func (p leafPage[K, V]) copyBackward(index int) {
	copy(
		p.data[p.entryOffset(index+1):p.entryOffset(p.getSize()+1)],
		p.data[p.entryOffset(index):p.entryOffset(p.getSize())],
	)
}

// copyForward closes the slot at index by moving entries [index+1, size)
// one slot to the left.
func (p leafPage[K, V]) copyForward(index int) {
	copy(
		p.data[p.entryOffset(index):p.entryOffset(p.getSize()-1)],
		p.data[p.entryOffset(index+1):p.entryOffset(p.getSize())],
	)
}

// copySecondHalfTo moves the upper half into an empty page during a split.
func (p leafPage[K, V]) copySecondHalfTo(other leafPage[K, V]) {
	size := p.getSize()
	mid := size / 2

	copy(
		other.data[other.entryOffset(0):other.entryOffset(size-mid)],
		p.data[p.entryOffset(mid):p.entryOffset(size)],
	)

	p.setSize(mid)
	other.setSize(size - mid)
}

// copyFirstNTo appends this page's first n entries to other, the left
// sibling, and shifts the rest down.
func (p leafPage[K, V]) copyFirstNTo(n int, other leafPage[K, V]) {
	otherSize := other.getSize()
	copy(
		other.data[other.entryOffset(otherSize):other.entryOffset(otherSize+n)],
		p.data[p.entryOffset(0):p.entryOffset(n)],
	)
	other.incrSize(n)

	copy(
		p.data[p.entryOffset(0):p.entryOffset(p.getSize()-n)],
		p.data[p.entryOffset(n):p.entryOffset(p.getSize())],
	)
	p.incrSize(-n)
}

// copyLastNTo prepends this page's last n entries to other, the right
// sibling.
func (p leafPage[K, V]) copyLastNTo(n int, other leafPage[K, V]) {
	otherSize := other.getSize()
	copy(
		other.data[other.entryOffset(n):other.entryOffset(otherSize+n)],
		other.data[other.entryOffset(0):other.entryOffset(otherSize)],
	)
	other.incrSize(n)

	copy(
		other.data[other.entryOffset(0):other.entryOffset(n)],
		p.data[p.entryOffset(p.getSize()-n):p.entryOffset(p.getSize())],
	)
	p.incrSize(-n)
}

// insertData places the pair at its sorted position and returns the index,
// -1 if the key already exists.
func (p leafPage[K, V]) insertData(key K, val V, cmp Comparator[K]) int {
	index := p.lastIndexLE(key, cmp)
	if index != -1 && cmp(p.keyAt(index), key) == 0 {
		return -1
	}

	p.copyBackward(index + 1)
	p.incrSize(1)
	p.setDataAt(index+1, key, val)
	return index + 1
}

// removeData deletes the key's entry and returns its index, -1 if absent.
func (p leafPage[K, V]) removeData(key K, cmp Comparator[K]) int {
	index := p.indexE(key, cmp)
	if index == -1 {
		return -1
	}

	p.removeDataAt(index)
	return index
}

func (p leafPage[K, V]) removeDataAt(index int) (K, V) {
	key, val := p.keyAt(index), p.valueAt(index)
	p.copyForward(index)
	p.incrSize(-1)
	return key, val
}
