package index

import (
	"fmt"

	"github.com/jobala/basalt/buffer"
	"github.com/jobala/basalt/storage/disk"
)

// IndexIterator walks the leaf chain in key order. It holds at most one
// read guard at a time and is not snapshot consistent: writes landing
// between leaf hops are visible. Iterators compare by (pageId, index) and
// every end iterator compares equal.
type IndexIterator[K, V any] struct {
	tree   *BplusTree[K, V]
	pageId int64
	index  int
	guard  *buffer.ReadPageGuard
}

func newIndexIterator[K, V any](tree *BplusTree[K, V], pageId int64, index int) (*IndexIterator[K, V], error) {
	it := &IndexIterator[K, V]{tree: tree, pageId: pageId, index: index}

	if pageId != disk.INVALID_PAGE_ID {
		guard, err := tree.bpm.ReadPage(pageId)
		if err != nil {
			return nil, err
		}
		it.guard = guard
	}

	return it, nil
}

func (it *IndexIterator[K, V]) IsEnd() bool {
	return it.pageId == disk.INVALID_PAGE_ID
}

func (it *IndexIterator[K, V]) Key() K {
	if it.IsEnd() {
		panic("reading key from iterator past the end")
	}
	return it.tree.asLeaf(it.guard.GetData()).keyAt(it.index)
}

func (it *IndexIterator[K, V]) Value() V {
	if it.IsEnd() {
		panic("reading value from iterator past the end")
	}
	return it.tree.asLeaf(it.guard.GetData()).valueAt(it.index)
}

// Next advances within the leaf; at the end of a leaf it drops the current
// guard and follows the sibling chain.
func (it *IndexIterator[K, V]) Next() error {
	if it.IsEnd() {
		panic("advancing iterator past the end")
	}

	leaf := it.tree.asLeaf(it.guard.GetData())
	if it.index+1 < leaf.getSize() {
		it.index += 1
		return nil
	}

	nextPid := leaf.nextPageId()
	it.guard.Drop()
	it.guard = nil
	it.index = 0
	it.pageId = nextPid

	if nextPid == disk.INVALID_PAGE_ID {
		return nil
	}

	guard, err := it.tree.bpm.ReadPage(nextPid)
	if err != nil {
		it.pageId = disk.INVALID_PAGE_ID
		return fmt.Errorf("error fetching next leaf %d: %w", nextPid, err)
	}
	it.guard = guard
	return nil
}

func (it *IndexIterator[K, V]) Equals(other *IndexIterator[K, V]) bool {
	if it.IsEnd() || other.IsEnd() {
		return it.IsEnd() && other.IsEnd()
	}
	return it.pageId == other.pageId && it.index == other.index
}

// Drop releases the iterator's guard early; IsEnd stays usable.
func (it *IndexIterator[K, V]) Drop() {
	if it.guard != nil {
		it.guard.Drop()
		it.guard = nil
	}
	it.pageId = disk.INVALID_PAGE_ID
}

// Begin positions at the first entry of the leftmost leaf.
func (b *BplusTree[K, V]) Begin() (*IndexIterator[K, V], error) {
	pageId, err := b.GetRootPageId()
	if err != nil {
		return nil, err
	}
	if pageId == disk.INVALID_PAGE_ID {
		return b.End(), nil
	}

	guard, err := b.bpm.ReadPage(pageId)
	if err != nil {
		return nil, err
	}
	for !(pageView{guard.GetData()}).isLeafPage() {
		pageId = b.asInternal(guard.GetData()).childAt(0)

		nextGuard, err := b.bpm.ReadPage(pageId)
		if err != nil {
			guard.Drop()
			return nil, err
		}
		guard.Drop()
		guard = nextGuard
	}

	size := b.asLeaf(guard.GetData()).getSize()
	guard.Drop()
	if size == 0 {
		return b.End(), nil
	}
	return newIndexIterator(b, pageId, 0)
}

// BeginAt positions at the first entry whose key is >= key.
func (b *BplusTree[K, V]) BeginAt(key K) (*IndexIterator[K, V], error) {
	pageId, guard, err := b.descendToLeaf(key, b.cmp, false)
	if err != nil {
		return nil, err
	}
	if guard == nil {
		return b.End(), nil
	}

	leaf := b.asLeaf(guard.GetData())
	index := leaf.firstIndexGE(key, b.cmp)
	if index >= leaf.getSize() {
		nextPid := leaf.nextPageId()
		guard.Drop()
		if nextPid == disk.INVALID_PAGE_ID {
			return b.End(), nil
		}
		return newIndexIterator(b, nextPid, 0)
	}

	guard.Drop()
	return newIndexIterator(b, pageId, index)
}

// Find positions at the exact key, End if absent.
func (b *BplusTree[K, V]) Find(key K) (*IndexIterator[K, V], error) {
	pageId, guard, err := b.descendToLeaf(key, b.cmp, false)
	if err != nil {
		return nil, err
	}
	if guard == nil {
		return b.End(), nil
	}

	leaf := b.asLeaf(guard.GetData())
	index := leaf.indexE(key, b.cmp)
	guard.Drop()
	if index == -1 {
		return b.End(), nil
	}
	return newIndexIterator(b, pageId, index)
}

// First positions at the first entry equal to key under the given
// comparator, for prefix seeks over composite keys.
func (b *BplusTree[K, V]) First(key K, cmp Comparator[K]) (*IndexIterator[K, V], error) {
	pageId, guard, err := b.descendToLeaf(key, cmp, true)
	if err != nil {
		return nil, err
	}
	if guard == nil {
		return b.End(), nil
	}

	leaf := b.asLeaf(guard.GetData())
	index := leaf.firstIndexGE(key, cmp)
	if index < leaf.getSize() {
		matched := cmp(leaf.keyAt(index), key) == 0
		guard.Drop()
		if !matched {
			return b.End(), nil
		}
		return newIndexIterator(b, pageId, index)
	}

	// the first match can only be the head of the next leaf
	nextPid := leaf.nextPageId()
	guard.Drop()
	if nextPid == disk.INVALID_PAGE_ID {
		return b.End(), nil
	}

	nextGuard, err := b.bpm.ReadPage(nextPid)
	if err != nil {
		return nil, err
	}
	nextLeaf := b.asLeaf(nextGuard.GetData())
	matched := nextLeaf.getSize() > 0 && cmp(nextLeaf.keyAt(0), key) == 0
	nextGuard.Drop()
	if !matched {
		return b.End(), nil
	}
	return newIndexIterator(b, nextPid, 0)
}

func (b *BplusTree[K, V]) End() *IndexIterator[K, V] {
	return &IndexIterator[K, V]{tree: b, pageId: disk.INVALID_PAGE_ID}
}

// descendToLeaf walks read guards down to the leaf that may hold the first
// entry matching key under cmp. With strict set the descent stays left of
// separators equal to key, so prefix matches spanning leaves are found from
// their first occurrence. A nil guard means an empty tree.
func (b *BplusTree[K, V]) descendToLeaf(key K, cmp Comparator[K], strict bool) (int64, *buffer.ReadPageGuard, error) {
	var pageId int64
	guard, err := b.getRootGuardRead(&pageId)
	if err != nil {
		return disk.INVALID_PAGE_ID, nil, err
	}
	if guard == nil {
		return disk.INVALID_PAGE_ID, nil, nil
	}

	for !(pageView{guard.GetData()}).isLeafPage() {
		internal := b.asInternal(guard.GetData())
		if strict {
			pageId = internal.childAt(internal.lastIndexL(key, cmp))
		} else {
			pageId = internal.childAt(internal.lastIndexLE(key, cmp))
		}

		nextGuard, err := b.bpm.ReadPage(pageId)
		if err != nil {
			guard.Drop()
			return disk.INVALID_PAGE_ID, nil, err
		}
		guard.Drop()
		guard = nextGuard
	}

	return pageId, guard, nil
}
