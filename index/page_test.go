package index

import (
	"testing"

	"github.com/jobala/basalt/storage/disk"
	"github.com/stretchr/testify/assert"
)

func newTestLeaf(maxSize int) leafPage[int64, int64] {
	p := leafPage[int64, int64]{
		pageView: pageView{make([]byte, disk.PAGE_SIZE)},
		keys:     Int64Codec(),
		values:   Int64Codec(),
	}
	p.init(maxSize)
	return p
}

func newTestInternal(maxSize int) internalPage[int64] {
	p := internalPage[int64]{
		pageView: pageView{make([]byte, disk.PAGE_SIZE)},
		keys:     Int64Codec(),
	}
	p.init(maxSize)
	return p
}

func leafKeys(p leafPage[int64, int64]) []int64 {
	res := []int64{}
	for i := 0; i < p.getSize(); i++ {
		res = append(res, p.keyAt(i))
	}
	return res
}

func internalEntries(p internalPage[int64]) ([]int64, []int64) {
	keys := []int64{}
	children := []int64{p.childAt(0)}
	for i := 1; i < p.getSize(); i++ {
		keys = append(keys, p.keyAt(i))
		children = append(children, p.childAt(i))
	}
	return keys, children
}

func TestLeafPage(t *testing.T) {
	cmp := Ordered[int64]()

	t.Run("insert keeps entries sorted and rejects duplicates", func(t *testing.T) {
		leaf := newTestLeaf(4)

		assert.Equal(t, 0, leaf.insertData(5, 50, cmp))
		assert.Equal(t, 0, leaf.insertData(1, 10, cmp))
		assert.Equal(t, 2, leaf.insertData(9, 90, cmp))

		assert.Equal(t, -1, leaf.insertData(5, 555, cmp))

		assert.Equal(t, []int64{1, 5, 9}, leafKeys(leaf))
		assert.Equal(t, int64(50), leaf.valueAt(1))
	})

	t.Run("search primitives", func(t *testing.T) {
		leaf := newTestLeaf(8)
		for _, k := range []int64{1, 3, 5, 7} {
			leaf.insertData(k, k, cmp)
		}

		assert.Equal(t, 2, leaf.lastIndexLE(5, cmp))
		assert.Equal(t, 2, leaf.lastIndexLE(6, cmp))
		assert.Equal(t, -1, leaf.lastIndexLE(0, cmp))

		assert.Equal(t, 1, leaf.lastIndexL(5, cmp))
		assert.Equal(t, 3, leaf.lastIndexL(100, cmp))

		assert.Equal(t, 2, leaf.indexE(5, cmp))
		assert.Equal(t, -1, leaf.indexE(6, cmp))
	})

	t.Run("remove closes the gap", func(t *testing.T) {
		leaf := newTestLeaf(4)
		for _, k := range []int64{1, 3, 5} {
			leaf.insertData(k, k*10, cmp)
		}

		assert.Equal(t, 1, leaf.removeData(3, cmp))
		assert.Equal(t, []int64{1, 5}, leafKeys(leaf))
		assert.Equal(t, int64(50), leaf.valueAt(1))

		assert.Equal(t, -1, leaf.removeData(3, cmp))
	})

	t.Run("split moves the upper half", func(t *testing.T) {
		leaf := newTestLeaf(4)
		other := newTestLeaf(4)
		for _, k := range []int64{1, 2, 3, 4, 5} {
			leaf.insertData(k, k, cmp)
		}

		leaf.copySecondHalfTo(other)

		assert.Equal(t, []int64{1, 2}, leafKeys(leaf))
		assert.Equal(t, []int64{3, 4, 5}, leafKeys(other))
	})

	t.Run("shifting entries between siblings", func(t *testing.T) {
		left := newTestLeaf(8)
		right := newTestLeaf(8)
		for _, k := range []int64{1, 2, 3, 4} {
			left.insertData(k, k, cmp)
		}
		for _, k := range []int64{10, 11} {
			right.insertData(k, k, cmp)
		}

		left.copyLastNTo(1, right)
		assert.Equal(t, []int64{1, 2, 3}, leafKeys(left))
		assert.Equal(t, []int64{4, 10, 11}, leafKeys(right))

		right.copyFirstNTo(2, left)
		assert.Equal(t, []int64{1, 2, 3, 4, 10}, leafKeys(left))
		assert.Equal(t, []int64{11}, leafKeys(right))
	})

	t.Run("next page id round trips", func(t *testing.T) {
		leaf := newTestLeaf(4)
		assert.Equal(t, disk.INVALID_PAGE_ID, leaf.nextPageId())

		leaf.setNextPageId(42)
		assert.Equal(t, int64(42), leaf.nextPageId())
	})
}

func TestInternalPage(t *testing.T) {
	cmp := Ordered[int64]()

	t.Run("descent index", func(t *testing.T) {
		internal := newTestInternal(4)
		internal.incrSize(1)
		internal.setChildAt(0, 100)
		internal.insertData(5, 101, cmp)
		internal.insertData(9, 102, cmp)

		assert.Equal(t, 0, internal.lastIndexLE(3, cmp))
		assert.Equal(t, 1, internal.lastIndexLE(5, cmp))
		assert.Equal(t, 1, internal.lastIndexLE(7, cmp))
		assert.Equal(t, 2, internal.lastIndexLE(100, cmp))

		assert.Equal(t, 0, internal.lastIndexL(5, cmp))
		assert.Equal(t, 1, internal.lastIndexL(9, cmp))
	})

	t.Run("split promotes the middle key", func(t *testing.T) {
		internal := newTestInternal(4)
		internal.incrSize(1)
		internal.setChildAt(0, 100)
		for i, k := range []int64{10, 20, 30, 40} {
			internal.insertData(k, int64(101+i), cmp)
		}
		assert.Equal(t, 5, internal.getSize())

		promoted := internal.keyAt(internal.getSize() / 2)
		assert.Equal(t, int64(20), promoted)

		other := newTestInternal(4)
		internal.copySecondHalfTo(other)

		keys, children := internalEntries(internal)
		assert.Equal(t, []int64{10}, keys)
		assert.Equal(t, []int64{100, 101}, children)

		keys, children = internalEntries(other)
		assert.Equal(t, []int64{30, 40}, keys)
		assert.Equal(t, []int64{102, 103, 104}, children)
	})

	t.Run("shift carries the separator through", func(t *testing.T) {
		// cur holds children for keys below 50, next for keys above
		cur := newTestInternal(8)
		cur.incrSize(1)
		cur.setChildAt(0, 100)
		for i, k := range []int64{10, 20, 30} {
			cur.insertData(k, int64(101+i), cmp)
		}

		next := newTestInternal(8)
		next.incrSize(1)
		next.setChildAt(0, 200)
		next.insertData(60, 201, cmp)

		newSep := cur.copyLastNTo(1, next, 50)
		assert.Equal(t, int64(30), newSep)

		keys, children := internalEntries(cur)
		assert.Equal(t, []int64{10, 20}, keys)
		assert.Equal(t, []int64{100, 101, 102}, children)

		keys, children = internalEntries(next)
		assert.Equal(t, []int64{50, 60}, keys)
		assert.Equal(t, []int64{103, 200, 201}, children)
	})

	t.Run("merging absorbs the separator", func(t *testing.T) {
		cur := newTestInternal(8)
		cur.incrSize(1)
		cur.setChildAt(0, 100)
		cur.insertData(10, 101, cmp)

		next := newTestInternal(8)
		next.incrSize(1)
		next.setChildAt(0, 200)
		next.insertData(60, 201, cmp)

		// merge next into cur with separator 50
		next.copyFirstNTo(next.getSize(), cur, 50)
		assert.Equal(t, 0, next.getSize())

		keys, children := internalEntries(cur)
		assert.Equal(t, []int64{10, 50, 60}, keys)
		assert.Equal(t, []int64{100, 101, 200, 201}, children)
	})

	t.Run("remove returns the dropped slot", func(t *testing.T) {
		internal := newTestInternal(4)
		internal.incrSize(1)
		internal.setChildAt(0, 100)
		internal.insertData(10, 101, cmp)
		internal.insertData(20, 102, cmp)

		key, child := internal.removeData(1)
		assert.Equal(t, int64(10), key)
		assert.Equal(t, int64(101), child)

		keys, children := internalEntries(internal)
		assert.Equal(t, []int64{20}, keys)
		assert.Equal(t, []int64{100, 102}, children)
	})
}

func TestHeaderPage(t *testing.T) {
	t.Run("root page id round trips", func(t *testing.T) {
		header := headerPage{make([]byte, disk.PAGE_SIZE)}
		header.init()

		assert.Equal(t, HEADER_PAGE, header.pageType())
		assert.Equal(t, disk.INVALID_PAGE_ID, header.rootPageId())

		header.setRootPageId(7)
		assert.Equal(t, int64(7), header.rootPageId())
	})
}
