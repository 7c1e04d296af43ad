package index

import (
	"fmt"
	"strings"

	"github.com/jobala/basalt/buffer"
	"github.com/jobala/basalt/storage/disk"
	"go.uber.org/zap"
)

type TreeOption func(*treeOptions)

type treeOptions struct {
	leafMaxSize     int
	internalMaxSize int
	logger          *zap.Logger
	inheritFile     bool
}

func WithLeafMaxSize(size int) TreeOption {
	return func(o *treeOptions) {
		o.leafMaxSize = size
	}
}

func WithInternalMaxSize(size int) TreeOption {
	return func(o *treeOptions) {
		o.internalMaxSize = size
	}
}

func WithTreeLogger(logger *zap.Logger) TreeOption {
	return func(o *treeOptions) {
		o.logger = logger
	}
}

// InheritFile adopts the root already stored in the header page instead of
// resetting it. Used when reopening a durable index.
func InheritFile() TreeOption {
	return func(o *treeOptions) {
		o.inheritFile = true
	}
}

type BplusTree[K, V any] struct {
	indexName       string
	bpm             *buffer.BufferpoolManager
	keys            Codec[K]
	values          Codec[V]
	cmp             Comparator[K]
	leafMaxSize     int
	internalMaxSize int
	logger          *zap.Logger
}

func NewBplusTree[K, V any](
	name string,
	bpm *buffer.BufferpoolManager,
	keys Codec[K],
	values Codec[V],
	cmp Comparator[K],
	opts ...TreeOption,
) (*BplusTree[K, V], error) {
	// one slot is reserved past maxSize, a page overflows by a single entry
	// before it is split or shifted
	leafCapacity := (disk.PAGE_SIZE-leafHeaderSize)/(keys.Width+values.Width) - 1
	internalCapacity := (disk.PAGE_SIZE-internalHeaderSize)/(keys.Width+8) - 1

	options := treeOptions{
		leafMaxSize:     leafCapacity,
		internalMaxSize: internalCapacity,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.leafMaxSize < 3 || options.leafMaxSize > leafCapacity {
		return nil, fmt.Errorf("leaf max size %d out of range [3, %d]", options.leafMaxSize, leafCapacity)
	}
	if options.internalMaxSize < 3 || options.internalMaxSize > internalCapacity {
		return nil, fmt.Errorf("internal max size %d out of range [3, %d]", options.internalMaxSize, internalCapacity)
	}

	b := &BplusTree[K, V]{
		indexName:       name,
		bpm:             bpm,
		keys:            keys,
		values:          values,
		cmp:             cmp,
		leafMaxSize:     options.leafMaxSize,
		internalMaxSize: options.internalMaxSize,
		logger:          options.logger,
	}

	guard, err := bpm.WritePage(HEADER_PAGE_ID)
	if err != nil {
		return nil, fmt.Errorf("error fetching header page: %w", err)
	}
	defer guard.Drop()

	header := headerPage{guard.GetData()}
	if !options.inheritFile || header.pageType() != HEADER_PAGE {
		headerPage{guard.GetDataMut()}.init()
	}

	return b, nil
}

// context carries the in-flight ancestor chain of a crabbing descent. The
// header guard occupies its own slot because releasing it forfeits the
// right to change the root page id.
type context struct {
	headerGuard *buffer.WritePageGuard
	writeSet    []*buffer.WritePageGuard
	rootPageId  int64

	// set once the descent passes a separator equal to the removed key;
	// ancestors above it must stay latched for the separator replacement
	blockRelease bool
}

func (c *context) push(guard *buffer.WritePageGuard) {
	c.writeSet = append(c.writeSet, guard)
}

func (c *context) back() *buffer.WritePageGuard {
	return c.writeSet[len(c.writeSet)-1]
}

func (c *context) popBack() *buffer.WritePageGuard {
	guard := c.back()
	c.writeSet = c.writeSet[:len(c.writeSet)-1]
	return guard
}

func (c *context) releaseHeader() {
	if c.headerGuard != nil {
		c.headerGuard.Drop()
		c.headerGuard = nil
	}
}

// releaseAncestors drops everything above the current page; the current
// page can absorb whatever happens below it.
func (c *context) releaseAncestors() {
	for _, guard := range c.writeSet[:len(c.writeSet)-1] {
		guard.Drop()
	}
	c.writeSet = c.writeSet[len(c.writeSet)-1:]
	c.releaseHeader()
}

func (c *context) releaseAll() {
	for _, guard := range c.writeSet {
		guard.Drop()
	}
	c.writeSet = nil
	c.releaseHeader()
}

func (b *BplusTree[K, V]) asLeaf(data []byte) leafPage[K, V] {
	return leafPage[K, V]{pageView: pageView{data}, keys: b.keys, values: b.values}
}

func (b *BplusTree[K, V]) asInternal(data []byte) internalPage[K] {
	return internalPage[K]{pageView: pageView{data}, keys: b.keys}
}

func (b *BplusTree[K, V]) GetRootPageId() (int64, error) {
	guard, err := b.bpm.ReadPage(HEADER_PAGE_ID)
	if err != nil {
		return disk.INVALID_PAGE_ID, err
	}
	defer guard.Drop()

	return headerPage{guard.GetData()}.rootPageId(), nil
}

// createNewPage allocates and initializes a page of the given type. New
// pages are always allocated before any sibling or parent is touched, so a
// failed allocation aborts with no partial structural state.
func (b *BplusTree[K, V]) createNewPage(pageType PAGE_TYPE) (int64, error) {
	pageId, guard, err := b.bpm.NewPage()
	if err != nil {
		return disk.INVALID_PAGE_ID, err
	}
	defer guard.Drop()

	if pageType == INTERNAL_PAGE {
		b.asInternal(guard.GetDataMut()).init(b.internalMaxSize)
	} else {
		b.asLeaf(guard.GetDataMut()).init(b.leafMaxSize)
	}

	return pageId, nil
}

// getRootGuardRead fetches the root under the header page's read latch,
// releasing the header before returning. A nil guard means an empty tree.
func (b *BplusTree[K, V]) getRootGuardRead(rootPageId *int64) (*buffer.ReadPageGuard, error) {
	headerGuard, err := b.bpm.ReadPage(HEADER_PAGE_ID)
	if err != nil {
		return nil, err
	}

	rootId := headerPage{headerGuard.GetData()}.rootPageId()
	if rootId == disk.INVALID_PAGE_ID {
		headerGuard.Drop()
		return nil, nil
	}

	rootGuard, err := b.bpm.ReadPage(rootId)
	headerGuard.Drop()
	if err != nil {
		return nil, err
	}

	if rootPageId != nil {
		*rootPageId = rootId
	}
	return rootGuard, nil
}

// getRootGuardWrite fetches the root write guard and parks the header
// guard in ctx; the header stays latched until the descent proves the root
// cannot change. A nil guard means an empty tree.
func (b *BplusTree[K, V]) getRootGuardWrite(ctx *context, createNewRoot bool) (*buffer.WritePageGuard, error) {
	headerGuard, err := b.bpm.WritePage(HEADER_PAGE_ID)
	if err != nil {
		return nil, err
	}

	header := headerPage{headerGuard.GetData()}
	if header.rootPageId() == disk.INVALID_PAGE_ID {
		if !createNewRoot {
			headerGuard.Drop()
			return nil, nil
		}

		rootId, err := b.createNewPage(LEAF_PAGE)
		if err != nil {
			headerGuard.Drop()
			return nil, err
		}
		headerPage{headerGuard.GetDataMut()}.setRootPageId(rootId)
	}

	rootGuard, err := b.bpm.WritePage(header.rootPageId())
	if err != nil {
		headerGuard.Drop()
		return nil, err
	}

	ctx.rootPageId = header.rootPageId()
	ctx.headerGuard = headerGuard
	return rootGuard, nil
}

// fetchRootGuardWrite refetches the root through the header guard retained
// in ctx, nil if the header was released during the descent.
func (b *BplusTree[K, V]) fetchRootGuardWrite(ctx *context) (*buffer.WritePageGuard, error) {
	if ctx.headerGuard == nil {
		return nil, nil
	}

	rootId := headerPage{ctx.headerGuard.GetData()}.rootPageId()
	if rootId == disk.INVALID_PAGE_ID {
		return nil, nil
	}

	return b.bpm.WritePage(rootId)
}

/*****************************************************************************
 * SEARCH
 *****************************************************************************/

// GetValue returns every value whose key matches under the comparator, the
// tree's default or a caller supplied one for prefix lookups over composite
// keys. The scan chains into the next leaf when matches reach the end of a
// page, holding at most two read guards at a time.
func (b *BplusTree[K, V]) GetValue(key K, cmp ...Comparator[K]) ([]V, error) {
	comparator := b.cmp
	if len(cmp) > 0 {
		comparator = cmp[0]
	}

	res := []V{}
	guard, err := b.getRootGuardRead(nil)
	if err != nil {
		return nil, err
	}
	if guard == nil {
		return res, nil
	}

	for !(pageView{guard.GetData()}).isLeafPage() {
		internal := b.asInternal(guard.GetData())
		nextPid := internal.childAt(internal.lastIndexL(key, comparator))

		nextGuard, err := b.bpm.ReadPage(nextPid)
		if err != nil {
			guard.Drop()
			return nil, err
		}
		guard.Drop()
		guard = nextGuard
	}

	for {
		leaf := b.asLeaf(guard.GetData())
		index := leaf.lastIndexL(key, comparator) + 1
		size := leaf.getSize()

		for ; index < size; index++ {
			if comparator(leaf.keyAt(index), key) > 0 {
				guard.Drop()
				return res, nil
			}
			res = append(res, leaf.valueAt(index))
		}

		nextPid := leaf.nextPageId()
		if nextPid == disk.INVALID_PAGE_ID {
			guard.Drop()
			return res, nil
		}

		nextGuard, err := b.bpm.ReadPage(nextPid)
		if err != nil {
			guard.Drop()
			return nil, err
		}
		guard.Drop()
		guard = nextGuard
	}
}

/*****************************************************************************
 * INSERTION
 *****************************************************************************/

// Insert adds the pair, false if the key already exists. The optimistic
// pass descends under read latches and only write-latches the leaf; it
// restarts pessimistically from the root when a structural change might
// propagate.
func (b *BplusTree[K, V]) Insert(key K, value V) (bool, error) {
	ok, done, err := b.insertOptimistic(key, value)
	if err != nil {
		return false, err
	}
	if done {
		return ok, nil
	}

	ctx := &context{}
	rootGuard, err := b.getRootGuardWrite(ctx, true)
	if err != nil {
		return false, err
	}
	ctx.push(rootGuard)

	ok, safe, err := b.insertIntoPage(key, value, ctx, -1)
	if err != nil {
		ctx.releaseAll()
		return false, err
	}
	if safe {
		ctx.releaseAll()
		return ok, nil
	}

	// the root itself overflowed, grow the tree by one level
	curGuard, err := b.fetchRootGuardWrite(ctx)
	if err != nil {
		ctx.releaseAll()
		return false, err
	}

	curView := pageView{curGuard.GetData()}
	if curView.sizeExceeded() {
		if err := b.growRoot(ctx, curGuard); err != nil {
			curGuard.Drop()
			ctx.releaseAll()
			return false, err
		}
	}

	curGuard.Drop()
	ctx.releaseAll()
	return true, nil
}

// growRoot creates a new internal root whose slot-0 child is the old root,
// splits the old root into it, and only then redirects the header.
func (b *BplusTree[K, V]) growRoot(ctx *context, curGuard *buffer.WritePageGuard) error {
	newRootId, err := b.createNewPage(INTERNAL_PAGE)
	if err != nil {
		return err
	}

	newRootGuard, err := b.bpm.WritePage(newRootId)
	if err != nil {
		return err
	}
	defer newRootGuard.Drop()

	newRoot := b.asInternal(newRootGuard.GetDataMut())
	newRoot.incrSize(1)
	newRoot.setChildAt(0, ctx.rootPageId)

	curView := pageView{curGuard.GetData()}
	if curView.isLeafPage() {
		err = b.splitLeafPage(b.asLeaf(curGuard.GetDataMut()), newRoot)
	} else {
		err = b.splitInternalPage(b.asInternal(curGuard.GetDataMut()), newRoot)
	}
	if err != nil {
		return err
	}

	headerPage{ctx.headerGuard.GetDataMut()}.setRootPageId(newRootId)
	b.logger.Debug("grew tree", zap.Int64("newRootId", newRootId), zap.Int64("oldRootId", ctx.rootPageId))
	return nil
}

// insertOptimistic returns (result, done, err); done is false when the
// insert must restart under write latches.
func (b *BplusTree[K, V]) insertOptimistic(key K, value V) (bool, bool, error) {
	leafGuard, restart, err := b.writeLatchLeaf(key, func(internal internalPage[K], isRoot bool) bool {
		return internal.isInsertSafe()
	})
	if err != nil || restart {
		return true, false, err
	}
	defer leafGuard.Drop()

	// a full leaf needs a split; a key below the leaf minimum could move a
	// separator above it
	leaf := b.asLeaf(leafGuard.GetData())
	if !leaf.isInsertSafe() || leaf.getSize() == 0 || b.cmp(leaf.keyAt(0), key) > 0 {
		return true, false, nil
	}

	// a duplicate touches nothing, so the page must stay clean
	if leaf.indexE(key, b.cmp) != -1 {
		return false, true, nil
	}

	return b.asLeaf(leafGuard.GetDataMut()).insertData(key, value, b.cmp) != -1, true, nil
}

// writeLatchLeaf descends under read latches and write-latches the target
// leaf while still holding its parent's read latch: restructuring a leaf
// needs the parent's write latch, so the leaf cannot split or merge away
// between the read pass and the write latch. restart is true when a page
// fails the safety check and the caller must go down pessimistically.
func (b *BplusTree[K, V]) writeLatchLeaf(key K, safe func(internalPage[K], bool) bool) (*buffer.WritePageGuard, bool, error) {
	parentGuard, err := b.bpm.ReadPage(HEADER_PAGE_ID)
	if err != nil {
		return nil, false, err
	}

	curPid := headerPage{parentGuard.GetData()}.rootPageId()
	if curPid == disk.INVALID_PAGE_ID {
		parentGuard.Drop()
		return nil, true, nil
	}

	curGuard, err := b.bpm.ReadPage(curPid)
	if err != nil {
		parentGuard.Drop()
		return nil, false, err
	}

	isRoot := true
	for !(pageView{curGuard.GetData()}).isLeafPage() {
		internal := b.asInternal(curGuard.GetData())
		if !safe(internal, isRoot) {
			curGuard.Drop()
			parentGuard.Drop()
			return nil, true, nil
		}
		isRoot = false

		nextPid := internal.childAt(internal.lastIndexLE(key, b.cmp))
		nextGuard, err := b.bpm.ReadPage(nextPid)
		if err != nil {
			curGuard.Drop()
			parentGuard.Drop()
			return nil, false, err
		}

		parentGuard.Drop()
		parentGuard = curGuard
		curGuard = nextGuard
		curPid = nextPid
	}
	curGuard.Drop()

	leafGuard, err := b.bpm.WritePage(curPid)
	parentGuard.Drop()
	if err != nil {
		return nil, false, err
	}
	return leafGuard, false, nil
}

// insertIntoPage descends into the page at the back of ctx's write set.
// Returns (result, safe, err); safe means every latch in ctx has been
// released because no mutation can propagate above this page.
func (b *BplusTree[K, V]) insertIntoPage(key K, value V, ctx *context, index int) (bool, bool, error) {
	if (pageView{ctx.back().GetData()}).isLeafPage() {
		return b.insertIntoLeafPage(key, value, ctx, index)
	}

	internal := b.asInternal(ctx.back().GetData())
	nextIdx := internal.lastIndexLE(key, b.cmp)
	nextPid := internal.childAt(nextIdx)

	if internal.isInsertSafe() {
		// this page can absorb any split below
		ctx.releaseAncestors()
	}

	nextGuard, err := b.bpm.WritePage(nextPid)
	if err != nil {
		return false, false, err
	}
	ctx.push(nextGuard)

	ok, safe, err := b.insertIntoPage(key, value, ctx, nextIdx)
	if err != nil {
		return false, false, err
	}
	if !ok {
		// duplicate key, ctx was cleared at the leaf
		return false, true, nil
	}
	if safe {
		return true, true, nil
	}

	// the child split into this page, fix the overflow if any
	curGuard := ctx.popBack()
	safeTag := true
	if internal.sizeExceeded() {
		if len(ctx.writeSet) > 0 {
			curView := b.asInternal(curGuard.GetDataMut())
			lastView := b.asInternal(ctx.back().GetDataMut())
			shifted, serr := b.shiftInternalPage(curView, lastView, index)
			if serr == nil && !shifted {
				serr = b.splitInternalPage(curView, lastView)
				safeTag = false
			}
			if serr != nil {
				curGuard.Drop()
				return false, false, serr
			}
		} else {
			safeTag = false
		}
	}
	if safeTag {
		ctx.releaseAll()
	}
	curGuard.Drop()

	return true, safeTag, nil
}

func (b *BplusTree[K, V]) insertIntoLeafPage(key K, value V, ctx *context, index int) (bool, bool, error) {
	// a duplicate touches nothing, so the page must stay clean
	if b.asLeaf(ctx.back().GetData()).indexE(key, b.cmp) != -1 {
		ctx.releaseAll()
		return false, true, nil
	}

	leaf := b.asLeaf(ctx.back().GetDataMut())
	leaf.insertData(key, value, b.cmp)

	curGuard := ctx.popBack()
	safeTag := true
	if leaf.sizeExceeded() {
		if len(ctx.writeSet) > 0 {
			lastView := b.asInternal(ctx.back().GetDataMut())
			shifted, serr := b.shiftLeafPage(leaf, lastView, index)
			if serr == nil && !shifted {
				serr = b.splitLeafPage(leaf, lastView)
				safeTag = false
			}
			if serr != nil {
				curGuard.Drop()
				return false, false, serr
			}
		} else {
			safeTag = false
		}
	}
	if safeTag {
		ctx.releaseAll()
	}
	curGuard.Drop()

	return true, safeTag, nil
}

// shiftLeafPage sends entries away from an overflowed leaf into a sibling
// whose size differs by at least two, preferring the right one, and fixes
// the separator in the parent. index is cur's slot in the parent.
func (b *BplusTree[K, V]) shiftLeafPage(cur leafPage[K, V], last internalPage[K], index int) (bool, error) {
	if index != last.getSize()-1 {
		nextLeafId := last.childAt(index + 1)
		guard, err := b.bpm.WritePage(nextLeafId)
		if err != nil {
			return false, err
		}

		next := b.asLeaf(guard.GetData())
		if diff := cur.getSize() - next.getSize(); diff >= 2 {
			next = b.asLeaf(guard.GetDataMut())
			cur.copyLastNTo(diff/2, next)
			last.setKeyAt(index+1, next.keyAt(0))
			guard.Drop()
			return true, nil
		}
		guard.Drop()
	}

	if index != 0 {
		lastLeafId := last.childAt(index - 1)
		guard, err := b.bpm.WritePage(lastLeafId)
		if err != nil {
			return false, err
		}

		lastLeaf := b.asLeaf(guard.GetData())
		if diff := cur.getSize() - lastLeaf.getSize(); diff >= 2 {
			lastLeaf = b.asLeaf(guard.GetDataMut())
			cur.copyFirstNTo(diff/2, lastLeaf)
			last.setKeyAt(index, cur.keyAt(0))
			guard.Drop()
			return true, nil
		}
		guard.Drop()
	}

	return false, nil
}

func (b *BplusTree[K, V]) shiftInternalPage(cur, last internalPage[K], index int) (bool, error) {
	if index != last.getSize()-1 {
		nextInternalId := last.childAt(index + 1)
		guard, err := b.bpm.WritePage(nextInternalId)
		if err != nil {
			return false, err
		}

		next := b.asInternal(guard.GetData())
		if diff := cur.getSize() - next.getSize(); diff >= 2 {
			next = b.asInternal(guard.GetDataMut())
			newSep := cur.copyLastNTo(diff/2, next, last.keyAt(index+1))
			last.setKeyAt(index+1, newSep)
			guard.Drop()
			return true, nil
		}
		guard.Drop()
	}

	if index != 0 {
		lastInternalId := last.childAt(index - 1)
		guard, err := b.bpm.WritePage(lastInternalId)
		if err != nil {
			return false, err
		}

		lastInternal := b.asInternal(guard.GetData())
		if diff := cur.getSize() - lastInternal.getSize(); diff >= 2 {
			lastInternal = b.asInternal(guard.GetDataMut())
			newSep := cur.copyFirstNTo(diff/2, lastInternal, last.keyAt(index))
			last.setKeyAt(index, newSep)
			guard.Drop()
			return true, nil
		}
		guard.Drop()
	}

	return false, nil
}

// splitLeafPage moves the upper half of an overflowed leaf into a fresh
// page, threads the sibling chain and inserts the separator into the
// parent. The new page is allocated before anything is mutated.
func (b *BplusTree[K, V]) splitLeafPage(cur leafPage[K, V], last internalPage[K]) error {
	newLeafId, err := b.createNewPage(LEAF_PAGE)
	if err != nil {
		return err
	}

	guard, err := b.bpm.WritePage(newLeafId)
	if err != nil {
		return err
	}
	defer guard.Drop()

	newLeaf := b.asLeaf(guard.GetDataMut())
	cur.copySecondHalfTo(newLeaf)
	last.insertData(newLeaf.keyAt(0), newLeafId, b.cmp)
	newLeaf.setNextPageId(cur.nextPageId())
	cur.setNextPageId(newLeafId)

	b.logger.Debug("split leaf", zap.Int64("newLeafId", newLeafId))
	return nil
}

func (b *BplusTree[K, V]) splitInternalPage(cur, last internalPage[K]) error {
	newInternalId, err := b.createNewPage(INTERNAL_PAGE)
	if err != nil {
		return err
	}

	guard, err := b.bpm.WritePage(newInternalId)
	if err != nil {
		return err
	}
	defer guard.Drop()

	newInternal := b.asInternal(guard.GetDataMut())
	last.insertData(cur.keyAt(cur.getSize()/2), newInternalId, b.cmp)
	cur.copySecondHalfTo(newInternal)

	b.logger.Debug("split internal", zap.Int64("newInternalId", newInternalId))
	return nil
}

/*****************************************************************************
 * REMOVAL
 *****************************************************************************/

// Remove deletes the key's entry, false if absent. Like Insert it tries a
// leaf-only pass under read latches first.
func (b *BplusTree[K, V]) Remove(key K) (bool, error) {
	ok, done, err := b.removeOptimistic(key)
	if err != nil {
		return false, err
	}
	if done {
		return ok, nil
	}

	ctx := &context{}
	rootGuard, err := b.getRootGuardWrite(ctx, false)
	if err != nil {
		return false, err
	}
	if rootGuard == nil {
		return false, nil
	}
	ctx.push(rootGuard)

	ok, _, err = b.removeInPage(key, ctx, -1)
	if err != nil {
		ctx.releaseAll()
		return false, err
	}
	if !ok {
		ctx.releaseAll()
		return false, nil
	}

	if err := b.shrinkRoot(ctx); err != nil {
		ctx.releaseAll()
		return false, err
	}

	ctx.releaseAll()
	return true, nil
}

// shrinkRoot promotes the sole child of a degenerate internal root, and
// clears the root pointer when the last entry leaves the tree.
func (b *BplusTree[K, V]) shrinkRoot(ctx *context) error {
	curGuard, err := b.fetchRootGuardWrite(ctx)
	if err != nil {
		return err
	}
	if curGuard == nil {
		return nil
	}

	curView := pageView{curGuard.GetData()}
	oldRootId := ctx.rootPageId

	switch {
	case !curView.isLeafPage() && curView.getSize() == 1:
		newRootId := b.asInternal(curGuard.GetData()).childAt(0)
		headerPage{ctx.headerGuard.GetDataMut()}.setRootPageId(newRootId)
		curGuard.Drop()
		b.logger.Debug("demoted root", zap.Int64("oldRootId", oldRootId), zap.Int64("newRootId", newRootId))
		return b.bpm.DeletePage(oldRootId)

	case curView.isLeafPage() && curView.getSize() == 0:
		headerPage{ctx.headerGuard.GetDataMut()}.setRootPageId(disk.INVALID_PAGE_ID)
		curGuard.Drop()
		b.logger.Debug("tree emptied", zap.Int64("oldRootId", oldRootId))
		return b.bpm.DeletePage(oldRootId)

	default:
		curGuard.Drop()
		return nil
	}
}

func (b *BplusTree[K, V]) removeOptimistic(key K) (bool, bool, error) {
	// a shrinking root or an unsafe page may need structural work; a
	// separator equal to the key needs replacement after the removal
	leafGuard, restart, err := b.writeLatchLeaf(key, func(internal internalPage[K], isRoot bool) bool {
		if isRoot && internal.getSize() == 1 {
			return false
		}
		if !isRoot && !internal.isRemoveSafe() {
			return false
		}
		nextIdx := internal.lastIndexLE(key, b.cmp)
		return nextIdx == 0 || b.cmp(internal.keyAt(nextIdx), key) != 0
	})
	if err != nil {
		return false, false, err
	}
	if restart {
		// an empty tree restarts too; the pessimistic pass reports absent
		return false, false, nil
	}
	defer leafGuard.Drop()

	leaf := b.asLeaf(leafGuard.GetData())
	if !leaf.isRemoveSafe() || leaf.getSize() == 0 || b.cmp(leaf.keyAt(0), key) == 0 {
		return false, false, nil
	}

	// an absent key touches nothing, so the page must stay clean
	if leaf.indexE(key, b.cmp) == -1 {
		return false, true, nil
	}

	return b.asLeaf(leafGuard.GetDataMut()).removeData(key, b.cmp) != -1, true, nil
}

// removeInPage removes the key below the page at the back of ctx's write
// set. The second return value carries the new leaf minimum for separator
// replacement when slot 0 was removed.
func (b *BplusTree[K, V]) removeInPage(key K, ctx *context, index int) (bool, K, error) {
	var zero K
	if (pageView{ctx.back().GetData()}).isLeafPage() {
		return b.removeInLeafPage(key, ctx, index)
	}

	internal := b.asInternal(ctx.back().GetData())
	nextIdx := internal.lastIndexLE(key, b.cmp)
	nextPid := internal.childAt(nextIdx)

	if nextIdx != 0 && b.cmp(internal.keyAt(nextIdx), key) == 0 {
		ctx.blockRelease = true
	}
	canAbsorb := internal.isRemoveSafe()
	if ctx.headerGuard != nil && len(ctx.writeSet) == 1 {
		// the root absorbs a child-count decrease iff it won't degenerate
		canAbsorb = internal.getSize()-1 > 1
	}
	if canAbsorb && !ctx.blockRelease {
		ctx.releaseAncestors()
	}

	nextGuard, err := b.bpm.WritePage(nextPid)
	if err != nil {
		return false, zero, err
	}
	ctx.push(nextGuard)

	ok, replacement, err := b.removeInPage(key, ctx, nextIdx)
	if err != nil {
		return false, zero, err
	}

	curGuard := ctx.popBack()
	if !ok {
		curGuard.Drop()
		return false, zero, nil
	}

	if nextIdx > 0 && nextIdx < internal.getSize() && b.cmp(internal.keyAt(nextIdx), key) == 0 {
		b.asInternal(curGuard.GetDataMut()).setKeyAt(nextIdx, replacement)
	}

	deletePid := disk.INVALID_PAGE_ID
	var fixErr error
	if internal.sizeNotEnough() && len(ctx.writeSet) > 0 {
		curView := b.asInternal(curGuard.GetDataMut())
		lastView := b.asInternal(ctx.back().GetDataMut())
		var replenished bool
		replenished, fixErr = b.replenishInternalPage(curView, lastView, index)
		if fixErr == nil && !replenished {
			deletePid, fixErr = b.coalesceInternalPage(curView, lastView, index)
		}
	}

	curGuard.Drop()
	if fixErr != nil {
		return false, zero, fixErr
	}
	if deletePid != disk.INVALID_PAGE_ID {
		if err := b.bpm.DeletePage(deletePid); err != nil {
			return false, zero, err
		}
	}

	return true, replacement, nil
}

func (b *BplusTree[K, V]) removeInLeafPage(key K, ctx *context, index int) (bool, K, error) {
	var zero K

	// an absent key touches nothing, so the page must stay clean
	if b.asLeaf(ctx.back().GetData()).indexE(key, b.cmp) == -1 {
		return false, zero, nil
	}

	leaf := b.asLeaf(ctx.back().GetDataMut())
	removeIdx := leaf.removeData(key, b.cmp)

	// only removing slot 0 can change the leaf minimum
	replacement := zero
	if removeIdx == 0 && leaf.getSize() != 0 {
		replacement = leaf.keyAt(0)
	}

	curGuard := ctx.popBack()
	deletePid := disk.INVALID_PAGE_ID
	var fixErr error
	if leaf.sizeNotEnough() && len(ctx.writeSet) > 0 {
		lastView := b.asInternal(ctx.back().GetDataMut())
		var replenished bool
		replenished, fixErr = b.replenishLeafPage(leaf, lastView, index)
		if fixErr == nil && !replenished {
			deletePid, fixErr = b.coalesceLeafPage(leaf, lastView, index)
		}
	}

	curGuard.Drop()
	if fixErr != nil {
		return false, zero, fixErr
	}
	if deletePid != disk.INVALID_PAGE_ID {
		if err := b.bpm.DeletePage(deletePid); err != nil {
			return false, zero, err
		}
	}

	return true, replacement, nil
}

// replenishLeafPage borrows entries into an underflowed leaf from a
// sibling whose size exceeds it by at least two, mirroring shiftLeafPage.
func (b *BplusTree[K, V]) replenishLeafPage(cur leafPage[K, V], last internalPage[K], index int) (bool, error) {
	if index != last.getSize()-1 {
		nextLeafId := last.childAt(index + 1)
		guard, err := b.bpm.WritePage(nextLeafId)
		if err != nil {
			return false, err
		}

		next := b.asLeaf(guard.GetData())
		if diff := next.getSize() - cur.getSize(); diff >= 2 {
			next = b.asLeaf(guard.GetDataMut())
			next.copyFirstNTo(diff/2, cur)
			last.setKeyAt(index+1, next.keyAt(0))
			guard.Drop()
			return true, nil
		}
		guard.Drop()
	}

	if index != 0 {
		lastLeafId := last.childAt(index - 1)
		guard, err := b.bpm.WritePage(lastLeafId)
		if err != nil {
			return false, err
		}

		lastLeaf := b.asLeaf(guard.GetData())
		if diff := lastLeaf.getSize() - cur.getSize(); diff >= 2 {
			lastLeaf = b.asLeaf(guard.GetDataMut())
			lastLeaf.copyLastNTo(diff/2, cur)
			last.setKeyAt(index, cur.keyAt(0))
			guard.Drop()
			return true, nil
		}
		guard.Drop()
	}

	return false, nil
}

func (b *BplusTree[K, V]) replenishInternalPage(cur, last internalPage[K], index int) (bool, error) {
	if index != last.getSize()-1 {
		nextInternalId := last.childAt(index + 1)
		guard, err := b.bpm.WritePage(nextInternalId)
		if err != nil {
			return false, err
		}

		next := b.asInternal(guard.GetData())
		if diff := next.getSize() - cur.getSize(); diff >= 2 {
			next = b.asInternal(guard.GetDataMut())
			newSep := next.copyFirstNTo(diff/2, cur, last.keyAt(index+1))
			last.setKeyAt(index+1, newSep)
			guard.Drop()
			return true, nil
		}
		guard.Drop()
	}

	if index != 0 {
		lastInternalId := last.childAt(index - 1)
		guard, err := b.bpm.WritePage(lastInternalId)
		if err != nil {
			return false, err
		}

		lastInternal := b.asInternal(guard.GetData())
		if diff := lastInternal.getSize() - cur.getSize(); diff >= 2 {
			lastInternal = b.asInternal(guard.GetDataMut())
			newSep := lastInternal.copyLastNTo(diff/2, cur, last.keyAt(index))
			last.setKeyAt(index, newSep)
			guard.Drop()
			return true, nil
		}
		guard.Drop()
	}

	return false, nil
}

// coalesceLeafPage merges an underflowed leaf with a sibling and relinks
// the chain. It returns the page id whose frame must be given back once
// the caller has dropped its guard; the merged-away page is always deleted.
func (b *BplusTree[K, V]) coalesceLeafPage(cur leafPage[K, V], last internalPage[K], index int) (int64, error) {
	if index != last.getSize()-1 {
		nextLeafId := last.childAt(index + 1)
		guard, err := b.bpm.WritePage(nextLeafId)
		if err != nil {
			return disk.INVALID_PAGE_ID, err
		}

		next := b.asLeaf(guard.GetData())
		if next.getSize()+cur.getSize() <= b.leafMaxSize {
			next = b.asLeaf(guard.GetDataMut())
			next.copyFirstNTo(next.getSize(), cur)
			last.removeData(index + 1)
			cur.setNextPageId(next.nextPageId())
			guard.Drop()

			b.logger.Debug("coalesced leaf", zap.Int64("removedPageId", nextLeafId))
			return nextLeafId, nil
		}
		guard.Drop()
	}

	if index != 0 {
		lastLeafId := last.childAt(index - 1)
		guard, err := b.bpm.WritePage(lastLeafId)
		if err != nil {
			return disk.INVALID_PAGE_ID, err
		}

		lastLeaf := b.asLeaf(guard.GetData())
		if lastLeaf.getSize()+cur.getSize() <= b.leafMaxSize {
			lastLeaf = b.asLeaf(guard.GetDataMut())
			cur.copyFirstNTo(cur.getSize(), lastLeaf)
			_, removedPid := last.removeData(index)
			lastLeaf.setNextPageId(cur.nextPageId())
			guard.Drop()

			b.logger.Debug("coalesced leaf", zap.Int64("removedPageId", removedPid))
			return removedPid, nil
		}
		guard.Drop()
	}

	return disk.INVALID_PAGE_ID, nil
}

func (b *BplusTree[K, V]) coalesceInternalPage(cur, last internalPage[K], index int) (int64, error) {
	if index != last.getSize()-1 {
		nextInternalId := last.childAt(index + 1)
		guard, err := b.bpm.WritePage(nextInternalId)
		if err != nil {
			return disk.INVALID_PAGE_ID, err
		}

		next := b.asInternal(guard.GetData())
		if next.getSize()+cur.getSize() <= b.internalMaxSize {
			next = b.asInternal(guard.GetDataMut())
			sep, _ := last.removeData(index + 1)
			next.copyFirstNTo(next.getSize(), cur, sep)
			guard.Drop()

			b.logger.Debug("coalesced internal", zap.Int64("removedPageId", nextInternalId))
			return nextInternalId, nil
		}
		guard.Drop()
	}

	if index != 0 {
		lastInternalId := last.childAt(index - 1)
		guard, err := b.bpm.WritePage(lastInternalId)
		if err != nil {
			return disk.INVALID_PAGE_ID, err
		}

		lastInternal := b.asInternal(guard.GetData())
		if lastInternal.getSize()+cur.getSize() <= b.internalMaxSize {
			lastInternal = b.asInternal(guard.GetDataMut())
			sep, removedPid := last.removeData(index)
			cur.copyFirstNTo(cur.getSize(), lastInternal, sep)
			guard.Drop()

			b.logger.Debug("coalesced internal", zap.Int64("removedPageId", removedPid))
			return removedPid, nil
		}
		guard.Drop()
	}

	return disk.INVALID_PAGE_ID, nil
}

/*****************************************************************************
 * DEBUG
 *****************************************************************************/

// DrawTree renders the tree for debugging, one page per line, children
// indented under their parent.
func (b *BplusTree[K, V]) DrawTree() (string, error) {
	rootId, err := b.GetRootPageId()
	if err != nil {
		return "", err
	}
	if rootId == disk.INVALID_PAGE_ID {
		return "()", nil
	}

	var sb strings.Builder
	if err := b.drawPage(rootId, 0, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (b *BplusTree[K, V]) drawPage(pageId int64, depth int, sb *strings.Builder) error {
	guard, err := b.bpm.FetchPage(pageId)
	if err != nil {
		return err
	}
	defer guard.Drop()

	indent := strings.Repeat("  ", depth)
	if (pageView{guard.GetData()}).isLeafPage() {
		leaf := b.asLeaf(guard.GetData())
		keys := make([]string, leaf.getSize())
		for i := 0; i < leaf.getSize(); i++ {
			keys[i] = fmt.Sprintf("%v", leaf.keyAt(i))
		}
		fmt.Fprintf(sb, "%sleaf %d: [%s] next=%d\n", indent, pageId, strings.Join(keys, " "), leaf.nextPageId())
		return nil
	}

	internal := b.asInternal(guard.GetData())
	keys := make([]string, 0, internal.getSize()-1)
	for i := 1; i < internal.getSize(); i++ {
		keys = append(keys, fmt.Sprintf("%v", internal.keyAt(i)))
	}
	fmt.Fprintf(sb, "%sinternal %d: [%s]\n", indent, pageId, strings.Join(keys, " "))

	for i := 0; i < internal.getSize(); i++ {
		if err := b.drawPage(internal.childAt(i), depth+1, sb); err != nil {
			return err
		}
	}
	return nil
}
