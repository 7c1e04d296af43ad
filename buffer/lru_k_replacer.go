package buffer

import (
	"fmt"
	"sync"
)

// lrukReplacer picks eviction victims by LRU-K. Frames with fewer than k
// recorded accesses live on the history list, ordered by most recent access
// ascending; frames with at least k accesses live on the cached list,
// ordered by their k-th most recent access ascending. History frames are
// evicted before cached frames.
type lrukReplacer struct {
	mu            sync.Mutex
	nodeStore     map[int]*lrukNode
	historyList   *nodeList
	cachedList    *nodeList
	currSize      int
	currTimestamp int
	k             int
}

func NewLrukReplacer(k int) *lrukReplacer {
	return &lrukReplacer{
		k:           k,
		nodeStore:   map[int]*lrukNode{},
		historyList: newNodeList(),
		cachedList:  newNodeList(),
	}
}

func (lru *lrukReplacer) recordAccess(frameId int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	lru.currTimestamp += 1

	node, ok := lru.nodeStore[frameId]
	if !ok {
		node = &lrukNode{frameId: frameId, k: lru.k}
		lru.nodeStore[frameId] = node
		node.addTimestamp(lru.currTimestamp)
		lru.historyList.pushBack(node)
		return
	}

	hadKAccess := node.hasKAccess()
	node.addTimestamp(lru.currTimestamp)

	if node.hasKAccess() {
		// crossing k moves the node to the cached list, a further access
		// repositions it by its new k-th-back timestamp
		if hadKAccess {
			lru.cachedList.remove(node)
		} else {
			lru.historyList.remove(node)
		}
		lru.insertByKthAccess(node)
		return
	}

	// still warming up, keep the history list ordered by last access
	lru.historyList.remove(node)
	lru.historyList.pushBack(node)
}

func (lru *lrukReplacer) insertByKthAccess(node *lrukNode) {
	pos := lru.cachedList.head.next
	for pos != lru.cachedList.tail && pos.kthAccess() <= node.kthAccess() {
		pos = pos.next
	}
	lru.cachedList.insertBefore(pos, node)
}

// evict removes and returns the best victim, INVALID_FRAME_ID if every
// frame is pinned down.
func (lru *lrukReplacer) evict() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	for _, list := range []*nodeList{lru.historyList, lru.cachedList} {
		for node := list.head.next; node != list.tail; node = node.next {
			if !node.isEvictable {
				continue
			}

			list.remove(node)
			delete(lru.nodeStore, node.frameId)
			lru.currSize -= 1
			return node.frameId
		}
	}

	return INVALID_FRAME_ID
}

func (lru *lrukReplacer) setEvictable(frameId int, evictable bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	node, ok := lru.nodeStore[frameId]
	if !ok {
		return
	}

	if node.isEvictable && !evictable {
		lru.currSize -= 1
	}
	if !node.isEvictable && evictable {
		lru.currSize += 1
	}
	node.isEvictable = evictable
}

// remove drops a frame from the replacer entirely. Removing a frame that
// isn't evictable is a programmer error.
func (lru *lrukReplacer) remove(frameId int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	node, ok := lru.nodeStore[frameId]
	if !ok {
		return
	}

	if !node.isEvictable {
		panic(fmt.Sprintf("removing non-evictable frame %d from replacer", frameId))
	}

	if node.hasKAccess() {
		lru.cachedList.remove(node)
	} else {
		lru.historyList.remove(node)
	}

	delete(lru.nodeStore, frameId)
	lru.currSize -= 1
}

// size is the number of evictable frames.
func (lru *lrukReplacer) size() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	return lru.currSize
}
