package buffer

const INVALID_FRAME_ID = -1

type lrukNode struct {
	prev        *lrukNode
	next        *lrukNode
	frameId     int
	k           int
	history     []int
	isEvictable bool
}

func (n *lrukNode) hasKAccess() bool {
	return n.k == len(n.history)
}

// kthAccess is the timestamp of the k-th most recent access. The history is
// bounded to the last k timestamps, so that is the oldest entry. With fewer
// than k accesses recorded it is the oldest one, -1 with none.
func (n *lrukNode) kthAccess() int {
	if len(n.history) > 0 {
		return n.history[0]
	}

	return -1
}

func (n *lrukNode) lastAccess() int {
	if len(n.history) > 0 {
		return n.history[len(n.history)-1]
	}

	return -1
}

func (n *lrukNode) addTimestamp(timestamp int) {
	if len(n.history) < n.k {
		n.history = append(n.history, timestamp)
		return
	}

	n.history = n.history[1:]
	n.history = append(n.history, timestamp)
}

// nodeList is a doubly linked list with sentinel head and tail.
type nodeList struct {
	head *lrukNode
	tail *lrukNode
}

func newNodeList() *nodeList {
	head := &lrukNode{frameId: INVALID_FRAME_ID}
	tail := &lrukNode{frameId: INVALID_FRAME_ID}

	head.next = tail
	tail.prev = head

	return &nodeList{head: head, tail: tail}
}

func (l *nodeList) pushBack(node *lrukNode) {
	l.insertBefore(l.tail, node)
}

func (l *nodeList) insertBefore(pos, node *lrukNode) {
	back := pos.prev

	back.next = node
	node.prev = back
	node.next = pos
	pos.prev = node
}

func (l *nodeList) remove(node *lrukNode) {
	back := node.prev
	front := node.next

	back.next = front
	front.prev = back

	node.prev = nil
	node.next = nil
}
