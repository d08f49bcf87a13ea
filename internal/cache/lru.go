package cache

// Node is an element of a List.
type Node[K comparable] struct {
	Key        K
	prev, next *Node[K]
}

// List orders keys from most (front) to least (back) recently used.
// The zero value is an empty list. It is not thread-safe.
type List[K comparable] struct {
	front, back *Node[K]
	n           int
}

// Len returns the number of nodes.
func (l *List[K]) Len() int { return l.n }

// PushFront inserts key as the most recently used and returns its node.
func (l *List[K]) PushFront(key K) *Node[K] {
	node := &Node[K]{Key: key}
	l.link(node)
	return node
}

// Touch marks node as the most recently used.
func (l *List[K]) Touch(node *Node[K]) {
	if node == nil || node == l.front {
		return
	}
	l.unlink(node)
	l.link(node)
}

// Remove unlinks node. A nil node is ignored.
func (l *List[K]) Remove(node *Node[K]) {
	if node != nil {
		l.unlink(node)
	}
}

// Back returns the least recently used node, skipping nodes for which
// skip reports true. It returns nil when none qualifies.
func (l *List[K]) Back(skip func(K) bool) *Node[K] {
	for n := l.back; n != nil; n = n.prev {
		if skip == nil || !skip(n.Key) {
			return n
		}
	}
	return nil
}

// Clear drops every node.
func (l *List[K]) Clear() {
	l.front, l.back, l.n = nil, nil, 0
}

func (l *List[K]) link(node *Node[K]) {
	node.prev = nil
	node.next = l.front
	if l.front != nil {
		l.front.prev = node
	}
	l.front = node
	if l.back == nil {
		l.back = node
	}
	l.n++
}

func (l *List[K]) unlink(node *Node[K]) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.front = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.back = node.prev
	}
	node.prev, node.next = nil, nil
	l.n--
}
