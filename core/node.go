package core

import "sync"

// Node is a mobile element of the emulated network. Its position is created
// lazily on first placement and mutated in place thereafter.
type Node struct {
	ID   int
	Name string

	mu  sync.Mutex
	pos Position
}

// NewNode constructs an unplaced node.
func NewNode(id int, name string) *Node {
	return &Node{ID: id, Name: name}
}

// Position returns the node's most recently recorded position.
func (n *Node) Position() Position {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pos
}

// SetPosition records a new position atomically.
func (n *Node) SetPosition(p Position) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pos = p
}

// Endpoint is the network-facing attachment point of a node on a segment.
// Each endpoint is owned by exactly one node; a node may expose several
// endpoints across different segments.
type Endpoint struct {
	ID   string
	Node *Node
}
