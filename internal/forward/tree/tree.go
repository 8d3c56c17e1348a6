// Package tree implements the interval tree behind the forward index's
// id, position and parent lookups: a left-leaning red-black tree keyed by
// interval lower bound and augmented with the maximum upper bound of each
// subtree. Trees are built in memory, written post-order to a flat file, and
// searched directly on the file.
package tree

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
)

// Value is what a tree stores per token: a reference (object or record file
// pointer) plus, optionally, the prefix id and term reference of the token.
type Value struct {
	ID            int
	Ref           int64
	AdditionalID  int
	AdditionalRef int64
}

type node struct {
	left, right int
	max         int
	red         bool
	leftChild   *node
	rightChild  *node
	values      map[int]Value
}

// Tree is an in-memory augmented interval tree. It is not safe for
// concurrent use.
type Tree struct {
	root            *node
	index           map[[2]int]*node
	singlePoint     bool
	storeAdditional bool
	closed          bool
	placeholder     bool
	nodes           int
}

// New creates a tree. A single-point tree holds exactly one value per key;
// storeAdditional also persists AdditionalID and AdditionalRef.
func New(singlePoint, storeAdditional bool) *Tree {
	return &Tree{
		index:           make(map[[2]int]*node),
		singlePoint:     singlePoint,
		storeAdditional: storeAdditional,
	}
}

func (t *Tree) SinglePoint() bool { return t.singlePoint }

// Len returns the number of distinct intervals.
func (t *Tree) Len() int { return t.nodes }

func (t *Tree) AddPoint(key int, v Value) error {
	return t.AddRange(key, key, v)
}

func (t *Tree) AddRange(left, right int, v Value) error {
	if t.closed {
		return fmt.Errorf("tree closed")
	}
	if left > right {
		left, right = right, left
	}
	if n, ok := t.index[[2]int{left, right}]; ok {
		if t.singlePoint {
			return fmt.Errorf("single-point tree already holds [%d,%d]", left, right)
		}
		n.values[v.ID] = v
		return nil
	}
	t.root = t.insert(t.root, left, right, v)
	t.root.red = false
	return nil
}

// AddPosition indexes v under every maximal contiguous run of p.
func (t *Tree) AddPosition(p *token.Position, v Value) error {
	for _, run := range p.Runs() {
		if err := t.AddRange(run[0], run[1], v); err != nil {
			return err
		}
	}
	return nil
}

// Close freezes the tree. An empty tree gets an empty [0,0] root so that it
// can still be written and searched; it is written as a multi-point tree
// holding no values.
func (t *Tree) Close() {
	if t.closed {
		return
	}
	if t.root == nil {
		t.root = &node{values: map[int]Value{}}
		t.placeholder = true
	}
	t.closed = true
}

func (t *Tree) insert(h *node, left, right int, v Value) *node {
	if h == nil {
		n := &node{left: left, right: right, max: right, red: true, values: map[int]Value{v.ID: v}}
		t.index[[2]int{left, right}] = n
		t.nodes++
		return n
	}
	if left <= h.left {
		h.leftChild = t.insert(h.leftChild, left, right, v)
	} else {
		h.rightChild = t.insert(h.rightChild, left, right, v)
	}
	if isRed(h.rightChild) && !isRed(h.leftChild) {
		h = rotateLeft(h)
	}
	if isRed(h.leftChild) && isRed(h.leftChild.leftChild) {
		h = rotateRight(h)
	}
	if isRed(h.leftChild) && isRed(h.rightChild) {
		flipColors(h)
	}
	setMax(h)
	return h
}

func isRed(n *node) bool {
	return n != nil && n.red
}

func rotateLeft(h *node) *node {
	x := h.rightChild
	h.rightChild = x.leftChild
	x.leftChild = h
	x.red = h.red
	h.red = true
	setMax(h)
	setMax(x)
	return x
}

func rotateRight(h *node) *node {
	x := h.leftChild
	h.leftChild = x.rightChild
	x.rightChild = h
	x.red = h.red
	h.red = true
	setMax(h)
	setMax(x)
	return x
}

func flipColors(h *node) {
	h.red = !h.red
	h.leftChild.red = !h.leftChild.red
	h.rightChild.red = !h.rightChild.red
}

func setMax(n *node) {
	n.max = n.right
	if n.leftChild != nil && n.leftChild.max > n.max {
		n.max = n.leftChild.max
	}
	if n.rightChild != nil && n.rightChild.max > n.max {
		n.max = n.rightChild.max
	}
}
