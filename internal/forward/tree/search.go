package tree

import (
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
)

// Hit is one value found by a search, with the interval it was stored under.
type Hit struct {
	Left          int
	Right         int
	Ref           int64
	AdditionalID  int
	AdditionalRef int64
}

type diskNode struct {
	fp          int64
	left, right int
	max         int
	leftChild   int64
	rightChild  int64
	valuesFP    int64
}

type cursor struct {
	in      *store.Input
	base    int64
	flags   byte
	refBase int64
	visits  int
	limit   int
}

func open(in *store.Input, rootFP, refBase int64) (*cursor, diskNode, error) {
	c := &cursor{in: in, refBase: refBase}
	// Every node takes at least five bytes, so a walk visiting more nodes
	// than that is following a cycle.
	c.limit = int(in.Len()/5) + 1
	if err := in.Seek(rootFP); err != nil {
		return nil, diskNode{}, err
	}
	base, err := in.ReadVLong()
	if err != nil {
		return nil, diskNode{}, err
	}
	flags, err := in.ReadByte()
	if err != nil {
		return nil, diskNode{}, err
	}
	if flags&^(FlagSinglePoint|FlagStoreAdditional) != 0 {
		return nil, diskNode{}, apperrors.Corruptf("%s: tree at %d has unknown flags %#x", in.Name(), rootFP, flags)
	}
	c.base, c.flags = base, flags
	root, err := c.readFields(rootFP)
	return c, root, err
}

func (c *cursor) readFields(fp int64) (diskNode, error) {
	c.visits++
	if c.visits > c.limit {
		return diskNode{}, apperrors.Corruptf("%s: tree walk exceeded %d nodes", c.in.Name(), c.limit)
	}
	n := diskNode{fp: fp}
	var err error
	if n.left, err = c.in.ReadVInt(); err != nil {
		return n, err
	}
	if n.right, err = c.in.ReadVInt(); err != nil {
		return n, err
	}
	if n.max, err = c.in.ReadVInt(); err != nil {
		return n, err
	}
	rel, err := c.in.ReadZLong()
	if err != nil {
		return n, err
	}
	n.leftChild = c.base + rel
	if rel, err = c.in.ReadZLong(); err != nil {
		return n, err
	}
	n.rightChild = c.base + rel
	n.valuesFP = c.in.FilePointer()
	return n, nil
}

func (c *cursor) readNode(fp int64) (diskNode, error) {
	if err := c.in.Seek(fp); err != nil {
		return diskNode{}, err
	}
	return c.readFields(fp)
}

func (c *cursor) values(n diskNode, hits []Hit) ([]Hit, error) {
	if err := c.in.Seek(n.valuesFP); err != nil {
		return hits, err
	}
	count := 1
	if c.flags&FlagSinglePoint == 0 {
		var err error
		if count, err = c.in.ReadVInt(); err != nil {
			return hits, err
		}
	}
	ref := c.refBase
	for i := 0; i < count; i++ {
		if i == 0 {
			rel, err := c.in.ReadZLong()
			if err != nil {
				return hits, err
			}
			ref = c.refBase + rel
		} else {
			delta, err := c.in.ReadVLong()
			if err != nil {
				return hits, err
			}
			ref += delta
		}
		hit := Hit{Left: n.left, Right: n.right, Ref: ref}
		if c.flags&FlagStoreAdditional != 0 {
			var err error
			if hit.AdditionalID, err = c.in.ReadVInt(); err != nil {
				return hits, err
			}
			if hit.AdditionalRef, err = c.in.ReadVLong(); err != nil {
				return hits, err
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Search returns every value stored under an interval intersecting
// [start,end]. For a single point query pass start == end.
func Search(in *store.Input, rootFP int64, start, end int, refBase int64) ([]Hit, error) {
	if start > end {
		start, end = end, start
	}
	c, root, err := open(in, rootFP, refBase)
	if err != nil {
		return nil, err
	}
	var hits []Hit
	stack := []diskNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if start > n.max {
			continue
		}
		if n.left <= end && start <= n.right {
			if hits, err = c.values(n, hits); err != nil {
				return nil, err
			}
		}
		if n.rightChild != n.fp && n.left <= end {
			child, err := c.readNode(n.rightChild)
			if err != nil {
				return nil, err
			}
			stack = append(stack, child)
		}
		if n.leftChild != n.fp {
			child, err := c.readNode(n.leftChild)
			if err != nil {
				return nil, err
			}
			stack = append(stack, child)
		}
	}
	return hits, nil
}

// Advance returns the values stored under the smallest lower bound that is
// at least position; nil when there is none.
func Advance(in *store.Input, rootFP int64, position int, refBase int64) ([]Hit, error) {
	c, n, err := open(in, rootFP, refBase)
	if err != nil {
		return nil, err
	}
	found := false
	best := 0
	for {
		if n.left >= position {
			if !found || n.left < best {
				best, found = n.left, true
			}
			if n.leftChild == n.fp {
				break
			}
			if n, err = c.readNode(n.leftChild); err != nil {
				return nil, err
			}
			continue
		}
		if n.rightChild == n.fp {
			break
		}
		if n, err = c.readNode(n.rightChild); err != nil {
			return nil, err
		}
	}
	if !found {
		return nil, nil
	}
	hits, err := Search(in, rootFP, best, best, refBase)
	if err != nil {
		return nil, err
	}
	var out []Hit
	for _, h := range hits {
		if h.Left == best {
			out = append(out, h)
		}
	}
	return out, nil
}
