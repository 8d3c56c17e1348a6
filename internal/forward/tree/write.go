package tree

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/store"
)

// Root flag bits.
const (
	FlagSinglePoint     = 1
	FlagStoreAdditional = 2
)

// Write serializes a closed tree post-order and returns the file pointer of
// its root. Child pointers are stored relative to the position where the
// tree starts, which the root records; value references are stored relative
// to refBase.
func Write(out *store.Output, t *Tree, refBase int64) (int64, error) {
	if !t.closed {
		return 0, fmt.Errorf("writing tree: not closed")
	}
	w := &treeWriter{out: out, base: out.FilePointer(), refBase: refBase}
	if t.singlePoint && !t.placeholder {
		w.flags |= FlagSinglePoint
	}
	if t.storeAdditional {
		w.flags |= FlagStoreAdditional
	}
	fp, err := w.write(t.root, true)
	if err != nil {
		return 0, err
	}
	if err := out.Err(); err != nil {
		return 0, fmt.Errorf("writing tree: %w", err)
	}
	return fp, nil
}

type treeWriter struct {
	out     *store.Output
	base    int64
	refBase int64
	flags   byte
}

func (w *treeWriter) write(n *node, isRoot bool) (int64, error) {
	leftFP, rightFP := int64(-1), int64(-1)
	var err error
	if n.leftChild != nil {
		if leftFP, err = w.write(n.leftChild, false); err != nil {
			return 0, err
		}
	}
	if n.rightChild != nil {
		if rightFP, err = w.write(n.rightChild, false); err != nil {
			return 0, err
		}
	}
	fp := w.out.FilePointer()
	if leftFP < 0 {
		leftFP = fp
	}
	if rightFP < 0 {
		rightFP = fp
	}
	if isRoot {
		w.out.WriteVLong(w.base)
		if err := w.out.WriteByte(w.flags); err != nil {
			return 0, err
		}
	}
	w.out.WriteVInt(n.left)
	w.out.WriteVInt(n.right)
	w.out.WriteVInt(n.max)
	w.out.WriteZLong(leftFP - w.base)
	w.out.WriteZLong(rightFP - w.base)

	values := make([]Value, 0, len(n.values))
	for _, v := range n.values {
		values = append(values, v)
	}
	slices.SortFunc(values, func(a, b Value) int {
		if c := cmp.Compare(a.Ref, b.Ref); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if w.flags&FlagSinglePoint != 0 {
		if len(values) != 1 {
			return 0, fmt.Errorf("single-point node [%d,%d] holds %d values", n.left, n.right, len(values))
		}
	} else {
		w.out.WriteVInt(len(values))
	}
	previous := w.refBase
	for i, v := range values {
		if i == 0 {
			w.out.WriteZLong(v.Ref - w.refBase)
		} else {
			w.out.WriteVLong(v.Ref - previous)
		}
		previous = v.Ref
		if w.flags&FlagStoreAdditional != 0 {
			w.out.WriteVInt(v.AdditionalID)
			w.out.WriteVLong(v.AdditionalRef)
		}
	}
	return fp, w.out.Err()
}
