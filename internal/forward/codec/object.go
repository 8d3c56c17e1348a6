package codec

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/store"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
)

// Object record flags. Fields follow the flags in this order; an absent flag
// means the field is not stored at all.
const (
	HasParent        = 1 << 0
	HasPositionRange = 1 << 1
	HasPositionSet   = 1 << 2
	HasOffset        = 1 << 3
	HasRealOffset    = 1 << 4
	HasPayload       = 1 << 5

	knownFlags = HasParent | HasPositionRange | HasPositionSet | HasOffset | HasRealOffset | HasPayload
)

// Flags computes the record flags for t.
func Flags(t *token.Token) int {
	flags := 0
	if t.ParentID != nil {
		flags |= HasParent
	}
	if t.Position != nil {
		switch t.Position.Type {
		case token.PositionRange:
			flags |= HasPositionRange
		case token.PositionSet:
			flags |= HasPositionSet
		}
	}
	if t.Offset != nil {
		flags |= HasOffset
	}
	if t.RealOffset != nil {
		flags |= HasRealOffset
	}
	if t.Payload != nil {
		flags |= HasPayload
	}
	return flags
}

// WriteObject appends the record for t, ending with t.TermRef.
func WriteObject(out *store.Output, t *token.Token) error {
	if t.Position == nil {
		return apperrors.Corruptf("token %d: no position", t.ID)
	}
	flags := Flags(t)
	out.WriteVInt(t.ID)
	out.WriteVInt(flags)
	if flags&HasParent != 0 {
		out.WriteVInt(*t.ParentID)
	}
	switch {
	case flags&HasPositionRange != 0:
		out.WriteVInt(t.Position.Start)
		out.WriteVInt(t.Position.End - t.Position.Start)
	case flags&HasPositionSet != 0:
		out.WriteVInt(len(t.Position.List))
		previous := 0
		for _, p := range t.Position.List {
			out.WriteVInt(p - previous)
			previous = p
		}
	default:
		out.WriteVInt(t.Position.Start)
	}
	if flags&HasOffset != 0 {
		out.WriteVInt(t.Offset.Start)
		out.WriteVInt(t.Offset.End - t.Offset.Start)
	}
	if flags&HasRealOffset != 0 {
		out.WriteVInt(t.RealOffset.Start)
		out.WriteVInt(t.RealOffset.End - t.RealOffset.Start)
	}
	if flags&HasPayload != 0 {
		out.WriteVInt(len(t.Payload))
		out.WriteBytes(t.Payload)
	}
	out.WriteVLong(t.TermRef)
	if err := out.Err(); err != nil {
		return fmt.Errorf("writing object %d: %w", t.ID, err)
	}
	return nil
}

// ReadObject decodes the record at the cursor of in. Value is left empty;
// TermRef points into the term file.
func ReadObject(in *store.Input) (*token.Token, error) {
	start := in.FilePointer()
	id, err := in.ReadVInt()
	if err != nil {
		return nil, err
	}
	flags, err := in.ReadVInt()
	if err != nil {
		return nil, err
	}
	if flags&^knownFlags != 0 {
		return nil, apperrors.Corruptf("object at %d: unknown flags %#x", start, flags)
	}
	if flags&HasPositionRange != 0 && flags&HasPositionSet != 0 {
		return nil, apperrors.Corruptf("object at %d: both range and set position", start)
	}
	t := &token.Token{Kind: token.KindString, ID: id}
	if flags&HasParent != 0 {
		parent, err := in.ReadVInt()
		if err != nil {
			return nil, err
		}
		t.SetParent(parent)
	}
	if t.Position, err = readPosition(in, flags, start); err != nil {
		return nil, err
	}
	if flags&HasOffset != 0 {
		if t.Offset, err = readOffset(in); err != nil {
			return nil, err
		}
	}
	if flags&HasRealOffset != 0 {
		if t.RealOffset, err = readOffset(in); err != nil {
			return nil, err
		}
	}
	if flags&HasPayload != 0 {
		n, err := in.ReadVInt()
		if err != nil {
			return nil, err
		}
		if t.Payload, err = in.ReadBytes(n); err != nil {
			return nil, err
		}
	}
	if t.TermRef, err = in.ReadVLong(); err != nil {
		return nil, err
	}
	return t, nil
}

func readPosition(in *store.Input, flags int, start int64) (*token.Position, error) {
	switch {
	case flags&HasPositionRange != 0:
		first, err := in.ReadVInt()
		if err != nil {
			return nil, err
		}
		length, err := in.ReadVInt()
		if err != nil {
			return nil, err
		}
		if length == 0 {
			return nil, apperrors.Corruptf("object at %d: zero-length range", start)
		}
		return token.NewRangePosition(first, first+length), nil
	case flags&HasPositionSet != 0:
		count, err := in.ReadVInt()
		if err != nil {
			return nil, err
		}
		if count < 2 {
			return nil, apperrors.Corruptf("object at %d: position set of %d", start, count)
		}
		if int64(count) > in.Len()-in.FilePointer() {
			return nil, apperrors.Corruptf("object at %d: position set count %d exceeds record", start, count)
		}
		list := make([]int, count)
		previous := 0
		for i := range list {
			delta, err := in.ReadVInt()
			if err != nil {
				return nil, err
			}
			if i > 0 && delta == 0 {
				return nil, apperrors.Corruptf("object at %d: non-increasing position set", start)
			}
			previous += delta
			list[i] = previous
		}
		// A set is written only when it has a gap; anything else is a Range.
		if list[count-1]-list[0] == count-1 {
			return nil, apperrors.Corruptf("object at %d: contiguous position set", start)
		}
		return token.NewSetPosition(list), nil
	default:
		p, err := in.ReadVInt()
		if err != nil {
			return nil, err
		}
		return token.NewSinglePosition(p), nil
	}
}

func readOffset(in *store.Input) (*token.Offset, error) {
	start, err := in.ReadVInt()
	if err != nil {
		return nil, err
	}
	length, err := in.ReadVInt()
	if err != nil {
		return nil, err
	}
	return &token.Offset{Start: start, End: start + length}, nil
}

// ReadTerm reads the term string stored at ref.
func ReadTerm(terms *store.Input, ref int64) (string, error) {
	if err := terms.Seek(ref); err != nil {
		return "", err
	}
	return terms.ReadString()
}

// ReadToken decodes the object at ref and resolves its value from terms.
func ReadToken(objects, terms *store.Input, ref int64) (*token.Token, error) {
	if err := objects.Seek(ref); err != nil {
		return nil, err
	}
	t, err := ReadObject(objects)
	if err != nil {
		return nil, err
	}
	if t.Value, err = ReadTerm(terms, t.TermRef); err != nil {
		return nil, fmt.Errorf("object %d term: %w", t.ID, err)
	}
	return t, nil
}
