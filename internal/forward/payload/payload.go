// Package payload smuggles a token's identity, extent, offsets and parent
// through a posting payload. The start position is not stored; it is the
// position of the posting the payload is attached to.
//
// Layout: one marker byte, then a bit stream (least significant bit first):
//
//	2 bits position type (00 single, 10 range, 01 set, 11 none)
//	1 bit offset, 1 bit real offset, 1 bit parent, 1 bit payload, 1 bit kind
//	elias-gamma id, range length or set size and gaps, offset, real offset,
//	parent delta
//
// padded to a byte boundary and followed by the raw payload bytes.
package payload

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
)

// Marker is the first byte of every forward index payload. Payloads that do
// not start with it belong to someone else (scoring, say) and are skipped.
const Marker byte = 0xF5

// What to include when encoding.
const (
	EncodePayload = 1 << iota
	EncodeOffset
	EncodeRealOffset
	EncodeParent

	EncodeDefault = EncodePayload | EncodeOffset | EncodeParent
	EncodeAll     = EncodePayload | EncodeOffset | EncodeRealOffset | EncodeParent
)

type Encoder struct {
	Flags int
}

func NewEncoder(flags int) *Encoder {
	return &Encoder{Flags: flags}
}

// Encode serializes t. The token must have a position unless it is meant to
// be rejected downstream.
func (e *Encoder) Encode(t *token.Token) ([]byte, error) {
	w := &bitWriter{buf: []byte{Marker}}
	switch {
	case t.Position == nil:
		w.writeBit(1)
		w.writeBit(1)
	case t.Position.Type == token.PositionSingle:
		w.writeBit(0)
		w.writeBit(0)
	case t.Position.Type == token.PositionRange:
		w.writeBit(1)
		w.writeBit(0)
	default:
		w.writeBit(0)
		w.writeBit(1)
	}
	withOffset := e.Flags&EncodeOffset != 0 && t.Offset != nil
	withReal := e.Flags&EncodeRealOffset != 0 && t.RealOffset != nil
	withParent := e.Flags&EncodeParent != 0 && t.ParentID != nil
	withPayload := e.Flags&EncodePayload != 0 && t.Payload != nil
	for _, b := range []bool{withOffset, withReal, withParent, withPayload} {
		w.writeBit(boolBit(b))
	}
	switch t.Kind {
	case token.KindString:
		w.writeBit(0)
	default:
		return nil, fmt.Errorf("%w: cannot encode token kind %v", apperrors.ErrInvalidInput, t.Kind)
	}

	if err := e.encodeFields(w, t, withOffset, withReal, withParent); err != nil {
		return nil, fmt.Errorf("%w: encoding token %d: %v", apperrors.ErrInvalidInput, t.ID, err)
	}
	w.flush()
	if withPayload {
		w.buf = append(w.buf, t.Payload...)
	}
	return w.buf, nil
}

func (e *Encoder) encodeFields(w *bitWriter, t *token.Token, withOffset, withReal, withParent bool) error {
	if err := w.writeNonNegative(t.ID); err != nil {
		return err
	}
	if t.Position != nil {
		switch t.Position.Type {
		case token.PositionRange:
			if err := w.writePositive(1 + t.Position.End - t.Position.Start); err != nil {
				return err
			}
		case token.PositionSet:
			list := t.Position.List
			if err := w.writePositive(len(list)); err != nil {
				return err
			}
			for i := 1; i < len(list); i++ {
				if err := w.writePositive(list[i] - list[i-1]); err != nil {
					return err
				}
			}
		}
	}
	if withOffset {
		if err := writeSpan(w, t.Offset.Start, t.Offset); err != nil {
			return err
		}
	}
	if withReal {
		if withOffset {
			if err := w.writeSigned(t.RealOffset.Start - t.Offset.Start); err != nil {
				return err
			}
			if err := w.writePositive(1 + t.RealOffset.End - t.RealOffset.Start); err != nil {
				return err
			}
		} else if err := writeSpan(w, t.RealOffset.Start, t.RealOffset); err != nil {
			return err
		}
	}
	if withParent {
		if err := w.writeSigned(*t.ParentID - t.ID); err != nil {
			return err
		}
	}
	return nil
}

func writeSpan(w *bitWriter, start int, o *token.Offset) error {
	if err := w.writeNonNegative(start); err != nil {
		return err
	}
	return w.writePositive(1 + o.End - o.Start)
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Decoder turns payloads back into tokens.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode reads the payload attached to a posting at position. It reports
// false for payloads that are not forward index payloads. A decoded token
// may have a nil Position when the encoder recorded none.
func (d *Decoder) Decode(position int, data []byte) (*token.Token, bool, error) {
	if len(data) == 0 || data[0] != Marker {
		return nil, false, nil
	}
	r := &bitReader{data: data[1:]}
	t, err := decode(r, position)
	if err != nil {
		return nil, true, apperrors.Corruptf("payload at position %d: %v", position, err)
	}
	return t, true, nil
}

func decode(r *bitReader, position int) (*token.Token, error) {
	var head [7]int
	for i := range head {
		bit, err := r.readBit()
		if err != nil {
			return nil, err
		}
		head[i] = bit
	}
	withOffset, withReal, withParent, withPayload := head[2] == 1, head[3] == 1, head[4] == 1, head[5] == 1
	if head[6] != 0 {
		return nil, fmt.Errorf("unsupported token kind")
	}
	t := &token.Token{Kind: token.KindString}
	var err error
	if t.ID, err = r.readNonNegative(); err != nil {
		return nil, err
	}
	switch {
	case head[0] == 0 && head[1] == 0:
		t.Position = token.NewSinglePosition(position)
	case head[0] == 1 && head[1] == 0:
		length, err := r.readPositive()
		if err != nil {
			return nil, err
		}
		t.Position = token.NewRangePosition(position, position+length-1)
	case head[0] == 0 && head[1] == 1:
		n, err := r.readPositive()
		if err != nil {
			return nil, err
		}
		list := make([]int, 1, min(n, 1024))
		list[0] = position
		for i := 1; i < n; i++ {
			gap, err := r.readPositive()
			if err != nil {
				return nil, err
			}
			list = append(list, list[i-1]+gap)
		}
		t.Position = token.NewSetPosition(list)
	}
	if withOffset {
		if t.Offset, err = readSpan(r); err != nil {
			return nil, err
		}
	}
	if withReal {
		if withOffset {
			delta, err := r.readSigned()
			if err != nil {
				return nil, err
			}
			length, err := r.readPositive()
			if err != nil {
				return nil, err
			}
			start := t.Offset.Start + delta
			t.RealOffset = &token.Offset{Start: start, End: start + length - 1}
		} else if t.RealOffset, err = readSpan(r); err != nil {
			return nil, err
		}
	}
	if withParent {
		delta, err := r.readSigned()
		if err != nil {
			return nil, err
		}
		t.SetParent(t.ID + delta)
	}
	if withPayload {
		t.Payload = r.remaining()
	}
	return t, nil
}

func readSpan(r *bitReader) (*token.Offset, error) {
	start, err := r.readNonNegative()
	if err != nil {
		return nil, err
	}
	length, err := r.readPositive()
	if err != nil {
		return nil, err
	}
	return &token.Offset{Start: start, End: start + length - 1}, nil
}
