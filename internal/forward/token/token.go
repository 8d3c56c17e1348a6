// Package token defines the unit stored in the forward index: an identified,
// positioned annotation value with optional parent, character offsets and
// payload.
package token

import (
	"bytes"
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
)

// Delimiter separates the prefix (annotation layer) from the postfix (value)
// in a composite token value.
const Delimiter = "\u0001"

// Kind tags the token variant. Only string tokens exist on disk today.
type Kind uint8

const (
	KindString Kind = iota
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Offset is a half-open character span [Start,End).
type Offset struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func NewOffset(start, end int) (*Offset, error) {
	if start > end {
		return nil, fmt.Errorf("%w: offset start %d after end %d", apperrors.ErrInvalidInput, start, end)
	}
	return &Offset{Start: start, End: end}, nil
}

// Token is one indexed unit. ID is dense within its document. TermRef and
// PrefixID are filled in by the builder and reader and are zero otherwise.
type Token struct {
	Kind       Kind      `json:"kind"`
	ID         int       `json:"id"`
	ParentID   *int      `json:"parentId,omitempty"`
	Position   *Position `json:"position,omitempty"`
	Offset     *Offset   `json:"offset,omitempty"`
	RealOffset *Offset   `json:"realOffset,omitempty"`
	Payload    []byte    `json:"payload,omitempty"`
	Value      string    `json:"value"`
	TermRef    int64     `json:"-"`
	PrefixID   int       `json:"-"`
}

// New returns a string token with a single position.
func New(id int, prefix, postfix string, position int) *Token {
	return &Token{
		Kind:     KindString,
		ID:       id,
		Value:    JoinValue(prefix, postfix),
		Position: NewSinglePosition(position),
	}
}

func (t *Token) SetParent(id int) {
	t.ParentID = &id
}

func (t *Token) Parent() (int, bool) {
	if t.ParentID == nil {
		return 0, false
	}
	return *t.ParentID, true
}

func (t *Token) AddPosition(p int) {
	if t.Position == nil {
		t.Position = NewSinglePosition(p)
		return
	}
	t.Position.Add(p)
}

func (t *Token) AddPositionRange(start, end int) {
	if t.Position == nil {
		t.Position = NewRangePosition(start, end)
		return
	}
	t.Position.AddRange(start, end)
}

func (t *Token) AddPositions(positions []int) {
	if t.Position == nil {
		t.Position = NewSetPosition(positions)
		return
	}
	t.Position.AddList(positions)
}

func (t *Token) SetOffset(start, end int) error {
	o, err := NewOffset(start, end)
	if err != nil {
		return err
	}
	t.Offset = o
	return nil
}

// AddOffset widens the offset to cover [start,end).
func (t *Token) AddOffset(start, end int) error {
	if t.Offset == nil {
		return t.SetOffset(start, end)
	}
	o, err := widen(t.Offset, start, end)
	if err != nil {
		return err
	}
	t.Offset = o
	return nil
}

func (t *Token) SetRealOffset(start, end int) error {
	o, err := NewOffset(start, end)
	if err != nil {
		return err
	}
	t.RealOffset = o
	return nil
}

func (t *Token) AddRealOffset(start, end int) error {
	if t.RealOffset == nil {
		return t.SetRealOffset(start, end)
	}
	o, err := widen(t.RealOffset, start, end)
	if err != nil {
		return err
	}
	t.RealOffset = o
	return nil
}

func widen(o *Offset, start, end int) (*Offset, error) {
	if start > end {
		return nil, fmt.Errorf("%w: offset start %d after end %d", apperrors.ErrInvalidInput, start, end)
	}
	return &Offset{Start: min(o.Start, start), End: max(o.End, end)}, nil
}

func (t *Token) Prefix() string {
	return PrefixOf(t.Value)
}

func (t *Token) Postfix() string {
	return PostfixOf(t.Value)
}

// JoinValue builds a composite value.
func JoinValue(prefix, postfix string) string {
	return prefix + Delimiter + postfix
}

// PrefixOf returns the annotation layer of a composite value with NUL bytes
// removed. A value without delimiter is all prefix.
func PrefixOf(value string) string {
	prefix, _, _ := strings.Cut(value, Delimiter)
	return strings.ReplaceAll(prefix, "\u0000", "")
}

func PostfixOf(value string) string {
	_, postfix, _ := strings.Cut(value, Delimiter)
	return postfix
}

// Equal compares the stored fields of two tokens, ignoring build bookkeeping.
func (t *Token) Equal(o *Token) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Kind != o.Kind || t.ID != o.ID || t.Value != o.Value {
		return false
	}
	if (t.ParentID == nil) != (o.ParentID == nil) || (t.ParentID != nil && *t.ParentID != *o.ParentID) {
		return false
	}
	return t.Position.Equal(o.Position) &&
		equalOffset(t.Offset, o.Offset) &&
		equalOffset(t.RealOffset, o.RealOffset) &&
		bytes.Equal(t.Payload, o.Payload)
}

func equalOffset(a, b *Offset) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (t *Token) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%s=%q", t.ID, t.Prefix(), t.Postfix())
	if t.Position != nil {
		b.WriteString(t.Position.String())
	}
	if p, ok := t.Parent(); ok {
		fmt.Fprintf(&b, " parent=%d", p)
	}
	return b.String()
}
