package token

import (
	"fmt"
	"slices"
)

// PositionType is the representation a Position currently uses.
type PositionType uint8

const (
	PositionSingle PositionType = iota
	PositionRange
	PositionSet
)

func (t PositionType) String() string {
	switch t {
	case PositionSingle:
		return "single"
	case PositionRange:
		return "range"
	case PositionSet:
		return "set"
	default:
		return fmt.Sprintf("PositionType(%d)", uint8(t))
	}
}

// Position is a token position in its minimal form: a single position, a
// contiguous range [Start,End], or a sorted set of distinct positions that is
// not contiguous. List is only populated for sets.
type Position struct {
	Type  PositionType `json:"type"`
	Start int          `json:"start"`
	End   int          `json:"end"`
	List  []int        `json:"list,omitempty"`
}

func NewSinglePosition(p int) *Position {
	return &Position{Type: PositionSingle, Start: p, End: p}
}

func NewRangePosition(start, end int) *Position {
	if start > end {
		start, end = end, start
	}
	if start == end {
		return NewSinglePosition(start)
	}
	return &Position{Type: PositionRange, Start: start, End: end}
}

// NewSetPosition derives the minimal form of the given positions. Duplicates
// are dropped. An empty input returns nil.
func NewSetPosition(positions []int) *Position {
	if len(positions) == 0 {
		return nil
	}
	list := slices.Clone(positions)
	slices.Sort(list)
	list = slices.Compact(list)
	return fromSorted(list)
}

func fromSorted(list []int) *Position {
	first, last := list[0], list[len(list)-1]
	switch {
	case len(list) == 1:
		return NewSinglePosition(first)
	case last-first+1 == len(list):
		return &Position{Type: PositionRange, Start: first, End: last}
	default:
		return &Position{Type: PositionSet, Start: first, End: last, List: list}
	}
}

func (p *Position) Length() int {
	switch p.Type {
	case PositionSet:
		return len(p.List)
	default:
		return p.End - p.Start + 1
	}
}

// Positions lists every covered position in ascending order.
func (p *Position) Positions() []int {
	if p.Type == PositionSet {
		return slices.Clone(p.List)
	}
	out := make([]int, 0, p.End-p.Start+1)
	for i := p.Start; i <= p.End; i++ {
		out = append(out, i)
	}
	return out
}

func (p *Position) Contains(pos int) bool {
	if pos < p.Start || pos > p.End {
		return false
	}
	if p.Type != PositionSet {
		return true
	}
	_, found := slices.BinarySearch(p.List, pos)
	return found
}

// Runs splits the position into maximal contiguous [start,end] runs.
func (p *Position) Runs() [][2]int {
	if p.Type != PositionSet {
		return [][2]int{{p.Start, p.End}}
	}
	var runs [][2]int
	start, prev := p.List[0], p.List[0]
	for _, v := range p.List[1:] {
		if v != prev+1 {
			runs = append(runs, [2]int{start, prev})
			start = v
		}
		prev = v
	}
	return append(runs, [2]int{start, prev})
}

// Add merges a single position.
func (p *Position) Add(pos int) {
	if p.Type == PositionSingle {
		switch {
		case pos == p.Start:
			return
		case pos == p.Start+1:
			p.Type, p.End = PositionRange, pos
			return
		case pos == p.Start-1:
			p.Type, p.Start = PositionRange, pos
			return
		}
	}
	p.AddList([]int{pos})
}

func (p *Position) AddRange(start, end int) {
	if start > end {
		start, end = end, start
	}
	list := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		list = append(list, i)
	}
	p.AddList(list)
}

func (p *Position) AddList(positions []int) {
	if len(positions) == 0 {
		return
	}
	merged := append(p.Positions(), positions...)
	slices.Sort(merged)
	*p = *fromSorted(slices.Compact(merged))
}

func (p *Position) Equal(o *Position) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.Type == o.Type && p.Start == o.Start && p.End == o.End && slices.Equal(p.List, o.List)
}

func (p *Position) String() string {
	switch p.Type {
	case PositionSingle:
		return fmt.Sprintf("[%d]", p.Start)
	case PositionRange:
		return fmt.Sprintf("[%d-%d]", p.Start, p.End)
	default:
		return fmt.Sprint(p.List)
	}
}
