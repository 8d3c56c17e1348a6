package builder

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/store"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
)

// FieldBuildState carries everything a single field's build accumulates.
// It is created when the field starts and dropped once its header is
// committed; nothing in it is shared between fields.
type FieldBuildState struct {
	Field string

	docs         *roaring.Bitmap
	lastFragment map[uint32]int64

	prefixIDs   map[string]int
	prefixOrder []string
	termPrefix  map[int64]int

	singlePosition   map[string]struct{}
	multiplePosition map[string]struct{}
	setPosition      map[string]struct{}

	terms  int
	tokens int64
}

func NewFieldBuildState(field string) *FieldBuildState {
	return &FieldBuildState{
		Field:            field,
		docs:             roaring.New(),
		lastFragment:     make(map[uint32]int64),
		prefixIDs:        make(map[string]int),
		termPrefix:       make(map[int64]int),
		singlePosition:   make(map[string]struct{}),
		multiplePosition: make(map[string]struct{}),
		setPosition:      make(map[string]struct{}),
	}
}

// registerPrefix returns the id of prefix, appending it to the prefix file
// the first time it is seen. Ids start at 1.
func (s *FieldBuildState) registerPrefix(prefix string, out *store.Output) int {
	if id, ok := s.prefixIDs[prefix]; ok {
		return id
	}
	id := len(s.prefixOrder) + 1
	s.prefixIDs[prefix] = id
	s.prefixOrder = append(s.prefixOrder, prefix)
	out.WriteString(prefix)
	return id
}

// registerToken records the prefix of the term a token was found under and
// the kind of position the prefix is used with.
func (s *FieldBuildState) registerToken(term string, termRef int64, p *token.Position, out *store.Output) {
	prefix := token.PrefixOf(term)
	s.termPrefix[termRef] = s.registerPrefix(prefix, out)
	switch p.Type {
	case token.PositionRange:
		delete(s.singlePosition, prefix)
		s.multiplePosition[prefix] = struct{}{}
	case token.PositionSet:
		delete(s.singlePosition, prefix)
		s.multiplePosition[prefix] = struct{}{}
		s.setPosition[prefix] = struct{}{}
	default:
		if _, ok := s.multiplePosition[prefix]; !ok {
			s.singlePosition[prefix] = struct{}{}
		}
	}
	s.tokens++
}

func (s *FieldBuildState) PrefixID(prefix string) int {
	return s.prefixIDs[prefix]
}

func (s *FieldBuildState) NumberOfDocs() int {
	return int(s.docs.GetCardinality())
}

func (s *FieldBuildState) NumberOfPrefixes() int {
	return len(s.prefixOrder)
}

// PrefixStats holds the sorted prefixes used with single, multiple (range
// or set) and set positions.
type PrefixStats struct {
	Single   []string
	Multiple []string
	Set      []string
}

func (s *FieldBuildState) Stats() PrefixStats {
	return PrefixStats{
		Single:   sortedKeys(s.singlePosition),
		Multiple: sortedKeys(s.multiplePosition),
		Set:      sortedKeys(s.setPosition),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
