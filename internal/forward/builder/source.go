package builder

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/payload"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
)

// FieldInfo describes what the postings of one field carry.
type FieldInfo struct {
	Name         string
	HasFreqs     bool
	HasPositions bool
	HasPayloads  bool
	HasOffsets   bool
}

// Indexable reports whether the field can contribute a forward index.
func (f FieldInfo) Indexable() bool {
	return f.HasFreqs && f.HasPositions && f.HasPayloads
}

// Occurrence is one posting position of a term in a document.
type Occurrence struct {
	Position    int
	StartOffset int
	EndOffset   int
	Payload     []byte
}

type DocPostings struct {
	DocID       int
	Occurrences []Occurrence
}

// TermPostings lists the documents a term occurs in, ascending by DocID.
type TermPostings struct {
	Term string
	Docs []DocPostings
}

// PostingsSource is the inverted index a build consumes.
type PostingsSource interface {
	Fields() []FieldInfo
	// Terms returns the postings of field in term order.
	Terms(field string) ([]TermPostings, error)
}

// PayloadDecoder turns a posting payload into a candidate token. It returns
// false for payloads that do not describe a token.
type PayloadDecoder interface {
	Decode(position int, payload []byte) (*token.Token, bool, error)
}

// StaticSource is a PostingsSource over postings held in memory.
type StaticSource struct {
	Infos    []FieldInfo
	Postings map[string][]TermPostings
}

func (s *StaticSource) Fields() []FieldInfo { return s.Infos }

func (s *StaticSource) Terms(field string) ([]TermPostings, error) {
	return s.Postings[field], nil
}

// Postings inverts documents of tokens into term-ordered postings. Every
// token becomes one occurrence of its value at its start position, carrying
// the token encoded by enc as payload.
func Postings(docs map[int][]*token.Token, enc *payload.Encoder) ([]TermPostings, error) {
	byTerm := make(map[string]map[int][]Occurrence)
	for docID, tokens := range docs {
		for _, t := range tokens {
			data, err := enc.Encode(t)
			if err != nil {
				return nil, fmt.Errorf("doc %d: %w", docID, err)
			}
			occ := Occurrence{Payload: data}
			if t.Position != nil {
				occ.Position = t.Position.Start
			}
			if t.Offset != nil {
				occ.StartOffset, occ.EndOffset = t.Offset.Start, t.Offset.End
			}
			if byTerm[t.Value] == nil {
				byTerm[t.Value] = make(map[int][]Occurrence)
			}
			byTerm[t.Value][docID] = append(byTerm[t.Value][docID], occ)
		}
	}
	out := make([]TermPostings, 0, len(byTerm))
	for _, term := range slices.Sorted(maps.Keys(byTerm)) {
		tp := TermPostings{Term: term}
		for _, docID := range slices.Sorted(maps.Keys(byTerm[term])) {
			occs := byTerm[term][docID]
			slices.SortStableFunc(occs, func(a, b Occurrence) int { return cmp.Compare(a.Position, b.Position) })
			tp.Docs = append(tp.Docs, DocPostings{DocID: docID, Occurrences: occs})
		}
		out = append(out, tp)
	}
	return out, nil
}
