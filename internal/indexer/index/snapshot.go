package index

import (
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/builder"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/payload"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
)

// Snapshot is a frozen copy of a MemoryIndex. It implements
// builder.PostingsSource: every token is posted under its value with the
// token itself encoded in the payload.
type Snapshot struct {
	fields []string
	docIDs []string
	tokens map[string]map[int][]*token.Token
	size   int64
}

var _ builder.PostingsSource = (*Snapshot)(nil)

func (s *Snapshot) Fields() []builder.FieldInfo {
	infos := make([]builder.FieldInfo, 0, len(s.fields))
	for _, f := range s.fields {
		infos = append(infos, builder.FieldInfo{
			Name:         f,
			HasFreqs:     true,
			HasPositions: true,
			HasPayloads:  true,
			HasOffsets:   true,
		})
	}
	return infos
}

func (s *Snapshot) Terms(field string) ([]builder.TermPostings, error) {
	return builder.Postings(s.tokens[field], payload.NewEncoder(payload.EncodeAll))
}

// DocIDs maps local document numbers to external ids.
func (s *Snapshot) DocIDs() []string { return s.docIDs }

func (s *Snapshot) DocCount() int { return len(s.docIDs) }

// Size is the number of tokens in the snapshot.
func (s *Snapshot) Size() int64 { return s.size }

func (s *Snapshot) Empty() bool { return len(s.docIDs) == 0 }
