// Package index buffers annotated documents in memory until the engine seals
// them into a segment. A frozen Snapshot is the postings source of that
// segment's forward index build.
package index

import (
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
)

// MemoryIndex holds the tokens of unsealed documents per field. Documents
// get dense local numbers in arrival order; re-adding an id replaces its
// tokens and keeps its number.
type MemoryIndex struct {
	mu     sync.RWMutex
	fields []string
	docIDs []string
	local  map[string]int
	tokens map[string]map[int][]*token.Token
	size   int64
}

func NewMemoryIndex(fields []string) *MemoryIndex {
	m := &MemoryIndex{fields: slices.Clone(fields)}
	m.reset()
	return m
}

// AddDocument stores the annotated fields of docID. Fields that are not
// configured are ignored. It returns the local document number.
func (m *MemoryIndex) AddDocument(docID string, fields map[string][]*token.Token) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	local, exists := m.local[docID]
	if !exists {
		local = len(m.docIDs)
		m.local[docID] = local
		m.docIDs = append(m.docIDs, docID)
	}
	for _, field := range m.fields {
		byDoc := m.tokens[field]
		m.size -= int64(len(byDoc[local]))
		tokens, ok := fields[field]
		if !ok || len(tokens) == 0 {
			delete(byDoc, local)
			continue
		}
		byDoc[local] = tokens
		m.size += int64(len(tokens))
	}
	return local
}

// Tokens returns the buffered tokens of docID in field.
func (m *MemoryIndex) Tokens(docID, field string) ([]*token.Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	local, ok := m.local[docID]
	if !ok {
		return nil, false
	}
	tokens, ok := m.tokens[field][local]
	return tokens, ok
}

// Snapshot freezes the buffered documents. The memory index may be Reset
// afterwards without affecting the snapshot.
func (m *MemoryIndex) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := &Snapshot{
		fields: slices.Clone(m.fields),
		docIDs: slices.Clone(m.docIDs),
		tokens: make(map[string]map[int][]*token.Token, len(m.tokens)),
		size:   m.size,
	}
	for field, byDoc := range m.tokens {
		cp := make(map[int][]*token.Token, len(byDoc))
		for doc, tokens := range byDoc {
			cp[doc] = tokens
		}
		s.tokens[field] = cp
	}
	return s
}

// Size is the number of buffered tokens.
func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docIDs)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

func (m *MemoryIndex) reset() {
	m.docIDs = nil
	m.local = make(map[string]int)
	m.tokens = make(map[string]map[int][]*token.Token, len(m.fields))
	for _, f := range m.fields {
		m.tokens[f] = make(map[int][]*token.Token)
	}
	m.size = 0
}

// Drain returns a snapshot of the buffered documents and empties the index
// in one step, so documents added meanwhile land in the next snapshot.
func (m *MemoryIndex) Drain() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &Snapshot{
		fields: m.fields,
		docIDs: m.docIDs,
		tokens: m.tokens,
		size:   m.size,
	}
	m.reset()
	return s
}

// Requeue puts the documents of a snapshot that failed to seal back into
// the index. Documents re-added since the snapshot was taken keep their
// newer tokens.
func (m *MemoryIndex) Requeue(s *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for old, docID := range s.docIDs {
		if _, newer := m.local[docID]; newer {
			continue
		}
		local := len(m.docIDs)
		m.local[docID] = local
		m.docIDs = append(m.docIDs, docID)
		for _, field := range m.fields {
			if tokens, ok := s.tokens[field][old]; ok {
				m.tokens[field][local] = tokens
				m.size += int64(len(tokens))
			}
		}
	}
}
