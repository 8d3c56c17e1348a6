package index

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/builder"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/reader"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func annotate(fields map[string]string) map[string][]*token.Token {
	out := make(map[string][]*token.Token, len(fields))
	for f, text := range fields {
		out[f] = tokenizer.Annotate(text)
	}
	return out
}

func TestAddDocumentAssignsLocalNumbers(t *testing.T) {
	m := NewMemoryIndex([]string{"title", "body"})
	assert.Equal(t, 0, m.AddDocument("doc-a", annotate(map[string]string{"title": "Alpha", "body": "one two"})))
	assert.Equal(t, 1, m.AddDocument("doc-b", annotate(map[string]string{"body": "three"})))
	assert.Equal(t, 2, m.DocCount())
	assert.Equal(t, int64(3+5+3), m.Size())

	_, ok := m.Tokens("doc-b", "title")
	assert.False(t, ok)
	tokens, ok := m.Tokens("doc-a", "body")
	require.True(t, ok)
	assert.Len(t, tokens, 5)
}

func TestReAddReplacesTokens(t *testing.T) {
	m := NewMemoryIndex([]string{"body"})
	m.AddDocument("doc-a", annotate(map[string]string{"body": "one two three"}))
	assert.Equal(t, 0, m.AddDocument("doc-a", annotate(map[string]string{"body": "four"})))
	assert.Equal(t, 1, m.DocCount())
	assert.Equal(t, int64(3), m.Size())

	m.AddDocument("doc-a", annotate(map[string]string{"other": "ignored"}))
	assert.Equal(t, int64(0), m.Size())
	_, ok := m.Tokens("doc-a", "body")
	assert.False(t, ok)
}

func TestSnapshotSurvivesReset(t *testing.T) {
	m := NewMemoryIndex([]string{"body"})
	m.AddDocument("doc-a", annotate(map[string]string{"body": "one two"}))
	snap := m.Snapshot()
	m.Reset()
	m.AddDocument("doc-z", annotate(map[string]string{"body": "later"}))

	assert.Equal(t, []string{"doc-a"}, snap.DocIDs())
	assert.Equal(t, int64(5), snap.Size())
	assert.False(t, snap.Empty())
	terms, err := snap.Terms("body")
	require.NoError(t, err)
	assert.Len(t, terms, 5)
	for _, tp := range terms {
		require.Len(t, tp.Docs, 1)
		assert.Equal(t, 0, tp.Docs[0].DocID)
	}
}

func TestSnapshotBuildsReadableField(t *testing.T) {
	m := NewMemoryIndex([]string{"body"})
	texts := []string{"The cat sat. Dogs run!", "Stemming normalises running words."}
	for i, text := range texts {
		m.AddDocument(string(rune('a'+i)), annotate(map[string]string{"body": text}))
	}
	snap := m.Snapshot()
	dir := t.TempDir()
	_, err := builder.New(builder.Options{}).Build(context.Background(), dir, snap)
	require.NoError(t, err)

	r, err := reader.Open(dir, "body")
	require.NoError(t, err)
	defer r.Close()

	for i, text := range texts {
		want := tokenizer.Annotate(text)
		n, err := r.NumberOfTokens(i)
		require.NoError(t, err)
		require.Equal(t, len(want), n)
		for _, w := range want {
			got, err := r.GetByID(i, w.ID)
			require.NoError(t, err)
			assert.True(t, w.Equal(got), "doc %d token %d: want %v got %v", i, w.ID, w, got)
		}
	}

	children, err := r.GetByParent(0, 0)
	require.NoError(t, err)
	values := make([]string, 0, len(children))
	for _, c := range children {
		values = append(values, c.Value)
	}
	assert.Equal(t, []string{
		token.JoinValue(tokenizer.LayerToken, "the"),
		token.JoinValue(tokenizer.LayerToken, "cat"),
		token.JoinValue(tokenizer.LayerToken, "sat"),
		token.JoinValue(tokenizer.LayerStop, "1"),
	}, values)
}

func TestDrainAndRequeue(t *testing.T) {
	m := NewMemoryIndex([]string{"body"})
	m.AddDocument("doc-a", annotate(map[string]string{"body": "one"}))
	m.AddDocument("doc-b", annotate(map[string]string{"body": "two"}))
	snap := m.Drain()
	assert.Equal(t, 0, m.DocCount())
	assert.Equal(t, int64(0), m.Size())
	assert.Equal(t, []string{"doc-a", "doc-b"}, snap.DocIDs())

	m.AddDocument("doc-b", annotate(map[string]string{"body": "two again"}))
	m.Requeue(snap)
	assert.Equal(t, 2, m.DocCount())
	assert.Equal(t, int64(5+3), m.Size())

	tokens, ok := m.Tokens("doc-b", "body")
	require.True(t, ok)
	assert.Len(t, tokens, 5)
	tokens, ok = m.Tokens("doc-a", "body")
	require.True(t, ok)
	assert.Equal(t, token.JoinValue(tokenizer.LayerToken, "one"), tokens[1].Value)
}
