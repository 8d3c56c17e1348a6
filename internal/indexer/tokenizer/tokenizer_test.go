package tokenizer

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotateLayers(t *testing.T) {
	tokens := Annotate("The cat sat. Dogs run!")
	require.Len(t, tokens, 12)

	want := []struct {
		value  string
		parent int
		start  int
		end    int
	}{
		{token.JoinValue(LayerSentence, "0"), -1, 0, 2},
		{token.JoinValue(LayerToken, "the"), 0, 0, 0},
		{token.JoinValue(LayerToken, "cat"), 0, 1, 1},
		{token.JoinValue(LayerLemma, "cat"), 2, 1, 1},
		{token.JoinValue(LayerToken, "sat"), 0, 2, 2},
		{token.JoinValue(LayerLemma, "sat"), 4, 2, 2},
		{token.JoinValue(LayerStop, "1"), 0, 0, 0},
		{token.JoinValue(LayerSentence, "1"), -1, 3, 4},
		{token.JoinValue(LayerToken, "dogs"), 7, 3, 3},
		{token.JoinValue(LayerLemma, "dog"), 8, 3, 3},
		{token.JoinValue(LayerToken, "run"), 7, 4, 4},
		{token.JoinValue(LayerLemma, "run"), 10, 4, 4},
	}
	for i, w := range want {
		tok := tokens[i]
		assert.Equal(t, i, tok.ID)
		assert.Equal(t, w.value, tok.Value, "token %d", i)
		parent, ok := tok.Parent()
		if w.parent < 0 {
			assert.False(t, ok, "token %d", i)
		} else {
			assert.Equal(t, w.parent, parent, "token %d", i)
		}
		assert.Equal(t, w.start, tok.Position.Start, "token %d", i)
		assert.Equal(t, w.end, tok.Position.End, "token %d", i)
	}
	assert.Equal(t, token.Offset{Start: 0, End: 11}, *tokens[0].Offset)
	assert.Equal(t, token.Offset{Start: 13, End: 21}, *tokens[7].Offset)
	assert.Equal(t, token.Offset{Start: 13, End: 17}, *tokens[8].Offset)
	assert.Equal(t, token.Offset{Start: 0, End: 3}, *tokens[6].Offset)
}

func TestStopWordsBecomeOneSetToken(t *testing.T) {
	tokens := Annotate("the fox and the hound")
	var stop *token.Token
	for _, tok := range tokens {
		if tok.Prefix() == LayerStop {
			require.Nil(t, stop, "one stop token per sentence")
			stop = tok
		}
	}
	require.NotNil(t, stop)
	assert.Equal(t, token.PositionSet, stop.Position.Type)
	assert.Equal(t, []int{0, 2, 3}, stop.Position.Positions())
	assert.Equal(t, "3", stop.Postfix())
	assert.Equal(t, token.Offset{Start: 0, End: 15}, *stop.Offset)
}

func TestAnnotateFormsForest(t *testing.T) {
	tokens := Annotate(strings.Repeat("Indexing systems normalise words. Is it working? ", 20))
	parents := make([]int, len(tokens))
	for i, tok := range tokens {
		require.Equal(t, i, tok.ID)
		require.NotNil(t, tok.Position)
		parents[i] = -1
		if p, ok := tok.Parent(); ok {
			parents[i] = p
		}
	}
	require.NoError(t, token.CheckForest(parents))
}

func TestAnnotateEmpty(t *testing.T) {
	assert.Empty(t, Annotate(""))
	assert.Empty(t, Annotate(" ... !? "))
}

func TestUnicodeOffsetsCountRunes(t *testing.T) {
	tokens := Annotate("café über")
	require.Len(t, tokens, 5)
	assert.Equal(t, token.Offset{Start: 5, End: 9}, *tokens[3].Offset)
	assert.Equal(t, "über", tokens[3].Postfix())
}

func TestStem(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"running", "runn"},
		{"relational", "relate"},
		{"ponies", "pony"},
		{"cats", "cat"},
		{"is", "is"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stem(tt.in), tt.in)
	}
}

func BenchmarkAnnotate(b *testing.B) {
	text := strings.Repeat(`Information retrieval systems form the backbone of modern search
        infrastructure. These systems combine tokenization, stemming, and stop word
        removal to normalize text into searchable terms. `, 20)
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = Annotate(text)
	}
}
