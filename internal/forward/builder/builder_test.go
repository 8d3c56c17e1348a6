package builder

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/codec"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/lock"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/payload"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/store"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var indexable = FieldInfo{Name: "body", HasFreqs: true, HasPositions: true, HasPayloads: true, HasOffsets: true}

func source(t *testing.T, info FieldInfo, docs map[int][]*token.Token) *StaticSource {
	t.Helper()
	postings, err := Postings(docs, payload.NewEncoder(payload.EncodeAll))
	require.NoError(t, err)
	return &StaticSource{
		Infos:    []FieldInfo{info},
		Postings: map[string][]TermPostings{info.Name: postings},
	}
}

func words(values ...string) []*token.Token {
	tokens := make([]*token.Token, len(values))
	for i, v := range values {
		tokens[i] = token.New(i, "t", v, i)
	}
	return tokens
}

func testBuilder() *Builder {
	return New(Options{Lock: lock.Policy{MaxAttempts: 3, Sleep: time.Millisecond}})
}

func TestBuildWritesEveryFile(t *testing.T) {
	dir := t.TempDir()
	src := source(t, indexable, map[int][]*token.Token{
		0: words("the", "cat", "sat"),
		3: words("a", "dog"),
	})
	res, err := testBuilder().Build(context.Background(), dir, src)
	require.NoError(t, err)
	require.Len(t, res.Fields, 1)
	fr := res.Fields[0]
	assert.Equal(t, "body", fr.Field)
	assert.Equal(t, 2, fr.Docs)
	assert.Equal(t, 5, fr.Terms)
	assert.Equal(t, 1, fr.Prefixes)
	assert.Equal(t, int64(5), fr.Tokens)

	for _, role := range codec.SealedRoles {
		assert.FileExists(t, codec.Path(dir, "body", role))
	}
	for _, role := range codec.TempRoles {
		assert.NoFileExists(t, codec.Path(dir, "body", role))
	}
	assert.NoFileExists(t, filepath.Join(dir, DefaultLockName))
}

func TestBuildSkipsFieldsWithoutPayloads(t *testing.T) {
	dir := t.TempDir()
	info := indexable
	info.HasPayloads = false
	res, err := testBuilder().Build(context.Background(), dir, source(t, info, map[int][]*token.Token{0: words("x")}))
	require.NoError(t, err)
	require.Len(t, res.Fields, 1)
	assert.True(t, res.Fields[0].Skipped)
	assert.NoFileExists(t, codec.Path(dir, "body", codec.RoleField))
}

func TestBuildSkipsForeignPayloads(t *testing.T) {
	dir := t.TempDir()
	src := source(t, indexable, map[int][]*token.Token{0: words("x", "y")})
	postings := src.Postings["body"]
	postings = append(postings, TermPostings{Term: "score", Docs: []DocPostings{{DocID: 0, Occurrences: []Occurrence{{Position: 0, Payload: []byte{0x3f, 0x80}}}}}})
	src.Postings["body"] = postings
	res, err := testBuilder().Build(context.Background(), dir, src)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Fields[0].Tokens)
	assert.Equal(t, 3, res.Fields[0].Terms)
}

func TestBuildRejectsBrokenIDs(t *testing.T) {
	tests := []struct {
		name string
		docs map[int][]*token.Token
	}{
		{
			name: "duplicate id within a term",
			docs: map[int][]*token.Token{0: {token.New(0, "t", "a", 0), token.New(0, "t", "a", 1)}},
		},
		{
			name: "duplicate id across terms",
			docs: map[int][]*token.Token{0: {token.New(0, "t", "a", 0), token.New(0, "t", "b", 1)}},
		},
		{
			name: "gap",
			docs: map[int][]*token.Token{0: {token.New(0, "t", "a", 0), token.New(2, "t", "b", 1)}},
		},
		{
			name: "missing id zero",
			docs: map[int][]*token.Token{0: {token.New(1, "t", "a", 0), token.New(2, "t", "b", 1)}},
		},
		{
			name: "no position",
			docs: map[int][]*token.Token{0: {{Kind: token.KindString, ID: 0, Value: token.JoinValue("t", "a")}}},
		},
		{
			name: "negative parent",
			docs: func() map[int][]*token.Token {
				tok := token.New(0, "t", "a", 0)
				tok.SetParent(-3)
				return map[int][]*token.Token{0: {tok}}
			}(),
		},
		{
			name: "negative real offset",
			docs: func() map[int][]*token.Token {
				tok := token.New(0, "t", "a", 0)
				require.NoError(t, tok.SetOffset(2, 5))
				require.NoError(t, tok.SetRealOffset(-3, 1))
				return map[int][]*token.Token{0: {tok}}
			}(),
		},
		{
			name: "parent cycle",
			docs: func() map[int][]*token.Token {
				a, b := token.New(0, "t", "a", 0), token.New(1, "t", "b", 1)
				a.SetParent(1)
				b.SetParent(0)
				return map[int][]*token.Token{0: {a, b}}
			}(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			_, err := testBuilder().Build(context.Background(), dir, source(t, indexable, tt.docs))
			require.ErrorIs(t, err, apperrors.ErrCorrupt)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries, "failed build must leave nothing behind")
		})
	}
}

func TestFailedFieldKeepsEarlierFields(t *testing.T) {
	dir := t.TempDir()
	good, err := Postings(map[int][]*token.Token{0: words("ok")}, payload.NewEncoder(payload.EncodeDefault))
	require.NoError(t, err)
	bad, err := Postings(map[int][]*token.Token{0: {token.New(1, "t", "x", 0)}}, payload.NewEncoder(payload.EncodeDefault))
	require.NoError(t, err)
	second := indexable
	second.Name = "title"
	src := &StaticSource{
		Infos:    []FieldInfo{indexable, second},
		Postings: map[string][]TermPostings{"body": good, "title": bad},
	}
	_, err = testBuilder().Build(context.Background(), dir, src)
	require.ErrorIs(t, err, apperrors.ErrCorrupt)
	assert.FileExists(t, codec.Path(dir, "body", codec.RoleField))
	assert.NoFileExists(t, codec.Path(dir, "title", codec.RoleField))
	assert.NoFileExists(t, codec.Path(dir, "title", codec.RoleObject))
}

func TestBuildRejectsBadFieldName(t *testing.T) {
	info := indexable
	info.Name = "../escape"
	_, err := testBuilder().Build(context.Background(), t.TempDir(), source(t, info, map[int][]*token.Token{0: words("x")}))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestBuildFailsOnStuckLock(t *testing.T) {
	dir := t.TempDir()
	holder, err := lock.Acquire(context.Background(), dir, DefaultLockName, lock.DefaultPolicy())
	require.NoError(t, err)
	defer holder.Release()
	_, err = testBuilder().Build(context.Background(), dir, source(t, indexable, map[int][]*token.Token{0: words("x")}))
	require.ErrorIs(t, err, apperrors.ErrLockTimeout)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.NoFileExists(t, codec.Path(dir, "body", codec.RoleObject))
}

func TestConcurrentBuildsSerialize(t *testing.T) {
	dir := t.TempDir()
	b := New(Options{Lock: lock.Policy{MaxAttempts: 2000, Sleep: time.Millisecond}})
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, name := range []string{"left", "right"} {
		info := indexable
		info.Name = name
		src := source(t, info, map[int][]*token.Token{0: words("a", "b", "c"), 1: words("d")})
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = b.Build(context.Background(), dir, src)
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.FileExists(t, codec.Path(dir, "left", codec.RoleField))
	assert.FileExists(t, codec.Path(dir, "right", codec.RoleField))
	assert.NoFileExists(t, filepath.Join(dir, DefaultLockName))
}

func TestPrefixStats(t *testing.T) {
	s := NewFieldBuildState("body")
	out := discardOutput(t)
	single := token.NewSinglePosition(1)
	rng := token.NewRangePosition(1, 3)
	set := token.NewSetPosition([]int{1, 5})

	s.registerToken(token.JoinValue("t", "a"), 0, single, out)
	s.registerToken(token.JoinValue("s", ""), 10, rng, out)
	s.registerToken(token.JoinValue("s", ""), 10, single, out)
	s.registerToken(token.JoinValue("t", "b"), 20, single, out)
	s.registerToken(token.JoinValue("ne", "PER"), 30, set, out)
	s.registerToken(token.JoinValue("lemma", "x"), 40, single, out)
	s.registerToken(token.JoinValue("lemma", "x"), 40, rng, out)

	assert.Equal(t, 1, s.PrefixID("t"))
	assert.Equal(t, 2, s.PrefixID("s"))
	assert.Equal(t, 3, s.PrefixID("ne"))
	assert.Equal(t, 4, s.PrefixID("lemma"))
	assert.Equal(t, 4, s.NumberOfPrefixes())

	stats := s.Stats()
	assert.Equal(t, []string{"t"}, stats.Single)
	assert.Equal(t, []string{"lemma", "ne", "s"}, stats.Multiple)
	assert.Equal(t, []string{"ne"}, stats.Set)
}

func discardOutput(t *testing.T) *store.Output {
	t.Helper()
	out, err := store.Create(filepath.Join(t.TempDir(), "discard"))
	require.NoError(t, err)
	t.Cleanup(func() { out.Close() })
	return out
}

func TestFitLeastSquaresExactLine(t *testing.T) {
	refs := make([]int64, 50)
	for i := range refs {
		refs[i] = 1000 + int64(i)*9
	}
	a := FitLeastSquares(refs)
	assert.Equal(t, int64(9), a.Slope)
	assert.Equal(t, int64(1000), a.Offset)
	corrections, width := Corrections(refs, a)
	for _, c := range corrections {
		assert.Zero(t, c)
	}
	assert.Equal(t, 1, width)
}

func TestFitLeastSquaresDegenerate(t *testing.T) {
	a := FitLeastSquares([]int64{77})
	assert.Equal(t, int64(0), a.Slope)
	assert.Equal(t, int64(77), a.Offset)
	assert.Equal(t, Approximation{}, FitLeastSquares(nil))
}

func TestCorrectionsRestoreRefs(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, n := range []int{1, 2, 17, 1000, 300000} {
		refs := make([]int64, n)
		ref := int64(1 << 40)
		for i := range refs {
			refs[i] = ref
			ref += int64(5 + rng.Intn(60))
		}
		a := FitLeastSquares(refs)
		corrections, width := Corrections(refs, a)
		var maxAbs uint64
		for i, c := range corrections {
			require.Equal(t, refs[i], a.At(i)+c, "n=%d id=%d", n, i)
			maxAbs = max(maxAbs, uint64(max(c, -c)))
		}
		assert.Equal(t, WidthFor(maxAbs), width)
	}
}

func TestWidthFor(t *testing.T) {
	tests := []struct {
		maxAbs uint64
		want   int
	}{
		{0, 1},
		{math.MaxInt8, 1},
		{math.MaxInt8 + 1, 2},
		{math.MaxInt16, 2},
		{math.MaxInt16 + 1, 4},
		{math.MaxInt32, 4},
		{math.MaxInt32 + 1, 8},
		{math.MaxUint64, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WidthFor(tt.maxAbs), "maxAbs=%d", tt.maxAbs)
	}
}

func TestOffsetsFallBackToPostings(t *testing.T) {
	dir := t.TempDir()
	data, err := payload.NewEncoder(payload.EncodeDefault).Encode(token.New(0, "t", "x", 4))
	require.NoError(t, err)
	src := &StaticSource{
		Infos: []FieldInfo{indexable},
		Postings: map[string][]TermPostings{"body": {{
			Term: token.JoinValue("t", "x"),
			Docs: []DocPostings{{DocID: 0, Occurrences: []Occurrence{{Position: 4, StartOffset: 3, EndOffset: 9, Payload: data}}}},
		}}},
	}
	_, err = testBuilder().Build(context.Background(), dir, src)
	require.NoError(t, err)

	f, err := store.Open(codec.Path(dir, "body", codec.RoleObject))
	require.NoError(t, err)
	defer f.Close()
	in := f.Input()
	_, err = store.ReadHeader(in, codec.RoleObject.Codec, codec.VersionStart, codec.VersionCurrent)
	require.NoError(t, err)
	tok, err := codec.ReadObject(in)
	require.NoError(t, err)
	require.NotNil(t, tok.Offset)
	assert.Equal(t, token.Offset{Start: 3, End: 9}, *tok.Offset)
	assert.Equal(t, 4, tok.Position.Start)
}
