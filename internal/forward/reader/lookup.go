package reader

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/builder"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/codec"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/tree"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
)

// IndexDoc is the catalog entry of one document.
type IndexDoc struct {
	DocID            int
	FPObjectID       int64
	FPPositionTree   int64
	FPParentTree     int64
	SmallestObjectFP int64
	Approximation    builder.Approximation
	Width            int
	Size             int
	MinPosition      int
	MaxPosition      int
}

// NumberOfPositions is the number of positions the document spans.
func (d IndexDoc) NumberOfPositions() int {
	if d.Size == 0 {
		return 0
	}
	return d.MaxPosition - d.MinPosition + 1
}

func (r *Reader) readDoc(fp int64) (IndexDoc, error) {
	var d IndexDoc
	in := r.docs
	if err := in.Seek(fp); err != nil {
		return d, err
	}
	var err error
	if d.DocID, err = in.ReadVInt(); err != nil {
		return d, err
	}
	if d.FPObjectID, err = in.ReadVLong(); err != nil {
		return d, err
	}
	if d.FPPositionTree, err = in.ReadVLong(); err != nil {
		return d, err
	}
	if d.FPParentTree, err = in.ReadVLong(); err != nil {
		return d, err
	}
	if d.SmallestObjectFP, err = in.ReadVLong(); err != nil {
		return d, err
	}
	if d.Approximation.Slope, err = in.ReadZLong(); err != nil {
		return d, err
	}
	if d.Approximation.Offset, err = in.ReadZLong(); err != nil {
		return d, err
	}
	width, err := in.ReadByte()
	if err != nil {
		return d, err
	}
	switch width {
	case 1, 2, 4, 8:
		d.Width = int(width)
	default:
		return d, apperrors.Corruptf("%s: doc %d has correction width %d", in.Name(), d.DocID, width)
	}
	if d.Size, err = in.ReadVInt(); err != nil {
		return d, err
	}
	if d.MinPosition, err = in.ReadVInt(); err != nil {
		return d, err
	}
	if d.MaxPosition, err = in.ReadVInt(); err != nil {
		return d, err
	}
	return d, nil
}

// Doc returns the catalog entry of docID, or ErrNotFound when the document
// has no tokens in this field.
func (r *Reader) Doc(docID int) (IndexDoc, error) {
	hits, err := tree.Search(r.docIDs, r.header.FPDocIDTree, docID, docID, r.header.FPFirstDoc)
	if err != nil {
		return IndexDoc{}, err
	}
	for _, h := range hits {
		if h.Left == docID {
			d, err := r.readDoc(h.Ref)
			if err != nil {
				return IndexDoc{}, err
			}
			if d.DocID != docID {
				return IndexDoc{}, apperrors.Corruptf("doc tree points doc %d at record of doc %d", docID, d.DocID)
			}
			return d, nil
		}
	}
	return IndexDoc{}, fmt.Errorf("%w: doc %d in field %s", apperrors.ErrNotFound, docID, r.field)
}

// NextDoc returns the first document after previous; false when there is
// none. Pass -1 to start.
func (r *Reader) NextDoc(previous int) (IndexDoc, bool, error) {
	hits, err := tree.Advance(r.docIDs, r.header.FPDocIDTree, previous+1, r.header.FPFirstDoc)
	if err != nil || len(hits) == 0 {
		return IndexDoc{}, false, err
	}
	d, err := r.readDoc(hits[0].Ref)
	if err != nil {
		return IndexDoc{}, false, err
	}
	return d, true, nil
}

func (r *Reader) NumberOfTokens(docID int) (int, error) {
	d, err := r.Doc(docID)
	if err != nil {
		return 0, err
	}
	return d.Size, nil
}

func (r *Reader) NumberOfPositions(docID int) (int, error) {
	d, err := r.Doc(docID)
	if err != nil {
		return 0, err
	}
	return d.NumberOfPositions(), nil
}

// AllNumberOfTokens maps every document to its token count.
func (r *Reader) AllNumberOfTokens() (map[int]int, error) {
	return r.eachDoc(func(d IndexDoc) int { return d.Size })
}

// AllNumberOfPositions maps every document to the number of positions it
// spans.
func (r *Reader) AllNumberOfPositions() (map[int]int, error) {
	return r.eachDoc(IndexDoc.NumberOfPositions)
}

func (r *Reader) eachDoc(value func(IndexDoc) int) (map[int]int, error) {
	out := make(map[int]int, r.header.NumberOfDocs)
	fp := r.header.FPFirstDoc
	for i := 0; i < r.header.NumberOfDocs; i++ {
		d, err := r.readDoc(fp)
		if err != nil {
			return nil, err
		}
		out[d.DocID] = value(d)
		fp = r.docs.FilePointer()
	}
	return out, nil
}

// objectRef resolves the object file pointer of token id.
func (r *Reader) objectRef(d IndexDoc, id int) (int64, error) {
	if err := r.objectIDs.Seek(d.FPObjectID + int64(id)*int64(d.Width)); err != nil {
		return 0, err
	}
	correction, err := r.objectIDs.ReadFixed(d.Width)
	if err != nil {
		return 0, err
	}
	return d.Approximation.At(id) + correction, nil
}

func (r *Reader) readToken(ref int64) (*token.Token, error) {
	t, err := codec.ReadToken(r.objects, r.terms, ref)
	if err != nil {
		return nil, err
	}
	t.PrefixID = r.prefixID[t.Prefix()]
	return t, nil
}

// GetByID returns token id of docID.
func (r *Reader) GetByID(docID, id int) (*token.Token, error) {
	d, err := r.Doc(docID)
	if err != nil {
		return nil, err
	}
	if id < 0 || id >= d.Size {
		return nil, fmt.Errorf("%w: token %d in doc %d (%d tokens)", apperrors.ErrNotFound, id, docID, d.Size)
	}
	ref, err := r.objectRef(d, id)
	if err != nil {
		return nil, err
	}
	t, err := r.readToken(ref)
	if err != nil {
		return nil, err
	}
	if t.ID != id {
		return nil, apperrors.Corruptf("doc %d: id index resolves %d to token %d", docID, id, t.ID)
	}
	return t, nil
}

// GetByPosition returns the tokens covering position.
func (r *Reader) GetByPosition(docID, position int) ([]*token.Token, error) {
	return r.GetByPositionRange(docID, position, position)
}

// GetByPositionRange returns the tokens with a position in [start,end],
// ordered by id. A document without tokens yields an empty result.
func (r *Reader) GetByPositionRange(docID, start, end int) ([]*token.Token, error) {
	return r.positionRange(docID, start, end, nil)
}

// GetPrefixFilteredByPositionRange is GetByPositionRange restricted to
// tokens whose prefix is one of prefixes.
func (r *Reader) GetPrefixFilteredByPositionRange(docID int, prefixes []string, start, end int) ([]*token.Token, error) {
	ids := r.PrefixIDs(prefixes)
	if len(ids) == 0 {
		return []*token.Token{}, nil
	}
	allowed := make(map[int]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	return r.positionRange(docID, start, end, allowed)
}

func (r *Reader) positionRange(docID, start, end int, prefixes map[int]bool) ([]*token.Token, error) {
	d, err := r.Doc(docID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return []*token.Token{}, nil
		}
		return nil, err
	}
	hits, err := tree.Search(r.positions, d.FPPositionTree, start, end, d.SmallestObjectFP)
	if err != nil {
		return nil, err
	}
	if prefixes != nil {
		hits = slices.DeleteFunc(hits, func(h tree.Hit) bool { return !prefixes[h.AdditionalID] })
	}
	return r.resolve(hits, nil)
}

// GetByParent returns the tokens whose parent is parentID, ordered by id.
func (r *Reader) GetByParent(docID, parentID int) ([]*token.Token, error) {
	d, err := r.Doc(docID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return []*token.Token{}, nil
		}
		return nil, err
	}
	hits, err := tree.Search(r.parents, d.FPParentTree, parentID, parentID, d.SmallestObjectFP)
	if err != nil {
		return nil, err
	}
	return r.resolve(hits, func(h tree.Hit) bool { return h.Left == parentID && h.Right == parentID })
}

// resolve dereferences hits, once per object, and orders the tokens by id.
// A set position is indexed once per run, so a token may be hit repeatedly.
func (r *Reader) resolve(hits []tree.Hit, keep func(tree.Hit) bool) ([]*token.Token, error) {
	seen := make(map[int64]bool, len(hits))
	out := make([]*token.Token, 0, len(hits))
	for _, h := range hits {
		if seen[h.Ref] || (keep != nil && !keep(h)) {
			continue
		}
		seen[h.Ref] = true
		t, err := codec.ReadToken(r.objects, r.terms, h.Ref)
		if err != nil {
			return nil, err
		}
		t.PrefixID = h.AdditionalID
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *token.Token) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// PositionedTerm is a term found through the position tree. Start and End
// bound the indexed run, so a token with a set position yields one entry per
// run. Ref is the object of the token.
type PositionedTerm struct {
	Start    int
	End      int
	Ref      int64
	PrefixID int
	Term     string
}

func (p PositionedTerm) Prefix() string  { return token.PrefixOf(p.Term) }
func (p PositionedTerm) Postfix() string { return token.PostfixOf(p.Term) }

// GetPositionedTermsByPrefixesAndPositionRange returns the terms with one of
// prefixes that occur in [start,end], ordered by start then object. Terms are
// read from the dictionary; objects are not decoded.
func (r *Reader) GetPositionedTermsByPrefixesAndPositionRange(docID int, prefixes []string, start, end int) ([]PositionedTerm, error) {
	hits, err := r.prefixedHits(docID, prefixes, start, end)
	if err != nil {
		return nil, err
	}
	return r.positionedTerms(hits)
}

// TermsByPrefixesForPositions returns, for each span, the terms with one of
// prefixes that intersect it. The document's position tree is searched once
// over the union of the spans.
func (r *Reader) TermsByPrefixesForPositions(docID int, prefixes []string, spans [][2]int) ([][]PositionedTerm, error) {
	out := make([][]PositionedTerm, len(spans))
	if len(spans) == 0 {
		return out, nil
	}
	lo, hi := spans[0][0], spans[0][1]
	for _, sp := range spans[1:] {
		lo, hi = min(lo, sp[0]), max(hi, sp[1])
	}
	hits, err := r.prefixedHits(docID, prefixes, lo, hi)
	if err != nil {
		return nil, err
	}
	terms, err := r.positionedTerms(hits)
	if err != nil {
		return nil, err
	}
	for i, sp := range spans {
		out[i] = []PositionedTerm{}
		for _, t := range terms {
			if t.Start <= sp[1] && t.End >= sp[0] {
				out[i] = append(out[i], t)
			}
		}
	}
	return out, nil
}

func (r *Reader) prefixedHits(docID int, prefixes []string, start, end int) ([]tree.Hit, error) {
	ids := r.PrefixIDs(prefixes)
	if len(ids) == 0 {
		return nil, nil
	}
	d, err := r.Doc(docID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	hits, err := tree.Search(r.positions, d.FPPositionTree, start, end, d.SmallestObjectFP)
	if err != nil {
		return nil, err
	}
	allowed := make(map[int]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	return slices.DeleteFunc(hits, func(h tree.Hit) bool { return !allowed[h.AdditionalID] }), nil
}

func (r *Reader) positionedTerms(hits []tree.Hit) ([]PositionedTerm, error) {
	out := make([]PositionedTerm, 0, len(hits))
	terms := make(map[int64]string)
	for _, h := range hits {
		term, ok := terms[h.AdditionalRef]
		if !ok {
			var err error
			if term, err = codec.ReadTerm(r.terms, h.AdditionalRef); err != nil {
				return nil, fmt.Errorf("term at %d: %w", h.AdditionalRef, err)
			}
			terms[h.AdditionalRef] = term
		}
		out = append(out, PositionedTerm{
			Start:    h.Left,
			End:      h.Right,
			Ref:      h.Ref,
			PrefixID: h.AdditionalID,
			Term:     term,
		})
	}
	slices.SortFunc(out, func(a, b PositionedTerm) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.Ref, b.Ref))
	})
	return out, nil
}
