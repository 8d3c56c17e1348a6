package builder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/codec"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/store"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/tree"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
)

// fieldBuild holds the open files of one field's build.
type fieldBuild struct {
	dir    string
	info   FieldInfo
	opts   Options
	state  *FieldBuildState
	logger *slog.Logger

	outputs map[codec.FileRole]*store.Output
	files   []*store.File

	fpFirstTerm   int64
	fpFirstPrefix int64
	fpFirstDoc    int64
	fpDocIDTree   int64
}

var sealedOutputs = []codec.FileRole{
	codec.RoleObject, codec.RoleTerm, codec.RolePrefix, codec.RoleDoc,
	codec.RoleDocID, codec.RoleObjectID, codec.RolePositionTree, codec.RoleParentTree,
}

func (fb *fieldBuild) path(role codec.FileRole) string {
	return codec.Path(fb.dir, fb.info.Name, role)
}

func (fb *fieldBuild) create(role codec.FileRole) (*store.Output, error) {
	out, err := store.Create(fb.path(role))
	if err != nil {
		return nil, err
	}
	store.WriteHeader(out, store.Header{Codec: role.Codec, Version: codec.VersionCurrent, Delegate: fb.opts.DelegateName})
	if fb.outputs == nil {
		fb.outputs = make(map[codec.FileRole]*store.Output)
	}
	fb.outputs[role] = out
	return out, nil
}

// finish closes the output of role, surfacing any write error.
func (fb *fieldBuild) finish(role codec.FileRole) error {
	out, ok := fb.outputs[role]
	if !ok {
		return nil
	}
	delete(fb.outputs, role)
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", out.Name(), err)
	}
	return nil
}

func (fb *fieldBuild) openTemp(role codec.FileRole) (*store.File, *store.Input, error) {
	f, err := store.Open(fb.path(role))
	if err != nil {
		return nil, nil, err
	}
	fb.files = append(fb.files, f)
	in := f.Input()
	if _, err := store.ReadHeader(in, role.Codec, codec.VersionCurrent, codec.VersionCurrent); err != nil {
		return nil, nil, err
	}
	return f, in, nil
}

// dropTemp unmaps and deletes a temporary file once its phase consumed it.
func (fb *fieldBuild) dropTemp(role codec.FileRole, f *store.File) error {
	fb.files = slices.DeleteFunc(fb.files, func(g *store.File) bool { return g == f })
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(fb.path(role))
}

func (fb *fieldBuild) open() error {
	for _, role := range sealedOutputs {
		if _, err := fb.create(role); err != nil {
			return err
		}
	}
	for _, role := range []codec.FileRole{codec.RoleTmpObject, codec.RoleTmpFragment} {
		if _, err := fb.create(role); err != nil {
			return err
		}
	}
	return nil
}

func (fb *fieldBuild) closeAll() {
	for _, out := range fb.outputs {
		out.Close()
	}
	fb.outputs = nil
	for _, f := range fb.files {
		f.Close()
	}
	fb.files = nil
	for _, role := range codec.TempRoles {
		if err := os.Remove(fb.path(role)); err != nil && !errors.Is(err, os.ErrNotExist) {
			fb.logger.Warn("failed to remove temporary file", "role", role.Ext, "error", err)
		}
	}
}

func outputErr(outs ...*store.Output) error {
	for _, out := range outs {
		if err := out.Err(); err != nil {
			return fmt.Errorf("writing %s: %w", out.Name(), err)
		}
	}
	return nil
}

// collect is phase A: it visits postings in term order, writes every
// decoded token to the temporary object file and, per term and document,
// one fragment mapping token ids to their temporary objects.
func (fb *fieldBuild) collect(ctx context.Context, terms []TermPostings) error {
	objects := fb.outputs[codec.RoleTmpObject]
	fragments := fb.outputs[codec.RoleTmpFragment]
	termOut := fb.outputs[codec.RoleTerm]
	prefixOut := fb.outputs[codec.RolePrefix]
	fb.fpFirstTerm = termOut.FilePointer()
	fb.fpFirstPrefix = prefixOut.FilePointer()

	ordered := slices.Clone(terms)
	slices.SortStableFunc(ordered, func(a, b TermPostings) int { return cmp.Compare(a.Term, b.Term) })

	entries := make(map[int]int64)
	for _, tp := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}
		termRef := termOut.FilePointer()
		termOut.WriteString(tp.Term)
		fb.state.terms++
		for _, dp := range tp.Docs {
			if dp.DocID < 0 {
				return fmt.Errorf("%w: term %q has negative document %d", apperrors.ErrInvalidInput, tp.Term, dp.DocID)
			}
			clear(entries)
			base := objects.FilePointer()
			for _, occ := range dp.Occurrences {
				tok, ok, err := fb.opts.Decoder.Decode(occ.Position, occ.Payload)
				if err != nil {
					return fmt.Errorf("term %q doc %d position %d: %w", tp.Term, dp.DocID, occ.Position, err)
				}
				if !ok || tok == nil {
					continue
				}
				if err := checkDecoded(tok); err != nil {
					return fmt.Errorf("term %q doc %d: %w", tp.Term, dp.DocID, err)
				}
				if _, dup := entries[tok.ID]; dup {
					return apperrors.Corruptf("term %q doc %d: token id %d decoded twice", tp.Term, dp.DocID, tok.ID)
				}
				if tok.Offset == nil && fb.info.HasOffsets {
					tok.Offset = &token.Offset{Start: occ.StartOffset, End: occ.EndOffset}
				}
				tok.TermRef = termRef
				entries[tok.ID] = objects.FilePointer()
				if err := codec.WriteObject(objects, tok); err != nil {
					return err
				}
				fb.state.registerToken(tp.Term, termRef, tok.Position, prefixOut)
			}
			if len(entries) > 0 {
				writeFragment(fragments, dp.DocID, base, entries)
				fb.state.docs.Add(uint32(dp.DocID))
			}
		}
	}
	return outputErr(objects, fragments, termOut, prefixOut)
}

// checkDecoded rejects decoder output that the object codec cannot store.
func checkDecoded(tok *token.Token) error {
	switch {
	case tok.ID < 0:
		return apperrors.Corruptf("negative token id %d", tok.ID)
	case tok.Position == nil:
		return apperrors.Corruptf("token %d has no position", tok.ID)
	case tok.Position.Start < 0:
		return apperrors.Corruptf("token %d: negative position %d", tok.ID, tok.Position.Start)
	}
	if p, ok := tok.Parent(); ok && p < 0 {
		return apperrors.Corruptf("token %d: negative parent %d", tok.ID, p)
	}
	for _, o := range []*token.Offset{tok.Offset, tok.RealOffset} {
		if o != nil && (o.Start < 0 || o.End < o.Start) {
			return apperrors.Corruptf("token %d: bad offset [%d,%d)", tok.ID, o.Start, o.End)
		}
	}
	return nil
}

func writeFragment(out *store.Output, docID int, base int64, entries map[int]int64) {
	out.WriteVInt(docID)
	out.WriteVInt(len(entries))
	out.WriteVLong(base)
	for _, id := range slices.Sorted(maps.Keys(entries)) {
		out.WriteVInt(id)
		out.WriteVLong(entries[id] - base)
	}
}

// chain rewrites the fragments so that each one points back to the previous
// fragment of the same document. The first fragment of a document points to
// itself.
func (fb *fieldBuild) chain() error {
	if err := fb.finish(codec.RoleTmpFragment); err != nil {
		return err
	}
	f, in, err := fb.openTemp(codec.RoleTmpFragment)
	if err != nil {
		return err
	}
	out, err := fb.create(codec.RoleTmpChained)
	if err != nil {
		return err
	}
	for in.FilePointer() < in.Len() {
		fp := out.FilePointer()
		docID, err := in.ReadVInt()
		if err != nil {
			return err
		}
		count, err := in.ReadVInt()
		if err != nil {
			return err
		}
		base, err := in.ReadVLong()
		if err != nil {
			return err
		}
		out.WriteVInt(docID)
		out.WriteVInt(count)
		out.WriteVLong(base)
		for i := 0; i < count; i++ {
			id, err := in.ReadVInt()
			if err != nil {
				return err
			}
			rel, err := in.ReadVLong()
			if err != nil {
				return err
			}
			out.WriteVInt(id)
			out.WriteVLong(rel)
		}
		previous, ok := fb.state.lastFragment[uint32(docID)]
		if !ok {
			previous = fp
		}
		out.WriteVLong(previous)
		fb.state.lastFragment[uint32(docID)] = fp
	}
	if err := fb.finish(codec.RoleTmpChained); err != nil {
		return err
	}
	return fb.dropTemp(codec.RoleTmpFragment, f)
}

// merge is phase B: documents in ascending order, each written in full
// before the next.
func (fb *fieldBuild) merge(ctx context.Context) error {
	if err := fb.finish(codec.RoleTmpObject); err != nil {
		return err
	}
	objectFile, objects, err := fb.openTemp(codec.RoleTmpObject)
	if err != nil {
		return err
	}
	chainFile, chained, err := fb.openTemp(codec.RoleTmpChained)
	if err != nil {
		return err
	}

	docs := fb.outputs[codec.RoleDoc]
	fb.fpFirstDoc = docs.FilePointer()
	docIDTree := tree.New(true, false)
	it := fb.state.docs.Iterator()
	for it.HasNext() {
		if err := ctx.Err(); err != nil {
			return err
		}
		docID := it.Next()
		fpDoc := docs.FilePointer()
		if err := fb.mergeDoc(docID, objects, chained); err != nil {
			return fmt.Errorf("doc %d: %w", docID, err)
		}
		if err := docIDTree.AddPoint(int(docID), tree.Value{ID: int(docID), Ref: fpDoc}); err != nil {
			return err
		}
	}
	docIDTree.Close()
	if fb.fpDocIDTree, err = tree.Write(fb.outputs[codec.RoleDocID], docIDTree, fb.fpFirstDoc); err != nil {
		return err
	}
	if err := fb.dropTemp(codec.RoleTmpObject, objectFile); err != nil {
		return err
	}
	return fb.dropTemp(codec.RoleTmpChained, chainFile)
}

// gather follows the fragment chain of doc and returns its token ids with
// their temporary object references.
func gather(doc uint32, fp int64, chained *store.Input) (map[int]int64, error) {
	refs := make(map[int]int64)
	for {
		if err := chained.Seek(fp); err != nil {
			return nil, err
		}
		part, err := chained.ReadVInt()
		if err != nil {
			return nil, err
		}
		if part != int(doc) {
			return nil, apperrors.Corruptf("fragment at %d belongs to doc %d", fp, part)
		}
		count, err := chained.ReadVInt()
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, apperrors.Corruptf("empty fragment at %d", fp)
		}
		base, err := chained.ReadVLong()
		if err != nil {
			return nil, err
		}
		for i := 0; i < count; i++ {
			id, err := chained.ReadVInt()
			if err != nil {
				return nil, err
			}
			rel, err := chained.ReadVLong()
			if err != nil {
				return nil, err
			}
			if _, dup := refs[id]; dup {
				return nil, apperrors.Corruptf("token id %d appears in more than one fragment", id)
			}
			refs[id] = base + rel
		}
		previous, err := chained.ReadVLong()
		if err != nil {
			return nil, err
		}
		if previous == fp {
			return refs, nil
		}
		if previous > fp {
			return nil, apperrors.Corruptf("fragment at %d links forward to %d", fp, previous)
		}
		fp = previous
	}
}

func (fb *fieldBuild) mergeDoc(doc uint32, tmpObjects, chained *store.Input) error {
	refs, err := gather(doc, fb.state.lastFragment[doc], chained)
	if err != nil {
		return err
	}
	ids := slices.Sorted(maps.Keys(refs))
	n := len(ids)
	if ids[0] != 0 {
		return apperrors.Corruptf("first token id is %d, expected 0", ids[0])
	}
	if ids[n-1]-ids[0]+1 != n {
		return apperrors.Corruptf("%d token ids span 0..%d", n, ids[n-1])
	}

	objects := fb.outputs[codec.RoleObject]
	smallest := objects.FilePointer()
	final := make([]int64, n)
	tokens := make([]*token.Token, n)
	parents := make([]int, n)
	minPos, maxPos := 0, 0
	for id := 0; id < n; id++ {
		if err := tmpObjects.Seek(refs[id]); err != nil {
			return err
		}
		tok, err := codec.ReadObject(tmpObjects)
		if err != nil {
			return err
		}
		if tok.ID != id {
			return apperrors.Corruptf("object for id %d holds token %d", id, tok.ID)
		}
		final[id] = objects.FilePointer()
		if err := codec.WriteObject(objects, tok); err != nil {
			return err
		}
		tokens[id] = tok
		parents[id] = -1
		if p, ok := tok.Parent(); ok {
			parents[id] = p
		}
		if id == 0 || tok.Position.Start < minPos {
			minPos = tok.Position.Start
		}
		if id == 0 || tok.Position.End > maxPos {
			maxPos = tok.Position.End
		}
	}
	if err := token.CheckForest(parents); err != nil {
		return err
	}

	approx := FitLeastSquares(final)
	corrections, width := Corrections(final, approx)
	idOut := fb.outputs[codec.RoleObjectID]
	fpObjectID := idOut.FilePointer()
	for _, c := range corrections {
		idOut.WriteFixed(c, width)
	}

	positionTree := tree.New(false, true)
	parentTree := tree.New(false, true)
	for id, tok := range tokens {
		v := tree.Value{
			ID:            id,
			Ref:           final[id],
			AdditionalID:  fb.state.termPrefix[tok.TermRef],
			AdditionalRef: tok.TermRef,
		}
		if err := positionTree.AddPosition(tok.Position, v); err != nil {
			return err
		}
		if p := parents[id]; p >= 0 && p < n {
			if err := parentTree.AddPoint(p, v); err != nil {
				return err
			}
		}
	}
	positionTree.Close()
	parentTree.Close()
	fpPosition, err := tree.Write(fb.outputs[codec.RolePositionTree], positionTree, smallest)
	if err != nil {
		return err
	}
	fpParent, err := tree.Write(fb.outputs[codec.RoleParentTree], parentTree, smallest)
	if err != nil {
		return err
	}

	docs := fb.outputs[codec.RoleDoc]
	docs.WriteVInt(int(doc))
	docs.WriteVLong(fpObjectID)
	docs.WriteVLong(fpPosition)
	docs.WriteVLong(fpParent)
	docs.WriteVLong(smallest)
	docs.WriteZLong(approx.Slope)
	docs.WriteZLong(approx.Offset)
	if err := docs.WriteByte(byte(width)); err != nil {
		return err
	}
	docs.WriteVInt(n)
	docs.WriteVInt(minPos)
	docs.WriteVInt(maxPos)
	fb.logger.Debug("document merged", "doc", doc, "tokens", n, "width", width, "slope", approx.Slope)
	return outputErr(objects, idOut, docs)
}

// commit closes the catalogs and then writes the field header under a
// temporary name and renames it into place. Until the rename the field does
// not exist for readers.
func (fb *fieldBuild) commit() error {
	for _, role := range sealedOutputs {
		if err := fb.finish(role); err != nil {
			return err
		}
	}
	path := fb.path(codec.RoleField)
	tmp := path + ".tmp"
	out, err := store.Create(tmp)
	if err != nil {
		return err
	}
	store.WriteHeader(out, store.Header{Codec: codec.RoleField.Codec, Version: codec.VersionCurrent, Delegate: fb.opts.DelegateName})
	out.WriteString(fb.info.Name)
	out.WriteVLong(fb.fpFirstDoc)
	out.WriteVLong(fb.fpDocIDTree)
	out.WriteVInt(fb.state.NumberOfDocs())
	out.WriteVLong(fb.fpFirstTerm)
	out.WriteVInt(fb.state.terms)
	out.WriteVLong(fb.fpFirstPrefix)
	out.WriteVInt(fb.state.NumberOfPrefixes())
	stats := fb.state.Stats()
	for _, list := range [][]string{stats.Single, stats.Multiple, stats.Set} {
		out.WriteVInt(len(list))
		for _, prefix := range list {
			out.WriteString(prefix)
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("committing %s: %w", path, err)
	}
	return nil
}
