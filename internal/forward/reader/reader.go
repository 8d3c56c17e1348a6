// Package reader serves lookups from a sealed forward index field: tokens by
// id, by position range and by parent.
package reader

import (
	"errors"
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/builder"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/codec"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
)

// FieldHeader is the committed summary of a field.
type FieldHeader struct {
	Field            string
	FPFirstDoc       int64
	FPDocIDTree      int64
	NumberOfDocs     int
	FPFirstTerm      int64
	NumberOfTerms    int
	FPFirstPrefix    int64
	NumberOfPrefixes int
	Stats            builder.PrefixStats
}

var readRoles = []codec.FileRole{
	codec.RoleField, codec.RoleObject, codec.RoleTerm, codec.RolePrefix, codec.RoleDoc,
	codec.RoleDocID, codec.RoleObjectID, codec.RolePositionTree, codec.RoleParentTree,
}

// Reader reads one field. Its cursors are not safe for concurrent use;
// give each goroutine its own Clone.
type Reader struct {
	dir    string
	field  string
	files  []*store.File
	owner  bool
	header FieldHeader

	delegate string
	prefixes []string
	prefixID map[string]int

	objects    *store.Input
	terms      *store.Input
	docs       *store.Input
	docIDs     *store.Input
	objectIDs  *store.Input
	positions  *store.Input
	parents    *store.Input
	prefixFile *store.Input
}

// Open maps the files of field in dir and validates their headers. A file
// whose version is unsupported fails with ErrVersionTooOld or
// ErrVersionTooNew; any other damage is ErrCorrupt.
func Open(dir, field string) (*Reader, error) {
	if err := codec.ValidateField(field); err != nil {
		return nil, err
	}
	r := &Reader{dir: dir, field: field, owner: true}
	inputs := make(map[codec.FileRole]*store.Input, len(readRoles))
	for _, role := range readRoles {
		f, err := store.Open(codec.Path(dir, field, role))
		if err != nil {
			r.Close()
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: field %s in %s: %v", apperrors.ErrNotFound, field, dir, err)
			}
			return nil, fmt.Errorf("opening field %s: %w", field, err)
		}
		r.files = append(r.files, f)
		in := f.Input()
		h, err := store.ReadHeader(in, role.Codec, codec.VersionStart, codec.VersionCurrent)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("opening field %s: %w", field, err)
		}
		if role == codec.RoleField {
			r.delegate = h.Delegate
		} else if h.Delegate != r.delegate {
			r.Close()
			return nil, apperrors.Corruptf("%s: delegate %q differs from field header %q", in.Name(), h.Delegate, r.delegate)
		}
		inputs[role] = in
	}
	r.objects = inputs[codec.RoleObject]
	r.terms = inputs[codec.RoleTerm]
	r.docs = inputs[codec.RoleDoc]
	r.docIDs = inputs[codec.RoleDocID]
	r.objectIDs = inputs[codec.RoleObjectID]
	r.positions = inputs[codec.RolePositionTree]
	r.parents = inputs[codec.RoleParentTree]
	r.prefixFile = inputs[codec.RolePrefix]

	var err error
	if r.header, err = readFieldHeader(inputs[codec.RoleField]); err != nil {
		r.Close()
		return nil, fmt.Errorf("opening field %s: %w", field, err)
	}
	if r.header.Field != field {
		r.Close()
		return nil, apperrors.Corruptf("field header names %q, expected %q", r.header.Field, field)
	}
	if err := r.loadPrefixes(); err != nil {
		r.Close()
		return nil, fmt.Errorf("opening field %s: %w", field, err)
	}
	return r, nil
}

func readFieldHeader(in *store.Input) (FieldHeader, error) {
	var h FieldHeader
	var err error
	if h.Field, err = in.ReadString(); err != nil {
		return h, err
	}
	if h.FPFirstDoc, err = in.ReadVLong(); err != nil {
		return h, err
	}
	if h.FPDocIDTree, err = in.ReadVLong(); err != nil {
		return h, err
	}
	if h.NumberOfDocs, err = in.ReadVInt(); err != nil {
		return h, err
	}
	if h.FPFirstTerm, err = in.ReadVLong(); err != nil {
		return h, err
	}
	if h.NumberOfTerms, err = in.ReadVInt(); err != nil {
		return h, err
	}
	if h.FPFirstPrefix, err = in.ReadVLong(); err != nil {
		return h, err
	}
	if h.NumberOfPrefixes, err = in.ReadVInt(); err != nil {
		return h, err
	}
	lists := make([][]string, 3)
	for i := range lists {
		n, err := in.ReadVInt()
		if err != nil {
			return h, err
		}
		if int64(n) > in.Len()-in.FilePointer() {
			return h, apperrors.Corruptf("%s: prefix list of %d entries", in.Name(), n)
		}
		lists[i] = make([]string, n)
		for j := range lists[i] {
			if lists[i][j], err = in.ReadString(); err != nil {
				return h, err
			}
		}
	}
	h.Stats = builder.PrefixStats{Single: lists[0], Multiple: lists[1], Set: lists[2]}
	return h, nil
}

func (r *Reader) loadPrefixes() error {
	if err := r.prefixFile.Seek(r.header.FPFirstPrefix); err != nil {
		return err
	}
	r.prefixes = make([]string, 0, r.header.NumberOfPrefixes)
	r.prefixID = make(map[string]int, r.header.NumberOfPrefixes)
	for i := 0; i < r.header.NumberOfPrefixes; i++ {
		p, err := r.prefixFile.ReadString()
		if err != nil {
			return err
		}
		r.prefixes = append(r.prefixes, p)
		r.prefixID[p] = i + 1
	}
	return nil
}

// Clone returns a reader with its own cursors over the same mapped files.
// Clones must not outlive the reader they came from.
func (r *Reader) Clone() *Reader {
	c := *r
	c.owner = false
	c.files = nil
	c.objects = r.objects.Clone()
	c.terms = r.terms.Clone()
	c.docs = r.docs.Clone()
	c.docIDs = r.docIDs.Clone()
	c.objectIDs = r.objectIDs.Clone()
	c.positions = r.positions.Clone()
	c.parents = r.parents.Clone()
	c.prefixFile = r.prefixFile.Clone()
	return &c
}

// Close unmaps the files. Closing a clone is a no-op.
func (r *Reader) Close() error {
	if !r.owner {
		return nil
	}
	var errs []error
	for _, f := range r.files {
		errs = append(errs, f.Close())
	}
	r.files = nil
	return errors.Join(errs...)
}

func (r *Reader) Field() string { return r.field }

func (r *Reader) Delegate() string { return r.delegate }

func (r *Reader) Header() FieldHeader { return r.header }

func (r *Reader) NumberOfDocs() int { return r.header.NumberOfDocs }

func (r *Reader) NumberOfTerms() int { return r.header.NumberOfTerms }

func (r *Reader) NumberOfPrefixes() int { return r.header.NumberOfPrefixes }

// Prefixes returns the registered prefixes; the id of Prefixes()[i] is i+1.
func (r *Reader) Prefixes() []string {
	return append([]string(nil), r.prefixes...)
}

// PrefixIDs maps prefixes to their ids, leaving out unknown ones.
func (r *Reader) PrefixIDs(prefixes []string) map[string]int {
	ids := make(map[string]int, len(prefixes))
	for _, p := range prefixes {
		if id, ok := r.prefixID[p]; ok {
			ids[p] = id
		}
	}
	return ids
}

func (r *Reader) PrefixStats() builder.PrefixStats {
	return r.header.Stats
}

// Terms lists every term of the field in term order.
func (r *Reader) Terms() ([]string, error) {
	if err := r.terms.Seek(r.header.FPFirstTerm); err != nil {
		return nil, err
	}
	out := make([]string, 0, r.header.NumberOfTerms)
	for i := 0; i < r.header.NumberOfTerms; i++ {
		t, err := r.terms.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
