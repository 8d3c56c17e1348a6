package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/reader"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
)

// Reader gives access to the fields of one sealed segment.
type Reader struct {
	dir      string
	manifest Manifest
	local    map[string]int
	fields   map[string]*reader.Reader
}

func OpenReader(dir string) (*Reader, error) {
	m, err := readManifest(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}
	r := &Reader{
		dir:      dir,
		manifest: *m,
		local:    make(map[string]int, len(m.DocIDs)),
		fields:   make(map[string]*reader.Reader, len(m.Fields)),
	}
	for i, id := range m.DocIDs {
		r.local[id] = i
	}
	for _, f := range m.Fields {
		fr, err := reader.Open(dir, f.Name)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("opening segment %s: %w", m.Name, err)
		}
		r.fields[f.Name] = fr
	}
	return r, nil
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: manifest %s", apperrors.ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if len(data) < HeaderSize {
		return nil, apperrors.Corruptf("%s: manifest of %d bytes", path, len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != MagicBytes {
		return nil, apperrors.Corruptf("%s: bad magic bytes %x", path, magic)
	}
	switch version := binary.LittleEndian.Uint32(data[4:8]); {
	case version < 1:
		return nil, fmt.Errorf("%w: %s has manifest version %d", apperrors.ErrVersionTooOld, path, version)
	case version > FormatVersion:
		return nil, fmt.Errorf("%w: %s has manifest version %d", apperrors.ErrVersionTooNew, path, version)
	}
	body := data[HeaderSize:]
	if n := binary.LittleEndian.Uint32(data[8:12]); int(n) != len(body) {
		return nil, apperrors.Corruptf("%s: manifest body is %d bytes, header says %d", path, len(body), n)
	}
	if sum := binary.LittleEndian.Uint32(data[12:16]); sum != crc32.ChecksumIEEE(body) {
		return nil, apperrors.Corruptf("%s: manifest checksum mismatch", path)
	}
	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, apperrors.Corruptf("%s: parsing manifest: %v", path, err)
	}
	return &m, nil
}

func (r *Reader) Name() string { return r.manifest.Name }

func (r *Reader) Manifest() Manifest { return r.manifest }

func (r *Reader) DocCount() int { return len(r.manifest.DocIDs) }

// Lookup returns the local number of docID in this segment.
func (r *Reader) Lookup(docID string) (int, bool) {
	n, ok := r.local[docID]
	return n, ok
}

// Field returns the shared reader of field. Callers that read concurrently
// must Clone it.
func (r *Reader) Field(name string) (*reader.Reader, bool) {
	fr, ok := r.fields[name]
	return fr, ok
}

func (r *Reader) Close() error {
	var errs []error
	for _, fr := range r.fields {
		errs = append(errs, fr.Close())
	}
	r.fields = nil
	return errors.Join(errs...)
}
