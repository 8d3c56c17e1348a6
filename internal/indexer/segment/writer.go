// Package segment seals buffered documents into segment directories. A
// segment holds the forward index files of every configured field plus a
// manifest mapping local document numbers to external document ids. The
// directory is built under a .tmp name and renamed once complete.
package segment

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/builder"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
	"github.com/google/uuid"
)

// MagicBytes identifies a segment manifest.
const (
	MagicBytes    uint32 = 0x46574458
	FormatVersion uint32 = 1
	HeaderSize    int    = 16

	ManifestName = "segment.manifest"
	namePrefix   = "seg_"
	tmpSuffix    = ".tmp"
)

// FieldSummary records what the build of one field produced.
type FieldSummary struct {
	Name     string `json:"name"`
	Docs     int    `json:"docs"`
	Terms    int    `json:"terms"`
	Prefixes int    `json:"prefixes"`
	Tokens   int64  `json:"tokens"`
}

// Manifest describes a sealed segment. DocIDs[i] is the external id of
// local document i.
type Manifest struct {
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	Delegate  string         `json:"delegate"`
	Fields    []FieldSummary `json:"fields"`
	DocIDs    []string       `json:"doc_ids"`
	// LockWait is how long the build waited for the lock; not persisted.
	LockWait time.Duration `json:"-"`
}

// Tokens sums the tokens of every field.
func (m *Manifest) Tokens() int64 {
	var n int64
	for _, f := range m.Fields {
		n += f.Tokens
	}
	return n
}

// Writer seals snapshots into new segment directories under dataDir.
// Builds of all writers sharing dataDir are serialized by the build lock
// kept there.
type Writer struct {
	dataDir string
	opts    builder.Options
	logger  *slog.Logger
}

func NewWriter(dataDir string, opts builder.Options) *Writer {
	opts.LockDir = dataDir
	return &Writer{
		dataDir: dataDir,
		opts:    opts,
		logger:  slog.Default().With("component", "segment-writer"),
	}
}

// Write builds snap into a new segment and returns its manifest.
func (w *Writer) Write(ctx context.Context, snap *index.Snapshot) (*Manifest, error) {
	if snap.Empty() {
		return nil, fmt.Errorf("%w: cannot write empty segment", apperrors.ErrInvalidInput)
	}
	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating segment directory: %w", err)
	}
	name := fmt.Sprintf("%s%d_%s", namePrefix, time.Now().UnixNano(), uuid.NewString()[:8])
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + tmpSuffix
	if err := os.Mkdir(tmpPath, 0755); err != nil {
		return nil, fmt.Errorf("creating temp segment: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmpPath)
		}
	}()

	result, err := builder.New(w.opts).Build(ctx, tmpPath, snap)
	if err != nil {
		return nil, fmt.Errorf("building segment %s: %w", name, err)
	}
	m := &Manifest{
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Delegate:  w.opts.DelegateName,
		DocIDs:    snap.DocIDs(),
		LockWait:  result.LockWait,
	}
	for _, f := range result.Fields {
		if f.Skipped {
			continue
		}
		m.Fields = append(m.Fields, FieldSummary{
			Name:     f.Field,
			Docs:     f.Docs,
			Terms:    f.Terms,
			Prefixes: f.Prefixes,
			Tokens:   f.Tokens,
		})
	}
	if err := writeManifest(filepath.Join(tmpPath, ManifestName), m); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return nil, fmt.Errorf("renaming segment: %w", err)
	}
	committed = true
	w.logger.Info("segment sealed",
		"segment", name,
		"docs", len(m.DocIDs),
		"fields", len(m.Fields),
		"tokens", m.Tokens(),
		"lock_wait", result.LockWait,
	)
	return m, nil
}

// writeManifest writes a 16-byte header (magic, version, body length,
// crc32 of the body) followed by the JSON body.
func writeManifest(path string, m *Manifest) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(body)))
	binary.LittleEndian.PutUint32(header[12:16], crc32.ChecksumIEEE(body))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating manifest: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("writing manifest header: %w", err)
	}
	if _, err := f.Write(body); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing manifest: %w", err)
	}
	return f.Close()
}

// List returns the sealed segment directories under dataDir, oldest first,
// and the leftovers of interrupted writes.
func List(dataDir string) (sealed, stale []string, err error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading data directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), namePrefix) {
			continue
		}
		if strings.HasSuffix(e.Name(), tmpSuffix) {
			stale = append(stale, e.Name())
		} else {
			sealed = append(sealed, e.Name())
		}
	}
	return sealed, stale, nil
}
