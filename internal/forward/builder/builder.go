// Package builder writes the forward index of a segment. For each field it
// turns postings (term order) into document-order catalogs in two phases:
// phase A writes every token to a temporary object file and one fragment
// per term and document; the fragments are then chained per document, and
// phase B walks each document's chain, copies its objects in id order into
// the final object catalog and writes the id index, position tree and
// parent tree of the document.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/codec"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/lock"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/payload"
)

const DefaultLockName = "write.lock"

type Options struct {
	// DelegateName is recorded in every file header.
	DelegateName string
	LockName     string
	// LockDir holds the lock file; empty means the build directory. Writers
	// sharing a LockDir never build concurrently.
	LockDir string
	Lock    lock.Policy
	Decoder PayloadDecoder
	Logger  *slog.Logger
}

func (o *Options) defaults() {
	if o.DelegateName == "" {
		o.DelegateName = "Lucene50"
	}
	if o.LockName == "" {
		o.LockName = DefaultLockName
	}
	if o.Lock.MaxAttempts <= 0 {
		o.Lock = lock.DefaultPolicy()
	}
	if o.Decoder == nil {
		o.Decoder = payload.NewDecoder()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type Builder struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Builder {
	opts.defaults()
	return &Builder{
		opts:   opts,
		logger: opts.Logger.With("component", "forward-builder"),
	}
}

// FieldResult summarizes one field of a build.
type FieldResult struct {
	Field    string
	Skipped  bool
	Docs     int
	Terms    int
	Prefixes int
	Tokens   int64
	Duration time.Duration
}

type Result struct {
	Fields   []FieldResult
	LockWait time.Duration
}

// Build writes the forward index of every indexable field of src into dir.
// The directory lock is held for the whole build. A field that fails leaves
// no files behind; fields committed before it stay valid.
func (b *Builder) Build(ctx context.Context, dir string, src PostingsSource) (*Result, error) {
	lockDir := b.opts.LockDir
	if lockDir == "" {
		lockDir = dir
	}
	l, err := lock.Acquire(ctx, lockDir, b.opts.LockName, b.opts.Lock)
	if err != nil {
		return nil, fmt.Errorf("building forward index in %s: %w", dir, err)
	}
	result := &Result{LockWait: l.Waited()}
	defer func() {
		if err := l.Release(); err != nil {
			b.logger.Error("failed to release build lock", "dir", lockDir, "error", err)
		}
	}()

	for _, info := range src.Fields() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := codec.ValidateField(info.Name); err != nil {
			return result, err
		}
		if !info.Indexable() {
			b.logger.Debug("field skipped, postings lack freqs, positions or payloads", "field", info.Name)
			result.Fields = append(result.Fields, FieldResult{Field: info.Name, Skipped: true})
			continue
		}
		fr, err := b.buildField(ctx, dir, info, src)
		if err != nil {
			removeField(dir, info.Name)
			return result, fmt.Errorf("building field %s: %w", info.Name, err)
		}
		result.Fields = append(result.Fields, fr)
	}
	return result, nil
}

func (b *Builder) buildField(ctx context.Context, dir string, info FieldInfo, src PostingsSource) (FieldResult, error) {
	start := time.Now()
	logger := b.logger.With("field", info.Name, "dir", dir)
	terms, err := src.Terms(info.Name)
	if err != nil {
		return FieldResult{}, fmt.Errorf("reading postings: %w", err)
	}

	fb := &fieldBuild{
		dir:    dir,
		info:   info,
		opts:   b.opts,
		state:  NewFieldBuildState(info.Name),
		logger: logger,
	}
	defer fb.closeAll()

	if err := fb.open(); err != nil {
		return FieldResult{}, err
	}
	if err := fb.collect(ctx, terms); err != nil {
		return FieldResult{}, fmt.Errorf("phase A: %w", err)
	}
	logger.Debug("objects collected", "terms", fb.state.terms, "tokens", fb.state.tokens, "docs", fb.state.NumberOfDocs())
	if err := fb.chain(); err != nil {
		return FieldResult{}, fmt.Errorf("chaining fragments: %w", err)
	}
	if err := fb.merge(ctx); err != nil {
		return FieldResult{}, fmt.Errorf("phase B: %w", err)
	}
	if err := fb.commit(); err != nil {
		return FieldResult{}, fmt.Errorf("committing header: %w", err)
	}

	fr := FieldResult{
		Field:    info.Name,
		Docs:     fb.state.NumberOfDocs(),
		Terms:    fb.state.terms,
		Prefixes: fb.state.NumberOfPrefixes(),
		Tokens:   fb.state.tokens,
		Duration: time.Since(start),
	}
	logger.Info("forward index field built",
		"docs", fr.Docs, "terms", fr.Terms, "prefixes", fr.Prefixes,
		"tokens", fr.Tokens, "duration", fr.Duration)
	return fr, nil
}

// removeField deletes every file a field's build may have produced.
func removeField(dir, field string) {
	for _, role := range slices.Concat(codec.SealedRoles, codec.TempRoles) {
		path := codec.Path(dir, field, role)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Default().Warn("failed to remove partial file", "path", path, "error", err)
		}
	}
	os.Remove(codec.Path(dir, field, codec.RoleField) + ".tmp")
}
