// Package catalog records sealed segments in PostgreSQL so operators and
// other services can see what each shard holds without opening its files.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS forward_segments (
	name       TEXT PRIMARY KEY,
	shard_id   INTEGER NOT NULL,
	delegate   TEXT NOT NULL,
	docs       INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS forward_segment_fields (
	segment  TEXT NOT NULL REFERENCES forward_segments(name) ON DELETE CASCADE,
	field    TEXT NOT NULL,
	docs     INTEGER NOT NULL,
	terms    INTEGER NOT NULL,
	prefixes INTEGER NOT NULL,
	tokens   BIGINT NOT NULL,
	PRIMARY KEY (segment, field)
);
CREATE INDEX IF NOT EXISTS forward_segments_shard ON forward_segments (shard_id, created_at);
`

// Segment is one catalog row with its field rows.
type Segment struct {
	Name      string
	ShardID   int
	Delegate  string
	Docs      int
	CreatedAt time.Time
	Fields    []segment.FieldSummary
}

type Catalog struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Catalog {
	return &Catalog{
		db:     db,
		logger: slog.Default().With("component", "catalog"),
	}
}

// EnsureSchema creates the catalog tables when missing.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating catalog schema: %w", err)
	}
	return nil
}

// Register records a sealed segment of shardID. Registering the same
// segment again replaces its field rows.
func (c *Catalog) Register(ctx context.Context, shardID int, m *segment.Manifest) error {
	err := c.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO forward_segments (name, shard_id, delegate, docs, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (name) DO UPDATE SET docs = EXCLUDED.docs`,
			m.Name, shardID, m.Delegate, len(m.DocIDs), m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting segment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM forward_segment_fields WHERE segment = $1`, m.Name); err != nil {
			return fmt.Errorf("clearing segment fields: %w", err)
		}
		for _, f := range m.Fields {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO forward_segment_fields (segment, field, docs, terms, prefixes, tokens)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				m.Name, f.Name, f.Docs, f.Terms, f.Prefixes, f.Tokens,
			)
			if err != nil {
				return fmt.Errorf("inserting field %s: %w", f.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("registering segment %s: %w", m.Name, err)
	}
	c.logger.Debug("segment registered", "segment", m.Name, "shard_id", shardID, "fields", len(m.Fields))
	return nil
}

// Segments lists the segments of shardID, oldest first.
func (c *Catalog) Segments(ctx context.Context, shardID int) ([]Segment, error) {
	rows, err := c.db.DB.QueryContext(ctx,
		`SELECT s.name, s.delegate, s.docs, s.created_at,
		        f.field, f.docs, f.terms, f.prefixes, f.tokens
		 FROM forward_segments s
		 LEFT JOIN forward_segment_fields f ON f.segment = s.name
		 WHERE s.shard_id = $1
		 ORDER BY s.created_at, s.name, f.field`,
		shardID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying segments: %w", err)
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		var s Segment
		var field sql.NullString
		var docs, terms, prefixes sql.NullInt64
		var tokens sql.NullInt64
		if err := rows.Scan(&s.Name, &s.Delegate, &s.Docs, &s.CreatedAt,
			&field, &docs, &terms, &prefixes, &tokens); err != nil {
			return nil, fmt.Errorf("scanning segment row: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].Name != s.Name {
			s.ShardID = shardID
			out = append(out, s)
		}
		if field.Valid {
			last := &out[len(out)-1]
			last.Fields = append(last.Fields, segment.FieldSummary{
				Name:     field.String,
				Docs:     int(docs.Int64),
				Terms:    int(terms.Int64),
				Prefixes: int(prefixes.Int64),
				Tokens:   tokens.Int64,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating segments: %w", err)
	}
	return out, nil
}

// Forget removes a segment and its fields.
func (c *Catalog) Forget(ctx context.Context, name string) error {
	if _, err := c.db.DB.ExecContext(ctx, `DELETE FROM forward_segments WHERE name = $1`, name); err != nil {
		return fmt.Errorf("deleting segment %s: %w", name, err)
	}
	return nil
}
