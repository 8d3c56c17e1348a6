// Package ingestion defines the Kafka event schemas exchanged between the
// document producers and the forward index build service.
package ingestion

import "time"

// IngestRequest is the JSON body accepted by the ingestion HTTP endpoint.
// DocumentID is optional; re-ingesting an id replaces the document once the
// new copy is sealed.
type IngestRequest struct {
	DocumentID string            `json:"document_id,omitempty"`
	Title      string            `json:"title,omitempty"`
	Body       string            `json:"body,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// IngestResponse is returned to the caller once the event is published.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// IngestEvent asks the build service to index a document. Fields maps field
// names to raw text; Title and Body are shorthands for the "title" and
// "body" fields.
type IngestEvent struct {
	DocumentID string            `json:"document_id"`
	Title      string            `json:"title,omitempty"`
	Body       string            `json:"body,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	IngestedAt time.Time         `json:"ingested_at"`
}

// FieldTexts merges the shorthand fields into Fields. Explicit Fields
// entries win.
func (e IngestEvent) FieldTexts() map[string]string {
	out := make(map[string]string, len(e.Fields)+2)
	if e.Title != "" {
		out["title"] = e.Title
	}
	if e.Body != "" {
		out["body"] = e.Body
	}
	for k, v := range e.Fields {
		out[k] = v
	}
	return out
}

// SegmentSealedEvent is published on the index.complete topic once a
// segment is sealed and registered.
type SegmentSealedEvent struct {
	ShardID  int       `json:"shard_id"`
	Segment  string    `json:"segment"`
	Docs     int       `json:"docs"`
	Fields   []string  `json:"fields"`
	Tokens   int64     `json:"tokens"`
	SealedAt time.Time `json:"sealed_at"`
}
