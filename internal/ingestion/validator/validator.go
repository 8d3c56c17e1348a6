// Package validator checks ingestion requests before they are published:
// id and field length limits, and that every field is one the build service
// indexes.
package validator

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/ingestion"
)

const (
	maxDocIDLength = 255
	maxTitleLength = 1024
	maxFieldLength = 1 << 20
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks req against the indexed fields.
func ValidateIngestRequest(req *ingestion.IngestRequest, indexed []string) error {
	errs := make(map[string]string)

	if len(req.DocumentID) > maxDocIDLength {
		errs["document_id"] = fmt.Sprintf("document_id must be at most %d characters", maxDocIDLength)
	}
	if len(req.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	texts := ingestion.IngestEvent{Title: req.Title, Body: req.Body, Fields: req.Fields}.FieldTexts()
	nonEmpty := 0
	for field, text := range texts {
		switch {
		case !slices.Contains(indexed, field):
			errs[field] = "field is not indexed"
		case len(text) > maxFieldLength:
			errs[field] = fmt.Sprintf("field must be at most %d bytes", maxFieldLength)
		case strings.TrimSpace(text) != "":
			nonEmpty++
		}
	}
	if nonEmpty == 0 && len(errs) == 0 {
		errs["fields"] = "at least one non-empty field is required"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
