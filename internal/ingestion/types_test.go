package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldTexts(t *testing.T) {
	e := IngestEvent{
		DocumentID: "doc-1",
		Title:      "Title",
		Body:       "Body",
		Fields:     map[string]string{"body": "explicit", "summary": "Short"},
	}
	assert.Equal(t, map[string]string{
		"title":   "Title",
		"body":    "explicit",
		"summary": "Short",
	}, e.FieldTexts())

	assert.Empty(t, IngestEvent{DocumentID: "x"}.FieldTexts())
}
