package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("doc 3: %w", ErrNotFound), http.StatusNotFound},
		{"invalid", ErrInvalidInput, http.StatusBadRequest},
		{"corrupt", Corruptf("id %d duplicated", 4), http.StatusInternalServerError},
		{"too old", fmt.Errorf("object file: %w", ErrVersionTooOld), http.StatusUpgradeRequired},
		{"too new", ErrVersionTooNew, http.StatusUpgradeRequired},
		{"lock", ErrLockTimeout, http.StatusConflict},
		{"app error", New(ErrNotFound, http.StatusGone, "segment dropped"), http.StatusGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestCorruptfAndIsVersion(t *testing.T) {
	err := Corruptf("fragment for doc %d points to doc %d", 1, 2)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Contains(t, err.Error(), "fragment for doc 1 points to doc 2")
	assert.False(t, IsVersion(err))
	assert.True(t, IsVersion(fmt.Errorf("header: %w", ErrVersionTooNew)))
}
