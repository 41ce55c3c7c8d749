package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromUnwrapsChain(t *testing.T) {
	sentinel := New("THING_MISSING", http.StatusNotFound, "thing missing")
	wrapped := fmt.Errorf("load thing: %w", sentinel)

	e := From(wrapped)
	if assert.NotNil(t, e) {
		assert.Equal(t, Code("THING_MISSING"), e.Code)
	}
	assert.Equal(t, http.StatusNotFound, Status(wrapped))
	assert.True(t, errors.Is(wrapped, sentinel))
}

func TestUncodedIsInternal(t *testing.T) {
	err := errors.New("connection refused")
	assert.Nil(t, From(err))
	assert.Equal(t, http.StatusInternalServerError, Status(err))
}
