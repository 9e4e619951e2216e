package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation("bad %s", "input")))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(Authentication("no token")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(Forbidden("nope")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("goal not found")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(Conflict("already pending")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("reorder: %w", Validation("invalid goal ids"))
	assert.True(t, Is(err, KindValidation))
	assert.Equal(t, "invalid goal ids", PublicMessage(err))
}

func TestUnexpectedHidesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unexpected("failed to fetch goals", cause)
	assert.Equal(t, KindUnexpected, KindOf(err))
	assert.Equal(t, "failed to fetch goals", PublicMessage(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal server error", PublicMessage(cause))
}
