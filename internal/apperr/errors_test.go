package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKinds(t *testing.T) {
	t.Run("should classify wrapped errors", func(t *testing.T) {
		req := require.New(t)
		err := fmt.Errorf("send: %w", Validation("Message content cannot be empty"))
		req.Equal(KindValidation, KindOf(err))
		req.True(Is(err, KindValidation))
		req.Equal("Message content cannot be empty", PublicMessage(err))
	})

	t.Run("should treat unknown errors as internal", func(t *testing.T) {
		req := require.New(t)
		err := errors.New("connection reset")
		req.Equal(KindInternal, KindOf(err))
		req.Equal("Server Error", PublicMessage(err))
		req.Equal(http.StatusInternalServerError, HTTPStatus(KindOf(err)))
	})

	t.Run("should hide internal causes", func(t *testing.T) {
		req := require.New(t)
		err := Internal(errors.New("mongo: server selection timeout"))
		req.Equal("Server Error", PublicMessage(err))
		req.Contains(err.Error(), "server selection timeout")
	})

	t.Run("should surface authorization as not found", func(t *testing.T) {
		req := require.New(t)
		req.Equal(http.StatusNotFound, HTTPStatus(KindAuthorization))
		req.Equal(http.StatusNotFound, HTTPStatus(KindNotFound))
		req.Equal(http.StatusBadRequest, HTTPStatus(KindValidation))
		req.Equal(http.StatusForbidden, HTTPStatus(KindForbidden))
		req.Equal(http.StatusUnauthorized, HTTPStatus(KindUnauthenticated))
		req.Equal(http.StatusServiceUnavailable, HTTPStatus(KindUnavailable))
	})
}
