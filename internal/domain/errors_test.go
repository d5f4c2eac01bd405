package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPError_Catalog(t *testing.T) {
	cases := []struct {
		err     *HTTPError
		status  int
		message string
	}{
		{ErrRequestParse, http.StatusBadRequest, "Error parsing request."},
		{ErrAuthentication, http.StatusUnauthorized, "Unable to authenticate."},
		{ErrAuthorization, http.StatusForbidden, "Unauthorized."},
		{ErrMissing, http.StatusNotFound, "Not found."},
		{ErrInternal, http.StatusInternalServerError, "Internal server error."},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.err.StatusCode)
		assert.Equal(t, tc.message, tc.err.PublicMessage())
		assert.Equal(t, tc.message, tc.err.Error())
	}
}

func TestHTTPError_WithMessageCopies(t *testing.T) {
	custom := ErrAuthentication.WithMessage("Token expired.")

	assert.Equal(t, "Token expired.", custom.PublicMessage())
	assert.Equal(t, "Unable to authenticate.", ErrAuthentication.PublicMessage())
	assert.Equal(t, "Unable to authenticate.", AuthenticationError("").PublicMessage())
}

func TestHTTPError_IsMatchesStatus(t *testing.T) {
	err := fmt.Errorf("handler: %w", AuthorizationError("Missing role."))

	assert.ErrorIs(t, err, ErrAuthorization)
	assert.False(t, errors.Is(err, ErrAuthentication))

	httpErr, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, "Missing role.", httpErr.PublicMessage())
}

func TestHTTPError_WrapKeepsCausePrivate(t *testing.T) {
	cause := errors.New("strconv: bad digit")
	err := RequestParseError(`Invalid query string parameter "page".`).Wrap(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, `Invalid query string parameter "page".`, err.PublicMessage())
	assert.Contains(t, err.Error(), "bad digit")
}

func TestAsHTTPError_PlainError(t *testing.T) {
	_, ok := AsHTTPError(errors.New("boom"))
	assert.False(t, ok)
	_, ok = AsHTTPError(ErrNotFound)
	assert.False(t, ok)
}
