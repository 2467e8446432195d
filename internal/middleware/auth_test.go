package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAuth(t *testing.T, header string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	err := AuthMiddleware("jwt-secret")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})(c)
	return c, err
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	token, err := CreateAccessToken("jwt-secret", "user-1", "user@example.test", time.Minute)
	require.NoError(t, err)

	c, err := runAuth(t, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", UserID(c))
	assert.Equal(t, "user@example.test", c.Get(ContextEmail))
}

func TestAuthMiddlewareRejects(t *testing.T) {
	expired, err := CreateAccessToken("jwt-secret", "user-1", "", -time.Minute)
	require.NoError(t, err)
	otherKey, err := CreateAccessToken("other-secret", "user-1", "", time.Minute)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":    "",
		"not bearer": "Basic abc",
		"garbage":    "Bearer not-a-jwt",
		"expired":    "Bearer " + expired,
		"other key":  "Bearer " + otherKey,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := runAuth(t, header)
			var he *echo.HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, http.StatusUnauthorized, he.Code)
		})
	}
}
