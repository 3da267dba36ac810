package ws

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/security"
)

func TestMakeCheckOrigin(t *testing.T) {
	check := makeCheckOrigin([]string{"http://localhost:3000", " HTTPS://App.Example.com "})

	withOrigin := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, check(withOrigin("http://localhost:3000")))
	assert.True(t, check(withOrigin("HTTP://LOCALHOST:3000")))
	assert.True(t, check(withOrigin("https://app.example.com")))
	assert.False(t, check(withOrigin("http://evil.example.com")))
	assert.False(t, check(withOrigin("")))

	// an empty allowlist admits nobody
	none := makeCheckOrigin(nil)
	assert.False(t, none(withOrigin("http://localhost:3000")))
}

func TestExtractTokenFromWSRequest(t *testing.T) {
	t.Run("BearerHeader", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Authorization", "Bearer abc123")
		token, err := extractTokenFromWSRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "abc123", token)
	})

	t.Run("SubprotocolHeader", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Sec-WebSocket-Protocol", "bearer, abc123")
		token, err := extractTokenFromWSRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "abc123", token)
	})

	t.Run("SessionCookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.AddCookie(&http.Cookie{Name: security.SessionCookie, Value: "abc123"})
		token, err := extractTokenFromWSRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "abc123", token)
	})

	t.Run("HeaderWinsOverCookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Authorization", "Bearer header-token")
		r.AddCookie(&http.Cookie{Name: security.SessionCookie, Value: "cookie-token"})
		token, err := extractTokenFromWSRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "header-token", token)
	})

	t.Run("Missing", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		_, err := extractTokenFromWSRequest(r)
		require.Error(t, err)
		authErr, ok := err.(wsAuthError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, authErr.status)
	})
}

func TestInt64Field(t *testing.T) {
	payload := map[string]any{"thread_id": float64(42), "name": "x"}
	assert.Equal(t, int64(42), int64Field(payload, "thread_id"))
	assert.Equal(t, int64(0), int64Field(payload, "name"))
	assert.Equal(t, int64(0), int64Field(payload, "missing"))
}
