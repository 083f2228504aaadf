package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New("test", srv.URL+"/", srv.Client())
	c.Limiter = nil
	return c
}

func TestClient_JSON(t *testing.T) {
	var gotAuth, gotType, gotPath string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "42"})
	})

	var out struct {
		ID string `json:"id"`
	}
	err := c.JSON(context.Background(), http.MethodPost, "items", "tok", map[string]string{"text": "hi"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "42", out.ID)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "/items", gotPath)
	assert.Equal(t, "hi", gotBody["text"])
}

func TestClient_AuthSchemes(t *testing.T) {
	tests := []struct {
		name   string
		scheme AuthScheme
		header string
		want   string
	}{
		{"bearer", Bearer, "Authorization", "Bearer tok"},
		{"bot", Bot, "Authorization", "Bot tok"},
		{"api key header", HeaderKey("api-key"), "api-key", "tok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get(tt.header)
				w.WriteHeader(http.StatusNoContent)
			})
			c.Auth = tt.scheme

			require.NoError(t, c.JSON(context.Background(), http.MethodGet, "/x", "tok", nil, nil))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_NoTokenSendsNoCredentials(t *testing.T) {
	var got string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	})

	require.NoError(t, c.JSON(context.Background(), http.MethodGet, "/x", "", nil, nil))
	assert.Empty(t, got)
}

func TestClient_Get_Query(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte(`[]`))
	})

	var out []any
	require.NoError(t, c.Get(context.Background(), "/list", "tok", url.Values{"limit": {"5"}}, &out))
	assert.Equal(t, "5", got.Get("limit"))
}

func TestClient_Form(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		_, _ = w.Write([]byte(`{}`))
	})

	var out map[string]any
	require.NoError(t, c.Form(context.Background(), http.MethodPost, "/apps", "", url.Values{"client_name": {"x"}}, &out))
	assert.Equal(t, "x", got.Get("client_name"))
}

func TestClient_AbsoluteURL(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer other.Close()

	c := New("test", "https://unused.invalid", other.Client())
	c.Limiter = nil

	var out map[string]bool
	require.NoError(t, c.JSON(context.Background(), http.MethodGet, other.URL+"/me", "tok", nil, &out))
	assert.True(t, out["ok"])
}

func TestClient_Errors(t *testing.T) {
	t.Run("unauthorized maps to token expired", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"bad token"}`))
		})

		err := c.JSON(context.Background(), http.MethodGet, "/me", "tok", nil, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrTokenExpired))
		assert.True(t, IsUnauthorized(err))
		assert.Contains(t, err.Error(), "bad token")
	})

	t.Run("forbidden is not token expired", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		err := c.JSON(context.Background(), http.MethodGet, "/me", "tok", nil, nil)
		assert.False(t, errors.Is(err, domain.ErrTokenExpired))
		assert.True(t, IsForbidden(err))
	})

	t.Run("not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		err := c.JSON(context.Background(), http.MethodGet, "/me", "tok", nil, nil)
		assert.True(t, IsNotFound(err))
	})

	t.Run("rate limited records backoff", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		})
		c.Limiter = NewRateLimiter(RateLimitConfig{RequestsPerSecond: 100, BurstSize: 10})

		err := c.JSON(context.Background(), http.MethodGet, "/me", "tok", nil, nil)
		require.True(t, IsRateLimited(err))

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 30*time.Second, apiErr.RetryAfter)
		assert.False(t, c.Limiter.Allow())
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{not json`))
		})

		var out map[string]any
		err := c.JSON(context.Background(), http.MethodGet, "/me", "tok", nil, &out)
		assert.ErrorContains(t, err, "decode response")
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("wait respects cancelled context during backoff", func(t *testing.T) {
		l := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 100, BurstSize: 1})
		l.RecordRateLimitError(time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
	})

	t.Run("default backoff", func(t *testing.T) {
		l := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 100, BurstSize: 1})
		assert.True(t, l.Allow())
		l.RecordRateLimitError(0)
		assert.False(t, l.Allow())
	})

	t.Run("shared per provider", func(t *testing.T) {
		assert.Same(t, Limiter("youtube"), Limiter("youtube"))
		assert.NotSame(t, Limiter("youtube"), Limiter("devto"))
		assert.NotNil(t, Limiter("unknown-provider"))
	})
}

func TestClient_JSONHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Restli-Id", "urn:li:share:1")
		w.WriteHeader(http.StatusCreated)
	})

	h, err := c.JSONHeader(context.Background(), http.MethodPost, "/posts", "tok", map[string]string{"a": "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:1", h.Get("X-Restli-Id"))
}
