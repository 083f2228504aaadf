package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
)

type fakeYouTube struct {
	*httptest.Server
	scope      string
	noChannel  bool
	expired    bool
	tokenForm  url.Values
	playlistID string
}

func newFakeYouTube(t *testing.T) *fakeYouTube {
	t.Helper()
	f := &fakeYouTube{scope: "https://www.googleapis.com/auth/youtube.readonly https://www.googleapis.com/auth/userinfo.profile"}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.tokenForm = r.PostForm
		body := map[string]any{
			"access_token": "ya29.access",
			"expires_in":   3599,
			"token_type":   "Bearer",
			"scope":        f.scope,
		}
		if r.PostForm.Get("grant_type") == "authorization_code" {
			body["refresh_token"] = "1//refresh"
		}
		writeJSON(w, http.StatusOK, body)
	})
	mux.HandleFunc("GET /youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		if f.expired {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error": map[string]any{"code": 401, "message": "Invalid Credentials"},
			})
			return
		}
		assert.Equal(t, "true", r.URL.Query().Get("mine"))
		if f.noChannel {
			writeJSON(w, http.StatusOK, map[string]any{"items": []any{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{map[string]any{
			"id": "UC1234567890",
			"snippet": map[string]any{
				"title":     "Gopher Channel",
				"customUrl": "@gophers",
				"thumbnails": map[string]any{
					"default": map[string]any{"url": "https://yt.example.com/thumb.jpg"},
				},
			},
			"statistics": map[string]any{
				"subscriberCount": "1200",
				"videoCount":      "42",
				"viewCount":       "98000",
			},
			"contentDetails": map[string]any{
				"relatedPlaylists": map[string]any{"uploads": "UU1234567890"},
			},
		}}})
	})
	mux.HandleFunc("GET /youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		f.playlistID = r.URL.Query().Get("playlistId")
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{
			map[string]any{
				"snippet":        map[string]any{"title": "Intro to Go"},
				"contentDetails": map[string]any{"videoId": "vid-1", "videoPublishedAt": "2026-01-02T10:00:00Z"},
			},
		}})
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeYouTube) provider() *Provider {
	return New(Config{
		RedirectURL: "http://localhost:18080/callback",
		HTTPClient:  f.Client(),
		AuthURL:     f.URL + "/auth",
		TokenURL:    f.URL + "/token",
		APIBase:     f.URL + "/",
	}, &domain.ClientInformation{Values: map[string]string{
		ClientIDKey:     "yt-client",
		ClientSecretKey: "yt-secret",
	}})
}

func TestRegistration(t *testing.T) {
	reg := Registration(Config{})

	assert.Equal(t, ID, reg.Descriptor.ID)
	require.Len(t, reg.Fields, 2)
	assert.Equal(t, ClientIDKey, reg.Fields[0].Key)
	assert.Equal(t, ClientSecretKey, reg.Fields[1].Key)

	p := reg.New(nil)
	for _, m := range reg.Methods {
		assert.Contains(t, p.Methods(), m.Name)
		assert.Equal(t, ID, m.Provider)
	}
}

func TestProvider_GenerateAuthURL(t *testing.T) {
	f := newFakeYouTube(t)

	auth, err := f.provider().GenerateAuthURL(context.Background(), nil)
	require.NoError(t, err)

	u, err := url.Parse(auth.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "yt-client", q.Get("client_id"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "http://localhost:18080/callback", q.Get("redirect_uri"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, auth.State, q.Get("state"))
}

func TestProvider_Authenticate(t *testing.T) {
	f := newFakeYouTube(t)

	result, err := f.provider().Authenticate(context.Background(), domain.AuthParams{
		Code:         "4/code",
		CodeVerifier: "verifier",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "UC1234567890", result.ID)
	assert.Equal(t, "Gopher Channel", result.Name)
	assert.Equal(t, "@gophers", result.Username)
	assert.Equal(t, "https://yt.example.com/thumb.jpg", result.Picture)
	assert.Equal(t, "ya29.access", result.AccessToken)
	assert.Equal(t, "1//refresh", result.RefreshToken)
	assert.InDelta(t, 3599, result.ExpiresIn, 1)
	assert.Equal(t, "verifier", f.tokenForm.Get("code_verifier"))
}

func TestProvider_Authenticate_Refused(t *testing.T) {
	t.Run("scope not granted", func(t *testing.T) {
		f := newFakeYouTube(t)
		f.scope = "https://www.googleapis.com/auth/userinfo.profile"

		_, err := f.provider().Authenticate(context.Background(), domain.AuthParams{Code: "c"}, nil)
		assert.True(t, errors.Is(err, domain.ErrNotEnoughScopes))
	})

	t.Run("no channel", func(t *testing.T) {
		f := newFakeYouTube(t)
		f.noChannel = true

		_, err := f.provider().Authenticate(context.Background(), domain.AuthParams{Code: "c"}, nil)
		var scopesErr *domain.ScopesError
		require.True(t, errors.As(err, &scopesErr))
		assert.Contains(t, scopesErr.Message, "no YouTube channel")
	})
}

func TestProvider_RefreshToken(t *testing.T) {
	f := newFakeYouTube(t)

	result, err := f.provider().RefreshToken(context.Background(), "1//old")
	require.NoError(t, err)
	assert.Equal(t, "ya29.access", result.AccessToken)
	assert.Equal(t, "1//old", result.RefreshToken)
	assert.Equal(t, "refresh_token", f.tokenForm.Get("grant_type"))
}

func TestProvider_Channel(t *testing.T) {
	f := newFakeYouTube(t)

	out, err := f.provider().Methods()["channel"](context.Background(), domain.Call{AccessToken: "ya29.access"})
	require.NoError(t, err)

	assert.Equal(t, Channel{
		ID:          "UC1234567890",
		Title:       "Gopher Channel",
		CustomURL:   "@gophers",
		Subscribers: 1200,
		Videos:      42,
		Views:       98000,
	}, out)
}

func TestProvider_Channel_Expired(t *testing.T) {
	f := newFakeYouTube(t)
	f.expired = true

	_, err := f.provider().Methods()["channel"](context.Background(), domain.Call{AccessToken: "stale"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTokenExpired))
	assert.True(t, IsUnauthorized(err))
}

func TestProvider_Videos(t *testing.T) {
	f := newFakeYouTube(t)

	out, err := f.provider().Methods()["videos"](context.Background(), domain.Call{
		AccessToken: "ya29.access",
		Args:        map[string]any{"limit": float64(5)},
	})
	require.NoError(t, err)

	videos, ok := out.([]Video)
	require.True(t, ok)
	require.Len(t, videos, 1)
	assert.Equal(t, "vid-1", videos[0].ID)
	assert.Equal(t, "Intro to Go", videos[0].Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid-1", videos[0].URL)
	assert.Equal(t, "UU1234567890", f.playlistID)
}
