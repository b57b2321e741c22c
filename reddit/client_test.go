package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agnosto/casewatch/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testClient(apiBase, tokenBase string) *Client {
	c := NewClient(config.RedditConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		Username:     "bot",
		Password:     "pw",
		UserAgent:    "casewatch test",
		Subreddit:    "testing",
	})
	c.apiBase = apiBase
	c.tokenBase = tokenBase
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func tokenHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Helper()
		require.Equal(t, "/api/v1/access_token", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.FormValue("grant_type"))
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}
}

func logEntry(mod, author string, ts float64) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"mod":              mod,
			"action":           "removelink",
			"target_title":     "a post",
			"target_author":    author,
			"target_permalink": "/r/testing/comments/abc/a_post/",
			"created_utc":      ts,
		},
	}
}

func writeListing(w http.ResponseWriter, after string, children ...map[string]any) {
	json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{
			"after":    after,
			"children": children,
		},
	})
}

func TestAuthenticate(t *testing.T) {
	srv := httptest.NewServer(tokenHandler(t))
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	require.NoError(t, c.Authenticate(context.Background()))
	assert.Equal(t, "tok-123", c.token)
}

func TestAuthenticateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
	}))
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	err := c.Authenticate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestFetchRemovalsStopsAtWatermark(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", tokenHandler(t))
	mux.HandleFunc("/r/testing/about/log", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "removelink", r.URL.Query().Get("type"))
		writeListing(w, "",
			logEntry("modA", "alice", 300),
			logEntry("AutoModerator", "bob", 250),
			logEntry("modB", "carol", 200),
			logEntry("modA", "dave", 100),
		)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	actions, err := c.FetchRemovals(context.Background(), 200)
	require.NoError(t, err)

	// Everything newer than the watermark comes back in scan order, the
	// AutoModerator entry included; filtering is the caller's concern.
	require.Len(t, actions, 2)
	assert.Equal(t, "alice", actions[0].TargetAuthor)
	assert.Equal(t, AutoModerator, actions[1].Moderator)
	assert.Equal(t, float64(300), actions[0].CreatedUTC)
}

func TestFetchRemovalsPaginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", tokenHandler(t))
	var pages int
	mux.HandleFunc("/r/testing/about/log", func(w http.ResponseWriter, r *http.Request) {
		pages++
		switch r.URL.Query().Get("after") {
		case "":
			writeListing(w, "t2_page2", logEntry("modA", "alice", 400), logEntry("modA", "bob", 300))
		case "t2_page2":
			writeListing(w, "", logEntry("modB", "carol", 200))
		default:
			t.Fatalf("unexpected after cursor %q", r.URL.Query().Get("after"))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	actions, err := c.FetchRemovals(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, pages)
	require.Len(t, actions, 3)
	assert.Equal(t, "alice", actions[0].TargetAuthor)
	assert.Equal(t, "carol", actions[2].TargetAuthor)
}

func TestFetchRemovalsEmptyLog(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", tokenHandler(t))
	mux.HandleFunc("/r/testing/about/log", func(w http.ResponseWriter, r *http.Request) {
		writeListing(w, "")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	actions, err := c.FetchRemovals(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestFetchRemovalsServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", tokenHandler(t))
	mux.HandleFunc("/r/testing/about/log", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	_, err := c.FetchRemovals(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprint(http.StatusServiceUnavailable))
}

func TestTokenReusedAcrossCalls(t *testing.T) {
	var tokenCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		tokenHandler(t)(w, r)
	})
	mux.HandleFunc("/r/testing/about/log", func(w http.ResponseWriter, r *http.Request) {
		writeListing(w, "", logEntry("modA", "alice", 100))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(srv.URL, srv.URL)
	_, err := c.FetchRemovals(context.Background(), 0)
	require.NoError(t, err)
	_, err = c.FetchRemovals(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, tokenCalls)
}
