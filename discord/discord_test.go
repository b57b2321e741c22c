package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServerClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-token")
	c.baseURL = srv.URL
	return c
}

func TestSendMessage(t *testing.T) {
	c := testServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/channels/chan-1/messages", r.URL.Path)
		assert.Equal(t, "Bot test-token", r.Header.Get("Authorization"))

		var payload struct {
			Content string  `json:"content"`
			Embeds  []Embed `json:"embeds"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Embeds, 1)
		assert.Equal(t, 3447003, payload.Embeds[0].Color)

		json.NewEncoder(w).Encode(Message{ID: "msg-1", ChannelID: "chan-1"})
	}))

	msg, err := c.SendMessage(context.Background(), "chan-1", "", Embed{Color: 3447003})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.ID)
}

func TestDeleteMessageGone(t *testing.T) {
	c := testServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Unknown Message"}`, http.StatusNotFound)
	}))

	err := c.DeleteMessage(context.Background(), "chan-1", "msg-1")
	assert.ErrorIs(t, err, ErrMessageGone)
}

func TestRateLimitRetried(t *testing.T) {
	var calls int
	c := testServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{"retry_after": 0.01})
			return
		}
		var payload struct {
			Content string `json:"content"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "hello", payload.Content, "retried request carries the full body")
		json.NewEncoder(w).Encode(Message{ID: "msg-2"})
	}))

	msg, err := c.SendMessage(context.Background(), "chan-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "msg-2", msg.ID)
}

func TestSendFileMultipart(t *testing.T) {
	c := testServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("files[0]")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "pose.jpg", header.Filename)
		json.NewEncoder(w).Encode(Message{ID: "msg-3"})
	}))

	msg, err := c.SendFile(context.Background(), "chan-1", "pose.jpg", []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, "msg-3", msg.ID)
}

func TestGuildRoles(t *testing.T) {
	c := testServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/guilds/guild-1/roles", r.URL.Path)
		json.NewEncoder(w).Encode([]Role{
			{ID: "r1", Name: "mods", Permissions: "8"},
			{ID: "r2", Name: "everyone", Permissions: "104320577"},
		})
	}))

	roles, err := c.GuildRoles(context.Background(), "guild-1")
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.True(t, roles[0].HasPermission(PermissionAdministrator))
	assert.False(t, roles[1].HasPermission(PermissionAdministrator))
}

func TestHasPermissionBadInteger(t *testing.T) {
	r := Role{Permissions: "not-a-number"}
	assert.False(t, r.HasPermission(PermissionAdministrator))
}
