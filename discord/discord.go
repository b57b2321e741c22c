package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

const apiBase = "https://discord.com/api/v10"

// ErrMessageGone marks a message that no longer exists on Discord's side.
// Edits and deletes of already-removed log messages tolerate it.
var ErrMessageGone = errors.New("discord message gone")

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

type Member struct {
	Roles []string `json:"roles"`
}

type Channel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	GuildID string `json:"guild_id"`
}

type Guild struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Permissions string `json:"permissions"`
}

// PermissionAdministrator is the ADMINISTRATOR bit of a role's permission
// integer.
const PermissionAdministrator = 1 << 3

// HasPermission reports whether the role's permission integer carries bit.
func (r Role) HasPermission(bit int64) bool {
	perms, err := strconv.ParseInt(r.Permissions, 10, 64)
	if err != nil {
		return false
	}
	return perms&bit != 0
}

type EmbedFooter struct {
	Text string `json:"text"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type Message struct {
	ID        string  `json:"id"`
	ChannelID string  `json:"channel_id"`
	GuildID   string  `json:"guild_id"`
	Content   string  `json:"content"`
	Author    User    `json:"author"`
	Member    *Member `json:"member"`
	Embeds    []Embed `json:"embeds"`
}

type messagePayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Client is a minimal Discord REST client covering what the bot needs:
// channel messages, file uploads and guild metadata for authorization.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
}

func NewClient(token string) *Client {
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    apiBase,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	for {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bot "+c.token)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retry := parseRetryAfter(resp)
			resp.Body.Close()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retry):
			}
			if body != nil {
				// Request bodies are not replayable; the caller's buffer
				// was consumed. Callers that can hit 429 pass bytes.Reader
				// derived bodies, which seek back here.
				if seeker, ok := body.(io.Seeker); ok {
					seeker.Seek(0, io.SeekStart)
				} else {
					return fmt.Errorf("discord rate limited and request not retryable")
				}
			}
			continue
		}

		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return ErrMessageGone
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("discord API returned status %d: %s", resp.StatusCode, string(data))
		}
		if out != nil {
			return json.NewDecoder(resp.Body).Decode(out)
		}
		return nil
	}
}

func parseRetryAfter(resp *http.Response) time.Duration {
	var body struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter * float64(time.Second))
	}
	return time.Second
}

// SendMessage posts content and optional embeds to a channel and returns
// the created message.
func (c *Client) SendMessage(ctx context.Context, channelID, content string, embeds ...Embed) (*Message, error) {
	data, err := json.Marshal(messagePayload{Content: content, Embeds: embeds})
	if err != nil {
		return nil, err
	}
	var msg Message
	err = c.do(ctx, "POST", "/channels/"+channelID+"/messages", bytes.NewReader(data), "application/json", &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessage replaces a message's content and embeds.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string, embeds ...Embed) error {
	data, err := json.Marshal(messagePayload{Content: content, Embeds: embeds})
	if err != nil {
		return err
	}
	return c.do(ctx, "PATCH", "/channels/"+channelID+"/messages/"+messageID, bytes.NewReader(data), "application/json", nil)
}

// DeleteMessage removes a message from a channel.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return c.do(ctx, "DELETE", "/channels/"+channelID+"/messages/"+messageID, nil, "", nil)
}

// SendFile uploads a file as a message attachment.
func (c *Client) SendFile(ctx context.Context, channelID, filename string, data []byte) (*Message, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files[0]", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	var msg Message
	err = c.do(ctx, "POST", "/channels/"+channelID+"/messages", bytes.NewReader(buf.Bytes()), writer.FormDataContentType(), &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Me returns the bot's own user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, "GET", "/users/@me", nil, "", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Channel fetches a channel's metadata.
func (c *Client) Channel(ctx context.Context, channelID string) (*Channel, error) {
	var ch Channel
	if err := c.do(ctx, "GET", "/channels/"+channelID, nil, "", &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// Guild fetches a guild's metadata.
func (c *Client) Guild(ctx context.Context, guildID string) (*Guild, error) {
	var guild Guild
	if err := c.do(ctx, "GET", "/guilds/"+guildID, nil, "", &guild); err != nil {
		return nil, err
	}
	return &guild, nil
}

// GuildRoles lists a guild's roles.
func (c *Client) GuildRoles(ctx context.Context, guildID string) ([]Role, error) {
	var roles []Role
	if err := c.do(ctx, "GET", "/guilds/"+guildID+"/roles", nil, "", &roles); err != nil {
		return nil, err
	}
	return roles, nil
}
