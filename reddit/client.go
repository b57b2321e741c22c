package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agnosto/casewatch/config"
	"golang.org/x/time/rate"
)

// AutoModerator is reddit's automated moderation actor. Its removals are
// noise for case tracking and get filtered by the reconciler.
const AutoModerator = "AutoModerator"

// ModAction is one entry of a subreddit moderation log.
type ModAction struct {
	Moderator       string
	Action          string
	TargetTitle     string
	TargetAuthor    string
	TargetPermalink string
	CreatedUTC      float64
}

// Client talks to the reddit API with a script-app OAuth session. All
// calls share one rate limiter to stay inside reddit's API limits.
type Client struct {
	cfg        config.RedditConfig
	httpClient *http.Client
	limiter    *rate.Limiter

	apiBase   string
	tokenBase string

	token       string
	tokenExpiry time.Time
}

func NewClient(cfg config.RedditConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(2*time.Second), 1),
		apiBase:    "https://oauth.reddit.com",
		tokenBase:  "https://www.reddit.com",
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// Authenticate performs the password grant for a script app and caches the
// bearer token.
func (c *Client) Authenticate(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, "POST", c.tokenBase+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token request returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return fmt.Errorf("error parsing token response: %v", err)
	}
	if tok.Error != "" || tok.AccessToken == "" {
		return fmt.Errorf("reddit auth failed: %s", tok.Error)
	}

	c.token = tok.AccessToken
	// Refresh a minute early rather than racing the expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return nil
	}
	return c.Authenticate(ctx)
}

type listingResponse struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data struct {
				Mod             string  `json:"mod"`
				Action          string  `json:"action"`
				TargetTitle     string  `json:"target_title"`
				TargetAuthor    string  `json:"target_author"`
				TargetPermalink string  `json:"target_permalink"`
				CreatedUTC      float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchRemovals pages the subreddit's removelink moderation log newest
// first and returns, in scan order, every entry newer than since. The scan
// stops at the first entry at or below since; the feed is assumed
// reverse-chronological with no gaps under that watermark.
func (c *Client) FetchRemovals(ctx context.Context, since float64) ([]ModAction, error) {
	var actions []ModAction
	after := ""

	for {
		if err := c.ensureToken(ctx); err != nil {
			return nil, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %v", err)
		}

		listing, err := c.fetchLogPage(ctx, after)
		if err != nil {
			return nil, err
		}
		if len(listing.Data.Children) == 0 {
			return actions, nil
		}

		for _, child := range listing.Data.Children {
			entry := child.Data
			if entry.CreatedUTC <= since {
				return actions, nil
			}
			actions = append(actions, ModAction{
				Moderator:       entry.Mod,
				Action:          entry.Action,
				TargetTitle:     entry.TargetTitle,
				TargetAuthor:    entry.TargetAuthor,
				TargetPermalink: entry.TargetPermalink,
				CreatedUTC:      entry.CreatedUTC,
			})
		}

		if listing.Data.After == "" {
			return actions, nil
		}
		after = listing.Data.After
	}
}

func (c *Client) fetchLogPage(ctx context.Context, after string) (*listingResponse, error) {
	endpoint := fmt.Sprintf("%s/r/%s/about/log?type=removelink&limit=100", c.apiBase, url.PathEscape(c.cfg.Subreddit))
	if after != "" {
		endpoint += "&after=" + url.QueryEscape(after)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "bearer "+c.token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token revoked out from under us; force a re-auth next call.
		c.token = ""
		return nil, fmt.Errorf("mod log request unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("mod log request returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var listing listingResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("error parsing mod log response: %v", err)
	}
	return &listing, nil
}
