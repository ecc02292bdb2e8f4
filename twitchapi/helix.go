// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for user and game resolution and recent-clip lookup, using a user access
// token kept fresh via the refresh_token grant.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// GameNameUnknown is returned when a clip has no category or the category
// cannot be resolved.
const GameNameUnknown = "N/A"

// User is a Twitch account as returned by the Helix users endpoint.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// Clip is a single clip observation from the Helix clips endpoint. VideoID is
// empty and VODOffset nil when the source VOD is unavailable.
type Clip struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	BroadcasterID   string    `json:"broadcaster_id"`
	BroadcasterName string    `json:"broadcaster_name"`
	CreatorName     string    `json:"creator_name"`
	VideoID         string    `json:"video_id"`
	GameID          string    `json:"game_id"`
	Title           string    `json:"title"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	CreatedAt       time.Time `json:"created_at"`
	Duration        float64   `json:"duration"`
	VODOffset       *int      `json:"vod_offset"`
}

// Client provides the read operations the clip watcher needs. Every request
// attempts once with the current access token; a 401 triggers exactly one
// refresh followed by exactly one retry.
type Client struct {
	ClientID string
	Auth     *Authenticator
	// PollInterval bounds the clip recency window: only clips created within
	// PollInterval plus a small safety margin are considered.
	PollInterval time.Duration
	HTTPClient   *http.Client

	now func() time.Time
}

const recencyMargin = 5 * time.Second

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) timeNow() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// get performs an authorized Helix GET and decodes the JSON body into out.
// On a 401 it invokes Authenticator.Refresh once and retries the same request
// once; a second 401 or a refresh failure surfaces as an error.
func (c *Client) get(ctx context.Context, rawurl string, params map[string]string, out any) error {
	refreshed := false
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
		if err != nil {
			return err
		}
		q := req.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
		req.Header.Set("Client-Id", c.ClientID)
		req.Header.Set("Authorization", "Bearer "+c.Auth.Credential.Token())
		resp, err := c.http().Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			if err := resp.Body.Close(); err != nil {
				slog.Warn("failed to close response body", slog.Any("err", err))
			}
			if refreshed {
				return errors.New("twitch request unauthorized after token refresh")
			}
			refreshed = true
			if err := c.Auth.Refresh(ctx); err != nil {
				return fmt.Errorf("token refresh failed: %w", err)
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			if err := resp.Body.Close(); err != nil {
				slog.Warn("failed to close response body", slog.Any("err", err))
			}
			return fmt.Errorf("twitch request failed: %s: %s", resp.Status, string(b))
		}
		err = json.NewDecoder(resp.Body).Decode(out)
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("failed to close response body", slog.Any("err", cerr))
		}
		return err
	}
}

// GetUser resolves a Twitch account by login name or numeric id. A purely
// numeric identifier is looked up by id, anything else by login. Returns
// (nil, nil) when no such account exists.
func (c *Client) GetUser(ctx context.Context, identifier string) (*User, error) {
	if identifier == "" {
		return nil, errors.New("identifier empty")
	}
	param := "login"
	if isDigits(identifier) {
		param = "id"
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := c.get(ctx, "https://api.twitch.tv/helix/users", map[string]string{param: identifier}, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, nil
	}
	return &body.Data[0], nil
}

// GetGameName resolves a category id to its display name. An empty id and an
// unknown id both yield GameNameUnknown without error.
func (c *Client) GetGameName(ctx context.Context, gameID string) (string, error) {
	if gameID == "" {
		return GameNameUnknown, nil
	}
	var body struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := c.get(ctx, "https://api.twitch.tv/helix/games", map[string]string{"id": gameID}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return GameNameUnknown, nil
	}
	return body.Data[0].Name, nil
}

// GetLatestClip returns the most recent clip created for the broadcaster
// within the recency window, or (nil, nil) when there is none.
func (c *Client) GetLatestClip(ctx context.Context, broadcasterID string) (*Clip, error) {
	if broadcasterID == "" {
		return nil, errors.New("broadcasterID empty")
	}
	startedAt := c.timeNow().Add(-(c.PollInterval + recencyMargin)).UTC().Format(time.RFC3339)
	var body struct {
		Data []Clip `json:"data"`
	}
	params := map[string]string{
		"broadcaster_id": broadcasterID,
		"first":          "1",
		"started_at":     startedAt,
	}
	if err := c.get(ctx, "https://api.twitch.tv/helix/clips", params, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, nil
	}
	return &body.Data[0], nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
