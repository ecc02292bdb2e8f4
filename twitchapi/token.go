package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/dinushay/ClipLink/telemetry"
)

// Credential is the process-wide cell holding the current Twitch access token.
// It is replaced as a whole by Authenticator.Refresh and read by every Helix
// request; it is never persisted.
type Credential struct {
	mu    sync.RWMutex
	token string
}

// NewCredential returns a cell seeded with an initial access token. An empty
// seed is fine: the first 401 triggers a refresh.
func NewCredential(token string) *Credential {
	return &Credential{token: token}
}

// Token returns the current access token.
func (c *Credential) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Credential) set(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Authenticator exchanges a durable refresh token for short-lived access
// tokens via the Twitch OAuth token endpoint. The refresh grant used by this
// app registration carries no client secret.
type Authenticator struct {
	ClientID     string
	RefreshToken string
	Credential   *Credential
	HTTPClient   *http.Client
}

func (a *Authenticator) http() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return http.DefaultClient
}

// Refresh performs the refresh_token grant and atomically installs the new
// access token in the credential cell. Failure leaves the cell untouched.
func (a *Authenticator) Refresh(ctx context.Context) error {
	if err := a.refresh(ctx); err != nil {
		telemetry.IncTokenRefreshFailures()
		return err
	}
	telemetry.IncTokenRefreshes()
	return nil
}

func (a *Authenticator) refresh(ctx context.Context) error {
	if a.ClientID == "" || a.RefreshToken == "" {
		return errors.New("missing client id/refresh token for twitch refresh")
	}
	form := url.Values{}
	form.Set("client_id", a.ClientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", a.RefreshToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://id.twitch.tv/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := a.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("twitch refresh failed: %s: %s", resp.Status, string(b))
	}
	var res struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return err
	}
	if res.AccessToken == "" {
		return errors.New("empty access_token in twitch response")
	}
	a.Credential.set(res.AccessToken)
	return nil
}
