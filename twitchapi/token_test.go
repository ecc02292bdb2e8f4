package twitchapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthenticatorRefresh(t *testing.T) {
	tests := []struct {
		name       string
		response   any
		statusCode int
		wantToken  string
		wantErr    bool
	}{
		{
			name:       "successful refresh",
			response:   map[string]any{"access_token": "new-token", "token_type": "bearer", "expires_in": 14400},
			statusCode: http.StatusOK,
			wantToken:  "new-token",
		},
		{
			name:       "rejected refresh token",
			response:   map[string]any{"status": 400, "message": "Invalid refresh token"},
			statusCode: http.StatusBadRequest,
			wantToken:  "old-token",
			wantErr:    true,
		},
		{
			name:       "empty access token",
			response:   map[string]any{"access_token": "", "expires_in": 0},
			statusCode: http.StatusOK,
			wantToken:  "old-token",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				if got := r.FormValue("client_id"); got != "test-client-id" {
					t.Errorf("client_id = %q, want test-client-id", got)
				}
				if got := r.FormValue("grant_type"); got != "refresh_token" {
					t.Errorf("grant_type = %q, want refresh_token", got)
				}
				if got := r.FormValue("refresh_token"); got != "durable-refresh" {
					t.Errorf("refresh_token = %q, want durable-refresh", got)
				}
				w.WriteHeader(tt.statusCode)
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			auth := &Authenticator{
				ClientID:     "test-client-id",
				RefreshToken: "durable-refresh",
				Credential:   NewCredential("old-token"),
				HTTPClient:   &http.Client{Transport: &rewriteTransport{Transport: http.DefaultTransport, host: server.URL}},
			}

			err := auth.Refresh(context.Background())
			if tt.wantErr && err == nil {
				t.Fatal("Refresh() error = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Refresh() unexpected error: %v", err)
			}
			if tok := auth.Credential.Token(); tok != tt.wantToken {
				t.Errorf("credential = %q, want %q", tok, tt.wantToken)
			}
		})
	}
}

func TestAuthenticatorRefreshMissingConfig(t *testing.T) {
	auth := &Authenticator{Credential: NewCredential("")}
	if err := auth.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() error = nil, want missing config error")
	}
}
