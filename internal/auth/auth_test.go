package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcade-ai/arcade-mcp-go/internal/config"
)

func TestClientAuthorizeCompleted(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/auth/authorize", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "completed",
			"url":     "",
			"context": map[string]interface{}{"token": "tok-42"},
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "api-key")
	resp, err := client.Authorize(context.Background(), Requirement{
		ProviderID:   "google",
		ProviderType: "oauth2",
		Scopes:       []string{"gmail.send"},
	}, "dev@example.com")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Equal(t, "tok-42", resp.Token)
	assert.Equal(t, "Bearer api-key", gotAuth)
	assert.Equal(t, "dev@example.com", gotBody["user_id"])

	requirement := gotBody["auth_requirement"].(map[string]interface{})
	assert.Equal(t, "google", requirement["provider_id"])
	oauth2 := requirement["oauth2"].(map[string]interface{})
	assert.Equal(t, []interface{}{"gmail.send"}, oauth2["scopes"])
}

func TestClientAuthorizePending(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "pending",
			"url":    "https://accounts.example/flow",
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "api-key")
	resp, err := client.Authorize(context.Background(), Requirement{ProviderID: "google"}, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, resp.Status)
	assert.Equal(t, "https://accounts.example/flow", resp.URL)
}

func TestClientAuthorizeServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "api-key")
	_, err := client.Authorize(context.Background(), Requirement{ProviderID: "google"}, "u")
	assert.Error(t, err)
}

func TestMockAuthorizerConfiguredToken(t *testing.T) {
	m := NewMockAuthorizer([]config.LocalAuthProvider{{
		ProviderID:   "google",
		ProviderType: "oauth2",
		MockTokens:   map[string]string{"dev@example.com": "tok-1"},
	}}, "localhost", 8002)

	resp, err := m.Authorize(context.Background(), Requirement{ProviderID: "google"}, "dev@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Equal(t, "tok-1", resp.Token)
}

func TestMockAuthorizerEnvFallback(t *testing.T) {
	t.Setenv("ARCADE_GOOGLE_TOKEN", "env-tok")
	m := NewMockAuthorizer([]config.LocalAuthProvider{{ProviderID: "google"}}, "localhost", 8002)

	resp, err := m.Authorize(context.Background(), Requirement{ProviderID: "google"}, "someone")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Equal(t, "env-tok", resp.Token)
}

func TestMockAuthorizerPendingPaths(t *testing.T) {
	m := NewMockAuthorizer([]config.LocalAuthProvider{{ProviderID: "google"}}, "localhost", 8002)

	// Unknown provider
	resp, err := m.Authorize(context.Background(), Requirement{ProviderID: "slack"}, "u")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, resp.Status)
	assert.Contains(t, resp.URL, "/mock-auth/slack")

	// Known provider, no token for the user
	resp, err = m.Authorize(context.Background(), Requirement{ProviderID: "google"}, "nobody")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, resp.Status)
	assert.Contains(t, resp.URL, "/mock-auth/google/nobody")
}
