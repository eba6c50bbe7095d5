package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

const authorizeTimeout = 30 * time.Second

// Client talks to the Arcade authorization API. It is configured once at
// startup from ARCADE_API_KEY / ARCADE_API_URL and never mutated.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an Arcade authorization client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: authorizeTimeout,
		},
	}
}

// authorizeRequest is the wire shape of an authorization call
type authorizeRequest struct {
	AuthRequirement authRequirement `json:"auth_requirement"`
	UserID          string          `json:"user_id"`
}

type authRequirement struct {
	ProviderID   string      `json:"provider_id"`
	ProviderType string      `json:"provider_type,omitempty"`
	OAuth2       *authOAuth2 `json:"oauth2,omitempty"`
}

type authOAuth2 struct {
	Scopes []string `json:"scopes,omitempty"`
}

// authorizeResponse is the wire shape of the service's answer
type authorizeResponse struct {
	Status  string `json:"status"`
	URL     string `json:"url"`
	Context *struct {
		Token string `json:"token"`
	} `json:"context"`
}

// Authorize performs a runtime authorization check against Arcade
func (c *Client) Authorize(ctx context.Context, requirement Requirement, userID string) (*Response, error) {
	if userID == "" {
		userID = "anonymous"
	}

	payload := authorizeRequest{
		AuthRequirement: authRequirement{
			ProviderID:   requirement.ProviderID,
			ProviderType: requirement.ProviderType,
		},
		UserID: userID,
	}
	if len(requirement.Scopes) > 0 {
		payload.AuthRequirement.OAuth2 = &authOAuth2{Scopes: requirement.Scopes}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, mcp.WrapError(mcp.KindAuthorization, err, "failed to encode authorize request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/authorize", bytes.NewReader(body))
	if err != nil {
		return nil, mcp.WrapError(mcp.KindAuthorization, err, "failed to build authorize request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, mcp.WrapError(mcp.KindAuthorization, err, "authorize call failed")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Debug("Authorize call returned %d: %s", resp.StatusCode, string(data))
		return nil, mcp.AuthorizationError("authorization service returned status %d", resp.StatusCode)
	}

	var decoded authorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, mcp.WrapError(mcp.KindAuthorization, err, "failed to decode authorize response")
	}

	out := &Response{
		Status: decoded.Status,
		URL:    decoded.URL,
	}
	if decoded.Context != nil {
		out.Token = decoded.Context.Token
	}
	return out, nil
}

// String describes the client without exposing the key
func (c *Client) String() string {
	return fmt.Sprintf("arcade authorizer (%s)", c.baseURL)
}
