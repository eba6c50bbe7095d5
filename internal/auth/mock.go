package auth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/arcade-ai/arcade-mcp-go/internal/config"
	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
)

// MockAuthorizer resolves tokens from local configuration instead of the
// Arcade service. Intended for development only.
type MockAuthorizer struct {
	providers map[string]config.LocalAuthProvider
	host      string
	port      int
}

// NewMockAuthorizer creates a mock authorizer from configured providers
func NewMockAuthorizer(providers []config.LocalAuthProvider, host string, port int) *MockAuthorizer {
	byID := make(map[string]config.LocalAuthProvider, len(providers))
	for _, p := range providers {
		if p.ProviderID != "" {
			byID[p.ProviderID] = p
		}
	}
	if host == "" {
		host = "localhost"
	}
	return &MockAuthorizer{providers: byID, host: host, port: port}
}

// Authorize returns a mock token for the user when one is configured,
// falling back to the ARCADE_<PROVIDER_ID>_TOKEN environment variable.
// Without a token the response is pending with a mock-auth URL.
func (m *MockAuthorizer) Authorize(_ context.Context, requirement Requirement, userID string) (*Response, error) {
	provider, ok := m.providers[requirement.ProviderID]
	if !ok {
		logger.Warn("No local auth provider configured for %q; add it to arcade.yaml under local_auth_providers", requirement.ProviderID)
		return &Response{
			Status: StatusPending,
			URL:    fmt.Sprintf("http://%s:%d/mock-auth/%s", m.host, m.port, requirement.ProviderID),
		}, nil
	}

	token := provider.MockTokens[userID]
	if token == "" {
		envKey := fmt.Sprintf("ARCADE_%s_TOKEN", strings.ToUpper(requirement.ProviderID))
		token = os.Getenv(envKey)
		if token == "" {
			logger.Warn("No mock token for user %q with provider %q; add it under mock_tokens or set %s", userID, requirement.ProviderID, envKey)
			return &Response{
				Status: StatusPending,
				URL:    fmt.Sprintf("http://%s:%d/mock-auth/%s/%s", m.host, m.port, requirement.ProviderID, userID),
			}, nil
		}
	}

	logger.Info("Returning mock token for user %q with provider %q", userID, requirement.ProviderID)
	return &Response{
		Status: StatusCompleted,
		Token:  token,
	}, nil
}
