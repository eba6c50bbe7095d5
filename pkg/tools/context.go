package tools

import (
	"context"
	"time"

	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

// Logger is the logging capability bound to a tool invocation. Methods
// enqueue notifications/message to the session and return immediately;
// delivery errors are swallowed.
type Logger interface {
	Log(level mcp.LogLevel, message string, data interface{})
}

// ProgressReporter is the progress capability bound to a tool invocation.
// Reports are correlated with the client-supplied progress token.
type ProgressReporter interface {
	Report(progress float64, total *float64, message string)
}

// ClientRequestFunc issues a server→client request (sampling, elicitation,
// roots listing) and blocks until the client responds or the timeout fires.
type ClientRequestFunc func(ctx context.Context, method string, params interface{}, timeout time.Duration) (interface{}, error)

// AuthorizationContext carries the authorization outcome for a tool that
// declared an authorization requirement.
type AuthorizationContext struct {
	Token    string                 `json:"token,omitempty"`
	UserInfo map[string]interface{} `json:"user_info,omitempty"`
}

// MetadataItem is a key/value metadata entry attached to an invocation
type MetadataItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ToolContext is the per-invocation context handed to a tool handler. It is
// owned by a single invocation and never shared.
type ToolContext struct {
	UserID        string
	Secrets       map[string]string
	Authorization *AuthorizationContext
	Metadata      []MetadataItem
	ProgressToken interface{}
	Log           Logger
	Progress      ProgressReporter
	ClientRequest ClientRequestFunc
}

// NewToolContext creates an empty tool context
func NewToolContext() *ToolContext {
	return &ToolContext{
		Secrets: make(map[string]string),
	}
}

// SetSecret stores a secret value under the given key
func (tc *ToolContext) SetSecret(key, value string) {
	if tc.Secrets == nil {
		tc.Secrets = make(map[string]string)
	}
	tc.Secrets[key] = value
}

// GetSecret returns the secret for the key, if present
func (tc *ToolContext) GetSecret(key string) (string, bool) {
	value, ok := tc.Secrets[key]
	return value, ok
}

// AddMetadata appends a metadata item unless the key is already present
func (tc *ToolContext) AddMetadata(key, value string) {
	for _, item := range tc.Metadata {
		if item.Key == key {
			return
		}
	}
	tc.Metadata = append(tc.Metadata, MetadataItem{Key: key, Value: value})
}

// GetMetadata returns the metadata value for the key, if present
func (tc *ToolContext) GetMetadata(key string) (string, bool) {
	for _, item := range tc.Metadata {
		if item.Key == key {
			return item.Value, true
		}
	}
	return "", false
}
