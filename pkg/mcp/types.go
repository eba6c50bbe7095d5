package mcp

import "encoding/json"

const (
	// ProtocolVersion is the latest protocol version supported
	ProtocolVersion = "2025-06-18"
)

// Supported request methods
const (
	MethodPing                  = "ping"
	MethodInitialize            = "initialize"
	MethodListTools             = "tools/list"
	MethodCallTool              = "tools/call"
	MethodListResources         = "resources/list"
	MethodListResourceTemplates = "resources/templates/list"
	MethodReadResource          = "resources/read"
	MethodListPrompts           = "prompts/list"
	MethodGetPrompt             = "prompts/get"
	MethodSetLogLevel           = "logging/setLevel"
	MethodSubscribe             = "notifications/subscribe"
	MethodUnsubscribe           = "notifications/unsubscribe"
)

// Notification methods
const (
	NotificationInitialized         = "notifications/initialized"
	NotificationProgress            = "notifications/progress"
	NotificationMessage             = "notifications/message"
	NotificationResourceListChanged = "notifications/resources/list_changed"
	NotificationResourceUpdated     = "notifications/resources/updated"
	NotificationToolListChanged     = "notifications/tools/list_changed"
	NotificationPromptListChanged   = "notifications/prompts/list_changed"
	NotificationCancelled           = "notifications/cancelled"
)

// Implementation describes the name and version of an MCP implementation
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitempty"`
}

// ServerCapabilities describes the server's capabilities
type ServerCapabilities struct {
	Tools     map[string]interface{} `json:"tools,omitempty"`
	Resources map[string]interface{} `json:"resources,omitempty"`
	Prompts   map[string]interface{} `json:"prompts,omitempty"`
	Logging   map[string]interface{} `json:"logging,omitempty"`
}

// RootsCapability describes the client's roots capability
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ClientCapabilities describes the capabilities declared by a client during
// initialize. Only the experimental group is kept as a free-form map; other
// unknown capability groups are dropped on decode.
type ClientCapabilities struct {
	Roots        *RootsCapability       `json:"roots,omitempty"`
	Sampling     map[string]interface{} `json:"sampling,omitempty"`
	Elicitation  map[string]interface{} `json:"elicitation,omitempty"`
	Experimental map[string]interface{} `json:"experimental,omitempty"`
}

// InitializeParams represents initialize request parameters
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion,omitempty"`
	Capabilities    ClientCapabilities `json:"capabilities,omitempty"`
	ClientInfo      Implementation     `json:"clientInfo,omitempty"`
}

// InitializeResult represents the initialize response payload
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// RequestMeta carries request metadata supplied by the client under _meta
type RequestMeta struct {
	ProgressToken interface{} `json:"progressToken,omitempty"`
}

// ToolAnnotations represents hints about tool behavior
type ToolAnnotations struct {
	Title           string `json:"title,omitempty"`
	ReadOnlyHint    *bool  `json:"readOnlyHint,omitempty"`
	DestructiveHint *bool  `json:"destructiveHint,omitempty"`
	IdempotentHint  *bool  `json:"idempotentHint,omitempty"`
	OpenWorldHint   *bool  `json:"openWorldHint,omitempty"`
}

// Tool represents a tool definition the client can call
type Tool struct {
	Name         string                 `json:"name"`
	Title        string                 `json:"title,omitempty"`
	Description  string                 `json:"description,omitempty"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`
	Annotations  *ToolAnnotations       `json:"annotations,omitempty"`
}

// ListToolsParams represents tools/list parameters
type ListToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListToolsResult represents the result of a tools/list request
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// CallToolParams represents tools/call parameters
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Meta      *RequestMeta           `json:"_meta,omitempty"`
}

// Content represents a content block in a tool or prompt result
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewTextContent creates a new text content block
func NewTextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// CallToolResult represents the server's response to a tool call
type CallToolResult struct {
	Content           []Content              `json:"content"`
	StructuredContent map[string]interface{} `json:"structuredContent,omitempty"`
	IsError           bool                   `json:"isError"`
	Meta              map[string]interface{} `json:"_meta,omitempty"`
}

// Resource represents a resource exposed by the server
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplate represents a parameterized resource
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceContents represents the contents of a read resource
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ListResourcesResult represents the result of a resources/list request
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ListResourceTemplatesResult represents the result of a
// resources/templates/list request
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
}

// ReadResourceParams represents resources/read parameters
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ReadResourceResult represents the result of a resources/read request
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// PromptArgument represents an argument accepted by a prompt
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt represents a prompt definition
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptMessage represents a single message produced by a prompt
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// ListPromptsResult represents the result of a prompts/list request
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// GetPromptParams represents prompts/get parameters
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// GetPromptResult represents the result of a prompts/get request
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// LogLevel represents an MCP logging severity
type LogLevel string

// Log levels in increasing severity order
const (
	LogLevelDebug     LogLevel = "debug"
	LogLevelInfo      LogLevel = "info"
	LogLevelNotice    LogLevel = "notice"
	LogLevelWarning   LogLevel = "warning"
	LogLevelError     LogLevel = "error"
	LogLevelCritical  LogLevel = "critical"
	LogLevelAlert     LogLevel = "alert"
	LogLevelEmergency LogLevel = "emergency"
)

var logLevelPriority = map[LogLevel]int{
	LogLevelDebug:     0,
	LogLevelInfo:      1,
	LogLevelNotice:    2,
	LogLevelWarning:   3,
	LogLevelError:     4,
	LogLevelCritical:  5,
	LogLevelAlert:     6,
	LogLevelEmergency: 7,
}

// Severity returns the numeric priority of the level; unknown levels rank
// lowest so they are always delivered when filtering at debug.
func (l LogLevel) Severity() int {
	return logLevelPriority[l]
}

// SetLevelParams represents logging/setLevel parameters
type SetLevelParams struct {
	Level LogLevel `json:"level"`
}

// SubscribeParams represents notifications/subscribe parameters
type SubscribeParams struct {
	Methods []string               `json:"methods"`
	Filters map[string]interface{} `json:"filters,omitempty"`
}

// Subscription represents an active notification subscription
type Subscription struct {
	SubscriptionID string                 `json:"subscription_id"`
	Method         string                 `json:"method"`
	CreatedAt      float64                `json:"created_at"`
	Filters        map[string]interface{} `json:"filters,omitempty"`
}

// SubscribeResult represents the result of a notifications/subscribe request
type SubscribeResult struct {
	Subscriptions []Subscription `json:"subscriptions"`
}

// UnsubscribeParams represents notifications/unsubscribe parameters
type UnsubscribeParams struct {
	SubscriptionIDs []string `json:"subscription_ids"`
}

// UnsubscribeResult represents the result of a notifications/unsubscribe
// request
type UnsubscribeResult struct {
	Success bool `json:"success"`
}

// ProgressParams represents notifications/progress parameters
type ProgressParams struct {
	ProgressToken interface{} `json:"progressToken"`
	Progress      float64     `json:"progress"`
	Total         *float64    `json:"total,omitempty"`
	Message       string      `json:"message,omitempty"`
}

// LoggingMessageParams represents notifications/message parameters
type LoggingMessageParams struct {
	Level  LogLevel    `json:"level"`
	Data   interface{} `json:"data"`
	Logger string      `json:"logger,omitempty"`
}

// ResourceUpdatedParams represents notifications/resources/updated parameters
type ResourceUpdatedParams struct {
	URI       string `json:"uri"`
	Timestamp string `json:"timestamp,omitempty"`
}

// CancelledParams represents notifications/cancelled parameters
type CancelledParams struct {
	RequestID interface{} `json:"requestId"`
	Reason    string      `json:"reason,omitempty"`
}

// DecodeParams unmarshals raw request params into a typed value. Missing
// params are tolerated and leave the target at its zero value.
func DecodeParams(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, target)
}
