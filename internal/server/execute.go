package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/arcade-ai/arcade-mcp-go/internal/auth"
	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
	"github.com/arcade-ai/arcade-mcp-go/internal/session"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
	"github.com/arcade-ai/arcade-mcp-go/pkg/tools"
)

const authUnavailableHint = "Authorization required but Arcade is not configured. " +
	"Run 'arcade login' or set ARCADE_API_KEY to enable auth-required tools."

// capturedLog is one embedded tool log entry
type capturedLog struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// logCapture accumulates tool logs for embedding under _meta.logs. When a
// session is attached, entries are also fanned out as notifications/message
// to that client, respecting its minimum log level.
type logCapture struct {
	mu       sync.Mutex
	entries  []capturedLog
	server   *Server
	clientID string
	toolName string
}

// Log implements tools.Logger. Delivery errors are swallowed.
func (c *logCapture) Log(level mcp.LogLevel, message string, data interface{}) {
	c.mu.Lock()
	c.entries = append(c.entries, capturedLog{Level: string(level), Message: message})
	c.mu.Unlock()

	if c.server != nil && c.clientID != "" {
		payload := data
		if payload == nil {
			payload = message
		}
		c.server.Notifications.NotifyMessage(level, payload, c.toolName, []string{c.clientID})
	}
}

// logs returns the captured entries as JSON-friendly values
func (c *logCapture) logs() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]interface{}, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, map[string]interface{}{
			"level":   entry.Level,
			"message": entry.Message,
		})
	}
	return out
}

// progressNotifier implements tools.ProgressReporter through the
// notification manager.
type progressNotifier struct {
	server   *Server
	clientID string
	token    interface{}
}

// Report enqueues notifications/progress and returns immediately
func (p *progressNotifier) Report(progress float64, total *float64, message string) {
	if p.server == nil || p.clientID == "" || p.token == nil {
		return
	}
	// Progress reports are not debounced so clients see every step.
	p.server.Notifications.NotifyProgress(p.token, progress, total, message, []string{p.clientID}, "", 0)
}

// handleCallTool runs the tool execution pipeline. Tool failures never
// surface as JSON-RPC errors; they become CallToolResult{isError:true}.
func (s *Server) handleCallTool(ctx context.Context, mctx *MiddlewareContext) (interface{}, error) {
	var params mcp.CallToolParams
	if err := decodeParams(mctx.Params, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, mcp.ValidationError("missing required parameter: name")
	}
	args := params.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}

	tool, err := s.Tools.GetTool(params.Name)
	if err != nil {
		return errorResult(fmt.Sprintf("Unknown tool: %s", params.Name), nil), nil
	}

	tctx := s.buildToolContext(mctx.Session, params.Meta)
	capture := &logCapture{
		server:   s,
		toolName: tool.Definition.FullyQualifiedName(),
	}
	if mctx.Session != nil {
		capture.clientID = mctx.Session.ID
	}
	tctx.Log = capture
	tctx.Progress = &progressNotifier{server: s, clientID: capture.clientID, token: tctx.ProgressToken}

	s.injectSecrets(tool, tctx)

	if result, done := s.checkAuthorization(ctx, tool, tctx); done {
		return result, nil
	}

	if err := tool.ValidateArguments(args); err != nil {
		return errorResult(err.Error(), capture.logs()), nil
	}

	value, err := s.runTool(ctx, mctx, tool, tctx, args)
	if err != nil {
		logger.Error("Tool %s returned error: %v", tool.Definition.FullyQualifiedName(), err)
		return errorResult(err.Error(), capture.logs()), nil
	}

	return buildCallResult(tool, value, capture.logs()), nil
}

// buildToolContext assembles the per-invocation context: identity,
// metadata, progress token, and the server→client request capability.
func (s *Server) buildToolContext(sess *session.Session, meta *mcp.RequestMeta) *tools.ToolContext {
	tctx := tools.NewToolContext()

	if sess != nil && sess.UserID != "" {
		tctx.UserID = sess.UserID
	} else if s.cfg.UserID != "" {
		tctx.UserID = s.cfg.UserID
	}

	if s.cfg.UserEmail != "" {
		tctx.AddMetadata("user_email", s.cfg.UserEmail)
	}
	for key, value := range s.cfg.Metadata {
		tctx.AddMetadata(key, value)
	}

	if meta != nil && meta.ProgressToken != nil {
		tctx.ProgressToken = meta.ProgressToken
	}

	if sess != nil {
		if mgr := sess.RequestManager(); mgr != nil {
			tctx.ClientRequest = func(ctx context.Context, method string, params interface{}, timeout time.Duration) (interface{}, error) {
				return mgr.SendRequest(ctx, method, params, timeout)
			}
		}
	}
	return tctx
}

// injectSecrets resolves declared secrets from settings or environment.
// Missing secrets are not a hard error; the tool may degrade.
func (s *Server) injectSecrets(tool *tools.MaterializedTool, tctx *tools.ToolContext) {
	for _, secret := range tool.Definition.Requirements.Secrets {
		if value, ok := s.cfg.LookupSecret(secret.Key); ok {
			tctx.SetSecret(secret.Key, value)
		}
	}
}

// checkAuthorization runs the runtime auth flow when the tool declares a
// requirement. The second return value is true when the pipeline should
// stop with the given result.
func (s *Server) checkAuthorization(ctx context.Context, tool *tools.MaterializedTool, tctx *tools.ToolContext) (*mcp.CallToolResult, bool) {
	requirement := tool.Definition.Requirements.Authorization
	if requirement == nil || s.authDisabled {
		return nil, false
	}

	if s.authorizer == nil {
		return errorResult(authUnavailableHint, nil), true
	}

	resp, err := s.authorizer.Authorize(ctx, auth.Requirement{
		ProviderID:   requirement.ProviderID,
		ProviderType: requirement.ProviderType,
		Scopes:       requirement.Scopes,
	}, tctx.UserID)
	if err != nil {
		logger.Error("Error authorizing tool %s: %v", tool.Definition.FullyQualifiedName(), err)
		return errorResult(authUnavailableHint, nil), true
	}

	if resp.Status != auth.StatusCompleted {
		// The client drives the user through the out-of-band flow.
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(resp.URL)},
			IsError: false,
		}, true
	}

	authCtx := &tools.AuthorizationContext{Token: resp.Token}
	if tctx.UserID != "" {
		authCtx.UserInfo = map[string]interface{}{"user_id": tctx.UserID}
	}
	tctx.Authorization = authCtx
	return nil, false
}

// runTool executes the handler with panic recovery and cancellation
// tracking for notifications/cancelled.
func (s *Server) runTool(ctx context.Context, mctx *MiddlewareContext, tool *tools.MaterializedTool, tctx *tools.ToolContext, args map[string]interface{}) (value interface{}, err error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	untrack := s.trackInflight(mctx.SessionID, mctx.RequestID, cancel)
	defer untrack()

	defer func() {
		if r := recover(); r != nil {
			err = mcp.ToolError("tool %s panicked: %v", tool.Definition.FullyQualifiedName(), r)
		}
	}()
	return tool.Handler(runCtx, tctx, args)
}

// buildCallResult converts the tool's return value into a CallToolResult.
// Tools with an output schema, and tools returning objects, produce
// structuredContent mirrored into a JSON text block; captured logs are
// embedded under _meta.logs and structuredContent.logs.
func buildCallResult(tool *tools.MaterializedTool, value interface{}, logs []interface{}) *mcp.CallToolResult {
	var structured map[string]interface{}

	hasOutputSchema := tool.Definition.Output != nil

	if asMap, ok := normalizeToMap(value); ok {
		structured = asMap
	} else if hasOutputSchema && value != nil {
		structured = map[string]interface{}{"result": value}
	}

	if len(logs) > 0 {
		if structured == nil {
			structured = map[string]interface{}{"result": value}
		}
		structured["logs"] = logs
	}

	result := &mcp.CallToolResult{IsError: false}

	if structured != nil {
		encoded, err := json.Marshal(structured)
		if err != nil {
			result.Content = convertToContent(value)
		} else {
			result.Content = []mcp.Content{mcp.NewTextContent(string(encoded))}
			result.StructuredContent = structured
		}
	} else {
		result.Content = convertToContent(value)
	}

	if len(logs) > 0 {
		result.Meta = map[string]interface{}{"logs": logs}
	}
	return result
}

// normalizeToMap reports whether the value is an object, converting typed
// maps and structs through JSON.
func normalizeToMap(value interface{}) (map[string]interface{}, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, true
	case string, bool, int, int32, int64, float32, float64, []interface{}:
		return nil, false
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, false
		}
		var out map[string]interface{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, false
		}
		return out, true
	}
}

// convertToContent performs the type-driven conversion for unstructured
// results: primitives become one text block, collections a JSON text
// block, and nil produces no content.
func convertToContent(value interface{}) []mcp.Content {
	switch v := value.(type) {
	case nil:
		return []mcp.Content{}
	case string:
		return []mcp.Content{mcp.NewTextContent(v)}
	case bool, int, int32, int64, float32, float64:
		return []mcp.Content{mcp.NewTextContent(fmt.Sprintf("%v", v))}
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return []mcp.Content{mcp.NewTextContent(fmt.Sprintf("%v", v))}
		}
		return []mcp.Content{mcp.NewTextContent(string(encoded))}
	}
}

// errorResult builds an isError CallToolResult with optional embedded logs
func errorResult(message string, logs []interface{}) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(message)},
		IsError: true,
	}
	if len(logs) > 0 {
		result.Meta = map[string]interface{}{"logs": logs}
	}
	return result
}
