package server

import (
	"context"
	"fmt"

	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
	"github.com/arcade-ai/arcade-mcp-go/pkg/jsonrpc"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

const serverInstructions = "The Arcade MCP Server provides access to tools defined in Arcade toolkits. " +
	"Use 'tools/list' to see available tools and 'tools/call' to execute them."

// handlePing responds with an empty result in every session state
func (s *Server) handlePing(_ context.Context, _ *MiddlewareContext) (interface{}, error) {
	return map[string]interface{}{}, nil
}

// handleInitialize stores client parameters on the session and returns the
// negotiated protocol version and server capabilities. A missing params
// object is tolerated.
func (s *Server) handleInitialize(_ context.Context, mctx *MiddlewareContext) (interface{}, error) {
	var params mcp.InitializeParams
	if err := decodeParams(mctx.Params, &params); err != nil {
		return nil, err
	}

	if mctx.Session != nil {
		mctx.Session.SetClientParams(&params)
	}
	if params.ClientInfo.Name != "" {
		logger.Info("Client connected: %s v%s", params.ClientInfo.Name, params.ClientInfo.Version)
	}

	return mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools:     map[string]interface{}{"listChanged": true},
			Logging:   map[string]interface{}{},
			Prompts:   map[string]interface{}{"listChanged": true},
			Resources: map[string]interface{}{"listChanged": true, "subscribe": true},
		},
		ServerInfo: mcp.Implementation{
			Name:    s.cfg.ServerName,
			Version: s.cfg.ServerVersion,
			Title:   s.cfg.ServerTitle,
		},
		Instructions: serverInstructions,
	}, nil
}

// handleListTools returns all catalog tools with their schemas
func (s *Server) handleListTools(_ context.Context, mctx *MiddlewareContext) (interface{}, error) {
	var params mcp.ListToolsParams
	if err := decodeParams(mctx.Params, &params); err != nil {
		return nil, err
	}
	tools := s.Tools.ListTools()
	if tools == nil {
		tools = []mcp.Tool{}
	}
	return mcp.ListToolsResult{Tools: tools}, nil
}

// handleListResources returns registered resources
func (s *Server) handleListResources(_ context.Context, _ *MiddlewareContext) (interface{}, error) {
	resources := s.Resources.ListResources()
	if resources == nil {
		resources = []mcp.Resource{}
	}
	return mcp.ListResourcesResult{Resources: resources}, nil
}

// handleListResourceTemplates returns registered resource templates
func (s *Server) handleListResourceTemplates(_ context.Context, _ *MiddlewareContext) (interface{}, error) {
	templates := s.Resources.ListTemplates()
	if templates == nil {
		templates = []mcp.ResourceTemplate{}
	}
	return mcp.ListResourceTemplatesResult{ResourceTemplates: templates}, nil
}

// handleReadResource reads a resource by URI. A missing resource maps to
// the MCP resource-not-found code rather than method-not-found.
func (s *Server) handleReadResource(ctx context.Context, mctx *MiddlewareContext) (interface{}, error) {
	var params mcp.ReadResourceParams
	if err := decodeParams(mctx.Params, &params); err != nil {
		return nil, err
	}
	if params.URI == "" {
		return nil, mcp.ValidationError("missing required parameter: uri")
	}

	contents, err := s.Resources.ReadResource(ctx, params.URI)
	if err != nil {
		if mcp.IsKind(err, mcp.KindNotFound) {
			return nil, jsonrpc.NewError(jsonrpc.ResourceNotFoundCode, fmt.Sprintf("Resource not found: %s", params.URI), nil)
		}
		return nil, err
	}
	return mcp.ReadResourceResult{Contents: contents}, nil
}

// handleListPrompts returns registered prompts
func (s *Server) handleListPrompts(_ context.Context, _ *MiddlewareContext) (interface{}, error) {
	prompts := s.Prompts.ListPrompts()
	if prompts == nil {
		prompts = []mcp.Prompt{}
	}
	return mcp.ListPromptsResult{Prompts: prompts}, nil
}

// handleGetPrompt generates prompt messages after validating arguments
func (s *Server) handleGetPrompt(_ context.Context, mctx *MiddlewareContext) (interface{}, error) {
	var params mcp.GetPromptParams
	if err := decodeParams(mctx.Params, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, mcp.ValidationError("missing required parameter: name")
	}

	result, err := s.Prompts.GetPrompt(params.Name, params.Arguments)
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// handleSetLogLevel stores the client's minimum log level and adjusts the
// runtime logger.
func (s *Server) handleSetLogLevel(_ context.Context, mctx *MiddlewareContext) (interface{}, error) {
	var params mcp.SetLevelParams
	if err := decodeParams(mctx.Params, &params); err != nil {
		return nil, err
	}
	if params.Level == "" {
		return nil, mcp.ValidationError("missing required parameter: level")
	}

	if mctx.Session != nil {
		mctx.Session.SetMinLogLevel(params.Level)
	}
	logger.SetLevel(string(params.Level))
	return map[string]interface{}{}, nil
}

// handleSubscribe creates notification subscriptions for the session
func (s *Server) handleSubscribe(_ context.Context, mctx *MiddlewareContext) (interface{}, error) {
	var params mcp.SubscribeParams
	if err := decodeParams(mctx.Params, &params); err != nil {
		return nil, err
	}
	if mctx.Session == nil {
		return nil, mcp.SessionError("subscriptions require a session")
	}

	subscriptions, err := s.Notifications.Subscribe(mctx.Session.ID, params.Methods, params.Filters)
	if err != nil {
		return nil, err
	}
	if subscriptions == nil {
		subscriptions = []mcp.Subscription{}
	}
	return mcp.SubscribeResult{Subscriptions: subscriptions}, nil
}

// handleUnsubscribe removes notification subscriptions for the session
func (s *Server) handleUnsubscribe(_ context.Context, mctx *MiddlewareContext) (interface{}, error) {
	var params mcp.UnsubscribeParams
	if err := decodeParams(mctx.Params, &params); err != nil {
		return nil, err
	}
	if mctx.Session == nil {
		return nil, mcp.SessionError("subscriptions require a session")
	}

	success := s.Notifications.Unsubscribe(mctx.Session.ID, params.SubscriptionIDs)
	return mcp.UnsubscribeResult{Success: success}, nil
}
