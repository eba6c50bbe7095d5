package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
	"github.com/arcade-ai/arcade-mcp-go/internal/requests"
	"github.com/arcade-ai/arcade-mcp-go/internal/session"
	"github.com/arcade-ai/arcade-mcp-go/pkg/jsonrpc"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

// handlerFunc processes a typed method call within the middleware chain
type handlerFunc func(ctx context.Context, mctx *MiddlewareContext) (interface{}, error)

// registerHandlers builds the method dispatch table
func (s *Server) registerHandlers() {
	s.handlers = map[string]handlerFunc{
		mcp.MethodPing:                  s.handlePing,
		mcp.MethodInitialize:            s.handleInitialize,
		mcp.MethodListTools:             s.handleListTools,
		mcp.MethodCallTool:              s.handleCallTool,
		"tools/execute":                 s.handleCallTool, // alias kept for older clients
		mcp.MethodListResources:         s.handleListResources,
		mcp.MethodListResourceTemplates: s.handleListResourceTemplates,
		mcp.MethodReadResource:          s.handleReadResource,
		mcp.MethodListPrompts:           s.handleListPrompts,
		mcp.MethodGetPrompt:             s.handleGetPrompt,
		mcp.MethodSetLogLevel:           s.handleSetLogLevel,
		mcp.MethodSubscribe:             s.handleSubscribe,
		mcp.MethodUnsubscribe:           s.handleUnsubscribe,
	}
}

// HandleMessage parses and dispatches one incoming message. It returns the
// response envelope, or nil when the message was a notification or a client
// response to a server-initiated request.
func (s *Server) HandleMessage(ctx context.Context, raw []byte, sess *session.Session) *jsonrpc.Response {
	msg, err := jsonrpc.ParseMessage(raw)
	if err != nil {
		logger.Debug("Failed to parse message: %v", err)
		return jsonrpc.NewErrorResponse(nil, jsonrpc.ParseError(err.Error()))
	}

	switch msg.Type() {
	case jsonrpc.MessageTypeResponse:
		s.resolveClientResponse(msg, sess)
		return nil
	case jsonrpc.MessageTypeNotification:
		s.handleNotification(msg, sess)
		return nil
	case jsonrpc.MessageTypeRequest:
		return s.dispatchRequest(ctx, msg, sess)
	default:
		return jsonrpc.NewErrorResponse(nil, jsonrpc.InvalidRequestError("message is not a valid JSON-RPC object"))
	}
}

// resolveClientResponse routes a client response into the session's request
// manager. Responses without a session or pending request are dropped.
func (s *Server) resolveClientResponse(msg *jsonrpc.Message, sess *session.Session) {
	if sess == nil {
		logger.Debug("Dropping client response without a session")
		return
	}
	if mgr := sess.RequestManager(); mgr != nil {
		mgr.ResolveResponse(msg)
	}
}

// handleNotification processes client→server notifications. Notifications
// never produce responses.
func (s *Server) handleNotification(msg *jsonrpc.Message, sess *session.Session) {
	switch msg.Method {
	case mcp.NotificationInitialized:
		if sess != nil {
			sess.MarkInitialized()
			logger.Info("Session %s initialized", sess.ID)
		}
	case mcp.NotificationCancelled:
		var params mcp.CancelledParams
		if err := mcp.DecodeParams(msg.Params, &params); err != nil {
			logger.Debug("Malformed cancellation notification: %v", err)
			return
		}
		sessionID := ""
		if sess != nil {
			sessionID = sess.ID
		}
		// Informational: cancel the in-flight task if it is still tracked,
		// otherwise just record it.
		if s.cancelInflight(sessionID, params.RequestID) {
			logger.Info("Cancelled in-flight request %v (%s)", params.RequestID, params.Reason)
		} else {
			logger.Info("Client cancelled request %v (%s)", params.RequestID, params.Reason)
		}
	default:
		logger.Debug("Ignoring notification %s", msg.Method)
	}
}

// dispatchRequest applies init-state gating, builds the middleware chain,
// and invokes the method handler.
func (s *Server) dispatchRequest(ctx context.Context, msg *jsonrpc.Message, sess *session.Session) *jsonrpc.Response {
	method := msg.Method

	if sess != nil && sess.InitState() != session.StateInitialized &&
		method != mcp.MethodInitialize && method != mcp.MethodPing {
		return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.NewError(
			jsonrpc.InvalidRequestCode,
			fmt.Sprintf("Request not allowed before initialization: %s", method),
			nil,
		))
	}

	handler, ok := s.handlers[method]
	if !ok {
		return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.NewError(
			jsonrpc.MethodNotFoundCode,
			fmt.Sprintf("Method not found: %s", method),
			nil,
		))
	}

	mctx := &MiddlewareContext{
		Raw:       msg,
		Session:   sess,
		Source:    "client",
		Type:      "request",
		Method:    method,
		RequestID: msg.ID,
		Params:    msg.Params,
	}
	if sess != nil {
		mctx.SessionID = sess.ID
	}

	chain := s.buildChain(handler)
	result, err := chain(ctx, mctx)
	if err != nil {
		if rpcErr, ok := err.(*jsonrpc.Error); ok {
			return jsonrpc.NewErrorResponse(msg.ID, rpcErr)
		}
		// The error-handling middleware maps everything; this is a backstop.
		return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.InternalError(err.Error()))
	}
	return jsonrpc.NewResultResponse(msg.ID, result)
}

// buildChain composes the middleware chain: error handling innermost, then
// logging, then user middleware outermost.
func (s *Server) buildChain(handler handlerFunc) handlerFunc {
	chain := s.errorHandlingMiddleware(handler)
	chain = s.loggingMiddleware(chain)
	for i := len(s.middleware) - 1; i >= 0; i-- {
		chain = s.middleware[i](chain)
	}
	return chain
}

// newSessionRequestManager wires a request manager whose writes land on the
// session's outbound queue.
func newSessionRequestManager(sess *session.Session) *requests.Manager {
	return requests.NewManager(func(payload []byte) error {
		return sess.Enqueue(payload)
	})
}

// stringifyID renders a JSON-RPC id for map keys and logs
func stringifyID(id interface{}) string {
	switch v := id.(type) {
	case nil:
		return "null"
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// decodeParams decodes request params strictly enough to surface malformed
// payloads as validation errors.
func decodeParams(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	if err := dec.Decode(target); err != nil {
		return mcp.WrapError(mcp.KindValidation, err, "invalid params")
	}
	return nil
}
