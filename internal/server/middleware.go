package server

import (
	"context"
	"time"

	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
	"github.com/arcade-ai/arcade-mcp-go/internal/session"
	"github.com/arcade-ai/arcade-mcp-go/pkg/jsonrpc"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

// MiddlewareContext carries the request through the middleware chain
type MiddlewareContext struct {
	Raw       *jsonrpc.Message
	Session   *session.Session
	Source    string
	Type      string
	Method    string
	RequestID interface{}
	SessionID string
	Params    []byte
}

// Middleware wraps a handler. Each middleware must either return a result
// or call the next handler exactly once.
type Middleware func(next handlerFunc) handlerFunc

// errorHandlingMiddleware maps errors to JSON-RPC errors. It is always the
// innermost middleware.
func (s *Server) errorHandlingMiddleware(next handlerFunc) handlerFunc {
	return func(ctx context.Context, mctx *MiddlewareContext) (interface{}, error) {
		result, err := next(ctx, mctx)
		if err == nil {
			return result, nil
		}

		// Handlers may return a wire error directly (e.g. -32002)
		if rpcErr, ok := err.(*jsonrpc.Error); ok {
			return nil, rpcErr
		}

		switch mcp.KindOf(err) {
		case mcp.KindNotFound:
			return nil, jsonrpc.NewError(jsonrpc.MethodNotFoundCode, err.Error(), nil)
		case mcp.KindValidation:
			return nil, jsonrpc.NewError(jsonrpc.InvalidParamsCode, err.Error(), nil)
		case mcp.KindDuplicate, mcp.KindTool, mcp.KindResource, mcp.KindPrompt,
			mcp.KindAuthorization, mcp.KindSession, mcp.KindProtocol,
			mcp.KindConfiguration, mcp.KindTimeout, mcp.KindDisabled, mcp.KindTransport:
			return nil, jsonrpc.NewError(jsonrpc.InternalErrorCode, err.Error(), nil)
		default:
			logger.Error("Unhandled error in %s: %v", mctx.Method, err)
			if s.maskErrors {
				return nil, jsonrpc.NewError(jsonrpc.InternalErrorCode, "Internal server error", nil)
			}
			return nil, jsonrpc.NewError(jsonrpc.InternalErrorCode, err.Error(), nil)
		}
	}
}

// loggingMiddleware records method, request id, session id, duration, and
// outcome. Parameter payloads are never logged, so secret values stay out
// of the logs.
func (s *Server) loggingMiddleware(next handlerFunc) handlerFunc {
	return func(ctx context.Context, mctx *MiddlewareContext) (interface{}, error) {
		start := time.Now()
		result, err := next(ctx, mctx)
		elapsed := time.Since(start)

		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		logger.Debug("method=%s id=%s session=%s duration=%s outcome=%s",
			mctx.Method, stringifyID(mctx.RequestID), mctx.SessionID, elapsed, outcome)
		if elapsed > 500*time.Millisecond {
			logger.Info("Method %s completed in %v", mctx.Method, elapsed)
		}
		return result, err
	}
}
