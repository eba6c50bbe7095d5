// Package requests correlates server-initiated JSON-RPC requests with
// client responses by id.
package requests

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
	"github.com/arcade-ai/arcade-mcp-go/pkg/jsonrpc"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

// DefaultTimeout bounds how long a server→client request waits for its
// response.
const DefaultTimeout = 60 * time.Second

// WriteFunc writes a single-line JSON payload to the session's write stream
type WriteFunc func(payload []byte) error

// response carries the client's answer to a pending request
type response struct {
	result json.RawMessage
	err    *jsonrpc.Error
}

// Manager tracks in-flight server→client requests for one session
type Manager struct {
	write   WriteFunc
	mu      sync.Mutex
	pending map[string]chan response
}

// NewManager creates a request manager writing through the given function
func NewManager(write WriteFunc) *Manager {
	return &Manager{
		write:   write,
		pending: make(map[string]chan response),
	}
}

// SendRequest issues a request to the client and blocks until the response
// arrives, the timeout fires, or the context is canceled. A timeout of 0
// uses DefaultTimeout.
func (m *Manager) SendRequest(ctx context.Context, method string, params interface{}, timeout time.Duration) (interface{}, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	requestID := uuid.NewString()
	ch := make(chan response, 1)

	m.mu.Lock()
	m.pending[requestID] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, requestID)
		m.mu.Unlock()
	}()

	req := jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		ID:      requestID,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, mcp.WrapError(mcp.KindProtocol, err, "failed to encode request params")
		}
		req.Params = raw
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, mcp.WrapError(mcp.KindProtocol, err, "failed to encode request")
	}
	if err := m.write(append(payload, '\n')); err != nil {
		return nil, mcp.WrapError(mcp.KindTransport, err, "failed to write request to client")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, mcp.TimeoutError("client did not respond to %s within %s", method, timeout)
	case resp := <-ch:
		if resp.err != nil {
			return nil, mcp.WrapError(mcp.KindProtocol, resp.err, "client returned an error for %s", method)
		}
		var result interface{}
		if len(resp.result) > 0 {
			if err := json.Unmarshal(resp.result, &result); err != nil {
				return nil, mcp.WrapError(mcp.KindProtocol, err, "failed to decode client response")
			}
		}
		return result, nil
	}
}

// ResolveResponse delivers a client response to the pending request with
// the matching id. Responses for unknown ids are silently dropped.
func (m *Manager) ResolveResponse(msg *jsonrpc.Message) {
	if msg.ID == nil {
		return
	}
	key := idKey(msg.ID)

	m.mu.Lock()
	ch, ok := m.pending[key]
	m.mu.Unlock()

	if !ok {
		logger.Debug("Dropping response for unknown request id %s", key)
		return
	}

	select {
	case ch <- response{result: msg.Result, err: msg.Error}:
	default:
	}
}

// PendingCount returns the number of in-flight requests
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// idKey normalizes a JSON-RPC id for map lookup. JSON numbers decode as
// float64, so integral ids are rendered without a fraction.
func idKey(id interface{}) string {
	switch v := id.(type) {
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
