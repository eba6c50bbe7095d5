package requests

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcade-ai/arcade-mcp-go/pkg/jsonrpc"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

// lineCapture records written request lines
type lineCapture struct {
	mu    sync.Mutex
	lines [][]byte
}

func (c *lineCapture) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	c.lines = append(c.lines, cp)
	return nil
}

func (c *lineCapture) lastRequest(t *testing.T) *jsonrpc.Request {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.lines)
	var req jsonrpc.Request
	require.NoError(t, json.Unmarshal(c.lines[len(c.lines)-1], &req))
	return &req
}

func TestSendRequestResolvesResult(t *testing.T) {
	capture := &lineCapture{}
	m := NewManager(capture.write)

	done := make(chan struct{})
	var result interface{}
	var err error
	go func() {
		defer close(done)
		result, err = m.SendRequest(context.Background(), "sampling/createMessage", map[string]interface{}{"maxTokens": 10}, time.Second)
	}()

	// Wait for the request to hit the wire, then answer it
	require.Eventually(t, func() bool { return m.PendingCount() == 1 }, time.Second, 5*time.Millisecond)
	req := capture.lastRequest(t)
	assert.Equal(t, "sampling/createMessage", req.Method)

	m.ResolveResponse(&jsonrpc.Message{
		JSONRPC: jsonrpc.Version,
		ID:      req.ID,
		Result:  json.RawMessage(`{"role":"assistant"}`),
	})

	<-done
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"role": "assistant"}, result)
	assert.Equal(t, 0, m.PendingCount())
}

func TestSendRequestErrorResponse(t *testing.T) {
	capture := &lineCapture{}
	m := NewManager(capture.write)

	done := make(chan error, 1)
	go func() {
		_, err := m.SendRequest(context.Background(), "elicitation/create", nil, time.Second)
		done <- err
	}()

	require.Eventually(t, func() bool { return m.PendingCount() == 1 }, time.Second, 5*time.Millisecond)
	req := capture.lastRequest(t)

	m.ResolveResponse(&jsonrpc.Message{
		JSONRPC: jsonrpc.Version,
		ID:      req.ID,
		Error:   jsonrpc.NewError(jsonrpc.InternalErrorCode, "client refused", nil),
	})

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client refused")
}

func TestSendRequestTimeout(t *testing.T) {
	capture := &lineCapture{}
	m := NewManager(capture.write)

	_, err := m.SendRequest(context.Background(), "roots/list", nil, 30*time.Millisecond)
	require.Error(t, err)
	assert.True(t, mcp.IsKind(err, mcp.KindTimeout))
	assert.Equal(t, 0, m.PendingCount())
}

func TestSendRequestContextCancel(t *testing.T) {
	capture := &lineCapture{}
	m := NewManager(capture.write)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := m.SendRequest(ctx, "roots/list", nil, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveUnknownIDDropped(t *testing.T) {
	m := NewManager((&lineCapture{}).write)

	// Must not panic or block
	m.ResolveResponse(&jsonrpc.Message{JSONRPC: jsonrpc.Version, ID: "ghost", Result: json.RawMessage(`{}`)})
	m.ResolveResponse(&jsonrpc.Message{JSONRPC: jsonrpc.Version})
}

func TestIDKeyNormalization(t *testing.T) {
	assert.Equal(t, "42", idKey(float64(42)))
	assert.Equal(t, "abc", idKey("abc"))
}
