package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcade-ai/arcade-mcp-go/internal/config"
	"github.com/arcade-ai/arcade-mcp-go/internal/server"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
	"github.com/arcade-ai/arcade-mcp-go/pkg/tools"
)

func httpTestConfig() *config.Config {
	return &config.Config{
		ServerName:         "Arcade MCP Server",
		ServerVersion:      "0.1.0",
		RateLimitPerMinute: 60,
		DebounceMs:         100,
		MaxSessions:        1000,
		SessionTimeoutSec:  300,
		MaxEventsPerStream: 1000,
		Secrets:            map[string]string{},
		Metadata:           map[string]string{},
	}
}

func httpTestServer(t *testing.T, mode HTTPMode) (*httptest.Server, *HTTPTransport) {
	t.Helper()
	catalog := tools.NewCatalog()
	catalog.MustAdd(&tools.Definition{
		Name: "echo", Toolkit: "test",
		Input: tools.InputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{"type": "string"},
			},
		},
	}, func(_ context.Context, _ *tools.ToolContext, args map[string]interface{}) (interface{}, error) {
		return args["text"], nil
	}, "test")

	srv := server.New(httpTestConfig(), catalog)
	transport := NewHTTPTransport(srv, mode)
	ts := httptest.NewServer(transport.Handler())
	t.Cleanup(ts.Close)
	return ts, transport
}

func initializeBody(id int) []byte {
	return []byte(fmt.Sprintf(
		`{"jsonrpc":"2.0","id":%d,"method":"initialize","params":{"protocolVersion":%q,"capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`,
		id, mcp.ProtocolVersion,
	))
}

func TestStreamModeSingleRequestResponse(t *testing.T) {
	ts, _ := httpTestServer(t, ModeStream)

	resp, err := http.Post(ts.URL+"/mcp", "application/json", bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "2.0", envelope["jsonrpc"])
	assert.Equal(t, float64(1), envelope["id"])
	assert.Equal(t, map[string]interface{}{}, envelope["result"])
}

func TestStreamModeNotificationAccepted(t *testing.T) {
	ts, _ := httpTestServer(t, ModeStream)

	resp, err := http.Post(ts.URL+"/mcp", "application/json", bytes.NewReader([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestContentTypeRequired(t *testing.T) {
	ts, _ := httpTestServer(t, ModeStream)

	resp, err := http.Post(ts.URL+"/mcp", "text/plain", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBodySizeLimit(t *testing.T) {
	ts, _ := httpTestServer(t, ModeStream)

	big := make([]byte, maxBodyBytes+10)
	for i := range big {
		big[i] = 'a'
	}
	resp, err := http.Post(ts.URL+"/mcp", "application/json", bytes.NewReader(big))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestProtocolVersionRejected(t *testing.T) {
	ts, _ := httpTestServer(t, ModeStream)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp", bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Mcp-Protocol-Version", "bad-version")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["message"], "Unsupported protocol version")
}

func TestWorkerSecretValidation(t *testing.T) {
	catalog := tools.NewCatalog()
	cfg := httpTestConfig()
	cfg.WorkerSecret = "s3cret"
	srv := server.New(cfg, catalog)
	ts := httptest.NewServer(NewHTTPTransport(srv, ModeStream).Handler())
	defer ts.Close()

	// Missing bearer: rejected
	resp, err := http.Post(ts.URL+"/mcp", "application/json", bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Correct bearer: accepted
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp", bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSSEInitializeCreatesSession(t *testing.T) {
	ts, _ := httpTestServer(t, ModeSSE)

	resp, err := http.Post(ts.URL+"/mcp", "application/json", bytes.NewReader(initializeBody(1)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	sessionID := body["session_id"].(string)
	assert.NotEmpty(t, sessionID)
	assert.Equal(t, sessionID, resp.Header.Get("Mcp-Session-Id"))
}

func TestSSEPostWithoutSessionRejected(t *testing.T) {
	ts, _ := httpTestServer(t, ModeSSE)

	resp, err := http.Post(ts.URL+"/mcp", "application/json", bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// sseEvent is a parsed SSE frame
type sseEvent struct {
	id    string
	event string
	data  string
}

// readSSEEvents reads count frames from an SSE stream
func readSSEEvents(t *testing.T, scanner *bufio.Scanner, count int) []sseEvent {
	t.Helper()
	var events []sseEvent
	current := sseEvent{}
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current.data != "" || current.event != "" {
				events = append(events, current)
				if len(events) == count {
					return events
				}
			}
			current = sseEvent{}
		case strings.HasPrefix(line, "id: "):
			current.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			current.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended after %d events, wanted %d", len(events), count)
	return nil
}

func TestSSEStreamDeliversQueuedResponses(t *testing.T) {
	ts, _ := httpTestServer(t, ModeSSE)

	// Initialize to create the session; its response is queued
	resp, err := http.Post(ts.URL+"/mcp", "application/json", bytes.NewReader(initializeBody(1)))
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	sessionID := body["session_id"].(string)

	// Mark initialized, then queue a ping response
	post := func(payload string) {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp", strings.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Mcp-Session-Id", sessionID)
		r, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		r.Body.Close()
		require.Equal(t, http.StatusOK, r.StatusCode)
	}
	post(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	post(`{"jsonrpc":"2.0","id":2,"method":"ping"}`)

	// Open the stream with resumability from the beginning
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessionID)
	req.Header.Set("Last-Event-ID", "0")

	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Contains(t, stream.Header.Get("Content-Type"), "text/event-stream")

	scanner := bufio.NewScanner(stream.Body)
	events := readSSEEvents(t, scanner, 3)

	// First event carries the session id
	assert.Equal(t, "session_id", events[0].event)
	var sidData map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(events[0].data), &sidData))
	assert.Equal(t, sessionID, sidData["session_id"])

	// Then the queued responses in order with increasing event ids
	assert.Equal(t, "1", events[1].id)
	var initResp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(events[1].data), &initResp))
	assert.Equal(t, float64(1), initResp["id"])

	assert.Equal(t, "2", events[2].id)
	var pingResp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(events[2].data), &pingResp))
	assert.Equal(t, float64(2), pingResp["id"])
}

func TestSSEGetNotAllowedInStreamMode(t *testing.T) {
	ts, _ := httpTestServer(t, ModeStream)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
