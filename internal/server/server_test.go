package server

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcade-ai/arcade-mcp-go/internal/config"
	"github.com/arcade-ai/arcade-mcp-go/internal/session"
	"github.com/arcade-ai/arcade-mcp-go/pkg/jsonrpc"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
	"github.com/arcade-ai/arcade-mcp-go/pkg/tools"
)

func testConfig() *config.Config {
	return &config.Config{
		ServerName:         "Arcade MCP Server",
		ServerVersion:      "0.1.0",
		ServerTitle:        "Arcade MCP Server",
		RateLimitPerMinute: 60,
		DebounceMs:         100,
		MaxSessions:        1000,
		SessionTimeoutSec:  300,
		MaxEventsPerStream: 1000,
		Secrets:            map[string]string{},
		Metadata:           map[string]string{},
	}
}

func mathCatalog(t *testing.T) *tools.Catalog {
	t.Helper()
	catalog := tools.NewCatalog()
	catalog.MustAdd(&tools.Definition{
		Name:        "add",
		Toolkit:     "math",
		Description: "Add two integers",
		Input: tools.InputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"a": map[string]interface{}{"type": "integer"},
				"b": map[string]interface{}{"type": "integer"},
			},
			Required: []string{"a", "b"},
		},
		Output: map[string]interface{}{"type": "integer"},
	}, func(_ context.Context, _ *tools.ToolContext, args map[string]interface{}) (interface{}, error) {
		return int(args["a"].(float64) + args["b"].(float64)), nil
	}, "math")
	return catalog
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(testConfig(), mathCatalog(t))
}

// resultJSON marshals a response result for structural assertions
func resultJSON(t *testing.T, resp *jsonrpc.Response) map[string]interface{} {
	t.Helper()
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func initializeRequest(id int) []byte {
	return []byte(fmt.Sprintf(
		`{"jsonrpc":"2.0","id":%d,"method":"initialize","params":{"protocolVersion":%q,"capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`,
		id, mcp.ProtocolVersion,
	))
}

func TestScenarioInitializePingList(t *testing.T) {
	srv := newTestServer(t)
	sess := srv.NewSession("user")
	ctx := context.Background()

	// initialize
	resp := srv.HandleMessage(ctx, initializeRequest(1), sess)
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	assert.Equal(t, float64(1), resp.ID)

	result := resultJSON(t, resp)
	assert.Equal(t, mcp.ProtocolVersion, result["protocolVersion"])
	caps := result["capabilities"].(map[string]interface{})
	toolCaps := caps["tools"].(map[string]interface{})
	assert.Equal(t, true, toolCaps["listChanged"])
	assert.Equal(t, session.StateInitializing, sess.InitState())

	// notifications/initialized
	resp = srv.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), sess)
	assert.Nil(t, resp)
	assert.Equal(t, session.StateInitialized, sess.InitState())

	// tools/list
	resp = srv.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`), sess)
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result = resultJSON(t, resp)
	listed := result["tools"].([]interface{})
	require.Len(t, listed, 1)
	tool := listed[0].(map[string]interface{})
	assert.Equal(t, "math.add", tool["name"])
	assert.NotNil(t, tool["inputSchema"])
}

func TestRequestRejectedBeforeInitialization(t *testing.T) {
	srv := newTestServer(t)
	sess := srv.NewSession("user")

	resp := srv.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":5,"method":"tools/list"}`), sess)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.InvalidRequestCode, resp.Error.Code)

	// Still rejected while Initializing (initialize sent, initialized not yet)
	srv.HandleMessage(context.Background(), initializeRequest(1), sess)
	resp = srv.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":6,"method":"tools/list"}`), sess)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.InvalidRequestCode, resp.Error.Code)
}

func TestPingAllowedInEveryState(t *testing.T) {
	srv := newTestServer(t)
	sess := srv.NewSession("user")
	ctx := context.Background()

	for _, step := range []func(){
		func() {},
		func() { srv.HandleMessage(ctx, initializeRequest(1), sess) },
		func() { sess.MarkInitialized() },
	} {
		step()
		resp := srv.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":9,"method":"ping"}`), sess)
		require.NotNil(t, resp)
		require.Nil(t, resp.Error)
		assert.Equal(t, float64(9), resp.ID)

		data, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":9,"result":{}}`, string(data))
	}
}

func TestMethodNotFound(t *testing.T) {
	srv := newTestServer(t)
	sess := srv.NewSession("user")
	sess.MarkInitialized()

	resp := srv.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":3,"method":"bogus/method"}`), sess)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.MethodNotFoundCode, resp.Error.Code)
}

func TestMalformedMessage(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.HandleMessage(context.Background(), []byte(`{broken`), nil)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.ParseErrorCode, resp.Error.Code)
	assert.Nil(t, resp.ID)

	resp = srv.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0"}`), nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.InvalidRequestCode, resp.Error.Code)
}

func TestInitializeToleratesMissingParams(t *testing.T) {
	srv := newTestServer(t)
	sess := srv.NewSession("user")

	resp := srv.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`), sess)
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result := resultJSON(t, resp)
	assert.Equal(t, mcp.ProtocolVersion, result["protocolVersion"])
}

func TestClientResponseRoutedToRequestManager(t *testing.T) {
	srv := newTestServer(t)
	sess := srv.NewSession("user")
	sess.MarkInitialized()

	mgr := sess.RequestManager()
	require.NotNil(t, mgr)

	done := make(chan interface{}, 1)
	go func() {
		result, err := mgr.SendRequest(context.Background(), "roots/list", nil, 0)
		if err != nil {
			done <- err
			return
		}
		done <- result
	}()

	// The outgoing request lands on the session queue as a JSON line
	payload := <-sess.Outbound()
	var req jsonrpc.Request
	require.NoError(t, json.Unmarshal(payload, &req))
	assert.Equal(t, "roots/list", req.Method)

	// Feed the client response through the dispatcher
	raw := fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"result":{"roots":[]}}`, req.ID)
	resp := srv.HandleMessage(context.Background(), []byte(raw), sess)
	assert.Nil(t, resp, "client responses produce no reply")

	result := <-done
	assert.Equal(t, map[string]interface{}{"roots": []interface{}{}}, result)
}

func TestCancelledNotificationInformational(t *testing.T) {
	srv := newTestServer(t)
	sess := srv.NewSession("user")
	sess.MarkInitialized()

	// Unknown request id: logged, no response, no panic
	resp := srv.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":99,"reason":"user"}}`), sess)
	assert.Nil(t, resp)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	srv := newTestServer(t)
	sess := srv.NewSession("user")
	sess.MarkInitialized()
	ctx := context.Background()

	raw := []byte(`{"jsonrpc":"2.0","id":1,"method":"notifications/subscribe","params":{"methods":["notifications/tools/list_changed"]}}`)
	resp := srv.HandleMessage(ctx, raw, sess)
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result := resultJSON(t, resp)
	subs := result["subscriptions"].([]interface{})
	require.Len(t, subs, 1)
	subID := subs[0].(map[string]interface{})["subscription_id"].(string)

	raw = []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":2,"method":"notifications/unsubscribe","params":{"subscription_ids":[%q]}}`, subID))
	resp = srv.HandleMessage(ctx, raw, sess)
	require.Nil(t, resp.Error)
	assert.Equal(t, true, resultJSON(t, resp)["success"])
}

func TestSetLogLevelStoredOnSession(t *testing.T) {
	srv := newTestServer(t)
	sess := srv.NewSession("user")
	sess.MarkInitialized()

	resp := srv.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"logging/setLevel","params":{"level":"warning"}}`), sess)
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
	assert.Equal(t, mcp.LogLevelWarning, sess.MinLogLevel())
}

func TestReadResourceNotFoundCode(t *testing.T) {
	srv := newTestServer(t)
	sess := srv.NewSession("user")
	sess.MarkInitialized()

	resp := srv.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":4,"method":"resources/read","params":{"uri":"file://missing"}}`), sess)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.ResourceNotFoundCode, resp.Error.Code)
}

func TestPromptFlow(t *testing.T) {
	srv := newTestServer(t)
	srv.Prompts.AddPrompt(mcp.Prompt{
		Name:      "review",
		Arguments: []mcp.PromptArgument{{Name: "file", Required: true}},
	}, nil)

	sess := srv.NewSession("user")
	sess.MarkInitialized()
	ctx := context.Background()

	resp := srv.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"prompts/list"}`), sess)
	require.Nil(t, resp.Error)
	prompts := resultJSON(t, resp)["prompts"].([]interface{})
	assert.Len(t, prompts, 1)

	// Missing required argument maps to -32603
	resp = srv.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":2,"method":"prompts/get","params":{"name":"review"}}`), sess)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.InternalErrorCode, resp.Error.Code)

	resp = srv.HandleMessage(ctx, []byte(`{"jsonrpc":"2.0","id":3,"method":"prompts/get","params":{"name":"review","arguments":{"file":"a.go"}}}`), sess)
	require.Nil(t, resp.Error)
}

func TestStartStop(t *testing.T) {
	srv := newTestServer(t)
	srv.Start()
	srv.Start()
	srv.Stop()
	srv.Stop()
}
