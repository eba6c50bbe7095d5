package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
	"github.com/arcade-ai/arcade-mcp-go/internal/server"
	"github.com/arcade-ai/arcade-mcp-go/internal/session"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

const (
	maxBodyBytes       = 1024 * 1024
	keepaliveInterval  = 30 * time.Second
	httpCleanupPeriod  = 10 * time.Second
	sessionIDHeader    = "Mcp-Session-Id"
	legacySessionIDHdr = "X-Session-ID"
	protocolVersionHdr = "Mcp-Protocol-Version"
)

// HTTPMode selects the HTTP sub-variant
type HTTPMode int

// HTTP transport modes: streamable JSON per POST, or bidirectional SSE.
const (
	ModeStream HTTPMode = iota
	ModeSSE
)

// HTTPTransport serves MCP over HTTP. Both modes share the server's session
// table and the event store used for SSE resumability.
type HTTPTransport struct {
	srv   *server.Server
	mode  HTTPMode
	store EventStore

	sessionTimeout time.Duration
	maxSessions    int
	workerSecret   string

	done chan struct{}
}

// NewHTTPTransport creates an HTTP transport in the given mode
func NewHTTPTransport(srv *server.Server, mode HTTPMode) *HTTPTransport {
	cfg := srv.Config()
	return &HTTPTransport{
		srv:            srv,
		mode:           mode,
		store:          NewInMemoryEventStore(cfg.MaxEventsPerStream),
		sessionTimeout: time.Duration(cfg.SessionTimeoutSec) * time.Second,
		maxSessions:    cfg.MaxSessions,
		workerSecret:   cfg.WorkerSecret,
		done:           make(chan struct{}),
	}
}

// Handler returns the http.Handler serving the /mcp endpoint
func (t *HTTPTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", t.handleMCP)
	return mux
}

// Run serves HTTP until the context is canceled, then shuts down
// gracefully, closing all sessions.
func (t *HTTPTransport) Run(ctx context.Context, addr string) error {
	go t.cleanupLoop()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP transport listening on %s (mode=%s)", addr, t.modeName())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		close(t.done)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		close(t.done)
		if err != nil && err != http.ErrServerClosed {
			return mcp.WrapError(mcp.KindTransport, err, "HTTP server failed")
		}
		return nil
	}
}

func (t *HTTPTransport) modeName() string {
	if t.mode == ModeSSE {
		return "sse"
	}
	return "stream"
}

// cleanupLoop periodically evicts inactive sessions and enforces the
// session cap, oldest-by-last-active first.
func (t *HTTPTransport) cleanupLoop() {
	ticker := time.NewTicker(httpCleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			removed := t.srv.Sessions.CleanupInactive(t.sessionTimeout, t.maxSessions)
			for _, id := range removed {
				t.srv.Notifications.UnregisterClient(id)
				t.store.DeleteStream(id)
			}
		}
	}
}

// handleMCP routes by HTTP method
func (t *HTTPTransport) handleMCP(w http.ResponseWriter, r *http.Request) {
	if !t.checkAuth(w, r) {
		return
	}
	if !t.checkProtocolVersion(w, r) {
		return
	}

	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		if t.mode != ModeSSE {
			http.Error(w, "SSE not enabled for this transport", http.StatusMethodNotAllowed)
			return
		}
		t.handleSSE(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// checkAuth validates the worker bearer secret when one is configured
func (t *HTTPTransport) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if t.workerSecret == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") != t.workerSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"status":  "error",
			"message": "Invalid or missing worker secret",
		})
		return false
	}
	return true
}

// checkProtocolVersion rejects requests declaring an unsupported version.
// An absent header is accepted.
func (t *HTTPTransport) checkProtocolVersion(w http.ResponseWriter, r *http.Request) bool {
	version := r.Header.Get(protocolVersionHdr)
	if version == "" || version == mcp.ProtocolVersion {
		return true
	}
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"status":    "error",
		"message":   fmt.Sprintf("Unsupported protocol version: %s", version),
		"supported": []string{mcp.ProtocolVersion},
	})
	return false
}

// readBody enforces the content type and the 1 MiB body cap
func (t *HTTPTransport) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"status":  "error",
			"message": "Content-Type must be application/json",
		})
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"status":  "error",
			"message": "Failed to read request body",
		})
		return nil, false
	}
	if len(body) > maxBodyBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]interface{}{
			"status":  "error",
			"message": "Request body too large (max 1MB)",
		})
		return nil, false
	}
	return body, true
}

// handlePost processes a JSON-RPC call. In stream mode the response is the
// JSON-RPC envelope itself; in SSE mode responses ride the event stream and
// the POST acknowledges with a status object.
func (t *HTTPTransport) handlePost(w http.ResponseWriter, r *http.Request) {
	body, ok := t.readBody(w, r)
	if !ok {
		return
	}

	if t.mode == ModeStream {
		resp := t.srv.HandleMessage(r.Context(), body, nil)
		if resp == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	// Peek at the method to detect initialize without full dispatch
	var probe struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"status":  "error",
			"message": fmt.Sprintf("Invalid JSON: %v", err),
		})
		return
	}

	if probe.Method == mcp.MethodInitialize {
		sess := t.srv.NewSession("")
		t.store.CreateStream(sess.ID)
		if resp := t.srv.HandleMessage(r.Context(), body, sess); resp != nil {
			t.enqueueResponse(sess, resp)
		}
		w.Header().Set(sessionIDHeader, sess.ID)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "ok",
			"session_id": sess.ID,
		})
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		sessionID = r.Header.Get(legacySessionIDHdr)
	}
	sess, err := t.srv.Sessions.Get(sessionID)
	if sessionID == "" || err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"status":  "error",
			"message": "Invalid or expired session ID",
		})
		return
	}

	sess.Touch()
	if resp := t.srv.HandleMessage(r.Context(), body, sess); resp != nil {
		t.enqueueResponse(sess, resp)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// enqueueResponse serializes a response onto the session's outbound queue
func (t *HTTPTransport) enqueueResponse(sess *session.Session, resp interface{}) {
	payload, err := json.Marshal(resp)
	if err != nil {
		logger.Error("Failed to marshal response for session %s: %v", sess.ID, err)
		return
	}
	if err := sess.Enqueue(append(payload, '\n')); err != nil {
		logger.Debug("Failed to enqueue response for session %s: %v", sess.ID, err)
	}
}

// handleSSE opens the event stream: session_id event first, then replayed
// events after Last-Event-ID, then live messages with keepalive pings.
func (t *HTTPTransport) handleSSE(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	if accept != "" && !strings.Contains(accept, "text/event-stream") && !strings.Contains(accept, "*/*") {
		http.Error(w, "This endpoint requires Accept: text/event-stream", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported by server", http.StatusInternalServerError)
		return
	}

	// Attach to the session named in the header, or create a fresh one
	var sess *session.Session
	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		sessionID = r.URL.Query().Get("sessionId")
	}
	if sessionID != "" {
		if existing, err := t.srv.Sessions.Get(sessionID); err == nil {
			sess = existing
		}
	}
	if sess == nil {
		sess = t.srv.NewSession("")
		logger.Info("Created new SSE session %s", sess.ID)
	}
	sess.Touch()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(sessionIDHeader, sess.ID)
	w.WriteHeader(http.StatusOK)

	// First event carries the session id
	sessionEvent, _ := json.Marshal(map[string]interface{}{"session_id": sess.ID})
	fmt.Fprintf(w, "event: session_id\ndata: %s\n\n", sessionEvent)
	flusher.Flush()

	// Replay stored events newer than Last-Event-ID
	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		lastID, err := strconv.Atoi(lastEventID)
		if err != nil {
			lastID = -1
		}
		for _, event := range t.store.ReplayEventsAfter(sess.ID, lastID, 0) {
			fmt.Fprintf(w, "id: %d\ndata: %s", event.ID, withNewline(event.Payload))
			fmt.Fprint(w, "\n")
			flusher.Flush()
		}
	}

	ctx := r.Context()
	keepalive := time.NewTimer(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			// Client disconnected: drop the session
			t.srv.ReleaseSession(sess.ID)
			t.store.DeleteStream(sess.ID)
			logger.Info("SSE connection closed for session %s", sess.ID)
			return
		case <-t.done:
			sess.Close()
			return
		case payload := <-sess.Outbound():
			if payload == nil {
				return
			}
			id := t.store.StoreEvent(sess.ID, payload)
			fmt.Fprintf(w, "id: %d\ndata: %s", id, withNewline(payload))
			fmt.Fprint(w, "\n")
			flusher.Flush()
			sess.Touch()
		case <-keepalive.C:
			fmt.Fprint(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}

		if !keepalive.Stop() {
			select {
			case <-keepalive.C:
			default:
			}
		}
		keepalive.Reset(keepaliveInterval)
	}
}

// withNewline guarantees the payload ends with exactly one newline so SSE
// frames stay well-formed.
func withNewline(payload []byte) []byte {
	trimmed := payload
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == '\n' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return append(trimmed, '\n')
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to write JSON response: %v", err)
	}
}
