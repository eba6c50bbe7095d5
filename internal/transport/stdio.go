package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
	"github.com/arcade-ai/arcade-mcp-go/internal/server"
	"github.com/arcade-ai/arcade-mcp-go/internal/session"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

const stdioStopTimeout = 5 * time.Second

// StdioTransport serves MCP over newline-delimited JSON on stdin/stdout.
// Logs and diagnostics go to stderr only. Exactly one session is supported.
type StdioTransport struct {
	srv *server.Server

	in  io.Reader
	out io.Writer

	mu      sync.Mutex
	running bool
	sess    *session.Session
	done    chan struct{}
	eof     chan struct{}
	eofOnce sync.Once
	wg      sync.WaitGroup
}

// NewStdioTransport creates a stdio transport bound to os.Stdin/os.Stdout
func NewStdioTransport(srv *server.Server) *StdioTransport {
	return &StdioTransport{
		srv: srv,
		in:  os.Stdin,
		out: os.Stdout,
	}
}

// NewStdioTransportStreams creates a stdio transport over explicit streams
func NewStdioTransportStreams(srv *server.Server, in io.Reader, out io.Writer) *StdioTransport {
	return &StdioTransport{
		srv: srv,
		in:  in,
		out: out,
	}
}

// Start launches the reader and writer workers. A second call while
// running fails: stdio supports exactly one session.
func (t *StdioTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return mcp.NewError(mcp.KindTransport, "stdio transport already running")
	}
	t.running = true
	t.done = make(chan struct{})
	t.eof = make(chan struct{})
	t.eofOnce = sync.Once{}
	sess := t.srv.NewSession("")
	t.sess = sess
	t.mu.Unlock()

	logger.Info("Created stdio session %s", sess.ID)

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-t.done
		cancel()
	}()

	bufOut := bufio.NewWriterSize(t.out, 32*1024)

	t.wg.Add(2)

	// Writer: drain the session's outbound queue one JSON line at a time,
	// flushing after every message so clients see responses immediately.
	go func() {
		defer t.wg.Done()
		for payload := range sess.Outbound() {
			if payload == nil {
				return
			}
			if _, err := bufOut.Write(payload); err != nil {
				logger.Error("Error writing to stdout: %v", err)
				return
			}
			if err := bufOut.Flush(); err != nil {
				logger.Error("Error flushing stdout: %v", err)
				return
			}
		}
	}()

	// Reader: parse one JSON object per line and dispatch
	go func() {
		defer t.wg.Done()
		defer t.signalEOF()
		t.readLoop(runCtx, sess)
	}()

	return nil
}

// signalEOF marks the input stream as exhausted
func (t *StdioTransport) signalEOF() {
	t.eofOnce.Do(func() { close(t.eof) })
}

// readLoop reads lines from stdin and dispatches them until EOF or cancel
func (t *StdioTransport) readLoop(ctx context.Context, sess *session.Session) {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var dispatch sync.WaitGroup
	defer dispatch.Wait()

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			logger.Info("stdio reader stopped: context canceled")
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(line) > 500 {
			logger.Debug("Received large request (length: %d bytes)", len(line))
		} else {
			logger.Debug("Received request: %s", line)
		}

		sess.Touch()
		raw := []byte(line)

		// Notifications and client responses are cheap and order-sensitive
		// (notifications/initialized, responses to server-initiated
		// requests): handle them inline. Requests run in goroutines so a
		// slow tool does not block the read loop.
		var probe struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		isRequest := json.Unmarshal(raw, &probe) == nil &&
			probe.Method != "" && len(probe.ID) > 0 && string(probe.ID) != "null"

		if !isRequest {
			t.dispatchLine(ctx, raw, sess)
			continue
		}
		dispatch.Add(1)
		go func() {
			defer dispatch.Done()
			t.dispatchLine(ctx, raw, sess)
		}()
	}

	if err := scanner.Err(); err != nil {
		logger.Error("Error reading from stdin: %v", err)
	} else {
		logger.Info("Received EOF on stdin, shutting down")
	}
}

// dispatchLine runs one message through the server and enqueues any
// response onto the session's outbound queue.
func (t *StdioTransport) dispatchLine(ctx context.Context, raw []byte, sess *session.Session) {
	resp := t.srv.HandleMessage(ctx, raw, sess)
	if resp == nil {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		logger.Error("Failed to marshal response: %v", err)
		return
	}
	if err := sess.Enqueue(append(payload, '\n')); err != nil {
		logger.Debug("Dropping response for closed session: %v", err)
	}
}

// Stop closes the session (enqueueing the writer sentinel) and joins the
// workers with a bounded timeout.
func (t *StdioTransport) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.done)
	sess := t.sess
	t.sess = nil
	t.mu.Unlock()

	logger.Info("Stopping stdio transport...")
	if sess != nil {
		t.srv.ReleaseSession(sess.ID)
	}

	joined := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(stdioStopTimeout):
		logger.Warn("Timed out waiting for stdio workers to stop")
	}
	logger.Info("stdio transport stopped")
}

// Run starts the transport and blocks until the context is canceled or the
// input stream is exhausted, then stops it.
func (t *StdioTransport) Run(ctx context.Context) error {
	if err := t.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-t.eof:
	}
	t.Stop()
	return nil
}
