package session

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
	"github.com/arcade-ai/arcade-mcp-go/internal/requests"
	"github.com/arcade-ai/arcade-mcp-go/pkg/jsonrpc"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

// DefaultQueueSize bounds a session's outbound queue
const DefaultQueueSize = 1000

// InitState tracks the session initialization state machine
type InitState int

// Initialization states. Only initialize and ping are dispatched before
// StateInitialized.
const (
	StateNotInitialized InitState = iota
	StateInitializing
	StateInitialized
)

// Dispatcher processes one raw JSON-RPC message for a session and returns
// the response envelope, or nil for notifications and client responses.
type Dispatcher interface {
	HandleMessage(ctx context.Context, raw []byte, sess *Session) *jsonrpc.Response
}

// Session represents one MCP connection's state: initialization status,
// client capabilities, outbound queue, and pending server→client requests.
type Session struct {
	ID     string
	UserID string

	CreatedAt time.Time

	mu              sync.Mutex
	lastActive      time.Time
	initState       InitState
	clientParams    *mcp.InitializeParams
	protocolVersion string
	minLogLevel     mcp.LogLevel
	closed          bool

	outbound chan []byte
	reqMgr   *requests.Manager
}

// New creates a session with the given user id and queue capacity. A
// capacity of 0 uses DefaultQueueSize.
func New(userID string, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		CreatedAt:   time.Now(),
		lastActive:  time.Now(),
		minLogLevel: mcp.LogLevelInfo,
		outbound:    make(chan []byte, queueSize),
	}
}

// SetClientParams stores the client's initialize parameters and moves the
// session to StateInitializing.
func (s *Session) SetClientParams(params *mcp.InitializeParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientParams = params
	s.protocolVersion = params.ProtocolVersion
	s.initState = StateInitializing
}

// MarkInitialized moves the session to StateInitialized. Called when the
// client sends notifications/initialized.
func (s *Session) MarkInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initState = StateInitialized
}

// InitState returns the current initialization state
func (s *Session) InitState() InitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initState
}

// ClientParams returns the stored initialize parameters, if any
func (s *Session) ClientParams() *mcp.InitializeParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientParams
}

// ProtocolVersion returns the protocol version negotiated at initialize
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

// SetMinLogLevel stores the minimum level for notifications/message fan-out
func (s *Session) SetMinLogLevel(level mcp.LogLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minLogLevel = level
}

// MinLogLevel returns the minimum log level requested via logging/setLevel
func (s *Session) MinLogLevel() mcp.LogLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minLogLevel
}

// Touch updates the last-active timestamp
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

// LastActive returns the last-active timestamp
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// SetRequestManager attaches the server→client request manager
func (s *Session) SetRequestManager(m *requests.Manager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqMgr = m
}

// RequestManager returns the attached request manager, if any
func (s *Session) RequestManager() *requests.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqMgr
}

// CheckClientCapability performs a structural subset check of the given
// capability against the capabilities the client declared at initialize.
func (s *Session) CheckClientCapability(capability mcp.ClientCapabilities) bool {
	s.mu.Lock()
	params := s.clientParams
	s.mu.Unlock()

	if params == nil {
		return false
	}
	declared := params.Capabilities

	if capability.Roots != nil {
		if declared.Roots == nil {
			return false
		}
		if capability.Roots.ListChanged && !declared.Roots.ListChanged {
			return false
		}
	}
	if capability.Sampling != nil && declared.Sampling == nil {
		return false
	}
	if capability.Elicitation != nil && declared.Elicitation == nil {
		return false
	}
	if capability.Experimental != nil {
		if declared.Experimental == nil {
			return false
		}
		for key, value := range capability.Experimental {
			got, ok := declared.Experimental[key]
			if !ok || got != value {
				return false
			}
		}
	}
	return true
}

// Enqueue appends a payload to the outbound queue, blocking when the queue
// is at capacity. Returns an error once the session is closed.
func (s *Session) Enqueue(payload []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return mcp.SessionError("session %s is closed", s.ID)
	}
	s.outbound <- payload
	return nil
}

// Outbound exposes the queue for the transport writer. A nil payload is the
// close sentinel; the consumer must stop reading after it.
func (s *Session) Outbound() <-chan []byte {
	return s.outbound
}

// Close marks the session closed and enqueues the nil sentinel so the
// consumer drains remaining messages and terminates.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case s.outbound <- nil:
	default:
		// Queue is full; deliver the sentinel once the consumer drains.
		go func() { s.outbound <- nil }()
	}
}

// Closed reports whether Close has been called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Run drives the session over line-delimited JSON streams: a writer worker
// drains the outbound queue to w, and the read loop feeds each line to the
// dispatcher, enqueueing non-nil responses. Run returns when the reader is
// exhausted or the context is canceled.
func (s *Session) Run(ctx context.Context, r io.Reader, w io.Writer, d Dispatcher) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for payload := range s.outbound {
			if payload == nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				logger.Error("Failed to write outbound message for session %s: %v", s.ID, err)
				return
			}
		}
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			s.Close()
			wg.Wait()
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		raw := make([]byte, len(line))
		copy(raw, line)

		s.Touch()
		if resp := d.HandleMessage(ctx, raw, s); resp != nil {
			payload, err := json.Marshal(resp)
			if err != nil {
				logger.Error("Failed to marshal response for session %s: %v", s.ID, err)
				continue
			}
			if err := s.Enqueue(append(payload, '\n')); err != nil {
				break
			}
		}
	}

	s.Close()
	wg.Wait()
	return scanner.Err()
}

// Manager owns the session table
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	queueSize int
}

// NewManager creates a session manager. queueSize of 0 uses the default.
func NewManager(queueSize int) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		queueSize: queueSize,
	}
}

// Create creates and registers a new session
func (m *Manager) Create(userID string) *Session {
	sess := New(userID, m.queueSize)
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return sess
}

// Get returns a session by id
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, mcp.SessionError("session %q not found", id)
	}
	return sess, nil
}

// Remove closes and deletes a session
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CleanupInactive removes sessions idle longer than maxAge, and when the
// table exceeds maxSessions evicts the oldest-by-last-active first. The
// removed session ids are returned so callers can release per-session
// state.
func (m *Manager) CleanupInactive(maxAge time.Duration, maxSessions int) []string {
	now := time.Now()

	var evict []*Session
	m.mu.Lock()
	if maxSessions > 0 && len(m.sessions) > maxSessions {
		all := make([]*Session, 0, len(m.sessions))
		for _, sess := range m.sessions {
			all = append(all, sess)
		}
		sort.Slice(all, func(i, j int) bool {
			return all[i].LastActive().Before(all[j].LastActive())
		})
		evict = append(evict, all[:len(all)-maxSessions]...)
	}
	for _, sess := range m.sessions {
		if now.Sub(sess.LastActive()) > maxAge {
			evict = append(evict, sess)
		}
	}
	m.mu.Unlock()

	var removed []string
	seen := make(map[string]bool)
	for _, sess := range evict {
		if seen[sess.ID] {
			continue
		}
		seen[sess.ID] = true
		m.Remove(sess.ID)
		removed = append(removed, sess.ID)
		logger.Debug("Evicted session %s", sess.ID)
	}
	return removed
}
