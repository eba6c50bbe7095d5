// Package server implements the MCP dispatcher: request parsing, the
// middleware chain, method handlers, and the tool execution pipeline.
package server

import (
	"encoding/json"
	"sync"

	"github.com/arcade-ai/arcade-mcp-go/internal/auth"
	"github.com/arcade-ai/arcade-mcp-go/internal/config"
	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
	"github.com/arcade-ai/arcade-mcp-go/internal/managers"
	"github.com/arcade-ai/arcade-mcp-go/internal/notifications"
	"github.com/arcade-ai/arcade-mcp-go/internal/session"
	"github.com/arcade-ai/arcade-mcp-go/pkg/jsonrpc"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
	"github.com/arcade-ai/arcade-mcp-go/pkg/tools"
)

// DefaultNotificationCapabilities lists the server→client notification
// methods every registered client may subscribe to.
var DefaultNotificationCapabilities = []string{
	mcp.NotificationProgress,
	mcp.NotificationMessage,
	mcp.NotificationResourceListChanged,
	mcp.NotificationResourceUpdated,
	mcp.NotificationToolListChanged,
	mcp.NotificationPromptListChanged,
	mcp.NotificationCancelled,
}

// Server owns the tool catalog, component managers, notification manager,
// and session table, and dispatches MCP messages.
type Server struct {
	cfg     *config.Config
	catalog *tools.Catalog

	Tools     *managers.ToolManager
	Resources *managers.ResourceManager
	Prompts   *managers.PromptManager

	Notifications *notifications.Manager
	Sessions      *session.Manager

	authorizer   auth.Authorizer
	authDisabled bool
	maskErrors   bool

	middleware []Middleware
	handlers   map[string]handlerFunc

	inflightMu sync.Mutex
	inflight   map[string]func()

	mu      sync.Mutex
	started bool
}

// Option customizes a server at construction time
type Option func(*Server)

// WithAuthorizer overrides the authorizer (e.g. the local mock)
func WithAuthorizer(a auth.Authorizer) Option {
	return func(s *Server) { s.authorizer = a }
}

// WithAuthDisabled disables runtime authorization checks
func WithAuthDisabled(disabled bool) Option {
	return func(s *Server) { s.authDisabled = disabled }
}

// WithMiddleware appends user middleware to the chain
func WithMiddleware(mw ...Middleware) Option {
	return func(s *Server) { s.middleware = append(s.middleware, mw...) }
}

// WithErrorMasking hides internal error details from clients
func WithErrorMasking(mask bool) Option {
	return func(s *Server) { s.maskErrors = mask }
}

// New creates a server for the given catalog and configuration
func New(cfg *config.Config, catalog *tools.Catalog, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		catalog:  catalog,
		Sessions: session.NewManager(session.DefaultQueueSize),
		inflight: make(map[string]func()),
	}

	s.Notifications = notifications.NewManager(s, cfg.RateLimitPerMinute, cfg.DebounceMs)

	s.Tools = managers.NewToolManager(catalog, func(string) {
		s.Notifications.NotifyToolListChanged(nil)
	})
	s.Resources = managers.NewResourceManager(func(string) {
		s.Notifications.NotifyResourceListChanged(nil)
	})
	s.Prompts = managers.NewPromptManager(func(string) {
		s.Notifications.NotifyPromptListChanged(nil)
	})

	if cfg.ArcadeAPIKey != "" {
		s.authorizer = auth.NewClient(cfg.ArcadeAPIURL, cfg.ArcadeAPIKey)
		logger.Info("Using Arcade authorizer with API URL: %s", cfg.ArcadeAPIURL)
	} else if len(cfg.LocalAuthProviders) > 0 {
		s.authorizer = auth.NewMockAuthorizer(cfg.LocalAuthProviders, cfg.ServerHost, cfg.ServerPort)
		logger.Info("Using local mock authorizer with %d providers", len(cfg.LocalAuthProviders))
	} else {
		logger.Warn("Arcade API key not configured; tools requiring auth will return a login instruction")
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerHandlers()
	return s
}

// Start launches the server-wide background workers. Safe to call multiple
// times.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.Notifications.Start()
}

// Stop shuts down background workers and closes all sessions
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.Notifications.Stop()
	s.Sessions.CleanupInactive(0, 0)
	logger.Info("MCP server shutdown complete")
}

// Config returns the server configuration
func (s *Server) Config() *config.Config {
	return s.cfg
}

// NewSession creates a session, attaches its request manager, and registers
// it with the notification manager. The request manager delivers
// server-initiated requests through the session's outbound queue.
func (s *Server) NewSession(userID string) *session.Session {
	if userID == "" {
		userID = s.cfg.UserID
	}
	sess := s.Sessions.Create(userID)
	s.attachSession(sess)
	return sess
}

// attachSession wires per-session managers and notification registration
func (s *Server) attachSession(sess *session.Session) {
	s.Notifications.RegisterClient(sess.ID, DefaultNotificationCapabilities)
	// Server→client requests ride the session's outbound queue alongside
	// responses and notifications, preserving per-session ordering.
	mgr := newSessionRequestManager(sess)
	sess.SetRequestManager(mgr)
}

// ReleaseSession removes a session and its notification registration
func (s *Server) ReleaseSession(sessionID string) {
	s.Sessions.Remove(sessionID)
	s.Notifications.UnregisterClient(sessionID)
}

// SendNotification implements notifications.Sender by writing one JSON line
// onto the target session's outbound queue. notifications/message entries
// below the session's minimum log level are filtered here.
func (s *Server) SendNotification(clientID string, n *jsonrpc.Notification) bool {
	sess, err := s.Sessions.Get(clientID)
	if err != nil {
		return false
	}

	if n.Method == mcp.NotificationMessage {
		if params, ok := n.Params.(mcp.LoggingMessageParams); ok {
			if params.Level.Severity() < sess.MinLogLevel().Severity() {
				return true
			}
		}
	}

	payload, err := json.Marshal(n)
	if err != nil {
		logger.Error("Failed to marshal notification %s: %v", n.Method, err)
		return false
	}
	if err := sess.Enqueue(append(payload, '\n')); err != nil {
		logger.Debug("Failed to enqueue notification for session %s: %v", clientID, err)
		return false
	}
	return true
}

// trackInflight registers a cancel function for a request so that
// notifications/cancelled can best-effort cancel it.
func (s *Server) trackInflight(sessionID string, requestID interface{}, cancel func()) func() {
	key := inflightKey(sessionID, requestID)
	s.inflightMu.Lock()
	s.inflight[key] = cancel
	s.inflightMu.Unlock()

	return func() {
		s.inflightMu.Lock()
		delete(s.inflight, key)
		s.inflightMu.Unlock()
	}
}

// cancelInflight cancels the tracked request, if any
func (s *Server) cancelInflight(sessionID string, requestID interface{}) bool {
	key := inflightKey(sessionID, requestID)
	s.inflightMu.Lock()
	cancel, ok := s.inflight[key]
	s.inflightMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func inflightKey(sessionID string, requestID interface{}) string {
	return sessionID + "\x00" + stringifyID(requestID)
}
