// Package notifications delivers server→client notifications with
// subscription management, per-client rate limiting, and debouncing.
package notifications

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcade-ai/arcade-mcp-go/internal/logger"
	"github.com/arcade-ai/arcade-mcp-go/pkg/jsonrpc"
	"github.com/arcade-ai/arcade-mcp-go/pkg/mcp"
)

const (
	rateLimitWindow   = 60 * time.Second
	flushInterval     = 50 * time.Millisecond
	cleanupInterval   = 60 * time.Second
	inactiveThreshold = 300 * time.Second
)

// UseDefaultDebounce selects the manager's configured default debounce
const UseDefaultDebounce = -1

// Sender delivers a notification payload to a single client. Implemented by
// the server, which writes one JSON line to the session's outbound queue.
// A false return means the client could not be reached.
type Sender interface {
	SendNotification(clientID string, notification *jsonrpc.Notification) bool
}

// Client represents a connected client with notification state
type Client struct {
	ClientID          string
	Capabilities      []string
	Subscriptions     map[string]string // subscription id → method
	LastNotification  time.Time
	NotificationCount int

	rateWindowStart time.Time
	rateCount       int
}

// debounced is a pending coalesced notification
type debounced struct {
	notification *jsonrpc.Notification
	clients      map[string]struct{}
	createdAt    time.Time
	sendAfter    time.Time
}

// Manager coordinates notification delivery across all transports
type Manager struct {
	sender             Sender
	rateLimitPerMinute int
	defaultDebounce    time.Duration

	mu      sync.Mutex
	clients map[string]*Client

	debounceMu sync.Mutex
	debounced  map[string]*debounced

	done    chan struct{}
	wg      sync.WaitGroup
	running bool
	runMu   sync.Mutex

	now func() time.Time
}

// NewManager creates a notification manager. rateLimitPerMinute of 0 uses
// the default of 60; debounceMs of 0 uses the default of 100.
func NewManager(sender Sender, rateLimitPerMinute int, debounceMs int) *Manager {
	if rateLimitPerMinute <= 0 {
		rateLimitPerMinute = 60
	}
	if debounceMs <= 0 {
		debounceMs = 100
	}
	return &Manager{
		sender:             sender,
		rateLimitPerMinute: rateLimitPerMinute,
		defaultDebounce:    time.Duration(debounceMs) * time.Millisecond,
		clients:            make(map[string]*Client),
		debounced:          make(map[string]*debounced),
		done:               make(chan struct{}),
		now:                time.Now,
	}
}

// Start launches the debounce flush and inactivity cleanup loops. Safe to
// call multiple times.
func (m *Manager) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.done = make(chan struct{})

	m.wg.Add(2)
	go m.flushLoop(m.done)
	go m.cleanupLoop(m.done)
	logger.Info("Notification manager started")
}

// Stop cancels the background loops and clears pending notifications
func (m *Manager) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	close(m.done)
	m.runMu.Unlock()

	m.wg.Wait()

	m.debounceMu.Lock()
	m.debounced = make(map[string]*debounced)
	m.debounceMu.Unlock()
	logger.Info("Notification manager stopped")
}

// RegisterClient registers a client for notifications
func (m *Manager) RegisterClient(clientID string, capabilities []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[clientID] = &Client{
		ClientID:         clientID,
		Capabilities:     capabilities,
		Subscriptions:    make(map[string]string),
		LastNotification: m.now(),
		rateWindowStart:  m.now(),
	}
	logger.Debug("Registered notification client %s with %d capabilities", clientID, len(capabilities))
}

// UnregisterClient removes a client, its subscriptions, and any debounced
// entries addressed solely to it.
func (m *Manager) UnregisterClient(clientID string) {
	m.mu.Lock()
	delete(m.clients, clientID)
	m.mu.Unlock()

	m.debounceMu.Lock()
	for key, entry := range m.debounced {
		delete(entry.clients, clientID)
		if len(entry.clients) == 0 {
			delete(m.debounced, key)
		}
	}
	m.debounceMu.Unlock()
	logger.Debug("Unregistered notification client %s", clientID)
}

// Subscribe creates subscriptions for the given methods. Methods the client
// did not declare capability for are silently skipped.
func (m *Manager) Subscribe(clientID string, methods []string, filters map[string]interface{}) ([]mcp.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[clientID]
	if !ok {
		return nil, mcp.SessionError("client %q not registered", clientID)
	}

	var subscriptions []mcp.Subscription
	for _, method := range methods {
		if !contains(client.Capabilities, method) {
			logger.Warn("Client %s lacks capability for %s", clientID, method)
			continue
		}
		subID := uuid.NewString()
		client.Subscriptions[subID] = method
		subscriptions = append(subscriptions, mcp.Subscription{
			SubscriptionID: subID,
			Method:         method,
			CreatedAt:      float64(m.now().UnixNano()) / 1e9,
			Filters:        filters,
		})
		logger.Debug("Client %s subscribed to %s", clientID, method)
	}
	return subscriptions, nil
}

// Unsubscribe removes subscriptions by id. Returns false when the client is
// unknown or any id did not exist.
func (m *Manager) Unsubscribe(clientID string, subscriptionIDs []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[clientID]
	if !ok {
		return false
	}

	success := true
	for _, subID := range subscriptionIDs {
		if _, exists := client.Subscriptions[subID]; exists {
			delete(client.Subscriptions, subID)
		} else {
			success = false
		}
	}
	return success
}

// NotifyProgress sends a notifications/progress message. The default
// debounce key is the progress token.
func (m *Manager) NotifyProgress(progressToken interface{}, progress float64, total *float64, message string, clients []string, debounceKey string, debounceMs int) {
	n := jsonrpc.NewNotification(mcp.NotificationProgress, mcp.ProgressParams{
		ProgressToken: progressToken,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
	if debounceKey == "" {
		debounceKey = stringify(progressToken)
	}
	m.dispatch(n, mcp.NotificationProgress, clients, debounceKey, debounceMs)
}

// NotifyMessage sends a notifications/message log entry. Never debounced.
func (m *Manager) NotifyMessage(level mcp.LogLevel, data interface{}, loggerName string, clients []string) {
	n := jsonrpc.NewNotification(mcp.NotificationMessage, mcp.LoggingMessageParams{
		Level:  level,
		Data:   data,
		Logger: loggerName,
	})
	m.dispatch(n, mcp.NotificationMessage, clients, "", 0)
}

// NotifyResourceUpdated sends notifications/resources/updated. The default
// debounce key is the URI.
func (m *Manager) NotifyResourceUpdated(uri string, timestamp string, clients []string, debounceKey string, debounceMs int) {
	n := jsonrpc.NewNotification(mcp.NotificationResourceUpdated, mcp.ResourceUpdatedParams{
		URI:       uri,
		Timestamp: timestamp,
	})
	if debounceKey == "" {
		debounceKey = uri
	}
	m.dispatch(n, mcp.NotificationResourceUpdated, clients, debounceKey, debounceMs)
}

// NotifyResourceListChanged sends notifications/resources/list_changed
func (m *Manager) NotifyResourceListChanged(clients []string) {
	n := jsonrpc.NewNotification(mcp.NotificationResourceListChanged, struct{}{})
	m.dispatch(n, mcp.NotificationResourceListChanged, clients, "", 0)
}

// NotifyToolListChanged sends notifications/tools/list_changed
func (m *Manager) NotifyToolListChanged(clients []string) {
	n := jsonrpc.NewNotification(mcp.NotificationToolListChanged, struct{}{})
	m.dispatch(n, mcp.NotificationToolListChanged, clients, "", 0)
}

// NotifyPromptListChanged sends notifications/prompts/list_changed
func (m *Manager) NotifyPromptListChanged(clients []string) {
	n := jsonrpc.NewNotification(mcp.NotificationPromptListChanged, struct{}{})
	m.dispatch(n, mcp.NotificationPromptListChanged, clients, "", 0)
}

// NotifyCancelled sends notifications/cancelled. Never debounced.
func (m *Manager) NotifyCancelled(requestID interface{}, reason string, clients []string) {
	n := jsonrpc.NewNotification(mcp.NotificationCancelled, mcp.CancelledParams{
		RequestID: requestID,
		Reason:    reason,
	})
	m.dispatch(n, mcp.NotificationCancelled, clients, "", 0)
}

// dispatch resolves targets and routes through debouncing or direct send.
// debounceMs semantics: UseDefaultDebounce applies the configured default,
// 0 disables debouncing, positive values are milliseconds.
func (m *Manager) dispatch(n *jsonrpc.Notification, method string, clients []string, debounceKey string, debounceMs int) {
	if clients == nil {
		clients = m.subscribedClients(method)
	}
	if len(clients) == 0 {
		return
	}

	wait := time.Duration(debounceMs) * time.Millisecond
	if debounceMs == UseDefaultDebounce {
		wait = m.defaultDebounce
	}

	if debounceKey != "" && wait > 0 {
		m.debounce(n, method, clients, debounceKey, wait)
		return
	}
	m.sendToClients(n, clients)
}

// subscribedClients returns the ids of all clients subscribed to the method
func (m *Manager) subscribedClients(method string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for id, client := range m.clients {
		for _, subscribed := range client.Subscriptions {
			if subscribed == method {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

// debounce upserts a pending notification keyed by (method, debounce key).
// On collision the payload is replaced, the target set union-merged, and
// the send deadline extended.
func (m *Manager) debounce(n *jsonrpc.Notification, method string, clients []string, debounceKey string, wait time.Duration) {
	key := method + "\x00" + debounceKey
	now := m.now()

	m.debounceMu.Lock()
	defer m.debounceMu.Unlock()

	if entry, ok := m.debounced[key]; ok {
		entry.notification = n
		for _, id := range clients {
			entry.clients[id] = struct{}{}
		}
		entry.sendAfter = now.Add(wait)
		return
	}

	targets := make(map[string]struct{}, len(clients))
	for _, id := range clients {
		targets[id] = struct{}{}
	}
	m.debounced[key] = &debounced{
		notification: n,
		clients:      targets,
		createdAt:    now,
		sendAfter:    now.Add(wait),
	}
}

// flushLoop wakes every 50 ms and sends debounced entries that are due
func (m *Manager) flushLoop(done <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.flushDue()
		}
	}
}

// flushDue sends all due debounced notifications outside the lock
func (m *Manager) flushDue() {
	now := m.now()

	var due []*debounced
	m.debounceMu.Lock()
	for key, entry := range m.debounced {
		if !entry.sendAfter.After(now) {
			due = append(due, entry)
			delete(m.debounced, key)
		}
	}
	m.debounceMu.Unlock()

	for _, entry := range due {
		targets := make([]string, 0, len(entry.clients))
		for id := range entry.clients {
			targets = append(targets, id)
		}
		m.sendToClients(entry.notification, targets)
	}
}

// sendToClients fans a notification out to the given clients, applying the
// per-client rate limit. A failed send is logged and dropped; it never
// aborts the fan-out.
func (m *Manager) sendToClients(n *jsonrpc.Notification, clients []string) {
	for _, clientID := range clients {
		if !m.checkRateLimit(clientID) {
			logger.Warn("Rate limit exceeded for client %s, dropping %s", clientID, n.Method)
			continue
		}
		if m.sender.SendNotification(clientID, n) {
			m.mu.Lock()
			if client, ok := m.clients[clientID]; ok {
				client.LastNotification = m.now()
				client.NotificationCount++
			}
			m.mu.Unlock()
		} else {
			logger.Debug("Failed to send notification to client %s", clientID)
		}
	}
}

// checkRateLimit counts the notification against the client's current
// 60-second window and reports whether it may be sent. The window is fixed,
// not sliding: it starts at registration or at the first notification after
// the previous window ended, and the count resets when a new window starts.
func (m *Manager) checkRateLimit(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[clientID]
	if !ok {
		return false
	}

	now := m.now()
	if now.Sub(client.rateWindowStart) >= rateLimitWindow {
		client.rateWindowStart = now
		client.rateCount = 0
	}
	if client.rateCount >= m.rateLimitPerMinute {
		return false
	}
	client.rateCount++
	return true
}

// cleanupLoop drops clients with no subscriptions that have not received a
// notification for five minutes.
func (m *Manager) cleanupLoop(done <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.cleanupInactive()
		}
	}
}

func (m *Manager) cleanupInactive() {
	now := m.now()

	var inactive []string
	m.mu.Lock()
	for id, client := range m.clients {
		if now.Sub(client.LastNotification) > inactiveThreshold && len(client.Subscriptions) == 0 {
			inactive = append(inactive, id)
		}
	}
	m.mu.Unlock()

	for _, id := range inactive {
		m.UnregisterClient(id)
		logger.Debug("Cleaned up inactive notification client %s", id)
	}
}

// ClientCount returns the number of registered clients
func (m *Manager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
