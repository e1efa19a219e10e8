package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quizlive/quizlive/go/internal/models"
	"github.com/quizlive/quizlive/go/internal/quiz"
	"github.com/rs/zerolog/log"
)

// SessionHandler is what the gateway needs from the quiz engine to dispatch
// inbound events.
type SessionHandler interface {
	Join(connID, sessionID string, role models.ConnectionRole, teamName string) error
	Start(sessionID string)
	Answer(connID string, choice int)
	Leave(connID string)
}

// ConnectionManager manages WebSocket connections for quiz sessions. It is
// the transport half of the broadcast gateway: subscribed connections are
// grouped per session, and the engine pushes snapshots through it.
type ConnectionManager struct {
	// Connections subscribed to a session's broadcasts, by session id.
	sessionConnections map[string]map[*Connection]bool
	// All live connections by connection id, for directed sends.
	connsByID map[string]*Connection
	mu        sync.RWMutex

	handler  SessionHandler
	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan broadcastMessage
}

// Connection represents a WebSocket connection to a client. Send is never
// closed: teardown races with concurrent sends, so writers use non-blocking
// enqueues and the pumps exit via done instead.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	done      chan struct{}
	closeOnce sync.Once

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	SessionID string
	Envelope  Envelope
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    20 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[string]map[*Connection]bool),
		connsByID:          make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 256),
	}
}

// SetSessionHandler wires the engine that inbound events are dispatched to.
// Must be called before the first connection is accepted.
func (cm *ConnectionManager) SetSessionHandler(h SessionHandler) {
	cm.handler = h
}

// Start begins processing broadcast messages.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts its
// read/write pumps. The connection only receives session broadcasts after a
// successful join event.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		done:        make(chan struct{}),
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.mu.Lock()
	cm.connsByID[connection.ID] = connection
	cm.mu.Unlock()

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("session_id", sessionID).
		Msg("WebSocket connection established")

	return nil
}

// subscribe adds a connection to its session's broadcast group.
func (cm *ConnectionManager) subscribe(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.SessionID] == nil {
		cm.sessionConnections[conn.SessionID] = make(map[*Connection]bool)
	}
	cm.sessionConnections[conn.SessionID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Int("subscribers", len(cm.sessionConnections[conn.SessionID])).
		Msg("connection subscribed")
}

// unsubscribe removes a connection from its session's broadcast group while
// keeping the connection itself alive.
func (cm *ConnectionManager) unsubscribe(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, ok := cm.sessionConnections[conn.SessionID]; ok {
		delete(connections, conn)
		if len(connections) == 0 {
			delete(cm.sessionConnections, conn.SessionID)
		}
	}
}

// unregisterConnection removes a connection from the manager and informs the
// engine so registry state follows the disconnect.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	removed := false
	if _, ok := cm.connsByID[conn.ID]; ok {
		delete(cm.connsByID, conn.ID)
		removed = true
	}
	if connections, ok := cm.sessionConnections[conn.SessionID]; ok {
		delete(connections, conn)
		if len(connections) == 0 {
			delete(cm.sessionConnections, conn.SessionID)
		}
	}
	cm.mu.Unlock()

	if !removed {
		return
	}
	conn.closeOnce.Do(func() { close(conn.done) })

	if cm.handler != nil {
		cm.handler.Leave(conn.ID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Msg("connection unregistered")
}

// BroadcastState pushes a session snapshot to every subscribed connection.
// Implements quiz.Broadcaster.
func (cm *ConnectionManager) BroadcastState(sessionID string, snap models.SessionSnapshot) {
	env, err := NewEnvelope(EventTypeSessionState, snap)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal session state")
		return
	}
	select {
	case cm.broadcastCh <- broadcastMessage{SessionID: sessionID, Envelope: env}:
	default:
		log.Warn().Str("session_id", sessionID).Msg("broadcast channel full, dropping message")
	}
}

// SendAnswerResult delivers a per-submitter result to one connection only.
// Implements quiz.Broadcaster.
func (cm *ConnectionManager) SendAnswerResult(connID string, correct bool, score int) {
	cm.sendDirect(connID, EventTypeAnswerResult, AnswerResultPayload{Correct: correct, Score: score})
}

// sendDirect enqueues a typed payload for a single connection.
func (cm *ConnectionManager) sendDirect(connID string, t EventType, payload any) {
	cm.mu.RLock()
	conn, ok := cm.connsByID[connID]
	cm.mu.RUnlock()
	if !ok {
		return
	}

	env, err := NewEnvelope(t, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to marshal directed message")
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal envelope")
		return
	}

	select {
	case conn.Send <- data:
	default:
		log.Warn().
			Str("connection_id", connID).
			Msg("connection send buffer full, dropping directed message")
	}
}

// handleBroadcast fans a message out to the session's subscribers. A failure
// to deliver to one connection never aborts delivery to the others.
func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.sessionConnections[message.SessionID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Envelope)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal broadcast envelope")
		return
	}

	var evicted []*Connection
	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			// Connection is slow/dead, close it
			evicted = append(evicted, conn)
		}
	}

	// Evictions run after the fan-out: unregistering invokes handler.Leave,
	// which may enqueue a fresh broadcast, and that must not interleave with
	// this delivery pass.
	for _, conn := range evicted {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Envelope.Type)).
		Str("session_id", message.SessionID).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// ConnectionStats reports active connection counts.
func (cm *ConnectionManager) ConnectionStats() (total int, sessions int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connsByID), len(cm.sessionConnections)
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage dispatches an inbound event to the quiz engine.
func (c *Connection) handleClientMessage(message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Msg("malformed client message")
		return
	}

	handler := c.Manager.handler
	if handler == nil {
		log.Error().Msg("no session handler attached to connection manager")
		return
	}

	switch env.Type {
	case EventTypeJoin:
		var p JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("malformed join payload")
			return
		}
		// Subscribe before dispatching: the join broadcasts the new state,
		// and the joiner must be in the group to receive its own snapshot.
		c.Manager.subscribe(c)
		if err := handler.Join(c.ID, c.SessionID, p.Role, p.TeamName); err != nil {
			c.Manager.unsubscribe(c)
			c.Manager.sendDirect(c.ID, EventTypeErrorMsg, ErrorPayload{Msg: errorMessage(err)})
			return
		}

	case EventTypeStart:
		handler.Start(c.SessionID)

	case EventTypeAnswer:
		var p AnswerPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("malformed answer payload")
			return
		}
		handler.Answer(c.ID, p.Choice)

	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("event_type", string(env.Type)).
			Msg("unknown client event type - ignoring")
	}
}

// errorMessage translates engine errors into user-facing text.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, quiz.ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, quiz.ErrTeamNameRequired):
		return "Team name required"
	default:
		return "Internal error"
	}
}
