package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/config"
	"github.com/livetemplate/pagecraft/internal/document"
	"github.com/livetemplate/pagecraft/internal/toolbar"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 8 << 20 // replace-image payloads travel inline
	sendBuffer     = 64
)

// Envelope is one action request from a client.
type Envelope struct {
	// ID is echoed in the reply so clients can match responses.
	ID         string         `json:"id,omitempty"`
	Action     string         `json:"action"`
	SectionID  string         `json:"sectionId,omitempty"`
	ElementKey string         `json:"elementKey,omitempty"`
	Data       toolbar.Params `json:"data,omitempty"`
}

// Reply answers one Envelope.
type Reply struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	Action   string `json:"action"`
	OK       bool   `json:"ok"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration int64  `json:"duration"` // milliseconds
}

// ChangeMessage pushes one change-log entry to every client.
type ChangeMessage struct {
	Type   string               `json:"type"`
	Change document.ChangeEntry `json:"change"`
}

// Message types sent to clients.
const (
	MessageResult = "result"
	MessageChange = "change"
	MessageReload = "reload"
)

// ActionSocket runs toolbar actions sent over websocket connections and
// pushes every change-log entry to all connected clients.
type ActionSocket struct {
	dispatcher *toolbar.Dispatcher
	store      *document.MemoryStore
	editors    *EditorBinder
	logger     *zap.Logger
	upgrader   websocket.Upgrader

	mu          sync.RWMutex
	clients     map[*wsClient]struct{}
	unsubscribe func()
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewActionSocket creates the socket and subscribes it to store. origins
// lists the browser origins allowed to connect; "*" allows any, and an empty
// list allows same-host origins only.
func NewActionSocket(store *document.MemoryStore, dispatcher *toolbar.Dispatcher, origins []string, logger *zap.Logger) *ActionSocket {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ActionSocket{
		dispatcher: dispatcher,
		store:      store,
		logger:     logger.Named("ws"),
		clients:    make(map[*wsClient]struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: checkOrigin(origins)}
	s.unsubscribe = store.Subscribe(s.pushChange)
	return s
}

func checkOrigin(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// Clients returns the number of connected clients.
func (s *ActionSocket) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close unsubscribes from the store and disconnects every client.
func (s *ActionSocket) Close() {
	s.unsubscribe()
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the connection and serves it until the client leaves.
func (s *ActionSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	s.register(c)
	go s.writePump(c)
	defer s.unregister(c)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("unexpected close", zap.Error(err))
			}
			return
		}
		s.handleMessage(r.Context(), c, message)
	}
}

func (s *ActionSocket) handleMessage(ctx context.Context, c *wsClient, message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		s.reply(c, Reply{Type: MessageResult, Error: "invalid message: " + err.Error()})
		return
	}
	if env.Action == "" {
		s.reply(c, Reply{Type: MessageResult, ID: env.ID, Error: "action required"})
		return
	}

	params := toolbar.Params{}
	for k, v := range env.Data {
		params[k] = v
	}
	if env.SectionID != "" {
		params["sectionId"] = env.SectionID
	}
	if env.ElementKey != "" {
		params["elementKey"] = env.ElementKey
	}

	if config.IsReadOnly() && env.Action != ActionEditorBind && env.Action != ActionEditorUnbind {
		s.reply(c, Reply{Type: MessageResult, ID: env.ID, Action: env.Action, Error: "server is read-only"})
		return
	}
	if s.handleEditor(ctx, c, env, params) {
		return
	}

	res := s.dispatcher.Execute(ctx, env.Action, params)
	out := Reply{
		Type:     MessageResult,
		ID:       env.ID,
		Action:   env.Action,
		OK:       res.OK,
		Error:    res.Error,
		Duration: res.Duration.Milliseconds(),
	}
	if res.Err == nil {
		out.Result = s.target(params)
	}
	s.reply(c, out)
}

// target returns the element or section an action touched, for clients to
// re-render. Deleted targets yield nil.
func (s *ActionSocket) target(p toolbar.Params) any {
	sec, ok := s.store.Section(p.Section())
	if !ok {
		return nil
	}
	if key := p.Element(); key != "" {
		if el, ok := sec.Elements[key]; ok {
			return el
		}
		return nil
	}
	return sec
}

func (s *ActionSocket) reply(c *wsClient, r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		s.logger.Error("failed to marshal reply", zap.Error(err))
		return
	}
	s.mu.RLock()
	ok := s.enqueue(c, data)
	s.mu.RUnlock()
	if !ok {
		s.unregister(c)
	}
}

func (s *ActionSocket) pushChange(e document.ChangeEntry) {
	data, err := json.Marshal(ChangeMessage{Type: MessageChange, Change: e})
	if err != nil {
		s.logger.Error("failed to marshal change", zap.Error(err))
		return
	}
	s.Broadcast(data)
}

// Broadcast sends data to every client. Clients whose buffers are full are
// disconnected.
func (s *ActionSocket) Broadcast(data []byte) {
	var slow []*wsClient
	s.mu.RLock()
	for c := range s.clients {
		if !s.enqueue(c, data) {
			slow = append(slow, c)
		}
	}
	s.mu.RUnlock()
	for _, c := range slow {
		s.logger.Warn("dropping slow client", zap.String("remote", c.conn.RemoteAddr().String()))
		s.unregister(c)
	}
}

// enqueue must be called with s.mu held. It reports false when the client's
// buffer is full.
func (s *ActionSocket) enqueue(c *wsClient, data []byte) bool {
	if _, ok := s.clients[c]; !ok {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (s *ActionSocket) register(c *wsClient) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Debug("client connected", zap.String("remote", c.conn.RemoteAddr().String()), zap.Int("clients", n))
}

func (s *ActionSocket) unregister(c *wsClient) {
	if s.editors != nil {
		s.editors.Unbind(c)
	}
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Debug("client disconnected", zap.String("remote", c.conn.RemoteAddr().String()), zap.Int("clients", n))
}

// writePump is the connection's only writer.
func (s *ActionSocket) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
