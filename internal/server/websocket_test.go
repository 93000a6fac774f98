package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/pagecraft/internal/capability"
	"github.com/livetemplate/pagecraft/internal/config"
	"github.com/livetemplate/pagecraft/internal/document"
)

// wsTestClient is a helper for websocket protocol testing.
type wsTestClient struct {
	conn    *websocket.Conn
	t       *testing.T
	timeout time.Duration
}

func newWSTestClient(t *testing.T, server *httptest.Server, header http.Header) *wsTestClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsTestClient{conn: conn, t: t, timeout: 2 * time.Second}
}

func (c *wsTestClient) send(env Envelope) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(env))
}

func (c *wsTestClient) sendRaw(msg string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

// receive reads one message and returns its type with the raw payload.
func (c *wsTestClient) receive() (string, []byte) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	var head struct {
		Type string `json:"type"`
	}
	require.NoError(c.t, json.Unmarshal(data, &head))
	return head.Type, data
}

// reply reads until the next result, collecting the changes pushed before it.
func (c *wsTestClient) reply() (Reply, []document.ChangeEntry) {
	c.t.Helper()
	var changes []document.ChangeEntry
	for {
		typ, data := c.receive()
		switch typ {
		case MessageResult:
			var r Reply
			require.NoError(c.t, json.Unmarshal(data, &r))
			return r, changes
		case MessageChange:
			var m ChangeMessage
			require.NoError(c.t, json.Unmarshal(data, &m))
			changes = append(changes, m.Change)
		}
	}
}

func newSocketServer(t *testing.T) (*apiFixture, *httptest.Server) {
	t.Helper()
	f := newAPIFixture(t, nil)
	ts := httptest.NewServer(f.server)
	t.Cleanup(ts.Close)
	return f, ts
}

func waitForClients(t *testing.T, s *ActionSocket, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Clients() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestSocketExecutesAction(t *testing.T) {
	f, ts := newSocketServer(t)
	f.add(t, "hero", "headline", "title")
	c := newWSTestClient(t, ts, nil)

	c.send(Envelope{
		ID:         "1",
		Action:     "change-text-align",
		SectionID:  "hero",
		ElementKey: "title",
		Data:       map[string]any{"align": "center"},
	})
	r, changes := c.reply()
	require.True(t, r.OK, r.Error)
	assert.Equal(t, "1", r.ID)
	assert.Equal(t, "change-text-align", r.Action)
	require.NotEmpty(t, changes)
	assert.Equal(t, "title", changes[0].ElementKey)

	el, ok := r.Result.(map[string]any)
	require.True(t, ok, "result should be the touched element")
	assert.Equal(t, "title", el["elementKey"])
}

func TestSocketReportsErrors(t *testing.T) {
	_, ts := newSocketServer(t)
	c := newWSTestClient(t, ts, nil)

	tests := []struct {
		name string
		msg  string
		want string
	}{
		{"malformed", `{"action":`, "invalid message"},
		{"no action", `{"id":"7"}`, "action required"},
		{"unknown action", `{"id":"8","action":"launch-rocket"}`, "launch-rocket"},
		{"missing element", `{"id":"9","action":"delete-element","sectionId":"hero","elementKey":"ghost"}`, "ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.sendRaw(tt.msg)
			r, _ := c.reply()
			assert.False(t, r.OK)
			assert.Contains(t, r.Error, tt.want)
			assert.Nil(t, r.Result)
		})
	}
}

func TestSocketBroadcastsChanges(t *testing.T) {
	f, ts := newSocketServer(t)
	f.add(t, "hero", "text", "body")
	a := newWSTestClient(t, ts, nil)
	b := newWSTestClient(t, ts, nil)
	waitForClients(t, f.server.Socket(), 2)

	a.send(Envelope{Action: "duplicate-element", SectionID: "hero", ElementKey: "body"})
	r, _ := a.reply()
	require.True(t, r.OK, r.Error)

	typ, data := b.receive()
	require.Equal(t, MessageChange, typ)
	var m ChangeMessage
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "hero", m.Change.SectionID)
}

func TestSocketReload(t *testing.T) {
	f, ts := newSocketServer(t)
	c := newWSTestClient(t, ts, nil)
	waitForClients(t, f.server.Socket(), 1)

	f.server.broadcastReload(3)
	typ, data := c.receive()
	assert.Equal(t, MessageReload, typ)
	assert.JSONEq(t, `{"type":"reload","layouts":3}`, string(data))
}

func TestSocketDisconnect(t *testing.T) {
	f, ts := newSocketServer(t)
	c := newWSTestClient(t, ts, nil)
	waitForClients(t, f.server.Socket(), 1)

	c.conn.Close()
	waitForClients(t, f.server.Socket(), 0)
}

func TestSocketRejectsForeignOrigin(t *testing.T) {
	_, ts := newSocketServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {ts.URL}})
	require.NoError(t, err)
	conn.Close()
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"same host", nil, "http://example.com", true},
		{"foreign", nil, "http://evil.example", false},
		{"listed", []string{"http://app.example"}, "http://app.example", true},
		{"wildcard", []string{"*"}, "http://evil.example", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "http://example.com/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(tt.origins)(r))
		})
	}
}

func TestSocketRespectsReadOnly(t *testing.T) {
	f, ts := newSocketServer(t)
	f.add(t, "hero", "headline", "title")
	config.SetReadOnly(true)
	t.Cleanup(func() { config.SetReadOnly(false) })
	c := newWSTestClient(t, ts, nil)

	for _, env := range []Envelope{
		{ID: "1", Action: "delete-section", SectionID: "hero"},
		{ID: "2", Action: "change-text-align", SectionID: "hero", ElementKey: "title", Data: map[string]any{"align": "center"}},
		{ID: "3", Action: ActionEditorKey, Data: map[string]any{"key": "b", "ctrl": true}},
	} {
		c.send(env)
		r, changes := c.reply()
		assert.False(t, r.OK, env.Action)
		assert.Equal(t, env.ID, r.ID)
		assert.Contains(t, r.Error, "read-only")
		assert.Empty(t, changes)
	}
	assert.Contains(t, f.store.SectionOrder(), "hero")
	assert.Empty(t, f.styles.Styles(capability.ElementSelector("hero", "title")))

	// Binding is not a write.
	c.send(Envelope{Action: ActionEditorBind, SectionID: "hero", ElementKey: "title"})
	r, _ := c.reply()
	assert.True(t, r.OK, r.Error)
}

func TestSocketEditorBinding(t *testing.T) {
	f, ts := newSocketServer(t)
	f.add(t, "hero", "headline", "title")
	f.add(t, "hero", "text", "body")
	c := newWSTestClient(t, ts, nil)
	sel := capability.ElementSelector("hero", "title")

	c.send(Envelope{ID: "b", Action: ActionEditorBind, SectionID: "hero", ElementKey: "title"})
	r, _ := c.reply()
	require.True(t, r.OK, r.Error)
	assert.True(t, f.coord.BoundTo("hero", "title"))
	st, ok := r.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, st["bound"])
	assert.Equal(t, "title", st["elementKey"])

	// Text actions on the bound element go through the coordinator.
	c.send(Envelope{Action: "change-text-align", SectionID: "hero", ElementKey: "title", Data: map[string]any{"align": "center"}})
	r, _ = c.reply()
	require.True(t, r.OK, r.Error)
	assert.Equal(t, "center", f.coord.State().TextAlign)
	assert.Equal(t, "center", f.styles.Styles(sel)["text-align"])
	el, err := f.engine.GetElement(context.Background(), "hero", "title")
	require.NoError(t, err)
	assert.NotContains(t, el.Props, "textAlign", "bound path does not persist props")

	c.send(Envelope{Action: ActionEditorKey, Data: map[string]any{"key": "B", "ctrl": true}})
	r, _ = c.reply()
	require.True(t, r.OK, r.Error)
	st = r.Result.(map[string]any)
	assert.Equal(t, true, st["handled"])
	assert.True(t, f.coord.State().Bold)
	assert.Equal(t, "bold", f.styles.Styles(sel)["font-weight"])

	c.send(Envelope{Action: ActionEditorKey, Data: map[string]any{"key": "k", "ctrl": true}})
	r, _ = c.reply()
	require.True(t, r.OK, r.Error)
	assert.Nil(t, r.Result.(map[string]any)["handled"])

	c.send(Envelope{Action: ActionEditorUnbind})
	r, _ = c.reply()
	require.True(t, r.OK, r.Error)
	assert.False(t, f.coord.Bound())

	// Unbound, the same action paints and persists directly.
	c.send(Envelope{Action: "change-text-align", SectionID: "hero", ElementKey: "title", Data: map[string]any{"align": "right"}})
	r, _ = c.reply()
	require.True(t, r.OK, r.Error)
	assert.Equal(t, "center", f.coord.State().TextAlign)
	assert.Equal(t, "right", f.styles.Styles(sel)["text-align"])
}

func TestSocketEditorBindErrors(t *testing.T) {
	_, ts := newSocketServer(t)
	c := newWSTestClient(t, ts, nil)

	tests := []struct {
		name string
		env  Envelope
		want string
	}{
		{"no target", Envelope{Action: ActionEditorBind}, "required"},
		{"missing section", Envelope{Action: ActionEditorBind, SectionID: "ghost", ElementKey: "x"}, "ghost"},
		{"missing element", Envelope{Action: ActionEditorBind, SectionID: "hero", ElementKey: "x"}, "hero/x"},
		{"bad modifier", Envelope{Action: ActionEditorKey, Data: map[string]any{"key": "b", "ctrl": "maybe"}}, "ctrl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.send(tt.env)
			r, _ := c.reply()
			assert.False(t, r.OK)
			assert.Contains(t, r.Error, tt.want)
		})
	}
}

func TestSocketDisconnectReleasesEditor(t *testing.T) {
	f, ts := newSocketServer(t)
	f.add(t, "hero", "text", "body")
	owner := newWSTestClient(t, ts, nil)
	other := newWSTestClient(t, ts, nil)
	waitForClients(t, f.server.Socket(), 2)

	owner.send(Envelope{Action: ActionEditorBind, SectionID: "hero", ElementKey: "body"})
	r, _ := owner.reply()
	require.True(t, r.OK, r.Error)

	// Only the owner can unbind or send keys.
	other.send(Envelope{Action: ActionEditorUnbind})
	r, _ = other.reply()
	require.True(t, r.OK, r.Error)
	assert.True(t, f.coord.Bound())
	other.send(Envelope{Action: ActionEditorKey, Data: map[string]any{"key": "b", "ctrl": true}})
	r, _ = other.reply()
	assert.Nil(t, r.Result.(map[string]any)["handled"])
	assert.False(t, f.coord.State().Bold)

	owner.conn.Close()
	waitForClients(t, f.server.Socket(), 1)
	assert.False(t, f.coord.Bound())
}
