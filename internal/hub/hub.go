// Package hub fans pane output out to websocket clients and routes their
// input, resize and window requests back to the control connection. It is
// the remote rendering surface: each attached browser or host UI is one
// Client, and the hub keeps them all fed from a single multiplexer
// session.
package hub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/user/muxlink/internal/control"
)

const defaultBatchInterval = 100 * time.Millisecond

// Actions is what the hub invokes on behalf of clients. The host wires
// these to the session coordinator; nil entries make the request a no-op.
type Actions struct {
	Input      func(pane int, text string) error
	Key        func(pane int, code control.KeyCode, mods control.Modifiers) error
	Resize     func(pane, cols, rows int)
	Split      func(pane int, horizontal bool) error
	NewWindow  func(name string) error
	KillWindow func(window int) error
	Detach     func() error
}

type clientRegistration struct {
	client   *Client
	snapshot []byte
}

type windowState struct {
	name  string
	panes map[int]bool
}

// Hub owns the client set. All membership changes and deliveries funnel
// through Run's select loop; producers only touch the channels.
type Hub struct {
	clients    map[string]*Client
	register   chan *clientRegistration
	unregister chan *Client
	broadcast  chan frame

	actions Actions
	token   string

	mu      sync.RWMutex
	windows map[int]*windowState

	batcher *OutputBatcher
	running atomic.Bool
	count   atomic.Int64
}

func New(token string, actions Actions) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *clientRegistration, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan frame, 256),
		actions:    actions,
		token:      token,
		windows:    make(map[int]*windowState),
	}
	h.batcher = NewOutputBatcher(defaultBatchInterval, h.sendOutput)
	return h
}

// Run drives the hub until ctx is cancelled, then flushes pending output
// and closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.batcher.FlushAll()
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*Client)
			h.count.Store(0)
			return

		case reg := <-h.register:
			h.clients[reg.client.id] = reg.client
			h.count.Store(int64(len(h.clients)))
			if reg.snapshot != nil {
				select {
				case reg.client.send <- reg.snapshot:
				default:
				}
			}
			go reg.client.writePump(ctx)
			go reg.client.readPump(ctx)
			slog.Info("client connected", "client", reg.client.id, "total", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.count.Store(int64(len(h.clients)))
			slog.Info("client disconnected", "client", client.id, "total", len(h.clients))

		case f := <-h.broadcast:
			for _, c := range h.clients {
				if f.pane != paneAll && !c.wantsPane(f.pane) {
					continue
				}
				select {
				case c.send <- f.data:
				default:
					slog.Warn("client send buffer full, dropping frame", "client", c.id)
				}
			}
		}
	}
}

// HandleWebSocket upgrades the request and hands the connection to the
// hub. Auth is a shared token in the query string.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || token != h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	client := newClient(conn, h)
	snapshot, _ := json.Marshal(WindowsMessage{Type: "windows", List: h.snapshot()})

	select {
	case h.register <- &clientRegistration{client: client, snapshot: snapshot}:
	default:
		slog.Warn("hub not accepting connections")
		conn.Close(websocket.StatusTryAgainLater, "server busy")
	}
}

// Surface returns a control.Surface that feeds one pane's output into the
// hub's batcher. FeedOutput stays cheap: it appends under a mutex and
// never calls back into the coordinator.
func (h *Hub) Surface(pane int) control.Surface {
	return paneSurface{hub: h, pane: pane}
}

type paneSurface struct {
	hub  *Hub
	pane int
}

func (s paneSurface) FeedOutput(p []byte) {
	s.hub.batcher.Add(s.pane, p)
}

func (h *Hub) sendOutput(pane int, data []byte) {
	msg := OutputMessage{
		Type: "output",
		Pane: pane,
		Data: base64.StdEncoding.EncodeToString(data),
		Ts:   time.Now().UnixMilli(),
	}
	h.send(pane, msg)
}

// Topology callbacks. These run on the coordinator's dispatch goroutine;
// they update the window table and queue a fresh snapshot without
// blocking.

func (h *Hub) WindowAdded(window, pane int, name string) {
	h.mu.Lock()
	w, ok := h.windows[window]
	if !ok {
		w = &windowState{panes: make(map[int]bool)}
		h.windows[window] = w
	}
	w.name = name
	w.panes[pane] = true
	h.mu.Unlock()
	h.broadcastWindows()
}

func (h *Hub) WindowClosed(window int) {
	h.mu.Lock()
	delete(h.windows, window)
	h.mu.Unlock()
	h.broadcastWindows()
}

func (h *Hub) WindowRenamed(window int, name string) {
	h.mu.Lock()
	if w, ok := h.windows[window]; ok {
		w.name = name
	}
	h.mu.Unlock()
	h.broadcastWindows()
}

func (h *Hub) PaneAdded(window, pane int) {
	h.mu.Lock()
	w, ok := h.windows[window]
	if !ok {
		w = &windowState{panes: make(map[int]bool)}
		h.windows[window] = w
	}
	w.panes[pane] = true
	h.mu.Unlock()
	h.broadcastWindows()
}

func (h *Hub) PaneRemoved(window, pane int) {
	h.mu.Lock()
	if w, ok := h.windows[window]; ok {
		delete(w.panes, pane)
	}
	h.mu.Unlock()
	h.batcher.Flush(pane)
	h.broadcastWindows()
}

// Disconnected flushes whatever output is still batched, then tells every
// client the session is gone.
func (h *Hub) Disconnected(status int) {
	h.batcher.FlushAll()
	h.mu.Lock()
	h.windows = make(map[int]*windowState)
	h.mu.Unlock()
	h.send(paneAll, DisconnectMessage{Type: "disconnect", Status: status})
}

func (h *Hub) broadcastWindows() {
	h.send(paneAll, WindowsMessage{Type: "windows", List: h.snapshot()})
}

func (h *Hub) snapshot() []WindowInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := make([]WindowInfo, 0, len(h.windows))
	for id, w := range h.windows {
		panes := make([]int, 0, len(w.panes))
		for p := range w.panes {
			panes = append(panes, p)
		}
		sort.Ints(panes)
		list = append(list, WindowInfo{ID: id, Name: w.name, Panes: panes})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (h *Hub) send(pane int, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal hub message", "error", err)
		return
	}
	select {
	case h.broadcast <- frame{pane: pane, data: data}:
	default:
		slog.Warn("broadcast channel full, dropping frame")
	}
}

func (h *Hub) sendError(c *Client, message string) {
	data, err := json.Marshal(ErrorMessage{Type: "error", Message: message})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// handleClientMessage dispatches one parsed client request. It runs on
// the client's read goroutine.
func (h *Hub) handleClientMessage(c *Client, msg ClientMessage) {
	switch msg.Type {
	case "input":
		if msg.Text == "" || h.actions.Input == nil {
			return
		}
		if err := h.actions.Input(msg.Pane, msg.Text); err != nil {
			h.sendError(c, err.Error())
		}
	case "key":
		if h.actions.Key == nil {
			return
		}
		code, ok := control.KeyByName(msg.Key)
		if !ok {
			h.sendError(c, "unknown key: "+msg.Key)
			return
		}
		var mods control.Modifiers
		if msg.Shift {
			mods |= control.ModShift
		}
		if msg.Alt {
			mods |= control.ModAlt
		}
		if msg.Ctrl {
			mods |= control.ModCtrl
		}
		if err := h.actions.Key(msg.Pane, code, mods); err != nil {
			h.sendError(c, err.Error())
		}
	case "resize":
		if msg.Cols > 0 && msg.Rows > 0 && h.actions.Resize != nil {
			h.actions.Resize(msg.Pane, msg.Cols, msg.Rows)
		}
	case "subscribe":
		c.subscribe(msg.Panes)
	case "split":
		if h.actions.Split != nil {
			if err := h.actions.Split(msg.Pane, msg.Horizontal); err != nil {
				h.sendError(c, err.Error())
			}
		}
	case "new_window":
		if h.actions.NewWindow != nil {
			if err := h.actions.NewWindow(msg.Name); err != nil {
				h.sendError(c, err.Error())
			}
		}
	case "kill_window":
		if h.actions.KillWindow != nil {
			if err := h.actions.KillWindow(msg.Window); err != nil {
				h.sendError(c, err.Error())
			}
		}
	case "detach":
		if h.actions.Detach != nil {
			if err := h.actions.Detach(); err != nil {
				h.sendError(c, err.Error())
			}
		}
	default:
		h.sendError(c, "unknown message type: "+msg.Type)
	}
}

// ClientCount reports how many clients are attached right now.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

func (h *Hub) unregisterClient(c *Client) {
	if !h.running.Load() {
		c.conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	select {
	case h.unregister <- c:
	default:
		slog.Warn("unregister channel full, forcing close", "client", c.id)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}
}
