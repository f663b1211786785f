package control

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ErrDisconnected is delivered to response handlers that were still
// pending when the control-mode connection ended.
var ErrDisconnected = errors.New("control: disconnected")

// ErrKeyNotEncodable is returned by SendKeys when the key event has no
// representation in the key-notation grammar.
var ErrKeyNotEncodable = errors.New("control: key event not encodable")

// CommandError carries the body of an %error response block. It reaches
// only the handler that was awaiting that response.
type CommandError struct {
	Body string
}

func (e *CommandError) Error() string {
	return "control: command failed: " + e.Body
}

// Surface is the sink that displays a pane's output. The coordinator only
// buffers and forwards bytes; it never interprets them. FeedOutput is
// called on the coordinator's dispatch goroutine and must not block or
// call back into the coordinator.
type Surface interface {
	FeedOutput(p []byte)
}

// ResponseHandler receives a command's response body. err is nil on
// %end, a *CommandError on %error, and ErrDisconnected if the connection
// ended while the command was pending.
type ResponseHandler func(body string, err error)

// CommandSender is the write side of the coordinator, implemented by
// *Transport. Split out so tests drive the coordinator without a child
// process.
type CommandSender interface {
	Send(command string) error
	Detach() error
}

// CommandRecorder journals commands and their outcomes. Optional; wired
// by hosts that keep a command history.
type CommandRecorder interface {
	CommandSent(command string) int64
	CommandFinished(id int64, body string, err error)
}

// Callbacks is the event surface exposed to the host application. All
// callbacks run on the coordinator's dispatch goroutine, in notification
// order. Nil entries are skipped.
type Callbacks struct {
	OnWindowAdd     func(window, pane int, name string)
	OnWindowClose   func(window int)
	OnWindowRenamed func(window int, name string)
	OnPaneAdd       func(window, pane int)
	OnPaneRemove    func(window, pane int)
	OnDisconnect    func(status int)
}

// listPanesFormat yields tab-separated "@window %pane name" triples. The
// tabs are literal bytes inside the quoted argument; window names are the
// only field that can contain spaces, so they go last.
const listPanesFormat = "#{window_id}\t#{pane_id}\t#{window_name}"

// Coordinator composes transport, parser and topology bookkeeping into
// the command surface the host uses.
//
// Response correlation is purely positional: the protocol's sequence
// numbers are a counter global to every client attached to the server, so
// they cannot match responses to this client's requests. Instead every
// command enqueues a handler slot (nil for fire-and-forget) and every
// block close pops the head. This is correct only because "enqueue, then
// write" happens atomically under one lock and block responses arrive in
// send order; nothing may write to the transport's command stream except
// through send.
type Coordinator struct {
	sender   CommandSender
	cb       Callbacks
	recorder CommandRecorder
	parser   *Parser

	mu           sync.Mutex
	pending      []pendingCommand
	surfaces     map[int]Surface
	staged       map[int][][]byte
	windowPanes  map[int]map[int]bool
	disconnected bool
}

type pendingCommand struct {
	handler  ResponseHandler
	recordID int64
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRecorder journals every command issued through the coordinator.
func WithRecorder(r CommandRecorder) CoordinatorOption {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

func NewCoordinator(sender CommandSender, cb Callbacks, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		sender:      sender,
		cb:          cb,
		parser:      NewParser(),
		surfaces:    make(map[int]Surface),
		staged:      make(map[int][][]byte),
		windowPanes: make(map[int]map[int]bool),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// HandleLine feeds one raw transport line through the parser and
// dispatches the resulting notification. Wire this to the transport's
// onLine callback; it must only ever be called from that one goroutine.
func (c *Coordinator) HandleLine(line string) {
	if n, ok := c.parser.Feed(line); ok {
		c.HandleNotification(n)
	}
}

// HandleNotification is the single dispatch point for decoded events.
func (c *Coordinator) HandleNotification(n Notification) {
	switch n.Kind {
	case NotifOutput:
		c.handleOutput(n.Pane, n.Bytes)
	case NotifBlockEnd:
		c.finishCommand(n.Body, nil)
	case NotifBlockError:
		c.finishCommand(n.Body, &CommandError{Body: n.Body})
	case NotifWindowAdd:
		c.handleWindowAdd(n.Window)
	case NotifWindowClose:
		c.handleWindowClose(n.Window)
	case NotifWindowRenamed:
		if c.cb.OnWindowRenamed != nil {
			c.cb.OnWindowRenamed(n.Window, n.Name)
		}
	case NotifLayoutChange:
		c.handleLayoutChange(n.Window, n.Descriptor)
	case NotifExit:
		c.HandleDisconnect(0)
	default:
		// WindowPaneChanged, PaneModeChanged, SessionChanged,
		// SessionsChanged and Unrecognized have no host-visible
		// effect yet.
	}
}

// Register binds a surface to a pane. Output buffered while the pane had
// no surface is replayed in arrival order before the binding takes
// effect.
func (c *Coordinator) Register(surface Surface, pane int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, chunk := range c.staged[pane] {
		surface.FeedOutput(chunk)
	}
	delete(c.staged, pane)
	c.surfaces[pane] = surface
}

// Unregister drops a pane's surface binding. Output for the pane is
// discarded (not re-buffered) until a surface is registered again.
func (c *Coordinator) Unregister(pane int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.surfaces, pane)
}

// SendCommand issues a command without caring about its response. The
// response block still consumes this command's queue slot, keeping later
// handlers aligned.
func (c *Coordinator) SendCommand(command string) error {
	return c.send(command, nil)
}

// SendCommandFunc issues a command and delivers its response body to
// handler.
func (c *Coordinator) SendCommandFunc(command string, handler ResponseHandler) error {
	return c.send(command, handler)
}

func (c *Coordinator) send(command string, handler ResponseHandler) error {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return ErrDisconnected
	}
	var recordID int64
	if c.recorder != nil {
		recordID = c.recorder.CommandSent(command)
	}
	c.pending = append(c.pending, pendingCommand{handler: handler, recordID: recordID})
	err := c.sender.Send(command)
	if err != nil {
		c.pending = c.pending[:len(c.pending)-1]
	}
	c.mu.Unlock()

	if err != nil && c.recorder != nil {
		c.recorder.CommandFinished(recordID, "", err)
	}
	return err
}

// EnumerateWindows queries every window in the session, records each
// window's pane set, and reports each window through OnWindowAdd with its
// first pane.
func (c *Coordinator) EnumerateWindows() error {
	return c.SendCommandFunc(fmt.Sprintf("list-panes -s -F '%s'", listPanesFormat), func(body string, err error) {
		if err != nil {
			slog.Error("control: enumerate windows", "error", err)
			return
		}
		c.recordWindows(parseListPanes(body))
	})
}

// ResizePane requests new pane dimensions. Callers driving interactive
// resizes should coalesce bursts through a ResizeDebouncer.
func (c *Coordinator) ResizePane(pane, cols, rows int) error {
	return c.SendCommand(fmt.Sprintf("resize-pane -t %%%d -x %d -y %d", pane, cols, rows))
}

// NewWindow opens a window, optionally named. The multiplexer reports it
// back through %window-add, which drives the usual topology callbacks.
func (c *Coordinator) NewWindow(name string) error {
	if name == "" {
		return c.SendCommand("new-window")
	}
	return c.SendCommand("new-window -n " + quoteLiteral(name))
}

// KillWindow closes a window and everything in it.
func (c *Coordinator) KillWindow(window int) error {
	return c.SendCommand(fmt.Sprintf("kill-window -t @%d", window))
}

// SplitPane divides a pane in two. The new pane is announced by the
// window's %layout-change, never by this call. horizontal places the
// panes side by side.
func (c *Coordinator) SplitPane(pane int, horizontal bool) error {
	if horizontal {
		return c.SendCommand(fmt.Sprintf("split-window -h -t %%%d", pane))
	}
	return c.SendCommand(fmt.Sprintf("split-window -t %%%d", pane))
}

// SendKeys encodes a key event and sends it to a pane. Events with no
// encodable form return ErrKeyNotEncodable and send nothing.
func (c *Coordinator) SendKeys(pane int, code KeyCode, mods Modifiers, text string) error {
	arg, literal, ok := EncodeKey(code, mods, text)
	if !ok {
		return ErrKeyNotEncodable
	}
	if literal {
		return c.SendCommand(fmt.Sprintf("send-keys -t %%%d -l %s", pane, arg))
	}
	return c.SendCommand(fmt.Sprintf("send-keys -t %%%d %s", pane, arg))
}

// Detach asks the multiplexer to detach this client.
func (c *Coordinator) Detach() error {
	return c.sender.Detach()
}

// HandleDisconnect ends the session: every still-pending handler fails
// with ErrDisconnected, topology state is dropped, and the host sees one
// disconnect callback. Safe to reach from both the %exit notification and
// the transport's process observer; the first caller wins.
func (c *Coordinator) HandleDisconnect(status int) {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return
	}
	c.disconnected = true
	drained := c.pending
	c.pending = nil
	c.surfaces = make(map[int]Surface)
	c.staged = make(map[int][][]byte)
	c.windowPanes = make(map[int]map[int]bool)
	c.mu.Unlock()

	for _, p := range drained {
		if c.recorder != nil {
			c.recorder.CommandFinished(p.recordID, "", ErrDisconnected)
		}
		if p.handler != nil {
			p.handler("", ErrDisconnected)
		}
	}
	if c.cb.OnDisconnect != nil {
		c.cb.OnDisconnect(status)
	}
}

func (c *Coordinator) handleOutput(pane int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if surface, ok := c.surfaces[pane]; ok {
		surface.FeedOutput(data)
		return
	}
	c.staged[pane] = append(c.staged[pane], data)
}

func (c *Coordinator) finishCommand(body string, cmdErr error) {
	c.mu.Lock()
	if len(c.pending) == 0 {
		// Response with no queued command: the greeting block the
		// server sends on attach, or a response to a command written
		// outside the coordinator. Nothing to correlate.
		c.mu.Unlock()
		return
	}
	p := c.pending[0]
	c.pending = c.pending[1:]
	c.mu.Unlock()

	if c.recorder != nil {
		c.recorder.CommandFinished(p.recordID, body, cmdErr)
	}
	if p.handler != nil {
		p.handler(body, cmdErr)
	}
}

// handleWindowAdd resolves the new window's panes and name before telling
// the host, since the %window-add notification carries only the id.
func (c *Coordinator) handleWindowAdd(window int) {
	cmd := fmt.Sprintf("list-panes -t @%d -F '%s'", window, listPanesFormat)
	err := c.SendCommandFunc(cmd, func(body string, err error) {
		if err != nil {
			slog.Error("control: resolve new window", "window", window, "error", err)
			return
		}
		c.recordWindows(parseListPanes(body))
	})
	if err != nil {
		slog.Error("control: query new window", "window", window, "error", err)
	}
}

func (c *Coordinator) handleWindowClose(window int) {
	c.mu.Lock()
	delete(c.windowPanes, window)
	c.mu.Unlock()
	if c.cb.OnWindowClose != nil {
		c.cb.OnWindowClose(window)
	}
}

// handleLayoutChange diffs the window's new pane set against the tracked
// one. A descriptor that fails to parse is ignored and the previous set
// kept: stale but consistent beats corrupt.
func (c *Coordinator) handleLayoutChange(window int, descriptor string) {
	layout, err := ParseLayout(descriptor)
	if err != nil {
		slog.Debug("control: ignoring malformed layout", "window", window, "error", err)
		return
	}

	panes := layout.LeafPanes()
	newSet := make(map[int]bool, len(panes))
	for _, pane := range panes {
		newSet[pane] = true
	}

	c.mu.Lock()
	oldSet := c.windowPanes[window]
	var added, removed []int
	for _, pane := range panes {
		if !oldSet[pane] {
			added = append(added, pane)
		}
	}
	for pane := range oldSet {
		if !newSet[pane] {
			removed = append(removed, pane)
		}
	}
	sort.Ints(removed)
	c.windowPanes[window] = newSet
	for _, pane := range removed {
		delete(c.surfaces, pane)
		delete(c.staged, pane)
	}
	c.mu.Unlock()

	for _, pane := range added {
		if c.cb.OnPaneAdd != nil {
			c.cb.OnPaneAdd(window, pane)
		}
	}
	for _, pane := range removed {
		if c.cb.OnPaneRemove != nil {
			c.cb.OnPaneRemove(window, pane)
		}
	}
}

// recordWindows stores pane sets parsed from a list-panes body, reports
// each window through OnWindowAdd with its first pane, and reports any
// further panes through OnPaneAdd so pre-split windows arrive whole.
func (c *Coordinator) recordWindows(windows []windowPanes) {
	c.mu.Lock()
	for _, w := range windows {
		set := make(map[int]bool, len(w.panes))
		for _, pane := range w.panes {
			set[pane] = true
		}
		c.windowPanes[w.window] = set
	}
	c.mu.Unlock()

	for _, w := range windows {
		if len(w.panes) == 0 {
			continue
		}
		if c.cb.OnWindowAdd != nil {
			c.cb.OnWindowAdd(w.window, w.panes[0], w.name)
		}
		if c.cb.OnPaneAdd != nil {
			for _, pane := range w.panes[1:] {
				c.cb.OnPaneAdd(w.window, pane)
			}
		}
	}
}

type windowPanes struct {
	window int
	name   string
	panes  []int
}

// parseListPanes reads tab-separated "@window %pane name" triples, one
// pane per line, grouping panes by window in first-seen order. Malformed
// lines are skipped.
func parseListPanes(body string) []windowPanes {
	var order []int
	byWindow := make(map[int]*windowPanes)

	for _, line := range strings.Split(body, "\n") {
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 3 {
			continue
		}
		window, err := parseWindowID(parts[0])
		if err != nil {
			continue
		}
		pane, err := parsePaneID(parts[1])
		if err != nil {
			continue
		}
		w, ok := byWindow[window]
		if !ok {
			w = &windowPanes{window: window, name: parts[2]}
			byWindow[window] = w
			order = append(order, window)
		}
		w.panes = append(w.panes, pane)
	}

	out := make([]windowPanes, 0, len(order))
	for _, window := range order {
		out = append(out, *byWindow[window])
	}
	return out
}
