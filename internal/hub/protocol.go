package hub

// Pane output is forwarded as raw terminal bytes; they are rarely valid
// UTF-8, so the wire carries them base64-encoded in OutputMessage.Data.

// OutputMessage carries a batch of output bytes from one pane.
type OutputMessage struct {
	Type string `json:"type"` // "output"
	Pane int    `json:"pane"`
	Data string `json:"data"` // base64
	Ts   int64  `json:"ts"`
}

// WindowsMessage is the full window topology, sent on connect and after
// every topology change.
type WindowsMessage struct {
	Type string       `json:"type"` // "windows"
	List []WindowInfo `json:"list"`
}

// WindowInfo describes one window and the panes it currently holds.
type WindowInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Panes []int  `json:"panes"`
}

// DisconnectMessage tells clients the multiplexer connection ended.
type DisconnectMessage struct {
	Type   string `json:"type"` // "disconnect"
	Status int    `json:"status"`
}

// ErrorMessage reports a per-client protocol error.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

// ClientMessage is every request a client can send, discriminated by Type:
//
//	"input"       pane + text: literal keystrokes
//	"key"         pane + key name (+ shift/alt/ctrl): a special key
//	"resize"      pane + cols + rows
//	"subscribe"   panes to receive output for; empty list means all
//	"split"       pane (+ horizontal): split a pane in two
//	"new_window"  name (optional)
//	"kill_window" window
//	"detach"      detach from the multiplexer
type ClientMessage struct {
	Type       string `json:"type"`
	Pane       int    `json:"pane,omitempty"`
	Window     int    `json:"window,omitempty"`
	Text       string `json:"text,omitempty"`
	Key        string `json:"key,omitempty"`
	Shift      bool   `json:"shift,omitempty"`
	Alt        bool   `json:"alt,omitempty"`
	Ctrl       bool   `json:"ctrl,omitempty"`
	Cols       int    `json:"cols,omitempty"`
	Rows       int    `json:"rows,omitempty"`
	Panes      []int  `json:"panes,omitempty"`
	Name       string `json:"name,omitempty"`
	Horizontal bool   `json:"horizontal,omitempty"`
}

// frame is a marshaled server message queued for broadcast. pane is the
// pane the payload concerns, or paneAll for topology and status messages
// every client gets.
type frame struct {
	pane int
	data []byte
}

const paneAll = -1
