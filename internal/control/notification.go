package control

import (
	"fmt"
	"strconv"
)

// NotificationKind discriminates the control-mode events the parser
// recognizes. One kind per protocol line form.
type NotificationKind int

const (
	NotifOutput NotificationKind = iota
	NotifBlockEnd
	NotifBlockError
	NotifWindowAdd
	NotifWindowClose
	NotifWindowRenamed
	NotifLayoutChange
	NotifWindowPaneChanged
	NotifPaneModeChanged
	NotifSessionChanged
	NotifSessionsChanged
	NotifExit
	NotifUnrecognized
)

func (k NotificationKind) String() string {
	switch k {
	case NotifOutput:
		return "output"
	case NotifBlockEnd:
		return "block-end"
	case NotifBlockError:
		return "block-error"
	case NotifWindowAdd:
		return "window-add"
	case NotifWindowClose:
		return "window-close"
	case NotifWindowRenamed:
		return "window-renamed"
	case NotifLayoutChange:
		return "layout-change"
	case NotifWindowPaneChanged:
		return "window-pane-changed"
	case NotifPaneModeChanged:
		return "pane-mode-changed"
	case NotifSessionChanged:
		return "session-changed"
	case NotifSessionsChanged:
		return "sessions-changed"
	case NotifExit:
		return "exit"
	default:
		return "unrecognized"
	}
}

// Notification is one decoded control-mode event. Which fields are
// meaningful depends on Kind:
//
//	Output             Pane, Bytes
//	BlockEnd/BlockError Seq, Body
//	WindowAdd/Close    Window
//	WindowRenamed      Window, Name
//	LayoutChange       Window, Descriptor
//	WindowPaneChanged  Window, Pane
//	PaneModeChanged    Pane
//	SessionChanged     Session, Name
//	Exit               Reason (may be empty)
//	Unrecognized       Raw
type Notification struct {
	Kind       NotificationKind
	Pane       int
	Window     int
	Session    int
	Seq        int
	Bytes      []byte
	Body       string
	Name       string
	Descriptor string
	Reason     string
	Raw        string
}

// parsePaneID validates and strips the '%' sigil from a pane id token.
func parsePaneID(tok string) (int, error) {
	return parseID(tok, '%', "pane")
}

// parseWindowID validates and strips the '@' sigil from a window id token.
func parseWindowID(tok string) (int, error) {
	return parseID(tok, '@', "window")
}

// parseSessionID validates and strips the '$' sigil from a session id token.
func parseSessionID(tok string) (int, error) {
	return parseID(tok, '$', "session")
}

func parseID(tok string, sigil byte, what string) (int, error) {
	if len(tok) < 2 || tok[0] != sigil {
		return 0, fmt.Errorf("invalid %s id %q", what, tok)
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, tok)
	}
	return n, nil
}
