package control

import (
	"log/slog"
	"strconv"
	"strings"
)

// Parser converts control-mode lines into notifications. It is stateful:
// a %begin opens a response block and subsequent non-notification lines
// accumulate into the block body until %end or %error closes it.
//
// Parser is not safe for concurrent use; feed it from a single goroutine
// (the transport's reader).
type Parser struct {
	block *responseBlock
}

type responseBlock struct {
	seq   int
	lines []string
}

func NewParser() *Parser {
	return &Parser{}
}

// InBlock reports whether a %begin block is currently open.
func (p *Parser) InBlock() bool {
	return p.block != nil
}

// Feed consumes one line (trailing newline and carriage return already
// stripped) and returns the notification it produced, if any. Lines that
// only advance internal state (%begin, block body lines) and protocol
// noise produce nothing.
func (p *Parser) Feed(line string) (Notification, bool) {
	if !strings.HasPrefix(line, "%") {
		if p.block != nil {
			p.block.lines = append(p.block.lines, line)
		}
		// Noise outside a block is dropped silently.
		return Notification{}, false
	}

	word, rest, _ := strings.Cut(line, " ")
	switch word {
	case "%output":
		return p.parseOutput(line, rest)
	case "%extended-output":
		return p.parseExtendedOutput(line, rest)
	case "%begin":
		p.openBlock(rest)
		return Notification{}, false
	case "%end":
		return p.closeBlock(line, NotifBlockEnd)
	case "%error":
		return p.closeBlock(line, NotifBlockError)
	case "%window-add":
		return p.parseWindow(line, rest, NotifWindowAdd)
	case "%window-close", "%unlinked-window-close":
		return p.parseWindow(line, rest, NotifWindowClose)
	case "%window-renamed":
		return p.parseWindowText(line, rest, NotifWindowRenamed)
	case "%layout-change":
		return p.parseWindowText(line, rest, NotifLayoutChange)
	case "%window-pane-changed":
		return p.parseWindowPaneChanged(line, rest)
	case "%pane-mode-changed":
		return p.parsePaneModeChanged(line, rest)
	case "%session-changed":
		return p.parseSessionChanged(line, rest)
	case "%sessions-changed":
		return Notification{Kind: NotifSessionsChanged, Raw: line}, true
	case "%exit":
		return Notification{Kind: NotifExit, Reason: rest, Raw: line}, true
	default:
		return Notification{Kind: NotifUnrecognized, Raw: line}, true
	}
}

func (p *Parser) parseOutput(line, rest string) (Notification, bool) {
	tok, payload, _ := strings.Cut(rest, " ")
	pane, err := parsePaneID(tok)
	if err != nil {
		return Notification{Kind: NotifUnrecognized, Raw: line}, true
	}
	return Notification{
		Kind:  NotifOutput,
		Pane:  pane,
		Bytes: DecodeOctal([]byte(payload)),
		Raw:   line,
	}, true
}

// parseExtendedOutput handles "%extended-output %pane age ... : data",
// which tmux emits in place of %output when extended output is enabled.
// The header fields before the colon are ignored beyond the pane id.
func (p *Parser) parseExtendedOutput(line, rest string) (Notification, bool) {
	header, payload, found := strings.Cut(rest, " : ")
	if !found {
		return Notification{Kind: NotifUnrecognized, Raw: line}, true
	}
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return Notification{Kind: NotifUnrecognized, Raw: line}, true
	}
	pane, err := parsePaneID(fields[0])
	if err != nil {
		return Notification{Kind: NotifUnrecognized, Raw: line}, true
	}
	return Notification{
		Kind:  NotifOutput,
		Pane:  pane,
		Bytes: DecodeOctal([]byte(payload)),
		Raw:   line,
	}, true
}

// openBlock starts accumulating a response body. rest is "time seq flags";
// only seq is kept. A %begin while a block is already open is a protocol
// violation: the open block cannot be trusted, so it is discarded.
func (p *Parser) openBlock(rest string) {
	if p.block != nil {
		slog.Warn("control: %begin while block open, discarding accumulated block", "seq", p.block.seq)
	}
	seq := 0
	if fields := strings.Fields(rest); len(fields) >= 2 {
		if n, err := strconv.Atoi(fields[1]); err == nil {
			seq = n
		}
	}
	p.block = &responseBlock{seq: seq}
}

func (p *Parser) closeBlock(line string, kind NotificationKind) (Notification, bool) {
	if p.block == nil {
		return Notification{Kind: NotifUnrecognized, Raw: line}, true
	}
	n := Notification{
		Kind: kind,
		Seq:  p.block.seq,
		Body: strings.Join(p.block.lines, "\n"),
		Raw:  line,
	}
	p.block = nil
	return n, true
}

func (p *Parser) parseWindow(line, rest string, kind NotificationKind) (Notification, bool) {
	tok, _, _ := strings.Cut(rest, " ")
	window, err := parseWindowID(tok)
	if err != nil {
		return Notification{Kind: NotifUnrecognized, Raw: line}, true
	}
	return Notification{Kind: kind, Window: window, Raw: line}, true
}

func (p *Parser) parseWindowText(line, rest string, kind NotificationKind) (Notification, bool) {
	tok, text, _ := strings.Cut(rest, " ")
	window, err := parseWindowID(tok)
	if err != nil {
		return Notification{Kind: NotifUnrecognized, Raw: line}, true
	}
	n := Notification{Kind: kind, Window: window, Raw: line}
	if kind == NotifLayoutChange {
		// tmux appends the visible layout and window flags after the
		// layout; only the first field is the descriptor.
		n.Descriptor, _, _ = strings.Cut(text, " ")
	} else {
		n.Name = text
	}
	return n, true
}

func (p *Parser) parseWindowPaneChanged(line, rest string) (Notification, bool) {
	winTok, paneTok, _ := strings.Cut(rest, " ")
	window, err := parseWindowID(winTok)
	if err != nil {
		return Notification{Kind: NotifUnrecognized, Raw: line}, true
	}
	pane, err := parsePaneID(strings.TrimSpace(paneTok))
	if err != nil {
		return Notification{Kind: NotifUnrecognized, Raw: line}, true
	}
	return Notification{Kind: NotifWindowPaneChanged, Window: window, Pane: pane, Raw: line}, true
}

func (p *Parser) parsePaneModeChanged(line, rest string) (Notification, bool) {
	tok, _, _ := strings.Cut(rest, " ")
	pane, err := parsePaneID(tok)
	if err != nil {
		return Notification{Kind: NotifUnrecognized, Raw: line}, true
	}
	return Notification{Kind: NotifPaneModeChanged, Pane: pane, Raw: line}, true
}

func (p *Parser) parseSessionChanged(line, rest string) (Notification, bool) {
	tok, name, _ := strings.Cut(rest, " ")
	session, err := parseSessionID(tok)
	if err != nil {
		return Notification{Kind: NotifUnrecognized, Raw: line}, true
	}
	return Notification{Kind: NotifSessionChanged, Session: session, Name: name, Raw: line}, true
}

// DecodeOctal decodes tmux's octal byte escapes: a backslash followed by
// exactly three octal digits becomes that byte; any other backslash is
// copied literally. Operates on raw bytes because the payload is terminal
// output and need not be valid UTF-8 once decoded.
func DecodeOctal(s []byte) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			v := (s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0')
			out = append(out, v)
			i += 4
			continue
		}
		out = append(out, s[i])
		i++
	}
	return out
}

// EncodeOctal is the inverse of DecodeOctal: backslashes and bytes outside
// printable ASCII are written as \ooo escapes. tmux escapes the same set
// on the wire.
func EncodeOctal(s []byte) []byte {
	out := make([]byte, 0, len(s))
	for _, b := range s {
		if b == '\\' || b < 0x20 || b > 0x7e {
			out = append(out, '\\', '0'+(b>>6)&7, '0'+(b>>3)&7, '0'+b&7)
			continue
		}
		out = append(out, b)
	}
	return out
}

func isOctal(b byte) bool {
	return b >= '0' && b <= '7'
}
