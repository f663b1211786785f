package control

import (
	"bytes"
	"testing"
)

func TestDecodeOctal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "newline",
			input:    "\\012",
			expected: "\n",
		},
		{
			name:     "ANSI color",
			input:    "\\033[31mred\\033[0m",
			expected: "\x1b[31mred\x1b[0m",
		},
		{
			name:     "space and newline",
			input:    "hello\\040world\\012",
			expected: "hello world\n",
		},
		{
			name:     "no escapes",
			input:    "plain text",
			expected: "plain text",
		},
		{
			name:     "backslash without octal digits",
			input:    "\\not_escape",
			expected: "\\not_escape",
		},
		{
			name:     "incomplete octal",
			input:    "\\01",
			expected: "\\01",
		},
		{
			name:     "digits out of octal range",
			input:    "\\089",
			expected: "\\089",
		},
		{
			name:     "trailing backslash",
			input:    "end\\",
			expected: "end\\",
		},
		{
			name:     "null byte",
			input:    "\\000",
			expected: "\x00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DecodeOctal([]byte(tt.input))
			if string(result) != tt.expected {
				t.Errorf("DecodeOctal(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestOctalRoundTrip(t *testing.T) {
	// Every byte value, plus a lone backslash mid-stream.
	var all []byte
	for i := 0; i < 256; i++ {
		all = append(all, byte(i))
	}
	inputs := [][]byte{
		all,
		[]byte("hello world\n"),
		[]byte(`tail\`),
		[]byte{'\\', 'x', 0x1b, '[', '3', '1', 'm'},
		{},
	}
	for _, in := range inputs {
		got := DecodeOctal(EncodeOctal(in))
		if !bytes.Equal(got, in) {
			t.Errorf("round trip changed %q to %q", in, got)
		}
	}
}

func TestFeedOutput(t *testing.T) {
	p := NewParser()
	n, ok := p.Feed("%output %3 hello\\040world\\012")
	if !ok {
		t.Fatal("expected a notification")
	}
	if n.Kind != NotifOutput {
		t.Fatalf("kind = %v, want output", n.Kind)
	}
	if n.Pane != 3 {
		t.Errorf("pane = %d, want 3", n.Pane)
	}
	if string(n.Bytes) != "hello world\n" {
		t.Errorf("bytes = %q, want %q", n.Bytes, "hello world\n")
	}
}

func TestFeedBlock(t *testing.T) {
	p := NewParser()
	lines := []string{
		"%begin 1700000000 7 1",
		"line one",
		"line two",
	}
	for _, line := range lines {
		if n, ok := p.Feed(line); ok {
			t.Fatalf("line %q produced unexpected notification %v", line, n.Kind)
		}
	}
	if !p.InBlock() {
		t.Fatal("expected an open block")
	}

	n, ok := p.Feed("%end 1700000000 7 1")
	if !ok {
		t.Fatalf("expected a notification from %%end")
	}
	if n.Kind != NotifBlockEnd {
		t.Fatalf("kind = %v, want block-end", n.Kind)
	}
	if n.Seq != 7 {
		t.Errorf("seq = %d, want 7", n.Seq)
	}
	if n.Body != "line one\nline two" {
		t.Errorf("body = %q, want %q", n.Body, "line one\nline two")
	}
	if p.InBlock() {
		t.Error("block should be closed")
	}
}

func TestFeedBlockError(t *testing.T) {
	p := NewParser()
	p.Feed("%begin 1700000000 12 1")
	p.Feed("no such command")
	n, ok := p.Feed("%error 1700000000 12 1")
	if !ok || n.Kind != NotifBlockError {
		t.Fatalf("got (%v, %v), want block-error", n.Kind, ok)
	}
	if n.Seq != 12 || n.Body != "no such command" {
		t.Errorf("got seq=%d body=%q", n.Seq, n.Body)
	}
}

func TestFeedBeginWhileBlockOpen(t *testing.T) {
	p := NewParser()
	p.Feed("%begin 1700000000 1 1")
	p.Feed("stale line")
	p.Feed("%begin 1700000000 2 1")
	p.Feed("fresh line")
	n, ok := p.Feed("%end 1700000000 2 1")
	if !ok || n.Kind != NotifBlockEnd {
		t.Fatal("expected block-end")
	}
	if n.Seq != 2 {
		t.Errorf("seq = %d, want 2 (new block wins)", n.Seq)
	}
	if n.Body != "fresh line" {
		t.Errorf("body = %q, stale block should be discarded", n.Body)
	}
}

func TestFeedEndWithoutBlock(t *testing.T) {
	p := NewParser()
	n, ok := p.Feed("%end 1700000000 3 1")
	if !ok || n.Kind != NotifUnrecognized {
		t.Fatalf("got (%v, %v), want unrecognized", n.Kind, ok)
	}
}

func TestFeedNoiseOutsideBlock(t *testing.T) {
	p := NewParser()
	if n, ok := p.Feed("stray line"); ok {
		t.Fatalf("noise produced notification %v", n.Kind)
	}
	if n, ok := p.Feed(""); ok {
		t.Fatalf("empty line produced notification %v", n.Kind)
	}
}

func TestFeedNotifications(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		kind    NotificationKind
		window  int
		pane    int
		session int
		text    string
	}{
		{
			name:   "window-add",
			input:  "%window-add @4",
			kind:   NotifWindowAdd,
			window: 4,
		},
		{
			name:   "window-close",
			input:  "%window-close @4",
			kind:   NotifWindowClose,
			window: 4,
		},
		{
			name:   "unlinked window-close",
			input:  "%unlinked-window-close @9",
			kind:   NotifWindowClose,
			window: 9,
		},
		{
			name:   "window-renamed with spaces",
			input:  "%window-renamed @2 my window name",
			kind:   NotifWindowRenamed,
			window: 2,
			text:   "my window name",
		},
		{
			name:   "layout-change keeps only the descriptor",
			input:  "%layout-change @1 b25d,80x24,0,0,1 b25d,80x24,0,0,1 *",
			kind:   NotifLayoutChange,
			window: 1,
			text:   "b25d,80x24,0,0,1",
		},
		{
			name:   "window-pane-changed",
			input:  "%window-pane-changed @3 %7",
			kind:   NotifWindowPaneChanged,
			window: 3,
			pane:   7,
		},
		{
			name:  "pane-mode-changed",
			input: "%pane-mode-changed %5",
			kind:  NotifPaneModeChanged,
			pane:  5,
		},
		{
			name:    "session-changed",
			input:   "%session-changed $2 work session",
			kind:    NotifSessionChanged,
			session: 2,
			text:    "work session",
		},
		{
			name:  "sessions-changed",
			input: "%sessions-changed",
			kind:  NotifSessionsChanged,
		},
		{
			name:  "exit with reason",
			input: "%exit detached",
			kind:  NotifExit,
			text:  "detached",
		},
		{
			name:  "exit bare",
			input: "%exit",
			kind:  NotifExit,
		},
		{
			name:  "unknown notification",
			input: "%subscription-changed foo bar",
			kind:  NotifUnrecognized,
		},
		{
			name:  "window-add with wrong sigil",
			input: "%window-add %4",
			kind:  NotifUnrecognized,
		},
		{
			name:  "extended output",
			input: "%extended-output %2 100 : data\\012",
			kind:  NotifOutput,
			pane:  2,
			text:  "data\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser()
			n, ok := p.Feed(tt.input)
			if !ok {
				t.Fatal("expected a notification")
			}
			if n.Kind != tt.kind {
				t.Fatalf("kind = %v, want %v", n.Kind, tt.kind)
			}
			if n.Window != tt.window {
				t.Errorf("window = %d, want %d", n.Window, tt.window)
			}
			if n.Pane != tt.pane {
				t.Errorf("pane = %d, want %d", n.Pane, tt.pane)
			}
			if n.Session != tt.session {
				t.Errorf("session = %d, want %d", n.Session, tt.session)
			}
			if tt.text != "" {
				got := n.Name
				switch tt.kind {
				case NotifLayoutChange:
					got = n.Descriptor
				case NotifExit:
					got = n.Reason
				case NotifOutput:
					got = string(n.Bytes)
				}
				if got != tt.text {
					t.Errorf("text = %q, want %q", got, tt.text)
				}
			}
		})
	}
}

func TestParseIDs(t *testing.T) {
	if n, err := parsePaneID("%15"); err != nil || n != 15 {
		t.Errorf("parsePaneID(%%15) = %d, %v", n, err)
	}
	if n, err := parseWindowID("@0"); err != nil || n != 0 {
		t.Errorf("parseWindowID(@0) = %d, %v", n, err)
	}
	if n, err := parseSessionID("$3"); err != nil || n != 3 {
		t.Errorf("parseSessionID($3) = %d, %v", n, err)
	}
	for _, bad := range []string{"", "%", "@", "15", "@x", "%-1", "$1x"} {
		if _, err := parsePaneID(bad); err == nil && bad != "" && bad[0] == '%' {
			t.Errorf("parsePaneID(%q) accepted invalid id", bad)
		}
		if _, err := parseWindowID(bad); err == nil && len(bad) > 0 && bad[0] == '@' {
			t.Errorf("parseWindowID(%q) accepted invalid id", bad)
		}
	}
}
