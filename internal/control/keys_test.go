package control

import "testing"

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		name    string
		code    KeyCode
		mods    Modifiers
		text    string
		arg     string
		literal bool
		ok      bool
	}{
		{
			name: "plain named key",
			code: KeyEnter,
			arg:  "Enter",
			ok:   true,
		},
		{
			name: "shift alt left",
			code: KeyLeft,
			mods: ModShift | ModAlt,
			arg:  "S-M-Left",
			ok:   true,
		},
		{
			name: "shift only",
			code: KeyTab,
			mods: ModShift,
			arg:  "S-Tab",
			ok:   true,
		},
		{
			name: "alt only",
			code: KeyF5,
			mods: ModAlt,
			arg:  "M-F5",
			ok:   true,
		},
		{
			name: "ctrl c from control code",
			mods: ModCtrl,
			text: "\x03",
			arg:  "C-c",
			ok:   true,
		},
		{
			name: "ctrl a from control code",
			mods: ModCtrl,
			text: "\x01",
			arg:  "C-a",
			ok:   true,
		},
		{
			name: "alt ctrl control code",
			mods: ModCtrl | ModAlt,
			text: "\x04",
			arg:  "M-C-d",
			ok:   true,
		},
		{
			name: "shift alt ctrl control code",
			mods: ModCtrl | ModAlt | ModShift,
			text: "\x04",
			arg:  "S-M-C-d",
			ok:   true,
		},
		{
			name:    "plain text",
			text:    "hello",
			arg:     "'hello'",
			literal: true,
			ok:      true,
		},
		{
			name:    "text with single quote",
			text:    "don't",
			arg:     `'don'\''t'`,
			literal: true,
			ok:      true,
		},
		{
			name:    "ctrl with printable text falls through to literal",
			mods:    ModCtrl,
			text:    "x",
			arg:     "'x'",
			literal: true,
			ok:      true,
		},
		{
			name: "nothing to encode",
			ok:   false,
		},
		{
			name: "modifiers without key or text",
			mods: ModShift | ModCtrl,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arg, literal, ok := EncodeKey(tt.code, tt.mods, tt.text)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if arg != tt.arg {
				t.Errorf("arg = %q, want %q", arg, tt.arg)
			}
			if literal != tt.literal {
				t.Errorf("literal = %v, want %v", literal, tt.literal)
			}
		})
	}
}

func TestEncodeKeyNamedTableComplete(t *testing.T) {
	codes := []KeyCode{
		KeyUp, KeyDown, KeyLeft, KeyRight, KeyEnter, KeyTab, KeyBackspace,
		KeyEscape, KeyDelete, KeyHome, KeyEnd, KeyPageUp, KeyPageDown,
		KeyF1, KeyF2, KeyF3, KeyF4, KeyF5, KeyF6, KeyF7, KeyF8, KeyF9,
		KeyF10, KeyF11, KeyF12,
	}
	for _, code := range codes {
		arg, literal, ok := EncodeKey(code, 0, "")
		if !ok || literal || arg == "" {
			t.Errorf("code %d: got (%q, %v, %v)", code, arg, literal, ok)
		}
	}
}
