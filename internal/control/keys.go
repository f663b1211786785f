package control

import "strings"

// KeyCode identifies a key the host resolved from its own input events.
// KeyNone means the event carried no special key, only decoded text.
type KeyCode int

const (
	KeyNone KeyCode = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyEnter
	KeyTab
	KeyBackspace
	KeyEscape
	KeyDelete
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
)

// Modifiers is a bit set of held modifier keys.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModAlt
	ModCtrl
)

// keyNames maps key codes to tmux key notation.
var keyNames = map[KeyCode]string{
	KeyUp:        "Up",
	KeyDown:      "Down",
	KeyLeft:      "Left",
	KeyRight:     "Right",
	KeyEnter:     "Enter",
	KeyTab:       "Tab",
	KeyBackspace: "BSpace",
	KeyEscape:    "Escape",
	KeyDelete:    "DC",
	KeyHome:      "Home",
	KeyEnd:       "End",
	KeyPageUp:    "PPage",
	KeyPageDown:  "NPage",
	KeyF1:        "F1",
	KeyF2:        "F2",
	KeyF3:        "F3",
	KeyF4:        "F4",
	KeyF5:        "F5",
	KeyF6:        "F6",
	KeyF7:        "F7",
	KeyF8:        "F8",
	KeyF9:        "F9",
	KeyF10:       "F10",
	KeyF11:       "F11",
	KeyF12:       "F12",
}

var keyCodes = func() map[string]KeyCode {
	m := make(map[string]KeyCode, len(keyNames))
	for code, name := range keyNames {
		m[name] = code
	}
	return m
}()

// KeyByName resolves a key's wire name ("Up", "BSpace", "F5") back to its
// code. Used by hosts whose input events arrive as names.
func KeyByName(name string) (KeyCode, bool) {
	code, ok := keyCodes[name]
	return code, ok
}

// EncodeKey maps a host key event to a send-keys argument.
//
// Named keys get "S-" and/or "M-" prefixes (shift before alt). A control
// character with ctrl held is rewritten as C-<letter>. Anything else with
// decoded text becomes a single-quoted literal for send-keys -l; literal
// reports that form. ok is false when the event has no encodable form, in
// which case no command should be sent.
func EncodeKey(code KeyCode, mods Modifiers, text string) (arg string, literal bool, ok bool) {
	if name, found := keyNames[code]; found {
		return prefixModifiers(name, mods), false, true
	}

	if mods&ModCtrl != 0 && len(text) == 1 && text[0] < 0x20 {
		letter := (text[0] + 0x40) | 0x20
		return prefixModifiers("C-"+string(letter), mods&^ModCtrl), false, true
	}

	if text != "" {
		return quoteLiteral(text), true, true
	}

	return "", false, false
}

// prefixModifiers applies S- and M- in that fixed order; ctrl is encoded
// into the key name itself before this is called.
func prefixModifiers(name string, mods Modifiers) string {
	if mods&ModAlt != 0 {
		name = "M-" + name
	}
	if mods&ModShift != 0 {
		name = "S-" + name
	}
	return name
}

// quoteLiteral wraps text in single quotes, closing and reopening the
// quote around embedded single quotes the way a shell word would.
func quoteLiteral(text string) string {
	return "'" + strings.ReplaceAll(text, "'", `'\''`) + "'"
}
