package control

import (
	"reflect"
	"testing"
)

func TestParseLayoutLeaf(t *testing.T) {
	// Checksum prefixes are stripped without verification.
	layout, err := ParseLayout("a1b2,80x24,0,0,5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &Layout{Kind: LayoutLeaf, Width: 80, Height: 24, X: 0, Y: 0, Pane: 5}
	if !reflect.DeepEqual(layout, want) {
		t.Errorf("got %+v, want %+v", layout, want)
	}
}

func TestParseLayoutHorizontal(t *testing.T) {
	layout, err := ParseLayout("80x24,0,0{40x24,0,0,1,40x24,40,0,2}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if layout.Kind != LayoutHorizontal {
		t.Fatalf("kind = %v, want horizontal", layout.Kind)
	}
	if len(layout.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(layout.Children))
	}
	if layout.Children[0].Pane != 1 || layout.Children[1].Pane != 2 {
		t.Errorf("panes = %d, %d, want 1, 2", layout.Children[0].Pane, layout.Children[1].Pane)
	}
	if layout.Children[1].X != 40 {
		t.Errorf("second child x = %d, want 40", layout.Children[1].X)
	}
}

func TestParseLayoutNested(t *testing.T) {
	layout, err := ParseLayout("159x48,0,0{79x48,0,0,1,79x48,80,0[79x24,80,0,2,79x23,80,25,3]}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := layout.LeafPanes(); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Errorf("leaf panes = %v, want [1 2 3]", got)
	}
	right := layout.Children[1]
	if right.Kind != LayoutVertical {
		t.Errorf("right child kind = %v, want vertical", right.Kind)
	}
}

func TestParseLayoutErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "truncated geometry", input: "80x24,0"},
		{name: "missing pane id", input: "80x24,0,0"},
		{name: "non-numeric size", input: "80xab,0,0,1"},
		{name: "unterminated split", input: "80x24,0,0{40x24,0,0,1"},
		{name: "mismatched bracket", input: "80x24,0,0{40x24,0,0,1,40x24,40,0,2]"},
		{name: "trailing input", input: "80x24,0,0,1junk"},
		{name: "trailing separator", input: "80x24,0,0,1,"},
		{name: "duplicate pane ids", input: "80x24,0,0{40x24,0,0,1,40x24,40,0,1}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if layout, err := ParseLayout(tt.input); err == nil {
				t.Errorf("ParseLayout(%q) = %+v, want error", tt.input, layout)
			}
		})
	}
}

func TestLayoutRoundTrip(t *testing.T) {
	trees := []*Layout{
		{Kind: LayoutLeaf, Width: 80, Height: 24, Pane: 0},
		{
			Kind: LayoutHorizontal, Width: 161, Height: 48,
			Children: []*Layout{
				{Kind: LayoutLeaf, Width: 80, Height: 48, X: 0, Y: 0, Pane: 1},
				{
					Kind: LayoutVertical, Width: 80, Height: 48, X: 81, Y: 0,
					Children: []*Layout{
						{Kind: LayoutLeaf, Width: 80, Height: 24, X: 81, Y: 0, Pane: 2},
						{Kind: LayoutLeaf, Width: 80, Height: 23, X: 81, Y: 25, Pane: 3},
					},
				},
			},
		},
	}
	for _, tree := range trees {
		parsed, err := ParseLayout(tree.String())
		if err != nil {
			t.Fatalf("ParseLayout(%q): %v", tree.String(), err)
		}
		if !reflect.DeepEqual(parsed, tree) {
			t.Errorf("round trip of %q: got %+v", tree.String(), parsed)
		}

		// With the checksum prefix attached the parse must be identical.
		parsed, err = ParseLayout(tree.Descriptor())
		if err != nil {
			t.Fatalf("ParseLayout(%q): %v", tree.Descriptor(), err)
		}
		if !reflect.DeepEqual(parsed, tree) {
			t.Errorf("checksummed round trip of %q: got %+v", tree.Descriptor(), parsed)
		}
	}
}

func TestSplitAxis(t *testing.T) {
	layout, err := ParseLayout("159x48,0,0{79x48,0,0,1,79x48,80,0[79x24,80,0,2,79x23,80,25,3]}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		pane int
		kind LayoutKind
		ok   bool
	}{
		{pane: 1, kind: LayoutHorizontal, ok: true},
		{pane: 2, kind: LayoutVertical, ok: true},
		{pane: 3, kind: LayoutVertical, ok: true},
		{pane: 9, ok: false},
	}
	for _, tt := range tests {
		kind, ok := layout.SplitAxis(tt.pane)
		if ok != tt.ok || (ok && kind != tt.kind) {
			t.Errorf("SplitAxis(%d) = (%v, %v), want (%v, %v)", tt.pane, kind, ok, tt.kind, tt.ok)
		}
	}

	// A root-level leaf has no containing split.
	leaf := &Layout{Kind: LayoutLeaf, Width: 80, Height: 24, Pane: 4}
	if kind, ok := leaf.SplitAxis(4); !ok || kind != LayoutLeaf {
		t.Errorf("leaf SplitAxis = (%v, %v), want (leaf, true)", kind, ok)
	}
}

func TestLayoutChecksum(t *testing.T) {
	body := "80x24,0,0,5"
	desc := (&Layout{Kind: LayoutLeaf, Width: 80, Height: 24, Pane: 5}).Descriptor()
	if parsed, err := ParseLayout(desc); err != nil || parsed.Pane != 5 {
		t.Fatalf("ParseLayout(%q) = %v, %v", desc, parsed, err)
	}
	// The checksum must be stable for a given body.
	if LayoutChecksum(body) != LayoutChecksum(body) {
		t.Error("checksum not deterministic")
	}
}
