package control

import (
	"fmt"
	"strconv"
	"strings"
)

// LayoutKind is the shape of a layout node.
type LayoutKind int

const (
	// LayoutLeaf is a single pane.
	LayoutLeaf LayoutKind = iota
	// LayoutHorizontal splits its children left to right.
	LayoutHorizontal
	// LayoutVertical splits its children top to bottom.
	LayoutVertical
)

// Layout is one node of a window's split tree, parsed from a tmux layout
// descriptor. Leaves carry a pane id; containers carry children. Trees
// returned by ParseLayout are never mutated by this package.
type Layout struct {
	Kind          LayoutKind
	Width, Height int
	X, Y          int
	Pane          int       // valid when Kind == LayoutLeaf
	Children      []*Layout // valid otherwise
}

// ParseLayout parses a layout descriptor such as
//
//	"b25d,80x24,0,0{40x24,0,0,1,39x24,41,0,2}"
//
// The optional four-hex-digit checksum prefix is stripped without being
// verified; tmux recomputes it on every change and a stale value carries
// no information the tree doesn't. Malformed input yields an error and no
// partial tree, and the whole descriptor must be consumed.
func ParseLayout(descriptor string) (*Layout, error) {
	s := descriptor
	if len(s) >= 5 && s[4] == ',' && isHex4(s[:4]) {
		s = s[5:]
	}

	c := &layoutCursor{s: s}
	root, err := c.parseNode()
	if err != nil {
		return nil, fmt.Errorf("layout %q: %w", descriptor, err)
	}
	if c.pos != len(c.s) {
		return nil, fmt.Errorf("layout %q: trailing input at offset %d", descriptor, c.pos)
	}
	if err := checkUniquePanes(root, map[int]bool{}); err != nil {
		return nil, fmt.Errorf("layout %q: %w", descriptor, err)
	}
	return root, nil
}

// LeafPanes returns the pane ids of every leaf in the subtree, left to
// right. Used to diff consecutive layouts of a window.
func (l *Layout) LeafPanes() []int {
	var panes []int
	l.walkLeaves(func(leaf *Layout) {
		panes = append(panes, leaf.Pane)
	})
	return panes
}

// SplitAxis returns the kind of the container directly holding the given
// pane. A root-level leaf reports LayoutLeaf. The second return is false
// when the pane does not appear in the tree.
func (l *Layout) SplitAxis(pane int) (LayoutKind, bool) {
	if l.Kind == LayoutLeaf {
		if l.Pane == pane {
			return LayoutLeaf, true
		}
		return 0, false
	}
	for _, child := range l.Children {
		if child.Kind == LayoutLeaf && child.Pane == pane {
			return l.Kind, true
		}
		if child.Kind != LayoutLeaf {
			if k, ok := child.SplitAxis(pane); ok {
				return k, ok
			}
		}
	}
	return 0, false
}

// String renders the node back to descriptor form without a checksum
// prefix. ParseLayout(l.String()) reproduces an equal tree.
func (l *Layout) String() string {
	var b strings.Builder
	l.render(&b)
	return b.String()
}

// Descriptor renders the node with the checksum prefix tmux expects in
// commands such as select-layout.
func (l *Layout) Descriptor() string {
	body := l.String()
	return fmt.Sprintf("%04x,%s", LayoutChecksum(body), body)
}

// LayoutChecksum computes tmux's 16-bit rotating checksum over a rendered
// layout body (the part after the "hhhh," prefix).
func LayoutChecksum(body string) uint16 {
	var csum uint16
	for i := 0; i < len(body); i++ {
		csum = (csum >> 1) + ((csum & 1) << 15) + uint16(body[i])
	}
	return csum
}

func (l *Layout) render(b *strings.Builder) {
	fmt.Fprintf(b, "%dx%d,%d,%d", l.Width, l.Height, l.X, l.Y)
	switch l.Kind {
	case LayoutLeaf:
		fmt.Fprintf(b, ",%d", l.Pane)
	case LayoutHorizontal:
		l.renderChildren(b, '{', '}')
	case LayoutVertical:
		l.renderChildren(b, '[', ']')
	}
}

func (l *Layout) renderChildren(b *strings.Builder, open, close byte) {
	b.WriteByte(open)
	for i, child := range l.Children {
		if i > 0 {
			b.WriteByte(',')
		}
		child.render(b)
	}
	b.WriteByte(close)
}

func (l *Layout) walkLeaves(fn func(*Layout)) {
	if l.Kind == LayoutLeaf {
		fn(l)
		return
	}
	for _, child := range l.Children {
		child.walkLeaves(fn)
	}
}

func checkUniquePanes(l *Layout, seen map[int]bool) error {
	if l.Kind == LayoutLeaf {
		if seen[l.Pane] {
			return fmt.Errorf("duplicate pane id %d", l.Pane)
		}
		seen[l.Pane] = true
		return nil
	}
	for _, child := range l.Children {
		if err := checkUniquePanes(child, seen); err != nil {
			return err
		}
	}
	return nil
}

// layoutCursor is an explicit position over the descriptor body. Every
// sub-parser either advances past what it consumed or returns an error;
// a failed sub-parse fails the whole parse.
type layoutCursor struct {
	s   string
	pos int
}

// parseNode parses "WxH,X,Y" followed by "{...}", "[...]" or ",pane".
func (c *layoutCursor) parseNode() (*Layout, error) {
	w, err := c.parseInt()
	if err != nil {
		return nil, err
	}
	if err := c.expect('x'); err != nil {
		return nil, err
	}
	h, err := c.parseInt()
	if err != nil {
		return nil, err
	}
	if err := c.expect(','); err != nil {
		return nil, err
	}
	x, err := c.parseInt()
	if err != nil {
		return nil, err
	}
	if err := c.expect(','); err != nil {
		return nil, err
	}
	y, err := c.parseInt()
	if err != nil {
		return nil, err
	}

	node := &Layout{Width: w, Height: h, X: x, Y: y}
	switch b, ok := c.peek(); {
	case ok && b == '{':
		node.Kind = LayoutHorizontal
		node.Children, err = c.parseChildren('{', '}')
	case ok && b == '[':
		node.Kind = LayoutVertical
		node.Children, err = c.parseChildren('[', ']')
	case ok && b == ',':
		c.pos++
		node.Kind = LayoutLeaf
		node.Pane, err = c.parseInt()
	default:
		return nil, fmt.Errorf("offset %d: expected '{', '[' or ',' after cell geometry", c.pos)
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (c *layoutCursor) parseChildren(open, close byte) ([]*Layout, error) {
	if err := c.expect(open); err != nil {
		return nil, err
	}
	var children []*Layout
	for {
		child, err := c.parseNode()
		if err != nil {
			return nil, err
		}
		children = append(children, child)

		b, ok := c.peek()
		switch {
		case ok && b == ',':
			c.pos++
		case ok && b == close:
			c.pos++
			return children, nil
		default:
			return nil, fmt.Errorf("offset %d: expected ',' or %q in child list", c.pos, string(close))
		}
	}
}

func (c *layoutCursor) parseInt() (int, error) {
	start := c.pos
	for c.pos < len(c.s) && c.s[c.pos] >= '0' && c.s[c.pos] <= '9' {
		c.pos++
	}
	if c.pos == start {
		return 0, fmt.Errorf("offset %d: expected number", start)
	}
	n, err := strconv.Atoi(c.s[start:c.pos])
	if err != nil {
		return 0, fmt.Errorf("offset %d: %w", start, err)
	}
	return n, nil
}

func (c *layoutCursor) expect(b byte) error {
	if c.pos >= len(c.s) || c.s[c.pos] != b {
		return fmt.Errorf("offset %d: expected %q", c.pos, string(b))
	}
	c.pos++
	return nil
}

func (c *layoutCursor) peek() (byte, bool) {
	if c.pos >= len(c.s) {
		return 0, false
	}
	return c.s[c.pos], true
}

func isHex4(s string) bool {
	for i := 0; i < 4; i++ {
		b := s[i]
		if (b < '0' || b > '9') && (b < 'a' || b > 'f') && (b < 'A' || b > 'F') {
			return false
		}
	}
	return true
}
