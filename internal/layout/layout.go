// Package layout models the binary-split tree that arranges widgets on a
// Grist page. A tree is either a single leaf (one widget) or a split holding
// two subtrees with an orientation and a size fraction. The serialized form
// is stored on the view record's layoutSpec field.
package layout

import (
	"encoding/json"
	"fmt"
)

// Orientation is the direction of a split.
type Orientation string

const (
	// Vertical stacks the two subtrees top over bottom.
	Vertical Orientation = "vertical"
	// Horizontal places the two subtrees side by side.
	Horizontal Orientation = "horizontal"
)

// Valid reports whether o is a known orientation.
func (o Orientation) Valid() bool {
	return o == Vertical || o == Horizontal
}

// Node is one node of a layout tree. A node is a leaf when both children are
// nil, in which case SectionRef identifies the widget it holds. Every section
// created during a build appears in the final tree exactly once; a tree with
// N leaves has exactly N-1 splits.
type Node struct {
	SectionRef  int64
	Orientation Orientation
	Fraction    float64
	First       *Node
	Second      *Node
}

// Leaf returns a leaf node for the given section.
func Leaf(sectionRef int64) *Node {
	return &Node{SectionRef: sectionRef}
}

// Split combines two subtrees. Fraction is the share of space given to the
// first subtree and must be in (0,1].
func Split(orientation Orientation, fraction float64, first, second *Node) (*Node, error) {
	if !orientation.Valid() {
		return nil, fmt.Errorf("layout: unknown orientation %q", orientation)
	}
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("layout: fraction %v outside (0,1]", fraction)
	}
	if first == nil || second == nil {
		return nil, fmt.Errorf("layout: split requires two subtrees")
	}
	return &Node{
		Orientation: orientation,
		Fraction:    fraction,
		First:       first,
		Second:      second,
	}, nil
}

// VerticalSplit stacks first above second.
func VerticalSplit(first, second *Node, fraction float64) (*Node, error) {
	return Split(Vertical, fraction, first, second)
}

// HorizontalSplit places first to the left of second.
func HorizontalSplit(first, second *Node, fraction float64) (*Node, error) {
	return Split(Horizontal, fraction, first, second)
}

// IsLeaf reports whether the node holds a single section.
func (n *Node) IsLeaf() bool {
	return n.First == nil && n.Second == nil
}

// FirstSectionRef descends into the first child until a leaf is reached.
// It anchors further splits against a composite subtree.
func (n *Node) FirstSectionRef() int64 {
	node := n
	for !node.IsLeaf() {
		node = node.First
	}
	return node.SectionRef
}

// Leaves returns the section refs of all leaves in first-to-second order.
func (n *Node) Leaves() []int64 {
	if n.IsLeaf() {
		return []int64{n.SectionRef}
	}
	return append(n.First.Leaves(), n.Second.Leaves()...)
}

// SplitCount returns the number of split nodes in the tree.
func (n *Node) SplitCount() int {
	if n.IsLeaf() {
		return 0
	}
	return 1 + n.First.SplitCount() + n.Second.SplitCount()
}

type nodeJSON struct {
	Leaf        *int64      `json:"leaf,omitempty"`
	Orientation Orientation `json:"dir,omitempty"`
	Fraction    float64     `json:"size,omitempty"`
	First       *Node       `json:"first,omitempty"`
	Second      *Node       `json:"second,omitempty"`
}

// MarshalJSON encodes the tree in the wire form consumed by the backend:
// {"leaf":N} for leaves, {"dir":...,"size":...,"first":...,"second":...}
// for splits.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n.IsLeaf() {
		ref := n.SectionRef
		return json.Marshal(nodeJSON{Leaf: &ref})
	}
	return json.Marshal(nodeJSON{
		Orientation: n.Orientation,
		Fraction:    n.Fraction,
		First:       n.First,
		Second:      n.Second,
	})
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Leaf != nil {
		*n = Node{SectionRef: *raw.Leaf}
		return nil
	}
	if !raw.Orientation.Valid() {
		return fmt.Errorf("layout: unknown orientation %q", raw.Orientation)
	}
	if raw.Fraction <= 0 || raw.Fraction > 1 {
		return fmt.Errorf("layout: fraction %v outside (0,1]", raw.Fraction)
	}
	if raw.First == nil || raw.Second == nil {
		return fmt.Errorf("layout: split requires two subtrees")
	}
	*n = Node{
		Orientation: raw.Orientation,
		Fraction:    raw.Fraction,
		First:       raw.First,
		Second:      raw.Second,
	}
	return nil
}

// Serialize returns the layout string sent to the backend.
func (n *Node) Serialize() (string, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return "", fmt.Errorf("layout: serialize: %w", err)
	}
	return string(data), nil
}

// Parse decodes a layout string, validating orientations and fractions.
func Parse(spec string) (*Node, error) {
	var node Node
	if err := json.Unmarshal([]byte(spec), &node); err != nil {
		return nil, fmt.Errorf("layout: parse: %w", err)
	}
	return &node, nil
}

// MapLeaves returns a copy of the tree with every leaf value rewritten by f.
// It is used to turn user-supplied trees whose leaves are widget indexes into
// trees over real section refs.
func (n *Node) MapLeaves(f func(int64) (int64, error)) (*Node, error) {
	if n.IsLeaf() {
		ref, err := f(n.SectionRef)
		if err != nil {
			return nil, err
		}
		return Leaf(ref), nil
	}
	first, err := n.First.MapLeaves(f)
	if err != nil {
		return nil, err
	}
	second, err := n.Second.MapLeaves(f)
	if err != nil {
		return nil, err
	}
	return Split(n.Orientation, n.Fraction, first, second)
}

// FractionFromPercent converts a width percentage into a split fraction.
// Zero means "use the default 50%".
func FractionFromPercent(percent float64) (float64, error) {
	if percent == 0 {
		return 0.5, nil
	}
	if percent < 0 || percent > 100 {
		return 0, fmt.Errorf("layout: width percent %v outside (0,100]", percent)
	}
	return percent / 100, nil
}

// StackFromFirst chains sections by repeatedly splitting against the original
// first leaf: each additional section nests under the second child, producing
// a right-deep chain anchored at sections[0]. This matches the behavior the
// custom pattern has always had; chart stacks use StackOntoComposite instead,
// and the two are intentionally not unified.
func StackFromFirst(orientation Orientation, sections []int64) (*Node, error) {
	if len(sections) == 0 {
		return nil, fmt.Errorf("layout: cannot stack zero sections")
	}
	tree := Leaf(sections[len(sections)-1])
	for i := len(sections) - 2; i >= 0; i-- {
		var err error
		tree, err = Split(orientation, 0.5, Leaf(sections[i]), tree)
		if err != nil {
			return nil, err
		}
	}
	return tree, nil
}

// StackOntoComposite chains sections by splitting the growing composite
// against each new section, producing a left-deep chain whose anchor is the
// current composite's first leaf.
func StackOntoComposite(orientation Orientation, sections []int64) (*Node, error) {
	if len(sections) == 0 {
		return nil, fmt.Errorf("layout: cannot stack zero sections")
	}
	tree := Leaf(sections[0])
	for _, ref := range sections[1:] {
		var err error
		tree, err = Split(orientation, 0.5, tree, Leaf(ref))
		if err != nil {
			return nil, err
		}
	}
	return tree, nil
}
