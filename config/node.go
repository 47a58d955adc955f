// Package config defines the parsed configuration tree consumed by the
// linker and the orchestrator. Trees are produced by the feeders package;
// nothing in this package reads raw text.
package config

import (
	"fmt"
	"strings"
)

// Kind classifies a Node.
type Kind int

const (
	KindObject Kind = iota
	KindArray
	KindScalar
	// KindExpression nodes carry source text evaluated by a script converter.
	KindExpression
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindScalar:
		return "scalar"
	case KindExpression:
		return "expression"
	default:
		return "unknown"
	}
}

// None is the literal that marks a value as deliberately absent.
const None = "none"

// Node is one element of a parsed configuration document.
type Node struct {
	Name     string
	Kind     Kind
	Value    string
	Children []*Node
}

func NewObject(name string, children ...*Node) *Node {
	return &Node{Name: name, Kind: KindObject, Children: children}
}

func NewArray(name string, items ...*Node) *Node {
	return &Node{Name: name, Kind: KindArray, Children: items}
}

func NewScalar(name, value string) *Node {
	return &Node{Name: name, Kind: KindScalar, Value: value}
}

func NewExpression(name, source string) *Node {
	return &Node{Name: name, Kind: KindExpression, Value: source}
}

// Child returns the first direct child called name, or nil. Only objects
// have named children.
func (n *Node) Child(name string) *Node {
	if n == nil || n.Kind != KindObject {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Index returns the i-th element of an array node, or nil.
func (n *Node) Index(i int) *Node {
	if n == nil || n.Kind != KindArray || i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	return len(n.Children)
}

// IsNone reports whether n is the scalar literal "none".
func (n *Node) IsNone() bool {
	return n != nil && n.Kind == KindScalar && n.Value == None
}

// Equal reports deep structural equality.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Name != o.Name || n.Kind != o.Kind || n.Value != o.Value || len(n.Children) != len(o.Children) {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Name: n.Name, Kind: n.Kind, Value: n.Value}
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// String renders the tree in an indented, human-readable form.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b, 0)
	return b.String()
}

func (n *Node) write(b *strings.Builder, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	name := n.Name
	if name == "" {
		name = "<root>"
	}
	switch n.Kind {
	case KindScalar:
		fmt.Fprintf(b, "%s%s = %q\n", indent, name, n.Value)
	case KindExpression:
		fmt.Fprintf(b, "%s%s = <expr %s>\n", indent, name, n.Value)
	case KindArray:
		fmt.Fprintf(b, "%s%s [%d]\n", indent, name, len(n.Children))
		for _, c := range n.Children {
			c.write(b, depth+1)
		}
	default:
		fmt.Fprintf(b, "%s%s {}\n", indent, name)
		for _, c := range n.Children {
			c.write(b, depth+1)
		}
	}
}
