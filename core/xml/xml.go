// Package xml wraps xmlquery parsing and XPath querying behind a small
// document/node API for the XML source formats.
//
// Parsing goes through xmlquery, which builds on Go's encoding/xml and
// inherits its security properties: external entities are never fetched.
package xml

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Document is a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node is one node of a parsed document: an element or a text run.
type Node struct {
	node *xmlquery.Node
}

// Parse parses XML data into a Document.
func Parse(data []byte) (*Document, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader parses XML from a reader into a Document.
func ParseReader(r io.Reader) (*Document, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Root returns the document's root element, or nil for an empty document.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath executes an XPath query over the document and returns the matching
// nodes in document order.
func (d *Document) XPath(expr string) ([]*Node, error) {
	if d.root == nil {
		return nil, nil
	}
	return queryAll(d.root, expr)
}

// XPathFirst executes an XPath query and returns the first match, or nil.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	if d.root == nil {
		return nil, nil
	}
	return queryFirst(d.root, expr)
}

// XPath executes an XPath query relative to this node.
func (n *Node) XPath(expr string) ([]*Node, error) {
	if n == nil || n.node == nil {
		return nil, nil
	}
	return queryAll(n.node, expr)
}

// XPathFirst executes an XPath query relative to this node and returns the
// first match, or nil.
func (n *Node) XPathFirst(expr string) (*Node, error) {
	if n == nil || n.node == nil {
		return nil, nil
	}
	return queryFirst(n.node, expr)
}

func queryAll(root *xmlquery.Node, expr string) ([]*Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	nodes, err := xmlquery.QueryAll(root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{node: n}
	}
	return result, nil
}

func queryFirst(root *xmlquery.Node, expr string) (*Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	node, err := xmlquery.Query(root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	if node == nil {
		return nil, nil
	}
	return &Node{node: node}, nil
}

// IsElement reports whether the node is an element.
func (n *Node) IsElement() bool {
	return n != nil && n.node != nil && n.node.Type == xmlquery.ElementNode
}

// IsText reports whether the node is a text or CDATA run.
func (n *Node) IsText() bool {
	if n == nil || n.node == nil {
		return false
	}
	return n.node.Type == xmlquery.TextNode || n.node.Type == xmlquery.CharDataNode
}

// Name returns the element name, or "" for non-elements.
func (n *Node) Name() string {
	if !n.IsElement() {
		return ""
	}
	return n.node.Data
}

// Text returns the node's text content: the run itself for a text node, the
// concatenated descendant text for an element.
func (n *Node) Text() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// Attr returns the value of an attribute, or "" when absent.
func (n *Node) Attr(name string) string {
	if !n.IsElement() {
		return ""
	}
	return n.node.SelectAttr(name)
}

// HasAttr reports whether the element carries the attribute, empty or not.
func (n *Node) HasAttr(name string) bool {
	if !n.IsElement() {
		return false
	}
	for _, attr := range n.node.Attr {
		if attr.Name.Local == name {
			return true
		}
	}
	return false
}

// Attributes returns all attributes keyed by local name.
func (n *Node) Attributes() map[string]string {
	if !n.IsElement() {
		return nil
	}
	attrs := make(map[string]string, len(n.node.Attr))
	for _, attr := range n.node.Attr {
		attrs[attr.Name.Local] = attr.Value
	}
	return attrs
}

// Children returns the child elements, skipping text runs.
func (n *Node) Children() []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// Nodes returns every child in document order, elements and text runs both.
// Mixed-content markup needs the interleaving preserved.
func (n *Node) Nodes() []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var nodes []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.ElementNode, xmlquery.TextNode, xmlquery.CharDataNode:
			nodes = append(nodes, &Node{node: child})
		}
	}
	return nodes
}

// String renders the node for diagnostics.
func (n *Node) String() string {
	if n == nil || n.node == nil {
		return "<nil>"
	}
	if n.IsText() {
		return fmt.Sprintf("text(%q)", n.node.Data)
	}
	var sb strings.Builder
	sb.WriteString("<")
	sb.WriteString(n.node.Data)
	for _, attr := range n.node.Attr {
		fmt.Fprintf(&sb, " %s=%q", attr.Name.Local, attr.Value)
	}
	sb.WriteString(">")
	return sb.String()
}
