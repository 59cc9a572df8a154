package highlight

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
)

// Kind classifies a node of the markup tree.
type Kind string

const (
	KindRoot        Kind = "root"
	KindForm        Kind = "form" // a parenthesized list, including its delimiters
	KindParen       Kind = "paren"
	KindComment     Kind = "comment"
	KindString      Kind = "string"
	KindNumber      Kind = "number"
	KindKeyword     Kind = "keyword"
	KindBuiltin     Kind = "builtin"
	KindSymbol      Kind = "symbol"
	KindOperator    Kind = "operator"
	KindPunctuation Kind = "punctuation"
	KindWhitespace  Kind = "whitespace"
	KindError       Kind = "error"
	KindText        Kind = "text"
)

// Node is an element of the markup tree. Root and form nodes have children; every other
// node is a leaf carrying text.
type Node struct {
	Kind     Kind    `json:"kind"`
	Class    string  `json:"class,omitempty"`
	Text     string  `json:"text,omitempty"`
	Children []*Node `json:"children,omitempty"`

	token chroma.TokenType
}

// IsLeaf reports whether n carries text rather than children.
func (n *Node) IsLeaf() bool {
	return n.Kind != KindRoot && n.Kind != KindForm
}

// Leaves calls fn for every leaf below n, in source order.
func (n *Node) Leaves(fn func(*Node)) {
	if n.IsLeaf() {
		fn(n)
		return
	}
	for _, child := range n.Children {
		child.Leaves(fn)
	}
}

// Markup is the highlighted form of a source text.
type Markup struct {
	Root *Node `json:"root"`

	// Balanced is false when a form is left open or a closing paren has no opener.
	Balanced bool `json:"balanced"`

	// Plain is set when the text could not be tokenized and is rendered unstyled.
	Plain bool `json:"plain,omitempty"`
}

// PlainText concatenates every leaf, reproducing the highlighted source.
func (m *Markup) PlainText() string {
	var b strings.Builder
	m.Root.Leaves(func(n *Node) {
		b.WriteString(n.Text)
	})
	return b.String()
}

// Tokens flattens the markup back into a chroma token stream.
func (m *Markup) Tokens() []chroma.Token {
	var tokens []chroma.Token
	m.Root.Leaves(func(n *Node) {
		tokens = append(tokens, chroma.Token{Type: n.token, Value: n.Text})
	})
	return tokens
}

// plain wraps text in a single unstyled leaf.
func plain(text string) *Markup {
	root := &Node{Kind: KindRoot}
	if text != "" {
		root.Children = []*Node{{Kind: KindText, Text: text, token: chroma.Text}}
	}
	return &Markup{Root: root, Balanced: true, Plain: true}
}
