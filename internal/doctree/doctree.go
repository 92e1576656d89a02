package doctree

import "strings"

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections, in document order

	// Verbatim trees keep blank paragraphs.
	Verbatim bool
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title      string     // Heading text (empty for untitled blocks)
	Paragraphs []string   // Body paragraphs directly under this heading
	Page       int        // Source page (0 if N/A)
	Children   []*DocNode // Subsections
}

// Paragraphs flattens the tree in reading order. A heading is emitted as a
// paragraph of its own, before its body and subsections. Blank paragraphs
// are dropped unless the tree is Verbatim.
func (t *DocTree) Paragraphs() []string {
	var out []string
	var walk func(n *DocNode)
	walk = func(n *DocNode) {
		if s := strings.TrimSpace(n.Title); s != "" {
			out = append(out, n.Title)
		}
		for _, p := range n.Paragraphs {
			if t.Verbatim || strings.TrimSpace(p) != "" {
				out = append(out, p)
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, c := range t.Children {
		walk(c)
	}
	return out
}

// Text joins the flattened paragraphs with a single newline.
func (t *DocTree) Text() string {
	return strings.Join(t.Paragraphs(), "\n")
}

// Builder assembles a DocTree from a linear stream of headings and
// paragraphs, nesting sections by heading level.
type Builder struct {
	root      *DocNode
	stack     []stackEntry
	keepBlank bool
}

type stackEntry struct {
	node  *DocNode
	level int
}

func NewBuilder() *Builder {
	root := &DocNode{}
	return &Builder{root: root, stack: []stackEntry{{node: root, level: 0}}}
}

// NewVerbatimBuilder returns a Builder that keeps blank paragraphs, for
// formats where an empty paragraph is content.
func NewVerbatimBuilder() *Builder {
	b := NewBuilder()
	b.keepBlank = true
	return b
}

// Heading opens a new section at level (1 = top).
func (b *Builder) Heading(level int, title string) {
	node := &DocNode{Title: title}
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, node)
	b.stack = append(b.stack, stackEntry{node: node, level: level})
}

// Paragraph appends body text to the current section. Text before the
// first heading lands in an untitled leading node.
func (b *Builder) Paragraph(text string) {
	if !b.keepBlank && strings.TrimSpace(text) == "" {
		return
	}
	top := b.stack[len(b.stack)-1].node
	if top == b.root {
		if len(b.root.Children) == 0 {
			b.root.Children = append(b.root.Children, &DocNode{})
		}
		top = b.root.Children[0]
	}
	top.Paragraphs = append(top.Paragraphs, text)
}

// Tree returns the assembled tree.
func (b *Builder) Tree(title string) *DocTree {
	return &DocTree{Title: title, Children: b.root.Children, Verbatim: b.keepBlank}
}
