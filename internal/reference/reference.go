// Package reference loads the document every answer is grounded on.
//
// A Document is read once at startup and shared read-only for the life of
// the process, so it has no setters and needs no locking.
package reference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/dgallion1/storyqa/internal/parser"
)

// ErrNoParagraphs is wrapped by DocumentError when a file parses but holds no
// paragraphs at all. For .docx an empty paragraph still counts.
var ErrNoParagraphs = errors.New("document has no paragraphs")

// DocumentError reports a reference document that cannot be used.
type DocumentError struct {
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("reference document %s: %v", e.Path, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// Document is the in-memory reference text.
type Document struct {
	path       string
	title      string
	text       string
	paragraphs int
}

// Load parses the file at path and joins its paragraphs with newlines,
// preserving order.
func Load(path string, opts parser.Options) (*Document, error) {
	p, err := parser.ForFile(path, opts)
	if err != nil {
		return nil, &DocumentError{Path: path, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &DocumentError{Path: path, Err: err}
	}
	defer f.Close()

	tree, err := p.Parse(f, filepath.Base(path))
	if err != nil {
		return nil, &DocumentError{Path: path, Err: err}
	}

	paras := tree.Paragraphs()
	if len(paras) == 0 {
		return nil, &DocumentError{Path: path, Err: ErrNoParagraphs}
	}

	return &Document{
		path:       path,
		title:      tree.Title,
		text:       tree.Text(),
		paragraphs: len(paras),
	}, nil
}

// FromText wraps already-extracted text. Used by tools and tests that do not
// read from disk.
func FromText(title, text string) *Document {
	n := 0
	if text != "" {
		n = 1
		for _, r := range text {
			if r == '\n' {
				n++
			}
		}
	}
	return &Document{title: title, text: text, paragraphs: n}
}

func (d *Document) Path() string { return d.path }
func (d *Document) Title() string { return d.title }
func (d *Document) Text() string { return d.text }
func (d *Document) Paragraphs() int { return d.paragraphs }

// Chars is the length of the text in characters.
func (d *Document) Chars() int { return utf8.RuneCountInString(d.text) }

// Excerpt returns at most n leading characters of the text. The cut is a
// fixed character boundary and may split a word.
func (d *Document) Excerpt(n int) string {
	return Truncate(d.text, n)
}

// Truncate returns the first n characters (runes) of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
