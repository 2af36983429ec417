// Package page holds the posts page markup. A Template is parsed once at
// startup and every request renders into its own Page.
package page

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"

	"github.com/PuerkitoBio/goquery"

	"postboard/pkg/dom"
)

//go:embed templates/index.html
var templatesFS embed.FS

const defaultTemplate = "templates/index.html"

// Template is the raw page markup. It is immutable and safe for concurrent use.
type Template struct {
	src []byte
}

// Default returns the embedded posts page.
func Default() (*Template, error) {
	b, err := templatesFS.ReadFile(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("read embedded template: %w", err)
	}
	return Parse(bytes.NewReader(b))
}

// Load reads a page template from path. An empty path yields the embedded page.
func Load(path string) (*Template, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

// Parse validates that r holds parseable HTML and keeps it as a template.
func Parse(r io.Reader) (*Template, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if _, err := goquery.NewDocumentFromReader(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return &Template{src: b}, nil
}

// New returns a fresh, independently mutable copy of the page.
func (t *Template) New() (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(t.src))
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	return &Page{doc: doc}, nil
}

// Page is one rendered document. It is not safe for concurrent use.
type Page struct {
	doc *goquery.Document
}

func (p *Page) Root() dom.Node {
	return dom.Wrap(p.doc.Selection)
}

// HTML serialises the whole document.
func (p *Page) HTML() (string, error) {
	return goquery.OuterHtml(p.doc.Selection)
}

func (p *Page) WriteTo(w io.Writer) (int64, error) {
	s, err := p.HTML()
	if err != nil {
		return 0, err
	}
	n, err := io.WriteString(w, s)
	return int64(n), err
}
