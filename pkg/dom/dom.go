// Package dom provides present/absent lookups over a goquery document so
// render code never has to nil-check structural nodes by hand.
package dom

import (
	"github.com/PuerkitoBio/goquery"
)

// Node is a single element of a parsed page. The zero Node is absent.
type Node struct {
	sel *goquery.Selection
}

// Wrap returns a Node for the first element of sel, or an absent Node.
func Wrap(sel *goquery.Selection) Node {
	if sel == nil || sel.Length() == 0 {
		return Node{}
	}
	return Node{sel: sel.First()}
}

// Present reports whether the node refers to an element.
func (n Node) Present() bool {
	return n.sel != nil && n.sel.Length() > 0
}

// Selection exposes the underlying goquery selection. It is nil for an absent node.
func (n Node) Selection() *goquery.Selection {
	return n.sel
}

// Lookup returns the first descendant of root matching selector.
func Lookup(root Node, selector string) (Node, bool) {
	if !root.Present() {
		return Node{}, false
	}
	n := Wrap(root.sel.Find(selector))
	return n, n.Present()
}

// Apply runs fn on the first descendant of root matching selector, if any.
// It reports whether fn ran.
func Apply(root Node, selector string, fn func(Node)) bool {
	n, ok := Lookup(root, selector)
	if !ok {
		return false
	}
	fn(n)
	return true
}

func (n Node) FirstChild() (Node, bool) {
	if !n.Present() {
		return Node{}, false
	}
	c := Wrap(n.sel.Children().First())
	return c, c.Present()
}

func (n Node) LastChild() (Node, bool) {
	if !n.Present() {
		return Node{}, false
	}
	c := Wrap(n.sel.Children().Last())
	return c, c.Present()
}

// Clone returns a detached deep copy of the node.
func (n Node) Clone() Node {
	if !n.Present() {
		return Node{}
	}
	return Wrap(n.sel.Clone())
}

func (n Node) Text() string {
	if !n.Present() {
		return ""
	}
	return n.sel.Text()
}

func (n Node) SetText(text string) {
	if n.Present() {
		n.sel.SetText(text)
	}
}

func (n Node) Attr(name string) (string, bool) {
	if !n.Present() {
		return "", false
	}
	return n.sel.Attr(name)
}

func (n Node) SetAttr(name, value string) {
	if n.Present() {
		n.sel.SetAttr(name, value)
	}
}

func (n Node) RemoveAttr(name string) {
	if n.Present() {
		n.sel.RemoveAttr(name)
	}
}

func (n Node) HasClass(class string) bool {
	return n.Present() && n.sel.HasClass(class)
}

// ToggleClass adds class when on is true and removes it otherwise.
func (n Node) ToggleClass(class string, on bool) {
	if !n.Present() {
		return
	}
	if on {
		n.sel.AddClass(class)
	} else {
		n.sel.RemoveClass(class)
	}
}

// Empty removes every child of the node.
func (n Node) Empty() {
	if n.Present() {
		n.sel.Empty()
	}
}

// Append moves child to the end of the node's children.
func (n Node) Append(child Node) {
	if n.Present() && child.Present() {
		n.sel.AppendSelection(child.sel)
	}
}

// Len returns the number of element children.
func (n Node) Len() int {
	if !n.Present() {
		return 0
	}
	return n.sel.Children().Length()
}
