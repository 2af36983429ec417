package dom

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const testHTML = `<html><body>
<ul id="list" class="items"><li class="a">one</li><li class="b">two</li></ul>
<p id="note" data-page="3">hello</p>
</body></html>`

func testRoot(t *testing.T) Node {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(testHTML))
	if err != nil {
		t.Fatalf("failed to parse test document: %v", err)
	}
	return Wrap(doc.Selection)
}

func TestLookup(t *testing.T) {
	root := testRoot(t)

	n, ok := Lookup(root, "#note")
	if !ok {
		t.Fatal("want #note present")
	}
	if n.Text() != "hello" {
		t.Errorf("want text %q, got %q", "hello", n.Text())
	}

	if _, ok := Lookup(root, "#missing"); ok {
		t.Error("want #missing absent")
	}
	if _, ok := Lookup(Node{}, "#note"); ok {
		t.Error("want lookup on absent root to be absent")
	}
}

func TestApply(t *testing.T) {
	root := testRoot(t)

	ran := Apply(root, "#note", func(n Node) { n.SetText("changed") })
	if !ran {
		t.Error("want Apply to run on present node")
	}
	if n, _ := Lookup(root, "#note"); n.Text() != "changed" {
		t.Errorf("want text %q, got %q", "changed", n.Text())
	}

	ran = Apply(root, "#missing", func(n Node) { t.Error("fn must not run for absent node") })
	if ran {
		t.Error("want Apply to report false for absent node")
	}
}

func TestNode_Children(t *testing.T) {
	root := testRoot(t)
	list, _ := Lookup(root, "#list")

	first, ok := list.FirstChild()
	if !ok || !first.HasClass("a") {
		t.Errorf("want first child .a, got present=%v", ok)
	}
	last, ok := list.LastChild()
	if !ok || !last.HasClass("b") {
		t.Errorf("want last child .b, got present=%v", ok)
	}

	note, _ := Lookup(root, "#note")
	if _, ok := note.FirstChild(); ok {
		t.Error("want no element child for text-only node")
	}
}

func TestNode_ToggleClass(t *testing.T) {
	root := testRoot(t)
	note, _ := Lookup(root, "#note")

	note.ToggleClass("disabled", true)
	if !note.HasClass("disabled") {
		t.Error("want disabled class after toggle on")
	}
	note.ToggleClass("disabled", false)
	if note.HasClass("disabled") {
		t.Error("want no disabled class after toggle off")
	}
}

func TestNode_EmptyAndAppend(t *testing.T) {
	root := testRoot(t)
	list, _ := Lookup(root, "#list")
	first, _ := list.FirstChild()
	clone := first.Clone()

	list.Empty()
	if list.Len() != 0 {
		t.Fatalf("want 0 children after Empty, got %d", list.Len())
	}

	list.Append(clone)
	list.Append(Node{})
	if list.Len() != 1 {
		t.Fatalf("want 1 child after Append, got %d", list.Len())
	}
	if got, _ := list.FirstChild(); got.Text() != "one" {
		t.Errorf("want appended clone text %q, got %q", "one", got.Text())
	}
}

func TestNode_AbsentIsSafe(t *testing.T) {
	var n Node
	n.SetText("x")
	n.SetAttr("a", "b")
	n.RemoveAttr("a")
	n.ToggleClass("c", true)
	n.Empty()
	n.Append(n)

	if n.Present() {
		t.Error("want zero node absent")
	}
	if _, ok := n.Attr("a"); ok {
		t.Error("want no attribute on absent node")
	}
	if n.Clone().Present() {
		t.Error("want clone of absent node absent")
	}
}
