package selector

import "testing"

const fixture = `<html><body>
	<main>
		<div class="card">first</div>
		<div class="card featured"><span>a</span><span>b</span><span>c</span></div>
		<div class="card">third</div>
	</main>
	<aside id="side"><p class="note">hi</p></aside>
</body></html>`

func TestResolve_ByID(t *testing.T) {
	doc := parse(t, fixture)
	n := Resolve(doc, "#side")
	if n == nil || n.Data != "aside" {
		t.Fatalf("Resolve(#side): got %v, want <aside>", n)
	}
}

func TestResolve_ChildChainWithNthOfType(t *testing.T) {
	doc := parse(t, fixture)
	n := Resolve(doc, "main>div.card:nth-of-type(2)>span:nth-of-type(3)")
	if n == nil {
		t.Fatal("Resolve: no match")
	}
	if n.FirstChild == nil || n.FirstChild.Data != "c" {
		t.Fatalf("Resolve: matched wrong span, text %v", n.FirstChild)
	}
}

func TestResolve_ClassDisambiguation(t *testing.T) {
	doc := parse(t, fixture)
	n := Resolve(doc, "div.card.featured")
	if n == nil {
		t.Fatal("Resolve: no match")
	}
	if got := nthOfType(n); got != 2 {
		t.Fatalf("Resolve: matched div at position %d, want 2", got)
	}
}

func TestResolve_FirstSegmentMatchesAtAnyDepth(t *testing.T) {
	doc := parse(t, fixture)
	// Truncated selectors drop outer context; the head segment must still
	// bind deep in the tree.
	n := Resolve(doc, "p.note")
	if n == nil || n.Data != "p" {
		t.Fatalf("Resolve(p.note): got %v, want <p>", n)
	}
}

func TestResolve_MissReturnsNil(t *testing.T) {
	doc := parse(t, fixture)
	if n := Resolve(doc, "nav>ul>li"); n != nil {
		t.Fatalf("Resolve: got %v, want nil", n)
	}
	if n := Resolve(doc, "#missing"); n != nil {
		t.Fatalf("Resolve(#missing): got %v, want nil", n)
	}
	if n := Resolve(doc, ""); n != nil {
		t.Fatalf("Resolve(empty): got %v, want nil", n)
	}
}

func TestResolveAll_Order(t *testing.T) {
	doc := parse(t, fixture)
	all := ResolveAll(doc, "div.card")
	if len(all) != 3 {
		t.Fatalf("ResolveAll: got %d matches, want 3", len(all))
	}
}
