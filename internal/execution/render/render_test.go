package render

import "testing"

func TestHasPlaceholder(t *testing.T) {
	if !HasPlaceholder("before\n{{USER_CODE}}\nafter") {
		t.Fatalf("placeholder not detected")
	}
	if HasPlaceholder("print('x')") {
		t.Fatalf("placeholder detected where none exists")
	}
}

func TestRenderEmptyCode(t *testing.T) {
	got := Render("a\n{{USER_CODE}}\nb", "")
	if got != "a\n\nb" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestRenderWrapsAndIndents(t *testing.T) {
	got := Render("{{USER_CODE}}", "x = 1\nprint(x)")
	want := "try:\n    x = 1\n    print(x)\nexcept Exception:\n    raise\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderKeepsBlankLinesUnindented(t *testing.T) {
	got := Render("{{USER_CODE}}", "a = 1\n\nb = 2")
	want := "try:\n    a = 1\n\n    b = 2\nexcept Exception:\n    raise\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderTrailingNewlineDoesNotAddLine(t *testing.T) {
	withNewline := Render("{{USER_CODE}}", "x = 1\n")
	without := Render("{{USER_CODE}}", "x = 1")
	if withNewline != without {
		t.Fatalf("trailing newline changed output: %q vs %q", withNewline, without)
	}
}

func TestRenderReplacesEveryOccurrence(t *testing.T) {
	got := Render("{{USER_CODE}}--{{USER_CODE}}", "x")
	want := "try:\n    x\nexcept Exception:\n    raise\n--try:\n    x\nexcept Exception:\n    raise\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderIsPure(t *testing.T) {
	template := "head\n{{USER_CODE}}\ntail"
	first := Render(template, "a = 1")
	second := Render(template, "a = 1")
	if first != second {
		t.Fatalf("render not deterministic: %q vs %q", first, second)
	}
}
