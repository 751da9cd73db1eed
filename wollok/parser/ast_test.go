package parser

import "testing"

func TestKindNames(t *testing.T) {
	pkg := ParseFile("kinds.wlk", []byte(`class Bird { method fly() = 1 }`))
	if Kind(pkg) != "Package" {
		t.Errorf("package kind: %s", Kind(pkg))
	}
	if Kind(pkg.Members[0]) != "Class" {
		t.Errorf("class kind: %s", Kind(pkg.Members[0]))
	}
}

func TestWalkVisitsEveryNode(t *testing.T) {
	pkg := ParseFile("walk.wlk", []byte(`object o { method m() { return 1 + 2 } }`))
	counts := map[string]int{}
	Walk(pkg, func(n Node) bool {
		counts[Kind(n)]++
		return true
	})
	for _, kind := range []string{"Package", "Singleton", "Method", "Body", "Return", "Send", "Literal"} {
		if counts[kind] == 0 {
			t.Errorf("%s never visited: %v", kind, counts)
		}
	}
}

func TestWalkPrunes(t *testing.T) {
	pkg := ParseFile("prune.wlk", []byte(`object o { method m() { return 1 } }`))
	sawLiteral := false
	Walk(pkg, func(n Node) bool {
		if Kind(n) == "Literal" {
			sawLiteral = true
		}
		return Kind(n) != "Method"
	})
	if sawLiteral {
		t.Errorf("pruning at Method should hide the literal")
	}
}

func TestLiteralClosure(t *testing.T) {
	lit := &Literal{Value: 42.0}
	if lit.Closure() != nil {
		t.Errorf("number literal is not a closure")
	}
	sing := &Singleton{}
	wrapped := &Literal{Value: sing}
	if wrapped.Closure() != sing {
		t.Errorf("singleton literal should expose its singleton")
	}
}

func TestMethodIsAbstract(t *testing.T) {
	if (&Method{Native: true}).IsAbstract() {
		t.Errorf("native is not abstract")
	}
	if (&Method{Body: &Body{}}).IsAbstract() {
		t.Errorf("bodied is not abstract")
	}
	if !(&Method{}).IsAbstract() {
		t.Errorf("no body and not native is abstract")
	}
}
