package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/dhamidi/wok/wollok/parser"
)

// TreeEncoder renders a node as an indented kind-per-line tree, one
// child per line below its parent.
type TreeEncoder struct {
	w             io.Writer
	showPositions bool
}

func NewTreeEncoder(w io.Writer) *TreeEncoder {
	return &TreeEncoder{w: w}
}

func (e *TreeEncoder) WithPositions() *TreeEncoder {
	e.showPositions = true
	return e
}

func (e *TreeEncoder) Encode(node parser.Node) error {
	_, err := io.WriteString(e.w, e.render(node))
	return err
}

func (e *TreeEncoder) render(node parser.Node) string {
	var b strings.Builder
	e.write(&b, node, 0)
	return b.String()
}

func (e *TreeEncoder) write(b *strings.Builder, node parser.Node, indent int) {
	if node == nil {
		return
	}
	for i := 0; i < indent; i++ {
		b.WriteString("  ")
	}
	b.WriteString(parser.Kind(node))
	if label := nodeLabel(node); label != "" {
		b.WriteString(" ")
		b.WriteString(label)
	}
	if e.showPositions {
		src := node.Source()
		fmt.Fprintf(b, " [%s-%s]", src.Start, src.End)
	}
	b.WriteString("\n")

	for _, prob := range problemsOf(node) {
		for i := 0; i < indent+1; i++ {
			b.WriteString("  ")
		}
		fmt.Fprintf(b, "Problem %s [%s-%s]\n", prob.Code, prob.Src.Start, prob.Src.End)
	}

	for _, child := range childrenOf(node) {
		e.write(b, child, indent+1)
	}
}

func nodeLabel(node parser.Node) string {
	switch n := node.(type) {
	case *parser.Package:
		return n.Name
	case *parser.Import:
		if n.IsGeneric {
			return n.Entity.Name + ".*"
		}
		return n.Entity.Name
	case *parser.Class:
		return n.Name
	case *parser.Singleton:
		return n.Name
	case *parser.Mixin:
		return n.Name
	case *parser.Program:
		return n.Name
	case *parser.Describe:
		return n.Name
	case *parser.Test:
		if n.Only {
			return "only " + n.Name
		}
		return n.Name
	case *parser.Variable:
		if n.ReadOnly {
			return "const " + n.Name
		}
		return "var " + n.Name
	case *parser.Field:
		label := "var "
		if n.ReadOnly {
			label = "const "
		}
		if n.Property {
			label += "property "
		}
		return label + n.Name
	case *parser.Method:
		label := n.Name
		if n.Override {
			label = "override " + label
		}
		if n.Native {
			label += " native"
		}
		return label
	case *parser.Parameter:
		if n.VarArg {
			return n.Name + "..."
		}
		return n.Name
	case *parser.NamedArgument:
		return n.Name
	case *parser.Reference:
		return n.Name
	case *parser.Send:
		return n.Message
	case *parser.Literal:
		if n.Closure() != nil {
			return "object"
		}
		if n.Value == nil {
			return "null"
		}
		return fmt.Sprintf("%v", n.Value)
	}
	return ""
}

func problemsOf(node parser.Node) []*parser.Problem {
	switch n := node.(type) {
	case *parser.Package:
		return n.Problems
	case *parser.Class:
		return n.Problems
	case *parser.Singleton:
		return n.Problems
	case *parser.Mixin:
		return n.Problems
	case *parser.Describe:
		return n.Problems
	}
	return nil
}

func childrenOf(node parser.Node) []parser.Node {
	var out []parser.Node
	parser.Children(node, func(child parser.Node) {
		out = append(out, child)
	})
	return out
}
