package parser

import "encoding/json"

type jsonPosition struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

type jsonSpan struct {
	Start jsonPosition `json:"start"`
	End   jsonPosition `json:"end"`
	File  string       `json:"file,omitempty"`
}

func spanJSON(s Span) jsonSpan {
	return jsonSpan{
		Start: jsonPosition{Offset: s.Start.Offset, Line: s.Start.Line, Column: s.Start.Column},
		End:   jsonPosition{Offset: s.End.Offset, Line: s.End.Line, Column: s.End.Column},
		File:  s.Start.File,
	}
}

// NodeJSON renders a node as a nested map keyed by the attribute names
// of the data model. It backs both MarshalJSON and the CLI encoders.
func NodeJSON(n Node) map[string]any {
	if n == nil {
		return nil
	}
	out := map[string]any{
		"kind":   Kind(n),
		"source": spanJSON(n.Source()),
	}

	switch node := n.(type) {
	case *Package:
		out["name"] = node.Name
		out["imports"] = importsJSON(node.Imports)
		out["members"] = nodesJSON(node.Members)
		out["problems"] = problemsJSON(node.Problems)
	case *Import:
		out["entity"] = NodeJSON(node.Entity)
		out["isGeneric"] = node.IsGeneric
	case *Class:
		out["name"] = node.Name
		if node.Superclass != nil {
			out["superclassRef"] = NodeJSON(node.Superclass)
		}
		out["mixins"] = refsJSON(node.Mixins)
		out["members"] = nodesJSON(node.Members)
		out["problems"] = problemsJSON(node.Problems)
	case *Singleton:
		if node.Name != "" {
			out["name"] = node.Name
		}
		if node.Superclass != nil {
			out["superclassRef"] = NodeJSON(node.Superclass)
		}
		out["supercallArgs"] = nodesJSON(node.SupercallArgs)
		out["mixins"] = refsJSON(node.Mixins)
		out["members"] = nodesJSON(node.Members)
		out["problems"] = problemsJSON(node.Problems)
	case *Mixin:
		out["name"] = node.Name
		out["mixins"] = refsJSON(node.Mixins)
		out["members"] = nodesJSON(node.Members)
		out["problems"] = problemsJSON(node.Problems)
	case *Program:
		out["name"] = node.Name
		out["body"] = NodeJSON(node.Body)
	case *Describe:
		out["name"] = node.Name
		out["members"] = nodesJSON(node.Members)
		out["problems"] = problemsJSON(node.Problems)
	case *Test:
		out["isOnly"] = node.Only
		out["name"] = node.Name
		out["body"] = NodeJSON(node.Body)
	case *Variable:
		out["isReadOnly"] = node.ReadOnly
		out["name"] = node.Name
		if node.Value != nil {
			out["value"] = NodeJSON(node.Value)
		}
	case *Field:
		out["isReadOnly"] = node.ReadOnly
		out["isProperty"] = node.Property
		out["name"] = node.Name
		if node.Value != nil {
			out["value"] = NodeJSON(node.Value)
		}
	case *Method:
		out["isOverride"] = node.Override
		out["name"] = node.Name
		out["parameters"] = paramsJSON(node.Parameters)
		switch {
		case node.Native:
			out["body"] = "native"
		case node.Body != nil:
			out["body"] = NodeJSON(node.Body)
		}
	case *Constructor:
		out["parameters"] = paramsJSON(node.Parameters)
		if node.BaseCall != nil {
			out["baseCall"] = map[string]any{
				"callsSuper": node.BaseCall.CallsSuper,
				"args":       nodesJSON(node.BaseCall.Args),
			}
		}
		out["body"] = NodeJSON(node.Body)
	case *Fixture:
		out["body"] = NodeJSON(node.Body)
	case *Parameter:
		out["name"] = node.Name
		out["isVarArg"] = node.VarArg
	case *NamedArgument:
		out["name"] = node.Name
		out["value"] = NodeJSON(node.Value)
	case *Body:
		out["sentences"] = nodesJSON(node.Sentences)
	case *Return:
		if node.Value != nil {
			out["value"] = NodeJSON(node.Value)
		}
	case *Assignment:
		out["variable"] = NodeJSON(node.Variable)
		out["value"] = NodeJSON(node.Value)
	case *Reference:
		out["name"] = node.Name
	case *Self:
	case *Super:
		out["args"] = nodesJSON(node.Args)
	case *New:
		out["instantiated"] = NodeJSON(node.Instantiated)
		out["args"] = nodesJSON(node.Args)
	case *If:
		out["condition"] = NodeJSON(node.Condition)
		out["thenBody"] = NodeJSON(node.Then)
		if node.Else != nil {
			out["elseBody"] = NodeJSON(node.Else)
		}
	case *Throw:
		out["exception"] = NodeJSON(node.Exception)
	case *Try:
		out["body"] = NodeJSON(node.Body)
		catches := make([]any, 0, len(node.Catches))
		for _, c := range node.Catches {
			catches = append(catches, NodeJSON(c))
		}
		out["catches"] = catches
		if node.Always != nil {
			out["always"] = NodeJSON(node.Always)
		}
	case *Catch:
		out["parameter"] = NodeJSON(node.Parameter)
		if node.ParameterType != nil {
			out["parameterType"] = NodeJSON(node.ParameterType)
		}
		out["body"] = NodeJSON(node.Body)
	case *Send:
		out["receiver"] = NodeJSON(node.Receiver)
		out["message"] = node.Message
		out["args"] = nodesJSON(node.Args)
	case *Literal:
		if s, ok := node.Value.(*Singleton); ok {
			out["value"] = NodeJSON(s)
		} else {
			out["value"] = node.Value
		}
		if node.Code != "" {
			out["code"] = node.Code
		}
	}
	return out
}

func nodesJSON(nodes []Node) []any {
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeJSON(n))
	}
	return out
}

func importsJSON(imports []*Import) []any {
	out := make([]any, 0, len(imports))
	for _, imp := range imports {
		out = append(out, NodeJSON(imp))
	}
	return out
}

func refsJSON(refs []*Reference) []any {
	out := make([]any, 0, len(refs))
	for _, r := range refs {
		out = append(out, NodeJSON(r))
	}
	return out
}

func paramsJSON(params []*Parameter) []any {
	out := make([]any, 0, len(params))
	for _, p := range params {
		out = append(out, NodeJSON(p))
	}
	return out
}

func problemsJSON(problems []*Problem) []any {
	out := make([]any, 0, len(problems))
	for _, p := range problems {
		out = append(out, map[string]any{
			"code":   p.Code,
			"source": spanJSON(p.Src),
		})
	}
	return out
}

func (p *Package) MarshalJSON() ([]byte, error)   { return json.Marshal(NodeJSON(p)) }
func (s *Singleton) MarshalJSON() ([]byte, error) { return json.Marshal(NodeJSON(s)) }
func (c *Class) MarshalJSON() ([]byte, error)     { return json.Marshal(NodeJSON(c)) }
func (m *Mixin) MarshalJSON() ([]byte, error)     { return json.Marshal(NodeJSON(m)) }
