package format

import "github.com/dhamidi/wok/wollok/parser"

type Encoder interface {
	Encode(node parser.Node) error
}
