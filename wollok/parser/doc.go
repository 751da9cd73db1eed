// Package parser provides an error-tolerant parser for Wollok source
// code.
//
// # Overview
//
// The parser consumes the UTF-8 text of a single file and produces a
// tree of raw, unlinked AST nodes together with a list of recoverable
// parse problems. Nothing is resolved: references carry names, not
// targets, and no validation beyond syntax happens here.
//
// # Architecture
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│   Input     │────▶│   Lexer     │────▶│   Parser    │
//	│  (bytes)    │     │  (tokens)   │     │   (AST)     │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	                           │                   │
//	                           ▼                   ▼
//	                    ┌─────────────┐     ┌─────────────┐
//	                    │  Position   │     │   Problem   │
//	                    │  Tracking   │     │   Recovery  │
//	                    └─────────────┘     └─────────────┘
//
// ParseFile is the whole-file entry point; it always yields a Package.
// ParseExpression and ParseSentence give access to the inner grammars,
// with IsComplete probing for interactive continuation:
//
//	p := parser.ParseSentence(strings.NewReader("1 +"))
//	p.IsComplete() // false, the right operand is missing
//
// # Source Context
//
// Every node carries a Span of two Positions:
//
//	type Position struct {
//	    File   string // origin file name, as given to the parser
//	    Offset int    // 0-based byte offset from start of input
//	    Line   int    // 1-based line number
//	    Column int    // 1-based column, counted in runes per line
//	}
//
// # Desugaring
//
// Several surface forms normalize into message sends and closures:
//
//   - every operator application becomes a Send, with the trimmed
//     operator text as the message
//   - the right operand of || && or and is wrapped in a zero-parameter
//     closure, deferring its evaluation
//   - x += e rewrites to x = x.+(e), and likewise for the other
//     compound assignment operators
//   - [a, b] and #{a, b} become new wollok.lang.List(a, b) and
//     new wollok.lang.Set(a, b)
//   - a closure literal is an anonymous singleton with a single apply
//     method, keeping the verbatim braced source as its code
//   - new A(x) with M1 with M2 is an anonymous singleton literal whose
//     mixins appear in reverse surface order
//
// # Error Recovery
//
// Package, Class, Singleton, Mixin and Describe tolerate malformed
// children. When no legal child starts at the cursor, the parser skips
// forward to the next safeword keyword of the context (consuming
// balanced brace groups whole) and records the skipped region as a
// Problem on the container. Well-formed siblings always survive; the
// problems never propagate past their container.
package parser
