package parser

import "testing"

func TestLexer(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenKind
	}{
		{"", []TokenKind{TokenEOF}},
		{"class", []TokenKind{TokenClass, TokenEOF}},
		{"class Bird {}", []TokenKind{TokenClass, TokenIdent, TokenLBrace, TokenRBrace, TokenEOF}},
		{"123", []TokenKind{TokenNumber, TokenEOF}},
		{"3.14", []TokenKind{TokenNumber, TokenEOF}},
		{"\"hello\"", []TokenKind{TokenString, TokenEOF}},
		{"'hello'", []TokenKind{TokenString, TokenEOF}},
		{"// comment\nclass", []TokenKind{TokenClass, TokenEOF}},
		{"/* block */ class", []TokenKind{TokenClass, TokenEOF}},
		{"+ - * / % **", []TokenKind{TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent, TokenPow, TokenEOF}},
		{"== != === !==", []TokenKind{TokenEQ, TokenNE, TokenTripleEQ, TokenTripleNE, TokenEOF}},
		{"< <= > >=", []TokenKind{TokenLT, TokenLE, TokenGT, TokenGE, TokenEOF}},
		{"&& || !", []TokenKind{TokenAndOp, TokenOrOp, TokenBang, TokenEOF}},
		{"<< >> <<< >>>", []TokenKind{TokenShl, TokenShr, TokenUShl, TokenUShr, TokenEOF}},
		{".. ..< >.. ...", []TokenKind{TokenRange, TokenRangeLT, TokenRangeGT, TokenEllipsis, TokenEOF}},
		{"<=> <> ?: ->", []TokenKind{TokenSpaceship, TokenDiamond, TokenElvis, TokenArrow, TokenEOF}},
		{"= =>", []TokenKind{TokenAssign, TokenFatArrow, TokenEOF}},
		{"+= -= *= /= %= ||= &&=", []TokenKind{TokenPlusAssign, TokenMinusAssign, TokenStarAssign, TokenSlashAssign, TokenPercentAssign, TokenOrAssign, TokenAndAssign, TokenEOF}},
		{"#{1}", []TokenKind{TokenHashLBrace, TokenNumber, TokenRBrace, TokenEOF}},
		{"a.b", []TokenKind{TokenIdent, TokenDot, TokenIdent, TokenEOF}},
		{"1..2", []TokenKind{TokenNumber, TokenRange, TokenNumber, TokenEOF}},
		{"1.5.even()", []TokenKind{TokenNumber, TokenDot, TokenIdent, TokenLParen, TokenRParen, TokenEOF}},
		{"and or not", []TokenKind{TokenAnd, TokenOr, TokenNot, TokenEOF}},
		{"@", []TokenKind{TokenError, TokenEOF}},
		{"object inherits mixed with", []TokenKind{TokenObject, TokenInherits, TokenMixed, TokenWith, TokenEOF}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lexer := NewLexer([]byte(tt.input), "test.wlk")
			var got []TokenKind
			for {
				tok := lexer.NextToken()
				if tok.Kind != TokenWhitespace && tok.Kind != TokenComment && tok.Kind != TokenLineComment {
					got = append(got, tok.Kind)
				}
				if tok.Kind == TokenEOF {
					break
				}
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("got %d tokens, want %d: %v", len(got), len(tt.expected), got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("token %d: got %v, want %v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestLexerPositions(t *testing.T) {
	lexer := NewLexer([]byte("ab\ncd"), "test.wlk")

	tok := lexer.NextToken()
	if tok.Span.Start.Offset != 0 || tok.Span.Start.Line != 1 || tok.Span.Start.Column != 1 {
		t.Errorf("first token start: %+v", tok.Span.Start)
	}
	if tok.Span.End.Offset != 2 {
		t.Errorf("first token end offset: %d", tok.Span.End.Offset)
	}

	lexer.NextToken() // newline
	tok = lexer.NextToken()
	if tok.Span.Start.Offset != 3 || tok.Span.Start.Line != 2 || tok.Span.Start.Column != 1 {
		t.Errorf("second token start: %+v", tok.Span.Start)
	}
	if tok.Span.Start.File != "test.wlk" {
		t.Errorf("file: %q", tok.Span.Start.File)
	}
}

func TestLexerMultibyteColumns(t *testing.T) {
	// ñ is two bytes but one column
	lexer := NewLexer([]byte("\"ñ\" x"), "test.wlk")
	str := lexer.NextToken()
	if str.Kind != TokenString {
		t.Fatalf("kind: %v", str.Kind)
	}
	if str.Span.End.Offset != 4 {
		t.Errorf("end offset: %d", str.Span.End.Offset)
	}
	if str.Span.End.Column != 4 {
		t.Errorf("end column: %d", str.Span.End.Column)
	}
}

func TestUnquoteString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`"a\nb"`, "a\nb"},
		{`"a\tb"`, "a\tb"},
		{`"a\\b"`, `a\b`},
		{`"a\"b"`, `a"b`},
		{`'a\'b'`, "a'b"},
		{`"a\/b"`, "a/b"},
		{`"\u0041"`, "A"},
		{`"\b\f\r\v"`, "\b\f\r\v"},
		{`""`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := UnquoteString(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}
