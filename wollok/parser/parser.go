package parser

import (
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

type Option func(*Parser)

func WithFile(path string) Option {
	return func(p *Parser) {
		p.file = path
	}
}

type parseFunc func(*Parser) Node

// Parser consumes one source text and produces raw, unlinked nodes.
// It holds no state between inputs; the file name rides along only for
// span annotations.
type Parser struct {
	file       string
	reader     io.Reader
	input      []byte
	lexer      *Lexer
	tokens     []Token
	pos        int
	entry      parseFunc
	incomplete bool
}

// ParseFile parses a whole Wollok file. It always yields a Package:
// malformed regions are collected as problems on their enclosing
// container instead of failing the parse.
func ParseFile(file string, src []byte) *Package {
	p := &Parser{file: file, input: src}
	p.lexer = NewLexer(src, file)
	p.tokenize()
	return p.parsePackageFile()
}

func ParsePackage(r io.Reader, opts ...Option) *Parser {
	p := &Parser{
		reader: r,
		entry:  func(p *Parser) Node { return p.parsePackageFile() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func ParseExpression(r io.Reader, opts ...Option) *Parser {
	p := &Parser{
		reader: r,
		entry:  (*Parser).parseExpression,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func ParseSentence(r io.Reader, opts ...Option) *Parser {
	p := &Parser{
		reader: r,
		entry:  (*Parser).parseSentence,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parser) readAll() error {
	if p.input != nil {
		return nil
	}
	data, err := io.ReadAll(p.reader)
	if err != nil {
		return err
	}
	p.input = data
	return nil
}

// IsComplete reports whether it is safe to call Finish. Returns false
// when the input ends in the middle of a production, e.g. "1 +".
func (p *Parser) IsComplete() bool {
	if err := p.readAll(); err != nil {
		return false
	}
	if len(p.input) == 0 {
		return false
	}
	savedLexer := p.lexer
	savedTokens := p.tokens
	savedPos := p.pos
	savedIncomplete := p.incomplete

	p.lexer = NewLexer(p.input, p.file)
	p.tokens = nil
	p.pos = 0
	p.incomplete = false
	p.tokenize()
	p.entry(p)

	complete := !p.incomplete

	p.lexer = savedLexer
	p.tokens = savedTokens
	p.pos = savedPos
	p.incomplete = savedIncomplete

	return complete
}

func (p *Parser) Finish() Node {
	if err := p.readAll(); err != nil {
		return nil
	}
	if len(p.input) == 0 {
		return nil
	}
	p.lexer = NewLexer(p.input, p.file)
	p.tokens = nil
	p.pos = 0
	p.incomplete = false
	p.tokenize()
	result := p.entry(p)
	if p.incomplete || result == nil {
		return nil
	}
	return result
}

func (p *Parser) Reset(r io.Reader) {
	p.reader = r
	p.input = nil
	p.lexer = nil
	p.tokens = nil
	p.pos = 0
	p.incomplete = false
}

func (p *Parser) tokenize() {
	for {
		tok := p.lexer.NextToken()
		if tok.Kind == TokenWhitespace || tok.Kind == TokenComment || tok.Kind == TokenLineComment {
			continue
		}
		p.tokens = append(p.tokens, tok)
		if tok.Kind == TokenEOF {
			break
		}
	}
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Kind: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekN(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return Token{Kind: TokenEOF}
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(kind TokenKind) *Token {
	tok := p.peek()
	if tok.Kind == kind {
		p.advance()
		return &tok
	}
	if tok.Kind == TokenEOF {
		p.incomplete = true
	}
	return nil
}

func (p *Parser) expectName() *Token {
	if p.isIdentifierLike() {
		tok := p.advance()
		return &tok
	}
	if p.check(TokenEOF) {
		p.incomplete = true
	}
	return nil
}

func (p *Parser) check(kind TokenKind) bool {
	return p.peek().Kind == kind
}

func (p *Parser) match(kinds ...TokenKind) bool {
	for _, kind := range kinds {
		if p.check(kind) {
			return true
		}
	}
	return false
}

func (p *Parser) isIdentifierLike() bool {
	return isIdentLikeKind(p.peek().Kind)
}

// Contextual keywords double as plain names outside their governing
// production.
func isIdentLikeKind(kind TokenKind) bool {
	switch kind {
	case TokenIdent, TokenOnly, TokenMixed, TokenWith, TokenProperty, TokenThen, TokenAlways:
		return true
	}
	return false
}

func (p *Parser) startPos() Position {
	return p.peek().Span.Start
}

func (p *Parser) spanFrom(start Position) Span {
	if p.pos > 0 && p.pos <= len(p.tokens) {
		return Span{Start: start, End: p.tokens[p.pos-1].Span.End}
	}
	return Span{Start: start, End: start}
}

func packageName(file string) string {
	name := filepath.Base(file)
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name
}

// Operator tables

var infixLevels = [][]TokenKind{
	{TokenOrOp, TokenOr},
	{TokenAndOp, TokenAnd},
	{TokenTripleEQ, TokenEQ, TokenTripleNE, TokenNE},
	{TokenGE, TokenGT, TokenLE, TokenLT},
	{TokenElvis, TokenUShr, TokenShr, TokenRangeGT, TokenDiamond, TokenSpaceship, TokenUShl, TokenShl, TokenRangeLT, TokenRange, TokenArrow},
	{TokenMinus, TokenPlus},
	{TokenSlash, TokenStar},
	{TokenPow, TokenPercent},
}

var lazyOperators = map[string]bool{
	"||":  true,
	"&&":  true,
	"or":  true,
	"and": true,
}

var prefixMessages = map[TokenKind]string{
	TokenBang:  "negate",
	TokenNot:   "negate",
	TokenMinus: "invert",
	TokenPlus:  "plus",
}

var compoundMessages = map[TokenKind]string{
	TokenOrAssign:      "||",
	TokenAndAssign:     "&&",
	TokenPlusAssign:    "+",
	TokenMinusAssign:   "-",
	TokenStarAssign:    "*",
	TokenSlashAssign:   "/",
	TokenPercentAssign: "%",
}

var operatorMethodKinds = map[TokenKind]bool{
	TokenOrOp: true, TokenAndOp: true, TokenOr: true, TokenAnd: true, TokenNot: true,
	TokenTripleEQ: true, TokenEQ: true, TokenTripleNE: true, TokenNE: true,
	TokenGE: true, TokenGT: true, TokenLE: true, TokenLT: true,
	TokenElvis: true, TokenUShr: true, TokenShr: true, TokenRangeGT: true,
	TokenDiamond: true, TokenSpaceship: true, TokenUShl: true, TokenShl: true,
	TokenRangeLT: true, TokenRange: true, TokenArrow: true,
	TokenMinus: true, TokenPlus: true, TokenSlash: true, TokenStar: true,
	TokenPow: true, TokenPercent: true, TokenBang: true,
}

// Safeword sets for recovery (spec-fixed synchronization points).

var entitySafewords = []TokenKind{
	TokenPackage, TokenClass, TokenObject, TokenMixin, TokenProgram,
	TokenDescribe, TokenTest, TokenVar, TokenConst, TokenRBrace,
}

var classMemberSafewords = []TokenKind{
	TokenMethod, TokenConstructor, TokenVar, TokenConst, TokenRBrace,
}

var generalMemberSafewords = []TokenKind{
	TokenMethod, TokenFixture, TokenVar, TokenConst, TokenTest, TokenDescribe, TokenRBrace,
}

// Entities

func (p *Parser) parsePackageFile() *Package {
	start := Position{File: p.file, Offset: 0, Line: 1, Column: 1}
	pkg := &Package{Name: packageName(p.file)}
	p.parsePackageMembers(pkg, true)
	end := start
	if len(p.tokens) > 0 {
		end = p.tokens[len(p.tokens)-1].Span.End
	}
	pkg.Src = Span{Start: start, End: end}
	return pkg
}

func (p *Parser) parsePackageMembers(pkg *Package, topLevel bool) {
	for !p.check(TokenEOF) {
		if !topLevel && p.check(TokenRBrace) {
			break
		}
		if p.check(TokenSemicolon) {
			p.advance()
			continue
		}
		if p.check(TokenImport) {
			if imp := p.parseImport(); imp != nil {
				pkg.Imports = append(pkg.Imports, imp)
				continue
			}
		} else if ent := p.parseEntity(); ent != nil {
			pkg.Members = append(pkg.Members, ent)
			continue
		}
		prob := p.skipMalformed(MalformedEntity, entitySafewords)
		if prob == nil {
			break
		}
		pkg.Problems = append(pkg.Problems, prob)
	}
}

func (p *Parser) parseEntity() Node {
	switch p.peek().Kind {
	case TokenPackage:
		if n := p.parsePackageDecl(); n != nil {
			return n
		}
	case TokenClass:
		if n := p.parseClass(); n != nil {
			return n
		}
	case TokenObject:
		if n := p.parseObject(); n != nil {
			return n
		}
	case TokenMixin:
		if n := p.parseMixin(); n != nil {
			return n
		}
	case TokenProgram:
		if n := p.parseProgram(); n != nil {
			return n
		}
	case TokenDescribe:
		if n := p.parseDescribe(); n != nil {
			return n
		}
	case TokenOnly, TokenTest:
		if n := p.parseTest(); n != nil {
			return n
		}
	case TokenVar, TokenConst:
		if n := p.parseVariable(); n != nil {
			return n
		}
	}
	return nil
}

func (p *Parser) parsePackageDecl() *Package {
	save := p.pos
	start := p.startPos()
	p.expect(TokenPackage)
	name := p.expectName()
	if name == nil {
		p.pos = save
		return nil
	}
	if p.expect(TokenLBrace) == nil {
		p.pos = save
		return nil
	}
	pkg := &Package{Name: name.Literal}
	p.parsePackageMembers(pkg, false)
	p.expect(TokenRBrace)
	pkg.Src = p.spanFrom(start)
	return pkg
}

func (p *Parser) parseImport() *Import {
	save := p.pos
	start := p.startPos()
	p.expect(TokenImport)
	ref := p.parseFQReference()
	if ref == nil {
		p.pos = save
		return nil
	}
	generic := false
	if p.check(TokenDot) && p.peekN(1).Kind == TokenStar {
		p.advance()
		p.advance()
		generic = true
	}
	return &Import{base: base{Src: p.spanFrom(start)}, Entity: ref, IsGeneric: generic}
}

func (p *Parser) parseClass() *Class {
	save := p.pos
	start := p.startPos()
	p.expect(TokenClass)
	name := p.expectName()
	if name == nil {
		p.pos = save
		return nil
	}
	var superclass *Reference
	if p.check(TokenInherits) {
		p.advance()
		if superclass = p.parseFQReference(); superclass == nil {
			p.pos = save
			return nil
		}
	}
	mixins, ok := p.parseMixedWith()
	if !ok {
		p.pos = save
		return nil
	}
	if p.expect(TokenLBrace) == nil {
		p.pos = save
		return nil
	}
	cls := &Class{Name: name.Literal, Superclass: superclass, Mixins: mixins}
	p.parseMembers(&cls.Members, &cls.Problems, classMembers)
	p.expect(TokenRBrace)
	cls.Src = p.spanFrom(start)
	return cls
}

func (p *Parser) parseObject() *Singleton {
	save := p.pos
	start := p.startPos()
	p.expect(TokenObject)
	name := ""
	if p.isIdentifierLike() {
		name = p.advance().Literal
	}
	var superclass *Reference
	var supercallArgs []Node
	if p.check(TokenInherits) {
		p.advance()
		if superclass = p.parseFQReference(); superclass == nil {
			p.pos = save
			return nil
		}
		if p.check(TokenLParen) {
			args, ok := p.parseArguments()
			if !ok {
				p.pos = save
				return nil
			}
			supercallArgs = args
		}
	}
	mixins, ok := p.parseMixedWith()
	if !ok {
		p.pos = save
		return nil
	}
	if p.expect(TokenLBrace) == nil {
		p.pos = save
		return nil
	}
	sing := &Singleton{Name: name, Superclass: superclass, SupercallArgs: supercallArgs, Mixins: mixins}
	p.parseMembers(&sing.Members, &sing.Problems, objectMembers)
	p.expect(TokenRBrace)
	sing.Src = p.spanFrom(start)
	return sing
}

func (p *Parser) parseMixin() *Mixin {
	save := p.pos
	start := p.startPos()
	p.expect(TokenMixin)
	name := p.expectName()
	if name == nil {
		p.pos = save
		return nil
	}
	mixins, ok := p.parseMixedWith()
	if !ok {
		p.pos = save
		return nil
	}
	if p.expect(TokenLBrace) == nil {
		p.pos = save
		return nil
	}
	mix := &Mixin{Name: name.Literal, Mixins: mixins}
	p.parseMembers(&mix.Members, &mix.Problems, objectMembers)
	p.expect(TokenRBrace)
	mix.Src = p.spanFrom(start)
	return mix
}

func (p *Parser) parseProgram() *Program {
	save := p.pos
	start := p.startPos()
	p.expect(TokenProgram)
	name := p.expectName()
	if name == nil {
		p.pos = save
		return nil
	}
	if !p.check(TokenLBrace) {
		p.pos = save
		return nil
	}
	body := p.parseBody()
	if body == nil {
		p.pos = save
		return nil
	}
	return &Program{base: base{Src: p.spanFrom(start)}, Name: name.Literal, Body: body}
}

func (p *Parser) parseDescribe() *Describe {
	save := p.pos
	start := p.startPos()
	p.expect(TokenDescribe)
	name := p.expect(TokenString)
	if name == nil {
		p.pos = save
		return nil
	}
	if p.expect(TokenLBrace) == nil {
		p.pos = save
		return nil
	}
	// The name keeps its quotes, exactly as written in the source.
	desc := &Describe{Name: name.Literal}
	p.parseMembers(&desc.Members, &desc.Problems, describeMembers)
	p.expect(TokenRBrace)
	desc.Src = p.spanFrom(start)
	return desc
}

func (p *Parser) parseTest() *Test {
	save := p.pos
	start := p.startPos()
	only := false
	if p.check(TokenOnly) {
		p.advance()
		only = true
	}
	if p.expect(TokenTest) == nil {
		p.pos = save
		return nil
	}
	name := p.expect(TokenString)
	if name == nil {
		p.pos = save
		return nil
	}
	if !p.check(TokenLBrace) {
		p.pos = save
		return nil
	}
	body := p.parseBody()
	if body == nil {
		p.pos = save
		return nil
	}
	return &Test{base: base{Src: p.spanFrom(start)}, Only: only, Name: name.Literal, Body: body}
}

// mixed with A and B and C, stored reversed: [C, B, A]
func (p *Parser) parseMixedWith() ([]*Reference, bool) {
	if !p.check(TokenMixed) {
		return nil, true
	}
	save := p.pos
	p.advance()
	if p.expect(TokenWith) == nil {
		p.pos = save
		return nil, false
	}
	var list []*Reference
	for {
		ref := p.parseFQReference()
		if ref == nil {
			p.pos = save
			return nil, false
		}
		list = append(list, ref)
		if !p.check(TokenAnd) {
			break
		}
		p.advance()
	}
	reverseRefs(list)
	return list, true
}

func reverseRefs(refs []*Reference) {
	for i, j := 0, len(refs)-1; i < j; i, j = i+1, j-1 {
		refs[i], refs[j] = refs[j], refs[i]
	}
}

// Members

type memberContext int

const (
	classMembers memberContext = iota
	objectMembers
	describeMembers
)

func (p *Parser) parseMembers(members *[]Node, problems *[]*Problem, ctx memberContext) {
	for !p.check(TokenRBrace) && !p.check(TokenEOF) {
		if p.check(TokenSemicolon) {
			p.advance()
			continue
		}
		var m Node
		switch ctx {
		case classMembers:
			m = p.parseClassMember()
		case objectMembers:
			m = p.parseObjectMember()
		case describeMembers:
			m = p.parseDescribeMember()
		}
		if m != nil {
			*members = append(*members, m)
			continue
		}
		safe := generalMemberSafewords
		if ctx == classMembers {
			safe = classMemberSafewords
		}
		prob := p.skipMalformed(MalformedMember, safe)
		if prob == nil {
			break
		}
		*problems = append(*problems, prob)
	}
}

func (p *Parser) parseClassMember() Node {
	switch p.peek().Kind {
	case TokenConstructor:
		if n := p.parseConstructor(); n != nil {
			return n
		}
	case TokenVar, TokenConst:
		if n := p.parseField(); n != nil {
			return n
		}
	case TokenMethod, TokenOverride:
		if n := p.parseMethod(); n != nil {
			return n
		}
	}
	return nil
}

func (p *Parser) parseObjectMember() Node {
	switch p.peek().Kind {
	case TokenVar, TokenConst:
		if n := p.parseField(); n != nil {
			return n
		}
	case TokenMethod, TokenOverride:
		if n := p.parseMethod(); n != nil {
			return n
		}
	}
	return nil
}

func (p *Parser) parseDescribeMember() Node {
	switch p.peek().Kind {
	case TokenVar, TokenConst:
		if n := p.parseVariable(); n != nil {
			return n
		}
	case TokenFixture:
		if n := p.parseFixture(); n != nil {
			return n
		}
	case TokenOnly, TokenTest:
		if n := p.parseTest(); n != nil {
			return n
		}
	case TokenMethod, TokenOverride:
		if n := p.parseMethod(); n != nil {
			return n
		}
	}
	return nil
}

func (p *Parser) parseField() *Field {
	save := p.pos
	start := p.startPos()
	if !p.match(TokenVar, TokenConst) {
		return nil
	}
	readOnly := p.check(TokenConst)
	p.advance()
	property := false
	if p.check(TokenProperty) && isIdentLikeKind(p.peekN(1).Kind) {
		p.advance()
		property = true
	}
	name := p.expectName()
	if name == nil {
		p.pos = save
		return nil
	}
	var value Node
	if p.check(TokenAssign) {
		p.advance()
		if value = p.parseExpression(); value == nil {
			p.pos = save
			return nil
		}
	}
	return &Field{
		base:     base{Src: p.spanFrom(start)},
		ReadOnly: readOnly,
		Property: property,
		Name:     name.Literal,
		Value:    value,
	}
}

func (p *Parser) parseVariable() *Variable {
	save := p.pos
	start := p.startPos()
	if !p.match(TokenVar, TokenConst) {
		return nil
	}
	readOnly := p.check(TokenConst)
	p.advance()
	name := p.expectName()
	if name == nil {
		p.pos = save
		return nil
	}
	var value Node
	if p.check(TokenAssign) {
		p.advance()
		if value = p.parseExpression(); value == nil {
			p.pos = save
			return nil
		}
	}
	return &Variable{
		base:     base{Src: p.spanFrom(start)},
		ReadOnly: readOnly,
		Name:     name.Literal,
		Value:    value,
	}
}

func (p *Parser) parseMethod() *Method {
	save := p.pos
	start := p.startPos()
	override := false
	if p.check(TokenOverride) {
		p.advance()
		override = true
	}
	if p.expect(TokenMethod) == nil {
		p.pos = save
		return nil
	}
	name := p.methodName()
	if name == "" {
		p.pos = save
		return nil
	}
	params, ok := p.parseParameters()
	if !ok {
		p.pos = save
		return nil
	}
	meth := &Method{Override: override, Name: name, Parameters: params}
	switch {
	case p.check(TokenAssign):
		p.advance()
		expr := p.parseExpression()
		if expr == nil {
			p.pos = save
			return nil
		}
		// Body and synthesized Return both reuse the expression's span.
		ret := &Return{base: base{Src: expr.Source()}, Value: expr}
		meth.Body = &Body{base: base{Src: expr.Source()}, Sentences: []Node{ret}}
	case p.check(TokenNative):
		p.advance()
		meth.Native = true
	case p.check(TokenLBrace):
		if meth.Body = p.parseBody(); meth.Body == nil {
			p.pos = save
			return nil
		}
	}
	meth.Src = p.spanFrom(start)
	return meth
}

// Operator-named methods accept any prefix or infix operator symbol.
// The lexer's maximal munch already guarantees longest-match, so
// "method === (x)" names the method "===".
func (p *Parser) methodName() string {
	if p.isIdentifierLike() || operatorMethodKinds[p.peek().Kind] {
		return p.advance().Literal
	}
	if p.check(TokenEOF) {
		p.incomplete = true
	}
	return ""
}

func (p *Parser) parseConstructor() *Constructor {
	save := p.pos
	start := p.startPos()
	if p.expect(TokenConstructor) == nil {
		return nil
	}
	params, ok := p.parseParameters()
	if !ok {
		p.pos = save
		return nil
	}
	ctor := &Constructor{Parameters: params}
	if p.check(TokenAssign) {
		p.advance()
		callsSuper := false
		switch p.peek().Kind {
		case TokenSuper:
			callsSuper = true
		case TokenSelf:
		default:
			p.pos = save
			return nil
		}
		p.advance()
		args, ok := p.parseArguments()
		if !ok {
			p.pos = save
			return nil
		}
		ctor.BaseCall = &BaseCall{CallsSuper: callsSuper, Args: args}
	}
	if p.check(TokenLBrace) {
		if ctor.Body = p.parseBody(); ctor.Body == nil {
			p.pos = save
			return nil
		}
	}
	ctor.Src = p.spanFrom(start)
	if ctor.Body == nil {
		// A missing body is an empty one.
		ctor.Body = &Body{base: base{Src: Span{Start: ctor.Src.End, End: ctor.Src.End}}}
	}
	return ctor
}

func (p *Parser) parseFixture() *Fixture {
	save := p.pos
	start := p.startPos()
	if p.expect(TokenFixture) == nil {
		return nil
	}
	if !p.check(TokenLBrace) {
		p.pos = save
		return nil
	}
	body := p.parseBody()
	if body == nil {
		p.pos = save
		return nil
	}
	return &Fixture{base: base{Src: p.spanFrom(start)}, Body: body}
}

func (p *Parser) parseParameters() ([]*Parameter, bool) {
	if p.expect(TokenLParen) == nil {
		return nil, false
	}
	var params []*Parameter
	if !p.check(TokenRParen) {
		for {
			start := p.startPos()
			name := p.expectName()
			if name == nil {
				return nil, false
			}
			varArg := false
			if p.check(TokenEllipsis) {
				p.advance()
				varArg = true
			}
			params = append(params, &Parameter{
				base:   base{Src: p.spanFrom(start)},
				Name:   name.Literal,
				VarArg: varArg,
			})
			if !p.check(TokenComma) {
				break
			}
			p.advance()
		}
	}
	if p.expect(TokenRParen) == nil {
		return nil, false
	}
	return params, true
}

// Sentences

func (p *Parser) parseBody() *Body {
	start := p.startPos()
	if p.expect(TokenLBrace) == nil {
		return nil
	}
	b := &Body{}
	for !p.check(TokenRBrace) && !p.check(TokenEOF) {
		if p.check(TokenSemicolon) {
			p.advance()
			continue
		}
		s := p.parseSentence()
		if s == nil {
			break
		}
		b.Sentences = append(b.Sentences, s)
	}
	p.expect(TokenRBrace)
	b.Src = p.spanFrom(start)
	return b
}

func (p *Parser) parseSentence() Node {
	switch p.peek().Kind {
	case TokenVar, TokenConst:
		if v := p.parseVariable(); v != nil {
			return v
		}
		return nil
	case TokenReturn:
		start := p.startPos()
		p.advance()
		save := p.pos
		savedIncomplete := p.incomplete
		value := p.parseExpression()
		if value == nil {
			// the expression is optional; a failed probe is not an
			// incomplete sentence
			p.pos = save
			p.incomplete = savedIncomplete
		}
		ret := &Return{Value: value}
		ret.Src = p.spanFrom(start)
		return ret
	}
	if a := p.parseAssignment(); a != nil {
		return a
	}
	if e := p.parseExpression(); e != nil {
		return e
	}
	return nil
}

func isAssignOpKind(kind TokenKind) bool {
	if kind == TokenAssign {
		return true
	}
	_, ok := compoundMessages[kind]
	return ok
}

func (p *Parser) parseAssignment() Node {
	save := p.pos
	start := p.startPos()
	if !p.isIdentifierLike() {
		return nil
	}
	ref := p.parseReference()
	if ref == nil || !isAssignOpKind(p.peek().Kind) {
		p.pos = save
		return nil
	}
	op := p.advance()
	value := p.parseExpression()
	if value == nil {
		p.pos = save
		return nil
	}
	span := p.spanFrom(start)
	if op.Kind == TokenAssign {
		return &Assignment{base: base{Src: span}, Variable: ref, Value: value}
	}
	// x += e is x = x.+(e); the receiver is a fresh Reference so the
	// tree stays a tree.
	message := compoundMessages[op.Kind]
	var args []Node
	if lazyOperators[message] {
		args = []Node{makeThunk(value)}
	} else {
		args = []Node{value}
	}
	receiver := *ref
	send := &Send{base: base{Src: span}, Receiver: &receiver, Message: message, Args: args}
	return &Assignment{base: base{Src: span}, Variable: ref, Value: send}
}

// Expressions

func (p *Parser) parseExpression() Node {
	return p.parseInfix(0)
}

func (p *Parser) parseInfix(level int) Node {
	if level >= len(infixLevels) {
		return p.parsePrefix()
	}
	left := p.parseInfix(level + 1)
	if left == nil {
		return nil
	}
	for p.match(infixLevels[level]...) {
		op := p.advance()
		right := p.parseInfix(level + 1)
		if right == nil {
			if p.check(TokenEOF) {
				p.incomplete = true
			}
			p.pos--
			return left
		}
		var args []Node
		if lazyOperators[op.Literal] {
			args = []Node{makeThunk(right)}
		} else {
			args = []Node{right}
		}
		span := Span{Start: left.Source().Start, End: right.Source().End}
		left = &Send{base: base{Src: span}, Receiver: left, Message: op.Literal, Args: args}
	}
	return left
}

func (p *Parser) parsePrefix() Node {
	if p.match(TokenBang, TokenNot, TokenMinus, TokenPlus) {
		op := p.advance()
		if op.Kind == TokenMinus && p.check(TokenNumber) {
			tok := p.advance()
			value, _ := strconv.ParseFloat(tok.Literal, 64)
			lit := &Literal{base: base{Src: Span{Start: op.Span.Start, End: tok.Span.End}}, Value: -value}
			return p.parseSendSuffixes(lit)
		}
		operand := p.parsePrefix()
		if operand == nil {
			if p.check(TokenEOF) {
				p.incomplete = true
			}
			p.pos--
			return nil
		}
		span := Span{Start: op.Span.Start, End: operand.Source().End}
		return &Send{base: base{Src: span}, Receiver: operand, Message: prefixMessages[op.Kind], Args: []Node{}}
	}
	return p.parseSend()
}

func (p *Parser) parseSend() Node {
	primary := p.parsePrimary()
	if primary == nil {
		return nil
	}
	return p.parseSendSuffixes(primary)
}

func (p *Parser) parseSendSuffixes(receiver Node) Node {
	for p.check(TokenDot) && isIdentLikeKind(p.peekN(1).Kind) {
		save := p.pos
		p.advance()
		message := p.advance()
		var args []Node
		switch {
		case p.check(TokenLParen):
			parsed, ok := p.parseArguments()
			if !ok {
				p.pos = save
				return receiver
			}
			args = parsed
		case p.check(TokenLBrace):
			closure := p.parseClosureLiteral()
			if closure == nil {
				p.pos = save
				return receiver
			}
			args = []Node{closure}
		default:
			p.pos = save
			return receiver
		}
		span := Span{Start: receiver.Source().Start, End: p.tokens[p.pos-1].Span.End}
		receiver = &Send{base: base{Src: span}, Receiver: receiver, Message: message.Literal, Args: args}
	}
	return receiver
}

func (p *Parser) parseArguments() ([]Node, bool) {
	if p.expect(TokenLParen) == nil {
		return nil, false
	}
	args := []Node{}
	if !p.check(TokenRParen) {
		named := p.isIdentifierLike() && p.peekN(1).Kind == TokenAssign
		for {
			if named {
				start := p.startPos()
				name := p.expectName()
				if name == nil || p.expect(TokenAssign) == nil {
					return nil, false
				}
				value := p.parseExpression()
				if value == nil {
					return nil, false
				}
				args = append(args, &NamedArgument{
					base:  base{Src: p.spanFrom(start)},
					Name:  name.Literal,
					Value: value,
				})
			} else {
				e := p.parseExpression()
				if e == nil {
					return nil, false
				}
				args = append(args, e)
			}
			if !p.check(TokenComma) {
				break
			}
			p.advance()
		}
	}
	if p.expect(TokenRParen) == nil {
		return nil, false
	}
	return args, true
}

func (p *Parser) parsePrimary() Node {
	switch p.peek().Kind {
	case TokenSelf:
		tok := p.advance()
		return &Self{base: base{Src: tok.Span}}
	case TokenSuper:
		if n := p.parseSuper(); n != nil {
			return n
		}
	case TokenIf:
		if n := p.parseIf(); n != nil {
			return n
		}
	case TokenNew:
		if n := p.parseNew(); n != nil {
			return n
		}
	case TokenThrow:
		start := p.startPos()
		save := p.pos
		p.advance()
		exception := p.parseExpression()
		if exception == nil {
			p.pos = save
			return nil
		}
		return &Throw{base: base{Src: p.spanFrom(start)}, Exception: exception}
	case TokenTry:
		if n := p.parseTry(); n != nil {
			return n
		}
	case TokenNull:
		tok := p.advance()
		return &Literal{base: base{Src: tok.Span}, Value: nil}
	case TokenTrue:
		tok := p.advance()
		return &Literal{base: base{Src: tok.Span}, Value: true}
	case TokenFalse:
		tok := p.advance()
		return &Literal{base: base{Src: tok.Span}, Value: false}
	case TokenNumber:
		tok := p.advance()
		value, _ := strconv.ParseFloat(tok.Literal, 64)
		return &Literal{base: base{Src: tok.Span}, Value: value}
	case TokenString:
		tok := p.advance()
		return &Literal{base: base{Src: tok.Span}, Value: UnquoteString(tok.Literal)}
	case TokenLBracket:
		if n := p.parseCollectionLiteral(TokenLBracket, TokenRBracket, "wollok.lang.List"); n != nil {
			return n
		}
	case TokenHashLBrace:
		if n := p.parseCollectionLiteral(TokenHashLBrace, TokenRBrace, "wollok.lang.Set"); n != nil {
			return n
		}
	case TokenLBrace:
		if n := p.parseClosureLiteral(); n != nil {
			return n
		}
	case TokenObject:
		if s := p.parseObject(); s != nil {
			return &Literal{base: base{Src: s.Src}, Value: s}
		}
	case TokenLParen:
		save := p.pos
		p.advance()
		e := p.parseExpression()
		if e == nil || p.expect(TokenRParen) == nil {
			p.pos = save
			return nil
		}
		return e
	case TokenEOF:
		p.incomplete = true
	default:
		if p.isIdentifierLike() {
			if r := p.parseReference(); r != nil {
				return r
			}
		}
	}
	return nil
}

func (p *Parser) parseSuper() Node {
	save := p.pos
	start := p.startPos()
	p.expect(TokenSuper)
	args, ok := p.parseArguments()
	if !ok {
		p.pos = save
		return nil
	}
	return &Super{base: base{Src: p.spanFrom(start)}, Args: args}
}

func (p *Parser) parseIf() Node {
	save := p.pos
	start := p.startPos()
	p.expect(TokenIf)
	if p.expect(TokenLParen) == nil {
		p.pos = save
		return nil
	}
	condition := p.parseExpression()
	if condition == nil || p.expect(TokenRParen) == nil {
		p.pos = save
		return nil
	}
	then := p.parseInlineableBody()
	if then == nil {
		p.pos = save
		return nil
	}
	var els *Body
	if p.check(TokenElse) {
		p.advance()
		if els = p.parseInlineableBody(); els == nil {
			p.pos = save
			return nil
		}
	}
	return &If{base: base{Src: p.spanFrom(start)}, Condition: condition, Then: then, Else: els}
}

func (p *Parser) parseTry() Node {
	save := p.pos
	start := p.startPos()
	p.expect(TokenTry)
	body := p.parseInlineableBody()
	if body == nil {
		p.pos = save
		return nil
	}
	var catches []*Catch
	for p.check(TokenCatch) {
		c := p.parseCatch()
		if c == nil {
			p.pos = save
			return nil
		}
		catches = append(catches, c)
	}
	var always *Body
	if p.check(TokenThen) && p.peekN(1).Kind == TokenAlways {
		p.advance()
		p.advance()
		if always = p.parseInlineableBody(); always == nil {
			p.pos = save
			return nil
		}
	}
	return &Try{base: base{Src: p.spanFrom(start)}, Body: body, Catches: catches, Always: always}
}

func (p *Parser) parseCatch() *Catch {
	save := p.pos
	start := p.startPos()
	p.expect(TokenCatch)
	name := p.expectName()
	if name == nil {
		p.pos = save
		return nil
	}
	param := &Parameter{base: base{Src: name.Span}, Name: name.Literal}
	var paramType *Reference
	if p.check(TokenColon) {
		p.advance()
		if paramType = p.parseFQReference(); paramType == nil {
			p.pos = save
			return nil
		}
	}
	body := p.parseInlineableBody()
	if body == nil {
		p.pos = save
		return nil
	}
	return &Catch{
		base:          base{Src: p.spanFrom(start)},
		Parameter:     param,
		ParameterType: paramType,
		Body:          body,
	}
}

// An inlineable body is either a braced block or a single sentence
// wrapped into a one-sentence Body sharing the sentence's span.
func (p *Parser) parseInlineableBody() *Body {
	if p.check(TokenLBrace) {
		return p.parseBody()
	}
	s := p.parseSentence()
	if s == nil {
		return nil
	}
	return &Body{base: base{Src: s.Source()}, Sentences: []Node{s}}
}

func (p *Parser) parseNew() Node {
	save := p.pos
	start := p.startPos()
	p.expect(TokenNew)
	ref := p.parseFQReference()
	if ref == nil {
		p.pos = save
		return nil
	}
	args, ok := p.parseArguments()
	if !ok {
		p.pos = save
		return nil
	}
	if !p.check(TokenWith) {
		return &New{base: base{Src: p.spanFrom(start)}, Instantiated: ref, Args: args}
	}
	var mixins []*Reference
	for p.check(TokenWith) {
		p.advance()
		m := p.parseFQReference()
		if m == nil {
			p.pos = save
			return nil
		}
		mixins = append(mixins, m)
	}
	reverseRefs(mixins)
	span := p.spanFrom(start)
	sing := &Singleton{
		base:          base{Src: span},
		Superclass:    ref,
		SupercallArgs: args,
		Mixins:        mixins,
		Members:       []Node{},
	}
	return &Literal{base: base{Src: span}, Value: sing}
}

func (p *Parser) parseCollectionLiteral(open, close TokenKind, className string) Node {
	save := p.pos
	start := p.startPos()
	p.expect(open)
	elements := []Node{}
	if !p.check(close) {
		for {
			e := p.parseExpression()
			if e == nil {
				p.pos = save
				return nil
			}
			elements = append(elements, e)
			if !p.check(TokenComma) {
				break
			}
			p.advance()
		}
	}
	if p.expect(close) == nil {
		p.pos = save
		return nil
	}
	span := p.spanFrom(start)
	instantiated := &Reference{base: base{Src: span}, Name: className}
	return &New{base: base{Src: span}, Instantiated: instantiated, Args: elements}
}

func (p *Parser) parseClosureLiteral() Node {
	save := p.pos
	start := p.startPos()
	if p.expect(TokenLBrace) == nil {
		return nil
	}
	params, _ := p.tryClosureParameters()
	var sentences []Node
	for !p.check(TokenRBrace) && !p.check(TokenEOF) {
		if p.check(TokenSemicolon) {
			p.advance()
			continue
		}
		s := p.parseSentence()
		if s == nil {
			p.pos = save
			return nil
		}
		sentences = append(sentences, s)
	}
	if p.expect(TokenRBrace) == nil {
		p.pos = save
		return nil
	}
	span := p.spanFrom(start)
	code := ""
	if span.Start.Offset <= span.End.Offset && span.End.Offset <= len(p.input) {
		code = string(p.input[span.Start.Offset:span.End.Offset])
	}
	return closureLiteral(span, params, sentences, code)
}

// tryClosureParameters probes for "p1, ..., pn =>" right after the
// opening brace and backtracks when the arrow is missing.
func (p *Parser) tryClosureParameters() ([]*Parameter, bool) {
	save := p.pos
	if p.check(TokenFatArrow) {
		p.advance()
		return []*Parameter{}, true
	}
	var params []*Parameter
	for {
		if !p.isIdentifierLike() {
			p.pos = save
			return nil, false
		}
		start := p.startPos()
		name := p.advance()
		varArg := false
		if p.check(TokenEllipsis) {
			p.advance()
			varArg = true
		}
		params = append(params, &Parameter{
			base:   base{Src: p.spanFrom(start)},
			Name:   name.Literal,
			VarArg: varArg,
		})
		if p.check(TokenComma) {
			p.advance()
			continue
		}
		break
	}
	if !p.check(TokenFatArrow) {
		p.pos = save
		return nil, false
	}
	p.advance()
	return params, true
}

// closureLiteral builds the canonical closure shape: an anonymous
// singleton with a single apply method.
func closureLiteral(span Span, params []*Parameter, sentences []Node, code string) *Literal {
	apply := &Method{
		base:       base{Src: span},
		Name:       "apply",
		Parameters: params,
		Body:       &Body{base: base{Src: span}, Sentences: sentences},
	}
	sing := &Singleton{base: base{Src: span}, Members: []Node{apply}}
	return &Literal{base: base{Src: span}, Value: sing, Code: code}
}

// makeThunk wraps the right operand of a lazy operator in a
// zero-parameter closure so evaluation is deferred.
func makeThunk(value Node) *Literal {
	return closureLiteral(value.Source(), nil, []Node{value}, "")
}

// parseReference reads a possibly dotted reference, stopping before a
// trailing ".name(" or ".name{" segment, which belongs to a send.
func (p *Parser) parseReference() *Reference {
	start := p.startPos()
	name := p.expectName()
	if name == nil {
		return nil
	}
	full := name.Literal
	for p.check(TokenDot) && isIdentLikeKind(p.peekN(1).Kind) {
		next := p.peekN(2).Kind
		if next == TokenLParen || next == TokenLBrace {
			break
		}
		p.advance()
		part := p.advance()
		full += "." + part.Literal
	}
	return &Reference{base: base{Src: p.spanFrom(start)}, Name: full}
}

// parseFQReference reads a fully qualified dotted reference with no
// send lookahead; used for import, inherits, mixin and new targets.
func (p *Parser) parseFQReference() *Reference {
	start := p.startPos()
	name := p.expectName()
	if name == nil {
		return nil
	}
	full := name.Literal
	for p.check(TokenDot) && isIdentLikeKind(p.peekN(1).Kind) {
		p.advance()
		part := p.advance()
		full += "." + part.Literal
	}
	return &Reference{base: base{Src: p.spanFrom(start)}, Name: full}
}

// Recovery

// skipMalformed consumes input until one of the safeword tokens is
// about to match, wrapping the region in a Problem. Balanced brace
// groups are consumed whole so a malformed member cannot derail the
// enclosing container. At least one token must be consumed.
func (p *Parser) skipMalformed(code string, safewords []TokenKind) *Problem {
	start := p.peek().Span.Start
	end := start
	consumed := false
	for !p.check(TokenEOF) {
		if consumed && p.match(safewords...) {
			break
		}
		if p.check(TokenLBrace) {
			end = p.skipBalancedBraces()
		} else {
			tok := p.advance()
			end = tok.Span.End
		}
		consumed = true
	}
	if !consumed {
		return nil
	}
	return &Problem{Code: code, Src: Span{Start: start, End: end}}
}

func (p *Parser) skipBalancedBraces() Position {
	end := p.peek().Span.End
	depth := 0
	for !p.check(TokenEOF) {
		tok := p.advance()
		end = tok.Span.End
		switch tok.Kind {
		case TokenLBrace:
			depth++
		case TokenRBrace:
			depth--
			if depth == 0 {
				return end
			}
		}
	}
	return end
}
