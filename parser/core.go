package parser

import (
	"strings"

	"github.com/mattilu/ledger/ast"
)

// Parser turns a token stream produced by the Lexer into an *ast.AST. It
// holds no lookahead state beyond a cursor into the token slice; all
// directive-specific grammar lives in directives.go and transaction.go.
type Parser struct {
	source   []byte
	filename string
	tokens   []Token
	pos      int
	interner *Interner
}

// NewParser builds a Parser over an already-tokenized source. interner is
// shared with the Lexer that produced tokens, so identifiers and currencies
// interned during lexing are reused rather than duplicated.
func NewParser(source []byte, tokens []Token, filename string, interner *Interner) *Parser {
	return &Parser{
		source:   source,
		filename: filename,
		tokens:   tokens,
		interner: interner,
	}
}

// parseTree consumes the entire token stream, building the AST in source
// order: top-level constructs (option/include/plugin/pushtag/poptag/
// pushmeta/popmeta), trivia (comments, blank lines), and dated directives.
func (p *Parser) parseTree() (*ast.AST, error) {
	tree := &ast.AST{}

	for !p.isAtEnd() {
		tok := p.peek()

		switch tok.Type {
		case NEWLINE:
			tree.BlankLines = append(tree.BlankLines, &ast.BlankLine{Pos: p.tokenPositionFromPeek()})
			p.advance()

		case COMMENT:
			tree.Comments = append(tree.Comments, p.parseComment())

		case OPTION:
			opt, err := p.parseOption()
			if err != nil {
				return nil, err
			}
			tree.Options = append(tree.Options, opt)

		case INCLUDE:
			inc, err := p.parseInclude()
			if err != nil {
				return nil, err
			}
			tree.Includes = append(tree.Includes, inc)

		case PLUGIN:
			plugin, err := p.parsePlugin()
			if err != nil {
				return nil, err
			}
			tree.Plugins = append(tree.Plugins, plugin)

		case PUSHTAG:
			pushtag, err := p.parsePushtag()
			if err != nil {
				return nil, err
			}
			tree.Pushtags = append(tree.Pushtags, pushtag)

		case POPTAG:
			poptag, err := p.parsePoptag()
			if err != nil {
				return nil, err
			}
			tree.Poptags = append(tree.Poptags, poptag)

		case PUSHMETA:
			pushmeta, err := p.parsePushmeta()
			if err != nil {
				return nil, err
			}
			tree.Pushmetas = append(tree.Pushmetas, pushmeta)

		case POPMETA:
			popmeta, err := p.parsePopmeta()
			if err != nil {
				return nil, err
			}
			tree.Popmetas = append(tree.Popmetas, popmeta)

		case DATE:
			directive, err := p.parseDatedDirective(tree)
			if err != nil {
				return nil, err
			}
			tree.Directives = append(tree.Directives, directive)

		default:
			return nil, p.errorAtToken(tok, "unexpected token %s", tok.Type)
		}
	}

	return tree, nil
}

// parseDatedDirective parses the DATE token at the cursor, skips any blank
// lines or standalone comments between the date and the directive keyword
// (recording them on tree), and dispatches to the directive-specific
// parser for the keyword that follows.
func (p *Parser) parseDatedDirective(tree *ast.AST) (ast.Directive, error) {
	date, err := p.parseDate()
	if err != nil {
		return nil, err
	}

	for !p.isAtEnd() {
		switch p.peek().Type {
		case NEWLINE:
			tree.BlankLines = append(tree.BlankLines, &ast.BlankLine{Pos: p.tokenPositionFromPeek()})
			p.advance()
			continue
		case COMMENT:
			tree.Comments = append(tree.Comments, p.parseComment())
			continue
		}
		break
	}

	if p.isAtEnd() {
		return nil, p.errorAtEndOfPrevious("expected directive keyword after date")
	}

	// The directive's position is anchored to its keyword, not the date: a
	// date and its directive may be split across lines (position_test.go),
	// and downstream sorting/formatting keys off where the keyword sits.
	pos := p.tokenPositionFromPeek()

	switch p.peek().Type {
	case OPEN:
		return p.parseOpen(pos, date)
	case CLOSE:
		return p.parseClose(pos, date)
	case BALANCE:
		return p.parseBalance(pos, date)
	case COMMODITY:
		return p.parseCommodity(pos, date)
	case PAD:
		return p.parsePad(pos, date)
	case NOTE:
		return p.parseNote(pos, date)
	case DOCUMENT:
		return p.parseDocument(pos, date)
	case PRICE:
		return p.parsePrice(pos, date)
	case EVENT:
		return p.parseEvent(pos, date)
	case CUSTOM:
		return p.parseCustom(pos, date)
	case TXN, ASTERISK, EXCLAIM, STRING:
		return p.parseTransaction(pos, date)
	default:
		return nil, p.error("expected directive keyword, got %s", p.peek().Type)
	}
}

// finishDirective captures a trailing inline comment and any indented
// metadata lines that follow a directive header, mirroring the pattern
// already used for Transaction and Posting headers in transaction.go.
func (p *Parser) finishDirective(d ast.Directive) error {
	line := d.Position().Line

	if !p.isAtEnd() && p.peek().Type == COMMENT && p.peek().Line == line {
		d.SetComment(p.parseComment())
	}

	if !p.isAtEnd() && p.peek().Line > line && p.peek().Column > 1 {
		if meta := p.parseMetadataFromLine(line); len(meta) > 0 {
			d.AddMetadata(meta...)
		}
	}

	return nil
}

// parseComment consumes the COMMENT token at the cursor and returns it as a
// standalone ast.Comment. The token's span includes its trailing newline
// (lexer.go), which is trimmed here so Content holds just the comment text.
func (p *Parser) parseComment() *ast.Comment {
	tok := p.advance()
	content := strings.TrimRight(tok.String(p.source), "\r\n")
	return &ast.Comment{
		Pos:     tokenPosition(tok, p.filename),
		Content: content,
		Type:    ast.StandaloneComment,
	}
}

// parseOption parses: option STRING STRING
func (p *Parser) parseOption() (*ast.Option, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(OPTION, "expected 'option'")

	name, err := p.parseString()
	if err != nil {
		return nil, err
	}
	value, err := p.parseString()
	if err != nil {
		return nil, err
	}

	return &ast.Option{Pos: pos, Name: name, Value: value}, nil
}

// parseInclude parses: include STRING
func (p *Parser) parseInclude() (*ast.Include, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(INCLUDE, "expected 'include'")

	filename, err := p.parseString()
	if err != nil {
		return nil, err
	}

	return &ast.Include{Pos: pos, Filename: filename}, nil
}

// parsePlugin parses: plugin STRING [STRING]
func (p *Parser) parsePlugin() (*ast.Plugin, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(PLUGIN, "expected 'plugin'")

	name, err := p.parseString()
	if err != nil {
		return nil, err
	}

	plugin := &ast.Plugin{Pos: pos, Name: name}
	if p.check(STRING) {
		config, err := p.parseString()
		if err != nil {
			return nil, err
		}
		plugin.Config = config
	}

	return plugin, nil
}

// parsePushtag parses: pushtag TAG
func (p *Parser) parsePushtag() (*ast.Pushtag, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(PUSHTAG, "expected 'pushtag'")

	tag, err := p.parseTag()
	if err != nil {
		return nil, err
	}

	return &ast.Pushtag{Pos: pos, Tag: tag}, nil
}

// parsePoptag parses: poptag TAG
func (p *Parser) parsePoptag() (*ast.Poptag, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(POPTAG, "expected 'poptag'")

	tag, err := p.parseTag()
	if err != nil {
		return nil, err
	}

	return &ast.Poptag{Pos: pos, Tag: tag}, nil
}

// parsePushmeta parses: pushmeta KEY: VALUE
func (p *Parser) parsePushmeta() (*ast.Pushmeta, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(PUSHMETA, "expected 'pushmeta'")

	keyTok := p.expect(IDENT, "expected metadata key")
	if keyTok.Type == ILLEGAL {
		return nil, p.errorAtEndOfPrevious("expected metadata key")
	}
	key := keyTok.String(p.source)

	p.consume(COLON, "expected ':'")
	value := p.parseMetadataValue()

	return &ast.Pushmeta{Pos: pos, Key: key, Value: value.String()}, nil
}

// parsePopmeta parses: popmeta KEY:
func (p *Parser) parsePopmeta() (*ast.Popmeta, error) {
	pos := p.tokenPositionFromPeek()
	p.consume(POPMETA, "expected 'popmeta'")

	keyTok := p.expect(IDENT, "expected metadata key")
	if keyTok.Type == ILLEGAL {
		return nil, p.errorAtEndOfPrevious("expected metadata key")
	}
	key := keyTok.String(p.source)

	p.consume(COLON, "expected ':'")

	return &ast.Popmeta{Pos: pos, Key: key}, nil
}
