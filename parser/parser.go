package parser

import (
	"context"
	"io"

	"github.com/mattilu/ledger/ast"
)

// Parse parses a ledger file from an io.Reader.
func Parse(ctx context.Context, r io.Reader) (*ast.AST, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseBytesWithFilename(ctx, "", data)
}

// ParseString parses a ledger file from a string.
func ParseString(ctx context.Context, str string) (*ast.AST, error) {
	return ParseBytesWithFilename(ctx, "", []byte(str))
}

// ParseBytes parses a ledger file from bytes.
func ParseBytes(ctx context.Context, data []byte) (*ast.AST, error) {
	return ParseBytesWithFilename(ctx, "", data)
}

// ParseBytesWithFilename parses a ledger file from bytes with a filename for
// position tracking. The filename is included in position information in
// the AST for error reporting.
func ParseBytesWithFilename(ctx context.Context, filename string, data []byte) (*ast.AST, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	lex := NewLexer(data, filename)
	tokens, err := lex.ScanAll()
	if err != nil {
		return nil, err
	}

	p := NewParser(data, tokens, filename, lex.Interner())
	tree, err := p.parseTree()
	if err != nil {
		return nil, err
	}

	if err := ast.ApplyPushPopDirectives(tree); err != nil {
		return nil, err
	}

	return tree, ast.SortDirectives(tree)
}
