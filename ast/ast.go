// Package ast declares the types used to represent the syntax tree of a
// parsed ledger file: directives, postings, and the metadata and option
// context attached to them.
package ast

import (
	"golang.org/x/exp/slices"
)

// DirectiveKind identifies the concrete type of a Directive without a type
// switch, used by the booker driver's dispatch table and by sort ordering.
type DirectiveKind int

const (
	KindOpen DirectiveKind = iota
	KindClose
	KindCurrency
	KindBalance
	KindTransaction
	KindPad
	KindNote
	KindDocument
	KindPrice
	KindEvent
	KindCustom
)

func (k DirectiveKind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindClose:
		return "close"
	case KindCurrency:
		return "currency"
	case KindBalance:
		return "balance"
	case KindTransaction:
		return "transaction"
	case KindPad:
		return "pad"
	case KindNote:
		return "note"
	case KindDocument:
		return "document"
	case KindPrice:
		return "price"
	case KindEvent:
		return "event"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Directive is the interface implemented by every directive type the
// ledger booker driver dispatches on.
type Directive interface {
	WithMetadata
	WithOptions
	WithComment
	Positioned

	GetDate() *Date
	Kind() DirectiveKind

	// Directive returns the directive's source keyword ("open", "balance",
	// "custom", ...), used by the formatter to size the keyword column.
	Directive() string
}

// WithComment is implemented by AST nodes that can carry a trailing inline
// comment, preserved so the formatter can round-trip it (spec §9 "stable
// re-formatting").
type WithComment interface {
	GetComment() *Comment
	SetComment(*Comment)
}

// WithMetadata is implemented by AST nodes that can carry key/value
// metadata.
type WithMetadata interface {
	AddMetadata(...*Metadata)
}

// WithOptions is implemented by every Directive: it carries the frozen
// snapshot of the option map in effect when the directive was loaded (spec
// §3/§9 "option-map snapshotting"). The loader calls SetOptions exactly
// once per directive, immediately after parsing it.
type WithOptions interface {
	Options() map[string]string
	SetOptions(map[string]string)
}

// withMetadata is an embeddable implementation of WithMetadata.
type withMetadata struct {
	Metadata []*Metadata
}

func (w *withMetadata) AddMetadata(m ...*Metadata) {
	w.Metadata = append(w.Metadata, m...)
}

func (w *withMetadata) HasMetadata() bool {
	return len(w.Metadata) > 0
}

// MetadataMap indexes this node's metadata by key.
func (w *withMetadata) MetadataMap() MetadataMap {
	return NewMetadataMap(w.Metadata)
}

// withOptions is an embeddable implementation of WithOptions.
type withOptions struct {
	opts map[string]string
}

func (w *withOptions) Options() map[string]string {
	return w.opts
}

func (w *withOptions) SetOptions(o map[string]string) {
	w.opts = o
}

// withComment is an embeddable implementation of WithComment.
type withComment struct {
	InlineComment *Comment
}

func (w *withComment) GetComment() *Comment {
	return w.InlineComment
}

func (w *withComment) SetComment(c *Comment) {
	w.InlineComment = c
}

// Directives is a slice of Directive that implements sort.Interface,
// ordering by date, then by a fixed type priority (opens before closes
// before everything else), then by source line to preserve file order for
// same-date same-kind directives.
type Directives []Directive

func (d Directives) Len() int      { return len(d) }
func (d Directives) Swap(i, j int) { d[i], d[j] = d[j], d[i] }
func (d Directives) Less(i, j int) bool {
	return compareDirectives(d[i], d[j]) < 0
}

func compareDirectives(a, b Directive) int {
	if a.GetDate().Before(b.GetDate().Time) {
		return -1
	} else if a.GetDate().After(b.GetDate().Time) {
		return 1
	}

	aPriority := directiveTypePriority(a)
	bPriority := directiveTypePriority(b)
	if aPriority != bPriority {
		if aPriority < bPriority {
			return -1
		}
		return 1
	}

	aLine, bLine := a.Position().Line, b.Position().Line
	if aLine != bLine {
		if aLine < bLine {
			return -1
		}
		return 1
	}
	return 0
}

func directiveTypePriority(d Directive) int {
	switch d.Kind() {
	case KindOpen:
		return 0
	case KindClose:
		return 1
	default:
		return 2
	}
}

func isSorted(d Directives) bool {
	for i := 1; i < len(d); i++ {
		if d.Less(i, i-1) {
			return false
		}
	}
	return true
}

// SortDirectives sorts a directive slice in place by date/priority/line.
// Called by the loader after parsing; safe to call again on a manually
// constructed AST.
func SortDirectives(ast *AST) error {
	if isSorted(ast.Directives) {
		return nil
	}
	slices.SortFunc(ast.Directives, compareDirectives)
	return nil
}

// AST is the result of parsing a single ledger file: its directives in
// file order, plus the option and include directives that shape how those
// directives (and any included files) are interpreted.
type AST struct {
	Directives Directives
	Options    []*Option
	Includes   []*Include
	Plugins    []*Plugin
	Pushtags   []*Pushtag
	Poptags    []*Poptag
	Pushmetas  []*Pushmeta
	Popmetas   []*Popmeta
	Comments   []*Comment
	BlankLines []*BlankLine
}

// pushPopItem is any push/pop construct or directive positioned in the
// source, used by ApplyPushPopDirectives to replay them in file order.
type pushPopItem struct {
	pos       Position
	directive Directive
	pushtag   *Pushtag
	poptag    *Poptag
	pushmeta  *Pushmeta
	popmeta   *Popmeta
}

// ApplyPushPopDirectives replays pushtag/poptag and pushmeta/popmeta
// directives in file order, applying the currently active tags to every
// Transaction and the currently active metadata to every directive with a
// metadata map, between the push and its matching pop (spec §9
// "pushtag/poptag", "pushmeta/popmeta"). Called once by the loader right
// after parsing, before directives are date-sorted.
func ApplyPushPopDirectives(tree *AST) error {
	items := make([]pushPopItem, 0, len(tree.Directives)+len(tree.Pushtags)+len(tree.Poptags)+len(tree.Pushmetas)+len(tree.Popmetas))

	for _, d := range tree.Directives {
		items = append(items, pushPopItem{pos: d.Position(), directive: d})
	}
	for _, pt := range tree.Pushtags {
		items = append(items, pushPopItem{pos: pt.Pos, pushtag: pt})
	}
	for _, pt := range tree.Poptags {
		items = append(items, pushPopItem{pos: pt.Pos, poptag: pt})
	}
	for _, pm := range tree.Pushmetas {
		items = append(items, pushPopItem{pos: pm.Pos, pushmeta: pm})
	}
	for _, pm := range tree.Popmetas {
		items = append(items, pushPopItem{pos: pm.Pos, popmeta: pm})
	}

	slices.SortFunc(items, func(a, b pushPopItem) int {
		if a.pos.Line != b.pos.Line {
			if a.pos.Line < b.pos.Line {
				return -1
			}
			return 1
		}
		if a.pos.Column != b.pos.Column {
			if a.pos.Column < b.pos.Column {
				return -1
			}
			return 1
		}
		return 0
	})

	var activeTags []string
	activeMetadata := make(map[string]string)

	for _, item := range items {
		switch {
		case item.pushtag != nil:
			activeTags = append(activeTags, item.pushtag.Tag)

		case item.poptag != nil:
			for i, tag := range activeTags {
				if tag == item.poptag.Tag {
					activeTags = append(activeTags[:i], activeTags[i+1:]...)
					break
				}
			}

		case item.pushmeta != nil:
			activeMetadata[item.pushmeta.Key] = item.pushmeta.Value

		case item.popmeta != nil:
			delete(activeMetadata, item.popmeta.Key)

		case item.directive != nil:
			if txn, ok := item.directive.(*Transaction); ok && len(activeTags) > 0 {
				txn.Tags = append(txn.Tags, activeTags...)
			}
			if len(activeMetadata) > 0 {
				for key, value := range activeMetadata {
					rawStr := NewRawString(value)
					item.directive.AddMetadata(&Metadata{Key: key, Value: &MetadataValue{StringValue: &rawStr}})
				}
			}
		}
	}

	return nil
}

// LinesWithMultipleItems returns the set of 1-indexed source lines holding
// more than one AST item (a directive sharing a line with a trailing
// comment, for example). The formatter consults this to decide whether a
// line's original source text can be reproduced verbatim or must be
// re-rendered from the parsed structure.
func LinesWithMultipleItems(tree *AST) map[int]bool {
	counts := make(map[int]int)
	bump := func(line int) { counts[line]++ }

	for _, o := range tree.Options {
		bump(o.Position().Line)
	}
	for _, i := range tree.Includes {
		bump(i.Position().Line)
	}
	for _, p := range tree.Plugins {
		bump(p.Position().Line)
	}
	for _, p := range tree.Pushtags {
		bump(p.Position().Line)
	}
	for _, p := range tree.Poptags {
		bump(p.Position().Line)
	}
	for _, m := range tree.Pushmetas {
		bump(m.Position().Line)
	}
	for _, m := range tree.Popmetas {
		bump(m.Position().Line)
	}
	for _, d := range tree.Directives {
		bump(d.Position().Line)
	}
	for _, c := range tree.Comments {
		bump(c.Position().Line)
	}
	for _, b := range tree.BlankLines {
		bump(b.Position().Line)
	}

	result := make(map[int]bool)
	for line, n := range counts {
		if n > 1 {
			result[line] = true
		}
	}
	return result
}
