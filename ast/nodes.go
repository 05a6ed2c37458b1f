package ast

// Option sets a configuration parameter that affects how the ledger is
// processed. Options apply from the point they are parsed onward and are
// snapshotted onto every directive that follows, per the per-directive
// option-map rule (see loader.Load).
//
// Example:
//
//	option "booking-method" "FIFO"
//	option "account-reference-checks" "strict"
type Option struct {
	Pos   Position
	Name  RawString
	Value RawString
}

func (o *Option) Position() Position { return o.Pos }

// Include imports and processes directives from another file, letting a
// ledger be split across multiple files for organization. The path is
// resolved relative to the file containing the include directive.
//
// Example:
//
//	include "accounts.ledger"
//	include "prices/2014.ledger"
type Include struct {
	Pos      Position
	Filename RawString
}

func (i *Include) Position() Position { return i.Pos }

// Plugin loads a processing plugin that runs after loading to transform or
// validate the ledger. An optional configuration string customizes its
// behavior.
//
// Example:
//
//	plugin "beancount.plugins.auto_accounts"
//	plugin "beancount.plugins.check_commodity" "USD,EUR,GBP"
type Plugin struct {
	Pos    Position
	Name   RawString
	Config RawString
}

func (p *Plugin) Position() Position { return p.Pos }

// Pushtag pushes a tag onto the tag stack; every transaction parsed until
// the matching poptag automatically receives it (spec §9 "pushtag/poptag").
//
// Example:
//
//	pushtag #trip-europe
//	2014-07-01 * "Flight to Paris"
//	  Expenses:Travel  450.00 USD
//	  Liabilities:CreditCard
//	poptag #trip-europe
type Pushtag struct {
	Pos Position
	Tag string
}

func (p *Pushtag) Position() Position { return p.Pos }

// Poptag removes a tag previously pushed by a matching pushtag.
//
// Example:
//
//	poptag #trip-europe
type Poptag struct {
	Pos Position
	Tag string
}

func (p *Poptag) Position() Position { return p.Pos }

// Pushmeta pushes a metadata key/value pair; every directive parsed until
// the matching popmeta automatically receives it.
//
// Example:
//
//	pushmeta location: "New York, NY"
//	2014-07-01 * "Hotel"
//	  Expenses:Accommodation  150.00 USD
//	  Liabilities:CreditCard
//	popmeta location:
type Pushmeta struct {
	Pos   Position
	Key   string
	Value string
}

func (p *Pushmeta) Position() Position { return p.Pos }

// Popmeta removes a metadata key previously pushed by a matching pushmeta.
//
// Example:
//
//	popmeta location:
type Popmeta struct {
	Pos Position
	Key string
}

func (p *Popmeta) Position() Position { return p.Pos }
