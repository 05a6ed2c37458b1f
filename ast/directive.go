package ast

// Currency declares a currency or commodity that can be used in the ledger.
// Declaring it up front lets metadata (display precision, asset class) be
// attached to the symbol itself rather than repeated at every posting.
//
// Example:
//
//	2014-01-01 currency USD
//	  name: "US Dollar"
type Currency struct {
	Pos      Position
	Date     *Date
	Currency string

	withMetadata
	withOptions
	withComment
}

var _ Directive = &Currency{}

func (c *Currency) Position() Position { return c.Pos }
func (c *Currency) GetDate() *Date     { return c.Date }
func (c *Currency) Kind() DirectiveKind { return KindCurrency }
func (c *Currency) Directive() string  { return "commodity" }

// Commodity is an alias for Currency: Beancount's "currency" directive is
// sometimes called a commodity declaration, and callers may refer to it by
// either name.
type Commodity = Currency

// KindCommodity is an alias for KindCurrency.
const KindCommodity = KindCurrency

// Open declares the opening of an account at a specific date. An optional
// currency constraint list restricts which currencies the account may hold;
// an optional booking method (STRICT, NONE, AVERAGE, FIFO, LIFO) overrides
// the ledger-wide default for this account's lot selection.
//
// Example:
//
//	2014-05-01 open Assets:Checking USD
//	2014-05-01 open Assets:Brokerage USD,EUR "FIFO"
type Open struct {
	Pos                  Position
	Date                 *Date
	Account              Account
	ConstraintCurrencies []string
	BookingMethod        string

	withMetadata
	withOptions
	withComment
}

var _ Directive = &Open{}

func (o *Open) Position() Position  { return o.Pos }
func (o *Open) GetDate() *Date      { return o.Date }
func (o *Open) Kind() DirectiveKind { return KindOpen }
func (o *Open) Directive() string  { return "open" }

// Close declares the closing of an account at a specific date. After this
// date the account must carry a zero balance and accept no further postings.
//
// Example:
//
//	2015-09-23 close Assets:Checking
type Close struct {
	Pos     Position
	Date    *Date
	Account Account

	withMetadata
	withOptions
	withComment
}

var _ Directive = &Close{}

func (c *Close) Position() Position  { return c.Pos }
func (c *Close) GetDate() *Date      { return c.Date }
func (c *Close) Kind() DirectiveKind { return KindClose }
func (c *Close) Directive() string  { return "close" }

// Balance asserts that an account holds a specific balance at the start of
// a given date. If the computed balance diverges by more than the active
// tolerance, the booker raises BalanceMismatchError.
//
// Example:
//
//	2014-08-09 balance Assets:Checking 562.00 USD
type Balance struct {
	Pos     Position
	Date    *Date
	Account Account
	Amount  *Amount

	withMetadata
	withOptions
	withComment
}

var _ Directive = &Balance{}

func (b *Balance) Position() Position  { return b.Pos }
func (b *Balance) GetDate() *Date      { return b.Date }
func (b *Balance) Kind() DirectiveKind { return KindBalance }
func (b *Balance) Directive() string  { return "balance" }

// Transaction records a financial transaction with a date, flag, optional
// payee, narration, and a list of postings. Flags follow convention: '*'
// for cleared, '!' for pending, 'P' for generated pad transactions. A
// transaction's postings must balance to zero per currency once booked
// (spec §4.4).
//
// Example:
//
//	2014-05-05 * "Cafe Mogador" "Lunch"
//	  Liabilities:CreditCard   -37.45 USD
//	  Expenses:Food:Restaurant
type Transaction struct {
	Pos       Position
	Date      *Date
	Flag      string
	Payee     RawString
	Narration RawString
	Tags      []string
	Links     []string
	Postings  []*Posting

	withMetadata
	withOptions
	withComment
}

var _ Directive = &Transaction{}

func (t *Transaction) Position() Position  { return t.Pos }
func (t *Transaction) GetDate() *Date      { return t.Date }
func (t *Transaction) Kind() DirectiveKind { return KindTransaction }
func (t *Transaction) Directive() string  { return "transaction" }

// Posting represents one leg of a transaction: an account, an optional
// stated amount, an optional cost specification, and an optional price
// annotation. A posting with no amount is elastic (spec §4.4 case E); one
// with a CostSpec but no Amounts inside it is a reduction filter (case C).
//
// Example postings:
//
//	Assets:Brokerage   10 HOOL {518.73 USD}
//	Assets:Cash       200 EUR @ 1.35 USD
//	Assets:Checking
type Posting struct {
	Pos        Position
	Flag       string
	Account    Account
	Amount     *Amount
	Cost       *CostSpec
	PriceTotal bool
	Price      *Amount

	withMetadata
	withOptions
	withComment
}

func (p *Posting) Position() Position { return p.Pos }

// CostKind distinguishes a per-unit cost amount from a total-cost amount,
// per spec §4.4's augmentation normalization.
type CostKind int

const (
	CostPerUnit CostKind = iota
	CostTotal
)

// CostSpec is the raw, source-level cost annotation attached to a posting:
// `{...}` for per-unit costs, `{{...}}` for total cost. Amounts is an
// ordered multi-currency list (spec §3); Currencies/Dates/Tags are
// reduction filters matched structurally against existing lots rather than
// contributing to a new lot's cost.
type CostSpec struct {
	Pos        Position
	Kind       CostKind
	Amounts    []*Amount
	Currencies []string
	Dates      []*DateSpec
	Tags       []string
	Merge      bool // `{*}` forces average-cost merge of matching lots
}

func (c *CostSpec) Position() Position { return c.Pos }

// IsEmpty reports whether the cost spec carries no lot-defining fields at
// all, meaning it matches any existing lot (a bare `{}` reduction).
func (c *CostSpec) IsEmpty() bool {
	return c == nil || (len(c.Amounts) == 0 && len(c.Currencies) == 0 && len(c.Dates) == 0 && len(c.Tags) == 0)
}

// IsMergeCost reports whether this cost spec carries the `{*}` merge marker,
// requesting average-cost merging of matching lots.
func (c *CostSpec) IsMergeCost() bool {
	return c != nil && c.Merge
}

// Note attaches a dated annotation to an account. Validated (the account
// must be open) but never affects inventory state.
//
// Example:
//
//	2014-07-09 note Assets:Checking "Called bank about pending deposit"
type Note struct {
	Pos         Position
	Date        *Date
	Account     Account
	Description RawString

	withMetadata
	withOptions
	withComment
}

var _ Directive = &Note{}

func (n *Note) Position() Position  { return n.Pos }
func (n *Note) GetDate() *Date      { return n.Date }
func (n *Note) Kind() DirectiveKind { return KindNote }
func (n *Note) Directive() string  { return "note" }

// Document associates an external file with an account at a specific date.
//
// Example:
//
//	2014-07-09 document Assets:Checking "/statements/2014-07.pdf"
type Document struct {
	Pos            Position
	Date           *Date
	Account        Account
	PathToDocument RawString

	withMetadata
	withOptions
	withComment
}

var _ Directive = &Document{}

func (d *Document) Position() Position  { return d.Pos }
func (d *Document) GetDate() *Date      { return d.Date }
func (d *Document) Kind() DirectiveKind { return KindDocument }
func (d *Document) Directive() string  { return "document" }

// Price declares the price of a commodity in terms of another currency,
// feeding the forward-fill conversion graph used for balance reporting.
// Never consulted by the booker.
//
// Example:
//
//	2014-07-09 price USD 1.08 CAD
type Price struct {
	Pos       Position
	Date      *Date
	Commodity string
	Amount    *Amount

	withMetadata
	withOptions
	withComment
}

var _ Directive = &Price{}

func (p *Price) Position() Position  { return p.Pos }
func (p *Price) GetDate() *Date      { return p.Date }
func (p *Price) Kind() DirectiveKind { return KindPrice }
func (p *Price) Directive() string  { return "price" }

// Pad inserts a synthetic balancing transaction sized to satisfy the next
// Balance assertion on Account, posted against AccountPad.
//
// Example:
//
//	2014-01-01 pad Assets:Checking Equity:Opening-Balances
type Pad struct {
	Pos        Position
	Date       *Date
	Account    Account
	AccountPad Account

	withMetadata
	withOptions
	withComment
}

var _ Directive = &Pad{}

func (p *Pad) Position() Position  { return p.Pos }
func (p *Pad) GetDate() *Date      { return p.Date }
func (p *Pad) Kind() DirectiveKind { return KindPad }
func (p *Pad) Directive() string  { return "pad" }

// Event records a named piece of time-varying state (location, employer).
// Purely informational.
//
// Example:
//
//	2014-07-09 event "location" "New York, USA"
type Event struct {
	Pos   Position
	Date  *Date
	Name  RawString
	Value RawString

	withMetadata
	withOptions
	withComment
}

var _ Directive = &Event{}

func (e *Event) Position() Position  { return e.Pos }
func (e *Event) GetDate() *Date      { return e.Date }
func (e *Event) Kind() DirectiveKind { return KindEvent }
func (e *Event) Directive() string  { return "event" }

// Custom is a free-form, typed-tuple directive for annotations that don't
// warrant a first-class directive type. Purely informational.
//
// Example:
//
//	2014-07-09 custom "budget" "groceries" 400.00 USD
type Custom struct {
	Pos    Position
	Date   *Date
	Type   RawString
	Values []*CustomValue

	withMetadata
	withOptions
	withComment
}

var _ Directive = &Custom{}

func (c *Custom) Position() Position  { return c.Pos }
func (c *Custom) GetDate() *Date      { return c.Date }
func (c *Custom) Kind() DirectiveKind { return KindCustom }
func (c *Custom) Directive() string  { return "custom" }

// CustomValue is a single typed value inside a Custom directive. Exactly
// one field is non-nil.
type CustomValue struct {
	String  *string
	Boolean *bool
	Amount  *Amount
	Number  *string
}

// GetValue returns the underlying value, unwrapped from its field.
func (cv *CustomValue) GetValue() any {
	switch {
	case cv.String != nil:
		return *cv.String
	case cv.Boolean != nil:
		return *cv.Boolean
	case cv.Amount != nil:
		return cv.Amount
	case cv.Number != nil:
		return *cv.Number
	default:
		return nil
	}
}
