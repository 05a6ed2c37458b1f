// Package ast provides constructor functions for programmatically building
// ledger Abstract Syntax Tree nodes. These builders exist mainly for test
// fixtures and for callers assembling a ledger from code rather than text.
package ast

import "time"

// NewAmount creates a new Amount with the given value and currency.
func NewAmount(value, currency string) *Amount {
	return &Amount{Value: value, Currency: currency}
}

// NewDate parses a date string in YYYY-MM-DD format.
func NewDate(s string) (*Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return NewDateFromTime(t), nil
}

// NewAccount creates an Account from the given name, validating it.
func NewAccount(name string) (Account, error) {
	if err := ValidateAccount(name); err != nil {
		return "", err
	}
	return Account(name), nil
}

// NewMetadata creates a Metadata key/value pair with a string value.
func NewMetadata(key, value string) *Metadata {
	rs := NewRawString(value)
	return &Metadata{Key: key, Value: &MetadataValue{StringValue: &rs}}
}

// NewAccountMetadata creates a Metadata key/value pair with an account
// value, used for "trading-account" metadata.
func NewAccountMetadata(key string, account Account) *Metadata {
	return &Metadata{Key: key, Value: &MetadataValue{Account: &account}}
}

// TransactionOption is a functional option for configuring a Transaction.
type TransactionOption func(*Transaction)

// NewTransaction creates a new Transaction with the given date and
// narration. Additional fields are set via functional options.
func NewTransaction(date *Date, narration string, opts ...TransactionOption) *Transaction {
	txn := &Transaction{Date: date, Narration: NewRawString(narration)}
	for _, opt := range opts {
		opt(txn)
	}
	return txn
}

func WithFlag(flag string) TransactionOption {
	return func(t *Transaction) { t.Flag = flag }
}

func WithPayee(payee string) TransactionOption {
	return func(t *Transaction) { t.Payee = NewRawString(payee) }
}

func WithTransactionMetadata(metadata ...*Metadata) TransactionOption {
	return func(t *Transaction) { t.AddMetadata(metadata...) }
}

func WithPostings(postings ...*Posting) TransactionOption {
	return func(t *Transaction) { t.Postings = postings }
}

// PostingOption is a functional option for configuring a Posting.
type PostingOption func(*Posting)

// NewPosting creates a new Posting for the given account.
func NewPosting(account Account, opts ...PostingOption) *Posting {
	p := &Posting{Account: account}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func WithAmount(value, currency string) PostingOption {
	return func(p *Posting) { p.Amount = NewAmount(value, currency) }
}

func WithCost(cost *CostSpec) PostingOption {
	return func(p *Posting) { p.Cost = cost }
}

func WithPrice(price *Amount) PostingOption {
	return func(p *Posting) { p.Price = price; p.PriceTotal = false }
}

func WithTotalPrice(price *Amount) PostingOption {
	return func(p *Posting) { p.Price = price; p.PriceTotal = true }
}

func WithPostingFlag(flag string) PostingOption {
	return func(p *Posting) { p.Flag = flag }
}

func WithPostingMetadata(metadata ...*Metadata) PostingOption {
	return func(p *Posting) { p.AddMetadata(metadata...) }
}

// NewCostSpec creates a per-unit cost specification from one cost amount.
func NewCostSpec(amount *Amount) *CostSpec {
	return &CostSpec{Kind: CostPerUnit, Amounts: []*Amount{amount}}
}

// NewCostSpecWithDate creates a per-unit cost specification with an
// acquisition date.
func NewCostSpecWithDate(amount *Amount, date string) *CostSpec {
	return &CostSpec{Kind: CostPerUnit, Amounts: []*Amount{amount}, Dates: []*DateSpec{{Date: date}}}
}

// NewEmptyCostSpec creates an empty cost specification {}, matching any lot.
func NewEmptyCostSpec() *CostSpec {
	return &CostSpec{}
}

// NewCost is an alias for NewCostSpec.
func NewCost(amount *Amount) *CostSpec {
	return NewCostSpec(amount)
}

// NewEmptyCost is an alias for NewEmptyCostSpec.
func NewEmptyCost() *CostSpec {
	return NewEmptyCostSpec()
}

// NewMergeCostSpec creates a merge cost specification {*}.
func NewMergeCostSpec() *CostSpec {
	return &CostSpec{Merge: true}
}

// NewClearedTransaction creates a Transaction with flag "*" (cleared).
func NewClearedTransaction(date *Date, narration string, postings ...*Posting) *Transaction {
	return NewTransaction(date, narration, WithFlag("*"), WithPostings(postings...))
}

// NewPendingTransaction creates a Transaction with flag "!" (pending).
func NewPendingTransaction(date *Date, narration string, postings ...*Posting) *Transaction {
	return NewTransaction(date, narration, WithFlag("!"), WithPostings(postings...))
}

// NewOpen creates an Open directive for an account.
func NewOpen(date *Date, account Account, constraintCurrencies []string, bookingMethod string) *Open {
	return &Open{Date: date, Account: account, ConstraintCurrencies: constraintCurrencies, BookingMethod: bookingMethod}
}

// NewClose creates a Close directive for an account.
func NewClose(date *Date, account Account) *Close {
	return &Close{Date: date, Account: account}
}

// NewBalance creates a Balance assertion directive.
func NewBalance(date *Date, account Account, amount *Amount) *Balance {
	return &Balance{Date: date, Account: account, Amount: amount}
}

// NewPad creates a Pad directive.
func NewPad(date *Date, account, padAccount Account) *Pad {
	return &Pad{Date: date, Account: account, AccountPad: padAccount}
}

// NewNote creates a Note directive.
func NewNote(date *Date, account Account, description string) *Note {
	return &Note{Date: date, Account: account, Description: NewRawString(description)}
}

// NewDocument creates a Document directive.
func NewDocument(date *Date, account Account, pathToDocument string) *Document {
	return &Document{Date: date, Account: account, PathToDocument: NewRawString(pathToDocument)}
}

// NewCurrency creates a Currency directive.
func NewCurrency(date *Date, currency string) *Currency {
	return &Currency{Date: date, Currency: currency}
}

// NewPrice creates a Price directive.
func NewPrice(date *Date, commodity string, amount *Amount) *Price {
	return &Price{Date: date, Commodity: commodity, Amount: amount}
}

// NewEvent creates an Event directive.
func NewEvent(date *Date, name, value string) *Event {
	return &Event{Date: date, Name: NewRawString(name), Value: NewRawString(value)}
}

// NewCustom creates a Custom directive.
func NewCustom(date *Date, typeName string, values []*CustomValue) *Custom {
	return &Custom{Date: date, Type: NewRawString(typeName), Values: values}
}
