package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattilu/ledger/ast"
	"github.com/samber/lo"
)

// Error types for ledger validation errors.
//
// Every error carries enough context (position, date, directive, account) to
// render a bean-check style diagnostic, and exposes Get* accessors so callers
// can inspect the failure programmatically instead of parsing Error()'s text.

// location formats a "filename:line" prefix, falling back to the date when
// the directive has no tracked source position.
func location(pos ast.Position, date *ast.Date) string {
	if pos.Filename != "" {
		return fmt.Sprintf("%s:%d", pos.Filename, pos.Line)
	}
	if date != nil {
		return date.Format("2006-01-02")
	}
	return "?"
}

// AccountNotOpenError is returned when a directive references an account
// that hasn't been opened (or is closed) at the directive's date.
type AccountNotOpenError struct {
	Directive ast.Directive
	Account   ast.Account
}

func (e *AccountNotOpenError) Error() string {
	return fmt.Sprintf("%s: Invalid reference to unknown account '%s'",
		location(e.Directive.Position(), e.Directive.GetDate()), e.Account)
}

func (e *AccountNotOpenError) GetDate() *ast.Date          { return e.Directive.GetDate() }
func (e *AccountNotOpenError) GetPosition() ast.Position   { return e.Directive.Position() }
func (e *AccountNotOpenError) GetDirective() ast.Directive { return e.Directive }
func (e *AccountNotOpenError) GetAccount() ast.Account     { return e.Account }

func NewAccountNotOpenError(txn *ast.Transaction, account ast.Account) *AccountNotOpenError {
	return &AccountNotOpenError{Directive: txn, Account: account}
}

func NewAccountNotOpenErrorFromBalance(balance *ast.Balance) *AccountNotOpenError {
	return &AccountNotOpenError{Directive: balance, Account: balance.Account}
}

func NewAccountNotOpenErrorFromPad(pad *ast.Pad, account ast.Account) *AccountNotOpenError {
	return &AccountNotOpenError{Directive: pad, Account: account}
}

func NewAccountNotOpenErrorFromNote(note *ast.Note) *AccountNotOpenError {
	return &AccountNotOpenError{Directive: note, Account: note.Account}
}

func NewAccountNotOpenErrorFromDocument(doc *ast.Document) *AccountNotOpenError {
	return &AccountNotOpenError{Directive: doc, Account: doc.Account}
}

// AccountAlreadyOpenError is returned when trying to open an account that's already open.
type AccountAlreadyOpenError struct {
	Open       *ast.Open
	OpenedDate *ast.Date
}

func (e *AccountAlreadyOpenError) Error() string {
	return fmt.Sprintf("%s: Account %s is already open (opened on %s)",
		e.Open.Date.Format("2006-01-02"), e.Open.Account, e.OpenedDate.Format("2006-01-02"))
}

func NewAccountAlreadyOpenError(open *ast.Open, openedDate *ast.Date) *AccountAlreadyOpenError {
	return &AccountAlreadyOpenError{Open: open, OpenedDate: openedDate}
}

// AccountAlreadyClosedError is returned when trying to close an account that's already closed.
type AccountAlreadyClosedError struct {
	Close      *ast.Close
	ClosedDate *ast.Date
}

func (e *AccountAlreadyClosedError) Error() string {
	return fmt.Sprintf("%s: Account %s is already closed (closed on %s)",
		e.Close.Date.Format("2006-01-02"), e.Close.Account, e.ClosedDate.Format("2006-01-02"))
}

func NewAccountAlreadyClosedError(close *ast.Close, closedDate *ast.Date) *AccountAlreadyClosedError {
	return &AccountAlreadyClosedError{Close: close, ClosedDate: closedDate}
}

// AccountNotClosedError is returned when trying to close an account that was never opened.
type AccountNotClosedError struct {
	Close *ast.Close
}

func (e *AccountNotClosedError) Error() string {
	return fmt.Sprintf("%s: Cannot close account %s that was never opened",
		e.Close.Date.Format("2006-01-02"), e.Close.Account)
}

func NewAccountNotClosedError(close *ast.Close) *AccountNotClosedError {
	return &AccountNotClosedError{Close: close}
}

// TransactionNotBalancedError is returned when a transaction doesn't balance.
type TransactionNotBalancedError struct {
	Transaction *ast.Transaction
	Residuals   map[string]string // currency -> amount string (unbalanced amounts)
}

func (e *TransactionNotBalancedError) Error() string {
	return fmt.Sprintf("%s: Transaction does not balance: %s",
		location(e.Transaction.Position(), e.Transaction.Date), e.formatResiduals())
}

func (e *TransactionNotBalancedError) formatResiduals() string {
	if len(e.Residuals) == 0 {
		return ""
	}
	currencies := lo.Keys(e.Residuals)
	sort.Strings(currencies)

	var buf strings.Builder
	buf.WriteByte('(')
	for i, currency := range currencies {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s %s", e.Residuals[currency], currency)
	}
	buf.WriteByte(')')
	return buf.String()
}

func NewTransactionNotBalancedError(txn *ast.Transaction, residuals map[string]string) *TransactionNotBalancedError {
	return &TransactionNotBalancedError{Transaction: txn, Residuals: residuals}
}

// InvalidAmountError is returned when an amount cannot be parsed.
type InvalidAmountError struct {
	Directive  ast.Directive
	Account    ast.Account
	Value      string
	Underlying error
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("%s: Invalid amount %q for account %s: %v",
		location(e.Directive.Position(), e.Directive.GetDate()), e.Value, e.Account, e.Underlying)
}

func NewInvalidAmountError(txn *ast.Transaction, account ast.Account, value string, err error) *InvalidAmountError {
	return &InvalidAmountError{Directive: txn, Account: account, Value: value, Underlying: err}
}

func NewInvalidAmountErrorFromBalance(balance *ast.Balance, err error) *InvalidAmountError {
	value := ""
	if balance.Amount != nil {
		value = balance.Amount.Value
	}
	return &InvalidAmountError{Directive: balance, Account: balance.Account, Value: value, Underlying: err}
}

// InvalidCostError is returned when a cost specification is invalid.
type InvalidCostError struct {
	Transaction  *ast.Transaction
	Account      ast.Account
	PostingIndex int
	CostSpec     string
	Underlying   error
}

func (e *InvalidCostError) Error() string {
	return fmt.Sprintf("%s: Invalid cost specification (Posting #%d: %s): %s: %v",
		location(e.Transaction.Position(), e.Transaction.Date), e.PostingIndex+1, e.Account, e.CostSpec, e.Underlying)
}

func NewInvalidCostError(txn *ast.Transaction, account ast.Account, index int, costSpec string, err error) *InvalidCostError {
	return &InvalidCostError{Transaction: txn, Account: account, PostingIndex: index, CostSpec: costSpec, Underlying: err}
}

// InvalidPriceError is returned when a price specification is invalid.
type InvalidPriceError struct {
	Transaction  *ast.Transaction
	Account      ast.Account
	PostingIndex int
	PriceSpec    string
	Underlying   error
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("%s: Invalid price specification (Posting #%d: %s): %s: %v",
		location(e.Transaction.Position(), e.Transaction.Date), e.PostingIndex+1, e.Account, e.PriceSpec, e.Underlying)
}

func NewInvalidPriceError(txn *ast.Transaction, account ast.Account, index int, priceSpec string, err error) *InvalidPriceError {
	return &InvalidPriceError{Transaction: txn, Account: account, PostingIndex: index, PriceSpec: priceSpec, Underlying: err}
}

// InvalidMetadataError is returned for duplicate keys or empty metadata values.
type InvalidMetadataError struct {
	Transaction *ast.Transaction
	Account     ast.Account // empty if transaction-level metadata
	Key         string
	Value       *ast.MetadataValue
	Reason      string
}

func (e *InvalidMetadataError) Error() string {
	scope := ""
	if e.Account != "" {
		scope = fmt.Sprintf(" (account %s)", e.Account)
	}
	return fmt.Sprintf("%s: Invalid metadata%s: key=%q, value=%q: %s",
		location(e.Transaction.Position(), e.Transaction.Date), scope, e.Key, e.Value.String(), e.Reason)
}

func NewInvalidMetadataError(txn *ast.Transaction, account ast.Account, key string, value *ast.MetadataValue, reason string) *InvalidMetadataError {
	return &InvalidMetadataError{Transaction: txn, Account: account, Key: key, Value: value, Reason: reason}
}

// BalanceMismatchError is returned when a balance assertion fails.
type BalanceMismatchError struct {
	Balance  *ast.Balance
	Expected string
	Actual   string
	Currency string
}

func (e *BalanceMismatchError) Error() string {
	return fmt.Sprintf("%s: Balance mismatch for %s:\n  Expected: %s %s\n  Actual:   %s %s",
		e.Balance.Date.Format("2006-01-02"), e.Balance.Account,
		e.Expected, e.Currency, e.Actual, e.Currency)
}

func NewBalanceMismatchError(balance *ast.Balance, expected, actual, currency string) *BalanceMismatchError {
	return &BalanceMismatchError{Balance: balance, Expected: expected, Actual: actual, Currency: currency}
}

// CurrencyConstraintError is returned when a posting uses a currency not
// allowed by the account's constraint list.
type CurrencyConstraintError struct {
	Transaction       *ast.Transaction
	Account           ast.Account
	Currency          string
	AllowedCurrencies []string
	Payee             string
}

func (e *CurrencyConstraintError) Error() string {
	return fmt.Sprintf("%s: Currency %s not allowed for account %s (allowed: %v)",
		location(e.Transaction.Position(), e.Transaction.Date), e.Currency, e.Account, e.AllowedCurrencies)
}

func (e *CurrencyConstraintError) GetDate() *ast.Date          { return e.Transaction.Date }
func (e *CurrencyConstraintError) GetPosition() ast.Position   { return e.Transaction.Position() }
func (e *CurrencyConstraintError) GetDirective() ast.Directive { return e.Transaction }
func (e *CurrencyConstraintError) GetAccount() ast.Account     { return e.Account }

func NewCurrencyConstraintError(txn *ast.Transaction, account ast.Account, currency string, allowed []string) *CurrencyConstraintError {
	return &CurrencyConstraintError{
		Transaction:       txn,
		Account:           account,
		Currency:          currency,
		AllowedCurrencies: allowed,
		Payee:             txn.Payee.Value,
	}
}

// InsufficientInventoryError is returned when a lot reduction cannot be
// satisfied by the account's current inventory.
type InsufficientInventoryError struct {
	Transaction *ast.Transaction
	Account     ast.Account
	Details     error
	Payee       string
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("%s: Insufficient inventory for account %s: %v",
		location(e.Transaction.Position(), e.Transaction.Date), e.Account, e.Details)
}

func (e *InsufficientInventoryError) GetDate() *ast.Date          { return e.Transaction.Date }
func (e *InsufficientInventoryError) GetPosition() ast.Position   { return e.Transaction.Position() }
func (e *InsufficientInventoryError) GetDirective() ast.Directive { return e.Transaction }
func (e *InsufficientInventoryError) GetAccount() ast.Account     { return e.Account }

func NewInsufficientInventoryError(txn *ast.Transaction, account ast.Account, details error) *InsufficientInventoryError {
	return &InsufficientInventoryError{Transaction: txn, Account: account, Details: details, Payee: txn.Payee.Value}
}

// UnusedPadWarning is returned when a pad directive is never consumed by a
// subsequent balance assertion on the same account.
type UnusedPadWarning struct {
	Pad *ast.Pad
}

func (e *UnusedPadWarning) Error() string {
	return fmt.Sprintf("%s: Pad for %s from %s is unused (no subsequent balance assertion)",
		e.Pad.Date.Format("2006-01-02"), e.Pad.Account, e.Pad.AccountPad)
}

func NewUnusedPadWarning(pad *ast.Pad) *UnusedPadWarning {
	return &UnusedPadWarning{Pad: pad}
}

// AugmentationError is returned when an augmenting posting's cost
// specification violates the booker's augmentation constraints (spec §4.4
// case A): at most one date, and no currency/tag filters (those only make
// sense on a reduction's empty cost spec).
type AugmentationError struct {
	Transaction *ast.Transaction
	Account     ast.Account
	Reason      string
}

func (e *AugmentationError) Error() string {
	return fmt.Sprintf("%s: Invalid augmentation on account %s: %s",
		location(e.Transaction.Position(), e.Transaction.Date), e.Account, e.Reason)
}

func (e *AugmentationError) GetDate() *ast.Date          { return e.Transaction.Date }
func (e *AugmentationError) GetPosition() ast.Position   { return e.Transaction.Position() }
func (e *AugmentationError) GetDirective() ast.Directive { return e.Transaction }
func (e *AugmentationError) GetAccount() ast.Account     { return e.Account }

func NewAugmentationHasCurrencyFilterError(txn *ast.Transaction, account ast.Account) *AugmentationError {
	return &AugmentationError{Transaction: txn, Account: account, Reason: "cost specification carries a currency filter, which is only valid on a reduction"}
}

func NewAugmentationMultipleDatesError(txn *ast.Transaction, account ast.Account) *AugmentationError {
	return &AugmentationError{Transaction: txn, Account: account, Reason: "cost specification carries more than one date"}
}

// CrossCurrencyArithmeticError is returned by Amount's Add/Sub/Cmp when the
// two operands don't share a currency (spec §4.1: every binary Amount
// operation requires identical currencies). It carries no directive context
// because the violation is in the arithmetic itself, not in any one
// directive's reference to an account or posting.
type CrossCurrencyArithmeticError struct {
	Left  string
	Right string
}

func (e *CrossCurrencyArithmeticError) Error() string {
	return fmt.Sprintf("cross-currency arithmetic: cannot combine %s with %s", e.Left, e.Right)
}

func NewCrossCurrencyArithmeticError(left, right string) *CrossCurrencyArithmeticError {
	return &CrossCurrencyArithmeticError{Left: left, Right: right}
}

// InferenceUnsupportedError is returned when a posting carries a cost
// specification but no amount (spec §4.4 case C): the booker can infer a
// missing amount for a plain (uncosted) posting, but never for one that also
// needs a cost basis, since the per-unit cost itself depends on knowing the
// quantity.
type InferenceUnsupportedError struct {
	Transaction *ast.Transaction
	Account     ast.Account
}

func (e *InferenceUnsupportedError) Error() string {
	return fmt.Sprintf("%s: Cannot infer amount for costed posting on account %s",
		location(e.Transaction.Position(), e.Transaction.Date), e.Account)
}

func (e *InferenceUnsupportedError) GetDate() *ast.Date          { return e.Transaction.Date }
func (e *InferenceUnsupportedError) GetPosition() ast.Position   { return e.Transaction.Position() }
func (e *InferenceUnsupportedError) GetDirective() ast.Directive { return e.Transaction }
func (e *InferenceUnsupportedError) GetAccount() ast.Account     { return e.Account }

func NewInferenceUnsupportedError(txn *ast.Transaction, account ast.Account) *InferenceUnsupportedError {
	return &InferenceUnsupportedError{Transaction: txn, Account: account}
}

// InvalidOptionError is returned when an "option" directive names an
// unrecognized mode for a closed set of choices (spec §7): an unknown
// booking-method or an unknown account-reference-checks mode.
type InvalidOptionError struct {
	Directive ast.Directive
	Name      string
	Value     string
	Reason    string
}

func (e *InvalidOptionError) Error() string {
	loc := "?"
	if e.Directive != nil {
		loc = location(e.Directive.Position(), e.Directive.GetDate())
	}
	return fmt.Sprintf("%s: Invalid option %s=%q: %s", loc, e.Name, e.Value, e.Reason)
}

func NewInvalidOptionError(directive ast.Directive, name, value, reason string) *InvalidOptionError {
	return &InvalidOptionError{Directive: directive, Name: name, Value: value, Reason: reason}
}

// DuplicateCurrencyError is returned when a currency/commodity already has a
// Commodity directive declared for it (spec §4.5).
type DuplicateCurrencyError struct {
	Commodity *ast.Commodity
}

func (e *DuplicateCurrencyError) Error() string {
	return fmt.Sprintf("%s: Currency %s already has a commodity directive",
		location(e.Commodity.Position(), e.Commodity.GetDate()), e.Commodity.Currency)
}

func (e *DuplicateCurrencyError) GetDate() *ast.Date          { return e.Commodity.Date }
func (e *DuplicateCurrencyError) GetPosition() ast.Position   { return e.Commodity.Position() }
func (e *DuplicateCurrencyError) GetDirective() ast.Directive { return e.Commodity }

func NewDuplicateCurrencyError(commodity *ast.Commodity) *DuplicateCurrencyError {
	return &DuplicateCurrencyError{Commodity: commodity}
}
