package ast

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Amount is the raw parsed form of a number-and-currency pair, as it appears
// in source text. The value is kept as a string to preserve the exact
// decimal representation; ledger.ParseAmount converts it into the exact
// rational Amount type used by the booking engine.
type Amount struct {
	Value    string
	Currency string
}

func (a *Amount) String() string {
	if a == nil {
		return ""
	}
	return fmt.Sprintf("%s %s", a.Value, a.Currency)
}

// Account is a colon-separated account path whose first segment is one of
// the five account categories (Assets, Liabilities, Equity, Income,
// Expenses) or the synthetic Trading category used for cost-transfer sinks.
type Account string

var accountSegmentRegex = regexp.MustCompile(`^[A-Z0-9][A-Za-z0-9-]*$`)

// ValidateAccount checks that an account name has at least two
// colon-separated segments, a recognized first segment, and well-formed
// subsequent segments.
func ValidateAccount(name string) error {
	parts := strings.Split(name, ":")
	if len(parts) < 2 {
		return fmt.Errorf("account must have at least two segments: %s", name)
	}

	switch parts[0] {
	case "Assets", "Liabilities", "Equity", "Income", "Expenses", "Trading":
	default:
		return fmt.Errorf("unexpected account type %q", parts[0])
	}

	for i := 1; i < len(parts); i++ {
		if !accountSegmentRegex.MatchString(parts[i]) {
			return fmt.Errorf("invalid account segment at position %d: %s", i, parts[i])
		}
	}
	return nil
}

// AccountType is the canonical first segment of an account path: one of the
// five balance-sheet/income-statement categories, plus the synthetic Trading
// category used for cost-transfer sinks (spec §4.4).
type AccountType string

const (
	AccountTypeAssets      AccountType = "Assets"
	AccountTypeLiabilities AccountType = "Liabilities"
	AccountTypeEquity      AccountType = "Equity"
	AccountTypeIncome      AccountType = "Income"
	AccountTypeExpenses    AccountType = "Expenses"
	AccountTypeTrading     AccountType = "Trading"
)

// AccountTypeOf returns the canonical account type for an account path (the
// first colon-separated segment), and false if the account string is empty
// or has no segment separator.
func AccountTypeOf(account Account) (AccountType, bool) {
	s := string(account)
	idx := strings.IndexByte(s, ':')
	if idx <= 0 {
		return "", false
	}
	return AccountType(s[:idx]), true
}

// Date is a UTC instant. Every directive carries one; bare calendar dates
// normalize to midnight UTC, per spec §6.
type Date struct {
	time.Time
}

// NewDateFromTime wraps a time.Time, normalizing it to UTC.
func NewDateFromTime(t time.Time) *Date {
	return &Date{Time: t.UTC()}
}

// IsZero is nil-safe.
func (d *Date) IsZero() bool {
	return d == nil || d.Time.IsZero()
}

// DateSpec is the raw, source-level form of a date used inside a cost
// specification: a calendar date plus an optional time and an optional
// timezone name, retained exactly as written so that reduction filters can
// structurally match a lot's original DateSpec rather than its resolved
// instant (spec §4.4 "Date-spec structural match").
type DateSpec struct {
	Date     string // YYYY-MM-DD
	Time     *string
	Timezone *string
}

// Matches implements the structural match rule from spec §4.4: the
// calendar date must be equal, and the time/timezone must either be absent
// on the query side or equal.
func (q *DateSpec) Matches(c *DateSpec) bool {
	if q == nil || c == nil {
		return q == c
	}
	if q.Date != c.Date {
		return false
	}
	if q.Time != nil && (c.Time == nil || *q.Time != *c.Time) {
		return false
	}
	if q.Timezone != nil && (c.Timezone == nil || *q.Timezone != *c.Timezone) {
		return false
	}
	return true
}

// ToInstant resolves the DateSpec to a UTC instant, using defaultLoc when
// no timezone is attached and bare-date semantics (00:00) when no time is
// attached.
func (d *DateSpec) ToInstant(defaultLoc *time.Location) (time.Time, error) {
	if d == nil {
		return time.Time{}, fmt.Errorf("nil date spec")
	}
	layout := "2006-01-02"
	value := d.Date
	if d.Time != nil {
		if strings.Count(*d.Time, ":") == 1 {
			layout += " 15:04"
		} else {
			layout += " 15:04:05"
		}
		value += " " + *d.Time
	}

	loc := defaultLoc
	if loc == nil {
		loc = time.UTC
	}
	if d.Timezone != nil {
		tzLoc, err := time.LoadLocation(*d.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", *d.Timezone, err)
		}
		loc = tzLoc
	}

	t, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return t.UTC(), nil
}

// MetadataValue is a typed value attached to a directive or posting. It is a
// discriminated union: exactly one field should be non-nil. The Account
// variant is what resolveTradingAccount (ledger/options.go) requires for
// posting/transaction/open "trading-account" metadata per spec §4.4/§4.6.
type MetadataValue struct {
	StringValue *RawString
	Date        *Date
	Account     *Account
	Currency    *string
	Number      *string // kept as a string to preserve precision until parsed
	Amount      *Amount
	Boolean     *bool
	Tag         *string
	Link        *string
}

// Type returns a label for the value's dynamic type.
func (m *MetadataValue) Type() string {
	if m == nil {
		return "nil"
	}
	switch {
	case m.StringValue != nil:
		return "string"
	case m.Date != nil:
		return "date"
	case m.Account != nil:
		return "account"
	case m.Currency != nil:
		return "currency"
	case m.Number != nil:
		return "number"
	case m.Amount != nil:
		return "amount"
	case m.Boolean != nil:
		return "boolean"
	case m.Tag != nil:
		return "tag"
	case m.Link != nil:
		return "link"
	default:
		return "unknown"
	}
}

func (m *MetadataValue) String() string {
	if m == nil {
		return ""
	}
	switch {
	case m.StringValue != nil:
		return m.StringValue.Value
	case m.Date != nil:
		return m.Date.Format("2006-01-02")
	case m.Account != nil:
		return string(*m.Account)
	case m.Currency != nil:
		return *m.Currency
	case m.Number != nil:
		return *m.Number
	case m.Amount != nil:
		return m.Amount.String()
	case m.Boolean != nil:
		if *m.Boolean {
			return "TRUE"
		}
		return "FALSE"
	case m.Tag != nil:
		return "#" + *m.Tag
	case m.Link != nil:
		return "^" + *m.Link
	default:
		return ""
	}
}

// RawString is a quoted string literal as it appears in source, kept
// alongside its unquoted value so the formatter can round-trip the original
// quoting/escaping style where it matters.
type RawString struct {
	Value string // unquoted, unescaped value
	Raw   string // original token text, including quotes and escapes
}

func (s RawString) String() string {
	return s.Value
}

// HasRaw reports whether the original quoted source text was preserved.
func (s RawString) HasRaw() bool {
	return s.Raw != ""
}

// IsEmpty reports whether the string has no content (used by optional
// raw-string fields like Plugin.Config).
func (s RawString) IsEmpty() bool {
	return s.Value == ""
}

// NewRawString builds a RawString with no distinct raw form; Raw is derived
// by quoting Value plainly.
func NewRawString(value string) RawString {
	return RawString{Value: value, Raw: `"` + value + `"`}
}

// NewRawStringWithRaw builds a RawString preserving the original quoted
// source text alongside its unquoted value.
func NewRawStringWithRaw(raw, value string) RawString {
	return RawString{Value: value, Raw: raw}
}

// Metadata is a key/value pair attached to a directive or posting.
type Metadata struct {
	Key   string
	Value *MetadataValue
	// Inline marks metadata written on the same source line as the
	// directive/posting it annotates, rather than on its own indented
	// line. The formatter uses this to decide how to re-render it.
	Inline bool
}

// MetadataMap indexes a metadata slice by key, last entry wins, matching
// how the booker resolves posting/transaction/open metadata precedence.
type MetadataMap map[string]*MetadataValue

func NewMetadataMap(meta []*Metadata) MetadataMap {
	m := make(MetadataMap, len(meta))
	for _, entry := range meta {
		m[entry.Key] = entry.Value
	}
	return m
}
