package ledger

import (
	"fmt"
	"strings"

	"github.com/mattilu/ledger/ast"
	"github.com/shopspring/decimal"
)

// lotCost is one per-unit cost amount in a lot's cost basis. A lot may carry
// more than one (e.g. an LP token lot priced in two currencies at once).
type lotCost struct {
	Value    decimal.Decimal
	Currency string
}

// lotSpec is the resolved cost basis attached to an inventory lot: the
// per-unit cost amounts (already normalized from total cost if needed), the
// lot's UTC instant plus its raw source DateSpec (retained so reductions can
// structurally match the original annotation), and the lot's tags.
type lotSpec struct {
	Costs   []lotCost
	Date    *ast.Date
	RawDate *ast.DateSpec
	Tags    []string
	Merge   bool
}

// IsEmpty reports whether this spec carries no cost amounts, meaning it
// describes a plain (non-cost) position.
func (ls *lotSpec) IsEmpty() bool {
	return ls == nil || len(ls.Costs) == 0
}

// Equal reports structural equality over the set of (value, currency) cost
// amounts plus the lot instant. Tags and merge markers are not part of lot
// identity.
func (ls *lotSpec) Equal(other *lotSpec) bool {
	if ls == nil || other == nil {
		return ls == other
	}
	if len(ls.Costs) != len(other.Costs) {
		return false
	}
	used := make([]bool, len(other.Costs))
	for _, c := range ls.Costs {
		found := false
		for i, oc := range other.Costs {
			if used[i] {
				continue
			}
			if oc.Currency == c.Currency && oc.Value.Equal(c.Value) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	sDate, oDate := ls.Date != nil, other.Date != nil
	if sDate != oDate {
		return false
	}
	if sDate && !ls.Date.Equal(other.Date.Time) {
		return false
	}
	return true
}

// String renders the lot spec the way it would appear in a cost annotation.
func (ls *lotSpec) String() string {
	if ls.IsEmpty() {
		if ls != nil && ls.Merge {
			return "{*}"
		}
		return "{}"
	}

	parts := make([]string, 0, len(ls.Costs)+1)
	for _, c := range ls.Costs {
		parts = append(parts, fmt.Sprintf("%s %s", c.Value.String(), c.Currency))
	}
	if ls.Date != nil {
		parts = append(parts, ls.Date.Format("2006-01-02"))
	}

	var buf strings.Builder
	buf.WriteByte('{')
	buf.WriteString(strings.Join(parts, ", "))
	buf.WriteByte('}')
	return buf.String()
}

// matchesFilter implements the reduction-filter rule: the lot matches a cost
// spec filter if every non-empty filter field matches (currency: any cost
// amount's currency is in the filter; tags: any lot tag is in the filter;
// dates: the lot's instant or raw DateSpec matches any filter entry). An
// empty field is a wildcard.
func (ls *lotSpec) matchesFilter(filter *ast.CostSpec) bool {
	if filter == nil {
		return true
	}

	if len(filter.Currencies) > 0 {
		matched := false
		for _, c := range ls.Costs {
			for _, fc := range filter.Currencies {
				if c.Currency == fc {
					matched = true
				}
			}
		}
		if !matched {
			return false
		}
	}

	if len(filter.Tags) > 0 {
		matched := false
		for _, t := range ls.Tags {
			for _, ft := range filter.Tags {
				if t == ft {
					matched = true
				}
			}
		}
		if !matched {
			return false
		}
	}

	if len(filter.Dates) > 0 {
		matched := false
		for _, fd := range filter.Dates {
			if ls.RawDate != nil && fd.Matches(ls.RawDate) {
				matched = true
				break
			}
			if ls.RawDate == nil && ls.Date != nil && fd.Date == ls.Date.Format("2006-01-02") {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

// lot is a single entry in an account's per-currency inventory: an amount
// held, optionally at a specific cost basis.
type lot struct {
	Commodity string
	Amount    decimal.Decimal
	Spec      *lotSpec
}

func newLot(commodity string, amount decimal.Decimal, spec *lotSpec) *lot {
	return &lot{Commodity: commodity, Amount: amount, Spec: spec}
}

func (l *lot) String() string {
	if l.Spec == nil || l.Spec.IsEmpty() {
		return fmt.Sprintf("%s %s", l.Amount.String(), l.Commodity)
	}
	return fmt.Sprintf("%s %s %s", l.Amount.String(), l.Commodity, l.Spec.String())
}

// ParseLotSpec builds the lot spec that would be attached to new inventory
// from an augmentation's cost specification. Cost amounts are parsed as-is;
// total-cost normalization (dividing by the posting's amount) happens in
// normalizeLotSpecForPosting once the posting's amount is known.
func ParseLotSpec(cost *ast.CostSpec) (*lotSpec, error) {
	if cost == nil || cost.IsEmpty() {
		spec := &lotSpec{}
		if cost != nil {
			spec.Merge = cost.Merge
		}
		return spec, nil
	}

	spec := &lotSpec{Tags: cost.Tags, Merge: cost.Merge}

	for _, amt := range cost.Amounts {
		v, err := ParseAmount(amt)
		if err != nil {
			return nil, fmt.Errorf("invalid cost amount: %w", err)
		}
		spec.Costs = append(spec.Costs, lotCost{Value: v, Currency: amt.Currency})
	}

	if len(cost.Dates) > 0 {
		spec.RawDate = cost.Dates[0]
		instant, err := cost.Dates[0].ToInstant(nil)
		if err != nil {
			return nil, fmt.Errorf("invalid cost date: %w", err)
		}
		spec.Date = ast.NewDateFromTime(instant)
	}

	return spec, nil
}

// normalizeLotSpecForPosting converts a total-cost spec ({{...}}) into a
// per-unit spec by dividing every cost amount by the posting's absolute
// amount, per the augmentation normalization rule.
func normalizeLotSpecForPosting(spec *lotSpec, posting *ast.Posting) error {
	if spec == nil || posting.Cost == nil || posting.Cost.Kind != ast.CostTotal {
		return nil
	}
	amount, err := ParseAmount(posting.Amount)
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return fmt.Errorf("total cost requires a non-zero posting amount")
	}
	divisor := amount.Abs()
	for i := range spec.Costs {
		spec.Costs[i].Value = spec.Costs[i].Value.Div(divisor)
	}
	return nil
}
