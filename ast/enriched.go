package ast

import "golang.org/x/exp/slices"

// EnrichedAST wraps a parsed AST with the derived sets the loader needs
// before booking can start: every currency and account mentioned anywhere
// in the tree, regardless of whether it was ever the subject of an Open or
// Currency directive.
type EnrichedAST struct {
	*AST
	Currencies map[string]bool
	Accounts   map[string]bool
}

// Enrich walks the tree once, collecting the currency and account sets used
// by loader.Load to pre-register graph nodes ahead of booking.
func (a *AST) Enrich() *EnrichedAST {
	e := &EnrichedAST{
		AST:        a,
		Currencies: make(map[string]bool),
		Accounts:   make(map[string]bool),
	}

	addCurrency := func(c string) {
		if c != "" {
			e.Currencies[c] = true
		}
	}
	addAccount := func(acc Account) {
		if acc != "" {
			e.Accounts[string(acc)] = true
		}
	}
	addAmount := func(a *Amount) {
		if a != nil {
			addCurrency(a.Currency)
		}
	}
	addCost := func(c *CostSpec) {
		if c == nil {
			return
		}
		for _, amt := range c.Amounts {
			addAmount(amt)
		}
		for _, cur := range c.Currencies {
			addCurrency(cur)
		}
	}

	for _, d := range a.Directives {
		switch v := d.(type) {
		case *Currency:
			addCurrency(v.Currency)
		case *Open:
			addAccount(v.Account)
			for _, c := range v.ConstraintCurrencies {
				addCurrency(c)
			}
		case *Close:
			addAccount(v.Account)
		case *Balance:
			addAccount(v.Account)
			addAmount(v.Amount)
		case *Transaction:
			for _, p := range v.Postings {
				addAccount(p.Account)
				addAmount(p.Amount)
				addCost(p.Cost)
				addAmount(p.Price)
			}
		case *Note:
			addAccount(v.Account)
		case *Document:
			addAccount(v.Account)
		case *Price:
			addCurrency(v.Commodity)
			addAmount(v.Amount)
		case *Pad:
			addAccount(v.Account)
			addAccount(v.AccountPad)
		case *Custom:
			for _, cv := range v.Values {
				if cv.Amount != nil {
					addAmount(cv.Amount)
				}
			}
		}
	}

	return e
}

// CurrencyList returns the collected currencies in sorted order.
func (e *EnrichedAST) CurrencyList() []string {
	return mapKeys(e.Currencies)
}

// AccountList returns the collected accounts in sorted order.
func (e *EnrichedAST) AccountList() []string {
	return mapKeys(e.Accounts)
}

func mapKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
