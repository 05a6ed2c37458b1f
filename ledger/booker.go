package ledger

import (
	"context"

	"github.com/mattilu/ledger/ast"
	"github.com/shopspring/decimal"
)

// BookedPosting is a synthetic posting emitted by the transaction booker for
// the trading-account leg of a costed augmentation or reduction (spec §4.4
// cases A and B): a plain amount/currency entry carrying no cost, no price,
// and no metadata of its own.
type BookedPosting struct {
	Account ast.Account
	Amount  Amount
}

// bookTradingPostings implements spec §4.4 cases A and B: the synthetic
// trading-account postings that turn a cost-weighted balance (what
// calculateBalance already checks) into a literally balanced set of
// postings, with every quantity and every cost currency netting to zero on
// its own. It also resolves, for every costed posting, the exact lotSpec and
// booking method used so applyTransaction mutates inventory identically to
// what was validated here.
//
// Must run after calculateBalance and validateInventoryOperations succeed:
// it assumes every posting's amount is already resolvable (explicit or in
// delta.InferredAmounts) and that reductions are known to have sufficient
// inventory.
func (v *validator) bookTradingPostings(ctx context.Context, txn *ast.Transaction, delta *TransactionDelta) []error {
	var errs []error
	cfg := ConfigFromContext(ctx)

	delta.TradingPostings = nil
	delta.ResolvedLotSpecs = make(map[*ast.Posting]*lotSpec)
	delta.ReductionConsumptions = make(map[*ast.Posting][]lotConsumption)
	delta.ResolvedBookingMethods = make(map[*ast.Posting]string)

	for _, posting := range txn.Postings {
		if posting.Cost == nil || posting.Cost.IsMergeCost() {
			continue
		}

		amountSpec := posting.Amount
		if amountSpec == nil {
			amountSpec = delta.InferredAmounts[posting]
		}
		if amountSpec == nil {
			continue
		}
		amount, err := ParseAmount(amountSpec)
		if err != nil {
			continue
		}

		account := v.accounts[string(posting.Account)]
		if account == nil {
			continue
		}

		if len(posting.Cost.Amounts) > 0 {
			// Case A: augmentation.
			if errs2 := v.bookAugmentation(txn, posting, account, amount, amountSpec.Currency, delta); len(errs2) > 0 {
				errs = append(errs, errs2...)
			}
			continue
		}

		if amount.IsNegative() {
			// Case B: reduction.
			if errs2 := v.bookReduction(txn, posting, account, amount, amountSpec.Currency, delta, cfg); len(errs2) > 0 {
				errs = append(errs, errs2...)
			}
		}
	}

	return errs
}

// bookAugmentation implements spec §4.4 case A for a single posting: it
// resolves the per-unit cost into delta.ResolvedLotSpecs and appends the two
// trading-account postings that keep the commodity quantity and the cost
// currency amount in literal double-entry balance to delta.TradingPostings.
func (v *validator) bookAugmentation(txn *ast.Transaction, posting *ast.Posting, account *Account,
	amount decimal.Decimal, currency string, delta *TransactionDelta) []error {

	if len(posting.Cost.Dates) > 1 {
		return []error{NewAugmentationMultipleDatesError(txn, posting.Account)}
	}
	if len(posting.Cost.Currencies) > 0 {
		return []error{NewAugmentationHasCurrencyFilterError(txn, posting.Account)}
	}

	spec, err := ParseLotSpec(posting.Cost)
	if err != nil {
		return nil
	}
	if err := normalizeLotSpecForPosting(spec, posting); err != nil {
		return nil
	}
	if spec.Date == nil {
		spec.Date = txn.Date
	}
	delta.ResolvedLotSpecs[posting] = spec

	tradingAccount := resolveTradingAccount(posting, txn, account.Metadata)

	delta.TradingPostings = append(delta.TradingPostings, &BookedPosting{
		Account: tradingAccount,
		Amount:  NewAmount(amount.Neg(), currency),
	})
	for _, c := range spec.Costs {
		delta.TradingPostings = append(delta.TradingPostings, &BookedPosting{
			Account: tradingAccount,
			Amount:  NewAmount(c.Value.Mul(amount), c.Currency),
		})
	}

	return nil
}

// bookReduction implements spec §4.4 case B for a single posting: it filters
// the account's inventory into usable/rest by the cost-spec filter, selects
// lots in booking-method order, records the per-lot consumption into
// delta.ReductionConsumptions so applyTransaction can mutate the account's
// inventory exactly as booked, and appends two trading-account postings per
// consumed lot to delta.TradingPostings.
func (v *validator) bookReduction(txn *ast.Transaction, posting *ast.Posting, account *Account,
	amount decimal.Decimal, currency string, delta *TransactionDelta, cfg *Config) []error {

	usable, _ := account.Inventory.FilterLots(currency, posting.Cost)

	bookingMethod, err := resolveBookingMethod(posting, txn, account, cfg)
	if err != nil {
		return []error{err}
	}
	delta.ResolvedBookingMethods[posting] = bookingMethod

	consumed, err := SelectLotsForReduction(usable, amount.Abs(), bookingMethod)
	if err != nil {
		return []error{NewInsufficientInventoryError(txn, posting.Account, err)}
	}
	delta.ReductionConsumptions[posting] = consumed

	tradingAccount := resolveTradingAccount(posting, txn, account.Metadata)

	for _, c := range consumed {
		// c.Amount is the positive quantity consumed from this lot; the
		// reduction posting piece it corresponds to carries the negated
		// amount.
		pieceAmount := c.Amount.Neg()

		delta.TradingPostings = append(delta.TradingPostings, &BookedPosting{
			Account: tradingAccount,
			Amount:  NewAmount(pieceAmount.Neg(), currency),
		})

		for _, cost := range c.Spec.Costs {
			delta.TradingPostings = append(delta.TradingPostings, &BookedPosting{
				Account: tradingAccount,
				Amount:  NewAmount(cost.Value.Mul(pieceAmount), cost.Currency),
			})
		}
	}

	return nil
}
