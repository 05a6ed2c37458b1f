package ledger

import (
	"fmt"

	"github.com/mattilu/ledger/ast"
	"github.com/shopspring/decimal"
)

// Weight represents the contribution of a posting to the transaction balance
// A posting can contribute multiple weights (e.g., commodity + cost currency)
type Weight struct {
	Amount   decimal.Decimal
	Currency string
}

// WeightSet is a collection of weights from a single posting
type WeightSet []Weight

// weightSet is the package-internal lowercase alias used by the validator.
type weightSet = WeightSet

// CalculateWeights calculates all weights contributed by a posting
// This handles cost basis and price annotations
func CalculateWeights(posting *ast.Posting) (WeightSet, error) {
	if posting.Amount == nil {
		// No amount specified - this will be inferred (not implemented yet)
		return WeightSet{}, nil
	}

	// Parse the main amount
	amount, err := ParseAmount(posting.Amount)
	if err != nil {
		return nil, err
	}

	currency := posting.Amount.Currency

	// Check for cost specification
	hasExplicitCost := posting.Cost != nil && !posting.Cost.IsEmpty() && !posting.Cost.IsMergeCost()
	hasEmptyCost := posting.Cost != nil && posting.Cost.IsEmpty()
	hasPrice := posting.Price != nil

	var weights WeightSet

	if hasEmptyCost {
		// Empty cost spec {} - cost will be inferred to balance the transaction
		// Return empty weights; cost inference happens in processTransaction()
		return WeightSet{}, nil

	} else if hasExplicitCost {
		// Cost: {X CURR} or {X CURR} @ Y CURR2
		// When there's a cost, ONLY the cost contributes to balance!
		// The price (if present) is just informational (market value)
		if len(posting.Cost.Amounts) == 0 {
			return nil, fmt.Errorf("cost specification has no amount")
		}
		costAmt := posting.Cost.Amounts[0]
		costAmount, err := ParseAmount(costAmt)
		if err != nil {
			return nil, err
		}

		costCurrency := costAmt.Currency

		var totalCost decimal.Decimal
		if posting.Cost.Kind == ast.CostTotal {
			// costAmount is already the total cost for the whole posting, not
			// a per-unit price; its sign follows the posting amount's sign.
			if amount.IsNegative() {
				totalCost = costAmount.Abs().Neg()
			} else {
				totalCost = costAmount.Abs()
			}
		} else {
			totalCost = amount.Mul(costAmount)
		}

		weights = WeightSet{
			{Amount: totalCost, Currency: costCurrency},
		}

	} else if hasPrice {
		// Price only: @ or @@
		// When there's only a price, use it for balance
		priceAmount, err := ParseAmount(posting.Price)
		if err != nil {
			return nil, err
		}

		priceCurrency := posting.Price.Currency

		var priceWeight decimal.Decimal
		if posting.PriceTotal {
			// @@ total price with sign
			if amount.IsNegative() {
				priceWeight = priceAmount.Neg()
			} else {
				priceWeight = priceAmount
			}
		} else {
			// @ per-unit price
			priceWeight = amount.Mul(priceAmount)
		}

		weights = WeightSet{
			{Amount: priceWeight, Currency: priceCurrency},
		}

	} else {
		// No cost or price: just the commodity amount
		weights = WeightSet{
			{Amount: amount, Currency: currency},
		}
	}

	return weights, nil
}

// calculateWeights is the package-internal entry point used by the validator;
// it delegates to the exported CalculateWeights.
func calculateWeights(posting *ast.Posting) (WeightSet, error) {
	return CalculateWeights(posting)
}

// balanceWeights is the package-internal entry point used by the validator;
// it delegates to the exported BalanceWeights.
func balanceWeights(allWeights []WeightSet) map[string]decimal.Decimal {
	return BalanceWeights(allWeights)
}

// BalanceWeights accumulates weights from multiple postings
// Returns a map of currency -> total amount
// NOTE: Caller must call putBalanceMap() when done with the returned map
func BalanceWeights(allWeights []WeightSet) map[string]decimal.Decimal {
	balance := getBalanceMap()

	for _, weights := range allWeights {
		for _, weight := range weights {
			current := balance[weight.Currency]
			balance[weight.Currency] = current.Add(weight.Amount)
		}
	}

	return balance
}
