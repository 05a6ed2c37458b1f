package ledger

import (
	"fmt"
	"strings"

	"github.com/mattilu/ledger/ast"
	"github.com/shopspring/decimal"
)

// Amount is the exact-rational value the booking engine computes with: a
// decimal.Decimal paired with the currency it's denominated in (spec §4.1).
// Every binary operation that combines two Amounts requires them to share a
// currency; combining mismatched currencies fails with
// CrossCurrencyArithmeticError rather than silently picking one side's
// currency or truncating precision.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

// ZeroAmount returns the zero value for a currency.
func ZeroAmount(currency string) Amount {
	return Amount{Value: decimal.Zero, Currency: currency}
}

// NewAmount pairs a decimal value with its currency.
func NewAmount(value decimal.Decimal, currency string) Amount {
	return Amount{Value: value, Currency: currency}
}

func (a Amount) IsZero() bool     { return a.Value.IsZero() }
func (a Amount) IsPositive() bool { return a.Value.IsPositive() }
func (a Amount) IsNegative() bool { return a.Value.IsNegative() }
func (a Amount) Sign() int        { return a.Value.Sign() }

func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.Value.String(), a.Currency)
}

// Neg returns the additive inverse, keeping the currency.
func (a Amount) Neg() Amount {
	return Amount{Value: a.Value.Neg(), Currency: a.Currency}
}

// Abs returns the absolute value, keeping the currency.
func (a Amount) Abs() Amount {
	return Amount{Value: a.Value.Abs(), Currency: a.Currency}
}

// Mul scales the amount by a bare rational factor (e.g. a per-unit cost or a
// quantity), keeping the currency.
func (a Amount) Mul(factor decimal.Decimal) Amount {
	return Amount{Value: a.Value.Mul(factor), Currency: a.Currency}
}

// Div divides the amount by a bare rational divisor, keeping the currency.
func (a Amount) Div(divisor decimal.Decimal) Amount {
	return Amount{Value: a.Value.Div(divisor), Currency: a.Currency}
}

// Add returns a + b. Both amounts must share a currency.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, NewCrossCurrencyArithmeticError(a.Currency, b.Currency)
	}
	return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency}, nil
}

// Sub returns a - b. Both amounts must share a currency.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, NewCrossCurrencyArithmeticError(a.Currency, b.Currency)
	}
	return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency}, nil
}

// Equal reports whether two amounts have the same currency and numerically
// equal value (decimal.Decimal's Equal, not Go's ==, since the same value can
// have more than one internal scale).
func (a Amount) Equal(b Amount) bool {
	return a.Currency == b.Currency && a.Value.Equal(b.Value)
}

// Cmp orders two amounts of the same currency; mismatched currencies have no
// total order and return CrossCurrencyArithmeticError.
func (a Amount) Cmp(b Amount) (int, error) {
	if a.Currency != b.Currency {
		return 0, NewCrossCurrencyArithmeticError(a.Currency, b.Currency)
	}
	return a.Value.Cmp(b.Value), nil
}

// ParseAmount converts a ast.Amount to a decimal.Decimal
func ParseAmount(amount *ast.Amount) (decimal.Decimal, error) {
	if amount == nil {
		return decimal.Zero, fmt.Errorf("amount is nil")
	}

	if strings.HasPrefix(strings.TrimSpace(amount.Value), "(") {
		return EvaluateExpression(amount.Value)
	}

	d, err := decimal.NewFromString(amount.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount value %q: %w", amount.Value, err)
	}

	return d, nil
}

// ParseAmountValue converts an ast.Amount into the exact-rational Amount type,
// preserving its currency structurally instead of threading it separately.
func ParseAmountValue(amount *ast.Amount) (Amount, error) {
	value, err := ParseAmount(amount)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: value, Currency: amount.Currency}, nil
}

// MustParseAmount converts a ast.Amount to a decimal.Decimal and panics on error
// Use only in tests or when you're certain the amount is valid
func MustParseAmount(amount *ast.Amount) decimal.Decimal {
	d, err := ParseAmount(amount)
	if err != nil {
		panic(err)
	}
	return d
}

// ToleranceConfig holds configuration for tolerance inference
type ToleranceConfig struct {
	// defaults maps currency to default tolerance (supports "*" wildcard)
	defaults map[string]decimal.Decimal
	// multiplier is applied to inferred tolerance (default 0.5)
	multiplier decimal.Decimal
	// inferFromCost includes costs/prices in tolerance inference
	inferFromCost bool
}

// NewToleranceConfig creates a default tolerance configuration
// Default: 0.005 tolerance for all currencies, 0.5 multiplier
func NewToleranceConfig() *ToleranceConfig {
	return &ToleranceConfig{
		defaults: map[string]decimal.Decimal{
			"*": decimal.NewFromFloat(0.005),
		},
		multiplier:    decimal.NewFromFloat(0.5),
		inferFromCost: false,
	}
}

// ParseToleranceConfig creates a ToleranceConfig from ledger options
// Supports:
//   - option "inferred_tolerance_default" "*:0.005"
//   - option "inferred_tolerance_default" "USD:0.003"
//   - option "tolerance_multiplier" "0.6"
//   - option "infer_tolerance_from_cost" "TRUE"
func ParseToleranceConfig(options map[string][]string) (*ToleranceConfig, error) {
	config := NewToleranceConfig()

	// Parse tolerance_multiplier (use first value if multiple)
	if vals := options["tolerance_multiplier"]; len(vals) > 0 {
		multiplier, err := decimal.NewFromString(vals[0])
		if err != nil {
			return nil, fmt.Errorf("invalid tolerance_multiplier %q: %w", vals[0], err)
		}
		config.multiplier = multiplier
	}

	// Parse inferred_tolerance_default (can appear multiple times for per-currency tolerances)
	// Format: "CURRENCY:TOLERANCE" or "*:TOLERANCE"
	if vals := options["inferred_tolerance_default"]; len(vals) > 0 {
		for _, val := range vals {
			parts := strings.SplitN(val, ":", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("invalid inferred_tolerance_default format %q, expected CURRENCY:TOLERANCE", val)
			}

			currency := strings.TrimSpace(parts[0])
			toleranceStr := strings.TrimSpace(parts[1])

			tolerance, err := decimal.NewFromString(toleranceStr)
			if err != nil {
				return nil, fmt.Errorf("invalid tolerance value in %q: %w", val, err)
			}

			config.defaults[currency] = tolerance
		}
	}

	// Parse infer_tolerance_from_cost (use first value if multiple)
	if vals := options["infer_tolerance_from_cost"]; len(vals) > 0 {
		config.inferFromCost = strings.ToUpper(vals[0]) == "TRUE"
	}

	return config, nil
}

// InferTolerance calculates tolerance from amount precision
// Algorithm:
//  1. Find the smallest exponent across all amounts
//  2. Calculate tolerance = 10^minExp * multiplier
//  3. If no amounts, use default tolerance for currency
func InferTolerance(amounts []decimal.Decimal, currency string, config *ToleranceConfig) decimal.Decimal {
	if config == nil {
		config = NewToleranceConfig()
	}

	// If no amounts provided, return default tolerance
	if len(amounts) == 0 {
		return config.GetDefaultTolerance(currency)
	}

	// Find minimum exponent (most precise)
	minExp := int32(0)
	foundAny := false

	for _, amount := range amounts {
		if amount.IsZero() {
			continue // Skip zero amounts
		}

		exp := amount.Exponent()
		if !foundAny || exp < minExp {
			minExp = exp
			foundAny = true
		}
	}

	// If all amounts were zero, use default
	if !foundAny {
		return config.GetDefaultTolerance(currency)
	}

	// Calculate tolerance: 10^minExp * multiplier
	// For example: minExp = -5 gives 10^-5 = 0.00001
	tolerance := decimal.New(1, minExp).Mul(config.multiplier)

	return tolerance
}

// GetDefaultTolerance returns the default tolerance for a currency
// Checks currency-specific default first, then wildcard "*"
func (c *ToleranceConfig) GetDefaultTolerance(currency string) decimal.Decimal {
	if c == nil {
		return decimal.NewFromFloat(0.005)
	}

	// Check currency-specific default
	if tolerance, ok := c.defaults[currency]; ok {
		return tolerance
	}

	// Fall back to wildcard
	if tolerance, ok := c.defaults["*"]; ok {
		return tolerance
	}

	// Final fallback
	return decimal.NewFromFloat(0.005)
}

// AmountEqual checks if two amounts are equal within tolerance
func AmountEqual(a, b decimal.Decimal, tolerance decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	return diff.LessThanOrEqual(tolerance)
}
