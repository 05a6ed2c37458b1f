package ledger

import (
	"fmt"
	"strings"

	"github.com/mattilu/ledger/ast"
	"github.com/shopspring/decimal"
)

// Delta Architecture
//
// This file defines lightweight "delta" structs that represent the mutations
// to be applied to the ledger state. Validators return these deltas instead of
// directly mutating state, keeping validation pure and making mutations explicit.
//
// Benefits:
//   - Pure validation: validators compute changes without side effects
//   - Inspectable: deltas are plain Go structs that can be logged/debugged
//   - Testable: can validate without applying, test deltas independently
//   - Replayable: can store deltas and replay them later
//   - Consistent: same pattern across all directive types

// InventoryOperation represents the type of inventory mutation
type InventoryOperation int

const (
	// OpAdd adds to inventory (augmentation)
	OpAdd InventoryOperation = iota
	// OpReduce removes from inventory (reduction)
	OpReduce
)

// String returns the string representation of the operation
func (op InventoryOperation) String() string {
	switch op {
	case OpAdd:
		return "Add"
	case OpReduce:
		return "Reduce"
	default:
		return "Unknown"
	}
}

// InventoryChange represents a single change to an account's inventory
type InventoryChange struct {
	Account   string             // Account name
	Currency  string             // Currency/commodity
	Amount    decimal.Decimal    // Amount to add/remove (ALWAYS POSITIVE - operation indicates direction)
	LotSpec   *lotSpec           // Lot specification (nil for simple amounts)
	Operation InventoryOperation // Add or Reduce (determines sign)
}

// String returns a human-readable representation of the inventory change
func (ic *InventoryChange) String() string {
	var sb strings.Builder
	sb.WriteString(ic.Operation.String())
	sb.WriteString(" ")
	sb.WriteString(ic.Amount.String())
	sb.WriteString(" ")
	sb.WriteString(ic.Currency)

	if ic.LotSpec != nil && !ic.LotSpec.IsEmpty() {
		sb.WriteString(" ")
		sb.WriteString(ic.LotSpec.String())
	}

	sb.WriteString(" ")
	if ic.Operation == OpAdd {
		sb.WriteString("to")
	} else {
		sb.WriteString("from")
	}
	sb.WriteString(" ")
	sb.WriteString(ic.Account)

	return sb.String()
}

// TransactionDelta represents the mutations to be applied from a transaction.
// It contains the amounts and costs inferred during balancing for postings
// that didn't specify them explicitly; the rest of the posting data needed to
// apply the transaction is read directly off the AST during Apply.
type TransactionDelta struct {
	InferredAmounts map[*ast.Posting]*ast.Amount // Amounts inferred for postings without explicit amounts
	InferredCosts   map[*ast.Posting]*ast.Amount // Costs inferred from balance residuals

	// TradingPostings are the synthetic trading-account postings emitted by
	// the transaction booker for costed augmentations and reductions (spec
	// §4.4 cases A and B).
	TradingPostings []*BookedPosting
	// ResolvedLotSpecs carries the concrete, already-normalized lot spec to
	// use for each costed posting, keyed by the posting.
	ResolvedLotSpecs map[*ast.Posting]*lotSpec
	// ReductionConsumptions records, for each case B reduction posting, the
	// per-lot pieces it consumes (in booking-method order).
	ReductionConsumptions map[*ast.Posting][]lotConsumption
	// ResolvedBookingMethods carries the booking method resolved (via the
	// precedence chain in §4.6) for each reduction posting.
	ResolvedBookingMethods map[*ast.Posting]string
}

// String returns a human-readable representation of the transaction delta
func (td *TransactionDelta) String() string {
	var sb strings.Builder

	sb.WriteString("Transaction delta:\n")

	if len(td.InferredAmounts) > 0 {
		sb.WriteString("  Inferred amounts:\n")
		for posting, amount := range td.InferredAmounts {
			sb.WriteString(fmt.Sprintf("    %s: %s %s\n", posting.Account, amount.Value, amount.Currency))
		}
	}

	if len(td.InferredCosts) > 0 {
		sb.WriteString("  Inferred costs:\n")
		for posting, cost := range td.InferredCosts {
			sb.WriteString(fmt.Sprintf("    %s: {%s %s}\n", posting.Account, cost.Value, cost.Currency))
		}
	}

	if len(td.TradingPostings) > 0 {
		sb.WriteString("  Trading postings:\n")
		for _, p := range td.TradingPostings {
			sb.WriteString(fmt.Sprintf("    %s: %s\n", p.Account, p.Amount.String()))
		}
	}

	return sb.String()
}

// BalanceDelta represents the mutations to be applied from a balance assertion.
// It includes padding information if a pad directive is active for the account.
type BalanceDelta struct {
	AccountName          string
	Currency             string
	ExpectedAmount       decimal.Decimal
	ActualAmount         decimal.Decimal
	PaddingAdjustments   map[string]decimal.Decimal // currency -> adjustment applied by padding
	PadAccountName       string                     // source account of the pad, if padding was needed
	SyntheticTransaction *ast.Transaction           // synthetic "P"-flagged transaction to insert, if padding was needed
	ShouldRemovePad      bool                       // whether the pad entry should be retired after this balance
}

// String returns a human-readable representation of the balance delta
func (bd *BalanceDelta) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Balance for %s:\n", bd.AccountName))
	sb.WriteString(fmt.Sprintf("  Expected: %s %s\n", bd.ExpectedAmount.String(), bd.Currency))
	sb.WriteString(fmt.Sprintf("  Actual: %s %s\n", bd.ActualAmount.String(), bd.Currency))

	for currency, adj := range bd.PaddingAdjustments {
		sb.WriteString(fmt.Sprintf("  Padding: %s %s from %s\n", adj.String(), currency, bd.PadAccountName))
	}

	return sb.String()
}

// OpenDelta represents opening an account. Metadata and constraint currencies
// are copied out of the AST so the ledger doesn't hold references into a tree
// the caller may mutate or discard.
type OpenDelta struct {
	AccountName          string
	AccountType          ast.AccountType
	OpenDate             *ast.Date
	ConstraintCurrencies []string
	BookingMethod        string
	Metadata             []*ast.Metadata
}

// String returns a human-readable representation of the open delta
func (od *OpenDelta) String() string {
	return fmt.Sprintf("Open account %s (%s) on %s", od.AccountName, od.AccountType, od.OpenDate.Format("2006-01-02"))
}

// CloseDelta represents closing an account.
type CloseDelta struct {
	AccountName string
	CloseDate   *ast.Date
}

// String returns a human-readable representation of the close delta
func (cd *CloseDelta) String() string {
	return fmt.Sprintf("Close account %s on %s", cd.AccountName, cd.CloseDate.Format("2006-01-02"))
}

// CommodityDelta represents registering an explicit commodity node.
type CommodityDelta struct {
	CommodityID string
	Date        *ast.Date
	Metadata    []*ast.Metadata
}

// String returns a human-readable representation of the commodity delta
func (cd *CommodityDelta) String() string {
	return fmt.Sprintf("Commodity %s declared on %s", cd.CommodityID, cd.Date.Format("2006-01-02"))
}
