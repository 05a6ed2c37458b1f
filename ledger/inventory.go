package ledger

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattilu/ledger/ast"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Inventory tracks lots of commodities with cost basis
type Inventory struct {
	// Map: commodity -> list of lots
	lots map[string][]*lot
}

// NewInventory creates a new inventory
func NewInventory() *Inventory {
	return &Inventory{
		lots: make(map[string][]*lot),
	}
}

// Add adds an amount without cost basis
func (inv *Inventory) Add(commodity string, amount decimal.Decimal) {
	// Add as a lot without cost spec
	inv.AddLot(commodity, amount, nil)
}

// AddLot adds an amount with a specific cost basis
func (inv *Inventory) AddLot(commodity string, amount decimal.Decimal, spec *lotSpec) {
	// Find existing lot with matching spec
	lots := inv.lots[commodity]
	for _, lot := range lots {
		if lotSpecsMatch(lot.Spec, spec) {
			// Add to existing lot, eliding it if the result is zero
			lot.Amount = lot.Amount.Add(amount)
			if lot.Amount.IsZero() {
				inv.removeLot(commodity, lot)
			}
			return
		}
	}

	// Create new lot, skipping zero-amount lots entirely
	if amount.IsZero() {
		return
	}
	newLot := newLot(commodity, amount, spec)
	inv.lots[commodity] = append(inv.lots[commodity], newLot)
}

// Get returns the total amount of a commodity (summing all lots)
func (inv *Inventory) Get(commodity string) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range inv.lots[commodity] {
		total = total.Add(lot.Amount)
	}
	return total
}

// GetLots returns all lots for a commodity
func (inv *Inventory) GetLots(commodity string) []*lot {
	return inv.lots[commodity]
}

// ReduceLot reduces from a specific lot or uses booking method
func (inv *Inventory) ReduceLot(commodity string, amount decimal.Decimal, spec *lotSpec, bookingMethod string) error {
	// Reducing means amount should be negative
	if amount.GreaterThanOrEqual(decimal.Zero) {
		return fmt.Errorf("reduce amount must be negative, got %s", amount.String())
	}

	// Get absolute value for comparison
	reduceAmount := amount.Abs()

	// Empty spec {} means use booking method
	if spec != nil && spec.IsEmpty() {
		return inv.reduceWithBooking(commodity, reduceAmount, bookingMethod)
	}

	// Specific lot spec - find matching lot
	if spec != nil && len(spec.Costs) > 0 {
		return inv.reduceSpecificLot(commodity, reduceAmount, spec)
	}

	// No spec at all - treat as simple amount
	// Just add the negative amount to first available lot or create new lot
	inv.AddLot(commodity, amount, nil)
	return nil
}

// reduceSpecificLot reduces from a specific lot matching the spec
func (inv *Inventory) reduceSpecificLot(commodity string, amount decimal.Decimal, spec *lotSpec) error {
	lots := inv.lots[commodity]

	// Find matching lot
	for _, lot := range lots {
		if lotSpecsMatch(lot.Spec, spec) {
			// Check if sufficient amount
			if lot.Amount.LessThan(amount) {
				return fmt.Errorf("insufficient amount in lot %s: have %s, need %s",
					spec.String(), lot.Amount.String(), amount.String())
			}

			// Reduce from lot
			lot.Amount = lot.Amount.Sub(amount)

			// Remove lot if empty
			if lot.Amount.IsZero() {
				inv.removeLot(commodity, lot)
			}

			return nil
		}
	}

	return fmt.Errorf("lot not found: %s %s", commodity, spec.String())
}

// reduceWithBooking reduces using booking method (FIFO, LIFO, etc.)
// Assumes booking method has already been validated by the validator.
//
// Booking method handling:
// - NONE: Adds negative amount without matching (allows mixed signs)
// - AVERAGE: Merges all lots and recalculates average cost
// - FIFO/LIFO: Sorts lots by date and reduces in order
// - STRICT: Should never reach here with empty spec (validator rejects it)
func (inv *Inventory) reduceWithBooking(commodity string, amount decimal.Decimal, bookingMethod string) error {
	lots := inv.lots[commodity]

	if len(lots) == 0 {
		return fmt.Errorf("no lots available for %s", commodity)
	}

	// Handle NONE booking: just add the negative amount without matching
	if bookingMethod == "NONE" {
		// Add negative amount as a new lot (always create new lot, don't merge)
		// This allows mixed signs in the inventory
		newLot := newLot(commodity, amount.Neg(), nil)
		inv.lots[commodity] = append(inv.lots[commodity], newLot)
		return nil
	}

	// Handle AVERAGE booking: merge all lots, reduce, then keep single lot with average cost
	if bookingMethod == "AVERAGE" {
		return inv.reduceWithAverage(commodity, amount)
	}

	// Sort lots by date according to booking method (validation already done)
	// If we get an unsupported method here, it's a validator bug
	sortedLots := make([]*lot, len(lots))
	copy(sortedLots, lots)

	switch bookingMethod {
	case "FIFO":
		// FIFO: oldest first (lots without date come first)
		sort.SliceStable(sortedLots, func(i, j int) bool {
			iHasDate := sortedLots[i].Spec != nil && sortedLots[i].Spec.Date != nil
			jHasDate := sortedLots[j].Spec != nil && sortedLots[j].Spec.Date != nil

			// Both lack dates - maintain stable order (not less than)
			if !iHasDate && !jHasDate {
				return false
			}
			// i lacks date, j has date - i comes first
			if !iHasDate {
				return true
			}
			// j lacks date, i has date - j comes first
			if !jHasDate {
				return false
			}
			// Both have dates - compare chronologically (oldest first)
			return sortedLots[i].Spec.Date.Before(sortedLots[j].Spec.Date.Time)
		})
	case "LIFO":
		// LIFO: newest first (lots with dates come first, reverse chronological)
		sort.SliceStable(sortedLots, func(i, j int) bool {
			iHasDate := sortedLots[i].Spec != nil && sortedLots[i].Spec.Date != nil
			jHasDate := sortedLots[j].Spec != nil && sortedLots[j].Spec.Date != nil

			// Both lack dates - maintain stable order (not less than)
			if !iHasDate && !jHasDate {
				return false
			}
			// i has date, j lacks date - i comes first (dated lots first for LIFO)
			if iHasDate && !jHasDate {
				return true
			}
			// j has date, i lacks date - j comes first
			if !iHasDate && jHasDate {
				return false
			}
			// Both have dates - compare reverse chronologically (newest first)
			return sortedLots[i].Spec.Date.After(sortedLots[j].Spec.Date.Time)
		})
	case "STRICT":
		// STRICT should never reach here with empty spec - validator should reject it
		panic("STRICT booking with empty spec {} should be rejected by validator (validator bug)")
	default:
		// Should never reach here - validator should have caught unsupported methods
		panic(fmt.Sprintf("unsupported booking method %q after validation (validator bug)", bookingMethod))
	}

	// Reduce from lots in booking method order
	remaining := amount
	for _, lot := range sortedLots {
		if remaining.IsZero() {
			break
		}

		if lot.Amount.GreaterThanOrEqual(remaining) {
			// This lot has enough
			lot.Amount = lot.Amount.Sub(remaining)
			if lot.Amount.IsZero() {
				inv.removeLot(commodity, lot)
			}
			remaining = decimal.Zero
		} else {
			// Take all from this lot
			remaining = remaining.Sub(lot.Amount)
			lot.Amount = decimal.Zero
			inv.removeLot(commodity, lot)
		}
	}

	if !remaining.IsZero() {
		return fmt.Errorf("insufficient total amount for %s: need %s more",
			commodity, remaining.String())
	}

	return nil
}

// CanReduceLot reports whether a reduction of amount (which must be
// negative) against the given spec/bookingMethod would succeed, without
// mutating the inventory. Used by the validator to surface booking errors
// before any state is committed.
func (inv *Inventory) CanReduceLot(commodity string, amount decimal.Decimal, spec *lotSpec, bookingMethod string) error {
	if amount.GreaterThanOrEqual(decimal.Zero) {
		return fmt.Errorf("reduce amount must be negative, got %s", amount.String())
	}

	reduceAmount := amount.Abs()

	if spec != nil && spec.IsEmpty() {
		return inv.canReduceWithBooking(commodity, reduceAmount, bookingMethod)
	}

	if spec != nil && len(spec.Costs) > 0 {
		return inv.canReduceSpecificLot(commodity, reduceAmount, spec)
	}

	return nil
}

// canReduceSpecificLot is the read-only counterpart of reduceSpecificLot.
func (inv *Inventory) canReduceSpecificLot(commodity string, amount decimal.Decimal, spec *lotSpec) error {
	for _, l := range inv.lots[commodity] {
		if lotSpecsMatch(l.Spec, spec) {
			if l.Amount.LessThan(amount) {
				return fmt.Errorf("insufficient amount in lot %s: have %s, need %s",
					spec.String(), l.Amount.String(), amount.String())
			}
			return nil
		}
	}
	return fmt.Errorf("lot not found: %s %s", commodity, spec.String())
}

// canReduceWithBooking is the read-only counterpart of reduceWithBooking.
func (inv *Inventory) canReduceWithBooking(commodity string, amount decimal.Decimal, bookingMethod string) error {
	lots := inv.lots[commodity]

	if len(lots) == 0 {
		return fmt.Errorf("no lots available for %s", commodity)
	}

	if bookingMethod == "NONE" {
		return nil
	}

	if bookingMethod == "AVERAGE" {
		total := decimal.Zero
		for _, l := range lots {
			total = total.Add(l.Amount)
		}
		if total.LessThan(amount) {
			return fmt.Errorf("insufficient total amount for %s: have %s, need %s",
				commodity, total.String(), amount.String())
		}
		return nil
	}

	sortedLots := make([]*lot, len(lots))
	copy(sortedLots, lots)

	switch bookingMethod {
	case "FIFO", "":
		sort.SliceStable(sortedLots, func(i, j int) bool {
			iHasDate := sortedLots[i].Spec != nil && sortedLots[i].Spec.Date != nil
			jHasDate := sortedLots[j].Spec != nil && sortedLots[j].Spec.Date != nil
			if !iHasDate && !jHasDate {
				return false
			}
			if !iHasDate {
				return true
			}
			if !jHasDate {
				return false
			}
			return sortedLots[i].Spec.Date.Before(sortedLots[j].Spec.Date.Time)
		})
	case "LIFO":
		sort.SliceStable(sortedLots, func(i, j int) bool {
			iHasDate := sortedLots[i].Spec != nil && sortedLots[i].Spec.Date != nil
			jHasDate := sortedLots[j].Spec != nil && sortedLots[j].Spec.Date != nil
			if !iHasDate && !jHasDate {
				return false
			}
			if iHasDate && !jHasDate {
				return true
			}
			if !iHasDate && jHasDate {
				return false
			}
			return sortedLots[i].Spec.Date.After(sortedLots[j].Spec.Date.Time)
		})
	case "STRICT":
		return fmt.Errorf("STRICT booking method requires an explicit lot spec")
	default:
		return fmt.Errorf("unsupported booking method %q", bookingMethod)
	}

	remaining := amount
	for _, l := range sortedLots {
		if remaining.IsZero() {
			break
		}
		if l.Amount.GreaterThanOrEqual(remaining) {
			remaining = decimal.Zero
		} else {
			remaining = remaining.Sub(l.Amount)
		}
	}

	if !remaining.IsZero() {
		return fmt.Errorf("insufficient total amount for %s: need %s more", commodity, remaining.String())
	}
	return nil
}

// reduceWithAverage reduces using average cost basis
// After reduction, all lots are merged into a single lot with average cost
func (inv *Inventory) reduceWithAverage(commodity string, amount decimal.Decimal) error {
	lots := inv.lots[commodity]

	// Calculate total amount and total cost basis (per cost currency; a lot
	// may carry more than one, e.g. LP tokens priced in two currencies)
	totalAmount := decimal.Zero
	totalCostByCurrency := make(map[string]decimal.Decimal)
	hasCostedLots := false

	for _, lot := range lots {
		totalAmount = totalAmount.Add(lot.Amount)

		if lot.Spec != nil && len(lot.Spec.Costs) > 0 {
			hasCostedLots = true
			for _, c := range lot.Spec.Costs {
				totalCostByCurrency[c.Currency] = totalCostByCurrency[c.Currency].Add(lot.Amount.Mul(c.Value))
			}
		}
	}

	// Check if there's enough to reduce
	if totalAmount.LessThan(amount) {
		return fmt.Errorf("insufficient total amount for %s: have %s, need %s",
			commodity, totalAmount.String(), amount.String())
	}

	// Calculate remaining amount after reduction
	remainingAmount := totalAmount.Sub(amount)

	// Remove all existing lots
	delete(inv.lots, commodity)

	// If nothing remains, we're done
	if remainingAmount.IsZero() {
		return nil
	}

	// Calculate average cost per unit if we have costed lots
	var avgSpec *lotSpec
	if hasCostedLots && !totalAmount.IsZero() {
		avgSpec = &lotSpec{}
		for currency, totalCost := range totalCostByCurrency {
			if totalCost.IsZero() {
				continue
			}
			avgSpec.Costs = append(avgSpec.Costs, lotCost{
				Value:    totalCost.Div(totalAmount),
				Currency: currency,
			})
		}
	}

	// Create single lot with remaining amount at average cost
	inv.AddLot(commodity, remainingAmount, avgSpec)

	return nil
}

// removeLot removes a lot from the inventory
func (inv *Inventory) removeLot(commodity string, lotToRemove *lot) {
	lots := inv.lots[commodity]
	newLots := make([]*lot, 0, len(lots)-1)
	for _, lot := range lots {
		if lot != lotToRemove {
			newLots = append(newLots, lot)
		}
	}
	if len(newLots) == 0 {
		delete(inv.lots, commodity)
	} else {
		inv.lots[commodity] = newLots
	}
}

// ReduceExactLot removes `amount` (a positive quantity) from the lot whose
// spec is structurally equal to spec. Used by the transaction booker to
// apply a reduction that was already resolved, lot by lot, during
// validation (case B), so the mutation matches exactly what was validated.
func (inv *Inventory) ReduceExactLot(commodity string, spec *lotSpec, amount decimal.Decimal) error {
	for _, l := range inv.lots[commodity] {
		if !lotSpecsMatch(l.Spec, spec) {
			continue
		}
		if l.Amount.LessThan(amount) {
			return fmt.Errorf("insufficient amount in lot %s: have %s, need %s", spec.String(), l.Amount.String(), amount.String())
		}
		l.Amount = l.Amount.Sub(amount)
		if l.Amount.IsZero() {
			inv.removeLot(commodity, l)
		}
		return nil
	}
	return fmt.Errorf("lot not found: %s %s", commodity, spec.String())
}

// FilterLots splits a commodity's lots into those that are held at cost and
// match the given reduction filter ("usable") and everything else ("rest"),
// per the case B reduction rule: only costed positions participate, and an
// empty filter field is a wildcard matching every lot. This is spec §4.2's
// `partition(pred)` specialized to the reduction-filter predicate.
func (inv *Inventory) FilterLots(commodity string, filter *ast.CostSpec) (usable, rest []*lot) {
	return inv.Partition(commodity, func(l *lot) bool {
		return !l.Spec.IsEmpty() && l.Spec.matchesFilter(filter)
	})
}

// Clone returns a deep copy of the inventory: every lot is copied into a new
// backing slice so later mutations of either the original or the clone never
// alias (spec §4.5 "prior snapshots remain referentially intact"). Lot cost
// specs are immutable once constructed and are shared, not copied.
func (inv *Inventory) Clone() *Inventory {
	clone := NewInventory()
	for commodity, lots := range inv.lots {
		cloned := make([]*lot, len(lots))
		for i, l := range lots {
			cloned[i] = &lot{Commodity: l.Commodity, Amount: l.Amount, Spec: l.Spec}
		}
		clone.lots[commodity] = cloned
	}
	return clone
}

// Partition splits a commodity's lots into those matching pred and the rest,
// preserving relative order in each half. This is spec §4.2's `partition`.
func (inv *Inventory) Partition(commodity string, pred func(*lot) bool) (matching, rest []*lot) {
	lots := inv.lots[commodity]
	matching = lo.Filter(lots, func(l *lot, _ int) bool { return pred(l) })
	rest = lo.Reject(lots, func(l *lot, _ int) bool { return pred(l) })
	return matching, rest
}

// lotConsumption records how much of a specific lot a reduction consumed.
type lotConsumption struct {
	Spec   *lotSpec
	Amount decimal.Decimal // positive quantity consumed
}

// lotHeap is a container/heap of lots ordered by date, ascending (FIFO) or
// descending (LIFO) depending on desc. Popping repeatedly yields lots in
// booking-method order without sorting the whole slice up front, so
// selecting the first k lots out of n costs O(k log n) rather than
// O(n log n).
type lotHeap struct {
	items []*lot
	desc  bool
}

func (h *lotHeap) Len() int { return len(h.items) }
func (h *lotHeap) Less(i, j int) bool {
	di, dj := lotDateKey(h.items[i]), lotDateKey(h.items[j])
	if h.desc {
		return di.After(dj)
	}
	return di.Before(dj)
}
func (h *lotHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *lotHeap) Push(x any)    { h.items = append(h.items, x.(*lot)) }
func (h *lotHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// SelectLotsForReduction picks, in booking-method order, which of the usable
// lots are consumed to satisfy reduceAmount (a positive quantity), returning
// one entry per lot touched. It does not mutate the inventory.
func SelectLotsForReduction(usable []*lot, reduceAmount decimal.Decimal, bookingMethod string) ([]lotConsumption, error) {
	if len(usable) == 0 {
		return nil, fmt.Errorf("no lots available to reduce")
	}

	if bookingMethod == "STRICT" {
		if len(usable) != 1 {
			return nil, fmt.Errorf("ambiguous lot reduction: %d lots match, STRICT requires exactly one", len(usable))
		}
		l := usable[0]
		if l.Amount.LessThan(reduceAmount) {
			return nil, fmt.Errorf("insufficient lot amount to reduce: have %s, need %s", l.Amount.String(), reduceAmount.String())
		}
		return []lotConsumption{{Spec: l.Spec, Amount: reduceAmount}}, nil
	}

	var desc bool
	switch bookingMethod {
	case "LIFO":
		desc = true
	case "FIFO", "", "AVERAGE", "NONE":
		desc = false
	default:
		return nil, fmt.Errorf("unsupported booking method %q", bookingMethod)
	}

	h := &lotHeap{items: append([]*lot(nil), usable...), desc: desc}
	heap.Init(h)

	remaining := reduceAmount
	var consumed []lotConsumption
	for h.Len() > 0 && !remaining.IsZero() {
		l := heap.Pop(h).(*lot)
		take := l.Amount
		if take.GreaterThan(remaining) {
			take = remaining
		}
		consumed = append(consumed, lotConsumption{Spec: l.Spec, Amount: take})
		remaining = remaining.Sub(take)
	}

	if !remaining.IsZero() {
		return nil, fmt.Errorf("insufficient lot amount to reduce: %s remaining unmatched", remaining.String())
	}
	return consumed, nil
}

// lotDateKey returns a date usable for FIFO/LIFO ordering; lots without a
// date sort before dated ones (the zero time is always earliest).
func lotDateKey(l *lot) time.Time {
	if l.Spec == nil || l.Spec.Date == nil {
		return time.Time{}
	}
	return l.Spec.Date.Time
}

// IsEmpty returns true if the inventory has no lots
func (inv *Inventory) IsEmpty() bool {
	return len(inv.lots) == 0
}

// Currencies returns all commodities in the inventory
func (inv *Inventory) Currencies() []string {
	currencies := make([]string, 0, len(inv.lots))
	for currency := range inv.lots {
		currencies = append(currencies, currency)
	}
	return currencies
}

// String returns a string representation of the inventory
func (inv *Inventory) String() string {
	if inv.IsEmpty() {
		return "{}"
	}

	var buf strings.Builder
	buf.WriteByte('{')

	first := true
	for commodity, lots := range inv.lots {
		for _, lot := range lots {
			if !first {
				buf.WriteString(", ")
			}
			if lot.Spec == nil || lot.Spec.IsEmpty() {
				buf.WriteString(lot.Amount.String())
				buf.WriteByte(' ')
				buf.WriteString(commodity)
			} else {
				buf.WriteString(lot.String())
			}
			first = false
		}
	}
	buf.WriteByte('}')
	return buf.String()
}

// lotSpecsMatch checks if two lot specs match
func lotSpecsMatch(a, b *lotSpec) bool {
	// Both nil
	if a == nil && b == nil {
		return true
	}

	// One nil, one not
	if a == nil || b == nil {
		return false
	}

	return a.Equal(b)
}
