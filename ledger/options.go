package ledger

import (
	"strings"

	"github.com/mattilu/ledger/ast"
)

// defaultTradingAccount is the literal fallback trading account used when no
// "trading-account" metadata resolves to one (spec §4.4/§4.6).
const defaultTradingAccount ast.Account = "Trading:Default"

// defaultBookingMethod is the literal fallback booking method (spec §4.6).
const defaultBookingMethod = "FIFO"

// resolveTradingAccount implements the trading-account resolution precedence:
// posting metadata, then transaction metadata, then the posting's account's
// Open metadata, then the literal default. accountMeta is the metadata
// carried by the account's Open directive (nil/empty if it declared none).
func resolveTradingAccount(posting *ast.Posting, txn *ast.Transaction, accountMeta []*ast.Metadata) ast.Account {
	if acc, ok := tradingAccountFromMetadata(posting); ok {
		return acc
	}
	if acc, ok := tradingAccountFromMetadata(txn); ok {
		return acc
	}
	if acc, ok := tradingAccountFromMetadataSlice(accountMeta); ok {
		return acc
	}
	return defaultTradingAccount
}

// metadataCarrier is satisfied by any directive or posting with metadata.
type metadataCarrier interface {
	MetadataMap() ast.MetadataMap
}

func tradingAccountFromMetadata(m metadataCarrier) (ast.Account, bool) {
	if m == nil {
		return "", false
	}
	return tradingAccountFromMap(m.MetadataMap())
}

func tradingAccountFromMetadataSlice(meta []*ast.Metadata) (ast.Account, bool) {
	if len(meta) == 0 {
		return "", false
	}
	return tradingAccountFromMap(ast.NewMetadataMap(meta))
}

func tradingAccountFromMap(meta ast.MetadataMap) (ast.Account, bool) {
	v, ok := meta["trading-account"]
	if !ok || v == nil || v.Account == nil {
		return "", false
	}
	return *v.Account, true
}

// resolveBookingMethod implements the booking-method resolution precedence
// (spec §4.6): posting metadata, then transaction metadata, then the
// account's Open metadata, then the account's declared booking method
// (itself read off the Open directive), then the ledger's configured
// default, then the literal default "fifo". Unknown method names fail.
func resolveBookingMethod(posting *ast.Posting, txn *ast.Transaction, account *Account, cfg *Config) (string, error) {
	method, ok := bookingMethodFromMetadata(posting)
	if !ok {
		method, ok = bookingMethodFromMetadata(txn)
	}
	if !ok && account != nil {
		method, ok = bookingMethodFromMetadataSlice(account.Metadata)
	}
	if !ok && account != nil && account.BookingMethod != "" {
		method, ok = account.BookingMethod, true
	}
	if !ok {
		method = defaultBookingMethod
		if cfg != nil && cfg.DefaultBookingMethod != "" {
			method = cfg.DefaultBookingMethod
		}
	}

	canonical := strings.ToUpper(strings.TrimSpace(method))
	switch canonical {
	case "FIFO", "LIFO", "NONE", "AVERAGE", "STRICT":
		return canonical, nil
	default:
		return "", NewInvalidOptionError(txn, "booking-method", method,
			`must be one of "FIFO", "LIFO", "NONE", "AVERAGE", "STRICT"`)
	}
}

func bookingMethodFromMetadata(m metadataCarrier) (string, bool) {
	if m == nil {
		return "", false
	}
	return bookingMethodFromMap(m.MetadataMap())
}

func bookingMethodFromMetadataSlice(meta []*ast.Metadata) (string, bool) {
	if len(meta) == 0 {
		return "", false
	}
	return bookingMethodFromMap(ast.NewMetadataMap(meta))
}

func bookingMethodFromMap(meta ast.MetadataMap) (string, bool) {
	v, ok := meta["booking-method"]
	if !ok || v == nil || v.StringValue == nil || v.StringValue.Value == "" {
		return "", false
	}
	return v.StringValue.Value, true
}
