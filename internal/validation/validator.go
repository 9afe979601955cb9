// Package validation implements stateless order validation (C7): symbol,
// quantity, price and market-hours checks against configurable limits.
package validation

import (
	"github.com/shopspring/decimal"

	"github.com/orbitcex/matchengine/internal/model"
)

// ErrorKind enumerates validation failure reasons. DuplicateOrderID and
// InsufficientFunds are part of the vocabulary but never returned by
// Validate itself, matching spec.md §4.7 ("defined but not enforced here").
type ErrorKind string

const (
	ErrInvalidSymbol      ErrorKind = "INVALID_SYMBOL"
	ErrInvalidQuantity    ErrorKind = "INVALID_QUANTITY"
	ErrInvalidPrice       ErrorKind = "INVALID_PRICE"
	ErrMarketClosed       ErrorKind = "MARKET_CLOSED"
	ErrInvalidOrderType   ErrorKind = "INVALID_ORDER_TYPE"
	ErrInsufficientFunds  ErrorKind = "INSUFFICIENT_FUNDS"
	ErrDuplicateOrderID   ErrorKind = "DUPLICATE_ORDER_ID"
)

// ValidationError reports which check failed.
type ValidationError struct {
	Kind    ErrorKind
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func fail(kind ErrorKind, msg string) *ValidationError {
	return &ValidationError{Kind: kind, Message: msg}
}

// Limits are the configurable bounds Validate checks against. An empty
// Symbols set accepts any non-empty symbol.
type Limits struct {
	Symbols    map[string]struct{}
	MinQty     decimal.Decimal
	MaxQty     decimal.Decimal
	MinPrice   decimal.Decimal
	MaxPrice   decimal.Decimal
	MarketOpen bool
}

// NewLimits builds a Limits set from a symbol list (empty = unrestricted)
// and numeric bounds.
func NewLimits(symbols []string, minQty, maxQty, minPrice, maxPrice decimal.Decimal, marketOpen bool) Limits {
	var set map[string]struct{}
	if len(symbols) > 0 {
		set = make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			set[s] = struct{}{}
		}
	}
	return Limits{
		Symbols:    set,
		MinQty:     minQty,
		MaxQty:     maxQty,
		MinPrice:   minPrice,
		MaxPrice:   maxPrice,
		MarketOpen: marketOpen,
	}
}

// Validator applies Limits to incoming orders before they reach the book.
type Validator struct {
	limits Limits
}

// New constructs a Validator over the given limits.
func New(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// Validate runs every stateless check in spec.md §4.7 order and returns the
// first failure, or nil if the order is admissible.
func (v *Validator) Validate(o *model.Order) *ValidationError {
	if o.Type != model.OrderTypeLimit && o.Type != model.OrderTypeMarket && o.Type != model.OrderTypeStop {
		return fail(ErrInvalidOrderType, "unknown order type: "+string(o.Type))
	}

	if o.Symbol == "" {
		return fail(ErrInvalidSymbol, "symbol must not be empty")
	}
	if v.limits.Symbols != nil {
		if _, ok := v.limits.Symbols[o.Symbol]; !ok {
			return fail(ErrInvalidSymbol, "symbol not tradeable: "+o.Symbol)
		}
	}

	if o.OriginalQty.LessThan(v.limits.MinQty) || o.OriginalQty.GreaterThan(v.limits.MaxQty) {
		return fail(ErrInvalidQuantity, "quantity out of range")
	}

	if o.Type != model.OrderTypeMarket {
		if o.Price.LessThan(v.limits.MinPrice) || o.Price.GreaterThan(v.limits.MaxPrice) {
			return fail(ErrInvalidPrice, "price out of range")
		}
	}

	if !v.limits.MarketOpen {
		return fail(ErrMarketClosed, "market is closed")
	}

	return nil
}
