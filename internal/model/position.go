package model

import "github.com/shopspring/decimal"

// Position is a user's holding in a single symbol. average_price resets to
// zero whenever quantity returns to zero.
type Position struct {
	Symbol       string
	Quantity     decimal.Decimal
	AveragePrice decimal.Decimal
}
