// Package portfolio implements per-user cash, positions and realized P&L
// (C6), and the single-writer user registry the matching engine owns (C5.4).
package portfolio

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/orbitcex/matchengine/internal/model"
)

// epsilon absorbs decimal rounding noise in quantity comparisons, matching
// the spec's "qty > pos.qty + ε" no-shorting check.
var epsilon = decimal.New(1, -9)

// User holds one account's cash, realized P&L, and open positions.
// It is only ever mutated by the matching engine's single writer goroutine
// (see spec.md §9 "Thread-safety of the matching engine").
type User struct {
	UserID      string
	CashBalance decimal.Decimal
	RealizedPnl decimal.Decimal
	Positions   map[string]*model.Position
}

// New creates a user with the given starting cash.
func New(userID string, startingCash decimal.Decimal) *User {
	return &User{
		UserID:      userID,
		CashBalance: startingCash,
		Positions:   make(map[string]*model.Position),
	}
}

// Position returns a copy of the position for symbol, or a zero position if
// the user holds none.
func (u *User) Position(symbol string) model.Position {
	if p, ok := u.Positions[symbol]; ok {
		return *p
	}
	return model.Position{Symbol: symbol}
}

// Deposit adds amount to cash. Rejects non-positive amounts without
// mutation.
func (u *User) Deposit(amount decimal.Decimal) bool {
	if amount.Sign() <= 0 {
		return false
	}
	u.CashBalance = u.CashBalance.Add(amount)
	return true
}

// Withdraw removes amount from cash. Rejects non-positive amounts or
// amounts exceeding the current balance, without mutation.
func (u *User) Withdraw(amount decimal.Decimal) bool {
	if amount.Sign() <= 0 || amount.GreaterThan(u.CashBalance) {
		return false
	}
	u.CashBalance = u.CashBalance.Sub(amount)
	return true
}

// ApplyExecution applies one fill leg to this user's cash/position/PnL
// state, per spec.md §4.6. fee must be >= 0. Returns false (no mutation) if
// the arguments are invalid, a BUY would overdraw cash, or a SELL would
// short the position.
func (u *User) ApplyExecution(side model.OrderSide, symbol string, qty, price, fee decimal.Decimal) bool {
	if qty.Sign() <= 0 || price.Sign() < 0 || fee.Sign() < 0 {
		return false
	}
	gross := qty.Mul(price)

	switch side {
	case model.OrderSideBuy:
		total := gross.Add(fee)
		if total.GreaterThan(u.CashBalance) {
			return false
		}
		pos, ok := u.Positions[symbol]
		if !ok {
			pos = &model.Position{Symbol: symbol}
			u.Positions[symbol] = pos
		}
		newQty := pos.Quantity.Add(qty)
		// new_avg = (avg*qty + gross) / new_qty
		pos.AveragePrice = pos.AveragePrice.Mul(pos.Quantity).Add(gross).Div(newQty)
		pos.Quantity = newQty
		u.CashBalance = u.CashBalance.Sub(total)
		return true

	case model.OrderSideSell:
		pos, ok := u.Positions[symbol]
		if !ok || qty.GreaterThan(pos.Quantity.Add(epsilon)) {
			return false
		}
		pnl := gross.Sub(fee).Sub(pos.AveragePrice.Mul(qty))
		u.RealizedPnl = u.RealizedPnl.Add(pnl)
		pos.Quantity = pos.Quantity.Sub(qty)
		if pos.Quantity.LessThanOrEqual(epsilon) {
			pos.Quantity = decimal.Zero
			pos.AveragePrice = decimal.Zero
		}
		u.CashBalance = u.CashBalance.Add(gross.Sub(fee))
		return true

	default:
		return false
	}
}

// Registry is the engine's single-writer user map. All mutating methods must
// only be called from the matching engine's consumer goroutine; Snapshot is
// safe to call from any goroutine and returns a deep copy suitable for
// concurrent HTTP reads.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]*User)}
}

// GetOrCreate returns the existing user or lazily creates one with
// startingCash. Must only be called from the single-writer goroutine.
func (r *Registry) GetOrCreate(userID string, startingCash decimal.Decimal) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		u = New(userID, startingCash)
		r.users[userID] = u
	}
	return u
}

// Get returns the user, or nil if none exists yet.
func (r *Registry) Get(userID string) *User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[userID]
}

// Add inserts a pre-provisioned user, overwriting any existing entry with
// the same ID. The engine shell does not call it; no users are seeded at
// startup.
func (r *Registry) Add(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.UserID] = u
}

// UserSnapshot is a deep, read-only copy of a User safe to hand to HTTP
// readers without holding the registry lock.
type UserSnapshot struct {
	UserID      string
	CashBalance decimal.Decimal
	RealizedPnl decimal.Decimal
	Positions   map[string]model.Position
}

// Snapshot copies every user in the registry under a single read lock.
func (r *Registry) Snapshot() []UserSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]UserSnapshot, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, snapshotUser(u))
	}
	return out
}

// SnapshotOne copies a single user, or returns (zero, false) if absent.
func (r *Registry) SnapshotOne(userID string) (UserSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok {
		return UserSnapshot{}, false
	}
	return snapshotUser(u), true
}

func snapshotUser(u *User) UserSnapshot {
	positions := make(map[string]model.Position, len(u.Positions))
	for sym, p := range u.Positions {
		positions[sym] = *p
	}
	return UserSnapshot{
		UserID:      u.UserID,
		CashBalance: u.CashBalance,
		RealizedPnl: u.RealizedPnl,
		Positions:   positions,
	}
}
