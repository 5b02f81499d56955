package engine

import (
	"bytes"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/locknd/tochka-exchange/internal/models"
)

// AccountKey identifies one balance row: a user holding one ticker.
type AccountKey struct {
	UserID uuid.UUID
	Ticker string
}

// DeltaSet accumulates the net balance movements of one matching pass.
// Netting first and then applying in canonical key order means every
// settlement touches balance rows in the same sequence, which keeps
// concurrent transactions from deadlocking on them.
type DeltaSet map[AccountKey]int64

// Add accumulates amount onto one account. Zero amounts are dropped.
func (d DeltaSet) Add(userID uuid.UUID, ticker string, amount int64) {
	if amount == 0 {
		return
	}
	key := AccountKey{UserID: userID, Ticker: ticker}
	d[key] += amount
	if d[key] == 0 {
		delete(d, key)
	}
}

// AddTrade books the four legs of one trade: the asset moves from seller to
// buyer, the quote currency moves from buyer to seller.
func (d DeltaSet) AddTrade(t *models.Trade) {
	value := t.Amount * t.Price
	d.Add(t.BuyerID, t.Ticker, t.Amount)
	d.Add(t.SellerID, t.Ticker, -t.Amount)
	d.Add(t.SellerID, models.QuoteTicker, value)
	d.Add(t.BuyerID, models.QuoteTicker, -value)
}

// SortedKeys returns the account keys in canonical order: user id byte
// order first, ticker second.
func (d DeltaSet) SortedKeys() []AccountKey {
	keys := make([]AccountKey, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := bytes.Compare(keys[i].UserID[:], keys[j].UserID[:]); c != 0 {
			return c < 0
		}
		return keys[i].Ticker < keys[j].Ticker
	})
	return keys
}

// retryBackoff returns how long to sleep before retry number attempt
// (zero-based): 10-100ms of jitter doubled with each attempt.
func retryBackoff(attempt int) time.Duration {
	base := 10*time.Millisecond + time.Duration(rand.Int63n(int64(90*time.Millisecond)))
	return base << attempt
}
