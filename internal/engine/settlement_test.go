package engine

import (
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/locknd/tochka-exchange/internal/models"
)

// TestDeltaSet_TradeLegsConserve checks that the four legs of a trade net to
// zero per ticker: whatever one party loses the other gains.
func TestDeltaSet_TradeLegsConserve(t *testing.T) {
	buyer := uuid.New()
	seller := uuid.New()

	deltas := DeltaSet{}
	deltas.AddTrade(&models.Trade{
		Ticker:   "AAPL",
		Amount:   7,
		Price:    50,
		BuyerID:  buyer,
		SellerID: seller,
	})
	deltas.AddTrade(&models.Trade{
		Ticker:   "AAPL",
		Amount:   3,
		Price:    52,
		BuyerID:  buyer,
		SellerID: seller,
	})

	sums := map[string]int64{}
	for key, amount := range deltas {
		sums[key.Ticker] += amount
	}
	for ticker, sum := range sums {
		if sum != 0 {
			t.Errorf("deltas for %s sum to %d, want 0", ticker, sum)
		}
	}

	if got := deltas[AccountKey{UserID: buyer, Ticker: "AAPL"}]; got != 10 {
		t.Errorf("buyer asset delta = %d, want 10", got)
	}
	if got := deltas[AccountKey{UserID: seller, Ticker: models.QuoteTicker}]; got != 7*50+3*52 {
		t.Errorf("seller quote delta = %d, want %d", got, 7*50+3*52)
	}
}

// TestDeltaSet_ZeroDropped verifies zero deltas never survive: neither added
// directly nor produced by cancellation.
func TestDeltaSet_ZeroDropped(t *testing.T) {
	user := uuid.New()

	deltas := DeltaSet{}
	deltas.Add(user, "AAPL", 0)
	if len(deltas) != 0 {
		t.Error("zero delta should not be stored")
	}

	deltas.Add(user, "AAPL", 5)
	deltas.Add(user, "AAPL", -5)
	if len(deltas) != 0 {
		t.Error("deltas cancelling to zero should be removed")
	}
}

// TestDeltaSet_SortedKeys checks the canonical apply order: user id bytes
// first, ticker second.
func TestDeltaSet_SortedKeys(t *testing.T) {
	userA := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	userB := uuid.MustParse("00000000-0000-0000-0000-0000000000bb")

	deltas := DeltaSet{}
	deltas.Add(userB, "RUB", 1)
	deltas.Add(userA, "ZZ", 1)
	deltas.Add(userA, "AA", 1)
	deltas.Add(userB, "AA", 1)

	keys := deltas.SortedKeys()
	want := []AccountKey{
		{UserID: userA, Ticker: "AA"},
		{UserID: userA, Ticker: "ZZ"},
		{UserID: userB, Ticker: "AA"},
		{UserID: userB, Ticker: "RUB"},
	}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d = %v, want %v", i, keys[i], want[i])
		}
	}

	if !sort.SliceIsSorted(keys, func(i, j int) bool {
		for b := 0; b < 16; b++ {
			if keys[i].UserID[b] != keys[j].UserID[b] {
				return keys[i].UserID[b] < keys[j].UserID[b]
			}
		}
		return keys[i].Ticker < keys[j].Ticker
	}) {
		t.Error("keys are not in canonical order")
	}
}

// TestRetryBackoff verifies the backoff stays inside its doubling envelope.
func TestRetryBackoff(t *testing.T) {
	for attempt := 0; attempt < 3; attempt++ {
		for i := 0; i < 50; i++ {
			d := retryBackoff(attempt)
			min := 10 * time.Millisecond << attempt
			max := 100 * time.Millisecond << attempt
			if d < min || d > max {
				t.Fatalf("attempt %d: backoff %v outside [%v, %v]", attempt, d, min, max)
			}
		}
	}
}
