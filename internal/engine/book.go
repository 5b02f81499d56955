package engine

import "github.com/locknd/tochka-exchange/internal/models"

// BuildL2 aggregates resting orders into price levels. Both slices must
// come in book priority (bids by price descending, asks ascending), so
// equal prices are adjacent and collapse into one level. At most limit
// levels per side are returned.
func BuildL2(bids, asks []models.Order, limit int) *models.L2OrderBook {
	return &models.L2OrderBook{
		BidLevels: aggregateLevels(bids, limit),
		AskLevels: aggregateLevels(asks, limit),
	}
}

func aggregateLevels(orders []models.Order, limit int) []models.Level {
	levels := make([]models.Level, 0, limit)
	for _, o := range orders {
		remaining := o.Remaining()
		if remaining == 0 {
			continue
		}
		price := *o.Price
		if n := len(levels); n > 0 && levels[n-1].Price == price {
			levels[n-1].Qty += remaining
			continue
		}
		if len(levels) == limit {
			break
		}
		levels = append(levels, models.Level{Price: price, Qty: remaining})
	}
	return levels
}
