package core

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/olyamironova/trade-gateway/internal/domain"
)

func orderKey(id string) string { return "order:" + id }

func tradeKey(id string) string { return "trade:" + id }

func tradesKey(pair domain.Pair) string { return "trades:" + string(pair) }

func bookKey(pair domain.Pair, side domain.Side) string {
	if side == domain.Buy {
		return "orderbook:" + string(pair) + ":bids"
	}
	return "orderbook:" + string(pair) + ":asks"
}

// score maps a price onto the sorted-set score for a side. Bids are negated
// so an ascending range yields the highest bid first. Scores are float64, so
// prices beyond about 15 significant digits read back rounded.
func score(side domain.Side, price decimal.Decimal) float64 {
	f := price.InexactFloat64()
	if side == domain.Buy {
		return -f
	}
	return f
}

func priceFromScore(side domain.Side, s float64) decimal.Decimal {
	if side == domain.Buy {
		s = -s
	}
	return decimal.NewFromFloat(s)
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
