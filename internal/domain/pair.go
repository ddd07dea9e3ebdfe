package domain

import "fmt"

// Pair identifies a traded instrument.
type Pair string

const (
	BTCUSD Pair = "BTC_USD"
	ETHUSD Pair = "ETH_USD"
	XRPUSD Pair = "XRP_USD"
	LTCUSD Pair = "LTC_USD"
	BNBUSD Pair = "BNB_USD"
)

// SupportedPairs lists every pair the gateway accepts, in display order.
var SupportedPairs = []Pair{BTCUSD, ETHUSD, XRPUSD, LTCUSD, BNBUSD}

func (p Pair) Valid() bool {
	for _, s := range SupportedPairs {
		if p == s {
			return true
		}
	}
	return false
}

func ParsePair(s string) (Pair, error) {
	p := Pair(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPair, s)
	}
	return p, nil
}
