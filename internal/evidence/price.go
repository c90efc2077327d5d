// Package evidence turns the free-text market data attached to a verified
// claim into numbers: parsed prices, the overall move and a chart.
package evidence

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/audit-engine/internal/model"
)

const dateLayout = "2006-01-02"

// ErrNotEnoughPoints means fewer than two market data points could be
// parsed.
var ErrNotEnoughPoints = eris.New("evidence: need at least two parsable price points")

var currencyWords = []string{"usd", "inr", "rs.", "rs", "eur", "gbp", "usdt"}

var multipliers = []struct {
	suffix string
	factor decimal.Decimal
}{
	{"crore", decimal.NewFromInt(10_000_000)},
	{"cr", decimal.NewFromInt(10_000_000)},
	{"lakh", decimal.NewFromInt(100_000)},
	{"bn", decimal.NewFromInt(1_000_000_000)},
	{"b", decimal.NewFromInt(1_000_000_000)},
	{"m", decimal.NewFromInt(1_000_000)},
	{"k", decimal.NewFromInt(1_000)},
}

// ParsePrice reads a formatted price such as "$1,234.50", "₹ 24,000",
// "1.2k" or "3.5 lakh".
func ParsePrice(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.ToLower(strings.TrimSpace(s))
	for _, w := range currencyWords {
		s = strings.TrimPrefix(s, w)
		s = strings.TrimSuffix(s, w)
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r == ',' || unicode.IsSpace(r):
			return -1
		case unicode.Is(unicode.Sc, r):
			return -1
		}
		return r
	}, s)

	factor := decimal.NewFromInt(1)
	for _, m := range multipliers {
		if strings.HasSuffix(s, m.suffix) {
			s = strings.TrimSuffix(s, m.suffix)
			factor = m.factor
			break
		}
	}

	if s == "" {
		return decimal.Zero, eris.Errorf("evidence: no number in price %q", raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "evidence: parse price %q", raw)
	}
	return d.Mul(factor), nil
}

// PricePoint is a parsed market data point.
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
	Asset string          `json:"asset"`
}

// ParsePoints keeps the points whose date and price both parse, sorted by
// date.
func ParsePoints(points []model.MarketDataPoint) []PricePoint {
	out := make([]PricePoint, 0, len(points))
	for _, p := range points {
		date, err := time.Parse(dateLayout, strings.TrimSpace(p.Date))
		if err != nil {
			continue
		}
		price, err := ParsePrice(p.Price)
		if err != nil {
			continue
		}
		out = append(out, PricePoint{Date: date, Price: price, Asset: p.Asset})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// PriceMove is the change between the first and last parsable points.
type PriceMove struct {
	First     PricePoint      `json:"first"`
	Last      PricePoint      `json:"last"`
	Change    decimal.Decimal `json:"change"`
	ChangePct decimal.Decimal `json:"changePct"`
}

// Movement returns the overall move across points.
func Movement(points []model.MarketDataPoint) (*PriceMove, error) {
	parsed := ParsePoints(points)
	if len(parsed) < 2 {
		return nil, ErrNotEnoughPoints
	}
	first, last := parsed[0], parsed[len(parsed)-1]
	m := &PriceMove{First: first, Last: last, Change: last.Price.Sub(first.Price)}
	if !first.Price.IsZero() {
		m.ChangePct = m.Change.Div(first.Price).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return m, nil
}
