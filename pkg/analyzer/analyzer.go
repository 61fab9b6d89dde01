package analyzer

import (
	"sort"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/obmonitor/pkg/app/core/account"
	"github.com/uhyunpark/obmonitor/pkg/app/core/record"
)

// PriceStats summarises prices. Sum is exact; Mean is floor(Sum/Count).
type PriceStats struct {
	Min       uint64          `json:"min"`
	Max       uint64          `json:"max"`
	Mean      uint64          `json:"mean"`
	MeanExact decimal.Decimal `json:"meanExact"`
	Sum       *uint256.Int    `json:"sum"`
	Count     uint64          `json:"count"`
}

// Report is the aggregate view of a record sequence.
// Distributions only hold observed keys; Price is nil when there are no records.
type Report struct {
	Total        uint64                      `json:"total"`
	Markets      map[string]uint64           `json:"markets"`
	EventTypes   map[record.EventType]uint64 `json:"eventTypes"`
	Directions   map[record.Direction]uint64 `json:"directions"`
	Price        *PriceStats                 `json:"price,omitempty"`
	MarketPrices map[string]*PriceStats      `json:"marketPrices"`
	BidPercent   decimal.Decimal             `json:"bidPercent"`
	AskPercent   decimal.Decimal             `json:"askPercent"`
}

// meanPlaces is the number of decimal places kept in MeanExact and percentages
const meanPlaces = 4

type priceAcc struct {
	min, max uint64
	sum      uint256.Int
	count    uint64
}

func (p *priceAcc) add(price uint64) {
	if p.count == 0 || price < p.min {
		p.min = price
	}
	if p.count == 0 || price > p.max {
		p.max = price
	}
	var v uint256.Int
	v.SetUint64(price)
	p.sum.Add(&p.sum, &v)
	p.count++
}

func (p *priceAcc) stats() *PriceStats {
	if p.count == 0 {
		return nil
	}
	var n, mean uint256.Int
	n.SetUint64(p.count)
	mean.Div(&p.sum, &n)

	sum := new(uint256.Int).Set(&p.sum)
	exact := decimal.NewFromBigInt(sum.ToBig(), 0).DivRound(decimal.NewFromUint64(p.count), meanPlaces)

	return &PriceStats{
		Min:       p.min,
		Max:       p.max,
		Mean:      mean.Uint64(), // mean <= max fits in 64 bits
		MeanExact: exact,
		Sum:       sum,
		Count:     p.count,
	}
}

// Analyze aggregates records. It is pure and safe for concurrent use.
func Analyze(records []record.Record) Report {
	rep := Report{
		Total:        uint64(len(records)),
		Markets:      make(map[string]uint64),
		EventTypes:   make(map[record.EventType]uint64),
		Directions:   make(map[record.Direction]uint64),
		MarketPrices: make(map[string]*PriceStats),
		BidPercent:   decimal.Zero,
		AskPercent:   decimal.Zero,
	}

	var all priceAcc
	perMarket := make(map[string]*priceAcc)
	for _, r := range records {
		rep.Markets[r.Market]++
		rep.EventTypes[r.EventType]++
		rep.Directions[r.Direction]++

		all.add(r.Price)
		acc, ok := perMarket[r.Market]
		if !ok {
			acc = &priceAcc{}
			perMarket[r.Market] = acc
		}
		acc.add(r.Price)
	}

	rep.Price = all.stats()
	for m, acc := range perMarket {
		rep.MarketPrices[m] = acc.stats()
	}
	if rep.Total > 0 {
		rep.BidPercent = percent(rep.Directions[record.Bid], rep.Total)
		rep.AskPercent = percent(rep.Directions[record.Ask], rep.Total)
	}
	return rep
}

func percent(part, total uint64) decimal.Decimal {
	return decimal.NewFromUint64(part).Mul(decimal.NewFromInt(100)).DivRound(decimal.NewFromUint64(total), meanPlaces)
}

// AnalyzeAccount reads a MonitorAccount-shaped region and aggregates its records.
func AnalyzeAccount(region []byte) (Report, error) {
	acc, err := account.Load(region)
	if err != nil {
		return Report{}, err
	}
	records, err := acc.ReadAll()
	if err != nil {
		return Report{}, err
	}
	return Analyze(records), nil
}

// MarketCount is one row of a ranked market distribution.
type MarketCount struct {
	Market string `json:"market"`
	Count  uint64 `json:"count"`
}

// TopMarkets returns markets ordered by count descending, then name.
// n <= 0 returns all of them.
func (r Report) TopMarkets(n int) []MarketCount {
	out := make([]MarketCount, 0, len(r.Markets))
	for m, c := range r.Markets {
		out = append(out, MarketCount{Market: m, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Market < out[j].Market
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
