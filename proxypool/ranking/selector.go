package ranking

import (
	"sort"

	"proxyrank/proxypool/model"
)

// Criteria are the qualification thresholds applied to the current run.
type Criteria struct {
	MinScore        float64
	MinResponseRate float64 // fraction, 0..1
	MinCount        int
}

// Selection 是最终输出。Shortfall > 0 表示合格数量未达到 MinCount, 不做回填。
type Selection struct {
	Qualified []Scored
	Shortfall int
}

// Endpoints returns the qualified endpoints, best first.
func (s Selection) Endpoints() []model.Endpoint {
	eps := make([]model.Endpoint, len(s.Qualified))
	for i, q := range s.Qualified {
		eps[i] = q.Endpoint()
	}
	return eps
}

// Top returns at most n qualified entries.
func (s Selection) Top(n int) []Scored {
	if n < 0 || n >= len(s.Qualified) {
		return s.Qualified
	}
	return s.Qualified[:n]
}

// Rank returns a sorted copy: long-term score descending, then discovery order, then address.
func Rank(scored []Scored) []Scored {
	ranked := make([]Scored, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Record.LongTermScore != b.Record.LongTermScore {
			return a.Record.LongTermScore > b.Record.LongTermScore
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.Outcome.Endpoint.Address < b.Outcome.Endpoint.Address
	})
	return ranked
}

// Qualifies reports whether s passes c on the current run's outcome.
func (c Criteria) Qualifies(s Scored) bool {
	return s.Outcome.Succeeded && s.Outcome.HasMeasurements() &&
		s.Record.CurrentScore >= c.MinScore &&
		s.Record.ResponseRate >= c.MinResponseRate
}

// Select filters ranked in order. Endpoints that fail the criteria are never used to reach MinCount.
func Select(ranked []Scored, c Criteria) Selection {
	sel := Selection{Qualified: make([]Scored, 0, len(ranked))}
	for _, s := range ranked {
		if c.Qualifies(s) {
			sel.Qualified = append(sel.Qualified, s)
		}
	}
	if missing := c.MinCount - len(sel.Qualified); missing > 0 {
		sel.Shortfall = missing
	}
	return sel
}
