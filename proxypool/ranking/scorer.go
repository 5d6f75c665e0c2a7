package ranking

import (
	"sort"

	"proxyrank/proxypool/model"
)

// Scored 是当前轮次中一个端点的评分结果。
type Scored struct {
	Outcome model.ProbeOutcome
	Record  model.ScoreRecord
	Seq     int // discovery order of the endpoint in this run
}

func (s Scored) Endpoint() model.Endpoint {
	return s.Outcome.Endpoint
}

// Evaluate derives a ScoreRecord from one rolling window. An empty window yields ok=false.
func Evaluate(currentScore float64, entries []model.HistoryEntry) (model.ScoreRecord, bool) {
	if len(entries) == 0 {
		return model.ScoreRecord{}, false
	}

	var sum, successSum float64
	successes := 0
	for _, e := range entries {
		sum += e.Score
		if e.Succeeded {
			successes++
			successSum += e.Score
		}
	}

	rec := model.ScoreRecord{
		CurrentScore:  currentScore,
		LongTermScore: sum / float64(len(entries)),
		ResponseRate:  float64(successes) / float64(len(entries)),
		Samples:       len(entries),
	}
	if successes > 0 {
		rec.ResponseAvg = successSum / float64(successes)
	}
	return rec, true
}

// Score pairs every current-run outcome with the record derived from its merged window.
// Skipped outcomes and outcomes whose address has no history are left out. Pure and deterministic.
func Score(history map[string][]model.HistoryEntry, outcomes []model.ProbeOutcome) []Scored {
	scored := make([]Scored, 0, len(outcomes))
	for i, o := range outcomes {
		if o.Skipped {
			continue
		}
		rec, ok := Evaluate(o.CurrentScore, history[o.Endpoint.Address])
		if !ok {
			continue
		}
		scored = append(scored, Scored{Outcome: o, Record: rec, Seq: i})
	}
	return scored
}

// Responded returns, sorted, every address with at least one success in its window.
func Responded(history map[string][]model.HistoryEntry) []string {
	var out []string
	for addr, entries := range history {
		for _, e := range entries {
			if e.Succeeded {
				out = append(out, addr)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Failed returns, sorted, every address whose last streak entries all failed.
// Windows shorter than streak are not judged.
func Failed(history map[string][]model.HistoryEntry, streak int) []string {
	if streak <= 0 {
		return nil
	}
	var out []string
	for addr, entries := range history {
		if len(entries) < streak {
			continue
		}
		failed := true
		for _, e := range entries[len(entries)-streak:] {
			if e.Succeeded {
				failed = false
				break
			}
		}
		if failed {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out
}
