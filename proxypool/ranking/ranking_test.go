package ranking

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"proxyrank/proxypool/model"
)

func ep(proto model.Protocol, addr string) model.Endpoint {
	return model.Endpoint{Protocol: proto, Address: addr}
}

func entries(scores ...float64) []model.HistoryEntry {
	out := make([]model.HistoryEntry, len(scores))
	for i, s := range scores {
		out[i] = model.HistoryEntry{Score: s, Succeeded: s > 0, Timestamp: int64(i)}
	}
	return out
}

func TestEvaluate(t *testing.T) {
	rec, ok := Evaluate(4, entries(4, 0, 2, 0))
	require.True(t, ok)
	assert.InDelta(t, 1.5, rec.LongTermScore, 1e-9)
	assert.InDelta(t, 0.5, rec.ResponseRate, 1e-9)
	assert.InDelta(t, 3.0, rec.ResponseAvg, 1e-9)
	assert.Equal(t, 4.0, rec.CurrentScore)
	assert.Equal(t, 4, rec.Samples)

	rec, ok = Evaluate(0, entries(0, 0))
	require.True(t, ok)
	assert.Zero(t, rec.LongTermScore)
	assert.Zero(t, rec.ResponseRate)
	assert.Zero(t, rec.ResponseAvg)

	_, ok = Evaluate(1, nil)
	assert.False(t, ok)
}

func TestScore_SkipsEmptyWindows(t *testing.T) {
	a := model.SuccessOutcome(ep(model.ProtoSOCKS5, "1.1.1.1:1080"), 10*1024*1024, time.Second)
	b := model.FailedOutcome(ep(model.ProtoHTTP, "2.2.2.2:80"))
	history := map[string][]model.HistoryEntry{
		"1.1.1.1:1080": {{Score: a.CurrentScore, Succeeded: true}},
		"9.9.9.9:80":   entries(5),
	}

	scored := Score(history, []model.ProbeOutcome{a, b})
	require.Len(t, scored, 1)
	assert.Equal(t, "1.1.1.1:1080", scored[0].Endpoint().Address)
	assert.Equal(t, 0, scored[0].Seq)
	assert.InDelta(t, 10.0/1.01, scored[0].Record.LongTermScore, 1e-6)
}

func TestScore_LeavesOutSkipped(t *testing.T) {
	skipped := model.SkippedOutcome(ep(model.ProtoSOCKS5, "3.3.3.3:1080"))
	history := map[string][]model.HistoryEntry{"3.3.3.3:1080": entries(4, 4)}

	assert.Empty(t, Score(history, []model.ProbeOutcome{skipped}))
}

func TestScore_Deterministic(t *testing.T) {
	outcomes := []model.ProbeOutcome{
		model.SuccessOutcome(ep(model.ProtoHTTP, "1.0.0.1:80"), 1<<20, time.Second),
		model.FailedOutcome(ep(model.ProtoHTTP, "1.0.0.2:80")),
	}
	history := map[string][]model.HistoryEntry{
		"1.0.0.1:80": entries(1, 2, 3),
		"1.0.0.2:80": entries(0, 1),
	}
	assert.Equal(t, Score(history, outcomes), Score(history, outcomes))
}

func TestRank_OrderAndTieBreak(t *testing.T) {
	scored := []Scored{
		{Outcome: model.ProbeOutcome{Endpoint: ep(model.ProtoHTTP, "c:1")}, Record: model.ScoreRecord{LongTermScore: 1}, Seq: 0},
		{Outcome: model.ProbeOutcome{Endpoint: ep(model.ProtoHTTP, "a:1")}, Record: model.ScoreRecord{LongTermScore: 3}, Seq: 1},
		{Outcome: model.ProbeOutcome{Endpoint: ep(model.ProtoHTTP, "z:1")}, Record: model.ScoreRecord{LongTermScore: 1}, Seq: 2},
		{Outcome: model.ProbeOutcome{Endpoint: ep(model.ProtoHTTP, "b:1")}, Record: model.ScoreRecord{LongTermScore: 1}, Seq: 2},
	}

	ranked := Rank(scored)
	var got []string
	for _, s := range ranked {
		got = append(got, s.Endpoint().Address)
	}
	assert.Equal(t, []string{"a:1", "c:1", "b:1", "z:1"}, got)
	// input untouched
	assert.Equal(t, "c:1", scored[0].Endpoint().Address)

	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Record.LongTermScore, ranked[i].Record.LongTermScore)
	}
}

func qualifying(n int) []Scored {
	out := make([]Scored, n)
	for i := range out {
		o := model.SuccessOutcome(ep(model.ProtoSOCKS5, fmt.Sprintf("10.0.0.%d:1080", i+1)), 5<<20, time.Second)
		rec, _ := Evaluate(o.CurrentScore, []model.HistoryEntry{{Score: o.CurrentScore, Succeeded: true}})
		out[i] = Scored{Outcome: o, Record: rec, Seq: i}
	}
	return out
}

func TestSelect_NoBackfill(t *testing.T) {
	scored := qualifying(10)
	for i := 0; i < 20; i++ {
		o := model.FailedOutcome(ep(model.ProtoHTTP, fmt.Sprintf("10.1.0.%d:80", i+1)))
		rec, _ := Evaluate(0, entries(0))
		scored = append(scored, Scored{Outcome: o, Record: rec, Seq: 10 + i})
	}

	sel := Select(Rank(scored), Criteria{MinScore: 0.5, MinResponseRate: 0.5, MinCount: 75})
	assert.Len(t, sel.Qualified, 10)
	assert.Equal(t, 65, sel.Shortfall)
	for _, q := range sel.Qualified {
		assert.True(t, q.Outcome.Succeeded)
	}
}

func TestSelect_NoShortfallWhenEnough(t *testing.T) {
	sel := Select(Rank(qualifying(8)), Criteria{MinScore: 0.5, MinResponseRate: 0.5, MinCount: 5})
	assert.Len(t, sel.Qualified, 8)
	assert.Zero(t, sel.Shortfall)
	assert.Len(t, sel.Top(3), 3)
	assert.Len(t, sel.Top(100), 8)
	assert.Len(t, sel.Endpoints(), 8)
}

func TestSelect_CurrentRunRequired(t *testing.T) {
	// Strong history, but failed this run.
	o := model.FailedOutcome(ep(model.ProtoSOCKS5, "5.5.5.5:1080"))
	rec, _ := Evaluate(0, entries(9, 9, 9, 9, 9, 9, 9, 9, 9, 0))
	// Fresh success below the score threshold.
	slow := model.SuccessOutcome(ep(model.ProtoHTTP, "6.6.6.6:80"), 1024, time.Second)
	slowRec, _ := Evaluate(slow.CurrentScore, []model.HistoryEntry{{Score: slow.CurrentScore, Succeeded: true}})
	// Fresh success with poor response rate.
	flaky := model.SuccessOutcome(ep(model.ProtoHTTP, "7.7.7.7:80"), 5<<20, time.Second)
	flakyRec, _ := Evaluate(flaky.CurrentScore, append(entries(0, 0, 0), model.HistoryEntry{Score: flaky.CurrentScore, Succeeded: true}))

	ranked := Rank([]Scored{
		{Outcome: o, Record: rec, Seq: 0},
		{Outcome: slow, Record: slowRec, Seq: 1},
		{Outcome: flaky, Record: flakyRec, Seq: 2},
	})
	sel := Select(ranked, Criteria{MinScore: 0.5, MinResponseRate: 0.5, MinCount: 1})
	assert.Empty(t, sel.Qualified)
	assert.Equal(t, 1, sel.Shortfall)
}

func TestRespondedAndFailed(t *testing.T) {
	history := map[string][]model.HistoryEntry{
		"a:1": entries(1, 0, 0, 0),
		"b:1": entries(0, 0),
		"c:1": entries(0, 0, 0),
		"d:1": entries(0, 0, 2),
	}

	assert.Equal(t, []string{"a:1", "d:1"}, Responded(history))
	assert.Equal(t, []string{"a:1", "c:1"}, Failed(history, 3))
	assert.Nil(t, Failed(history, 0))
}
