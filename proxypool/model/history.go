package model

// HistoryEntry 是滚动窗口中的一条记录。
type HistoryEntry struct {
	Score     float64 `json:"score"`
	Succeeded bool    `json:"succeeded"`
	Timestamp int64   `json:"timestamp"` // unix seconds
}

// Window is a fixed-capacity FIFO of HistoryEntry, oldest first.
// Pushing onto a full window evicts the oldest entry.
type Window struct {
	capacity int
	entries  []HistoryEntry
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		entries:  make([]HistoryEntry, 0, capacity),
	}
}

func (w *Window) Push(e HistoryEntry) {
	if len(w.entries) == w.capacity {
		copy(w.entries, w.entries[1:])
		w.entries = w.entries[:w.capacity-1]
	}
	w.entries = append(w.entries, e)
}

func (w *Window) Len() int {
	return len(w.entries)
}

func (w *Window) Cap() int {
	return w.capacity
}

// Entries returns a copy of the window contents, oldest first.
func (w *Window) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(w.entries))
	copy(out, w.entries)
	return out
}

// ScoreRecord 由窗口派生, 不直接持久化。
type ScoreRecord struct {
	CurrentScore  float64 `json:"current_score"`
	LongTermScore float64 `json:"long_term_score"` // mean(window.score)
	ResponseRate  float64 `json:"response_rate"`   // count(succeeded) / len(window), 0..1
	ResponseAvg   float64 `json:"response_avg"`    // mean(score) over succeeded entries
	Samples       int     `json:"samples"`
}
