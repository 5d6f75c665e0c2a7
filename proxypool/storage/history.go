package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"proxyrank/internal/shared/logger"
	"proxyrank/proxypool/model"
)

var historyHeader = []string{"Proxy", "Timestamp", "Score", "Success"}

// HistoryStore 持有每个地址的滚动窗口, 只能通过 Merge 修改。
type HistoryStore struct {
	filePath string
	window   int
	now      func() time.Time

	mu      sync.RWMutex
	windows map[string]*model.Window
}

type StoreOption func(*HistoryStore)

// WithClock overrides the time source used to stamp merged entries.
func WithClock(now func() time.Time) StoreOption {
	return func(s *HistoryStore) { s.now = now }
}

func NewHistoryStore(filePath string, window int, opts ...StoreOption) *HistoryStore {
	if window <= 0 {
		window = 1
	}
	s := &HistoryStore{
		filePath: filePath,
		window:   window,
		now:      time.Now,
		windows:  make(map[string]*model.Window),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *HistoryStore) Path() string {
	return s.filePath
}

// Load replaces the in-memory history with the persisted one. A missing file is
// an empty history. An unreadable or corrupt file also leaves the history empty;
// the returned error describes why and is meant to be logged, not to stop the run.
func (s *HistoryStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := logger.WithComponent("ProxyPool/History")
	s.windows = make(map[string]*model.Window)

	file, err := os.Open(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.Info().Str("path", s.filePath).Msg("History file not found, starting with empty history.")
			return nil
		}
		return fmt.Errorf("opening history %s: %w", s.filePath, err)
	}
	defer file.Close()

	grouped, err := s.parse(file)
	if err != nil {
		return fmt.Errorf("parsing history %s: %w", s.filePath, err)
	}

	for addr, rows := range grouped {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp < rows[j].Timestamp })
		w := model.NewWindow(s.window)
		for _, e := range rows {
			w.Push(e)
		}
		s.windows[addr] = w
	}

	l.Info().Int("addresses", len(s.windows)).Msg("Loaded history.")
	return nil
}

func (s *HistoryStore) parse(r io.Reader) (map[string][]model.HistoryEntry, error) {
	l := logger.WithComponent("ProxyPool/History")

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) < len(historyHeader) || header[0] != historyHeader[0] {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	grouped := make(map[string][]model.HistoryEntry)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		addr, entry, err := parseHistoryRow(rec)
		if err != nil {
			l.Warn().Int("line", line).Err(err).Msg("Skipping malformed history row.")
			continue
		}
		grouped[addr] = append(grouped[addr], entry)
	}
	return grouped, nil
}

func parseHistoryRow(rec []string) (string, model.HistoryEntry, error) {
	if len(rec) != len(historyHeader) {
		return "", model.HistoryEntry{}, fmt.Errorf("expected %d fields, got %d", len(historyHeader), len(rec))
	}
	addr, err := model.NormalizeAddress(rec[0])
	if err != nil {
		return "", model.HistoryEntry{}, err
	}
	ts, err := strconv.ParseInt(rec[1], 10, 64)
	if err != nil {
		return "", model.HistoryEntry{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	score, err := strconv.ParseFloat(rec[2], 64)
	if err != nil {
		return "", model.HistoryEntry{}, fmt.Errorf("invalid score: %w", err)
	}
	ok, err := strconv.ParseBool(rec[3])
	if err != nil {
		return "", model.HistoryEntry{}, fmt.Errorf("invalid success flag: %w", err)
	}
	return addr, model.HistoryEntry{Score: score, Succeeded: ok, Timestamp: ts}, nil
}

// Merge appends one entry per attempted outcome, stamped with the current time.
// It must only be called after the probing stages have joined.
func (s *HistoryStore) Merge(outcomes []model.ProbeOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().Unix()
	for _, o := range model.Attempted(outcomes) {
		addr := o.Endpoint.Address
		w, ok := s.windows[addr]
		if !ok {
			w = model.NewWindow(s.window)
			s.windows[addr] = w
		}
		w.Push(model.HistoryEntry{Score: o.CurrentScore, Succeeded: o.Succeeded, Timestamp: ts})
	}
}

// Save atomically replaces the history file with the full in-memory mapping.
func (s *HistoryStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l := logger.WithComponent("ProxyPool/History")

	addrs := make([]string, 0, len(s.windows))
	for addr := range s.windows {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	rows := 0
	err := writeFileAtomic(s.filePath, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(historyHeader); err != nil {
			return err
		}
		for _, addr := range addrs {
			for _, e := range s.windows[addr].Entries() {
				success := "0"
				if e.Succeeded {
					success = "1"
				}
				if err := cw.Write([]string{
					addr,
					strconv.FormatInt(e.Timestamp, 10),
					strconv.FormatFloat(e.Score, 'f', -1, 64),
					success,
				}); err != nil {
					return err
				}
				rows++
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return fmt.Errorf("saving history: %w", err)
	}

	l.Info().Int("addresses", len(addrs)).Int("rows", rows).Str("path", s.filePath).Msg("Saved history.")
	return nil
}

// Snapshot returns a copy of every window, oldest entry first.
func (s *HistoryStore) Snapshot() map[string][]model.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]model.HistoryEntry, len(s.windows))
	for addr, w := range s.windows {
		out[addr] = w.Entries()
	}
	return out
}

func (s *HistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}
