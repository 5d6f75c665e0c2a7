package manager

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"proxyrank/internal/shared/globalstate"
	"proxyrank/internal/shared/logger"
	"proxyrank/internal/shared/metrics"
	"proxyrank/internal/shared/types"
	"proxyrank/proxypool/dedup"
	"proxyrank/proxypool/model"
	"proxyrank/proxypool/ranking"
	"proxyrank/proxypool/scraper"
	"proxyrank/proxypool/storage"
)

type Status string

const (
	StatusOK          Status = "ok"
	StatusNothingToDo Status = "nothing_to_do"
	// StatusInterrupted: ctx ended during probing. History and outputs were not touched.
	StatusInterrupted Status = "interrupted"
)

// Prober runs the two probing stages.
type Prober interface {
	Prescreen(ctx context.Context, eps []model.Endpoint) []model.Endpoint
	Benchmark(ctx context.Context, eps []model.Endpoint) []model.ProbeOutcome
}

// Result 汇总一次评估运行。
type Result struct {
	RunID  string
	Status Status

	Loaded      int // entries read from the input lists
	Unique      int // after cross-protocol deduplication
	Responsive  int
	Benchmarked int
	Succeeded   int
	Skipped     int // never admitted to the benchmark because the run was cancelled

	Ranked    []ranking.Scored
	Selection ranking.Selection

	// HistoryErr is set when history could not be persisted. Rankings are still valid.
	HistoryErr error
	// OutputErr aggregates every output file that could not be written.
	OutputErr error

	PrescreenDuration time.Duration
	BenchmarkDuration time.Duration
	TotalDuration     time.Duration
}

// Manager 是评估流水线的总控制器。
type Manager struct {
	cfg     *types.Config
	history *storage.HistoryStore
	prober  Prober
	metrics *metrics.Collector
}

func NewManager(cfg *types.Config, history *storage.HistoryStore, prober Prober, m *metrics.Collector) *Manager {
	return &Manager{
		cfg:     cfg,
		history: history,
		prober:  prober,
		metrics: m,
	}
}

// Run executes one full pass: load, deduplicate, prescreen, benchmark, merge history,
// score, select and write outputs. An empty input short-circuits with StatusNothingToDo;
// a cancelled ctx stops after the probing stage it interrupted with StatusInterrupted.
// Persistence failures are reported on the Result.
func (m *Manager) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString(), Status: StatusOK}
	l := logger.WithComponent("ProxyPool/Manager").With().Str("run_id", res.RunID).Logger()
	defer globalstate.GlobalStatus.Set(globalstate.PhaseDone)

	globalstate.GlobalStatus.Set(globalstate.PhaseLoading)
	raw := m.loadInputs(l)
	res.Loaded = raw.Count()
	resolved := dedup.Resolve(raw)
	eps := resolved.Endpoints()
	res.Unique = len(eps)

	l.Info().Int("loaded", res.Loaded).Int("unique", res.Unique).
		Int(string(model.ProtoHTTP), len(resolved[model.ProtoHTTP])).
		Int(string(model.ProtoSOCKS5), len(resolved[model.ProtoSOCKS5])).
		Int(string(model.ProtoSOCKS4), len(resolved[model.ProtoSOCKS4])).
		Msg("Input lists resolved.")

	if len(eps) == 0 {
		l.Warn().Msg("No input endpoints, nothing to do.")
		res.Status = StatusNothingToDo
		res.TotalDuration = time.Since(start)
		return res, nil
	}

	if err := m.history.Load(); err != nil {
		l.Warn().Err(err).Msg("History unavailable, continuing with empty history.")
	}

	globalstate.GlobalStatus.Set(globalstate.PhasePrescreen)
	t := time.Now()
	responsive := m.prober.Prescreen(ctx, eps)
	res.PrescreenDuration = time.Since(t)
	res.Responsive = len(responsive)
	if ctx.Err() != nil {
		return m.interrupted(res, start, l, ctx.Err()), nil
	}

	globalstate.GlobalStatus.Set(globalstate.PhaseBenchmark)
	t = time.Now()
	outcomes := m.prober.Benchmark(ctx, responsive)
	res.BenchmarkDuration = time.Since(t)
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			res.Skipped++
		case o.Succeeded:
			res.Succeeded++
		}
	}
	res.Benchmarked = len(outcomes) - res.Skipped
	if ctx.Err() != nil {
		return m.interrupted(res, start, l, ctx.Err()), nil
	}

	// 所有探测已结束, 之后才修改历史。
	globalstate.GlobalStatus.Set(globalstate.PhaseScoring)
	m.history.Merge(outcomes)
	if err := m.history.Save(); err != nil {
		l.Warn().Err(err).Msg("Failed to persist history, rankings remain valid.")
		res.HistoryErr = err
	}
	snapshot := m.history.Snapshot()
	m.metrics.SetHistorySize(len(snapshot))

	res.Ranked = ranking.Rank(ranking.Score(snapshot, outcomes))
	res.Selection = ranking.Select(res.Ranked, ranking.Criteria{
		MinScore:        m.cfg.SelectionConf.MinScore,
		MinResponseRate: m.cfg.SelectionConf.MinResponseRate,
		MinCount:        m.cfg.SelectionConf.MinCount,
	})
	m.metrics.SetSelection(len(res.Selection.Qualified), res.Selection.Shortfall)

	if res.Selection.Shortfall > 0 {
		l.Warn().Int("qualified", len(res.Selection.Qualified)).Int("min_count", m.cfg.SelectionConf.MinCount).
			Int("shortfall", res.Selection.Shortfall).Msg("Fewer qualifying endpoints than requested.")
	}

	globalstate.GlobalStatus.Set(globalstate.PhaseWriting)
	res.OutputErr = m.writeOutputs(res, snapshot)
	if res.OutputErr != nil {
		l.Warn().Err(res.OutputErr).Msg("Some output files could not be written.")
	}

	res.TotalDuration = time.Since(start)
	l.Info().
		Int("responsive", res.Responsive).
		Int("succeeded", res.Succeeded).
		Int("qualified", len(res.Selection.Qualified)).
		Dur("prescreen", res.PrescreenDuration).
		Dur("benchmark", res.BenchmarkDuration).
		Dur("total", res.TotalDuration).
		Msg("Run finished.")
	return res, nil
}

// interrupted closes out a cancelled run. Partial probing results are discarded so that
// neither the history nor the previous output files see them.
func (m *Manager) interrupted(res *Result, start time.Time, l zerolog.Logger, cause error) *Result {
	res.Status = StatusInterrupted
	res.TotalDuration = time.Since(start)
	l.Warn().Err(cause).
		Str("phase", globalstate.GlobalStatus.Get()).
		Int("benchmarked", res.Benchmarked).
		Int("skipped", res.Skipped).
		Msg("Run interrupted, discarding partial results.")
	return res
}

func (m *Manager) loadInputs(l zerolog.Logger) dedup.Buckets {
	files := m.cfg.FilesConf
	lists := map[model.Protocol]string{
		model.ProtoHTTP:   files.HTTP,
		model.ProtoSOCKS4: files.SOCKS4,
		model.ProtoSOCKS5: files.SOCKS5,
	}

	buckets := make(dedup.Buckets, len(lists))
	for proto, name := range lists {
		if name == "" {
			continue
		}
		addrs, err := storage.ReadEndpointList(m.inputPath(name))
		if err != nil {
			l.Warn().Err(err).Str("protocol", string(proto)).Msg("Endpoint list unreadable, treating as empty.")
			continue
		}
		buckets[proto] = addrs
	}
	return buckets
}

func (m *Manager) writeOutputs(res *Result, history map[string][]model.HistoryEntry) error {
	files := m.cfg.FilesConf

	rotation := make([]model.Endpoint, len(res.Ranked))
	for i, s := range res.Ranked {
		rotation[i] = s.Endpoint()
	}
	top := ranking.Selection{Qualified: res.Selection.Top(m.cfg.SelectionConf.TopN)}

	var err error
	write := func(name string, fn func(path string) error) {
		if name == "" {
			return
		}
		err = multierr.Append(err, fn(m.outputPath(name)))
	}

	write(files.Results, func(p string) error { return storage.WriteReport(p, res.Ranked) })
	write(files.Selected, func(p string) error { return storage.WriteEndpoints(p, res.Selection.Endpoints()) })
	write(files.Top, func(p string) error { return storage.WriteEndpoints(p, top.Endpoints()) })
	write(files.Rotation, func(p string) error { return storage.WriteEndpoints(p, rotation) })
	write(files.Failed, func(p string) error {
		return storage.WriteLines(p, ranking.Failed(history, m.cfg.HistoryConf.FailStreak))
	})
	write(files.Responded, func(p string) error { return storage.WriteLines(p, ranking.Responded(history)) })
	return err
}

// ErrNoCandidates is returned by Fetch when no source produced anything.
var ErrNoCandidates = errors.New("no candidates collected from any source")

// Fetch collects candidates from scrapers and rewrites the three input lists.
// When nothing was collected the existing lists are kept.
func (m *Manager) Fetch(ctx context.Context, scrapers []scraper.Scraper) error {
	l := logger.WithComponent("ProxyPool/Manager")
	buckets := scraper.Collect(ctx, scrapers)
	if buckets.Count() == 0 {
		return ErrNoCandidates
	}

	files := m.cfg.FilesConf
	var err error
	for proto, name := range map[model.Protocol]string{
		model.ProtoHTTP:   files.HTTP,
		model.ProtoSOCKS4: files.SOCKS4,
		model.ProtoSOCKS5: files.SOCKS5,
	} {
		if name == "" {
			continue
		}
		err = multierr.Append(err, storage.WriteLines(m.inputPath(name), buckets[proto]))
	}
	if err != nil {
		return err
	}

	l.Info().Int("total", buckets.Count()).Msg("Input lists refreshed from sources.")
	return nil
}

func (m *Manager) inputPath(name string) string {
	return joinIfRelative(m.cfg.FilesConf.InputDir, name)
}

func (m *Manager) outputPath(name string) string {
	return joinIfRelative(m.cfg.FilesConf.OutputDir, name)
}

func joinIfRelative(dir, name string) string {
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
