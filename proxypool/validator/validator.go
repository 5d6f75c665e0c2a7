package validator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"proxyrank/internal/shared/logger"
	"proxyrank/internal/shared/metrics"
	"proxyrank/internal/shared/types"
	"proxyrank/proxypool/model"
)

const (
	readChunkSize    = 64 * 1024
	prescreenBodyCap = 4096
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36"
)

// Options are the tunables of both probing stages. Cp and Ct are independent gates.
type Options struct {
	PrescreenURL         string
	PrescreenTimeout     time.Duration
	PrescreenConcurrency int

	BenchmarkURL         string
	BenchmarkTimeout     time.Duration
	BenchmarkConcurrency int
	ByteBudget           int64
}

func OptionsFromConfig(cfg *types.Config) Options {
	return Options{
		PrescreenURL:         cfg.PrescreenConf.URL,
		PrescreenTimeout:     cfg.PrescreenConf.Timeout(),
		PrescreenConcurrency: cfg.PrescreenConf.Concurrency,
		BenchmarkURL:         cfg.BenchmarkConf.URL,
		BenchmarkTimeout:     cfg.BenchmarkConf.Timeout(),
		BenchmarkConcurrency: cfg.BenchmarkConf.Concurrency,
		ByteBudget:           cfg.BenchmarkConf.ByteBudget,
	}
}

type Option func(*Validator)

// WithTransportFactory replaces the relay transport builder.
func WithTransportFactory(f TransportFactory) Option {
	return func(v *Validator) { v.transport = f }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(v *Validator) { v.metrics = m }
}

// Validator runs the liveness prescreen and the throughput benchmark.
// Probe failures of any kind stay inside the per-endpoint goroutine.
type Validator struct {
	opts          Options
	prescreenGate *Gate
	benchmarkGate *Gate
	transport     TransportFactory
	metrics       *metrics.Collector
}

func NewValidator(opts Options, extra ...Option) *Validator {
	if opts.PrescreenConcurrency <= 0 {
		opts.PrescreenConcurrency = types.DefaultPrescreenConcurrency
	}
	if opts.BenchmarkConcurrency <= 0 {
		opts.BenchmarkConcurrency = types.DefaultBenchmarkConcurrency
	}
	if opts.PrescreenTimeout <= 0 {
		opts.PrescreenTimeout = types.DefaultPrescreenTimeout * time.Second
	}
	if opts.BenchmarkTimeout <= 0 {
		opts.BenchmarkTimeout = types.DefaultBenchmarkTimeout * time.Second
	}
	if opts.ByteBudget <= 0 {
		opts.ByteBudget = types.DefaultByteBudget
	}
	if opts.PrescreenURL == "" {
		opts.PrescreenURL = types.DefaultPrescreenURL
	}
	if opts.BenchmarkURL == "" {
		opts.BenchmarkURL = types.DefaultBenchmarkURL
	}

	v := &Validator{
		opts:          opts,
		prescreenGate: NewGate(opts.PrescreenConcurrency),
		benchmarkGate: NewGate(opts.BenchmarkConcurrency),
		transport:     NewRelayTransport,
	}
	for _, o := range extra {
		o(v)
	}
	return v
}

type indexed[T any] struct {
	idx   int
	value T
}

// fanOut runs probe for every endpoint, admitting at most gate.Size at once.
// Results are delivered over a channel and assembled in input order after the join.
// Endpoints that could not be admitted because ctx ended get fallback.
func fanOut[T any](ctx context.Context, gate *Gate, eps []model.Endpoint, probe func(context.Context, model.Endpoint) T, fallback func(model.Endpoint) T) []T {
	var wg sync.WaitGroup
	resultsChan := make(chan indexed[T], len(eps))

	admitted := 0
	for i, ep := range eps {
		if err := gate.Acquire(ctx); err != nil {
			break
		}
		admitted++
		wg.Add(1)

		go func(i int, ep model.Endpoint) {
			defer wg.Done()
			defer gate.Release()

			resultsChan <- indexed[T]{idx: i, value: probe(ctx, ep)}
		}(i, ep)
	}

	wg.Wait()
	close(resultsChan)

	results := make([]T, len(eps))
	for r := range resultsChan {
		results[r.idx] = r.value
	}
	for i := admitted; i < len(eps); i++ {
		results[i] = fallback(eps[i])
	}
	return results
}

// Prescreen returns the responsive subset of eps, in input order.
func (v *Validator) Prescreen(ctx context.Context, eps []model.Endpoint) []model.Endpoint {
	l := logger.WithComponent("ProxyPool/Validator")
	if len(eps) == 0 {
		return nil
	}

	l.Info().Int("count", len(eps)).Int("concurrency", v.prescreenGate.Size()).
		Dur("timeout", v.opts.PrescreenTimeout).Msg("Starting prescreen batch...")

	alive := fanOut(ctx, v.prescreenGate, eps, func(ctx context.Context, ep model.Endpoint) bool {
		v.metrics.ProbeStarted(metrics.StagePrescreen)
		err := v.ping(ctx, ep)
		v.metrics.ProbeFinished(metrics.StagePrescreen, err == nil)
		if err != nil {
			l.Debug().Str("proxy", ep.URL()).Err(err).Msg("Prescreen failed.")
			return false
		}
		return true
	}, func(model.Endpoint) bool { return false })

	responsive := make([]model.Endpoint, 0, len(eps))
	for i, ok := range alive {
		if ok {
			responsive = append(responsive, eps[i])
		}
	}

	l.Info().Int("responsive", len(responsive)).Int("total", len(eps)).Msg("Prescreen batch finished.")
	return responsive
}

// Benchmark measures every endpoint and returns one outcome per input, in input order.
// Endpoints not admitted before ctx ended come back as skipped, never as failures.
func (v *Validator) Benchmark(ctx context.Context, eps []model.Endpoint) []model.ProbeOutcome {
	l := logger.WithComponent("ProxyPool/Validator")
	if len(eps) == 0 {
		return nil
	}

	l.Info().Int("count", len(eps)).Int("concurrency", v.benchmarkGate.Size()).
		Dur("timeout", v.opts.BenchmarkTimeout).Int64("byte_budget", v.opts.ByteBudget).
		Msg("Starting benchmark batch...")

	outcomes := fanOut(ctx, v.benchmarkGate, eps, func(ctx context.Context, ep model.Endpoint) model.ProbeOutcome {
		v.metrics.ProbeStarted(metrics.StageBenchmark)
		outcome, err := v.measure(ctx, ep)
		v.metrics.ProbeFinished(metrics.StageBenchmark, err == nil)
		if err != nil {
			l.Debug().Str("proxy", ep.URL()).Err(err).Msg("Benchmark failed.")
			return model.FailedOutcome(ep)
		}
		v.metrics.ObserveBenchmark(outcome.LatencySeconds(), outcome.Throughput)
		return outcome
	}, model.SkippedOutcome)

	succeeded, skipped := 0, 0
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			skipped++
		case o.Succeeded:
			succeeded++
		}
	}
	l.Info().Int("succeeded", succeeded).Int("failed", len(outcomes)-succeeded-skipped).
		Int("skipped", skipped).Msg("Benchmark batch finished.")
	return outcomes
}

func (v *Validator) recordTraffic(stage string, rt http.RoundTripper) {
	if up, down, ok := trafficOf(rt); ok {
		v.metrics.AddRelayBytes(stage, up, down)
	}
}

// ping issues one lightweight GET through ep; any non-2xx status is a failure.
func (v *Validator) ping(ctx context.Context, ep model.Endpoint) error {
	timeout := v.opts.PrescreenTimeout
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rt, err := v.transport(ep, timeout)
	if err != nil {
		return err
	}
	defer closeIdle(rt)
	defer v.recordTraffic(metrics.StagePrescreen, rt)

	client := &http.Client{Transport: rt, Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.opts.PrescreenURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, prescreenBodyCap))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("received non-successful status code: %d", resp.StatusCode)
	}
	return nil
}

// measure downloads at most ByteBudget bytes through ep and times the whole exchange.
func (v *Validator) measure(ctx context.Context, ep model.Endpoint) (model.ProbeOutcome, error) {
	timeout := v.opts.BenchmarkTimeout
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rt, err := v.transport(ep, timeout)
	if err != nil {
		return model.ProbeOutcome{}, err
	}
	defer closeIdle(rt)
	defer v.recordTraffic(metrics.StageBenchmark, rt)

	client := &http.Client{Transport: rt, Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.opts.BenchmarkURL, nil)
	if err != nil {
		return model.ProbeOutcome{}, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", v.opts.ByteBudget-1))

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return model.ProbeOutcome{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return model.ProbeOutcome{}, fmt.Errorf("received unexpected status code: %d", resp.StatusCode)
	}

	// Servers that ignore Range keep streaming; stop at the budget.
	budget := v.opts.ByteBudget
	buf := make([]byte, readChunkSize)
	var total int64
	for total < budget {
		chunk := buf
		if rem := budget - total; rem < int64(len(chunk)) {
			chunk = chunk[:rem]
		}
		n, err := resp.Body.Read(chunk)
		total += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.ProbeOutcome{}, fmt.Errorf("reading body after %d bytes: %w", total, err)
		}
	}

	return model.SuccessOutcome(ep, total, time.Since(start)), nil
}
