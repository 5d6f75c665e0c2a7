package validator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"proxyrank/proxypool/model"
)

const (
	testPrescreenURL = "http://prescreen.test/ip"
	testBenchmarkURL = "http://payload.test/100MB.zip"
)

// relay starts an httptest server that answers proxied requests itself.
func relay(t *testing.T, h http.HandlerFunc) model.Endpoint {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return model.Endpoint{Protocol: model.ProtoHTTP, Address: strings.TrimPrefix(srv.URL, "http://")}
}

// deadEndpoint returns the address of a server that has already been shut down.
func deadEndpoint(t *testing.T) model.Endpoint {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()
	return model.Endpoint{Protocol: model.ProtoHTTP, Address: addr}
}

func testOptions() Options {
	return Options{
		PrescreenURL:         testPrescreenURL,
		PrescreenTimeout:     300 * time.Millisecond,
		PrescreenConcurrency: 10,
		BenchmarkURL:         testBenchmarkURL,
		BenchmarkTimeout:     500 * time.Millisecond,
		BenchmarkConcurrency: 10,
		ByteBudget:           1024,
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestPrescreen_ClassifiesEndpoints(t *testing.T) {
	var seenHost atomic.Value
	ok1 := relay(t, func(w http.ResponseWriter, r *http.Request) {
		seenHost.Store(r.URL.Host)
		fmt.Fprint(w, `{"origin":"1.2.3.4"}`)
	})
	ok2 := relay(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	broken := relay(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) })
	slow := relay(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	dead := deadEndpoint(t)

	v := NewValidator(testOptions())
	got := v.Prescreen(context.Background(), []model.Endpoint{ok1, broken, slow, dead, ok2})

	assert.Equal(t, []model.Endpoint{ok1, ok2}, got)
	assert.Equal(t, "prescreen.test", seenHost.Load())
}

func TestPrescreen_EmptyInput(t *testing.T) {
	v := NewValidator(testOptions())
	assert.Empty(t, v.Prescreen(context.Background(), nil))
}

func TestPrescreen_CancelledContext(t *testing.T) {
	ep := relay(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := NewValidator(testOptions())
	assert.Empty(t, v.Prescreen(ctx, []model.Endpoint{ep, ep, ep}))
}

func TestBenchmark_RangeRequest(t *testing.T) {
	var gotRange atomic.Value
	ep := relay(t, func(w http.ResponseWriter, r *http.Request) {
		gotRange.Store(r.Header.Get("Range"))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(bytes.Repeat([]byte{'x'}, 1024))
	})

	v := NewValidator(testOptions())
	outcomes := v.Benchmark(context.Background(), []model.Endpoint{ep})

	require.Len(t, outcomes, 1)
	o := outcomes[0]
	assert.Equal(t, "bytes=0-1023", gotRange.Load())
	assert.True(t, o.Succeeded)
	assert.True(t, o.HasMeasurements())
	assert.Equal(t, int64(1024), o.Bytes)
	assert.Greater(t, o.Throughput, 0.0)
	assert.InDelta(t, model.ComputeScore(o.Throughput, o.LatencySeconds()), o.CurrentScore, 1e-9)
}

func TestBenchmark_StopsAtByteBudget(t *testing.T) {
	var written atomic.Int64
	ep := relay(t, func(w http.ResponseWriter, r *http.Request) {
		// Ignores Range and keeps streaming.
		chunk := bytes.Repeat([]byte{'y'}, 32*1024)
		for i := 0; i < 64; i++ {
			n, err := w.Write(chunk)
			written.Add(int64(n))
			if err != nil {
				return
			}
		}
	})

	opts := testOptions()
	opts.ByteBudget = 4096
	outcomes := NewValidator(opts).Benchmark(context.Background(), []model.Endpoint{ep})

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Succeeded)
	assert.Equal(t, int64(4096), outcomes[0].Bytes)
}

func TestBenchmark_FailuresKeepOneOutcomePerInput(t *testing.T) {
	good := relay(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{'z'}, 1024))
	})
	notFound := relay(t, func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) })
	slow := relay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		w.(http.Flusher).Flush()
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	dead := deadEndpoint(t)

	eps := []model.Endpoint{notFound, good, slow, dead}
	outcomes := NewValidator(testOptions()).Benchmark(context.Background(), eps)

	require.Len(t, outcomes, len(eps))
	for i, o := range outcomes {
		assert.Equal(t, eps[i], o.Endpoint)
	}
	assert.True(t, outcomes[1].Succeeded)
	for _, i := range []int{0, 2, 3} {
		o := outcomes[i]
		assert.False(t, o.Succeeded, o.Endpoint.Address)
		assert.False(t, o.HasMeasurements())
		assert.Zero(t, o.CurrentScore)
		assert.Zero(t, o.Latency)
		assert.Zero(t, o.Throughput)
	}
}

func TestBenchmark_CancelledContextSkipsEndpoints(t *testing.T) {
	var hits atomic.Int32
	ep := relay(t, func(w http.ResponseWriter, r *http.Request) { hits.Add(1) })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eps := []model.Endpoint{ep, ep, ep}
	outcomes := NewValidator(testOptions()).Benchmark(ctx, eps)

	require.Len(t, outcomes, len(eps))
	for i, o := range outcomes {
		assert.Equal(t, eps[i], o.Endpoint)
		assert.True(t, o.Skipped)
		assert.False(t, o.Succeeded)
	}
	assert.Empty(t, model.Attempted(outcomes))
	assert.Zero(t, hits.Load())
}

func TestBenchmark_ConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32

	factory := func(ep model.Endpoint, timeout time.Duration) (http.RoundTripper, error) {
		return roundTripFunc(func(r *http.Request) (*http.Response, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			return &http.Response{
				StatusCode: http.StatusPartialContent,
				Header:     http.Header{},
				Body:       io.NopCloser(bytes.NewReader(make([]byte, 512))),
				Request:    r,
			}, nil
		}), nil
	}

	opts := testOptions()
	opts.BenchmarkConcurrency = 5
	v := NewValidator(opts, WithTransportFactory(factory))

	eps := make([]model.Endpoint, 50)
	for i := range eps {
		eps[i] = model.Endpoint{Protocol: model.ProtoSOCKS5, Address: fmt.Sprintf("10.1.0.%d:1080", i+1)}
	}
	outcomes := v.Benchmark(context.Background(), eps)

	require.Len(t, outcomes, 50)
	for _, o := range outcomes {
		assert.True(t, o.Succeeded)
	}
	assert.LessOrEqual(t, peak.Load(), int32(5))
	assert.Zero(t, inFlight.Load())
}

func TestBenchmark_TimeoutReleasesSlot(t *testing.T) {
	factory := func(ep model.Endpoint, timeout time.Duration) (http.RoundTripper, error) {
		return roundTripFunc(func(r *http.Request) (*http.Response, error) {
			<-r.Context().Done()
			return nil, r.Context().Err()
		}), nil
	}

	opts := testOptions()
	opts.BenchmarkConcurrency = 1
	opts.BenchmarkTimeout = 100 * time.Millisecond
	v := NewValidator(opts, WithTransportFactory(factory))

	eps := []model.Endpoint{
		{Protocol: model.ProtoHTTP, Address: "10.2.0.1:80"},
		{Protocol: model.ProtoHTTP, Address: "10.2.0.2:80"},
		{Protocol: model.ProtoHTTP, Address: "10.2.0.3:80"},
	}

	start := time.Now()
	outcomes := v.Benchmark(context.Background(), eps)
	elapsed := time.Since(start)

	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.False(t, o.Succeeded)
	}
	assert.Less(t, elapsed, 2*time.Second)

	// All slots must be free again.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, v.benchmarkGate.Acquire(ctx))
	v.benchmarkGate.Release()
}

func TestBenchmark_TransportErrorIsFailure(t *testing.T) {
	factory := func(ep model.Endpoint, timeout time.Duration) (http.RoundTripper, error) {
		return nil, fmt.Errorf("no route")
	}
	v := NewValidator(testOptions(), WithTransportFactory(factory))
	outcomes := v.Benchmark(context.Background(), []model.Endpoint{{Protocol: model.ProtoSOCKS4, Address: "10.3.0.1:4145"}})
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Succeeded)
}
