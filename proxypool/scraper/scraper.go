package scraper

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"proxyrank/internal/shared/logger"
	"proxyrank/proxypool/dedup"
	"proxyrank/proxypool/model"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36"

// Scraper 接口定义了从代理源抓取候选端点的行为。
// 实现者只负责抓取和初步解析，不进行验证。
type Scraper interface {
	Scrape(ctx context.Context) ([]model.Endpoint, error)
	Name() string
}

var addressPattern = regexp.MustCompile(`\d{1,3}(?:\.\d{1,3}){3}:\d{2,5}`)

// ExtractAddresses returns every IPv4 host:port found in body that has a valid port.
func ExtractAddresses(body []byte) []string {
	var out []string
	for _, m := range addressPattern.FindAll(body, -1) {
		addr, err := model.NormalizeAddress(string(m))
		if err != nil {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// maxParallelSources bounds how many scrapers run at once.
const maxParallelSources = 8

// Collect runs every scraper concurrently and merges the results per protocol.
// Each protocol list is sorted and free of repeats; an address may still appear
// under several protocols. A failing source is logged and skipped.
func Collect(ctx context.Context, scrapers []Scraper) dedup.Buckets {
	l := logger.WithComponent("ProxyPool/Scraper")

	var mu sync.Mutex
	sets := make(map[model.Protocol]map[string]struct{}, len(model.Protocols))
	for _, p := range model.Protocols {
		sets[p] = make(map[string]struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSources)
	for _, s := range scrapers {
		g.Go(func() error {
			eps, err := s.Scrape(gctx)
			if err != nil {
				l.Warn().Err(err).Str("source", s.Name()).Msg("Scrape failed, skipping source.")
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, ep := range eps {
				if set, ok := sets[ep.Protocol]; ok {
					set[ep.Address] = struct{}{}
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	buckets := make(dedup.Buckets, len(sets))
	for proto, set := range sets {
		addrs := make([]string, 0, len(set))
		for addr := range set {
			addrs = append(addrs, addr)
		}
		sort.Strings(addrs)
		buckets[proto] = addrs
	}

	l.Info().
		Int(string(model.ProtoHTTP), len(buckets[model.ProtoHTTP])).
		Int(string(model.ProtoSOCKS4), len(buckets[model.ProtoSOCKS4])).
		Int(string(model.ProtoSOCKS5), len(buckets[model.ProtoSOCKS5])).
		Msg("Source collection finished.")
	return buckets
}
