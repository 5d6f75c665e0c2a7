package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"proxyrank/internal/shared/logger"
	"proxyrank/proxypool/model"
)

// TextListScraper 抓取纯文本代理列表 (每行 host:port 或任意包含地址的文本)。
type TextListScraper struct {
	name     string
	protocol model.Protocol
	urls     []string
	timeout  time.Duration
}

func NewTextListScraper(name string, protocol model.Protocol, timeout time.Duration, urls ...string) Scraper {
	return &TextListScraper{
		name:     name,
		protocol: protocol,
		urls:     urls,
		timeout:  timeout,
	}
}

func (s *TextListScraper) Name() string {
	return s.name
}

// Scrape visits every URL in parallel. It fails only if no URL could be fetched.
func (s *TextListScraper) Scrape(ctx context.Context) ([]model.Endpoint, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Info().Str("source", s.Name()).Int("urls", len(s.urls)).Msg("Starting scrape...")

	c := colly.NewCollector(
		colly.UserAgent(defaultUserAgent),
		colly.Async(true),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.timeout)
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 4}); err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		addrs    []string
		fetched  int
		firstErr error
	)

	c.OnResponse(func(r *colly.Response) {
		found := ExtractAddresses(r.Body)
		mu.Lock()
		defer mu.Unlock()
		fetched++
		addrs = append(addrs, found...)
		l.Debug().Str("url", r.Request.URL.String()).Int("count", len(found)).Msg("Fetched list.")
	})

	c.OnError(func(r *colly.Response, err error) {
		l.Debug().Err(err).Int("status_code", r.StatusCode).Str("url", r.Request.URL.String()).Msg("Fetch failed.")
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	})

	for _, u := range s.urls {
		if err := c.Visit(u); err != nil {
			l.Debug().Err(err).Str("url", u).Msg("Visit rejected.")
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}
	}
	c.Wait()

	if fetched == 0 && firstErr != nil {
		return nil, fmt.Errorf("%s: no list could be fetched: %w", s.Name(), firstErr)
	}

	eps := make([]model.Endpoint, len(addrs))
	for i, a := range addrs {
		eps[i] = model.Endpoint{Protocol: s.protocol, Address: a}
	}
	l.Info().Int("count", len(eps)).Str("source", s.Name()).Msg("Scrape finished.")
	return eps, nil
}
