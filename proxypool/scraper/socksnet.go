package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"proxyrank/internal/shared/logger"
	"proxyrank/proxypool/model"
)

const socksProxyNetURL = "https://www.socks-proxy.net/"

// SocksProxyNetScraper 解析 socks-proxy.net 首页的代理表格。
type SocksProxyNetScraper struct {
	client *http.Client
	url    string
}

func NewSocksProxyNetScraper(timeout time.Duration) Scraper {
	return &SocksProxyNetScraper{
		client: &http.Client{Timeout: timeout},
		url:    socksProxyNetURL,
	}
}

func (s *SocksProxyNetScraper) Name() string {
	return "socks-proxy.net"
}

func (s *SocksProxyNetScraper) Scrape(ctx context.Context) ([]model.Endpoint, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Info().Str("source", s.Name()).Msg("Starting scrape...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", s.Name(), err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page for %s: %w", s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code (%d) from %s", resp.StatusCode, s.Name())
	}

	eps, err := ParseSocksTable(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML for %s: %w", s.Name(), err)
	}

	l.Info().Int("count", len(eps)).Str("source", s.Name()).Msg("Scrape finished.")
	return eps, nil
}

// ParseSocksTable reads rows of IP | Port | Code | Country | Version | ...
// The version column decides between socks4 and socks5; anything else is socks4.
func ParseSocksTable(r io.Reader) ([]model.Endpoint, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var eps []model.Endpoint
	doc.Find("table tbody tr").Each(func(_ int, sel *goquery.Selection) {
		cells := sel.Find("td")
		ip := strings.TrimSpace(cells.Eq(0).Text())
		port := strings.TrimSpace(cells.Eq(1).Text())
		if ip == "" || port == "" {
			return
		}

		addr, err := model.NormalizeAddress(ip + ":" + port)
		if err != nil {
			return
		}

		proto := model.ProtoSOCKS4
		if strings.EqualFold(strings.TrimSpace(cells.Eq(4).Text()), "socks5") {
			proto = model.ProtoSOCKS5
		}
		eps = append(eps, model.Endpoint{Protocol: proto, Address: addr})
	})
	return eps, nil
}
