package validator

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
	"h12.io/socks"

	"proxyrank/internal/shared"
	"proxyrank/proxypool/model"
)

// TransportFactory builds the round tripper that relays requests through ep.
type TransportFactory func(ep model.Endpoint, timeout time.Duration) (http.RoundTripper, error)

// RelayTransport is an http.Transport whose relay connections are byte-counted.
type RelayTransport struct {
	*http.Transport
	traffic shared.TrafficCounter
}

// Traffic returns the bytes written to and read from the relay so far.
func (t *RelayTransport) Traffic() (up, down uint64) {
	return t.traffic.Uplink.Load(), t.traffic.Downlink.Load()
}

// NewRelayTransport returns a one-shot transport for ep with keep-alives disabled,
// so each probe opens and closes its own relay connection.
func NewRelayTransport(ep model.Endpoint, timeout time.Duration) (http.RoundTripper, error) {
	transport := &http.Transport{
		DisableKeepAlives:     true,
		MaxIdleConns:          0,
		IdleConnTimeout:       timeout,
		TLSHandshakeTimeout:   timeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
	}

	switch ep.Protocol {
	case model.ProtoHTTP:
		proxyURL, err := url.Parse(ep.URL())
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP proxy URL %q: %w", ep.URL(), err)
		}
		dialer := &net.Dialer{Timeout: timeout}
		transport.Proxy = http.ProxyURL(proxyURL)
		transport.DialContext = dialer.DialContext

	case model.ProtoSOCKS5:
		dialer, err := proxy.SOCKS5("tcp", ep.Address, nil, &net.Dialer{Timeout: timeout})
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialWithContext(ctx, dialer.Dial, network, addr)
			}
		}

	case model.ProtoSOCKS4:
		dial := socks.Dial(fmt.Sprintf("socks4://%s?timeout=%s", ep.Address, timeout))
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialWithContext(ctx, dial, network, addr)
		}

	default:
		return nil, fmt.Errorf("unsupported protocol %q", ep.Protocol)
	}

	rt := &RelayTransport{Transport: transport}
	dial := transport.DialContext
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return shared.NewCountedConn(conn, &rt.traffic), nil
	}
	return rt, nil
}

// dialWithContext adapts a context-unaware dial function. A connection that
// arrives after ctx is done is closed.
func dialWithContext(ctx context.Context, dial func(string, string) (net.Conn, error), network, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := dial(network, addr)
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// trafficOf reports relay bytes for transports that count them.
func trafficOf(rt http.RoundTripper) (up, down uint64, ok bool) {
	c, ok := rt.(interface{ Traffic() (uint64, uint64) })
	if !ok {
		return 0, 0, false
	}
	up, down = c.Traffic()
	return up, down, true
}

func closeIdle(rt http.RoundTripper) {
	if c, ok := rt.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
