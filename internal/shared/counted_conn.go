package shared

import (
	"net"
	"sync/atomic"
)

// TrafficCounter 累计一组连接的上行/下行字节数。
type TrafficCounter struct {
	Uplink   atomic.Uint64
	Downlink atomic.Uint64
}

// CountedConn 是一个 net.Conn 的包装器，用于原子地统计上行和下行流量。
type CountedConn struct {
	net.Conn
	counter *TrafficCounter
}

func NewCountedConn(conn net.Conn, counter *TrafficCounter) *CountedConn {
	return &CountedConn{
		Conn:    conn,
		counter: counter,
	}
}

func (c *CountedConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.counter.Downlink.Add(uint64(n))
	}
	return n, err
}

func (c *CountedConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		c.counter.Uplink.Add(uint64(n))
	}
	return n, err
}
