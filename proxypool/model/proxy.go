package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Protocol 是代理声明的协议。它只是元数据, 不参与地址的身份判断。
type Protocol string

const (
	ProtoHTTP   Protocol = "http"
	ProtoSOCKS4 Protocol = "socks4"
	ProtoSOCKS5 Protocol = "socks5"
)

// Protocols lists every supported protocol in discovery order.
var Protocols = []Protocol{ProtoHTTP, ProtoSOCKS5, ProtoSOCKS4}

// ParseProtocol accepts the lower-case scheme names used in list files and URLs.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(s))); p {
	case ProtoHTTP, ProtoSOCKS4, ProtoSOCKS5:
		return p, nil
	}
	return "", fmt.Errorf("unsupported protocol %q", s)
}

// Endpoint 定义了一个待评估的中继地址。构造后不可修改 (值类型)。
type Endpoint struct {
	Protocol Protocol `json:"protocol"`
	Address  string   `json:"address"` // "host:port", 去重时的唯一身份
}

// URL returns the protocol-qualified form, e.g. "socks5://1.2.3.4:1080".
func (e Endpoint) URL() string {
	return string(e.Protocol) + "://" + e.Address
}

func (e Endpoint) String() string {
	return e.URL()
}

// NormalizeAddress trims an input line and checks it is host:port with a port in 1..65535.
func NormalizeAddress(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	if host == "" {
		return "", fmt.Errorf("missing host in %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("invalid port in %q", addr)
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// ScoreEpsilon 防止延迟为零时除零。
const ScoreEpsilon = 0.01

// ComputeScore 是当前轮次得分: throughput / (latency + ε)。
func ComputeScore(throughputMBps, latencySeconds float64) float64 {
	return throughputMBps / (latencySeconds + ScoreEpsilon)
}

// ProbeOutcome 是一次测速的结果。
// 失败时 Latency 与 Throughput 为零 (视为缺失), CurrentScore 为 0。
// Skipped 表示运行被取消前未获得准入, 从未探测, 不是观测结果。
type ProbeOutcome struct {
	Endpoint     Endpoint      `json:"endpoint"`
	Succeeded    bool          `json:"succeeded"`
	Skipped      bool          `json:"skipped,omitempty"`
	Latency      time.Duration `json:"latency"`         // 从发起请求到读取完预算字节的总耗时
	Throughput   float64       `json:"throughput_mbps"` // MiB/s
	Bytes        int64         `json:"bytes"`
	CurrentScore float64       `json:"current_score"`
}

// SuccessOutcome builds a successful outcome from the bytes received in elapsed.
func SuccessOutcome(ep Endpoint, bytes int64, elapsed time.Duration) ProbeOutcome {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		seconds = time.Nanosecond.Seconds()
	}
	throughput := float64(bytes) / seconds / (1024 * 1024)
	return ProbeOutcome{
		Endpoint:     ep,
		Succeeded:    true,
		Latency:      elapsed,
		Throughput:   throughput,
		Bytes:        bytes,
		CurrentScore: ComputeScore(throughput, seconds),
	}
}

// FailedOutcome builds the outcome recorded for any transport, timeout or status failure.
func FailedOutcome(ep Endpoint) ProbeOutcome {
	return ProbeOutcome{Endpoint: ep}
}

// SkippedOutcome marks an endpoint that was never probed.
func SkippedOutcome(ep Endpoint) ProbeOutcome {
	return ProbeOutcome{Endpoint: ep, Skipped: true}
}

// Attempted returns the outcomes of endpoints that were actually probed, in order.
func Attempted(outcomes []ProbeOutcome) []ProbeOutcome {
	out := make([]ProbeOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Skipped {
			out = append(out, o)
		}
	}
	return out
}

// HasMeasurements reports whether latency and throughput are present.
func (o ProbeOutcome) HasMeasurements() bool {
	return o.Succeeded && o.Latency > 0
}

// LatencySeconds returns the latency in seconds, or 0 when absent.
func (o ProbeOutcome) LatencySeconds() float64 {
	if !o.HasMeasurements() {
		return 0
	}
	return o.Latency.Seconds()
}
