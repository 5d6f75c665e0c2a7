package types

import "time"

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// PrescreenConf 控制存活预筛阶段 (轻量请求, 高并发)。
type PrescreenConf struct {
	URL            string `ini:"url"`
	TimeoutSeconds int    `ini:"timeout_seconds"`
	Concurrency    int    `ini:"concurrency"`
}

// BenchmarkConf 控制吞吐/延迟测速阶段。
type BenchmarkConf struct {
	URL            string `ini:"url"`
	TimeoutSeconds int    `ini:"timeout_seconds"`
	Concurrency    int    `ini:"concurrency"`
	ByteBudget     int64  `ini:"byte_budget"` // 每个代理最多下载的字节数
}

// HistoryConf 控制滚动历史窗口。
type HistoryConf struct {
	Path       string `ini:"path"`
	Window     int    `ini:"window"`      // 每个地址保留的最近记录数 W
	FailStreak int    `ini:"fail_streak"` // 连续失败多少次列入 FailedProxies
}

// SelectionConf 是最终筛选的质量阈值。
type SelectionConf struct {
	MinScore        float64 `ini:"min_score"`
	MinResponseRate float64 `ini:"min_response_rate"` // 0..1
	MinCount        int     `ini:"min_count"`         // 目标数量, 不足时只报告缺口, 不放宽标准
	TopN            int     `ini:"top_n"`
}

// FilesConf 定义输入与输出文件。相对路径分别基于 InputDir / OutputDir。
type FilesConf struct {
	InputDir  string `ini:"input_dir"`
	OutputDir string `ini:"output_dir"`

	HTTP   string `ini:"http"`
	SOCKS4 string `ini:"socks4"`
	SOCKS5 string `ini:"socks5"`

	Results   string `ini:"results"`
	Selected  string `ini:"selected"`
	Top       string `ini:"top"`
	Rotation  string `ini:"rotation"`
	Failed    string `ini:"failed"`
	Responded string `ini:"responded"`
}

// SourcesConf 控制 -fetch 模式下的代理源抓取。
type SourcesConf struct {
	TimeoutSeconds int  `ini:"timeout_seconds"`
	SocksProxyNet  bool `ini:"socks_proxy_net"`
}

// MetricsConf 控制 prometheus 指标导出。
type MetricsConf struct {
	Textfile string `ini:"textfile"`
}

// Config 是 proxyrank 的统一配置结构体
type Config struct {
	LogConf       `ini:"log"`
	PrescreenConf `ini:"prescreen"`
	BenchmarkConf `ini:"benchmark"`
	HistoryConf   `ini:"history"`
	SelectionConf `ini:"selection"`
	FilesConf     `ini:"files"`
	SourcesConf   `ini:"sources"`
	MetricsConf   `ini:"metrics"`
}

const (
	DefaultPrescreenURL         = "http://httpbin.org/ip"
	DefaultPrescreenTimeout     = 5
	DefaultPrescreenConcurrency = 100

	DefaultBenchmarkURL         = "http://ipv4.download.thinkbroadband.com/100MB.zip"
	DefaultBenchmarkTimeout     = 10
	DefaultBenchmarkConcurrency = 200
	DefaultByteBudget           = 10 * 1024 * 1024

	DefaultHistoryWindow = 10
	DefaultFailStreak    = 3

	DefaultMinScore        = 0.5
	DefaultMinResponseRate = 0.5
	DefaultMinCount        = 75
	DefaultTopN            = 150
)

// DefaultConfig returns a Config populated with the built-in defaults.
// LoadIni maps the ini file on top of it, so absent keys keep these values.
func DefaultConfig() *Config {
	return &Config{
		LogConf: LogConf{Level: "info"},
		PrescreenConf: PrescreenConf{
			URL:            DefaultPrescreenURL,
			TimeoutSeconds: DefaultPrescreenTimeout,
			Concurrency:    DefaultPrescreenConcurrency,
		},
		BenchmarkConf: BenchmarkConf{
			URL:            DefaultBenchmarkURL,
			TimeoutSeconds: DefaultBenchmarkTimeout,
			Concurrency:    DefaultBenchmarkConcurrency,
			ByteBudget:     DefaultByteBudget,
		},
		HistoryConf: HistoryConf{
			Path:       "proxy_history.csv",
			Window:     DefaultHistoryWindow,
			FailStreak: DefaultFailStreak,
		},
		SelectionConf: SelectionConf{
			MinScore:        DefaultMinScore,
			MinResponseRate: DefaultMinResponseRate,
			MinCount:        DefaultMinCount,
			TopN:            DefaultTopN,
		},
		FilesConf: FilesConf{
			InputDir:  ".",
			OutputDir: "Output",
			HTTP:      "http.txt",
			SOCKS4:    "socks4.txt",
			SOCKS5:    "socks5.txt",
			Results:   "proxy_benchmark_results.csv",
			Selected:  "MBProxies.txt",
			Top:       "TopProxies.txt",
			Rotation:  "RotationList.txt",
			Failed:    "FailedProxies.txt",
			Responded: "RespondedProxies.txt",
		},
		SourcesConf: SourcesConf{
			TimeoutSeconds: 5,
			SocksProxyNet:  true,
		},
	}
}

func (c PrescreenConf) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c BenchmarkConf) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c SourcesConf) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
