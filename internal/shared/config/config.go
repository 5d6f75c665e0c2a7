package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/ini.v1"
	"proxyrank/internal/shared/types"
)

// LoadIni 将 proxyrank.ini 映射到 cfg 上。cfg 中已有的值 (通常来自 types.DefaultConfig)
// 在 ini 缺少对应键时保持不变。文件不存在时直接使用默认值。
func LoadIni(cfg *types.Config, fileName string) error {
	if _, err := os.Stat(fileName); err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return Validate(cfg)
		}
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	applyEnvOverrides(cfg)
	return Validate(cfg)
}

// Validate rejects values the pipeline cannot run with.
func Validate(cfg *types.Config) error {
	switch {
	case cfg.PrescreenConf.Concurrency <= 0:
		return fmt.Errorf("prescreen.concurrency must be positive, got %d", cfg.PrescreenConf.Concurrency)
	case cfg.BenchmarkConf.Concurrency <= 0:
		return fmt.Errorf("benchmark.concurrency must be positive, got %d", cfg.BenchmarkConf.Concurrency)
	case cfg.PrescreenConf.TimeoutSeconds <= 0 || cfg.BenchmarkConf.TimeoutSeconds <= 0:
		return fmt.Errorf("stage timeouts must be positive")
	case cfg.BenchmarkConf.ByteBudget <= 0:
		return fmt.Errorf("benchmark.byte_budget must be positive, got %d", cfg.BenchmarkConf.ByteBudget)
	case cfg.HistoryConf.Window <= 0:
		return fmt.Errorf("history.window must be positive, got %d", cfg.HistoryConf.Window)
	case cfg.SelectionConf.MinResponseRate < 0 || cfg.SelectionConf.MinResponseRate > 1:
		return fmt.Errorf("selection.min_response_rate must be within [0,1], got %v", cfg.SelectionConf.MinResponseRate)
	}
	return nil
}

func applyEnvOverrides(cfg *types.Config) {
	overrideFromEnvInt(&cfg.PrescreenConf.Concurrency, "PRESCREEN_CONCURRENCY")
	overrideFromEnvInt(&cfg.BenchmarkConf.Concurrency, "BENCHMARK_CONCURRENCY")
	if level := os.Getenv("PROXYRANK_LOG_LEVEL"); level != "" {
		cfg.LogConf.Level = level
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
