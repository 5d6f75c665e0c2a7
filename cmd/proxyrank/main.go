package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"proxyrank/internal/shared/config"
	"proxyrank/internal/shared/globalstate"
	"proxyrank/internal/shared/logger"
	"proxyrank/internal/shared/metrics"
	"proxyrank/internal/shared/types"
	manager "proxyrank/proxypool"
	"proxyrank/proxypool/scraper"
	"proxyrank/proxypool/storage"
	"proxyrank/proxypool/validator"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	fetch := flag.Bool("fetch", false, "Refresh the input lists from the built-in sources before evaluating")
	fetchOnly := flag.Bool("fetch-only", false, "Refresh the input lists and exit")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "proxyrank.ini")

	// 1. 加载 .ini 配置
	cfg := types.DefaultConfig()
	if err := config.LoadIni(cfg, iniPath); err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	// 1.1 初始化日志系统
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	l := logger.WithComponent("Main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Warn().Str("phase", globalstate.GlobalStatus.Get()).Msg("Interrupted, in-flight probes will be abandoned.")
	}()

	// 2. 组装流水线
	mc := metrics.New()
	v := validator.NewValidator(validator.OptionsFromConfig(cfg), validator.WithMetrics(mc))
	history := storage.NewHistoryStore(cfg.HistoryConf.Path, cfg.HistoryConf.Window)
	m := manager.NewManager(cfg, history, v, mc)

	if *fetch || *fetchOnly {
		err := m.Fetch(ctx, scraper.DefaultScrapers(cfg.SourcesConf))
		switch {
		case err != nil && *fetchOnly:
			logger.Fatal().Err(err).Msg("Failed to refresh input lists.")
		case err != nil:
			l.Warn().Err(err).Msg("Failed to refresh input lists, evaluating the existing ones.")
		}
		if *fetchOnly {
			return
		}
	}

	// 3. 运行
	res, err := m.Run(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msgf("Run failed after phase '%s'", globalstate.GlobalStatus.Get())
	}

	if err := mc.WriteTextfile(cfg.MetricsConf.Textfile); err != nil {
		l.Warn().Err(err).Str("path", cfg.MetricsConf.Textfile).Msg("Failed to write metrics textfile.")
	}

	switch {
	case res.Status == manager.StatusInterrupted:
		l.Warn().Str("run_id", res.RunID).Msg("Run interrupted, history and outputs left untouched.")
		os.Exit(130)
	case res.Status == manager.StatusNothingToDo:
		l.Warn().Msg("No input endpoints. Use -fetch or provide http.txt, socks4.txt and socks5.txt.")
		os.Exit(2)
	case res.OutputErr != nil:
		os.Exit(1)
	}

	l.Info().
		Str("run_id", res.RunID).
		Int("selected", len(res.Selection.Qualified)).
		Int("shortfall", res.Selection.Shortfall).
		Bool("history_saved", res.HistoryErr == nil).
		Msg("Done.")
}
