package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pdavault/config"
	"pdavault/logs"
)

func loadConfig(path, listen, dataPath, level string, inMemory bool) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// 命令行参数覆盖配置文件
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if dataPath != "" {
		cfg.Database.Path = dataPath
	}
	if level != "" {
		cfg.Log.Level = level
	}
	if inMemory {
		cfg.Database.InMemory = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	listen := flag.String("listen", "", "listen address, e.g. :6000")
	dataPath := flag.String("data", "", "badger data directory")
	level := flag.String("log-level", "", "trace|debug|verbose|info|warn|error")
	inMemory := flag.Bool("in-memory", false, "keep all state in memory")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *listen, *dataPath, *level, *inMemory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logs.SetLevel(logs.ParseLevel(cfg.Log.Level))

	node, err := initializeNode(cfg)
	if err != nil {
		logs.Error("Failed to initialize node: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	node.Cancel = cancel

	errCh := make(chan error, 1)
	go func() {
		errCh <- node.serve(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		logs.Info("Received %s, shutting down...", sig)
	case err := <-errCh:
		if err != nil {
			logs.Error("Server stopped: %v", err)
			exitCode = 1
		}
	}
	node.shutdown()
	os.Exit(exitCode)
}
