// Package main is the entry point for the prism proxy server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/prism-gw/prism/internal/config"
	"github.com/prism-gw/prism/internal/gateway"
	"github.com/prism-gw/prism/internal/monitoring"
)

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/prism/.env first
	configEnv := filepath.Join(homeDir, ".config", "prism", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

// resolveConfigPath resolves the config file location.
// Checks: user flag -> PRISM_CONFIG env -> filesystem locations.
func resolveConfigPath(userConfig string) (string, error) {
	if userConfig != "" {
		if _, err := os.Stat(userConfig); err != nil {
			return "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return userConfig, nil
	}

	if env := os.Getenv("PRISM_CONFIG"); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", fmt.Errorf("config file not found: %s (from PRISM_CONFIG)", env)
		}
		return env, nil
	}

	searchPaths := []string{}
	if homeDir, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(homeDir, ".config", "prism", "config.yaml"),
		)
	}
	searchPaths = append(searchPaths,
		"configs/config.yaml",
		"config.yaml",
	)

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found, specify -config path")
}

func main() {
	loadEnvFiles()

	configPath := flag.String("config", "", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.Monitoring.Logging
	if *debug {
		logCfg.Level = "debug"
	}
	monitoring.Global(logCfg)

	log.Info().
		Str("config", path).
		Int("port", cfg.Server.Port).
		Bool("compression", cfg.Compression.Enabled).
		Msg("prism starting")

	gw, err := gateway.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize gateway")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gw.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("gateway error")
	}

	log.Info().Msg("prism stopped")
}
