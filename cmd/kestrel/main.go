// Kestrel - Fuzzy student performance classification.
// Copyright (c) 2025 edumetrics
// Licensed under the Apache License 2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "kestrel",
	Short: "Fuzzy student performance classification",
	Long: "Kestrel classifies students into five performance categories from GPA,\n" +
		"core course average, attendance and exam scores using a Tsukamoto fuzzy rule base.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides KESTREL_DB_PATH)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kestrel %s (commit %s, built %s)\n", Version, Commit, BuildDate)
	},
}

// loadConfig resolves the tier and environment, then applies the --db flag.
func loadConfig(cmd *cobra.Command) (*domain.Config, error) {
	cfg, err := domain.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.Repository.Driver = "sqlite"
		cfg.Repository.SQLitePath = p
	}
	return cfg, nil
}

// setupLogger installs the default slog logger from the logging config.
func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
