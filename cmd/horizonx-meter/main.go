package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"horizonx-meter/internal/app"
	"horizonx-meter/internal/auth"
	"horizonx-meter/internal/config"
	"horizonx-meter/internal/logger"
)

func main() {
	flags := pflag.NewFlagSet("horizonx-meter", pflag.ExitOnError)
	configFile := flags.StringP("config", "c", "", "YAML config file (overrides CONFIG_FILE)")
	mode := flags.StringP("mode", "m", "", "run mode: serve, stream or snapshot")
	addr := flags.String("addr", "", "http listen address")
	interval := flags.DurationP("interval", "i", 0, "scrape interval")
	meters := flags.StringSlice("meters", nil, "meters to enable")
	hostRoot := flags.String("host-root", "", "root the /proc and /sys paths are resolved under")
	dbPath := flags.String("db", "", "sqlite history database, empty disables history")
	logLevel := flags.String("log-level", "", "debug, info, warn or error")
	logFormat := flags.String("log-format", "", "text or json")
	issueToken := flags.String("issue-token", "", "print a token for this subject and exit")
	tokenTTL := flags.Duration("token-ttl", 24*time.Hour, "lifetime of tokens from --issue-token")
	flags.Parse(os.Args[1:])

	if *configFile != "" {
		os.Setenv("CONFIG_FILE", *configFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	if flags.Changed("mode") {
		cfg.Mode = *mode
	}
	if flags.Changed("addr") {
		cfg.Address = *addr
	}
	if flags.Changed("interval") {
		cfg.Interval = *interval
	}
	if flags.Changed("meters") {
		cfg.Meters = *meters
	}
	if flags.Changed("host-root") {
		cfg.HostRoot = *hostRoot
	}
	if flags.Changed("db") {
		cfg.DBPath = *dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = *logFormat
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	if *issueToken != "" {
		if cfg.JWTSecret == "" {
			log.Fatal("FATAL: JWT_SECRET is required to issue tokens")
		}
		token, err := auth.IssueToken(cfg.JWTSecret, *issueToken, *tokenTTL)
		if err != nil {
			log.Fatalf("FATAL: %v", err)
		}
		fmt.Println(token)
		return
	}

	appLog := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, appLog)
	if err != nil {
		appLog.Error("failed to create meters", "error", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("horizonx meter failed", "error", err)
		os.Exit(1)
	}

	appLog.Info("horizonx meter stopped gracefully.")
}
