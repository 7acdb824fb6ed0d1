package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "", "Server URL, overrides the config file")
	pushPath := flag.String("push", "", "Push notification path, overrides the config file")
	dbPath := flag.String("db", "gophsync-client.db", "Path to local database")
	backend := flag.String("backend", backendBolt, "Storage backend: bolt or sqlite")
	configPath := flag.String("config", "collections.yaml", "Path to collections file")
	logFile := flag.String("log-file", "", "Write logs to a rotated file instead of stderr")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address")
	token := flag.String("token", os.Getenv("GOPHSYNC_TOKEN"), "Bearer token for the server")

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	command := "run"
	if args := flag.Args(); len(args) > 0 {
		command = args[0]
	}

	logger, closeLog, err := newLogger(*logFile, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, options{
		configPath:  *configPath,
		dbPath:      *dbPath,
		backend:     *backend,
		serverURL:   *serverURL,
		pushPath:    *pushPath,
		token:       *token,
		metricsAddr: *metricsAddr,
		registerer:  prometheus.DefaultRegisterer,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	// Выполняем команду
	switch command {
	case "run":
		err = a.run(ctx)
	case "sync":
		err = a.syncOnce(ctx, os.Stdout)
	case "status":
		err = a.printStatus(ctx, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		a.close()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		a.close()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: gophsync-client [flags] [run|sync|status]\n")
	flag.PrintDefaults()
}

func printVersion() {
	fmt.Printf("GophSync Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
