// Command cloudsqlconn-demo runs a Dialer against a handful of configured
// instances and exposes a small HTTP surface for poking at its state:
// /healthz, /debug/instances, and /metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

type cliFlags struct {
	instances     string
	credFile      string
	adminEndpoint string
	httpAddr      string
	logLevel      string
	showVersion   bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags.logLevel)
	defer func() { _ = logger.Sync() }()

	app := initApplication(flags, logger)
	runDemo(app, flags.httpAddr, logger)
}

func parseFlags() cliFlags {
	instances := flag.String("instances", getEnvOrDefault("CLOUDSQLCONN_DEMO_INSTANCES", ""),
		"Comma-separated list of project:region:instance connection names to watch")
	credFile := flag.String("credentials-file", getEnvOrDefault("CLOUDSQLCONN_DEMO_CREDENTIALS_FILE", ""),
		"Path to a service account JSON key file")
	adminEndpoint := flag.String("admin-endpoint", getEnvOrDefault("CLOUDSQLCONN_DEMO_ADMIN_ENDPOINT", ""),
		"Override the Cloud SQL Admin API endpoint")
	httpAddr := flag.String("http-addr", getEnvOrDefault("CLOUDSQLCONN_DEMO_HTTP_ADDR", ":8090"),
		"Address the debug/metrics HTTP server listens on")
	logLevel := flag.String("log-level", getEnvOrDefault("CLOUDSQLCONN_DEMO_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		instances:     *instances,
		credFile:      *credFile,
		adminEndpoint: *adminEndpoint,
		httpAddr:      *httpAddr,
		logLevel:      *logLevel,
		showVersion:   *showVersion,
	}
}

func printVersion() {
	fmt.Printf("cloudsqlconn-demo version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

func initLogger(level string) *zap.Logger {
	var cfg zap.Config
	switch strings.ToLower(level) {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitInstances(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runDemo(app *application, httpAddr string, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.warmInstances(ctx, logger)

	server := createDebugServer(app, httpAddr, logger)
	go runDebugServer(server, logger)

	waitForShutdown(app, server, logger)
}

func waitForShutdown(app *application, server *debugServer, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop debug server gracefully", zap.Error(err))
	}

	app.dialer.Close()
}
