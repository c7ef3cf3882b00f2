// Package main provides the entry point for the trading policy decision point
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/authz-engine/trading-pdp/internal/api/rest"
	"github.com/authz-engine/trading-pdp/internal/audit"
	"github.com/authz-engine/trading-pdp/internal/engine"
	"github.com/authz-engine/trading-pdp/internal/metrics"
	"github.com/authz-engine/trading-pdp/internal/policy"
	"github.com/authz-engine/trading-pdp/internal/server"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// options holds the command-line configuration for run
type options struct {
	grpcPort        int
	httpPort        int
	policyFile      string
	workers         int
	maxBatch        int
	logLevel        string
	logFormat       string
	auditOutput     string
	auditFile       string
	auditMaxSize    int
	auditMaxBackups int
	auditMaxAge     int
	syslogAddr      string
	enableReflect   bool
	enableCORS      bool
	gracefulTimeout time.Duration
}

func main() {
	var opts options
	flag.IntVar(&opts.grpcPort, "grpc-port", 50051, "gRPC server port (0 disables gRPC)")
	flag.IntVar(&opts.httpPort, "http-port", 8080, "HTTP server port")
	flag.StringVar(&opts.policyFile, "policy-file", "", "YAML or JSON policy document (built-in defaults when empty)")
	flag.IntVar(&opts.workers, "workers", 16, "Number of parallel batch workers")
	flag.IntVar(&opts.maxBatch, "max-batch", 100, "Maximum requests per batch call")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.logFormat, "log-format", "json", "Log format (json, console)")
	flag.StringVar(&opts.auditOutput, "audit-output", "stdout", "Audit output (stdout, file, syslog, none)")
	flag.StringVar(&opts.auditFile, "audit-file", "/var/log/pdp/audit.log", "Audit file path for -audit-output=file")
	flag.IntVar(&opts.auditMaxSize, "audit-max-size-mb", 100, "Audit file size before rotation")
	flag.IntVar(&opts.auditMaxBackups, "audit-max-backups", 10, "Rotated audit files to keep")
	flag.IntVar(&opts.auditMaxAge, "audit-max-age-days", 30, "Days to keep rotated audit files")
	flag.StringVar(&opts.syslogAddr, "audit-syslog-addr", "", "Syslog address for -audit-output=syslog")
	flag.BoolVar(&opts.enableReflect, "reflection", false, "Enable gRPC reflection")
	flag.BoolVar(&opts.enableCORS, "cors", false, "Enable CORS on the HTTP API")
	flag.DurationVar(&opts.gracefulTimeout, "shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pdp-server %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := run(opts, sigChan); err != nil {
		fmt.Fprintf(os.Stderr, "pdp-server: %v\n", err)
		os.Exit(1)
	}
}

// run serves until a signal arrives on stop or a server fails. Deferred
// cleanup (audit flush, logger sync) always runs before it returns.
func run(opts options, stop <-chan os.Signal) (err error) {
	logger, err := initLogger(opts.logLevel, opts.logFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting policy decision point",
		zap.String("version", Version),
		zap.Int("grpc_port", opts.grpcPort),
		zap.Int("http_port", opts.httpPort),
	)

	cfg, source, err := loadPolicy(opts.policyFile, logger)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	m := metrics.NewPrometheusMetrics("pdp")

	auditCfg := auditConfig(opts.auditOutput, opts.auditFile, opts.syslogAddr, opts.auditMaxSize, opts.auditMaxBackups, opts.auditMaxAge)
	auditLogger, err := audit.NewLogger(&auditCfg, audit.WithMetrics(m), audit.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create audit logger: %w", err)
	}
	defer func() {
		if closeErr := auditLogger.Close(); closeErr != nil {
			logger.Error("Failed to close audit logger", zap.Error(closeErr))
			if err == nil {
				err = fmt.Errorf("failed to close audit logger: %w", closeErr)
			}
		}
	}()
	auditLogger.LogConfigChange(context.Background(), &audit.ConfigChange{
		Source:      source,
		Fingerprint: cfg.Fingerprint(),
	})

	eng := engine.New(cfg,
		engine.WithMetrics(m),
		engine.WithLogger(logger),
		engine.WithParallelWorkers(opts.workers),
	)

	logger.Info("Decision engine initialized",
		zap.String("policy_source", source),
		zap.String("fingerprint", cfg.Fingerprint()),
		zap.Strings("checks", engine.CheckNames()),
		zap.Int("workers", opts.workers),
	)

	restCfg := rest.DefaultConfig()
	restCfg.Port = opts.httpPort
	restCfg.EnableCORS = opts.enableCORS
	restCfg.MaxBatchSize = opts.maxBatch
	restCfg.Version = Version

	restSrv, err := rest.New(restCfg, eng, auditLogger, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create REST server: %w", err)
	}

	var grpcSrv *server.Server
	if opts.grpcPort > 0 {
		srvConfig := server.DefaultConfig()
		srvConfig.Port = opts.grpcPort
		srvConfig.EnableReflection = opts.enableReflect
		srvConfig.MaxBatchSize = opts.maxBatch

		grpcSrv, err = server.New(srvConfig, eng, auditLogger, m, logger)
		if err != nil {
			return fmt.Errorf("failed to create gRPC server: %w", err)
		}
	}

	errChan := make(chan error, 2)

	if grpcSrv != nil {
		go func() {
			errChan <- grpcSrv.Start()
		}()
	}

	go func() {
		errChan <- restSrv.Start()
	}()

	var serveErr error
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
			serveErr = fmt.Errorf("server error: %w", err)
		}
	case sig := <-stop:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.gracefulTimeout)
	defer cancel()

	if err := restSrv.Shutdown(ctx); err != nil {
		logger.Error("REST server shutdown failed", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.Stop()
	}

	if serveErr != nil {
		return serveErr
	}
	logger.Info("Server stopped successfully")
	return nil
}

// initLogger initializes the zap logger
func initLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	var config zap.Config
	switch format {
	case "console":
		config = zap.NewDevelopmentConfig()
	case "json":
		config = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	return config.Build()
}

// loadPolicy reads the policy file, or returns the built-in configuration
// when path is empty. The second result names where the policy came from.
func loadPolicy(path string, logger *zap.Logger) (*policy.Config, string, error) {
	if path == "" {
		logger.Warn("No policy file given, using built-in policy")
		return policy.DefaultConfig(), "builtin", nil
	}

	cfg, err := policy.NewLoader(logger).LoadFromFile(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// auditConfig maps the audit flags onto an audit.Config
func auditConfig(output, file, syslogAddr string, maxSizeMB, maxBackups, maxAgeDays int) audit.Config {
	cfg := audit.DefaultConfig()
	if output == "none" {
		cfg.Enabled = false
		return cfg
	}

	cfg.Type = output
	cfg.FilePath = file
	cfg.FileMaxSize = maxSizeMB
	cfg.FileMaxBackups = maxBackups
	cfg.FileMaxAge = maxAgeDays
	cfg.SyslogAddr = syslogAddr
	return cfg
}
