// mintflow is the workflow automation CLI.
//
// Usage:
//
//	mintflow validate <definition file>       # structural validation only
//	mintflow run <definition file>            # execute with a manual trigger
//	mintflow run <file> --config mintflow.yaml --var batch=b-7 --var dry=true
//	mintflow version                          # show version information
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/labelmint/mintflow/config"
	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/executors"
	"github.com/labelmint/mintflow/integrations"
	"github.com/labelmint/mintflow/internal/metrics"
	"github.com/labelmint/mintflow/internal/telemetry"
	"github.com/labelmint/mintflow/persistence"
	"github.com/labelmint/mintflow/workflow"

	"github.com/prometheus/client_golang/prometheus"
)

// Version information, injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		runValidate(os.Args[2:])
	case "run":
		runExecute(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// ----------------------------------------------------------------------------
// validate
// ----------------------------------------------------------------------------

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mintflow validate <definition file>")
		os.Exit(2)
	}

	def, err := workflow.LoadFromFile(fs.Arg(0))
	if err != nil {
		// The structural error already lists every violation found.
		fmt.Fprintf(os.Stderr, "invalid definition:\n%v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s v%d: %d nodes, %d edges, %d variables — OK\n",
		def.Name, def.Version, len(def.Nodes), len(def.Edges), len(def.Variables))
}

// ----------------------------------------------------------------------------
// run
// ----------------------------------------------------------------------------

// varsFlag collects repeated --var key=value flags.
type varsFlag map[string]any

func (v varsFlag) String() string { return fmt.Sprintf("%v", map[string]any(v)) }

func (v varsFlag) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", raw)
	}
	// Values that parse as JSON keep their type; anything else is a string.
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err == nil {
		v[key] = parsed
	} else {
		v[key] = value
	}
	return nil
}

func runExecute(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	vars := varsFlag{}
	fs.Var(vars, "var", "Seed a run variable as key=value (repeatable)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mintflow run <definition file> [--config path] [--var key=value]...")
		os.Exit(2)
	}

	cfg, err := config.NewLoader().
		WithConfigPath(*configPath).
		WithValidator(func(c *config.Config) error { return c.Validate() }).
		Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting mintflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	def, err := workflow.LoadFromFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid definition:\n%v\n", err)
		os.Exit(1)
	}
	applyEngineDefaults(def, cfg.Engine)

	store, err := persistence.NewStore(cfg.Storage.StoreOptions(), logger)
	if err != nil {
		logger.Fatal("failed to open execution store", zap.Error(err))
	}
	defer store.Close()

	eng := buildEngine(cfg, store, logger)

	// Ctrl-C cancels the execution; the engine unwinds suspended nodes.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec, runErr := eng.Run(ctx, def, engine.WithVariables(vars))

	out, _ := json.MarshalIndent(exec, "", "  ")
	fmt.Println(string(out))

	if runErr != nil {
		logger.Error("execution did not complete", zap.Error(runErr))
		os.Exit(1)
	}
}

// buildEngine wires the registry, collaborators and engine options from
// the configuration.
func buildEngine(cfg *config.Config, store persistence.Store, logger *zap.Logger) *engine.Engine {
	caller := integrations.NewCaller(cfg.HTTP.CallerConfig(), logger)
	notifier := integrations.NewWebhookNotifier(cfg.Notify.Webhooks, caller, logger)

	deps := executors.Deps{
		HTTP:     caller,
		Notifier: notifier,
		Logger:   logger,
	}
	// A relational store doubles as the database-node collaborator.
	if gs, ok := store.(*persistence.GormStore); ok {
		if sqlDB, err := gs.SQLDB(); err == nil {
			deps.DB = integrations.NewSQLDatabase(sqlDB, logger)
		}
	}

	registry := engine.NewRegistry()
	executors.RegisterBuiltins(registry, deps)

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithRecorder(store),
		engine.WithMetrics(metrics.NewCollector("mintflow", prometheus.DefaultRegisterer)),
		engine.WithMaxParallel(cfg.Engine.MaxParallel),
	}
	if len(cfg.Notify.Webhooks) > 0 {
		opts = append(opts, engine.WithAlerter(integrations.NewFailureAlerter(notifier, "ops")))
	}
	return engine.New(registry, opts...)
}

// applyEngineDefaults fills settings the definition left unset.
func applyEngineDefaults(def *workflow.WorkflowDefinition, eng config.EngineConfig) {
	if def.Settings.Timeout == 0 && eng.DefaultTimeout > 0 {
		def.Settings.Timeout = workflow.Duration(eng.DefaultTimeout)
	}
	if def.Settings.Retry.MaxAttempts == 0 {
		def.Settings.Retry = eng.RetryPolicy()
	}
	if def.Settings.ErrorHandling.Strategy == "" {
		def.Settings.ErrorHandling.Strategy = workflow.StrategyStop
	}
}

// ----------------------------------------------------------------------------
// version and help
// ----------------------------------------------------------------------------

func printVersion() {
	fmt.Printf("mintflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`mintflow - workflow automation engine

Usage:
  mintflow <command> [options]

Commands:
  validate  Validate a workflow definition file
  run       Execute a workflow definition
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>    Path to configuration file (YAML)
  --var key=value    Seed a run variable (repeatable; JSON values keep their type)

Examples:
  mintflow validate pipelines/labeling.yaml
  mintflow run pipelines/labeling.yaml --var project_id=p1
  mintflow run pipelines/labeling.yaml --config /etc/mintflow/config.yaml
  mintflow version`)
}

// initLogger builds the process logger from the log section.
func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	var zapOpts []zap.Option
	if cfg.EnableCaller {
		zapOpts = append(zapOpts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		zapOpts = append(zapOpts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(zapOpts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
