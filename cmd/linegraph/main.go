// Command linegraph hands a small date/value table to the line_graph function
// of an embedded Python module and prints what it returned.
package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/richinsley/tablebridge"
)

//go:embed hello.py
var helloSource string

type options struct {
	configPath  string
	logLevel    string
	python      string
	tableFormat string
	pipInstall  []string
	strictExit  bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, defaultSession))
}

// sessionOpener returns the session the tool invokes through.
type sessionOpener func(factory tablebridge.InterpreterFactory) (*tablebridge.Session, error)

// defaultSession configures and returns the process-wide session.
func defaultSession(factory tablebridge.InterpreterFactory) (*tablebridge.Session, error) {
	if err := tablebridge.SetDefaultFactory(factory); err != nil {
		return nil, err
	}
	return tablebridge.DefaultSession(), nil
}

// run executes the tool and returns the exit code. Only the result line is
// written to stdout.
func run(args []string, stdout io.Writer, openSession sessionOpener) int {
	var opts options
	flags := pflag.NewFlagSet("linegraph", pflag.ContinueOnError)
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.python, "python", "", "python interpreter to use instead of discovery")
	flags.StringVar(&opts.tableFormat, "table-format", "", "table type built in python: polars, pandas or dict")
	flags.StringSliceVar(&opts.pipInstall, "pip-install", nil, "packages to install into the package path before running")
	flags.BoolVar(&opts.strictExit, "strict-exit", false, "exit 1 when the call fails")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "linegraph: %v\n", err)
		return 2
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "linegraph: %v\n", err)
		return 2
	}
	defer logger.Sync()
	tablebridge.SetLogger(logger)

	if len(opts.pipInstall) > 0 {
		if err := installPackages(cfg, opts.pipInstall); err != nil {
			logger.Error("installing packages failed", zap.Error(err))
			return 1
		}
	}

	session, err := openSession(tablebridge.SystemInterpreter(cfg))
	if err != nil {
		logger.Error("configuring interpreter", zap.Error(err))
		return 1
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Debug("closing session", zap.Error(err))
		}
	}()

	result := invoke(cfg, session)
	fmt.Fprintln(stdout, result)

	if opts.strictExit && !result.OK() {
		return 1
	}
	return 0
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(opts options) (*tablebridge.Config, error) {
	cfg := tablebridge.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := tablebridge.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.python != "" {
		cfg.Python = opts.python
	}
	if opts.tableFormat != "" {
		cfg.TableFormat = tablebridge.TableFormat(strings.ToLower(opts.tableFormat))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes console-encoded logs to stderr so stdout carries only
// the result.
func newLogger(cfg *tablebridge.Config) (*zap.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	zcfg.DisableStacktrace = level > zapcore.DebugLevel
	return zcfg.Build()
}

func installPackages(cfg *tablebridge.Config, packages []string) error {
	env, err := tablebridge.DiscoverEnvironment(cfg)
	if err != nil {
		return err
	}
	pipVersion, err := env.PipVersion()
	if err != nil {
		return fmt.Errorf("pip is not available to %s: %w", env.PythonPath, err)
	}
	tablebridge.Logger().Debug("using pip", zap.String("version", pipVersion.String()))
	return env.PipInstallPackages(packages, tablebridge.VenvPackagesDir(), false, func(message string, current, total int64) {
		tablebridge.Logger().Debug(message, zap.Int64("line", current))
	})
}

func invoke(cfg *tablebridge.Config, session *tablebridge.Session) tablebridge.Result {
	table, err := tablebridge.NewTable(
		tablebridge.Strings("Date", "2024-10-01", "2024-10-02", "2024-10-03"),
		tablebridge.Int64s("Value", 1, 2, 4),
	)
	if err != nil {
		return tablebridge.Result{Err: err}
	}

	ctx := context.Background()
	if cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()
	}

	module := tablebridge.NewModuleFromString(tablebridge.DefaultModuleName, tablebridge.DefaultModuleFile, helloSource)
	return tablebridge.NewBridge(session, module).Invoke(ctx, table, "Date", "Value")
}
