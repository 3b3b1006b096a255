package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cwbudde/clsession/internal/cl"
	"github.com/cwbudde/clsession/internal/cl/opencl"
	_ "github.com/cwbudde/clsession/internal/cl/sim"
	"github.com/cwbudde/clsession/internal/config"
	"github.com/cwbudde/clsession/internal/session"
)

var (
	configPath  string
	runtimeName string
	logLevel    string
	logFormat   string
	cfg         = config.Default()
	logger      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "clsession",
	Short: "Select OpenCL devices, build kernels and dispatch them",
	Long: `clsession enumerates OpenCL platforms and devices, selects one that
supports the required extensions, and runs kernels on it through a single
compute session. The "sim" runtime provides a simulated device for machines
without OpenCL.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}
		flags := cmd.Flags()
		if flags.Changed("runtime") {
			cfg.Runtime = runtimeName
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger = newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&runtimeName, "runtime", "", "Runtime as <name>[:<config>], e.g. sim:topology.yaml (default $"+cl.EnvRuntime+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "Log format (json, text, auto)")
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	format = strings.ToLower(format)
	if format == "auto" {
		format = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// openRuntime resolves the configured runtime. Without an explicit choice the
// OpenCL runtime is preferred and the simulator is used when OpenCL support
// was not compiled in.
func openRuntime() (cl.Runtime, error) {
	if cfg.Runtime != "" {
		return cl.Open(cfg.Runtime)
	}
	if os.Getenv(cl.EnvRuntime) != "" {
		return cl.OpenDefault()
	}
	rt, err := cl.Open(opencl.Name)
	if errors.Is(err, opencl.ErrNotBuilt) {
		slog.Info("OpenCL support not built, using simulated runtime")
		return cl.Open("sim")
	}
	return rt, err
}

// openSession opens the runtime and a session configured from cfg plus the
// extensions required on the command line.
func openSession(require []string, extra ...session.Option) (*session.Session, error) {
	rt, err := openRuntime()
	if err != nil {
		return nil, err
	}
	c := cfg
	c.RequiredExtensions = append(append([]string(nil), cfg.RequiredExtensions...), require...)
	opts, err := c.SessionOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, session.WithLogger(logger))
	s, err := session.New(rt, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	return s, nil
}
