// Command fitset prepares fitness-annotated image corpora for detector and
// classifier training and scores trained detectors.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ironsheep/fitset/internal/config"
	"github.com/ironsheep/fitset/internal/logging"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	cfgFile    string
	noProgress bool

	v      = config.New()
	cfg    *config.Config
	logger = logging.Discard()
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fitset",
		Short: "Curate and evaluate fitness-annotated image datasets",
		Long: `fitset converts Pascal VOC annotations into detector labels and
classifier crops, splits corpora into train and validation sets per category,
and scores a detector's fit/unfit decisions against file-name ground truth.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/fitset/config.yaml or ./fitset.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "log format (console, json)")
	root.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bars")

	_ = v.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(
		convertCmd(),
		splitCmd(),
		cropCmd(),
		verifyCmd(),
		curateCmd(),
		evaluateCmd(),
		runsCmd(),
		previewCmd(),
		serveCmd(),
		versionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if err := config.ReadFile(v, cfgFile); err != nil {
		return err
	}

	loaded, err := config.Decode(v)
	if err != nil {
		return err
	}
	cfg = loaded

	// stdout carries results and the MCP stream, so logs go to stderr
	l, err := logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	logger = l

	if f := v.ConfigFileUsed(); f != "" {
		logger.Debug("loaded config", "file", f)
	}
	return nil
}

// progressWriter is where batch commands draw progress bars.
func progressWriter() io.Writer {
	if noProgress || cfg.Logging.Format == "json" {
		return nil
	}
	return os.Stderr
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fitset %s\n", Version)
			fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
		},
	}
}

// floatFlag returns the flag value when set on the command line, else def.
func floatFlag(cmd *cobra.Command, name string, def float64) float64 {
	if !cmd.Flags().Changed(name) {
		return def
	}
	f, _ := cmd.Flags().GetFloat64(name)
	return f
}

// intFlag returns the flag value when set on the command line, else def.
func intFlag(cmd *cobra.Command, name string, def int) int {
	if !cmd.Flags().Changed(name) {
		return def
	}
	i, _ := cmd.Flags().GetInt(name)
	return i
}

// int64Flag returns the flag value when set on the command line, else def.
func int64Flag(cmd *cobra.Command, name string, def int64) int64 {
	if !cmd.Flags().Changed(name) {
		return def
	}
	i, _ := cmd.Flags().GetInt64(name)
	return i
}

func requireFlags(cmd *cobra.Command, names ...string) {
	for _, n := range names {
		_ = cmd.MarkFlagRequired(n)
	}
}
