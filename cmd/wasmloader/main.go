// Command wasmloader inspects wasm binaries, renders loader modules and runs
// the reference pipeline over files or through esbuild.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/wasm-loader/plugin"
)

var rootCmd = &cobra.Command{
	Use:   "wasmloader",
	Short: "Build-time wasm asset pipeline",
	Long: `wasmloader turns references to .wasm files into ES modules that load,
compile and instantiate them, inlining small payloads and emitting the rest
as hashed artifacts.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupGlobals,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(loaderCmd)
	rootCmd.AddCommand(genCmd)
	rootCmd.AddCommand(buildCmd)

	rootCmd.PersistentFlags().String("config", "", "project file (default: nearest wasmloader.{yaml,yml,toml,json})")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupGlobals configures logging and color before any subcommand runs.
func setupGlobals(cmd *cobra.Command, _ []string) error {
	levelFlag, err := cmd.Root().PersistentFlags().GetString("log-level")
	if err != nil {
		return fmt.Errorf("failed to get log-level flag: %w", err)
	}
	logger, err := newLogger(levelFlag)
	if err != nil {
		return err
	}
	plugin.SetLogger(logger)

	colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	switch colorFlag {
	case "auto", "on", "off":
	default:
		return fmt.Errorf("unknown color mode: %s", colorFlag)
	}
	useColor = colorFlag == "on" || (colorFlag == "auto" && isTerminal(os.Stdout))
	color.NoColor = !useColor
	return nil
}

func newLogger(levelFlag string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(levelFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelFlag, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg.Build()
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
