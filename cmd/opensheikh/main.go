// Command opensheikh reconciles a conversation server's event feed into a
// local message store: replaying recordings, following them as they grow,
// or chatting against a live server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sheikhcoders/opensheikh/config"
	"github.com/sheikhcoders/opensheikh/logging"
)

var (
	configPath string
	verbosity  int
	logToFile  bool
)

var rootCmd = &cobra.Command{
	Use:   "opensheikh",
	Short: "Conversation event reconciler",
	Long: `opensheikh merges the streamed events of a coding-agent conversation
into a single ordered message store and derives human-readable status
from partial tool execution.

Environment:
  OPENSHEIKH_SERVER   Server base URL (overrides server.url)
  OPENSHEIKH_MODEL    Selected model (overrides model)`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config.yaml")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-file", false, "Also write logs to a timestamped file under ~/.opensheikh/logs")

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

// newLogger builds the logger from -v, falling back to the configured
// level. Returns a cleanup function closing any log file.
func newLogger(cfg *config.Config) (*slog.Logger, func()) {
	level := logging.VerbosityLevel(verbosity)
	if verbosity == 0 {
		if l, err := logging.ParseLevel(cfg.LogLevel); err == nil {
			level = l
		}
	}
	if !logToFile {
		return logging.New(os.Stderr, level), func() {}
	}
	logger, path, cleanup := logging.NewFile(filepath.Join(filepath.Dir(configPath), "logs"), level)
	if path != "" {
		logger.Debug("logging to file", "path", path)
	}
	return logger, cleanup
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
