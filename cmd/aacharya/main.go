package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/loqalabs/aacharya/internal/config"
)

var version = "0.1.0-dev"

const defaultConfigPath = "aacharya.yaml"

const usage = `usage: aacharya <command> [flags]

commands:
  chat                 start a conversation (default)
  language [code]      list languages or select one
  worker <action>      health-worker panel: login, logout, broadcast, clear, inventory, update
  version              print version
`

func main() {
	// a missing .env is normal
	_ = godotenv.Load()

	args := os.Args[1:]
	command := "chat"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	var err error
	switch command {
	case "chat":
		err = runChat(args)
	case "language":
		err = runLanguage(args)
	case "worker":
		err = runWorker(args)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}
	if err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, exit.msg)
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type exitError struct {
	code int
	msg  string
}

func (e exitError) Error() string { return e.msg }

// commonFlags registers -config on fs.
func commonFlags(fs *flag.FlagSet) *string {
	return fs.String("config", defaultConfigPath, "Path to configuration file")
}

// loadConfig falls back to defaults plus environment when the default config
// file does not exist.
func loadConfig(path string) (config.Config, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return config.Load(path)
}

// newLogger writes JSON logs to the configured file, or stderr, since stdout
// belongs to the conversation.
func newLogger(cfg config.TelemetryConfig) (*slog.Logger, func(), error) {
	var (
		out     io.Writer = os.Stderr
		closeFn           = func() {}
	)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	return logger, closeFn, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
