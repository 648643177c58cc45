package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/requill/requill/pkg/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			serveCmd()
			return
		case "send":
			sendCmd()
			return
		case "history":
			historyCmd()
			return
		case "version":
			fmt.Printf("requill %s (%s) built %s\n", version.Version, version.Commit, version.Date)
			return
		case "help":
			printHelp()
			return
		}
	}
	printHelp()
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `requill - compose, execute, and replay HTTP requests without a CORS gate

Usage:
  requill <command> [args] [flags]

Commands:
  serve     Start the local bridge server for the form UI
  send      Execute a single request from the command line
  history   List, search, restore, or clear request history
  version   Print version information
  help      Show this help message

Run 'requill <command> --help' for more information about a command.
`)
}

// newLogger builds the process logger. Console encoding: the output is
// for a terminal, not a collector.
func newLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
