package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/requill/requill/internal/bridge"
	"github.com/requill/requill/internal/config"
	"github.com/requill/requill/internal/core/executor"
	"github.com/requill/requill/internal/core/history"
	"github.com/requill/requill/internal/core/kv"
	"github.com/requill/requill/internal/session"
)

func serveCmd() {
	cfg := config.Load()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addrFlag := fs.String("addr", cfg.BridgeAddr, "Listen address for the bridge server")
	historyFlag := fs.String("history", "", "Path to the history database (default: data dir)")
	corsFlag := fs.String("cors-origin", cfg.CORSOrigin, "Access-Control-Allow-Origin header value")
	debugFlag := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: requill serve [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Start the local bridge server the form UI talks to.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  requill serve\n")
		fmt.Fprintf(os.Stderr, "  requill serve --addr 127.0.0.1:9000\n")
		fmt.Fprintf(os.Stderr, "  requill serve --cors-origin http://localhost:5173\n")
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	logger := newLogger(*debugFlag)
	defer logger.Sync()

	if *historyFlag != "" {
		cfg.HistoryPath = *historyFlag
	}
	historyPath, err := cfg.ResolveHistoryPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving history path: %v\n", err)
		os.Exit(2)
	}

	kvStore, err := kv.Open(historyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history storage: %v\n", err)
		os.Exit(2)
	}
	defer kvStore.Close()

	histStore, err := history.NewStore(kvStore, cfg.HistoryMax)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading history: %v\n", err)
		os.Exit(2)
	}

	exec := executor.New()
	exec.SetTimeout(cfg.DefaultTimeout)
	sess := session.New(exec, histStore, logger, cfg.DefaultTimeout)

	srv := bridge.New(sess, logger,
		bridge.WithAddr(*addrFlag),
		bridge.WithCORSOrigin(*corsFlag),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
