package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/requill/requill/internal/config"
	"github.com/requill/requill/internal/core/history"
	"github.com/requill/requill/internal/core/kv"
)

func historyCmd() {
	cfg := config.Load()

	fs := flag.NewFlagSet("history", flag.ExitOnError)
	searchFlag := fs.String("search", "", "Filter by substring match on URL or method")
	fuzzyFlag := fs.Bool("fuzzy", false, "Use fuzzy matching for --search")
	limitFlag := fs.Int("limit", 0, "Show at most N entries (0 = all)")
	jsonFlag := fs.Bool("json", false, "Output entries as JSON")
	restoreFlag := fs.String("restore", "", "Print the restored form draft for an entry id")
	clearFlag := fs.Bool("clear", false, "Clear all history (asks for confirmation)")
	yesFlag := fs.Bool("yes", false, "Skip the confirmation prompt for --clear")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: requill history [flags]\n\n")
		fmt.Fprintf(os.Stderr, "List, search, restore, or clear the request history.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  requill history\n")
		fmt.Fprintf(os.Stderr, "  requill history --search api.example.com\n")
		fmt.Fprintf(os.Stderr, "  requill history --search gpost --fuzzy\n")
		fmt.Fprintf(os.Stderr, "  requill history --restore 1756500000000-ab12cd34\n")
		fmt.Fprintf(os.Stderr, "  requill history --clear\n")
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
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

	store, err := history.NewStore(kvStore, cfg.HistoryMax)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading history: %v\n", err)
		os.Exit(2)
	}

	switch {
	case *clearFlag:
		clearHistory(store, *yesFlag)
	case *restoreFlag != "":
		restoreEntry(store, *restoreFlag)
	default:
		listHistory(store, *searchFlag, *fuzzyFlag, *limitFlag, *jsonFlag)
	}
}

func clearHistory(store *history.Store, skipPrompt bool) {
	if store.Len() == 0 {
		fmt.Println("History is already empty.")
		return
	}
	if !skipPrompt {
		fmt.Printf("Clear all %d history entries? This cannot be undone. [y/N] ", store.Len())
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}
	if err := store.Clear(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("History cleared.")
}

func restoreEntry(store *history.Store, id string) {
	entry, ok := store.Get(id)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: history entry %q not found\n", id)
		os.Exit(1)
	}
	form := history.Restore(entry)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(form); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func listHistory(store *history.Store, query string, fuzzy bool, limit int, asJSON bool) {
	var entries []history.Entry
	if fuzzy {
		entries = store.Fuzzy(query)
	} else {
		entries = store.Search(query)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(entries) == 0 {
		fmt.Println("No history entries.")
		return
	}
	for _, e := range entries {
		status := fmt.Sprintf("%d", e.Summary.StatusCode)
		mark := "✓"
		if !e.Summary.Success {
			mark = "✗"
		}
		when := humanize.Time(time.UnixMilli(e.Timestamp))
		fmt.Printf("%s %-28s %-7s %s  %s  %dms  %s\n",
			mark, e.ID, e.Request.Method, status, truncate(e.Request.URL, 60),
			e.Summary.DurationMs, when)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
