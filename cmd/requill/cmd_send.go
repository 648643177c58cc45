package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/requill/requill/internal/config"
	"github.com/requill/requill/internal/core/executor"
	"github.com/requill/requill/internal/core/history"
	"github.com/requill/requill/internal/core/kv"
	"github.com/requill/requill/internal/core/request"
	"github.com/requill/requill/internal/errdef"
	"github.com/requill/requill/internal/export"
	"github.com/requill/requill/internal/session"
)

// repeatedFlag collects a repeatable string flag.
type repeatedFlag []string

func (r *repeatedFlag) String() string { return strings.Join(*r, ", ") }

func (r *repeatedFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}

func sendCmd() {
	cfg := config.Load()

	fs := flag.NewFlagSet("send", flag.ExitOnError)
	methodFlag := fs.String("method", "GET", "HTTP method")
	var headerFlags, queryFlags, formFlags repeatedFlag
	fs.Var(&headerFlags, "header", "Request header as 'Name: value' (repeatable)")
	fs.Var(&queryFlags, "query", "Query parameter as key=value (repeatable)")
	fs.Var(&formFlags, "form", "Form-mode body field as key=value (repeatable)")
	dataFlag := fs.String("data", "", "Raw JSON request body")
	timeoutFlag := fs.Duration("timeout", cfg.DefaultTimeout, "Request timeout")
	outputFlag := fs.String("output", "text", "Output format: text, json")
	exportFlag := fs.String("export", "full", "Export shape: full, body")
	curlFlag := fs.Bool("curl", false, "Print the equivalent curl command and exit")
	noHistoryFlag := fs.Bool("no-history", false, "Do not record the request in history")
	noColorFlag := fs.Bool("no-color", false, "Disable syntax highlighting")
	debugFlag := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: requill send <url> [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Execute a single HTTP request and print the response.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  requill send https://api.example.com/items --query q=test\n")
		fmt.Fprintf(os.Stderr, "  requill send https://api.example.com/users --method POST --data '{\"name\":\"test\"}'\n")
		fmt.Fprintf(os.Stderr, "  requill send https://api.example.com/users --method POST --form name=test --form age=42\n")
		fmt.Fprintf(os.Stderr, "  requill send https://api.example.com/items --header 'Accept: application/json' --curl\n")
		fmt.Fprintf(os.Stderr, "\nExit codes:\n")
		fmt.Fprintf(os.Stderr, "  0  Request completed (any HTTP status)\n")
		fmt.Fprintf(os.Stderr, "  1  Validation or transport failure\n")
		fmt.Fprintf(os.Stderr, "  2  Usage error\n")
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}
	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: URL is required\n\n")
		fs.Usage()
		os.Exit(2)
	}

	form := request.FormState{
		Method:  *methodFlag,
		URL:     fs.Arg(0),
		Params:  parsePairs(queryFlags, "="),
		Headers: parsePairs(headerFlags, ":"),
	}
	if *dataFlag != "" {
		form.BodyMode = request.BodyModeRaw
		form.RawBody = *dataFlag
	} else {
		form.BodyMode = request.BodyModeForm
		form.BodyRows = parsePairs(formFlags, "=")
	}

	if *curlFlag {
		desc, err := request.Compose(form)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(export.AsCurl(desc))
		return
	}

	logger := newLogger(*debugFlag)
	defer logger.Sync()

	histStore, closeStore, err := openHistory(cfg, *noHistoryFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history storage: %v\n", err)
		os.Exit(2)
	}
	defer closeStore()

	exec := executor.New()
	exec.SetTimeout(*timeoutFlag)
	sess := session.New(exec, histStore, logger, *timeoutFlag)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	env, err := sess.Do(ctx, form)
	if err != nil {
		kind := "Error"
		switch errdef.CodeOf(err) {
		case errdef.CodeNetwork, errdef.CodeTimeout:
			kind = "Network error"
		case errdef.CodeInvalidMethod, errdef.CodeInvalidURL, errdef.CodeInvalidHeader, errdef.CodeMalformedBody:
			kind = "Invalid request"
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", kind, err)
		os.Exit(1)
	}

	printEnvelope(env, *outputFlag, *exportFlag, cfg.Color && !*noColorFlag)
}

// openHistory opens the persistent history store, or an in-memory one
// when recording is disabled.
func openHistory(cfg config.Config, disabled bool) (*history.Store, func(), error) {
	path := ":memory:"
	if !disabled {
		resolved, err := cfg.ResolveHistoryPath()
		if err != nil {
			return nil, nil, err
		}
		path = resolved
	}

	kvStore, err := kv.Open(path)
	if err != nil {
		return nil, nil, err
	}
	histStore, err := history.NewStore(kvStore, cfg.HistoryMax)
	if err != nil {
		kvStore.Close()
		return nil, nil, err
	}
	return histStore, func() { kvStore.Close() }, nil
}

func printEnvelope(env *executor.Envelope, output, mode string, color bool) {
	if output == "json" {
		var payload any = export.Full(env)
		if mode == "body" {
			payload = export.Body(env)
		}
		data, err := export.JSON(payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
		return
	}

	fmt.Printf("%s  %s  %s\n\n",
		env.Status,
		formatDuration(env.Duration),
		humanize.Bytes(uint64(env.Size)),
	)

	body, err := export.JSON(export.Body(env))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	text := string(body)
	if color && env.JSONBody {
		text = export.Highlight(text, "json")
	}
	fmt.Print(text)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(10 * time.Millisecond).String()
}

// parsePairs splits repeated flag values on the first separator into
// key-value rows. A value without the separator becomes a key with an
// empty value.
func parsePairs(values []string, sep string) []request.KVPair {
	pairs := make([]request.KVPair, 0, len(values))
	for _, v := range values {
		key, value, _ := strings.Cut(v, sep)
		pairs = append(pairs, request.KVPair{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
		})
	}
	return pairs
}
