package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"

	"ytorbit"
	"ytorbit/config"
	"ytorbit/internal/logging"
	"ytorbit/internal/report"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "comments":
		return cmdComments(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stderr)
		return 0
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `ytorbit - add YouTube comments to an Orbit workspace

Usage:
  ytorbit comments [flags]   Add recent comments on a channel's videos as activities
  ytorbit help               Show this help message

Examples:
  ytorbit comments --channel UCxxxxx                 # Last 24 hours
  ytorbit comments --channel UCxxxxx --hours 72      # Last 3 days
  ytorbit comments --dry-run --report run.json       # Fetch and map only

If --hours is not provided, or is 0, it defaults to 24 (or YTORBIT_HOURS).

You must also have ORBIT_WORKSPACE_ID, ORBIT_API_KEY and YOUTUBE_API_KEY set,
plus YOUTUBE_CHANNEL_ID unless --channel is given. A .env file in the
current directory is loaded first.

For help on flags: ytorbit comments -h
`)
}

func cmdComments(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("comments", flag.ContinueOnError)
	fs.SetOutput(stderr)
	hoursStr := fs.String("hours", "", "Only comments from the last N hours; 0 means the default (default 24)")
	channel := fs.String("channel", "", "YouTube channel id (default $YOUTUBE_CHANNEL_ID)")
	configPath := fs.String("config", "", "Path to a YAML config file")
	dryRun := fs.Bool("dry-run", false, "Fetch and prepare activities without submitting them")
	reportPath := fs.String("report", "", "Write the run result as JSON to this file")
	workers := fs.Int("workers", 0, "Videos read concurrently (default 1)")
	logLevel := fs.String("log-level", "", "Log level: trace, debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ytorbit comments [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "Warning: could not load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	hours := cfg.Hours
	if *hoursStr != "" {
		n, err := strconv.Atoi(*hoursStr)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s is not a number\n", *hoursStr)
			return 1
		}
		if n < 0 {
			fmt.Fprintf(stderr, "Error: --hours must not be negative, got %d\n", n)
			return 1
		}
		if n > 0 {
			hours = n
		}
	}
	if *channel != "" {
		cfg.YouTube.ChannelID = *channel
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if err := cfg.ValidateCredentials(true); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		printUsage(stderr)
		return 1
	}
	if err := cfg.ValidateSettings(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	client, err := ytorbit.New(ctx, cfg, ytorbit.WithLogger(log))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer client.Close()

	res, runErr := client.Run(ctx, ytorbit.RunOptions{
		ChannelID: cfg.YouTube.ChannelID,
		Hours:     hours,
		DryRun:    *dryRun,
	})

	if res != nil {
		if *reportPath != "" {
			if err := report.WriteJSON(*reportPath, res); err != nil {
				fmt.Fprintf(stderr, "Warning: %v\n", err)
			}
		}
		if err := printResult(stdout, res); err != nil {
			fmt.Fprintf(stderr, "Error writing result: %v\n", err)
			return 1
		}
	}

	if runErr != nil {
		fmt.Fprintf(stderr, "Error: %v\n", runErr)
		return 1
	}

	fmt.Fprintf(stderr, "Fetched %d comments from the provided timeframe\n", res.Retained)
	if res.DryRun {
		fmt.Fprintf(stderr, "Dry run: %d activities prepared, none submitted.\n", res.Retained)
	} else {
		fmt.Fprintln(stderr, res.Stats.Summary(client.WorkspaceID()))
	}
	return 0
}

func printResult(w io.Writer, res *ytorbit.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
