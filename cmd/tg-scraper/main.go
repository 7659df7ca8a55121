package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"tg-scraper/pkg/config"
	"tg-scraper/pkg/crawler"
	"tg-scraper/pkg/fetch"
	"tg-scraper/pkg/orchestrate"
	"tg-scraper/pkg/process"
	"tg-scraper/pkg/storage"
	"tg-scraper/pkg/telegram"
	"tg-scraper/pkg/utils"
)

// Overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		runCrawl(os.Args[2:])
	case "login":
		runLogin(os.Args[2:])
	case "channels":
		runChannels(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("tg-scraper %s (commit %s, built %s)\n", version, commit, date)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `tg-scraper - Telegraph and Telegram media crawler

Usage:
  tg-scraper <command> [options]

Commands:
  crawl       Fetch pages, posts, and channel histories
  login       Sign the Telegram session in
  channels    List channels and groups the account can access
  validate    Validate configuration and credentials
  version     Show version info

Run 'tg-scraper <command> -h' for command-specific help.`)
}

// loadConfig loads the config file over the stock defaults. A missing
// file is not an error; the defaults alone are a working setup.
func loadConfig(path string, log *logrus.Logger) (*config.AppConfig, error) {
	cfg := config.Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config '%s': %w", path, err)
		}
		log.Infof("Loaded configuration from %s", path)
	case os.IsNotExist(err):
		log.Infof("Config file '%s' not found, using defaults", path)
	default:
		return nil, fmt.Errorf("read config '%s': %w", path, err)
	}

	warnings, _ := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	return &cfg, nil
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}

	return log
}

// newRunContext builds the run context (with the configured overall
// timeout, when set) and installs the interrupt handler: the first signal
// cancels the context, a second one or an exceeded grace period forces
// exit.
func newRunContext(cfg *config.AppConfig, log *logrus.Logger) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if cfg.RunTimeout > 0 {
		log.Infof("Run timeout: %v", cfg.RunTimeout)
		ctx, cancel = context.WithTimeout(context.Background(), cfg.RunTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Waiting for in-flight work to settle...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, cancel
}

// readEntriesFile reads crawl entries from a file, one or more per line.
// Blank lines and '#' comments are skipped; commas separate entries
// within a line.
func readEntriesFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}

	var entries []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, entry := range strings.Split(line, ",") {
			if entry = strings.TrimSpace(entry); entry != "" {
				entries = append(entries, entry)
			}
		}
	}
	return entries, nil
}

// runCrawl handles the crawl subcommand
func runCrawl(args []string) {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	rootDir := fs.String("root", "", "Override the save root directory")
	full := fs.Bool("full", false, "Walk entire channel histories instead of stopping at the latest qualifying message")
	inputFile := fs.String("input", "", "File with crawl entries (one per line, '#' comments skipped)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tg-scraper crawl [options] [entries...]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Entries are telegra.ph/graph.org page links, t.me/c/ post links,
@usernames or bare channel ids, or 'all' for every accessible channel.

Examples:
  tg-scraper crawl @somechannel
  tg-scraper crawl -full https://t.me/c/1234567890/55
  tg-scraper crawl -input entries.txt
  tg-scraper crawl all
`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	entries := fs.Args()
	if *inputFile != "" {
		fromFile, err := readEntriesFile(*inputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		entries = append(entries, fromFile...)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no entries given (positional entries or -input file required)")
		fs.Usage()
		os.Exit(1)
	}

	os.Exit(executeCrawl(*configFile, entries, *rootDir, *full, *logLevel))
}

// executeCrawl wires the components together and drives one run. Returns
// the process exit code so deferred cleanup runs before exit.
func executeCrawl(configFile string, entries []string, rootOverride string, fullOverride bool, logLevelStr string) int {
	log := setupLogger(logLevelStr)

	cfg, err := loadConfig(configFile, log)
	if err != nil {
		log.Errorf("Config error: %v", err)
		return 1
	}
	if rootOverride != "" {
		cfg.SaveRoot = rootOverride
		log.Infof("Save root overridden via CLI flag: %s", rootOverride)
	}
	if fullOverride {
		cfg.FullCrawl = true
		log.Info("Full history walk forced via CLI flag")
	}
	logAppConfig(cfg, log)

	creds, err := telegram.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		log.Errorf("Credentials error: %v", err)
		return 1
	}

	ctx, cancel := newRunContext(cfg, log)
	defer cancel()

	// --- Ledger ---
	store, err := storage.NewBadgerStore(cfg.LedgerDir(), log.WithField("component", "ledger"))
	if err != nil {
		log.Errorf("Failed to open the processed-links ledger: %v", err)
		return 1
	}
	defer store.Close()

	go store.RunGC(ctx, cfg.DBGCInterval)

	// --- HTTP fetch components ---
	httpClient := fetch.NewClient(cfg.HTTPClientSettings, log)
	fetcher := fetch.NewFetcher(httpClient, log)
	images := process.NewImageDownloader(fetcher, semaphore.NewWeighted(cfg.ImageConcurrency), cfg.UserAgent, log)
	pages := process.NewPageFetcher(cfg, fetcher, store, images, log)

	// --- Telegram client ---
	tdClient, err := telegram.Dial(creds, cfg.EffectiveSessionFile())
	if err != nil {
		log.Errorf("Telegram client setup failed: %v", err)
		return 1
	}

	// Everything platform-bound lives inside the connection's Run callback
	runErr := tdClient.Run(ctx, func(ctx context.Context) error {
		if err := telegram.EnsureAuth(ctx, tdClient, creds); err != nil {
			return err
		}

		tc := telegram.NewClient(tdClient.API(), cfg.HistoryPageSize, log)
		posts := process.NewPostFetcher(cfg, tc, store, log)
		engine := crawler.NewEngine(pages, posts, tc, semaphore.NewWeighted(cfg.LinkConcurrency), log)
		orch := orchestrate.NewOrchestrator(cfg, engine, tc, log)

		_, err := orch.Run(ctx, entries)
		return err
	})

	if count, err := store.ProcessedCount(); err == nil {
		log.Infof("Ledger now records %d processed links", count)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			log.Warn("Run cancelled gracefully.")
			return 0
		}
		if errors.Is(runErr, context.DeadlineExceeded) {
			log.Error("Run hit the configured timeout.")
			return 1
		}
		log.Errorf("Run finished with error: %v", runErr)
		return 1
	}

	writeRunTree(cfg, log)

	log.Info("Run completed successfully.")
	return 0
}

// writeRunTree writes a sized listing of the save root into the state dir
// so a finished run can be audited without re-walking the disk. Skipped
// when the run never created the save root.
func writeRunTree(cfg *config.AppConfig, log *logrus.Logger) {
	if _, err := os.Stat(cfg.SaveRoot); os.IsNotExist(err) {
		log.Debug("Save root was never created, skipping structure listing")
		return
	}

	name := utils.SanitizeFilename(filepath.Base(cfg.SaveRoot)) + "_structure.txt"
	treePath := filepath.Join(cfg.StateDir, name)
	if err := utils.WriteSaveRootTree(cfg.SaveRoot, treePath, log.WithField("component", "tree")); err != nil {
		log.Errorf("Failed to write save root structure listing: %v", err)
		return
	}
	log.Infof("Save root structure listing written to %s", treePath)
}

// runLogin handles the login subcommand
func runLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tg-scraper login [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	cfg, err := loadConfig(*configFile, log)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	creds, err := telegram.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		log.Fatalf("Credentials error: %v", err)
	}

	ctx, cancel := newRunContext(cfg, log)
	defer cancel()

	tdClient, err := telegram.Dial(creds, cfg.EffectiveSessionFile())
	if err != nil {
		log.Fatalf("Telegram client setup failed: %v", err)
	}

	runErr := tdClient.Run(ctx, func(ctx context.Context) error {
		return telegram.Login(ctx, tdClient, creds, log)
	})
	if runErr != nil {
		log.Fatalf("Login failed: %v", runErr)
	}
	log.Infof("Session stored at %s", cfg.EffectiveSessionFile())
}

// runChannels handles the channels subcommand
func runChannels(args []string) {
	fs := flag.NewFlagSet("channels", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tg-scraper channels [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	cfg, err := loadConfig(*configFile, log)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	creds, err := telegram.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		log.Fatalf("Credentials error: %v", err)
	}

	ctx, cancel := newRunContext(cfg, log)
	defer cancel()

	tdClient, err := telegram.Dial(creds, cfg.EffectiveSessionFile())
	if err != nil {
		log.Fatalf("Telegram client setup failed: %v", err)
	}

	runErr := tdClient.Run(ctx, func(ctx context.Context) error {
		if err := telegram.EnsureAuth(ctx, tdClient, creds); err != nil {
			return err
		}
		tc := telegram.NewClient(tdClient.API(), cfg.HistoryPageSize, log)
		channels, err := tc.Channels(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Channels and groups the account can access (%d):\n\n", len(channels))
		for _, ch := range channels {
			handle := "-"
			if ch.Username != "" {
				handle = "@" + ch.Username
			}
			fmt.Printf("  %-14d %-26s %s\n", ch.ID, handle, ch.Title)
		}
		return nil
	})
	if runErr != nil {
		log.Fatalf("Listing channels failed: %v", runErr)
	}
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tg-scraper validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate checks the config file and credentials without touching the
// network. Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	cfg := config.Default()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			fmt.Fprintf(stderr, "ERROR: parse config '%s': %v\n", configPath, err)
			return 1
		}
		fmt.Fprintf(stdout, "OK: config file '%s'\n", configPath)
	case os.IsNotExist(err):
		fmt.Fprintf(stdout, "Config file '%s' not found, checking defaults\n", configPath)
	default:
		fmt.Fprintf(stderr, "ERROR: read config '%s': %v\n", configPath, err)
		return 1
	}

	warnings, _ := cfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	creds, err := telegram.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "OK: credentials (api_id %d, phone %s)\n", creds.APIID, creds.Phone)

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// logAppConfig logs the effective configuration
func logAppConfig(cfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: SaveRoot:%s, StateDir:%s, FullCrawl:%t, SaveMarkdown:%t",
		cfg.SaveRoot, cfg.StateDir, cfg.FullCrawl, cfg.SaveMarkdown)
	log.Infof("Config Concurrency: Links:%d, Images:%d", cfg.LinkConcurrency, cfg.ImageConcurrency)
	log.Infof("Config Platform: HistoryPageSize:%d, SessionFile:%s, CredentialsFile:%s",
		cfg.HistoryPageSize, cfg.EffectiveSessionFile(), cfg.CredentialsFile)
	log.Infof("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v",
		cfg.HTTPClientSettings.Timeout, cfg.HTTPClientSettings.MaxIdleConns,
		cfg.HTTPClientSettings.MaxIdleConnsPerHost, cfg.HTTPClientSettings.IdleConnTimeout)
	log.Infof("Config Report: Enabled:%t, Filename:'%s'", cfg.EnableRunReport, cfg.ReportFilename)
}
