package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"fridges/internal/cooking"
	"fridges/internal/fridge"
	"fridges/internal/metrics"
	"fridges/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// maxImageBytes matches the server's upload cap
const maxImageBytes = int64(50 << 20)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	rootFlags := ff.NewFlagSet("fridges")
	var (
		dbPath      = rootFlags.StringLong("db", "fridges.db", "BoltDB file path")
		storeType   = rootFlags.StringLong("store", "bolt", "Store type: 'bolt' or 'postgres'")
		postgresDSN = rootFlags.StringLong("postgres-dsn", "", "PostgreSQL connection string (used with --store postgres)")
		scannerType = rootFlags.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey   = rootFlags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = rootFlags.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = rootFlags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = rootFlags.StringLong("ollama-model", "llava", "Ollama vision model name (e.g., llava, qwen2-vl)")
		recipeModel = rootFlags.StringLong("recipe-model", "", "Model name for recipe generation (defaults per provider)")
		archiveDir  = rootFlags.StringLong("archive-dir", "", "Directory to archive scanned receipt images (optional)")
		logLevel    = rootFlags.StringLong("log-level", "info", "Log level: debug, info, warn, or error")
		logFile     = rootFlags.StringLong("log-file", "", "Write logs to this file instead of stderr")
		showVersion = rootFlags.BoolLong("version", "Show version information")
	)
	_ = rootFlags.StringLong("config", "", "Config file path (optional)")

	rootCmd := &ff.Command{
		Name:  "fridges",
		Usage: "fridges [FLAGS] SUBCOMMAND ...",
		Flags: rootFlags,
	}

	scanFlags := ff.NewFlagSet("scan").SetParent(rootFlags)
	var (
		scanUID = scanFlags.StringLong("uid", "", "User whose fridge receives the items")
		dryRun  = scanFlags.BoolLong("dry-run", "Compute the update without saving it")
	)
	scanCmd := &ff.Command{
		Name:      "scan",
		Usage:     "fridges scan --uid UID [--dry-run] IMAGE",
		ShortHelp: "scan a receipt image and update the fridge",
		Flags:     scanFlags,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one receipt image is required")
			}
			if *scanUID == "" {
				return fmt.Errorf("--uid is required")
			}

			store, err := buildStore(*storeType, *dbPath, *postgresDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			scanner, err := buildScanner(*scannerType, *geminiKey, *geminiModel, *ollamaURL, *ollamaModel)
			if err != nil {
				return err
			}
			defer scanner.Close()

			var archive fridge.Archive
			if *archiveDir != "" {
				if archive, err = fridge.NewLocalArchive(*archiveDir); err != nil {
					return err
				}
			}

			service := fridge.NewService(store, scanner, nil, archive)
			return runScan(ctx, service, args[0], *scanUID, *dryRun)
		},
	}

	showCmd := &ff.Command{
		Name:      "show",
		Usage:     "fridges show UID",
		ShortHelp: "print the fridge contents for a user",
		Flags:     ff.NewFlagSet("show").SetParent(rootFlags),
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one user ID is required")
			}

			store, err := buildStore(*storeType, *dbPath, *postgresDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			service := fridge.NewService(store, nil, nil, nil)
			return runShow(ctx, service, args[0])
		},
	}

	listCmd := &ff.Command{
		Name:      "list",
		Usage:     "fridges list",
		ShortHelp: "list all stored fridges",
		Flags:     ff.NewFlagSet("list").SetParent(rootFlags),
		Exec: func(ctx context.Context, args []string) error {
			store, err := buildStore(*storeType, *dbPath, *postgresDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			service := fridge.NewService(store, nil, nil, nil)
			return runList(ctx, service)
		},
	}

	recipesCmd := &ff.Command{
		Name:      "recipes",
		Usage:     "fridges recipes UID",
		ShortHelp: "suggest recipes from the fridge contents",
		Flags:     ff.NewFlagSet("recipes").SetParent(rootFlags),
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one user ID is required")
			}

			store, err := buildStore(*storeType, *dbPath, *postgresDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			generator, err := buildGenerator(*scannerType, *geminiKey, *recipeModel, *ollamaURL)
			if err != nil {
				return err
			}
			defer generator.Close()

			service := fridge.NewService(store, nil, generator, nil)
			return runRecipes(ctx, service, args[0])
		},
	}

	serveFlags := ff.NewFlagSet("serve").SetParent(rootFlags)
	var (
		port     = serveFlags.IntLong("port", 8080, "HTTP server port")
		authUser = serveFlags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass = serveFlags.StringLong("auth-pass", "", "Basic auth password (optional)")
	)
	serveCmd := &ff.Command{
		Name:      "serve",
		Usage:     "fridges serve [--port PORT]",
		ShortHelp: "run the HTTP API",
		Flags:     serveFlags,
		Exec: func(ctx context.Context, args []string) error {
			store, err := buildStore(*storeType, *dbPath, *postgresDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			scanner, err := buildScanner(*scannerType, *geminiKey, *geminiModel, *ollamaURL, *ollamaModel)
			if err != nil {
				return err
			}
			defer scanner.Close()

			generator, err := buildGenerator(*scannerType, *geminiKey, *recipeModel, *ollamaURL)
			if err != nil {
				slog.Warn("Recipe generation disabled", "error", err)
				generator = nil
			} else {
				defer generator.Close()
			}

			var archive fridge.Archive
			if *archiveDir != "" {
				if archive, err = fridge.NewLocalArchive(*archiveDir); err != nil {
					return err
				}
			}

			service := fridge.NewService(store, scanner, generator, archive)
			basicAuth := fridge.BasicAuth{
				Username: *authUser,
				Password: *authPass,
			}
			server := fridge.NewServer(service, basicAuth, metrics.NewRegistry())

			addr := fmt.Sprintf(":%d", *port)
			go func() {
				if err := server.Start(addr); err != nil {
					slog.Error("Server error", "error", err)
					os.Exit(1)
				}
			}()

			slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
			if *authUser != "" || *authPass != "" {
				slog.Info("Basic auth enabled", "user", *authUser)
			}

			// Wait for interrupt signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan

			slog.Info("Shutting down...")
			return nil
		},
	}

	rootCmd.Subcommands = []*ff.Command{scanCmd, showCmd, listCmd, recipesCmd, serveCmd}

	if err := rootCmd.Parse(os.Args[1:],
		ff.WithEnvVarPrefix("FRIDGES"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithConfigAllowMissingFile(),
	); err != nil {
		if errors.Is(err, ff.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(rootCmd))
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(rootCmd))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	closeLog, err := setupLogger(*logLevel, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := rootCmd.Run(context.Background()); err != nil {
		if errors.Is(err, ff.ErrHelp) || errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(rootCmd))
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger configures the default slog logger from flags; the returned
// func closes the log file, if any
func setupLogger(level string, path string) (func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q (use debug, info, warn, or error)", level)
	}

	out := io.Writer(os.Stderr)
	closeFn := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})))
	return closeFn, nil
}

func buildStore(storeType, dbPath, dsn string) (fridge.Store, error) {
	switch storeType {
	case "bolt":
		return fridge.NewBoltStore(dbPath)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("--postgres-dsn is required when store is 'postgres'")
		}
		return fridge.NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("invalid store type %q (use 'bolt' or 'postgres')", storeType)
	}
}

func buildScanner(scannerType, geminiKey, geminiModel, ollamaURL, ollamaModel string) (scanning.Scanner, error) {
	switch scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", geminiModel)
		return scanning.NewGemini(apiKey, geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", ollamaURL, "model", ollamaModel)
		return scanning.NewOllama(ollamaURL, ollamaModel)
	default:
		return nil, fmt.Errorf("invalid scanner type %q (use 'gemini' or 'ollama')", scannerType)
	}
}

func buildGenerator(scannerType, geminiKey, recipeModel, ollamaURL string) (cooking.Generator, error) {
	switch scannerType {
	case "gemini":
		apiKey := geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		return cooking.NewGemini(apiKey, recipeModel)
	case "ollama":
		return cooking.NewOllama(ollamaURL, recipeModel)
	default:
		return nil, fmt.Errorf("invalid scanner type %q (use 'gemini' or 'ollama')", scannerType)
	}
}

func runScan(ctx context.Context, service *fridge.Service, path, uid string, dryRun bool) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading receipt image: %w", err)
	}
	if info.Size() > maxImageBytes {
		return fmt.Errorf("receipt image is too large (max 50MB)")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading receipt image: %w", err)
	}

	result, err := service.Scan(ctx, uid, data, scanning.MIMETypeForFile(path), dryRun)
	if err != nil {
		if errors.Is(err, fridge.ErrNoValidItems) && result != nil {
			printRejections(result.Rejected)
		}
		return fmt.Errorf("scan failed: %w", err)
	}

	printScanResult(result)
	return nil
}

func runShow(ctx context.Context, service *fridge.Service, uid string) error {
	doc, err := service.Contents(ctx, uid)
	if errors.Is(err, fridge.ErrNotFound) {
		fmt.Printf("No fridge found for %s.\n", uid)
		return nil
	}
	if err != nil {
		return err
	}

	printContents(doc)
	return nil
}

func runList(ctx context.Context, service *fridge.Service) error {
	docs, err := service.ListFridges(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No fridges stored yet.")
		return nil
	}

	for _, doc := range docs {
		fmt.Printf("%s: %d item(s), $%.2f\n", doc.UID, len(doc.Items), doc.TotalValue())
	}
	return nil
}

func runRecipes(ctx context.Context, service *fridge.Service, uid string) error {
	recipes, err := service.SuggestRecipes(ctx, uid)
	if errors.Is(err, fridge.ErrNotFound) {
		fmt.Printf("No fridge found for %s.\n", uid)
		return nil
	}
	if errors.Is(err, fridge.ErrEmptyFridge) {
		fmt.Printf("The fridge for %s is empty; nothing to cook yet.\n", uid)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println(recipes)
	return nil
}

func printScanResult(result *fridge.ScanResult) {
	fmt.Printf("Found %d item(s) on the receipt:\n", len(result.Items))
	for _, item := range result.Items {
		fmt.Printf("  %s: %s @ $%.2f\n", item.Name, formatQuantity(item.Quantity), item.UnitPrice)
	}
	printRejections(result.Rejected)

	fmt.Printf("Added %d new item(s), updated %d existing item(s).\n",
		len(result.Summary.Added), len(result.Summary.Updated))
	if result.DryRun {
		fmt.Println("Dry run: no changes were saved.")
	}
}

func printRejections(rejected []fridge.Rejection) {
	if len(rejected) == 0 {
		return
	}
	fmt.Printf("Rejected %d record(s):\n", len(rejected))
	for _, rejection := range rejected {
		fmt.Printf("  %v: %s\n", rejection.Raw, rejection.Reason)
	}
}

func printContents(doc *fridge.Document) {
	if len(doc.Items) == 0 {
		fmt.Printf("The fridge for %s is empty.\n", doc.UID)
		return
	}

	fmt.Printf("Fridge contents for %s:\n", doc.UID)
	names := make([]string, 0, len(doc.Items))
	for name := range doc.Items {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entry := doc.Items[name]
		fmt.Printf("  %s: %s @ $%.2f ($%.2f)\n",
			name, formatQuantity(entry.Quantity), entry.UnitPrice, entry.Quantity*entry.UnitPrice)
	}
	fmt.Printf("Total fridge value: $%.2f\n", doc.TotalValue())
}

// formatQuantity prints whole quantities without a decimal tail
func formatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
