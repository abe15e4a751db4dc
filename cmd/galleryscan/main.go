package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/metroboards/galleryscan/internal/logger"
	"github.com/metroboards/galleryscan/internal/token"
	"github.com/metroboards/galleryscan/pkg/gallery"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool
	logLevel   string
	jsonLogs   bool

	// Scan flags
	rootURL          string
	maxDepth         int
	probeConcurrency int
	rateLimit        float64
	outputFile       string
	noCache          bool
	writeManifest    bool
	groupID          string

	// Sign flags
	signTTL time.Duration

	// Cache flags
	clearFolder string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "galleryscan",
		Short: "galleryscan - remote gallery tree discovery",
		Long: `galleryscan crawls the HTML directory listings of a remote image gallery,
builds the folder/image tree, and keeps a cached manifest for cheap
staleness checks. It also mints the signed URLs the media proxy accepts.`,
		Version: version,
	}

	scanCmd := &cobra.Command{
		Use:   "scan [url]",
		Short: "Scan the gallery tree",
		Long:  "Crawl the gallery under the configured or given root URL and print the discovered tree as JSON.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScan,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Check manifest staleness",
		Long:  "Compare the persisted manifest against the live gallery and print the verdict.",
		RunE:  runStatus,
	}

	signCmd := &cobra.Command{
		Use:   "sign <operation> <field> [field]",
		Short: "Mint a signed proxy URL",
		Long: `Mint a signed URL for one proxy operation.

Operations and their fields:
  file <path>                    fetch one file
  list <folder>                  list a folder
  delete <path>                  delete a file
  move <sourcePath> <target>     move a file into a folder
  rename <oldPath> <newName>     rename a file
  mkdir <parent> <name>          create a folder
  upload <folder>                upload into a folder`,
		Args: cobra.RangeArgs(2, 3),
		RunE: runSign,
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Cache maintenance",
	}
	cacheClearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop the cached gallery tree",
		RunE:  runCacheClear,
	}
	cacheCmd.AddCommand(cacheClearCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "JSON log output")
	rootCmd.PersistentFlags().StringVarP(&groupID, "group", "g", "", "Cache namespace group")

	// Scan flags
	scanCmd.Flags().IntVarP(&maxDepth, "max-depth", "d", 5, "Maximum crawl depth")
	scanCmd.Flags().IntVar(&probeConcurrency, "probe-concurrency", 1, "Concurrent top-level folder fetches")
	scanCmd.Flags().Float64VarP(&rateLimit, "rate-limit", "r", 8, "Requests per second")
	scanCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	scanCmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the tree cache")
	scanCmd.Flags().BoolVar(&writeManifest, "write-manifest", false, "Persist a manifest snapshot after the scan")

	// Sign flags
	signCmd.Flags().DurationVar(&signTTL, "ttl", 0, "Token lifetime (default: configured TTL)")

	// Cache flags
	cacheClearCmd.Flags().StringVar(&clearFolder, "folder", "", "Folder to drop (default: whole tree)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(cacheCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig assembles the configuration from defaults, an optional config
// file, and GALLERY_* environment variables, in that order.
func loadConfig() (*gallery.Config, error) {
	config := gallery.DefaultConfig()
	if configFile != "" {
		fileConfig, err := gallery.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}
	config.FromEnv()
	config.Verbose = verbose
	config.Debug = debug
	if groupID != "" {
		config.GroupID = groupID
	}
	return config, nil
}

func setupLogger(config *gallery.Config) *logger.Logger {
	level := logger.InfoLevel
	if config.Debug {
		level = logger.DebugLevel
	} else if !config.Verbose {
		level = logger.WarnLevel
	}

	var log *logger.Logger
	if jsonLogs {
		log = logger.NewJSON(level)
	} else {
		log = logger.New(logger.Config{
			Level:  level,
			Pretty: true,
			Output: os.Stderr,
		})
	}
	if logLevel != "" {
		if parsed, err := logger.ParseLevel(logLevel); err == nil {
			log.SetLevel(parsed)
		}
	}
	logger.SetGlobal(log)
	return log
}

func newScanner(config *gallery.Config) (*gallery.Scanner, error) {
	return gallery.New(
		gallery.WithConfig(config),
		gallery.WithLogger(setupLogger(config)),
	)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, stopping...\n")
		cancel()
	}()

	return ctx, cancel
}

func runScan(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		config.RootURL = args[0]
	}
	if cmd.Flags().Changed("max-depth") {
		config.MaxDepth = maxDepth
	}
	if cmd.Flags().Changed("probe-concurrency") {
		config.ProbeConcurrency = probeConcurrency
	}
	if cmd.Flags().Changed("rate-limit") {
		config.RateLimit.RequestsPerSecond = rateLimit
	}

	s, err := newScanner(config)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var nodes []gallery.Node
	if noCache {
		nodes, err = s.Refresh(ctx)
	} else {
		nodes, err = s.Scan(ctx)
	}
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if writeManifest {
		if _, err := s.WriteManifest(nodes); err != nil {
			return fmt.Errorf("failed to write manifest: %w", err)
		}
	}

	data, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		return err
	}
	if outputFile != "" {
		if err := os.WriteFile(outputFile, data, 0644); err != nil {
			return err
		}
	} else {
		fmt.Println(string(data))
	}

	stats := s.Stats()
	fmt.Fprintf(os.Stderr, "\n%d folders, %d images in %v (%d requests, %d failed folders)\n",
		stats.Folders, stats.Images, stats.Duration.Round(time.Millisecond),
		stats.Requests, stats.FailedFolders)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := newScanner(config)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	report, err := s.CheckStaleness(ctx)
	if err != nil {
		return fmt.Errorf("staleness check failed: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runSign(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if signTTL > 0 {
		config.Token.TTL = signTTL
	}

	s, err := newScanner(config)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}
	defer s.Close()

	signed, err := s.Issuer().Sign(token.Op(args[0]), args[1:])
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := newScanner(config)
	if err != nil {
		return fmt.Errorf("failed to create scanner: %w", err)
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if clearFolder != "" {
		s.ClearCacheFolder(ctx, clearFolder)
	} else {
		s.ClearCache(ctx)
	}
	fmt.Println("cache cleared")
	return nil
}
