package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-optimizer-go/internal/config"
	"image-optimizer-go/internal/logger"
	"image-optimizer-go/internal/metadata"
	"image-optimizer-go/internal/pipeline"
	"image-optimizer-go/internal/statistics"
	"image-optimizer-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	inputDir     string
	inputPattern string
	outputDir    string
	manifestPath string
	verbose      bool
	quiet        bool
	port         int
)

// rootCmd is the base command for the CLI. It runs a full build.
var rootCmd = &cobra.Command{
	Use:   "image-optimizer",
	Short: "Compress images and write a manifest of the optimized set",
	Long: `image-optimizer re-encodes the raw images of a site or app at build time.

It compresses every input (JPEG at a fixed quality, PNG through palette
quantization), prints the size reduction per file and in total, and writes a
JSON manifest describing every image in the output directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuild(cmd.Context())
	},
}

// manifestCmd regenerates the manifest from the current output directory.
var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Regenerate the manifest without compressing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runManifest()
	},
}

// reportCmd prints a size report for an existing input/output pair.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compare input images with their optimized counterparts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport()
	},
}

// serveCmd starts the preview server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the preview server",
	Long: `Starts an HTTP server that triggers builds, streams progress over a
websocket and serves the optimized images.

Endpoints: /api/status, /api/build, /api/report, /api/manifest, /ws, /images/`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&inputDir, "input", "", "directory containing raw images")
	rootCmd.PersistentFlags().StringVar(&inputPattern, "pattern", "", "glob of input files relative to the input directory")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", "", "directory for optimized images")
	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "", "path of the JSON manifest")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run the preview server on (default from config, 8080)")

	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
}

// runBuild compresses, reports and writes the manifest.
func runBuild(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	meta := metadata.NewHandler(cfg.MetadataOptions(), log)
	defer meta.Close()

	stats := statistics.NewStatistics()
	builder := pipeline.New(cfg, log, meta, stats)
	if verbose {
		defer printStatistics(stats)
	}

	outcome, err := builder.Build(ctx)
	if err != nil {
		return err
	}

	if !quiet {
		if err := outcome.Report.Render(os.Stdout); err != nil {
			return err
		}
	}

	return nil
}

// printStatistics writes the run summary, file types and errors to stderr.
func printStatistics(stats *statistics.Statistics) {
	fmt.Fprintln(os.Stderr, "\n"+stats.GetSummary())
	fmt.Fprintln(os.Stderr, "\n"+stats.GetFileTypeBreakdown())
	fmt.Fprintln(os.Stderr, stats.GetErrorSummary())
}

// runManifest writes the manifest for the current output directory.
func runManifest() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	entries, err := pipeline.NewBuilder(cfg, nil, log, nil).GenerateManifest()
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("Wrote %d entries to %s\n", len(entries), cfg.ManifestPath)
	}
	return nil
}

// runReport renders the report for inputs that already have optimized outputs.
func runReport() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	rep, err := pipeline.NewBuilder(cfg, nil, log, nil).Report()
	if err != nil {
		return err
	}

	return rep.Render(os.Stdout)
}

// runServe starts the preview server and handles graceful shutdown.
func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	meta := metadata.NewHandler(cfg.MetadataOptions(), log)
	defer meta.Close()

	server := web.NewServer(cfg, log, meta)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	fmt.Printf("Preview server listening on http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-sigChan:
	}
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if inputDir != "" {
		cfg.InputDirectory = inputDir
	}
	if inputPattern != "" {
		cfg.InputPattern = inputPattern
	}
	if outputDir != "" {
		cfg.OutputDirectory = outputDir
	}
	if manifestPath != "" {
		cfg.ManifestPath = manifestPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) (*logrus.Logger, error) {
	loggerCfg := cfg.LoggerConfig()
	loggerCfg.Console = !quiet

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return log, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
