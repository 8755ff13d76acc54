package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roadwatch/datexflat/internal/pipeline"
	"github.com/roadwatch/datexflat/pkg/columnar"
	"github.com/roadwatch/datexflat/pkg/config"
	"github.com/roadwatch/datexflat/pkg/logger"
	"github.com/roadwatch/datexflat/pkg/xmlstream"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	root := &cobra.Command{
		Use:   "datexflat",
		Short: "datexflat - Flatten road-event XML feeds into columnar tables",
		Long: `datexflat converts multiply-nested road-event XML documents (DATEX II
situation publications) into flat Parquet tables, one row per situation
record, with nested fields flattened into underscore-joined column names.`,
	}

	// Version command
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("datexflat v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	// Formats command to show supported columnar formats
	root.AddCommand(&cobra.Command{
		Use:   "formats",
		Short: "List supported columnar formats",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Supported chunk formats:")
			for _, f := range []columnar.Format{columnar.Parquet, columnar.Arrow} {
				fmt.Printf("  - %s (%s)\n", f, columnar.FileExtension(f))
			}
			fmt.Println("\nFinal output is always Parquet.")
		},
	})

	// Main convert command
	var inputFile, outputFile, configFile string
	var groupTag, recordTag, missingID string
	var chunkSize int
	var chunkFormat, compression, logLevel string

	convertCmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert an XML feed to a Parquet table",
		Long: `Convert a road-event XML feed into one deduplicated Parquet table.
Inputs ending in .gz or .zst are decompressed transparently.

Example:
  datexflat convert --input wegwerkzaamheden.xml --output wegwerkzaamheden.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, configFile, groupTag, recordTag, missingID,
				chunkSize, chunkFormat, compression, logLevel)
			if err != nil {
				return err
			}
			return runConvert(cfg, inputFile, outputFile)
		},
	}

	// Required flags
	convertCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Path to input XML file, optionally .gz or .zst compressed (required)")
	convertCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Path to output Parquet file (required)")
	_ = convertCmd.MarkFlagRequired("input")
	_ = convertCmd.MarkFlagRequired("output")

	// Optional flags
	convertCmd.Flags().StringVar(&configFile, "config", "", "Path to YAML or JSON configuration file (optional)")
	convertCmd.Flags().StringVar(&groupTag, "group-tag", "situation", "Element establishing the identifier context")
	convertCmd.Flags().StringVar(&recordTag, "record-tag", "situationRecord", "Element whose subtree becomes one output row")
	convertCmd.Flags().StringVar(&missingID, "missing-id", "carry", "Policy for grouping elements without an id attribute (carry, skip)")
	convertCmd.Flags().IntVar(&chunkSize, "chunk-size", 10000, "Number of records per intermediate chunk file")
	convertCmd.Flags().StringVar(&chunkFormat, "chunk-format", "parquet", "Intermediate chunk format (parquet, arrow)")
	convertCmd.Flags().StringVar(&compression, "compression", "snappy", "Parquet compression codec (snappy, zstd, gzip, none)")
	convertCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(convertCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildConfig loads the optional config file and overlays any flags the
// user set explicitly
func buildConfig(cmd *cobra.Command, configFile, groupTag, recordTag, missingID string,
	chunkSize int, chunkFormat, compression, logLevel string) (*config.Config, error) {

	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("group-tag") {
		cfg.Parser.GroupTag = groupTag
	}
	if flags.Changed("record-tag") {
		cfg.Parser.RecordTag = recordTag
	}
	if flags.Changed("missing-id") {
		cfg.Parser.MissingID = config.MissingIDPolicy(missingID)
	}
	if flags.Changed("chunk-size") {
		cfg.Writer.ChunkSize = chunkSize
	}
	if flags.Changed("chunk-format") {
		cfg.Writer.ChunkFormat = chunkFormat
	}
	if flags.Changed("compression") {
		cfg.Writer.Compression = compression
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	return cfg, nil
}

// runConvert executes the conversion with the given configuration
func runConvert(cfg *config.Config, inputFile, outputFile string) error {
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
		OutputPaths: cfg.Logging.OutputPaths,
	}); err != nil {
		return fmt.Errorf("logger error: %w", err)
	}

	log := logger.Get().With(
		zap.String("component", "datexflat-cli"),
		zap.String("input", inputFile),
		zap.String("output", outputFile),
	)

	source, err := xmlstream.NewSource(inputFile, cfg.Parser, log)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	converter := pipeline.NewConverter(cfg, log)

	startTime := time.Now()
	if err := converter.Run(context.Background(), source, outputFile); err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	duration := time.Since(startTime)
	metrics := converter.Metrics()
	recordsProcessed := metrics["records_processed"].(int64)

	log.Info("conversion succeeded",
		zap.Duration("duration", duration),
		zap.Int64("records_processed", recordsProcessed),
		zap.Int64("chunks_written", metrics["chunks_written"].(int64)),
		zap.Int64("duplicates_dropped", metrics["duplicates_dropped"].(int64)))

	fmt.Printf("Parquet file saved to: %s\n", outputFile)
	return nil
}
