// Package config provides the unified configuration for datexflat.
// It defines a single Config structure organized into logical sections:
//
//   - Parser: grouping/record tag names and the missing-identifier policy
//   - Writer: chunk size, intermediate chunk format, output compression
//   - Logging: level, encoding, and output paths
//
// Example usage:
//
//	cfg := config.DefaultConfig()
//	cfg.Writer.ChunkSize = 5000
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
)

// MissingIDPolicy controls what happens when a grouping element has no id
// attribute. The historical behavior of the converter is to keep the
// previous group's identifier in effect ("carry"); "skip" drops records
// until the next identified group is seen.
type MissingIDPolicy string

const (
	// MissingIDCarry keeps the previous grouping identifier in effect
	MissingIDCarry MissingIDPolicy = "carry"
	// MissingIDSkip drops records until the next identified group
	MissingIDSkip MissingIDPolicy = "skip"
)

// Config is the unified configuration structure for a conversion run
type Config struct {
	// Parser settings control record boundary detection
	Parser ParserConfig `yaml:"parser" json:"parser"`

	// Writer settings control chunking and the final columnar write
	Writer WriterConfig `yaml:"writer" json:"writer"`

	// Logging settings for the structured logger
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ParserConfig contains streaming parser settings
type ParserConfig struct {
	// GroupTag is the element establishing an identifier context
	GroupTag string `yaml:"group_tag" json:"group_tag"`
	// RecordTag is the element whose subtree becomes one output row
	RecordTag string `yaml:"record_tag" json:"record_tag"`
	// MissingID selects the policy for grouping elements without an id
	MissingID MissingIDPolicy `yaml:"missing_id" json:"missing_id"`
}

// WriterConfig contains chunked writer settings
type WriterConfig struct {
	// ChunkSize is the number of records per intermediate file
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ChunkFormat selects the intermediate file format (parquet or arrow)
	ChunkFormat string `yaml:"chunk_format" json:"chunk_format"`
	// Compression selects the parquet codec (snappy, zstd, gzip, none)
	Compression string `yaml:"compression" json:"compression"`
	// TempDir overrides where intermediate chunk files are written.
	// Empty means the output file's directory.
	TempDir string `yaml:"temp_dir" json:"temp_dir"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level       string   `yaml:"level" json:"level"`
	Encoding    string   `yaml:"encoding" json:"encoding"`
	OutputPaths []string `yaml:"output_paths" json:"output_paths"`
	Development bool     `yaml:"development" json:"development"`
}

// DefaultConfig returns a configuration matching the historical converter:
// situation/situationRecord boundaries, 10000-record chunks, parquet
// intermediates with snappy compression, and carry-forward on missing ids.
func DefaultConfig() *Config {
	return &Config{
		Parser: ParserConfig{
			GroupTag:  "situation",
			RecordTag: "situationRecord",
			MissingID: MissingIDCarry,
		},
		Writer: WriterConfig{
			ChunkSize:   10000,
			ChunkFormat: "parquet",
			Compression: "snappy",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Parser.GroupTag == "" {
		return fmt.Errorf("parser.group_tag must not be empty")
	}
	if c.Parser.RecordTag == "" {
		return fmt.Errorf("parser.record_tag must not be empty")
	}
	if c.Parser.GroupTag == c.Parser.RecordTag {
		return fmt.Errorf("parser.group_tag and parser.record_tag must differ")
	}
	switch c.Parser.MissingID {
	case MissingIDCarry, MissingIDSkip:
	default:
		return fmt.Errorf("parser.missing_id must be %q or %q, got %q",
			MissingIDCarry, MissingIDSkip, c.Parser.MissingID)
	}

	if c.Writer.ChunkSize <= 0 {
		return fmt.Errorf("writer.chunk_size must be positive, got %d", c.Writer.ChunkSize)
	}
	switch c.Writer.ChunkFormat {
	case "parquet", "arrow":
	default:
		return fmt.Errorf("writer.chunk_format must be parquet or arrow, got %q", c.Writer.ChunkFormat)
	}
	switch c.Writer.Compression {
	case "snappy", "zstd", "gzip", "none":
	default:
		return fmt.Errorf("writer.compression must be snappy, zstd, gzip or none, got %q", c.Writer.Compression)
	}

	return nil
}
