// Package columnar provides columnar file support for datexflat.
// Flattened records are all-string rows with a sparse column set, so every
// schema produced here is a sorted list of nullable string columns; a
// record missing a column yields a null in that row.
package columnar

import (
	"io"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/roadwatch/datexflat/pkg/errors"
	"github.com/roadwatch/datexflat/pkg/models"
)

// Format represents a columnar storage format
type Format string

const (
	// Parquet is Apache Parquet format
	Parquet Format = "parquet"
	// Arrow is Apache Arrow IPC file format
	Arrow Format = "arrow"
)

// Writer provides columnar format writing capabilities
type Writer interface {
	// WriteRecords writes records in columnar format
	WriteRecords(records []*models.Record) error
	// WriteRecord writes a single record
	WriteRecord(record *models.Record) error
	// Flush flushes any buffered data
	Flush() error
	// Close closes the writer
	Close() error
	// Format returns the columnar format
	Format() Format
	// RecordsWritten returns records written
	RecordsWritten() int64
}

// Reader provides columnar format reading capabilities
type Reader interface {
	// ReadRecords reads all remaining records
	ReadRecords() ([]*models.Record, error)
	// Next reads the next record, returning (nil, nil) at end of file
	Next() (*models.Record, error)
	// Close closes the reader
	Close() error
	// Format returns the columnar format
	Format() Format
	// Columns returns the column names in schema order
	Columns() []string
}

// WriterConfig configures columnar writers
type WriterConfig struct {
	Format      Format
	Columns     []string // column set for this file
	Compression string   // snappy, zstd, gzip or none (parquet only)
	BatchSize   int      // rows buffered per row group / record batch
}

// DefaultWriterConfig returns default writer configuration
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		Format:      Parquet,
		Compression: "snappy",
		BatchSize:   10000,
	}
}

// NewWriter creates a new columnar writer
func NewWriter(w io.Writer, config *WriterConfig) (Writer, error) {
	if config == nil {
		config = DefaultWriterConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10000
	}
	if len(config.Columns) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "columnar writer requires at least one column")
	}

	switch config.Format {
	case Parquet:
		return newParquetWriter(w, config)
	case Arrow:
		return newArrowWriter(w, config)
	default:
		return nil, errors.New(errors.ErrorTypeValidation, "unsupported columnar format: "+string(config.Format))
	}
}

// NewReader creates a new columnar reader over the full contents of r
func NewReader(r io.Reader, format Format) (Reader, error) {
	switch format {
	case Parquet:
		return newParquetReader(r)
	case Arrow:
		return newArrowReader(r)
	default:
		return nil, errors.New(errors.ErrorTypeValidation, "unsupported columnar format: "+string(format))
	}
}

// FileExtension returns the conventional file extension for a format
func FileExtension(format Format) string {
	switch format {
	case Arrow:
		return ".arrow"
	default:
		return ".parquet"
	}
}

// StringSchema builds an Arrow schema of nullable string fields from a
// column set. Columns are sorted so identical column sets always produce
// identical schemas regardless of record iteration order.
func StringSchema(columns []string) *arrow.Schema {
	sorted := make([]string, len(columns))
	copy(sorted, columns)
	sort.Strings(sorted)

	fields := make([]arrow.Field, 0, len(sorted))
	for _, name := range sorted {
		fields = append(fields, arrow.Field{
			Name:     name,
			Type:     arrow.BinaryTypes.String,
			Nullable: true,
		})
	}
	return arrow.NewSchema(fields, nil)
}

// UnionColumns returns the union of all column names across records
func UnionColumns(records []*models.Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec.Data {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}
