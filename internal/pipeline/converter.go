// Package pipeline provides the conversion engine for datexflat,
// orchestrating the flow from the streaming XML source to the final
// deduplicated columnar table.
//
// The converter pulls records one at a time, buffers them into fixed-size
// chunks, persists each chunk as an intermediate columnar file, then merges
// all intermediates into one output file with exact-duplicate rows removed.
// Peak memory is bounded by one chunk during conversion and by the full
// table during the final merge pass.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/roadwatch/datexflat/pkg/columnar"
	"github.com/roadwatch/datexflat/pkg/config"
	"github.com/roadwatch/datexflat/pkg/errors"
	"github.com/roadwatch/datexflat/pkg/models"
)

// RecordSource is the pull interface the converter consumes. Next returns
// (nil, nil) at end of stream.
type RecordSource interface {
	Next() (*models.Record, error)
}

// Converter turns a record sequence into one deduplicated columnar file
type Converter struct {
	cfg    *config.Config
	logger *zap.Logger

	// Metrics
	recordsProcessed  int64
	chunksWritten     int64
	duplicatesDropped int64
	duration          time.Duration
}

// NewConverter creates a converter with the given configuration
func NewConverter(cfg *config.Config, logger *zap.Logger) *Converter {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Converter{
		cfg:    cfg,
		logger: logger,
	}
}

// Run consumes the source to exhaustion and writes the final table to
// outputPath. Intermediate chunk files are created next to the output (or
// in the configured temp dir) and removed again; removal on the failure
// path is best-effort.
func (c *Converter) Run(ctx context.Context, source RecordSource, outputPath string) error {
	startTime := time.Now()
	defer func() { c.duration = time.Since(startTime) }()

	chunkFormat := columnar.Format(c.cfg.Writer.ChunkFormat)
	tempDir := c.cfg.Writer.TempDir
	if tempDir == "" {
		tempDir = filepath.Dir(outputPath)
	}

	c.logger.Info("starting conversion",
		zap.String("output", outputPath),
		zap.Int("chunk_size", c.cfg.Writer.ChunkSize),
		zap.String("chunk_format", string(chunkFormat)))

	var tempFiles []string
	defer func() {
		// Best-effort removal of intermediates that survived a failure
		for _, path := range tempFiles {
			if err := os.Remove(path); err == nil {
				c.logger.Warn("removed leftover intermediate file", zap.String("path", path))
			}
		}
	}()

	chunk := make([]*models.Record, 0, c.cfg.Writer.ChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "conversion canceled")
		}

		record, err := source.Next()
		if err != nil {
			return err
		}
		if record == nil {
			break
		}
		if len(record.Data) == 0 {
			continue
		}

		chunk = append(chunk, record)
		c.recordsProcessed++

		if len(chunk) >= c.cfg.Writer.ChunkSize {
			path, err := c.writeChunk(len(tempFiles), chunk, tempDir, chunkFormat)
			if err != nil {
				return err
			}
			tempFiles = append(tempFiles, path)
			chunk = chunk[:0]
		}
	}

	// Handle remaining partial chunk
	if len(chunk) > 0 {
		path, err := c.writeChunk(len(tempFiles), chunk, tempDir, chunkFormat)
		if err != nil {
			return err
		}
		tempFiles = append(tempFiles, path)
	}

	if len(tempFiles) == 0 {
		return errors.New(errors.ErrorTypeData, "input produced no records")
	}

	if err := c.merge(tempFiles, chunkFormat, outputPath); err != nil {
		return err
	}

	// Clean up intermediate files
	for _, path := range tempFiles {
		if err := os.Remove(path); err != nil {
			c.logger.Warn("failed to delete intermediate file",
				zap.String("path", path), zap.Error(err))
			continue
		}
		c.logger.Debug("deleted intermediate file", zap.String("path", path))
	}
	tempFiles = nil

	c.logger.Info("conversion completed",
		zap.String("output", outputPath),
		zap.Int64("records", c.recordsProcessed),
		zap.Int64("chunks", c.chunksWritten),
		zap.Int64("duplicates_dropped", c.duplicatesDropped),
		zap.Duration("duration", time.Since(startTime)))

	return nil
}

// Metrics returns conversion counters
func (c *Converter) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"records_processed":  c.recordsProcessed,
		"chunks_written":     c.chunksWritten,
		"duplicates_dropped": c.duplicatesDropped,
		"duration":           c.duration,
	}
}

// writeChunk persists one chunk as an intermediate columnar file and
// returns its path. The chunk's column set is the union of keys within
// the chunk only; the merge pass widens rows to the global column set.
func (c *Converter) writeChunk(index int, records []*models.Record, dir string, format columnar.Format) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("temp_chunk_%d%s", index, columnar.FileExtension(format)))

	f, err := os.Create(path) //nolint:gosec // G304: path is derived from the output location
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create intermediate file")
	}

	writer, err := columnar.NewWriter(f, &columnar.WriterConfig{
		Format:      format,
		Columns:     columnar.UnionColumns(records),
		Compression: c.cfg.Writer.Compression,
		BatchSize:   c.cfg.Writer.ChunkSize,
	})
	if err != nil {
		_ = f.Close()
		return "", err
	}

	if err := writer.WriteRecords(records); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := writer.Close(); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to close intermediate file")
	}

	c.chunksWritten++
	c.logger.Info("saved chunk",
		zap.Int("chunk", index+1),
		zap.Int("records", len(records)),
		zap.String("path", path))

	return path, nil
}

// merge reads every intermediate file back, concatenates them in creation
// order, removes exact-duplicate rows, and writes the final Parquet table.
func (c *Converter) merge(tempFiles []string, chunkFormat columnar.Format, outputPath string) error {
	var rows []*models.Record
	for _, path := range tempFiles {
		chunkRows, err := c.readChunk(path, chunkFormat)
		if err != nil {
			return err
		}
		rows = append(rows, chunkRows...)
	}

	columns := columnar.UnionColumns(rows)
	deduped := dedupRows(rows, columns)
	c.duplicatesDropped = int64(len(rows) - len(deduped))

	c.logger.Debug("merged chunks",
		zap.Int("rows", len(rows)),
		zap.Int("unique_rows", len(deduped)),
		zap.Int("columns", len(columns)))

	f, err := os.Create(outputPath) //nolint:gosec // G304: path is the user's output file
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output file")
	}

	writer, err := columnar.NewWriter(f, &columnar.WriterConfig{
		Format:      columnar.Parquet,
		Columns:     columns,
		Compression: c.cfg.Writer.Compression,
		BatchSize:   c.cfg.Writer.ChunkSize,
	})
	if err != nil {
		_ = f.Close()
		return err
	}

	if err := writer.WriteRecords(deduped); err != nil {
		_ = f.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close output file")
	}

	return nil
}

func (c *Converter) readChunk(path string, format columnar.Format) ([]*models.Record, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path was created by writeChunk
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open intermediate file")
	}
	defer f.Close()

	reader, err := columnar.NewReader(f, format)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return reader.ReadRecords()
}

// dedupRows removes rows whose every column matches an earlier row,
// preserving first occurrences in order. Rows are compared through a
// 128-bit hash of their canonical encoding over the global column set;
// absent columns encode distinctly from empty strings.
func dedupRows(rows []*models.Record, columns []string) []*models.Record {
	seen := make(map[xxh3.Uint128]struct{}, len(rows))
	deduped := make([]*models.Record, 0, len(rows))

	var buf bytes.Buffer
	for _, row := range rows {
		buf.Reset()
		for _, col := range columns {
			if value, ok := row.Data[col]; ok {
				buf.WriteByte(1)
				buf.WriteString(value)
			} else {
				buf.WriteByte(0)
			}
			buf.WriteByte(2)
		}

		key := xxh3.Hash128(buf.Bytes())
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, row)
	}

	return deduped
}
