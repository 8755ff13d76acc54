// Package columnar provides the Parquet implementation
package columnar

import (
	"bytes"
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/roadwatch/datexflat/pkg/errors"
	"github.com/roadwatch/datexflat/pkg/models"
)

// parquetWriter implements Writer for Parquet format
type parquetWriter struct {
	config         *WriterConfig
	arrowSchema    *arrow.Schema
	fileWriter     *pqarrow.FileWriter
	recordBuilder  *array.RecordBuilder
	recordsWritten int64
	currentBatch   int
}

func newParquetWriter(w io.Writer, config *WriterConfig) (*parquetWriter, error) {
	arrowSchema := StringSchema(config.Columns)

	mem := memory.NewGoAllocator()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(parquetCompression(config.Compression)),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(mem),
	)

	// pqarrow's file writer closes its sink on Close when the sink
	// implements io.Closer; callers of this package own w's lifetime, so
	// hide any Close method from the library to keep Writer.Close from
	// closing the underlying file.
	fw, err := pqarrow.NewFileWriter(arrowSchema, struct{ io.Writer }{w}, props, arrowProps)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create Parquet writer")
	}

	return &parquetWriter{
		config:        config,
		arrowSchema:   arrowSchema,
		fileWriter:    fw,
		recordBuilder: array.NewRecordBuilder(mem, arrowSchema),
	}, nil
}

func (pw *parquetWriter) WriteRecord(record *models.Record) error {
	appendRow(pw.recordBuilder, pw.arrowSchema, record)
	pw.currentBatch++

	if pw.currentBatch >= pw.config.BatchSize {
		return pw.flushBatch()
	}
	return nil
}

func (pw *parquetWriter) WriteRecords(records []*models.Record) error {
	for _, record := range records {
		if err := pw.WriteRecord(record); err != nil {
			return err
		}
	}
	return nil
}

func (pw *parquetWriter) Flush() error {
	return pw.flushBatch()
}

func (pw *parquetWriter) Close() error {
	if err := pw.flushBatch(); err != nil {
		return err
	}
	if err := pw.fileWriter.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close Parquet writer")
	}
	return nil
}

func (pw *parquetWriter) Format() Format {
	return Parquet
}

func (pw *parquetWriter) RecordsWritten() int64 {
	return pw.recordsWritten
}

func (pw *parquetWriter) flushBatch() error {
	if pw.currentBatch == 0 {
		return nil
	}

	record := pw.recordBuilder.NewRecord()
	defer record.Release()

	if err := pw.fileWriter.WriteBuffered(record); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record batch")
	}

	pw.recordsWritten += int64(pw.currentBatch)
	pw.currentBatch = 0
	return nil
}

// parquetReader implements Reader for Parquet format
type parquetReader struct {
	fileReader   *file.Reader
	recordReader pqarrow.RecordReader
	columns      []string
	currentBatch arrow.Record
	currentRow   int
}

func newParquetReader(r io.Reader) (*parquetReader, error) {
	// Parquet needs a seekable reader; intermediate chunks are small
	// enough to buffer whole
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read Parquet data")
	}

	fr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open Parquet file")
	}

	mem := memory.NewGoAllocator()
	arrowReader, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		_ = fr.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create Arrow reader")
	}

	arrowSchema, err := arrowReader.Schema()
	if err != nil {
		_ = fr.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read Parquet schema")
	}

	rr, err := arrowReader.GetRecordReader(context.Background(), nil, nil)
	if err != nil {
		_ = fr.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create record reader")
	}

	return &parquetReader{
		fileReader:   fr,
		recordReader: rr,
		columns:      schemaColumns(arrowSchema),
	}, nil
}

func (pr *parquetReader) ReadRecords() ([]*models.Record, error) {
	var records []*models.Record
	for {
		record, err := pr.Next()
		if err != nil {
			return nil, err
		}
		if record == nil {
			break
		}
		records = append(records, record)
	}
	return records, nil
}

func (pr *parquetReader) Next() (*models.Record, error) {
	if pr.currentBatch == nil || pr.currentRow >= int(pr.currentBatch.NumRows()) {
		if !pr.recordReader.Next() {
			if err := pr.recordReader.Err(); err != nil && err != io.EOF {
				return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read record batch")
			}
			pr.currentBatch = nil
			return nil, nil // EOF
		}
		pr.currentBatch = pr.recordReader.Record()
		pr.currentRow = 0
	}

	record := rowToRecord(pr.currentBatch, pr.currentRow)
	pr.currentRow++
	return record, nil
}

func (pr *parquetReader) Close() error {
	pr.recordReader.Release()
	return pr.fileReader.Close()
}

func (pr *parquetReader) Format() Format {
	return Parquet
}

func (pr *parquetReader) Columns() []string {
	return pr.columns
}

func parquetCompression(name string) compress.Compression {
	switch name {
	case "zstd":
		return compress.Codecs.Zstd
	case "gzip":
		return compress.Codecs.Gzip
	case "none":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

// appendRow appends one record to a string record builder; columns absent
// from the record become nulls
func appendRow(builder *array.RecordBuilder, schema *arrow.Schema, record *models.Record) {
	for i, field := range schema.Fields() {
		sb := builder.Field(i).(*array.StringBuilder)
		if value, ok := record.Data[field.Name]; ok {
			sb.Append(value)
		} else {
			sb.AppendNull()
		}
	}
}

// rowToRecord converts one row of an Arrow record batch to a flat record,
// skipping null cells
func rowToRecord(batch arrow.Record, rowIdx int) *models.Record {
	data := make(map[string]string, int(batch.NumCols()))
	for i := 0; i < int(batch.NumCols()); i++ {
		col := batch.Column(i)
		if col.IsNull(rowIdx) {
			continue
		}
		if sa, ok := col.(*array.String); ok {
			data[batch.Schema().Field(i).Name] = sa.Value(rowIdx)
		}
	}
	return models.NewRecord("", data)
}

func schemaColumns(schema *arrow.Schema) []string {
	columns := make([]string, 0, schema.NumFields())
	for i := 0; i < schema.NumFields(); i++ {
		columns = append(columns, schema.Field(i).Name)
	}
	return columns
}
