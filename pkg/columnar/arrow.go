// Package columnar provides the Arrow IPC implementation
package columnar

import (
	"bytes"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/roadwatch/datexflat/pkg/errors"
	"github.com/roadwatch/datexflat/pkg/models"
)

// arrowWriter implements Writer for the Arrow IPC file format
type arrowWriter struct {
	config         *WriterConfig
	arrowSchema    *arrow.Schema
	fileWriter     *ipc.FileWriter
	recordBuilder  *array.RecordBuilder
	recordsWritten int64
	currentBatch   int
}

func newArrowWriter(w io.Writer, config *WriterConfig) (*arrowWriter, error) {
	arrowSchema := StringSchema(config.Columns)
	mem := memory.NewGoAllocator()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(arrowSchema), ipc.WithAllocator(mem))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create Arrow writer")
	}

	return &arrowWriter{
		config:        config,
		arrowSchema:   arrowSchema,
		fileWriter:    fw,
		recordBuilder: array.NewRecordBuilder(mem, arrowSchema),
	}, nil
}

func (aw *arrowWriter) WriteRecord(record *models.Record) error {
	appendRow(aw.recordBuilder, aw.arrowSchema, record)
	aw.currentBatch++

	if aw.currentBatch >= aw.config.BatchSize {
		return aw.flushBatch()
	}
	return nil
}

func (aw *arrowWriter) WriteRecords(records []*models.Record) error {
	for _, record := range records {
		if err := aw.WriteRecord(record); err != nil {
			return err
		}
	}
	return nil
}

func (aw *arrowWriter) Flush() error {
	return aw.flushBatch()
}

func (aw *arrowWriter) Close() error {
	if err := aw.flushBatch(); err != nil {
		return err
	}
	if err := aw.fileWriter.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close Arrow writer")
	}
	return nil
}

func (aw *arrowWriter) Format() Format {
	return Arrow
}

func (aw *arrowWriter) RecordsWritten() int64 {
	return aw.recordsWritten
}

func (aw *arrowWriter) flushBatch() error {
	if aw.currentBatch == 0 {
		return nil
	}

	record := aw.recordBuilder.NewRecord()
	defer record.Release()

	if err := aw.fileWriter.Write(record); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record batch")
	}

	aw.recordsWritten += int64(aw.currentBatch)
	aw.currentBatch = 0
	return nil
}

// arrowReader implements Reader for the Arrow IPC file format
type arrowReader struct {
	fileReader   *ipc.FileReader
	columns      []string
	currentBatch arrow.Record
	currentRow   int
}

func newArrowReader(r io.Reader) (*arrowReader, error) {
	// The IPC file format needs a seekable reader for its footer
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read Arrow data")
	}

	fr, err := ipc.NewFileReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open Arrow file")
	}

	return &arrowReader{
		fileReader: fr,
		columns:    schemaColumns(fr.Schema()),
	}, nil
}

func (ar *arrowReader) ReadRecords() ([]*models.Record, error) {
	var records []*models.Record
	for {
		record, err := ar.Next()
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

func (ar *arrowReader) Next() (*models.Record, error) {
	if ar.currentBatch == nil || ar.currentRow >= int(ar.currentBatch.NumRows()) {
		batch, err := ar.fileReader.Read()
		if err == io.EOF {
			ar.currentBatch = nil
			return nil, nil // EOF
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read record batch")
		}
		ar.currentBatch = batch
		ar.currentRow = 0
	}

	record := rowToRecord(ar.currentBatch, ar.currentRow)
	ar.currentRow++
	return record, nil
}

func (ar *arrowReader) Close() error {
	return ar.fileReader.Close()
}

func (ar *arrowReader) Format() Format {
	return Arrow
}

func (ar *arrowReader) Columns() []string {
	return ar.columns
}
