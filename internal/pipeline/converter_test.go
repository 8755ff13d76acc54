package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwatch/datexflat/pkg/columnar"
	"github.com/roadwatch/datexflat/pkg/config"
	"github.com/roadwatch/datexflat/pkg/errors"
	"github.com/roadwatch/datexflat/pkg/models"
	"github.com/roadwatch/datexflat/pkg/testutil"
)

// sliceSource feeds a fixed record slice to the converter
type sliceSource struct {
	records []*models.Record
	idx     int
	err     error
}

func (s *sliceSource) Next() (*models.Record, error) {
	if s.idx >= len(s.records) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, nil
	}
	rec := s.records[s.idx]
	s.idx++
	return rec, nil
}

func makeRecords(values ...string) []*models.Record {
	records := make([]*models.Record, 0, len(values))
	for _, v := range values {
		records = append(records, models.NewRecord("test", map[string]string{
			"situation_id": "S1",
			"value":        v,
		}))
	}
	return records
}

func testConfig(chunkSize int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Writer.ChunkSize = chunkSize
	return cfg
}

func readTable(t *testing.T, path string) []*models.Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	reader, err := columnar.NewReader(f, columnar.Parquet)
	require.NoError(t, err)
	defer reader.Close()

	rows, err := reader.ReadRecords()
	require.NoError(t, err)
	return rows
}

func listTempChunks(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var chunks []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "temp_chunk_") {
			chunks = append(chunks, e.Name())
		}
	}
	return chunks
}

func TestConverter_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.parquet")

	source := &sliceSource{records: makeRecords("a", "b", "c", "d", "e")}
	converter := NewConverter(testConfig(2), testutil.TestLogger(t))

	require.NoError(t, converter.Run(context.Background(), source, output))

	rows := readTable(t, output)
	require.Len(t, rows, 5)
	assert.Equal(t, "a", rows[0].Data["value"])
	assert.Equal(t, "e", rows[4].Data["value"])

	metrics := converter.Metrics()
	assert.Equal(t, int64(5), metrics["records_processed"])
	assert.Equal(t, int64(3), metrics["chunks_written"]) // 2+2+1
	assert.Equal(t, int64(0), metrics["duplicates_dropped"])
}

func TestConverter_CleanupRemovesIntermediates(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.parquet")

	source := &sliceSource{records: makeRecords("a", "b", "c")}
	converter := NewConverter(testConfig(1), testutil.TestLogger(t))

	require.NoError(t, converter.Run(context.Background(), source, output))

	assert.Empty(t, listTempChunks(t, dir))
	_, err := os.Stat(output)
	assert.NoError(t, err)
}

func TestConverter_DeduplicatesExactRows(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.parquet")

	// Duplicates land in different chunks; only exact full-row matches
	// are removed
	source := &sliceSource{records: makeRecords("a", "b", "a", "a", "c")}
	converter := NewConverter(testConfig(2), testutil.TestLogger(t))

	require.NoError(t, converter.Run(context.Background(), source, output))

	rows := readTable(t, output)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].Data["value"])
	assert.Equal(t, "b", rows[1].Data["value"])
	assert.Equal(t, "c", rows[2].Data["value"])

	assert.Equal(t, int64(2), converter.Metrics()["duplicates_dropped"])
}

func TestConverter_ChunkMergeEquivalence(t *testing.T) {
	// The deduplicated row set is independent of the chunk size
	records := makeRecords("a", "b", "a", "c", "b", "d", "e")

	runWithChunkSize := func(chunkSize int) []*models.Record {
		dir := t.TempDir()
		output := filepath.Join(dir, "out.parquet")
		source := &sliceSource{records: records}
		converter := NewConverter(testConfig(chunkSize), testutil.TestLogger(t))
		require.NoError(t, converter.Run(context.Background(), source, output))
		return readTable(t, output)
	}

	chunked := runWithChunkSize(2)
	single := runWithChunkSize(100)

	require.Equal(t, len(single), len(chunked))
	for i := range single {
		assert.Equal(t, single[i].Data, chunked[i].Data)
	}
}

func TestConverter_SparseColumnsUnion(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.parquet")

	// Records in different chunks contribute different columns; the final
	// table holds the union with nulls for absent cells
	records := []*models.Record{
		models.NewRecord("test", map[string]string{"situation_id": "S1", "speed": "80"}),
		models.NewRecord("test", map[string]string{"situation_id": "S2", "cause": "roadworks"}),
	}
	source := &sliceSource{records: records}
	converter := NewConverter(testConfig(1), testutil.TestLogger(t))

	require.NoError(t, converter.Run(context.Background(), source, output))

	rows := readTable(t, output)
	require.Len(t, rows, 2)
	assert.Equal(t, "80", rows[0].Data["speed"])
	_, hasCause := rows[0].Data["cause"]
	assert.False(t, hasCause)
	assert.Equal(t, "roadworks", rows[1].Data["cause"])
}

func TestConverter_ArrowChunkFormat(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.parquet")

	cfg := testConfig(2)
	cfg.Writer.ChunkFormat = "arrow"

	source := &sliceSource{records: makeRecords("a", "b", "c")}
	converter := NewConverter(cfg, testutil.TestLogger(t))

	require.NoError(t, converter.Run(context.Background(), source, output))

	rows := readTable(t, output)
	require.Len(t, rows, 3)
	assert.Empty(t, listTempChunks(t, dir))
}

func TestConverter_EmptyInput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.parquet")

	source := &sliceSource{}
	converter := NewConverter(testConfig(10), testutil.TestLogger(t))

	err := converter.Run(context.Background(), source, output)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))

	// No output and no intermediates
	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, listTempChunks(t, dir))
}

func TestConverter_EmptyRecordsSkipped(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.parquet")

	records := makeRecords("a")
	records = append(records, models.NewRecord("test", map[string]string{}))
	source := &sliceSource{records: records}
	converter := NewConverter(testConfig(10), testutil.TestLogger(t))

	require.NoError(t, converter.Run(context.Background(), source, output))

	rows := readTable(t, output)
	require.Len(t, rows, 1)
}

func TestConverter_SourceErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.parquet")

	source := &sliceSource{
		records: makeRecords("a"),
		err:     errors.New(errors.ErrorTypeParse, "malformed XML input"),
	}
	converter := NewConverter(testConfig(10), testutil.TestLogger(t))

	err := converter.Run(context.Background(), source, output)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParse))

	// No final output on the failure path
	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestConverter_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.parquet")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &sliceSource{records: makeRecords("a")}
	converter := NewConverter(testConfig(10), testutil.TestLogger(t))

	err := converter.Run(ctx, source, output)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInternal))
}
