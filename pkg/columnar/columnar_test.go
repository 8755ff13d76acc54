package columnar

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadwatch/datexflat/pkg/models"
)

func testRecords() []*models.Record {
	return []*models.Record{
		models.NewRecord("test", map[string]string{
			"situation_id": "S1",
			"speed":        "80",
		}),
		models.NewRecord("test", map[string]string{
			"situation_id": "S2",
			"cause":        "roadworks",
		}),
	}
}

func roundTrip(t *testing.T, format Format, records []*models.Record) []*models.Record {
	t.Helper()

	var buf bytes.Buffer
	writer, err := NewWriter(&buf, &WriterConfig{
		Format:      format,
		Columns:     UnionColumns(records),
		Compression: "snappy",
		BatchSize:   100,
	})
	require.NoError(t, err)
	require.NoError(t, writer.WriteRecords(records))
	require.NoError(t, writer.Close())
	assert.Equal(t, int64(len(records)), writer.RecordsWritten())

	reader, err := NewReader(bytes.NewReader(buf.Bytes()), format)
	require.NoError(t, err)
	defer reader.Close()

	got, err := reader.ReadRecords()
	require.NoError(t, err)
	return got
}

func TestWriter_ParquetRoundTrip(t *testing.T) {
	records := testRecords()
	got := roundTrip(t, Parquet, records)

	require.Len(t, got, len(records))
	for i := range records {
		assert.Equal(t, records[i].Data, got[i].Data)
	}
}

func TestWriter_ArrowRoundTrip(t *testing.T) {
	records := testRecords()
	got := roundTrip(t, Arrow, records)

	require.Len(t, got, len(records))
	for i := range records {
		assert.Equal(t, records[i].Data, got[i].Data)
	}
}

func TestWriter_MissingColumnsBecomeNulls(t *testing.T) {
	// The second record has no "speed"; the cell is null on disk and the
	// key is simply absent after reading back
	records := testRecords()
	got := roundTrip(t, Parquet, records)

	require.Len(t, got, 2)
	_, hasSpeed := got[1].Data["speed"]
	assert.False(t, hasSpeed)
	_, hasCause := got[0].Data["cause"]
	assert.False(t, hasCause)
}

func TestWriter_EmptyStringDistinctFromNull(t *testing.T) {
	records := []*models.Record{
		models.NewRecord("test", map[string]string{"a": "", "b": "x"}),
		models.NewRecord("test", map[string]string{"b": "y"}),
	}
	got := roundTrip(t, Parquet, records)

	require.Len(t, got, 2)
	v, ok := got[0].Data["a"]
	assert.True(t, ok)
	assert.Equal(t, "", v)
	_, ok = got[1].Data["a"]
	assert.False(t, ok)
}

func TestWriter_RequiresColumns(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewWriter(&buf, &WriterConfig{Format: Parquet})
	require.Error(t, err)
}

func TestWriter_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewWriter(&buf, &WriterConfig{Format: Format("orc"), Columns: []string{"a"}})
	require.Error(t, err)
}

func TestStringSchema_SortedAndNullable(t *testing.T) {
	schema := StringSchema([]string{"b", "a", "c"})

	require.Equal(t, 3, schema.NumFields())
	assert.Equal(t, "a", schema.Field(0).Name)
	assert.Equal(t, "b", schema.Field(1).Name)
	assert.Equal(t, "c", schema.Field(2).Name)
	for i := 0; i < schema.NumFields(); i++ {
		assert.True(t, schema.Field(i).Nullable)
	}
}

func TestUnionColumns(t *testing.T) {
	columns := UnionColumns(testRecords())
	assert.Equal(t, []string{"cause", "situation_id", "speed"}, columns)
}

func TestReader_ColumnsMatchSchema(t *testing.T) {
	records := testRecords()

	var buf bytes.Buffer
	writer, err := NewWriter(&buf, &WriterConfig{
		Format:  Parquet,
		Columns: UnionColumns(records),
	})
	require.NoError(t, err)
	require.NoError(t, writer.WriteRecords(records))
	require.NoError(t, writer.Close())

	reader, err := NewReader(bytes.NewReader(buf.Bytes()), Parquet)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"cause", "situation_id", "speed"}, reader.Columns())
}
