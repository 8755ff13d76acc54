// Package models provides the data model shared by the parser and the
// columnar writer. A Record is one flattened output row: a flat mapping
// from column name to string value, plus traceability metadata.
//
// The pipeline is single-threaded by design, so records are plain values
// with no pooling or synchronization.
package models

import (
	"time"
)

// Record represents one flattened output row
type Record struct {
	// Data maps flattened column names to string values
	Data map[string]string `json:"data"`
	// Metadata contains source and timing information
	Metadata RecordMetadata `json:"metadata"`
}

// RecordMetadata contains source, grouping, and timing information
type RecordMetadata struct {
	// Source identifies the input the record came from (file path)
	Source string `json:"source,omitempty"`
	// GroupID is the identifier of the enclosing grouping element
	GroupID string `json:"group_id,omitempty"`
	// Timestamp records when the record was produced
	Timestamp time.Time `json:"timestamp"`
}

// NewRecord creates a new record with the given source and data
func NewRecord(source string, data map[string]string) *Record {
	if data == nil {
		data = make(map[string]string)
	}
	return &Record{
		Data: data,
		Metadata: RecordMetadata{
			Source:    source,
			Timestamp: time.Now(),
		},
	}
}

// SetData sets a single field on the record
func (r *Record) SetData(key, value string) {
	if r.Data == nil {
		r.Data = make(map[string]string)
	}
	r.Data[key] = value
}

// Clone returns a deep copy of the record. The parser emits one row per
// record element by cloning the working record before merging flattened
// fields into it, so rows never alias each other's data maps.
func (r *Record) Clone() *Record {
	data := make(map[string]string, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return &Record{
		Data:     data,
		Metadata: r.Metadata,
	}
}
