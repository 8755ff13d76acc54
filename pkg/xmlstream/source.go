package xmlstream

import (
	"bufio"
	"encoding/xml"
	"io"
	"os"
	"strings"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/roadwatch/datexflat/pkg/config"
	"github.com/roadwatch/datexflat/pkg/errors"
	"github.com/roadwatch/datexflat/pkg/models"
)

// Source is a lazy, finite, non-restartable sequence of flattened records
// pulled from an XML document. It is owned by a single consumer loop and
// is not safe for concurrent use.
type Source struct {
	cfg    config.ParserConfig
	logger *zap.Logger

	path    string
	file    *os.File
	closers []io.Closer
	decoder *xml.Decoder

	// stack holds the open elements; stack[0] is the document root
	stack []*Element

	// working accumulates the current group's identifier and the fields
	// of record subtrees already emitted under it
	working map[string]string
	groupID string
	// skipping is set when the missing-id policy is "skip" and the
	// current group carries no identifier
	skipping bool

	records int64
	groups  int64
	done    bool
}

// NewSource opens the XML file at path and prepares a record sequence.
// Files ending in .gz or .zst are decompressed transparently.
func NewSource(path string, cfg config.ParserConfig, logger *zap.Logger) (*Source, error) {
	file, err := os.Open(path) //nolint:gosec // G304: path is the user's input file
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open input file")
	}

	s := &Source{
		cfg:    cfg,
		logger: logger,
		path:   path,
		file:   file,
	}

	var reader io.Reader = bufio.NewReaderSize(file, 1<<16)

	switch {
	case strings.HasSuffix(path, ".gz"):
		gr, err := kgzip.NewReader(reader)
		if err != nil {
			_ = file.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open gzip stream")
		}
		s.closers = append(s.closers, gr)
		reader = gr
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(reader)
		if err != nil {
			_ = file.Close()
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open zstd stream")
		}
		s.closers = append(s.closers, zr.IOReadCloser())
		reader = zr
	}

	s.decoder = xml.NewDecoder(reader)

	logger.Debug("xml source opened",
		zap.String("path", path),
		zap.String("group_tag", cfg.GroupTag),
		zap.String("record_tag", cfg.RecordTag))

	return s, nil
}

// Next returns the next flattened record, or (nil, nil) at end of stream.
// Malformed XML aborts the sequence with a parse error; the sequence
// cannot be restarted afterwards.
func (s *Source) Next() (*models.Record, error) {
	if s.done {
		return nil, nil
	}

	for {
		token, err := s.decoder.Token()
		if err != nil {
			if err == io.EOF {
				s.done = true
				s.logger.Debug("xml source exhausted",
					zap.Int64("groups", s.groups),
					zap.Int64("records", s.records))
				return nil, nil
			}
			s.done = true
			return nil, errors.Wrap(err, errors.ErrorTypeParse, "malformed XML input")
		}

		switch t := token.(type) {
		case xml.StartElement:
			s.pushElement(t)

		case xml.CharData:
			if n := len(s.stack); n > 0 {
				s.stack[n-1].Text += string(t)
			}

		case xml.EndElement:
			if rec := s.popElement(); rec != nil {
				return rec, nil
			}
		}
	}
}

// Close releases the underlying file and any decompression streams.
func (s *Source) Close() error {
	s.done = true
	for _, c := range s.closers {
		_ = c.Close()
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// Records returns the number of records emitted so far.
func (s *Source) Records() int64 {
	return s.records
}

// pushElement opens a new element and links it into the transient tree.
// Grouping tags establish their identifier context here, on the start
// event, so that record subtrees nested inside the group see the correct
// identifier when they close.
func (s *Source) pushElement(t xml.StartElement) {
	elem := &Element{Tag: qualifyName(t.Name)}
	if len(t.Attr) > 0 {
		elem.Attrs = make([]Attr, 0, len(t.Attr))
		for _, a := range t.Attr {
			elem.Attrs = append(elem.Attrs, Attr{Name: qualifyName(a.Name), Value: a.Value})
		}
	}

	if n := len(s.stack); n > 0 {
		parent := s.stack[n-1]
		parent.Children = append(parent.Children, elem)
	}
	s.stack = append(s.stack, elem)

	if StripNamespace(elem.Tag) == s.cfg.GroupTag {
		s.beginGroup(elem)
	}
}

// popElement closes the innermost open element. Record end tags produce
// one output row; grouping end tags release their subtree. Completed
// top-level subtrees are unlinked from the document root so memory stays
// bounded to one group.
func (s *Source) popElement() *models.Record {
	n := len(s.stack)
	if n == 0 {
		return nil
	}
	elem := s.stack[n-1]
	s.stack = s.stack[:n-1]

	var rec *models.Record
	switch StripNamespace(elem.Tag) {
	case s.cfg.GroupTag:
		// The whole grouping subtree has been consumed; release it and
		// unlink it from its parent so peak memory stays at one group
		elem.Clear()
		if n := len(s.stack); n > 0 {
			parent := s.stack[n-1]
			parent.Children = parent.Children[:len(parent.Children)-1]
		}
	case s.cfg.RecordTag:
		rec = s.emitRecord(elem)
	}

	// Unlink completed children of the document root
	if len(s.stack) == 1 {
		root := s.stack[0]
		root.Children = root.Children[:0]
	}

	return rec
}

// beginGroup resets the working record for a grouping element. A grouping
// element without an id attribute does not emit anything; depending on
// the configured policy the previous identifier either carries forward or
// subsequent records are dropped until the next identified group.
func (s *Source) beginGroup(elem *Element) {
	id, ok := elem.Attr("id")
	if !ok {
		if s.cfg.MissingID == config.MissingIDSkip {
			s.working = nil
			s.groupID = ""
			s.skipping = true
			s.logger.Warn("grouping element without id attribute, skipping its records",
				zap.String("tag", s.cfg.GroupTag))
		} else {
			s.logger.Warn("grouping element without id attribute, carrying previous identifier forward",
				zap.String("tag", s.cfg.GroupTag),
				zap.String("previous_id", s.groupID))
		}
		return
	}

	s.groups++
	s.skipping = false
	s.groupID = id
	s.working = map[string]string{s.cfg.GroupTag + "_id": id}
	s.logger.Debug("grouping context established",
		zap.String("id", id))
}

// emitRecord flattens a record subtree, merges it into the working record
// under the duplicate-key policy, and returns a snapshot row. Keys already
// present keep their first-seen value; the conflicting value is stored
// under key_alt instead.
func (s *Source) emitRecord(elem *Element) *models.Record {
	if s.skipping || s.working == nil {
		return nil
	}

	flattened := Flatten(elem, "")
	for key, value := range flattened {
		if _, exists := s.working[key]; exists {
			s.working[key+"_alt"] = value
		} else {
			s.working[key] = value
		}
	}

	data := make(map[string]string, len(s.working))
	for k, v := range s.working {
		data[k] = v
	}

	s.records++
	rec := models.NewRecord(s.path, data)
	rec.Metadata.GroupID = s.groupID

	s.logger.Debug("record emitted",
		zap.String("group_id", s.groupID),
		zap.Int("fields", len(data)))

	return rec
}

// qualifyName renders an xml.Name as {uri}local for namespaced names,
// or the bare local name otherwise.
func qualifyName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return "{" + name.Space + "}" + name.Local
}
