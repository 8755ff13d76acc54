// Package xmlstream provides the streaming parser/flattener for datexflat.
// It walks a large XML document token by token, recognizes grouping and
// record boundaries, and produces a lazy sequence of flat records without
// holding the whole document in memory.
//
// # Overview
//
// Road-event feeds (DATEX II situation publications) nest situation
// records arbitrarily deep. The parser builds a transient element tree for
// one grouping subtree at a time, flattens each record subtree into a flat
// string mapping with underscore-joined keys, and releases the subtree
// before moving on. Peak memory is bounded by the largest single grouping
// subtree, not the document.
//
// # Basic Usage
//
//	src, err := xmlstream.NewSource("feed.xml", cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
//	for {
//	    rec, err := src.Next()
//	    if err != nil {
//	        return err
//	    }
//	    if rec == nil {
//	        break // end of stream
//	    }
//	    // consume rec
//	}
package xmlstream

import (
	"strings"
)

// Attr is a single XML attribute. Attributes keep document order so that
// flattening is deterministic.
type Attr struct {
	Name  string
	Value string
}

// Element is a transient node in the XML tree. It exists only during
// traversal of its enclosing grouping subtree and is released afterwards.
type Element struct {
	// Tag is the element name, namespace-qualified as {uri}local when the
	// element belongs to a namespace
	Tag string
	// Text is the accumulated character data of the element itself
	Text string
	// Attrs are the element's attributes in document order
	Attrs []Attr
	// Children are the direct child elements in document order
	Children []*Element
}

// Attr returns the value of the named attribute (namespace-stripped
// comparison) and whether it was present.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if StripNamespace(a.Name) == name {
			return a.Value, true
		}
	}
	return "", false
}

// Clear releases the element's subtree so it can be collected while the
// rest of the document is still being read.
func (e *Element) Clear() {
	e.Text = ""
	e.Attrs = nil
	e.Children = nil
}

// StripNamespace reduces a namespace-qualified tag of the form {uri}local
// to its local name. Unqualified tags are returned unchanged.
func StripNamespace(tag string) string {
	if tag == "" {
		return ""
	}
	if i := strings.IndexByte(tag, '}'); i >= 0 {
		return tag[i+1:]
	}
	return tag
}
