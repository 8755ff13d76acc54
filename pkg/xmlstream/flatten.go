package xmlstream

import (
	"strings"
)

// Flatten collapses an element subtree into a flat mapping from
// underscore-joined, namespace-stripped key paths to string values.
//
// Each recursive call returns its own mapping; the caller merges child
// mappings explicitly, so the result depends only on the subtree. For
// every element the merge order is: child mappings in document order
// (last writer wins at equal keys), then the element's own trimmed text
// at the prefix key, then its attributes at prefix_attrname.
//
// At the subtree root the prefix is empty; root-level text and attributes
// are keyed by the root's own stripped tag name instead, so an attribute
// unit="kmh" on <situationRecord> becomes situationRecord_unit while a
// nested <speed>80</speed> becomes just speed.
func Flatten(elem *Element, prefix string) map[string]string {
	items := make(map[string]string)

	for _, child := range elem.Children {
		childKey := StripNamespace(child.Tag)
		if prefix != "" {
			childKey = prefix + "_" + childKey
		}
		for k, v := range Flatten(child, childKey) {
			items[k] = v
		}
	}

	base := prefix
	if base == "" {
		base = StripNamespace(elem.Tag)
	}

	if text := strings.TrimSpace(elem.Text); text != "" {
		items[base] = text
	}

	for _, attr := range elem.Attrs {
		items[base+"_"+StripNamespace(attr.Name)] = attr.Value
	}

	return items
}
