package xmlstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripNamespace(t *testing.T) {
	assert.Equal(t, "situationRecord", StripNamespace("{http://example.org/ns}situationRecord"))
	assert.Equal(t, "situationRecord", StripNamespace("situationRecord"))
	assert.Equal(t, "", StripNamespace(""))
}

func TestFlatten_KeyStability(t *testing.T) {
	// <record><a><b><c>v</c></b></a></record> flattens to a_b_c = "v"
	root := &Element{
		Tag: "record",
		Children: []*Element{
			{Tag: "a", Children: []*Element{
				{Tag: "b", Children: []*Element{
					{Tag: "c", Text: "v"},
				}},
			}},
		},
	}

	flattened := Flatten(root, "")
	assert.Equal(t, map[string]string{"a_b_c": "v"}, flattened)
}

func TestFlatten_Idempotent(t *testing.T) {
	root := &Element{
		Tag:   "record",
		Attrs: []Attr{{Name: "unit", Value: "kmh"}},
		Children: []*Element{
			{Tag: "speed", Text: "80"},
			{Tag: "direction", Text: "north"},
		},
	}

	first := Flatten(root, "")
	second := Flatten(root, "")
	assert.Equal(t, first, second)
}

func TestFlatten_NamespaceStripped(t *testing.T) {
	root := &Element{
		Tag: "{http://example.org/ns}situationRecord",
		Children: []*Element{
			{Tag: "{http://example.org/ns}speed", Text: "80"},
		},
	}

	flattened := Flatten(root, "")
	assert.Equal(t, map[string]string{"speed": "80"}, flattened)
}

func TestFlatten_RootAttributesAndText(t *testing.T) {
	// Root-level text and attributes are keyed by the root's own tag name
	root := &Element{
		Tag:   "situationRecord",
		Text:  "  free text  ",
		Attrs: []Attr{{Name: "unit", Value: "kmh"}, {Name: "version", Value: "2"}},
	}

	flattened := Flatten(root, "")
	assert.Equal(t, map[string]string{
		"situationRecord":         "free text",
		"situationRecord_unit":    "kmh",
		"situationRecord_version": "2",
	}, flattened)
}

func TestFlatten_SiblingCollisionLastWins(t *testing.T) {
	// Two siblings with the same tag collide at the same key; the later
	// one in document order wins within a single flatten
	root := &Element{
		Tag: "record",
		Children: []*Element{
			{Tag: "a", Text: "1"},
			{Tag: "a", Text: "2"},
		},
	}

	flattened := Flatten(root, "")
	assert.Equal(t, map[string]string{"a": "2"}, flattened)
}

func TestFlatten_TextAfterChildrenAtSamePrefix(t *testing.T) {
	// An element's own text lands at the prefix key after its children
	// are folded in, overwriting a child value mapped to the same key
	root := &Element{
		Tag: "record",
		Children: []*Element{
			{
				Tag:  "a",
				Text: "outer",
				Children: []*Element{
					{Tag: "b", Text: "inner"},
				},
			},
		},
	}

	flattened := Flatten(root, "")
	require.Equal(t, "outer", flattened["a"])
	require.Equal(t, "inner", flattened["a_b"])
}

func TestFlatten_NestedAttributes(t *testing.T) {
	root := &Element{
		Tag: "record",
		Children: []*Element{
			{
				Tag:   "speed",
				Text:  "80",
				Attrs: []Attr{{Name: "unit", Value: "kmh"}},
			},
		},
	}

	flattened := Flatten(root, "")
	assert.Equal(t, map[string]string{
		"speed":      "80",
		"speed_unit": "kmh",
	}, flattened)
}

func TestFlatten_WhitespaceOnlyTextIgnored(t *testing.T) {
	root := &Element{
		Tag:  "record",
		Text: "\n\t  ",
		Children: []*Element{
			{Tag: "a", Text: "v"},
		},
	}

	flattened := Flatten(root, "")
	assert.Equal(t, map[string]string{"a": "v"}, flattened)
}
