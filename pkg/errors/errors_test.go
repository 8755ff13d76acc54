package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrorTypeParse, "malformed XML input")

	assert.Equal(t, ErrorTypeParse, err.Type)
	assert.Equal(t, "parse: malformed XML input", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("unexpected EOF")
	err := Wrap(cause, ErrorTypeParse, "malformed XML input")

	require.NotNil(t, err)
	assert.Equal(t, "parse: malformed XML input: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeFile, "ignored"))
}

func TestWrapPreservesStack(t *testing.T) {
	inner := New(ErrorTypeFile, "failed to create intermediate file")
	outer := Wrap(inner, ErrorTypeInternal, "conversion failed")

	assert.Equal(t, inner.Stack, outer.Stack)
	assert.ErrorIs(t, outer, inner)
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeData, "input produced no records")
	wrapped := fmt.Errorf("run: %w", err)

	assert.True(t, IsType(err, ErrorTypeData))
	assert.True(t, IsType(wrapped, ErrorTypeData))
	assert.False(t, IsType(err, ErrorTypeParse))
	assert.False(t, IsType(fmt.Errorf("plain"), ErrorTypeData))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeFile, "failed to open").
		WithDetail("path", "feed.xml").
		WithDetail("attempt", 1)

	assert.Equal(t, "feed.xml", err.Details["path"])
	assert.Equal(t, 1, err.Details["attempt"])
}
