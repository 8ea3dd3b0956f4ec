package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *BuildError
		expected string
	}{
		{
			name:     "with location",
			err:      NewBuildError(KindStyle, "src/sass/main.scss", "expected \";\"").WithLocation(3, 13),
			expected: "src/sass/main.scss:3:13: expected \";\"",
		},
		{
			name:     "file only",
			err:      NewBuildError(KindScript, "src/js/app.js", "could not resolve"),
			expected: "src/js/app.js: could not resolve",
		},
		{
			name:     "message only",
			err:      NewBuildError(KindScript, "", "entry point missing"),
			expected: "entry point missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestBuildErrorNotificationParts(t *testing.T) {
	err := NewBuildError(KindStyle, "src/sass/nested/main.scss", "Undefined variable").WithLocation(2, 10)

	assert.Equal(t, "main.scss", err.ShortFile())
	assert.Equal(t, "2:10: Undefined variable", err.Summary())
	assert.Equal(t, "", NewBuildError(KindScript, "", "x").ShortFile())
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "b: c", Summary("a: b: c"))
	assert.Equal(t, "no colon", Summary(" no colon "))
	assert.Equal(t, "", Summary("trailing:"))
}

func TestBuildErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("exit status 65")
	err := NewBuildError(KindStyle, "a.scss", "failed").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestNewCodeFrame(t *testing.T) {
	source := []byte("a {\n  color: red\n  margin: 0;\n}\n")

	frame := NewCodeFrame(source, 2, 13, 1)
	require.Len(t, frame, 4)
	assert.Equal(t, "  1 | a {", frame[0])
	assert.Equal(t, "→ 2 |   color: red", frame[1])
	assert.Equal(t, "    |             ^", frame[2])
	assert.Equal(t, "  3 |   margin: 0;", frame[3])
}

func TestNewCodeFrameKeepsTabs(t *testing.T) {
	frame := NewCodeFrame([]byte("\tx = ;"), 1, 6, 0)
	require.Len(t, frame, 2)
	assert.Equal(t, "    | \t    ^", frame[1])
}

func TestNewCodeFrameOutOfRange(t *testing.T) {
	assert.Nil(t, NewCodeFrame([]byte("one line"), 5, 1, 2))
	assert.Nil(t, NewCodeFrame(nil, 1, 1, 2))
	assert.Nil(t, NewCodeFrame([]byte("x"), 0, 1, 2))
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.HasErrors())

	first := NewBuildError(KindStyle, "a.scss", "one")
	first.Timestamp = time.Unix(10, 0)
	second := NewBuildError(KindScript, "app.js", "two")
	second.Timestamp = time.Unix(5, 0)

	c.Add(first)
	c.Add(second)
	c.Add(nil)

	all := c.All()
	require.Len(t, all, 2)
	assert.Equal(t, "two", all[0].Message)
	assert.Equal(t, "one", all[1].Message)

	replacement := NewBuildError(KindStyle, "a.scss", "one again")
	c.Add(replacement)
	require.Len(t, c.All(), 2)

	assert.True(t, c.Retain(KindScript))
	assert.False(t, c.Retain(KindScript))
	assert.Equal(t, []*BuildError{replacement}, c.All())
	c.Retain(KindStyle)
	assert.False(t, c.HasErrors())
}

func TestCollectorRetain(t *testing.T) {
	c := NewCollector()
	a := NewBuildError(KindStyle, "a.scss", "one")
	b := NewBuildError(KindStyle, "b.scss", "two")
	js := NewBuildError(KindScript, "app.js", "three")
	c.Add(a)
	c.Add(b)
	c.Add(js)

	assert.False(t, c.Retain(KindStyle, "a.scss", "b.scss"))
	assert.True(t, c.Retain(KindStyle, "b.scss"))
	assert.ElementsMatch(t, []*BuildError{b, js}, c.All())

	assert.True(t, c.Retain(KindStyle))
	assert.False(t, c.Retain(KindStyle))
	assert.Equal(t, []*BuildError{js}, c.All())
}

func TestNewLineFrame(t *testing.T) {
	frame := NewLineFrame(12, 5, "let = 1")
	require.Len(t, frame, 2)
	assert.Equal(t, "→ 12 | let = 1", frame[0])
	assert.Equal(t, "     |     ^", frame[1])
	assert.Nil(t, NewLineFrame(0, 1, "x"))
}
