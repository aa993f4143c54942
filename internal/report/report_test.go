package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrinter_CountsAndSummary(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Section("Currency")
	p.Line(LevelOK, "%d payments in NGN", 12)
	p.Line(LevelWarn, "lowercase code %q", "ngn")
	p.Line(LevelFail, "3 payments without currency")
	p.Info("not counted")
	p.Summary()

	out := buf.String()
	assert.Contains(t, out, "Currency")
	assert.Contains(t, out, "12 payments in NGN")
	assert.Contains(t, out, "Summary: 1 ok, 1 warnings, 1 failures")
	assert.True(t, p.Failed())
	assert.Equal(t, 1, p.Count(LevelWarn))
	assert.Equal(t, 0, p.Count(LevelInfo))
}

func TestPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Table([]string{"column", "type"}, [][]string{{"id", "text"}, {"amount", "integer"}})
	assert.Contains(t, buf.String(), "column")
	assert.Contains(t, buf.String(), "amount")

	buf.Reset()
	p.Table([]string{"column"}, nil)
	assert.Contains(t, buf.String(), "(no rows)")
	assert.False(t, p.Failed())
}

func TestMask(t *testing.T) {
	assert.Equal(t, "sk_t"+strings.Repeat("*", 16)+"cdef", Mask("sk_test_1234567890abcdef"))
	assert.Equal(t, "******", Mask("secret"))
	assert.Equal(t, "", Mask(""))
}
