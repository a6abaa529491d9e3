package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressPrinterInProgress(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)

	p.observe(0, 0, "file.zip (42%)")

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\r"))
	assert.Contains(t, out, "file.zip (42%)")
	assert.NotContains(t, out, "\n")
}

func TestProgressPrinterTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf)

	p.observe(3, 10, "file.zip")

	out := buf.String()
	assert.Contains(t, out, "[3/10]")
	assert.Contains(t, out, "file.zip")
	assert.True(t, strings.HasSuffix(out, "\n"))
}
