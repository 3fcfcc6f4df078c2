package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRawLogger(t *testing.T) {
	var buf bytes.Buffer
	r := NewRaw(&buf)
	r.Log("tx", []byte{0x00, 0x04, 0x08})
	r.Log("rx", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "tx 00 04 08"), lines[0])

	// nil writer discards
	NewRaw(nil).Log("tx", []byte{1})
}
