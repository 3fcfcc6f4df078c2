package log

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// RawLogger records raw serial traffic. A RawLogger created with a nil writer
// discards everything.
type RawLogger interface {
	// Log records data travelling in the given direction ("tx" or "rx").
	Log(dir string, data []byte)
}

type rawLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewRaw returns a RawLogger writing one hex line per call to w.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w}
}

func (r *rawLogger) Log(dir string, data []byte) {
	if r.w == nil || len(data) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.w, "%s %s % x\n", time.Now().Format("15:04:05.000000"), dir, data)
}
