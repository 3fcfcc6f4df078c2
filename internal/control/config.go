package control

import (
	"encoding/json"
	"time"
)

// Config represents the control channel listeners of the serve command.
type Config struct {
	WSAddr       string        `help:"WebSocket control listen address (empty disables)" default:":5353" env:"PADBRIDGE_WS_ADDR"`
	TCPAddr      string        `help:"TCP line control listen address (empty disables)" default:"127.0.0.1:5354" env:"PADBRIDGE_TCP_ADDR"`
	WriteTimeout time.Duration `help:"Write deadline for messages sent to control clients" default:"5s" env:"PADBRIDGE_WRITE_TIMEOUT"`
}

const defaultWriteTimeout = 5 * time.Second

func (c Config) writeTimeout() time.Duration {
	if c.WriteTimeout <= 0 {
		return defaultWriteTimeout
	}
	return c.WriteTimeout
}

// ErrorLine renders msg the way the control channel reports errors.
func ErrorLine(msg string) string {
	problem := map[string]string{"error": msg}
	b, _ := json.Marshal(problem)
	return string(b)
}
