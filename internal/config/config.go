// Package config defines the CLI structure and configuration for padbridge.
package config

import (
	"github.com/padbridge/padbridge/internal/cmd"
)

type Log struct {
	Level   string `help:"Log level: trace, debug, info, warn, error" default:"info" env:"PADBRIDGE_LOG_LEVEL"`
	File    string `help:"Log file path (default: none; logs only to console)" env:"PADBRIDGE_LOG_FILE"`
	RawFile string `help:"Raw serial traffic log file path (default: none)" env:"PADBRIDGE_LOG_RAW_FILE"`
}

// CLI is the root command structure for Kong CLI parsing.
type CLI struct {
	Log `embed:"" prefix:"log."`

	Config string `help:"Config file (JSON, YAML or TOML)" type:"path" env:"PADBRIDGE_CONFIG"`

	Serve cmd.Serve `cmd:"" default:"withargs" help:"Start the bridge"`
	Ports cmd.Ports `cmd:"" help:"List serial ports usable as the device"`
	Send  cmd.Send  `cmd:"" help:"Send command lines to a running bridge"`
}
