package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/padbridge/padbridge/internal/config"
	"github.com/padbridge/padbridge/internal/configpaths"
	"github.com/padbridge/padbridge/internal/log"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
	"golang.org/x/term"
)

func main() {
	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := configpaths.ConfigCandidatePaths(userCfg)

	var cli config.CLI
	ctx := kong.Parse(&cli,
		kong.Name("padbridge"),
		kong.Description(Description()),
		kong.UsageOnError(),
		kong.ConfigureHelp(helpOptions()),
		// Load configuration from JSON/YAML/TOML in priority order; flags/env override config values.
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	logger, closeFiles, err := log.SetupLogger(cli.Log.Level, cli.Log.File)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to setup logger:", err)
		os.Exit(2)
	}
	defer func() {
		for _, c := range closeFiles {
			_ = c.Close()
		}
	}()

	rawLogger := setupRawLogger(&cli, logger, &closeFiles)

	ctx.Bind(logger)
	ctx.BindTo(rawLogger, (*log.RawLogger)(nil))

	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}

func findUserConfig(args []string) string {
	for i, a := range args {
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("PADBRIDGE_CONFIG")
}

func setupRawLogger(cli *config.CLI, logger *slog.Logger, closeFiles *[]io.Closer) log.RawLogger {
	if cli.Log.RawFile != "" {
		f, err := os.OpenFile(cli.Log.RawFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Error("failed to open raw log file", "file", cli.Log.RawFile, "error", err)
			return log.NewRaw(nil)
		}
		*closeFiles = append(*closeFiles, f)
		return log.NewRaw(f)
	}
	if log.ParseLevel(cli.Log.Level) == log.LevelTrace {
		return log.NewRaw(os.Stdout)
	}
	return log.NewRaw(nil)
}

// helpOptions compacts the help output on narrow terminals.
func helpOptions() kong.HelpOptions {
	opts := kong.HelpOptions{}
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return opts
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return opts
	}
	opts.WrapUpperBound = width
	opts.Compact = width < 100
	return opts
}
