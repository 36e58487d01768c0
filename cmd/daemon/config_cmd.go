// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ManuGH/liverelay/internal/config"
	"github.com/ManuGH/liverelay/internal/version"
	"gopkg.in/yaml.v3"
)

func runConfigCLI(args []string) int {
	return configCLI(args, os.Stdout, os.Stderr)
}

func configCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  liverelay config validate [--file|-f config.yaml] [--env .env]")
	fmt.Fprintln(w, "  liverelay config dump [--file|-f config.yaml] [--env .env] [--format=yaml|json]")
}

type configFlags struct {
	file string
	env  string
}

func newConfigFlagSet(name string, stderr io.Writer, cf *configFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cf.file, "file", "", "path to YAML configuration file")
	fs.StringVar(&cf.file, "f", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&cf.env, "env", ".env", "path to dotenv file (ignored if missing)")
	return fs
}

func (cf configFlags) load() (config.Config, error) {
	return config.NewLoader(strings.TrimSpace(cf.file), strings.TrimSpace(cf.env), version.Version).Load()
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	var cf configFlags
	if err := newConfigFlagSet("liverelay config validate", stderr, &cf).Parse(args); err != nil {
		return 2
	}

	if _, err := cf.load(); err != nil {
		fmt.Fprintf(stderr, "Configuration error:\n  %v\n", err)
		return 1
	}

	source := cf.file
	if source == "" {
		source = "env+defaults"
	}
	fmt.Fprintf(stdout, "✓ %s is valid\n", source)
	return 0
}

func runConfigDump(args []string, stdout, stderr io.Writer) int {
	var cf configFlags
	fs := newConfigFlagSet("liverelay config dump", stderr, &cf)
	format := fs.String("format", "yaml", "output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := cf.load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error:\n  %v\n", err)
		return 1
	}
	effective := cfg.Redacted()

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(effective); err != nil {
			fmt.Fprintf(stderr, "Failed to encode YAML: %v\n", err)
			return 1
		}
		_ = enc.Close()
		return 0
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(effective); err != nil {
			fmt.Fprintf(stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(stderr, "Unsupported format: %s (use yaml or json)\n", *format)
		return 2
	}
}
