// posprover answers proof-of-space challenges against local plot files.
//
// Usage:
//
//	posprover [flags] info
//	posprover [flags] qualities <challenge-hex>
//	posprover [flags] proof <challenge-hex> [--index N]
//
// Plots come from repeated --plot flags or from the config file named by
// --config or POSPROVER_CONFIG. Plots are queried concurrently.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/chuwt/posprover/internal/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	cfg    *config.Config
	index  int
	logger *slog.Logger
	out    io.Writer
}

func run(args []string, stdout, stderr io.Writer) error {
	var (
		configPath string
		plots      []string
		workers    int
		parallel   bool
		logLevel   string
		index      int
	)
	flagSet := pflag.NewFlagSet("posprover", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config (default: $"+config.EnvVar+")")
	flagSet.StringArrayVar(&plots, "plot", nil, "plot file to query; repeatable, overrides the config")
	flagSet.IntVar(&workers, "workers", 0, "plots queried at once (default: config or number of CPUs)")
	flagSet.BoolVar(&parallel, "parallel", true, "fetch the top levels of a full proof concurrently")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default: config or info)")
	flagSet.IntVar(&index, "index", 0, "proof index for the proof command")
	flagSet.Usage = func() { printUsage(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(configPath, plots)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if flagSet.Changed("parallel") {
		cfg.Parallel = parallel
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	o := &options{cfg: cfg, index: index, logger: logger, out: stdout}
	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return errors.New("missing command")
	}
	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "info":
		if len(cmdArgs) != 0 {
			return fmt.Errorf("info takes no arguments")
		}
		return runInfo(o)
	case "qualities":
		challenge, err := challengeArg(cmdArgs)
		if err != nil {
			return err
		}
		return runQualities(o, challenge)
	case "proof":
		challenge, err := challengeArg(cmdArgs)
		if err != nil {
			return err
		}
		return runProof(o, challenge)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// loadConfig reads --config, or the environment when neither --config nor
// --plot is given. --plot replaces only the plot list.
func loadConfig(path string, plots []string) (*config.Config, error) {
	if path == "" && len(plots) == 0 {
		return config.Load()
	}
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.ReadFile(path); err != nil {
			return nil, err
		}
	}
	if len(plots) > 0 {
		cfg.Plots = plots
	}
	if err := cfg.Validate(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, err
	}
	return cfg, nil
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `Usage: posprover [flags] <command> [args]

Commands:
  info                      print plot headers
  qualities <challenge-hex> print the qualities of every plot for a challenge
  proof <challenge-hex>     print and verify the full proof at --index

Flags:
%s`, flagSet.FlagUsages())
}
