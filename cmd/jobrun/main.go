package main

import (
	"errors"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/rishansujesh/jobrun/internal/config"
)

type Options struct {
	Config string `short:"c" long:"config" env:"JOBRUN_CONFIG" default:"jobrun.yaml" description:"Path to the jobs and settings file"`

	Run     runCommand     `command:"run" description:"Execute every due job once, then sweep old runs"`
	RunJob  runJobCommand  `command:"run-job" description:"Execute one job now, ignoring its schedule"`
	History historyCommand `command:"history" description:"List recorded runs, newest first"`
	Migrate migrateCommand `command:"migrate" description:"Create or upgrade the run store schema"`
	Sweep   sweepCommand   `command:"sweep" description:"Delete runs older than the retention window"`
	DLQ     dlqCommand     `command:"dlq" description:"Show the newest dead-lettered failures"`
}

var opts Options

func main() {
	// flags.Default prints parse and command errors to stderr.
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

// loadConfig reads the config file. The default path may be absent; an
// explicitly chosen one must exist.
func loadConfig() (*config.Config, error) {
	return config.Load(opts.Config, opts.Config != config.DefaultPath)
}
