package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"lockfree/infra/config"
	"lockfree/infra/logging"
	"lockfree/infra/memory"
)

var configPath string

var cmdRoot = &cobra.Command{
	Use:           "lockfree",
	Short:         "Lock-free stack and queue with epoch-based reclamation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cmdRoot.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	cmdRoot.AddGroup(
		&cobra.Group{ID: "run", Title: "Run"},
		&cobra.Group{ID: "inspect", Title: "Inspect"},
	)
	cmdRoot.AddCommand(cmdServe, cmdStress, cmdReports)
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lockfree:", err)
		os.Exit(1)
	}
}

// env is what every subcommand starts from.
type env struct {
	cfg       *config.Config
	log       *slog.Logger
	collector *memory.Collector
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(os.Stderr, cfg.Log.Format, level)
	if err != nil {
		return nil, err
	}

	collector := memory.NewCollector(memory.Config{
		RingSize:     cfg.Memory.RingSize,
		CollectEvery: cfg.Memory.CollectEvery,
	})

	return &env{cfg: cfg, log: log, collector: collector}, nil
}
