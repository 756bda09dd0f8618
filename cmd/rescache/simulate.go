package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/skipor/rescache"
	"github.com/skipor/rescache/cmd/rescache/config"
	"github.com/skipor/rescache/log"
)

var printMetrics bool

func init() {
	cmd := newSimulateCmd()
	flags := cmd.Flags()
	load := &flagConf.Load
	flags.IntVar(&load.Workers, "workers", 0, "number of page workers")
	flags.IntVar(&load.Sessions, "sessions", 0, "number of cache sessions")
	flags.IntVar(&load.Requests, "requests", 0, "requests per worker")
	flags.IntVar(&load.Resources, "resources", 0, "number of distinct resources")
	flags.StringVar(&load.MaxResourceSize, "max-resource-size", "", "max encoded resource size: 64KiB, 1MiB")
	flags.IntVar(&load.RevalidateEvery, "revalidate-every", 0, "revalidate every n-th hit of resource")
	flags.Int64Var(&load.Seed, "seed", 0, "random seed")
	flags.StringVar(&flagConf.Cache.Capacity, "cache-capacity", "", "cache capacity: 8MiB, 512KiB")
	flags.BoolVar(&flagConf.Cache.Disabled, "cache-disabled", false, "disable memory cache")
	flags.BoolVar(&printMetrics, "metrics", false, "print metrics after report")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Run synthetic page load and print cache report",
		Long: `The simulate command starts page workers. Every worker looks up resources
in document memory cache and asks document to load missed ones.

Example:
  rescache simulate --workers 8 --requests 10000 --cache-capacity 4MiB
  rescache simulate --config load.yaml --metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd)
		},
	}
}

func runSimulate(cmd *cobra.Command) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	parsed, err := config.Parse(*conf)
	if err != nil {
		return err
	}
	l := log.NewLogger(parsed.LogLevel, parsed.LogDestination)
	l.Debugf("Config: %#v", conf)
	h := &rescache.Host{Config: parsed, Log: l}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	report, err := h.Simulate(ctx)
	if report != nil {
		fmt.Fprint(cmd.OutOrStdout(), report)
		if printMetrics {
			h.WriteMetrics(cmd.OutOrStdout())
		}
	}
	return err
}
