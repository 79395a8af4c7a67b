package main

import (
	"context"
	"os"
	"runtime/pprof"

	"github.com/delaneyj/statesync/config"
	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/metrics"
	"github.com/urfave/cli/v3"
)

const (
	configKey      = "config"
	cpuProfileKey  = "cpuprofile"
	widthKey       = "width"
	depthKey       = "depth"
	itersKey       = "iters"
	subscribersKey = "subscribers"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Measure and demonstrate statesync propagation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  configKey,
				Usage: "YAML config file",
			},
			&cli.StringFlag{
				Name:  cpuProfileKey,
				Usage: "Write a CPU profile to this file",
			},
		},
		Commands: []*cli.Command{
			chainCommand(),
			fanoutCommand(),
			demoCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		console.Error("benchmark failed", "error", err)
		os.Exit(1)
	}
}

// setup loads the config and installs the logger and metrics it describes.
// The returned func stops profiling, if any.
func setup(cmd *cli.Command) (config.Config, func(), error) {
	cfg := config.Default()
	if path := cmd.String(configKey); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	logger, err := cfg.Log.Logger(os.Stderr)
	if err != nil {
		return cfg, nil, err
	}
	console.SetLogger(logger)
	metrics.SetDefault(metrics.New(cfg.Metrics.Options()...))

	stop := func() {}
	if path := cmd.String(cpuProfileKey); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return cfg, nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return cfg, nil, err
		}
		stop = func() {
			pprof.StopCPUProfile()
			f.Close()
		}
	}
	return cfg, stop, nil
}
