package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/delaneyj/statesync/property"
	"github.com/delaneyj/statesync/storage"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

func fanoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "fanout",
		Usage: "Propagate from one root to many one-way props",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  subscribersKey,
				Usage: "Largest number of props",
				Value: 100_000,
			},
			&cli.IntFlag{
				Name:  itersKey,
				Usage: "Updates per configuration",
				Value: 50,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, stop, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stop()
			return runFanout(int(cmd.Int(subscribersKey)), int(cmd.Int(itersKey)))
		},
	}
}

func runFanout(limit, iters int) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"props", "updates", "time", "per update", "deliveries/ms"})

	for n := 10; n <= limit; n *= 10 {
		local := storage.NewLocal(storage.WithProp("src", 0))
		props := make([]property.Property[int], 0, n)
		for i := 0; i < n; i++ {
			p, err := storage.Prop[int](local, "src", nil, "")
			if err != nil {
				return err
			}
			props = append(props, p)
		}

		start := time.Now()
		for i := 1; i <= iters; i++ {
			local.Set("src", i)
		}
		duration := time.Since(start)

		if got := props[len(props)-1].GetUnmonitored(); got != iters {
			return fmt.Errorf("fanout %d: last prop has %d, want %d", n, got, iters)
		}

		rate := float64(n*iters) / (float64(duration) / float64(time.Millisecond))
		table.Append([]string{
			humanize.Comma(int64(n)),
			humanize.Comma(int64(iters)),
			fmt.Sprint(duration),
			fmt.Sprint(duration / time.Duration(iters)),
			humanize.Comma(int64(rate)),
		})

		for _, p := range props {
			p.AboutToBeDeleted()
		}
		if err := local.Clear(); err != nil {
			return err
		}
	}

	table.Render()
	return nil
}
