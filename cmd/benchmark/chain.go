package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/property"
	"github.com/delaneyj/statesync/registry"
	"github.com/delaneyj/statesync/storage"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
)

var (
	ww = []int{1, 10, 100}
	hh = []int{1, 10, 100}
)

// sink counts the values reaching the end of a chain.
type sink struct {
	id   registry.ID
	seen int
}

func newSink() *sink {
	s := &sink{id: registry.MakeID()}
	registry.Add(s)
	return s
}

func (s *sink) ID() registry.ID { return s.id }
func (s *sink) HasChanged(any)  { s.seen++ }
func (s *sink) close()          { registry.Delete(s.id) }

func chainCommand() *cli.Command {
	return &cli.Command{
		Name:  "chain",
		Usage: "Propagate through chains of two-way links",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  itersKey,
				Usage: "Updates per configuration",
				Value: 100,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, stop, err := setup(cmd)
			if err != nil {
				return err
			}
			defer stop()
			return runChains(int(cmd.Int(itersKey)))
		},
	}
}

func runChains(iters int) error {
	tbl := table.NewWriter()
	tbl.SetTitle("Link chains")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max", "delivered"})

	for _, w := range ww {
		for _, h := range hh {
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			local := storage.NewLocal(storage.WithProp("src", 0))
			src, err := storage.Link[int](local, "src", nil, "")
			if err != nil {
				return err
			}
			nodes := []property.Node{src}
			s := newSink()
			for i := 0; i < w; i++ {
				var last property.Property[int] = src
				for j := 0; j < h; j++ {
					var owner registry.Subscriber
					if j == h-1 {
						owner = s
					}
					if last, err = last.CreateLink(owner, fmt.Sprintf("chain%d.%d", i, j)); err != nil {
						return err
					}
					nodes = append(nodes, last)
				}
			}

			for i := 0; i < iters; i++ {
				start := time.Now()
				src.Set(src.GetUnmonitored() + 1)
				tach.AddTime(time.Since(start))
			}

			calc := tach.Calc()
			tbl.AppendRow(table.Row{
				fmt.Sprintf("propagate: %d * %d", w, h),
				calc.Time.Avg,
				calc.Time.Min,
				calc.Time.P75,
				calc.Time.P99,
				calc.Time.Max,
				s.seen,
			})

			for _, n := range slices.Backward(nodes) {
				n.AboutToBeDeleted()
			}
			s.close()
			if err := local.Clear(); err != nil {
				return err
			}
			console.Debug("chain done", "width", w, "depth", h, "registered", registry.NumberOfSubscribers())
		}
	}

	tbl.Render()
	return nil
}
