package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/kbukum/streamkit/buffer"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/pipeline"
)

func newRunCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the producer/consumer pipeline over generated integers",
		Long: `run starts the configured number of producers, each distributing --items
integers into a shared buffer, and consumers that take them one at a time
(batch size 1) or in batches. It prints what the consumers received.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.RunTask(cmd.Context(), func(ctx context.Context) error {
				return c.run(ctx, cmd)
			})
		},
	}
	flags := cmd.Flags()
	flags.Int(itemsFlag, 100, "items distributed by each producer")
	flags.Int(producersFlag, 0, "override pipeline.producers")
	flags.Int(consumersFlag, 0, "override pipeline.consumers")
	flags.Int(capacityFlag, 0, "override pipeline.capacity (0 is unbounded)")
	flags.Int(batchSizeFlag, 0, "override pipeline.batch_size")
	return cmd
}

type runTotals struct {
	items   atomic.Int64
	units   atomic.Int64
	sum     atomic.Int64
	maxUnit atomic.Int64
}

func (c *cli) run(ctx context.Context, cmd *cobra.Command) error {
	flags := cmd.Flags()
	items, _ := flags.GetInt(itemsFlag)
	pc := c.app.Cfg.Pipeline
	if flags.Changed(producersFlag) {
		pc.Producers, _ = flags.GetInt(producersFlag)
	}
	if flags.Changed(consumersFlag) {
		pc.Consumers, _ = flags.GetInt(consumersFlag)
	}
	if flags.Changed(capacityFlag) {
		pc.Capacity, _ = flags.GetInt(capacityFlag)
	}
	if flags.Changed(batchSizeFlag) {
		pc.BatchSize, _ = flags.GetInt(batchSizeFlag)
	}

	cfg := pipeline.Config{Producers: pc.Producers, Consumers: pc.Consumers, Capacity: pc.Capacity}
	opts := []pipeline.Option{
		pipeline.WithName(binaryName + "-run"),
		pipeline.WithLogger(c.app.Logger),
		pipeline.WithMetrics(c.app.Metrics),
	}
	produce := func(index int) pipeline.Producer[int] {
		return func(ctx context.Context, out buffer.Distributor[int]) error {
			for i := range items {
				if err := out.Distribute(ctx, index*items+i); err != nil {
					return err
				}
			}
			return nil
		}
	}

	var totals runTotals
	var err error
	if pc.BatchSize <= 1 {
		err = pipeline.Run(ctx, cfg, pipeline.Identity[int](), produce,
			consume(&totals, func(v int) (int, int) { return 1, v }), opts...)
	} else {
		adapter, aerr := pipeline.List[int](pc.BatchSize)
		if aerr != nil {
			return aerr
		}
		err = pipeline.Run(ctx, cfg, adapter, produce,
			consume(&totals, func(batch []int) (int, int) {
				sum := 0
				for _, v := range batch {
					sum += v
				}
				return len(batch), sum
			}), opts...)
	}
	if err != nil {
		return err
	}

	c.app.Logger.Info("pipeline demo finished", logger.Fields(
		logger.FieldItems, totals.items.Load(),
		"units", totals.units.Load(),
	))
	_, err = fmt.Fprintf(cmd.OutOrStdout(),
		"producers=%d consumers=%d capacity=%d batch=%d items=%d units=%d largest=%d sum=%d\n",
		pc.Producers, pc.Consumers, pc.Capacity, pc.BatchSize,
		totals.items.Load(), totals.units.Load(), totals.maxUnit.Load(), totals.sum.Load())
	return err
}

// consume builds consumers that fold every unit they take into t.
func consume[U any](t *runTotals, measure func(U) (items, sum int)) pipeline.ConsumerFactory[U] {
	return func(int) pipeline.Consumer[U] {
		return func(ctx context.Context, in pipeline.Iterator[U]) error {
			return pipeline.ForEach(ctx, in, func(_ context.Context, unit U) error {
				n, sum := measure(unit)
				t.items.Add(int64(n))
				t.units.Add(1)
				t.sum.Add(int64(sum))
				for {
					cur := t.maxUnit.Load()
					if int64(n) <= cur || t.maxUnit.CompareAndSwap(cur, int64(n)) {
						break
					}
				}
				return nil
			})
		}
	}
}
