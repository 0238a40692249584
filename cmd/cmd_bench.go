package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/parley-ml/parley/conversation"
	"github.com/parley-ml/parley/engine/simengine"
	"github.com/parley-ml/parley/executor"
)

type benchOptions struct {
	conversations int
	steps         int
	batchSize     int
	contextLength int
	vocabSize     int
	stepDelay     time.Duration
	logitsF16     bool
}

func newBenchCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a synthetic append/infer/fetch workload and report throughput",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.conversations, "conversations", 16, "Number of concurrent conversations")
	cmd.Flags().IntVar(&opts.steps, "steps", 64, "Tokens appended per conversation")
	cmd.Flags().IntVar(&opts.batchSize, "batch", 512, "Batch capacity")
	cmd.Flags().IntVar(&opts.contextLength, "context", 65536, "Engine cache size in cells")
	cmd.Flags().IntVar(&opts.vocabSize, "vocab", 4096, "Logit vector length")
	cmd.Flags().DurationVar(&opts.stepDelay, "delay", 0, "Simulated decode latency per pass")
	cmd.Flags().BoolVar(&opts.logitsF16, "f16", false, "Store cached logits half-precision")

	return cmd
}

// runBench drives a fixed workload: every step, all conversations append
// one token concurrently, one drain-all pass runs, and each conversation
// consumes its logits.
func runBench(cmd *cobra.Command, opts benchOptions) error {
	eng, err := simengine.New(simengine.Config{
		ContextLength: opts.contextLength,
		VocabSize:     opts.vocabSize,
		StepDelay:     opts.stepDelay,
	})
	if err != nil {
		return err
	}

	exec, err := executor.New(eng, executor.Config{
		BatchSize: opts.batchSize,
		LogitsF16: opts.logitsF16,
	})
	if err != nil {
		return err
	}
	defer exec.Close()

	convs := make([]*conversation.Conversation, opts.conversations)
	for i := range convs {
		if convs[i], err = conversation.New(exec); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	start := time.Now()

	for step := 0; step < opts.steps; step++ {
		g := new(errgroup.Group)
		for _, conv := range convs {
			conv := conv
			g.Go(func() error {
				return conv.Append(step)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if err := exec.Infer(ctx, true); err != nil {
			return err
		}

		for _, conv := range convs {
			if _, err := conv.Logits(); err != nil {
				return err
			}
		}
	}

	elapsed := time.Since(start)
	tokens := opts.conversations * opts.steps

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"CONVERSATIONS", "TOKENS", "PASSES", "EPOCH", "CELLS", "ELAPSED", "TOKENS/S"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.Append([]string{
		fmt.Sprintf("%d", opts.conversations),
		fmt.Sprintf("%d", tokens),
		fmt.Sprintf("%d", eng.Decodes()),
		fmt.Sprintf("%d", exec.Epoch()),
		fmt.Sprintf("%d/%d", eng.CellsUsed(), eng.ContextLength()),
		elapsed.Round(time.Millisecond).String(),
		fmt.Sprintf("%.0f", float64(tokens)/elapsed.Seconds()),
	})
	table.Render()

	return nil
}
