package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

var (
	workOnce        bool
	workConcurrency int
	workTypes       []string
	workFollow      bool
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Process queued pipeline tasks",
	Long: `Claims pending tasks and dispatches them to the semantic indexer, the
entity extractor and the fact builders.

With --once the worker drains every eligible task and exits. Otherwise it
polls until interrupted. Either way it first returns running tasks whose
lease (worker.lock_timeout) has expired to the queue, and continuous mode
repeats that sweep while idle. --follow also runs the scheduler, which
rescans local sources and purges old tasks.`,
	RunE: runWork,
}

func init() {
	workCmd.Flags().BoolVar(&workOnce, "once", false, "drain eligible tasks and exit")
	workCmd.Flags().IntVarP(&workConcurrency, "concurrency", "c", 0, "claim loops (default from config)")
	workCmd.Flags().StringSliceVar(&workTypes, "types", nil, "only claim these task types")
	workCmd.Flags().BoolVar(&workFollow, "follow", false, "also run scheduled maintenance jobs")
	rootCmd.AddCommand(workCmd)
}

func runWork(cmd *cobra.Command, _ []string) error {
	if services == nil || services.NewWorker == nil {
		return errors.New("worker not configured")
	}
	if workOnce && workFollow {
		return errors.New("--once and --follow cannot be combined")
	}

	opts := WorkerOptions{Concurrency: workConcurrency}
	for _, t := range workTypes {
		tt := domain.TaskType(t)
		if !tt.Valid() {
			return fmt.Errorf("unknown task type %q", t)
		}
		opts.Types = append(opts.Types, tt)
	}
	worker := services.NewWorker(opts)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if workOnce {
		summary, err := worker.RunOnce(ctx)
		cmd.Printf("Claimed: %d  Completed: %d  Failed: %d  (%s)\n",
			summary.Claimed, summary.Completed, summary.Failed, summary.Elapsed.Round(time.Millisecond))
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(ctx) })
	if workFollow && services.Scheduler != nil {
		g.Go(func() error {
			err := services.Scheduler.Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	cmd.Println("Worker running, press Ctrl+C to stop")
	err := g.Wait()
	if workFollow && services.Scheduler != nil {
		_ = services.Scheduler.Stop()
	}
	return err
}
