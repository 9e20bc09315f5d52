package cli

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and maintain the task queue",
	Long:  `Show queue statistics, list tasks, retry failed tasks, reclaim stale ones and purge old ones.`,
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count tasks by type and status",
	Args:  cobra.NoArgs,
	RunE:  runQueueStats,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE:  runQueueList,
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry [task-id]",
	Short: "Re-queue a failed task",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRetry,
}

var queueSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reclaim tasks stuck in running",
	Long: `Fails every running task claimed longer than --lock-timeout ago, so
it is retried with backoff or marked failed.`,
	Args: cobra.NoArgs,
	RunE: runQueueSweep,
}

var queuePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete finished tasks",
	Args:  cobra.NoArgs,
	RunE:  runQueuePurge,
}

var (
	queueListStatus    string
	queueListType      string
	queueListContentID string
	queueListLimit     int

	queueSweepTimeout time.Duration

	queuePurgeStatus    string
	queuePurgeOlderThan time.Duration
)

func init() {
	queueListCmd.Flags().StringVar(&queueListStatus, "status", "", "filter by status")
	queueListCmd.Flags().StringVar(&queueListType, "type", "", "filter by task type")
	queueListCmd.Flags().StringVar(&queueListContentID, "content-id", "", "filter by content id")
	queueListCmd.Flags().IntVarP(&queueListLimit, "limit", "n", 50, "maximum number of tasks")

	queueSweepCmd.Flags().DurationVar(&queueSweepTimeout, "lock-timeout", 15*time.Minute, "age after which a running task is stale")

	queuePurgeCmd.Flags().StringVar(&queuePurgeStatus, "status", string(domain.TaskDone), "status to purge (done or failed)")
	queuePurgeCmd.Flags().DurationVar(&queuePurgeOlderThan, "older-than", 7*24*time.Hour, "only purge tasks last updated before this age")

	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueSweepCmd)
	queueCmd.AddCommand(queuePurgeCmd)
	rootCmd.AddCommand(queueCmd)
}

func requireQueue() error {
	if services == nil || services.Queue == nil {
		return errors.New("task queue not configured")
	}
	return nil
}

func runQueueStats(cmd *cobra.Command, _ []string) error {
	if err := requireQueue(); err != nil {
		return err
	}

	stats, err := services.Queue.Stats(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to read queue stats: %w", err)
	}
	if len(stats) == 0 {
		cmd.Println("Queue is empty.")
		return nil
	}

	st := newStyler(cmd.OutOrStdout())
	statuses := []domain.TaskStatus{domain.TaskPending, domain.TaskRunning, domain.TaskDone, domain.TaskFailed}

	cmd.Println(st.header(fmt.Sprintf("%-20s %8s %8s %8s %8s", "TYPE", "pending", "running", "done", "failed")))
	types := make([]string, 0, len(stats))
	for t := range stats {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		byStatus := stats[domain.TaskType(t)]
		cmd.Printf("%-20s %8d %8d %8d %8d\n", t,
			byStatus[domain.TaskPending], byStatus[domain.TaskRunning],
			byStatus[domain.TaskDone], byStatus[domain.TaskFailed])
	}

	cmd.Println()
	for _, s := range statuses {
		cmd.Printf("  %s: %d\n", st.status(s), stats.Total(s))
	}
	return nil
}

func runQueueList(cmd *cobra.Command, _ []string) error {
	if err := requireQueue(); err != nil {
		return err
	}

	filter := domain.TaskFilter{
		Status:    domain.TaskStatus(queueListStatus),
		Type:      domain.TaskType(queueListType),
		ContentID: queueListContentID,
		Limit:     queueListLimit,
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return fmt.Errorf("unknown task type %q", queueListType)
	}

	tasks, err := services.Queue.List(commandContext(cmd), filter)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	if len(tasks) == 0 {
		cmd.Println("No tasks found.")
		return nil
	}

	st := newStyler(cmd.OutOrStdout())
	for i := range tasks {
		t := &tasks[i]
		cmd.Printf("  %s  %s  %s\n", t.TaskID, t.Type, st.status(t.Status))
		cmd.Printf("    Content:  %s\n", t.ContentID)
		cmd.Printf("    Attempts: %d\n", t.AttemptCount)
		if t.Status == domain.TaskPending && !t.NextAttemptAt.IsZero() {
			cmd.Printf("    Next:     %s\n", t.NextAttemptAt.Local().Format("2006-01-02 15:04:05"))
		}
		if t.ClaimedBy != "" {
			cmd.Printf("    Claimed:  %s\n", t.ClaimedBy)
		}
		if t.LastError != "" {
			cmd.Printf("    Error:    %s\n", t.LastError)
		}
		cmd.Println()
	}
	cmd.Printf("Total: %d tasks\n", len(tasks))
	return nil
}

func runQueueRetry(cmd *cobra.Command, args []string) error {
	if err := requireQueue(); err != nil {
		return err
	}

	if err := services.Queue.Retry(commandContext(cmd), args[0], time.Now()); err != nil {
		return fmt.Errorf("failed to retry task: %w", err)
	}
	cmd.Printf("Task %s re-queued\n", args[0])
	return nil
}

func runQueueSweep(cmd *cobra.Command, _ []string) error {
	if err := requireQueue(); err != nil {
		return err
	}

	n, err := services.Queue.ReclaimStale(commandContext(cmd), queueSweepTimeout, time.Now())
	if err != nil {
		return fmt.Errorf("failed to reclaim stale tasks: %w", err)
	}
	cmd.Printf("Reclaimed %d stale task(s)\n", n)
	return nil
}

func runQueuePurge(cmd *cobra.Command, _ []string) error {
	if err := requireQueue(); err != nil {
		return err
	}

	status := domain.TaskStatus(queuePurgeStatus)
	if !status.Terminal() {
		return fmt.Errorf("can only purge done or failed tasks, got %q", queuePurgeStatus)
	}

	n, err := services.Queue.Purge(commandContext(cmd), status, queuePurgeOlderThan, time.Now())
	if err != nil {
		return fmt.Errorf("failed to purge tasks: %w", err)
	}
	cmd.Printf("Purged %d %s task(s)\n", n, status)
	return nil
}
