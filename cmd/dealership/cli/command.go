package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/goccy/go-json"
)

const usage = `usage:
  dealership jobs trigger <task>     enqueue a task (media:sweep)
  dealership jobs queue [-json]      show default queue counters
  dealership jobs scheduled [-size]  list scheduled tasks
`

// Run executes an operator command and returns the process exit code.
func Run(ctx context.Context, redisAddr string, args []string, stdout io.Writer, logger *slog.Logger) int {
	c := NewJobsCLI(redisAddr)
	defer func() {
		if err := c.Close(); err != nil && logger != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()
	return c.Command(ctx, args, stdout)
}

// Command dispatches `jobs <subcommand>` arguments.
func (c *JobsCLI) Command(ctx context.Context, args []string, stdout io.Writer) int {
	if len(args) < 2 || args[0] != "jobs" {
		_, _ = fmt.Fprint(stdout, usage)
		return 2
	}
	switch args[1] {
	case "trigger":
		if len(args) != 3 {
			_, _ = fmt.Fprint(stdout, usage)
			return 2
		}
		info, err := c.Trigger(ctx, args[2])
		if err != nil {
			_, _ = fmt.Fprintf(stdout, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "queue":
		fs := flag.NewFlagSet("queue", flag.ContinueOnError)
		fs.SetOutput(stdout)
		asJSON := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stdout, "jobs queue: %v\n", err)
			return 1
		}
		if *asJSON {
			if err := json.NewEncoder(stdout).Encode(stats); err != nil {
				return 1
			}
			return 0
		}
		_, _ = fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	case "scheduled":
		fs := flag.NewFlagSet("scheduled", flag.ContinueOnError)
		fs.SetOutput(stdout)
		size := fs.Int("size", 10, "page size")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		tasks, err := c.ListScheduled(ctx, *size)
		if err != nil {
			_, _ = fmt.Fprintf(stdout, "jobs scheduled: %v\n", err)
			return 1
		}
		for _, t := range tasks {
			_, _ = fmt.Fprintf(stdout, "%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.UTC().Format("2006-01-02T15:04:05Z"))
		}
		return 0
	default:
		_, _ = fmt.Fprint(stdout, usage)
		return 2
	}
}
