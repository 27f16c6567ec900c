package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/mediaoffload/offloader/internal/migration"
	"github.com/spf13/cobra"
)

var (
	stepOffset   int
	stepPageSize int
	runFrom      int
	runPageSize  int
	runPoll      time.Duration
)

var stepCmd = &cobra.Command{
	Use:   "step <operation>",
	Short: "Process one page of an operation",
	Long: `Process one page of migrate, revert, reupload_missing or delete_local and
print the result. Pass the printed "processed" value as --offset to continue.

Examples:
  offloader step migrate
  offloader step migrate --offset 5
  offloader step revert --page-size 20`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := migration.ParseOperation(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Engine.Step(cmd.Context(), migration.StepRequest{
			Operation: op,
			Offset:    stepOffset,
			PageSize:  stepPageSize,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <operation>",
	Short: "Run an operation to completion",
	Long: `Issue steps until the operation reports completion, logging progress at
the --poll interval. Ctrl-C stops after the current page.

Examples:
  offloader run migrate
  offloader run delete_local --from 40 --poll 5s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := migration.ParseOperation(args[0])
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		last := time.Time{}
		res, err := a.Engine.Run(ctx, op, migration.RunOptions{
			From:     runFrom,
			PageSize: runPageSize,
			OnStep: func(r *migration.StepResult) {
				if time.Since(last) < runPoll {
					return
				}
				last = time.Now()
				if p, err := a.Tracker.Poll(ctx, op); err == nil {
					slog.Info("Progress", "operation", op, "processed", r.Processed,
						"current", p.Current, "total", p.Total, "percentage", p.Percentage)
				}
			},
		})
		if res != nil {
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
		}
		if err != nil {
			if ctx.Err() != nil && res != nil {
				return fmt.Errorf("interrupted; resume with --from %d: %w", res.Processed, err)
			}
			return err
		}
		return nil
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress <operation>",
	Short: "Show the progress of an operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := migration.ParseOperation(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.Tracker.Poll(cmd.Context(), op)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <operation>",
	Short: "Discard an abandoned pass checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := migration.ParseOperation(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine.ResetCheckpoint(cmd.Context(), op); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint for %s cleared\n", op)
		return nil
	},
}

func init() {
	stepCmd.Flags().IntVar(&stepOffset, "offset", 0, "processed count from the previous step; 0 starts a new pass")
	stepCmd.Flags().IntVar(&stepPageSize, "page-size", 0, "assets per page (default: pinned or configured size)")

	runCmd.Flags().IntVar(&runFrom, "from", 0, "offset to resume from")
	runCmd.Flags().IntVar(&runPageSize, "page-size", 0, "assets per page (default: configured size)")
	runCmd.Flags().DurationVar(&runPoll, "poll", 2*time.Second, "progress logging interval")
}
