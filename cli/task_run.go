package cli

import (
	"context"
	"strconv"

	"github.com/gclaussn/go-flow/engine"
	"github.com/spf13/cobra"
)

func newTaskRunCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "task-run",
		Short:       "Complete, cancel and query task runs",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newTaskRunCancelCmd(cli))
	c.AddCommand(newTaskRunCompleteCmd(cli))
	c.AddCommand(newTaskRunQueryCmd(cli))

	return &c
}

func newTaskRunCancelCmd(cli *Cli) *cobra.Command {
	var cmd engine.CancelTaskCmd

	c := cobra.Command{
		Use:   "cancel",
		Short: "Request the cancellation of a task run",
		RunE: func(c *cobra.Command, _ []string) error {
			taskRun, err := cli.e.CancelTask(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Print(formatTaskRuns(taskRun))
			return nil
		},
	}

	c.Flags().StringVar(&cmd.ProcessInstanceId, "process-instance-id", "", "Process instance ID")
	c.Flags().StringVar(&cmd.ElementId, "element-id", "", "ID of a task element")
	c.Flags().StringVar(&cmd.ThreadId, "thread-id", "", "Thread ID, that must match the task run's thread")
	c.Flags().StringVar(&cmd.Reason, "reason", "", "Reason, recorded when the task run is cancelled")

	c.MarkFlagRequired("process-instance-id")
	c.MarkFlagRequired("element-id")

	return &c
}

func newTaskRunCompleteCmd(cli *Cli) *cobra.Command {
	var (
		variablesV map[string]string

		cmd engine.CompleteTaskCmd
	)

	c := cobra.Command{
		Use:   "complete",
		Short: "Complete or fail a task run, that waits for an external completion",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.Variables = mapVariables(variablesV)

			taskRun, err := cli.e.CompleteTask(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Print(formatTaskRuns(taskRun))
			return nil
		},
	}

	c.Flags().StringVar(&cmd.CorrelationId, "correlation-id", "", "Correlation ID of the task run")
	c.Flags().StringVar(&cmd.ErrorCode, "error-code", "", "Code of an error, used to fail the task run")
	c.Flags().StringVar(&cmd.ErrorMessage, "error-message", "", "Message of an error, used to fail the task run")
	c.Flags().StringToStringVar(&variablesV, "variable", nil, "Variable, consisting of name and JSON value")

	c.MarkFlagRequired("correlation-id")

	return &c
}

func newTaskRunQueryCmd(cli *Cli) *cobra.Command {
	var (
		status taskRunStatusValue

		criteria engine.TaskRunCriteria
	)

	c := cobra.Command{
		Use:   "query",
		Short: "Query task runs",
		RunE: func(c *cobra.Command, _ []string) error {
			criteria.Status = engine.TaskRunStatus(status)

			results, err := cli.e.QueryTaskRuns(context.Background(), criteria)
			if err != nil {
				return err
			}

			c.Print(formatTaskRuns(results...))
			return nil
		},
	}

	c.Flags().StringVar(&criteria.ProcessInstanceId, "process-instance-id", "", "Process instance ID")
	c.Flags().StringVar(&criteria.CorrelationId, "correlation-id", "", "Correlation ID")
	c.Flags().StringVar(&criteria.ElementId, "element-id", "", "Element ID")
	c.Flags().Var(&status, "status", "Task run status")

	flagQueryOptions(&c, &criteria.Options)

	return &c
}

func formatTaskRuns(taskRuns ...engine.TaskRun) string {
	table := newTable([]string{
		"PROCESS INSTANCE ID",
		"ELEMENT ID",
		"CORRELATION ID",
		"CANCELLABLE",
		"STATUS",
		"CREATED AT",
		"ENDED AT",
		"ERROR CODE",
		"REASON",
	})

	for _, taskRun := range taskRuns {
		table.addRow([]string{
			taskRun.ProcessInstanceId,
			taskRun.ElementId,
			taskRun.CorrelationId,
			strconv.FormatBool(taskRun.Cancellable),
			taskRun.Status.String(),
			formatTime(taskRun.CreatedAt),
			formatTimeOrNil(taskRun.EndedAt),
			taskRun.ErrorCode,
			taskRun.Reason,
		})
	}

	return table.format()
}
