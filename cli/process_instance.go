package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/gclaussn/go-flow/engine"
	"github.com/spf13/cobra"
)

func newProcessInstanceCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "process-instance",
		Short:       "Manage and query process instances",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newProcessInstanceCancelCmd(cli))
	c.AddCommand(newProcessInstanceGetCmd(cli))
	c.AddCommand(newProcessInstanceGetVariablesCmd(cli))
	c.AddCommand(newProcessInstanceQueryCmd(cli))
	c.AddCommand(newProcessInstanceStartCmd(cli))
	c.AddCommand(newProcessInstanceWaitCmd(cli))

	return &c
}

func newProcessInstanceCancelCmd(cli *Cli) *cobra.Command {
	var cmd engine.CancelProcessInstanceCmd

	c := cobra.Command{
		Use:   "cancel",
		Short: "Cancel a running process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			processInstance, err := cli.e.CancelProcessInstance(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Print(formatProcessInstances(processInstance))
			return nil
		},
	}

	c.Flags().StringVar(&cmd.Id, "id", "", "Process instance ID")
	c.Flags().StringVar(&cmd.Reason, "reason", "", "Reason, recorded for every cancelled task run")

	c.MarkFlagRequired("id")

	return &c
}

func newProcessInstanceGetCmd(cli *Cli) *cobra.Command {
	var cmd engine.GetProcessInstanceCmd

	c := cobra.Command{
		Use:   "get",
		Short: "Get a process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			processInstance, err := cli.e.GetProcessInstance(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Print(formatProcessInstances(processInstance))
			return nil
		},
	}

	c.Flags().StringVar(&cmd.Id, "id", "", "Process instance ID")

	c.MarkFlagRequired("id")

	return &c
}

func newProcessInstanceGetVariablesCmd(cli *Cli) *cobra.Command {
	var cmd engine.GetVariablesCmd

	c := cobra.Command{
		Use:   "get-variables",
		Short: "Get process variables",
		RunE: func(c *cobra.Command, _ []string) error {
			variables, err := cli.e.GetVariables(context.Background(), cmd)
			if err != nil {
				return err
			}

			s, err := formatVariables(variables)
			if err != nil {
				return err
			}

			c.Print(s)
			return nil
		},
	}

	c.Flags().StringVar(&cmd.ProcessInstanceId, "id", "", "Process instance ID")
	c.Flags().StringSliceVarP(&cmd.Names, "name", "n", nil, "Names of process variables to get")

	c.MarkFlagRequired("id")

	return &c
}

func newProcessInstanceQueryCmd(cli *Cli) *cobra.Command {
	var (
		status instanceStatusValue

		criteria engine.ProcessInstanceCriteria
	)

	c := cobra.Command{
		Use:   "query",
		Short: "Query process instances",
		RunE: func(c *cobra.Command, _ []string) error {
			criteria.Status = engine.InstanceStatus(status)

			results, err := cli.e.QueryProcessInstances(context.Background(), criteria)
			if err != nil {
				return err
			}

			c.Print(formatProcessInstances(results...))
			return nil
		},
	}

	c.Flags().StringVar(&criteria.Id, "id", "", "Process instance ID")
	c.Flags().StringVar(&criteria.ProcessId, "process-id", "", "Process ID")
	c.Flags().Var(&status, "status", "Process instance status")

	flagQueryOptions(&c, &criteria.Options)

	return &c
}

func newProcessInstanceStartCmd(cli *Cli) *cobra.Command {
	var (
		variablesV map[string]string

		cmd engine.StartProcessInstanceCmd
	)

	c := cobra.Command{
		Use:   "start",
		Short: "Start a process instance",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.Variables = mapVariables(variablesV)

			processInstance, err := cli.e.StartProcessInstance(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Println(processInstance.Id)
			return nil
		},
	}

	c.Flags().StringVar(&cmd.ProcessId, "process-id", "", "ID of an existing process")
	c.Flags().StringVar(&cmd.Version, "version", "", "Version of an existing process. If empty, the latest version is started")
	c.Flags().StringToStringVar(&variablesV, "variable", nil, "Variable, consisting of name and JSON value")

	c.MarkFlagRequired("process-id")

	return &c
}

func newProcessInstanceWaitCmd(cli *Cli) *cobra.Command {
	var cmd engine.WaitProcessInstanceCmd

	c := cobra.Command{
		Use:   "wait",
		Short: "Wait until a process instance has ended",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			processInstance, err := cli.e.WaitProcessInstance(ctx, cmd)
			if err != nil {
				return err
			}

			c.Print(formatProcessInstances(processInstance))
			return nil
		},
	}

	c.Flags().StringVar(&cmd.Id, "id", "", "Process instance ID")

	c.MarkFlagRequired("id")

	return &c
}

func formatProcessInstances(processInstances ...engine.ProcessInstance) string {
	table := newTable([]string{
		"ID",
		"PROCESS ID",
		"VERSION",
		"CREATED AT",
		"ENDED AT",
		"STATUS",
		"FAILURE",
	})

	for _, processInstance := range processInstances {
		var failure string
		if processInstance.Failure != nil {
			failure = processInstance.Failure.String()
		}

		table.addRow([]string{
			processInstance.Id,
			processInstance.ProcessId,
			processInstance.Version,
			formatTime(processInstance.CreatedAt),
			formatTimeOrNil(processInstance.EndedAt),
			processInstance.Status.String(),
			failure,
		})
	}

	return table.format()
}
