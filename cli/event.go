package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/spf13/cobra"
)

func newEventCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "event",
		Short:       "Query, follow and clear the event log",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newEventClearCmd(cli))
	c.AddCommand(newEventQueryCmd(cli))
	c.AddCommand(newEventSnapshotCmd(cli))
	c.AddCommand(newEventSubscribeCmd(cli))

	return &c
}

func newEventClearCmd(cli *Cli) *cobra.Command {
	var cmd engine.ClearHistoryCmd

	c := cobra.Command{
		Use:   "clear",
		Short: "Remove the events of a process instance or one of its elements",
		RunE: func(c *cobra.Command, _ []string) error {
			return cli.e.ClearHistory(context.Background(), cmd)
		},
	}

	c.Flags().StringVar(&cmd.ProcessInstanceId, "process-instance-id", "", "Process instance ID")
	c.Flags().StringVar(&cmd.ElementId, "element-id", "", "Element ID. If empty, the events of all elements are removed")

	c.MarkFlagRequired("process-instance-id")

	return &c
}

func newEventQueryCmd(cli *Cli) *cobra.Command {
	var (
		kind eventKindValue

		criteria eventlog.Criteria
	)

	c := cobra.Command{
		Use:   "query",
		Short: "Query events",
		RunE: func(c *cobra.Command, _ []string) error {
			criteria.Kind = eventlog.EventKind(kind)

			results, err := cli.e.QueryEvents(context.Background(), criteria)
			if err != nil {
				return err
			}

			table := newTable([]string{
				"ELEMENT ID",
				"SEQUENCE",
				"KIND",
				"CREATED AT",
				"PAYLOAD",
			})

			for _, event := range results {
				payload, err := json.Marshal(event.Payload)
				if err != nil {
					return fmt.Errorf("failed to marshal payload of event %s: %v", event, err)
				}

				table.addRow([]string{
					event.ElementId,
					strconv.FormatInt(event.Sequence, 10),
					event.Kind.String(),
					formatTime(event.CreatedAt),
					string(payload),
				})
			}

			c.Print(table.format())
			return nil
		},
	}

	flagCriteria(&c, &criteria, &kind)

	return &c
}

func newEventSnapshotCmd(cli *Cli) *cobra.Command {
	var cmd engine.GetSnapshotCmd

	c := cobra.Command{
		Use:   "snapshot",
		Short: "Get the materialized view of an element's event log",
		RunE: func(c *cobra.Command, _ []string) error {
			snapshot, err := cli.e.GetSnapshot(context.Background(), cmd)
			if err != nil {
				return err
			}

			b, err := json.MarshalIndent(snapshot, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal snapshot: %v", err)
			}

			c.Println(string(b))
			return nil
		},
	}

	c.Flags().StringVar(&cmd.ProcessInstanceId, "process-instance-id", "", "Process instance ID")
	c.Flags().StringVar(&cmd.ElementId, "element-id", "", "Element ID")
	c.Flags().StringVar(&cmd.ThreadId, "thread-id", "", "Thread ID. If empty, the element's thread is used")

	c.MarkFlagRequired("process-instance-id")
	c.MarkFlagRequired("element-id")

	return &c
}

func newEventSubscribeCmd(cli *Cli) *cobra.Command {
	var (
		kind eventKindValue

		criteria eventlog.Criteria
	)

	c := cobra.Command{
		Use:   "subscribe",
		Short: "Follow the events of an element, as they are appended",
		RunE: func(c *cobra.Command, _ []string) error {
			criteria.Kind = eventlog.EventKind(kind)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			events, err := cli.e.Subscribe(ctx, criteria)
			if err != nil {
				return err
			}

			for event := range events {
				b, err := json.Marshal(event)
				if err != nil {
					return fmt.Errorf("failed to marshal event %s: %v", event, err)
				}
				c.Println(string(b))
			}
			return nil
		},
	}

	flagCriteria(&c, &criteria, &kind)

	c.MarkFlagRequired("element-id")

	return &c
}

func flagCriteria(c *cobra.Command, criteria *eventlog.Criteria, kind *eventKindValue) {
	c.Flags().StringVar(&criteria.ProcessInstanceId, "process-instance-id", "", "Process instance ID")
	c.Flags().StringVar(&criteria.ElementId, "element-id", "", "Element ID")
	c.Flags().StringVar(&criteria.ThreadId, "thread-id", "", "Thread ID")
	c.Flags().Var(kind, "kind", "Event kind")

	c.MarkFlagRequired("process-instance-id")
}
