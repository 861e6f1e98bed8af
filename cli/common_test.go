package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/engine/mem"
	"github.com/gclaussn/go-flow/eventlog"
)

// echoAgent emits a single message and waits for an external completion.
var echoAgent = engine.TaskExecutorFunc(func(ctx context.Context, execution engine.Execution) engine.TaskOutcome {
	messageId := execution.TaskRunId() + "-1"

	execution.Emit(eventlog.EventMessageStart, eventlog.Payload{MessageId: messageId})
	execution.Emit(eventlog.EventMessageDelta, eventlog.Payload{MessageId: messageId, Delta: "Hello", Cumulative: "Hello"})
	execution.Emit(eventlog.EventMessageEnd, eventlog.Payload{MessageId: messageId})

	signal, err := execution.AwaitSignal(ctx)
	if err != nil {
		return engine.Failed("ContextDone", err.Error())
	}
	return engine.Completed(signal.Variables)
})

func mustCreateEngine(t *testing.T) engine.Engine {
	e, err := mem.New(func(o *mem.Options) {
		o.Common.Executors = map[string]engine.TaskExecutor{"agent": echoAgent}
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	t.Cleanup(e.Shutdown)
	return e
}

func execute(e engine.Engine, args []string) (string, error) {
	rootCmd := newRootCmd(&Cli{e: e})
	rootCmd.PersistentPostRun = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, e engine.Engine, args []string) string {
	out, err := execute(e, args)
	if err != nil {
		t.Fatalf("failed to execute %v: %v", args, err)
	}
	return out
}

// mustStart creates the process of a definition file and starts a process instance.
func mustStart(t *testing.T, e engine.Engine, fileName string, processId string) *engine.ProcessInstanceAssert {
	mustExecute(t, e, []string{"process", "create", "--file", "../test/definitions/" + fileName})

	out := mustExecute(t, e, []string{"process-instance", "start", "--process-id", processId})
	return mustAssert(t, e, out)
}

// mustAssert asserts the process instance, whose ID has been printed by a start command.
func mustAssert(t *testing.T, e engine.Engine, out string) *engine.ProcessInstanceAssert {
	processInstance, err := e.GetProcessInstance(context.Background(), engine.GetProcessInstanceCmd{Id: strings.TrimSpace(out)})
	if err != nil {
		t.Fatalf("failed to get process instance: %v", err)
	}
	return engine.Assert(t, e, processInstance)
}
