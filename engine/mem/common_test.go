package mem

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/model"
)

func mustCreateEngine(t *testing.T, customizers ...func(*Options)) engine.Engine {
	e, err := New(customizers...)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	t.Cleanup(e.Shutdown)
	return e
}

// withExecutors registers task executors by name.
func withExecutors(executors map[string]engine.TaskExecutor) func(*Options) {
	return func(o *Options) {
		o.Common.Executors = executors
	}
}

func mustCreateProcess(t *testing.T, e engine.Engine, fileName string, overlays ...model.Overlay) engine.Process {
	process, err := e.CreateProcess(context.Background(), engine.CreateProcessCmd{
		Definition: mustReadDefinition(t, fileName),
		Overlays:   overlays,
	})
	if err != nil {
		t.Fatalf("failed to create process: %v", err)
	}
	return process
}

func mustReadDefinition(t *testing.T, fileName string) model.Definition {
	fileName = "../../test/definitions/" + fileName

	file, err := os.Open(fileName)
	if err != nil {
		t.Fatalf("failed to open definition file %s: %v", fileName, err)
	}

	defer file.Close()

	definition, err := model.ReadDefinition(file)
	if err != nil {
		t.Fatalf("failed to read definition: %v", err)
	}

	return definition
}

func mustStart(t *testing.T, e engine.Engine, fileName string, variables ...map[string]any) *engine.ProcessInstanceAssert {
	process := mustCreateProcess(t, e, fileName)
	return engine.AssertStart(t, e, process.Id, variables...)
}

// completeWith returns an executor, which completes immediately with the given variables.
func completeWith(variables map[string]any) engine.TaskExecutor {
	return engine.TaskExecutorFunc(func(context.Context, engine.Execution) engine.TaskOutcome {
		return engine.Completed(variables)
	})
}

// failWith returns an executor, which fails immediately with the given error code.
func failWith(errorCode string) engine.TaskExecutor {
	return engine.TaskExecutorFunc(func(context.Context, engine.Execution) engine.TaskOutcome {
		return engine.Failed(errorCode, "failed on purpose")
	})
}

// blockingExecutor blocks until it is released or a cancellation is requested. It reports its start.
type blockingExecutor struct {
	started chan engine.Execution
	release chan engine.TaskOutcome
	honor   bool // determines if cancel requests are honored
}

func newBlockingExecutor(honor bool) *blockingExecutor {
	return &blockingExecutor{
		started: make(chan engine.Execution, 10),
		release: make(chan engine.TaskOutcome, 10),
		honor:   honor,
	}
}

func (x *blockingExecutor) Execute(ctx context.Context, execution engine.Execution) engine.TaskOutcome {
	x.started <- execution

	for {
		select {
		case outcome := <-x.release:
			return outcome
		case <-ctx.Done():
			return engine.Failed("ContextDone", ctx.Err().Error())
		default:
		}

		if err := execution.Checkpoint(engine.CheckpointChunk); err != nil && x.honor {
			cancelRequest, _ := engine.IsCancelRequest(err)
			return engine.Cancelled("", cancelRequest.Reason)
		}

		select {
		case outcome := <-x.release:
			return outcome
		case <-ctx.Done():
			return engine.Failed("ContextDone", ctx.Err().Error())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (x *blockingExecutor) awaitStart(t *testing.T) engine.Execution {
	select {
	case execution := <-x.started:
		return execution
	case <-time.After(5 * time.Second):
		t.Fatal("executor not started")
		return nil
	}
}
