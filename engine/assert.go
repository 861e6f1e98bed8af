package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gclaussn/go-flow/eventlog"
)

// assertTimeout limits the time, an assertion waits for the asynchronous progress of a process instance.
const assertTimeout = 5 * time.Second

func Assert(t *testing.T, e Engine, processInstance ProcessInstance) *ProcessInstanceAssert {
	return &ProcessInstanceAssert{
		t: t,
		e: e,

		processInstanceId: processInstance.Id,
	}
}

// AssertStart starts a process instance of the latest version of a process and asserts it.
func AssertStart(t *testing.T, e Engine, processId string, variables ...map[string]any) *ProcessInstanceAssert {
	cmd := StartProcessInstanceCmd{ProcessId: processId}
	if len(variables) != 0 {
		cmd.Variables = variables[0]
	}

	processInstance, err := e.StartProcessInstance(context.Background(), cmd)
	if err != nil {
		t.Fatalf("failed to start process instance: %v", err)
	}

	return Assert(t, e, processInstance)
}

type ProcessInstanceAssert struct {
	t *testing.T
	e Engine

	processInstanceId string
	elementId         string
	taskRun           TaskRun
}

func (a *ProcessInstanceAssert) CancelTask(reason string) TaskRun {
	if a.elementId == "" {
		a.Fatalf("call IsWaitingAt first")
	}

	taskRun, err := a.e.CancelTask(context.Background(), CancelTaskCmd{
		ProcessInstanceId: a.processInstanceId,
		ElementId:         a.elementId,
		Reason:            reason,
	})
	if err != nil {
		a.Fatalf("failed to cancel task run %s: %v", a.taskRun, err)
	}

	a.elementId = ""
	return taskRun
}

// CompleteTask resolves the task run, found by IsWaitingAt, with optional variables.
func (a *ProcessInstanceAssert) CompleteTask(variables ...map[string]any) {
	taskRun := a.TaskRun()

	cmd := CompleteTaskCmd{CorrelationId: taskRun.CorrelationId}
	if len(variables) != 0 {
		cmd.Variables = variables[0]
	}

	if _, err := a.e.CompleteTask(context.Background(), cmd); err != nil {
		a.Fatalf("failed to complete task run %s: %v", taskRun, err)
	}

	a.elementId = ""
}

// CompleteTaskWithError resolves the task run, found by IsWaitingAt, with an error code.
func (a *ProcessInstanceAssert) CompleteTaskWithError(errorCode string, errorMessage string) {
	taskRun := a.TaskRun()

	if _, err := a.e.CompleteTask(context.Background(), CompleteTaskCmd{
		CorrelationId: taskRun.CorrelationId,
		ErrorCode:     errorCode,
		ErrorMessage:  errorMessage,
	}); err != nil {
		a.Fatalf("failed to complete task run %s with error: %v", taskRun, err)
	}

	a.elementId = ""
}

func (a *ProcessInstanceAssert) Events(elementId string) []eventlog.Event {
	events, err := a.e.QueryEvents(context.Background(), eventlog.Criteria{
		ProcessInstanceId: a.processInstanceId,
		ElementId:         elementId,
	})
	if err != nil {
		a.Fatalf("failed to query events: %v", err)
	}
	return events
}

func (a *ProcessInstanceAssert) Fatalf(format string, args ...any) {
	data := map[string]string{
		"Error Trace": string(debug.Stack()),
		"Error":       fmt.Sprintf(format, args...),
		"Test":        a.t.Name(),
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("\n%s: %s", k, data[k]))
	}

	a.t.Fatal(sb.String())
}

// HasEvent asserts that an element's event log contains an event of the given kind.
func (a *ProcessInstanceAssert) HasEvent(elementId string, kind eventlog.EventKind) eventlog.Event {
	events := a.Events(elementId)
	for _, e := range events {
		if e.Kind == kind {
			return e
		}
	}

	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Kind.String()
	}

	a.Fatalf("expected element %s to have a %s event, but has not\nevents: %s", elementId, kind, strings.Join(kinds, ", "))
	return eventlog.Event{}
}

// HasPassed asserts that a task run of an element has completed.
func (a *ProcessInstanceAssert) HasPassed(elementId string) {
	taskRuns := a.queryTaskRuns(TaskRunCriteria{ElementId: elementId, Status: TaskRunCompleted})
	if len(taskRuns) != 0 {
		return
	}

	completed := a.queryTaskRuns(TaskRunCriteria{Status: TaskRunCompleted})

	passed := make([]string, len(completed))
	for i, taskRun := range completed {
		passed[i] = taskRun.ElementId
	}

	a.Fatalf("expected process instance to have passed %s, but has not\npassed elements: %s", elementId, strings.Join(passed, ", "))
}

func (a *ProcessInstanceAssert) HasNoProcessVariable(name string) {
	if _, ok := a.variables(name)[name]; ok {
		a.Fatalf("expected process instance to have no variable %s, but has", name)
	}
}

func (a *ProcessInstanceAssert) HasProcessVariable(name string) any {
	value, ok := a.variables(name)[name]
	if !ok {
		a.Fatalf("expected process instance to have variable %s, but has not", name)
	}
	return value
}

// IsCancelled waits until the process instance has ended and asserts its status.
func (a *ProcessInstanceAssert) IsCancelled() ProcessInstance {
	return a.isEnded(InstanceCancelled)
}

// IsCompleted waits until the process instance has ended and asserts its status.
func (a *ProcessInstanceAssert) IsCompleted() ProcessInstance {
	return a.isEnded(InstanceCompleted)
}

// IsFailed waits until the process instance has ended and asserts its status.
func (a *ProcessInstanceAssert) IsFailed() ProcessInstance {
	return a.isEnded(InstanceFailed)
}

func (a *ProcessInstanceAssert) IsNotEnded() {
	if processInstance := a.ProcessInstance(); processInstance.IsEnded() {
		a.Fatalf("expected process instance not to be ended, but is %s", processInstance.Status)
	}
}

func (a *ProcessInstanceAssert) IsNotWaitingAt(elementId string) {
	for _, taskRun := range a.queryTaskRuns(TaskRunCriteria{ElementId: elementId}) {
		if !taskRun.IsEnded() {
			a.Fatalf("expected process instance not to be waiting at %s: task run %s is %s", elementId, taskRun.Id, taskRun.Status)
		}
	}
}

// IsWaitingAt waits until a task run of an element is running. The task run can be completed or cancelled afterwards.
func (a *ProcessInstanceAssert) IsWaitingAt(elementId string) TaskRun {
	deadline := time.Now().Add(assertTimeout)
	for {
		for _, taskRun := range a.queryTaskRuns(TaskRunCriteria{ElementId: elementId, Status: TaskRunRunning}) {
			a.elementId = elementId
			a.taskRun = taskRun
			return taskRun
		}

		if time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	a.Fatalf("expected process instance to be waiting at %s: no running task run found", elementId)
	return TaskRun{}
}

func (a *ProcessInstanceAssert) ProcessInstance() ProcessInstance {
	processInstance, err := a.e.GetProcessInstance(context.Background(), GetProcessInstanceCmd{Id: a.processInstanceId})
	if err != nil {
		a.Fatalf("failed to get process instance: %v", err)
	}
	return processInstance
}

func (a *ProcessInstanceAssert) SetTime(d time.Duration) {
	processInstance := a.ProcessInstance()

	if err := a.e.SetTime(context.Background(), SetTimeCmd{Time: processInstance.CreatedAt.Add(d)}); err != nil {
		a.Fatalf("failed to set time: %v", err)
	}
}

func (a *ProcessInstanceAssert) TaskRun() TaskRun {
	if a.elementId == "" {
		a.Fatalf("call IsWaitingAt first")
	}
	return a.taskRun
}

// TaskRuns returns the task runs of an element in creation order.
func (a *ProcessInstanceAssert) TaskRuns(elementId string) []TaskRun {
	return a.queryTaskRuns(TaskRunCriteria{ElementId: elementId})
}

// WaitTaskRun waits until the latest task run of an element has ended.
func (a *ProcessInstanceAssert) WaitTaskRun(elementId string) TaskRun {
	deadline := time.Now().Add(assertTimeout)
	for {
		taskRuns := a.queryTaskRuns(TaskRunCriteria{ElementId: elementId})
		if len(taskRuns) != 0 && taskRuns[len(taskRuns)-1].IsEnded() {
			return taskRuns[len(taskRuns)-1]
		}

		if time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	a.Fatalf("expected task run of %s to end, but has not", elementId)
	return TaskRun{}
}

func (a *ProcessInstanceAssert) isEnded(status InstanceStatus) ProcessInstance {
	ctx, cancel := context.WithTimeout(context.Background(), assertTimeout)
	defer cancel()

	processInstance, err := a.e.WaitProcessInstance(ctx, WaitProcessInstanceCmd{Id: a.processInstanceId})
	if err != nil {
		taskRuns := a.queryTaskRuns(TaskRunCriteria{})
		active := slices.DeleteFunc(taskRuns, func(taskRun TaskRun) bool {
			return taskRun.IsEnded()
		})
		a.Fatalf("expected process instance to be %s, but has not ended: %v\nactive task runs: %v", status, err, active)
	}

	if processInstance.Status != status {
		a.Fatalf("expected process instance to be %s, but is %s (failure: %v)", status, processInstance.Status, processInstance.Failure)
	}
	return processInstance
}

func (a *ProcessInstanceAssert) queryTaskRuns(criteria TaskRunCriteria) []TaskRun {
	criteria.ProcessInstanceId = a.processInstanceId

	results, err := a.e.QueryTaskRuns(context.Background(), criteria)
	if err != nil {
		a.Fatalf("failed to query task runs: %v", err)
	}
	return results
}

func (a *ProcessInstanceAssert) variables(name string) map[string]any {
	variables, err := a.e.GetVariables(context.Background(), GetVariablesCmd{
		ProcessInstanceId: a.processInstanceId,
		Names:             []string{name},
	})
	if err != nil {
		a.Fatalf("failed to get process variable %s: %v", name, err)
	}
	return variables
}
