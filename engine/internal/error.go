package internal

import (
	"fmt"
	"strings"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/model"
)

// routeFailure routes the token of a failed or cancelled task run: to a matching error boundary event of the
// task first. If no boundary event matches, the token ends and the failure is raised, unless boundaryOnly is
// set - then the process instance is only tagged as cancelled.
func (st *step) routeFailure(t *token, element *model.Element, failure engine.Failure, boundaryOnly bool) error {
	if boundary := findErrorBoundaryEvent(element, failure.ErrorCode); boundary != nil {
		return st.triggerBoundary(t, boundary)
	}

	st.dropToken(t)

	if boundaryOnly {
		st.state.cancelledTokens = true
		return nil
	}
	return st.raise(failure, t.recovery)
}

// raise offers a failure to the event sub-processes in declaration order, unless it occurred within a recovery.
// If no event sub-process matches, the process instance fails.
func (st *step) raise(failure engine.Failure, recovery bool) error {
	if recovery || st.state.interrupted || st.state.terminating {
		st.failInstance(failure)
		return nil
	}

	for _, eventSubProcess := range st.instance.process.Model.Process().ChildrenByType(model.ElementEventSubProcess) {
		if !matchesErrorCode(eventSubProcess.Properties.ErrorCode, failure.ErrorCode) {
			continue
		}

		st.instance.logger.Debug("triggering event sub-process", "element", eventSubProcess.Id, "failure", failure)

		if eventSubProcess.Properties.IsInterrupting {
			st.interrupt(failure, eventSubProcess)
		}

		startEvent := eventSubProcess.ChildrenByType(model.ElementNoneStartEvent)[0]
		return st.enter(st.newToken(true), startEvent, nil)
	}

	st.failInstance(failure)
	return nil
}

// interrupt records the failure and cancels everything outside of the triggered event sub-process.
func (st *step) interrupt(failure engine.Failure, eventSubProcess *model.Element) {
	if st.state.failure == nil {
		st.state.failure = &failure
	}
	st.state.interrupted = true

	reason := fmt.Sprintf("interrupted by event sub-process %s", eventSubProcess.Id)
	st.cancelAll(reason)
}

// failInstance records the failure, cancels all task runs and drops all tokens. The process instance ends
// FAILED, when all task runs have ended.
func (st *step) failInstance(failure engine.Failure) {
	if st.state.failure == nil {
		st.state.failure = &failure
	}
	st.state.terminating = true

	st.instance.logger.Info("process instance failed", "failure", failure)

	reason := fmt.Sprintf("process instance failed at %s", failure.ElementId)
	st.cancelAll(reason)
}

func (st *step) cancelAll(reason string) {
	for _, run := range st.state.runs {
		if run.Status.IsTerminal() {
			continue
		}
		run.token = 0
		st.cancelInternally(run, reason, causeInterrupt)
	}
	clear(st.state.tokens)
}

// findErrorBoundaryEvent finds the error boundary event, matching an error code: an exact match is preferred
// over a substring match, which is preferred over a boundary event without error code.
func findErrorBoundaryEvent(element *model.Element, errorCode string) *model.Element {
	var substring, wildcard *model.Element
	for _, boundary := range element.BoundariesByType(model.ElementErrorBoundaryEvent) {
		filter := boundary.Properties.ErrorCode
		switch {
		case filter == errorCode:
			return boundary
		case filter == "":
			if wildcard == nil {
				wildcard = boundary
			}
		case strings.Contains(errorCode, filter):
			if substring == nil {
				substring = boundary
			}
		}
	}

	if substring != nil {
		return substring
	}
	return wildcard
}

func matchesErrorCode(filter string, errorCode string) bool {
	return filter == "" || strings.Contains(errorCode, filter)
}
