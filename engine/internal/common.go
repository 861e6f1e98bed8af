package internal

import (
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/gclaussn/go-flow/model"
	"github.com/google/uuid"
)

// threadNamespace is the namespace of name-based thread IDs.
var threadNamespace = uuid.MustParse("6c1f2e0a-37d4-4a53-9a8e-2f9b4c7d1e55")

// ThreadId returns the stable thread ID of an element within a process instance.
func ThreadId(processInstanceId string, elementId string) string {
	return uuid.NewSHA1(threadNamespace, []byte(processInstanceId+"/"+elementId)).String()
}

func evaluateTimer(timer model.Timer, start time.Time) (time.Time, error) {
	if !timer.Time.IsZero() {
		return timer.Time.UTC().Truncate(time.Millisecond), nil
	} else if timer.TimeCycle != "" {
		return gronx.NextTickAfter(timer.TimeCycle, start, false)
	} else if !timer.TimeDuration.IsZero() {
		return timer.TimeDuration.Calculate(start), nil
	} else {
		return time.Time{}, errors.New("must specify a time, time cycle or time duration")
	}
}

func elementPointer(element *model.Element) string {
	if element.Index < 0 {
		return ""
	}
	return fmt.Sprintf("/elements/%d", element.Index)
}

func sequenceFlowPointer(sequenceFlow *model.SequenceFlow) string {
	return fmt.Sprintf("/sequenceFlows/%d", sequenceFlow.Index)
}
