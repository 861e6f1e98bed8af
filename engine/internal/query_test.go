package internal

import (
	"testing"

	"github.com/gclaussn/go-flow/engine"
	"github.com/stretchr/testify/assert"
)

func TestPage(t *testing.T) {
	assert := assert.New(t)

	results := []int{1, 2, 3, 4, 5}

	assert.Equal([]int{1, 2, 3}, Page(results, engine.QueryOptions{}, 3))
	assert.Equal([]int{1, 2}, Page(results, engine.QueryOptions{Limit: 2}, 3))
	assert.Equal([]int{3, 4, 5}, Page(results, engine.QueryOptions{Offset: 2}, 10))
	assert.Equal([]int{5}, Page(results, engine.QueryOptions{Offset: 4, Limit: 2}, 10))
	assert.Equal([]int{}, Page(results, engine.QueryOptions{Offset: 5}, 10))
}

func TestMatchTaskRun(t *testing.T) {
	assert := assert.New(t)

	taskRun := engine.TaskRun{
		ProcessInstanceId: "pi",
		ElementId:         "approve",
		CorrelationId:     "c",
		Status:            engine.TaskRunRunning,
	}

	assert.True(MatchTaskRun(taskRun, engine.TaskRunCriteria{}))
	assert.True(MatchTaskRun(taskRun, engine.TaskRunCriteria{ProcessInstanceId: "pi", ElementId: "approve"}))
	assert.True(MatchTaskRun(taskRun, engine.TaskRunCriteria{Status: engine.TaskRunRunning}))
	assert.False(MatchTaskRun(taskRun, engine.TaskRunCriteria{CorrelationId: "other"}))
	assert.False(MatchTaskRun(taskRun, engine.TaskRunCriteria{Status: engine.TaskRunCompleted}))
}
