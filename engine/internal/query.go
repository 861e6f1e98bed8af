package internal

import "github.com/gclaussn/go-flow/engine"

// MatchProcessInstance determines if a process instance matches the criteria.
func MatchProcessInstance(pi engine.ProcessInstance, criteria engine.ProcessInstanceCriteria) bool {
	if criteria.Id != "" && criteria.Id != pi.Id {
		return false
	}
	if criteria.ProcessId != "" && criteria.ProcessId != pi.ProcessId {
		return false
	}
	if criteria.Status != 0 && criteria.Status != pi.Status {
		return false
	}
	return true
}

// MatchTaskRun determines if a task run matches the criteria.
func MatchTaskRun(taskRun engine.TaskRun, criteria engine.TaskRunCriteria) bool {
	if criteria.ProcessInstanceId != "" && criteria.ProcessInstanceId != taskRun.ProcessInstanceId {
		return false
	}
	if criteria.CorrelationId != "" && criteria.CorrelationId != taskRun.CorrelationId {
		return false
	}
	if criteria.ElementId != "" && criteria.ElementId != taskRun.ElementId {
		return false
	}
	if criteria.Status != 0 && criteria.Status != taskRun.Status {
		return false
	}
	return true
}

// Page applies offset and limit to query results. If no limit is specified, the default limit is applied.
func Page[T any](results []T, options engine.QueryOptions, defaultLimit int) []T {
	offset := max(options.Offset, 0)
	if offset >= len(results) {
		return []T{}
	}

	limit := options.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	end := min(offset+limit, len(results))
	return results[offset:end]
}
