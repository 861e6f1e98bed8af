package common

const (
	ContentTypeEventStream = "text/event-stream"
	ContentTypeJson        = "application/json"
	ContentTypeProblemJson = "application/problem+json"

	HeaderAuthorization = "Authorization"
	HeaderCacheControl  = "Cache-Control"
	HeaderContentType   = "Content-Type"
	HeaderLastEventId   = "Last-Event-ID"

	PathEventsQuery = "/events/query"

	PathProcesses = "/processes"

	PathProcessInstances          = "/process-instances"
	PathProcessInstance           = "/process-instances/{id}"
	PathProcessInstancesCancel    = "/process-instances/{id}/cancel"
	PathProcessInstancesEvents    = "/process-instances/{id}/events"
	PathProcessInstancesQuery     = "/process-instances/query"
	PathProcessInstancesVariables = "/process-instances/{id}/variables"
	PathProcessInstancesWait      = "/process-instances/{id}/wait"

	PathElementEvents   = "/process-instances/{id}/elements/{elementId}/events"
	PathElementSnapshot = "/process-instances/{id}/elements/{elementId}/snapshot"

	PathTaskRunsCancel   = "/task-runs/cancel"
	PathTaskRunsComplete = "/task-runs/complete"
	PathTaskRunsQuery    = "/task-runs/query"

	PathMetrics   = "/metrics"
	PathReadiness = "/readiness"
	PathTime      = "/time"

	QueryElementId = "elementId"
	QueryKind      = "kind"
	QueryLimit     = "limit"
	QueryNames     = "names"
	QueryOffset    = "offset"
	QueryThreadId  = "threadId"
)
