package client

import (
	"context"
	"net/http"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/http/common"
)

func (c *client) QueryEvents(ctx context.Context, criteria eventlog.Criteria) ([]eventlog.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	var resBody common.EventRes
	if err := c.do(ctx, http.MethodPost, common.PathEventsQuery, criteria, &resBody); err != nil {
		return nil, err
	}
	return resBody.Results, nil
}

func (c *client) QueryProcessInstances(ctx context.Context, criteria engine.ProcessInstanceCriteria) ([]engine.ProcessInstance, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	path := common.PathProcessInstancesQuery + encodeQueryOptions(criteria.Options)

	var resBody common.ProcessInstanceRes
	if err := c.do(ctx, http.MethodPost, path, criteria, &resBody); err != nil {
		return nil, err
	}
	return resBody.Results, nil
}

func (c *client) QueryTaskRuns(ctx context.Context, criteria engine.TaskRunCriteria) ([]engine.TaskRun, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	path := common.PathTaskRunsQuery + encodeQueryOptions(criteria.Options)

	var resBody common.TaskRunRes
	if err := c.do(ctx, http.MethodPost, path, criteria, &resBody); err != nil {
		return nil, err
	}
	return resBody.Results, nil
}
