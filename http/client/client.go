package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/http/common"
)

func New(url string, authorization string, customizers ...func(*Options)) (engine.Engine, error) {
	if url == "" {
		return nil, errors.New("URL is empty")
	}
	if authorization == "" {
		return nil, errors.New("authorization is empty")
	}

	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	httpClient := http.Client{}

	if options.Configure != nil {
		options.Configure(&httpClient)
	}

	client := client{
		httpClient:    &httpClient,
		url:           strings.TrimSuffix(url, "/"),
		authorization: authorization,
		options:       options,
	}

	return &client, nil
}

func NewOptions() Options {
	return Options{
		SubscriptionSize: 64,
		Timeout:          40 * time.Second,
	}
}

type Options struct {
	SubscriptionSize int           // Capacity of the channel, returned by Subscribe.
	Timeout          time.Duration // Time limit for requests made by the HTTP client. Subscriptions and waits are only limited by the context.

	// OnRequest is an optional function that accepts a [*http.Request]. It is called before a HTTP request is send.
	OnRequest func(*http.Request) error
	// OnResponse is an optional function that accepts a [*http.Response]. It is called after a HTTP response is returned.
	OnResponse func(*http.Response) error

	Configure func(*http.Client) // Optional function, used to configure the underlying HTTP client.
}

func (o Options) Validate() error {
	if o.SubscriptionSize < 0 {
		return errors.New("subscription size must be greater than or equal to 0")
	}
	if o.Timeout <= 0 {
		return errors.New("timeout must be greater than 0")
	}
	return nil
}

type client struct {
	httpClient    *http.Client
	url           string
	authorization string
	options       Options
}

func (c *client) CancelProcessInstance(ctx context.Context, cmd engine.CancelProcessInstanceCmd) (engine.ProcessInstance, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	var processInstance engine.ProcessInstance
	path := resolve(common.PathProcessInstancesCancel, cmd.Id)
	if err := c.do(ctx, http.MethodPatch, path, cmd, &processInstance); err != nil {
		return engine.ProcessInstance{}, err
	}
	return processInstance, nil
}

func (c *client) CancelTask(ctx context.Context, cmd engine.CancelTaskCmd) (engine.TaskRun, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	var taskRun engine.TaskRun
	if err := c.do(ctx, http.MethodPatch, common.PathTaskRunsCancel, cmd, &taskRun); err != nil {
		return engine.TaskRun{}, err
	}
	return taskRun, nil
}

func (c *client) ClearHistory(ctx context.Context, cmd engine.ClearHistoryCmd) error {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	path := resolve(common.PathProcessInstancesEvents, cmd.ProcessInstanceId)
	if cmd.ElementId != "" {
		path = path + encodeQuery(common.QueryElementId, cmd.ElementId)
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *client) CompleteTask(ctx context.Context, cmd engine.CompleteTaskCmd) (engine.TaskRun, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	var taskRun engine.TaskRun
	if err := c.do(ctx, http.MethodPatch, common.PathTaskRunsComplete, cmd, &taskRun); err != nil {
		return engine.TaskRun{}, err
	}
	return taskRun, nil
}

func (c *client) CreateProcess(ctx context.Context, cmd engine.CreateProcessCmd) (engine.Process, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	var process engine.Process
	if err := c.do(ctx, http.MethodPost, common.PathProcesses, cmd, &process); err != nil {
		return engine.Process{}, err
	}
	return process, nil
}

func (c *client) GetProcessInstance(ctx context.Context, cmd engine.GetProcessInstanceCmd) (engine.ProcessInstance, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	var processInstance engine.ProcessInstance
	if err := c.do(ctx, http.MethodGet, resolve(common.PathProcessInstance, cmd.Id), nil, &processInstance); err != nil {
		return engine.ProcessInstance{}, err
	}
	return processInstance, nil
}

func (c *client) GetSnapshot(ctx context.Context, cmd engine.GetSnapshotCmd) (eventlog.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	path := resolveElement(common.PathElementSnapshot, cmd.ProcessInstanceId, cmd.ElementId)
	if cmd.ThreadId != "" {
		path = path + encodeQuery(common.QueryThreadId, cmd.ThreadId)
	}

	var snapshot eventlog.Snapshot
	if err := c.do(ctx, http.MethodGet, path, nil, &snapshot); err != nil {
		return eventlog.Snapshot{}, err
	}
	return snapshot, nil
}

func (c *client) GetVariables(ctx context.Context, cmd engine.GetVariablesCmd) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	path := resolve(common.PathProcessInstancesVariables, cmd.ProcessInstanceId)
	if len(cmd.Names) != 0 {
		path = path + encodeQuery(common.QueryNames, strings.Join(cmd.Names, ","))
	}

	var resBody common.GetVariablesRes
	if err := c.do(ctx, http.MethodGet, path, nil, &resBody); err != nil {
		return nil, err
	}
	return resBody.Variables, nil
}

func (c *client) SetTime(ctx context.Context, cmd engine.SetTimeCmd) error {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	return c.do(ctx, http.MethodPatch, common.PathTime, cmd, nil)
}

func (c *client) StartProcessInstance(ctx context.Context, cmd engine.StartProcessInstanceCmd) (engine.ProcessInstance, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	var processInstance engine.ProcessInstance
	if err := c.do(ctx, http.MethodPost, common.PathProcessInstances, cmd, &processInstance); err != nil {
		return engine.ProcessInstance{}, err
	}
	return processInstance, nil
}

func (c *client) WaitProcessInstance(ctx context.Context, cmd engine.WaitProcessInstanceCmd) (engine.ProcessInstance, error) {
	var processInstance engine.ProcessInstance
	if err := c.do(ctx, http.MethodGet, resolve(common.PathProcessInstancesWait, cmd.Id), nil, &processInstance); err != nil {
		return engine.ProcessInstance{}, err
	}
	return processInstance, nil
}

func (c *client) Shutdown() {
	c.httpClient.CloseIdleConnections()
}

func (c *client) do(ctx context.Context, method string, path string, reqBody any, resBody any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to create JSON request body: %v", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %v", method, err)
	}

	if reqBody != nil {
		req.Header.Set(common.HeaderContentType, common.ContentTypeJson)
	}

	res, err := c.send(req)
	if err != nil {
		return err
	}

	return decodeJSONResponseBody(res, resBody)
}

func (c *client) send(req *http.Request) (*http.Response, error) {
	if c.options.OnRequest != nil {
		if err := c.options.OnRequest(req); err != nil {
			return nil, err
		}
	}

	req.Header.Set(common.HeaderAuthorization, c.authorization)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s %s: %v", req.Method, req.URL.Path, err)
	}

	if c.options.OnResponse != nil {
		if err := c.options.OnResponse(res); err != nil {
			res.Body.Close()
			return nil, err
		}
	}

	return res, nil
}
