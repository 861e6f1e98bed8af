package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/engine/mem"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/http/common"
	"github.com/gclaussn/go-flow/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCreateServer(t *testing.T) (engine.Engine, *httptest.Server) {
	registry := prometheus.NewRegistry()

	e, err := mem.New(func(o *mem.Options) {
		o.Common.Registerer = registry
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	s, err := New(e, func(o *Options) {
		o.BasicAuthUsername = "test"
		o.BasicAuthPassword = "test"

		o.Gatherer = registry
	})
	if err != nil {
		t.Fatalf("failed to create HTTP server: %v", err)
	}

	httpServer := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		httpServer.Close()
		e.Shutdown()
	})

	return e, httpServer
}

func mustDo(t *testing.T, method string, url string, body string, authenticated bool) *http.Response {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != "" {
		req.Header.Set(common.HeaderContentType, common.ContentTypeJson)
	}
	if authenticated {
		req.SetBasicAuth("test", "test")
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to execute request: %v", err)
	}

	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	e, _ := mem.New()
	defer e.Shutdown()

	_, err := New(e)
	assert.EqualError(err, "basic auth username and password must be provided")

	_, err = New(e, func(o *Options) {
		o.BasicAuthUsername = "test"
		o.BasicAuthPassword = "test"
		o.HandlerTimeout = 0
	})
	assert.EqualError(err, "handler timeout must be greater than 0")
}

func TestServer(t *testing.T) {
	assert, require := assert.New(t), require.New(t)

	e, httpServer := mustCreateServer(t)

	t.Run("readiness does not require authentication", func(t *testing.T) {
		res := mustDo(t, http.MethodGet, httpServer.URL+common.PathReadiness, "", false)
		assert.Equal(http.StatusOK, res.StatusCode)
	})

	t.Run("metrics do not require authentication", func(t *testing.T) {
		res := mustDo(t, http.MethodGet, httpServer.URL+common.PathMetrics, "", false)
		assert.Equal(http.StatusOK, res.StatusCode)
	})

	t.Run("returns 401 when not authenticated", func(t *testing.T) {
		res := mustDo(t, http.MethodPost, httpServer.URL+common.PathProcessInstancesQuery, "{}", false)
		assert.Equal(http.StatusUnauthorized, res.StatusCode)
	})

	t.Run("returns 404 when path is unknown", func(t *testing.T) {
		res := mustDo(t, http.MethodGet, httpServer.URL+"/unknown", "", true)
		assert.Equal(http.StatusNotFound, res.StatusCode)
	})

	t.Run("returns 403 when set time is not enabled", func(t *testing.T) {
		res := mustDo(t, http.MethodPatch, httpServer.URL+common.PathTime, `{"time":"2030-01-01T00:00:00Z"}`, true)
		assert.Equal(http.StatusForbidden, res.StatusCode)
	})

	t.Run("returns problem when process instance is not found", func(t *testing.T) {
		res := mustDo(t, http.MethodGet, httpServer.URL+"/process-instances/not-existing", "", true)
		assert.Equal(http.StatusNotFound, res.StatusCode)
		assert.Equal(common.ContentTypeProblemJson, res.Header.Get(common.HeaderContentType))

		var problem common.Problem
		require.Nil(json.NewDecoder(res.Body).Decode(&problem))
		assert.Equal(common.ProblemNotFound, problem.Type)
	})

	t.Run("stream events", func(t *testing.T) {
		// given
		definition := model.Definition{
			Id:      "streamTest",
			Version: "1",
			Elements: []model.ElementDefinition{
				{Id: "startEvent", Type: model.ElementNoneStartEvent},
				{Id: "approve", Type: model.ElementUserTask},
				{Id: "endEvent", Type: model.ElementNoneEndEvent},
			},
			SequenceFlows: []model.SequenceFlowDefinition{
				{Id: "f1", Source: "startEvent", Target: "approve"},
				{Id: "f2", Source: "approve", Target: "endEvent"},
			},
		}

		_, err := e.CreateProcess(context.Background(), engine.CreateProcessCmd{Definition: definition})
		require.Nil(err)

		piAssert := engine.AssertStart(t, e, "streamTest")
		piAssert.IsWaitingAt("approve")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		url := httpServer.URL + "/process-instances/" + piAssert.ProcessInstance().Id + "/elements/approve/events"

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		require.Nil(err)
		req.SetBasicAuth("test", "test")

		// when
		res, err := http.DefaultClient.Do(req)
		require.Nil(err)
		defer res.Body.Close()

		// then
		assert.Equal(http.StatusOK, res.StatusCode)
		assert.Equal(common.ContentTypeEventStream, res.Header.Get(common.HeaderContentType))

		scanner := bufio.NewScanner(res.Body)

		var lines []string
		for scanner.Scan() && scanner.Text() != "" {
			lines = append(lines, scanner.Text())
		}

		require.Len(lines, 3)
		assert.True(strings.HasPrefix(lines[0], "id: "))
		assert.Equal("event: task.started", lines[1])

		var event eventlog.Event
		require.Nil(json.Unmarshal([]byte(strings.TrimPrefix(lines[2], "data: ")), &event))
		assert.Equal(eventlog.EventTaskStarted, event.Kind)
		assert.Equal("approve", event.ElementId)
	})
}
