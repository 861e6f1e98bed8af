package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/http/common"
	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func New(e engine.Engine, customizers ...func(*Options)) (*Server, error) {
	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	// server-wide context for incoming requests
	httpServerCtx, httpServerCancel := context.WithCancel(context.Background())

	server := Server{
		engine:           e,
		httpServerCtx:    httpServerCtx,
		httpServerCancel: httpServerCancel,
		logger:           options.Logger.Named("http"),
		options:          options,
	}

	r := chi.NewRouter()

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.Get(common.PathReadiness, server.checkReadiness)
	r.Method(http.MethodGet, common.PathMetrics, promhttp.HandlerFor(options.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(basicAuth(options.BasicAuthUsername, options.BasicAuthPassword, server.logger))

		// long running operations, not limited by the handler timeout
		r.Get(common.PathElementEvents, server.streamEvents)
		r.Get(common.PathProcessInstancesWait, server.waitProcessInstance)

		r.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return http.TimeoutHandler(next, options.HandlerTimeout, "handler timed out")
			})

			// operations:start
			r.Post(common.PathEventsQuery, server.queryEvents)

			r.Post(common.PathProcesses, server.createProcess)

			r.Post(common.PathProcessInstances, server.startProcessInstance)
			r.Get(common.PathProcessInstance, server.getProcessInstance)
			r.Patch(common.PathProcessInstancesCancel, server.cancelProcessInstance)
			r.Delete(common.PathProcessInstancesEvents, server.clearHistory)
			r.Post(common.PathProcessInstancesQuery, server.queryProcessInstances)
			r.Get(common.PathProcessInstancesVariables, server.getVariables)

			r.Get(common.PathElementSnapshot, server.getSnapshot)

			r.Patch(common.PathTaskRunsCancel, server.cancelTask)
			r.Patch(common.PathTaskRunsComplete, server.completeTask)
			r.Post(common.PathTaskRunsQuery, server.queryTaskRuns)

			r.Patch(common.PathTime, server.setTime)
			// operations:end
		})
	})

	httpServer := http.Server{
		Addr: options.BindAddress,
		BaseContext: func(_ net.Listener) context.Context {
			return httpServerCtx
		},
		Handler:      r,
		IdleTimeout:  options.IdleTimeout,
		ReadTimeout:  options.ReadTimeout,
		WriteTimeout: options.WriteTimeout,
	}

	if options.Configure != nil {
		options.Configure(&httpServer)
	}

	server.httpServer = &httpServer

	return &server, nil
}

func NewOptions() Options {
	return Options{
		BindAddress: "127.0.0.1:8080",

		HandlerTimeout: 30 * time.Second,
		IdleTimeout:    60 * time.Second,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   35 * time.Second,

		ShutdownDelay:       5 * time.Second,
		ShutdownPeriod:      30 * time.Second,
		ShutdownForcePeriod: 5 * time.Second,

		Gatherer: prometheus.DefaultGatherer,
		Logger:   hclog.NewNullLogger(),
	}
}

type Options struct {
	BindAddress string // TCP address for the server to listen on.

	HandlerTimeout time.Duration // Time limit for HTTP handler - when reached, the handler responds with HTTP 503. Event streams and waits are not limited.
	IdleTimeout    time.Duration // Maximum amount of time to wait for the next request, when keep-alives are enabled - see http.Server#IdleTimeout
	ReadTimeout    time.Duration // Maximum duration for reading the entire request - see http.Server#ReadTimeout
	WriteTimeout   time.Duration // Maximum duration before timing out writing the response - see http.Server#WriteTimeout

	ShutdownDelay       time.Duration // Delay between the shutdown signal and the actual shutdown, used to propagate readiness.
	ShutdownPeriod      time.Duration // Period for a graceful shutdown without interrupting ongoing requests.
	ShutdownForcePeriod time.Duration // Period for a forced shutdown, where ongoing requests are canceled.

	BasicAuthUsername string
	BasicAuthPassword string

	SetTimeEnabled bool // Determines if the set time operation is permitted.

	Gatherer prometheus.Gatherer // Source of the metrics, exposed via /metrics.
	Logger   hclog.Logger

	Configure func(*http.Server) // Optional function, used to configure the underlying HTTP server if needed.
}

func (o Options) Validate() error {
	if o.BasicAuthUsername == "" || o.BasicAuthPassword == "" {
		return errors.New("basic auth username and password must be provided")
	}
	if o.HandlerTimeout <= 0 {
		return errors.New("handler timeout must be greater than 0")
	}
	if o.Gatherer == nil {
		return errors.New("gatherer must not be nil")
	}
	if o.Logger == nil {
		return errors.New("logger must not be nil")
	}
	return nil
}

type Server struct {
	engine           engine.Engine
	httpServer       *http.Server
	httpServerCtx    context.Context    // server-wide base context for incoming requests
	httpServerCancel context.CancelFunc // invoked after server shutdown to cancel to ongoing requests
	isShuttingDown   atomic.Bool
	logger           hclog.Logger
	options          Options
}

// Handler returns the server's root handler, which can be served by an [httptest.Server].
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe listens on the bind address and serves HTTP in a separate goroutine.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}

	s.logger.Info("server listening", "address", listener.Addr().String())

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			s.logger.Error("failed to serve HTTP", "err", err)
		}
	}()

	return nil
}

func (s *Server) Shutdown() {
	s.isShuttingDown.Store(true)
	s.logger.Info("server is shutting down")

	time.Sleep(s.options.ShutdownDelay)
	s.logger.Info("server is shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.options.ShutdownPeriod)
	defer shutdownCancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.httpServerCancel()
	if err != nil {
		s.logger.Warn("failed to shutdown HTTP server", "err", err)
		time.Sleep(s.options.ShutdownForcePeriod)
	}

	s.engine.Shutdown()
	s.logger.Info("server shut down")
}

// command handler

func (s *Server) cancelProcessInstance(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	var cmd engine.CancelProcessInstanceCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	cmd.Id = id

	processInstance, err := s.engine.CancelProcessInstance(r.Context(), cmd)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	encodeJSONResponseBody(w, r, s.logger, processInstance, http.StatusOK)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	var cmd engine.CancelTaskCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	taskRun, err := s.engine.CancelTask(r.Context(), cmd)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	encodeJSONResponseBody(w, r, s.logger, taskRun, http.StatusOK)
}

func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	cmd := engine.ClearHistoryCmd{
		ProcessInstanceId: id,
		ElementId:         r.URL.Query().Get(common.QueryElementId),
	}

	if err := s.engine.ClearHistory(r.Context(), cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	var cmd engine.CompleteTaskCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	taskRun, err := s.engine.CompleteTask(r.Context(), cmd)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	encodeJSONResponseBody(w, r, s.logger, taskRun, http.StatusOK)
}

func (s *Server) createProcess(w http.ResponseWriter, r *http.Request) {
	var cmd engine.CreateProcessCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	process, err := s.engine.CreateProcess(r.Context(), cmd)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	encodeJSONResponseBody(w, r, s.logger, process, http.StatusCreated)
}

func (s *Server) getProcessInstance(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	processInstance, err := s.engine.GetProcessInstance(r.Context(), engine.GetProcessInstanceCmd{Id: id})
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	encodeJSONResponseBody(w, r, s.logger, processInstance, http.StatusOK)
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}
	elementId, err := parsePathValue(r, "elementId")
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	snapshot, err := s.engine.GetSnapshot(r.Context(), engine.GetSnapshotCmd{
		ProcessInstanceId: id,
		ElementId:         elementId,
		ThreadId:          r.URL.Query().Get(common.QueryThreadId),
	})
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	encodeJSONResponseBody(w, r, s.logger, snapshot, http.StatusOK)
}

func (s *Server) getVariables(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	variables, err := s.engine.GetVariables(r.Context(), engine.GetVariablesCmd{
		ProcessInstanceId: id,
		Names:             parseNames(r),
	})
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	resBody := common.GetVariablesRes{
		Count:     len(variables),
		Variables: variables,
	}

	encodeJSONResponseBody(w, r, s.logger, resBody, http.StatusOK)
}

func (s *Server) setTime(w http.ResponseWriter, r *http.Request) {
	if !s.options.SetTimeEnabled {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var cmd engine.SetTimeCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	if err := s.engine.SetTime(r.Context(), cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) startProcessInstance(w http.ResponseWriter, r *http.Request) {
	var cmd engine.StartProcessInstanceCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	processInstance, err := s.engine.StartProcessInstance(r.Context(), cmd)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	encodeJSONResponseBody(w, r, s.logger, processInstance, http.StatusCreated)
}

func (s *Server) waitProcessInstance(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	// waiting is only limited by the request context
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("failed to clear write deadline", "err", err)
	}

	processInstance, err := s.engine.WaitProcessInstance(r.Context(), engine.WaitProcessInstanceCmd{Id: id})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	encodeJSONResponseBody(w, r, s.logger, processInstance, http.StatusOK)
}

// query handler

func (s *Server) queryEvents(w http.ResponseWriter, r *http.Request) {
	var criteria eventlog.Criteria
	if err := decodeJSONRequestBody(w, r, &criteria); err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	results, err := s.engine.QueryEvents(r.Context(), criteria)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	resBody := common.EventRes{
		Count:   len(results),
		Results: results,
	}

	encodeJSONResponseBody(w, r, s.logger, resBody, http.StatusOK)
}

func (s *Server) queryProcessInstances(w http.ResponseWriter, r *http.Request) {
	options, err := parseQueryOptions(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	var criteria engine.ProcessInstanceCriteria
	if err := decodeJSONRequestBody(w, r, &criteria); err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	if options != (engine.QueryOptions{}) {
		criteria.Options = options
	}

	results, err := s.engine.QueryProcessInstances(r.Context(), criteria)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	resBody := common.ProcessInstanceRes{
		Count:   len(results),
		Results: results,
	}

	encodeJSONResponseBody(w, r, s.logger, resBody, http.StatusOK)
}

func (s *Server) queryTaskRuns(w http.ResponseWriter, r *http.Request) {
	options, err := parseQueryOptions(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	var criteria engine.TaskRunCriteria
	if err := decodeJSONRequestBody(w, r, &criteria); err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	if options != (engine.QueryOptions{}) {
		criteria.Options = options
	}

	results, err := s.engine.QueryTaskRuns(r.Context(), criteria)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	resBody := common.TaskRunRes{
		Count:   len(results),
		Results: results,
	}

	encodeJSONResponseBody(w, r, s.logger, resBody, http.StatusOK)
}

// other

func (s *Server) checkReadiness(w http.ResponseWriter, r *http.Request) {
	if s.isShuttingDown.Load() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ready"))
}
