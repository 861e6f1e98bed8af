package daemon

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/engine/mem"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/http/server"
	"github.com/gclaussn/go-flow/worker"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const program = "go-flowd"

var (
	version = "unknown-version"
)

// Run runs an engine, which is accessible via HTTP, until the process receives SIGINT or SIGTERM.
func Run(args []string) int {
	flags := flag.NewFlagSet(program, flag.ContinueOnError)
	flags.SetOutput(log.Writer())

	var confFileName string
	flags.StringVar(&confFileName, "conf", "", "read configuration from a YAML file - environment variables take precedence")

	var doListConfOpts bool
	flags.BoolVar(&doListConfOpts, "list-conf-opts", false, "list configuration options")
	var doListConf bool
	flags.BoolVar(&doListConf, "list-conf", false, "list configuration")
	var doVersion bool
	flags.BoolVar(&doVersion, "version", false, "show version")

	if err := flags.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		} else {
			return 1
		}
	}

	if doListConfOpts {
		return listConfOpts()
	}
	if doVersion {
		return showVersion()
	}

	c, err := readConf(confFileName)
	if err != nil {
		log.Printf("failed to read configuration: %v", err)
		return 1
	}

	if doListConf {
		return listConf(c)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   program,
		Level:  hclog.LevelFromString(c.LogLevel),
		Output: log.Writer(),
	})

	d, err := start(c, logger)
	if err != nil {
		logger.Error("failed to start", "err", err)
		return 1
	}

	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGTERM)

	<-signalC

	d.shutdown()
	return 0
}

func showVersion() int {
	log.Println(version)
	return 0
}

// daemon holds the components, started by the daemon, in start order.
type daemon struct {
	logger hclog.Logger

	store  eventlog.Store
	e      engine.Engine
	server *server.Server
}

func start(c conf, logger hclog.Logger) (*daemon, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := newStore(c, logger.Named("eventlog"))
	if err != nil {
		return nil, err
	}

	e, err := mem.New(func(o *mem.Options) {
		o.Common.CancelGracePeriod = c.Engine.CancelGracePeriod
		o.Common.DefaultRetryLimit = c.Engine.DefaultRetryLimit
		o.Common.EngineId = c.EngineId
		o.Common.EventLog = store
		o.Common.Executors = map[string]engine.TaskExecutor{
			"script": worker.Script(),
		}
		o.Common.Logger = logger.Named("engine")
		o.Common.Registerer = registry

		o.ArchiveSize = c.Engine.ArchiveSize
		o.ArchiveTTL = c.Engine.ArchiveTTL
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create engine: %v", err)
	}

	s, err := server.New(e, func(o *server.Options) {
		o.BindAddress = c.Http.BindAddress
		o.ReadTimeout = c.Http.ReadTimeout
		o.WriteTimeout = c.Http.WriteTimeout

		o.BasicAuthUsername = c.Http.BasicAuthUsername
		o.BasicAuthPassword = c.Http.BasicAuthPassword

		o.SetTimeEnabled = c.Http.SetTimeEnabled

		o.Gatherer = registry
		o.Logger = logger.Named("http")
	})
	if err != nil {
		e.Shutdown()
		_ = store.Close()
		return nil, fmt.Errorf("failed to create HTTP server: %v", err)
	}

	if err := s.ListenAndServe(); err != nil {
		e.Shutdown()
		_ = store.Close()
		return nil, err
	}

	logger.Info("started", "version", version, "engineId", c.EngineId, "eventLog", c.EventLog.Backend, "bindAddress", c.Http.BindAddress)

	return &daemon{
		logger: logger,
		store:  store,
		e:      e,
		server: s,
	}, nil
}

func (d *daemon) shutdown() {
	d.server.Shutdown()
	d.logger.Info("server shut down")
	d.e.Shutdown()
	d.logger.Info("engine shut down")

	if err := d.store.Close(); err != nil {
		d.logger.Error("failed to close event log", "err", err)
	}
}

func newStore(c conf, logger hclog.Logger) (eventlog.Store, error) {
	customizer := func(o *eventlog.Options) {
		o.Logger = logger
		o.NodeId = eventlog.NodeId(c.EngineId)
	}

	var (
		store eventlog.Store
		err   error
	)

	switch c.EventLog.Backend {
	case backendPg:
		store, err = eventlog.NewPgStore(c.EventLog.DSN, customizer)
	case backendSQLite:
		store, err = eventlog.NewSQLiteStore(c.EventLog.DSN, customizer)
	default:
		store, err = eventlog.NewMemStore(customizer)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s event log: %v", c.EventLog.Backend, err)
	}
	return store, nil
}
