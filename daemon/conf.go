package daemon

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

const (
	backendMem    = "mem"
	backendPg     = "pg"
	backendSQLite = "sqlite"
)

// conf is read from an optional YAML file. Environment variables take precedence.
type conf struct {
	EngineId string `yaml:"engineId" env:"GO_FLOW_ENGINE_ID" env-default:"default-engine" env-description:"ID of the engine, also used to derive the node of the event ID generator"`
	LogLevel string `yaml:"logLevel" env:"GO_FLOW_LOG_LEVEL" env-default:"info" env-description:"log level: trace, debug, info, warn or error"`

	Engine   engineConf   `yaml:"engine"`
	EventLog eventLogConf `yaml:"eventLog"`
	Http     httpConf     `yaml:"http"`
}

type engineConf struct {
	ArchiveSize       int           `yaml:"archiveSize" env:"GO_FLOW_ARCHIVE_SIZE" env-default:"10000" env-description:"maximum number of ended process instances, kept in memory"`
	ArchiveTTL        time.Duration `yaml:"archiveTTL" env:"GO_FLOW_ARCHIVE_TTL" env-default:"24h" env-description:"time, an ended process instance is kept in memory"`
	CancelGracePeriod time.Duration `yaml:"cancelGracePeriod" env:"GO_FLOW_CANCEL_GRACE_PERIOD" env-default:"30s" env-description:"time, an engine-initiated cancellation waits for a task run to end"`
	DefaultRetryLimit int           `yaml:"defaultRetryLimit" env:"GO_FLOW_DEFAULT_RETRY_LIMIT" env-default:"3" env-description:"maximum number of task run retries, if an element defines no retry limit"`
}

type eventLogConf struct {
	Backend string `yaml:"backend" env:"GO_FLOW_EVENT_LOG_BACKEND" env-default:"mem" env-description:"event log backend: mem, sqlite or pg"`
	DSN     string `yaml:"dsn" env:"GO_FLOW_EVENT_LOG_DSN" env-description:"SQLite data source name or PostgreSQL database URL"`
}

type httpConf struct {
	BindAddress    string        `yaml:"bindAddress" env:"GO_FLOW_HTTP_BIND_ADDRESS" env-default:"127.0.0.1:8080" env-description:"TCP address of the engine's HTTP API to listen on"`
	ReadTimeout    time.Duration `yaml:"readTimeout" env:"GO_FLOW_HTTP_READ_TIMEOUT" env-default:"5s" env-description:"maximum duration for reading the entire request - see http.Server#ReadTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout" env:"GO_FLOW_HTTP_WRITE_TIMEOUT" env-default:"35s" env-description:"maximum duration before timing out writing the response - see http.Server#WriteTimeout"`
	SetTimeEnabled bool          `yaml:"setTimeEnabled" env:"GO_FLOW_SET_TIME_ENABLED" env-default:"false" env-description:"enable or disable the set time operation"`

	BasicAuthUsername string `yaml:"basicAuthUsername" env:"GO_FLOW_HTTP_BASIC_AUTH_USERNAME" env-required:"true" env-description:"username for basic authentication"`
	BasicAuthPassword string `yaml:"basicAuthPassword" env:"GO_FLOW_HTTP_BASIC_AUTH_PASSWORD" env-required:"true" env-description:"password for basic authentication"`
}

// readConf reads the configuration from the file, if a name is given, and from the environment.
func readConf(fileName string) (conf, error) {
	var c conf

	var err error
	if fileName != "" {
		err = cleanenv.ReadConfig(fileName, &c)
	} else {
		err = cleanenv.ReadEnv(&c)
	}
	if err != nil {
		return conf{}, err
	}

	if err := c.validate(); err != nil {
		return conf{}, err
	}
	return c, nil
}

func (c conf) validate() error {
	var errs []error

	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		errs = append(errs, fmt.Errorf("invalid log level %s", c.LogLevel))
	}

	switch c.EventLog.Backend {
	case backendMem:
	case backendPg, backendSQLite:
		if c.EventLog.DSN == "" {
			errs = append(errs, fmt.Errorf("event log backend %s requires a DSN", c.EventLog.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid event log backend %s", c.EventLog.Backend))
	}

	return errors.Join(errs...)
}

func listConf(c conf) int {
	if c.Http.BasicAuthPassword != "" {
		c.Http.BasicAuthPassword = "***"
	}
	if c.EventLog.Backend == backendPg && c.EventLog.DSN != "" {
		c.EventLog.DSN = "***"
	}

	b, err := yaml.Marshal(c)
	if err != nil {
		log.Printf("failed to marshal configuration: %v", err)
		return 1
	}

	log.SetFlags(0)
	log.Print(string(b))
	return 0
}

func listConfOpts() int {
	header := "configuration options:"

	description, err := cleanenv.GetDescription(&conf{}, &header)
	if err != nil {
		log.Printf("failed to describe configuration: %v", err)
		return 1
	}

	log.SetFlags(0)
	log.Println(description)
	return 0
}
