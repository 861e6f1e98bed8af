package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/http/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	envLookupAllowed = "envLookupAllowed" // flag level annotation that allows an environment variable lookup
	envPrefix        = "GO_FLOW_"
	noEngineRequired = "noEngineRequired" // annotation, indicating that no engine is required to run the command
	program          = "go-flow"

	envAuthorization         = envPrefix + "AUTHORIZATION"
	envHttpBasicAuthUsername = envPrefix + "HTTP_BASIC_AUTH_USERNAME"
	envHttpBasicAuthPassword = envPrefix + "HTTP_BASIC_AUTH_PASSWORD"
)

func New(version string) *Cli {
	cli := Cli{version: version}

	cli.rootCmd = newRootCmd(&cli)

	return &cli
}

type Cli struct {
	version string

	rootCmd *cobra.Command

	e            engine.Engine
	debugEnabled bool
}

func (c *Cli) Execute() int {
	if err := c.rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func (c *Cli) help(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

func newRootCmd(cli *Cli) *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)

	c := cobra.Command{
		Use:   program,
		Short: "A client for go-flow HTTP servers",
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			c.SilenceUsage = true

			if _, ok := c.Annotations[noEngineRequired]; ok {
				return nil
			}

			if cli.e != nil {
				return nil // skip client creation when testing
			}

			lookupEnv(c.Flags())

			authorization, err := resolveAuthorization()
			if err != nil {
				return err
			}

			e, err := client.New(url, authorization, func(o *client.Options) {
				o.Timeout = timeout

				if cli.debugEnabled {
					d := newDebugger(c.ErrOrStderr())
					o.OnRequest = d.request
					o.OnResponse = d.response
				}
			})
			if err != nil {
				return fmt.Errorf("failed to create HTTP client: %v", err)
			}

			cli.e = e
			return nil
		},
		RunE: cli.help,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cli.e != nil {
				cli.e.Shutdown()
			}
		},
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.PersistentFlags().StringVar(&url, "url", "", "HTTP server URL")
	c.PersistentFlags().DurationVar(&timeout, "timeout", 40*time.Second, "Time limit for requests made by the HTTP client")
	c.PersistentFlags().BoolVar(&cli.debugEnabled, "debug", false, "Log HTTP requests and responses")

	c.PersistentFlags().SetAnnotation("url", envLookupAllowed, nil)
	c.PersistentFlags().SetAnnotation("timeout", envLookupAllowed, nil)
	c.PersistentFlags().SetAnnotation("debug", envLookupAllowed, nil)

	c.AddCommand(newEventCmd(cli))
	c.AddCommand(newProcessCmd(cli))
	c.AddCommand(newProcessInstanceCmd(cli))
	c.AddCommand(newTaskRunCmd(cli))
	c.AddCommand(newSetTimeCmd(cli))
	c.AddCommand(newVersionCmd(cli))

	return &c
}

func newSetTimeCmd(cli *Cli) *cobra.Command {
	var (
		timeV timeValue

		cmd engine.SetTimeCmd
	)

	c := cobra.Command{
		Use:   "set-time",
		Short: "Set the engine's time",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.Time = time.Time(timeV)

			return cli.e.SetTime(context.Background(), cmd)
		},
	}

	c.Flags().Var(&timeV, "time", "A future point in time")

	c.MarkFlagRequired("time")

	return &c
}

func newVersionCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(c *cobra.Command, _ []string) {
			c.Println(cli.version)
		},
		Annotations: map[string]string{noEngineRequired: ""},
	}

	return &c
}

// lookupEnv sets flags, which allow an environment variable lookup and are not set explicitly.
func lookupEnv(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		if _, ok := f.Annotations[envLookupAllowed]; !ok {
			return
		}

		// e.g. url -> GO_FLOW_URL
		key := envPrefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")

		if value, ok := os.LookupEnv(key); ok {
			f.Value.Set(value)
		}
	})
}

// resolveAuthorization returns the value of the HTTP Authorization header. A basic auth header is built,
// when no authorization is set.
func resolveAuthorization() (string, error) {
	if authorization := os.Getenv(envAuthorization); authorization != "" {
		return authorization, nil
	}

	username := os.Getenv(envHttpBasicAuthUsername)
	password := os.Getenv(envHttpBasicAuthPassword)

	if username == "" || password == "" {
		return "", fmt.Errorf(
			"no authorization set.\n\nuse environment variable %s or %s and %s\n ",
			envAuthorization,
			envHttpBasicAuthUsername,
			envHttpBasicAuthPassword,
		)
	}

	usernamePassword := fmt.Sprintf("%s:%s", username, password)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(usernamePassword)), nil
}
