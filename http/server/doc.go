// Package server implements the engine's HTTP API.
/*
server implements handlers for each engine command and query, using a [chi] router.

Run a Server

A server requires an engine as well as a basic auth username and password.
All operations, except readiness and metrics, require basic authentication.

A server is listening on "127.0.0.1:8080".
The TCP bind address as well as various timeouts can be configured by customizing the configuration.

	server, err := server.New(e, func(o *server.Options) {
		o.BasicAuthUsername = "go-flow"
		o.BasicAuthPassword = "secret"
	})
	if err != nil {
		log.Fatalf("failed to create HTTP server: %v", err)
	}

	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGTERM)

	<-signalC

	server.Shutdown()

Errors

Engine errors are responded as RFC 9457 problem details:

  - 400: VALIDATION
  - 404: NOT_FOUND
  - 409: CONFLICT, ALREADY_TERMINAL, NOT_CANCELLABLE
  - 422: DEFINITION_INVALID, INVALID_SLA_ORDERING, NO_VIABLE_FLOW

Any other error is logged and responded with HTTP 500.

Event Streams

GET /process-instances/{id}/elements/{elementId}/events streams the events of an element as
server-sent events. Stored events are sent first, followed by live events.

[chi]: https://github.com/go-chi/chi
*/
package server
