// Package client is used to interact with an engine via HTTP.
/*
client provides a full implementation of the [engine.Engine] interface.

Create a Client

A client requires the base URL of a HTTP server and an authorization string, using basic authentication.

	client, err := client.New("http://localhost:8080", "Basic dGVzdHVzZXJuYW1lOnRlc3RwYXNzd29yZA==")
	if err != nil {
		log.Fatalf("failed to create HTTP client: %v", err)
	}

	defer client.Shutdown()

Errors

Problems, which represent an engine error, are returned as [engine.Error] with the same type and causes.
HTTP related problems like an invalid request body are returned as [common.Problem].

Subscribe to Events

Subscribe reads the server-sent events of a single element. The returned channel is closed,
when the context is done, the server ends the stream or the subscriber has fallen behind.

	eventC, err := client.Subscribe(ctx, eventlog.Criteria{
		ProcessInstanceId: processInstance.Id,
		ElementId:         "analyze",
	})
*/
package client
