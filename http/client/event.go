package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/http/common"
)

// Subscribe reads the server-sent events of an element. Since the server streams per element, an element ID is required.
func (c *client) Subscribe(ctx context.Context, criteria eventlog.Criteria) (<-chan eventlog.Event, error) {
	if criteria.ProcessInstanceId == "" || criteria.ElementId == "" {
		return nil, engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to subscribe",
			Detail: "process instance ID and element ID are required",
		}
	}

	path := resolveElement(common.PathElementEvents, criteria.ProcessInstanceId, criteria.ElementId) + encodeSubscription(criteria)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+path, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", common.ContentTypeEventStream)

	res, err := c.send(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusOK || !strings.HasPrefix(res.Header.Get(common.HeaderContentType), common.ContentTypeEventStream) {
		if err := decodeJSONResponseBody(res, nil); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("failed to subscribe: unexpected content type %s", res.Header.Get(common.HeaderContentType))
	}

	eventC := make(chan eventlog.Event, c.options.SubscriptionSize)

	go func() {
		defer close(eventC)
		defer res.Body.Close()

		var data strings.Builder

		scanner := bufio.NewScanner(res.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()

			if line != "" {
				if v, ok := strings.CutPrefix(line, "data:"); ok {
					data.WriteString(strings.TrimPrefix(v, " "))
				}
				continue // id and event fields are included in the data
			}

			if data.Len() == 0 {
				continue
			}

			var event eventlog.Event
			if err := json.Unmarshal([]byte(data.String()), &event); err != nil {
				return
			}
			data.Reset()

			select {
			case eventC <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return eventC, nil
}
