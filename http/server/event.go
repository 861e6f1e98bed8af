package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/http/common"
)

// streamEvents streams the events of an element as server-sent events. Each event is written as:
//
//	id: <event ID>
//	event: <event kind>
//	data: <event JSON>
//
// A client, that reconnects with a Last-Event-ID header, only receives events with a greater ID.
// The stream ends, when the client disconnects or falls behind.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
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
	kind, err := parseEventKind(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	var lastEventId int64
	if v := r.Header.Get(common.HeaderLastEventId); v != "" {
		lastEventId, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			encodeJSONProblemResponseBody(w, r, s.logger, common.Problem{
				Status: http.StatusBadRequest,
				Type:   common.ProblemHttpRequestBody,
				Title:  "invalid header " + common.HeaderLastEventId,
				Detail: "failed to parse value " + v,
			})
			return
		}
	}

	events, err := s.engine.Subscribe(r.Context(), eventlog.Criteria{
		ProcessInstanceId: id,
		ElementId:         elementId,
		ThreadId:          r.URL.Query().Get(common.QueryThreadId),
		Kind:              kind,
	})
	if err != nil {
		encodeJSONProblemResponseBody(w, r, s.logger, err)
		return
	}

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("failed to clear write deadline", "err", err)
	}

	w.Header().Set(common.HeaderContentType, common.ContentTypeEventStream)
	w.Header().Set(common.HeaderCacheControl, "no-cache")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		s.logger.Error("failed to flush event stream", "uri", r.RequestURI, "err", err)
		return
	}

	for event := range events {
		if event.Id <= lastEventId {
			continue
		}

		b, err := json.Marshal(event)
		if err != nil {
			s.logger.Error("failed to marshal event", "event", event.String(), "err", err)
			return
		}

		if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Id, event.Kind, b); err != nil {
			s.logger.Debug("failed to write event", "uri", r.RequestURI, "err", err)
			return
		}
		if err := rc.Flush(); err != nil {
			s.logger.Debug("failed to flush event stream", "uri", r.RequestURI, "err", err)
			return
		}
	}
}
