package client

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/eventlog"
	"github.com/gclaussn/go-flow/http/common"
)

func encodeQuery(keyValues ...string) string {
	values := make(url.Values)
	for i := 0; i+1 < len(keyValues); i += 2 {
		if keyValues[i+1] != "" {
			values.Add(keyValues[i], keyValues[i+1])
		}
	}

	if len(values) == 0 {
		return ""
	}

	return "?" + values.Encode()
}

func encodeQueryOptions(options engine.QueryOptions) string {
	var limit, offset string
	if options.Limit > 0 {
		limit = strconv.Itoa(options.Limit)
	}
	if options.Offset > 0 {
		offset = strconv.Itoa(options.Offset)
	}
	return encodeQuery(common.QueryLimit, limit, common.QueryOffset, offset)
}

func encodeSubscription(criteria eventlog.Criteria) string {
	var kind string
	if criteria.Kind != 0 {
		kind = criteria.Kind.String()
	}
	return encodeQuery(common.QueryKind, kind, common.QueryThreadId, criteria.ThreadId)
}

func resolve(path string, id string) string {
	return strings.Replace(path, "{id}", url.PathEscape(id), 1)
}

func resolveElement(path string, id string, elementId string) string {
	return strings.Replace(resolve(path, id), "{elementId}", url.PathEscape(elementId), 1)
}
