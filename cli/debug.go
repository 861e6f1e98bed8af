package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gclaussn/go-flow/http/common"
	"github.com/hashicorp/go-hclog"
)

func newDebugger(w io.Writer) debugger {
	return debugger{logger: hclog.New(&hclog.LoggerOptions{
		Name:   program,
		Level:  hclog.Debug,
		Output: w,
	})}
}

// debugger logs HTTP requests and responses of the client.
type debugger struct {
	logger hclog.Logger
}

func (d debugger) request(req *http.Request) error {
	if req.Body == nil {
		d.logger.Debug("request", "method", req.Method, "url", req.URL.String())
		return nil
	}

	b, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}

	req.Body = io.NopCloser(bytes.NewReader(b)) // make body readable again

	d.logger.Debug("request", "method", req.Method, "url", req.URL.String(), "body", indentJson(b))
	return nil
}

func (d debugger) response(res *http.Response) error {
	contentType := res.Header.Get(common.HeaderContentType)

	args := []any{"status", res.StatusCode}
	for name := range res.Header {
		args = append(args, name, res.Header.Get(name))
	}

	if contentType == common.ContentTypeEventStream {
		d.logger.Debug("response", args...) // stream is read by the subscriber
		return nil
	}

	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		d.logger.Error("failed to read response body", "err", err)
		return err
	}

	res.Body = io.NopCloser(bytes.NewReader(b)) // make body readable again

	if len(b) != 0 {
		if contentType == common.ContentTypeJson || contentType == common.ContentTypeProblemJson {
			args = append(args, "body", indentJson(b))
		} else {
			args = append(args, "body", string(b))
		}
	}

	d.logger.Debug("response", args...)
	return nil
}

func indentJson(b []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		return string(b)
	}
	return buf.String()
}
