package cli

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHelp(t *testing.T) {
	assert := assert.New(t)

	e := mustCreateEngine(t)

	rootCmd := newRootCmd(&Cli{e: e})

	rootCmd.SetArgs([]string{})
	assert.NoError(rootCmd.Execute())

	rootCmd.SetArgs([]string{"event"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"process"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"process-instance"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"task-run"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"version"})
	assert.NoError(rootCmd.Execute())

	rootCmd.SetArgs([]string{"process", "create", "--help"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"set-time", "--help"})
	assert.NoError(rootCmd.Execute())
}

func TestVersion(t *testing.T) {
	cli := New("1.2.3")

	var out bytes.Buffer
	cli.rootCmd.SetOut(&out)
	cli.rootCmd.SetArgs([]string{"version"})

	assert.Equal(t, 0, cli.Execute())
	assert.Equal(t, "1.2.3\n", out.String())
}

func TestRequiredFlags(t *testing.T) {
	e := mustCreateEngine(t)

	_, err := execute(e, []string{"process-instance", "get"})
	assert.EqualError(t, err, `required flag(s) "id" not set`)

	_, err = execute(e, []string{"task-run", "cancel", "--process-instance-id", "x"})
	assert.EqualError(t, err, `required flag(s) "element-id" not set`)
}

func TestResolveAuthorization(t *testing.T) {
	assert := assert.New(t)

	t.Run("authorization", func(t *testing.T) {
		t.Setenv(envAuthorization, "Bearer token")

		authorization, err := resolveAuthorization()
		assert.NoError(err)
		assert.Equal("Bearer token", authorization)
	})

	t.Run("basic auth", func(t *testing.T) {
		t.Setenv(envAuthorization, "")
		t.Setenv(envHttpBasicAuthUsername, "user")
		t.Setenv(envHttpBasicAuthPassword, "pass")

		authorization, err := resolveAuthorization()
		assert.NoError(err)
		assert.Equal("Basic dXNlcjpwYXNz", authorization)
	})

	t.Run("returns error when not set", func(t *testing.T) {
		t.Setenv(envAuthorization, "")
		t.Setenv(envHttpBasicAuthUsername, "user")
		t.Setenv(envHttpBasicAuthPassword, "")

		_, err := resolveAuthorization()
		assert.ErrorContains(err, envHttpBasicAuthPassword)
	})
}

func TestDebugger(t *testing.T) {
	assert := assert.New(t)

	var out bytes.Buffer
	d := newDebugger(&out)

	// given
	req, err := http.NewRequest(http.MethodPost, "http://localhost:8080/process-instances", strings.NewReader(`{"processId":"a"}`))
	assert.NoError(err)

	res := &http.Response{
		StatusCode: http.StatusCreated,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"id":"b"}`)),
	}

	// when
	assert.NoError(d.request(req))
	assert.NoError(d.response(res))

	// then
	reqBody, err := io.ReadAll(req.Body)
	assert.NoError(err)
	assert.Equal(`{"processId":"a"}`, string(reqBody))

	resBody, err := io.ReadAll(res.Body)
	assert.NoError(err)
	assert.Equal(`{"id":"b"}`, string(resBody))

	assert.Contains(out.String(), "/process-instances")
	assert.Contains(out.String(), "status=201")
}
