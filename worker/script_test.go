package worker

import (
	"testing"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/model"
	"github.com/stretchr/testify/assert"
)

func withScript(script string, variables map[string]any) func(*ExecutionOptions) {
	return func(o *ExecutionOptions) {
		o.Properties = model.Properties{Extensions: map[string]string{"script": script}}
		o.Variables = variables
	}
}

func TestScript(t *testing.T) {
	assert := assert.New(t)

	executor := Script()

	t.Run("complete", func(t *testing.T) {
		a := Assert(t, executor, withScript("({approved: amount < 1000, reviewer: 'auto'})", map[string]any{"amount": 500}))

		outcome := a.Outcome()
		assert.Equal(engine.OutcomeCompleted, outcome.Kind)
		assert.Equal(true, outcome.Variables["approved"])
		assert.Equal("auto", outcome.Variables["reviewer"])
	})

	t.Run("compiled script is reused", func(t *testing.T) {
		script := "({doubled: amount * 2})"

		outcome := Assert(t, executor, withScript(script, map[string]any{"amount": 1})).Outcome()
		assert.EqualValues(2, outcome.Variables["doubled"])

		outcome = Assert(t, executor, withScript(script, map[string]any{"amount": 2})).Outcome()
		assert.EqualValues(4, outcome.Variables["doubled"])

		assert.True(executor.(*scriptExecutor).cache.Contains(script))
	})

	t.Run("complete without result", func(t *testing.T) {
		outcome := Assert(t, executor, withScript("log('checked')", nil)).Outcome()
		assert.Equal(engine.OutcomeCompleted, outcome.Kind)
		assert.Nil(outcome.Variables)
	})

	t.Run("thrown object defines error code", func(t *testing.T) {
		script := "if (amount > 1000) { throw {code: 'PaymentLimitExceeded', message: 'amount exceeds limit'} }"

		outcome := Assert(t, executor, withScript(script, map[string]any{"amount": 1500})).Outcome()
		assert.Equal(engine.OutcomeFailed, outcome.Kind)
		assert.Equal("PaymentLimitExceeded", outcome.ErrorCode)
		assert.Equal("amount exceeds limit", outcome.Message)
	})

	t.Run("fails when variable is not defined", func(t *testing.T) {
		outcome := Assert(t, executor, withScript("({a: missing})", nil)).Outcome()
		assert.Equal(engine.OutcomeFailed, outcome.Kind)
		assert.Equal(ErrorCodeScriptFailure, outcome.ErrorCode)
		assert.Contains(outcome.Message, "missing is not defined")
	})

	t.Run("fails when script cannot be compiled", func(t *testing.T) {
		outcome := Assert(t, executor, withScript("({a: ", nil)).Outcome()
		assert.Equal(engine.OutcomeFailed, outcome.Kind)
		assert.Equal(ErrorCodeScriptFailure, outcome.ErrorCode)
		assert.Contains(outcome.Message, "failed to compile script")
	})

	t.Run("fails when result is not an object", func(t *testing.T) {
		outcome := Assert(t, executor, withScript("42", nil)).Outcome()
		assert.Equal(engine.OutcomeFailed, outcome.Kind)
		assert.Equal(ErrorCodeScriptFailure, outcome.ErrorCode)
	})

	t.Run("fails when script is missing", func(t *testing.T) {
		outcome := Assert(t, executor).Outcome()
		assert.Equal(engine.OutcomeFailed, outcome.Kind)
		assert.Equal(ErrorCodeMissingScript, outcome.ErrorCode)
	})

	t.Run("fails when context is done", func(t *testing.T) {
		a := Assert(t, executor, withScript("while (true) {}", nil))
		a.CancelContext()

		outcome := a.Outcome()
		assert.Equal(engine.OutcomeFailed, outcome.Kind)
		assert.Equal(ErrorCodeContextDone, outcome.ErrorCode)
	})
}
