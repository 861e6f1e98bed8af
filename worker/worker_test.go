package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withRetryLimit(retryLimit int) func(*ExecutionOptions) {
	return func(o *ExecutionOptions) {
		o.Properties = model.Properties{RetryLimit: retryLimit}
	}
}

func mustCreateService(t *testing.T, handler Handler) engine.TaskExecutor {
	executor, err := NewService(handler, func(o *Options) {
		o.Backoff = time.Millisecond
		o.MaxBackoff = 4 * time.Millisecond
	})
	if err != nil {
		t.Fatalf("failed to create service executor: %v", err)
	}
	return executor
}

func TestNewService(t *testing.T) {
	assert := assert.New(t)

	t.Run("returns error when handler is nil", func(t *testing.T) {
		_, err := NewService(nil)
		assert.EqualError(err, "handler is nil")
	})

	t.Run("returns error when options are invalid", func(t *testing.T) {
		handler := func(TaskContext) error { return nil }

		_, err := NewService(handler, func(o *Options) {
			o.BackoffMultiplier = 0.5
		})
		assert.EqualError(err, "backoff multiplier must be greater than or equal to 1")

		_, err = NewService(handler, func(o *Options) {
			o.MaxBackoff = time.Millisecond
		})
		assert.EqualError(err, "max backoff must be greater than or equal to backoff")
	})

	t.Run("backoff is capped", func(t *testing.T) {
		executor, err := NewService(func(TaskContext) error { return nil }, func(o *Options) {
			o.Backoff = time.Second
			o.MaxBackoff = 3 * time.Second
		})
		require.New(t).Nil(err)

		assert.Equal(2*time.Second, executor.nextBackoff(time.Second))
		assert.Equal(3*time.Second, executor.nextBackoff(2*time.Second))
	})
}

func TestService(t *testing.T) {
	assert := assert.New(t)

	t.Run("complete", func(t *testing.T) {
		executor := mustCreateService(t, func(tc TaskContext) error {
			tc.SetVariables(Variables{"echo": tc.Variables().String("input")})
			return nil
		})

		a := Assert(t, executor, func(o *ExecutionOptions) {
			o.Variables = map[string]any{"input": "hello"}
		})

		outcome := a.Outcome()
		assert.Equal(engine.OutcomeCompleted, outcome.Kind)
		assert.Equal(map[string]any{"echo": "hello"}, outcome.Variables)
		assert.Empty(a.Checkpoints())
	})

	t.Run("retry until success", func(t *testing.T) {
		var attempts []int

		executor := mustCreateService(t, func(tc TaskContext) error {
			attempts = append(attempts, tc.Attempt())
			if tc.Attempt() < 2 {
				return errors.New("temporarily unavailable")
			}
			return nil
		})

		a := Assert(t, executor, withRetryLimit(3))

		outcome := a.Outcome()
		assert.Equal(engine.OutcomeCompleted, outcome.Kind)
		assert.Equal([]int{0, 1, 2}, attempts)

		// RETRY checkpoint is polled before every retry
		assert.Equal([]engine.Checkpoint{engine.CheckpointRetry, engine.CheckpointRetry}, a.Checkpoints())
	})

	t.Run("fails when retries are exhausted", func(t *testing.T) {
		var retried []error

		executor, err := NewService(func(TaskContext) error {
			return errors.New("boom")
		}, func(o *Options) {
			o.Backoff = 0
			o.OnRetry = func(_ TaskContext, err error) {
				retried = append(retried, err)
			}
		})
		require.New(t).Nil(err)

		a := Assert(t, executor, withRetryLimit(2))

		outcome := a.Outcome()
		assert.Equal(engine.OutcomeFailed, outcome.Kind)
		assert.Equal(ErrorCodeRetriesExhausted, outcome.ErrorCode)
		assert.Equal("failed after 3 attempts: boom", outcome.Message)
		assert.Len(retried, 2)
	})

	t.Run("task error is not retried", func(t *testing.T) {
		attempts := 0

		executor := mustCreateService(t, func(TaskContext) error {
			attempts++
			return NewTaskError("PaymentLimitExceeded", "amount exceeds limit of 1000")
		})

		a := Assert(t, executor, withRetryLimit(3))

		outcome := a.Outcome()
		assert.Equal(engine.OutcomeFailed, outcome.Kind)
		assert.Equal("PaymentLimitExceeded", outcome.ErrorCode)
		assert.Equal("amount exceeds limit of 1000", outcome.Message)
		assert.Equal(1, attempts)
		assert.Empty(a.Checkpoints())
	})

	t.Run("wrapped task error is not retried", func(t *testing.T) {
		executor := mustCreateService(t, func(TaskContext) error {
			return errors.Join(errors.New("charge failed"), NewTaskError("CardDeclined", "declined"))
		})

		outcome := Assert(t, executor, withRetryLimit(3)).Outcome()
		assert.Equal(engine.OutcomeFailed, outcome.Kind)
		assert.Equal("CardDeclined", outcome.ErrorCode)
	})

	t.Run("cancel is honored before retry", func(t *testing.T) {
		attempts := 0
		proceed := make(chan struct{})

		executor := mustCreateService(t, func(TaskContext) error {
			attempts++
			<-proceed
			return errors.New("boom")
		})

		a := Assert(t, executor, withRetryLimit(3))

		// when
		a.Cancel("no longer needed")
		close(proceed)

		// then
		outcome := a.Outcome()
		assert.Equal(engine.OutcomeCancelled, outcome.Kind)
		assert.Equal("no longer needed", outcome.Reason)
		assert.Equal(1, attempts)
		assert.Equal([]engine.Checkpoint{engine.CheckpointRetry}, a.Checkpoints())
	})

	t.Run("cancel interrupts backoff", func(t *testing.T) {
		failed := make(chan struct{}, 1)

		executor, err := NewService(func(TaskContext) error {
			failed <- struct{}{}
			return errors.New("boom")
		}, func(o *Options) {
			o.Backoff = time.Hour
			o.MaxBackoff = time.Hour
		})
		require.New(t).Nil(err)

		a := Assert(t, executor, withRetryLimit(3))

		// when
		<-failed
		start := time.Now()
		a.Cancel("no longer needed")

		// then
		outcome := a.Outcome()
		assert.Equal(engine.OutcomeCancelled, outcome.Kind)
		assert.Equal("no longer needed", outcome.Reason)
		assert.Less(time.Since(start), time.Second)
		assert.Equal([]engine.Checkpoint{engine.CheckpointRetry}, a.Checkpoints())
	})

	t.Run("fails when context is done", func(t *testing.T) {
		executor, err := NewService(func(TaskContext) error {
			return errors.New("boom")
		}, func(o *Options) {
			o.Backoff = time.Hour
			o.MaxBackoff = time.Hour
		})
		require.New(t).Nil(err)

		a := Assert(t, executor, withRetryLimit(1))
		a.CancelContext()

		outcome := a.Outcome()
		assert.Equal(engine.OutcomeFailed, outcome.Kind)
		assert.Equal(ErrorCodeContextDone, outcome.ErrorCode)
	})
}

func TestCallback(t *testing.T) {
	assert := assert.New(t)

	t.Run("complete", func(t *testing.T) {
		a := Assert(t, Callback())

		a.Signal(engine.Signal{Variables: map[string]any{"approved": true}})

		outcome := a.Outcome()
		assert.Equal(engine.OutcomeCompleted, outcome.Kind)
		assert.Equal(map[string]any{"approved": true}, outcome.Variables)
	})

	t.Run("fail", func(t *testing.T) {
		a := Assert(t, Callback())

		a.Signal(engine.Signal{ErrorCode: "Rejected", ErrorMessage: "request rejected"})

		outcome := a.Outcome()
		assert.Equal(engine.OutcomeFailed, outcome.Kind)
		assert.Equal("Rejected", outcome.ErrorCode)
		assert.Equal("request rejected", outcome.Message)
	})

	t.Run("cancel", func(t *testing.T) {
		a := Assert(t, Callback())

		a.Cancel("obsolete")

		outcome := a.Outcome()
		assert.Equal(engine.OutcomeCancelled, outcome.Kind)
		assert.Equal("obsolete", outcome.Reason)
	})
}
