package internal

import (
	"testing"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/model"
	"github.com/stretchr/testify/assert"
)

func TestValidateSLA(t *testing.T) {
	assert := assert.New(t)

	sla := func(kind model.TimerKind, offset string) model.SLA {
		return model.SLA{Kind: kind, Offset: mustParseDuration(t, offset)}
	}

	assertInvalid := func(err error, detail string) {
		assert.IsTypef(engine.Error{}, err, "expected engine error")

		engineErr := err.(engine.Error)
		assert.Equal(engine.ErrorInvalidSLAOrdering, engineErr.Type)
		assert.Contains(engineErr.Detail, detail)
	}

	t.Run("returns error when offsets are not increasing", func(t *testing.T) {
		err := ValidateSLA([]model.SLA{
			sla(model.TimerWarning, "PT10M"),
			sla(model.TimerEscalation, "PT5M"),
		})
		assertInvalid(err, "must be greater than WARNING")
	})

	t.Run("returns error when offsets equal", func(t *testing.T) {
		err := ValidateSLA([]model.SLA{
			sla(model.TimerEscalation, "PT5M"),
			sla(model.TimerTimeout, "PT5M"),
		})
		assertInvalid(err, "must be greater than ESCALATION")
	})

	t.Run("returns error when kind is duplicated", func(t *testing.T) {
		err := ValidateSLA([]model.SLA{
			sla(model.TimerWarning, "PT5M"),
			sla(model.TimerWarning, "PT10M"),
		})
		assertInvalid(err, "duplicate SLA kind WARNING")
	})

	t.Run("returns error when offset is not positive", func(t *testing.T) {
		err := ValidateSLA([]model.SLA{{Kind: model.TimerTimeout}})
		assertInvalid(err, "must be positive")
	})

	t.Run("calendar based offsets", func(t *testing.T) {
		err := ValidateSLA([]model.SLA{
			sla(model.TimerWarning, "PT23H"),
			sla(model.TimerEscalation, "P1D"),
			sla(model.TimerTimeout, "P1M"),
		})
		assert.Nil(err)
	})

	t.Run("declaration order does not matter", func(t *testing.T) {
		err := ValidateSLA([]model.SLA{
			sla(model.TimerTimeout, "PT10M"),
			sla(model.TimerWarning, "PT3M"),
			sla(model.TimerEscalation, "PT5M"),
		})
		assert.Nil(err)
	})

	t.Run("subset of kinds", func(t *testing.T) {
		assert.Nil(ValidateSLA(nil))
		assert.Nil(ValidateSLA([]model.SLA{sla(model.TimerTimeout, "PT1S")}))
	})
}
