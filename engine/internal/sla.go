package internal

import (
	"fmt"
	"slices"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/model"
)

// slaReference is the point in time, SLA offsets are compared at, since the length of calendar based
// durations like P1M depends on it.
var slaReference = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ValidateSLA ensures that offsets are positive, kinds are unique and offsets strictly increase across
// WARNING < ESCALATION < TIMEOUT, where present.
func ValidateSLA(slas []model.SLA) error {
	if len(slas) == 0 {
		return nil
	}

	sorted := slices.Clone(slas)
	slices.SortStableFunc(sorted, func(a model.SLA, b model.SLA) int {
		return int(a.Kind) - int(b.Kind)
	})

	var prev time.Time
	for i, sla := range sorted {
		if sla.Kind < model.TimerWarning || sla.Kind > model.TimerTimeout {
			return invalidSLAOrdering("invalid SLA kind %d", sla.Kind)
		}
		if _, err := model.NewISO8601Duration(sla.Offset.String()); err != nil {
			return invalidSLAOrdering("%s offset: %v", sla.Kind, err)
		}

		due := sla.Offset.Calculate(slaReference)
		if !due.After(slaReference) {
			return invalidSLAOrdering("%s offset %s must be positive", sla.Kind, sla.Offset)
		}

		if i == 0 {
			prev = due
			continue
		}

		if sorted[i-1].Kind == sla.Kind {
			return invalidSLAOrdering("duplicate SLA kind %s", sla.Kind)
		}
		if !due.After(prev) {
			return invalidSLAOrdering("%s offset %s must be greater than %s offset %s", sla.Kind, sla.Offset, sorted[i-1].Kind, sorted[i-1].Offset)
		}

		prev = due
	}

	return nil
}

func invalidSLAOrdering(format string, args ...any) error {
	return engine.Error{
		Type:   engine.ErrorInvalidSLAOrdering,
		Title:  "invalid SLA ordering",
		Detail: fmt.Sprintf(format, args...),
	}
}
