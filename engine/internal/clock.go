package internal

import (
	"fmt"
	"sync"
	"time"

	"github.com/gclaussn/go-flow/engine"
)

// Clock is the time source of an engine: wall time, shifted by an offset that only grows.
type Clock struct {
	mutex  sync.RWMutex
	offset time.Duration
}

func (c *Clock) Now() time.Time {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return time.Now().Add(c.offset).UTC().Truncate(time.Millisecond)
}

// Set moves the clock forward to t.
func (c *Clock) Set(t time.Time) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now().Add(c.offset).UTC().Truncate(time.Millisecond)
	if t.Before(now) {
		return engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to set time",
			Detail: fmt.Sprintf("time %s is before engine time %s", t.UTC().Format(time.RFC3339Nano), now.Format(time.RFC3339Nano)),
		}
	}

	c.offset += t.Sub(now)
	return nil
}
