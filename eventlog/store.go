package eventlog

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-hclog"
)

// A Store is an append-only event log, partitioned by process instance, element and thread.
type Store interface {
	// Append appends events atomically. Either all events are stored or none.
	// ID, sequence and creation time are assigned when not set and returned in input order.
	Append(context.Context, ...Event) ([]Event, error)

	// Query returns the events of a process instance, which match the criteria, in append order.
	Query(context.Context, Criteria) ([]Event, error)

	// Clear removes the events of a process instance or element. Sequences restart afterwards.
	Clear(context.Context, Scope) error

	// Close releases the resources of the store.
	Close() error
}

// A Viewer maintains materialized views incrementally, instead of folding the log on every read.
type Viewer interface {
	Snapshot(context.Context, Key) (Snapshot, error)
}

// ReadSnapshot returns the materialized view of a log.
func ReadSnapshot(ctx context.Context, store Store, key Key) (Snapshot, error) {
	if viewer, ok := store.(Viewer); ok {
		return viewer.Snapshot(ctx, key)
	}

	events, err := store.Query(ctx, Criteria{
		ProcessInstanceId: key.ProcessInstanceId,
		ElementId:         key.ElementId,
		ThreadId:          key.ThreadId,
	})
	if err != nil {
		return Snapshot{}, err
	}

	return Fold(key.ThreadId, events), nil
}

func NewOptions() Options {
	return Options{
		ApplicationName: "go-flow",
		Logger:          hclog.NewNullLogger(),
		NodeId:          NodeId("go-flow"),
		Timeout:         30 * time.Second,
	}
}

// Options are shared by all store implementations.
type Options struct {
	ApplicationName string        // PostgreSQL application name, if not set via database URL.
	Logger          hclog.Logger  // Logger, used for store related messages.
	NodeId          int64         // Node of the snowflake ID generator, between 0 and 1023.
	Timeout         time.Duration // Time limit for database operations, utilized when creating a store.
}

func (o Options) Validate() error {
	if o.Logger == nil {
		return errors.New("logger must not be nil")
	}
	if o.NodeId < 0 || o.NodeId > 1023 {
		return errors.New("node ID must be between 0 and 1023")
	}
	if o.Timeout <= 0 {
		return errors.New("timeout must be greater than 0")
	}
	return nil
}

// NodeId derives a snowflake node ID from an engine ID.
func NodeId(engineId string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(engineId))
	return int64(h.Sum32() % 1024)
}

func newOptions(customizers []func(*Options)) (Options, error) {
	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return Options{}, err
	}
	return options, nil
}

func newIdGenerator(nodeId int64) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(nodeId)
	if err != nil {
		return nil, fmt.Errorf("failed to create ID generator: %v", err)
	}
	return node, nil
}

var validate = validator.New()

// prepare validates events and assigns the creation time. ID and sequence are assigned by the store,
// while holding the lock of the process instance, so that IDs reflect the append order.
func prepare(events []Event) ([]Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	now := time.Now()

	prepared := make([]Event, len(events))
	for i, e := range events {
		if e.ProcessInstanceId == "" || e.ElementId == "" || e.ThreadId == "" {
			return nil, fmt.Errorf("event #%d has no process instance, element or thread ID", i)
		}
		if e.Kind.String() == "" {
			return nil, fmt.Errorf("event #%d has an invalid kind %d", i, e.Kind)
		}

		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		// truncated to millis, since stores persist millisecond precision
		e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Millisecond)

		prepared[i] = e
	}

	return prepared, nil
}

func nextId(ids *snowflake.Node, e *Event) {
	if e.Id == 0 {
		e.Id = ids.Generate().Int64()
	}
}

func validateCriteria(criteria Criteria) error {
	if err := validate.Struct(criteria); err != nil {
		return fmt.Errorf("invalid criteria: %v", err)
	}
	return nil
}

func validateScope(scope Scope) error {
	if err := validate.Struct(scope); err != nil {
		return fmt.Errorf("invalid scope: %v", err)
	}
	return nil
}
