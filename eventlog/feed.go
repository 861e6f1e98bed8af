package eventlog

import (
	"context"
	"errors"
	"hash/fnv"
	"slices"
	"sync"
)

// ErrLagging is reported by a subscription, which was closed since its consumer fell behind.
var ErrLagging = errors.New("subscriber is lagging behind")

const stripeCount = 64

// NewFeed decorates a store with live subscriptions. bufferSize limits the number of live events,
// a subscription buffers before it is closed.
func NewFeed(store Store, bufferSize int) *Feed {
	if bufferSize < 1 {
		bufferSize = 1
	}

	return &Feed{
		Store:         store,
		bufferSize:    bufferSize,
		subscriptions: make(map[string][]*Subscription),
	}
}

// Feed publishes appended events to subscribers. Appends and subscribes of the same process instance are
// serialized, so that a subscription sees every event exactly once: either as history or live.
type Feed struct {
	Store

	bufferSize int
	stripes    [stripeCount]sync.Mutex

	mutex         sync.Mutex // guards subscriptions
	subscriptions map[string][]*Subscription
}

func (f *Feed) Append(ctx context.Context, events ...Event) ([]Event, error) {
	var stripes []int
	for _, e := range events {
		if i := stripe(e.ProcessInstanceId); !slices.Contains(stripes, i) {
			stripes = append(stripes, i)
		}
	}

	slices.Sort(stripes)
	for _, i := range stripes {
		f.stripes[i].Lock()
		defer f.stripes[i].Unlock()
	}

	appended, err := f.Store.Append(ctx, events...)
	if err != nil {
		return nil, err
	}

	f.publish(appended)
	return appended, nil
}

// Snapshot reads the view of the decorated store.
func (f *Feed) Snapshot(ctx context.Context, key Key) (Snapshot, error) {
	return ReadSnapshot(ctx, f.Store, key)
}

// Subscribe returns the events, matching the criteria, that have been stored, followed by live events.
// The subscription ends, when the context is done or when it is closed.
func (f *Feed) Subscribe(ctx context.Context, criteria Criteria) (*Subscription, error) {
	i := stripe(criteria.ProcessInstanceId)

	f.stripes[i].Lock()
	defer f.stripes[i].Unlock()

	history, err := f.Store.Query(ctx, criteria)
	if err != nil {
		return nil, err
	}

	c := make(chan Event, len(history)+f.bufferSize)
	for _, e := range history {
		c <- e
	}

	s := &Subscription{
		C:        c,
		c:        c,
		criteria: criteria,
		feed:     f,
		done:     make(chan struct{}),
	}

	f.mutex.Lock()
	f.subscriptions[criteria.ProcessInstanceId] = append(f.subscriptions[criteria.ProcessInstanceId], s)
	f.mutex.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

func (f *Feed) publish(events []Event) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	for _, e := range events {
		for _, s := range slices.Clone(f.subscriptions[e.ProcessInstanceId]) {
			if !s.criteria.matches(e) {
				continue
			}

			select {
			case s.c <- e:
			default:
				s.closeLocked(ErrLagging)
			}
		}
	}
}

func (f *Feed) remove(s *Subscription) {
	instanceId := s.criteria.ProcessInstanceId

	subscriptions := slices.DeleteFunc(f.subscriptions[instanceId], func(other *Subscription) bool {
		return other == s
	})

	if len(subscriptions) == 0 {
		delete(f.subscriptions, instanceId)
	} else {
		f.subscriptions[instanceId] = subscriptions
	}
}

// A Subscription delivers events via channel C, which is closed when the subscription ends.
type Subscription struct {
	C <-chan Event

	c        chan Event
	criteria Criteria
	feed     *Feed

	closed bool
	done   chan struct{}
	err    error
}

// Close ends the subscription.
func (s *Subscription) Close() {
	s.feed.mutex.Lock()
	defer s.feed.mutex.Unlock()

	s.closeLocked(nil)
}

// Err returns [ErrLagging], if the subscription was closed, because the consumer fell behind.
func (s *Subscription) Err() error {
	s.feed.mutex.Lock()
	defer s.feed.mutex.Unlock()

	return s.err
}

func (s *Subscription) closeLocked(err error) {
	if s.closed {
		return
	}

	s.closed = true
	s.err = err
	s.feed.remove(s)

	close(s.c)
	close(s.done)
}

func stripe(instanceId string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(instanceId))
	return int(h.Sum32() % stripeCount)
}
