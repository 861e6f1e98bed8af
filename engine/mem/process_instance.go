package mem

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/engine/internal"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

func newInstanceRepository(archiveSize int, archiveTTL time.Duration, onEvict func(string, *internal.Instance)) *instanceRepository {
	return &instanceRepository{
		live:    make(map[string]*internal.Instance),
		archive: expirable.NewLRU(archiveSize, onEvict, archiveTTL),
	}
}

// instanceRepository holds running process instances. Ended process instances are moved into a bounded,
// expiring archive.
type instanceRepository struct {
	mutex   sync.RWMutex
	live    map[string]*internal.Instance
	archive *expirable.LRU[string, *internal.Instance]
}

// Insert registers a started process instance, which may have already ended.
func (r *instanceRepository) Insert(i *internal.Instance) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	select {
	case <-i.Done():
		r.archive.Add(i.Id(), i)
	default:
		r.live[i.Id()] = i
	}
}

// Archive moves an ended process instance into the archive. A process instance, that has not been inserted
// yet, is archived by Insert.
func (r *instanceRepository) Archive(i *internal.Instance) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.live[i.Id()]; !ok {
		return
	}

	delete(r.live, i.Id())
	r.archive.Add(i.Id(), i)
}

func (r *instanceRepository) Select(id string) (*internal.Instance, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if i, ok := r.live[id]; ok {
		return i, nil
	}
	if i, ok := r.archive.Get(id); ok {
		return i, nil
	}

	return nil, engine.Error{
		Type:   engine.ErrorNotFound,
		Title:  "failed to find process instance",
		Detail: fmt.Sprintf("process instance %s could not be found", id),
	}
}

// Live returns the running process instances.
func (r *instanceRepository) Live() []*internal.Instance {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return slices.Collect(maps.Values(r.live))
}

func (r *instanceRepository) QueryProcessInstances(c engine.ProcessInstanceCriteria, defaultLimit int) []engine.ProcessInstance {
	results := make([]engine.ProcessInstance, 0)
	for _, i := range r.all(c.Id) {
		processInstance := i.ProcessInstance()
		if internal.MatchProcessInstance(processInstance, c) {
			results = append(results, processInstance)
		}
	}

	return internal.Page(results, c.Options, defaultLimit)
}

func (r *instanceRepository) QueryTaskRuns(c engine.TaskRunCriteria, defaultLimit int) []engine.TaskRun {
	results := make([]engine.TaskRun, 0)
	for _, i := range r.all(c.ProcessInstanceId) {
		for _, taskRun := range i.TaskRuns() {
			if internal.MatchTaskRun(taskRun, c) {
				results = append(results, taskRun)
			}
		}
	}

	return internal.Page(results, c.Options, defaultLimit)
}

// all returns the running and ended process instances, ordered by start time. If an ID is given, only the
// related process instance is returned.
func (r *instanceRepository) all(id string) []*internal.Instance {
	if id != "" {
		i, err := r.Select(id)
		if err != nil {
			return nil
		}
		return []*internal.Instance{i}
	}

	r.mutex.RLock()
	instances := slices.Collect(maps.Values(r.live))
	instances = append(instances, r.archive.Values()...)
	r.mutex.RUnlock()

	slices.SortFunc(instances, func(a *internal.Instance, b *internal.Instance) int {
		if c := a.CreatedAt().Compare(b.CreatedAt()); c != 0 {
			return c
		}
		return strings.Compare(a.Id(), b.Id())
	})

	return instances
}
