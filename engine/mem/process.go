package mem

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gclaussn/go-flow/engine"
	"github.com/gclaussn/go-flow/engine/internal"
	"github.com/gclaussn/go-flow/model"
)

func newProcessRepository() *processRepository {
	return &processRepository{byId: make(map[string][]*internal.Process)}
}

// processRepository holds the created processes. The versions of a process are kept in creation order.
type processRepository struct {
	mutex sync.RWMutex
	byId  map[string][]*internal.Process
}

// Create validates a definition, applies the overlays and registers the resulting process.
func (r *processRepository) Create(cmd engine.CreateProcessCmd, createdAt time.Time) (*internal.Process, error) {
	m, err := model.New(cmd.Definition)
	if err != nil {
		return nil, engine.Error{
			Type:   engine.ErrorDefinitionInvalid,
			Title:  "failed to create process",
			Detail: err.Error(),
		}
	}

	if len(cmd.Overlays) != 0 {
		m, err = m.Apply(cmd.Overlays...)
		if err != nil {
			return nil, engine.Error{
				Type:   engine.ErrorValidation,
				Title:  "failed to apply overlays",
				Detail: err.Error(),
			}
		}
	}

	process, err := internal.NewProcess(m, createdAt)
	if err != nil {
		return nil, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existing := range r.byId[process.Id] {
		if existing.Version != process.Version {
			continue
		}

		equal, err := equalDefinitions(existing.Definition, process.Definition)
		if err != nil {
			return nil, engine.Error{Type: engine.ErrorBug, Title: "failed to compare definitions", Detail: err.Error()}
		}
		if !equal {
			return nil, engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to create process",
				Detail: fmt.Sprintf("process %s has already been created with a different definition", existing),
			}
		}
		return existing, nil
	}

	r.byId[process.Id] = append(r.byId[process.Id], process)
	return process, nil
}

// Select selects a process by ID and version. If the version is empty, the latest created version is selected.
func (r *processRepository) Select(id string, version string) (*internal.Process, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	versions := r.byId[id]
	if version == "" && len(versions) != 0 {
		return versions[len(versions)-1], nil
	}

	for _, process := range versions {
		if process.Version == version {
			return process, nil
		}
	}

	detail := fmt.Sprintf("process %s could not be found", id)
	if version != "" {
		detail = fmt.Sprintf("process %s:%s could not be found", id, version)
	}

	return nil, engine.Error{
		Type:   engine.ErrorNotFound,
		Title:  "failed to find process",
		Detail: detail,
	}
}

func equalDefinitions(a model.Definition, b model.Definition) (bool, error) {
	aJson, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	bJson, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return string(aJson) == string(bJson), nil
}
