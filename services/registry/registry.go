// Package registry holds the immutable catalog of actions the engine can run.
package registry

import (
	"fmt"
	"sort"

	"github.com/upb/action-gate/models"
)

// Entry pairs a definition with the executor for its category.
// Entries are shared and must not be mutated.
type Entry struct {
	Definition *models.ActionDefinition
	Executor   Executor
}

// Registry is read-only after construction and safe for concurrent use
// without locking.
type Registry struct {
	entries    map[string]Entry
	ids        []string
	byCategory map[string][]string
	byTier     map[models.RiskTier][]string
}

// New validates defs and resolves an executor for each one
func New(defs []models.ActionDefinition, executors ...Executor) (*Registry, error) {
	if len(executors) == 0 {
		executors = DefaultExecutors()
	}
	byCat := make(map[string]Executor, len(executors))
	for _, e := range executors {
		byCat[e.Category()] = e
	}

	r := &Registry{
		entries:    make(map[string]Entry, len(defs)),
		byCategory: make(map[string][]string),
		byTier:     make(map[models.RiskTier][]string),
	}

	for i := range defs {
		def := defs[i].Clone()
		if def.Channel == "" {
			def.Channel = models.ChannelNone
		}
		exec, ok := byCat[def.Category]
		if !ok {
			return nil, fmt.Errorf("action %q: no executor for category %q", def.ID, def.Category)
		}
		if err := checkDefinition(def, exec); err != nil {
			return nil, err
		}
		if _, dup := r.entries[def.ID]; dup {
			return nil, fmt.Errorf("action %q defined twice", def.ID)
		}

		r.entries[def.ID] = Entry{Definition: def, Executor: exec}
		r.ids = append(r.ids, def.ID)
		r.byCategory[def.Category] = append(r.byCategory[def.Category], def.ID)
		r.byTier[def.RiskTier] = append(r.byTier[def.RiskTier], def.ID)
	}

	sort.Strings(r.ids)
	for _, ids := range r.byCategory {
		sort.Strings(ids)
	}
	for _, ids := range r.byTier {
		sort.Strings(ids)
	}
	return r, nil
}

func checkDefinition(def *models.ActionDefinition, exec Executor) error {
	if def.ID == "" {
		return fmt.Errorf("action with empty id")
	}
	if !def.RiskTier.IsValid() {
		return fmt.Errorf("action %q: unknown risk tier %q", def.ID, def.RiskTier)
	}
	if !def.Channel.IsValid() {
		return fmt.Errorf("action %q: unknown channel %q", def.ID, def.Channel)
	}
	for name, spec := range def.ParameterSchema {
		if !spec.Type.IsValid() {
			return fmt.Errorf("action %q: parameter %q has unknown type %q", def.ID, name, spec.Type)
		}
	}
	if def.Channel.IsDispatchBound() {
		param := exec.DestinationParam()
		if param == "" {
			return fmt.Errorf("action %q: category %q has no destination for channel %q", def.ID, def.Category, def.Channel)
		}
		if spec, ok := def.ParameterSchema[param]; !ok || !spec.Required {
			return fmt.Errorf("action %q: destination parameter %q must be declared required", def.ID, param)
		}
	}
	return nil
}

// Lookup resolves an action id. A miss is an ordinary outcome.
func (r *Registry) Lookup(actionID string) (Entry, bool) {
	e, ok := r.entries[actionID]
	return e, ok
}

// ListByCategory returns the definitions in category ordered by id
func (r *Registry) ListByCategory(category string) []*models.ActionDefinition {
	return r.project(r.byCategory[category])
}

// ListByRiskTier returns the definitions in tier ordered by id
func (r *Registry) ListByRiskTier(tier models.RiskTier) []*models.ActionDefinition {
	return r.project(r.byTier[tier])
}

// All returns every definition ordered by id
func (r *Registry) All() []*models.ActionDefinition {
	return r.project(r.ids)
}

// Len returns the number of actions
func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) project(ids []string) []*models.ActionDefinition {
	out := make([]*models.ActionDefinition, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.entries[id].Definition.Clone())
	}
	return out
}
