package registry

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/diwise/context-bridge/pkg/ngsild/errors"
	"github.com/diwise/context-bridge/pkg/ngsild/types"
	"github.com/diwise/context-bridge/pkg/ngsild/types/entities"
)

// Registry maps entity types to the factories that rehydrate them. It is
// populated by its owning connection and only read by everyone else.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]types.Factory
}

func New() *Registry {
	return &Registry{
		factories: map[string]types.Factory{},
	}
}

func (r *Registry) Register(entityType string, factory types.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[entityType] = factory
}

// RegisterIfAbsent registers factory unless entityType already has one and
// reports whether it did
func (r *Registry) RegisterIfAbsent(entityType string, factory types.Factory) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[entityType]; ok {
		return false
	}

	r.factories[entityType] = factory
	return true
}

func (r *Registry) Lookup(entityType string) (types.Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[entityType]
	return f, ok
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for k := range r.factories {
		names = append(names, k)
	}
	sort.Strings(names)

	return names
}

type factoryConfig struct {
	idPattern *regexp.Regexp
	tenant    string
}

type FactoryOption func(*factoryConfig)

// IDPattern makes the factory reject snapshots whose id does not match pattern
func IDPattern(pattern *regexp.Regexp) FactoryOption {
	return func(cfg *factoryConfig) {
		cfg.idPattern = pattern
	}
}

func Tenant(tenant string) FactoryOption {
	return func(cfg *factoryConfig) {
		cfg.tenant = tenant
	}
}

// NewFactory returns a factory that rehydrates keyValues snapshots into
// entities of entityType bound to the calling connection
func NewFactory(entityType string, options ...FactoryOption) types.Factory {
	cfg := &factoryConfig{tenant: entities.DefaultNGSITenant}
	for _, option := range options {
		option(cfg)
	}

	return func(conn types.Connection, snapshot map[string]any) (types.Entity, error) {
		if cfg.idPattern != nil {
			id, _ := snapshot["id"].(string)
			if !cfg.idPattern.MatchString(id) {
				return nil, errors.NewBadRequestDataError(fmt.Sprintf("id \"%s\" is not valid for type %s", id, entityType))
			}
		}

		return entities.FromKeyValues(
			snapshot,
			entities.Type(entityType),
			entities.BoundTo(conn, cfg.tenant),
		)
	}
}
