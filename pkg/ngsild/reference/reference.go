package reference

import (
	"errors"
	"fmt"

	ngsierrors "github.com/diwise/context-bridge/pkg/ngsild/errors"
	"github.com/diwise/context-bridge/pkg/ngsild/identity"
	"github.com/diwise/context-bridge/pkg/ngsild/types"
	"github.com/diwise/context-bridge/pkg/ngsild/types/entities"
)

type config struct {
	entityType string
}

type Option func(*config)

// AsType resolves the snapshot as an entity of the given type, regardless of
// the type segment of its id. An empty name is ignored.
func AsType(entityType string) Option {
	return func(cfg *config) {
		if entityType != "" {
			cfg.entityType = entityType
		}
	}
}

// TryResolve rehydrates snapshot into a live entity bound to conn, using the
// factory that conn has registered for the entity type. A miss is reported as
// ErrMalformedReference, ErrUnknownEntityType or ErrRehydrationFailed.
func TryResolve(conn types.Connection, snapshot map[string]any, options ...Option) (e types.Entity, err error) {
	defer func() {
		if r := recover(); r != nil {
			e = nil
			err = ngsierrors.NewRehydrationError(fmt.Sprintf("rehydration panicked: %v", r))
		}
	}()

	cfg := &config{}
	for _, option := range options {
		option(cfg)
	}

	entityType := cfg.entityType
	if entityType == "" {
		id, _ := snapshot["id"].(string)
		entityType, err = identity.TypeSegment(id)
		if err != nil {
			return nil, err
		}
	}

	if conn == nil || conn.EntityTypes() == nil {
		return nil, ngsierrors.NewUnknownEntityTypeError(entityType)
	}

	factory, ok := conn.EntityTypes().Lookup(entityType)
	if !ok {
		return nil, ngsierrors.NewUnknownEntityTypeError(entityType)
	}

	e, err = factory(conn, snapshot)
	if err != nil {
		return nil, ngsierrors.NewRehydrationError(fmt.Sprintf("failed to rehydrate %s: %s", entityType, err.Error()))
	}

	if e == nil {
		return nil, ngsierrors.NewRehydrationError(fmt.Sprintf("factory for %s returned no entity", entityType))
	}

	if live, ok := e.(types.LiveEntity); !ok || live.Metadata() == nil {
		e = entities.Bind(e, types.Metadata{Connection: conn})
	}

	return e, nil
}

// Resolve is TryResolve without the reason for a miss. It returns nil when the
// snapshot can not be resolved.
func Resolve(conn types.Connection, snapshot map[string]any, options ...Option) types.Entity {
	e, err := TryResolve(conn, snapshot, options...)
	if err != nil {
		return nil
	}
	return e
}

// IsMiss reports if err is one of the errors TryResolve uses for an unresolved reference
func IsMiss(err error) bool {
	return errors.Is(err, ngsierrors.ErrMalformedReference) ||
		errors.Is(err, ngsierrors.ErrUnknownEntityType) ||
		errors.Is(err, ngsierrors.ErrRehydrationFailed)
}
