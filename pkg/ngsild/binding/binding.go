package binding

import (
	"maps"

	"github.com/diwise/context-bridge/pkg/ngsild"
	"github.com/diwise/context-bridge/pkg/store"
)

// SliceName is the reserved name of the state slice owned by the entity store binding
const SliceName string = "ngsild"

type ConnectionStatus string

const (
	StatusPending   ConnectionStatus = "pending"
	StatusConnected ConnectionStatus = "connected"
	StatusFailed    ConnectionStatus = "failed"
)

// State reflects the connection to the context broker and the plain snapshots
// of the entities received through it. A State is never modified once it has
// been returned from the reducer.
type State struct {
	Status        ConnectionStatus          `json:"status"`
	Error         string                    `json:"error,omitempty"`
	Entities      map[string]map[string]any `json:"entities"`
	LastOperation *ngsild.Operation         `json:"lastOperation,omitempty"`
}

const (
	ActionConnectionPending     string = "ngsild/connection/pending"
	ActionConnectionEstablished string = "ngsild/connection/established"
	ActionConnectionFailed      string = "ngsild/connection/failed"
	ActionEntitiesReceived      string = "ngsild/entities/received"
	ActionEntityRemoved         string = "ngsild/entities/removed"
	ActionOperationCompleted    string = "ngsild/operation/completed"
)

func ConnectionPending() store.Action {
	return store.NewAction(ActionConnectionPending, nil)
}

func ConnectionEstablished() store.Action {
	return store.NewAction(ActionConnectionEstablished, nil)
}

func ConnectionFailed(err error) store.Action {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return store.NewAction(ActionConnectionFailed, msg)
}

// EntitiesReceived carries plain snapshots, as produced by the snapshot package
func EntitiesReceived(snapshots []map[string]any) store.Action {
	return store.NewAction(ActionEntitiesReceived, snapshots)
}

func EntityRemoved(entityID string) store.Action {
	return store.NewAction(ActionEntityRemoved, entityID)
}

// OperationCompleted carries a normalized operation result
func OperationCompleted(result *ngsild.OperationResult) store.Action {
	return store.NewAction(ActionOperationCompleted, result)
}

func initialState() *State {
	return &State{
		Status:   StatusPending,
		Entities: map[string]map[string]any{},
	}
}

// Reducer is the reducer of the reserved slice. The connection status leaves
// pending exactly once, later connection actions are ignored.
func Reducer(state any, action store.Action) any {
	current, ok := state.(*State)
	if !ok || current == nil {
		current = initialState()
	}

	switch action.Type {
	case ActionConnectionPending:
		return current
	case ActionConnectionEstablished:
		if current.Status != StatusPending {
			return current
		}
		next := *current
		next.Status = StatusConnected
		return &next
	case ActionConnectionFailed:
		if current.Status != StatusPending {
			return current
		}
		next := *current
		next.Status = StatusFailed
		next.Error, _ = action.Payload.(string)
		return &next
	case ActionEntitiesReceived:
		snapshots, _ := action.Payload.([]map[string]any)
		if len(snapshots) == 0 {
			return current
		}
		next := *current
		next.Entities = maps.Clone(current.Entities)
		for _, s := range snapshots {
			if id, ok := s["id"].(string); ok && id != "" {
				next.Entities[id] = s
			}
		}
		return &next
	case ActionEntityRemoved:
		id, _ := action.Payload.(string)
		if _, exists := current.Entities[id]; !exists {
			return current
		}
		next := *current
		next.Entities = maps.Clone(current.Entities)
		delete(next.Entities, id)
		return &next
	case ActionOperationCompleted:
		return operationCompleted(current, action.Payload)
	}

	return current
}

func operationCompleted(current *State, payload any) *State {
	result, ok := payload.(*ngsild.OperationResult)
	if !ok || result == nil {
		return current
	}

	next := *current
	op := result.Operation
	next.LastOperation = &op
	next.Entities = maps.Clone(current.Entities)

	switch data := result.Data.(type) {
	case map[string]any:
		if id, ok := data["id"].(string); ok && id != "" {
			next.Entities[id] = data
		}
	case []any:
		for _, d := range data {
			if s, ok := d.(map[string]any); ok {
				if id, ok := s["id"].(string); ok && id != "" {
					next.Entities[id] = s
				}
			}
		}
	}

	if op.Kind == ngsild.OperationDelete {
		delete(next.Entities, op.EntityID)
	}

	return &next
}

// FromState extracts the reserved slice from a composed state
func FromState(state any) *State {
	if s, ok := state.(store.State); ok {
		if b, ok := s[SliceName].(*State); ok {
			return b
		}
	}
	return initialState()
}
