package binding

import (
	"errors"
	"testing"

	"github.com/diwise/context-bridge/pkg/ngsild"
	"github.com/diwise/context-bridge/pkg/store"
	"github.com/matryer/is"
)

func TestInitialStateIsPending(t *testing.T) {
	is := is.New(t)

	s := Reducer(nil, store.Action{Type: store.ActionInit}).(*State)
	is.Equal(s.Status, StatusPending)
	is.Equal(len(s.Entities), 0)
}

func TestConnectionLeavesPendingExactlyOnce(t *testing.T) {
	is := is.New(t)

	s := newStore()
	s.Dispatch(ConnectionEstablished())
	s.Dispatch(ConnectionFailed(errors.New("broker went away")))
	s.Dispatch(ConnectionPending())

	state := FromState(s.State())
	is.Equal(state.Status, StatusConnected)
	is.Equal(state.Error, "")
}

func TestConnectionFailure(t *testing.T) {
	is := is.New(t)

	s := newStore()
	s.Dispatch(ConnectionFailed(errors.New("connection refused")))
	s.Dispatch(ConnectionEstablished())

	state := FromState(s.State())
	is.Equal(state.Status, StatusFailed)
	is.Equal(state.Error, "connection refused")
}

func TestEntitiesReceivedAndRemoved(t *testing.T) {
	is := is.New(t)

	s := newStore()
	s.Dispatch(EntitiesReceived([]map[string]any{
		{"id": "db/Customer/1", "type": "Customer", "name": "Acme"},
		{"id": "db/Customer/2", "type": "Customer", "name": "Globex"},
		{"type": "Customer"},
	}))

	before := FromState(s.State())
	is.Equal(len(before.Entities), 2)

	s.Dispatch(EntityRemoved("db/Customer/1"))

	after := FromState(s.State())
	is.Equal(len(after.Entities), 1)
	is.Equal(len(before.Entities), 2) // earlier states must not change
}

func TestOperationCompleted(t *testing.T) {
	is := is.New(t)

	s := newStore()

	op := ngsild.Operation{Kind: ngsild.OperationMerge, EntityID: "db/Customer/1", Attributes: []string{"name"}}
	s.Dispatch(OperationCompleted(ngsild.NewOperationResult(op, map[string]any{"id": "db/Customer/1", "name": "Acme Inc"})))

	state := FromState(s.State())
	is.Equal(state.LastOperation.Kind, ngsild.OperationMerge)
	is.Equal(state.Entities["db/Customer/1"]["name"], "Acme Inc")

	s.Dispatch(OperationCompleted(ngsild.NewOperationResult(ngsild.Operation{Kind: ngsild.OperationDelete, EntityID: "db/Customer/1"}, nil)))

	state = FromState(s.State())
	is.Equal(state.LastOperation.Kind, ngsild.OperationDelete)
	is.Equal(len(state.Entities), 0)
}

func TestUnrelatedActionsKeepState(t *testing.T) {
	is := is.New(t)

	s := newStore()
	before := FromState(s.State())

	s.Dispatch(store.NewAction("app/unrelated", nil))

	is.True(before == FromState(s.State()))
}

func TestFromStateWithoutSlice(t *testing.T) {
	is := is.New(t)

	is.Equal(FromState(nil).Status, StatusPending)
	is.Equal(FromState(store.State{}).Status, StatusPending)
}

func newStore() *store.Store {
	return store.New(store.CombineReducers(map[string]store.Reducer{SliceName: Reducer}), nil)
}
