package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/diwise/context-bridge/pkg/ngsild"
	"github.com/diwise/context-bridge/pkg/ngsild/binding"
	"github.com/diwise/context-bridge/pkg/ngsild/client"
	ngsierrors "github.com/diwise/context-bridge/pkg/ngsild/errors"
	"github.com/diwise/context-bridge/pkg/ngsild/reference"
	"github.com/diwise/context-bridge/pkg/ngsild/registry"
	"github.com/diwise/context-bridge/pkg/ngsild/types"
	"github.com/diwise/context-bridge/pkg/ngsild/types/entities"
	"github.com/diwise/context-bridge/pkg/ngsild/types/entities/decorators"
	"github.com/diwise/context-bridge/pkg/store"
	"github.com/matryer/is"
)

func TestStoreReportsPendingUntilConnected(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := newFakeConnector()
	app, err := CreateStore(ctx, conn, nil, WithMode(ModeProduction))
	is.NoErr(err)

	// dispatching before the connection has settled must be fine
	app.Dispatch(store.NewAction("app/anything", nil))
	is.Equal(app.Connection().Status, binding.StatusPending)

	conn.release <- nil
	is.NoErr(app.WaitForConnection(ctx))

	is.Equal(app.Connection().Status, binding.StatusConnected)
}

func TestStoreTransitionsExactlyOnce(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := newFakeConnector()
	app, _ := CreateStore(ctx, conn, nil, WithMode(ModeProduction))

	transitions := 0
	mu := sync.Mutex{}
	last := binding.StatusPending

	app.Subscribe(func() {
		mu.Lock()
		defer mu.Unlock()

		status := app.Connection().Status
		if status != last {
			transitions++
			last = status
		}
	})

	conn.release <- nil
	is.NoErr(app.WaitForConnection(ctx))

	app.Dispatch(binding.ConnectionFailed(errors.New("too late")))
	app.Dispatch(binding.ConnectionEstablished())

	mu.Lock()
	defer mu.Unlock()
	is.Equal(transitions, 1)
	is.Equal(app.Connection().Status, binding.StatusConnected)
}

func TestStoreReportsFailedConnection(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := newFakeConnector()
	app, _ := CreateStore(ctx, conn, nil, WithMode(ModeProduction))

	conn.release <- errors.New("connection refused")
	err := app.WaitForConnection(ctx)
	is.True(err != nil)

	state := app.Connection()
	is.Equal(state.Status, binding.StatusFailed)
	is.Equal(state.Error, "connection refused")
}

func TestReservedSliceNameIsRejected(t *testing.T) {
	is := is.New(t)

	_, err := CreateStore(context.Background(), newFakeConnector(), nil, WithReducer(binding.SliceName, func(state any, action store.Action) any { return state }))
	is.True(err != nil)
}

func TestApplicationSlicesAreComposed(t *testing.T) {
	is := is.New(t)

	counter := func(state any, action store.Action) any {
		n, _ := state.(int)
		if action.Type == "increment" {
			return n + 1
		}
		return n
	}

	app, err := CreateStore(context.Background(), newFakeConnector(), store.State{"counter": 10}, WithReducer("counter", counter), WithMode(ModeProduction))
	is.NoErr(err)

	app.Dispatch(store.NewAction("increment", nil))

	is.Equal(app.State()["counter"], 11)
	_, ok := app.State()[binding.SliceName]
	is.True(ok) // the reserved slice should always be present
}

func TestModeFromEnvironment(t *testing.T) {
	is := is.New(t)

	t.Setenv(AppEnvVariable, "development")
	is.Equal(ModeFromEnvironment(context.Background()), ModeDevelopment)
	is.Equal(len(ModeFromEnvironment(context.Background()).Middleware(nil)), 1)

	t.Setenv(AppEnvVariable, "staging")
	is.Equal(ModeFromEnvironment(context.Background()), ModeProduction)
	is.Equal(len(ModeFromEnvironment(context.Background()).Middleware(nil)), 0)
}

func TestWatchedTypesAreQueriedAfterConnect(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := newFakeConnector(customer("1", "Acme"), customer("2", "Globex"))

	received := make(chan struct{})
	app, _ := CreateStore(ctx, conn, nil, WithMode(ModeProduction), WithWatch("Customer", "name"))
	unsubscribe := app.Subscribe(func() {
		if len(app.Connection().Entities) == 2 {
			select {
			case <-received:
			default:
				close(received)
			}
		}
	})
	defer unsubscribe()

	conn.release <- nil

	select {
	case <-received:
	case <-ctx.Done():
		is.Fail() // watched entities were never received
	}

	s, ok := app.Entity("db/Customer/2")
	is.True(ok)
	is.Equal(s["name"], "Globex")
}

func TestTrackStoresNormalizedOperationResult(t *testing.T) {
	is := is.New(t)

	app, _ := CreateStore(context.Background(), newFakeConnector(), nil, WithMode(ModeProduction))

	op := ngsild.Operation{Kind: ngsild.OperationMerge, EntityID: "db/Customer/1", Attributes: []string{"name"}}
	app.Track(context.Background(), ngsild.NewOperationResult(op, customer("1", "Acme Inc")))

	state := app.Connection()
	is.Equal(state.LastOperation.Kind, ngsild.OperationMerge)
	is.Equal(state.Entities["db/Customer/1"]["name"], "Acme Inc")
}

func TestMergeEntityIsTrackedAndForwarded(t *testing.T) {
	is := is.New(t)

	conn := newFakeConnector()
	notifier := &fakeNotifier{}
	app, _ := CreateStore(context.Background(), conn, nil, WithMode(ModeProduction), WithNotifier(notifier))

	result, err := app.MergeEntity(context.Background(), "db/Customer/1", map[string]any{"name": "Initech"})
	is.NoErr(err)
	is.Equal(result.Operation.Kind, ngsild.OperationMerge)

	is.Equal(len(conn.merged), 1)
	is.Equal(app.Connection().Entities["db/Customer/1"]["name"], "Initech")
	is.Equal(len(notifier.completed), 1) // the merge should be passed on to the notifier
}

func TestMergeEntityWithoutAttributesIsRejected(t *testing.T) {
	is := is.New(t)

	conn := newFakeConnector()
	app, _ := CreateStore(context.Background(), conn, nil, WithMode(ModeProduction))

	_, err := app.MergeEntity(context.Background(), "db/Customer/1", map[string]any{"id": "db/Customer/1"})
	is.True(errors.Is(err, ngsierrors.ErrBadRequest))
	is.Equal(len(conn.merged), 0) // nothing should be sent to the broker
}

func TestDeleteEntityRemovesSnapshot(t *testing.T) {
	is := is.New(t)

	app, _ := CreateStore(context.Background(), newFakeConnector(), nil, WithMode(ModeProduction))

	op := ngsild.Operation{Kind: ngsild.OperationCreate, EntityID: "db/Customer/1"}
	app.Track(context.Background(), ngsild.NewOperationResult(op, customer("1", "Acme")))

	_, ok := app.Entity("db/Customer/1")
	is.True(ok)

	_, err := app.DeleteEntity(context.Background(), "db/Customer/1")
	is.NoErr(err)

	_, ok = app.Entity("db/Customer/1")
	is.True(!ok)
}

func TestResolveThroughApplication(t *testing.T) {
	is := is.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := newFakeConnector()
	app, _ := CreateStore(ctx, conn, nil, WithMode(ModeProduction))
	conn.release <- nil
	is.NoErr(app.WaitForConnection(ctx))

	e := app.Resolve(map[string]any{"id": "db/Customer/42", "name": "Acme"})
	is.True(e != nil)
	is.Equal(e.Type(), "Customer")

	kv, err := entities.KeyValues(e)
	is.NoErr(err)
	is.Equal(kv["name"], "Acme") // snapshot contents should survive rehydration

	is.Equal(app.Resolve(map[string]any{"id": "db/Order/1"}), nil)
	is.True(app.Resolve(map[string]any{"id": "db/Order/1"}, reference.AsType("Customer")) != nil)
}

func customer(localID, name string) types.Entity {
	e, _ := entities.New("db/Customer/"+localID, "Customer", decorators.Name(name))
	return e
}

type fakeConnector struct {
	registry *registry.Registry
	release  chan error
	found    []types.Entity
	merged   []types.EntityFragment
}

func newFakeConnector(found ...types.Entity) *fakeConnector {
	return &fakeConnector{
		registry: registry.New(),
		release:  make(chan error, 1),
		found:    found,
	}
}

func (c *fakeConnector) EntityTypes() types.Registry {
	return c.registry
}

func (c *fakeConnector) Connect(ctx context.Context) error {
	select {
	case err := <-c.release:
		if err == nil {
			c.registry.Register("Customer", registry.NewFactory("Customer"))
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConnector) Query(ctx context.Context, parameters ...client.RequestDecoratorFunc) ([]types.Entity, error) {
	return c.found, nil
}

func (c *fakeConnector) Merge(ctx context.Context, entityID string, fragment types.EntityFragment) (*ngsild.OperationResult, error) {
	c.merged = append(c.merged, fragment)
	op := ngsild.Operation{Kind: ngsild.OperationMerge, EntityID: entityID, Attributes: []string{"name"}}
	return ngsild.NewOperationResult(op, customer("1", "Initech")), nil
}

func (c *fakeConnector) Delete(ctx context.Context, entityID string) (*ngsild.OperationResult, error) {
	return ngsild.NewOperationResult(ngsild.Operation{Kind: ngsild.OperationDelete, EntityID: entityID}, nil), nil
}

type fakeNotifier struct {
	completed []*ngsild.OperationResult
}

func (n *fakeNotifier) Start() error { return nil }
func (n *fakeNotifier) Stop() error  { return nil }

func (n *fakeNotifier) OperationCompleted(ctx context.Context, result *ngsild.OperationResult) {
	n.completed = append(n.completed, result)
}
