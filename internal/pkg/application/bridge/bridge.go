package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/diwise/context-bridge/internal/pkg/application/subscriptions"
	"github.com/diwise/context-bridge/pkg/ngsild"
	"github.com/diwise/context-bridge/pkg/ngsild/binding"
	"github.com/diwise/context-bridge/pkg/ngsild/client"
	ngsierrors "github.com/diwise/context-bridge/pkg/ngsild/errors"
	"github.com/diwise/context-bridge/pkg/ngsild/reference"
	"github.com/diwise/context-bridge/pkg/ngsild/snapshot"
	"github.com/diwise/context-bridge/pkg/ngsild/types"
	"github.com/diwise/context-bridge/pkg/ngsild/types/entities"
	"github.com/diwise/context-bridge/pkg/store"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

// Connector is the entity store connection as seen by the application
type Connector interface {
	types.Connection
	Connect(ctx context.Context) error
	Query(ctx context.Context, parameters ...client.RequestDecoratorFunc) ([]types.Entity, error)
	Merge(ctx context.Context, entityID string, fragment types.EntityFragment) (*ngsild.OperationResult, error)
	Delete(ctx context.Context, entityID string) (*ngsild.OperationResult, error)
}

// Application is the single state container of a process together with the
// connection that feeds it. It is created once by CreateStore and passed on to
// everything that needs to read or change the state.
type Application struct {
	store *store.Store
	conn  Connector
	mode  Mode

	watched  []EntityTypeConfig
	notifier subscriptions.Notifier

	settled    chan struct{}
	settleOnce sync.Once
	connectErr error
}

type options struct {
	reducers map[string]store.Reducer
	mode     *Mode
	watched  []EntityTypeConfig
	notifier subscriptions.Notifier
}

type Option func(*options)

// WithReducer adds an application slice to the composed state
func WithReducer(name string, reducer store.Reducer) Option {
	return func(o *options) {
		o.reducers[name] = reducer
	}
}

// WithMode overrides the mode that is otherwise read from the environment
func WithMode(mode Mode) Option {
	return func(o *options) {
		o.mode = &mode
	}
}

// WithWatch queries the entities of the given type once connected and keeps
// their snapshots in the reserved slice
func WithWatch(entityType string, attributes ...string) Option {
	return func(o *options) {
		o.watched = append(o.watched, EntityTypeConfig{Type: entityType, Watch: true, Attributes: attributes})
	}
}

func WithNotifier(n subscriptions.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// CreateStore composes the state container from the reserved entity store slice
// and any application slices, and starts connecting to the entity store in the
// background. The reserved slice reports a pending connection until the attempt
// has settled.
func CreateStore(ctx context.Context, conn Connector, initialState store.State, opts ...Option) (*Application, error) {
	if conn == nil {
		return nil, fmt.Errorf("a connection is required")
	}

	o := &options{reducers: map[string]store.Reducer{}}
	for _, opt := range opts {
		opt(o)
	}

	if _, ok := o.reducers[binding.SliceName]; ok {
		return nil, fmt.Errorf("slice name %s is reserved", binding.SliceName)
	}

	reducers := map[string]store.Reducer{binding.SliceName: binding.Reducer}
	for name, r := range o.reducers {
		if r == nil {
			return nil, fmt.Errorf("reducer for slice %s must not be nil", name)
		}
		reducers[name] = r
	}

	mode := ModeFromEnvironment(ctx)
	if o.mode != nil {
		mode = *o.mode
	}

	log := logging.GetFromContext(ctx)

	app := &Application{
		store:    store.New(store.CombineReducers(reducers), initialState, mode.Middleware(log)...),
		conn:     conn,
		mode:     mode,
		watched:  o.watched,
		notifier: o.notifier,
		settled:  make(chan struct{}),
	}

	log.Debug("state container created", "mode", string(mode), "slices", len(reducers))

	go app.connect(ctx)

	return app, nil
}

func (app *Application) connect(ctx context.Context) {
	log := logging.GetFromContext(ctx)

	app.store.Dispatch(binding.ConnectionPending())

	err := app.conn.Connect(ctx)
	if err != nil {
		log.Error("failed to connect to entity store", "err", err.Error())
		app.store.Dispatch(binding.ConnectionFailed(err))
		app.settle(err)
		return
	}

	app.store.Dispatch(binding.ConnectionEstablished())
	app.settle(nil)

	for _, w := range app.watched {
		if err := app.Refresh(ctx, w.Type, w.Attributes...); err != nil {
			log.Warn("failed to query watched entity type", "type", w.Type, "err", err.Error())
		}
	}
}

func (app *Application) settle(err error) {
	app.settleOnce.Do(func() {
		app.connectErr = err
		close(app.settled)
	})
}

// WaitForConnection blocks until the connection attempt has settled, returning
// its outcome, or until ctx is done
func (app *Application) WaitForConnection(ctx context.Context) error {
	select {
	case <-app.settled:
		return app.connectErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (app *Application) Mode() Mode {
	return app.mode
}

func (app *Application) State() store.State {
	s, _ := app.store.State().(store.State)
	return s
}

// Connection returns the reserved slice of the current state
func (app *Application) Connection() *binding.State {
	return binding.FromState(app.store.State())
}

func (app *Application) Subscribe(listener func()) func() {
	return app.store.Subscribe(listener)
}

func (app *Application) Dispatch(action store.Action) {
	app.store.Dispatch(action)
}

// Refresh queries all entities of entityType and stores their snapshots
func (app *Application) Refresh(ctx context.Context, entityType string, attributes ...string) error {
	params := []client.RequestDecoratorFunc{client.Types(entityType)}
	kvOptions := []entities.KeyValuesOption{}

	if len(attributes) > 0 {
		params = append(params, client.Attributes(attributes...))
		kvOptions = append(kvOptions, entities.Attributes(attributes...))
	}

	found, err := app.conn.Query(ctx, params...)
	if err != nil {
		return err
	}

	normalized, err := snapshot.TryNormalize(found, kvOptions...)
	if err != nil {
		return fmt.Errorf("failed to normalize %s entities: %w", entityType, err)
	}

	snapshots := []map[string]any{}
	if list, ok := normalized.([]any); ok {
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				snapshots = append(snapshots, m)
			}
		}
	}

	app.store.Dispatch(binding.EntitiesReceived(snapshots))

	return nil
}

// Track normalizes the result of a completed operation and dispatches it
func (app *Application) Track(ctx context.Context, result *ngsild.OperationResult) {
	if result == nil {
		return
	}

	normalized, ok := snapshot.NormalizeContext(ctx, result).(*ngsild.OperationResult)
	if !ok {
		return
	}

	app.store.Dispatch(binding.OperationCompleted(normalized))

	if app.notifier != nil {
		app.notifier.OperationCompleted(ctx, normalized)
	}
}

// MergeEntity merges simplified attribute values into the entity in the broker
// and tracks the outcome like any other completed operation
func (app *Application) MergeEntity(ctx context.Context, entityID string, attributes map[string]any) (*ngsild.OperationResult, error) {
	fragment, err := entities.FragmentFromKeyValues(attributes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ngsierrors.ErrBadRequest, err.Error())
	}

	result, err := app.conn.Merge(ctx, entityID, fragment)
	if err != nil {
		return nil, err
	}

	app.Track(ctx, result)

	return result, nil
}

// DeleteEntity removes the entity from the broker and from the tracked snapshots
func (app *Application) DeleteEntity(ctx context.Context, entityID string) (*ngsild.OperationResult, error) {
	result, err := app.conn.Delete(ctx, entityID)
	if err != nil {
		return nil, err
	}

	app.Track(ctx, result)

	return result, nil
}

// Resolve rehydrates a snapshot into a live entity bound to the connection
func (app *Application) Resolve(s map[string]any, options ...reference.Option) types.Entity {
	return reference.Resolve(app.conn, s, options...)
}

// Entity returns the stored snapshot of entityID, if any
func (app *Application) Entity(entityID string) (map[string]any, bool) {
	s, ok := app.Connection().Entities[entityID]
	return s, ok
}
