package connection

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/diwise/context-bridge/pkg/ngsild"
	"github.com/diwise/context-bridge/pkg/ngsild/client"
	"github.com/diwise/context-bridge/pkg/ngsild/errors"
	"github.com/diwise/context-bridge/pkg/ngsild/registry"
	"github.com/diwise/context-bridge/pkg/ngsild/types"
	"github.com/diwise/context-bridge/pkg/ngsild/types/entities"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("context-bridge/connection")

// Connection is the owner of all live entities it hands out. It populates its
// entity type registry while connecting and routes every mutation back to the
// context broker.
type Connection struct {
	client   client.ContextBrokerClient
	registry *registry.Registry
	tenant   string

	entityTypes []entityTypeInfo
	discover    bool

	connecting sync.Mutex

	mu        sync.RWMutex
	connected bool
}

type entityTypeInfo struct {
	entityType string
	idPattern  string
}

type Option func(*Connection)

func WithTenant(tenant string) Option {
	return func(c *Connection) {
		c.tenant = tenant
	}
}

// WithEntityType registers a factory for entityType when connecting. An empty
// idPattern accepts any id.
func WithEntityType(entityType, idPattern string) Option {
	return func(c *Connection) {
		c.entityTypes = append(c.entityTypes, entityTypeInfo{entityType: entityType, idPattern: idPattern})
	}
}

// WithoutDiscovery stops Connect from asking the broker for its available types
func WithoutDiscovery() Option {
	return func(c *Connection) {
		c.discover = false
	}
}

func New(c client.ContextBrokerClient, options ...Option) *Connection {
	conn := &Connection{
		client:   c,
		registry: registry.New(),
		tenant:   entities.DefaultNGSITenant,
		discover: true,
	}

	for _, option := range options {
		option(conn)
	}

	return conn
}

// Connect populates the entity type registry from configuration and from the
// types the broker reports. It must complete before entities can be resolved.
// Once connected, further calls return immediately.
func (c *Connection) Connect(ctx context.Context) error {
	c.connecting.Lock()
	defer c.connecting.Unlock()

	if c.Connected() {
		return nil
	}

	var err error

	ctx, span := tracer.Start(ctx, "connect",
		trace.WithAttributes(attribute.String(client.TraceAttributeNGSILDTenant, c.tenant)),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	log := logging.GetFromContext(ctx)

	for _, info := range c.entityTypes {
		options := []registry.FactoryOption{registry.Tenant(c.tenant)}

		if info.idPattern != "" {
			var pattern *regexp.Regexp
			pattern, err = regexp.CompilePOSIX(info.idPattern)
			if err != nil {
				err = fmt.Errorf("invalid id pattern for type %s: %w", info.entityType, err)
				return err
			}
			options = append(options, registry.IDPattern(pattern))
		}

		c.registry.Register(info.entityType, registry.NewFactory(info.entityType, options...))
	}

	if c.discover {
		var typeNames []string
		typeNames, err = c.client.RetrieveAvailableEntityTypes(ctx, nil)
		if err != nil {
			err = fmt.Errorf("failed to retrieve available entity types: %w", err)
			return err
		}

		for _, name := range typeNames {
			if c.registry.RegisterIfAbsent(name, registry.NewFactory(name, registry.Tenant(c.tenant))) {
				log.Debug("registered discovered entity type", "type", name)
			}
		}
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	log.Info("connected to context broker", "types", c.registry.Types())

	return nil
}

func (c *Connection) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connected
}

func (c *Connection) EntityTypes() types.Registry {
	return c.registry
}

func (c *Connection) Tenant() string {
	return c.tenant
}

func (c *Connection) bind(e types.Entity) types.Entity {
	return entities.Bind(e, types.Metadata{Connection: c, Tenant: c.tenant})
}

func (c *Connection) ensureConnected() error {
	if !c.Connected() {
		return fmt.Errorf("connection to context broker has not been established (%w)", errors.ErrNotConnected)
	}
	return nil
}

// Retrieve fetches a single live entity
func (c *Connection) Retrieve(ctx context.Context, entityID string) (types.Entity, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	e, err := c.client.RetrieveEntity(ctx, entityID, nil)
	if err != nil {
		return nil, err
	}

	return c.bind(e), nil
}

// Query fetches all live entities matching the supplied parameters
func (c *Connection) Query(ctx context.Context, parameters ...client.RequestDecoratorFunc) ([]types.Entity, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	result, err := c.client.QueryEntities(ctx, nil, parameters...)
	if err != nil {
		return nil, err
	}

	found := []types.Entity{}
	for e := range result.Found {
		if e == nil {
			break
		}
		found = append(found, c.bind(e))
	}

	return found, nil
}

// Create stores a new entity in the broker. The resulting data is the bound entity.
func (c *Connection) Create(ctx context.Context, e types.Entity) (*ngsild.OperationResult, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	_, err := c.client.CreateEntity(ctx, e, nil)
	if err != nil {
		return nil, err
	}

	op := ngsild.Operation{Kind: ngsild.OperationCreate, EntityID: e.ID()}
	return ngsild.NewOperationResult(op, c.bind(e)), nil
}

// Merge applies fragment to the entity and returns the entity as it looks afterwards
func (c *Connection) Merge(ctx context.Context, entityID string, fragment types.EntityFragment) (*ngsild.OperationResult, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	result, err := c.client.MergeEntity(ctx, entityID, fragment, nil)
	if err != nil {
		return nil, err
	}

	op := ngsild.Operation{Kind: ngsild.OperationMerge, EntityID: entityID, Attributes: attributeNames(fragment)}
	op.NotUpdated = result.FailedAttributes()

	return c.afterMutation(ctx, op)
}

// UpdateAttributes replaces existing attributes and returns the entity as it looks afterwards
func (c *Connection) UpdateAttributes(ctx context.Context, entityID string, fragment types.EntityFragment) (*ngsild.OperationResult, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	result, err := c.client.UpdateEntityAttributes(ctx, entityID, fragment, nil)
	if err != nil {
		return nil, err
	}

	op := ngsild.Operation{Kind: ngsild.OperationUpdateAttributes, EntityID: entityID, Attributes: attributeNames(fragment)}
	op.NotUpdated = result.FailedAttributes()

	return c.afterMutation(ctx, op)
}

func (c *Connection) Delete(ctx context.Context, entityID string) (*ngsild.OperationResult, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	_, err := c.client.DeleteEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	op := ngsild.Operation{Kind: ngsild.OperationDelete, EntityID: entityID}
	return ngsild.NewOperationResult(op, nil), nil
}

func (c *Connection) afterMutation(ctx context.Context, op ngsild.Operation) (*ngsild.OperationResult, error) {
	e, err := c.client.RetrieveEntity(ctx, op.EntityID, nil)
	if err != nil {
		// the mutation itself succeeded, so the result is still usable
		logging.GetFromContext(ctx).Warn("failed to retrieve entity after mutation", "entity_id", op.EntityID, "err", err.Error())
		return ngsild.NewOperationResult(op, nil), nil
	}

	return ngsild.NewOperationResult(op, c.bind(e)), nil
}

func attributeNames(fragment types.EntityFragment) []string {
	names := []string{}
	fragment.ForEachAttribute(func(attributeType, attributeName string, contents any) {
		names = append(names, attributeName)
	})
	slices.Sort(names)
	return names
}
