package entities

import (
	"encoding/json"
	"fmt"

	"github.com/diwise/context-bridge/pkg/ngsild/geojson"
	"github.com/diwise/context-bridge/pkg/ngsild/types"
	"github.com/diwise/context-bridge/pkg/ngsild/types/properties"
	"github.com/diwise/context-bridge/pkg/ngsild/types/relationships"
)

const DefaultNGSITenant string = "default"

const DefaultContextURL string = "https://raw.githubusercontent.com/diwise/context-broker/main/assets/jsonldcontexts/default-context.jsonld"

const LinkHeader string = `<` + DefaultContextURL + `>; rel="http://www.w3.org/ns/json-ld#context"; type="application/ld+json"`

type EntityDecoratorFunc func(e *EntityImpl)

func newEntityImpl(entityID, entityType string) *EntityImpl {
	return &EntityImpl{
		entityID:      entityID,
		entityType:    entityType,
		properties:    map[string]types.Property{},
		relationships: map[string]types.Relationship{},
	}
}

func (e *EntityImpl) decorate(decorators []EntityDecoratorFunc) {
	for _, decorator := range decorators {
		decorator(e)
	}

	if e.context == nil {
		e.context = []string{DefaultContextURL}
	}
}

func New(entityID, entityType string, decorators ...EntityDecoratorFunc) (types.Entity, error) {
	e := newEntityImpl(entityID, entityType)
	e.decorate(decorators)
	return e, nil
}

// NewFragment creates a set of attributes without an id or a type, for use in merge and update requests
func NewFragment(decorators ...EntityDecoratorFunc) (types.EntityFragment, error) {
	e := newEntityImpl("", "")
	e.decorate(decorators)
	return e, nil
}

// NewFromJSON parses a single entity in either the normalized or the keyValues representation
func NewFromJSON(body []byte) (types.Entity, error) {
	e := &EntityImpl{}

	if err := json.Unmarshal(body, e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}

	if e.ID() == "" || e.Type() == "" {
		return nil, fmt.Errorf("entity is missing an id or a type")
	}

	return e, nil
}

func NewFromSlice(body []byte) ([]types.Entity, error) {
	impls := []*EntityImpl{}

	if err := json.Unmarshal(body, &impls); err != nil {
		return nil, err
	}

	list := make([]types.Entity, 0, len(impls))
	for _, e := range impls {
		// a null element decodes into a nil pointer
		if e == nil {
			continue
		}
		list = append(list, e)
	}

	return list, nil
}

// Bind attaches connection metadata to an entity created by this package.
// Entities of other implementations are returned as is.
func Bind(e types.Entity, md types.Metadata) types.Entity {
	switch impl := e.(type) {
	case *EntityImpl:
		if impl == nil {
			return e
		}
		impl.metadata = &md
		return impl
	case EntityImpl:
		impl.metadata = &md
		return &impl
	}

	return e
}

type EntityImpl struct {
	entityID   string
	entityType string

	context       []string
	properties    map[string]types.Property
	relationships map[string]types.Relationship

	metadata *types.Metadata
}

func (e EntityImpl) ID() string {
	return e.entityID
}

func (e EntityImpl) Type() string {
	return e.entityType
}

func (e EntityImpl) Context() []string {
	return e.context
}

// Metadata returns the connection binding, or nil if the entity is unbound
func (e EntityImpl) Metadata() *types.Metadata {
	return e.metadata
}

func (e EntityImpl) ForEachAttribute(callback func(attributeType, attributeName string, contents any)) error {
	for name, p := range e.properties {
		callback(p.Type(), name, p)
	}

	for name, r := range e.relationships {
		callback(r.Type(), name, r)
	}

	return nil
}

func (e EntityImpl) MarshalJSON() ([]byte, error) {
	contents := make(map[string]any, len(e.properties)+len(e.relationships)+3)

	if e.entityID != "" {
		contents["id"] = e.entityID
	}

	if e.entityType != "" {
		contents["type"] = e.entityType
	}

	for name, p := range e.properties {
		contents[name] = p
	}

	for name, r := range e.relationships {
		contents[name] = r
	}

	contents["@context"] = e.context

	return json.Marshal(contents)
}

func (e *EntityImpl) UnmarshalJSON(data []byte) error {
	contents := map[string]any{}

	if err := json.Unmarshal(data, &contents); err != nil {
		return err
	}

	*e = *newEntityImpl("", "")

	for name, value := range contents {
		var err error

		switch name {
		case "id":
			e.entityID, _ = value.(string)
		case "type":
			e.entityType, _ = value.(string)
		case "@context":
			if e.context = contextFrom(value); e.context == nil {
				err = fmt.Errorf("unsupported context: %v", value)
			}
		default:
			err = e.setAttribute(name, value)
		}

		if err != nil {
			return err
		}
	}

	if e.context == nil {
		e.context = []string{DefaultContextURL}
	}

	return nil
}

// unmarshalAttribute handles an attribute in its normalized form, i.e. an
// object carrying an explicit attribute type
func (e *EntityImpl) unmarshalAttribute(name string, obj map[string]any) error {
	var err error

	switch obj["type"] {
	case properties.PropertyType:
		e.properties[name], err = properties.UnmarshalP(obj)
	case geojson.GeoPropertyType:
		e.properties[name], err = geojson.UnmarshalG(obj)
	case relationships.RelationshipType:
		e.relationships[name], err = relationships.UnmarshalR(obj)
	}

	if err != nil {
		return fmt.Errorf("attribute %s: %w", name, err)
	}

	return nil
}

func Context(ctx []string) EntityDecoratorFunc {
	return func(e *EntityImpl) {
		e.context = ctx
	}
}

func DefaultBrokerContext(brokerURL string) EntityDecoratorFunc {
	return Context([]string{brokerURL + "/ngsi-ld/v1/jsonldContexts/default-context.jsonld"})
}

func DefaultContext() EntityDecoratorFunc {
	return Context([]string{DefaultContextURL})
}

// BoundTo binds the created entity to a connection
func BoundTo(conn types.Connection, tenant string) EntityDecoratorFunc {
	return func(e *EntityImpl) {
		e.metadata = &types.Metadata{Connection: conn, Tenant: tenant}
	}
}

func P(name string, value types.Property) EntityDecoratorFunc {
	return func(e *EntityImpl) { e.properties[name] = value }
}

func R(name string, value types.Relationship) EntityDecoratorFunc {
	return func(e *EntityImpl) { e.relationships[name] = value }
}
