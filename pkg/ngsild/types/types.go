package types

type EntityFragment interface {
	ForEachAttribute(func(attributeType, attributeName string, contents any)) error
	MarshalJSON() ([]byte, error)
}

type Entity interface {
	EntityFragment

	ID() string
	Type() string
}

// LiveEntity is an entity that is bound to the connection that owns it.
// Mutations must go back through that connection.
type LiveEntity interface {
	Entity

	Metadata() *Metadata
}

// Metadata is the binding between a live entity and its owning connection
type Metadata struct {
	Connection Connection
	Tenant     string
}

type Property interface {
	Type() string
}

type Relationship interface {
	Type() string
}

// Factory rehydrates a plain snapshot into an entity bound to conn
type Factory func(conn Connection, snapshot map[string]any) (Entity, error)

type Registry interface {
	Lookup(entityType string) (Factory, bool)
}

type Connection interface {
	EntityTypes() Registry
}
