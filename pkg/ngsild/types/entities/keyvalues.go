package entities

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/diwise/context-bridge/pkg/ngsild/geojson"
	"github.com/diwise/context-bridge/pkg/ngsild/types"
	"github.com/diwise/context-bridge/pkg/ngsild/types/properties"
	"github.com/diwise/context-bridge/pkg/ngsild/types/relationships"
)

type keyValuesConfig struct {
	attributes     map[string]struct{}
	normalized     bool
	includeContext bool
}

func (cfg *keyValuesConfig) wants(attributeName string) bool {
	if len(cfg.attributes) == 0 {
		return true
	}

	_, ok := cfg.attributes[attributeName]
	return ok
}

type KeyValuesOption func(*keyValuesConfig)

// Attributes limits the snapshot to the named attributes. The id and type
// are always included.
func Attributes(names ...string) KeyValuesOption {
	return func(cfg *keyValuesConfig) {
		if cfg.attributes == nil {
			cfg.attributes = map[string]struct{}{}
		}
		for _, n := range names {
			cfg.attributes[n] = struct{}{}
		}
	}
}

// Normalized keeps the full property and relationship objects instead of
// reducing each attribute to its bare value
func Normalized() KeyValuesOption {
	return func(cfg *keyValuesConfig) {
		cfg.normalized = true
	}
}

func IncludeContext() KeyValuesOption {
	return func(cfg *keyValuesConfig) {
		cfg.includeContext = true
	}
}

// KeyValues converts an entity into its simplified representation, containing
// nothing but JSON compatible primitives, slices and maps.
func KeyValues(e types.Entity, options ...KeyValuesOption) (map[string]any, error) {
	if e == nil {
		return nil, fmt.Errorf("cannot convert a nil entity")
	}

	cfg := &keyValuesConfig{}
	for _, option := range options {
		option(cfg)
	}

	kv := map[string]any{
		"id":   e.ID(),
		"type": e.Type(),
	}

	var attrErr error

	err := e.ForEachAttribute(func(attributeType, attributeName string, contents any) {
		if attrErr != nil || !cfg.wants(attributeName) {
			return
		}

		var value any
		var err error

		if cfg.normalized {
			value, err = plainValue(contents)
		} else {
			value, err = simplify(contents)
		}

		if err != nil {
			attrErr = fmt.Errorf("failed to convert attribute %s: %w", attributeName, err)
			return
		}

		kv[attributeName] = value
	})

	if err != nil {
		return nil, err
	}

	if attrErr != nil {
		return nil, attrErr
	}

	if cfg.includeContext {
		if c, ok := e.(interface{ Context() []string }); ok && len(c.Context()) > 0 {
			ctx := make([]any, 0, len(c.Context()))
			for _, s := range c.Context() {
				ctx = append(ctx, s)
			}
			kv["@context"] = ctx
		}
	}

	return kv, nil
}

func simplify(contents any) (any, error) {
	switch attr := contents.(type) {
	case interface{ Object() any }:
		return plainValue(attr.Object())
	case interface{ Value() any }:
		return plainValue(attr.Value())
	}

	return plainValue(contents)
}

func plainValue(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var plain any
	err = json.Unmarshal(b, &plain)
	if err != nil {
		return nil, err
	}

	return plain, nil
}

// FromKeyValues rehydrates an entity from its simplified representation.
// Decorators are applied after the snapshot contents and may override them.
//
// Bare values carry no attribute type, so only attributes named refXxx (ref
// followed by an upper case letter) come back as relationships. Any other
// relationship must be given in its normalized form to survive the round trip.
// Text values are kept exactly as they appear in the snapshot.
func FromKeyValues(snapshot map[string]any, decorators ...EntityDecoratorFunc) (types.Entity, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("cannot rehydrate a nil snapshot")
	}

	e := &EntityImpl{
		properties:    map[string]types.Property{},
		relationships: map[string]types.Relationship{},
	}

	e.entityID, _ = snapshot["id"].(string)
	e.entityType, _ = snapshot["type"].(string)

	for k, v := range snapshot {
		switch k {
		case "id", "type":
			continue
		case "@context":
			e.context = contextFrom(v)
			continue
		}

		if err := e.setAttribute(k, v); err != nil {
			return nil, err
		}
	}

	for _, decorator := range decorators {
		decorator(e)
	}

	if e.context == nil {
		e.context = []string{DefaultContextURL}
	}

	if e.entityID == "" || e.entityType == "" {
		return nil, fmt.Errorf("snapshot is missing an id or a type")
	}

	return e, nil
}

// FragmentFromKeyValues creates a merge fragment from simplified attribute
// values, following the same conventions as FromKeyValues. An id or type in
// attributes is ignored.
func FragmentFromKeyValues(attributes map[string]any) (types.EntityFragment, error) {
	e := newEntityImpl("", "")

	for k, v := range attributes {
		switch k {
		case "id", "type":
			continue
		case "@context":
			e.context = contextFrom(v)
			continue
		}

		if err := e.setAttribute(k, v); err != nil {
			return nil, err
		}
	}

	if len(e.properties)+len(e.relationships) == 0 {
		return nil, fmt.Errorf("fragment contains no attributes")
	}

	e.decorate(nil)

	return e, nil
}

// Type overrides the entity type of a rehydrated entity
func Type(entityType string) EntityDecoratorFunc {
	return func(e *EntityImpl) {
		e.entityType = entityType
	}
}

func (e *EntityImpl) setAttribute(name string, value any) error {
	switch v := value.(type) {
	case map[string]any:
		if t, ok := v["type"].(string); ok && (t == "Property" || t == "GeoProperty" || t == "Relationship") {
			return e.unmarshalAttribute(name, v)
		}

		if _, ok := v["coordinates"]; ok {
			p, err := geojson.UnmarshalG(map[string]any{"value": v})
			if err != nil {
				return fmt.Errorf("attribute %s: %w", name, err)
			}
			e.properties[name] = p
			return nil
		}

		p, err := properties.UnmarshalP(map[string]any{"value": v})
		if err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
		e.properties[name] = p
	case string:
		if isReference(name) {
			e.relationships[name] = relationships.NewSingleObjectRelationship(v)
		} else {
			e.properties[name] = properties.NewTextProperty(v)
		}
	case []string:
		if isReference(name) {
			e.relationships[name] = relationships.NewMultiObjectRelationship(v)
		} else {
			e.properties[name] = properties.NewTextListProperty(v)
		}
	case []any:
		if isReference(name) {
			r, err := relationships.UnmarshalR(map[string]any{"object": v})
			if err != nil {
				return fmt.Errorf("attribute %s: %w", name, err)
			}
			e.relationships[name] = r
			return nil
		}

		e.properties[name] = properties.New(v)
	case int:
		e.properties[name] = properties.NewNumberProperty(float64(v))
	case int64:
		e.properties[name] = properties.NewNumberProperty(float64(v))
	case float32:
		e.properties[name] = properties.NewNumberProperty(float64(v))
	default:
		p, err := properties.UnmarshalP(map[string]any{"value": v})
		if err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
		e.properties[name] = p
	}

	return nil
}

// isReference follows the refXxx naming convention for relationships
func isReference(attributeName string) bool {
	if len(attributeName) <= 3 || !strings.HasPrefix(attributeName, "ref") {
		return false
	}

	return unicode.IsUpper(rune(attributeName[3]))
}

func contextFrom(v any) []string {
	switch ctx := v.(type) {
	case string:
		return []string{ctx}
	case []string:
		return ctx
	case []any:
		result := make([]string, 0, len(ctx))
		for _, c := range ctx {
			if s, ok := c.(string); ok {
				result = append(result, s)
			}
		}
		return result
	}

	return nil
}
