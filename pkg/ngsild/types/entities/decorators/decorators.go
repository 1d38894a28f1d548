// Package decorators contains shorthands for building entities attribute by attribute.
package decorators

import (
	"github.com/diwise/context-bridge/pkg/ngsild/geojson"
	"github.com/diwise/context-bridge/pkg/ngsild/types/entities"
	"github.com/diwise/context-bridge/pkg/ngsild/types/properties"
	"github.com/diwise/context-bridge/pkg/ngsild/types/relationships"
)

func Ref(name, object string) entities.EntityDecoratorFunc {
	return entities.R(name, relationships.NewSingleObjectRelationship(object))
}

func Refs(name string, objects ...string) entities.EntityDecoratorFunc {
	return entities.R(name, relationships.NewMultiObjectRelationship(objects))
}

func Location(latitude, longitude float64) entities.EntityDecoratorFunc {
	return entities.P(properties.Location, geojson.NewPoint(longitude, latitude))
}

func DateTime(name string, value string) entities.EntityDecoratorFunc {
	return entities.P(name, properties.NewDateTimeProperty(value))
}

func Number(name string, value float64, decorators ...properties.Decorator) entities.EntityDecoratorFunc {
	return entities.P(name, properties.NewNumberProperty(value, decorators...))
}

func Text(name string, value string) entities.EntityDecoratorFunc {
	return entities.P(name, properties.NewTextProperty(value))
}

func TextList(name string, value []string) entities.EntityDecoratorFunc {
	return entities.P(name, properties.NewTextListProperty(value))
}

func Value(name string, value any) entities.EntityDecoratorFunc {
	return entities.P(name, properties.New(value))
}

func Name(name string) entities.EntityDecoratorFunc {
	return Text(properties.Name, name)
}

func Description(description string) entities.EntityDecoratorFunc {
	return Text(properties.Description, description)
}

func DateCreated(timestamp string) entities.EntityDecoratorFunc {
	return DateTime(properties.DateCreated, timestamp)
}

func DateModified(timestamp string) entities.EntityDecoratorFunc {
	return DateTime(properties.DateModified, timestamp)
}
