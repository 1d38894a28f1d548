// Package relationships implements the Relationship attribute type of NGSI-LD entities.
package relationships

import (
	"fmt"
)

const RelationshipType string = "Relationship"

// Relationship points at one or more other entities. Obj is either a single
// entity id or a list of them.
type Relationship struct {
	RelationshipType string `json:"type"`
	Obj              any    `json:"object"`
}

func (r *Relationship) Type() string {
	return r.RelationshipType
}

func (r *Relationship) Object() any {
	return r.Obj
}

// Objects returns the ids of all related entities
func (r *Relationship) Objects() []string {
	switch o := r.Obj.(type) {
	case string:
		return []string{o}
	case []string:
		return o
	}
	return nil
}

func NewSingleObjectRelationship(object string) *Relationship {
	return &Relationship{RelationshipType: RelationshipType, Obj: object}
}

func NewMultiObjectRelationship(objects []string) *Relationship {
	return &Relationship{RelationshipType: RelationshipType, Obj: objects}
}

// UnmarshalR creates a relationship from the decoded JSON form of the attribute
func UnmarshalR(body map[string]any) (*Relationship, error) {
	switch object := body["object"].(type) {
	case string:
		return NewSingleObjectRelationship(object), nil
	case []any:
		objects := make([]string, 0, len(object))
		for _, o := range object {
			id, ok := o.(string)
			if !ok {
				return nil, fmt.Errorf("relationship object %v is not an entity id", o)
			}
			objects = append(objects, id)
		}
		return NewMultiObjectRelationship(objects), nil
	case nil:
		return nil, fmt.Errorf("relationships without an object attribute are not supported")
	default:
		return nil, fmt.Errorf("relationship object of type %T not supported", object)
	}
}
