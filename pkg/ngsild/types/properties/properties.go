// Package properties implements the Property attribute type of NGSI-LD entities.
package properties

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/diwise/context-bridge/pkg/ngsild/types/relationships"
)

const PropertyType string = "Property"

const (
	DateCreated  string = "dateCreated"
	DateModified string = "dateModified"
	DateObserved string = "dateObserved"

	Description string = "description"
	Location    string = "location"
	Name        string = "name"
)

// Property holds any JSON compatible value together with the optional
// property metadata NGSI-LD defines
type Property struct {
	PropertyType string                      `json:"type"`
	Val          any                         `json:"value"`
	ObservedAt_  string                      `json:"observedAt,omitempty"`
	UnitCode_    string                      `json:"unitCode,omitempty"`
	ObservedBy_  *relationships.Relationship `json:"observedBy,omitempty"`
}

func (p *Property) Type() string {
	return p.PropertyType
}

func (p *Property) Value() any {
	return p.Val
}

func (p *Property) ObservedAt() string {
	return p.ObservedAt_
}

func (p *Property) UnitCode() string {
	return p.UnitCode_
}

// Number returns the value of a numeric property
func (p *Property) Number() (float64, bool) {
	f, ok := p.Val.(float64)
	return f, ok
}

// Text returns the value of a text property
func (p *Property) Text() (string, bool) {
	s, ok := p.Val.(string)
	return s, ok
}

// DateTime is the typed value object NGSI-LD uses for temporal properties
type DateTime struct {
	Type  string `json:"@type"`
	Value string `json:"@value"`
}

// Decorator sets optional metadata on a property
type Decorator func(p *Property)

func ObservedAt(timestamp string) Decorator {
	return func(p *Property) {
		p.ObservedAt_ = timestamp
	}
}

func ObservedBy(object string) Decorator {
	return func(p *Property) {
		p.ObservedBy_ = relationships.NewSingleObjectRelationship(object)
	}
}

func UnitCode(code string) Decorator {
	return func(p *Property) {
		p.UnitCode_ = code
	}
}

func New(value any, decorators ...Decorator) *Property {
	p := &Property{PropertyType: PropertyType, Val: value}
	for _, d := range decorators {
		d(p)
	}
	return p
}

func NewNumberProperty(value float64, decorators ...Decorator) *Property {
	return New(value, decorators...)
}

func NewTextProperty(value string) *Property {
	return New(value)
}

func NewTextListProperty(value []string) *Property {
	return New(value)
}

// NewDateTimeProperty creates a property from a UTC time stamp
func NewDateTimeProperty(value string) *Property {
	return New(DateTime{Type: "DateTime", Value: value})
}

// UnmarshalP creates a property from the decoded JSON form of the attribute
func UnmarshalP(body map[string]any) (*Property, error) {
	value, ok := body["value"]
	if !ok {
		return nil, fmt.Errorf("properties without a value attribute are not supported")
	}

	p := New(nil)

	switch typedValue := value.(type) {
	case string:
		p.Val = sanitizeString(typedValue)
	case []any:
		list := make([]any, 0, len(typedValue))
		for _, v := range typedValue {
			if s, ok := v.(string); ok {
				v = sanitizeString(s)
			}
			list = append(list, v)
		}
		p.Val = list
	case map[string]any:
		v, err := unmarshalValueObject(typedValue)
		if err != nil {
			return nil, err
		}
		p.Val = v
	default:
		p.Val = typedValue
	}

	if observedAt, ok := body["observedAt"].(string); ok {
		p.ObservedAt_ = observedAt
	}

	if unitCode, ok := body["unitCode"].(string); ok {
		p.UnitCode_ = unitCode
	}

	if observedBy, ok := body["observedBy"].(map[string]any); ok {
		r, err := relationships.UnmarshalR(observedBy)
		if err != nil {
			return nil, fmt.Errorf("observedBy is not a valid relationship: %w", err)
		}
		p.ObservedBy_ = r
	}

	return p, nil
}

// unmarshalValueObject keeps structured values as they are, except for typed
// JSON-LD values of which only DateTime is understood
func unmarshalValueObject(object map[string]any) (any, error) {
	objectType, typed := object["@type"]
	if !typed {
		return object, nil
	}

	if objectType != "DateTime" {
		return nil, fmt.Errorf("property object of type %v not supported", objectType)
	}

	value, ok := object["@value"].(string)
	if !ok {
		return nil, fmt.Errorf("datetime property @value not convertible to string")
	}

	return DateTime{Type: "DateTime", Value: value}, nil
}

// sanitizeString replaces escaped \uXXXX sequences that some brokers leave in text values
func sanitizeString(input string) string {
	idx := strings.Index(input, `\u`)
	if idx < 0 || len(input) < idx+6 {
		return input
	}

	r, err := strconv.ParseInt(input[idx+2:idx+6], 16, 32)
	if err != nil {
		return input[:idx+2] + sanitizeString(input[idx+2:])
	}

	return input[:idx] + string(rune(r)) + sanitizeString(input[idx+6:])
}
