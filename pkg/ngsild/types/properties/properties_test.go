package properties

import (
	"testing"

	"github.com/matryer/is"
)

func TestSanitizeString(t *testing.T) {
	tests := map[string]struct {
		input    string
		expected string
	}{
		"empty":            {"", ""},
		"invalid escape":   {`\uqwab`, `\uqwab`},
		"ampersand":        {`\u0026`, "&"},
		"double ampersand": {`\u0026\u0026`, "&&"},
		"embedded":         {`A \u0026 B`, "A & B"},
		"cropped":          {`A \u0026 \u00`, `A & \u00`},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(sanitizeString(tc.input), tc.expected)
		})
	}
}

func TestUnmarshalNumberWithMetadata(t *testing.T) {
	is := is.New(t)

	p, err := UnmarshalP(map[string]any{
		"type":       "Property",
		"value":      12.5,
		"unitCode":   "CEL",
		"observedAt": "2024-01-01T00:00:00Z",
		"observedBy": map[string]any{"type": "Relationship", "object": "urn:ngsi-ld:Device:1"},
	})
	is.NoErr(err)

	n, ok := p.Number()
	is.True(ok)
	is.Equal(n, 12.5)
	is.Equal(p.UnitCode(), "CEL")
	is.Equal(p.ObservedAt(), "2024-01-01T00:00:00Z")
	is.Equal(p.ObservedBy_.Objects(), []string{"urn:ngsi-ld:Device:1"})
}

func TestUnmarshalKeepsStructuredValues(t *testing.T) {
	is := is.New(t)

	p, err := UnmarshalP(map[string]any{"value": map[string]any{"street": "Storgatan 1"}})
	is.NoErr(err)
	is.Equal(p.Value(), map[string]any{"street": "Storgatan 1"})

	p, err = UnmarshalP(map[string]any{"value": true})
	is.NoErr(err)
	is.Equal(p.Value(), true)
}

func TestUnmarshalDateTime(t *testing.T) {
	is := is.New(t)

	p, err := UnmarshalP(map[string]any{"value": map[string]any{"@type": "DateTime", "@value": "2018-06-21T15:12:39Z"}})
	is.NoErr(err)
	is.Equal(p.Value(), DateTime{Type: "DateTime", Value: "2018-06-21T15:12:39Z"})

	_, err = UnmarshalP(map[string]any{"value": map[string]any{"@type": "Duration", "@value": "PT1H"}})
	is.True(err != nil)
}

func TestUnmarshalWithoutValueFails(t *testing.T) {
	is := is.New(t)

	_, err := UnmarshalP(map[string]any{"type": "Property"})
	is.True(err != nil)
}
