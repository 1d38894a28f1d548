package entities

import (
	"encoding/json"
	"testing"

	"github.com/diwise/context-bridge/pkg/ngsild/types"
	"github.com/diwise/context-bridge/pkg/ngsild/types/properties"
	"github.com/diwise/context-bridge/pkg/ngsild/types/relationships"
	"github.com/matryer/is"
)

func TestParseNormalizedEntity(t *testing.T) {
	is := is.New(t)

	e, err := NewFromJSON([]byte(customerJSON))
	is.NoErr(err)
	is.Equal(e.ID(), "urn:ngsi-ld:Customer:42")
	is.Equal(e.Type(), "Customer")

	attrs := attributesOf(e)
	is.Equal(len(attrs), 7)
	is.Equal(attrs["location"], "GeoProperty")
	is.Equal(attrs["refVendor"], "Relationship")
	is.Equal(attrs["active"], "Property")
}

func TestParseKeyValuesEntity(t *testing.T) {
	is := is.New(t)

	e, err := NewFromJSON([]byte(`{"id":"db/Customer/42","type":"Customer","name":"Acme","refVendor":"db/Vendor/7"}`))
	is.NoErr(err)

	attrs := attributesOf(e)
	is.Equal(attrs["name"], "Property")
	is.Equal(attrs["refVendor"], "Relationship")

	impl := e.(*EntityImpl)
	is.Equal(impl.Context(), []string{DefaultContextURL}) // a missing context should be defaulted
}

func TestParseEntityWithoutIDFails(t *testing.T) {
	is := is.New(t)

	_, err := NewFromJSON([]byte(`{"type":"Customer","name":"Acme"}`))
	is.True(err != nil)
}

func TestParseEntityWithBrokenAttributeFails(t *testing.T) {
	is := is.New(t)

	_, err := NewFromJSON([]byte(`{"id":"db/Customer/42","type":"Customer","refVendor":{"type":"Relationship","object":42}}`))
	is.True(err != nil)
}

func TestMarshalRoundTrip(t *testing.T) {
	is := is.New(t)

	original, err := NewFromJSON([]byte(customerJSON))
	is.NoErr(err)

	b, err := json.Marshal(original)
	is.NoErr(err)

	parsed, err := NewFromJSON(b)
	is.NoErr(err)

	again, err := json.Marshal(parsed)
	is.NoErr(err)
	is.Equal(string(b), string(again))
}

func TestMarshalCreatedEntity(t *testing.T) {
	is := is.New(t)

	e, err := New("db/Vendor/7", "Vendor",
		P("name", properties.NewTextProperty("Globex")),
		R("refCustomer", relationships.NewSingleObjectRelationship("db/Customer/42")),
		Context([]string{"https://example.org/context.jsonld"}),
	)
	is.NoErr(err)

	b, err := json.Marshal(e)
	is.NoErr(err)
	is.Equal(string(b), `{"@context":["https://example.org/context.jsonld"],"id":"db/Vendor/7","name":{"type":"Property","value":"Globex"},"refCustomer":{"type":"Relationship","object":"db/Customer/42"},"type":"Vendor"}`)
}

func TestFragmentHasNoIdentity(t *testing.T) {
	is := is.New(t)

	f, err := NewFragment(P("name", properties.NewTextProperty("Initech")))
	is.NoErr(err)

	b, err := json.Marshal(f)
	is.NoErr(err)
	is.Equal(string(b), `{"@context":["`+DefaultContextURL+`"],"name":{"type":"Property","value":"Initech"}}`)
}

func TestNewFromSliceKeepsOrder(t *testing.T) {
	is := is.New(t)

	list, err := NewFromSlice([]byte("[" + customerJSON + "," + vendorJSON + "]"))
	is.NoErr(err)
	is.Equal(len(list), 2)
	is.Equal(list[0].Type(), "Customer")
	is.Equal(list[1].Type(), "Vendor")

	live, ok := list[1].(types.LiveEntity)
	is.True(ok)
	is.True(live.Metadata() == nil) // parsed entities are not bound to any connection
}

func TestNewFromSliceSkipsNullElements(t *testing.T) {
	is := is.New(t)

	list, err := NewFromSlice([]byte("[" + customerJSON + ",null]"))
	is.NoErr(err)
	is.Equal(len(list), 1)
	is.Equal(list[0].Type(), "Customer")
}

func TestBindLeavesNilEntityAlone(t *testing.T) {
	is := is.New(t)

	var impl *EntityImpl
	bound := Bind(impl, types.Metadata{Tenant: "default"})
	is.True(bound.(*EntityImpl) == nil)
}

func TestBoundToConnection(t *testing.T) {
	is := is.New(t)

	e, _ := New("db/Vendor/7", "Vendor", BoundTo(nil, "tenant7"))

	live := e.(types.LiveEntity)
	is.Equal(live.Metadata().Tenant, "tenant7")
}

func attributesOf(e types.Entity) map[string]string {
	attrs := map[string]string{}
	e.ForEachAttribute(func(attributeType, attributeName string, contents any) {
		attrs[attributeName] = attributeType
	})
	return attrs
}

const customerJSON string = `{
	"id": "urn:ngsi-ld:Customer:42",
	"type": "Customer",
	"name": {"type": "Property", "value": "Acme"},
	"employees": {"type": "Property", "value": 12, "observedAt": "2024-01-01T00:00:00Z"},
	"active": {"type": "Property", "value": true},
	"tags": {"type": "Property", "value": ["gold", "nordic"]},
	"dateCreated": {"type": "Property", "value": {"@type": "DateTime", "@value": "2018-06-21T15:12:39Z"}},
	"location": {
		"type": "GeoProperty",
		"value": {"type": "Polygon", "coordinates": [[[17.30, 62.39], [17.31, 62.39], [17.31, 62.40], [17.30, 62.39]]]}
	},
	"refVendor": {"type": "Relationship", "object": "urn:ngsi-ld:Vendor:7"},
	"@context": [
		"https://example.org/customer.jsonld",
		"https://uri.etsi.org/ngsi-ld/v1/ngsi-ld-core-context.jsonld"
	]
}`

const vendorJSON string = `{
	"id": "urn:ngsi-ld:Vendor:7",
	"type": "Vendor",
	"name": {"type": "Property", "value": "Globex"},
	"location": {"type": "GeoProperty", "value": {"type": "Point", "coordinates": [17.3, 62.4]}},
	"refCustomers": {"type": "Relationship", "object": ["urn:ngsi-ld:Customer:42", "urn:ngsi-ld:Customer:43"]},
	"@context": "https://example.org/vendor.jsonld"
}`
