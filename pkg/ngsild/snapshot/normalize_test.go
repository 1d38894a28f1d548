package snapshot

import (
	"context"
	"testing"

	"github.com/diwise/context-bridge/pkg/ngsild"
	"github.com/diwise/context-bridge/pkg/ngsild/types"
	"github.com/diwise/context-bridge/pkg/ngsild/types/entities"
	"github.com/diwise/context-bridge/pkg/ngsild/types/entities/decorators"
	"github.com/matryer/is"
)

func TestClassify(t *testing.T) {
	var nilEntity *entities.EntityImpl

	cases := map[string]struct {
		value any
		shape Shape
	}{
		"nil":               {nil, Empty},
		"typed nil":         {nilEntity, Empty},
		"empty string":      {"", Empty},
		"empty list":        {[]any{}, Empty},
		"empty map":         {map[string]any{}, Empty},
		"number":            {17.2, Scalar},
		"plain map":         {map[string]any{"id": "db/Customer/42"}, Scalar},
		"entity":            {customer("42", "Acme"), SingleEntity},
		"entity list":       {[]types.Entity{customer("42", "Acme")}, EntityList},
		"mixed list":        {[]any{customer("42", "Acme"), "x"}, EntityList},
		"plain list":        {[]any{"a", customer("42", "Acme")}, PlainList},
		"string list":       {[]string{"a", "b"}, PlainList},
		"operation result":  {ngsild.NewOperationResult(ngsild.Operation{}, nil), OperationResult},
		"operation value":   {ngsild.OperationResult{}, OperationResult},
		"operation map":     {map[string]any{"operation": "merge", "data": nil}, OperationResult},
		"nil first element": {[]any{nil, customer("42", "Acme")}, PlainList},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(Classify(tc.value), tc.shape)
		})
	}
}

func TestNormalizeIsIdempotentForPlainValues(t *testing.T) {
	is := is.New(t)

	plain := []any{
		nil,
		"text",
		42.0,
		true,
		[]any{"a", "b"},
		map[string]any{"id": "db/Customer/42", "type": "Customer", "name": "Acme"},
		map[string]any{"operation": map[string]any{"kind": "merge"}, "data": map[string]any{"id": "db/Customer/42"}},
	}

	for _, v := range plain {
		is.Equal(Normalize(v), v)
		is.Equal(Normalize(Normalize(v)), v)
	}
}

func TestNormalizeSingleEntity(t *testing.T) {
	is := is.New(t)

	result := Normalize(customer("42", "Acme"))

	is.Equal(result, map[string]any{"id": "db/Customer/42", "type": "Customer", "name": "Acme"})
	is.Equal(Normalize(result), result)
}

func TestNormalizeEntityListPreservesOrder(t *testing.T) {
	is := is.New(t)

	e1 := customer("1", "Acme")
	e2 := customer("2", "Globex")

	result := Normalize([]types.Entity{e1, e2})

	kv1, _ := entities.KeyValues(e1)
	kv2, _ := entities.KeyValues(e2)
	is.Equal(result, []any{kv1, kv2})
}

func TestNormalizePlainListIsUnchanged(t *testing.T) {
	is := is.New(t)

	list := []any{1, customer("42", "Acme")}
	result := Normalize(list)

	is.Equal(result, list)
}

func TestNormalizeOperationResult(t *testing.T) {
	is := is.New(t)

	op := ngsild.Operation{Kind: ngsild.OperationMerge, EntityID: "db/Customer/42", Attributes: []string{"name"}}
	e := customer("42", "Acme")

	original := ngsild.NewOperationResult(op, e)
	result, err := TryNormalize(original)
	is.NoErr(err)

	normalized, ok := result.(*ngsild.OperationResult)
	is.True(ok)
	is.True(normalized != original) // result should be a copy

	kv, _ := entities.KeyValues(e)
	is.Equal(normalized.Data, kv)
	is.Equal(normalized.Operation, op)

	is.Equal(original.Data, e) // the original must not be modified
}

func TestNormalizeOperationResultWithEntityList(t *testing.T) {
	is := is.New(t)

	op := ngsild.Operation{Kind: ngsild.OperationCreate}
	result := Normalize(ngsild.OperationResult{Operation: op, Data: []types.Entity{customer("1", "Acme"), customer("2", "Globex")}})

	normalized, ok := result.(ngsild.OperationResult)
	is.True(ok)

	data, ok := normalized.Data.([]any)
	is.True(ok)
	is.Equal(len(data), 2)
	is.Equal(data[1].(map[string]any)["name"], "Globex")
}

func TestNormalizeOperationResultMap(t *testing.T) {
	is := is.New(t)

	descriptor := map[string]any{"kind": "updateAttributes"}
	original := map[string]any{"operation": descriptor, "data": customer("42", "Acme"), "pending": false}

	result := Normalize(original).(map[string]any)

	is.Equal(result["operation"], descriptor)
	is.Equal(result["pending"], false)
	is.Equal(result["data"].(map[string]any)["name"], "Acme")

	_, ok := original["data"].(types.Entity)
	is.True(ok) // the original map must not be modified
}

func TestNormalizeOptionsArePassedThrough(t *testing.T) {
	is := is.New(t)

	e, _ := entities.New("db/Customer/42", "Customer", decorators.Name("Acme"), decorators.Text("country", "SE"))

	result := Normalize(e, entities.Attributes("country")).(map[string]any)

	is.Equal(result, map[string]any{"id": "db/Customer/42", "type": "Customer", "country": "SE"})
}

func TestTryNormalizeReturnsOriginalOnFailure(t *testing.T) {
	is := is.New(t)

	var broken *entities.EntityImpl
	list := []types.Entity{customer("1", "Acme"), broken}

	result, err := TryNormalize(list)
	is.True(err != nil)    // converting a nil entity should fail
	is.Equal(result, list) // and the original value should be returned
	is.Equal(Normalize(list), list)
}

func TestTryNormalizeReturnsOriginalOnNonEntityElement(t *testing.T) {
	is := is.New(t)

	list := []any{customer("1", "Acme"), "not an entity"}

	result, err := TryNormalize(list)
	is.True(err != nil)
	is.Equal(result, list)
}

func TestNormalizeContextDoesNotFail(t *testing.T) {
	is := is.New(t)

	list := []any{customer("1", "Acme"), 17}
	is.Equal(NormalizeContext(context.Background(), list), list)
}

func customer(localID, name string) types.Entity {
	e, _ := entities.New("db/Customer/"+localID, "Customer", decorators.Name(name))
	return e
}
