package snapshot

import (
	"reflect"

	"github.com/diwise/context-bridge/pkg/ngsild"
	"github.com/diwise/context-bridge/pkg/ngsild/types"
)

// Shape is the structurally detected kind of a value passed to the normalizer
type Shape int

const (
	Empty Shape = iota
	Scalar
	SingleEntity
	EntityList
	PlainList
	OperationResult
)

func (s Shape) String() string {
	switch s {
	case Empty:
		return "empty"
	case Scalar:
		return "scalar"
	case SingleEntity:
		return "entity"
	case EntityList:
		return "entity-list"
	case PlainList:
		return "plain-list"
	case OperationResult:
		return "operation-result"
	}
	return "unknown"
}

// OperationKey is the key that marks a plain map as an operation result
const OperationKey string = "operation"

// DataKey holds the payload of an operation result in its plain form
const DataKey string = "data"

// Classify reports the shape of value. Operation results are detected before
// lists, and lists before single entities.
func Classify(value any) Shape {
	if isEmpty(value) {
		return Empty
	}

	switch v := value.(type) {
	case *ngsild.OperationResult, ngsild.OperationResult:
		return OperationResult
	case map[string]any:
		if _, ok := v[OperationKey]; ok {
			return OperationResult
		}
		return Scalar
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if isEntity(rv.Index(0)) {
			return EntityList
		}
		return PlainList
	}

	if _, ok := value.(types.Entity); ok {
		return SingleEntity
	}

	return Scalar
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	case reflect.Slice, reflect.Map:
		return rv.IsNil() || rv.Len() == 0
	case reflect.Array, reflect.String:
		return rv.Len() == 0
	}

	return false
}

func isEntity(element reflect.Value) bool {
	if element.Kind() == reflect.Interface {
		if element.IsNil() {
			return false
		}
		element = element.Elem()
	}

	if !element.CanInterface() {
		return false
	}

	_, ok := element.Interface().(types.Entity)
	return ok
}
