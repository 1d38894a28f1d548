package snapshot

import (
	"context"
	"fmt"
	"maps"
	"reflect"

	"github.com/diwise/context-bridge/pkg/ngsild"
	"github.com/diwise/context-bridge/pkg/ngsild/types"
	"github.com/diwise/context-bridge/pkg/ngsild/types/entities"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

// TryNormalize converts value into a plain snapshot that can be stored or
// transported without any ties to the connection that produced it. Options are
// handed to the entity conversion as is.
//
// When the conversion fails the original value is returned together with the error.
func TryNormalize(value any, options ...entities.KeyValuesOption) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = value
			err = fmt.Errorf("normalization panicked: %v", r)
		}
	}()

	result, err = normalize(value, options)
	if err != nil {
		return value, err
	}

	return result, nil
}

// Normalize is TryNormalize with the error dropped. A value that could not be
// normalized is returned unchanged.
func Normalize(value any, options ...entities.KeyValuesOption) any {
	result, _ := TryNormalize(value, options...)
	return result
}

// NormalizeContext behaves like Normalize and logs the dropped error, if any,
// at debug level
func NormalizeContext(ctx context.Context, value any, options ...entities.KeyValuesOption) any {
	result, err := TryNormalize(value, options...)
	if err != nil {
		logging.GetFromContext(ctx).Debug("value passed through without normalization", "shape", Classify(value).String(), "err", err.Error())
	}
	return result
}

func normalize(value any, options []entities.KeyValuesOption) (any, error) {
	switch Classify(value) {
	case OperationResult:
		return normalizeOperationResult(value, options)
	case EntityList:
		return normalizeEntityList(value, options)
	case SingleEntity:
		return entities.KeyValues(value.(types.Entity), options...)
	}

	return value, nil
}

func normalizeOperationResult(value any, options []entities.KeyValuesOption) (any, error) {
	switch r := value.(type) {
	case *ngsild.OperationResult:
		data, err := normalize(r.Data, options)
		if err != nil {
			return nil, err
		}
		return &ngsild.OperationResult{Operation: r.Operation, Data: data}, nil
	case ngsild.OperationResult:
		data, err := normalize(r.Data, options)
		if err != nil {
			return nil, err
		}
		return ngsild.OperationResult{Operation: r.Operation, Data: data}, nil
	case map[string]any:
		data, err := normalize(r[DataKey], options)
		if err != nil {
			return nil, err
		}

		result := maps.Clone(r)
		if _, ok := r[DataKey]; ok {
			result[DataKey] = data
		}
		return result, nil
	}

	return nil, fmt.Errorf("unsupported operation result %T", value)
}

func normalizeEntityList(value any, options []entities.KeyValuesOption) (any, error) {
	rv := reflect.ValueOf(value)
	result := make([]any, 0, rv.Len())

	for i := range rv.Len() {
		e, ok := rv.Index(i).Interface().(types.Entity)
		if !ok {
			return nil, fmt.Errorf("list element %d is not an entity", i)
		}

		kv, err := entities.KeyValues(e, options...)
		if err != nil {
			return nil, fmt.Errorf("list element %d: %w", i, err)
		}

		result = append(result, kv)
	}

	return result, nil
}
