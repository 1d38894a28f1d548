package ngsild

import (
	"encoding/json"

	"github.com/diwise/context-bridge/pkg/ngsild/types"
)

// CreateEntityResult carries the location of a newly created entity
type CreateEntityResult struct {
	location string
}

func NewCreateEntityResult(location string) *CreateEntityResult {
	return &CreateEntityResult{location: location}
}

func (r CreateEntityResult) Location() string {
	return r.location
}

// QueryEntitiesResult streams matching entities on Found until a nil entity
// is sent. TotalCount stays at -1 unless the broker reports a count.
type QueryEntitiesResult struct {
	Found      chan (types.Entity)
	TotalCount int64
}

func NewQueryEntitiesResult() *QueryEntitiesResult {
	return &QueryEntitiesResult{Found: make(chan types.Entity), TotalCount: -1}
}

// AttributeFailure names an attribute the broker refused to change
type AttributeFailure struct {
	AttributeName string `json:"attributeName"`
	Reason        string `json:"reason"`
}

// UpdateEntityAttributesResult is the body of a 207 Multi-Status response.
// A 204 response leaves it empty.
type UpdateEntityAttributesResult struct {
	Updated    []string           `json:"updated"`
	NotUpdated []AttributeFailure `json:"notUpdated"`
}

func NewUpdateEntityAttributesResult(body []byte) (*UpdateEntityAttributesResult, error) {
	result := &UpdateEntityAttributesResult{}
	if len(body) == 0 {
		return result, nil
	}

	if err := json.Unmarshal(body, result); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *UpdateEntityAttributesResult) IsMultiStatus() bool {
	return len(r.NotUpdated) > 0
}

// FailedAttributes returns the names of the attributes that were not updated
func (r *UpdateEntityAttributesResult) FailedAttributes() []string {
	if r == nil || !r.IsMultiStatus() {
		return nil
	}

	names := make([]string, 0, len(r.NotUpdated))
	for _, failure := range r.NotUpdated {
		names = append(names, failure.AttributeName)
	}
	return names
}

type MergeEntityResult struct {
	UpdateEntityAttributesResult
}

func NewMergeEntityResult(body []byte) (*MergeEntityResult, error) {
	result, err := NewUpdateEntityAttributesResult(body)
	if err != nil {
		return nil, err
	}

	return &MergeEntityResult{UpdateEntityAttributesResult: *result}, nil
}

type DeleteEntityResult struct{}

func NewDeleteEntityResult() *DeleteEntityResult {
	return &DeleteEntityResult{}
}

type OperationKind string

const (
	OperationCreate           OperationKind = "create"
	OperationMerge            OperationKind = "merge"
	OperationUpdateAttributes OperationKind = "updateAttributes"
	OperationDelete           OperationKind = "delete"
)

// Operation describes the mutation that produced an OperationResult
type Operation struct {
	Kind       OperationKind `json:"kind"`
	EntityID   string        `json:"entityId"`
	Attributes []string      `json:"attributes,omitempty"`
	NotUpdated []string      `json:"notUpdated,omitempty"`
}

// OperationResult pairs a mutation descriptor with the data it resulted in.
// Data is a live entity, a list of live entities, or nil.
type OperationResult struct {
	Operation Operation `json:"operation"`
	Data      any       `json:"data"`
}

func NewOperationResult(op Operation, data any) *OperationResult {
	return &OperationResult{Operation: op, Data: data}
}
