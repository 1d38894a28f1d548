package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/diwise/context-bridge/pkg/ngsild"
	"github.com/diwise/context-bridge/pkg/ngsild/errors"
	"github.com/diwise/context-bridge/pkg/ngsild/types"
	"github.com/diwise/context-bridge/pkg/ngsild/types/entities"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ContextBrokerClient is the subset of the NGSI-LD API the bridge talks to
type ContextBrokerClient interface {
	CreateEntity(ctx context.Context, entity types.Entity, headers map[string][]string) (*ngsild.CreateEntityResult, error)
	QueryEntities(ctx context.Context, headers map[string][]string, parameters ...RequestDecoratorFunc) (*ngsild.QueryEntitiesResult, error)
	RetrieveEntity(ctx context.Context, entityID string, headers map[string][]string) (types.Entity, error)
	RetrieveAvailableEntityTypes(ctx context.Context, headers map[string][]string) ([]string, error)
	MergeEntity(ctx context.Context, entityID string, fragment types.EntityFragment, headers map[string][]string) (*ngsild.MergeEntityResult, error)
	UpdateEntityAttributes(ctx context.Context, entityID string, fragment types.EntityFragment, headers map[string][]string) (*ngsild.UpdateEntityAttributesResult, error)
	DeleteEntity(ctx context.Context, entityID string) (*ngsild.DeleteEntityResult, error)
}

func Debug(enabled string) func(*cbClient) {
	return func(c *cbClient) {
		c.debug = (enabled == "true")
	}
}

func Tenant(tenant string) func(*cbClient) {
	return func(c *cbClient) {
		c.tenant = tenant
	}
}

func NewContextBrokerClient(broker string, options ...func(*cbClient)) ContextBrokerClient {
	c := &cbClient{
		baseURL: strings.TrimSuffix(broker, "/"),
		tenant:  entities.DefaultNGSITenant,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, option := range options {
		option(c)
	}

	return c
}

const (
	TraceAttributeEntityID     string = "entity-id"
	TraceAttributeNGSILDTenant string = "ngsild-tenant"
)

var tracer = otel.Tracer("context-bridge/client")

type cbClient struct {
	baseURL    string
	tenant     string
	debug      bool
	httpClient *http.Client
}

func (c cbClient) startSpan(ctx context.Context, name, entityID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String(TraceAttributeNGSILDTenant, c.tenant)}
	if entityID != "" {
		attrs = append(attrs, attribute.String(TraceAttributeEntityID, entityID))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (c cbClient) entityURL(entityID string) string {
	return c.baseURL + "/ngsi-ld/v1/entities/" + url.QueryEscape(entityID)
}

func (c cbClient) CreateEntity(ctx context.Context, entity types.Entity, headers map[string][]string) (*ngsild.CreateEntityResult, error) {
	var err error

	ctx, span := c.startSpan(ctx, "create-entity", entity.ID())
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, respBody, err := c.send(ctx, http.MethodPost, c.baseURL+"/ngsi-ld/v1/entities", entity, withContentType(headers))
	if err != nil {
		return nil, err
	}

	if err = c.expect(resp, respBody, http.StatusCreated); err != nil {
		return nil, err
	}

	location := resp.Header.Get("Location")
	if location == "" {
		logging.GetFromContext(ctx).Warn("context broker failed to provide a location header with created response")
		location = "/ngsi-ld/v1/entities/" + url.QueryEscape(entity.ID())
	}

	return ngsild.NewCreateEntityResult(location), nil
}

func (c cbClient) RetrieveEntity(ctx context.Context, entityID string, headers map[string][]string) (types.Entity, error) {
	var err error

	ctx, span := c.startSpan(ctx, "retrieve-entity", entityID)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, respBody, err := c.send(ctx, http.MethodGet, c.entityURL(entityID), nil, withAccept(headers))
	if err != nil {
		return nil, err
	}

	if err = c.expect(resp, respBody, http.StatusOK); err != nil {
		return nil, err
	}

	var e types.Entity
	e, err = entities.NewFromJSON(respBody)
	if err != nil {
		err = fmt.Errorf("%s (%w)", err.Error(), errors.ErrBadResponse)
		return nil, err
	}

	return e, nil
}

// RetrieveAvailableEntityTypes returns the names of the entity types the broker knows about
func (c cbClient) RetrieveAvailableEntityTypes(ctx context.Context, headers map[string][]string) ([]string, error) {
	var err error

	ctx, span := c.startSpan(ctx, "retrieve-entity-types", "")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, respBody, err := c.send(ctx, http.MethodGet, c.baseURL+"/ngsi-ld/v1/types", nil, withAccept(headers))
	if err != nil {
		return nil, err
	}

	if err = c.expect(resp, respBody, http.StatusOK); err != nil {
		return nil, err
	}

	typeList := struct {
		TypeList json.RawMessage `json:"typeList"`
	}{}

	err = json.Unmarshal(respBody, &typeList)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal type list: %s (%w)", err.Error(), errors.ErrBadResponse)
	}

	// the type list is either a bare array or a keyValues property object
	names := []string{}
	if err = json.Unmarshal(typeList.TypeList, &names); err == nil {
		return names, nil
	}

	wrapped := struct {
		Value []string `json:"value"`
	}{}
	if err = json.Unmarshal(typeList.TypeList, &wrapped); err != nil {
		return nil, fmt.Errorf("unsupported type list format: %s (%w)", err.Error(), errors.ErrBadResponse)
	}

	return wrapped.Value, nil
}

func (c cbClient) MergeEntity(ctx context.Context, entityID string, fragment types.EntityFragment, headers map[string][]string) (*ngsild.MergeEntityResult, error) {
	var err error

	ctx, span := c.startSpan(ctx, "merge-entity", entityID)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, respBody, err := c.send(ctx, http.MethodPatch, c.entityURL(entityID), fragment, withContentType(headers))
	if err != nil {
		return nil, err
	}

	if err = c.expect(resp, respBody, http.StatusNoContent, http.StatusMultiStatus); err != nil {
		return nil, err
	}

	var result *ngsild.MergeEntityResult
	result, err = ngsild.NewMergeEntityResult(respBody)
	return result, err
}

func (c cbClient) UpdateEntityAttributes(ctx context.Context, entityID string, fragment types.EntityFragment, headers map[string][]string) (*ngsild.UpdateEntityAttributesResult, error) {
	var err error

	ctx, span := c.startSpan(ctx, "update-entity-attributes", entityID)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, respBody, err := c.send(ctx, http.MethodPatch, c.entityURL(entityID)+"/attrs/", fragment, withContentType(headers))
	if err != nil {
		return nil, err
	}

	if err = c.expect(resp, respBody, http.StatusNoContent, http.StatusMultiStatus); err != nil {
		return nil, err
	}

	var result *ngsild.UpdateEntityAttributesResult
	result, err = ngsild.NewUpdateEntityAttributesResult(respBody)
	return result, err
}

// QueryEntities streams the matching entities on the Found channel of the
// result. A nil entity marks the end of the stream.
func (c cbClient) QueryEntities(ctx context.Context, headers map[string][]string, parameters ...RequestDecoratorFunc) (*ngsild.QueryEntitiesResult, error) {
	var err error

	ctx, span := c.startSpan(ctx, "query-entities", "")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, respBody, err := c.send(ctx, http.MethodGet, c.baseURL+"/ngsi-ld/v1/entities"+encodeParameters(parameters), nil, withAccept(headers))
	if err != nil {
		return nil, err
	}

	if err = c.expect(resp, respBody, http.StatusOK); err != nil {
		return nil, err
	}

	var found []types.Entity
	found, err = entities.NewFromSlice(respBody)
	if err != nil {
		if c.debug && len(respBody) < 1000 {
			err = fmt.Errorf("unmarshaling of %s failed with err %s (%w)", string(respBody), err.Error(), errors.ErrBadResponse)
		} else {
			err = fmt.Errorf("failed to unmarshal query result: %s (%w)", err.Error(), errors.ErrBadResponse)
		}
		return nil, err
	}

	result := ngsild.NewQueryEntitiesResult()

	if count, err := strconv.ParseInt(resp.Header.Get("NGSILD-Results-Count"), 10, 64); err == nil {
		result.TotalCount = count
	}

	go func() {
		for _, e := range found {
			result.Found <- e
		}
		result.Found <- nil
	}()

	return result, nil
}

func (c cbClient) DeleteEntity(ctx context.Context, entityID string) (*ngsild.DeleteEntityResult, error) {
	var err error

	ctx, span := c.startSpan(ctx, "delete-entity", entityID)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	resp, respBody, err := c.send(ctx, http.MethodDelete, c.entityURL(entityID), nil, nil)
	if err != nil {
		return nil, err
	}

	if err = c.expect(resp, respBody, http.StatusNoContent); err != nil {
		return nil, err
	}

	return ngsild.NewDeleteEntityResult(), nil
}

// expect returns nil if the response has one of the expected status codes, or
// an error that describes what the broker sent back instead
func (c cbClient) expect(resp *http.Response, respBody []byte, statusCodes ...int) error {
	if slices.Contains(statusCodes, resp.StatusCode) {
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode <= http.StatusInternalServerError {
		return errors.NewErrorFromProblemReport(resp.StatusCode, contentType, respBody)
	}

	return fmt.Errorf("context broker returned status code %d (content-type: %s, body: %s): %w", resp.StatusCode, contentType, string(respBody), errors.ErrBadResponse)
}

func (c cbClient) send(ctx context.Context, method, endpoint string, payload types.EntityFragment, headers map[string][]string) (*http.Response, []byte, error) {
	var body io.Reader

	if payload != nil {
		b, err := payload.MarshalJSON()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %s (%w)", err.Error(), errors.ErrInternal)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %s (%w)", err.Error(), errors.ErrInternal)
	}

	if c.tenant != entities.DefaultNGSITenant {
		req.Header.Add("NGSILD-Tenant", c.tenant)
	}

	for header, values := range headers {
		for _, v := range values {
			req.Header.Add(header, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %s (%w)", err.Error(), errors.ErrRequest)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %s (%w)", err.Error(), errors.ErrBadResponse)
	}

	if c.debug && resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		reqDump, _ := httputil.DumpRequest(req, false)
		respDump, _ := httputil.DumpResponse(resp, false)
		logging.GetFromContext(ctx).Error("request failed", "request", string(reqDump), "response", string(respDump))
	}

	return resp, respBody, nil
}

func withAccept(headers map[string][]string) map[string][]string {
	return withDefaultHeader(headers, "Accept", "application/ld+json")
}

func withContentType(headers map[string][]string) map[string][]string {
	return withDefaultHeader(headers, "Content-Type", "application/ld+json")
}

func withDefaultHeader(headers map[string][]string, name, value string) map[string][]string {
	result := make(map[string][]string, len(headers)+1)
	for k, v := range headers {
		result[k] = v
	}

	if _, ok := result[name]; !ok {
		result[name] = []string{value}
	}

	return result
}
