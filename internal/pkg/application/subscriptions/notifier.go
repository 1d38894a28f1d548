package subscriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/diwise/context-bridge/pkg/ngsild"
	"github.com/diwise/context-bridge/pkg/ngsild/snapshot"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Notifier forwards completed operations to an external endpoint
type Notifier interface {
	Start() error
	Stop() error

	OperationCompleted(ctx context.Context, result *ngsild.OperationResult)
}

var tracer = otel.Tracer("context-bridge/notifier")

type notifier struct {
	*worker
	endpoint string
	client   http.Client
}

func NewNotifier(ctx context.Context, endpoint string) (Notifier, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("a notification endpoint is required")
	}

	return &notifier{
		worker:   newWorker(),
		endpoint: endpoint,
		client: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
	}, nil
}

// OperationNotification is the body posted for each completed operation. Data
// holds plain snapshots only.
type OperationNotification struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	NotifiedAt string           `json:"notifiedAt"`
	Operation  ngsild.Operation `json:"operation"`
	Data       []any            `json:"data"`
}

func NewOperationNotification(result *ngsild.OperationResult) *OperationNotification {
	n := &OperationNotification{
		ID:         fmt.Sprintf("urn:ngsi-ld:Notification:%s", uuid.New().String()),
		Type:       "Notification",
		NotifiedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Operation:  result.Operation,
		Data:       []any{},
	}

	switch data := snapshot.Normalize(result.Data).(type) {
	case nil:
	case []any:
		n.Data = data
	default:
		n.Data = append(n.Data, data)
	}

	return n
}

// OperationCompleted queues a notification about result. Notifications are
// dropped when the notifier is not started.
func (n *notifier) OperationCompleted(ctx context.Context, result *ngsild.OperationResult) {
	if result == nil {
		return
	}

	logger := logging.GetFromContext(ctx).With("entity_id", result.Operation.EntityID, "operation", string(result.Operation.Kind))
	notification := NewOperationNotification(result)

	// the span outlives the request context so only the trace headers are carried over
	spanCtx, span := tracer.Start(tracing.ExtractHeaders(context.Background(), tracing.InjectHeaders(ctx)), "notify-operation")

	if !n.enqueue(func() { n.deliver(spanCtx, logger, notification, span) }) {
		logger.Debug("notifier not started, dropping notification")
		span.End()
	}
}

const deliveryAttempts int = 3

func (n *notifier) deliver(ctx context.Context, logger *slog.Logger, notification *OperationNotification, span trace.Span) {
	var err error
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	body, err := json.Marshal(notification)
	if err != nil {
		logger.Error("failed to marshal notification", "err", err.Error())
		return
	}

	for attempt := 1; attempt <= deliveryAttempts; attempt++ {
		var retry bool
		if retry, err = n.post(ctx, body); err == nil || !retry {
			break
		}

		logger.Warn("notification delivery failed", "attempt", attempt, "err", err.Error())
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
	}

	if err != nil {
		logger.Error("giving up on notification", "notification_id", notification.ID, "err", err.Error())
	}
}

// post sends body to the endpoint and reports whether a failure is worth retrying
func (n *notifier) post(ctx context.Context, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("bad notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return true, fmt.Errorf("endpoint failed with status %d", resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return false, fmt.Errorf("endpoint rejected notification with status %d", resp.StatusCode)
	}

	return false, nil
}
