package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/diwise/context-bridge/internal/pkg/application/subscriptions"
	"github.com/diwise/context-bridge/internal/pkg/presentation/api/auth"
	"github.com/diwise/context-bridge/pkg/ngsild"
	"github.com/diwise/context-bridge/pkg/ngsild/binding"
	"github.com/diwise/context-bridge/pkg/store"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StateReader is the read side of the application state
type StateReader interface {
	State() store.State
	Connection() *binding.State
	Entity(entityID string) (map[string]any, bool)
}

// StateWriter changes live entities and tracks the outcome in the state
type StateWriter interface {
	MergeEntity(ctx context.Context, entityID string, attributes map[string]any) (*ngsild.OperationResult, error)
	DeleteEntity(ctx context.Context, entityID string) (*ngsild.OperationResult, error)
}

type StateReadWriter interface {
	StateReader
	StateWriter
}

func RegisterHandlers(ctx context.Context, r chi.Router, authorizer auth.Authorizer, app StateReadWriter, receiver subscriptions.Receiver) {
	r.Route("/api/v0", func(r chi.Router) {
		r.Use(Logger(logging.GetFromContext(ctx)))

		r.Route("/state", func(r chi.Router) {
			r.Get("/", NewRetrieveStateHandler(app, authorizer))
			r.Get("/connection", NewRetrieveConnectionHandler(app, authorizer))
			r.Get("/entities/*", NewRetrieveEntitySnapshotHandler(app, authorizer))
			r.With(RequiredContentTypes([]string{"application/json", "application/ld+json", "application/merge-patch+json"})).
				Patch("/entities/*", NewMergeEntityHandler(app, authorizer))
			r.Delete("/entities/*", NewDeleteEntityHandler(app, authorizer))
		})

		r.With(RequiredContentTypes([]string{"application/json", "application/ld+json"})).
			Post("/notifications", NewNotificationHandler(receiver, authorizer))
	})
}

func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(
				trace.SpanFromContext(ctx),
				logger,
				ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequiredContentTypes(validTypes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			contentType := r.Header.Get("Content-Type")

			for _, t := range validTypes {
				if strings.HasPrefix(contentType, t) {
					next.ServeHTTP(w, r)
					return
				}
			}

			http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
		})
	}
}

func traceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func addLabelIfError(err error, labeler *otelhttp.Labeler) {
	if err != nil && labeler != nil {
		labeler.Add(attribute.Bool("error", true))
	}
}
