package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/diwise/context-bridge/internal/pkg/application/subscriptions"
	"github.com/diwise/context-bridge/internal/pkg/presentation/api/auth"
	"github.com/diwise/context-bridge/pkg/ngsild/binding"
	ngsierrors "github.com/diwise/context-bridge/pkg/ngsild/errors"
	ngsisubscriptions "github.com/diwise/context-bridge/pkg/ngsild/types/subscriptions"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type deniedFunc func(w http.ResponseWriter, traceID string)

// unauthorized readers are told that nothing exists rather than that they lack access
func hideState(w http.ResponseWriter, traceID string) {
	ngsierrors.ReportNotFoundError(w, "not found", traceID)
}

func rejectNotification(w http.ResponseWriter, traceID string) {
	ngsierrors.ReportUnauthorizedRequest(w, "unauthorized", traceID)
}

// guarded only calls next when the authorizer grants access to the slices
// requested by r. Any error returned by next labels the request span.
func guarded(authorizer auth.Authorizer, requested func(*http.Request) []string, denied deniedFunc, next func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx := r.Context()

		labeler, _ := otelhttp.LabelerFromContext(ctx)
		defer func() { addLabelIfError(err, labeler) }()

		if err = authorizer.Authorize(ctx, r, requested(r)); err != nil {
			logging.GetFromContext(ctx).Warn("request not authorized", "path", r.URL.Path, "err", err.Error())
			denied(w, traceID(ctx))
			return
		}

		err = next(w, r)
	}
}

func bridgeSlice(*http.Request) []string {
	return []string{binding.SliceName}
}

// NewRetrieveStateHandler serves the complete state tree
func NewRetrieveStateHandler(app StateReader, authorizer auth.Authorizer) http.HandlerFunc {
	allSlices := func(*http.Request) []string {
		names := make([]string, 0)
		for name := range app.State() {
			names = append(names, name)
		}
		slices.Sort(names)
		return names
	}

	return guarded(authorizer, allSlices, hideState,
		func(w http.ResponseWriter, r *http.Request) error {
			return writeJSON(w, http.StatusOK, app.State())
		})
}

// NewRetrieveConnectionHandler reports the status of the broker connection
func NewRetrieveConnectionHandler(app StateReader, authorizer auth.Authorizer) http.HandlerFunc {
	return guarded(authorizer, bridgeSlice, hideState,
		func(w http.ResponseWriter, r *http.Request) error {
			conn := app.Connection()

			return writeJSON(w, http.StatusOK, struct {
				Status   binding.ConnectionStatus `json:"status"`
				Error    string                   `json:"error,omitempty"`
				Entities int                      `json:"entities"`
			}{
				Status:   conn.Status,
				Error:    conn.Error,
				Entities: len(conn.Entities),
			})
		})
}

// NewRetrieveEntitySnapshotHandler serves the stored snapshot of a single
// entity. Entity ids may contain slashes.
func NewRetrieveEntitySnapshotHandler(app StateReader, authorizer auth.Authorizer) http.HandlerFunc {
	return guarded(authorizer, bridgeSlice, hideState,
		func(w http.ResponseWriter, r *http.Request) error {
			tid := traceID(r.Context())

			entityID, err := entityIDFromPath(w, r)
			if err != nil {
				return err
			}

			snapshot, ok := app.Entity(entityID)
			if !ok {
				err = fmt.Errorf("no snapshot of entity %s", entityID)
				ngsierrors.ReportNotFoundError(w, err.Error(), tid)
				return err
			}

			return writeJSON(w, http.StatusOK, snapshot)
		})
}

// NewMergeEntityHandler merges the attributes in the request body, given in
// their simplified form, into a live entity
func NewMergeEntityHandler(app StateWriter, authorizer auth.Authorizer) http.HandlerFunc {
	return guarded(authorizer, bridgeSlice, hideState,
		func(w http.ResponseWriter, r *http.Request) error {
			ctx := r.Context()

			entityID, err := entityIDFromPath(w, r)
			if err != nil {
				return err
			}

			attributes := map[string]any{}
			if err = json.NewDecoder(r.Body).Decode(&attributes); err != nil {
				ngsierrors.ReportNewInvalidRequest(w, "unable to decode attributes: "+err.Error(), traceID(ctx))
				return err
			}

			result, err := app.MergeEntity(ctx, entityID, attributes)
			if err != nil {
				reportMutationError(w, err, traceID(ctx))
				return err
			}

			if len(result.Operation.NotUpdated) > 0 {
				return writeJSON(w, http.StatusMultiStatus, result.Operation)
			}

			w.WriteHeader(http.StatusNoContent)
			return nil
		})
}

// NewDeleteEntityHandler removes a live entity from the context broker
func NewDeleteEntityHandler(app StateWriter, authorizer auth.Authorizer) http.HandlerFunc {
	return guarded(authorizer, bridgeSlice, hideState,
		func(w http.ResponseWriter, r *http.Request) error {
			entityID, err := entityIDFromPath(w, r)
			if err != nil {
				return err
			}

			if _, err = app.DeleteEntity(r.Context(), entityID); err != nil {
				reportMutationError(w, err, traceID(r.Context()))
				return err
			}

			w.WriteHeader(http.StatusNoContent)
			return nil
		})
}

func entityIDFromPath(w http.ResponseWriter, r *http.Request) (string, error) {
	entityID, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || entityID == "" {
		ngsierrors.ReportNewBadRequestData(w, "invalid entity id", traceID(r.Context()))
		return "", fmt.Errorf("invalid entity id %q", chi.URLParam(r, "*"))
	}
	return entityID, nil
}

func reportMutationError(w http.ResponseWriter, err error, traceID string) {
	switch {
	case errors.Is(err, ngsierrors.ErrBadRequest):
		ngsierrors.ReportNewBadRequestData(w, err.Error(), traceID)
	case errors.Is(err, ngsierrors.ErrNotFound):
		ngsierrors.ReportNotFoundError(w, err.Error(), traceID)
	default:
		ngsierrors.ReportNewInternalError(w, err.Error(), traceID)
	}
}

// NewNotificationHandler accepts notifications posted by the context broker
func NewNotificationHandler(receiver subscriptions.Receiver, authorizer auth.Authorizer) http.HandlerFunc {
	return guarded(authorizer, bridgeSlice, rejectNotification,
		func(w http.ResponseWriter, r *http.Request) error {
			ctx := r.Context()

			notification := &ngsisubscriptions.Notification{}
			if err := json.NewDecoder(r.Body).Decode(notification); err != nil {
				ngsierrors.ReportNewInvalidRequest(w, "unable to decode notification: "+err.Error(), traceID(ctx))
				return err
			}

			if err := receiver.Receive(ctx, notification); err != nil {
				logging.GetFromContext(ctx).Error("failed to receive notification", "subscription", notification.SubscriptionId, "err", err.Error())
				ngsierrors.ReportNewInternalError(w, err.Error(), traceID(ctx))
				return err
			}

			w.WriteHeader(http.StatusNoContent)
			return nil
		})
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		ngsierrors.ReportNewInternalError(w, "failed to marshal response", "")
		return err
	}

	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, err = w.Write(b)
	return err
}
