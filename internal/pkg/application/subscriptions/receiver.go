package subscriptions

import (
	"context"
	"fmt"

	"github.com/diwise/context-bridge/pkg/ngsild/binding"
	"github.com/diwise/context-bridge/pkg/ngsild/snapshot"
	"github.com/diwise/context-bridge/pkg/ngsild/types/subscriptions"
	"github.com/diwise/context-bridge/pkg/store"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

type Dispatcher interface {
	Dispatch(action store.Action)
}

// Receiver turns notifications from the context broker into actions on a store
type Receiver interface {
	Start() error
	Stop() error

	Receive(ctx context.Context, n *subscriptions.Notification) error
}

type receiver struct {
	*worker
	dispatcher Dispatcher
}

func NewReceiver(d Dispatcher) Receiver {
	return &receiver{
		worker:     newWorker(),
		dispatcher: d,
	}
}

// Receive queues the entities of a notification for dispatch. The entities are
// normalized before they reach the store.
func (r *receiver) Receive(ctx context.Context, n *subscriptions.Notification) error {
	if n == nil || len(n.Data) == 0 {
		return nil
	}

	ctx = logging.NewContextWithLogger(context.WithoutCancel(ctx), logging.GetFromContext(ctx), "notification_id", n.Id)
	logger := logging.GetFromContext(ctx)

	queued := r.enqueue(func() {
		snapshots := plainEntities(snapshot.NormalizeContext(ctx, n.Data))
		if len(snapshots) == 0 {
			logger.Warn("notification contained no entities that could be normalized")
			return
		}

		r.dispatcher.Dispatch(binding.EntitiesReceived(snapshots))
		logger.Debug("entities received", "count", len(snapshots))
	})

	if !queued {
		return fmt.Errorf("receiver is not started")
	}

	return nil
}

func plainEntities(normalized any) []map[string]any {
	list, ok := normalized.([]any)
	if !ok {
		return nil
	}

	result := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			result = append(result, m)
		}
	}

	return result
}
