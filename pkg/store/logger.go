package store

import (
	"log/slog"
	"time"
)

// Logger logs every action together with the state it resulted in
func Logger(log *slog.Logger) Middleware {
	return func(api API) func(next Dispatcher) Dispatcher {
		return func(next Dispatcher) Dispatcher {
			return func(action Action) {
				start := time.Now()
				prev := api.State()

				next(action)

				log.Info("action dispatched",
					slog.String("action_id", action.ID),
					slog.String("action_type", action.Type),
					slog.Any("prev_state", prev),
					slog.Any("next_state", api.State()),
					slog.Duration("duration", time.Since(start)),
				)
			}
		}
	}
}
