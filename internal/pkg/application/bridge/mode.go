package bridge

import (
	"context"
	"log/slog"
	"strings"

	"github.com/diwise/context-bridge/pkg/store"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
)

type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

const AppEnvVariable string = "APP_ENV"

// ModeFromEnvironment reads the mode from APP_ENV. Anything but development
// is treated as production.
func ModeFromEnvironment(ctx context.Context) Mode {
	value := env.GetVariableOrDefault(ctx, AppEnvVariable, string(ModeProduction))
	if strings.EqualFold(strings.TrimSpace(value), string(ModeDevelopment)) {
		return ModeDevelopment
	}
	return ModeProduction
}

// Middleware returns the middleware chain for the mode
func (m Mode) Middleware(log *slog.Logger) []store.Middleware {
	if m == ModeDevelopment {
		return []store.Middleware{store.Logger(log)}
	}
	return []store.Middleware{}
}
