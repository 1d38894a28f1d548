package main

import (
	"context"
	"flag"
	"io"

	"github.com/diwise/context-bridge/internal/pkg/application/bridge"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
)

type FlagType int
type FlagMap map[FlagType]string

const (
	listenAddress FlagType = iota
	servicePort

	configPath
	opaPath

	brokerURL
	brokerTenant
)

type AppConfig struct {
	brokerConfig io.ReadCloser
	configFormat bridge.ConfigFormat
	opaConfig    io.ReadCloser
	policyPath   string
}

func DefaultFlags() FlagMap {
	return FlagMap{
		listenAddress: "",
		servicePort:   "8080",

		configPath: "/opt/diwise/config/bridge.yaml",
		opaPath:    "/opt/diwise/config/authz.rego",
	}
}

func parseExternalConfig(ctx context.Context, flags FlagMap) FlagMap {

	// Allow environment variables to override certain defaults
	envOrDef := env.GetVariableOrDefault
	flags[listenAddress] = envOrDef(ctx, "LISTEN_ADDRESS", flags[listenAddress])
	flags[servicePort] = envOrDef(ctx, "SERVICE_PORT", flags[servicePort])
	flags[configPath] = envOrDef(ctx, "BRIDGE_CONFIG_PATH", flags[configPath])
	flags[opaPath] = envOrDef(ctx, "BRIDGE_POLICIES", flags[opaPath])
	flags[brokerURL] = envOrDef(ctx, "NGSI_CB_URL", flags[brokerURL])
	flags[brokerTenant] = envOrDef(ctx, "NGSI_CB_TENANT", flags[brokerTenant])

	apply := func(f FlagType) func(string) error {
		return func(value string) error {
			flags[f] = value
			return nil
		}
	}

	// Allow command line arguments to override defaults and environment variables
	flag.Func("config", "path to the bridge configuration file", apply(configPath))
	flag.Func("policies", "an authorization policy file", apply(opaPath))
	flag.Func("broker", "url of the NGSI-LD context broker", apply(brokerURL))
	flag.Parse()

	return flags
}
