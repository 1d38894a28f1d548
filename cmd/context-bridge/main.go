package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/diwise/context-bridge/internal/pkg/application/bridge"
	"github.com/diwise/context-bridge/internal/pkg/application/subscriptions"
	"github.com/diwise/context-bridge/internal/pkg/infrastructure/router"
	"github.com/diwise/context-bridge/internal/pkg/presentation/api"
	"github.com/diwise/context-bridge/internal/pkg/presentation/api/auth"
	"github.com/diwise/context-bridge/pkg/ngsild/client"
	"github.com/diwise/context-bridge/pkg/ngsild/connection"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const serviceName string = "context-bridge"

func main() {
	serviceVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion, "json")
	defer cleanup()

	flags := parseExternalConfig(ctx, DefaultFlags())

	cfgFile, err := os.Open(flags[configPath])
	if err != nil {
		log.Error("failed to open the bridge configuration file", "path", flags[configPath], "err", err.Error())
		os.Exit(1)
	}

	policies, err := os.Open(flags[opaPath])
	if err != nil {
		log.Error("unable to open opa policy file", "path", flags[opaPath], "err", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := initialize(ctx, flags, &AppConfig{
		brokerConfig: cfgFile,
		opaConfig:    policies,
		configFormat: bridge.FormatOf(flags[configPath]),
		policyPath:   flags[opaPath],
	})
	if err != nil {
		log.Error("initialization failed", "err", err.Error())
		os.Exit(1)
	}

	err = svc.run(ctx, net.JoinHostPort(flags[listenAddress], flags[servicePort]))
	if err != nil {
		log.Error("service failed", "err", err.Error())
		os.Exit(1)
	}
}

type service struct {
	app      *bridge.Application
	handler  http.Handler
	receiver subscriptions.Receiver
	notifier subscriptions.Notifier
}

func initialize(ctx context.Context, flags FlagMap, cfg *AppConfig) (*service, error) {
	defer cfg.brokerConfig.Close()
	defer cfg.opaConfig.Close()

	log := logging.GetFromContext(ctx)

	bridgeConfig, err := bridge.LoadConfigurationAs(cfg.configFormat, cfg.brokerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if flags[brokerURL] != "" {
		bridgeConfig.Broker.Endpoint = flags[brokerURL]
	}
	if flags[brokerTenant] != "" {
		bridgeConfig.Broker.Tenant = flags[brokerTenant]
	}
	if bridgeConfig.Broker.Endpoint == "" {
		return nil, errors.New("no context broker endpoint configured")
	}

	authorizer, err := auth.NewReloadableAuthorizer(ctx, cfg.opaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization policies: %w", err)
	}

	if cfg.policyPath != "" {
		if err := authorizer.Watch(ctx, cfg.policyPath); err != nil {
			log.Warn("policy changes will not be picked up", "err", err.Error())
		}
	}

	conn := newConnection(bridgeConfig)
	svc := &service{}

	options := []bridge.Option{}
	for _, et := range bridgeConfig.Watched() {
		options = append(options, bridge.WithWatch(et.Type, et.Attributes...))
	}

	if bridgeConfig.Notifications.Endpoint != "" {
		svc.notifier, err = subscriptions.NewNotifier(ctx, bridgeConfig.Notifications.Endpoint)
		if err != nil {
			return nil, err
		}
		options = append(options, bridge.WithNotifier(svc.notifier))
	}

	svc.app, err = bridge.CreateStore(ctx, conn, nil, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create the state container: %w", err)
	}

	svc.receiver = subscriptions.NewReceiver(svc.app)

	r := router.New(serviceName)
	api.RegisterHandlers(ctx, r, authorizer, svc.app, svc.receiver)
	svc.handler = r

	log.Info("initialized", "broker", bridgeConfig.Broker.Endpoint, "mode", string(svc.app.Mode()))

	return svc, nil
}

func newConnection(cfg *bridge.Config) *connection.Connection {
	tenant := cfg.Broker.Tenant
	if tenant == "" {
		tenant = "default"
	}

	c := client.NewContextBrokerClient(
		cfg.Broker.Endpoint,
		client.Tenant(tenant),
		client.Debug(strconv.FormatBool(cfg.Broker.Debug)),
	)

	options := []connection.Option{connection.WithTenant(tenant)}
	for _, et := range cfg.EntityTypes {
		options = append(options, connection.WithEntityType(et.Type, et.IDPattern))
	}
	if !cfg.Broker.DiscoveryEnabled() {
		options = append(options, connection.WithoutDiscovery())
	}

	return connection.New(c, options...)
}

func (svc *service) start() error {
	if err := svc.receiver.Start(); err != nil {
		return err
	}
	if svc.notifier != nil {
		return svc.notifier.Start()
	}
	return nil
}

func (svc *service) stop() {
	svc.receiver.Stop()
	if svc.notifier != nil {
		svc.notifier.Stop()
	}
}

func (svc *service) run(ctx context.Context, address string) error {
	log := logging.GetFromContext(ctx)

	if err := svc.start(); err != nil {
		return err
	}
	defer svc.stop()

	server := &http.Server{
		Addr:              address,
		Handler:           svc.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)

	go func() {
		log.Info("starting to listen for connections", "address", address)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
