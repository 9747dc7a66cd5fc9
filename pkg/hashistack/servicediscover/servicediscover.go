package servicediscover

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"pagewatch/pkg/config"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module registers the HTTP API with the local consul agent for the lifetime
// of the process. Include it only when CONSUL.ADDR is set.
var Module = fx.Module("servicediscover",
	fx.Provide(NewConsulRegistry),
	fx.Invoke(register),
)

type ServiceRegistry interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

type agent interface {
	ServiceRegister(service *api.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

type ConsulRegistry struct {
	agent     agent
	serviceID string
	service   *api.AgentServiceRegistration
}

func NewConsulRegistry(cfg *config.Config) (ServiceRegistry, error) {
	conf := api.DefaultConfig()
	conf.Address = cfg.Consul.Addr

	client, err := api.NewClient(conf)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}

	service, err := Registration(cfg)
	if err != nil {
		return nil, err
	}
	return &ConsulRegistry{
		agent:     client.Agent(),
		serviceID: service.ID,
		service:   service,
	}, nil
}

// Registration describes this node; the check polls the readiness route.
func Registration(cfg *config.Config) (*api.AgentServiceRegistration, error) {
	_, portStr, err := net.SplitHostPort(cfg.Server.Addr)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_SERVER.ADDR %q: %w", cfg.Server.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_SERVER.ADDR port %q: %w", portStr, err)
	}

	host := cfg.Consul.ServiceHost
	scheme := "http"
	if cfg.TLS.Enable {
		scheme = "https"
	}

	return &api.AgentServiceRegistration{
		ID:      fmt.Sprintf("%s-%d", cfg.AppName, cfg.NodeID),
		Name:    cfg.AppName,
		Address: host,
		Port:    port,
		Tags:    []string{cfg.AppEnv},
		Check: &api.AgentServiceCheck{
			HTTP:          fmt.Sprintf("%s://%s/readyz", scheme, net.JoinHostPort(host, portStr)),
			Interval:      cfg.Consul.CheckInterval,
			Timeout:       "5s",
			TLSSkipVerify: cfg.TLS.Enable,
		},
	}, nil
}

func (r *ConsulRegistry) Register(ctx context.Context) error {
	return r.agent.ServiceRegister(r.service)
}

func (r *ConsulRegistry) Deregister(ctx context.Context) error {
	return r.agent.ServiceDeregister(r.serviceID)
}

func register(lc fx.Lifecycle, registry ServiceRegistry) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := registry.Register(ctx); err != nil {
				zap.L().Error("[Consul] failed to register service", zap.Error(err))
				return err
			}
			zap.L().Info("[Consul] service registered")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return registry.Deregister(ctx)
		},
	})
}
