package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/consul/api"
)

// Registration describes a service instance announced to Consul.
type Registration struct {
	Name string
	Host string
	// HTTPAddr is the address the HTTP API listens on, e.g. ":8080".
	HTTPAddr string
	// GRPCHealthAddr is the address of the gRPC health endpoint Consul probes.
	GRPCHealthAddr      string
	HealthCheckInterval time.Duration
}

// ConsulRegistry registers service instances with a Consul agent.
type ConsulRegistry struct {
	client *api.Client
}

// NewConsulRegistry creates a registry talking to the Consul agent at addr.
func NewConsulRegistry(addr string) (*ConsulRegistry, error) {
	cfg := api.DefaultConfig()
	cfg.Address = addr

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &ConsulRegistry{client: client}, nil
}

// Register announces the instance and returns the id to deregister it with.
func (r *ConsulRegistry) Register(reg Registration) (string, error) {
	serviceReg, err := buildServiceRegistration(reg, reg.Name+"-"+uuid.NewString())
	if err != nil {
		return "", err
	}

	if err := r.client.Agent().ServiceRegister(serviceReg); err != nil {
		return "", fmt.Errorf("failed to register %s with consul: %w", reg.Name, err)
	}

	return serviceReg.ID, nil
}

// Deregister removes the instance registered under serviceID.
func (r *ConsulRegistry) Deregister(serviceID string) error {
	return r.client.Agent().ServiceDeregister(serviceID)
}

func buildServiceRegistration(reg Registration, serviceID string) (*api.AgentServiceRegistration, error) {
	port, err := portOf(reg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid http address %q: %w", reg.HTTPAddr, err)
	}

	healthPort, err := portOf(reg.GRPCHealthAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid grpc health address %q: %w", reg.GRPCHealthAddr, err)
	}

	interval := reg.HealthCheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    reg.Name,
		Address: reg.Host,
		Port:    port,
		Tags:    []string{"http"},
		Check: &api.AgentServiceCheck{
			GRPC:                           net.JoinHostPort(reg.Host, strconv.Itoa(healthPort)),
			Interval:                       interval.String(),
			Timeout:                        (interval / 2).String(),
			DeregisterCriticalServiceAfter: (6 * interval).String(),
		},
	}, nil
}

func portOf(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, err
	}

	return port, nil
}
