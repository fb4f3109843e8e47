package catalog

import (
	"context"
	"fmt"
	"math/rand/v2"

	consulapi "github.com/hashicorp/consul/api"
)

// ConsulResolver finds a healthy catalog instance through Consul on every
// call, so instances can come and go without a restart.
type ConsulResolver struct {
	client  *consulapi.Client
	service string
}

func NewConsulResolver(addr, service string) (*ConsulResolver, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &ConsulResolver{client: client, service: service}, nil
}

func (r *ConsulResolver) Resolve(ctx context.Context) (string, error) {
	q := (&consulapi.QueryOptions{}).WithContext(ctx)
	entries, _, err := r.client.Health().Service(r.service, "", true, q)
	if err != nil {
		return "", fmt.Errorf("%w: consul: %v", ErrUnavailable, err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: no healthy %s instances", ErrUnavailable, r.service)
	}
	e := entries[rand.IntN(len(entries))]
	host := e.Service.Address
	if host == "" {
		host = e.Node.Address
	}
	return fmt.Sprintf("http://%s:%d", host, e.Service.Port), nil
}
