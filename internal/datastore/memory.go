package datastore

import (
	"context"
	"sort"
	"sync"
)

// MemoryGateway is a concurrency-safe in-memory Gateway used for local runs
// and tests.
type MemoryGateway struct {
	mu       sync.RWMutex
	servers  map[int64]*MediaServer
	bindings map[string]int64
}

// NewMemoryGateway returns a gateway seeded with the given servers.
func NewMemoryGateway(servers ...MediaServer) *MemoryGateway {
	g := &MemoryGateway{
		servers:  make(map[int64]*MediaServer, len(servers)),
		bindings: make(map[string]int64),
	}
	for _, s := range servers {
		g.PutServer(s)
	}
	return g
}

// PutServer inserts or replaces a server row.
func (g *MemoryGateway) PutServer(s MediaServer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := s
	g.servers[s.ID] = &cp
}

// BindUser allocates serverID to userID.
func (g *MemoryGateway) BindUser(userID string, serverID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bindings[userID] = serverID
}

// ActiveServers implements Gateway.ActiveServers.
func (g *MemoryGateway) ActiveServers(ctx context.Context) ([]MediaServer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]MediaServer, 0, len(g.servers))
	for _, s := range g.servers {
		if s.Status == ServerActive {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Active != out[j].Active {
			return out[i].Active < out[j].Active
		}
		if out[i].CPULoad != out[j].CPULoad {
			return out[i].CPULoad < out[j].CPULoad
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ServerByID implements Gateway.ServerByID.
func (g *MemoryGateway) ServerByID(ctx context.Context, id int64) (MediaServer, error) {
	if err := ctx.Err(); err != nil {
		return MediaServer{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	s, ok := g.servers[id]
	if !ok {
		return MediaServer{}, ErrServerNotFound
	}
	return *s, nil
}

// UserServerBinding implements Gateway.UserServerBinding.
func (g *MemoryGateway) UserServerBinding(ctx context.Context, userID string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.bindings[userID]
	return id, ok, nil
}

// IncrementActive implements Gateway.IncrementActive.
func (g *MemoryGateway) IncrementActive(ctx context.Context, id int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.servers[id]
	if !ok {
		return 0, ErrServerNotFound
	}
	if s.Active >= s.Limit {
		return s.Active, ErrCapacityExceeded
	}
	s.Active++
	return s.Active, nil
}

// DecrementActive implements Gateway.DecrementActive.
func (g *MemoryGateway) DecrementActive(ctx context.Context, id int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.servers[id]
	if !ok {
		return 0, ErrServerNotFound
	}
	if s.Active > 0 {
		s.Active--
	}
	return s.Active, nil
}
