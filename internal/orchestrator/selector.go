package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"restream-orchestrator/internal/datastore"
	"restream-orchestrator/internal/mediaserver"
)

// DefaultLoadThreshold is the CPU load above which a server refuses new
// sessions.
const DefaultLoadThreshold = 90.0

// ControlClient is the subset of the media server client the orchestrator
// needs. *mediaserver.Client implements it.
type ControlClient interface {
	Request(ctx context.Context, endpoint, method string, body any) mediaserver.Result
}

// ClientFactory builds an authenticated control client for a server row.
type ClientFactory func(datastore.MediaServer) (ControlClient, error)

// Binding is a selected server together with its control client.
type Binding struct {
	Server datastore.MediaServer
	Client ControlClient
}

// Selector picks the media server that will host a user's session.
type Selector struct {
	gateway   datastore.Gateway
	factory   ClientFactory
	threshold float64
	log       *slog.Logger
}

// NewSelector returns a Selector. A threshold <= 0 means DefaultLoadThreshold.
func NewSelector(gateway datastore.Gateway, factory ClientFactory, threshold float64, log *slog.Logger) *Selector {
	if threshold <= 0 {
		threshold = DefaultLoadThreshold
	}
	if log == nil {
		log = slog.Default()
	}
	return &Selector{gateway: gateway, factory: factory, threshold: threshold, log: log}
}

// Select returns the server for userID: the user's bound server when it
// exists and is active, otherwise the first qualifying server of the active
// pool. A bound server that is full or overloaded is reported, not replaced.
func (s *Selector) Select(ctx context.Context, userID string) (datastore.MediaServer, error) {
	boundID, bound, err := s.gateway.UserServerBinding(ctx, userID)
	if err != nil {
		return datastore.MediaServer{}, fmt.Errorf("%w: lookup binding: %w", ErrNoServerAvailable, err)
	}
	if bound {
		srv, err := s.gateway.ServerByID(ctx, boundID)
		switch {
		case err == nil && srv.Status == datastore.ServerActive:
			if reason := s.admissionReason(srv); reason != nil {
				return srv, reason
			}
			return srv, nil
		case err == nil, errors.Is(err, datastore.ErrServerNotFound):
			s.log.Warn("bound server unusable, falling back to pool",
				slog.String("user_id", userID),
				slog.Int64("server_id", boundID))
		default:
			return datastore.MediaServer{}, fmt.Errorf("%w: load bound server: %w", ErrNoServerAvailable, err)
		}
	}

	servers, err := s.gateway.ActiveServers(ctx)
	if err != nil {
		return datastore.MediaServer{}, fmt.Errorf("%w: list servers: %w", ErrNoServerAvailable, err)
	}
	if len(servers) == 0 {
		return datastore.MediaServer{}, ErrNoServerAvailable
	}
	for _, srv := range servers {
		if s.admissionReason(srv) == nil {
			return srv, nil
		}
	}
	return servers[0], fmt.Errorf("%w: %w", ErrNoServerAvailable, s.admissionReason(servers[0]))
}

// Bind selects a server for userID and builds its control client. A server
// that is only refused for capacity or load is still bound so control calls
// work; Admit decides whether it may take a new session.
func (s *Selector) Bind(ctx context.Context, userID string) (*Binding, error) {
	srv, err := s.Select(ctx, userID)
	if err != nil && !isAdmissionError(err) {
		return nil, err
	}
	client, err := s.factory(srv)
	if err != nil {
		return nil, fmt.Errorf("%w: build client for server %d: %w", ErrNotInitialized, srv.ID, err)
	}
	return &Binding{Server: srv, Client: client}, nil
}

// Admit returns nil when srv can take one more session, otherwise an error
// wrapping ErrServerAtCapacity or ErrServerOverloaded.
func (s *Selector) Admit(srv datastore.MediaServer) error {
	return s.admissionReason(srv)
}

func isAdmissionError(err error) bool {
	return errors.Is(err, ErrServerAtCapacity) || errors.Is(err, ErrServerOverloaded)
}

func (s *Selector) admissionReason(srv datastore.MediaServer) error {
	if srv.Active >= srv.Limit {
		return fmt.Errorf("%w: %d/%d sessions on server %d", ErrServerAtCapacity, srv.Active, srv.Limit, srv.ID)
	}
	if srv.CPULoad > s.threshold {
		return fmt.Errorf("%w: cpu load %.1f above %.1f on server %d", ErrServerOverloaded, srv.CPULoad, s.threshold, srv.ID)
	}
	return nil
}
