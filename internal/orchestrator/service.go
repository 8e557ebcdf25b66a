package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"

	"restream-orchestrator/internal/datastore"
	"restream-orchestrator/internal/mediaserver"
	"restream-orchestrator/internal/platform/logger"
	"restream-orchestrator/internal/platform/metrics"
)

// DefaultApplication is the application namespace used when a server row
// does not name one.
const DefaultApplication = "live"

// DefaultBindingCacheSize bounds how many user bindings are kept in memory.
const DefaultBindingCacheSize = 10000

// Config tunes the Service. Zero values select the package defaults.
type Config struct {
	Application       string
	StreamingPort     int
	LoadThreshold     float64
	FanoutTimeout     time.Duration
	FanoutConcurrency int

	// BindingCacheSize caps remembered user bindings. The least recently
	// used binding is evicted; its user is re-bound by the next start or
	// initialize call.
	BindingCacheSize int
}

// Deps are the collaborators of the Service. Gateway, Store and Clients are
// required.
type Deps struct {
	Gateway   datastore.Gateway
	Store     SessionStore
	Clients   ClientFactory
	Telemetry Telemetry
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Service drives the session lifecycle: server selection, application
// provisioning, push-publish fan-out, capacity accounting and the registry.
type Service struct {
	gateway     datastore.Gateway
	store       SessionStore
	selector    *Selector
	provisioner *Provisioner
	fanout      *Configurator
	probe       *Probe
	clock       clockwork.Clock
	log         *slog.Logger
	metrics     *metrics.Metrics
	cfg         Config
	locks       *sessionLocks

	mu        sync.Mutex
	clients   map[int64]ControlClient
	bindings  *lru.Cache[string, *Binding]
	lastStamp int64
}

// NewService wires a Service from deps and cfg.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.Application == "" {
		cfg.Application = DefaultApplication
	}
	if cfg.StreamingPort <= 0 {
		cfg.StreamingPort = DefaultStreamingPort
	}
	if cfg.LoadThreshold <= 0 {
		cfg.LoadThreshold = DefaultLoadThreshold
	}
	if cfg.BindingCacheSize <= 0 {
		cfg.BindingCacheSize = DefaultBindingCacheSize
	}
	// lru.New only fails for a non-positive size.
	bindings, _ := lru.New[string, *Binding](cfg.BindingCacheSize)
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	log := logger.WithComponent(deps.Logger, "orchestrator")

	s := &Service{
		gateway:     deps.Gateway,
		store:       deps.Store,
		provisioner: NewProvisioner(log),
		fanout:      NewConfigurator(cfg.FanoutTimeout, cfg.FanoutConcurrency, logger.WithComponent(deps.Logger, "fanout")),
		probe:       NewProbe(deps.Clock, deps.Telemetry),
		clock:       deps.Clock,
		log:         log,
		metrics:     deps.Metrics,
		cfg:         cfg,
		locks:       newSessionLocks(),
		clients:     make(map[int64]ControlClient),
		bindings:    bindings,
	}
	s.selector = NewSelector(deps.Gateway, s.cachedClient(deps.Clients), cfg.LoadThreshold, logger.WithComponent(deps.Logger, "selector"))
	return s
}

// cachedClient reuses one control client per server id.
func (s *Service) cachedClient(factory ClientFactory) ClientFactory {
	return func(srv datastore.MediaServer) (ControlClient, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.clients[srv.ID]; ok {
			return c, nil
		}
		c, err := factory(srv)
		if err != nil {
			return nil, err
		}
		s.clients[srv.ID] = c
		return c, nil
	}
}

// InitializeForUser selects and binds a media server for userID. It reports
// whether a server was bound.
func (s *Service) InitializeForUser(ctx context.Context, userID string) bool {
	b, err := s.selector.Bind(ctx, userID)
	if err != nil {
		s.log.Warn("initialize failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		return false
	}
	s.rememberBinding(userID, b)
	s.log.Info("media server bound",
		slog.String("user_id", userID),
		slog.Int64("server_id", b.Server.ID),
		slog.String("host", b.Server.Host))
	return true
}

func (s *Service) rememberBinding(userID string, b *Binding) {
	s.bindings.Add(userID, b)
}

func (s *Service) binding(userID string) (*Binding, error) {
	b, ok := s.bindings.Get(userID)
	if !ok {
		return nil, ErrNotInitialized
	}
	return b, nil
}

// Start runs the start sequence for spec. Capacity, load and provisioning
// failures abort before any counter mutation.
func (s *Service) Start(ctx context.Context, spec StartSpec) (*StartResult, error) {
	if err := checkIdentifier("user id", spec.UserID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if spec.SessionID == "" {
		spec.SessionID = SessionID(uuid.NewString())
	}
	unlock := s.locks.Lock(spec.SessionID)
	defer unlock()

	if _, exists, err := s.store.Get(ctx, spec.SessionID); err != nil {
		return nil, wrapRegistry(err)
	} else if exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionAlreadyActive, spec.SessionID)
	}

	b, err := s.selector.Bind(ctx, spec.UserID)
	if err != nil {
		return nil, err
	}
	s.rememberBinding(spec.UserID, b)
	srv := b.Server

	if err := s.selector.Admit(srv); err != nil {
		return nil, err
	}

	app := srv.Application
	if app == "" {
		app = s.cfg.Application
	}
	sess := &Session{
		ID:          spec.SessionID,
		UserID:      spec.UserID,
		Source:      spec.Source,
		ServerID:    srv.ID,
		ServerHost:  srv.Host,
		Application: app,
		Status:      StatusStarting,
	}

	prov := s.provisioner.EnsureApplication(ctx, b.Client, app)
	if !prov.Success {
		if err := sess.transition(StatusFailed); err != nil {
			return nil, err
		}
		s.log.Error("application provisioning failed",
			slog.String("session_id", string(sess.ID)),
			slog.String("status", string(sess.Status)),
			slog.Int64("server_id", srv.ID),
			slog.String("application", app),
			slog.String("error", prov.Error))
		return nil, fmt.Errorf("%w: %s", ErrProvisioningFailed, prov.Error)
	}

	sess.StreamName = s.nextStreamName(spec.UserID)
	sess.Destinations = s.fanout.Configure(ctx, b.Client, app, sess.StreamName, spec.Destinations)
	if s.metrics != nil {
		for _, d := range sess.Destinations {
			s.metrics.ObserveDestination(string(d.Status))
		}
	}

	if _, err := s.gateway.IncrementActive(ctx, srv.ID); err != nil {
		s.drift("increment", sess, err)
	} else {
		sess.Counted = true
	}

	sess.Endpoints = BuildEndpoints(srv.Host, s.cfg.StreamingPort, app, sess.StreamName)
	sess.StartedAt = s.clock.Now()
	if err := sess.transition(StatusActive); err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, sess); err != nil {
		s.rollback(ctx, b.Client, sess)
		return nil, wrapRegistry(err)
	}

	if s.metrics != nil {
		s.metrics.IncSessionsStarted()
	}
	s.log.Info("session started",
		slog.String("session_id", string(sess.ID)),
		slog.String("user_id", sess.UserID),
		slog.String("stream_name", sess.StreamName),
		slog.Int64("server_id", srv.ID),
		slog.Int("destinations", len(sess.Destinations)))

	return &StartResult{
		SessionID:    sess.ID,
		StreamName:   sess.StreamName,
		ServerID:     srv.ID,
		Server:       summarize(srv),
		Endpoints:    sess.Endpoints,
		Destinations: Results(sess.Destinations),
	}, nil
}

// rollback undoes the side effects of a start whose registry write failed.
func (s *Service) rollback(ctx context.Context, client ControlClient, sess *Session) {
	ctx = context.WithoutCancel(ctx)
	s.fanout.Teardown(ctx, client, sess.Application, sess.ProvisionedEntryIDs())
	if sess.Counted {
		if _, err := s.gateway.DecrementActive(ctx, sess.ServerID); err != nil {
			s.drift("decrement", sess, err)
		}
	}
	s.log.Error("session registration failed, start rolled back",
		slog.String("session_id", string(sess.ID)))
}

func (s *Service) drift(op string, sess *Session, err error) {
	err = fmt.Errorf("%w: %s server %d: %w", ErrAccountingDrift, op, sess.ServerID, err)
	s.log.Warn("active session counter not updated",
		slog.String("session_id", string(sess.ID)),
		slog.String("op", op),
		slog.String("error", err.Error()))
	if s.metrics != nil {
		s.metrics.IncAccountingDrift(op)
	}
}

// nextStreamName returns stream_{user}_{millis}, bumping the stamp so two
// names generated in the same millisecond never collide.
func (s *Service) nextStreamName(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp := s.clock.Now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	return fmt.Sprintf("stream_%s_%d", userID, stamp)
}

// Stop tears a session down. It reports false when the session was not
// running. Teardown and counter failures are logged, not returned.
func (s *Service) Stop(ctx context.Context, id SessionID) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return false, wrapRegistry(err)
	}
	if !ok {
		return false, nil
	}
	if err := sess.transition(StatusStopping); err != nil {
		return false, err
	}

	ctx = context.WithoutCancel(ctx)
	s.teardown(ctx, sess)

	// The record leaves the registry before the counter moves, so a stop
	// retried after a failed Remove still decrements exactly once.
	if err := s.store.Remove(ctx, id); err != nil {
		s.log.Error("session not removed from registry",
			slog.String("session_id", string(id)),
			slog.String("error", err.Error()))
		return false, wrapRegistry(err)
	}

	if sess.Counted {
		if _, err := s.gateway.DecrementActive(ctx, sess.ServerID); err != nil {
			s.drift("decrement", sess, err)
		}
	}
	_ = sess.transition(StatusStopped)

	if s.metrics != nil {
		s.metrics.IncSessionsStopped()
	}
	s.log.Info("session stopped",
		slog.String("session_id", string(id)),
		slog.String("status", string(sess.Status)),
		slog.String("stream_name", sess.StreamName),
		slog.String("uptime", FormatUptime(s.clock.Since(sess.StartedAt))))
	return true, nil
}

func (s *Service) teardown(ctx context.Context, sess *Session) {
	ids := sess.ProvisionedEntryIDs()
	if len(ids) == 0 {
		return
	}
	client, err := s.clientForServer(ctx, sess.ServerID)
	if err != nil {
		s.log.Warn("push-publish entries left on server",
			slog.String("session_id", string(sess.ID)),
			slog.Int64("server_id", sess.ServerID),
			slog.Int("entries", len(ids)),
			slog.String("error", err.Error()))
		if s.metrics != nil {
			s.metrics.IncTeardownFailures(len(ids))
		}
		return
	}

	errs := s.fanout.Teardown(ctx, client, sess.Application, ids)
	byID := make(map[string]error, len(ids))
	failed := 0
	for i, id := range ids {
		byID[id] = errs[i]
		if errs[i] != nil {
			failed++
		}
	}
	for i := range sess.Destinations {
		d := &sess.Destinations[i]
		err, ok := byID[d.EntryID]
		if !ok || !d.Provisioned {
			continue
		}
		if err != nil {
			d.Status = DestinationFailed
			d.Error = err.Error()
			continue
		}
		d.Status = DestinationRemoved
	}
	if failed > 0 && s.metrics != nil {
		s.metrics.IncTeardownFailures(failed)
	}
}

func (s *Service) clientForServer(ctx context.Context, serverID int64) (ControlClient, error) {
	s.mu.Lock()
	c, ok := s.clients[serverID]
	s.mu.Unlock()
	if ok {
		return c, nil
	}
	srv, err := s.gateway.ServerByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return s.selector.factory(srv)
}

// StartResponse is the boundary result of StartSession.
type StartResponse struct {
	Success bool         `json:"success"`
	Data    *StartResult `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
	Code    string       `json:"code,omitempty"`
}

// StartSession is Start reported as a result value.
func (s *Service) StartSession(ctx context.Context, spec StartSpec) StartResponse {
	res, err := s.Start(ctx, spec)
	if err != nil {
		code := ErrorCode(err)
		if s.metrics != nil {
			s.metrics.IncStartFailure(code)
		}
		s.log.Warn("session start rejected",
			slog.String("user_id", spec.UserID),
			slog.String("code", code),
			slog.String("error", err.Error()))
		return StartResponse{Error: err.Error(), Code: code}
	}
	return StartResponse{Success: true, Data: res}
}

// StopResponse is the boundary result of StopSession.
type StopResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StopSession is Stop reported as a result value. Stopping an unknown
// session succeeds.
func (s *Service) StopSession(ctx context.Context, id SessionID) StopResponse {
	stopped, err := s.Stop(ctx, id)
	switch {
	case err != nil:
		return StopResponse{Error: err.Error()}
	case !stopped:
		return StopResponse{Success: true, Message: "session was not active"}
	default:
		return StopResponse{Success: true, Message: "session stopped"}
	}
}

// GetStats returns the statistics of a session; unknown sessions report
// inactive zero values.
func (s *Service) GetStats(ctx context.Context, id SessionID) Stats {
	sess, ok, err := s.store.Get(ctx, id)
	if err != nil {
		s.log.Warn("stats lookup failed", slog.String("session_id", string(id)), slog.String("error", err.Error()))
		return InactiveStats()
	}
	if !ok {
		return InactiveStats()
	}
	return s.probe.Stats(ctx, sess)
}

// ConnectivityResponse is the result of TestConnectivity.
type ConnectivityResponse struct {
	Success   bool   `json:"success"`
	Connected bool   `json:"connected"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

// TestConnectivity checks that the server bound to userID answers its
// control API.
func (s *Service) TestConnectivity(ctx context.Context, userID string) ConnectivityResponse {
	b, err := s.binding(userID)
	if err != nil {
		return ConnectivityResponse{Error: err.Error(), Code: ErrorCode(err)}
	}
	res := b.Client.Request(ctx, mediaserver.ApplicationsPath(), http.MethodGet, nil)
	if !res.Success {
		err := fmt.Errorf("%w: %w", ErrTransportFailure, res.Err())
		return ConnectivityResponse{Error: err.Error(), Code: ErrorCode(err)}
	}
	return ConnectivityResponse{Success: true, Connected: true, Data: res.Data}
}

// ListApplications returns the applications of the server bound to userID.
func (s *Service) ListApplications(ctx context.Context, userID string) mediaserver.Result {
	return s.passThrough(ctx, userID, mediaserver.ApplicationsPath())
}

// ServerInfo returns the server-level information of the server bound to
// userID.
func (s *Service) ServerInfo(ctx context.Context, userID string) mediaserver.Result {
	return s.passThrough(ctx, userID, mediaserver.ServerPath())
}

func (s *Service) passThrough(ctx context.Context, userID, endpoint string) mediaserver.Result {
	b, err := s.binding(userID)
	if err != nil {
		return mediaserver.Result{Error: err.Error()}
	}
	return b.Client.Request(ctx, endpoint, http.MethodGet, nil)
}

// Rehydrate loads active sessions into the registry, for instance after a
// restart with a volatile store. Sessions already present are left alone.
func (s *Service) Rehydrate(ctx context.Context, sessions []*Session) (int, error) {
	n := 0
	for _, sess := range sessions {
		if sess == nil || sess.Status != StatusActive {
			continue
		}
		unlock := s.locks.Lock(sess.ID)
		_, exists, err := s.store.Get(ctx, sess.ID)
		if err == nil && !exists {
			err = s.store.Put(ctx, sess)
			if err == nil {
				n++
			}
		}
		unlock()
		if err != nil {
			return n, wrapRegistry(err)
		}
	}
	if n > 0 {
		s.log.Info("sessions rehydrated", slog.Int("count", n))
	}
	return n, nil
}

// Sessions lists the registry.
func (s *Service) Sessions(ctx context.Context) ([]*Session, error) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return nil, wrapRegistry(err)
	}
	return sessions, nil
}

// ActiveSessionCount returns the registry size, or 0 when it cannot be read.
func (s *Service) ActiveSessionCount(ctx context.Context) int {
	sessions, err := s.store.List(ctx)
	if err != nil {
		s.log.Warn("list sessions failed", slog.String("error", err.Error()))
		return 0
	}
	return len(sessions)
}

func wrapRegistry(err error) error {
	if errors.Is(err, ErrRegistryUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
}
