package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"restream-orchestrator/internal/datastore"
	"restream-orchestrator/internal/mediaserver"
	"restream-orchestrator/internal/platform/logger"
)

type recordedCall struct {
	Method   string
	Endpoint string
	Body     any
}

// fakeClient records every control call and answers through respond, or
// with 200 when respond is nil.
type fakeClient struct {
	mu      sync.Mutex
	calls   []recordedCall
	respond func(ctx context.Context, method, endpoint string, body any) mediaserver.Result
}

func (f *fakeClient) Request(ctx context.Context, endpoint, method string, body any) mediaserver.Result {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: method, Endpoint: endpoint, Body: body})
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		return respond(ctx, method, endpoint, body)
	}
	return okResult(http.StatusOK)
}

func (f *fakeClient) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

// endpoints returns the endpoints hit with method, in call order.
func (f *fakeClient) endpoints(method string) []string {
	var out []string
	for _, c := range f.recorded() {
		if c.Method == method {
			out = append(out, c.Endpoint)
		}
	}
	return out
}

func (f *fakeClient) count(method, prefix string) int {
	n := 0
	for _, c := range f.recorded() {
		if c.Method == method && strings.HasPrefix(c.Endpoint, prefix) {
			n++
		}
	}
	return n
}

func okResult(status int) mediaserver.Result {
	return mediaserver.Result{StatusCode: status, Success: true, Data: map[string]any{}}
}

func failResult(status int, msg string) mediaserver.Result {
	return mediaserver.Result{StatusCode: status, Error: msg}
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	svc     *Service
	gateway *datastore.MemoryGateway
	store   SessionStore
	client  *fakeClient
	clock   *clockwork.FakeClock
}

type envOption func(*Deps)

func withStore(s SessionStore) envOption { return func(d *Deps) { d.Store = s } }

func withLogger(log *slog.Logger) envOption { return func(d *Deps) { d.Logger = log } }

// withDrift makes every counter update fail while reads keep working.
func withDrift() envOption {
	return func(d *Deps) { d.Gateway = driftGateway{d.Gateway.(*datastore.MemoryGateway)} }
}

func newTestEnv(t *testing.T, servers []datastore.MediaServer, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		gateway: datastore.NewMemoryGateway(servers...),
		store:   NewInMemorySessionStore(),
		client:  &fakeClient{},
		clock:   clockwork.NewFakeClockAt(testEpoch),
	}
	deps := Deps{
		Gateway: env.gateway,
		Store:   env.store,
		Clients: func(datastore.MediaServer) (ControlClient, error) { return env.client, nil },
		Clock:   env.clock,
		Logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.store = deps.Store
	env.svc = NewService(deps, Config{FanoutTimeout: time.Second})
	return env
}

func (e *testEnv) active(t *testing.T, id int64) int {
	t.Helper()
	srv, err := e.gateway.ServerByID(context.Background(), id)
	if err != nil {
		t.Fatalf("ServerByID(%d): %v", id, err)
	}
	return srv.Active
}

func server(id int64, active, limit int, load float64) datastore.MediaServer {
	return datastore.MediaServer{
		ID:          id,
		Name:        "edge",
		Host:        "edge.example.net",
		APIPort:     8087,
		Application: "live",
		Limit:       limit,
		Active:      active,
		CPULoad:     load,
		Status:      datastore.ServerActive,
	}
}

func destination(platform, ingest string) DestinationSpec {
	return DestinationSpec{PlatformID: platform, IngestURL: ingest, StreamKey: "key-" + platform}
}

// failingStore wraps a store and fails Put with putErr and Remove with
// removeErr.
type failingStore struct {
	SessionStore
	putErr    error
	removeErr error
}

func (s *failingStore) Remove(ctx context.Context, id SessionID) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	return s.SessionStore.Remove(ctx, id)
}

func (s *failingStore) Put(ctx context.Context, sess *Session) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.SessionStore.Put(ctx, sess)
}

// driftGateway fails every counter update while serving reads.
type driftGateway struct {
	*datastore.MemoryGateway
}

var errCounterDown = errors.New("counter store down")

func (g driftGateway) IncrementActive(context.Context, int64) (int, error) {
	return 0, errCounterDown
}

func (g driftGateway) DecrementActive(context.Context, int64) (int, error) {
	return 0, errCounterDown
}
