// Package mediaserver talks to the REST control API of a managed media
// server (applications and push-publish map entries).
package mediaserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/icholy/digest"
	"golang.org/x/time/rate"
)

// AuthMode selects how requests are authenticated against the control API.
type AuthMode string

const (
	AuthDigest AuthMode = "digest"
	AuthBasic  AuthMode = "basic"
)

const (
	DefaultAPIPort = 8087
	DefaultServer  = "_defaultServer_"
	DefaultVHost   = "_defaultVHost_"
	DefaultTimeout = 10 * time.Second

	defaultRateLimit = 20
	defaultBurst     = 10
)

// Config describes how to reach one media server's control API.
type Config struct {
	Host     string
	Port     int
	Scheme   string
	Username string
	Password string
	Auth     AuthMode

	// Server and VHost name the managed server instance and virtual host
	// segments of the control API path.
	Server string
	VHost  string

	// BaseURL overrides the URL built from Scheme, Host, Port, Server and
	// VHost. Used by tests pointing at httptest servers.
	BaseURL string

	Timeout   time.Duration
	RateLimit rate.Limit
	Burst     int

	// Transport is the innermost round tripper. Defaults to
	// http.DefaultTransport.
	Transport http.RoundTripper
}

func (c Config) withDefaults() Config {
	if c.Port <= 0 {
		c.Port = DefaultAPIPort
	}
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	if c.Server == "" {
		c.Server = DefaultServer
	}
	if c.VHost == "" {
		c.VHost = DefaultVHost
	}
	if c.Auth == "" {
		c.Auth = AuthDigest
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
	if c.Transport == nil {
		c.Transport = http.DefaultTransport
	}
	return c
}

// Result is the outcome of one control API call. Failures of any kind are
// reported here; Request never returns a Go error.
type Result struct {
	StatusCode int    `json:"status_code"`
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Err returns nil for a successful result and an error describing the
// failure otherwise.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	if r.StatusCode == 0 {
		return fmt.Errorf("transport: %s", r.Error)
	}
	if r.Error != "" {
		return fmt.Errorf("status %d: %s", r.StatusCode, r.Error)
	}
	return fmt.Errorf("status %d", r.StatusCode)
}

// Client issues authenticated, rate limited requests to one media server.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New builds a Client for cfg. Host or BaseURL is required.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" && strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("media server host required")
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	var rt http.RoundTripper
	switch cfg.Auth {
	case AuthDigest:
		rt = &digest.Transport{
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: cfg.Transport,
		}
	case AuthBasic:
		rt = &basicAuthTransport{username: cfg.Username, password: cfg.Password, next: cfg.Transport}
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth)
	}

	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("%s://%s:%d/v2/servers/%s/vhosts/%s",
			cfg.Scheme, cfg.Host, cfg.Port, cfg.Server, cfg.VHost)
	}

	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Transport: rt, Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.Burst),
		logger:  logger,
	}, nil
}

// BaseURL returns the vhost-level URL every endpoint is appended to.
func (c *Client) BaseURL() string { return c.baseURL }

// Request sends method to endpoint (relative to the vhost URL) with body
// encoded as JSON when non-nil.
func (c *Client) Request(ctx context.Context, endpoint, method string, body any) Result {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{Error: fmt.Sprintf("rate limit wait: %v", err)}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return Result{Error: fmt.Sprintf("encode request: %v", err)}
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return Result{Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("media server request failed",
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{StatusCode: resp.StatusCode, Error: fmt.Sprintf("read response: %v", err)}
	}

	res := Result{
		StatusCode: resp.StatusCode,
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		Data:       decodeBody(raw),
	}
	if !res.Success {
		res.Error = errorMessage(resp.StatusCode, res.Data)
	}

	c.logger.Debug("media server request",
		slog.String("method", method),
		slog.String("endpoint", endpoint),
		slog.Int("status", resp.StatusCode),
		slog.Int("duration_ms", int(time.Since(start).Milliseconds())))
	return res
}

func decodeBody(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(raw)
	}
	return v
}

func errorMessage(status int, data any) string {
	switch d := data.(type) {
	case map[string]any:
		for _, key := range []string{"message", "error", "reason"} {
			if s, ok := d[key].(string); ok && s != "" {
				return s
			}
		}
	case string:
		if s := strings.TrimSpace(d); s != "" {
			return s
		}
	}
	return http.StatusText(status)
}

type basicAuthTransport struct {
	username, password string
	next               http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.SetBasicAuth(t.username, t.password)
	return t.next.RoundTrip(clone)
}

// ApplicationsPath is the collection of applications on the vhost.
func ApplicationsPath() string { return "/applications" }

// ApplicationPath addresses one application by name. The name is escaped as
// a single path segment.
func ApplicationPath(name string) string { return "/applications/" + url.PathEscape(name) }

// MapEntryPath addresses one push-publish map entry of an application. Both
// identifiers are escaped as single path segments.
func MapEntryPath(application, entryID string) string {
	return ApplicationPath(application) + "/pushpublish/mapentries/" + url.PathEscape(entryID)
}

// ServerPath is the server-level information endpoint, relative to the
// vhost URL.
func ServerPath() string { return "/server" }

// ApplicationConfig is the descriptor posted when creating an application.
type ApplicationConfig struct {
	ID          string `json:"id"`
	AppType     string `json:"appType"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NewLiveApplication returns the fixed descriptor for a live application.
func NewLiveApplication(name string) ApplicationConfig {
	return ApplicationConfig{
		ID:          name,
		AppType:     "Live",
		Name:        name,
		Description: "Live streaming app created via API",
	}
}

// MapEntry is a push-publish forwarding rule.
type MapEntry struct {
	ID                    string `json:"id"`
	SourceStreamName      string `json:"sourceStreamName"`
	EntryName             string `json:"entryName"`
	Profile               string `json:"profile"`
	OutputHostName        string `json:"outputHostName"`
	Port                  string `json:"port,omitempty"`
	OutputApplicationName string `json:"outputApplicationName"`
	OutputStreamName      string `json:"outputStreamName"`
	UserName              string `json:"userName"`
	Password              string `json:"password"`
	Enabled               bool   `json:"enabled"`
}

// Factory builds clients for servers of the pool, inheriting transport level
// settings from a shared template.
type Factory struct {
	template Config
	logger   *slog.Logger
}

// NewFactory returns a Factory whose clients use template for every field
// the per-server call leaves empty.
func NewFactory(template Config, logger *slog.Logger) *Factory {
	return &Factory{template: template, logger: logger}
}

// Client builds a client for host:port authenticated as user.
func (f *Factory) Client(host string, port int, user, password string) (*Client, error) {
	cfg := f.template
	cfg.Host = host
	if port > 0 {
		cfg.Port = port
	}
	if user != "" {
		cfg.Username = user
	}
	cfg.Password = password
	log := f.logger
	if log != nil {
		log = log.With(slog.String("media_server", host+":"+strconv.Itoa(cfg.withDefaults().Port)))
	}
	return New(cfg, log)
}
