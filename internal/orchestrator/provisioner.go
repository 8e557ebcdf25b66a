package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"restream-orchestrator/internal/mediaserver"
)

// ProvisionResult reports whether an application namespace is ready.
type ProvisionResult struct {
	Success bool   `json:"success"`
	Exists  bool   `json:"exists"`
	Created bool   `json:"created"`
	Error   string `json:"error,omitempty"`
}

// Provisioner makes sure the application namespace exists on a server.
type Provisioner struct {
	log *slog.Logger
}

// NewProvisioner returns a Provisioner logging through log.
func NewProvisioner(log *slog.Logger) *Provisioner {
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{log: log}
}

// EnsureApplication looks name up and creates it when missing. A
// conflict on create means another caller created it first, which counts as
// success.
func (p *Provisioner) EnsureApplication(ctx context.Context, client ControlClient, name string) ProvisionResult {
	path := mediaserver.ApplicationPath(name)

	existing := client.Request(ctx, path, http.MethodGet, nil)
	if existing.Success {
		return ProvisionResult{Success: true, Exists: true}
	}

	created := client.Request(ctx, path, http.MethodPost, mediaserver.NewLiveApplication(name))
	switch {
	case created.Success:
		p.log.Info("application created", slog.String("application", name))
		return ProvisionResult{Success: true, Created: true}
	case created.StatusCode == http.StatusConflict:
		return ProvisionResult{Success: true, Exists: true}
	default:
		return ProvisionResult{Error: fmt.Sprintf("create application %s: %v", name, created.Err())}
	}
}
