package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"restream-orchestrator/internal/mediaserver"
)

const (
	DefaultFanoutTimeout     = 5 * time.Second
	DefaultFanoutConcurrency = 4
)

// PushPublishEntryID is the id of the forwarding rule for one platform of a
// stream. Teardown must rebuild exactly the same id.
func PushPublishEntryID(streamName, platformID string) string {
	return streamName + "_" + platformID
}

// Configurator creates and removes push-publish entries for a stream.
// Destinations are handled independently and concurrently.
type Configurator struct {
	timeout     time.Duration
	concurrency int
	log         *slog.Logger
}

// NewConfigurator returns a Configurator. Zero values fall back to
// DefaultFanoutTimeout and DefaultFanoutConcurrency.
func NewConfigurator(timeout time.Duration, concurrency int, log *slog.Logger) *Configurator {
	if timeout <= 0 {
		timeout = DefaultFanoutTimeout
	}
	if concurrency <= 0 {
		concurrency = DefaultFanoutConcurrency
	}
	if log == nil {
		log = slog.Default()
	}
	return &Configurator{timeout: timeout, concurrency: concurrency, log: log}
}

// Configure upserts one forwarding rule per destination and returns the
// destinations, in input order, with their outcome recorded.
func (c *Configurator) Configure(ctx context.Context, client ControlClient, application, streamName string, specs []DestinationSpec) []Destination {
	out := make([]Destination, len(specs))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, spec := range specs {
		g.Go(func() error {
			out[i] = c.configureOne(ctx, client, application, streamName, spec)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Configurator) configureOne(ctx context.Context, client ControlClient, application, streamName string, spec DestinationSpec) Destination {
	dest := Destination{
		PlatformID: spec.PlatformID,
		IngestURL:  spec.IngestURL,
		StreamKey:  spec.StreamKey,
		Status:     DestinationPending,
	}
	if dest.IngestURL == "" {
		dest.IngestURL = spec.DefaultIngestURL
	}
	if err := checkIdentifier("platform id", spec.PlatformID); err != nil {
		return c.fail(dest, fmt.Errorf("%w: %w", ErrDestinationConfig, err))
	}
	dest.EntryID = PushPublishEntryID(streamName, spec.PlatformID)

	target := ParseIngestURL(dest.IngestURL)
	if !target.Usable() {
		return c.fail(dest, fmt.Errorf("%w: %s", ErrDestinationConfig, target.Reason))
	}
	if target.Kind == IngestFallback {
		c.log.Debug("ingest url parsed with fallback",
			slog.String("platform_id", spec.PlatformID),
			slog.String("reason", target.Reason))
	}
	dest.OutputHost = target.Host
	dest.OutputApplication = target.Application

	entry := mediaserver.MapEntry{
		ID:                    dest.EntryID,
		SourceStreamName:      streamName,
		EntryName:             dest.EntryID,
		Profile:               "rtmp",
		OutputHostName:        target.Host,
		Port:                  target.Port,
		OutputApplicationName: target.Application,
		OutputStreamName:      spec.StreamKey,
		Enabled:               true,
	}

	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	dest.Provisioned = true
	res := client.Request(dctx, mediaserver.MapEntryPath(application, dest.EntryID), http.MethodPut, entry)
	if !res.Success {
		return c.fail(dest, fmt.Errorf("%w: %w", ErrDestinationConfig, res.Err()))
	}
	dest.Status = DestinationConnected
	return dest
}

func (c *Configurator) fail(dest Destination, err error) Destination {
	dest.Status = DestinationFailed
	dest.Error = err.Error()
	c.log.Warn("destination configuration failed",
		slog.String("platform_id", dest.PlatformID),
		slog.String("entry_id", dest.EntryID),
		slog.String("error", dest.Error))
	return dest
}

// Teardown deletes each entry of application. The returned slice is aligned
// with entryIDs; a nil element means the entry is gone. A 404 counts as
// already removed.
func (c *Configurator) Teardown(ctx context.Context, client ControlClient, application string, entryIDs []string) []error {
	errs := make([]error, len(entryIDs))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, id := range entryIDs {
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			res := client.Request(dctx, mediaserver.MapEntryPath(application, id), http.MethodDelete, nil)
			if res.Success || res.StatusCode == http.StatusNotFound {
				return nil
			}
			errs[i] = fmt.Errorf("remove entry %s: %w", id, res.Err())
			c.log.Warn("push-publish teardown failed",
				slog.String("entry_id", id),
				slog.String("error", errs[i].Error()))
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Result converts d into the caller-facing fan-out outcome.
func (d Destination) Result() DestinationResult {
	return DestinationResult{
		PlatformID: d.PlatformID,
		EntryID:    d.EntryID,
		Success:    d.Status == DestinationConnected,
		Error:      d.Error,
	}
}

// Results converts a fan-out outcome to caller-facing results.
func Results(dests []Destination) []DestinationResult {
	out := make([]DestinationResult, len(dests))
	for i, d := range dests {
		out[i] = d.Result()
	}
	return out
}
