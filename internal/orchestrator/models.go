package orchestrator

import (
	"time"

	"restream-orchestrator/internal/datastore"
)

// SessionID uniquely identifies a broadcast session.
type SessionID string

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusStarting SessionStatus = "starting"
	StatusActive   SessionStatus = "active"
	StatusStopping SessionStatus = "stopping"
	StatusStopped  SessionStatus = "stopped"
	StatusFailed   SessionStatus = "failed"
)

// DestinationStatus tracks one push-publish target.
type DestinationStatus string

const (
	DestinationPending   DestinationStatus = "pending"
	DestinationConnected DestinationStatus = "connected"
	DestinationFailed    DestinationStatus = "failed"
	DestinationRemoved   DestinationStatus = "removed"
)

// SourceKind tells whether a session streams a playlist or a live input.
type SourceKind string

const (
	SourcePlaylist SourceKind = "playlist"
	SourceLive     SourceKind = "live"
)

// Video is one entry of a playlist source.
type Video struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}

// Source is what the session ingests.
type Source struct {
	Kind       SourceKind `json:"kind"`
	PlaylistID string     `json:"playlist_id,omitempty"`
	Videos     []Video    `json:"videos,omitempty"`
}

// Destination is one platform the session is forwarded to.
type Destination struct {
	PlatformID        string            `json:"platform_id"`
	IngestURL         string            `json:"ingest_url"`
	StreamKey         string            `json:"-"`
	OutputHost        string            `json:"output_host,omitempty"`
	OutputApplication string            `json:"output_application,omitempty"`
	EntryID           string            `json:"entry_id"`
	Status            DestinationStatus `json:"status"`
	Error             string            `json:"error,omitempty"`

	// Provisioned is set once a create-or-replace was issued for EntryID,
	// whatever its outcome. Teardown targets provisioned entries only.
	Provisioned bool `json:"provisioned"`
}

// Endpoints are the ingest and playback URLs synthesized for a session.
type Endpoints struct {
	RTMPURL   string `json:"rtmp_url"`
	StreamKey string `json:"stream_key"`
	HLSURL    string `json:"hls_url"`
	DASHURL   string `json:"dash_url"`
	PlayURL   string `json:"play_url"`
}

// Session is the registry record of a broadcast.
type Session struct {
	ID                SessionID     `json:"id"`
	UserID            string        `json:"user_id"`
	Source            Source        `json:"source"`
	ServerID          int64         `json:"server_id"`
	ServerHost        string        `json:"server_host"`
	Application       string        `json:"application"`
	StreamName        string        `json:"stream_name"`
	Status            SessionStatus `json:"status"`
	Destinations      []Destination `json:"destinations"`
	Endpoints         Endpoints     `json:"endpoints"`
	StartedAt         time.Time     `json:"started_at"`
	CurrentVideoIndex int           `json:"current_video_index"`

	// Counted records whether the server's active counter was incremented
	// for this session, so Stop only decrements what Start added.
	Counted bool `json:"counted"`
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Destinations = append([]Destination(nil), s.Destinations...)
	cp.Source.Videos = append([]Video(nil), s.Source.Videos...)
	return &cp
}

// ProvisionedEntryIDs returns the entry ids that were issued to the media
// server, in destination order.
func (s *Session) ProvisionedEntryIDs() []string {
	ids := make([]string, 0, len(s.Destinations))
	for _, d := range s.Destinations {
		if d.Provisioned && d.EntryID != "" {
			ids = append(ids, d.EntryID)
		}
	}
	return ids
}

// DestinationSpec is the caller's description of one destination.
type DestinationSpec struct {
	PlatformID string `json:"platform_id"`
	IngestURL  string `json:"ingest_url"`
	// DefaultIngestURL is the platform's base URL, used when IngestURL is
	// empty.
	DefaultIngestURL string `json:"default_ingest_url,omitempty"`
	StreamKey        string `json:"stream_key"`
}

// StartSpec describes a session start request. SessionID is generated when
// empty.
type StartSpec struct {
	SessionID    SessionID         `json:"session_id,omitempty"`
	UserID       string            `json:"user_id"`
	Source       Source            `json:"source"`
	Destinations []DestinationSpec `json:"destinations"`
}

// DestinationResult is the per-destination outcome of a fan-out.
type DestinationResult struct {
	PlatformID string `json:"platform_id"`
	EntryID    string `json:"entry_id,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// ServerSummary is the part of a server row reported to callers.
type ServerSummary struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Host    string  `json:"host"`
	Limit   int     `json:"limit"`
	Active  int     `json:"active"`
	CPULoad float64 `json:"cpu_load"`
}

func summarize(s datastore.MediaServer) ServerSummary {
	return ServerSummary{ID: s.ID, Name: s.Name, Host: s.Host, Limit: s.Limit, Active: s.Active, CPULoad: s.CPULoad}
}

// StartResult is returned by a successful start.
type StartResult struct {
	SessionID    SessionID           `json:"session_id"`
	StreamName   string              `json:"stream_name"`
	ServerID     int64               `json:"server_id"`
	Server       ServerSummary       `json:"server"`
	Endpoints    Endpoints           `json:"endpoints"`
	Destinations []DestinationResult `json:"destinations"`
}
