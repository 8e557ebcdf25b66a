package orchestrator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
)

// Sample is one telemetry reading for a session.
type Sample struct {
	Viewers int
	Bitrate int // kbps
}

// Telemetry reports audience and bitrate for a running session.
type Telemetry interface {
	Sample(ctx context.Context, s *Session) (Sample, error)
}

// EstimatorTelemetry returns placeholder figures (5..54 viewers,
// 2500..2999 kbps) until a real probe of the media server exists.
type EstimatorTelemetry struct{}

// Sample implements Telemetry.
func (EstimatorTelemetry) Sample(context.Context, *Session) (Sample, error) {
	return Sample{
		Viewers: 5 + rand.IntN(50),
		Bitrate: 2500 + rand.IntN(500),
	}, nil
}

// Stats is the read-only view of a session returned by GetStats.
type Stats struct {
	IsActive          bool                `json:"is_active"`
	Viewers           int                 `json:"viewers"`
	Bitrate           int                 `json:"bitrate"`
	Uptime            string              `json:"uptime"`
	CurrentVideoIndex int                 `json:"current_video_index"`
	TotalVideos       int                 `json:"total_videos"`
	Destinations      []DestinationResult `json:"destinations,omitempty"`
}

// InactiveStats is returned for sessions that are not running.
func InactiveStats() Stats {
	return Stats{Uptime: FormatUptime(0)}
}

// FormatUptime renders d as HH:MM:SS. Hours are not wrapped at 24.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// Probe builds Stats from registry records.
type Probe struct {
	clock     clockwork.Clock
	telemetry Telemetry
}

// NewProbe returns a Probe. Nil arguments select the real clock and
// EstimatorTelemetry.
func NewProbe(clock clockwork.Clock, telemetry Telemetry) *Probe {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if telemetry == nil {
		telemetry = EstimatorTelemetry{}
	}
	return &Probe{clock: clock, telemetry: telemetry}
}

// Stats describes s. A telemetry failure leaves viewers and bitrate at zero.
func (p *Probe) Stats(ctx context.Context, s *Session) Stats {
	if s == nil || s.Status != StatusActive {
		return InactiveStats()
	}
	st := Stats{
		IsActive:          true,
		Uptime:            FormatUptime(p.clock.Since(s.StartedAt)),
		CurrentVideoIndex: s.CurrentVideoIndex,
		TotalVideos:       len(s.Source.Videos),
		Destinations:      Results(s.Destinations),
	}
	if sample, err := p.telemetry.Sample(ctx, s); err == nil {
		st.Viewers = sample.Viewers
		st.Bitrate = sample.Bitrate
	}
	return st
}
