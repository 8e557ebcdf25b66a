package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{-5 * time.Second, "00:00:00"},
		{59*time.Second + 900*time.Millisecond, "00:00:59"},
		{3661 * time.Second, "01:01:01"},
		{25 * time.Hour, "25:00:00"},
		{123*time.Hour + 4*time.Minute + 5*time.Second, "123:04:05"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatUptime(tt.in), tt.in.String())
	}
}

func TestEstimatorTelemetry_ranges(t *testing.T) {
	var est EstimatorTelemetry
	for range 200 {
		s, err := est.Sample(context.Background(), nil)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, s.Viewers, 5)
		assert.LessOrEqual(t, s.Viewers, 54)
		assert.GreaterOrEqual(t, s.Bitrate, 2500)
		assert.LessOrEqual(t, s.Bitrate, 2999)
	}
}

type fixedTelemetry struct {
	sample Sample
	err    error
}

func (f fixedTelemetry) Sample(context.Context, *Session) (Sample, error) { return f.sample, f.err }

func TestProbe_Stats(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	sess := &Session{
		ID:                "s1",
		Status:            StatusActive,
		StartedAt:         testEpoch,
		CurrentVideoIndex: 1,
		Source:            Source{Kind: SourcePlaylist, Videos: []Video{{Title: "a"}, {Title: "b"}}},
		Destinations:      []Destination{{PlatformID: "yt", EntryID: "x_yt", Status: DestinationConnected}},
	}

	p := NewProbe(clock, fixedTelemetry{sample: Sample{Viewers: 12, Bitrate: 3100}})
	clock.Advance(90 * time.Second)
	got := p.Stats(context.Background(), sess)
	assert.Equal(t, Stats{
		IsActive:          true,
		Viewers:           12,
		Bitrate:           3100,
		Uptime:            "00:01:30",
		CurrentVideoIndex: 1,
		TotalVideos:       2,
		Destinations:      []DestinationResult{{PlatformID: "yt", EntryID: "x_yt", Success: true}},
	}, got)

	p = NewProbe(clock, fixedTelemetry{err: errors.New("probe down")})
	got = p.Stats(context.Background(), sess)
	assert.True(t, got.IsActive)
	assert.Zero(t, got.Viewers)

	assert.Equal(t, InactiveStats(), p.Stats(context.Background(), nil))
	assert.Equal(t, InactiveStats(), p.Stats(context.Background(), &Session{Status: StatusStopping}))
}
