package orchestrator

import (
	"fmt"
	"net"
	"strconv"
)

// DefaultStreamingPort is the media server's RTMP and HTTP streaming port.
const DefaultStreamingPort = 1935

// BuildEndpoints synthesizes the ingest and playback URLs of a stream
// published to application on host.
func BuildEndpoints(host string, port int, application, streamName string) Endpoints {
	if port <= 0 {
		port = DefaultStreamingPort
	}
	hostPort := net.JoinHostPort(host, strconv.Itoa(port))
	base := fmt.Sprintf("http://%s/%s/%s", hostPort, application, streamName)
	return Endpoints{
		RTMPURL:   fmt.Sprintf("rtmp://%s/%s", hostPort, application),
		StreamKey: streamName,
		HLSURL:    base + "/playlist.m3u8",
		DASHURL:   base + "/manifest.mpd",
		PlayURL:   base + "/playlist.m3u8",
	}
}
