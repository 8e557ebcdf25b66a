package orchestrator

import (
	"testing"
)

func TestParseIngestURL(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantKind IngestKind
		wantHost string
		wantPort string
		wantApp  string
	}{
		{"rtmp", "rtmp://a.rtmp.youtube.com/live2", IngestParsed, "a.rtmp.youtube.com", "", "live2"},
		{"rtmps_with_port", "rtmps://live-api-s.facebook.com:443/rtmp/", IngestParsed, "live-api-s.facebook.com", "443", "rtmp"},
		{"nested_path_keeps_first_segment", "rtmp://ingest.example.com/app/extra/key", IngestParsed, "ingest.example.com", "", "app"},
		{"uppercase_scheme", "RTMP://live.twitch.tv/app", IngestParsed, "live.twitch.tv", "", "app"},
		{"surrounding_spaces", "  rtmp://live.twitch.tv/app  ", IngestParsed, "live.twitch.tv", "", "app"},
		{"no_application", "rtmp://live.twitch.tv", IngestFallback, "live.twitch.tv", "", "live"},
		{"no_application_trailing_slash", "rtmp://live.twitch.tv/", IngestFallback, "live.twitch.tv", "", "live"},
		{"no_scheme", "live.twitch.tv/app", IngestFallback, "live.twitch.tv", "", "app"},
		{"no_scheme_with_port", "live.twitch.tv:1935/app", IngestFallback, "live.twitch.tv", "1935", "app"},
		{"bare_host", "live.twitch.tv", IngestFallback, "live.twitch.tv", "", "live"},
		{"no_scheme_ipv6_with_port", "[::1]:1935/app", IngestFallback, "::1", "1935", "app"},
		{"no_scheme_ipv6", "[2001:db8::7]/app", IngestFallback, "2001:db8::7", "", "app"},
		{"rtmp_ipv6", "rtmp://[2001:db8::7]:1935/live", IngestParsed, "2001:db8::7", "1935", "live"},
		{"no_scheme_bare_ipv6", "::1/app", IngestInvalid, "", "", ""},
		{"no_scheme_unclosed_bracket", "[::1:1935/app", IngestInvalid, "", "", ""},
		{"no_scheme_empty_host", ":1935/app", IngestInvalid, "", "", ""},
		{"empty", "", IngestInvalid, "", "", ""},
		{"blank", "   ", IngestInvalid, "", "", ""},
		{"inner_spaces", "not a url", IngestInvalid, "", "", ""},
		{"http_scheme", "http://example.com/live", IngestInvalid, "", "", ""},
		{"missing_host", "rtmp:///live", IngestInvalid, "", "", ""},
		{"leading_slash", "/live/key", IngestInvalid, "", "", ""},
		{"colons", "::bad::", IngestInvalid, "", "", ""},
		{"bad_escape", "rtmp://host/%zz", IngestInvalid, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseIngestURL(tt.in)
			if got.Kind != tt.wantKind {
				t.Fatalf("ParseIngestURL(%q).Kind = %s, want %s (reason %q)", tt.in, got.Kind, tt.wantKind, got.Reason)
			}
			if got.Host != tt.wantHost || got.Port != tt.wantPort || got.Application != tt.wantApp {
				t.Errorf("ParseIngestURL(%q) = host %q port %q app %q, want %q %q %q",
					tt.in, got.Host, got.Port, got.Application, tt.wantHost, tt.wantPort, tt.wantApp)
			}
			if got.Kind != IngestParsed && got.Reason == "" {
				t.Errorf("ParseIngestURL(%q): %s result without reason", tt.in, got.Kind)
			}
			if got.Usable() != (tt.wantKind != IngestInvalid) {
				t.Errorf("Usable() = %v for kind %s", got.Usable(), got.Kind)
			}
		})
	}
}
