package orchestrator

import (
	"net"
	"net/url"
	"strings"
)

// DefaultOutputApplication is used when an ingest URL names a host but no
// application path.
const DefaultOutputApplication = "live"

// IngestKind tags how an ingest URL was understood.
type IngestKind string

const (
	// IngestParsed means the URL had a supported scheme, a host and an
	// application path.
	IngestParsed IngestKind = "parsed"
	// IngestFallback means a host was recovered but the rest was filled in
	// with defaults (missing scheme or missing application).
	IngestFallback IngestKind = "fallback"
	// IngestInvalid means no usable host could be recovered.
	IngestInvalid IngestKind = "invalid"
)

var ingestSchemes = map[string]bool{"rtmp": true, "rtmps": true}

// IngestTarget is the result of ParseIngestURL.
type IngestTarget struct {
	Kind        IngestKind
	Host        string
	Port        string
	Application string
	// Reason explains a fallback or invalid result.
	Reason string
}

// Usable reports whether a forwarding rule can be built from t.
func (t IngestTarget) Usable() bool { return t.Kind != IngestInvalid }

// ParseIngestURL splits a destination ingest URL such as
// rtmp://a.rtmp.youtube.com/live2 into host and application. It never
// panics; malformed input yields an IngestInvalid target.
func ParseIngestURL(raw string) IngestTarget {
	s := strings.TrimSpace(raw)
	if s == "" {
		return invalidIngest("empty ingest url")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return invalidIngest("ingest url contains whitespace")
	}

	if !strings.Contains(s, "://") {
		return parseSchemeless(s)
	}

	u, err := url.Parse(s)
	if err != nil {
		return invalidIngest("malformed ingest url: " + err.Error())
	}
	if !ingestSchemes[strings.ToLower(u.Scheme)] {
		return invalidIngest("unsupported ingest scheme " + u.Scheme)
	}
	if u.Hostname() == "" {
		return invalidIngest("ingest url has no host")
	}

	target := IngestTarget{Kind: IngestParsed, Host: u.Hostname(), Port: u.Port()}
	app := firstSegment(u.Path)
	if app == "" {
		target.Kind = IngestFallback
		target.Application = DefaultOutputApplication
		target.Reason = "no application path, using " + DefaultOutputApplication
		return target
	}
	target.Application = app
	return target
}

func parseSchemeless(s string) IngestTarget {
	hostPart, rest, _ := strings.Cut(s, "/")
	if hostPart == "" || strings.ContainsAny(hostPart, "?#@") {
		return invalidIngest("ingest url has no host")
	}
	host, port, err := net.SplitHostPort(hostPart)
	if err != nil {
		bracketed := strings.HasPrefix(hostPart, "[") && strings.HasSuffix(hostPart, "]")
		switch {
		case bracketed:
			host, port = hostPart[1:len(hostPart)-1], ""
		case strings.ContainsAny(hostPart, ":[]"):
			return invalidIngest("malformed ingest host " + hostPart)
		default:
			host, port = hostPart, ""
		}
	}
	if host == "" {
		return invalidIngest("ingest url has no host")
	}

	target := IngestTarget{
		Kind:        IngestFallback,
		Host:        host,
		Port:        port,
		Application: firstSegment(rest),
		Reason:      "missing scheme",
	}
	if target.Application == "" {
		target.Application = DefaultOutputApplication
	}
	return target
}

func firstSegment(p string) string {
	p = strings.TrimLeft(p, "/")
	seg, _, _ := strings.Cut(p, "/")
	return seg
}

func invalidIngest(reason string) IngestTarget {
	return IngestTarget{Kind: IngestInvalid, Reason: reason}
}
