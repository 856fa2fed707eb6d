package transport

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-authcore/core"
)

// TelemetryRoundTripper stamps the telemetry headers of the command running in
// the request context onto outbound requests. Headers already present on the
// request are left untouched.
type TelemetryRoundTripper struct {
	Base   http.RoundTripper
	Source core.HeaderSource
}

func NewTelemetryRoundTripper(source core.HeaderSource, base http.RoundTripper) *TelemetryRoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &TelemetryRoundTripper{Base: base, Source: source}
}

func (t *TelemetryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := http.DefaultTransport
	if t != nil && t.Base != nil {
		base = t.Base
	}
	if t == nil || t.Source == nil || req == nil {
		return base.RoundTrip(req)
	}
	headers := t.Source.TelemetryHeaders(req.Context())
	if len(headers) == 0 {
		return base.RoundTrip(req)
	}
	// RoundTrippers must not mutate the caller's request.
	stamped := req.Clone(req.Context())
	applyHeaders(stamped.Header, headers)
	return base.RoundTrip(stamped)
}

// NewHTTPClient returns a copy of client whose transport stamps telemetry
// headers. A nil client yields a client with defaultTokenRequestTimeout.
func NewHTTPClient(source core.HeaderSource, client *http.Client) *http.Client {
	out := &http.Client{Timeout: defaultTokenRequestTimeout}
	if client != nil {
		copied := *client
		out = &copied
	}
	out.Transport = NewTelemetryRoundTripper(source, out.Transport)
	return out
}

func applyHeaders(dst http.Header, headers map[string]string) {
	for key, value := range headers {
		key = strings.TrimSpace(key)
		if key == "" || dst.Get(key) != "" {
			continue
		}
		dst.Set(key, value)
	}
}

var _ http.RoundTripper = (*TelemetryRoundTripper)(nil)
