package browser

import (
	"strings"

	"lead-submitter/pkg/models"
)

// Substrings Chromium and the launcher surface when the proxy leg is the
// problem. Matching on error text is crude but it is all the browser gives
// us, and these cover the vendor's observed failure modes.
var proxyErrorMarkers = []string{
	"proxy",
	"tunnel",
	"epipe",
	"err_tunnel_connection_failed",
	"err_proxy_connection_failed",
	"err_no_supported_proxies",
	"err_socks_connection_failed",
}

// classify maps a raw browser/launcher error onto the attempt failure
// taxonomy. Proxy-leg errors always become ConnectTimeout so the
// orchestrator knows a different zip's exit node may still work; anything
// else gets the phase-appropriate fallback kind.
func classify(err error, fallback models.FailureKind) models.FailureKind {
	if err == nil {
		return models.FailureNone
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range proxyErrorMarkers {
		if strings.Contains(msg, marker) {
			return models.FailureConnectTimeout
		}
	}
	return fallback
}
