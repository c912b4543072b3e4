// Package egress verifies which public IP the proxied browser session
// actually presents, via an external IP-echo service, and enriches verified
// IPs with ipinfo.io geography for the audit trail. Both checks are
// best-effort: the echo service is not authoritative.
package egress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// ErrIndistinctEgress means the proxied session reported the same public IP
// as a direct connection, so the proxy is not actually routing traffic.
var ErrIndistinctEgress = errors.New("egress IP matches direct IP")

// Config holds verifier settings.
type Config struct {
	// EchoURL is the IP-echo endpoint fetched through the proxied session.
	EchoURL string
	// Timeout bounds each lookup.
	Timeout time.Duration
	// IPInfoToken authorizes ipinfo.io enrichment lookups; empty disables
	// enrichment.
	IPInfoToken string
}

// IPInfo is the subset of the ipinfo.io response the audit trail records.
type IPInfo struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc"`
	Org      string `json:"org"`
	Postal   string `json:"postal"`
	Timezone string `json:"timezone"`
}

// Verifier queries the echo service through live browser sessions and
// remembers the machine's direct IP for the distinctness check.
type Verifier struct {
	cfg      Config
	logger   *slog.Logger
	client   *http.Client
	directIP string
}

func NewVerifier(cfg Config, logger *slog.Logger) *Verifier {
	if cfg.EchoURL == "" {
		cfg.EchoURL = "https://api.ipify.org"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Verifier{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// ResolveDirect looks up the direct (unproxied) public IP and caches it.
// Called once at startup; failure is non-fatal, it just disables the
// distinctness check.
func (v *Verifier) ResolveDirect(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.EchoURL, nil)
	if err != nil {
		return "", fmt.Errorf("build direct echo request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("direct echo lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", fmt.Errorf("read direct echo response: %w", err)
	}

	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("direct echo returned %q, not an IP", ip)
	}
	v.directIP = ip
	v.logger.Debug("resolved direct egress IP", "ip", ip)
	return ip, nil
}

// Verify navigates the live proxied page to the echo service and returns
// the IP the remote end observed. The caller decides how hard to treat a
// failure; a timeout here does not by itself doom the attempt.
func (v *Verifier) Verify(ctx context.Context, page *rod.Page) (string, error) {
	p := page.Context(ctx).Timeout(v.cfg.Timeout)
	defer p.CancelTimeout()

	if err := p.Navigate(v.cfg.EchoURL); err != nil {
		return "", fmt.Errorf("navigate to echo service: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for echo response: %w", err)
	}

	body, err := p.Element("body")
	if err != nil {
		return "", fmt.Errorf("locate echo response body: %w", err)
	}
	text, err := body.Text()
	if err != nil {
		return "", fmt.Errorf("read echo response body: %w", err)
	}

	ip := strings.TrimSpace(text)
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("echo service returned %q, not an IP", ip)
	}
	if v.directIP != "" && ip == v.directIP {
		return ip, ErrIndistinctEgress
	}

	v.logger.Debug("verified proxied egress IP", "ip", ip)
	return ip, nil
}

// Lookup fetches ipinfo.io details for a verified IP. Best-effort audit
// enrichment only.
func (v *Verifier) Lookup(ctx context.Context, ip string) (IPInfo, error) {
	if v.cfg.IPInfoToken == "" {
		return IPInfo{}, errors.New("ipinfo token not configured")
	}

	url := fmt.Sprintf("https://ipinfo.io/%s?token=%s", ip, v.cfg.IPInfoToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return IPInfo{}, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return IPInfo{}, err
	}
	defer resp.Body.Close()

	var info IPInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return IPInfo{}, fmt.Errorf("decode ipinfo response: %w", err)
	}
	return info, nil
}
