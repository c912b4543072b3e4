// Package browser drives a headless Chromium session through the selected
// proxy target and submits the third-party lead form. Every attempt gets an
// isolated browser process that is torn down on all exit paths.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"lead-submitter/pkg/models"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Form field selectors for the target lead form. The lead ID input and the
// TCPA disclosure checkbox are injected by the vendor's fingerprinting
// script, so their readiness doubles as the script-ready signal.
const (
	selFullName   = `input[name="fname"]`
	selPhone      = `input[name="phoneno"]`
	selZip        = `input[name="zipcode"]`
	selLeadID     = `input[name="universal_leadid"]`
	selConsent    = `#leadid_tcpa_disclosure`
	selSubmit     = `input[name="finish"]`
	selConfirmed  = `h4.modal-title`
	reConfirmed   = `Thank You`
	selRejected   = `.alert-danger, .error, .validation-message`
	reRejected    = `(?i)error|invalid|rejected|unable`
	settleDelay   = time.Second
	domStableSpan = 300 * time.Millisecond
)

// Config holds browser driver settings.
type Config struct {
	// Bin is the Chromium binary path; empty lets the launcher find or
	// download one.
	Bin            string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	// FormURL is the third-party lead form.
	FormURL string
	// NavTimeout bounds navigation to the form page.
	NavTimeout time.Duration
	// ScriptTimeout bounds the wait for the vendor fingerprint scripts.
	ScriptTimeout time.Duration
	// SubmitTimeout bounds the post-submission confirmation wait.
	SubmitTimeout time.Duration
	// ScreenshotDir, when set, receives a screenshot per failed submission.
	ScreenshotDir string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:       true,
		ViewportWidth:  1280,
		ViewportHeight: 720,
		NavTimeout:     60 * time.Second,
		ScriptTimeout:  30 * time.Second,
		SubmitTimeout:  30 * time.Second,
	}
}

// EgressVerifier checks the public IP a live session presents.
type EgressVerifier interface {
	Verify(ctx context.Context, page *rod.Page) (string, error)
}

// Driver launches one isolated browser per attempt.
type Driver struct {
	cfg      Config
	verifier EgressVerifier
	logger   *slog.Logger
}

func NewDriver(cfg Config, verifier EgressVerifier, logger *slog.Logger) (*Driver, error) {
	if cfg.FormURL == "" {
		return nil, errors.New("browser: form URL is required")
	}
	def := DefaultConfig()
	if cfg.ViewportWidth == 0 {
		cfg.ViewportWidth = def.ViewportWidth
	}
	if cfg.ViewportHeight == 0 {
		cfg.ViewportHeight = def.ViewportHeight
	}
	if cfg.NavTimeout == 0 {
		cfg.NavTimeout = def.NavTimeout
	}
	if cfg.ScriptTimeout == 0 {
		cfg.ScriptTimeout = def.ScriptTimeout
	}
	if cfg.SubmitTimeout == 0 {
		cfg.SubmitTimeout = def.SubmitTimeout
	}
	return &Driver{cfg: cfg, verifier: verifier, logger: logger}, nil
}

// Submit runs one complete attempt against the given proxy target. It never
// returns an error: every failure is classified into the result. The
// browser context and its OS process are released before return on every
// path, and ctx cancellation tears the session down promptly.
func (d *Driver) Submit(ctx context.Context, target *models.ProxyTarget, req models.SubmissionRequest) *models.SessionResult {
	l := launcher.New().
		Headless(d.cfg.Headless).
		Leakless(true).
		Set(flags.NoSandbox).
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu")
	if d.cfg.Bin != "" {
		l = l.Bin(d.cfg.Bin)
	}
	if !target.Direct() {
		l = l.Proxy(target.Server())
		d.logger.Info("launching browser via proxy", "server", target.Server(), "zip", target.Zip)
	} else {
		d.logger.Info("launching browser without proxy", "zip", target.Zip)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return &models.SessionResult{
			Failure: classify(err, models.FailureUnknown),
			Detail:  fmt.Sprintf("browser launch failed: %v", err),
		}
	}
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return &models.SessionResult{
			Failure: classify(err, models.FailureUnknown),
			Detail:  fmt.Sprintf("browser connect failed: %v", err),
		}
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			d.logger.Debug("browser close", "error", cerr)
		}
	}()

	if !target.Direct() {
		// Subscribe before any navigation so the proxy's 407 challenge is
		// answered with the zip-targeted credentials.
		waitAuth := browser.HandleAuth(target.Username, target.Password)
		go func() { _ = waitAuth() }()
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return &models.SessionResult{
			Failure: classify(err, models.FailureUnknown),
			Detail:  fmt.Sprintf("page create failed: %v", err),
		}
	}
	page = page.Context(ctx)
	defer func() {
		if cerr := page.Close(); cerr != nil {
			d.logger.Debug("page close", "error", cerr)
		}
	}()

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
		d.logger.Debug("set user agent", "error", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             d.cfg.ViewportWidth,
		Height:            d.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		d.logger.Debug("set viewport", "error", err)
	}

	res := &models.SessionResult{}

	if d.verifier != nil && !target.Direct() {
		ip, verr := d.verifier.Verify(ctx, page)
		res.EgressIP = ip
		if verr == nil {
			res.IPVerified = true
		} else if kind := classify(verr, models.FailureNone); kind == models.FailureConnectTimeout {
			// The proxy itself is not answering; a different zip may.
			res.Failure = models.FailureConnectTimeout
			res.Detail = fmt.Sprintf("proxy verification failed: %v", verr)
			return res
		} else {
			// Soft failure: the submission can still succeed, the outcome
			// just carries an unverified IP for audit.
			d.logger.Warn("egress verification inconclusive, continuing", "zip", target.Zip, "error", verr)
		}
	}

	if failed := d.navigate(page); failed != nil {
		res.Failure = failed.kind
		res.Detail = failed.detail
		return res
	}

	leadID, failed := d.fillAndSubmit(page, req)
	res.LeadID = leadID
	if failed != nil {
		res.Failure = failed.kind
		res.Detail = failed.detail
		d.screenshot(page, req.ID)
		return res
	}

	d.logger.Info("form submission confirmed", "zip", target.Zip, "leadID", leadID)
	return res
}

type stepFailure struct {
	kind   models.FailureKind
	detail string
}

func fail(kind models.FailureKind, format string, args ...any) *stepFailure {
	return &stepFailure{kind: kind, detail: fmt.Sprintf(format, args...)}
}

func (d *Driver) navigate(page *rod.Page) *stepFailure {
	p := page.Timeout(d.cfg.NavTimeout)
	defer p.CancelTimeout()

	if err := p.Navigate(d.cfg.FormURL); err != nil {
		return fail(classify(err, models.FailureNavigationFailed), "navigation failed: %v", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fail(classify(err, models.FailureNavigationFailed), "load event wait failed: %v", err)
	}
	// Best-effort settle with its own short bound; the form works without
	// full network idle.
	ps := page.Timeout(5 * time.Second)
	if err := ps.WaitDOMStable(domStableSpan, 0.1); err != nil {
		d.logger.Debug("DOM never settled, proceeding", "error", err)
	}
	ps.CancelTimeout()
	return nil
}

// fillAndSubmit waits for the vendor scripts, fills the form, and drives it
// through confirmation. Returns the captured lead ID either way.
func (d *Driver) fillAndSubmit(page *rod.Page, req models.SubmissionRequest) (string, *stepFailure) {
	p := page.Timeout(d.cfg.ScriptTimeout)
	defer p.CancelTimeout()

	nameEl, err := p.Element(selFullName)
	if err != nil {
		return "", fail(classify(err, models.FailureScriptTimeout), "form field %s not ready: %v", selFullName, err)
	}
	phoneEl, err := p.Element(selPhone)
	if err != nil {
		return "", fail(classify(err, models.FailureScriptTimeout), "form field %s not ready: %v", selPhone, err)
	}
	zipEl, err := p.Element(selZip)
	if err != nil {
		return "", fail(classify(err, models.FailureScriptTimeout), "form field %s not ready: %v", selZip, err)
	}
	submitEl, err := p.Element(selSubmit)
	if err != nil {
		return "", fail(classify(err, models.FailureScriptTimeout), "submit control not ready: %v", err)
	}

	// The lead ID value is written asynchronously by the fingerprinting
	// script; an attached-but-empty input means the script has not
	// reported ready yet.
	leadEl, err := p.Element(selLeadID)
	if err != nil {
		return "", fail(classify(err, models.FailureScriptTimeout), "lead ID field not present: %v", err)
	}
	if err := leadEl.Wait(rod.Eval(`() => this.value !== ""`)); err != nil {
		return "", fail(models.FailureScriptTimeout, "fingerprint script never populated lead ID: %v", err)
	}
	consentEl, err := p.Element(selConsent)
	if err != nil {
		return "", fail(classify(err, models.FailureScriptTimeout), "consent disclosure not present: %v", err)
	}

	if err := nameEl.Input(req.FullName); err != nil {
		return "", fail(models.FailureUnknown, "fill full name: %v", err)
	}
	if err := phoneEl.Input(req.Phone); err != nil {
		return "", fail(models.FailureUnknown, "fill phone: %v", err)
	}
	if err := zipEl.Input(req.Zip); err != nil {
		return "", fail(models.FailureUnknown, "fill zip: %v", err)
	}

	checked, err := consentEl.Property("checked")
	if err != nil {
		return "", fail(models.FailureUnknown, "read consent state: %v", err)
	}
	if !checked.Bool() {
		if err := consentEl.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return "", fail(models.FailureUnknown, "check consent disclosure: %v", err)
		}
	}

	// Read the lead ID immediately before submitting; it is the audit key
	// the vendor correlates on.
	leadVal, err := leadEl.Property("value")
	if err != nil {
		return "", fail(models.FailureUnknown, "read lead ID: %v", err)
	}
	leadID := leadVal.Str()
	if leadID == "" {
		return "", fail(models.FailureScriptTimeout, "lead ID empty at submit time")
	}

	time.Sleep(settleDelay)
	if err := submitEl.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return leadID, fail(classify(err, models.FailureUnknown), "submit click failed: %v", err)
	}

	return leadID, d.confirm(page, leadID)
}

// confirm waits for the post-submission signal: the thank-you modal, an
// explicit validation error, or nothing within the bound. A silent timeout
// with a captured lead ID counts as submitted; the vendor's backend has the
// lead either way.
func (d *Driver) confirm(page *rod.Page, leadID string) *stepFailure {
	p := page.Timeout(d.cfg.SubmitTimeout)
	defer p.CancelTimeout()

	var rejected bool
	var rejectText string
	_, err := p.Race().
		ElementR(selConfirmed, reConfirmed).
		Handle(func(*rod.Element) error { return nil }).
		ElementR(selRejected, reRejected).
		Handle(func(e *rod.Element) error {
			rejected = true
			if txt, terr := e.Text(); terr == nil {
				rejectText = strings.TrimSpace(txt)
			}
			return nil
		}).
		Do()

	switch {
	case err == nil && rejected:
		return fail(models.FailureSubmissionRejected, "form rejected submission: %s", rejectText)
	case err == nil:
		return nil
	case leadID != "":
		d.logger.Warn("no confirmation signal observed, treating as submitted", "leadID", leadID)
		return nil
	default:
		return fail(classify(err, models.FailureUnknown), "confirmation wait failed: %v", err)
	}
}

func (d *Driver) screenshot(page *rod.Page, submissionID string) {
	if d.cfg.ScreenshotDir == "" {
		return
	}
	data, err := page.Screenshot(false, nil)
	if err != nil {
		d.logger.Debug("failure screenshot capture", "error", err)
		return
	}
	name := fmt.Sprintf("%s-%d.png", submissionID, time.Now().Unix())
	path := filepath.Join(d.cfg.ScreenshotDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		d.logger.Debug("failure screenshot write", "path", path, "error", err)
		return
	}
	d.logger.Info("failure screenshot saved", "path", path)
}
