// Package submit coordinates a bounded sequence of geo-targeted submission
// attempts for one lead: requested zip first, then nearby zips on
// qualifying failures, with every attempt recorded in order.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lead-submitter/pkg/egress"
	"lead-submitter/pkg/geo"
	"lead-submitter/pkg/models"
	"lead-submitter/pkg/proxy"
)

// Driver runs one browser attempt against one proxy target. It classifies
// its own failures; it never raises them.
type Driver interface {
	Submit(ctx context.Context, target *models.ProxyTarget, req models.SubmissionRequest) *models.SessionResult
}

// Geolocator resolves zips and enumerates fallback candidates.
type Geolocator interface {
	Resolve(zip string) (geo.Coordinates, error)
	Nearby(zip string, radiusMiles float64, max int) ([]models.NearbyZipCandidate, error)
}

// AttemptStore persists sealed attempts for audit. May be absent.
type AttemptStore interface {
	InsertAttempt(ctx context.Context, attempt *models.Attempt) error
}

// Enricher annotates a verified egress IP with observed geography.
type Enricher interface {
	Lookup(ctx context.Context, ip string) (egress.IPInfo, error)
}

// Settings bound the retry sequence. The attempt cap limits latency and
// proxy spend no matter how many nearby zips exist.
type Settings struct {
	MaxAttempts     int
	RadiusMiles     float64
	RadiusStepMiles float64
	MaxCandidates   int
}

// DefaultSettings returns the production retry bounds.
func DefaultSettings() Settings {
	return Settings{
		MaxAttempts:     3,
		RadiusMiles:     5,
		RadiusStepMiles: 5,
		MaxCandidates:   3,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = def.MaxAttempts
	}
	if s.RadiusMiles <= 0 {
		s.RadiusMiles = def.RadiusMiles
	}
	if s.RadiusStepMiles <= 0 {
		s.RadiusStepMiles = def.RadiusStepMiles
	}
	if s.MaxCandidates <= 0 {
		s.MaxCandidates = def.MaxCandidates
	}
	return s
}

// phase is the state the machine moves to after sealing an attempt.
type phase int

const (
	phaseSuccess phase = iota
	// phaseRetry means the failure was environmental; a different zip's
	// exit node may work, so the candidate queue is refilled.
	phaseRetry
	// phaseDeadEnd means retrying this zip is futile but other candidates
	// stay viable.
	phaseDeadEnd
)

func transition(kind models.FailureKind) phase {
	switch {
	case kind == models.FailureNone:
		return phaseSuccess
	case kind.RetryEligible():
		return phaseRetry
	default:
		return phaseDeadEnd
	}
}

// Orchestrator owns the attempt sequence for one submission at a time. It
// holds no mutable state across requests; everything is request-scoped
// inside Run.
type Orchestrator struct {
	geo      Geolocator
	provider proxy.Provider
	driver   Driver
	store    AttemptStore
	enricher Enricher
	settings Settings
	logger   *slog.Logger
}

func NewOrchestrator(geolocator Geolocator, provider proxy.Provider, driver Driver, store AttemptStore, enricher Enricher, settings Settings, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		geo:      geolocator,
		provider: provider,
		driver:   driver,
		store:    store,
		enricher: enricher,
		settings: settings.withDefaults(),
		logger:   logger,
	}
}

// Run processes one submission request to a terminal outcome. Attempts are
// strictly sequential; every attempt is sealed and recorded before the next
// starts. The caller always gets a SubmissionOutcome, never a raw error
// from the pipeline.
func (o *Orchestrator) Run(ctx context.Context, req models.SubmissionRequest) *models.SubmissionOutcome {
	s := o.settings
	queue := []string{req.Zip}
	tried := make(map[string]bool)
	queued := map[string]bool{req.Zip: true}
	radius := s.RadiusMiles
	attempts := make([]models.Attempt, 0, s.MaxAttempts)

	for len(attempts) < s.MaxAttempts && len(queue) > 0 {
		if ctx.Err() != nil {
			o.logger.Warn("submission aborted by caller", "submissionID", req.ID)
			break
		}

		zip := queue[0]
		queue = queue[1:]
		if tried[zip] {
			continue
		}
		tried[zip] = true

		o.logger.Info("attempting submission",
			"submissionID", req.ID,
			"attempt", len(attempts)+1,
			"maxAttempts", s.MaxAttempts,
			"zip", zip)

		attempt := o.runAttempt(ctx, req, zip, len(attempts)+1)
		attempts = append(attempts, attempt)
		o.record(ctx, &attempts[len(attempts)-1])

		switch transition(attempt.Failure) {
		case phaseSuccess:
			o.logger.Info("submission succeeded",
				"submissionID", req.ID,
				"zip", zip,
				"egressIP", attempt.EgressIP,
				"ipVerified", attempt.IPVerified)
			return Summarize(req, attempts)

		case phaseRetry:
			o.logger.Warn("attempt failed, searching for fallback zips",
				"submissionID", req.ID,
				"zip", zip,
				"failure", attempt.Failure,
				"radiusMiles", radius)

		case phaseDeadEnd:
			// Retrying this zip is futile; other candidates stay viable.
			o.logger.Warn("dead-end failure for zip, moving on",
				"submissionID", req.ID,
				"zip", zip,
				"failure", attempt.Failure)
		}

		added := o.refill(&queue, queued, req.Zip, radius)
		radius += s.RadiusStepMiles
		if added == 0 && len(queue) == 0 {
			o.logger.Warn("no untried fallback zips remain", "submissionID", req.ID)
		}
	}

	return Summarize(req, attempts)
}

// runAttempt executes one zip's full pipeline and seals the attempt record.
func (o *Orchestrator) runAttempt(ctx context.Context, req models.SubmissionRequest, zip string, seq int) models.Attempt {
	attempt := models.Attempt{
		SubmissionID: req.ID,
		Seq:          seq,
		Zip:          zip,
		StartedAt:    time.Now(),
	}
	defer func() { attempt.FinishedAt = time.Now() }()

	// A zip outside the reference dataset cannot be geo-verified and
	// yields no fallback candidates: dead-end for the branch, not fatal.
	if _, err := o.geo.Resolve(zip); err != nil {
		if errors.Is(err, geo.ErrUnknownZip) {
			attempt.Failure = models.FailureUnknownZip
			attempt.Detail = fmt.Sprintf("zip %s not in reference dataset", zip)
			return attempt
		}
		attempt.Failure = models.FailureUnknown
		attempt.Detail = fmt.Sprintf("zip resolution failed: %v", err)
		return attempt
	}

	target, err := o.provider.BuildTarget(zip)
	if err != nil {
		attempt.Failure = models.FailureUnknown
		attempt.Detail = fmt.Sprintf("build proxy target: %v", err)
		return attempt
	}
	attempt.ProxyUsername = target.Username

	result := o.driver.Submit(ctx, target, req)
	attempt.EgressIP = result.EgressIP
	attempt.IPVerified = result.IPVerified
	attempt.LeadID = result.LeadID
	attempt.Success = result.Success()
	attempt.Failure = result.Failure
	attempt.Detail = result.Detail

	if attempt.IPVerified && o.enricher != nil {
		if info, lerr := o.enricher.Lookup(ctx, attempt.EgressIP); lerr == nil {
			attempt.EgressCity = info.City
			attempt.EgressPostal = info.Postal
		} else {
			o.logger.Debug("egress IP enrichment failed", "ip", attempt.EgressIP, "error", lerr)
		}
	}
	return attempt
}

// refill asks the geolocator for fresh candidates around the originally
// requested zip and appends the untried ones. Returns how many were added.
func (o *Orchestrator) refill(queue *[]string, queued map[string]bool, originZip string, radius float64) int {
	candidates, err := o.geo.Nearby(originZip, radius, o.settings.MaxCandidates)
	if err != nil {
		if !errors.Is(err, geo.ErrUnknownZip) {
			o.logger.Error("nearby zip search failed", "zip", originZip, "error", err)
		}
		return 0
	}

	added := 0
	for _, c := range candidates {
		if queued[c.Zip] {
			continue
		}
		queued[c.Zip] = true
		*queue = append(*queue, c.Zip)
		added++
	}
	if added > 0 {
		o.logger.Info("queued fallback zips",
			"origin", originZip,
			"radiusMiles", radius,
			"added", added)
	}
	return added
}

// record persists a sealed attempt. Audit writes never fail a submission.
func (o *Orchestrator) record(ctx context.Context, attempt *models.Attempt) {
	if o.store == nil {
		return
	}
	if err := o.store.InsertAttempt(ctx, attempt); err != nil {
		o.logger.Error("failed to persist attempt",
			"submissionID", attempt.SubmissionID,
			"seq", attempt.Seq,
			"error", err)
	}
}
