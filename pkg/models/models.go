package models

import (
	"time"

	"github.com/google/uuid"
)

// FailureKind classifies why a single attempt failed. An empty kind means
// the attempt succeeded.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureUnknownZip         FailureKind = "unknown_zip"
	FailureConnectTimeout     FailureKind = "connect_timeout"
	FailureNavigationFailed   FailureKind = "navigation_failed"
	FailureScriptTimeout      FailureKind = "script_timeout"
	FailureSubmissionRejected FailureKind = "submission_rejected"
	FailureUnknown            FailureKind = "unknown_failure"
)

// RetryEligible reports whether a failure of this kind can be recovered by
// running the same pipeline against a different zip's proxy. Dead-end kinds
// (the zip has no coordinates, or the form itself rejected the submission)
// stop the current branch but do not abort the whole request.
func (k FailureKind) RetryEligible() bool {
	switch k {
	case FailureConnectTimeout, FailureNavigationFailed, FailureScriptTimeout, FailureUnknown:
		return true
	default:
		return false
	}
}

// SubmissionRequest is the validated, immutable input for one lead
// submission. The boundary guarantees Phone is 10 digits and Zip is 5
// digits; nothing past the boundary re-validates.
type SubmissionRequest struct {
	ID        string
	FullName  string
	Phone     string
	Zip       string
	CreatedAt time.Time
}

// NewSubmissionRequest stamps a request with an ID and creation time.
func NewSubmissionRequest(fullName, phone, zip string) SubmissionRequest {
	return SubmissionRequest{
		ID:        uuid.NewString(),
		FullName:  fullName,
		Phone:     phone,
		Zip:       zip,
		CreatedAt: time.Now(),
	}
}

// SessionResult is what one browser session reports back: the egress IP it
// observed (if any), the lead ID captured from the form, and the failure
// classification when the submission did not go through.
type SessionResult struct {
	EgressIP   string
	IPVerified bool
	LeadID     string
	Failure    FailureKind
	Detail     string
}

// Success reports whether the form submission was confirmed.
func (r SessionResult) Success() bool {
	return r.Failure == FailureNone
}
