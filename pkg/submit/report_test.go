package submit

import (
	"strings"
	"testing"

	"lead-submitter/pkg/models"
)

func TestSummarizePicksFirstSuccess(t *testing.T) {
	req := models.SubmissionRequest{ID: "sub-1", Zip: "10001"}
	attempts := []models.Attempt{
		{Seq: 1, Zip: "10001", Failure: models.FailureConnectTimeout},
		{Seq: 2, Zip: "10002", Success: true, EgressIP: "45.33.12.7", IPVerified: true, LeadID: "L1"},
		{Seq: 3, Zip: "10003", Success: true, EgressIP: "1.2.3.4", IPVerified: true, LeadID: "L2"},
	}

	outcome := Summarize(req, attempts)
	if !outcome.Success {
		t.Fatal("Success = false, want true")
	}
	if outcome.FinalZip != "10002" || outcome.LeadID != "L1" {
		t.Errorf("picked zip %q lead %q, want first success 10002/L1", outcome.FinalZip, outcome.LeadID)
	}
	if len(outcome.Attempts) != 3 {
		t.Errorf("attempt history truncated to %d, want 3", len(outcome.Attempts))
	}
}

func TestSummarizeFlagsUnverifiedIP(t *testing.T) {
	req := models.SubmissionRequest{ID: "sub-2", Zip: "10001"}
	attempts := []models.Attempt{
		{Seq: 1, Zip: "10001", Success: true, LeadID: "L9", IPVerified: false},
	}

	outcome := Summarize(req, attempts)
	if !outcome.Success {
		t.Fatal("Success = false, want true")
	}
	if !strings.Contains(outcome.Message, "unverified") {
		t.Errorf("message %q should flag the unverified egress IP", outcome.Message)
	}
}

func TestSummarizeExhaustion(t *testing.T) {
	req := models.SubmissionRequest{ID: "sub-3", Zip: "10001"}
	attempts := []models.Attempt{
		{Seq: 1, Zip: "10001", Failure: models.FailureConnectTimeout},
		{Seq: 2, Zip: "10002", Failure: models.FailureNavigationFailed, Detail: "load timed out"},
	}

	outcome := Summarize(req, attempts)
	if outcome.Success {
		t.Fatal("Success = true, want false")
	}
	if !strings.Contains(outcome.Message, "2 attempt(s)") || !strings.Contains(outcome.Message, "10002") {
		t.Errorf("message %q should reference the attempt count and last zip", outcome.Message)
	}

	empty := Summarize(req, nil)
	if empty.Success || empty.Message == "" {
		t.Errorf("empty history should yield structured failure, got %+v", empty)
	}
}
