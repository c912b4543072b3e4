package submit

import (
	"fmt"

	"lead-submitter/pkg/models"
)

// Summarize folds a sealed attempt sequence into the terminal outcome. Pure
// function: the first successful attempt wins, otherwise the whole request
// is reported failed with full diagnostics attached.
func Summarize(req models.SubmissionRequest, attempts []models.Attempt) *models.SubmissionOutcome {
	outcome := &models.SubmissionOutcome{
		SubmissionID: req.ID,
		Attempts:     attempts,
	}

	for _, a := range attempts {
		if !a.Success {
			continue
		}
		outcome.Success = true
		outcome.FinalZip = a.Zip
		outcome.EgressIP = a.EgressIP
		outcome.IPVerified = a.IPVerified
		outcome.LeadID = a.LeadID
		outcome.Message = fmt.Sprintf("submitted successfully via zip %s", a.Zip)
		if a.LeadID != "" {
			outcome.Message += fmt.Sprintf(" (lead ID %s)", a.LeadID)
		}
		if !a.IPVerified {
			outcome.Message += "; egress IP unverified"
		}
		return outcome
	}

	if len(attempts) == 0 {
		outcome.Message = fmt.Sprintf("no attempts possible for zip %s", req.Zip)
		return outcome
	}

	last := attempts[len(attempts)-1]
	outcome.Message = fmt.Sprintf("failed after %d attempt(s); last failure on zip %s: %s",
		len(attempts), last.Zip, last.Failure)
	if last.Detail != "" {
		outcome.Message += " (" + last.Detail + ")"
	}
	return outcome
}
